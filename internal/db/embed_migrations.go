package db

import "embed"

// MigrationFS embeds the local store schema from internal/db/migrations.
// Applied by migrate.Run when the reader opens its data directory.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
