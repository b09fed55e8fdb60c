package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/config"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/db/migrate"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back the local store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Opening creates the data directory and file with owner-only permissions.
			store, err := db.OpenSQLite(cfg.StorePath())
			if err != nil {
				return err
			}
			_ = store.Close()

			if err := migrate.Run(cfg.StorePath(), direction); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Local store migrated %s.\n", direction)
			return nil
		},
	}
}
