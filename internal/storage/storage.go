// Package storage provides the durable key-value store the reader keeps on the device.
package storage

import "context"

// KV is durable per-installation key-value storage. Get reports ok=false when the key is absent.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
