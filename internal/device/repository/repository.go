package repository

import (
	"context"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/storage"
)

// StorageKey is the durable storage key of the installation identifier.
const StorageKey = "device.id"

// Repository defines persistence for the installation identifier.
type Repository interface {
	// Load returns the persisted identifier; ok is false when none is stored.
	Load(ctx context.Context) (id string, ok bool, err error)
	Save(ctx context.Context, id string) error
	Delete(ctx context.Context) error
}

// KVRepository keeps the identifier under StorageKey in a storage.KV.
type KVRepository struct {
	kv storage.KV
}

// NewKVRepository returns a Repository backed by kv.
func NewKVRepository(kv storage.KV) *KVRepository {
	return &KVRepository{kv: kv}
}

func (r *KVRepository) Load(ctx context.Context) (string, bool, error) {
	return r.kv.Get(ctx, StorageKey)
}

func (r *KVRepository) Save(ctx context.Context, id string) error {
	return r.kv.Set(ctx, StorageKey, id)
}

func (r *KVRepository) Delete(ctx context.Context) error {
	return r.kv.Delete(ctx, StorageKey)
}
