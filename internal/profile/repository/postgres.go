package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/profile/domain"
)

// DBTX is the subset of *pgxpool.Pool (or pgx.Tx) the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	getProfileSQL = `SELECT id, email, role, has_access, active_device_id, last_login_at
FROM profiles WHERE id = $1`
	bindDeviceSQL  = `UPDATE profiles SET active_device_id = $2, last_login_at = $3 WHERE id = $1`
	clearDeviceSQL = `UPDATE profiles SET active_device_id = NULL WHERE id = $1 AND active_device_id = $2`
)

// PostgresRepository reads and writes the profiles table directly over pgx.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository returns a profile repository that uses db for persistence.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the profile for userID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p    domain.Profile
		role string
	)
	err := r.db.QueryRow(ctx, getProfileSQL, userID).Scan(&p.ID, &p.Email, &role, &p.HasAccess, &p.ActiveDeviceID, &p.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Role = domain.Role(role)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// BindDevice writes the device binding. A missing profile is not an error, matching an UPDATE with no rows.
func (r *PostgresRepository) BindDevice(ctx context.Context, userID, deviceID string, at time.Time) error {
	_, err := r.db.Exec(ctx, bindDeviceSQL, userID, deviceID, at.UTC())
	return err
}

// ClearDevice clears the binding if it still names expectedDeviceID; otherwise it is a no-op.
func (r *PostgresRepository) ClearDevice(ctx context.Context, userID, expectedDeviceID string) error {
	_, err := r.db.Exec(ctx, clearDeviceSQL, userID, expectedDeviceID)
	return err
}
