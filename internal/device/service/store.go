// Package service owns the installation identifier: lazily generated, cached for the process, persisted durably.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/domain"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/device/repository"
	"github.com/Abubakarnofal03/secure-reader-pro-sub001/internal/logging"
)

// ErrStorage wraps durable storage failures. No fallback identifier is invented when it is returned.
var ErrStorage = errors.New("device id storage failure")

// Store is the process-wide device identity. Safe for concurrent use.
type Store struct {
	repo repository.Repository
	log  *slog.Logger

	mu     sync.Mutex
	cached string
	nowF   func() time.Time
	newID  func(time.Time) (string, error)
}

// NewStore returns a Store persisting through repo. log may be nil.
func NewStore(repo repository.Repository, log *slog.Logger) *Store {
	return &Store{
		repo:  repo,
		log:   logging.OrDefault(log),
		nowF:  time.Now,
		newID: domain.NewID,
	}
}

// GetDeviceID returns the cached identifier, else the persisted one, else generates and persists a new one.
func (s *Store) GetDeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	id, ok, err := s.repo.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: load: %w", ErrStorage, err)
	}
	if ok {
		if err := domain.ValidateID(id); err == nil {
			s.cached = id
			return id, nil
		}
		s.log.Warn("device: discarding malformed persisted id")
	}

	id, err = s.newID(s.nowF())
	if err != nil {
		return "", fmt.Errorf("device: generate id: %w", err)
	}
	if err := s.repo.Save(ctx, id); err != nil {
		return "", fmt.Errorf("%w: save: %w", ErrStorage, err)
	}
	s.cached = id
	s.log.Info("device: generated new installation id")
	return id, nil
}

// ClearDeviceID evicts the cache and removes the persisted identifier; the next GetDeviceID generates a new one.
func (s *Store) ClearDeviceID(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = ""
	if err := s.repo.Delete(ctx); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrStorage, err)
	}
	return nil
}
