package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/device"
)

// Manager owns the session lifecycle. All mutation goes through it; the
// HTTP layer never touches the store directly.
type Manager struct {
	store  *Store
	logger *slog.Logger
	ttl    time.Duration
}

// NewManager creates a session Manager with the given default lifetime.
func NewManager(store *Store, logger *slog.Logger, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger, ttl: ttl}, nil
}

// Login records a login for the (userID, fingerprint) pair and returns
// the session ID. A repeat login from the same device replaces the
// existing record's tokens and descriptor in place and keeps its ID; a
// login from a new device creates a fresh record. Either way the session
// lifetime restarts from now.
func (m *Manager) Login(ctx context.Context, userID, fingerprint string, descriptor device.Descriptor, accessToken, refreshToken string) (string, error) {
	now := time.Now()
	candidate := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Fingerprint:  fingerprint,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Device:       descriptor,
		Active:       true,
		ExpiresAt:    now.Add(m.ttl).Unix(),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}

	id, created, err := m.store.Upsert(ctx, candidate, m.ttl)
	if err != nil {
		return "", err
	}

	m.logger.Info("session established",
		"session_id", id,
		"user_id", userID,
		"created", created,
	)
	return id, nil
}

// Get returns the session by ID, or (nil, nil) when no live session
// exists. Inactive and expired records read as absent.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.Active {
		return nil, nil
	}
	return sess, nil
}

// FindByDevice returns the live session for a (userID, fingerprint)
// pair, or (nil, nil) when the device has none.
func (m *Manager) FindByDevice(ctx context.Context, userID, fingerprint string) (*Session, error) {
	sess, err := m.store.FindByDevice(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.Active {
		return nil, nil
	}
	return sess, nil
}

// Revoke removes a session by ID. Reports whether a record existed;
// revoking an unknown or already-revoked ID is not an error.
func (m *Manager) Revoke(ctx context.Context, id string) (bool, error) {
	existed, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if existed {
		m.logger.Info("session revoked", "session_id", id)
	}
	return existed, nil
}

// Ping reports store availability and round-trip latency.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	return m.store.Ping(ctx)
}

// RevokeAllForUser removes every session for a user and returns how many
// existed.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	removed, err := m.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		m.logger.Info("user sessions revoked", "user_id", userID, "count", removed)
	}
	return removed, nil
}
