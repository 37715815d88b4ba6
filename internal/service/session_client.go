package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// sessionBackend is the slice of the redis client the session reader
// needs.
type sessionBackend interface {
	GetSession(ctx context.Context, id string) (*models.BuyNowSession, error)
	MarkSessionConsumed(ctx context.Context, id string) error
}

// SessionClient reads buy-now sessions. The storefront does not issue
// sessions; it only consumes them and marks them used.
type SessionClient struct {
	backend sessionBackend
	logger  *zap.Logger
}

// NewSessionClient creates a new session client
func NewSessionClient(backend sessionBackend) *SessionClient {
	return &SessionClient{
		backend: backend,
		logger:  util.GetLogger(),
	}
}

// GetActiveSession returns the session if it is still live and unused.
func (sc *SessionClient) GetActiveSession(ctx context.Context, id string) (*models.BuyNowSession, error) {
	session, err := sc.backend.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("session %s already %s: %w", id, session.Status, models.ErrSessionNotFound)
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session %s expired: %w", id, models.ErrSessionNotFound)
	}

	return session, nil
}

// MarkConsumed flags the session as used after a confirmation commits.
func (sc *SessionClient) MarkConsumed(ctx context.Context, id string) error {
	return sc.backend.MarkSessionConsumed(ctx, id)
}
