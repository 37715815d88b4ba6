package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionBackend struct {
	sessions map[string]*models.BuyNowSession
}

func (f *fakeSessionBackend) GetSession(_ context.Context, id string) (*models.BuyNowSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionBackend) MarkSessionConsumed(_ context.Context, id string) error {
	s, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}
	s.Status = models.SessionStatusConsumed
	return nil
}

func TestGetActiveSession(t *testing.T) {
	ctx := context.Background()
	backend := &fakeSessionBackend{sessions: map[string]*models.BuyNowSession{
		"live": {
			ID:        "live",
			Items:     []models.SessionItem{{ProductID: 1, Quantity: 1}},
			Status:    models.SessionStatusActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
		"used": {
			ID:     "used",
			Status: models.SessionStatusConsumed,
		},
		"stale": {
			ID:        "stale",
			Status:    models.SessionStatusActive,
			ExpiresAt: time.Now().Add(-time.Minute),
		},
	}}
	sc := NewSessionClient(backend)

	session, err := sc.GetActiveSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "live", session.ID)

	_, err = sc.GetActiveSession(ctx, "used")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = sc.GetActiveSession(ctx, "stale")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = sc.GetActiveSession(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestMarkConsumedEndsTheSession(t *testing.T) {
	ctx := context.Background()
	backend := &fakeSessionBackend{sessions: map[string]*models.BuyNowSession{
		"live": {
			ID:        "live",
			Status:    models.SessionStatusActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
	}}
	sc := NewSessionClient(backend)

	require.NoError(t, sc.MarkConsumed(ctx, "live"))

	_, err := sc.GetActiveSession(ctx, "live")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
