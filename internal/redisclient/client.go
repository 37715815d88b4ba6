package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockHintKey(productID int64) string {
	return fmt.Sprintf("stockhint:%d", productID)
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// SetStockHint caches the last committed stock value. The hint backs
// availability checks only; authoritative mutation re-reads the row
// under lock.
func (c *Client) SetStockHint(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockHintKey(productID), stock, 0).Err()
}

// GetStockHint reads the cached stock value. A miss is reported as
// found=false, not an error.
func (c *Client) GetStockHint(ctx context.Context, productID int64) (stock int, found bool, err error) {
	val, err := c.rdb.Get(ctx, stockHintKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// PutSession stores a buy-now session under its TTL.
func (c *Client) PutSession(ctx context.Context, session *models.BuyNowSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", session.ID)
	}

	return c.rdb.Set(ctx, sessionKey(session.ID), payload, ttl).Err()
}

// GetSession retrieves a session; expired keys surface as not found.
func (c *Client) GetSession(ctx context.Context, id string) (*models.BuyNowSession, error) {
	val, err := c.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}

	var session models.BuyNowSession
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// MarkSessionConsumed flips the session status in place, keeping the
// remaining TTL so a replayed confirmation can still see it was used.
func (c *Client) MarkSessionConsumed(ctx context.Context, id string) error {
	session, err := c.GetSession(ctx, id)
	if err != nil {
		return err
	}

	session.Status = models.SessionStatusConsumed

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return c.rdb.Set(ctx, sessionKey(id), payload, redis.KeepTTL).Err()
}
