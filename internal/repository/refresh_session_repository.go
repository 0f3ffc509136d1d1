package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

// ErrRefreshStoreUnavailable is returned when no Redis client is configured.
var ErrRefreshStoreUnavailable = errors.New("refresh session store unavailable")

// RefreshSessionRepository keeps refresh sessions in Redis. Keys hold the SHA-256 of the
// token, never the token itself.
type RefreshSessionRepository struct {
	client *redis.Client
}

func NewRefreshSessionRepository(client *redis.Client) *RefreshSessionRepository {
	return &RefreshSessionRepository{client: client}
}

// RefreshSessionKey is the Redis key for a raw token.
func RefreshSessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return CacheKey("refresh", hex.EncodeToString(sum[:]))
}

// Save stores session under token until the session expires.
func (r *RefreshSessionRepository) Save(ctx context.Context, token string, session *models.RefreshSession) error {
	if r.client == nil {
		return ErrRefreshStoreUnavailable
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh session %s already expired", session.ID)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal refresh session: %w", err)
	}
	if err := r.client.Set(ctx, RefreshSessionKey(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh session: %w", err)
	}
	return nil
}

// Take returns and deletes the session in one step, so a token can be exchanged once.
// A missing or expired token yields (nil, nil).
func (r *RefreshSessionRepository) Take(ctx context.Context, token string) (*models.RefreshSession, error) {
	if r.client == nil {
		return nil, ErrRefreshStoreUnavailable
	}
	raw, err := r.client.GetDel(ctx, RefreshSessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take refresh session: %w", err)
	}
	var session models.RefreshSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode refresh session: %w", err)
	}
	return &session, nil
}

// Revoke forgets token. Revoking an unknown token is not an error.
func (r *RefreshSessionRepository) Revoke(ctx context.Context, token string) error {
	if r.client == nil {
		return ErrRefreshStoreUnavailable
	}
	if err := r.client.Del(ctx, RefreshSessionKey(token)).Err(); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
