package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/exam-proctor-api/internal/models"
)

func TestRefreshSessionKeyHashesToken(t *testing.T) {
	key := RefreshSessionKey("opaque-token")
	assert.True(t, strings.HasPrefix(key, "proctor:refresh:"))
	assert.NotContains(t, key, "opaque-token")
	assert.Len(t, strings.TrimPrefix(key, "proctor:refresh:"), 64)
	assert.Equal(t, key, RefreshSessionKey("opaque-token"))
}

func TestRefreshSessionRepositoryWithoutClient(t *testing.T) {
	repo := NewRefreshSessionRepository(nil)
	ctx := context.Background()

	err := repo.Save(ctx, "t", &models.RefreshSession{ID: "s", ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrRefreshStoreUnavailable)
	_, err = repo.Take(ctx, "t")
	assert.ErrorIs(t, err, ErrRefreshStoreUnavailable)
	assert.ErrorIs(t, repo.Revoke(ctx, "t"), ErrRefreshStoreUnavailable)
}
