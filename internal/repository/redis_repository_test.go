package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

func TestSyncStateRepositoryWithoutRedis(t *testing.T) {
	repo := NewSyncStateRepository(nil)
	ctx := context.Background()

	ok, err := repo.AcquireLock(ctx, "token", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, repo.ReleaseLock(ctx, "token"))
	assert.NoError(t, repo.SaveState(ctx, models.NewLoadState()))

	_, found, err := repo.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheRepositoryWithoutRedis(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]int
	err := repo.Get(ctx, "k", &dest)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "k*"))
}
