package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

type syncStateStore interface {
	AcquireLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, token string) error
	SaveState(ctx context.Context, state models.LoadState) error
	LoadState(ctx context.Context) (models.LoadState, bool, error)
}

// LoadStateTracker owns the three ingestion stage slots. Only the sync engine writes to it.
// A slot in LOADING doubles as the run lock; a shared store extends the lock across instances.
type LoadStateTracker struct {
	mu        sync.Mutex
	persistMu sync.Mutex
	state     models.LoadState
	store     syncStateStore
	lockTTL   time.Duration
	logger    *zap.Logger
}

var (
	processLoadState     *LoadStateTracker
	processLoadStateOnce sync.Once
)

// InitProcessLoadState creates the process-wide tracker on first call. Later calls return the existing tracker unchanged.
func InitProcessLoadState(store syncStateStore, lockTTL time.Duration, logger *zap.Logger) *LoadStateTracker {
	processLoadStateOnce.Do(func() {
		processLoadState = NewLoadStateTracker(store, lockTTL, logger)
	})
	return processLoadState
}

// ProcessLoadState returns the process-wide tracker, creating a local-only one if none was initialised.
func ProcessLoadState() *LoadStateTracker {
	return InitProcessLoadState(nil, 0, nil)
}

// NewLoadStateTracker builds an independent tracker. Production code uses ProcessLoadState.
func NewLoadStateTracker(store syncStateStore, lockTTL time.Duration, logger *zap.Logger) *LoadStateTracker {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadStateTracker{
		state:   models.NewLoadState(),
		store:   store,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// TryBegin claims the tracker for a run and marks every slot LOADING.
// The returned release must be called when the run ends; it reverts any slot left LOADING to NOT_LOADED.
// The local claim is taken first; the shared store is only contacted after t.mu is released.
func (t *LoadStateTracker) TryBegin(ctx context.Context) (func(), error) {
	t.mu.Lock()
	if t.state.AnyLoading() {
		t.mu.Unlock()
		return nil, appErrors.ErrSyncInProgress
	}
	previous := t.state
	t.state = allStages(models.LoadStatusLoading)
	t.mu.Unlock()

	token := uuid.NewString()
	if t.store != nil {
		ok, err := t.store.AcquireLock(ctx, token, t.lockTTL)
		if err != nil || !ok {
			t.mu.Lock()
			t.state = previous
			t.mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("acquire sync lock: %w", err)
			}
			return nil, appErrors.ErrSyncInProgress
		}
	}
	t.persist(ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			reset := t.state.AnyLoading()
			if reset {
				t.state = allStages(models.LoadStatusNotLoaded)
			}
			t.mu.Unlock()
			if reset {
				t.logger.Warn("sync ended with stages still loading, resetting")
				t.persist(context.Background())
			}
			if t.store != nil {
				if err := t.store.ReleaseLock(context.Background(), token); err != nil {
					t.logger.Warn("failed to release sync lock", zap.Error(err))
				}
			}
		})
	}
	return release, nil
}

// Set moves one stage to status.
func (t *LoadStateTracker) Set(ctx context.Context, stage models.LoadStage, status models.LoadStatus) {
	t.mu.Lock()
	t.state = t.state.With(stage, status)
	t.mu.Unlock()
	t.persist(ctx)
}

// SetAll moves every stage to status.
func (t *LoadStateTracker) SetAll(ctx context.Context, status models.LoadStatus) {
	t.mu.Lock()
	t.state = allStages(status)
	t.mu.Unlock()
	t.persist(ctx)
}

// Reset reverts every stage to NOT_LOADED.
func (t *LoadStateTracker) Reset(ctx context.Context) {
	t.SetAll(ctx, models.LoadStatusNotLoaded)
}

// Busy reports whether a run holds this tracker.
func (t *LoadStateTracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.AnyLoading()
}

// Snapshot returns the current slots. While idle locally, a state mirrored by another instance takes precedence.
func (t *LoadStateTracker) Snapshot(ctx context.Context) models.LoadState {
	t.mu.Lock()
	local := t.state
	t.mu.Unlock()

	if local.AnyLoading() || t.store == nil {
		return local
	}
	shared, found, err := t.store.LoadState(ctx)
	if err != nil {
		t.logger.Warn("failed to read shared load state", zap.Error(err))
		return local
	}
	if !found {
		return local
	}
	return shared
}

func allStages(status models.LoadStatus) models.LoadState {
	return models.LoadState{TermStatus: status, SubjectsStatus: status, CoursesStatus: status}
}

// persist mirrors the latest state to the shared store. Writes are serialized by
// persistMu and always carry the newest state.
func (t *LoadStateTracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()
	if err := t.store.SaveState(ctx, state); err != nil {
		t.logger.Warn("failed to mirror load state", zap.Error(err))
	}
}
