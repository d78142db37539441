package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gtcollab-api/internal/dto"
	"github.com/noah-isme/gtcollab-api/internal/models"
	appErrors "github.com/noah-isme/gtcollab-api/pkg/errors"
)

type catalogProgressMock struct {
	progress *dto.SyncProgress
	term     *models.Term
	err      error
}

func (m *catalogProgressMock) Progress(ctx context.Context) (*dto.SyncProgress, error) {
	return m.progress, m.err
}

func (m *catalogProgressMock) CurrentTerm(ctx context.Context) (*models.Term, error) {
	return m.term, m.err
}

type syncTriggerMock struct {
	jobID string
	err   error
	calls int
}

func (m *syncTriggerMock) TriggerAsync(ctx context.Context) (string, error) {
	m.calls++
	return m.jobID, m.err
}

func TestCatalogHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	name := "Spring 2026"
	handler := NewCatalogHandler(&catalogProgressMock{progress: &dto.SyncProgress{
		State:        models.NewLoadState(),
		TermProgress: dto.TermProgress{CurrentTerm: &name},
	}}, &syncTriggerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/catalog/status", nil)

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			State        models.LoadState `json:"state"`
			TermProgress struct {
				CurrentTerm string `json:"current_term"`
			} `json:"term_progress"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Spring 2026", body.Data.TermProgress.CurrentTerm)
	assert.Equal(t, models.LoadStatusNotLoaded, body.Data.State.TermStatus)
}

func TestCatalogHandlerCurrentTermMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCatalogHandler(&catalogProgressMock{err: appErrors.ErrNoCurrentTerm}, &syncTriggerMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/terms/current", nil)

	handler.CurrentTerm(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogHandlerTriggerSync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	trigger := &syncTriggerMock{jobID: "job-1"}
	handler := NewCatalogHandler(&catalogProgressMock{}, trigger)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/admin/catalog/sync", nil)

	handler.TriggerSync(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)

	trigger.err = appErrors.ErrSyncInProgress
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/admin/catalog/sync", nil)

	handler.TriggerSync(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SYNC_IN_PROGRESS")
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMetricsHandler(nil,
		ReadinessCheck{Name: "postgres", Check: func(ctx context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return assert.AnError }},
	)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)

	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}
