package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopsync/internal/config"
	"shopsync/internal/database"
	"shopsync/internal/models"
	"shopsync/internal/syncengine"
)

type fakeOrchestrator struct {
	result    *models.SyncResult
	err       error
	pending   []models.QueueItem
	abandoned []models.QueueItem
}

func (f *fakeOrchestrator) SyncEntity(ctx context.Context, record *models.Record, actorUserID, operation, tenantID string) (*models.SyncResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeOrchestrator) ListPending(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	return f.pending, nil
}

func (f *fakeOrchestrator) ListAbandoned(ctx context.Context, tenantID string) ([]models.QueueItem, error) {
	return f.abandoned, nil
}

type fakeWorker struct {
	kicks int
}

func (f *fakeWorker) Kick()               { f.kicks++ }
func (f *fakeWorker) SetTenants([]string) {}

func newTestServer(t *testing.T, cfg config.APIConfig, engine *fakeOrchestrator) (*HTTPServer, *fakeWorker, *database.DB) {
	t.Helper()
	db, err := database.NewDB(t.TempDir() + "/api.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	worker := &fakeWorker{}
	logger := zerolog.Nop()
	srv := NewHTTPServer(cfg, engine, db, db, worker, nil, t.TempDir(), false, &logger)
	return srv, worker, db
}

func serve(srv *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rr, req)
	return rr
}

func syncBody(t *testing.T) *strings.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"record": &models.Record{
			ID:         "p-1",
			EntityType: models.EntityProduct,
			Fields:     json.RawMessage(`{"name":"Widget","selling_price":9.99}`),
		},
		"actor_user_id": "user-1",
		"operation":     models.OpCreate,
		"tenant_id":     "tenant-a",
	})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func TestHandleSyncSuccess(t *testing.T) {
	engine := &fakeOrchestrator{result: &models.SyncResult{Success: true, Synced: true}}
	srv, _, _ := newTestServer(t, config.APIConfig{}, engine)

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t)))
	require.Equal(t, http.StatusOK, rr.Code)

	var result models.SyncResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.Synced)
}

func TestHandleSyncErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{syncengine.Validationf("missing field"), http.StatusUnprocessableEntity},
		{syncengine.Authf("denied"), http.StatusForbidden},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		engine := &fakeOrchestrator{err: tt.err}
		srv, _, _ := newTestServer(t, config.APIConfig{}, engine)

		rr := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t)))
		assert.Equal(t, tt.status, rr.Code, tt.err.Error())
	}
}

func TestHandleSyncRejectsBadRequests(t *testing.T) {
	engine := &fakeOrchestrator{result: &models.SyncResult{Success: true}}
	srv, _, _ := newTestServer(t, config.APIConfig{}, engine)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/sync", strings.NewReader(`{"unexpected":1}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleQueuePending(t *testing.T) {
	engine := &fakeOrchestrator{pending: []models.QueueItem{{QueueID: "q-1"}, {QueueID: "q-2"}}}
	srv, _, _ := newTestServer(t, config.APIConfig{}, engine)

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/queue/pending?tenant=tenant-a", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/queue/pending", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleDrainKicksWorker(t *testing.T) {
	srv, worker, _ := newTestServer(t, config.APIConfig{}, &fakeOrchestrator{})

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/queue/drain", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, worker.kicks)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/queue/drain", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleRecords(t *testing.T) {
	srv, _, db := newTestServer(t, config.APIConfig{}, &fakeOrchestrator{})

	record := &models.Record{
		ID:         "p-1",
		EntityType: models.EntityProduct,
		TenantID:   "tenant-a",
		Fields:     json.RawMessage(`{"name":"Widget","selling_price":9.99}`),
	}
	require.NoError(t, db.PutRecord(context.Background(), record))

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/records/product?tenant=tenant-a", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/records/warehouse?tenant=tenant-a", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/records/product", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePredictWithoutAdvisor(t *testing.T) {
	srv, _, _ := newTestServer(t, config.APIConfig{}, &fakeOrchestrator{})

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/stock/predict", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func authedConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "k1", Extra: "e1", Name: "pos", Permissions: []string{"write:sync"}},
			},
		},
	}
}

func TestAuthRejectsMissingHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t, authedConfig(), &fakeOrchestrator{result: &models.SyncResult{Success: true}})

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthRejectsWrongCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t, authedConfig(), &fakeOrchestrator{result: &models.SyncResult{Success: true}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t))
	req.Header.Set("x-api-key", "wrong")
	req.Header.Set("x-api-extra", "e1")
	assert.Equal(t, http.StatusUnauthorized, serve(srv, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t))
	req.Header.Set("x-api-key", "k1")
	req.Header.Set("x-api-extra", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(srv, req).Code)
}

func TestAuthAllowsValidKeyWithPermission(t *testing.T) {
	srv, _, _ := newTestServer(t, authedConfig(), &fakeOrchestrator{result: &models.SyncResult{Success: true}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t))
	req.Header.Set("x-api-key", "k1")
	req.Header.Set("x-api-extra", "e1")
	assert.Equal(t, http.StatusOK, serve(srv, req).Code)
}

func TestAuthDeniesMissingPermission(t *testing.T) {
	srv, _, _ := newTestServer(t, authedConfig(), &fakeOrchestrator{})

	// The key carries write:sync only; queue reads need read:queue.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/pending?tenant=tenant-a", nil)
	req.Header.Set("x-api-key", "k1")
	req.Header.Set("x-api-extra", "e1")
	assert.Equal(t, http.StatusForbidden, serve(srv, req).Code)
}

func TestAuthSkipsHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, authedConfig(), &fakeOrchestrator{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitPerKey(t *testing.T) {
	cfg := authedConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	srv, _, _ := newTestServer(t, cfg, &fakeOrchestrator{result: &models.SyncResult{Success: true}})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", syncBody(t))
		req.Header.Set("x-api-key", "k1")
		req.Header.Set("x-api-extra", "e1")
		return serve(srv, req).Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}
