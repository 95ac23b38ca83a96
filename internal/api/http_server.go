package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shopsync/internal/advisor"
	"shopsync/internal/config"
	"shopsync/internal/domain"
	"shopsync/internal/export"
	"shopsync/internal/models"
	"shopsync/internal/syncengine"
)

// Orchestrator is the engine surface the API exposes.
type Orchestrator interface {
	SyncEntity(ctx context.Context, record *models.Record, actorUserID, operation, tenantID string) (*models.SyncResult, error)
	ListPending(ctx context.Context, tenantID string) ([]models.QueueItem, error)
	ListAbandoned(ctx context.Context, tenantID string) ([]models.QueueItem, error)
}

// HTTPServer exposes the engine and queue introspection to operators and
// the host UI.
type HTTPServer struct {
	cfg     config.APIConfig
	engine  Orchestrator
	records domain.RecordRepository
	queue   domain.QueueRepository
	worker  domain.SyncWorker
	advisor *advisor.Client
	exports string
	server  *http.Server
	auth    *HTTPAuth
	logger  zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, engine Orchestrator, records domain.RecordRepository,
	queue domain.QueueRepository, syncWorker domain.SyncWorker, advisorClient *advisor.Client,
	exportsDir string, prometheusEnabled bool, logger *zerolog.Logger) *HTTPServer {

	srv := &HTTPServer{
		cfg:     cfg,
		engine:  engine,
		records: records,
		queue:   queue,
		worker:  syncWorker,
		advisor: advisorClient,
		exports: exportsDir,
		auth:    NewHTTPAuth(cfg),
		logger:  logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/queue/pending", srv.handleQueuePending)
	mux.HandleFunc("/api/v1/queue/abandoned", srv.handleQueueAbandoned)
	mux.HandleFunc("/api/v1/queue/abandoned/export", srv.handleQueueExport)
	mux.HandleFunc("/api/v1/queue/drain", srv.handleDrain)
	mux.HandleFunc("/api/v1/records/", srv.handleRecords)
	mux.HandleFunc("/api/v1/stock/predict", srv.handlePredict)
	mux.HandleFunc("/healthz", srv.handleHealth)
	if prometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleSync accepts one mutation and runs it through the orchestrator.
func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Record      *models.Record `json:"record"`
		ActorUserID string         `json:"actor_user_id"`
		Operation   string         `json:"operation"`
		TenantID    string         `json:"tenant_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.SyncEntity(r.Context(), body.Record, body.ActorUserID, body.Operation, body.TenantID)
	if err != nil {
		switch syncengine.Classify(err) {
		case syncengine.KindValidation:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case syncengine.KindAuth:
			writeError(w, http.StatusForbidden, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleQueuePending(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.requireTenant(w, r)
	if !ok {
		return
	}
	items, err := s.engine.ListPending(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *HTTPServer) handleQueueAbandoned(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.requireTenant(w, r)
	if !ok {
		return
	}
	items, err := s.engine.ListAbandoned(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *HTTPServer) handleQueueExport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.requireTenant(w, r)
	if !ok {
		return
	}
	path, err := export.AbandonedReport(r.Context(), s.queue, tenantID, s.exports)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (s *HTTPServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "drain worker is not running")
		return
	}
	s.worker.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "drain scheduled"})
}

func (s *HTTPServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/records/"
	entityType := strings.TrimPrefix(r.URL.Path, prefix)
	entityType = strings.TrimSpace(strings.TrimSuffix(entityType, "/"))
	if entityType == "" || strings.Contains(entityType, "/") {
		writeError(w, http.StatusBadRequest, "entity type is required")
		return
	}
	if !models.ValidEntityType(entityType) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown entity type %q", entityType))
		return
	}

	tenantID, ok := s.requireTenant(w, r)
	if !ok {
		return
	}

	records, err := s.records.GetRecords(r.Context(), entityType, tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *HTTPServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "stock advisor is not configured")
		return
	}

	var features advisor.ProductFeatures
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prediction, err := s.advisor.PredictReorder(r.Context(), features)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant is required")
		return "", false
	}
	return tenantID, true
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
