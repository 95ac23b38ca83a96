package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"shopsync/internal/models"
	"shopsync/internal/syncengine"
)

// HTTPGateway replicates one entity type to a JSON REST backend. Retry
// safety relies on client-generated ids: a create that hits an id already
// present remotely (409) is success, as is a delete of an id already gone
// (404).
type HTTPGateway struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	entityType string
	logger     zerolog.Logger
}

func NewHTTPGateway(client *http.Client, baseURL, apiKey, entityType string, logger *zerolog.Logger) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		entityType: entityType,
		logger:     logger.With().Str("component", "gateway").Str("entity_type", entityType).Logger(),
	}
}

func (g *HTTPGateway) Create(ctx context.Context, payload *models.Record) (*models.Record, error) {
	return g.send(ctx, http.MethodPost, g.collectionURL(payload.TenantID), payload)
}

func (g *HTTPGateway) Update(ctx context.Context, payload *models.Record) (*models.Record, error) {
	return g.send(ctx, http.MethodPut, g.itemURL(payload.TenantID, payload.ID), payload)
}

func (g *HTTPGateway) Delete(ctx context.Context, tenantID, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.itemURL(tenantID, id), nil)
	if err != nil {
		return syncengine.WrapNetwork("build delete request", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return syncengine.WrapNetwork("delete request failed", err)
	}
	defer resp.Body.Close()

	// A delete of an already-deleted id is a successful retry.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return g.statusError(resp)
}

func (g *HTTPGateway) send(ctx context.Context, method, target string, payload *models.Record) (*models.Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, syncengine.WrapValidation("encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, syncengine.WrapNetwork("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, syncengine.WrapNetwork(method+" request failed", err)
	}
	defer resp.Body.Close()

	// The id already exists remotely: an earlier create landed before its
	// response was lost. Treat the retry as success.
	if method == http.MethodPost && resp.StatusCode == http.StatusConflict {
		g.logger.Debug().Str("entity_id", payload.ID).Msg("create conflict treated as replayed success")
		return payload, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decodeRecord(resp.Body, payload)
	}
	return nil, g.statusError(resp)
}

func (g *HTTPGateway) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncengine.Authf("%s", msg)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return syncengine.Validationf("%s", msg)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return syncengine.Networkf("%s", msg)
	default:
		return fmt.Errorf("%s", msg)
	}
}

func (g *HTTPGateway) setHeaders(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func (g *HTTPGateway) collectionURL(tenantID string) string {
	return fmt.Sprintf("%s/api/v1/tenants/%s/%ss", g.baseURL, url.PathEscape(tenantID), g.entityType)
}

func (g *HTTPGateway) itemURL(tenantID, id string) string {
	return fmt.Sprintf("%s/%s", g.collectionURL(tenantID), url.PathEscape(id))
}

func decodeRecord(body io.Reader, fallback *models.Record) (*models.Record, error) {
	data, err := io.ReadAll(body)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return fallback, nil
	}
	var remote models.Record
	if err := json.Unmarshal(data, &remote); err != nil {
		// Backends that answer with a non-record envelope still succeeded.
		return fallback, nil
	}
	if remote.ID == "" {
		return fallback, nil
	}
	return &remote, nil
}

// RegisterAll builds one HTTPGateway per standard entity type and installs
// descriptors with the default validators.
func RegisterAll(registry *syncengine.Registry, client *http.Client, baseURL, apiKey string, logger *zerolog.Logger) {
	validators := syncengine.DefaultValidators()
	for _, entityType := range models.EntityTypes {
		registry.Register(&syncengine.EntityDescriptor{
			Type:     entityType,
			Validate: validators[entityType],
			Gateway:  NewHTTPGateway(client, baseURL, apiKey, entityType, logger),
		})
	}
}
