package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client calls the stock-prediction ML service that scores products for
// reorder. The engine does not depend on it; it is surfaced through the
// operator API for inventory analytics.
type Client struct {
	http    *http.Client
	baseURL string
	logger  zerolog.Logger
}

// ProductFeatures is the input the model scores.
type ProductFeatures struct {
	ProductID         string   `json:"product_id,omitempty"`
	CostPrice         float64  `json:"cost_price"`
	SellingPrice      float64  `json:"selling_price"`
	ProfitMargin      *float64 `json:"profit_margin,omitempty"`
	ReorderFrequency  int      `json:"reorder_frequency"`
	CurrentStock      int      `json:"current_stock"`
	MinimumStockLevel int      `json:"minimum_stock_level"`
	Category          string   `json:"category"`
	Brand             string   `json:"brand,omitempty"`
	Supplier          string   `json:"supplier,omitempty"`
}

// Prediction is the model's verdict.
type Prediction struct {
	ReorderRequired      bool    `json:"reorder_required"`
	Confidence           float64 `json:"confidence"`
	ProbabilityReorder   float64 `json:"probability_reorder"`
	ProbabilityNoReorder float64 `json:"probability_no_reorder"`
	ModelVersion         string  `json:"model_version"`
}

func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("component", "advisor").Logger(),
	}
}

// PredictReorder scores one product.
func (c *Client) PredictReorder(ctx context.Context, features ProductFeatures) (*Prediction, error) {
	if features.CostPrice <= 0 || features.SellingPrice <= 0 {
		return nil, fmt.Errorf("cost_price and selling_price must be positive")
	}
	if features.Category == "" {
		return nil, fmt.Errorf("category is required")
	}

	body, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction service returned %d", resp.StatusCode)
	}

	var prediction Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &prediction, nil
}

// Health checks the prediction service, including whether its model loaded.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("prediction service returned %d", resp.StatusCode)
	}

	var status struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode health: %w", err)
	}
	if !status.ModelLoaded {
		return fmt.Errorf("prediction service is degraded: model not loaded")
	}
	return nil
}
