// Package classify calls the transaction classification service that
// predicts a cost-item category from a payment purpose text. Failures
// here are always non-fatal to an import run: callers log and proceed
// without a cost item.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// Classifier predicts the cost item for a transaction purpose.
// A (nil, nil) result means the service had no confident prediction.
type Classifier interface {
	Classify(ctx context.Context, purpose string, isOutcome bool) (*domain.CostItem, error)
}

// HTTPClassifier talks to the classification service over JSON/HTTP.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type classifyRequest struct {
	Purpose   string `json:"purpose"`
	IsOutcome bool   `json:"isOutcome"`
}

type classifyResponse struct {
	CostItem *struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsOutcome bool   `json:"isOutcome"`
	} `json:"costItem"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, purpose string, isOutcome bool) (*domain.CostItem, error) {
	body, err := json.Marshal(classifyRequest{Purpose: purpose, IsOutcome: isOutcome})
	if err != nil {
		return nil, fmt.Errorf("Classify: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Classify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Classify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Classify: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Classify: read response: %w", err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("Classify: unmarshal response: %w", err)
	}
	if parsed.CostItem == nil {
		return nil, nil
	}

	return &domain.CostItem{
		ID:        parsed.CostItem.ID,
		Name:      parsed.CostItem.Name,
		IsOutcome: parsed.CostItem.IsOutcome,
	}, nil
}

// Noop is used when no classifier endpoint is configured; every row is
// imported without a cost item.
type Noop struct{}

// Classify implements Classifier.
func (Noop) Classify(ctx context.Context, purpose string, isOutcome bool) (*domain.CostItem, error) {
	return nil, nil
}
