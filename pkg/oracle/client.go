package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const serviceName = "resolution-oracle"

// ClientConfig holds the HTTP oracle client configuration
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP resolution oracle. It posts the group and expects a
// decision naming the canonical member.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     ectologger.Logger
}

// NewClient creates a new HTTP oracle client
func NewClient(cfg ClientConfig, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type decideRequest struct {
	Primary    models.DuplicateCandidate   `json:"primary"`
	Duplicates []models.DuplicateCandidate `json:"duplicates"`
}

// Decide posts one duplicate group to the oracle and validates its answer:
// keep must be one of the supplied entity ids and remove must be a subset of
// the remaining ids.
func (c *Client) Decide(ctx context.Context, primary models.DuplicateCandidate, duplicates []models.DuplicateCandidate) (*models.MergeDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "oracle.Client.Decide")
	defer span.End()

	body, err := json.Marshal(decideRequest{Primary: primary, Duplicates: duplicates})
	if err != nil {
		return nil, faults.NewExternalServiceError(serviceName, "encode decision request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, faults.NewExternalServiceError(serviceName, "build decision request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Oracle request failed")
		return nil, faults.NewExternalServiceError(serviceName, "decision request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
			"body":   string(raw),
		}).Error("Oracle returned non-success status")
		return nil, faults.NewExternalServiceError(serviceName, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var decision models.MergeDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, faults.NewExternalServiceError(serviceName, "decode decision response", err)
	}

	if err := validateDecision(&decision, primary, duplicates); err != nil {
		return nil, err
	}

	return &decision, nil
}

// validateDecision enforces the oracle contract before the decision is
// trusted by the planner.
func validateDecision(decision *models.MergeDecision, primary models.DuplicateCandidate, duplicates []models.DuplicateCandidate) error {
	ids := map[string]bool{primary.Entity.ID: true}
	for _, d := range duplicates {
		ids[d.Entity.ID] = true
	}

	if decision.Keep == "" || !ids[decision.Keep] {
		return faults.NewExternalServiceError(serviceName, fmt.Sprintf("decision keep id %q is not a group member", decision.Keep), nil)
	}
	if len(decision.Remove) == 0 {
		return faults.NewExternalServiceError(serviceName, "decision has no remove ids", nil)
	}
	for _, id := range decision.Remove {
		if id == decision.Keep {
			return faults.NewExternalServiceError(serviceName, "decision removes its own keep id", nil)
		}
		if !ids[id] {
			return faults.NewExternalServiceError(serviceName, fmt.Sprintf("decision remove id %q is not a group member", id), nil)
		}
	}

	return nil
}
