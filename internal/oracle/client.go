// Package oracle talks to the external test result server. The server is a
// black box: it answers with a result code for a hashed identifier and is
// never given anything but digests.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/config"
	"github.com/healthbridge/verification-service/internal/domain"
)

// TestResulter is consumed by the services; declared here so they can be
// tested against a stub.
type TestResulter interface {
	Result(ctx context.Context, hashedGuid string) (*domain.TestResult, error)
}

// Client is the HTTP implementation of TestResulter.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client with the configured endpoint and timeout.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

type resultRequest struct {
	ID string `json:"id"`
}

// Result fetches the COVID test result for the hashed identifier.
func (c *Client) Result(ctx context.Context, hashedGuid string) (*domain.TestResult, error) {
	body, err := json.Marshal(resultRequest{ID: hashedGuid})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/result", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("result server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("result server returned unexpected status", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("result server status %d", resp.StatusCode)
	}

	var result domain.TestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result server response: %w", err)
	}
	return &result, nil
}
