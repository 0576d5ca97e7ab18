// Package escrow is the boundary to the on-chain escrow collaborator.
// The core only decides WHEN funds move (match completed or abandoned);
// moving them is this collaborator's job, and its failures never
// re-open a finished match.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Escrow releases a completed match's stakes to the winner or refunds
// both sides of an abandoned one.
type Escrow interface {
	Release(ctx context.Context, matchID, winnerAddress string) error
	RefundAll(ctx context.Context, matchID string) error
}

// HTTPEscrow talks to an external escrow service over HTTP.
type HTTPEscrow struct {
	endpoint string
	client   *http.Client
}

func NewHTTPEscrow(endpoint string) *HTTPEscrow {
	return &HTTPEscrow{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *HTTPEscrow) Release(ctx context.Context, matchID, winnerAddress string) error {
	return e.post(ctx, "/release", map[string]string{
		"match_id": matchID,
		"winner":   winnerAddress,
	})
}

func (e *HTTPEscrow) RefundAll(ctx context.Context, matchID string) error {
	return e.post(ctx, "/refund", map[string]string{
		"match_id": matchID,
	})
}

func (e *HTTPEscrow) post(ctx context.Context, path string, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("escrow %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// Noop is used when no escrow endpoint is configured (local runs,
// tests). Calls succeed without moving anything.
type Noop struct{}

func (Noop) Release(ctx context.Context, matchID, winnerAddress string) error { return nil }
func (Noop) RefundAll(ctx context.Context, matchID string) error              { return nil }
