package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const defaultTimeout = 5 * time.Second

// HTTPGate calls an external policy service. A non-2xx response or transport
// failure is an error, not a block; callers decide whether to fail open.
type HTTPGate struct {
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// NewHTTPGate wires a gate against the policy service at baseURL. A nil
// client gets a default with a request timeout.
func NewHTTPGate(baseURL string, client *http.Client, logger log.Logger) *HTTPGate {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	if logger == nil {
		logger = log.NewNop()
	}

	return &HTTPGate{baseURL: baseURL, client: client, logger: logger}
}

type checkRequest struct {
	PayerID string `json:"payerId"`
	Country string `json:"country"`
}

type checkResponse struct {
	Blocked []BlockingReason `json:"blocked"`
}

func (g *HTTPGate) Check(ctx context.Context, payer transaction.PayerRef) ([]BlockingReason, error) {
	body, err := json.Marshal(checkRequest{PayerID: payer.ID, Country: payer.Country})
	if err != nil {
		return nil, fmt.Errorf("marshal policy check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/policy/checks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build policy check request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call policy service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy service returned status %d", resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode policy check response: %w", err)
	}

	if len(out.Blocked) > 0 {
		g.logger.Log(ctx, log.LevelInfo, "payer blocked by policy",
			log.String("payer_id", payer.ID),
			log.Int("reasons", len(out.Blocked)),
		)
	}

	return out.Blocked, nil
}
