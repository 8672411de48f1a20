package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// HTTPProvider quotes fees and rates from an external pricing service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider wires a provider against the pricing service at baseURL.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &HTTPProvider{baseURL: baseURL, client: client}
}

type feeResponse struct {
	Fee decimal.Decimal `json:"fee"`
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (p *HTTPProvider) Fee(ctx context.Context, currency string, amount decimal.Decimal, transferType string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("currency", currency)
	q.Set("amount", amount.String())
	q.Set("transferType", transferType)

	var out feeResponse
	if err := p.get(ctx, "/v1/fees?"+q.Encode(), &out); err != nil {
		return decimal.Zero, err
	}

	return out.Fee, nil
}

func (p *HTTPProvider) Rate(ctx context.Context, from, to, accountType string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	q.Set("accountType", accountType)

	var out rateResponse
	if err := p.get(ctx, "/v1/rates?"+q.Encode(), &out); err != nil {
		return decimal.Zero, err
	}

	return out.Rate, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build pricing request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("call pricing service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNoQuote
	default:
		return fmt.Errorf("pricing service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pricing response: %w", err)
	}

	return nil
}
