// Package settlement moves a pending transaction to its terminal state:
// dispatching to the card processor or the cash rail, then reconciling
// provider callbacks against the record and its ledger hold.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const defaultProcessorTimeout = 10 * time.Second

// ErrProcessorUnavailable indicates the circuit breaker is open and no call
// was attempted.
var ErrProcessorUnavailable = errors.New("card processor unavailable")

// SessionRequest asks the processor for a hosted payment page.
type SessionRequest struct {
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone,omitempty"`
}

// PaymentSession is the processor's answer: where to send the customer and
// the reference callbacks will carry.
type PaymentSession struct {
	ExternalReference string `json:"externalReference"`
	PaymentURL        string `json:"paymentUrl"`
}

// CardProcessor creates hosted payment sessions.
type CardProcessor interface {
	CreateSession(ctx context.Context, req SessionRequest) (*PaymentSession, error)
}

// HTTPProcessor calls the card processor over HTTP behind a circuit
// breaker. A tripped breaker fails fast with ErrProcessorUnavailable
// instead of piling requests onto a struggling provider.
type HTTPProcessor struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  log.Logger
}

// NewHTTPProcessor wires a processor client for baseURL. A nil client gets
// a default with a request timeout.
func NewHTTPProcessor(baseURL string, client *http.Client, logger log.Logger) *HTTPProcessor {
	if client == nil {
		client = &http.Client{Timeout: defaultProcessorTimeout}
	}

	if logger == nil {
		logger = log.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "card-processor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log(context.Background(), log.LevelWarn, "circuit breaker state change",
				log.String("breaker", name),
				log.String("from", from.String()),
				log.String("to", to.String()),
			)
		},
	})

	return &HTTPProcessor{baseURL: baseURL, client: client, breaker: breaker, logger: logger}
}

func (p *HTTPProcessor) CreateSession(ctx context.Context, req SessionRequest) (*PaymentSession, error) {
	out, err := p.breaker.Execute(func() (any, error) {
		return p.createSession(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrProcessorUnavailable
		}

		return nil, err
	}

	return out.(*PaymentSession), nil
}

func (p *HTTPProcessor) createSession(ctx context.Context, req SessionRequest) (*PaymentSession, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call card processor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("card processor returned status %d", resp.StatusCode)
	}

	var session PaymentSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}

	if session.ExternalReference == "" || session.PaymentURL == "" {
		return nil, errors.New("card processor returned incomplete session")
	}

	return &session, nil
}
