package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodaniels/doseal-transaction-core/internal/events"
	"github.com/sodaniels/doseal-transaction-core/internal/ledger"
	"github.com/sodaniels/doseal-transaction-core/internal/pipeline"
	"github.com/sodaniels/doseal-transaction-core/internal/policy"
	"github.com/sodaniels/doseal-transaction-core/internal/rates"
	"github.com/sodaniels/doseal-transaction-core/internal/settlement"
	"github.com/sodaniels/doseal-transaction-core/internal/staging"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/crypto"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const (
	testHashKey    = "0000000000000000000000000000000000000000000000000000000000000001"
	testEncryptKey = "0000000000000000000000000000000000000000000000000000000000000002"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	ctx := context.Background()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &crypto.Crypto{
		HashSecretKey:    testHashKey,
		EncryptSecretKey: testEncryptKey,
		Logger:           log.NewNop(),
	}
	require.NoError(t, c.InitializeCipher())

	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, log.NewNop(), ledger.Config{RetryBase: time.Millisecond})
	require.NoError(t, store.CreateAccount(ctx, &ledger.Account{
		ID: "acc-1", OwnerID: "payer-1", Currency: "USD",
		Available: decimal.RequireFromString("500"), Held: decimal.Zero,
		UpdatedAt: time.Now().UTC(),
	}))

	records := transaction.NewMemoryRepository()
	mockProcessor := &cannedProcessor{}
	reconciler := settlement.NewReconciler(records, engine, events.Nop{}, log.NewNop())
	dispatcher := settlement.NewDispatcher(mockProcessor, records, reconciler, log.NewNop())

	resolver := &pipeline.StaticResolver{Payers: map[string]pipeline.ResolvedPayer{
		"biz-1/payer-1": {
			Payer:           transaction.PayerRef{ID: "payer-1", Name: "Kofi Boateng", Country: "US"},
			LedgerAccountID: "acc-1",
		},
	}}

	p := pipeline.New(
		staging.NewCache(client, c, log.NewNop(), 0),
		records, engine, policy.AllowAll{},
		&rates.Static{
			Fees:  map[string]decimal.Decimal{"USD": decimal.RequireFromString("2.50")},
			Rates: map[string]decimal.Decimal{"USD/GHS": decimal.RequireFromString("12.30")},
		},
		dispatcher, resolver, log.NewNop(),
	)

	app := fiber.New()
	NewHandler(p, reconciler, log.NewNop()).Register(app)

	return app
}

type cannedProcessor struct{}

func (cannedProcessor) CreateSession(_ context.Context, req settlement.SessionRequest) (*settlement.PaymentSession, error) {
	return &settlement.PaymentSession{
		ExternalReference: "EXT-" + req.Reference,
		PaymentURL:        "https://pay.example/" + req.Reference,
	}, nil
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Business-Id", "biz-1")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func initiateBody() map[string]any {
	return map[string]any{
		"businessId": "biz-1",
		"payerId":    "payer-1",
		"beneficiary": map[string]any{
			"id": "ben-1", "name": "Ama Mensah", "country": "GH",
			"payout": map[string]any{
				"kind":   "WALLET",
				"wallet": map[string]any{"network": "MTN", "walletNumber": "233200000001"},
			},
		},
		"sendAmount":      "100",
		"sendCurrency":    "USD",
		"receiveCurrency": "GHS",
		"paymentMode":     "CARD",
		"senderCountry":   "US",
	}
}

func TestInitiateEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/transactions/initiate", initiateBody())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result pipeline.InitiateResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.Checksum, 64)
	assert.True(t, result.Amounts.TotalDebit.Equal(decimal.RequireFromString("102.50")))
}

func TestInitiateEndpointValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	payload := initiateBody()
	payload["sendAmount"] = "0"

	resp, body := doJSON(t, app, http.MethodPost, "/v1/transactions/initiate", payload)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, string(transaction.ErrorValidation), errResp.Code)
}

func TestExecuteEndpointFullFlow(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/transactions/initiate", initiateBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.InitiateResult
	require.NoError(t, json.Unmarshal(body, &result))

	resp, body = doJSON(t, app, http.MethodPost, "/v1/transactions/execute", map[string]string{"checksum": result.Checksum})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var rec transaction.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, transaction.StatusAwaitingPayment, rec.Status)
	assert.NotEmpty(t, rec.PaymentURL)

	// Replay is refused: the draft was consumed.
	resp, _ = doJSON(t, app, http.MethodPost, "/v1/transactions/execute", map[string]string{"checksum": result.Checksum})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Provider callback settles it.
	resp, body = doJSON(t, app, http.MethodPost, "/v1/transactions/callback", map[string]string{
		"externalReference": rec.ExternalReference,
		"statusCode":        "200",
		"message":           "approved",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var settled transaction.Record
	require.NoError(t, json.Unmarshal(body, &settled))
	assert.Equal(t, transaction.StatusSettled, settled.Status)

	// Status by id and by external reference.
	resp, body = doJSON(t, app, http.MethodGet, "/v1/transactions/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/v1/transactions/"+rec.ExternalReference, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reverse the settled transfer.
	resp, body = doJSON(t, app, http.MethodPost, fmt.Sprintf("/v1/transactions/%s/reverse", rec.ID), map[string]string{"reason": "customer refund"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var reversed transaction.Record
	require.NoError(t, json.Unmarshal(body, &reversed))
	assert.Equal(t, transaction.StatusReversed, reversed.Status)
}

func TestExecuteEndpointUnknownChecksum(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/transactions/execute", map[string]string{"checksum": "DEADBEEF"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, string(transaction.ErrorNotFound), errResp.Code)
}

func TestExecuteEndpointMissingChecksum(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/transactions/execute", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackEndpointUnknownStatus(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/transactions/initiate", initiateBody())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result pipeline.InitiateResult
	require.NoError(t, json.Unmarshal(body, &result))

	_, body = doJSON(t, app, http.MethodPost, "/v1/transactions/execute", map[string]string{"checksum": result.Checksum})

	var rec transaction.Record
	require.NoError(t, json.Unmarshal(body, &rec))

	resp, _ = doJSON(t, app, http.MethodPost, "/v1/transactions/callback", map[string]string{
		"externalReference": rec.ExternalReference,
		"statusCode":        "999",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpointNotFound(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/v1/transactions/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
