// Package api exposes the transaction pipeline over HTTP: initiation,
// execution, provider callbacks, reversals and status lookups.
package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sodaniels/doseal-transaction-core/internal/pipeline"
	"github.com/sodaniels/doseal-transaction-core/internal/settlement"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

const (
	headerBusinessID    = "X-Business-Id"
	headerAgentID       = "X-Agent-Id"
	headerCorrelationID = "X-Correlation-Id"
)

// Handler binds the pipeline to fiber routes.
type Handler struct {
	pipeline   *pipeline.Pipeline
	reconciler *settlement.Reconciler
	logger     log.Logger
}

// NewHandler wires a handler.
func NewHandler(p *pipeline.Pipeline, reconciler *settlement.Reconciler, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Handler{pipeline: p, reconciler: reconciler, logger: logger}
}

// Register mounts the routes on the app.
func (h *Handler) Register(app *fiber.App) {
	v1 := app.Group("/v1")
	v1.Post("/transactions/initiate", h.Initiate)
	v1.Post("/transactions/execute", h.Execute)
	v1.Post("/transactions/callback", h.Callback)
	v1.Post("/transactions/:id/reverse", h.Reverse)
	v1.Get("/transactions/:id", h.Status)

	app.Get("/health", h.Health)
}

// Initiate prices and stages a transfer, answering with the checksum the
// client must present to execute.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req transaction.InitiateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Code:    string(transaction.ErrorValidation),
			Title:   http.StatusText(http.StatusBadRequest),
			Message: "malformed request body",
		})
	}

	result, err := h.pipeline.Initiate(c.UserContext(), h.requestScope(c), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(result)
}

type executeRequest struct {
	Checksum string `json:"checksum"`
}

// Execute consumes a staged transfer and dispatches settlement.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil || req.Checksum == "" {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Code:    string(transaction.ErrorValidation),
			Title:   http.StatusText(http.StatusBadRequest),
			Message: "checksum is required",
		})
	}

	rec, err := h.pipeline.Execute(c.UserContext(), h.requestScope(c), req.Checksum)
	if err != nil {
		// A failed dispatch still created and resolved a record; answer
		// with the error but let the client see the failure state via the
		// status endpoint.
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(rec)
}

type callbackRequest struct {
	ExternalReference string `json:"externalReference"`
	StatusCode        string `json:"statusCode"`
	Message           string `json:"message"`
}

// Callback reconciles a provider notification.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req callbackRequest
	if err := c.BodyParser(&req); err != nil || req.ExternalReference == "" || req.StatusCode == "" {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Code:    string(transaction.ErrorValidation),
			Title:   http.StatusText(http.StatusBadRequest),
			Message: "externalReference and statusCode are required",
		})
	}

	rec, err := h.reconciler.ApplyByExternalReference(c.UserContext(), req.ExternalReference, req.StatusCode, req.Message)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(rec)
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

// Reverse refunds a settled transaction.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	var req reverseRequest
	_ = c.BodyParser(&req)

	if req.Reason == "" {
		req.Reason = "reversal requested"
	}

	rec, err := h.reconciler.Reverse(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(rec)
}

// Status returns a transaction by id or external reference.
func (h *Handler) Status(c *fiber.Ctx) error {
	rec, err := h.pipeline.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(rec)
}

// Health answers liveness probes.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) requestScope(c *fiber.Ctx) pipeline.Context {
	correlationID := c.Get(headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return pipeline.Context{
		BusinessID:    c.Get(headerBusinessID),
		AgentID:       c.Get(headerAgentID),
		CorrelationID: correlationID,
	}
}
