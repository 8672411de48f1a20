package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/sodaniels/doseal-transaction-core/internal/settlement"
	"github.com/sodaniels/doseal-transaction-core/internal/transaction"
)

// ErrorResponse is the envelope for every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

var domainStatus = map[transaction.ErrorCode]int{
	transaction.ErrorValidation:             http.StatusBadRequest,
	transaction.ErrorInvalidStateTransition: http.StatusConflict,
	transaction.ErrorInsufficientFunds:      http.StatusUnprocessableEntity,
	transaction.ErrorPolicyBlocked:          http.StatusForbidden,
	transaction.ErrorNotFound:               http.StatusNotFound,
	transaction.ErrorDuplicateChecksum:      http.StatusConflict,
	transaction.ErrorConcurrencyConflict:    http.StatusConflict,
	transaction.ErrorDispatchFailure:        http.StatusBadGateway,
	transaction.ErrorUnknownCallbackStatus:  http.StatusBadRequest,
}

// writeError maps a pipeline error to its HTTP shape. Unknown errors come
// back as a generic 500 so internals never leak.
func writeError(c *fiber.Ctx, err error) error {
	var domainErr transaction.DomainError
	if errors.As(err, &domainErr) {
		status, ok := domainStatus[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}

		return c.Status(status).JSON(ErrorResponse{
			Code:    string(domainErr.Code),
			Title:   http.StatusText(status),
			Message: domainErr.Message,
		})
	}

	switch {
	case errors.Is(err, transaction.ErrRecordNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Code:    string(transaction.ErrorNotFound),
			Title:   http.StatusText(http.StatusNotFound),
			Message: "transaction not found",
		})
	case errors.Is(err, settlement.ErrUnknownCallbackStatus):
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Code:    string(transaction.ErrorUnknownCallbackStatus),
			Title:   http.StatusText(http.StatusBadRequest),
			Message: "unknown callback status code",
		})
	}

	return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
		Code:    "0500",
		Title:   http.StatusText(http.StatusInternalServerError),
		Message: "internal server error",
	})
}
