package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pos-core/internal/core/domain"
)

// errorKind classifies err for the transport layer: a stable code string,
// the HTTP status and the gRPC code.
func errorKind(err error) (string, int, codes.Code) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity", http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount", http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return "not_found", http.StatusNotFound, codes.NotFound
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state", http.StatusConflict, codes.FailedPrecondition
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock", http.StatusConflict, codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrentModification):
		return "concurrent_modification", http.StatusConflict, codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", http.StatusGatewayTimeout, codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return "cancelled", 499, codes.Canceled
	}
	return "internal", http.StatusInternalServerError, codes.Internal
}

// toStatus converts a core error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	_, _, code := errorKind(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
