package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/model"
)

type loggerKey struct{}

// WithLogger stores the request-scoped logger in ctx
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger, or the default one
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
}

// writeError maps currency error kinds to HTTP statuses
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind, ok := currency.KindOf(err)
	if ok {
		status = statusOf(kind, err)
	}
	if status >= http.StatusInternalServerError {
		Logger(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: string(kind)})
}

func statusOf(kind currency.ErrorKind, err error) int {
	switch kind {
	case currency.WalletNotSet, currency.OperationNotSupported:
		return http.StatusBadRequest
	case currency.InsufficientAllowance:
		return http.StatusPaymentRequired
	case currency.NoDepositAddress, currency.TransactionNotFound, currency.TokenNotRegistered:
		return http.StatusNotFound
	case currency.SerializationError:
		return http.StatusInternalServerError
	}
	if temporarilyUnavailable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// temporarilyUnavailable reports whether a remote rejection asked to retry later
func temporarilyUnavailable(err error) bool {
	if te, ok := ledger.AsTransferError(err); ok {
		return te.Kind == ledger.TemporarilyUnavailable
	}
	var ue *ledger.UpdateBalanceError
	if errors.As(err, &ue) {
		return ue.Kind == ledger.UpdateTemporarilyUnavailable
	}
	var we *ledger.WithdrawERC20Error
	if errors.As(err, &we) {
		return we.Kind == ledger.WithdrawTemporarilyUnavailable
	}
	return false
}
