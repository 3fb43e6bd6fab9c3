package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

func TestStatusOf(t *testing.T) {
	unavailable := &ledger.TransferError{Kind: ledger.TemporarilyUnavailable}
	minterBusy := &ledger.UpdateBalanceError{Kind: ledger.UpdateTemporarilyUnavailable, Message: "busy"}

	tests := []struct {
		name string
		err  *currency.Error
		want int
	}{
		{"wallet not set", &currency.Error{Kind: currency.WalletNotSet}, http.StatusBadRequest},
		{"not supported", &currency.Error{Kind: currency.OperationNotSupported}, http.StatusBadRequest},
		{"insufficient allowance", &currency.Error{Kind: currency.InsufficientAllowance}, http.StatusPaymentRequired},
		{"no deposit address", &currency.Error{Kind: currency.NoDepositAddress}, http.StatusNotFound},
		{"transaction not found", &currency.Error{Kind: currency.TransactionNotFound}, http.StatusNotFound},
		{"token not registered", &currency.Error{Kind: currency.TokenNotRegistered}, http.StatusNotFound},
		{"serialization", &currency.Error{Kind: currency.SerializationError}, http.StatusInternalServerError},
		{"ledger busy", &currency.Error{Kind: currency.TransferFromFailed, Err: unavailable}, http.StatusServiceUnavailable},
		{"minter busy", &currency.Error{Kind: currency.LedgerError, Err: minterBusy}, http.StatusServiceUnavailable},
		{"ledger rejection", &currency.Error{Kind: currency.TransferFromFailed, Err: &ledger.TransferError{Kind: ledger.TooOld}}, http.StatusBadGateway},
		{"transport", &currency.Error{Kind: currency.CanisterCallFailed, Err: errors.New("connection refused")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", tt.err)
			kind, ok := currency.KindOf(err)
			if !ok {
				t.Fatalf("kind not found")
			}
			if got := statusOf(kind, err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("2026-03-01", false)
	if err != nil {
		t.Fatal(err)
	}
	end, err := parseDate("2026-03-01", true)
	if err != nil {
		t.Fatal(err)
	}
	if end.Sub(start) != 24*60*60*1e9-1 {
		t.Errorf("end of day should be inclusive, got %v", end.Sub(start))
	}
	if _, err := parseDate("2026-03-01T10:00:00Z", true); err != nil {
		t.Errorf("expected RFC 3339 to parse, got %v", err)
	}
	if _, err := parseDate("01/03/2026", false); err == nil {
		t.Errorf("expected invalid date to fail")
	}
}
