package model

import (
	"fmt"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/common"
)

// AmountRequest represents request for POST /currencies/{currency}/deposit and allowance/validate
type AmountRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  string `json:"amount" binding:"required"` // display units, e.g. "1.5"
}

// BaseUnits validates the request and converts Amount for an asset with decimals
func (r *AmountRequest) BaseUnits(decimals uint8) (uint64, error) {
	if r.Account == "" {
		return 0, fmt.Errorf("account is required")
	}
	return PositiveAmount(r.Amount, decimals)
}

// PositiveAmount converts a display amount that must be above zero
func PositiveAmount(amount string, decimals uint8) (uint64, error) {
	cmp, err := common.CompareAmounts(amount, "0", decimals)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	if cmp <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return common.ToBaseUnits(amount, decimals)
}

// DepositResponse represents response for POST /currencies/{currency}/deposit
type DepositResponse struct {
	ID string `json:"id"`
}

// BalanceResponse represents response for GET /currencies/{currency}/balance/{owner}
type BalanceResponse struct {
	Currency  string `json:"currency"`
	Owner     string `json:"owner"`
	Balance   string `json:"balance"`   // display units
	BaseUnits string `json:"baseUnits"` // exact integer
}

// AddCurrencyRequest represents request for POST /currencies.
// Well-known assets are named by Currency; third-party tokens by LedgerID.
type AddCurrencyRequest struct {
	Currency string `json:"currency,omitempty"`
	LedgerID string `json:"ledgerId,omitempty"`
}

// Validate checks exactly one of Currency and LedgerID is set
func (r *AddCurrencyRequest) Validate() error {
	if (r.Currency == "") == (r.LedgerID == "") {
		return fmt.Errorf("exactly one of currency and ledgerId is required")
	}
	return nil
}

// CurrenciesResponse represents response for GET /currencies
type CurrenciesResponse struct {
	Currencies []currency.Currency `json:"currencies"`
}

// RegisterTokenRequest represents request for POST /tokens
type RegisterTokenRequest struct {
	LedgerID    string `json:"ledgerId" binding:"required"`
	AddCurrency bool   `json:"addCurrency"`
}

// RegisterTokenResponse represents response for POST /tokens
type RegisterTokenResponse struct {
	Currency currency.Currency `json:"currency"`
	Metadata currency.Metadata `json:"metadata"`
}

// TokensResponse represents response for GET /tokens
type TokensResponse struct {
	Tokens []currency.RegisteredToken `json:"tokens"`
}

// MintResponse represents response for GET /currencies/{currency}/mints/{txHash}
type MintResponse struct {
	TxHash     string `json:"txHash"`
	BlockIndex uint64 `json:"blockIndex"`
}

// StatusResponse is the body of operations without a result
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
