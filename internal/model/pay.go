package model

import "fmt"

// PayRequest represents request for POST /currencies/{currency}/withdraw and withdraw-rake
type PayRequest struct {
	ToAddress string `json:"toAddress" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

// BaseUnits validates the request and converts Amount for an asset with decimals
func (r *PayRequest) BaseUnits(decimals uint8) (uint64, error) {
	if r.ToAddress == "" {
		return 0, fmt.Errorf("toAddress is required")
	}
	return PositiveAmount(r.Amount, decimals)
}

// WithdrawalResponse represents response for POST /currencies/{currency}/withdrawals
type WithdrawalResponse struct {
	WithdrawalID  uint64 `json:"withdrawalId"`
	ETHBlockIndex uint64 `json:"ethBlockIndex"`
}
