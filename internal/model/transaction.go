package model

import (
	"fmt"
	"time"
)

const maxLogLimit = 1000

// Transaction represents a recorded deposit
type Transaction struct {
	ID         string    `json:"id"`
	Family     string    `json:"family"` // "ICP", "CKBTC", "CKERC20" or a token symbol
	BlockIndex string    `json:"blockIndex"`
	From       string    `json:"from"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogResponse represents response for GET /transactions
type LogResponse struct {
	Total        int           `json:"total"`
	Transactions []Transaction `json:"transactions"`
}

// LogRequest represents request parameters for GET /transactions
type LogRequest struct {
	Family *string    `form:"family"`
	From   *string    `form:"from"`
	Since  *time.Time `form:"since"`
	Until  *time.Time `form:"until"`
	Limit  *int       `form:"limit"`
}

// Validate validates LogRequest filter parameters.
func (r *LogRequest) Validate() error {
	if r.Family != nil && *r.Family == "" {
		return fmt.Errorf("family must not be empty")
	}
	if r.From != nil && *r.From == "" {
		return fmt.Errorf("from must not be empty")
	}
	if r.Since != nil && r.Until != nil && r.Until.Before(*r.Since) {
		return fmt.Errorf("until must be after or equal to since")
	}
	if r.Limit != nil && (*r.Limit <= 0 || *r.Limit > maxLogLimit) {
		return fmt.Errorf("limit must be between 1 and %d", maxLogLimit)
	}
	return nil
}
