package ledger

import (
	"errors"
	"fmt"
	"math/big"
)

// TransferErrorKind names a ledger rejection of a transfer
type TransferErrorKind string

const (
	BadFee                 TransferErrorKind = "BadFee"
	BadBurn                TransferErrorKind = "BadBurn"
	InsufficientFunds      TransferErrorKind = "InsufficientFunds"
	InsufficientAllowance  TransferErrorKind = "InsufficientAllowance"
	TooOld                 TransferErrorKind = "TooOld"
	CreatedInFuture        TransferErrorKind = "CreatedInFuture"
	Duplicate              TransferErrorKind = "Duplicate"
	TemporarilyUnavailable TransferErrorKind = "TemporarilyUnavailable"
	GenericError           TransferErrorKind = "GenericError"
)

// TransferError is a typed rejection returned by icrc1_transfer and icrc2_transfer_from
type TransferError struct {
	Kind          TransferErrorKind `json:"kind"`
	ExpectedFee   *big.Int          `json:"expected_fee,omitempty"`
	MinBurnAmount *big.Int          `json:"min_burn_amount,omitempty"`
	Balance       *big.Int          `json:"balance,omitempty"`
	Allowance     *big.Int          `json:"allowance,omitempty"`
	LedgerTime    uint64            `json:"ledger_time,omitempty"`
	DuplicateOf   *big.Int          `json:"duplicate_of,omitempty"`
	ErrorCode     *big.Int          `json:"error_code,omitempty"`
	Message       string            `json:"message,omitempty"`
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case BadFee:
		return fmt.Sprintf("bad fee, expected %s", natString(e.ExpectedFee))
	case BadBurn:
		return fmt.Sprintf("bad burn, minimum burn amount %s", natString(e.MinBurnAmount))
	case InsufficientFunds:
		return fmt.Sprintf("insufficient funds, balance %s", natString(e.Balance))
	case InsufficientAllowance:
		return fmt.Sprintf("insufficient allowance, allowance %s", natString(e.Allowance))
	case TooOld:
		return "transaction too old"
	case CreatedInFuture:
		return fmt.Sprintf("transaction created in future, ledger time %d", e.LedgerTime)
	case Duplicate:
		return fmt.Sprintf("duplicate transaction of block %s", natString(e.DuplicateOf))
	case TemporarilyUnavailable:
		return "ledger temporarily unavailable"
	case GenericError:
		return fmt.Sprintf("generic error %s: %s", natString(e.ErrorCode), e.Message)
	}
	return fmt.Sprintf("ledger error %s", e.Kind)
}

// AsTransferError extracts a ledger rejection from err
func AsTransferError(err error) (*TransferError, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func natString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
