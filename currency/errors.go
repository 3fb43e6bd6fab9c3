package currency

import (
	"errors"
	"fmt"
)

// ErrorKind classifies currency errors
type ErrorKind string

const (
	WalletNotSet          ErrorKind = "WalletNotSet"
	OperationNotSupported ErrorKind = "OperationNotSupported"
	InsufficientAllowance ErrorKind = "InsufficientAllowance"
	AllowanceCheckFailed  ErrorKind = "AllowanceCheckFailed"
	TransferFromFailed    ErrorKind = "TransferFromFailed"
	WithdrawalFailed      ErrorKind = "WithdrawalFailed"
	LedgerError           ErrorKind = "LedgerError"
	CanisterCallFailed    ErrorKind = "CanisterCallFailed"
	QueryError            ErrorKind = "QueryError"
	SerializationError    ErrorKind = "SerializationError"
	NoDepositAddress      ErrorKind = "NoDepositAddress"
	TransactionNotFound   ErrorKind = "TransactionNotFound"
	TokenNotRegistered    ErrorKind = "TokenNotRegistered"
)

// Error is the error type of every currency operation
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrWalletNotSet) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrWalletNotSet          = &Error{Kind: WalletNotSet}
	ErrOperationNotSupported = &Error{Kind: OperationNotSupported}
	ErrInsufficientAllowance = &Error{Kind: InsufficientAllowance}
	ErrAllowanceCheckFailed  = &Error{Kind: AllowanceCheckFailed}
	ErrTransferFromFailed    = &Error{Kind: TransferFromFailed}
	ErrWithdrawalFailed      = &Error{Kind: WithdrawalFailed}
	ErrLedgerError           = &Error{Kind: LedgerError}
	ErrCanisterCallFailed    = &Error{Kind: CanisterCallFailed}
	ErrQueryError            = &Error{Kind: QueryError}
	ErrSerializationError    = &Error{Kind: SerializationError}
	ErrNoDepositAddress      = &Error{Kind: NoDepositAddress}
	ErrTransactionNotFound   = &Error{Kind: TransactionNotFound}
	ErrTokenNotRegistered    = &Error{Kind: TokenNotRegistered}
)

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a currency error anywhere in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
