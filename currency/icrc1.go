package currency

import (
	"context"

	"github.com/AlexZinkM/currency-custody/internal/ledger"

	"lukechampine.com/uint128"
)

// AllowanceStandard is the ICRC-1 extension that provides approve/transfer_from
const AllowanceStandard = "ICRC-2"

// Metadata describes a third-party token
type Metadata struct {
	Name               string                  `json:"name"`
	Symbol             string                  `json:"symbol"`
	Decimals           uint8                   `json:"decimals"`
	Fee                uint64                  `json:"fee"`
	SupportedStandards []ledger.StandardRecord `json:"supported_standards"`
}

// SupportsAllowance reports whether the token advertises ICRC-2
func (m Metadata) SupportsAllowance() bool {
	for _, s := range m.SupportedStandards {
		if s.Name == AllowanceStandard {
			return true
		}
	}
	return false
}

// FetchMetadata queries name, symbol, decimals, fee and supported standards of a token ledger
func FetchMetadata(ctx context.Context, dialer ledger.Dialer, ledgerID string) (Metadata, error) {
	l, err := dialer.Ledger(ledgerID)
	if err != nil {
		return Metadata{}, newError(CanisterCallFailed, err, "failed to reach ledger %s", ledgerID)
	}

	name, err := l.Name(ctx)
	if err != nil {
		return Metadata{}, newError(QueryError, err, "icrc1_name of %s", ledgerID)
	}
	symbol, err := l.Symbol(ctx)
	if err != nil {
		return Metadata{}, newError(QueryError, err, "icrc1_symbol of %s", ledgerID)
	}
	decimals, err := l.Decimals(ctx)
	if err != nil {
		return Metadata{}, newError(QueryError, err, "icrc1_decimals of %s", ledgerID)
	}
	fee, err := l.Fee(ctx)
	if err != nil {
		return Metadata{}, newError(QueryError, err, "icrc1_fee of %s", ledgerID)
	}
	standards, err := l.SupportedStandards(ctx)
	if err != nil {
		return Metadata{}, newError(QueryError, err, "icrc1_supported_standards of %s", ledgerID)
	}

	// Fees that do not fit fall back to the common default
	feeValue := uint64(defaultTokenFee)
	if fee != nil && fee.IsUint64() {
		feeValue = fee.Uint64()
	}

	return Metadata{
		Name:               name,
		Symbol:             symbol,
		Decimals:           decimals,
		Fee:                feeValue,
		SupportedStandards: standards,
	}, nil
}

// ICRC1Backend holds a third-party token. Deposits require the ledger to support ICRC-2.
type ICRC1Backend struct {
	ledgerID string
	metadata Metadata
	acct     account
}

// NewICRC1Backend fetches the token metadata once and creates the backend
func NewICRC1Backend(ctx context.Context, env *Env, ledgerID string) (*ICRC1Backend, error) {
	md, err := FetchMetadata(ctx, env.Dialer, ledgerID)
	if err != nil {
		return nil, err
	}
	return newICRC1Backend(env, ledgerID, md), nil
}

func newICRC1Backend(env *Env, ledgerID string, md Metadata) *ICRC1Backend {
	return &ICRC1Backend{
		ledgerID: ledgerID,
		metadata: md,
		acct:     account{ledgerID: ledgerID, fee: md.Fee, family: md.Symbol, env: env},
	}
}

// Currency returns the tag of the token
func (b *ICRC1Backend) Currency() Currency {
	return ICRC1(NewToken(b.ledgerID, b.metadata.Symbol, b.metadata.Decimals))
}

// LedgerID returns the token ledger principal
func (b *ICRC1Backend) LedgerID() string { return b.ledgerID }

// Metadata returns the cached token metadata
func (b *ICRC1Backend) Metadata() Metadata { return b.metadata }

// SupportsAllowance reports whether deposits are possible
func (b *ICRC1Backend) SupportsAllowance() bool { return b.metadata.SupportsAllowance() }

func (b *ICRC1Backend) requireAllowance() error {
	if !b.SupportsAllowance() {
		return newError(OperationNotSupported, nil, "%s does not support %s", b.metadata.Symbol, AllowanceStandard)
	}
	return nil
}

// Deposit implements Backend
func (b *ICRC1Backend) Deposit(ctx context.Context, rec Recorder, from string, amount uint64) error {
	if err := b.requireAllowance(); err != nil {
		return err
	}
	_, err := b.acct.deposit(ctx, rec, from, amount)
	return err
}

// ValidateAllowance implements Backend
func (b *ICRC1Backend) ValidateAllowance(ctx context.Context, from string, amount uint64) error {
	if err := b.requireAllowance(); err != nil {
		return err
	}
	return b.acct.validateAllowance(ctx, from, amount)
}

// Withdraw implements Backend
func (b *ICRC1Backend) Withdraw(ctx context.Context, to string, amount uint64) error {
	_, err := b.acct.withdraw(ctx, to, amount)
	return err
}

// Balance implements Backend
func (b *ICRC1Backend) Balance(ctx context.Context, owner string) (uint128.Uint128, error) {
	return b.acct.balance(ctx, owner)
}
