package currency

import (
	"context"

	"lukechampine.com/uint128"
)

// ICPBackend holds the native settlement token. Its fee is the network minimum.
type ICPBackend struct {
	config Config
	acct   account
}

// NewICPBackend creates the native token backend from cfg
func NewICPBackend(env *Env, cfg Config) *ICPBackend {
	cfg.Currency = ICP()
	return &ICPBackend{
		config: cfg,
		acct:   account{ledgerID: cfg.LedgerID, fee: cfg.Fee, family: "ICP", env: env},
	}
}

// Config returns the backend configuration
func (b *ICPBackend) Config() Config { return b.config }

// Deposit implements Backend
func (b *ICPBackend) Deposit(ctx context.Context, rec Recorder, from string, amount uint64) error {
	_, err := b.acct.deposit(ctx, rec, from, amount)
	return err
}

// ValidateAllowance implements Backend
func (b *ICPBackend) ValidateAllowance(ctx context.Context, from string, amount uint64) error {
	return b.acct.validateAllowance(ctx, from, amount)
}

// Withdraw implements Backend
func (b *ICPBackend) Withdraw(ctx context.Context, to string, amount uint64) error {
	_, err := b.acct.withdraw(ctx, to, amount)
	return err
}

// Balance implements Backend
func (b *ICPBackend) Balance(ctx context.Context, owner string) (uint128.Uint128, error) {
	return b.acct.balance(ctx, owner)
}
