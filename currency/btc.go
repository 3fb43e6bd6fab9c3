package currency

import (
	"context"
	"errors"

	"github.com/AlexZinkM/currency-custody/internal/ledger"

	"lukechampine.com/uint128"
)

// BTCBackend holds wrapped bitcoin. After each deposit it asks the minter
// to scan for new UTXOs; that refresh never fails the deposit.
type BTCBackend struct {
	config Config
	acct   account
	env    *Env
}

// NewBTCBackend creates the wrapped bitcoin backend from cfg
func NewBTCBackend(env *Env, cfg Config) *BTCBackend {
	cfg.Currency = BTC()
	return &BTCBackend{
		config: cfg,
		acct:   account{ledgerID: cfg.LedgerID, fee: cfg.Fee, family: "CKBTC", env: env},
		env:    env,
	}
}

// Config returns the backend configuration
func (b *BTCBackend) Config() Config { return b.config }

func (b *BTCBackend) minter() (ledger.BTCMinter, error) {
	m, err := b.env.Dialer.BTCMinter(b.config.MinterID)
	if err != nil {
		return nil, newError(CanisterCallFailed, err, "failed to reach minter %s", b.config.MinterID)
	}
	return m, nil
}

// DepositAddress returns the bitcoin address that mints to the custody
func (b *BTCBackend) DepositAddress(ctx context.Context) (string, error) {
	m, err := b.minter()
	if err != nil {
		return "", err
	}
	address, err := m.GetBTCAddress(ctx, b.env.Custody, nil)
	if err != nil {
		return "", newError(CanisterCallFailed, err, "get_btc_address failed")
	}
	return address, nil
}

// UpdateBalance asks the minter to mint for newly confirmed UTXOs
func (b *BTCBackend) UpdateBalance(ctx context.Context) ([]ledger.UTXOStatus, error) {
	m, err := b.minter()
	if err != nil {
		return nil, err
	}
	statuses, err := m.UpdateBalance(ctx, b.env.Custody, nil)
	if err != nil {
		var ue *ledger.UpdateBalanceError
		if errors.As(err, &ue) {
			return nil, newError(LedgerError, ue, "update_balance rejected")
		}
		return nil, newError(CanisterCallFailed, err, "update_balance failed")
	}
	return statuses, nil
}

// Deposit implements Backend
func (b *BTCBackend) Deposit(ctx context.Context, rec Recorder, from string, amount uint64) error {
	if _, err := b.acct.deposit(ctx, rec, from, amount); err != nil {
		return err
	}

	// Best effort: the pull already succeeded
	if _, err := b.UpdateBalance(ctx); err != nil {
		b.env.logger().Warn("balance refresh after deposit failed", "error", err)
	}
	return nil
}

// ValidateAllowance implements Backend
func (b *BTCBackend) ValidateAllowance(ctx context.Context, from string, amount uint64) error {
	return b.acct.validateAllowance(ctx, from, amount)
}

// Withdraw implements Backend
func (b *BTCBackend) Withdraw(ctx context.Context, to string, amount uint64) error {
	_, err := b.acct.withdraw(ctx, to, amount)
	return err
}

// Balance implements Backend
func (b *BTCBackend) Balance(ctx context.Context, owner string) (uint128.Uint128, error) {
	return b.acct.balance(ctx, owner)
}
