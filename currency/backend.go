package currency

import (
	"context"
	"math/big"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/txstate"

	"lukechampine.com/uint128"
)

// Recorder receives the ids of successful deposits
type Recorder interface {
	AddTransaction(id string)
}

// Backend is the capability set every asset family implements
type Backend interface {
	// Deposit pulls amount from the counter-party under its ICRC-2 approval and records the transfer
	Deposit(ctx context.Context, rec Recorder, from string, amount uint64) error
	// ValidateAllowance checks the approval without transferring
	ValidateAllowance(ctx context.Context, from string, amount uint64) error
	// Withdraw pushes amount minus the fee from the custody to the destination
	Withdraw(ctx context.Context, to string, amount uint64) error
	// Balance returns the balance of owner's default account
	Balance(ctx context.Context, owner string) (uint128.Uint128, error)
}

// account implements the ICRC-1/ICRC-2 calls shared by all families
type account struct {
	ledgerID string
	fee      uint64
	family   string
	env      *Env
}

func (a *account) ledger() (ledger.Ledger, error) {
	l, err := a.env.Dialer.Ledger(a.ledgerID)
	if err != nil {
		return nil, newError(CanisterCallFailed, err, "failed to reach ledger %s", a.ledgerID)
	}
	return l, nil
}

func (a *account) custody() ledger.Account {
	return ledger.Account{Owner: a.env.Custody}
}

// checkAllowance fails when the approval is below amount or has expired
func (a *account) checkAllowance(ctx context.Context, l ledger.Ledger, from string, amount uint64) error {
	allowance, err := l.Allowance(ctx, ledger.AllowanceArgs{
		Account: ledger.Account{Owner: from},
		Spender: a.custody(),
	})
	if err != nil {
		return newError(AllowanceCheckFailed, err, "failed to query allowance of %s", from)
	}

	if allowance.Allowance == nil || allowance.Allowance.Cmp(new(big.Int).SetUint64(amount)) < 0 {
		return newError(InsufficientAllowance, nil, "allowance %s below %d", natString(allowance.Allowance), amount)
	}
	if allowance.ExpiresAt != nil && *allowance.ExpiresAt <= uint64(a.env.now().UnixNano()) {
		return newError(InsufficientAllowance, nil, "allowance expired at %d", *allowance.ExpiresAt)
	}
	return nil
}

func (a *account) validateAllowance(ctx context.Context, from string, amount uint64) error {
	l, err := a.ledger()
	if err != nil {
		return err
	}
	return a.checkAllowance(ctx, l, from, amount)
}

// transferFrom pulls amount into the custody and returns the block index
func (a *account) transferFrom(ctx context.Context, l ledger.Ledger, from string, amount uint64) (*big.Int, error) {
	createdAt := uint64(a.env.now().UnixNano())
	index, err := l.TransferFrom(ctx, ledger.TransferFromArgs{
		From:          ledger.Account{Owner: from},
		To:            a.custody(),
		Amount:        new(big.Int).SetUint64(amount),
		Fee:           new(big.Int).SetUint64(a.fee),
		CreatedAtTime: &createdAt,
	})
	if err != nil {
		if te, ok := ledger.AsTransferError(err); ok {
			if te.Kind == ledger.InsufficientAllowance {
				return nil, newError(InsufficientAllowance, te, "ledger rejected transfer from %s", from)
			}
			return nil, newError(TransferFromFailed, te, "ledger rejected transfer from %s", from)
		}
		return nil, newError(TransferFromFailed, err, "failed to call transfer_from")
	}
	return index, nil
}

// deposit checks the allowance, pulls and records the transfer.
// Nothing is recorded unless the pull succeeded.
func (a *account) deposit(ctx context.Context, rec Recorder, from string, amount uint64) (*big.Int, error) {
	l, err := a.ledger()
	if err != nil {
		return nil, err
	}
	if err := a.checkAllowance(ctx, l, from, amount); err != nil {
		return nil, err
	}

	index, err := a.transferFrom(ctx, l, from, amount)
	if err != nil {
		return nil, err
	}

	rec.AddTransaction(txstate.RecordID(a.family, index.String(), from, a.env.now()))
	a.env.logger().Info("deposit recorded", "family", a.family, "from", from, "amount", amount, "block", index.String())
	return index, nil
}

// withdraw sends amount minus the fee from the custody's default subaccount
func (a *account) withdraw(ctx context.Context, to string, amount uint64) (*big.Int, error) {
	if amount <= a.fee {
		return nil, newError(WithdrawalFailed, nil, "amount %d does not cover fee %d", amount, a.fee)
	}
	l, err := a.ledger()
	if err != nil {
		return nil, err
	}

	createdAt := uint64(a.env.now().UnixNano())
	index, err := l.Transfer(ctx, ledger.TransferArgs{
		FromSubaccount: ledger.DefaultSubaccount(),
		To:             ledger.Account{Owner: to, Subaccount: ledger.DefaultSubaccount()},
		Amount:         new(big.Int).SetUint64(amount - a.fee),
		Fee:            new(big.Int).SetUint64(a.fee),
		CreatedAtTime:  &createdAt,
	})
	if err != nil {
		if te, ok := ledger.AsTransferError(err); ok {
			return nil, newError(WithdrawalFailed, te, "ledger rejected transfer to %s", to)
		}
		return nil, newError(WithdrawalFailed, err, "failed to call transfer")
	}

	a.env.logger().Info("withdrawal sent", "family", a.family, "to", to, "amount", amount, "fee", a.fee, "block", index.String())
	return index, nil
}

func (a *account) balance(ctx context.Context, owner string) (uint128.Uint128, error) {
	l, err := a.ledger()
	if err != nil {
		return uint128.Zero, err
	}
	n, err := l.BalanceOf(ctx, ledger.Account{Owner: owner})
	if err != nil {
		return uint128.Zero, newError(LedgerError, err, "failed to query balance of %s", owner)
	}
	return toUint128(n)
}

func toUint128(n *big.Int) (uint128.Uint128, error) {
	if n == nil {
		return uint128.Zero, nil
	}
	if n.Sign() < 0 || n.BitLen() > 128 {
		return uint128.Zero, newError(LedgerError, nil, "balance %s does not fit in 128 bits", n.String())
	}
	return uint128.FromBig(n), nil
}

func natString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
