package currency

import (
	"context"
	"errors"
	"math/big"

	"github.com/AlexZinkM/currency-custody/internal/ledger"

	"lukechampine.com/uint128"
)

const (
	mintScanAttempts = 10
	mintScanPage     = 100
)

// WithdrawalHandle identifies an accepted ERC-20 withdrawal by its burn blocks.
// LedgerBlockIndex doubles as the withdrawal id for WithdrawalStatus.
type WithdrawalHandle struct {
	LedgerBlockIndex uint64 `json:"ledger_block_index"`
	ETHBlockIndex    uint64 `json:"eth_block_index"`
}

// WithdrawalState is the lifecycle stage of an ERC-20 withdrawal
type WithdrawalState string

const (
	WithdrawalPending    WithdrawalState = "pending"
	WithdrawalTxCreated  WithdrawalState = "tx_created"
	WithdrawalTxSent     WithdrawalState = "tx_sent"
	WithdrawalFinalized  WithdrawalState = "finalized"
	WithdrawalReimbursed WithdrawalState = "reimbursed"
)

// WithdrawalStatus is the translated minter status of a withdrawal
type WithdrawalStatus struct {
	State                WithdrawalState `json:"state"`
	TransactionHash      string          `json:"transaction_hash,omitempty"`
	EffectiveFee         *uint64         `json:"effective_fee,omitempty"`
	ReimbursementPending bool            `json:"reimbursement_pending,omitempty"`
}

// CKTokenBackend holds a wrapped ERC-20 style token minted by the ckERC20 minter
type CKTokenBackend struct {
	config Config
	acct   account
	env    *Env
}

// NewCKTokenBackend creates a wrapped token backend from cfg
func NewCKTokenBackend(env *Env, cfg Config) *CKTokenBackend {
	return &CKTokenBackend{
		config: cfg,
		acct:   account{ledgerID: cfg.LedgerID, fee: cfg.Fee, family: "CKERC20", env: env},
		env:    env,
	}
}

// Config returns the backend configuration
func (b *CKTokenBackend) Config() Config { return b.config }

// Symbol returns the token symbol
func (b *CKTokenBackend) Symbol() CKSymbol { return b.config.Currency.CK }

func (b *CKTokenBackend) minter() (ledger.ERC20Minter, error) {
	m, err := b.env.Dialer.ERC20Minter(b.config.MinterID)
	if err != nil {
		return nil, newError(CanisterCallFailed, err, "failed to reach minter %s", b.config.MinterID)
	}
	return m, nil
}

// DepositAddress returns the minter's deposit contract address
func (b *CKTokenBackend) DepositAddress(ctx context.Context) (string, error) {
	m, err := b.minter()
	if err != nil {
		return "", err
	}
	address, err := m.SmartContractAddress(ctx)
	if err != nil {
		return "", newError(CanisterCallFailed, err, "smart_contract_address failed")
	}
	if address == nil || *address == "" {
		return "", newError(NoDepositAddress, nil, "minter %s has no deposit contract", b.config.MinterID)
	}
	return *address, nil
}

// DepositAddressForCustody returns the helper contract that mints directly to the custody.
// Senders include the custody principal in the transaction data.
func (b *CKTokenBackend) DepositAddressForCustody(ctx context.Context) (string, error) {
	m, err := b.minter()
	if err != nil {
		return "", err
	}
	info, err := m.MinterInfo(ctx)
	if err != nil {
		return "", newError(CanisterCallFailed, err, "get_minter_info failed")
	}
	if info.DepositWithSubaccountHelperContractAddress == nil || *info.DepositWithSubaccountHelperContractAddress == "" {
		return "", newError(NoDepositAddress, nil, "minter %s has no subaccount helper contract", b.config.MinterID)
	}
	return *info.DepositWithSubaccountHelperContractAddress, nil
}

// MintBlockIndex scans the minter's events for the mint caused by ethTxHash.
// It tries up to ten times with exponential backoff between attempts.
func (b *CKTokenBackend) MintBlockIndex(ctx context.Context, ethTxHash string) (uint64, error) {
	m, err := b.minter()
	if err != nil {
		return 0, err
	}

	for attempt := 0; attempt < mintScanAttempts; attempt++ {
		if attempt > 0 {
			if err := ledger.Sleep(ctx, ledger.Backoff(b.env.scanDelay(), attempt-1)); err != nil {
				return 0, newError(QueryError, err, "mint scan interrupted")
			}
		}

		events, err := m.Events(ctx, 0, mintScanPage)
		if err != nil {
			return 0, newError(CanisterCallFailed, err, "get_events failed")
		}

		for _, ev := range events {
			if ev.Kind != ledger.EventKindMintedCkErc20 || ev.EventSource == nil {
				continue
			}
			if ev.EventSource.TransactionHash != ethTxHash {
				continue
			}
			if ev.MintBlockIndex == nil || !ev.MintBlockIndex.IsUint64() {
				return 0, newError(QueryError, nil, "block number too large: %s", natString(ev.MintBlockIndex))
			}
			return ev.MintBlockIndex.Uint64(), nil
		}

		b.env.logger().Debug("mint not found yet", "tx_hash", ethTxHash, "attempt", attempt+1)
	}

	return 0, newError(TransactionNotFound, nil, "no mint for transaction %s", ethTxHash)
}

// WithdrawToAddress burns amount and asks the minter to send the ERC-20 to ethAddress
func (b *CKTokenBackend) WithdrawToAddress(ctx context.Context, ethAddress string, amount uint64) (WithdrawalHandle, error) {
	m, err := b.minter()
	if err != nil {
		return WithdrawalHandle{}, err
	}

	req, err := m.WithdrawERC20(context.WithoutCancel(ctx), ledger.WithdrawERC20Args{
		LedgerID:  b.config.LedgerID,
		Recipient: ethAddress,
		Amount:    new(big.Int).SetUint64(amount),
	})
	if err != nil {
		var we *ledger.WithdrawERC20Error
		if errors.As(err, &we) {
			return WithdrawalHandle{}, newError(WithdrawalFailed, we, "minter rejected withdrawal")
		}
		return WithdrawalHandle{}, newError(CanisterCallFailed, err, "withdraw_erc20 failed")
	}

	if req.CkERC20BlockIndex == nil || !req.CkERC20BlockIndex.IsUint64() ||
		req.CkETHBlockIndex == nil || !req.CkETHBlockIndex.IsUint64() {
		return WithdrawalHandle{}, newError(QueryError, nil, "withdrawal block index out of range")
	}

	handle := WithdrawalHandle{
		LedgerBlockIndex: req.CkERC20BlockIndex.Uint64(),
		ETHBlockIndex:    req.CkETHBlockIndex.Uint64(),
	}
	b.env.logger().Info("erc20 withdrawal submitted", "symbol", b.Symbol().String(), "to", ethAddress, "amount", amount, "withdrawal_id", handle.LedgerBlockIndex)
	return handle, nil
}

// WithdrawalStatus returns the translated status of the withdrawal with the given id
func (b *CKTokenBackend) WithdrawalStatus(ctx context.Context, withdrawalID uint64) (WithdrawalStatus, error) {
	m, err := b.minter()
	if err != nil {
		return WithdrawalStatus{}, err
	}
	details, err := m.WithdrawalStatus(ctx, withdrawalID)
	if err != nil {
		return WithdrawalStatus{}, newError(CanisterCallFailed, err, "withdrawal_status failed")
	}
	if len(details) == 0 {
		return WithdrawalStatus{}, newError(TransactionNotFound, nil, "withdrawal %d not found", withdrawalID)
	}
	return translateWithdrawal(details[0])
}

func translateWithdrawal(d ledger.WithdrawalDetail) (WithdrawalStatus, error) {
	switch d.Status {
	case ledger.WithdrawalPending:
		return WithdrawalStatus{State: WithdrawalPending}, nil
	case ledger.WithdrawalTxCreated:
		return WithdrawalStatus{State: WithdrawalTxCreated}, nil
	case ledger.WithdrawalTxSent:
		return WithdrawalStatus{State: WithdrawalTxSent, TransactionHash: d.TransactionHash}, nil
	case ledger.WithdrawalTxFinalized:
		switch d.Finalized {
		case ledger.FinalizedSuccess:
			st := WithdrawalStatus{State: WithdrawalFinalized, TransactionHash: d.TransactionHash}
			if d.EffectiveFee != nil {
				// fees beyond uint64 are reported as zero
				var fee uint64
				if d.EffectiveFee.IsUint64() {
					fee = d.EffectiveFee.Uint64()
				}
				st.EffectiveFee = &fee
			}
			return st, nil
		case ledger.FinalizedReimbursed:
			return WithdrawalStatus{State: WithdrawalReimbursed, TransactionHash: d.TransactionHash}, nil
		case ledger.FinalizedPendingReimbursement:
			return WithdrawalStatus{State: WithdrawalReimbursed, TransactionHash: d.TransactionHash, ReimbursementPending: true}, nil
		}
	}
	return WithdrawalStatus{}, newError(QueryError, nil, "unknown withdrawal status %s/%s", d.Status, d.Finalized)
}

// Deposit implements Backend
func (b *CKTokenBackend) Deposit(ctx context.Context, rec Recorder, from string, amount uint64) error {
	_, err := b.acct.deposit(ctx, rec, from, amount)
	return err
}

// ValidateAllowance implements Backend
func (b *CKTokenBackend) ValidateAllowance(ctx context.Context, from string, amount uint64) error {
	return b.acct.validateAllowance(ctx, from, amount)
}

// Withdraw implements Backend
func (b *CKTokenBackend) Withdraw(ctx context.Context, to string, amount uint64) error {
	_, err := b.acct.withdraw(ctx, to, amount)
	return err
}

// Balance implements Backend
func (b *CKTokenBackend) Balance(ctx context.Context, owner string) (uint128.Uint128, error) {
	return b.acct.balance(ctx, owner)
}
