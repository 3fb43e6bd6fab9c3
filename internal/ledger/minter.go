package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// UTXOStatus is one entry of the update_balance result
type UTXOStatus struct {
	Status       string `json:"status"`
	BlockIndex   uint64 `json:"block_index,omitempty"`
	MintedAmount uint64 `json:"minted_amount,omitempty"`
}

// UpdateBalanceErrorKind names a rejection of update_balance
type UpdateBalanceErrorKind string

const (
	UpdateGenericError           UpdateBalanceErrorKind = "GenericError"
	UpdateTemporarilyUnavailable UpdateBalanceErrorKind = "TemporarilyUnavailable"
	UpdateAlreadyProcessing      UpdateBalanceErrorKind = "AlreadyProcessing"
	UpdateNoNewUtxos             UpdateBalanceErrorKind = "NoNewUtxos"
)

// UpdateBalanceError is a typed rejection of the bitcoin minter
type UpdateBalanceError struct {
	Kind                  UpdateBalanceErrorKind `json:"kind"`
	ErrorCode             uint64                 `json:"error_code,omitempty"`
	Message               string                 `json:"message,omitempty"`
	RequiredConfirmations uint32                 `json:"required_confirmations,omitempty"`
	CurrentConfirmations  *uint32                `json:"current_confirmations,omitempty"`
}

func (e *UpdateBalanceError) Error() string {
	switch e.Kind {
	case UpdateGenericError:
		return fmt.Sprintf("generic error %d: %s", e.ErrorCode, e.Message)
	case UpdateTemporarilyUnavailable:
		return fmt.Sprintf("temporarily unavailable: %s", e.Message)
	case UpdateAlreadyProcessing:
		return "already processing"
	case UpdateNoNewUtxos:
		if e.CurrentConfirmations != nil {
			return fmt.Sprintf("no new utxos, %d of %d confirmations", *e.CurrentConfirmations, e.RequiredConfirmations)
		}
		return fmt.Sprintf("no new utxos, %d confirmations required", e.RequiredConfirmations)
	}
	return fmt.Sprintf("update balance error %s", e.Kind)
}

// MinterInfo is the subset of get_minter_info the custody reads
type MinterInfo struct {
	SmartContractAddress                       *string `json:"smart_contract_address,omitempty"`
	DepositWithSubaccountHelperContractAddress *string `json:"deposit_with_subaccount_helper_contract_address,omitempty"`
	MinterAddress                              *string `json:"minter_address,omitempty"`
}

// EventKindMintedCkErc20 is the minter event emitted when an ERC-20 deposit is minted
const EventKindMintedCkErc20 = "MintedCkErc20"

// EventSource points at the Ethereum log an event came from
type EventSource struct {
	TransactionHash string `json:"transaction_hash"`
	LogIndex        uint64 `json:"log_index"`
}

// Event is a minter audit-log entry
type Event struct {
	Timestamp      uint64       `json:"timestamp"`
	Kind           string       `json:"kind"`
	EventSource    *EventSource `json:"event_source,omitempty"`
	MintBlockIndex *big.Int     `json:"mint_block_index,omitempty"`
	ERC20Contract  string       `json:"erc20_contract_address,omitempty"`
	CkErc20Symbol  string       `json:"ckerc20_token_symbol,omitempty"`
}

// WithdrawERC20Args represents request for withdraw_erc20
type WithdrawERC20Args struct {
	LedgerID              string   `json:"ckerc20_ledger_id"`
	Recipient             string   `json:"recipient"`
	Amount                *big.Int `json:"amount"`
	FromCkETHSubaccount   []byte   `json:"from_cketh_subaccount,omitempty"`
	FromCkERC20Subaccount []byte   `json:"from_ckerc20_subaccount,omitempty"`
}

// RetrieveERC20Request identifies an accepted withdrawal by its burn blocks
type RetrieveERC20Request struct {
	CkERC20BlockIndex *big.Int `json:"ckerc20_block_index"`
	CkETHBlockIndex   *big.Int `json:"cketh_block_index"`
}

// MinterLedgerErrorKind names a burn failure reported by the minter
type MinterLedgerErrorKind string

const (
	BurnTemporarilyUnavailable MinterLedgerErrorKind = "TemporarilyUnavailable"
	BurnInsufficientAllowance  MinterLedgerErrorKind = "InsufficientAllowance"
	BurnAmountTooLow           MinterLedgerErrorKind = "AmountTooLow"
	BurnInsufficientFunds      MinterLedgerErrorKind = "InsufficientFunds"
)

// MinterLedgerError is a burn failure on one of the ledgers the minter burns from
type MinterLedgerError struct {
	Kind              MinterLedgerErrorKind `json:"kind"`
	TokenSymbol       string                `json:"token_symbol,omitempty"`
	Allowance         *big.Int              `json:"allowance,omitempty"`
	Balance           *big.Int              `json:"balance,omitempty"`
	MinimumBurnAmount *big.Int              `json:"minimum_burn_amount,omitempty"`
	FailedBurnAmount  *big.Int              `json:"failed_burn_amount,omitempty"`
	Message           string                `json:"message,omitempty"`
}

// WithdrawERC20ErrorKind names a rejection of withdraw_erc20
type WithdrawERC20ErrorKind string

const (
	WithdrawTokenNotSupported       WithdrawERC20ErrorKind = "TokenNotSupported"
	WithdrawTemporarilyUnavailable  WithdrawERC20ErrorKind = "TemporarilyUnavailable"
	WithdrawCkErc20LedgerError      WithdrawERC20ErrorKind = "CkErc20LedgerError"
	WithdrawCkEthLedgerError        WithdrawERC20ErrorKind = "CkEthLedgerError"
	WithdrawRecipientAddressBlocked WithdrawERC20ErrorKind = "RecipientAddressBlocked"
)

// WithdrawERC20Error is a typed rejection of withdraw_erc20
type WithdrawERC20Error struct {
	Kind            WithdrawERC20ErrorKind `json:"kind"`
	SupportedTokens []string               `json:"supported_tokens,omitempty"`
	Message         string                 `json:"message,omitempty"`
	LedgerError     *MinterLedgerError     `json:"error,omitempty"`
	Address         string                 `json:"address,omitempty"`
}

func (e *WithdrawERC20Error) Error() string {
	switch e.Kind {
	case WithdrawTokenNotSupported:
		return fmt.Sprintf("token not supported, supported tokens: %s", strings.Join(e.SupportedTokens, ", "))
	case WithdrawTemporarilyUnavailable:
		return fmt.Sprintf("service temporarily unavailable: %s", e.Message)
	case WithdrawCkErc20LedgerError:
		return burnMessage(e.LedgerError, "")
	case WithdrawCkEthLedgerError:
		return burnMessage(e.LedgerError, "ckETH ")
	case WithdrawRecipientAddressBlocked:
		return fmt.Sprintf("recipient address blocked: %s", e.Address)
	}
	return fmt.Sprintf("withdraw error %s", e.Kind)
}

func burnMessage(le *MinterLedgerError, prefix string) string {
	if le == nil {
		return prefix + "ledger error"
	}
	symbol := le.TokenSymbol
	if prefix != "" {
		symbol = strings.TrimSpace(prefix)
	}
	switch le.Kind {
	case BurnTemporarilyUnavailable:
		return fmt.Sprintf("%sledger temporarily unavailable: %s", prefix, le.Message)
	case BurnInsufficientAllowance:
		return fmt.Sprintf("insufficient allowance for %s: have %s need %s", symbol, natString(le.Allowance), natString(le.FailedBurnAmount))
	case BurnAmountTooLow:
		return fmt.Sprintf("amount too low for %s: minimum %s got %s", symbol, natString(le.MinimumBurnAmount), natString(le.FailedBurnAmount))
	case BurnInsufficientFunds:
		return fmt.Sprintf("insufficient funds for %s: have %s need %s", symbol, natString(le.Balance), natString(le.FailedBurnAmount))
	}
	return fmt.Sprintf("%sledger error %s", prefix, le.Kind)
}

// WithdrawalStatusKind is the lifecycle stage of an ERC-20 withdrawal
type WithdrawalStatusKind string

const (
	WithdrawalPending     WithdrawalStatusKind = "Pending"
	WithdrawalTxCreated   WithdrawalStatusKind = "TxCreated"
	WithdrawalTxSent      WithdrawalStatusKind = "TxSent"
	WithdrawalTxFinalized WithdrawalStatusKind = "TxFinalized"
)

// FinalizedKind is the outcome of a finalized withdrawal transaction
type FinalizedKind string

const (
	FinalizedSuccess              FinalizedKind = "Success"
	FinalizedReimbursed           FinalizedKind = "Reimbursed"
	FinalizedPendingReimbursement FinalizedKind = "PendingReimbursement"
)

// WithdrawalDetail is one entry of withdrawal_status
type WithdrawalDetail struct {
	WithdrawalID     uint64               `json:"withdrawal_id"`
	Status           WithdrawalStatusKind `json:"status"`
	TransactionHash  string               `json:"transaction_hash,omitempty"`
	Finalized        FinalizedKind        `json:"finalized,omitempty"`
	EffectiveFee     *big.Int             `json:"effective_transaction_fee,omitempty"`
	ReimbursedAmount *big.Int             `json:"reimbursed_amount,omitempty"`
	TokenSymbol      string               `json:"token_symbol"`
	WithdrawalAmount *big.Int             `json:"withdrawal_amount"`
	RecipientAddress string               `json:"recipient_address"`
}
