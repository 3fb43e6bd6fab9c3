package ledger

import (
	"context"
	"math/big"
)

// SubaccountLen is the size of an ICRC-1 subaccount
const SubaccountLen = 32

// DefaultSubaccount returns the all-zero subaccount the custody holds funds in.
func DefaultSubaccount() []byte {
	return make([]byte, SubaccountLen)
}

// Account identifies a ledger account: owner principal plus optional subaccount
type Account struct {
	Owner      string `json:"owner"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

// AllowanceArgs represents request for icrc2_allowance
type AllowanceArgs struct {
	Account Account `json:"account"`
	Spender Account `json:"spender"`
}

// Allowance represents response of icrc2_allowance.
// ExpiresAt is nanoseconds since the Unix epoch, nil when the approval never expires.
type Allowance struct {
	Allowance *big.Int `json:"allowance"`
	ExpiresAt *uint64  `json:"expires_at,omitempty"`
}

// TransferFromArgs represents request for icrc2_transfer_from
type TransferFromArgs struct {
	SpenderSubaccount []byte   `json:"spender_subaccount,omitempty"`
	From              Account  `json:"from"`
	To                Account  `json:"to"`
	Amount            *big.Int `json:"amount"`
	Fee               *big.Int `json:"fee,omitempty"`
	Memo              []byte   `json:"memo,omitempty"`
	CreatedAtTime     *uint64  `json:"created_at_time,omitempty"`
}

// TransferArgs represents request for icrc1_transfer
type TransferArgs struct {
	FromSubaccount []byte   `json:"from_subaccount,omitempty"`
	To             Account  `json:"to"`
	Amount         *big.Int `json:"amount"`
	Fee            *big.Int `json:"fee,omitempty"`
	Memo           []byte   `json:"memo,omitempty"`
	CreatedAtTime  *uint64  `json:"created_at_time,omitempty"`
}

// StandardRecord is one entry of icrc1_supported_standards
type StandardRecord struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Ledger is a token ledger speaking ICRC-1 (and ICRC-2 where supported).
// Ledger rejections are returned as *TransferError, anything else is a transport failure.
type Ledger interface {
	Allowance(ctx context.Context, args AllowanceArgs) (Allowance, error)
	TransferFrom(ctx context.Context, args TransferFromArgs) (*big.Int, error)
	Transfer(ctx context.Context, args TransferArgs) (*big.Int, error)
	BalanceOf(ctx context.Context, account Account) (*big.Int, error)

	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	Fee(ctx context.Context) (*big.Int, error)
	SupportedStandards(ctx context.Context) ([]StandardRecord, error)
}

// BTCMinter is the minter that converts native bitcoin into the wrapped token
type BTCMinter interface {
	GetBTCAddress(ctx context.Context, owner string, subaccount []byte) (string, error)
	UpdateBalance(ctx context.Context, owner string, subaccount []byte) ([]UTXOStatus, error)
}

// ERC20Minter is the minter of wrapped ERC-20 tokens
type ERC20Minter interface {
	SmartContractAddress(ctx context.Context) (*string, error)
	MinterInfo(ctx context.Context) (MinterInfo, error)
	Events(ctx context.Context, start, length uint64) ([]Event, error)
	WithdrawERC20(ctx context.Context, args WithdrawERC20Args) (RetrieveERC20Request, error)
	WithdrawalStatus(ctx context.Context, withdrawalID uint64) ([]WithdrawalDetail, error)
}

// Dialer resolves remote principals to clients
type Dialer interface {
	Ledger(ledgerID string) (Ledger, error)
	BTCMinter(minterID string) (BTCMinter, error)
	ERC20Minter(minterID string) (ERC20Minter, error)
}
