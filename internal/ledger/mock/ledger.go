package mock

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// ErrUnavailable is a canned transport failure for tests
var ErrUnavailable = errors.New("mock: replica unavailable")

// Ledger is an in-memory ICRC-1/ICRC-2 ledger.
// Errors set through FailOn are returned by the named method until cleared.
type Ledger struct {
	mu sync.Mutex

	name      string
	symbol    string
	decimals  uint8
	fee       *big.Int
	standards []ledger.StandardRecord

	balances   map[string]*big.Int
	allowances map[string]ledger.Allowance
	nextIndex  uint64
	custody    string

	failures map[string]error
	calls    map[string]int

	Transfers     []ledger.TransferArgs
	TransfersFrom []ledger.TransferFromArgs
}

// NewLedger creates a ledger advertising the given standards (e.g. "ICRC-1", "ICRC-2")
func NewLedger(name, symbol string, decimals uint8, fee uint64, standards ...string) *Ledger {
	records := make([]ledger.StandardRecord, 0, len(standards))
	for _, s := range standards {
		records = append(records, ledger.StandardRecord{Name: s, URL: "https://github.com/dfinity/ICRC-1"})
	}
	return &Ledger{
		name:       name,
		symbol:     symbol,
		decimals:   decimals,
		fee:        new(big.Int).SetUint64(fee),
		standards:  records,
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]ledger.Allowance),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// SetBalance overwrites owner's default-subaccount balance
func (l *Ledger) SetBalance(owner string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[accountKey(ledger.Account{Owner: owner})] = new(big.Int).Set(amount)
}

// SetCustody sets the principal debited by Transfer
func (l *Ledger) SetCustody(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.custody = owner
}

// SetFee changes the fee reported by Fee
func (l *Ledger) SetFee(fee *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

// Approve records an ICRC-2 approval from owner to spender
func (l *Ledger) Approve(owner, spender string, amount uint64, expiresAt *uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey(ledger.Account{Owner: owner}, ledger.Account{Owner: spender})] = ledger.Allowance{
		Allowance: new(big.Int).SetUint64(amount),
		ExpiresAt: expiresAt,
	}
}

// FailOn makes method return err; a nil err clears the failure
func (l *Ledger) FailOn(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, method)
		return
	}
	l.failures[method] = err
}

// Calls returns how many times method was invoked
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// TotalCalls returns the number of invocations across all methods
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// BalanceOfOwner is a test helper reading the default-subaccount balance
func (l *Ledger) BalanceOfOwner(owner string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(ledger.Account{Owner: owner})
}

func (l *Ledger) enter(method string) error {
	l.calls[method]++
	return l.failures[method]
}

// Allowance implements ledger.Ledger
func (l *Ledger) Allowance(_ context.Context, args ledger.AllowanceArgs) (ledger.Allowance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc2_allowance"); err != nil {
		return ledger.Allowance{}, err
	}
	a, ok := l.allowances[allowanceKey(args.Account, args.Spender)]
	if !ok {
		return ledger.Allowance{Allowance: new(big.Int)}, nil
	}
	return ledger.Allowance{Allowance: new(big.Int).Set(a.Allowance), ExpiresAt: a.ExpiresAt}, nil
}

// TransferFrom implements ledger.Ledger
func (l *Ledger) TransferFrom(_ context.Context, args ledger.TransferFromArgs) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc2_transfer_from"); err != nil {
		return nil, err
	}
	if args.Fee != nil && args.Fee.Cmp(l.fee) != 0 {
		return nil, &ledger.TransferError{Kind: ledger.BadFee, ExpectedFee: new(big.Int).Set(l.fee)}
	}

	spender := ledger.Account{Owner: args.To.Owner, Subaccount: args.SpenderSubaccount}
	key := allowanceKey(args.From, spender)
	a, ok := l.allowances[key]
	need := new(big.Int).Add(args.Amount, l.fee)
	if !ok || a.Allowance.Cmp(need) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(a.Allowance)
		}
		return nil, &ledger.TransferError{Kind: ledger.InsufficientAllowance, Allowance: have}
	}

	from := l.balanceLocked(args.From)
	if from.Cmp(need) < 0 {
		return nil, &ledger.TransferError{Kind: ledger.InsufficientFunds, Balance: from}
	}

	l.balances[accountKey(args.From)] = from.Sub(from, need)
	to := l.balanceLocked(args.To)
	l.balances[accountKey(args.To)] = to.Add(to, args.Amount)
	a.Allowance = new(big.Int).Sub(a.Allowance, need)
	l.allowances[key] = a
	l.TransfersFrom = append(l.TransfersFrom, args)

	return l.nextBlockLocked(), nil
}

// Transfer implements ledger.Ledger
func (l *Ledger) Transfer(_ context.Context, args ledger.TransferArgs) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc1_transfer"); err != nil {
		return nil, err
	}
	if args.Fee != nil && args.Fee.Cmp(l.fee) != 0 {
		return nil, &ledger.TransferError{Kind: ledger.BadFee, ExpectedFee: new(big.Int).Set(l.fee)}
	}
	src := ledger.Account{Owner: l.custody, Subaccount: args.FromSubaccount}
	need := new(big.Int).Add(args.Amount, l.fee)
	from := l.balanceLocked(src)
	if from.Cmp(need) < 0 {
		return nil, &ledger.TransferError{Kind: ledger.InsufficientFunds, Balance: from}
	}
	l.balances[accountKey(src)] = from.Sub(from, need)
	to := l.balanceLocked(args.To)
	l.balances[accountKey(args.To)] = to.Add(to, args.Amount)
	l.Transfers = append(l.Transfers, args)

	return l.nextBlockLocked(), nil
}

// BalanceOf implements ledger.Ledger
func (l *Ledger) BalanceOf(_ context.Context, account ledger.Account) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc1_balance_of"); err != nil {
		return nil, err
	}
	return l.balanceLocked(account), nil
}

// Name implements ledger.Ledger
func (l *Ledger) Name(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name, l.enter("icrc1_name")
}

// Symbol implements ledger.Ledger
func (l *Ledger) Symbol(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.symbol, l.enter("icrc1_symbol")
}

// Decimals implements ledger.Ledger
func (l *Ledger) Decimals(context.Context) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decimals, l.enter("icrc1_decimals")
}

// Fee implements ledger.Ledger
func (l *Ledger) Fee(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc1_fee"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.fee), nil
}

// SupportedStandards implements ledger.Ledger
func (l *Ledger) SupportedStandards(context.Context) ([]ledger.StandardRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("icrc1_supported_standards"); err != nil {
		return nil, err
	}
	out := make([]ledger.StandardRecord, len(l.standards))
	copy(out, l.standards)
	return out, nil
}

func (l *Ledger) balanceLocked(a ledger.Account) *big.Int {
	if b, ok := l.balances[accountKey(a)]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) nextBlockLocked() *big.Int {
	idx := l.nextIndex
	l.nextIndex++
	return new(big.Int).SetUint64(idx)
}

func accountKey(a ledger.Account) string {
	sub := a.Subaccount
	if len(sub) == 0 {
		sub = ledger.DefaultSubaccount()
	}
	return fmt.Sprintf("%s.%s", a.Owner, hex.EncodeToString(sub))
}

func allowanceKey(owner, spender ledger.Account) string {
	return accountKey(owner) + "|" + accountKey(spender)
}
