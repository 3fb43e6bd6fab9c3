package currency_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/ledger/mock"
)

func usdcBackend(t *testing.T, f *fixture) *currency.CKTokenBackend {
	t.Helper()
	m := currency.NewManager(f.env, f.table, 0)
	if err := m.AddCurrency(context.Background(), currency.CKToken(currency.CKUSDC)); err != nil {
		t.Fatal(err)
	}
	b, err := m.CKToken(currency.CKUSDC)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func mintEvent(hash string, block *big.Int) ledger.Event {
	return ledger.Event{
		Kind:           ledger.EventKindMintedCkErc20,
		EventSource:    &ledger.EventSource{TransactionHash: hash},
		MintBlockIndex: block,
		CkErc20Symbol:  "ckUSDC",
	}
}

func TestMintBlockIndex(t *testing.T) {
	f := newFixture(t)
	f.erc20.EventLog = []ledger.Event{
		{Kind: "AcceptedDeposit", EventSource: &ledger.EventSource{TransactionHash: "0xaaa"}},
		mintEvent("0xbbb", big.NewInt(7)),
		mintEvent("0xaaa", big.NewInt(42)),
	}
	f.erc20.EventsAfter = 3
	b := usdcBackend(t, f)

	idx, err := b.MintBlockIndex(context.Background(), "0xaaa")
	if err != nil {
		t.Fatal(err)
	}
	if idx != 42 {
		t.Errorf("expected block 42, got %d", idx)
	}
	if n := f.erc20.Calls("get_events"); n != 4 {
		t.Errorf("expected 4 scans, got %d", n)
	}
}

func TestMintBlockIndexExhausted(t *testing.T) {
	f := newFixture(t)
	f.erc20.EventLog = []ledger.Event{mintEvent("0xbbb", big.NewInt(7))}
	b := usdcBackend(t, f)

	_, err := b.MintBlockIndex(context.Background(), "0xaaa")
	wantKind(t, err, currency.TransactionNotFound)
	if n := f.erc20.Calls("get_events"); n != 10 {
		t.Errorf("expected 10 scans, got %d", n)
	}
}

func TestMintBlockIndexErrors(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 64)

	f := newFixture(t)
	f.erc20.EventLog = []ledger.Event{mintEvent("0xaaa", huge)}
	b := usdcBackend(t, f)
	_, err := b.MintBlockIndex(context.Background(), "0xaaa")
	wantKind(t, err, currency.QueryError)

	f = newFixture(t)
	f.erc20.EventsErr = mock.ErrUnavailable
	b = usdcBackend(t, f)
	_, err = b.MintBlockIndex(context.Background(), "0xaaa")
	wantKind(t, err, currency.CanisterCallFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f = newFixture(t)
	f.env.ScanDelay = 0
	b = usdcBackend(t, f)
	_, err = b.MintBlockIndex(ctx, "0xaaa")
	wantKind(t, err, currency.QueryError)
}

func TestDepositAddresses(t *testing.T) {
	helper := "0xhelper"
	f := newFixture(t)
	f.erc20.Info.DepositWithSubaccountHelperContractAddress = &helper
	b := usdcBackend(t, f)
	ctx := context.Background()

	addr, err := b.DepositAddress(ctx)
	if err != nil || addr != "0xdeposit" {
		t.Errorf("expected 0xdeposit, got %q, %v", addr, err)
	}
	addr, err = b.DepositAddressForCustody(ctx)
	if err != nil || addr != helper {
		t.Errorf("expected %s, got %q, %v", helper, addr, err)
	}

	f = newFixture(t)
	f.erc20.ContractAddress = nil
	b = usdcBackend(t, f)
	_, err = b.DepositAddress(ctx)
	wantKind(t, err, currency.NoDepositAddress)
	_, err = b.DepositAddressForCustody(ctx)
	wantKind(t, err, currency.NoDepositAddress)
}

func TestWithdrawToAddress(t *testing.T) {
	f := newFixture(t)
	b := usdcBackend(t, f)
	ctx := context.Background()

	h, err := b.WithdrawToAddress(ctx, "0xrecipient", 5_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if h.LedgerBlockIndex != 0 || h.ETHBlockIndex != 1 {
		t.Errorf("unexpected handle %+v", h)
	}
	req := f.erc20.Requests[0]
	if req.LedgerID != currency.CkUSDCLedgerID || req.Recipient != "0xrecipient" || req.Amount.Int64() != 5_000_000 {
		t.Errorf("unexpected request %+v", req)
	}

	f.erc20.WithdrawErr = &ledger.WithdrawERC20Error{Kind: ledger.WithdrawRecipientAddressBlocked, Address: "0xrecipient"}
	_, err = b.WithdrawToAddress(ctx, "0xrecipient", 5_000_000)
	wantKind(t, err, currency.WithdrawalFailed)

	f.erc20.WithdrawErr = mock.ErrUnavailable
	_, err = b.WithdrawToAddress(ctx, "0xrecipient", 5_000_000)
	wantKind(t, err, currency.CanisterCallFailed)
}

func TestWithdrawalStatus(t *testing.T) {
	bigFee := new(big.Int).Lsh(big.NewInt(1), 70)
	fee := func(v uint64) *uint64 { return &v }

	tests := []struct {
		name    string
		details []ledger.WithdrawalDetail
		want    currency.WithdrawalStatus
		kind    currency.ErrorKind
	}{
		{
			name:    "pending",
			details: []ledger.WithdrawalDetail{{Status: ledger.WithdrawalPending}},
			want:    currency.WithdrawalStatus{State: currency.WithdrawalPending},
		},
		{
			name:    "created",
			details: []ledger.WithdrawalDetail{{Status: ledger.WithdrawalTxCreated}},
			want:    currency.WithdrawalStatus{State: currency.WithdrawalTxCreated},
		},
		{
			name:    "sent",
			details: []ledger.WithdrawalDetail{{Status: ledger.WithdrawalTxSent, TransactionHash: "0x1"}},
			want:    currency.WithdrawalStatus{State: currency.WithdrawalTxSent, TransactionHash: "0x1"},
		},
		{
			name: "finalized",
			details: []ledger.WithdrawalDetail{{
				Status: ledger.WithdrawalTxFinalized, Finalized: ledger.FinalizedSuccess,
				TransactionHash: "0x2", EffectiveFee: big.NewInt(21_000),
			}},
			want: currency.WithdrawalStatus{State: currency.WithdrawalFinalized, TransactionHash: "0x2", EffectiveFee: fee(21_000)},
		},
		{
			name: "finalized with oversized fee",
			details: []ledger.WithdrawalDetail{{
				Status: ledger.WithdrawalTxFinalized, Finalized: ledger.FinalizedSuccess,
				TransactionHash: "0x3", EffectiveFee: bigFee,
			}},
			want: currency.WithdrawalStatus{State: currency.WithdrawalFinalized, TransactionHash: "0x3", EffectiveFee: fee(0)},
		},
		{
			name: "reimbursed",
			details: []ledger.WithdrawalDetail{{
				Status: ledger.WithdrawalTxFinalized, Finalized: ledger.FinalizedReimbursed, TransactionHash: "0x4",
			}},
			want: currency.WithdrawalStatus{State: currency.WithdrawalReimbursed, TransactionHash: "0x4"},
		},
		{
			name: "pending reimbursement",
			details: []ledger.WithdrawalDetail{{
				Status: ledger.WithdrawalTxFinalized, Finalized: ledger.FinalizedPendingReimbursement, TransactionHash: "0x5",
			}},
			want: currency.WithdrawalStatus{State: currency.WithdrawalReimbursed, TransactionHash: "0x5", ReimbursementPending: true},
		},
		{
			name: "unknown",
			kind: currency.TransactionNotFound,
		},
		{
			name:    "unrecognized status",
			details: []ledger.WithdrawalDetail{{Status: "Exploded"}},
			kind:    currency.QueryError,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := uint64(100 + i)
			if tt.details != nil {
				f.erc20.Withdrawals[id] = tt.details
			}
			b := usdcBackend(t, f)

			got, err := b.WithdrawalStatus(context.Background(), id)
			if tt.kind != "" {
				wantKind(t, err, tt.kind)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.State != tt.want.State || got.TransactionHash != tt.want.TransactionHash ||
				got.ReimbursementPending != tt.want.ReimbursementPending {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if (got.EffectiveFee == nil) != (tt.want.EffectiveFee == nil) ||
				(got.EffectiveFee != nil && *got.EffectiveFee != *tt.want.EffectiveFee) {
				t.Errorf("expected fee %v, got %v", tt.want.EffectiveFee, got.EffectiveFee)
			}
		})
	}
}

func TestCKTokenDepositAndBalance(t *testing.T) {
	f := newFixture(t)
	f.usdc.SetBalance("carol", big.NewInt(50_000_000))
	f.usdc.Approve("carol", custodyID, 20_000_000, nil)
	b := usdcBackend(t, f)
	ctx := context.Background()

	rec := &recorder{}
	if err := b.Deposit(ctx, rec, "carol", 10_000_000); err != nil {
		t.Fatal(err)
	}
	if len(rec.ids) != 1 {
		t.Fatalf("expected 1 record, got %v", rec.ids)
	}
	bal, err := b.Balance(ctx, custodyID)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Big().Int64() != 10_000_000 {
		t.Errorf("expected custody balance 10000000, got %s", bal)
	}
}

type recorder struct {
	ids []string
}

func (r *recorder) AddTransaction(id string) { r.ids = append(r.ids, id) }

// cancellingMinter cancels the caller once the withdrawal was accepted
type cancellingMinter struct {
	*mock.ERC20Minter
	cancel context.CancelFunc
}

func (m *cancellingMinter) WithdrawERC20(ctx context.Context, args ledger.WithdrawERC20Args) (ledger.RetrieveERC20Request, error) {
	req, err := m.ERC20Minter.WithdrawERC20(ctx, args)
	m.cancel()
	if ctx.Err() != nil {
		return ledger.RetrieveERC20Request{}, ctx.Err()
	}
	return req, err
}

func TestWithdrawToAddressOutlivesCallerCancel(t *testing.T) {
	f := newFixture(t)
	b := usdcBackend(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.dialer.AddERC20Minter(currency.CkERC20MinterID, &cancellingMinter{ERC20Minter: f.erc20, cancel: cancel})

	h, err := b.WithdrawToAddress(ctx, "0xrecipient", 5_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if h.ETHBlockIndex != 1 || len(f.erc20.Requests) != 1 {
		t.Errorf("unexpected handle %+v after %d requests", h, len(f.erc20.Requests))
	}
}
