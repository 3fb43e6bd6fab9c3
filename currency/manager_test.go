package currency_test

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/ledger/mock"
	"github.com/AlexZinkM/currency-custody/internal/txstate"
)

const (
	custodyID   = "custody-principal"
	tokenLedger = "mxzaz-tok1-cai"
)

type fixture struct {
	env    *currency.Env
	table  currency.Table
	dialer *mock.Dialer
	icp    *mock.Ledger
	ckbtc  *mock.Ledger
	usdc   *mock.Ledger
	btc    *mock.BTCMinter
	erc20  *mock.ERC20Minter
}

// newFixture wires mock ledgers for every well-known asset. ICP charges a fee of 100.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	table := currency.DefaultTable()
	table.ICP.Fee = 100

	f := &fixture{
		table:  table,
		dialer: mock.NewDialer(),
		icp:    mock.NewLedger("Internet Computer", "ICP", 8, 100, "ICRC-1", "ICRC-2"),
		ckbtc:  mock.NewLedger("ckBTC", "ckBTC", 8, table.BTC.Fee, "ICRC-1", "ICRC-2"),
		usdc:   mock.NewLedger("ckUSDC", "ckUSDC", 6, table.CKTokens[currency.CKUSDC].Fee, "ICRC-1", "ICRC-2"),
		btc:    mock.NewBTCMinter("bc1qcustody"),
		erc20:  mock.NewERC20Minter("0xdeposit"),
	}
	for _, l := range []*mock.Ledger{f.icp, f.ckbtc, f.usdc} {
		l.SetCustody(custodyID)
	}
	f.dialer.AddLedger(table.ICP.LedgerID, f.icp)
	f.dialer.AddLedger(table.BTC.LedgerID, f.ckbtc)
	f.dialer.AddLedger(table.CKTokens[currency.CKUSDC].LedgerID, f.usdc)
	f.dialer.AddBTCMinter(table.BTC.MinterID, f.btc)
	f.dialer.AddERC20Minter(currency.CkERC20MinterID, f.erc20)

	f.env = &currency.Env{Dialer: f.dialer, Custody: custodyID, ScanDelay: -1}
	return f
}

func (f *fixture) addToken(standards ...string) *mock.Ledger {
	l := mock.NewLedger("Token", "TOK", 8, 10_000, standards...)
	l.SetCustody(custodyID)
	f.dialer.AddLedger(tokenLedger, l)
	return l
}

func tokenCurrency() currency.Currency {
	return currency.ICRC1(currency.NewToken(tokenLedger, "TOK", 8))
}

func wantKind(t *testing.T, err error, kind currency.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got, ok := currency.KindOf(err); !ok || got != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func TestMissingBackendIsWalletNotSet(t *testing.T) {
	f := newFixture(t)
	m := currency.NewEmptyManager(f.env, f.table, 0)
	store := txstate.New(0)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"deposit", func() error { return m.Deposit(ctx, store, currency.ICP(), "alice", 10) }},
		{"validate", func() error { return m.ValidateAllowance(ctx, currency.BTC(), "alice", 10) }},
		{"withdraw", func() error { return m.Withdraw(ctx, currency.CKToken(currency.CKUSDC), "alice", 1_000_000) }},
		{"withdraw rake", func() error { return m.WithdrawRake(ctx, currency.ICP(), "alice", 1_000) }},
		{"balance", func() error { _, err := m.Balance(ctx, tokenCurrency(), "alice"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			wantKind(t, err, currency.WalletNotSet)
			if !errors.Is(err, currency.ErrWalletNotSet) {
				t.Errorf("errors.Is should match ErrWalletNotSet")
			}
		})
	}

	if n := f.icp.TotalCalls() + f.ckbtc.TotalCalls() + f.usdc.TotalCalls(); n != 0 {
		t.Errorf("expected no remote calls, got %d", n)
	}
	if store.Len() != 0 {
		t.Errorf("expected no records, got %d", store.Len())
	}
}

func TestNewManagerHasICPAndBTC(t *testing.T) {
	f := newFixture(t)
	m := currency.NewManager(f.env, f.table, 0)

	want := []currency.Currency{currency.ICP(), currency.BTC()}
	if got := m.Currencies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddCurrencyIdempotent(t *testing.T) {
	f := newFixture(t)
	tok := f.addToken("ICRC-1", "ICRC-2")
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.AddCurrency(ctx, tokenCurrency()); err != nil {
			t.Fatalf("add #%d: %v", i+1, err)
		}
		if err := m.AddCurrency(ctx, currency.CKToken(currency.CKUSDC)); err != nil {
			t.Fatalf("add ckUSDC #%d: %v", i+1, err)
		}
		if err := m.AddCurrency(ctx, currency.ICP()); err != nil {
			t.Fatalf("add ICP #%d: %v", i+1, err)
		}
	}

	if got := len(m.Currencies()); got != 4 {
		t.Fatalf("expected 4 currencies, got %d: %v", got, m.Currencies())
	}
	if n := tok.Calls("icrc1_name"); n != 1 {
		t.Errorf("expected metadata fetched once, got %d", n)
	}
}

func TestAddCurrencyMetadataFailureAddsNothing(t *testing.T) {
	f := newFixture(t)
	tok := f.addToken("ICRC-1", "ICRC-2")
	tok.FailOn("icrc1_decimals", mock.ErrUnavailable)
	m := currency.NewManager(f.env, f.table, 0)

	err := m.AddCurrency(context.Background(), tokenCurrency())
	wantKind(t, err, currency.QueryError)
	if _, err := m.Backend(tokenCurrency()); !errors.Is(err, currency.ErrWalletNotSet) {
		t.Errorf("expected token to stay unconfigured, got %v", err)
	}
}

func TestAddCurrencyWithoutConfiguration(t *testing.T) {
	f := newFixture(t)
	m := currency.NewManager(f.env, f.table, 0)

	err := m.AddCurrency(context.Background(), currency.CKToken(currency.CKBTC))
	wantKind(t, err, currency.OperationNotSupported)
}

func TestRemoveCurrency(t *testing.T) {
	f := newFixture(t)
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()
	if err := m.AddCurrency(ctx, currency.CKToken(currency.CKUSDC)); err != nil {
		t.Fatal(err)
	}

	m.RemoveCurrency(currency.CKToken(currency.CKUSDC))
	m.RemoveCurrency(currency.CKToken(currency.CKUSDC))
	m.RemoveCurrency(currency.ICP())
	m.RemoveCurrency(tokenCurrency())

	want := []currency.Currency{currency.BTC()}
	if got := m.Currencies(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	_, err := m.Balance(ctx, currency.ICP(), "alice")
	wantKind(t, err, currency.WalletNotSet)
}

func TestManagerRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.addToken("ICRC-1", "ICRC-2")
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()
	for _, c := range []currency.Currency{
		currency.CKToken(currency.CKUSDC),
		currency.CKToken(currency.CKETH),
		tokenCurrency(),
	} {
		if err := m.AddCurrency(ctx, c); err != nil {
			t.Fatalf("add %s: %v", c, err)
		}
	}

	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := currency.UnmarshalManager(data, f.env, f.table, 0)

	if !reflect.DeepEqual(restored.Currencies(), m.Currencies()) {
		t.Fatalf("expected %v, got %v", m.Currencies(), restored.Currencies())
	}
	b, err := restored.ICRC1(tokenCurrency())
	if err != nil {
		t.Fatal(err)
	}
	if !b.SupportsAllowance() || b.Metadata().Fee != 10_000 {
		t.Errorf("metadata not restored: %+v", b.Metadata())
	}
}

func TestUnmarshalManagerMalformed(t *testing.T) {
	f := newFixture(t)
	for _, data := range [][]byte{nil, []byte("not json"), []byte(`{"ck_tokens":`)} {
		m := currency.UnmarshalManager(data, f.env, f.table, 0)
		if got := m.Currencies(); len(got) != 0 {
			t.Errorf("%q: expected empty manager, got %v", data, got)
		}
	}
}

func TestAddCurrencyOverBound(t *testing.T) {
	f := newFixture(t)
	probe := currency.NewManager(f.env, f.table, 0)
	data, err := probe.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	m := currency.NewManager(f.env, f.table, len(data))
	err = m.AddCurrency(context.Background(), currency.CKToken(currency.CKUSDC))
	wantKind(t, err, currency.SerializationError)

	if got := len(m.Currencies()); got != 2 {
		t.Errorf("expected the manager unchanged, got %v", m.Currencies())
	}
	if _, err := m.MarshalBinary(); err != nil {
		t.Errorf("manager should still encode: %v", err)
	}
}

func TestBytesDegradesToEmpty(t *testing.T) {
	f := newFixture(t)
	m := currency.NewManager(f.env, f.table, 10)

	restored := currency.UnmarshalManager(m.Bytes(), f.env, f.table, 0)
	if got := restored.Currencies(); len(got) != 0 {
		t.Fatalf("expected empty manager, got %v", got)
	}
}

func TestBalanceRoutesByTag(t *testing.T) {
	f := newFixture(t)
	f.icp.SetBalance("alice", big.NewInt(700))
	f.ckbtc.SetBalance("alice", big.NewInt(30))
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()

	icp, err := m.Balance(ctx, currency.ICP(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	btc, err := m.Balance(ctx, currency.BTC(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if icp.Big().Int64() != 700 || btc.Big().Int64() != 30 {
		t.Errorf("expected 700/30, got %s/%s", icp, btc)
	}
}

func TestWithdrawRakeMatchesWithdraw(t *testing.T) {
	f := newFixture(t)
	f.icp.SetBalance(custodyID, big.NewInt(10_000))
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()

	if err := m.Withdraw(ctx, currency.ICP(), "alice", 1_000); err != nil {
		t.Fatal(err)
	}
	if err := m.WithdrawRake(ctx, currency.ICP(), "alice", 1_000); err != nil {
		t.Fatal(err)
	}

	if len(f.icp.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(f.icp.Transfers))
	}
	if !reflect.DeepEqual(f.icp.Transfers[0].To, f.icp.Transfers[1].To) ||
		f.icp.Transfers[0].Amount.Cmp(f.icp.Transfers[1].Amount) != 0 {
		t.Errorf("rake transfer differs: %+v vs %+v", f.icp.Transfers[0], f.icp.Transfers[1])
	}
	if got := f.icp.BalanceOfOwner("alice").Int64(); got != 1_800 {
		t.Errorf("expected alice to receive 1800, got %d", got)
	}
}

func TestDepositRecordsTimestampAfterCall(t *testing.T) {
	f := newFixture(t)
	f.icp.SetBalance("alice", big.NewInt(1_000))
	f.icp.Approve("alice", custodyID, 500, nil)
	m := currency.NewManager(f.env, f.table, 0)
	store := txstate.New(0)

	before := time.Now()
	if err := m.Deposit(context.Background(), store, currency.ICP(), "alice", 400); err != nil {
		t.Fatal(err)
	}

	ids := store.IDs()
	if len(ids) != 1 {
		t.Fatalf("expected 1 record, got %v", ids)
	}
	rec, err := txstate.ParseRecord(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if rec.Family != "ICP" || rec.From != "alice" || rec.Index != "0" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Timestamp.Before(before) {
		t.Errorf("record timestamp %v before call %v", rec.Timestamp, before)
	}
	if got := f.icp.BalanceOfOwner(custodyID).Int64(); got != 400 {
		t.Errorf("expected custody balance 400, got %d", got)
	}
}

func TestAddCurrencyOneBackendPerSymbol(t *testing.T) {
	f := newFixture(t)
	f.addToken("ICRC-1", "ICRC-2")
	other := mock.NewLedger("Other Token", "TOK", 6, 1, "ICRC-1", "ICRC-2")
	f.dialer.AddLedger("other-tok-cai", other)
	m := currency.NewManager(f.env, f.table, 0)
	ctx := context.Background()

	if err := m.AddCurrency(ctx, tokenCurrency()); err != nil {
		t.Fatal(err)
	}
	if err := m.AddCurrency(ctx, currency.ICRC1(currency.NewToken("other-tok-cai", "", 0))); err != nil {
		t.Fatalf("same symbol should be a no-op, got %v", err)
	}

	got := m.Currencies()
	if len(got) != 3 || got[2].Token.LedgerID != tokenLedger {
		t.Fatalf("expected ICP, BTC and the first TOK ledger, got %v", got)
	}
	if _, err := m.Backend(currency.ICRC1(currency.NewToken("other-tok-cai", "TOK", 6))); !errors.Is(err, currency.ErrWalletNotSet) {
		t.Errorf("expected second TOK ledger to stay unconfigured, got %v", err)
	}

	m.RemoveCurrency(tokenCurrency())
	if err := m.AddCurrency(ctx, currency.ICRC1(currency.NewToken("other-tok-cai", "", 0))); err != nil {
		t.Fatal(err)
	}
	if len(m.Currencies()) != 3 {
		t.Errorf("expected the symbol to be free after removal, got %v", m.Currencies())
	}
}

// cancellingLedger cancels the caller once a call has been executed remotely,
// and fails the call when the context it was given is cancelled by then
type cancellingLedger struct {
	*mock.Ledger
	cancel context.CancelFunc
}

func (l *cancellingLedger) TransferFrom(ctx context.Context, args ledger.TransferFromArgs) (*big.Int, error) {
	index, err := l.Ledger.TransferFrom(ctx, args)
	l.cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return index, err
}

func (l *cancellingLedger) Transfer(ctx context.Context, args ledger.TransferArgs) (*big.Int, error) {
	index, err := l.Ledger.Transfer(ctx, args)
	l.cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return index, err
}

func TestRemoteCallsOutliveCallerCancel(t *testing.T) {
	f := newFixture(t)
	f.icp.SetBalance("alice", big.NewInt(10_000))
	f.icp.SetBalance(custodyID, big.NewInt(10_000))
	f.icp.Approve("alice", custodyID, 5_000, nil)
	m := currency.NewManager(f.env, f.table, 0)
	store := txstate.New(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.dialer.AddLedger(f.table.ICP.LedgerID, &cancellingLedger{Ledger: f.icp, cancel: cancel})

	if err := m.Deposit(ctx, store, currency.ICP(), "alice", 1_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected the executed pull to be recorded, got %v", store.IDs())
	}

	if err := m.Withdraw(ctx, currency.ICP(), "bob", 1_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.icp.BalanceOfOwner("bob").Int64(); got != 900 {
		t.Errorf("expected bob to receive 900, got %d", got)
	}
}
