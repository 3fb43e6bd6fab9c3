package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g := NewGateway(srv.URL+"/", slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.RetryDelay = 0
	return g
}

func TestGatewayQueryRetries(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/canisters/ledger-1/icrc1_balance_of" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": 123456789012345678901234567890}`))
	})

	l, _ := g.Ledger("ledger-1")
	balance, err := l.BalanceOf(context.Background(), ledger.Account{Owner: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if balance.Cmp(want) != 0 {
		t.Errorf("expected %s, got %s", want, balance)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestGatewayQueryGivesUp(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{"server error retried", http.StatusBadGateway, queryAttempts},
		{"rate limit retried", http.StatusTooManyRequests, queryAttempts},
		{"client error not retried", http.StatusNotFound, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, "nope", tt.status)
			})

			l, _ := g.Ledger("ledger-1")
			_, err := l.Fee(context.Background())
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Fatalf("expected status error %d, got %v", tt.status, err)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("expected %d attempts, got %d", tt.wantHits, hits.Load())
			}
		})
	}
}

func TestGatewayUpdateNotRetried(t *testing.T) {
	var hits atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})

	l, _ := g.Ledger("ledger-1")
	_, err := l.Transfer(context.Background(), ledger.TransferArgs{To: ledger.Account{Owner: "bob"}, Amount: big.NewInt(1)})
	if err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("updates must not be retried, got %d attempts", hits.Load())
	}
}

func TestGatewayTypedRejections(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/canisters/ledger-1/icrc2_transfer_from":
			var args ledger.TransferFromArgs
			if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
				t.Errorf("bad args: %v", err)
			}
			if args.From.Owner != "alice" || args.Amount.Int64() != 500 {
				t.Errorf("unexpected args %+v", args)
			}
			w.Write([]byte(`{"err": {"kind": "InsufficientAllowance", "allowance": 400}}`))
		case "/canisters/minter-1/update_balance":
			w.Write([]byte(`{"err": {"kind": "NoNewUtxos"}}`))
		case "/canisters/minter-2/withdraw_erc20":
			w.Write([]byte(`{"err": {"kind": "TokenNotSupported"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	l, _ := g.Ledger("ledger-1")
	_, err := l.TransferFrom(ctx, ledger.TransferFromArgs{From: ledger.Account{Owner: "alice"}, Amount: big.NewInt(500)})
	te, ok := ledger.AsTransferError(err)
	if !ok || te.Kind != ledger.InsufficientAllowance || te.Allowance.Int64() != 400 {
		t.Errorf("expected typed InsufficientAllowance, got %v", err)
	}

	m, _ := g.BTCMinter("minter-1")
	_, err = m.UpdateBalance(ctx, "alice", nil)
	var ube *ledger.UpdateBalanceError
	if !errors.As(err, &ube) {
		t.Errorf("expected UpdateBalanceError, got %v", err)
	}

	em, _ := g.ERC20Minter("minter-2")
	_, err = em.WithdrawERC20(ctx, ledger.WithdrawERC20Args{})
	var we *ledger.WithdrawERC20Error
	if !errors.As(err, &we) {
		t.Errorf("expected WithdrawERC20Error, got %v", err)
	}
}

func TestGatewayNullOption(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": null}`))
	})
	m, _ := g.ERC20Minter("minter-1")
	addr, err := m.SmartContractAddress(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if addr != nil {
		t.Errorf("expected nil address, got %q", *addr)
	}
}

func TestGatewayEmptyIDs(t *testing.T) {
	g := NewGateway("http://127.0.0.1:1", nil)
	if _, err := g.Ledger(""); err == nil {
		t.Error("expected error for empty ledger id")
	}
	if _, err := g.BTCMinter(""); err == nil {
		t.Error("expected error for empty minter id")
	}
	if _, err := g.ERC20Minter(""); err == nil {
		t.Error("expected error for empty minter id")
	}
}
