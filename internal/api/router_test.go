package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/custody"
	"github.com/AlexZinkM/currency-custody/internal/ledger/mock"
	"github.com/AlexZinkM/currency-custody/internal/model"
	"github.com/AlexZinkM/currency-custody/internal/txstate"

	"github.com/golang-jwt/jwt/v5"
)

const custodyID = "custody-principal"

var testSecret = []byte("test-secret")

type testServer struct {
	handler http.Handler
	icp     *mock.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	table := currency.DefaultTable()
	table.ICP.Fee = 100

	dialer := mock.NewDialer()
	icp := mock.NewLedger("Internet Computer", "ICP", 8, 100, "ICRC-1", "ICRC-2")
	icp.SetCustody(custodyID)
	dialer.AddLedger(table.ICP.LedgerID, icp)
	dialer.AddBTCMinter(table.BTC.MinterID, mock.NewBTCMinter("bc1qcustody"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &currency.Env{Dialer: dialer, Custody: custodyID, Logger: logger, ScanDelay: -1}
	svc := custody.New(env, currency.NewManager(env, table, 0), txstate.New(0), currency.NewRegistry(env, 0), nil)

	h, err := SetupRouter(svc, testSecret, logger)
	if err != nil {
		t.Fatal(err)
	}
	return &testServer{handler: h, icp: icp}
}

func token(t *testing.T, secret []byte, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "operator",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSetupRouterRequiresSecret(t *testing.T) {
	env := &currency.Env{Dialer: mock.NewDialer(), Custody: custodyID}
	svc := custody.New(env, currency.NewEmptyManager(env, currency.DefaultTable(), 0), txstate.New(0), currency.NewRegistry(env, 0), nil)
	if _, err := SetupRouter(svc, nil, nil); err == nil {
		t.Errorf("expected missing secret to fail")
	}
	if _, err := SetupRouter(nil, testSecret, nil); err == nil {
		t.Errorf("expected missing service to fail")
	}
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t)
	s.icp.SetBalance(custodyID, big.NewInt(1_000_000))
	s.icp.SetBalance("alice", big.NewInt(1_000_000))
	s.icp.Approve("alice", custodyID, 1_000_000, nil)
	pay := model.PayRequest{ToAddress: "bob", Amount: "0.001"}
	deposit := model.AmountRequest{Account: "alice", Amount: "0.00001"}

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", token(t, []byte("other"), "admin"), http.StatusUnauthorized},
		{"wrong role", token(t, testSecret, "viewer"), http.StatusForbidden},
		{"admin", token(t, testSecret, "admin"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/currencies/ICP/withdraw", pay, tt.bearer)
			if rec.Code != tt.want {
				t.Errorf("withdraw: expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			rec = s.do(t, http.MethodPost, "/currencies/ICP/deposit", deposit, tt.bearer)
			if rec.Code != tt.want {
				t.Errorf("deposit: expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	if got := s.icp.BalanceOfOwner("bob"); got.Int64() != 100_000-100 {
		t.Errorf("expected one payout of 99900 e8s, got %s", got)
	}
	if got := s.icp.BalanceOfOwner("alice"); got.Int64() != 1_000_000-1_100 {
		t.Errorf("expected one pull of 1000 e8s plus fee from alice, got %s", got)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/currencies", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Errorf("expected a request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/currencies", nil)
	req.Header.Set(requestIDHeader, "3f1c3c1e-6a43-4c67-9d3e-2d7f1f1b5c11")
	out := httptest.NewRecorder()
	s.handler.ServeHTTP(out, req)
	if got := out.Header().Get(requestIDHeader); got != "3f1c3c1e-6a43-4c67-9d3e-2d7f1f1b5c11" {
		t.Errorf("expected caller's request id to be kept, got %q", got)
	}
}

func TestDepositFlow(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, testSecret, "admin")
	s.icp.SetBalance("alice", big.NewInt(1_000_000))
	s.icp.Approve("alice", custodyID, 50_000, nil)

	rec := s.do(t, http.MethodPost, "/currencies/ICP/allowance/validate", model.AmountRequest{Account: "alice", Amount: "0.0004"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/currencies/ICP/deposit", model.AmountRequest{Account: "alice", Amount: "0.0004"}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	dep := decode[model.DepositResponse](t, rec)
	if !strings.HasPrefix(dep.ID, "ICP-DEPOSIT-") {
		t.Errorf("unexpected deposit id %q", dep.ID)
	}

	rec = s.do(t, http.MethodPost, "/currencies/ICP/deposit", model.AmountRequest{Account: "alice", Amount: "1"}, admin)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402 for insufficient allowance, got %d", rec.Code)
	}
	if e := decode[model.ErrorResponse](t, rec); e.Code != string(currency.InsufficientAllowance) {
		t.Errorf("expected InsufficientAllowance code, got %+v", e)
	}

	rec = s.do(t, http.MethodGet, "/transactions?from=alice", nil, "")
	log := decode[model.LogResponse](t, rec)
	if log.Total != 1 || log.Transactions[0].ID != dep.ID {
		t.Errorf("expected the deposit in the log, got %+v", log)
	}

	rec = s.do(t, http.MethodGet, "/transactions/"+dep.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for recorded id, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/transactions/ICP-DEPOSIT-1-bob-1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/currencies/ICP/balance/"+custodyID, nil, "")
	bal := decode[model.BalanceResponse](t, rec)
	if bal.BaseUnits != "40000" || bal.Balance != "0.00040000" {
		t.Errorf("unexpected balance %+v", bal)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, testSecret, "admin")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"excess precision", "/currencies/ICP/deposit", model.AmountRequest{Account: "alice", Amount: "0.000000001"}, http.StatusBadRequest},
		{"zero amount", "/currencies/ICP/deposit", model.AmountRequest{Account: "alice", Amount: "0"}, http.StatusBadRequest},
		{"missing account", "/currencies/ICP/deposit", model.AmountRequest{Amount: "1"}, http.StatusBadRequest},
		{"unknown currency", "/currencies/DOGE/deposit", model.AmountRequest{Account: "alice", Amount: "1"}, http.StatusNotFound},
		{"wallet not set", "/currencies/ckUSDC/deposit", model.AmountRequest{Account: "alice", Amount: "1"}, http.StatusBadRequest},
		{"malformed body", "/currencies/ICP/deposit", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, admin)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := s.do(t, http.MethodGet, "/transactions?since=2026-03-02&until=2026-03-01", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted range, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/currencies/ckUSDC/withdrawals/abc", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad withdrawal id, got %d", rec.Code)
	}
}

func TestCurrencyAdministration(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, testSecret, "admin")

	rec := s.do(t, http.MethodDelete, "/currencies/BTC", nil, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[model.CurrenciesResponse](t, rec)
	if len(got.Currencies) != 1 || got.Currencies[0] != currency.ICP() {
		t.Errorf("expected only ICP, got %v", got.Currencies)
	}

	rec = s.do(t, http.MethodPost, "/currencies", model.AddCurrencyRequest{Currency: "BTC"}, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got = decode[model.CurrenciesResponse](t, rec)
	if len(got.Currencies) != 2 {
		t.Errorf("expected ICP and BTC, got %v", got.Currencies)
	}

	rec = s.do(t, http.MethodPost, "/currencies", model.AddCurrencyRequest{Currency: "BTC", LedgerID: "x"}, admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for ambiguous request, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/currencies/BTC/deposit-address", nil, "")
	addr := decode[custody.DepositAddress](t, rec)
	if addr.Address != "bc1qcustody" || addr.QRCode == "" {
		t.Errorf("unexpected deposit address %+v", addr)
	}

	rec = s.do(t, http.MethodPost, "/currencies/ICP/btc/update-balance", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for update-balance on ICP, got %d", rec.Code)
	}
}
