package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

const (
	queryAttempts     = 3
	defaultRetryDelay = 200 * time.Millisecond
	maxResponseBytes  = 8 << 20
)

// StatusError is a non-200 answer of the gateway
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Gateway is a client for an HTTP JSON gateway in front of the ledgers and minters.
// Every method is POST {base}/canisters/{id}/{method}; the answer is {"ok": ...} or {"err": ...}.
// Queries are retried, updates never are.
type Gateway struct {
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
	RetryDelay time.Duration
}

// NewGateway creates a new gateway client
func NewGateway(baseURL string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     logger,
		RetryDelay: defaultRetryDelay,
	}
}

type envelope struct {
	Ok  json.RawMessage `json:"ok"`
	Err json.RawMessage `json:"err"`
}

// call describes one canister method invocation
type call struct {
	canister string
	method   string
	query    bool
	args     any
	out      any
	// reject decodes the err payload into a typed error; nil keeps it as text
	reject func(json.RawMessage) error
}

func (g *Gateway) invoke(ctx context.Context, c call) error {
	body := []byte("{}")
	if c.args != nil {
		var err error
		body, err = json.Marshal(c.args)
		if err != nil {
			return fmt.Errorf("failed to marshal %s args: %w", c.method, err)
		}
	}

	endpoint := fmt.Sprintf("%s/canisters/%s/%s", g.baseURL, url.PathEscape(c.canister), url.PathEscape(c.method))

	attempts := 1
	if c.query {
		attempts = queryAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying gateway query", "canister", c.canister, "method", c.method, "attempt", attempt+1, "error", lastErr)
			if err := ledger.Sleep(ctx, ledger.Backoff(g.RetryDelay, attempt-1)); err != nil {
				return fmt.Errorf("%s interrupted: %w", c.method, err)
			}
		}

		env, err := g.post(ctx, endpoint, body)
		if err != nil {
			lastErr = err
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				break
			}
			continue
		}
		return decodeEnvelope(c, env)
	}

	return fmt.Errorf("failed to call %s on %s: %w", c.method, c.canister, lastErr)
}

func (g *Gateway) post(ctx context.Context, endpoint string, body []byte) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, nil
}

func decodeEnvelope(c call, env *envelope) error {
	if len(env.Err) > 0 && string(env.Err) != "null" {
		if c.reject != nil {
			return c.reject(env.Err)
		}
		return fmt.Errorf("%s rejected: %s", c.method, env.Err)
	}
	if c.out == nil {
		return nil
	}
	if len(env.Ok) == 0 {
		return fmt.Errorf("%s: empty response", c.method)
	}
	if err := json.Unmarshal(env.Ok, c.out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", c.method, err)
	}
	return nil
}

// rejectAs decodes an err payload into a fresh T
func rejectAs[T any, PT interface {
	*T
	error
}](method string) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%s rejected with undecodable error %s: %w", method, raw, err)
		}
		return PT(&v)
	}
}

// Ledger implements ledger.Dialer
func (g *Gateway) Ledger(ledgerID string) (ledger.Ledger, error) {
	if ledgerID == "" {
		return nil, errors.New("empty ledger id")
	}
	return &gatewayLedger{g: g, id: ledgerID}, nil
}

// BTCMinter implements ledger.Dialer
func (g *Gateway) BTCMinter(minterID string) (ledger.BTCMinter, error) {
	if minterID == "" {
		return nil, errors.New("empty minter id")
	}
	return &gatewayBTCMinter{g: g, id: minterID}, nil
}

// ERC20Minter implements ledger.Dialer
func (g *Gateway) ERC20Minter(minterID string) (ledger.ERC20Minter, error) {
	if minterID == "" {
		return nil, errors.New("empty minter id")
	}
	return &gatewayERC20Minter{g: g, id: minterID}, nil
}
