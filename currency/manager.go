package currency

import (
	"context"
	"encoding/json"

	"lukechampine.com/uint128"
)

// DefaultManagerMaxSize is the encoded size bound of a Manager in bytes
const DefaultManagerMaxSize = 100_000

// Manager routes operations to the backend configured for a tag.
// It is not safe for concurrent use; callers serialize entry points.
type Manager struct {
	env     *Env
	table   Table
	maxSize int

	icp         *ICPBackend
	btc         *BTCBackend
	ckTokens    []*CKTokenBackend
	icrc1Tokens []*ICRC1Backend
}

// NewManager creates a manager with the ICP and BTC backends configured
func NewManager(env *Env, table Table, maxSize int) *Manager {
	m := NewEmptyManager(env, table, maxSize)
	m.icp = NewICPBackend(env, table.ICP)
	m.btc = NewBTCBackend(env, table.BTC)
	return m
}

// NewEmptyManager creates a manager without backends
func NewEmptyManager(env *Env, table Table, maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultManagerMaxSize
	}
	return &Manager{env: env, table: table, maxSize: maxSize}
}

// Backend returns the backend configured for c
func (m *Manager) Backend(c Currency) (Backend, error) {
	switch c.Family {
	case FamilyICP:
		if m.icp != nil {
			return m.icp, nil
		}
	case FamilyBTC:
		if m.btc != nil {
			return m.btc, nil
		}
	case FamilyCKToken:
		if b := m.findCKToken(c.CK); b != nil {
			return b, nil
		}
	case FamilyICRC1:
		if b := m.findICRC1(c.Token.LedgerID); b != nil {
			return b, nil
		}
	}
	return nil, newError(WalletNotSet, nil, "no backend for %s", c)
}

func (m *Manager) findCKToken(sym CKSymbol) *CKTokenBackend {
	for _, b := range m.ckTokens {
		if b.Symbol() == sym {
			return b
		}
	}
	return nil
}

func (m *Manager) findICRC1(ledgerID string) *ICRC1Backend {
	for _, b := range m.icrc1Tokens {
		if b.LedgerID() == ledgerID {
			return b
		}
	}
	return nil
}

// Deposit pulls amount of c from the counter-party and records it in rec
func (m *Manager) Deposit(ctx context.Context, rec Recorder, c Currency, from string, amount uint64) error {
	b, err := m.Backend(c)
	if err != nil {
		return err
	}
	// A pull that was issued completes and is recorded even if the caller goes away
	return b.Deposit(context.WithoutCancel(ctx), rec, from, amount)
}

// ValidateAllowance checks the counter-party approval for amount of c
func (m *Manager) ValidateAllowance(ctx context.Context, c Currency, from string, amount uint64) error {
	b, err := m.Backend(c)
	if err != nil {
		return err
	}
	return b.ValidateAllowance(ctx, from, amount)
}

// Withdraw sends amount of c (minus the fee) to the destination
func (m *Manager) Withdraw(ctx context.Context, c Currency, to string, amount uint64) error {
	b, err := m.Backend(c)
	if err != nil {
		return err
	}
	return b.Withdraw(context.WithoutCancel(ctx), to, amount)
}

// WithdrawRake withdraws collected fees; it behaves exactly like Withdraw
func (m *Manager) WithdrawRake(ctx context.Context, c Currency, to string, amount uint64) error {
	return m.Withdraw(ctx, c, to, amount)
}

// Balance returns owner's balance of c
func (m *Manager) Balance(ctx context.Context, c Currency, owner string) (uint128.Uint128, error) {
	b, err := m.Backend(c)
	if err != nil {
		return uint128.Zero, err
	}
	return b.Balance(ctx, owner)
}

// AddCurrency configures a backend for c. Adding a configured tag is a no-op.
// Third-party tokens fetch their metadata first; on failure nothing is added.
func (m *Manager) AddCurrency(ctx context.Context, c Currency) error {
	if _, err := m.Backend(c); err == nil {
		return nil
	}

	candidate := m.clone()
	switch c.Family {
	case FamilyICP:
		candidate.icp = NewICPBackend(m.env, m.table.ICP)
	case FamilyBTC:
		candidate.btc = NewBTCBackend(m.env, m.table.BTC)
	case FamilyCKToken:
		cfg, err := m.table.Lookup(c)
		if err != nil {
			return err
		}
		candidate.ckTokens = append(candidate.ckTokens, NewCKTokenBackend(m.env, cfg))
	case FamilyICRC1:
		b, err := NewICRC1Backend(ctx, m.env, c.Token.LedgerID)
		if err != nil {
			return err
		}
		// One backend per symbol
		symbol := b.Currency().Token.Symbol
		for _, existing := range m.icrc1Tokens {
			if existing.Currency().Token.Symbol == symbol {
				m.env.logger().Warn("token symbol already configured",
					"symbol", b.Currency().Token.SymbolString(),
					"ledger_id", c.Token.LedgerID,
					"configured_ledger_id", existing.LedgerID(),
				)
				return nil
			}
		}
		candidate.icrc1Tokens = append(candidate.icrc1Tokens, b)
	default:
		return newError(OperationNotSupported, nil, "unknown currency family %s", c.Family)
	}

	if _, err := candidate.MarshalBinary(); err != nil {
		return err
	}
	*m = *candidate
	m.env.logger().Info("currency added", "currency", c.String(), "family", c.Family.String())
	return nil
}

// RemoveCurrency drops the backend of c. Removing an unknown tag is a no-op.
func (m *Manager) RemoveCurrency(c Currency) {
	switch c.Family {
	case FamilyICP:
		m.icp = nil
	case FamilyBTC:
		m.btc = nil
	case FamilyCKToken:
		kept := m.ckTokens[:0]
		for _, b := range m.ckTokens {
			if b.Symbol() != c.CK {
				kept = append(kept, b)
			}
		}
		m.ckTokens = kept
	case FamilyICRC1:
		kept := m.icrc1Tokens[:0]
		for _, b := range m.icrc1Tokens {
			if b.LedgerID() != c.Token.LedgerID {
				kept = append(kept, b)
			}
		}
		m.icrc1Tokens = kept
	}
}

// Currencies lists the configured tags in collection order
func (m *Manager) Currencies() []Currency {
	out := make([]Currency, 0, 2+len(m.ckTokens)+len(m.icrc1Tokens))
	if m.icp != nil {
		out = append(out, ICP())
	}
	if m.btc != nil {
		out = append(out, BTC())
	}
	for _, b := range m.ckTokens {
		out = append(out, b.config.Currency)
	}
	for _, b := range m.icrc1Tokens {
		out = append(out, b.Currency())
	}
	return out
}

// BTC returns the wrapped bitcoin backend
func (m *Manager) BTC() (*BTCBackend, error) {
	if m.btc == nil {
		return nil, newError(WalletNotSet, nil, "no backend for BTC")
	}
	return m.btc, nil
}

// CKToken returns the backend of a wrapped ERC-20 style token
func (m *Manager) CKToken(sym CKSymbol) (*CKTokenBackend, error) {
	if b := m.findCKToken(sym); b != nil {
		return b, nil
	}
	return nil, newError(WalletNotSet, nil, "no backend for %s", sym)
}

// ICRC1 returns the backend of a third-party token
func (m *Manager) ICRC1(c Currency) (*ICRC1Backend, error) {
	if c.Family == FamilyICRC1 {
		if b := m.findICRC1(c.Token.LedgerID); b != nil {
			return b, nil
		}
	}
	return nil, newError(WalletNotSet, nil, "no backend for %s", c)
}

func (m *Manager) clone() *Manager {
	c := *m
	c.ckTokens = append([]*CKTokenBackend(nil), m.ckTokens...)
	c.icrc1Tokens = append([]*ICRC1Backend(nil), m.icrc1Tokens...)
	return &c
}

type icrc1Snapshot struct {
	LedgerID string   `json:"ledger_id"`
	Metadata Metadata `json:"metadata"`
}

type managerSnapshot struct {
	ICP         *Config         `json:"icp,omitempty"`
	BTC         *Config         `json:"btc,omitempty"`
	CKTokens    []Config        `json:"ck_tokens"`
	ICRC1Tokens []icrc1Snapshot `json:"icrc1_tokens"`
}

// MarshalBinary encodes the configured backends.
// It fails with SerializationError when the encoding exceeds the size bound.
func (m *Manager) MarshalBinary() ([]byte, error) {
	snap := managerSnapshot{
		CKTokens:    make([]Config, 0, len(m.ckTokens)),
		ICRC1Tokens: make([]icrc1Snapshot, 0, len(m.icrc1Tokens)),
	}
	if m.icp != nil {
		cfg := m.icp.Config()
		snap.ICP = &cfg
	}
	if m.btc != nil {
		cfg := m.btc.Config()
		snap.BTC = &cfg
	}
	for _, b := range m.ckTokens {
		snap.CKTokens = append(snap.CKTokens, b.Config())
	}
	for _, b := range m.icrc1Tokens {
		snap.ICRC1Tokens = append(snap.ICRC1Tokens, icrc1Snapshot{LedgerID: b.LedgerID(), Metadata: b.Metadata()})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, newError(SerializationError, err, "failed to encode currency manager")
	}
	if len(data) > m.maxSize {
		return nil, newError(SerializationError, nil, "currency manager is %d bytes, limit %d", len(data), m.maxSize)
	}
	return data, nil
}

// UnmarshalManager decodes a manager written by MarshalBinary.
// Malformed input yields an empty manager.
func UnmarshalManager(data []byte, env *Env, table Table, maxSize int) *Manager {
	m := NewEmptyManager(env, table, maxSize)

	var snap managerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		env.logger().Error("currency manager deserialization failed, starting empty", "error", err)
		return m
	}

	if snap.ICP != nil {
		m.icp = NewICPBackend(env, *snap.ICP)
	}
	if snap.BTC != nil {
		m.btc = NewBTCBackend(env, *snap.BTC)
	}
	for _, cfg := range snap.CKTokens {
		if cfg.Currency.Family != FamilyCKToken || m.findCKToken(cfg.Currency.CK) != nil {
			continue
		}
		m.ckTokens = append(m.ckTokens, NewCKTokenBackend(env, cfg))
	}
	for _, t := range snap.ICRC1Tokens {
		if m.findICRC1(t.LedgerID) != nil {
			continue
		}
		m.icrc1Tokens = append(m.icrc1Tokens, newICRC1Backend(env, t.LedgerID, t.Metadata))
	}
	return m
}

var emptyManagerSnapshot = []byte(`{"ck_tokens":[],"icrc1_tokens":[]}`)

// Bytes encodes the manager, degrading to an encoded empty manager on failure
func (m *Manager) Bytes() []byte {
	data, err := m.MarshalBinary()
	if err != nil {
		m.env.logger().Error("currency manager serialization failed, storing empty manager", "error", err)
		return append([]byte(nil), emptyManagerSnapshot...)
	}
	return data
}
