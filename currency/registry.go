package currency

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// DefaultRegistryMaxSize is the encoded size bound of a Registry in bytes
const DefaultRegistryMaxSize = 10_000_000

// RegisteredToken pairs a ledger principal with its metadata
type RegisteredToken struct {
	LedgerID string   `json:"ledger_id"`
	Metadata Metadata `json:"metadata"`
}

// Registry caches metadata of third-party tokens by ledger principal and by symbol
type Registry struct {
	mu       sync.RWMutex
	env      *Env
	maxSize  int
	tokens   map[string]Metadata
	bySymbol map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry(env *Env, maxSize int) *Registry {
	if maxSize <= 0 {
		maxSize = DefaultRegistryMaxSize
	}
	return &Registry{
		env:      env,
		maxSize:  maxSize,
		tokens:   make(map[string]Metadata),
		bySymbol: make(map[string]string),
	}
}

// RegisterToken fetches and caches the metadata of ledgerID.
// A known ledger returns the cached metadata without remote calls.
func (r *Registry) RegisterToken(ctx context.Context, ledgerID string) (Metadata, error) {
	if md, ok := r.Metadata(ledgerID); ok {
		return md, nil
	}

	md, err := FetchMetadata(ctx, r.env.Dialer, ledgerID)
	if err != nil {
		return Metadata{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have registered it while we were fetching
	if cached, ok := r.tokens[ledgerID]; ok {
		return cached, nil
	}
	r.tokens[ledgerID] = md
	r.bySymbol[md.Symbol] = ledgerID
	r.env.logger().Info("token registered", "ledger_id", ledgerID, "symbol", md.Symbol, "decimals", md.Decimals)
	return md, nil
}

// IsTokenRegistered reports whether ledgerID is cached
func (r *Registry) IsTokenRegistered(ledgerID string) bool {
	_, ok := r.Metadata(ledgerID)
	return ok
}

// IsSymbolRegistered reports whether a token with symbol is cached
func (r *Registry) IsSymbolRegistered(symbol string) bool {
	_, ok := r.LedgerBySymbol(symbol)
	return ok
}

// Metadata returns the cached metadata of ledgerID
func (r *Registry) Metadata(ledgerID string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.tokens[ledgerID]
	return md, ok
}

// LedgerBySymbol returns the ledger principal registered for symbol
func (r *Registry) LedgerBySymbol(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySymbol[symbol]
	return id, ok
}

// Tokens lists the registered tokens ordered by ledger principal
func (r *Registry) Tokens() []RegisteredToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredToken, 0, len(r.tokens))
	for id, md := range r.tokens {
		out = append(out, RegisteredToken{LedgerID: id, Metadata: md})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out
}

// ToCurrency maps a registered ledger to its tag. Well-known symbols map to their own tags.
func (r *Registry) ToCurrency(ledgerID string) (Currency, error) {
	md, ok := r.Metadata(ledgerID)
	if !ok {
		return Currency{}, newError(TokenNotRegistered, nil, "ledger %s is not registered", ledgerID)
	}
	switch md.Symbol {
	case "ICP":
		return ICP(), nil
	case "ckBTC":
		return BTC(), nil
	case "ckETH":
		return CKToken(CKETH), nil
	case "ckUSDC":
		return CKToken(CKUSDC), nil
	case "ckUSDT":
		return CKToken(CKUSDT), nil
	}
	return ICRC1(NewToken(ledgerID, md.Symbol, md.Decimals)), nil
}

type registrySnapshot struct {
	Tokens           map[string]Metadata `json:"tokens"`
	SymbolToCanister map[string]string   `json:"symbol_to_canister"`
}

// MarshalBinary encodes the registry, failing when the encoding exceeds the size bound
func (r *Registry) MarshalBinary() ([]byte, error) {
	r.mu.RLock()
	data, err := json.Marshal(registrySnapshot{Tokens: r.tokens, SymbolToCanister: r.bySymbol})
	r.mu.RUnlock()
	if err != nil {
		return nil, newError(SerializationError, err, "failed to encode token registry")
	}
	if len(data) > r.maxSize {
		return nil, newError(SerializationError, nil, "token registry is %d bytes, limit %d", len(data), r.maxSize)
	}
	return data, nil
}

// Bytes encodes the registry, degrading to an encoded empty registry on failure
func (r *Registry) Bytes() []byte {
	data, err := r.MarshalBinary()
	if err != nil {
		r.env.logger().Error("token registry serialization failed, storing empty registry", "error", err)
		return []byte(`{"tokens":{},"symbol_to_canister":{}}`)
	}
	return data
}

// RegistryFromBytes decodes a registry; malformed input yields an empty registry
func RegistryFromBytes(data []byte, env *Env, maxSize int) *Registry {
	r := NewRegistry(env, maxSize)
	if len(data) == 0 {
		return r
	}
	var snap registrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		env.logger().Error("token registry deserialization failed, starting empty", "error", err)
		return r
	}
	for id, md := range snap.Tokens {
		r.tokens[id] = md
	}
	for sym, id := range snap.SymbolToCanister {
		r.bySymbol[sym] = id
	}
	return r
}
