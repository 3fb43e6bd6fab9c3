package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/storage"
	"github.com/AlexZinkM/currency-custody/internal/txstate"

	"lukechampine.com/uint128"
)

// Persister writes the state blobs in one transaction
type Persister interface {
	SaveAll(ctx context.Context, blobs map[string][]byte) error
}

// Loader reads a state blob, nil when it was never written
type Loader interface {
	Load(ctx context.Context, key string) ([]byte, error)
}

// Limits are the encoded size bounds of the persisted state
type Limits struct {
	Manager  int
	State    int
	Registry int
}

// Service is the custody host: it owns the currency manager, the deposit store and the token registry.
// Every entry point runs under one mutex, so at most one operation is in flight.
type Service struct {
	mu       sync.Mutex
	env      *currency.Env
	manager  *currency.Manager
	store    *txstate.Store
	registry *currency.Registry
	persist  Persister
	logger   *slog.Logger
}

// New creates a service over existing state. persist may be nil for an in-memory service.
func New(env *currency.Env, manager *currency.Manager, store *txstate.Store, registry *currency.Registry, persist Persister) *Service {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		env:      env,
		manager:  manager,
		store:    store,
		registry: registry,
		persist:  persist,
		logger:   logger,
	}
}

// Load restores the service from blobs. A manager that was never saved starts with ICP and BTC.
func Load(ctx context.Context, env *currency.Env, table currency.Table, limits Limits, loader Loader, persist Persister) (*Service, error) {
	managerData, err := loader.Load(ctx, storage.KeyCurrencyManager)
	if err != nil {
		return nil, fmt.Errorf("failed to load currency manager: %w", err)
	}
	stateData, err := loader.Load(ctx, storage.KeyTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction state: %w", err)
	}
	registryData, err := loader.Load(ctx, storage.KeyTokenRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to load token registry: %w", err)
	}

	var manager *currency.Manager
	if managerData == nil {
		manager = currency.NewManager(env, table, limits.Manager)
	} else {
		manager = currency.UnmarshalManager(managerData, env, table, limits.Manager)
	}

	return New(env,
		manager,
		txstate.FromBytes(stateData, limits.State),
		currency.RegistryFromBytes(registryData, env, limits.Registry),
		persist,
	), nil
}

// save writes the state after a mutation. The mutation already happened remotely, so a failure is only logged.
func (s *Service) save(ctx context.Context) {
	if s.persist == nil {
		return
	}
	blobs := map[string][]byte{
		storage.KeyCurrencyManager: s.manager.Bytes(),
		storage.KeyTransactions:    s.store.Bytes(),
		storage.KeyTokenRegistry:   s.registry.Bytes(),
	}
	if err := s.persist.SaveAll(context.WithoutCancel(ctx), blobs); err != nil {
		s.logger.Error("failed to persist custody state", "error", err)
	}
}

// Resolve maps a currency name to its tag: well-known names first, then registered symbols and ledger ids
func (s *Service) Resolve(name string) (currency.Currency, error) {
	if c, err := currency.ParseCurrency(name); err == nil {
		return c, nil
	}
	if id, ok := s.registry.LedgerBySymbol(name); ok {
		return s.registry.ToCurrency(id)
	}
	if s.registry.IsTokenRegistered(name) {
		return s.registry.ToCurrency(name)
	}
	return currency.Currency{}, &currency.Error{Kind: currency.TokenNotRegistered, Detail: fmt.Sprintf("unknown currency %q", name)}
}

// capture records the deposit ids written during one call
type capture struct {
	rec currency.Recorder
	ids []string
}

func (c *capture) AddTransaction(id string) {
	c.ids = append(c.ids, id)
	c.rec.AddTransaction(id)
}

// Deposit pulls amount base units from the counter-party and returns the deposit record id
func (s *Service) Deposit(ctx context.Context, c currency.Currency, from string, amount uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &capture{rec: s.store}
	if err := s.manager.Deposit(ctx, rec, c, from, amount); err != nil {
		return "", err
	}
	s.save(ctx)

	var id string
	if len(rec.ids) > 0 {
		id = rec.ids[len(rec.ids)-1]
	}
	return id, nil
}

// ValidateAllowance checks that from approved at least amount base units
func (s *Service) ValidateAllowance(ctx context.Context, c currency.Currency, from string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.ValidateAllowance(ctx, c, from, amount)
}

// Withdraw pays amount minus the ledger fee to the destination
func (s *Service) Withdraw(ctx context.Context, c currency.Currency, to string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Withdraw(ctx, c, to, amount)
}

// WithdrawRake pays collected rake out to the destination
func (s *Service) WithdrawRake(ctx context.Context, c currency.Currency, to string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.WithdrawRake(ctx, c, to, amount)
}

// Balance returns owner's balance in base units
func (s *Service) Balance(ctx context.Context, c currency.Currency, owner string) (uint128.Uint128, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Balance(ctx, c, owner)
}

// AddCurrency configures a backend for c
func (s *Service) AddCurrency(ctx context.Context, c currency.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.manager.AddCurrency(ctx, c); err != nil {
		return err
	}
	s.save(ctx)
	return nil
}

// RemoveCurrency drops the backend of c
func (s *Service) RemoveCurrency(ctx context.Context, c currency.Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager.RemoveCurrency(c)
	s.save(ctx)
	s.logger.Info("currency removed", "currency", c.String())
}

// Currencies lists the configured tags
func (s *Service) Currencies() []currency.Currency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Currencies()
}

// RegisterToken caches the metadata of ledgerID and, when add is set, configures its backend
func (s *Service) RegisterToken(ctx context.Context, ledgerID string, add bool) (currency.Currency, currency.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	md, err := s.registry.RegisterToken(ctx, ledgerID)
	if err != nil {
		return currency.Currency{}, currency.Metadata{}, err
	}
	c, err := s.registry.ToCurrency(ledgerID)
	if err != nil {
		return currency.Currency{}, currency.Metadata{}, err
	}

	if add {
		if err := s.manager.AddCurrency(ctx, c); err != nil {
			// the registration itself is kept
			s.save(ctx)
			return c, md, err
		}
	}
	s.save(ctx)
	return c, md, nil
}

// Tokens lists the registered third-party tokens
func (s *Service) Tokens() []currency.RegisteredToken {
	return s.registry.Tokens()
}

// TransactionExists reports whether a deposit id was recorded
func (s *Service) TransactionExists(id string) bool {
	return s.store.TransactionExists(id)
}

// UpdateBTCBalance asks the bitcoin minter to mint newly confirmed deposits
func (s *Service) UpdateBTCBalance(ctx context.Context) ([]ledger.UTXOStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.manager.BTC()
	if err != nil {
		return nil, err
	}
	return b.UpdateBalance(ctx)
}

func (s *Service) ckToken(c currency.Currency) (*currency.CKTokenBackend, error) {
	if c.Family != currency.FamilyCKToken {
		return nil, &currency.Error{Kind: currency.OperationNotSupported, Detail: fmt.Sprintf("%s is not a wrapped ERC-20 token", c)}
	}
	return s.manager.CKToken(c.CK)
}

// MintBlockIndex finds the ledger block that minted the ERC-20 deposit ethTxHash.
// The scan only reads the minter, so it runs without holding the service lock.
func (s *Service) MintBlockIndex(ctx context.Context, c currency.Currency, ethTxHash string) (uint64, error) {
	s.mu.Lock()
	b, err := s.ckToken(c)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return b.MintBlockIndex(ctx, ethTxHash)
}

// WithdrawToAddress burns amount and asks the minter to send it to an Ethereum address
func (s *Service) WithdrawToAddress(ctx context.Context, c currency.Currency, ethAddress string, amount uint64) (currency.WithdrawalHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ckToken(c)
	if err != nil {
		return currency.WithdrawalHandle{}, err
	}
	return b.WithdrawToAddress(ctx, ethAddress, amount)
}

// WithdrawalStatus reports the progress of an ERC-20 withdrawal
func (s *Service) WithdrawalStatus(ctx context.Context, c currency.Currency, withdrawalID uint64) (currency.WithdrawalStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.ckToken(c)
	if err != nil {
		return currency.WithdrawalStatus{}, err
	}
	return b.WithdrawalStatus(ctx, withdrawalID)
}
