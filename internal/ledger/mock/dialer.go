package mock

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// Dialer hands out registered in-memory clients by principal
type Dialer struct {
	mu           sync.RWMutex
	ledgers      map[string]ledger.Ledger
	btcMinters   map[string]ledger.BTCMinter
	erc20Minters map[string]ledger.ERC20Minter
}

// NewDialer creates an empty dialer
func NewDialer() *Dialer {
	return &Dialer{
		ledgers:      make(map[string]ledger.Ledger),
		btcMinters:   make(map[string]ledger.BTCMinter),
		erc20Minters: make(map[string]ledger.ERC20Minter),
	}
}

// AddLedger registers l under id
func (d *Dialer) AddLedger(id string, l ledger.Ledger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ledgers[id] = l
}

// AddBTCMinter registers m under id
func (d *Dialer) AddBTCMinter(id string, m ledger.BTCMinter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.btcMinters[id] = m
}

// AddERC20Minter registers m under id
func (d *Dialer) AddERC20Minter(id string, m ledger.ERC20Minter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.erc20Minters[id] = m
}

// Ledger implements ledger.Dialer
func (d *Dialer) Ledger(id string) (ledger.Ledger, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.ledgers[id]
	if !ok {
		return nil, fmt.Errorf("mock: no ledger %s", id)
	}
	return l, nil
}

// BTCMinter implements ledger.Dialer
func (d *Dialer) BTCMinter(id string) (ledger.BTCMinter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.btcMinters[id]
	if !ok {
		return nil, fmt.Errorf("mock: no btc minter %s", id)
	}
	return m, nil
}

// ERC20Minter implements ledger.Dialer
func (d *Dialer) ERC20Minter(id string) (ledger.ERC20Minter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.erc20Minters[id]
	if !ok {
		return nil, fmt.Errorf("mock: no erc20 minter %s", id)
	}
	return m, nil
}

func bigU(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
