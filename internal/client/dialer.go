package client

import (
	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// Dialer serves SPL mints from Solana and every other principal from the gateway
type Dialer struct {
	gateway ledger.Dialer
	spl     map[string]*SPLLedger
}

// NewDialer creates a dialer over gateway with the given SPL ledgers keyed by mint
func NewDialer(gateway ledger.Dialer, spl ...*SPLLedger) *Dialer {
	d := &Dialer{gateway: gateway, spl: make(map[string]*SPLLedger, len(spl))}
	for _, l := range spl {
		d.spl[l.Mint()] = l
	}
	return d
}

// Ledger implements ledger.Dialer
func (d *Dialer) Ledger(ledgerID string) (ledger.Ledger, error) {
	if l, ok := d.spl[ledgerID]; ok {
		return l, nil
	}
	return d.gateway.Ledger(ledgerID)
}

// BTCMinter implements ledger.Dialer
func (d *Dialer) BTCMinter(minterID string) (ledger.BTCMinter, error) {
	return d.gateway.BTCMinter(minterID)
}

// ERC20Minter implements ledger.Dialer
func (d *Dialer) ERC20Minter(minterID string) (ledger.ERC20Minter, error) {
	return d.gateway.ERC20Minter(minterID)
}
