package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// BTCMinter is an in-memory bitcoin minter
type BTCMinter struct {
	mu sync.Mutex

	Address          string
	UpdateBalanceErr error
	AddressErr       error
	UTXOs            []ledger.UTXOStatus

	calls map[string]int
}

// NewBTCMinter creates a minter handing out address for every owner
func NewBTCMinter(address string) *BTCMinter {
	return &BTCMinter{Address: address, calls: make(map[string]int)}
}

// Calls returns how many times method was invoked
func (m *BTCMinter) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// GetBTCAddress implements ledger.BTCMinter
func (m *BTCMinter) GetBTCAddress(_ context.Context, owner string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get_btc_address"]++
	if m.AddressErr != nil {
		return "", m.AddressErr
	}
	if owner == "" {
		return "", fmt.Errorf("mock: empty owner")
	}
	return m.Address, nil
}

// UpdateBalance implements ledger.BTCMinter
func (m *BTCMinter) UpdateBalance(context.Context, string, []byte) ([]ledger.UTXOStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["update_balance"]++
	if m.UpdateBalanceErr != nil {
		return nil, m.UpdateBalanceErr
	}
	return m.UTXOs, nil
}

// ERC20Minter is an in-memory ckERC20 minter
type ERC20Minter struct {
	mu sync.Mutex

	ContractAddress *string
	Info            ledger.MinterInfo
	EventLog        []ledger.Event
	Withdrawals     map[uint64][]ledger.WithdrawalDetail
	WithdrawErr     error
	EventsErr       error
	// EventsAfter delays visibility of EventLog until Events was called this many times
	EventsAfter int

	nextBlock uint64
	calls     map[string]int

	Requests []ledger.WithdrawERC20Args
}

// NewERC20Minter creates a minter with the given deposit contract
func NewERC20Minter(contract string) *ERC20Minter {
	m := &ERC20Minter{
		Withdrawals: make(map[uint64][]ledger.WithdrawalDetail),
		calls:       make(map[string]int),
	}
	if contract != "" {
		m.ContractAddress = &contract
	}
	return m
}

// Calls returns how many times method was invoked
func (m *ERC20Minter) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// SmartContractAddress implements ledger.ERC20Minter
func (m *ERC20Minter) SmartContractAddress(context.Context) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["smart_contract_address"]++
	return m.ContractAddress, nil
}

// MinterInfo implements ledger.ERC20Minter
func (m *ERC20Minter) MinterInfo(context.Context) (ledger.MinterInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get_minter_info"]++
	return m.Info, nil
}

// Events implements ledger.ERC20Minter
func (m *ERC20Minter) Events(_ context.Context, start, length uint64) ([]ledger.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get_events"]++
	if m.EventsErr != nil {
		return nil, m.EventsErr
	}
	if m.calls["get_events"] <= m.EventsAfter {
		return nil, nil
	}
	if start >= uint64(len(m.EventLog)) {
		return nil, nil
	}
	end := start + length
	if end > uint64(len(m.EventLog)) {
		end = uint64(len(m.EventLog))
	}
	return m.EventLog[start:end], nil
}

// WithdrawERC20 implements ledger.ERC20Minter
func (m *ERC20Minter) WithdrawERC20(_ context.Context, args ledger.WithdrawERC20Args) (ledger.RetrieveERC20Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["withdraw_erc20"]++
	if m.WithdrawErr != nil {
		return ledger.RetrieveERC20Request{}, m.WithdrawErr
	}
	m.Requests = append(m.Requests, args)
	ckerc20 := m.nextBlock
	m.nextBlock += 2
	return ledger.RetrieveERC20Request{
		CkERC20BlockIndex: bigU(ckerc20),
		CkETHBlockIndex:   bigU(ckerc20 + 1),
	}, nil
}

// WithdrawalStatus implements ledger.ERC20Minter
func (m *ERC20Minter) WithdrawalStatus(_ context.Context, withdrawalID uint64) ([]ledger.WithdrawalDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["withdrawal_status"]++
	return m.Withdrawals[withdrawalID], nil
}
