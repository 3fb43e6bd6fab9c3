package client

import (
	"context"
	"math/big"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// gatewayLedger is an ICRC-1/ICRC-2 ledger reached through the gateway
type gatewayLedger struct {
	g  *Gateway
	id string
}

func (l *gatewayLedger) Allowance(ctx context.Context, args ledger.AllowanceArgs) (ledger.Allowance, error) {
	var out ledger.Allowance
	err := l.g.invoke(ctx, call{canister: l.id, method: "icrc2_allowance", query: true, args: args, out: &out})
	return out, err
}

func (l *gatewayLedger) TransferFrom(ctx context.Context, args ledger.TransferFromArgs) (*big.Int, error) {
	out := new(big.Int)
	err := l.g.invoke(ctx, call{
		canister: l.id,
		method:   "icrc2_transfer_from",
		args:     args,
		out:      out,
		reject:   rejectAs[ledger.TransferError]("icrc2_transfer_from"),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *gatewayLedger) Transfer(ctx context.Context, args ledger.TransferArgs) (*big.Int, error) {
	out := new(big.Int)
	err := l.g.invoke(ctx, call{
		canister: l.id,
		method:   "icrc1_transfer",
		args:     args,
		out:      out,
		reject:   rejectAs[ledger.TransferError]("icrc1_transfer"),
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *gatewayLedger) BalanceOf(ctx context.Context, account ledger.Account) (*big.Int, error) {
	out := new(big.Int)
	if err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_balance_of", query: true, args: account, out: out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *gatewayLedger) Name(ctx context.Context) (string, error) {
	var out string
	err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_name", query: true, out: &out})
	return out, err
}

func (l *gatewayLedger) Symbol(ctx context.Context) (string, error) {
	var out string
	err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_symbol", query: true, out: &out})
	return out, err
}

func (l *gatewayLedger) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_decimals", query: true, out: &out})
	return out, err
}

func (l *gatewayLedger) Fee(ctx context.Context) (*big.Int, error) {
	out := new(big.Int)
	if err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_fee", query: true, out: out}); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *gatewayLedger) SupportedStandards(ctx context.Context) ([]ledger.StandardRecord, error) {
	var out []ledger.StandardRecord
	err := l.g.invoke(ctx, call{canister: l.id, method: "icrc1_supported_standards", query: true, out: &out})
	return out, err
}

type ownerArgs struct {
	Owner      string `json:"owner"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

// gatewayBTCMinter is the bitcoin minter reached through the gateway
type gatewayBTCMinter struct {
	g  *Gateway
	id string
}

func (m *gatewayBTCMinter) GetBTCAddress(ctx context.Context, owner string, subaccount []byte) (string, error) {
	var out string
	err := m.g.invoke(ctx, call{
		canister: m.id,
		method:   "get_btc_address",
		args:     ownerArgs{Owner: owner, Subaccount: subaccount},
		out:      &out,
	})
	return out, err
}

func (m *gatewayBTCMinter) UpdateBalance(ctx context.Context, owner string, subaccount []byte) ([]ledger.UTXOStatus, error) {
	var out []ledger.UTXOStatus
	err := m.g.invoke(ctx, call{
		canister: m.id,
		method:   "update_balance",
		args:     ownerArgs{Owner: owner, Subaccount: subaccount},
		out:      &out,
		reject:   rejectAs[ledger.UpdateBalanceError]("update_balance"),
	})
	return out, err
}

// gatewayERC20Minter is the ckERC20 minter reached through the gateway
type gatewayERC20Minter struct {
	g  *Gateway
	id string
}

func (m *gatewayERC20Minter) SmartContractAddress(ctx context.Context) (*string, error) {
	var out *string
	err := m.g.invoke(ctx, call{canister: m.id, method: "smart_contract_address", query: true, out: &out})
	return out, err
}

func (m *gatewayERC20Minter) MinterInfo(ctx context.Context) (ledger.MinterInfo, error) {
	var out ledger.MinterInfo
	err := m.g.invoke(ctx, call{canister: m.id, method: "get_minter_info", query: true, out: &out})
	return out, err
}

type eventsArgs struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
}

type eventsResult struct {
	TotalEventCount uint64         `json:"total_event_count"`
	Events          []ledger.Event `json:"events"`
}

func (m *gatewayERC20Minter) Events(ctx context.Context, start, length uint64) ([]ledger.Event, error) {
	var out eventsResult
	err := m.g.invoke(ctx, call{
		canister: m.id,
		method:   "get_events",
		query:    true,
		args:     eventsArgs{Start: start, Length: length},
		out:      &out,
	})
	return out.Events, err
}

func (m *gatewayERC20Minter) WithdrawERC20(ctx context.Context, args ledger.WithdrawERC20Args) (ledger.RetrieveERC20Request, error) {
	var out ledger.RetrieveERC20Request
	err := m.g.invoke(ctx, call{
		canister: m.id,
		method:   "withdraw_erc20",
		args:     args,
		out:      &out,
		reject:   rejectAs[ledger.WithdrawERC20Error]("withdraw_erc20"),
	})
	return out, err
}

type withdrawalSearch struct {
	ByWithdrawalID uint64 `json:"by_withdrawal_id"`
}

func (m *gatewayERC20Minter) WithdrawalStatus(ctx context.Context, withdrawalID uint64) ([]ledger.WithdrawalDetail, error) {
	var out []ledger.WithdrawalDetail
	err := m.g.invoke(ctx, call{
		canister: m.id,
		method:   "withdrawal_status",
		query:    true,
		args:     withdrawalSearch{ByWithdrawalID: withdrawalID},
		out:      &out,
	})
	return out, err
}
