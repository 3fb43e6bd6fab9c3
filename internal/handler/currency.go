package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/custody"
	"github.com/AlexZinkM/currency-custody/internal/common"
	"github.com/AlexZinkM/currency-custody/internal/model"

	"github.com/gorilla/mux"
)

// CurrencyHandler exposes the custody service over HTTP
type CurrencyHandler struct {
	svc *custody.Service
}

// NewCurrencyHandler creates a new CurrencyHandler
func NewCurrencyHandler(svc *custody.Service) (*CurrencyHandler, error) {
	if svc == nil {
		return nil, errors.New("custody service not set")
	}
	return &CurrencyHandler{svc: svc}, nil
}

// resolve reads the {currency} path variable
func (h *CurrencyHandler) resolve(w http.ResponseWriter, r *http.Request) (currency.Currency, bool) {
	c, err := h.svc.Resolve(mux.Vars(r)["currency"])
	if err != nil {
		writeError(w, r, err)
		return currency.Currency{}, false
	}
	return c, true
}

// ListCurrencies handles GET /currencies
// @Summary      List configured currencies
// @Tags         currencies
// @Produce      json
// @Success      200  {object}  model.CurrenciesResponse
// @Router       /currencies [get]
func (h *CurrencyHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.CurrenciesResponse{Currencies: h.svc.Currencies()})
}

// AddCurrency handles POST /currencies
// @Summary      Configure a currency
// @Description  Adds a well-known currency by name or a third-party token by ledger id. Adding a configured currency is a no-op.
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        request  body      model.AddCurrencyRequest  true  "Currency"
// @Success      200      {object}  model.CurrenciesResponse
// @Failure      400      {object}  model.ErrorResponse
// @Security     AdminToken
// @Router       /currencies [post]
func (h *CurrencyHandler) AddCurrency(w http.ResponseWriter, r *http.Request) {
	var req model.AddCurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	if req.LedgerID != "" {
		if _, _, err := h.svc.RegisterToken(r.Context(), req.LedgerID, true); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		c, err := h.svc.Resolve(req.Currency)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.svc.AddCurrency(r.Context(), c); err != nil {
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, model.CurrenciesResponse{Currencies: h.svc.Currencies()})
}

// RemoveCurrency handles DELETE /currencies/{currency}
// @Summary      Remove a currency
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "Currency name, token symbol or ledger id"
// @Success      200       {object}  model.CurrenciesResponse
// @Security     AdminToken
// @Router       /currencies/{currency} [delete]
func (h *CurrencyHandler) RemoveCurrency(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.svc.RemoveCurrency(r.Context(), c)
	writeJSON(w, http.StatusOK, model.CurrenciesResponse{Currencies: h.svc.Currencies()})
}

// Deposit handles POST /currencies/{currency}/deposit
// @Summary      Pull an approved deposit
// @Description  Transfers the amount from the account under its ICRC-2 approval and records the deposit
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        currency  path      string               true  "Currency"
// @Param        request   body      model.AmountRequest  true  "Depositor and amount"
// @Success      200       {object}  model.DepositResponse
// @Failure      402       {object}  model.ErrorResponse
// @Security     AdminToken
// @Router       /currencies/{currency}/deposit [post]
func (h *CurrencyHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req model.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := req.BaseUnits(c.Decimals())
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	id, err := h.svc.Deposit(r.Context(), c, req.Account, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.DepositResponse{ID: id})
}

// ValidateAllowance handles POST /currencies/{currency}/allowance/validate
// @Summary      Check an approval
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        currency  path      string               true  "Currency"
// @Param        request   body      model.AmountRequest  true  "Owner and amount"
// @Success      200       {object}  model.StatusResponse
// @Failure      402       {object}  model.ErrorResponse
// @Router       /currencies/{currency}/allowance/validate [post]
func (h *CurrencyHandler) ValidateAllowance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req model.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := req.BaseUnits(c.Decimals())
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := h.svc.ValidateAllowance(r.Context(), c, req.Account, amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Allowance is sufficient"})
}

// Withdraw handles POST /currencies/{currency}/withdraw
// @Summary      Pay out from the custody
// @Description  Sends the amount minus the ledger fee to the destination
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        currency  path      string            true  "Currency"
// @Param        request   body      model.PayRequest  true  "Payment data"
// @Success      200       {object}  model.StatusResponse
// @Security     AdminToken
// @Router       /currencies/{currency}/withdraw [post]
func (h *CurrencyHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, h.svc.Withdraw, "Withdrawal sent")
}

// WithdrawRake handles POST /currencies/{currency}/withdraw-rake
// @Summary      Pay out collected rake
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        currency  path      string            true  "Currency"
// @Param        request   body      model.PayRequest  true  "Payment data"
// @Success      200       {object}  model.StatusResponse
// @Security     AdminToken
// @Router       /currencies/{currency}/withdraw-rake [post]
func (h *CurrencyHandler) WithdrawRake(w http.ResponseWriter, r *http.Request) {
	h.pay(w, r, h.svc.WithdrawRake, "Rake withdrawal sent")
}

type payFunc func(ctx context.Context, c currency.Currency, to string, amount uint64) error

func (h *CurrencyHandler) pay(w http.ResponseWriter, r *http.Request, send payFunc, message string) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req model.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := req.BaseUnits(c.Decimals())
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	if err := send(r.Context(), c, req.ToAddress, amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: message})
}

// GetBalance handles GET /currencies/{currency}/balance/{owner}
// @Summary      Get an account balance
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "Currency"
// @Param        owner     path      string  true  "Account owner"
// @Success      200       {object}  model.BalanceResponse
// @Router       /currencies/{currency}/balance/{owner} [get]
func (h *CurrencyHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	owner := mux.Vars(r)["owner"]

	balance, err := h.svc.Balance(r.Context(), c, owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BalanceResponse{
		Currency:  c.String(),
		Owner:     owner,
		Balance:   common.FormatUint128(balance, c.Decimals()),
		BaseUnits: balance.String(),
	})
}

// DepositAddress handles GET /currencies/{currency}/deposit-address
// @Summary      Get the external deposit address
// @Description  Bitcoin address or ERC-20 deposit contract, with a base64 PNG QR code
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "BTC or a wrapped ERC-20 token"
// @Success      200       {object}  custody.DepositAddress
// @Failure      404       {object}  model.ErrorResponse
// @Router       /currencies/{currency}/deposit-address [get]
func (h *CurrencyHandler) DepositAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	addr, err := h.svc.DepositAddress(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

// DepositAddressForCustody handles GET /currencies/{currency}/deposit-address/custody
// @Summary      Get the helper contract that mints to the custody
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "Wrapped ERC-20 token"
// @Success      200       {object}  custody.DepositAddress
// @Failure      404       {object}  model.ErrorResponse
// @Router       /currencies/{currency}/deposit-address/custody [get]
func (h *CurrencyHandler) DepositAddressForCustody(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	addr, err := h.svc.DepositAddressForCustody(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

// UpdateBTCBalance handles POST /currencies/{currency}/btc/update-balance
// @Summary      Mint newly confirmed bitcoin deposits
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "BTC"
// @Success      200       {array}   ledger.UTXOStatus
// @Router       /currencies/{currency}/btc/update-balance [post]
func (h *CurrencyHandler) UpdateBTCBalance(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if c.Family != currency.FamilyBTC {
		writeError(w, r, &currency.Error{Kind: currency.OperationNotSupported, Detail: fmt.Sprintf("%s is not bitcoin", c)})
		return
	}
	statuses, err := h.svc.UpdateBTCBalance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// MintBlockIndex handles GET /currencies/{currency}/mints/{txHash}
// @Summary      Find the mint of an ERC-20 deposit
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "Wrapped ERC-20 token"
// @Param        txHash    path      string  true  "Ethereum transaction hash"
// @Success      200       {object}  model.MintResponse
// @Failure      404       {object}  model.ErrorResponse
// @Router       /currencies/{currency}/mints/{txHash} [get]
func (h *CurrencyHandler) MintBlockIndex(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	txHash := mux.Vars(r)["txHash"]

	index, err := h.svc.MintBlockIndex(r.Context(), c, txHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MintResponse{TxHash: txHash, BlockIndex: index})
}

// WithdrawToAddress handles POST /currencies/{currency}/withdrawals
// @Summary      Withdraw to an Ethereum address
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        currency  path      string            true  "Wrapped ERC-20 token"
// @Param        request   body      model.PayRequest  true  "Ethereum address and amount"
// @Success      200       {object}  model.WithdrawalResponse
// @Security     AdminToken
// @Router       /currencies/{currency}/withdrawals [post]
func (h *CurrencyHandler) WithdrawToAddress(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req model.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := req.BaseUnits(c.Decimals())
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	handle, err := h.svc.WithdrawToAddress(r.Context(), c, req.ToAddress, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.WithdrawalResponse{
		WithdrawalID:  handle.LedgerBlockIndex,
		ETHBlockIndex: handle.ETHBlockIndex,
	})
}

// WithdrawalStatus handles GET /currencies/{currency}/withdrawals/{id}
// @Summary      Get the status of an ERC-20 withdrawal
// @Tags         currencies
// @Produce      json
// @Param        currency  path      string  true  "Wrapped ERC-20 token"
// @Param        id        path      int     true  "Withdrawal id"
// @Success      200       {object}  currency.WithdrawalStatus
// @Failure      404       {object}  model.ErrorResponse
// @Router       /currencies/{currency}/withdrawals/{id} [get]
func (h *CurrencyHandler) WithdrawalStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid withdrawal id: %w", err))
		return
	}

	status, err := h.svc.WithdrawalStatus(r.Context(), c, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
