package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AlexZinkM/currency-custody/internal/model"

	"github.com/gorilla/mux"
)

// RegisterToken handles POST /tokens
// @Summary      Register a third-party token
// @Description  Fetches and caches the token metadata, optionally configuring it as a currency
// @Tags         tokens
// @Accept       json
// @Produce      json
// @Param        request  body      model.RegisterTokenRequest  true  "Ledger id"
// @Success      200      {object}  model.RegisterTokenResponse
// @Security     AdminToken
// @Router       /tokens [post]
func (h *CurrencyHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.LedgerID == "" {
		writeBadRequest(w, errors.New("ledgerId is required"))
		return
	}

	c, md, err := h.svc.RegisterToken(r.Context(), req.LedgerID, req.AddCurrency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RegisterTokenResponse{Currency: c, Metadata: md})
}

// ListTokens handles GET /tokens
// @Summary      List registered tokens
// @Tags         tokens
// @Produce      json
// @Success      200  {object}  model.TokensResponse
// @Router       /tokens [get]
func (h *CurrencyHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.TokensResponse{Tokens: h.svc.Tokens()})
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Bare dates used as an upper bound cover the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	const dateLayout = "2006-01-02"
	if t, err := time.Parse(dateLayout, s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// TransactionHistory handles GET /transactions
// @Summary      List recorded deposits
// @Description  Lists recorded deposits newest first with filtering capability
// @Tags         transactions
// @Produce      json
// @Param        family  query     string  false  "Record family: ICP, CKBTC, CKERC20 or a token symbol"
// @Param        from    query     string  false  "Depositor"
// @Param        since   query     string  false  "Start date (YYYY-MM-DD or RFC 3339)"
// @Param        until   query     string  false  "End date (YYYY-MM-DD or RFC 3339)"
// @Param        limit   query     int     false  "Maximum number of transactions"
// @Success      200  {object}  model.LogResponse
// @Router       /transactions [get]
func (h *CurrencyHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	var req model.LogRequest
	q := r.URL.Query()

	// Parse date parameters
	if sinceStr := q.Get("since"); sinceStr != "" {
		t, err := parseDate(sinceStr, false)
		if err != nil {
			writeBadRequest(w, errors.New("invalid since date: use YYYY-MM-DD (e.g. 2006-01-02) or RFC 3339"))
			return
		}
		req.Since = &t
	}
	if untilStr := q.Get("until"); untilStr != "" {
		t, err := parseDate(untilStr, true)
		if err != nil {
			writeBadRequest(w, errors.New("invalid until date: use YYYY-MM-DD (e.g. 2006-01-02) or RFC 3339"))
			return
		}
		req.Until = &t
	}

	if family := q.Get("family"); family != "" {
		req.Family = &family
	}
	if from := q.Get("from"); from != "" {
		req.From = &from
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeBadRequest(w, errors.New("invalid limit"))
			return
		}
		req.Limit = &limit
	}

	// Validate
	if err := req.Validate(); err != nil {
		writeBadRequest(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.svc.GetTransactions(&req))
}

// GetTransaction handles GET /transactions/{id}
// @Summary      Get a recorded deposit
// @Tags         transactions
// @Produce      json
// @Param        id   path      string  true  "Deposit record id"
// @Success      200  {object}  model.Transaction
// @Failure      404  {object}  model.ErrorResponse
// @Router       /transactions/{id} [get]
func (h *CurrencyHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.svc.GetTransaction(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "transaction not found", Code: "TransactionNotFound"})
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
