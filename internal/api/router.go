package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AlexZinkM/currency-custody/custody"
	_ "github.com/AlexZinkM/currency-custody/docs"
	"github.com/AlexZinkM/currency-custody/internal/handler"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(svc *custody.Service, adminSecret []byte, logger *slog.Logger) (http.Handler, error) {
	currencyHandler, err := handler.NewCurrencyHandler(svc)
	if err != nil {
		return nil, err
	}
	if len(adminSecret) == 0 {
		return nil, errors.New("admin JWT secret not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.Use(RequestLogger(logger))
	admin := AdminAuth(adminSecret)

	// Swagger UI
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Currency configuration
	r.HandleFunc("/currencies", currencyHandler.ListCurrencies).Methods(http.MethodGet)
	r.Handle("/currencies", admin(http.HandlerFunc(currencyHandler.AddCurrency))).Methods(http.MethodPost)
	r.Handle("/currencies/{currency}", admin(http.HandlerFunc(currencyHandler.RemoveCurrency))).Methods(http.MethodDelete)

	// Custody operations
	r.Handle("/currencies/{currency}/deposit", admin(http.HandlerFunc(currencyHandler.Deposit))).Methods(http.MethodPost)
	r.HandleFunc("/currencies/{currency}/allowance/validate", currencyHandler.ValidateAllowance).Methods(http.MethodPost)
	r.Handle("/currencies/{currency}/withdraw", admin(http.HandlerFunc(currencyHandler.Withdraw))).Methods(http.MethodPost)
	r.Handle("/currencies/{currency}/withdraw-rake", admin(http.HandlerFunc(currencyHandler.WithdrawRake))).Methods(http.MethodPost)
	r.HandleFunc("/currencies/{currency}/balance/{owner}", currencyHandler.GetBalance).Methods(http.MethodGet)

	// External chains
	r.HandleFunc("/currencies/{currency}/deposit-address", currencyHandler.DepositAddress).Methods(http.MethodGet)
	r.HandleFunc("/currencies/{currency}/deposit-address/custody", currencyHandler.DepositAddressForCustody).Methods(http.MethodGet)
	r.HandleFunc("/currencies/{currency}/btc/update-balance", currencyHandler.UpdateBTCBalance).Methods(http.MethodPost)
	r.HandleFunc("/currencies/{currency}/mints/{txHash}", currencyHandler.MintBlockIndex).Methods(http.MethodGet)
	r.Handle("/currencies/{currency}/withdrawals", admin(http.HandlerFunc(currencyHandler.WithdrawToAddress))).Methods(http.MethodPost)
	r.HandleFunc("/currencies/{currency}/withdrawals/{id}", currencyHandler.WithdrawalStatus).Methods(http.MethodGet)

	// Token registry
	r.Handle("/tokens", admin(http.HandlerFunc(currencyHandler.RegisterToken))).Methods(http.MethodPost)
	r.HandleFunc("/tokens", currencyHandler.ListTokens).Methods(http.MethodGet)

	// Recorded deposits
	r.HandleFunc("/transactions", currencyHandler.TransactionHistory).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}", currencyHandler.GetTransaction).Methods(http.MethodGet)

	return r, nil
}
