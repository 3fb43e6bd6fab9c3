// Custody server: HTTP API over the currency manager, deposit store and token registry.
// Usage: go run ./cmd/custodyd
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexZinkM/currency-custody/currency"
	"github.com/AlexZinkM/currency-custody/custody"
	"github.com/AlexZinkM/currency-custody/internal/api"
	"github.com/AlexZinkM/currency-custody/internal/client"
	"github.com/AlexZinkM/currency-custody/internal/config"
	"github.com/AlexZinkM/currency-custody/internal/crypto"
	"github.com/AlexZinkM/currency-custody/internal/ledger"
	"github.com/AlexZinkM/currency-custody/internal/ledger/mock"
	"github.com/AlexZinkM/currency-custody/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("custody server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	table, err := config.LoadAssetTable(cfg.AssetTablePath)
	if err != nil {
		return err
	}

	dialer, err := newDialer(cfg, table, logger)
	if err != nil {
		return err
	}

	// Open state database
	limits := custody.Limits{Manager: cfg.MaxManagerSize, State: cfg.MaxStateSize, Registry: cfg.MaxRegistrySize}
	store, err := storage.NewBlobStore(config.GetStateDBPath(), map[string]int{
		storage.KeyCurrencyManager: limits.Manager,
		storage.KeyTransactions:    limits.State,
		storage.KeyTokenRegistry:   limits.Registry,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &currency.Env{
		Dialer:    dialer,
		Custody:   config.GetCustodyPrincipal(),
		Logger:    logger,
		ScanDelay: cfg.MintScanDelay,
	}
	svc, err := custody.Load(ctx, env, table, limits, store, store)
	if err != nil {
		return err
	}
	logger.Info("custody state loaded",
		slog.Int("currencies", len(svc.Currencies())),
		slog.Int("tokens", len(svc.Tokens())),
	)

	router, err := api.SetupRouter(svc, config.GetAdminJWTSecret(), logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", server.Addr), slog.String("ledger_mode", cfg.LedgerMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newDialer builds the ledger dialer of LEDGER_MODE
func newDialer(cfg *config.Config, table currency.Table, logger *slog.Logger) (ledger.Dialer, error) {
	if cfg.LedgerMode == config.LedgerModeMock {
		logger.Warn("using in-memory ledgers, balances are not persisted")
		return newMockDialer(table, cfg.CustodyPrincipal), nil
	}

	gateway := client.NewGateway(cfg.GatewayURL, logger)
	if len(cfg.SPLMints) == 0 {
		return client.NewDialer(gateway), nil
	}

	spl, err := newSPLLedgers(cfg)
	if err != nil {
		return nil, err
	}
	for _, l := range spl {
		logger.Info("SPL mint routed to solana",
			slog.String("mint", l.Mint()),
			slog.String("custody", l.CustodyAddress()),
		)
	}
	return client.NewDialer(gateway, spl...), nil
}

// newSPLLedgers decrypts the custody key and creates one ledger per SPL_MINTS entry
func newSPLLedgers(cfg *config.Config) ([]*client.SPLLedger, error) {
	if err := config.PromptForPassword(); err != nil {
		return nil, err
	}
	password, err := config.GetKeyPasswordBytes()
	if err != nil {
		return nil, err
	}
	defer clear(password)

	_, keyData, err := crypto.DecryptKey(config.GetSolanaKeyFile(), password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt custody key: %w", err)
	}
	defer clear(keyData.PrivateKey)

	ledgers := make([]*client.SPLLedger, 0, len(cfg.SPLMints))
	for _, entry := range cfg.SPLMints {
		symbol, mint, err := client.ParseSPLMint(entry)
		if err != nil {
			return nil, err
		}
		l, err := client.NewSPLLedger(config.GetSolanaRPCURL(), mint, symbol, keyData.PrivateKey, cfg.CustodyPrincipal)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPL ledger %s: %w", symbol, err)
		}
		ledgers = append(ledgers, l)
	}
	return ledgers, nil
}

// newMockDialer serves every asset of the table from memory
func newMockDialer(table currency.Table, custodyPrincipal string) *mock.Dialer {
	d := mock.NewDialer()

	addLedger := func(cfg currency.Config) {
		symbol := cfg.Currency.String()
		l := mock.NewLedger(symbol, symbol, cfg.Decimals, cfg.Fee, "ICRC-1", "ICRC-2")
		l.SetCustody(custodyPrincipal)
		d.AddLedger(cfg.LedgerID, l)
	}

	addLedger(table.ICP)
	addLedger(table.BTC)
	d.AddBTCMinter(table.BTC.MinterID, mock.NewBTCMinter("bcrt1qcustodymockaddress"))
	for _, cfg := range table.CKTokens {
		addLedger(cfg)
		d.AddERC20Minter(cfg.MinterID, mock.NewERC20Minter("0x0000000000000000000000000000000000000000"))
	}
	return d
}
