package currency

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AlexZinkM/currency-custody/internal/ledger"
)

// Mainnet principals of the well-known assets
const (
	ICPLedgerID      = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	CkERC20MinterID  = "sv3dd-oaaaa-aaaar-qacoa-cai"
	CkUSDCLedgerID   = "xevnm-gaaaa-aaaar-qafnq-cai"
	CkUSDTLedgerID   = "cngnf-vqaaa-aaaar-qag4q-cai"
	CkETHLedgerID    = "ss2fx-dyaaa-aaaar-qacoq-cai"
	CkBTCMinterID    = "mqygn-kiaaa-aaaar-qaadq-cai"
	CkBTCLedgerID    = "mxzaz-hqaaa-aaaar-qaada-cai"
	ICPDefaultFee    = 10_000 // e8s
	defaultTokenFee  = 10_000
	defaultScanDelay = 2 * time.Second
)

// Config is the immutable configuration of a well-known asset backend
type Config struct {
	MinterID string   `json:"minter_id,omitempty" yaml:"minter_id"`
	LedgerID string   `json:"ledger_id" yaml:"ledger_id"`
	Currency Currency `json:"currency" yaml:"-"`
	Decimals uint8    `json:"decimals" yaml:"decimals"`
	Fee      uint64   `json:"fee" yaml:"fee"`
}

// Table is the static configuration of every well-known asset
type Table struct {
	ICP      Config
	BTC      Config
	CKTokens map[CKSymbol]Config
}

// DefaultTable returns the mainnet configuration
func DefaultTable() Table {
	return Table{
		ICP: Config{
			LedgerID: ICPLedgerID,
			Currency: ICP(),
			Decimals: 8,
			Fee:      ICPDefaultFee,
		},
		BTC: Config{
			MinterID: CkBTCMinterID,
			LedgerID: CkBTCLedgerID,
			Currency: BTC(),
			Decimals: 8,
			Fee:      10,
		},
		CKTokens: map[CKSymbol]Config{
			CKUSDC: {
				MinterID: CkERC20MinterID,
				LedgerID: CkUSDCLedgerID,
				Currency: CKToken(CKUSDC),
				Decimals: 6,
				Fee:      10_000,
			},
			CKUSDT: {
				MinterID: CkERC20MinterID,
				LedgerID: CkUSDTLedgerID,
				Currency: CKToken(CKUSDT),
				Decimals: 6,
				Fee:      10_000,
			},
			CKETH: {
				MinterID: CkERC20MinterID,
				LedgerID: CkETHLedgerID,
				Currency: CKToken(CKETH),
				Decimals: 18,
				Fee:      2_000_000_000_000,
			},
		},
	}
}

// Lookup returns the configuration of a well-known tag
func (t Table) Lookup(c Currency) (Config, error) {
	switch c.Family {
	case FamilyICP:
		return t.ICP, nil
	case FamilyBTC:
		return t.BTC, nil
	case FamilyCKToken:
		if cfg, ok := t.CKTokens[c.CK]; ok {
			return cfg, nil
		}
	}
	return Config{}, newError(OperationNotSupported, nil, "no configuration for %s", c)
}

// Env carries the process-wide collaborators of every backend. It is never serialized.
type Env struct {
	Dialer ledger.Dialer
	// Custody is the principal holding the custodial balances
	Custody string
	Now     func() time.Time
	Logger  *slog.Logger
	// ScanDelay is the base backoff of the mint-event scan
	ScanDelay time.Duration
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) scanDelay() time.Duration {
	if e.ScanDelay < 0 {
		return 0
	}
	if e.ScanDelay == 0 {
		return defaultScanDelay
	}
	return e.ScanDelay
}

// Validate checks that the env can reach remote services
func (e *Env) Validate() error {
	if e.Dialer == nil {
		return fmt.Errorf("env: dialer not set")
	}
	if e.Custody == "" {
		return fmt.Errorf("env: custody principal not set")
	}
	return nil
}
