package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

const (
	LedgerModeGateway = "gateway"
	LedgerModeMock    = "mock"
)

// Config contains all configuration parameters for the application.
// Note: Key file password is prompted at runtime and stored in memory - use GetKeyPasswordBytes()
type Config struct {
	Port             string        `envconfig:"PORT" default:"8080"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	StateDBPath      string        `envconfig:"STATE_DB_PATH" default:"custody.db"`
	GatewayURL       string        `envconfig:"GATEWAY_URL" default:"http://127.0.0.1:4943"`
	CustodyPrincipal string        `envconfig:"CUSTODY_PRINCIPAL" required:"true"`
	AssetTablePath   string        `envconfig:"ASSET_TABLE_PATH"`
	LedgerMode       string        `envconfig:"LEDGER_MODE" default:"gateway"`
	SolanaRPCURL     string        `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	SolanaKeyFile    string        `envconfig:"SOLANA_KEY_FILE"`
	SPLMints         []string      `envconfig:"SPL_MINTS"`
	AdminJWTSecret   string        `envconfig:"ADMIN_JWT_SECRET" required:"true"`
	MaxManagerSize   int           `envconfig:"MAX_MANAGER_SIZE" default:"100000"`
	MaxStateSize     int           `envconfig:"MAX_STATE_SIZE" default:"2000000"`
	MaxRegistrySize  int           `envconfig:"MAX_REGISTRY_SIZE" default:"10000000"`
	MintScanDelay    time.Duration `envconfig:"MINT_SCAN_DELAY" default:"2s"`
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	if c.LedgerMode != LedgerModeGateway && c.LedgerMode != LedgerModeMock {
		return fmt.Errorf("LEDGER_MODE must be %s or %s, got %q", LedgerModeGateway, LedgerModeMock, c.LedgerMode)
	}
	if len(c.SPLMints) > 0 && c.SolanaKeyFile == "" {
		return errors.New("SPL_MINTS requires SOLANA_KEY_FILE")
	}
	if c.MaxManagerSize <= 0 || c.MaxStateSize <= 0 || c.MaxRegistrySize <= 0 {
		return errors.New("size bounds must be positive")
	}
	if c.MintScanDelay < 0 {
		return errors.New("MINT_SCAN_DELAY must not be negative")
	}
	return nil
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	c := &Config{}
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = c
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetPort returns port from configuration
func GetPort() string {
	return Get().Port
}

// GetStateDBPath returns path to the SQLite state database
func GetStateDBPath() string {
	return Get().StateDBPath
}

// GetCustodyPrincipal returns the principal holding custodial balances
func GetCustodyPrincipal() string {
	return Get().CustodyPrincipal
}

// GetSolanaRPCURL returns Solana RPC URL from configuration
func GetSolanaRPCURL() string {
	return Get().SolanaRPCURL
}

// GetSolanaKeyFile returns path to the encrypted custody key file
func GetSolanaKeyFile() string {
	return Get().SolanaKeyFile
}

// GetAdminJWTSecret returns the HMAC secret of admin tokens
func GetAdminJWTSecret() []byte {
	return []byte(Get().AdminJWTSecret)
}

var passwordBytes []byte

// PromptForPassword prompts the user for the key file password in the terminal.
// The password is read without echoing (hidden input) and stored in memory.
// Call this at startup before the server begins handling requests.
func PromptForPassword() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("stdin is not a terminal: run the app interactively to enter password")
	}
	fmt.Fprint(os.Stderr, "Enter custody key password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("password cannot be empty")
	}

	SetPassword(raw)
	clear(raw)
	return nil
}

// SetPassword stores a copy of password in memory
func SetPassword(password []byte) {
	passwordBytes = make([]byte, len(password))
	copy(passwordBytes, password)
}

// GetKeyPasswordBytes returns the password stored in memory (from PromptForPassword).
// Returns an error if the password was not set.
// Caller must zero the returned slice after use for security.
func GetKeyPasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("password not set: call PromptForPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
