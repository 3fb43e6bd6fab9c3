package config

import (
	"fmt"
	"os"

	"github.com/AlexZinkM/currency-custody/currency"

	"gopkg.in/yaml.v3"
)

// assetFile is the YAML layout of the asset table. Omitted assets keep their mainnet defaults.
type assetFile struct {
	ICP      *currency.Config           `yaml:"icp"`
	BTC      *currency.Config           `yaml:"btc"`
	CKTokens map[string]currency.Config `yaml:"ck_tokens"`
}

// LoadAssetTable reads the asset table from path. An empty path yields the mainnet table.
func LoadAssetTable(path string) (currency.Table, error) {
	table := currency.DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return currency.Table{}, fmt.Errorf("failed to read asset table: %w", err)
	}
	return ParseAssetTable(data)
}

// ParseAssetTable decodes a YAML asset table on top of the mainnet table
func ParseAssetTable(data []byte) (currency.Table, error) {
	table := currency.DefaultTable()

	var file assetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return currency.Table{}, fmt.Errorf("failed to parse asset table: %w", err)
	}

	if file.ICP != nil {
		table.ICP = *file.ICP
		table.ICP.Currency = currency.ICP()
	}
	if file.BTC != nil {
		table.BTC = *file.BTC
		table.BTC.Currency = currency.BTC()
	}
	for name, cfg := range file.CKTokens {
		sym, err := currency.ParseCKSymbol(name)
		if err != nil {
			return currency.Table{}, fmt.Errorf("invalid asset table: %w", err)
		}
		cfg.Currency = currency.CKToken(sym)
		table.CKTokens[sym] = cfg
	}

	if err := ValidateAssetTable(table); err != nil {
		return currency.Table{}, fmt.Errorf("invalid asset table: %w", err)
	}
	return table, nil
}

// ValidateAssetTable checks every entry can reach its ledger and minter
func ValidateAssetTable(t currency.Table) error {
	if t.ICP.LedgerID == "" {
		return fmt.Errorf("icp: ledger_id is required")
	}
	if t.BTC.LedgerID == "" || t.BTC.MinterID == "" {
		return fmt.Errorf("btc: ledger_id and minter_id are required")
	}
	for sym, cfg := range t.CKTokens {
		if cfg.LedgerID == "" || cfg.MinterID == "" {
			return fmt.Errorf("%s: ledger_id and minter_id are required", sym)
		}
		if cfg.Decimals != cfg.Currency.Decimals() {
			return fmt.Errorf("%s: decimals %d, expected %d", sym, cfg.Decimals, cfg.Currency.Decimals())
		}
	}
	return nil
}
