package currency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Family is the asset family a Currency belongs to
type Family uint8

const (
	FamilyICP Family = iota
	FamilyCKToken
	FamilyBTC
	FamilyICRC1
)

var familyNames = map[Family]string{
	FamilyICP:     "ICP",
	FamilyCKToken: "CKToken",
	FamilyBTC:     "BTC",
	FamilyICRC1:   "ICRC1",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// CKSymbol names a wrapped ERC-20 style token
type CKSymbol uint8

const (
	CKUSDC CKSymbol = iota
	CKUSDT
	CKETH
	CKBTC
)

var ckSymbolNames = map[CKSymbol]string{
	CKUSDC: "USDC",
	CKUSDT: "USDT",
	CKETH:  "ETH",
	CKBTC:  "BTC",
}

func (s CKSymbol) String() string {
	if name, ok := ckSymbolNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CKSymbol(%d)", uint8(s))
}

// ParseCKSymbol accepts USDC, USDT, ETH or BTC
func ParseCKSymbol(s string) (CKSymbol, error) {
	for sym, name := range ckSymbolNames {
		if strings.EqualFold(name, s) {
			return sym, nil
		}
	}
	return 0, fmt.Errorf("unknown ck token symbol %q", s)
}

// SymbolLen is the fixed width of a Token symbol
const SymbolLen = 8

// Token identifies a third-party ICRC-1 token
type Token struct {
	LedgerID string
	Symbol   [SymbolLen]byte
	Decimals uint8
}

// NewToken truncates symbol to 8 bytes
func NewToken(ledgerID, symbol string, decimals uint8) Token {
	t := Token{LedgerID: ledgerID, Decimals: decimals}
	copy(t.Symbol[:], symbol)
	return t
}

// SymbolString returns the symbol up to the first zero byte
func (t Token) SymbolString() string {
	end := bytes.IndexByte(t.Symbol[:], 0)
	if end < 0 {
		end = SymbolLen
	}
	return strings.ToValidUTF8(string(t.Symbol[:end]), "�")
}

// Currency is the routing tag of an asset. It is comparable and usable as a map key.
type Currency struct {
	Family Family
	CK     CKSymbol // FamilyCKToken only
	Token  Token    // FamilyICRC1 only
}

// ICP returns the native settlement token tag
func ICP() Currency { return Currency{Family: FamilyICP} }

// BTC returns the wrapped bitcoin tag
func BTC() Currency { return Currency{Family: FamilyBTC} }

// CKToken returns the tag of a wrapped ERC-20 style token
func CKToken(sym CKSymbol) Currency { return Currency{Family: FamilyCKToken, CK: sym} }

// ICRC1 returns the tag of a third-party token
func ICRC1(t Token) Currency { return Currency{Family: FamilyICRC1, Token: t} }

// Decimals returns the number of decimals of the asset
func (c Currency) Decimals() uint8 {
	switch c.Family {
	case FamilyICP, FamilyBTC:
		return 8
	case FamilyCKToken:
		switch c.CK {
		case CKETH:
			return 18
		case CKBTC:
			return 8
		default:
			return 6
		}
	case FamilyICRC1:
		return c.Token.Decimals
	}
	return 0
}

func (c Currency) String() string {
	switch c.Family {
	case FamilyICP:
		return "ICP"
	case FamilyBTC:
		return "BTC"
	case FamilyCKToken:
		return c.CK.String()
	case FamilyICRC1:
		return c.Token.SymbolString()
	}
	return c.Family.String()
}

// RecordFamily is the prefix of deposit record ids for this asset
func (c Currency) RecordFamily() string {
	switch c.Family {
	case FamilyICP:
		return "ICP"
	case FamilyBTC:
		return "CKBTC"
	case FamilyCKToken:
		return "CKERC20"
	}
	return c.Token.SymbolString()
}

// Code returns the compact numeric code of the tag (6 for every third-party token)
func (c Currency) Code() uint8 {
	switch c.Family {
	case FamilyICP:
		return 0
	case FamilyCKToken:
		return 1 + uint8(c.CK)
	case FamilyBTC:
		return 5
	}
	return 6
}

// FromCode is the inverse of Code for the well-known tags
func FromCode(code uint8) (Currency, error) {
	switch {
	case code == 0:
		return ICP(), nil
	case code >= 1 && code <= 4:
		return CKToken(CKSymbol(code - 1)), nil
	case code == 5:
		return BTC(), nil
	}
	return Currency{}, fmt.Errorf("invalid currency code %d", code)
}

// ParseCurrency parses the well-known tags by name (ICP, BTC, ckBTC, USDC, ckUSDC, ...).
// Third-party tokens are resolved through the Registry instead.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(s) {
	case "ICP":
		return ICP(), nil
	case "BTC", "CKBTC":
		return BTC(), nil
	}
	name := s
	if len(name) > 2 && strings.EqualFold(name[:2], "ck") {
		name = name[2:]
	}
	sym, err := ParseCKSymbol(name)
	if err != nil || sym == CKBTC {
		return Currency{}, fmt.Errorf("unknown currency %q", s)
	}
	return CKToken(sym), nil
}

type currencyJSON struct {
	Family   string `json:"family"`
	Symbol   string `json:"symbol,omitempty"`
	LedgerID string `json:"ledger_id,omitempty"`
	Decimals *uint8 `json:"decimals,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (c Currency) MarshalJSON() ([]byte, error) {
	out := currencyJSON{Family: c.Family.String()}
	switch c.Family {
	case FamilyCKToken:
		out.Symbol = c.CK.String()
	case FamilyICRC1:
		d := c.Token.Decimals
		out.Symbol = c.Token.SymbolString()
		out.LedgerID = c.Token.LedgerID
		out.Decimals = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Currency) UnmarshalJSON(data []byte) error {
	var in currencyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Family {
	case "ICP":
		*c = ICP()
	case "BTC":
		*c = BTC()
	case "CKToken":
		sym, err := ParseCKSymbol(in.Symbol)
		if err != nil {
			return err
		}
		*c = CKToken(sym)
	case "ICRC1":
		if in.LedgerID == "" {
			return fmt.Errorf("icrc1 currency without ledger id")
		}
		var d uint8
		if in.Decimals != nil {
			d = *in.Decimals
		}
		*c = ICRC1(NewToken(in.LedgerID, in.Symbol, d))
	default:
		return fmt.Errorf("unknown currency family %q", in.Family)
	}
	return nil
}
