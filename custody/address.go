package custody

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/AlexZinkM/currency-custody/currency"

	"github.com/skip2/go-qrcode"
)

// DepositAddress is an external-chain address that credits the custody
type DepositAddress struct {
	Address string `json:"address"`
	// QRCode is a base64 PNG of Address
	QRCode string `json:"qr_code"`
}

// DepositAddress returns where to send native bitcoin or ERC-20 tokens to credit the custody
func (s *Service) DepositAddress(ctx context.Context, c currency.Currency) (DepositAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var address string
	switch c.Family {
	case currency.FamilyBTC:
		b, err := s.manager.BTC()
		if err != nil {
			return DepositAddress{}, err
		}
		if address, err = b.DepositAddress(ctx); err != nil {
			return DepositAddress{}, err
		}
	case currency.FamilyCKToken:
		b, err := s.manager.CKToken(c.CK)
		if err != nil {
			return DepositAddress{}, err
		}
		if address, err = b.DepositAddress(ctx); err != nil {
			return DepositAddress{}, err
		}
	default:
		return DepositAddress{}, &currency.Error{Kind: currency.OperationNotSupported, Detail: fmt.Sprintf("%s has no deposit address", c)}
	}
	return withQRCode(address)
}

// DepositAddressForCustody returns the helper contract that mints ERC-20 deposits straight to the custody
func (s *Service) DepositAddressForCustody(ctx context.Context, c currency.Currency) (DepositAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.ckToken(c)
	if err != nil {
		return DepositAddress{}, err
	}
	address, err := b.DepositAddressForCustody(ctx)
	if err != nil {
		return DepositAddress{}, err
	}
	return withQRCode(address)
}

func withQRCode(address string) (DepositAddress, error) {
	qr, err := generateQRCode(address)
	if err != nil {
		return DepositAddress{}, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return DepositAddress{Address: address, QRCode: qr}, nil
}

// generateQRCode generates QR code of address in base64
func generateQRCode(address string) (string, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	// Get PNG image
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	// Encode to base64
	return base64.StdEncoding.EncodeToString(png), nil
}
