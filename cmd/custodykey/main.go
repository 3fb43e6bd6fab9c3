// Creates the encrypted Solana custody key used by SPL ledgers.
// Usage: go run ./cmd/custodykey custody.ckey
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/AlexZinkM/currency-custody/internal/config"
	"github.com/AlexZinkM/currency-custody/internal/crypto"
	"github.com/AlexZinkM/currency-custody/internal/model"

	"github.com/gagliardetto/solana-go"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file%s>\n", os.Args[0], crypto.KeyFileExt)
		os.Exit(2)
	}
	path := os.Args[1]

	if err := config.PromptForPassword(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	password, err := config.GetKeyPasswordBytes()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer clear(password)

	wallet := solana.NewWallet()
	address := wallet.PublicKey().String()
	keyData := &model.KeyData{
		PrivateKey: wallet.PrivateKey,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	defer clear(keyData.PrivateKey)

	if err := crypto.EncryptKey(path, "solana", address, keyData, password); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write key:", err)
		os.Exit(1)
	}
	fmt.Println(address)
}
