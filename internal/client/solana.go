package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/currency-custody/internal/ledger"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

const splStandardsURL = "https://spl.solana.com/token"

// Confirmation polling. The blockhash expiry normally ends the wait well before confirmTimeout.
// Tests lower them.
var (
	confirmInterval = 2 * time.Second
	confirmTimeout  = 2 * time.Minute
)

// SPLLedger exposes one SPL token mint as a ledger.
// Approvals are SPL delegations to the custody key and never expire; transfer-from is a
// delegate-signed TransferChecked. Transfers return once confirmed, and block indexes are
// transaction signatures read as integers.
type SPLLedger struct {
	rpcClient *rpc.Client
	mint      solana.PublicKey
	symbol    string
	signer    solana.PrivateKey
	custody   solana.PublicKey
	// alias is the custody principal the backends pass as owner
	alias string

	mu       sync.Mutex
	decimals *uint8
}

// NewSPLLedger creates a ledger for mint signed by the custody key.
// signer must be the full 64-byte Solana private key.
func NewSPLLedger(rpcURL, mint, symbol string, signer []byte, alias string) (*SPLLedger, error) {
	mintPubKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address: %w", err)
	}
	if len(signer) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes")
	}
	key := solana.PrivateKey(append([]byte(nil), signer...))

	return &SPLLedger{
		rpcClient: rpc.New(rpcURL),
		mint:      mintPubKey,
		symbol:    symbol,
		signer:    key,
		custody:   key.PublicKey(),
		alias:     alias,
	}, nil
}

// ParseSPLMint splits a SYMBOL:mint entry of SPL_MINTS
func ParseSPLMint(entry string) (symbol, mint string, err error) {
	symbol, mint, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok || symbol == "" || mint == "" {
		return "", "", fmt.Errorf("invalid SPL mint %q, expected SYMBOL:mint", entry)
	}
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return "", "", fmt.Errorf("invalid SPL mint %q: %w", entry, err)
	}
	return symbol, mint, nil
}

// Mint returns the mint address, which doubles as the ledger id
func (l *SPLLedger) Mint() string { return l.mint.String() }

// CustodyAddress returns the public key of the custody signer
func (l *SPLLedger) CustodyAddress() string { return l.custody.String() }

func (l *SPLLedger) resolveOwner(owner string) (solana.PublicKey, error) {
	if owner == l.alias || owner == l.custody.String() {
		return l.custody, nil
	}
	pk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid Solana address %q: %w", owner, err)
	}
	return pk, nil
}

// tokenAccount loads the associated token account of owner; nil when it does not exist
func (l *SPLLedger) tokenAccount(ctx context.Context, owner solana.PublicKey) (solana.PublicKey, *token.Account, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	var acc token.Account
	if err := l.rpcClient.GetAccountDataInto(ctx, ata, &acc); err != nil {
		if isATANotFoundError(err) {
			return ata, nil, nil
		}
		return solana.PublicKey{}, nil, fmt.Errorf("failed to get token account: %w", err)
	}
	return ata, &acc, nil
}

// Allowance implements ledger.Ledger
func (l *SPLLedger) Allowance(ctx context.Context, args ledger.AllowanceArgs) (ledger.Allowance, error) {
	owner, err := l.resolveOwner(args.Account.Owner)
	if err != nil {
		return ledger.Allowance{}, err
	}
	spender, err := l.resolveOwner(args.Spender.Owner)
	if err != nil {
		return ledger.Allowance{}, err
	}

	_, acc, err := l.tokenAccount(ctx, owner)
	if err != nil {
		return ledger.Allowance{}, err
	}
	return ledger.Allowance{Allowance: new(big.Int).SetUint64(delegatedTo(acc, spender))}, nil
}

func delegatedTo(acc *token.Account, spender solana.PublicKey) uint64 {
	if acc == nil || acc.Delegate == nil || !acc.Delegate.Equals(spender) {
		return 0
	}
	return acc.DelegatedAmount
}

func checkArgs(amount, fee *big.Int) (uint64, error) {
	if fee != nil && fee.Sign() != 0 {
		return 0, &ledger.TransferError{Kind: ledger.BadFee, ExpectedFee: new(big.Int)}
	}
	if amount == nil || amount.Sign() <= 0 || !amount.IsUint64() {
		return 0, &ledger.TransferError{Kind: ledger.GenericError, ErrorCode: big.NewInt(1), Message: "amount must fit in 64 bits"}
	}
	return amount.Uint64(), nil
}

// TransferFrom implements ledger.Ledger. Only pulls into the custody are possible.
func (l *SPLLedger) TransferFrom(ctx context.Context, args ledger.TransferFromArgs) (*big.Int, error) {
	amount, err := checkArgs(args.Amount, args.Fee)
	if err != nil {
		return nil, err
	}
	to, err := l.resolveOwner(args.To.Owner)
	if err != nil {
		return nil, err
	}
	if !to.Equals(l.custody) {
		return nil, &ledger.TransferError{Kind: ledger.GenericError, ErrorCode: big.NewInt(2), Message: "delegate transfers must credit the custody"}
	}
	from, err := l.resolveOwner(args.From.Owner)
	if err != nil {
		return nil, err
	}

	// Check delegation and funds before paying for a transaction
	sourceATA, acc, err := l.tokenAccount(ctx, from)
	if err != nil {
		return nil, err
	}
	if delegated := delegatedTo(acc, l.custody); delegated < amount {
		return nil, &ledger.TransferError{Kind: ledger.InsufficientAllowance, Allowance: new(big.Int).SetUint64(delegated)}
	}
	if acc.Amount < amount {
		return nil, &ledger.TransferError{Kind: ledger.InsufficientFunds, Balance: new(big.Int).SetUint64(acc.Amount)}
	}

	sig, err := l.transferChecked(ctx, sourceATA, l.custody, amount)
	if err != nil {
		return nil, err
	}
	return signatureIndex(sig), nil
}

// Transfer implements ledger.Ledger; it sends from the custody's token account
func (l *SPLLedger) Transfer(ctx context.Context, args ledger.TransferArgs) (*big.Int, error) {
	amount, err := checkArgs(args.Amount, args.Fee)
	if err != nil {
		return nil, err
	}
	to, err := l.resolveOwner(args.To.Owner)
	if err != nil {
		return nil, err
	}

	sourceATA, acc, err := l.tokenAccount(ctx, l.custody)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Amount < amount {
		var have uint64
		if acc != nil {
			have = acc.Amount
		}
		return nil, &ledger.TransferError{Kind: ledger.InsufficientFunds, Balance: new(big.Int).SetUint64(have)}
	}

	sig, err := l.transferChecked(ctx, sourceATA, to, amount)
	if err != nil {
		return nil, err
	}
	return signatureIndex(sig), nil
}

// transferChecked moves amount from source to owner's token account, creating it when absent.
// The custody key pays and signs as owner or delegate of source.
func (l *SPLLedger) transferChecked(ctx context.Context, source, owner solana.PublicKey, amount uint64) (solana.Signature, error) {
	decimals, err := l.Decimals(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	destATA, destAcc, err := l.tokenAccount(ctx, owner)
	if err != nil {
		return solana.Signature{}, err
	}

	instructions := make([]solana.Instruction, 0, 2)
	if destAcc == nil {
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			l.custody, // payer
			owner,     // owner
			l.mint,    // mint
		).Build())
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amount,
		decimals,
		source,
		l.mint,
		destATA,
		l.custody,
		[]solana.PublicKey{},
	).Build())

	// Get latest blockhash (GetRecentBlockhash is deprecated, use GetLatestBlockhash)
	recent, err := l.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(l.custody))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if l.custody.Equals(key) {
			return &l.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := l.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	if err := l.awaitConfirmation(ctx, sig, recent.Value.LastValidBlockHeight); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// awaitConfirmation polls the signature until the cluster confirms it.
// A failed transaction, or one whose blockhash expired unseen, is a TransferError.
func (l *SPLLedger) awaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	deadline := time.Now().Add(confirmTimeout)
	var lastErr error
	for {
		statuses, err := l.rpcClient.GetSignatureStatuses(ctx, false, sig)
		var status *rpc.SignatureStatusesResult
		if err == nil && len(statuses.Value) > 0 {
			status = statuses.Value[0]
		}
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			lastErr = fmt.Errorf("failed to get signature status: %w", err)
		}

		switch {
		case status != nil && status.Err != nil:
			return &ledger.TransferError{
				Kind:      ledger.GenericError,
				ErrorCode: big.NewInt(3),
				Message:   fmt.Sprintf("transaction %s failed: %v", sig, status.Err),
			}
		case status != nil && (status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			status.ConfirmationStatus == rpc.ConfirmationStatusFinalized):
			return nil
		case status == nil && err == nil:
			// Not seen yet: give up once its blockhash can no longer land
			height, err := l.rpcClient.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
			if err != nil {
				lastErr = fmt.Errorf("failed to get block height: %w", err)
			} else if height > lastValidBlockHeight {
				return &ledger.TransferError{
					Kind:      ledger.GenericError,
					ErrorCode: big.NewInt(4),
					Message:   fmt.Sprintf("transaction %s expired before confirmation", sig),
				}
			}
		}

		if time.Now().After(deadline) {
			if lastErr != nil {
				return fmt.Errorf("transaction %s not confirmed after %s: %w", sig, confirmTimeout, lastErr)
			}
			return fmt.Errorf("transaction %s not confirmed after %s", sig, confirmTimeout)
		}
		if err := ledger.Sleep(ctx, confirmInterval); err != nil {
			return fmt.Errorf("stopped waiting for transaction %s: %w", sig, err)
		}
	}
}

// BalanceOf implements ledger.Ledger
func (l *SPLLedger) BalanceOf(ctx context.Context, account ledger.Account) (*big.Int, error) {
	owner, err := l.resolveOwner(account.Owner)
	if err != nil {
		return nil, err
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	balance, err := l.rpcClient.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if isATANotFoundError(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to get token account balance: %w", err)
	}
	if balance.Value == nil {
		return new(big.Int), nil
	}

	amount, ok := new(big.Int).SetString(balance.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse token balance amount %q", balance.Value.Amount)
	}
	return amount, nil
}

// Name implements ledger.Ledger
func (l *SPLLedger) Name(context.Context) (string, error) {
	return l.symbol + " (SPL)", nil
}

// Symbol implements ledger.Ledger
func (l *SPLLedger) Symbol(context.Context) (string, error) {
	return l.symbol, nil
}

// Decimals implements ledger.Ledger; the mint is queried once
func (l *SPLLedger) Decimals(ctx context.Context) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.decimals != nil {
		return *l.decimals, nil
	}

	supply, err := l.rpcClient.GetTokenSupply(ctx, l.mint, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("failed to get token supply: %w", err)
	}
	if supply.Value == nil {
		return 0, fmt.Errorf("mint %s has no supply", l.mint)
	}
	d := supply.Value.Decimals
	l.decimals = &d
	return d, nil
}

// Fee implements ledger.Ledger; SPL transfers carry no token fee
func (l *SPLLedger) Fee(context.Context) (*big.Int, error) {
	return new(big.Int), nil
}

// SupportedStandards implements ledger.Ledger
func (l *SPLLedger) SupportedStandards(context.Context) ([]ledger.StandardRecord, error) {
	return []ledger.StandardRecord{
		{Name: "ICRC-1", URL: splStandardsURL},
		{Name: "ICRC-2", URL: splStandardsURL},
	}, nil
}

// signatureIndex reads a transaction signature as an unsigned integer
func signatureIndex(sig solana.Signature) *big.Int {
	return new(big.Int).SetBytes(sig[:])
}

// SignatureFromIndex is the inverse of the block indexes returned by SPLLedger
func SignatureFromIndex(index *big.Int) (solana.Signature, error) {
	var sig solana.Signature
	if index == nil || index.Sign() < 0 || index.BitLen() > len(sig)*8 {
		return sig, errors.New("index is not a transaction signature")
	}
	index.FillBytes(sig[:])
	return sig, nil
}

// isATANotFoundError checks if error indicates that token account doesn't exist
func isATANotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}
