package wager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// BetID identifies a single wager attempt.
type BetID struct {
	value string
}

// Game names the outcome provider a bet is played against.
type Game struct {
	value string
}

// Stake is a strictly positive wagered amount in the smallest currency unit.
type Stake struct {
	value int64
}

// Payout is a non-negative settlement amount in the smallest currency unit.
type Payout struct {
	value int64
}

// Amount is a strictly positive ledger amount in the smallest currency unit.
type Amount struct {
	value int64
}

// DetailsJSON stores opaque game-specific bet details.
type DetailsJSON struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewBetID validates and normalizes a bet id.
func NewBetID(raw string) (BetID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BetID{}, fmt.Errorf("%w: empty value", ErrInvalidBetID)
	}
	return BetID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BetID) String() string {
	return id.value
}

// NewGame validates and normalizes a game name.
func NewGame(raw string) (Game, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Game{}, fmt.Errorf("%w: empty value", ErrInvalidGame)
	}
	return Game{value: normalized}, nil
}

// MustGame is NewGame for compile-time game names; it panics on invalid input.
func MustGame(raw string) Game {
	game, err := NewGame(raw)
	if err != nil {
		panic(err)
	}
	return game
}

// String returns the normalized game name.
func (game Game) String() string {
	return game.value
}

// NewStake validates a stake and ensures it is strictly positive.
func NewStake(raw int64) (Stake, error) {
	if raw <= 0 {
		return Stake{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidStake)
	}
	return Stake{value: raw}, nil
}

// Int64 returns the stake in the smallest currency unit.
func (stake Stake) Int64() int64 {
	return stake.value
}

// NewPayout validates a payout and ensures it is non-negative.
func NewPayout(raw int64) (Payout, error) {
	if raw < 0 {
		return Payout{}, fmt.Errorf("%w: must not be negative", ErrInvalidPayout)
	}
	return Payout{value: raw}, nil
}

// Int64 returns the payout in the smallest currency unit.
func (payout Payout) Int64() int64 {
	return payout.value
}

// NewAmount validates an amount and ensures it is strictly positive.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// Int64 returns the amount in the smallest currency unit.
func (amount Amount) Int64() int64 {
	return amount.value
}

// NewDetailsJSON validates a details string (defaulting to "{}" for empty inputs).
func NewDetailsJSON(raw string) (DetailsJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return DetailsJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidDetailsJSON)
	}
	return DetailsJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (details DetailsJSON) String() string {
	return details.value
}

// IsEmpty reports whether the details carry no payload.
func (details DetailsJSON) IsEmpty() bool {
	return details.value == "" || details.value == "{}"
}

// BetStatus defines the bet lifecycle.
type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusWon     BetStatus = "won"
	BetStatusLost    BetStatus = "lost"
)

// String returns the status name.
func (status BetStatus) String() string {
	return string(status)
}

// Terminal reports whether the status ends the bet lifecycle.
func (status BetStatus) Terminal() bool {
	return status == BetStatusWon || status == BetStatusLost
}

// ParseBetStatus validates a raw bet status.
func ParseBetStatus(raw string) (BetStatus, error) {
	switch BetStatus(raw) {
	case BetStatusPending, BetStatusWon, BetStatusLost:
		return BetStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBetStatus, raw)
	}
}

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

const (
	TransactionSeed   TransactionType = "seed"
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// String returns the type name.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseTransactionType validates a raw transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(raw) {
	case TransactionSeed, TransactionCredit, TransactionDebit:
		return TransactionType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// Wallet is the authoritative balance record for one user.
type Wallet struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// Transaction is a single immutable line in a user's ledger.
type Transaction struct {
	TransactionID string
	UserID        string
	Type          TransactionType
	Amount        int64
	BalanceAfter  int64
	Reference     string
	Note          string
	CreatedAt     time.Time
}

// Bet is a single wager attempt and its settlement record.
type Bet struct {
	BetID     string
	UserID    string
	Game      string
	Stake     int64
	Status    BetStatus
	Payout    int64
	Details   string
	CreatedAt time.Time
	SettledAt *time.Time
}

// PageKey is the keyset position a listing resumes from. A zero PageKey
// starts at the newest row.
type PageKey struct {
	CreatedBefore time.Time
	IDBefore      string
}

// IsZero reports whether the key addresses the first page.
func (key PageKey) IsZero() bool {
	return key.CreatedBefore.IsZero() && key.IDBefore == ""
}

// TransactionPage is one page of a user's transaction log.
type TransactionPage struct {
	Transactions []Transaction
	NextCursor   string
}

// BetPage is one page of a user's bet history.
type BetPage struct {
	Bets       []Bet
	NextCursor string
}

// Store is the persistence contract used by Service. Mutations for one user
// are serialized by the wallet row lock taken inside WithTx; different users
// proceed in parallel.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateWallet(ctx context.Context, wallet Wallet) error
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	GetWalletForUpdate(ctx context.Context, userID string) (Wallet, error)
	UpdateWalletBalance(ctx context.Context, userID string, balance int64, at time.Time) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	ListTransactions(ctx context.Context, userID string, before PageKey, limit int) ([]Transaction, error)
	InsertBet(ctx context.Context, bet Bet) error
	GetBet(ctx context.Context, betID string) (Bet, error)
	SettleBet(ctx context.Context, betID string, from BetStatus, to BetStatus, payout int64, details string, at time.Time) error
	ListBets(ctx context.Context, userID string, before PageKey, limit int) ([]Bet, error)
}
