package wager

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

// stubStore is an in-memory Store with per-call error injection. WithTx
// serializes units of work and restores a snapshot when fn fails, matching
// the all-or-nothing contract of the real stores.
type stubStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	wallets      map[string]Wallet
	transactions []Transaction
	bets         map[string]Bet

	createWalletError      error
	getWalletError         error
	updateWalletError      error
	insertTransactionError error
	listTransactionsError  error
	insertBetError         error
	getBetError            error
	settleBetError         error
	listBetsError          error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		wallets: make(map[string]Wallet),
		bets:    make(map[string]Bet),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

type stubSnapshot struct {
	wallets      map[string]Wallet
	transactions []Transaction
	bets         map[string]Bet
}

func (store *stubStore) snapshot() stubSnapshot {
	store.mu.Lock()
	defer store.mu.Unlock()
	wallets := make(map[string]Wallet, len(store.wallets))
	for key, value := range store.wallets {
		wallets[key] = value
	}
	bets := make(map[string]Bet, len(store.bets))
	for key, value := range store.bets {
		bets[key] = value
	}
	transactions := make([]Transaction, len(store.transactions))
	copy(transactions, store.transactions)
	return stubSnapshot{wallets: wallets, transactions: transactions, bets: bets}
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.wallets = snapshot.wallets
	store.transactions = snapshot.transactions
	store.bets = snapshot.bets
}

func (store *stubStore) CreateWallet(_ context.Context, wallet Wallet) error {
	if store.createWalletError != nil {
		return store.createWalletError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, exists := store.wallets[wallet.UserID]; exists {
		return ErrWalletExists
	}
	store.wallets[wallet.UserID] = wallet
	return nil
}

func (store *stubStore) GetWallet(_ context.Context, userID string) (Wallet, error) {
	if store.getWalletError != nil {
		return Wallet{}, store.getWalletError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	wallet, exists := store.wallets[userID]
	if !exists {
		return Wallet{}, ErrWalletNotFound
	}
	return wallet, nil
}

func (store *stubStore) GetWalletForUpdate(ctx context.Context, userID string) (Wallet, error) {
	return store.GetWallet(ctx, userID)
}

func (store *stubStore) UpdateWalletBalance(_ context.Context, userID string, balance int64, at time.Time) error {
	if store.updateWalletError != nil {
		return store.updateWalletError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	wallet, exists := store.wallets[userID]
	if !exists {
		return ErrWalletNotFound
	}
	wallet.Balance = balance
	wallet.UpdatedAt = at
	store.wallets[userID] = wallet
	return nil
}

func (store *stubStore) InsertTransaction(_ context.Context, transaction Transaction) error {
	if store.insertTransactionError != nil {
		return store.insertTransactionError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.transactions = append(store.transactions, transaction)
	return nil
}

func (store *stubStore) ListTransactions(_ context.Context, userID string, before PageKey, limit int) ([]Transaction, error) {
	if store.listTransactionsError != nil {
		return nil, store.listTransactionsError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Transaction, 0, limit)
	for _, transaction := range store.transactions {
		if transaction.UserID != userID {
			continue
		}
		if !keysetAccepts(before, transaction.CreatedAt, transaction.TransactionID) {
			continue
		}
		matched = append(matched, transaction)
	}
	sortNewestFirst(matched, func(transaction Transaction) (time.Time, string) {
		return transaction.CreatedAt, transaction.TransactionID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) InsertBet(_ context.Context, bet Bet) error {
	if store.insertBetError != nil {
		return store.insertBetError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.bets[bet.BetID] = bet
	return nil
}

func (store *stubStore) GetBet(_ context.Context, betID string) (Bet, error) {
	if store.getBetError != nil {
		return Bet{}, store.getBetError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	bet, exists := store.bets[betID]
	if !exists {
		return Bet{}, ErrBetNotFound
	}
	return bet, nil
}

func (store *stubStore) SettleBet(_ context.Context, betID string, from BetStatus, to BetStatus, payout int64, details string, at time.Time) error {
	if store.settleBetError != nil {
		return store.settleBetError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	bet, exists := store.bets[betID]
	if !exists {
		return ErrBetNotFound
	}
	if bet.Status != from {
		return ErrBetSettled
	}
	settledAt := at
	bet.Status = to
	bet.Payout = payout
	bet.Details = details
	bet.SettledAt = &settledAt
	store.bets[betID] = bet
	return nil
}

func (store *stubStore) ListBets(_ context.Context, userID string, before PageKey, limit int) ([]Bet, error) {
	if store.listBetsError != nil {
		return nil, store.listBetsError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := make([]Bet, 0, limit)
	for _, bet := range store.bets {
		if bet.UserID != userID {
			continue
		}
		if !keysetAccepts(before, bet.CreatedAt, bet.BetID) {
			continue
		}
		matched = append(matched, bet)
	}
	sortNewestFirst(matched, func(bet Bet) (time.Time, string) {
		return bet.CreatedAt, bet.BetID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) mustWallet(test *testing.T, userID UserID) Wallet {
	test.Helper()
	wallet, err := store.GetWallet(context.Background(), userID.String())
	if err != nil {
		test.Fatalf("wallet lookup: %v", err)
	}
	return wallet
}

func (store *stubStore) mustBet(test *testing.T, betID string) Bet {
	test.Helper()
	bet, err := store.GetBet(context.Background(), betID)
	if err != nil {
		test.Fatalf("bet lookup: %v", err)
	}
	return bet
}

func (store *stubStore) transactionsOfType(userID UserID, transactionType TransactionType) []Transaction {
	store.mu.Lock()
	defer store.mu.Unlock()
	matched := []Transaction{}
	for _, transaction := range store.transactions {
		if transaction.UserID == userID.String() && transaction.Type == transactionType {
			matched = append(matched, transaction)
		}
	}
	return matched
}

func keysetAccepts(before PageKey, createdAt time.Time, id string) bool {
	if before.IsZero() {
		return true
	}
	if createdAt.Before(before.CreatedBefore) {
		return true
	}
	return createdAt.Equal(before.CreatedBefore) && id < before.IDBefore
}

func sortNewestFirst[Record any](records []Record, key func(Record) (time.Time, string)) {
	sort.Slice(records, func(i, j int) bool {
		leftTime, leftID := key(records[i])
		rightTime, rightID := key(records[j])
		if !leftTime.Equal(rightTime) {
			return leftTime.After(rightTime)
		}
		return leftID > rightID
	})
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	clock := newTestClock()
	allOptions := append([]ServiceOption{WithSeedSource(fixedSeedSource)}, options...)
	service, err := NewService(store, clock, allOptions...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

const testSeedValue = "deadbeefcafe0123"

func fixedSeedSource() (string, error) {
	return testSeedValue, nil
}

// newTestClock increments a microsecond per call so createdAt keysets stay
// strictly ordered.
func newTestClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Microsecond)
		return current
	}
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustGame(test *testing.T, raw string) Game {
	test.Helper()
	game, err := NewGame(raw)
	if err != nil {
		test.Fatalf("game: %v", err)
	}
	return game
}

func mustStake(test *testing.T, raw int64) Stake {
	test.Helper()
	stake, err := NewStake(raw)
	if err != nil {
		test.Fatalf("stake: %v", err)
	}
	return stake
}

func mustPayout(test *testing.T, raw int64) Payout {
	test.Helper()
	payout, err := NewPayout(raw)
	if err != nil {
		test.Fatalf("payout: %v", err)
	}
	return payout
}

func mustAmount(test *testing.T, raw int64) Amount {
	test.Helper()
	amount, err := NewAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustDetails(test *testing.T, raw string) DetailsJSON {
	test.Helper()
	details, err := NewDetailsJSON(raw)
	if err != nil {
		test.Fatalf("details: %v", err)
	}
	return details
}

func mustBetID(test *testing.T, raw string) BetID {
	test.Helper()
	betID, err := NewBetID(raw)
	if err != nil {
		test.Fatalf("bet id: %v", err)
	}
	return betID
}

func mustSeedWallet(test *testing.T, service *Service, userID UserID, balance int64) {
	test.Helper()
	if err := service.SeedWallet(context.Background(), userID, mustAmount(test, balance), "Initial play credits"); err != nil {
		test.Fatalf("seed wallet: %v", err)
	}
}

func mustPlaceBet(test *testing.T, service *Service, userID UserID, game string, stake int64, details string) Bet {
	test.Helper()
	bet, err := service.PlaceBet(context.Background(), userID, mustGame(test, game), mustStake(test, stake), mustDetails(test, details))
	if err != nil {
		test.Fatalf("place bet: %v", err)
	}
	return bet
}
