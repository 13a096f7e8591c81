package gormstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mverkhovyn/wagerhouse/pkg/wager"
	"gorm.io/gorm"
)

func newTestStore(test *testing.T) *Store {
	test.Helper()
	// A file-backed database: every pooled connection must see the same
	// schema, which :memory: does not guarantee.
	path := filepath.Join(test.TempDir(), "wager.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func mustCreateWallet(test *testing.T, store *Store, userID string, balance int64) {
	test.Helper()
	err := store.CreateWallet(context.Background(), wager.Wallet{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		test.Fatalf("create wallet: %v", err)
	}
}

func mustInsertBet(test *testing.T, store *Store, bet wager.Bet) {
	test.Helper()
	if err := store.InsertBet(context.Background(), bet); err != nil {
		test.Fatalf("insert bet: %v", err)
	}
}

func TestCreateWalletDuplicateMapsToWalletExists(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	mustCreateWallet(test, store, "user-1", 1000)

	err := store.CreateWallet(context.Background(), wager.Wallet{
		UserID:    "user-1",
		Balance:   500,
		UpdatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, wager.ErrWalletExists) {
		test.Fatalf("expected ErrWalletExists, got %v", err)
	}
	wallet, err := store.GetWallet(context.Background(), "user-1")
	if err != nil {
		test.Fatalf("get wallet: %v", err)
	}
	if wallet.Balance != 1000 {
		test.Fatalf("expected original balance 1000, got %d", wallet.Balance)
	}
}

func TestGetWalletNotFound(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	if _, err := store.GetWallet(context.Background(), "ghost"); !errors.Is(err, wager.ErrWalletNotFound) {
		test.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
	if _, err := store.GetWalletForUpdate(context.Background(), "ghost"); !errors.Is(err, wager.ErrWalletNotFound) {
		test.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestUpdateWalletBalanceUnknownUserFails(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	err := store.UpdateWalletBalance(context.Background(), "ghost", 100, time.Now().UTC())
	if !errors.Is(err, wager.ErrWalletNotFound) {
		test.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	sentinel := errors.New("abort")

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore wager.Store) error {
		if err := txStore.CreateWallet(ctx, wager.Wallet{
			UserID:    "user-1",
			Balance:   1000,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel, got %v", err)
	}
	if _, err := store.GetWallet(context.Background(), "user-1"); !errors.Is(err, wager.ErrWalletNotFound) {
		test.Fatalf("expected wallet rolled back, got %v", err)
	}
}

func TestSettleBetTransitionsExactlyOnce(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	now := time.Now().UTC()
	mustInsertBet(test, store, wager.Bet{
		BetID:     "bet-1",
		UserID:    "user-1",
		Game:      "dice",
		Stake:     100,
		Status:    wager.BetStatusPending,
		Details:   `{"seed":"deadbeef"}`,
		CreatedAt: now,
	})

	err := store.SettleBet(context.Background(), "bet-1", wager.BetStatusPending, wager.BetStatusWon, 190, `{"seed":"deadbeef","roll":12.5}`, now)
	if err != nil {
		test.Fatalf("first settle: %v", err)
	}
	err = store.SettleBet(context.Background(), "bet-1", wager.BetStatusPending, wager.BetStatusLost, 0, "{}", now)
	if !errors.Is(err, wager.ErrBetSettled) {
		test.Fatalf("expected ErrBetSettled, got %v", err)
	}

	bet, err := store.GetBet(context.Background(), "bet-1")
	if err != nil {
		test.Fatalf("get bet: %v", err)
	}
	if bet.Status != wager.BetStatusWon || bet.Payout != 190 || bet.SettledAt == nil {
		test.Fatalf("unexpected settled bet: %+v", bet)
	}
}

func TestGetBetNotFound(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	if _, err := store.GetBet(context.Background(), "missing"); !errors.Is(err, wager.ErrBetNotFound) {
		test.Fatalf("expected ErrBetNotFound, got %v", err)
	}
}

func TestInsertBetDefaultsEmptyDetails(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	mustInsertBet(test, store, wager.Bet{
		BetID:     "bet-1",
		UserID:    "user-1",
		Game:      "dice",
		Stake:     100,
		Status:    wager.BetStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	bet, err := store.GetBet(context.Background(), "bet-1")
	if err != nil {
		test.Fatalf("get bet: %v", err)
	}
	if bet.Details != "{}" {
		test.Fatalf("expected empty object details, got %q", bet.Details)
	}
}

func TestListTransactionsKeysetPagination(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := store.InsertTransaction(context.Background(), wager.Transaction{
			TransactionID: fmt.Sprintf("tx-%d", i),
			UserID:        "user-1",
			Type:          wager.TransactionDebit,
			Amount:        10,
			BalanceAfter:  int64(1000 - 10*(i+1)),
			Reference:     "bet:dice",
			Note:          "Bet placed",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			test.Fatalf("insert transaction %d: %v", i, err)
		}
	}

	firstPage, err := store.ListTransactions(context.Background(), "user-1", wager.PageKey{}, 3)
	if err != nil {
		test.Fatalf("first page: %v", err)
	}
	if len(firstPage) != 3 {
		test.Fatalf("expected 3 rows, got %d", len(firstPage))
	}
	if firstPage[0].TransactionID != "tx-4" {
		test.Fatalf("expected newest first, got %s", firstPage[0].TransactionID)
	}

	last := firstPage[len(firstPage)-1]
	secondPage, err := store.ListTransactions(context.Background(), "user-1", wager.PageKey{
		CreatedBefore: last.CreatedAt,
		IDBefore:      last.TransactionID,
	}, 3)
	if err != nil {
		test.Fatalf("second page: %v", err)
	}
	if len(secondPage) != 2 {
		test.Fatalf("expected 2 remaining rows, got %d", len(secondPage))
	}
	if secondPage[0].TransactionID != "tx-1" || secondPage[1].TransactionID != "tx-0" {
		test.Fatalf("unexpected second page order: %s, %s", secondPage[0].TransactionID, secondPage[1].TransactionID)
	}
}

func TestListBetsFiltersByUser(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	now := time.Now().UTC()
	mustInsertBet(test, store, wager.Bet{BetID: "bet-1", UserID: "user-1", Game: "dice", Stake: 10, Status: wager.BetStatusPending, CreatedAt: now})
	mustInsertBet(test, store, wager.Bet{BetID: "bet-2", UserID: "user-2", Game: "crash", Stake: 10, Status: wager.BetStatusPending, CreatedAt: now})

	bets, err := store.ListBets(context.Background(), "user-1", wager.PageKey{}, 10)
	if err != nil {
		test.Fatalf("list bets: %v", err)
	}
	if len(bets) != 1 || bets[0].BetID != "bet-1" {
		test.Fatalf("expected only user-1 bets, got %+v", bets)
	}
}

func TestServiceFlowAgainstSQLite(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	service, err := wager.NewService(store, func() time.Time { return time.Now().UTC() })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	userID, err := wager.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	amount, err := wager.NewAmount(1000)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	if err := service.SeedWallet(context.Background(), userID, amount, "Initial play credits"); err != nil {
		test.Fatalf("seed wallet: %v", err)
	}
	if err := service.SeedWallet(context.Background(), userID, amount, "Initial play credits"); err != nil {
		test.Fatalf("expected idempotent seed, got %v", err)
	}

	game, err := wager.NewGame("dice")
	if err != nil {
		test.Fatalf("game: %v", err)
	}
	stake, err := wager.NewStake(100)
	if err != nil {
		test.Fatalf("stake: %v", err)
	}
	details, err := wager.NewDetailsJSON(`{"chance":50}`)
	if err != nil {
		test.Fatalf("details: %v", err)
	}
	bet, err := service.PlaceBet(context.Background(), userID, game, stake, details)
	if err != nil {
		test.Fatalf("place bet: %v", err)
	}
	wallet, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if wallet.Balance != 900 {
		test.Fatalf("expected balance 900, got %d", wallet.Balance)
	}

	betID, err := wager.NewBetID(bet.BetID)
	if err != nil {
		test.Fatalf("bet id: %v", err)
	}
	payout, err := wager.NewPayout(190)
	if err != nil {
		test.Fatalf("payout: %v", err)
	}
	empty, err := wager.NewDetailsJSON("")
	if err != nil {
		test.Fatalf("empty details: %v", err)
	}
	if err := service.Settle(context.Background(), betID, wager.BetStatusWon, payout, empty); err != nil {
		test.Fatalf("settle: %v", err)
	}
	if err := service.Settle(context.Background(), betID, wager.BetStatusWon, payout, empty); !errors.Is(err, wager.ErrBetSettled) {
		test.Fatalf("expected ErrBetSettled, got %v", err)
	}

	wallet, err = service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance after settle: %v", err)
	}
	if wallet.Balance != 1090 {
		test.Fatalf("expected balance 1090, got %d", wallet.Balance)
	}

	page, err := service.ListTransactions(context.Background(), userID, "", 100)
	if err != nil {
		test.Fatalf("list transactions: %v", err)
	}
	if len(page.Transactions) != 3 {
		test.Fatalf("expected seed, debit, and credit rows, got %d", len(page.Transactions))
	}
}

func TestSettleRaceAgainstSQLiteCreditsExactlyOnce(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	// A single pooled connection serializes the racing transactions at the
	// pool; the status-guarded update then decides the winner.
	sqlDB, err := store.db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	service, err := wager.NewService(store, func() time.Time { return time.Now().UTC() })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	userID, err := wager.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	amount, err := wager.NewAmount(1000)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	if err := service.SeedWallet(context.Background(), userID, amount, "welcome"); err != nil {
		test.Fatalf("seed wallet: %v", err)
	}
	game, err := wager.NewGame("dice")
	if err != nil {
		test.Fatalf("game: %v", err)
	}
	stake, err := wager.NewStake(100)
	if err != nil {
		test.Fatalf("stake: %v", err)
	}
	details, err := wager.NewDetailsJSON(`{"chance":50}`)
	if err != nil {
		test.Fatalf("details: %v", err)
	}
	bet, err := service.PlaceBet(context.Background(), userID, game, stake, details)
	if err != nil {
		test.Fatalf("place bet: %v", err)
	}
	betID, err := wager.NewBetID(bet.BetID)
	if err != nil {
		test.Fatalf("bet id: %v", err)
	}
	payout, err := wager.NewPayout(190)
	if err != nil {
		test.Fatalf("payout: %v", err)
	}
	empty, err := wager.NewDetailsJSON("")
	if err != nil {
		test.Fatalf("empty details: %v", err)
	}

	const settlers = 8
	results := make(chan error, settlers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < settlers; i++ {
		go func() {
			start.Wait()
			results <- service.Settle(context.Background(), betID, wager.BetStatusWon, payout, empty)
		}()
	}
	start.Done()

	won, lostRace := 0, 0
	for i := 0; i < settlers; i++ {
		switch err := <-results; {
		case err == nil:
			won++
		case errors.Is(err, wager.ErrBetSettled):
			lostRace++
		default:
			test.Fatalf("unexpected settle error: %v", err)
		}
	}
	if won != 1 || lostRace != settlers-1 {
		test.Fatalf("expected 1 winner and %d losers, got %d and %d", settlers-1, won, lostRace)
	}
	wallet, err := store.GetWallet(context.Background(), "user-1")
	if err != nil {
		test.Fatalf("get wallet: %v", err)
	}
	if wallet.Balance != 1090 {
		test.Fatalf("expected balance 1090 after racing settles, got %d", wallet.Balance)
	}
}
