package wager

import (
	"context"
	"fmt"
)

// Balance returns the current wallet record for a user.
func (service *Service) Balance(ctx context.Context, userID UserID) (Wallet, error) {
	return service.store.GetWallet(ctx, userID.String())
}

// Resolve settles a pending bet server-side: the deterministic stream is
// rebuilt from the seed persisted at PlaceBet time, the registered provider
// computes the outcome from the round parameters persisted alongside it,
// and the settlement lands in the same unit of work. The caller supplies
// neither a result nor parameters; everything the outcome depends on was
// committed before the seed could be observed.
func (service *Service) Resolve(ctx context.Context, betID BetID) (Outcome, error) {
	var resolved Bet
	var outcome Outcome
	operationError := func() error {
		if service.registry == nil {
			return fmt.Errorf("%w: no outcome provider registry", ErrInvalidServiceConfig)
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			bet, err := txStore.GetBet(ctx, betID.String())
			if err != nil {
				return err
			}
			resolved = bet
			if bet.Status != BetStatusPending {
				return ErrBetSettled
			}
			game, err := NewGame(bet.Game)
			if err != nil {
				return err
			}
			provider, err := service.registry.Provider(game)
			if err != nil {
				return err
			}
			seed, err := seedFromDetails(bet.Details)
			if err != nil {
				return err
			}
			params, err := NewDetailsJSON(bet.Details)
			if err != nil {
				return err
			}
			outcome, err = provider.Compute(NewStream(seed), bet.Stake, params)
			if err != nil {
				return err
			}
			if err := validateOutcome(outcome, bet.Stake, provider.MaxMultiplier()); err != nil {
				return err
			}
			// The settled record keeps the seed so the round stays auditable.
			finalDetails, err := injectSeed(outcome.Details, seed)
			if err != nil {
				return err
			}
			return service.settleLocked(ctx, txStore, bet, outcome.Status, outcome.Payout, finalDetails)
		})
	}()
	betRef := betID
	service.logOperation(ctx, OperationLog{
		Operation: operationResolve,
		UserID:    UserID{value: resolved.UserID},
		BetID:     &betRef,
		Game:      Game{value: resolved.Game},
		Amount:    outcome.Payout,
		Error:     operationError,
	})
	if operationError != nil {
		return Outcome{}, operationError
	}
	return outcome, nil
}

// ListTransactions pages a user's transaction log, newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, cursor string, pageSize int) (TransactionPage, error) {
	key, err := DecodeCursor(cursor)
	if err != nil {
		return TransactionPage{}, err
	}
	limit := clampPageSize(pageSize)
	transactions, err := service.store.ListTransactions(ctx, userID.String(), key, limit)
	if err != nil {
		return TransactionPage{}, err
	}
	page := TransactionPage{Transactions: transactions}
	if len(transactions) == limit {
		last := transactions[len(transactions)-1]
		page.NextCursor = EncodeCursor(PageKey{CreatedBefore: last.CreatedAt, IDBefore: last.TransactionID})
	}
	return page, nil
}

// ListBets pages a user's bet history, newest first.
func (service *Service) ListBets(ctx context.Context, userID UserID, cursor string, pageSize int) (BetPage, error) {
	key, err := DecodeCursor(cursor)
	if err != nil {
		return BetPage{}, err
	}
	limit := clampPageSize(pageSize)
	bets, err := service.store.ListBets(ctx, userID.String(), key, limit)
	if err != nil {
		return BetPage{}, err
	}
	page := BetPage{Bets: bets}
	if len(bets) == limit {
		last := bets[len(bets)-1]
		page.NextCursor = EncodeCursor(PageKey{CreatedBefore: last.CreatedAt, IDBefore: last.BetID})
	}
	return page, nil
}

// Bet returns a single bet record.
func (service *Service) Bet(ctx context.Context, betID BetID) (Bet, error) {
	return service.store.GetBet(ctx, betID.String())
}

func validateOutcome(outcome Outcome, stake int64, maxMultiplier float64) error {
	if err := validateSettlement(outcome.Status, Payout{value: outcome.Payout}); err != nil {
		return err
	}
	if float64(outcome.Payout) > float64(stake)*maxMultiplier {
		return fmt.Errorf("%w: payout %d exceeds cap for stake %d", ErrInvalidPayout, outcome.Payout, stake)
	}
	return nil
}
