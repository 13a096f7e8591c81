package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the settlement engine. It composes the ledger and bet records
// into atomic units of work: a stake debit and its bet are created together,
// and a payout credit lands together with the pending-to-terminal transition.
type Service struct {
	store    Store
	registry *Registry
	nowFn    func() time.Time
	seedFn   func() (string, error)
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, seedFn: NewSeed}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// SeedWallet creates the wallet and its seed transaction for a new user.
// Idempotent: when the wallet already exists the call is a no-op, guarding
// against double onboarding.
func (service *Service) SeedWallet(ctx context.Context, userID UserID, initialBalance Amount, note string) error {
	logStatus := ""
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		now := service.nowFn()
		wallet := Wallet{
			UserID:    userID.String(),
			Balance:   initialBalance.Int64(),
			UpdatedAt: now,
		}
		if err := txStore.CreateWallet(ctx, wallet); err != nil {
			return err
		}
		return txStore.InsertTransaction(ctx, Transaction{
			TransactionID: uuid.NewString(),
			UserID:        userID.String(),
			Type:          TransactionSeed,
			Amount:        initialBalance.Int64(),
			BalanceAfter:  initialBalance.Int64(),
			Reference:     seedReference,
			Note:          note,
			CreatedAt:     now,
		})
	})
	if errors.Is(operationError, ErrWalletExists) {
		operationError = nil
		logStatus = operationStatusNoop
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationSeedWallet,
		UserID:    userID,
		Amount:    initialBalance.Int64(),
		Status:    logStatus,
		Error:     operationError,
	})
	return operationError
}

// PlaceBet atomically debits the stake, appends the debit transaction, and
// creates the pending bet. The server-side seed is drawn and persisted in the
// bet details before any outcome can be computed from it.
func (service *Service) PlaceBet(ctx context.Context, userID UserID, game Game, stake Stake, details DetailsJSON) (Bet, error) {
	var placed Bet
	operationError := func() error {
		seed, err := service.seedFn()
		if err != nil {
			return err
		}
		betDetails, err := injectSeed(details, seed)
		if err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			wallet, err := txStore.GetWalletForUpdate(ctx, userID.String())
			if err != nil {
				return err
			}
			next := wallet.Balance - stake.Int64()
			if next < 0 {
				return ErrInsufficientFunds
			}
			now := service.nowFn()
			if err := txStore.UpdateWalletBalance(ctx, userID.String(), next, now); err != nil {
				return err
			}
			if err := txStore.InsertTransaction(ctx, Transaction{
				TransactionID: uuid.NewString(),
				UserID:        userID.String(),
				Type:          TransactionDebit,
				Amount:        stake.Int64(),
				BalanceAfter:  next,
				Reference:     betReferencePrefix + game.String(),
				Note:          noteBetPlaced,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			placed = Bet{
				BetID:     uuid.NewString(),
				UserID:    userID.String(),
				Game:      game.String(),
				Stake:     stake.Int64(),
				Status:    BetStatusPending,
				Payout:    0,
				Details:   betDetails.String(),
				CreatedAt: now,
			}
			return txStore.InsertBet(ctx, placed)
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationPlaceBet,
		UserID:    userID,
		BetID:     placedBetRef(placed),
		Game:      game,
		Amount:    stake.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return Bet{}, operationError
	}
	return placed, nil
}

// Settle finalizes a pending bet into a terminal state. A won bet credits the
// payout and appends the credit transaction in the same unit of work as the
// status transition; a lost bet only transitions. Exactly one of any racing
// settlement attempts wins the transition; the rest observe ErrBetSettled and
// touch no ledger state.
func (service *Service) Settle(ctx context.Context, betID BetID, status BetStatus, payout Payout, details DetailsJSON) error {
	var settled Bet
	operationError := func() error {
		if err := validateSettlement(status, payout); err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			bet, err := txStore.GetBet(ctx, betID.String())
			if err != nil {
				return err
			}
			settled = bet
			if err := service.payoutWithinCap(bet, payout.Int64()); err != nil {
				return err
			}
			return service.settleLocked(ctx, txStore, bet, status, payout.Int64(), details)
		})
	}()
	betRef := betID
	service.logOperation(ctx, OperationLog{
		Operation: operationSettle,
		UserID:    UserID{value: settled.UserID},
		BetID:     &betRef,
		Game:      Game{value: settled.Game},
		Amount:    payout.Int64(),
		Error:     operationError,
	})
	return operationError
}

// settleLocked performs the pending-to-terminal transition plus any payout
// credit inside an already-open transaction. The conditional SettleBet update
// is the tie-break for concurrent settlers.
func (service *Service) settleLocked(ctx context.Context, txStore Store, bet Bet, status BetStatus, payout int64, details DetailsJSON) error {
	if bet.Status != BetStatusPending {
		return ErrBetSettled
	}
	now := service.nowFn()
	if status == BetStatusWon {
		wallet, err := txStore.GetWalletForUpdate(ctx, bet.UserID)
		if err != nil {
			return err
		}
		next := wallet.Balance + payout
		if err := txStore.UpdateWalletBalance(ctx, bet.UserID, next, now); err != nil {
			return err
		}
		if err := txStore.InsertTransaction(ctx, Transaction{
			TransactionID: uuid.NewString(),
			UserID:        bet.UserID,
			Type:          TransactionCredit,
			Amount:        payout,
			BalanceAfter:  next,
			Reference:     betReferencePrefix + bet.Game,
			Note:          noteBetWon,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
	}
	finalDetails := details.String()
	if details.IsEmpty() {
		finalDetails = bet.Details
	}
	return txStore.SettleBet(ctx, bet.BetID, BetStatusPending, status, payout, finalDetails, now)
}

// payoutWithinCap enforces the per-game payout ceiling on any settlement
// path. Games without a registered provider carry no ceiling; engines wired
// without a registry settle on the caller's authority alone.
func (service *Service) payoutWithinCap(bet Bet, payout int64) error {
	if service.registry == nil {
		return nil
	}
	game, err := NewGame(bet.Game)
	if err != nil {
		return nil
	}
	provider, err := service.registry.Provider(game)
	if err != nil {
		return nil
	}
	if float64(payout) > float64(bet.Stake)*provider.MaxMultiplier() {
		return fmt.Errorf("%w: payout %d exceeds cap for stake %d", ErrInvalidPayout, payout, bet.Stake)
	}
	return nil
}

func validateSettlement(status BetStatus, payout Payout) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not terminal", ErrInvalidBetStatus, status)
	}
	if status == BetStatusWon && payout.Int64() <= 0 {
		return fmt.Errorf("%w: won bet requires a positive payout", ErrInvalidPayout)
	}
	if status == BetStatusLost && payout.Int64() != 0 {
		return fmt.Errorf("%w: lost bet requires a zero payout", ErrInvalidPayout)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func placedBetRef(bet Bet) *BetID {
	if bet.BetID == "" {
		return nil
	}
	ref := BetID{value: bet.BetID}
	return &ref
}

func injectSeed(details DetailsJSON, seed string) (DetailsJSON, error) {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(details.String()), &payload); err != nil {
		return DetailsJSON{}, fmt.Errorf("%w: %v", ErrInvalidDetailsJSON, err)
	}
	payload[detailsSeedKey] = seed
	encoded, err := json.Marshal(payload)
	if err != nil {
		return DetailsJSON{}, fmt.Errorf("%w: %v", ErrInvalidDetailsJSON, err)
	}
	return NewDetailsJSON(string(encoded))
}

// RedactedDetails returns the details payload safe to disclose for the
// bet's current status. The server seed stays hidden while the bet is
// pending, otherwise the outcome could be precomputed and the round
// parameters picked to beat it. Settled bets expose the seed so the round
// can be re-derived and audited.
func (bet Bet) RedactedDetails() string {
	if bet.Status.Terminal() {
		return bet.Details
	}
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(bet.Details), &payload); err != nil {
		return "{}"
	}
	delete(payload, detailsSeedKey)
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func seedFromDetails(details string) (string, error) {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(details), &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDetailsJSON, err)
	}
	seed, ok := payload[detailsSeedKey].(string)
	if !ok {
		return "", fmt.Errorf("%w: bet details carry no seed", ErrInvalidSeed)
	}
	return ValidateSeed(seed)
}
