package games

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mverkhovyn/wagerhouse/pkg/wager"
)

const (
	crashGameName   = "crash"
	crashLambda     = 1.2
	crashMaxBust    = 50
	crashMinCashout = 1.01
)

// Crash samples a bust multiplier from a shifted exponential and settles a
// bet against its requested cash-out point. With the cash-out fixed at
// PlaceBet time the whole round is decided by the persisted seed.
type Crash struct {
	game wager.Game
}

// NewCrash returns a crash provider.
func NewCrash() *Crash {
	return &Crash{game: wager.MustGame(crashGameName)}
}

type crashParams struct {
	AutoCashout float64 `json:"autoCashout"`
}

type crashDetails struct {
	BustAt      float64 `json:"bustAt"`
	AutoCashout float64 `json:"autoCashout"`
}

// Game returns the provider's game name.
func (crash *Crash) Game() wager.Game {
	return crash.game
}

// MaxMultiplier bounds the payout relative to the stake.
func (crash *Crash) MaxMultiplier() float64 {
	return crashMaxBust
}

// Compute draws the bust point for the round and compares it to the
// requested cash-out multiplier.
func (crash *Crash) Compute(stream *wager.Stream, stake int64, params wager.DetailsJSON) (wager.Outcome, error) {
	var parsed crashParams
	if err := json.Unmarshal([]byte(params.String()), &parsed); err != nil {
		return wager.Outcome{}, fmt.Errorf("%w: %v", wager.ErrInvalidGameParams, err)
	}
	if parsed.AutoCashout < crashMinCashout || parsed.AutoCashout > crashMaxBust {
		return wager.Outcome{}, fmt.Errorf("%w: autoCashout must be within %.2f..%d", wager.ErrInvalidGameParams, crashMinCashout, crashMaxBust)
	}
	u := stream.Next()
	bust := 1 + (-math.Log(1-math.Min(u, 0.999999)) / crashLambda)
	bust = math.Min(crashMaxBust, bust)
	won := parsed.AutoCashout <= bust
	var payout int64
	status := wager.BetStatusLost
	if won {
		status = wager.BetStatusWon
		payout = int64(math.Floor(float64(stake) * parsed.AutoCashout))
	}
	details, err := encodeDetails(crashDetails{BustAt: bust, AutoCashout: parsed.AutoCashout})
	if err != nil {
		return wager.Outcome{}, err
	}
	return wager.Outcome{Status: status, Payout: payout, Details: details}, nil
}
