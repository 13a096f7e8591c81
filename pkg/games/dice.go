// Package games holds the built-in outcome providers. Payout curves are
// house configuration, not engine contract; each provider only promises a
// terminal status and a payout within its multiplier cap.
package games

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mverkhovyn/wagerhouse/pkg/wager"
)

const (
	diceGameName      = "dice"
	diceDefaultEdge   = 0.05
	diceMinChance     = 1
	diceMaxChance     = 95
	diceMaxMultiplier = 95
)

// Dice is a roll-under game: the player picks a win chance, the payout
// multiplier is (1-edge)*(100/chance).
type Dice struct {
	game      wager.Game
	houseEdge float64
}

// NewDice returns a dice provider with the default house edge.
func NewDice() *Dice {
	return &Dice{game: wager.MustGame(diceGameName), houseEdge: diceDefaultEdge}
}

type diceParams struct {
	Chance float64 `json:"chance"`
}

type diceDetails struct {
	Roll   float64 `json:"roll"`
	Chance float64 `json:"chance"`
	Mult   float64 `json:"mult"`
}

// Game returns the provider's game name.
func (dice *Dice) Game() wager.Game {
	return dice.game
}

// MaxMultiplier bounds the payout relative to the stake.
func (dice *Dice) MaxMultiplier() float64 {
	return diceMaxMultiplier
}

// Compute rolls once on the stream and settles against the chosen chance.
func (dice *Dice) Compute(stream *wager.Stream, stake int64, params wager.DetailsJSON) (wager.Outcome, error) {
	var parsed diceParams
	if err := json.Unmarshal([]byte(params.String()), &parsed); err != nil {
		return wager.Outcome{}, fmt.Errorf("%w: %v", wager.ErrInvalidGameParams, err)
	}
	if parsed.Chance < diceMinChance || parsed.Chance > diceMaxChance {
		return wager.Outcome{}, fmt.Errorf("%w: chance must be within %d..%d", wager.ErrInvalidGameParams, diceMinChance, diceMaxChance)
	}
	roll := stream.Next() * 100
	multiplier := (1 - dice.houseEdge) * (100 / parsed.Chance)
	won := roll < parsed.Chance
	var payout int64
	status := wager.BetStatusLost
	if won {
		status = wager.BetStatusWon
		payout = int64(math.Floor(float64(stake) * multiplier))
	}
	details, err := encodeDetails(diceDetails{Roll: roll, Chance: parsed.Chance, Mult: multiplier})
	if err != nil {
		return wager.Outcome{}, err
	}
	return wager.Outcome{Status: status, Payout: payout, Details: details}, nil
}

func encodeDetails(payload any) (wager.DetailsJSON, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return wager.DetailsJSON{}, fmt.Errorf("%w: %v", wager.ErrInvalidDetailsJSON, err)
	}
	return wager.NewDetailsJSON(string(encoded))
}
