package games

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mverkhovyn/wagerhouse/pkg/wager"
)

const (
	plinkoGameName      = "plinko"
	plinkoDefaultRows   = 12
	plinkoBaseMult      = 1.8
	plinkoCenterPenalty = 0.15
	plinkoEdgeBonus     = 0.25
	plinkoFloorMult     = 0.2
	plinkoMaxMultiplier = 3
)

var plinkoRowOptions = map[int]bool{8: true, 10: true, 12: true, 14: true}

// Plinko drops a ball through a peg board; each row is one left/right draw
// from the stream and the landing slot picks a symmetric payout tier.
type Plinko struct {
	game wager.Game
}

// NewPlinko returns a plinko provider.
func NewPlinko() *Plinko {
	return &Plinko{game: wager.MustGame(plinkoGameName)}
}

type plinkoParams struct {
	Rows int `json:"rows"`
}

type plinkoDetails struct {
	Slot int     `json:"slot"`
	Rows int     `json:"rows"`
	Mult float64 `json:"mult"`
	Path string  `json:"path"`
}

// Game returns the provider's game name.
func (plinko *Plinko) Game() wager.Game {
	return plinko.game
}

// MaxMultiplier bounds the payout relative to the stake.
func (plinko *Plinko) MaxMultiplier() float64 {
	return plinkoMaxMultiplier
}

// Compute walks the board row by row and settles on the landing slot's tier.
func (plinko *Plinko) Compute(stream *wager.Stream, stake int64, params wager.DetailsJSON) (wager.Outcome, error) {
	var parsed plinkoParams
	if err := json.Unmarshal([]byte(params.String()), &parsed); err != nil {
		return wager.Outcome{}, fmt.Errorf("%w: %v", wager.ErrInvalidGameParams, err)
	}
	if parsed.Rows == 0 {
		parsed.Rows = plinkoDefaultRows
	}
	if !plinkoRowOptions[parsed.Rows] {
		return wager.Outcome{}, fmt.Errorf("%w: unsupported row count %d", wager.ErrInvalidGameParams, parsed.Rows)
	}
	slot := 0
	path := make([]string, 0, parsed.Rows)
	for i := 0; i < parsed.Rows; i++ {
		if stream.Next() < 0.5 {
			path = append(path, "L")
			continue
		}
		path = append(path, "R")
		slot++
	}
	multiplier := payoutTier(slot, parsed.Rows)
	payout := int64(math.Floor(float64(stake) * multiplier))
	status := wager.BetStatusLost
	if payout > 0 {
		status = wager.BetStatusWon
	}
	details, err := encodeDetails(plinkoDetails{
		Slot: slot,
		Rows: parsed.Rows,
		Mult: multiplier,
		Path: strings.Join(path, "-"),
	})
	if err != nil {
		return wager.Outcome{}, err
	}
	return wager.Outcome{Status: status, Payout: payout, Details: details}, nil
}

func payoutTier(slot int, rows int) float64 {
	center := float64(rows) / 2
	dist := math.Abs(float64(slot) - center)
	mult := math.Max(plinkoFloorMult, plinkoBaseMult-plinkoCenterPenalty*dist+plinkoEdgeBonus*dist)
	return math.Round(mult*100) / 100
}
