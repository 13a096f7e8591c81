package wager

import (
	"fmt"
	"sync"
)

// Outcome is a settlement decision computed by an outcome provider.
type Outcome struct {
	Status  BetStatus
	Payout  int64
	Details DetailsJSON
}

// OutcomeProvider computes a bet result from a deterministic stream bound to
// the bet's server-chosen seed. The engine is agnostic to per-game math; it
// only requires a terminal status and a payout within the provider's cap.
type OutcomeProvider interface {
	Game() Game
	MaxMultiplier() float64
	Compute(stream *Stream, stake int64, params DetailsJSON) (Outcome, error)
}

// Registry holds the outcome providers known to the engine.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]OutcomeProvider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]OutcomeProvider)}
}

// Register adds a provider under its game name.
func (registry *Registry) Register(provider OutcomeProvider) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	name := provider.Game().String()
	if _, exists := registry.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	registry.providers[name] = provider
	return nil
}

// Provider looks up the provider for a game.
func (registry *Registry) Provider(game Game) (OutcomeProvider, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	provider, exists := registry.providers[game.String()]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, game.String())
	}
	return provider, nil
}

// Games lists the registered game names.
func (registry *Registry) Games() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	games := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		games = append(games, name)
	}
	return games
}
