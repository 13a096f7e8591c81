package games

import "github.com/mverkhovyn/wagerhouse/pkg/wager"

// RegisterAll wires every built-in provider into the registry.
func RegisterAll(registry *wager.Registry) error {
	providers := []wager.OutcomeProvider{
		NewCrash(),
		NewDice(),
		NewPlinko(),
	}
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return err
		}
	}
	return nil
}
