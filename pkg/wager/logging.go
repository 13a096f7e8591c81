package wager

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing engine operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	BetID     *BetID
	Game      Game
	Amount    int64
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithRegistry wires the outcome-provider registry used by Resolve.
func WithRegistry(registry *Registry) ServiceOption {
	return func(service *Service) {
		service.registry = registry
	}
}

// WithSeedSource replaces the server-side seed generator. Intended for tests;
// production uses the crypto/rand default.
func WithSeedSource(seedFn func() (string, error)) ServiceOption {
	return func(service *Service) {
		service.seedFn = seedFn
	}
}
