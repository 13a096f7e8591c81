package wager

const (
	operationSeedWallet = "seed_wallet"
	operationPlaceBet   = "place_bet"
	operationSettle     = "settle"
	operationResolve    = "resolve"

	operationStatusOK    = "ok"
	operationStatusError = "error"
	operationStatusNoop  = "noop"

	betReferencePrefix = "bet:"
	seedReference      = "welcome"

	noteBetPlaced  = "Bet placed"
	noteBetWon     = "Bet won"
	noteSeedWallet = "Initial play credits"

	detailsSeedKey = "seed"

	// DefaultSeedBalance is granted to a freshly onboarded wallet.
	DefaultSeedBalance = 1000

	defaultPageSize = 20
	maxPageSize     = 100
)
