package httpserver

import "time"

// Config carries the HTTP facade settings.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	SigningKey     string
	TokenIssuer    string
	RequestTimeout time.Duration
	// SeedBalance is granted when a seed request names no amount.
	SeedBalance int64
}
