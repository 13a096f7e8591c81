package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mverkhovyn/wagerhouse/internal/httpserver"
	"github.com/mverkhovyn/wagerhouse/internal/store/gormstore"
	"github.com/mverkhovyn/wagerhouse/internal/store/pgstore"
	"github.com/mverkhovyn/wagerhouse/pkg/games"
	"github.com/mverkhovyn/wagerhouse/pkg/wager"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagSigningKey        = "auth-signing-key"
	flagTokenIssuer       = "auth-token-issuer"
	flagAllowedOrigins    = "allowed-origins"
	flagStoreBackend      = "store-backend"
	flagSeedBalance       = "seed-balance"
	configKeyDatabaseURL  = "database_url"
	configKeyListenAddr   = "listen_addr"
	configKeySigningKey   = "auth_signing_key"
	configKeyTokenIssuer  = "auth_token_issuer"
	configKeyOrigins      = "allowed_origins"
	configKeyStoreBackend = "store_backend"
	configKeySeedBalance  = "seed_balance"
	defaultDatabaseURL    = "sqlite:///tmp/wagerhouse.db"
	defaultListenAddr     = ":8080"
	storeBackendGorm      = "gorm"
	storeBackendPgx       = "pgx"
	shutdownGrace         = 10 * time.Second
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	SigningKey     string
	TokenIssuer    string
	AllowedOrigins []string
	StoreBackend   string
	SeedBalance    int64
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wagerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "wagerd",
		Short:         "Authoritative wagering ledger and bet-settlement server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagSigningKey, "", "HMAC key validating caller bearer tokens")
	cmd.Flags().String(flagTokenIssuer, "", "Expected bearer token issuer (optional)")
	cmd.Flags().StringSlice(flagAllowedOrigins, nil, "CORS allowed origins")
	cmd.Flags().String(flagStoreBackend, storeBackendGorm, "Persistence backend: gorm or pgx (pgx requires a postgres DSN)")
	cmd.Flags().Int64(flagSeedBalance, wager.DefaultSeedBalance, "Balance granted to newly seeded wallets")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv(configKeyDatabaseURL, "DATABASE_URL"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyListenAddr, "LISTEN_ADDR"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeySigningKey, "AUTH_SIGNING_KEY"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyTokenIssuer, "AUTH_TOKEN_ISSUER"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyOrigins, "ALLOWED_ORIGINS"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyStoreBackend, "STORE_BACKEND"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeySeedBalance, "SEED_BALANCE"); err != nil {
		return err
	}

	if err := viper.BindPFlag(configKeyDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyListenAddr, cmd.Flags().Lookup(flagListenAddr)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeySigningKey, cmd.Flags().Lookup(flagSigningKey)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyTokenIssuer, cmd.Flags().Lookup(flagTokenIssuer)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyOrigins, cmd.Flags().Lookup(flagAllowedOrigins)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyStoreBackend, cmd.Flags().Lookup(flagStoreBackend)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeySeedBalance, cmd.Flags().Lookup(flagSeedBalance)); err != nil {
		return err
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.SigningKey = viper.GetString(configKeySigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyOrigins)
	cfg.StoreBackend = viper.GetString(configKeyStoreBackend)
	cfg.SeedBalance = viper.GetInt64(configKeySeedBalance)
	if cfg.SeedBalance <= 0 {
		cfg.SeedBalance = wager.DefaultSeedBalance
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = storeBackendGorm
	}
	if cfg.SigningKey == "" {
		return fmt.Errorf("auth signing key is required")
	}
	if cfg.StoreBackend != storeBackendGorm && cfg.StoreBackend != storeBackendPgx {
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	registry := wager.NewRegistry()
	if err := games.RegisterAll(registry); err != nil {
		return fmt.Errorf("provider registry init: %w", err)
	}
	clock := func() time.Time { return time.Now().UTC() }
	engine, err := wager.NewService(store, clock,
		wager.WithRegistry(registry),
		wager.WithOperationLogger(newZapOperationLogger(logger)),
	)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	server := httpserver.New(logger, engine, httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		SigningKey:     cfg.SigningKey,
		TokenIssuer:    cfg.TokenIssuer,
		SeedBalance:    cfg.SeedBalance,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("listen_addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if serveErr := <-errCh; serveErr != nil && serveErr != http.ErrServerClosed {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if serveErr == http.ErrServerClosed {
			return nil
		}
		return serveErr
	}
}

// buildStore selects the persistence backend. The pgx backend speaks to
// postgres directly; the gorm backend covers both postgres and sqlite and
// owns schema migration for sqlite.
func buildStore(ctx context.Context, cfg *runtimeConfig) (wager.Store, func() error, error) {
	if cfg.StoreBackend == storeBackendPgx {
		driver, _, err := resolveDriver(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if driver != "postgres" {
			return nil, nil, fmt.Errorf("store backend %q requires a postgres DSN", storeBackendPgx)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() error {
			pool.Close()
			return nil
		}
		return pgstore.New(pool), cleanup, nil
	}

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := prepareSchema(gormDB, driver); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return gormstore.New(gormDB), cleanup, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "wagerhouse.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := gormstore.Migrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
