package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/wallet/internal/gateway"
	"github.com/MarkoPoloResearchLab/wallet/internal/httpapi"
	"github.com/MarkoPoloResearchLab/wallet/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagFreezeTTL         = "freeze-ttl"
	flagSweepInterval     = "sweep-interval"
	flagGatewayURL        = "gateway-url"
	flagGatewayAPIKey     = "gateway-api-key"
	configKeyDatabaseURL  = "database_url"
	configKeyListenAddr   = "listen_addr"
	configKeyOrigins      = "allowed_origins"
	configKeyFreezeTTL    = "freeze_ttl"
	configKeySweepEvery   = "sweep_interval"
	configKeyGatewayURL   = "gateway_url"
	configKeyGatewayKey   = "gateway_api_key"
	defaultDatabaseURL    = "sqlite:///tmp/wallet.db"
	defaultHTTPListenAddr = ":8080"
	defaultSweepInterval  = time.Minute
	sweepBatchLimit       = 100
)

type runtimeConfig struct {
	DatabaseURL      string
	ListenAddr       string
	AllowedOrigins   []string
	FreezeTTLSeconds int64
	SweepInterval    time.Duration
	GatewayURL       string
	GatewayAPIKey    string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Wallet ledger and split payment server",
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
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().Int64(flagFreezeTTL, wallet.DefaultFreezeTTLSeconds, "freeze time-to-live in seconds")
	cmd.Flags().Duration(flagSweepInterval, defaultSweepInterval, "how often expired freezes are swept")
	cmd.Flags().String(flagGatewayURL, "", "payment gateway base URL (wallet-only payments when empty)")
	cmd.Flags().String(flagGatewayAPIKey, "", "payment gateway API key")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL: "DATABASE_URL",
		configKeyListenAddr:  "HTTP_LISTEN_ADDR",
		configKeyOrigins:     "ALLOWED_ORIGINS",
		configKeyFreezeTTL:   "FREEZE_TTL_SECONDS",
		configKeySweepEvery:  "SWEEP_INTERVAL",
		configKeyGatewayURL:  "GATEWAY_URL",
		configKeyGatewayKey:  "GATEWAY_API_KEY",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := map[string]string{
		configKeyDatabaseURL: flagDatabaseURL,
		configKeyListenAddr:  flagListenAddr,
		configKeyOrigins:     flagAllowedOrigins,
		configKeyFreezeTTL:   flagFreezeTTL,
		configKeySweepEvery:  flagSweepInterval,
		configKeyGatewayURL:  flagGatewayURL,
		configKeyGatewayKey:  flagGatewayAPIKey,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(viper.GetString(configKeyOrigins))
	cfg.FreezeTTLSeconds = viper.GetInt64(configKeyFreezeTTL)
	if cfg.FreezeTTLSeconds <= 0 {
		cfg.FreezeTTLSeconds = wallet.DefaultFreezeTTLSeconds
	}
	cfg.SweepInterval = viper.GetDuration(configKeySweepEvery)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	cfg.GatewayURL = viper.GetString(configKeyGatewayURL)
	cfg.GatewayAPIKey = viper.GetString(configKeyGatewayKey)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }

	options := []wallet.ServiceOption{
		wallet.WithFreezeTTL(cfg.FreezeTTLSeconds),
		wallet.WithOperationLogger(&zapOperationLogger{logger: logger}),
	}
	if cfg.GatewayURL != "" {
		gatewayClient, gatewayErr := gateway.New(gateway.Config{
			BaseURL: cfg.GatewayURL,
			APIKey:  cfg.GatewayAPIKey,
		}, logger)
		if gatewayErr != nil {
			return fmt.Errorf("gateway init: %w", gatewayErr)
		}
		options = append(options, wallet.WithGatewayClient(gatewayClient))
	}

	walletService, err := wallet.NewService(store, clock, options...)
	if err != nil {
		return fmt.Errorf("wallet service init: %w", err)
	}

	go runSweeper(ctx, walletService, logger, cfg.SweepInterval)

	apiConfig := httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	return httpapi.Run(ctx, apiConfig, walletService, logger)
}

// runSweeper releases expired freezes on a fixed interval until ctx ends.
func runSweeper(ctx context.Context, service *wallet.Service, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := service.SweepExpiredFreezes(ctx, sweepBatchLimit)
			if err != nil {
				logger.Warn("freeze sweep failed", zap.Error(err))
				continue
			}
			if released > 0 {
				logger.Info("released expired freezes", zap.Int("count", released))
			}
		}
	}
}

type zapOperationLogger struct {
	logger *zap.Logger
}

func (operationLogger *zapOperationLogger) LogOperation(ctx context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID),
		zap.String("order_ref", entry.OrderRef),
		zap.String("transaction_id", entry.TransactionID),
		zap.String("amount", entry.Amount.String()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		operationLogger.logger.Warn("wallet operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info("wallet operation", fields...)
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
			path = "wallet.db"
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
