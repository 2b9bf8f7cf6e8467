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
	"github.com/marlinbank/accountd/internal/httpserver"
	"github.com/marlinbank/accountd/internal/store/gormstore"
	"github.com/marlinbank/accountd/pkg/account"
	"github.com/marlinbank/accountd/pkg/lock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL    = "database-url"
	flagRedisAddr      = "redis-addr"
	flagListenAddr     = "listen-addr"
	flagLockWait       = "lock-wait"
	flagLockLease      = "lock-lease"
	flagAllowedOrigins = "allowed-origins"

	configKeyDatabaseURL    = "database_url"
	configKeyRedisAddr      = "redis_addr"
	configKeyListenAddr     = "listen_addr"
	configKeyLockWait       = "lock_wait"
	configKeyLockLease      = "lock_lease"
	configKeyAllowedOrigins = "allowed_origins"

	defaultDatabaseURL    = "sqlite:///tmp/accountd.db"
	defaultRedisAddr      = "127.0.0.1:6379"
	defaultHTTPListenAddr = ":8080"
)

type runtimeConfig struct {
	DatabaseURL    string
	RedisAddr      string
	ListenAddr     string
	LockWait       time.Duration
	LockLease      time.Duration
	AllowedOrigins []string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "accountd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "accountd",
		Short:         "Account balance HTTP server",
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
	cmd.Flags().String(flagRedisAddr, defaultRedisAddr, "Redis address for the account locks")
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().Duration(flagLockWait, lock.DefaultWaitTimeout, "How long to wait for a contended account lock")
	cmd.Flags().Duration(flagLockLease, lock.DefaultLeaseTimeout, "How long an acquired account lock is held")
	cmd.Flags().StringSlice(flagAllowedOrigins, nil, "CORS allowed origins")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:    "DATABASE_URL",
		configKeyRedisAddr:      "REDIS_ADDR",
		configKeyListenAddr:     "HTTP_LISTEN_ADDR",
		configKeyLockWait:       "LOCK_WAIT",
		configKeyLockLease:      "LOCK_LEASE",
		configKeyAllowedOrigins: "ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:    flagDatabaseURL,
		configKeyRedisAddr:      flagRedisAddr,
		configKeyListenAddr:     flagListenAddr,
		configKeyLockWait:       flagLockWait,
		configKeyLockLease:      flagLockLease,
		configKeyAllowedOrigins: flagAllowedOrigins,
	}
	for key, flag := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = defaultRedisAddr
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	cfg.LockWait = viper.GetDuration(configKeyLockWait)
	if cfg.LockWait <= 0 {
		cfg.LockWait = lock.DefaultWaitTimeout
	}
	cfg.LockLease = viper.GetDuration(configKeyLockLease)
	if cfg.LockLease <= 0 {
		cfg.LockLease = lock.DefaultLeaseTimeout
	}
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyAllowedOrigins)
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
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}
	store := gormstore.New(gormDB)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	locks, err := lock.NewCoordinator(
		lock.NewRedisBackend(redisClient),
		lock.WithWaitTimeout(cfg.LockWait),
		lock.WithLeaseTimeout(cfg.LockLease),
	)
	if err != nil {
		return fmt.Errorf("lock coordinator init: %w", err)
	}

	operationLogger := newZapOperationLogger(logger)
	clock := func() time.Time { return time.Now().UTC() }

	processor, err := account.NewProcessor(store, clock, account.WithProcessorLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("processor init: %w", err)
	}
	recorder, err := account.NewFailureRecorder(store, clock, account.WithRecorderLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("failure recorder init: %w", err)
	}
	coordinator, err := account.NewCoordinator(locks, processor, recorder)
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}
	accounts, err := account.NewService(store, clock, account.WithServiceLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("account service init: %w", err)
	}

	server, err := httpserver.New(httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger, coordinator, accounts)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}
	return server.Run(ctx)
}

type zapOperationLogger struct {
	logger *zap.Logger
}

func newZapOperationLogger(logger *zap.Logger) *zapOperationLogger {
	return &zapOperationLogger{logger: logger}
}

func (adapter *zapOperationLogger) LogOperation(ctx context.Context, entry account.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", entry.UserID))
	}
	if entry.AccountNumber != "" {
		fields = append(fields, zap.String("account_number", entry.AccountNumber))
	}
	if entry.TransactionID != "" {
		fields = append(fields, zap.String("transaction_id", entry.TransactionID))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("account operation", fields...)
		return
	}
	adapter.logger.Info("account operation", fields...)
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
			path = "accountd.db"
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
