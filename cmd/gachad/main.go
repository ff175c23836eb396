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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/gacha/internal/httpapi"
	"github.com/MarkoPoloResearchLab/gacha/internal/oplog"
	"github.com/MarkoPoloResearchLab/gacha/internal/remoteledger"
	"github.com/MarkoPoloResearchLab/gacha/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/gacha/internal/store/openlog"
	"github.com/MarkoPoloResearchLab/gacha/pkg/draw"
	"github.com/MarkoPoloResearchLab/gacha/pkg/fairness"
	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagRemoteLedgerURL = "remote-ledger-url"
	flagOpenLogPath     = "openlog-path"
	flagAllowedOrigins  = "allowed-origins"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyRemoteLedgerURL = "remote_ledger_url"
	configKeyOpenLogPath     = "openlog_path"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyJWTSigningKey   = "jwt_signing_key"
	configKeyJWTIssuer       = "jwt_issuer"
	configKeyWebhookSecret   = "webhook_secret"

	defaultDatabaseURL = "sqlite:///tmp/gacha.db"
	defaultListenAddr  = ":8080"
	defaultOpenLogPath = "/tmp/gacha-openings"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	RemoteLedgerURL string
	OpenLogPath     string
	AllowedOrigins  string
	JWTSigningKey   string
	JWTIssuer       string
	WebhookSecret   string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gachad: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "gachad",
		Short:         "Collectible card gacha and marketplace server",
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

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL connection string or sqlite path")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRemoteLedgerURL, "", "base URL of the points ledger service")
	cmd.Flags().String(flagOpenLogPath, defaultOpenLogPath, "directory for the pack-opening audit log")
	cmd.Flags().String(flagAllowedOrigins, "", "comma separated CORS origins")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyRemoteLedgerURL: "REMOTE_LEDGER_URL",
		configKeyOpenLogPath:     "OPENLOG_PATH",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyJWTSigningKey:   "JWT_SIGNING_KEY",
		configKeyJWTIssuer:       "JWT_ISSUER",
		configKeyWebhookSecret:   "WEBHOOK_SECRET",
	}
	for configKey, envName := range envBindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyRemoteLedgerURL: flagRemoteLedgerURL,
		configKeyOpenLogPath:     flagOpenLogPath,
		configKeyAllowedOrigins:  flagAllowedOrigins,
	}
	for configKey, flagName := range flagBindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.RemoteLedgerURL = viper.GetString(configKeyRemoteLedgerURL)
	cfg.OpenLogPath = viper.GetString(configKeyOpenLogPath)
	if cfg.OpenLogPath == "" {
		cfg.OpenLogPath = defaultOpenLogPath
	}
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.JWTIssuer = viper.GetString(configKeyJWTIssuer)
	cfg.WebhookSecret = viper.GetString(configKeyWebhookSecret)

	if cfg.RemoteLedgerURL == "" {
		return fmt.Errorf("remote ledger url is required")
	}
	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	store := gormstore.New(gormDB)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	openings, err := openlog.Open(cfg.OpenLogPath)
	if err != nil {
		return fmt.Errorf("opening log init: %w", err)
	}
	defer func() { _ = openings.Close() }()

	engine, err := fairness.NewEngine(store.Seeds())
	if err != nil {
		return fmt.Errorf("fairness engine init: %w", err)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	orchestrator, err := draw.NewOrchestrator(store, store, engine, openings, clock)
	if err != nil {
		return fmt.Errorf("draw orchestrator init: %w", err)
	}

	remote, err := remoteledger.New(cfg.RemoteLedgerURL, remoteledger.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	if err != nil {
		return fmt.Errorf("remote ledger client init: %w", err)
	}

	coordinator, err := market.NewCoordinator(
		store,
		remote,
		market.WithOperationLogger(oplog.NewZapOperationLogger(logger)),
		market.WithPackStore(store),
	)
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}

	server, err := httpapi.New(httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		JWTSigningKey:  cfg.JWTSigningKey,
		JWTIssuer:      cfg.JWTIssuer,
		WebhookSecret:  cfg.WebhookSecret,
	}, httpapi.Dependencies{
		Logger:      logger,
		Coordinator: coordinator,
		Opener:      orchestrator,
		Engine:      engine,
		Openings:    openings,
		Events:      store,
		Balances:    store,
	})
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	return server.Run(ctx)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
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
			path = "gacha.db"
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
