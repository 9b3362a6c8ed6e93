package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/opsgrid/internal/activekey"
	"github.com/JonMunkholm/opsgrid/internal/config"
	"github.com/JonMunkholm/opsgrid/internal/grid/querysync"
	"github.com/JonMunkholm/opsgrid/internal/logging"
	"github.com/JonMunkholm/opsgrid/internal/screens"
	"github.com/JonMunkholm/opsgrid/internal/web"
	"github.com/JonMunkholm/opsgrid/internal/widthstore"
)

type serveOptions struct {
	screensFile string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.screensFile, "screens", "", "Screens file (overrides GRID_SCREENS_FILE)")

	return cmd
}

func runServe(ctx context.Context, root *rootFlags, opts *serveOptions) error {
	cfg, err := loadConfig(root.envFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if opts.screensFile != "" {
		cfg.Grid.ScreensFile = opts.screensFile
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"width_store", cfg.Grid.WidthStore,
		"array_format", cfg.Grid.ArrayFormat,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	catalog, err := screens.Load(cfg.Grid.ScreensFile)
	if err != nil {
		return err
	}
	format, err := querysync.ParseArrayFormat(cfg.Grid.ArrayFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := screens.Deps{
		ArrayFormat:     format,
		Broker:          activekey.NewBroker(),
		ActiveKeyDelay:  cfg.Grid.ActiveKeyDelay,
		WidthPrefix:     cfg.Grid.WidthKeyPrefix,
		MinColumnWidth:  cfg.Grid.MinColumnWidth,
		DefaultPageSize: cfg.Grid.DefaultPageSize,
	}

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		deps.DB = pool
	}
	warnUnbacked(catalog, pool != nil)

	widths, closeWidths, err := openWidthStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeWidths()
	deps.Widths = widths

	server := web.NewServer(cfg, catalog, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// openPool connects and pings the database.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// openWidthStore builds the configured column-width backend.
func openWidthStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (widthstore.Store, func(), error) {
	noop := func() {}

	switch cfg.Grid.WidthStore {
	case config.WidthStoreRedis:
		store, err := widthstore.NewRedis(widthstore.RedisOptions{
			URL:         cfg.Redis.URL,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		slog.Info("column widths stored in redis")
		return store, func() { _ = store.Close() }, nil

	case config.WidthStorePostgres:
		if pool == nil {
			return nil, noop, errors.New("postgres width store needs DATABASE_URL")
		}
		store := widthstore.NewPostgres(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, noop, err
		}
		slog.Info("column widths stored in postgres")
		return store, noop, nil

	default:
		slog.Info("column widths kept in memory")
		return widthstore.NewMemory(), noop, nil
	}
}

// warnUnbacked logs postgres screens that will fail without a database.
func warnUnbacked(catalog *screens.Catalog, haveDB bool) {
	if haveDB {
		return
	}
	for _, s := range catalog.All() {
		if s.Source.Kind == screens.SourcePostgres {
			slog.Warn("screen needs DATABASE_URL and will not load", "screen", s.ID)
		}
	}
}
