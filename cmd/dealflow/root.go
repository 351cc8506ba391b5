package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	dealflow "github.com/CavellTopDev/pitchey-app-sub015"
	"github.com/CavellTopDev/pitchey-app-sub015/cache"
	"github.com/CavellTopDev/pitchey-app-sub015/config"
	"github.com/CavellTopDev/pitchey-app-sub015/store"
	"github.com/CavellTopDev/pitchey-app-sub015/store/memory"
	"github.com/CavellTopDev/pitchey-app-sub015/store/postgres"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "dealflow",
		Short:         "Durable deal lifecycle workflows for NDAs, investments and production deals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "auto", "log format (auto, text, json)")

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newMigrateCommand(flags))
	return root
}

// setup loads configuration and builds the process logger.
func (f *globalFlags) setup() (dealflow.Config, *slog.Logger, error) {
	level, err := parseLevel(f.logLevel)
	if err != nil {
		return dealflow.Config{}, nil, err
	}
	logger, err := newLogger(os.Stderr, f.logFormat, level)
	if err != nil {
		return dealflow.Config{}, nil, err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return dealflow.Config{}, nil, err
	}
	return cfg, logger, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger returns a colored tint handler on terminals and JSON
// otherwise, unless format forces one of them.
func newLogger(w *os.File, format string, level slog.Level) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case "auto", "":
		if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
			return slog.New(tintHandler(w, level, false)), nil
		}
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "text":
		return slog.New(tintHandler(w, level, true)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func tintHandler(w io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})
}

// openStore returns the postgres store when a database URL is configured
// and the in-memory store otherwise.
func openStore(ctx context.Context, cfg dealflow.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, using the in-memory store")
		return memory.New(), nil
	}
	st, err := postgres.New(ctx, cfg.Database.URL, postgres.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return st, nil
}

// openCache returns a Redis status cache when an address is configured.
// The returned close function is never nil.
func openCache(ctx context.Context, cfg dealflow.Config) (cache.StatusCache, func() error, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory(cfg.Redis.StatusTTL), func() error { return nil }, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c := cache.NewRedis(client, cache.WithTTL(cfg.Redis.StatusTTL))
	if err := c.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, client.Close, nil
}
