package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/comigor/summarizer-go/internal/access"
	"github.com/comigor/summarizer-go/internal/agent"
	"github.com/comigor/summarizer-go/internal/config"
	"github.com/comigor/summarizer-go/internal/history"
	"github.com/comigor/summarizer-go/internal/httpapi"
	"github.com/comigor/summarizer-go/internal/kv"
	"github.com/comigor/summarizer-go/internal/llm"
	"github.com/comigor/summarizer-go/internal/logger"
	"github.com/comigor/summarizer-go/internal/mcpserver"
	"github.com/comigor/summarizer-go/internal/metrics"
	"github.com/comigor/summarizer-go/internal/router"
	"github.com/comigor/summarizer-go/internal/telegram"
	"github.com/comigor/summarizer-go/internal/tokens"
)

var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the config file (default: $CONFIG_PATH or ./config.yaml)")
	logLevel := pflag.String("log-level", "", "override log.level (debug, info, warn, error)")
	pflag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		logger.L.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L.Error("summarizer stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New("summarizer")

	store, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		logger.L.Warn("store unavailable, keeping state in memory only", "driver", cfg.Store.Driver, "error", err)
		store = kv.NewMemoryStore()
	}
	defer store.Close()

	estimator, err := tokens.New(cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("token estimator: %w", err)
	}

	histories := history.NewStore(store, cfg.History.MaxMessages, m)
	accessLists := access.NewStore(store)
	gateway := llm.NewGateway(llm.NewClient(cfg.LLM), cfg.LLM, m)
	ag := agent.New(histories, gateway, estimator, *cfg, m)

	tg := telegram.NewClient(cfg.Telegram)
	rt := router.New(*cfg, histories, accessLists, store, ag, tg, m)
	poller := telegram.NewPoller(tg, rt, cfg.Bot.Username, cfg.Telegram.PollTimeout)

	api := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.New(ag, m.Handler()).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(ctx)
	})
	g.Go(func() error {
		logger.L.Info("starting server", "address", api.Addr)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return api.Shutdown(shutdownCtx)
	})

	if cfg.MCP.Enabled {
		tools := mcpserver.New(ag, version, cfg.MCP.Addr)
		g.Go(func() error {
			if err := tools.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tools.Shutdown(shutdownCtx)
		})
	}

	logger.L.Info("summarizer running", "bot", cfg.Bot.Username, "model", cfg.LLM.Model, "encoding", estimator.Encoding(), "store", cfg.Store.Driver, "version", version)
	return g.Wait()
}
