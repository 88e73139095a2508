package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotedesk/internal/config"
	"github.com/rickgao/quotedesk/internal/server"
	"github.com/rickgao/quotedesk/internal/session"
	"github.com/rickgao/quotedesk/internal/storage"
	"github.com/rickgao/quotedesk/internal/terminal"
	"github.com/rickgao/quotedesk/internal/version"
)

const statusInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/quotedesk.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("quotedesk exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting quotedesk",
		"version", version.String(),
		"config", configPath,
		"storage", cfg.Storage.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := storage.Open(ctx, cfg.Storage, logger.With("component", "storage"))
	if err != nil {
		return err
	}
	defer kv.Close()

	term := terminal.New(cfg, kv, logger)
	if err := term.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := term.Stop(shutdownCtx); err != nil {
			logger.Error("terminal stop failed", "error", err)
		}
	}()

	if _, ok := term.Credential(); !ok && cfg.Login.Email != "" {
		startupLogin(ctx, term, cfg.Login, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Addr != "" {
		srv := server.New(cfg.Server.Addr, term, logger.With("component", "server"), level <= slog.LevelDebug)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := term.Status()
				logger.Info("status",
					"logged_in", st.LoggedIn,
					"instruments", st.Instruments,
					"catalog_stream", st.CatalogStream,
					"subscriptions", st.Subscriptions,
					"quote_stream", st.QuoteStream,
					"quotes", st.Quotes,
				)
			}
		}
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// startupLogin logs in with configured credentials. A rejected login is
// logged and the client keeps running on the fallback catalog.
func startupLogin(ctx context.Context, term *terminal.Client, login config.LoginConfig, logger *slog.Logger) {
	if _, err := term.Login(ctx, login.Email, login.Password); err != nil {
		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			logger.Warn("startup login rejected", "reason", authErr.Reason)
			return
		}
		logger.Error("startup login failed", "error", err)
		return
	}
	logger.Info("startup login succeeded", "email", login.Email)
}
