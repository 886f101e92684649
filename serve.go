package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/graph-mailer/internal/config"
	"github.com/tonimelisma/graph-mailer/internal/graph"
	"github.com/tonimelisma/graph-mailer/internal/mailflow"
	"github.com/tonimelisma/graph-mailer/internal/session"
	"github.com/tonimelisma/graph-mailer/internal/web"
)

var (
	_ web.Authorizer = (*graph.Authorizer)(nil)
	_ web.Pipeline   = (*mailflow.Pipeline)(nil)
	_ mailflow.Graph = (*graph.Client)(nil)
)

const (
	readHeaderTimeout      = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		Long: `Serve the sign-in page, the mail form, and the send confirmation.

The redirect URL registered for the application must point at
/login/authorized on this server.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (host:port), overrides server.listen_addr")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	if err := config.ValidateCredentials(&cfg.OAuth); err != nil {
		return err
	}

	ctx, hard := shutdownContexts(cmd.Context(), logger)

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if ledger != nil {
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				logger.Warn("closing send history", slog.String("error", closeErr.Error()))
			}
		}()
	}

	pipeline, err := newPipeline(cfg, ledger, logger)
	if err != nil {
		return err
	}

	httpClient := newHTTPClient(cfg)

	srv, err := web.New(web.Deps{
		Auth:     newAuthorizer(cfg, httpClient, logger),
		Sessions: newSessionStore(cfg, pipeline, logger),
		Pipeline: pipeline,
		NewClient: func(tok graph.TokenSource) mailflow.Graph {
			return newGraphClient(cfg, httpClient, tok, logger)
		},
		SecureCookies: cfg.Server.SecureCookies,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.ListenAddr, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return serveUntilDone(ctx, hard, httpSrv, ln, config.Duration(cfg.Server.ShutdownTimeout, defaultShutdownTimeout), logger)
}

// newSessionStore bounds the login sessions by the [server] section. A
// removed session takes its cached profile photo with it.
func newSessionStore(cfg *config.Config, pipeline *mailflow.Pipeline, logger *slog.Logger) *session.Store {
	return session.NewStore(session.StoreOptions{
		PendingTTL:  config.Duration(cfg.Server.PendingSessionTTL, session.DefaultPendingTTL),
		MaxAge:      config.Duration(cfg.Server.SessionMaxAge, session.DefaultMaxAge),
		MaxSessions: cfg.Server.MaxSessions,
		OnRemove: func(id string) {
			if err := pipeline.Discard(id); err != nil {
				logger.Warn("removing session photo",
					slog.String("session", id),
					slog.String("error", err.Error()),
				)
			}
		},
	}, logger)
}

// serveUntilDone serves on ln until ctx is canceled or the listener fails,
// then drains in-flight requests for up to timeout. Canceling hard cuts the
// drain short and closes every remaining connection.
func serveUntilDone(ctx, hard context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	addr := ln.Addr().String()

	g.Go(func() error {
		logger.Info("listening", slog.String("addr", addr))

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving on %s: %w", addr, err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(hard, timeout)
		defer cancel()

		logger.Info("shutting down", slog.Duration("timeout", timeout))

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("drain cut short, closing connections", slog.String("error", err.Error()))

			if closeErr := srv.Close(); closeErr != nil {
				logger.Warn("closing server", slog.String("error", closeErr.Error()))
			}

			return fmt.Errorf("shutting down: %w", err)
		}

		return nil
	})

	return g.Wait()
}
