// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/config"
	"github.com/jeranaias/rigrun-answer/internal/server"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			if host != "" {
				a.cfg.Server.Host = host
			}

			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := newServer(a.cfg, svc, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on http://%s:%d\n",
				SuccessStyle.Render("rigrun-answer"), a.cfg.Server.Host, srv.Port())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default server.port)")
	cmd.Flags().StringVar(&host, "host", "", "listen host (default server.host)")
	return cmd
}

// newServer configures the HTTP server from cfg.
func newServer(cfg *config.Config, svc *services, logger *zap.Logger) *server.Server {
	cors := server.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.CORSOrigins
	}

	srv := server.NewServer(cfg.Server.Port, svc.agent).
		WithHost(cfg.Server.Host).
		WithCostTracker(svc.tracker).
		WithTemplates(svc.templates).
		WithLogger(logger).
		WithCORS(cors).
		WithRateLimiter(server.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)).
		WithAuth(&server.AuthConfig{
			Enabled:     cfg.Server.BearerToken != "",
			BearerToken: cfg.Server.BearerToken,
			AllowedIPs:  cfg.Server.AllowedIPs,
		})

	for name, check := range svc.checks {
		srv.WithHealthCheck(name, check)
	}
	if cfg.Server.BearerToken == "" {
		logger.Warn("server.bearer_token not set, the API is unauthenticated")
	}
	return srv
}
