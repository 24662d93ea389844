package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/metalagman/agency/internal/config"
	"github.com/metalagman/agency/internal/web"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session HTTP API, transcripts and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			fxApp := fx.New(
				fx.NopLogger,
				fx.Supply(cfg),
				fx.Provide(
					func(lc fx.Lifecycle, cfg config.Config) (*app, error) {
						return provideApp(ctx, lc, cfg)
					},
					provideWebServer,
				),
				fx.Invoke(registerHTTP),
			)
			if err := fxApp.Start(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
			case sig := <-fxApp.Done():
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return fxApp.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func provideApp(ctx context.Context, lc fx.Lifecycle, cfg config.Config) (*app, error) {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return a.Close() },
	})
	return a, nil
}

func provideWebServer(a *app) (*web.Server, error) {
	return web.NewServer(a.sessions, web.WithMetrics(a.recorder.Handler()))
}

func registerHTTP(lc fx.Lifecycle, cfg config.Config, srv *web.Server) {
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", ln.Addr().String()).Msg("serving http")
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
