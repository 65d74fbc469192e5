package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/docchat/config"
	srv "github.com/mohammad-safakhou/docchat/internal/server"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"github.com/spf13/cobra"
)

func serveCMD(load loader) *cobra.Command {
	var addr string
	var migrate bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if migrate && cfg.Storage.Driver == config.DriverPostgres {
				if err := srv.Migrate(cfg.Server.Migrations, cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return err
				}
			}
			tracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
				Enabled:      cfg.Telemetry.Enabled,
				OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
				ServiceName:  cfg.Telemetry.ServiceName,
				SampleRatio:  cfg.Telemetry.SampleRatio,
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracing.Shutdown(shutdownCtx); err != nil {
					log.Printf("warn: %v", err)
				}
			}()

			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			e := srv.NewEcho(a.pipeline, a.registry, srv.Options{
				BodyLimit:    cfg.Server.BodyLimit,
				AllowOrigins: cfg.Server.AllowOrigins,
				DefaultLevel: cfg.Server.DefaultLevel,
			})
			if addr == "" {
				addr = cfg.Server.Address
			}
			return srv.Run(ctx, e, addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default from server.address)")
	serve.Flags().BoolVar(&migrate, "migrate", true, "apply postgres migrations before serving")
	return serve
}
