package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/queue/streams"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
	"github.com/mohammad-safakhou/docchat/internal/worker"
	"github.com/spf13/cobra"
)

func workerCMD(load loader) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued documents and ingest them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.Storage.Redis.Enabled() {
				return fmt.Errorf("worker needs storage.redis.host")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			tracing, err := telemetry.SetupTracing(ctx, telemetry.TracingOptions{
				Enabled:      cfg.Telemetry.Enabled,
				OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
				ServiceName:  cfg.Telemetry.ServiceName + "-worker",
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

			a, err := buildApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			rdb, err := a.redis(ctx)
			if err != nil {
				return err
			}

			ic := cfg.Ingest
			if name == "" {
				name = ic.Consumer
			}
			runner := worker.NewRunner(worker.Options{
				Stream:      ic.Stream,
				MaxAttempts: ic.MaxAttempts,
				ClaimIdle:   ic.ClaimIdle,
				MaxLen:      ic.MaxLen,
			}, streams.NewConsumer(rdb, ic.Stream, ic.Group, name), streams.NewPublisher(rdb), a.pipeline, a.metrics)
			return runner.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "consumer name within the group (default from ingest.consumer)")
	return cmd
}
