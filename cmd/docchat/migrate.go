package main

import (
	"fmt"

	"github.com/mohammad-safakhou/docchat/config"
	srv "github.com/mohammad-safakhou/docchat/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD(load loader) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations apply to the postgres driver only; sqlite creates its schema on open")
			}
			if migDir == "" {
				migDir = cfg.Server.Migrations
			}
			return srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default from server.migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
