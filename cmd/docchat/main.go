package main

import (
	"os"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "docchat",
		Short:        "Ask questions about your documents",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml)")

	load := func() (*config.Config, error) { return config.LoadConfig(cfgPath) }
	root.AddCommand(serveCMD(load), migrateCMD(load), ingestCMD(load), askCMD(load), configCMD(load), workerCMD(load))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type loader func() (*config.Config, error)
