package main

import (
	"net/url"

	"github.com/mohammad-safakhou/docchat/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const masked = "********"

func configCMD(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redact(*cfg))
		},
	}
}

// redact returns a copy safe to print.
func redact(cfg config.Config) config.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return masked
	}
	cfg.Storage.Postgres.Password = mask(cfg.Storage.Postgres.Password)
	if u, err := url.Parse(cfg.Storage.Postgres.URL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), masked)
			cfg.Storage.Postgres.URL = u.String()
		}
	}
	cfg.Storage.Redis.Password = mask(cfg.Storage.Redis.Password)
	cfg.Embedder.APIKey = mask(cfg.Embedder.APIKey)

	candidates := make([]config.LLMCandidate, len(cfg.LLM.Candidates))
	for i, c := range cfg.LLM.Candidates {
		c.APIKey = mask(c.APIKey)
		candidates[i] = c
	}
	cfg.LLM.Candidates = candidates
	keys := make(map[string]string, len(cfg.LLM.APIKeys))
	for k, v := range cfg.LLM.APIKeys {
		keys[k] = mask(v)
	}
	cfg.LLM.APIKeys = keys
	return cfg
}
