package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nstogner/supportchat/pkg/client"
)

var healthURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := client.LoadConfig(client.DefaultConfigPath())
		if err != nil {
			return err
		}
		if healthURL != "" {
			cfg.BaseURL = healthURL
		}

		if !client.New(cfg).CheckHealth(cmd.Context()) {
			return fmt.Errorf("server at %s is not healthy", cfg.BaseURL)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "server at %s is healthy\n", cfg.BaseURL)
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "", "server base URL (overrides client.toml)")
}
