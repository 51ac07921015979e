package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "supportchat",
	Short: "Customer support chat service",
	Long: `supportchat runs the support chat API backed by a hosted LLM, and a
terminal client for talking to it.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}
