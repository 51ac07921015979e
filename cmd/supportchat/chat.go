package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nstogner/supportchat/pkg/client"
	"github.com/nstogner/supportchat/pkg/logging"
	"github.com/nstogner/supportchat/pkg/tui"
)

var (
	chatConfigPath string
	chatURL        string
	chatSession    string
	chatSkipLogin  bool
	chatLogFile    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the terminal chat client",
	Long: `Open the terminal chat client.

Commands:
  /exit     quit
  /new      start a new conversation
  /history  reload the current conversation`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatConfigPath, "config", client.DefaultConfigPath(), "client config file")
	chatCmd.Flags().StringVar(&chatURL, "url", "", "server base URL (overrides the config file)")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume an existing conversation")
	chatCmd.Flags().BoolVar(&chatSkipLogin, "skip-login", false, "go straight to the chat view")
	chatCmd.Flags().StringVar(&chatLogFile, "log-file", "supportchat-client.log", "where to write client logs")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := client.LoadConfig(chatConfigPath)
	if err != nil {
		return err
	}
	if chatURL != "" {
		cfg.BaseURL = chatURL
	}

	// The terminal belongs to the UI, so logs go to a file.
	f, err := os.OpenFile(chatLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log, err := logging.New(f, os.Getenv("LOG_LEVEL"), "text")
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	retries := make(chan client.RetryEvent, 8)
	c := client.New(cfg, client.WithRetryNotify(func(e client.RetryEvent) {
		select {
		case retries <- e:
		default:
		}
	}))

	return tui.Run(cmd.Context(), c, tui.Options{
		SessionID: chatSession,
		SkipLogin: chatSkipLogin,
		Retries:   retries,
	})
}
