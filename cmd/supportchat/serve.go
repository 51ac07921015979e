package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/nstogner/supportchat/pkg/auth"
	"github.com/nstogner/supportchat/pkg/channel"
	"github.com/nstogner/supportchat/pkg/chat"
	"github.com/nstogner/supportchat/pkg/config"
	"github.com/nstogner/supportchat/pkg/llm"
	"github.com/nstogner/supportchat/pkg/llm/gemini"
	"github.com/nstogner/supportchat/pkg/llm/openrouter"
	"github.com/nstogner/supportchat/pkg/logging"
	"github.com/nstogner/supportchat/pkg/retention"
	"github.com/nstogner/supportchat/pkg/server"
	"github.com/nstogner/supportchat/pkg/store/sqlite"
)

const shutdownTimeout = 15 * time.Second

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	Long: `Start the chat API server. Settings come from the environment
(OPENROUTER_API_KEY, LLM_PROVIDER, MODEL, PORT, ...) and an optional config file.
LLM_TIMEOUT takes a duration such as "30s" or a number of milliseconds.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to a config file (yaml, toml or json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Configuration validation failed:")
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return errors.Join(errs...)
	}

	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting supportchat",
		"version", Version,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"database", cfg.DatabasePath,
	)

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s completer: %w", cfg.Provider, err)
	}

	inv := llm.NewInvoker(completer, cfg.InvokerOptions(),
		llm.WithMetrics(llm.NewMetrics("supportchat", nil)),
	)
	svc := chat.New(st, inv, channel.DefaultRegistry(cfg.MaxMessageLength), cfg.HistoryWindow)
	srv := server.New(server.Config{
		Chat:       svc,
		Users:      auth.NewDirectory(),
		Assistant:  inv,
		Database:   st,
		Configured: cfg.APIKey() != "",
	})

	var sweeper *retention.Sweeper
	if cfg.RetentionDays > 0 {
		sweeper, err = retention.New(st, time.Duration(cfg.RetentionDays)*24*time.Hour, cfg.RetentionSchedule)
		if err != nil {
			return err
		}
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		if err := srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sweeper != nil {
		p.Go(sweeper.Run)
	}

	return p.Wait()
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return openrouter.New(openrouter.Config{
			APIKey:   cfg.OpenRouterAPIKey,
			SiteURL:  cfg.SiteURL,
			SiteName: cfg.SiteName,
		}, nil), nil
	}
}
