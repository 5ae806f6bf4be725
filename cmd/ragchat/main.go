package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/app"
	"github.com/iamvkosarev/rag-chat-bot/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var (
	cfgPath string
	verbose bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with a retrieval-augmented search backend",
	Long: `ragchat sends questions to a RAG search backend and shows the answers together
with the source passages they were built from.

Run without arguments to start the terminal chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		// The terminal UI owns stdout.
		if !cmd.HasParent() || cmd.Name() == "tui" {
			log, err = logger.NewIsolated(cfg.Log)
		} else {
			log, err = logger.New(cfg.Log)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: runTUI,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the terminal chat",
	RunE:  runTUI,
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Start the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(
			cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.RunTelegram(ctx)
			},
		)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer with its sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(
			cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Ask(ctx, args[0], cmd.OutOrStdout())
			},
		)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(
			cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Health(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "backend is healthy")
				return err
			},
		)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(telegramCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	return withApp(
		cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.RunTUI(ctx)
		},
	)
}

func withApp(ctx context.Context, run func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Warn("failed to shut down", zap.Error(err))
		}
	}()
	return run(ctx, a)
}
