package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/config"
	"github.com/lexiqai/tts-gateway/internal/observability"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:           "ttsctl",
	Short:         "Synthesize speech and manage the TTS cache",
	SilenceUsage:  true, // Don't print usage on error
	SilenceErrors: false,
	Long: `ttsctl drives the same synthesis pipeline as the TTS gateway from the
command line. It reads the gateway's environment configuration (and .env),
so synthesized audio lands in the same cache the server serves from.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		// Command output goes to stdout, logs stay on stderr
		logger = observability.NewLogger(os.Stderr, logLevel, logPretty)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", true, "human-readable log output")

	rootCmd.AddCommand(synthesizeCmd, voicesCmd, cacheCmd, checkCmd)
}

func main() {
	// Ctrl-C abandons in-flight provider calls and retry waits
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		// Error already printed by cobra
		os.Exit(1)
	}
}
