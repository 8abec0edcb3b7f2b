package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/resilience"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify provider credentials and the cache directory",
	Long: `Check runs the same probes as GET /ready. Token fetches that
fail on the network are retried.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		provider := newProvider(ctx)
		err := resilience.Retry(ctx, func(ctx context.Context) error {
			_, err := provider.CheckCredentials(ctx)
			return err
		}, retryConfig(), resilience.IsRetryableNetworkError)
		if err != nil {
			fmt.Fprintf(out, "google_tts: FAIL (%v)\n", err)
			return errors.New("provider credentials are not usable")
		}
		fmt.Fprintln(out, "google_tts: ok")

		store, err := openStore()
		if err != nil {
			fmt.Fprintf(out, "cache: FAIL (%v)\n", err)
			return errors.New("cache is not usable")
		}
		defer store.Close()
		fmt.Fprintf(out, "cache: ok (%s)\n", store.Backend())
		return nil
	},
}
