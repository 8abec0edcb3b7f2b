package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/tts"
)

var voicesFlags struct {
	language string
	jsonOut  bool
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices the provider offers",
	Long:  "Voices prints the filtered, sorted voice list served by GET /api/voices.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog := tts.NewVoiceCatalog(newProvider(cmd.Context()), cfg.VoicesTTL(), retryConfig(),
			logger.With().Str("component", "voices").Logger())

		voices, err := catalog.Voices(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list voices (%s): %w", tts.KindOf(err), err)
		}
		voices = filterLanguage(voices, voicesFlags.language)

		out := cmd.OutOrStdout()
		if voicesFlags.jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(voices)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLANGUAGE\tGENDER\tSAMPLE RATE")
		for _, v := range voices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d Hz\n", v.Name, v.LanguageCode, v.SSMLGender, v.NaturalSampleRateHertz)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d voices\n", len(voices))
		return nil
	},
}

func init() {
	voicesCmd.Flags().StringVarP(&voicesFlags.language, "language", "l", "", "only voices whose language starts with this prefix, e.g. en or en-GB")
	voicesCmd.Flags().BoolVar(&voicesFlags.jsonOut, "json", false, "print JSON instead of a table")
}

func filterLanguage(voices []tts.Voice, prefix string) []tts.Voice {
	if prefix == "" {
		return voices
	}
	prefix = strings.ToLower(prefix)
	filtered := voices[:0:0]
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.LanguageCode), prefix) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
