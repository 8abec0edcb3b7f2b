package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lexiqai/tts-gateway/internal/cache"
	"github.com/lexiqai/tts-gateway/internal/observability"
	"github.com/lexiqai/tts-gateway/internal/tts"
)

var synthesizeFlags struct {
	text     string
	ssml     string
	file     string
	fileSSML bool
	voice    string
	language string
	encoding string
	rate     float64
	pitch    float64
	gain     float64
	output   string
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [text]",
	Short: "Synthesize text or SSML to an audio file",
	Long: `Synthesize runs a request through the cache and the provider exactly as
POST /api/tts does. Long text is split into chunks and the audio is joined.

Input comes from the positional argument, --text, --ssml, or --file
("-" reads standard input).`,
	Example: `  ttsctl synthesize "Hello there" -o hello.mp3
  ttsctl synthesize --file chapter1.txt --voice en-US-Wavenet-D
  echo '<speak>Hi<break time="1s"/>there</speak>' | ttsctl synthesize --file - --ssml-input`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSynthesize,
}

func init() {
	f := synthesizeCmd.Flags()
	f.StringVar(&synthesizeFlags.text, "text", "", "plain text to speak")
	f.StringVar(&synthesizeFlags.ssml, "ssml", "", "SSML document to speak")
	f.StringVarP(&synthesizeFlags.file, "file", "f", "", "read input from a file, - for stdin")
	f.BoolVar(&synthesizeFlags.fileSSML, "ssml-input", false, "treat --file input as SSML")
	f.StringVar(&synthesizeFlags.voice, "voice", "", "voice name, e.g. en-US-Wavenet-D")
	f.StringVar(&synthesizeFlags.language, "language", "", "BCP-47 language code (default from TTS_DEFAULT_LANGUAGE)")
	f.StringVar(&synthesizeFlags.encoding, "encoding", string(tts.DefaultAudioEncoding), "audio encoding: MP3, OGG_OPUS, LINEAR16")
	f.Float64Var(&synthesizeFlags.rate, "rate", tts.DefaultSpeakingRate, "speaking rate, 0.25 to 4.0")
	f.Float64Var(&synthesizeFlags.pitch, "pitch", tts.DefaultPitch, "pitch in semitones, -20 to 20")
	f.Float64Var(&synthesizeFlags.gain, "gain", tts.DefaultVolumeGainDb, "volume gain in dB, -96 to 16")
	f.StringVarP(&synthesizeFlags.output, "output", "o", "", "output file (default <cache key>.<ext>, - for stdout)")
	synthesizeCmd.MarkFlagsMutuallyExclusive("text", "ssml", "file")
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	req, err := synthesisRequest(cmd, args)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := observability.ContextWithRequestID(cmd.Context(), observability.NewRequestID())
	res, err := newService(ctx, store).Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesis failed (%s): %w", tts.KindOf(err), err)
	}

	output := synthesizeFlags.output
	if output == "-" {
		_, err := cmd.OutOrStdout().Write(res.Audio)
		return err
	}
	if output == "" {
		output = res.CacheKey + "." + cache.Extension(res.MimeType)
	}
	if err := os.WriteFile(output, res.Audio, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	source := "synthesized"
	if res.CacheHit {
		source = "cache hit"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s to %s (%s, key %s)\n",
		humanize.Bytes(uint64(len(res.Audio))), output, source, res.CacheKey)
	return nil
}

// synthesisRequest assembles a request from flags and input sources
func synthesisRequest(cmd *cobra.Command, args []string) (tts.Request, error) {
	req := tts.Request{
		Text:          synthesizeFlags.text,
		SSML:          synthesizeFlags.ssml,
		VoiceName:     synthesizeFlags.voice,
		LanguageCode:  synthesizeFlags.language,
		AudioEncoding: tts.AudioEncoding(synthesizeFlags.encoding),
		SpeakingRate:  synthesizeFlags.rate,
		Pitch:         synthesizeFlags.pitch,
		VolumeGainDb:  synthesizeFlags.gain,
	}

	if len(args) == 1 {
		if req.Text != "" || req.SSML != "" || synthesizeFlags.file != "" {
			return req, errors.New("pass input either as an argument or with --text, --ssml or --file")
		}
		req.Text = args[0]
	}

	if synthesizeFlags.file != "" {
		input, err := readInput(cmd.InOrStdin(), synthesizeFlags.file)
		if err != nil {
			return req, err
		}
		if synthesizeFlags.fileSSML {
			req.SSML = input
		} else {
			req.Text = input
		}
	}

	if req.Text == "" && req.SSML == "" {
		return req, errors.New("nothing to synthesize: pass text, --ssml or --file")
	}
	return req, nil
}

func readInput(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
