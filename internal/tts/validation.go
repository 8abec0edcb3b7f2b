package tts

import (
	"errors"
	"fmt"
	"strings"
)

// Parameter bounds accepted by the provider
const (
	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
	MinPitch        = -20.0
	MaxPitch        = 20.0
	MinVolumeGainDb = -96.0
	MaxVolumeGainDb = 16.0
)

// Normalize fills omitted optional fields with their defaults so that
// "omitted" and "explicitly default" requests are identical.
func (r Request) Normalize(defaultLanguage string) Request {
	if defaultLanguage == "" {
		defaultLanguage = DefaultLanguageCode
	}

	// A blank input field counts as absent
	if strings.TrimSpace(r.Text) == "" {
		r.Text = ""
	}
	if strings.TrimSpace(r.SSML) == "" {
		r.SSML = ""
	}

	r.VoiceName = strings.TrimSpace(r.VoiceName)
	r.LanguageCode = strings.TrimSpace(r.LanguageCode)
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguage
	}
	r.AudioEncoding = AudioEncoding(strings.ToUpper(strings.TrimSpace(string(r.AudioEncoding))))
	if r.AudioEncoding == "" {
		r.AudioEncoding = DefaultAudioEncoding
	}
	if r.SpeakingRate == 0 {
		r.SpeakingRate = DefaultSpeakingRate
	}
	return r
}

// Validate checks a normalized request. Failures are invalid-argument errors.
func (r Request) Validate() error {
	hasText := strings.TrimSpace(r.Text) != ""
	hasSSML := strings.TrimSpace(r.SSML) != ""

	switch {
	case !hasText && !hasSSML:
		return invalidArgument("either text or ssml must be provided")
	case hasText && hasSSML:
		return invalidArgument("text and ssml are mutually exclusive")
	}

	switch r.AudioEncoding {
	case EncodingMP3, EncodingOggOpus, EncodingLinear16:
	default:
		return invalidArgument(fmt.Sprintf("unsupported audioEncoding %q", r.AudioEncoding))
	}

	if err := checkRange("speakingRate", r.SpeakingRate, MinSpeakingRate, MaxSpeakingRate); err != nil {
		return err
	}
	if err := checkRange("pitch", r.Pitch, MinPitch, MaxPitch); err != nil {
		return err
	}
	return checkRange("volumeGainDb", r.VolumeGainDb, MinVolumeGainDb, MaxVolumeGainDb)
}

func checkRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return invalidArgument(fmt.Sprintf("%s must be between %.2f and %.2f, got %.2f", field, lo, hi, v))
	}
	return nil
}

func invalidArgument(msg string) error {
	return &Error{Kind: KindInvalidArgument, Op: "validate", Err: errors.New(msg)}
}
