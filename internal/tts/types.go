package tts

import (
	"context"
	"strings"
)

// AudioEncoding names a provider output codec
type AudioEncoding string

const (
	EncodingMP3      AudioEncoding = "MP3"
	EncodingOggOpus  AudioEncoding = "OGG_OPUS"
	EncodingLinear16 AudioEncoding = "LINEAR16"
)

// Defaults applied by Request.Normalize
const (
	DefaultLanguageCode  = "en-US"
	DefaultAudioEncoding = EncodingMP3
	DefaultSpeakingRate  = 1.0
	DefaultPitch         = 0.0
	DefaultVolumeGainDb  = 0.0
)

// Request is a single synthesis request. Exactly one of Text and SSML is set.
type Request struct {
	Text          string        `json:"text,omitempty"`
	SSML          string        `json:"ssml,omitempty"`
	VoiceName     string        `json:"voiceName,omitempty"`
	LanguageCode  string        `json:"languageCode,omitempty"`
	AudioEncoding AudioEncoding `json:"audioEncoding,omitempty"`
	SpeakingRate  float64       `json:"speakingRate,omitempty"` // 0 means default
	Pitch         float64       `json:"pitch,omitempty"`
	VolumeGainDb  float64       `json:"volumeGainDb,omitempty"`
}

// Input returns the text that will be spoken and whether it is SSML.
// Plain text that starts with a <speak> root is treated as SSML.
func (r Request) Input() (string, bool) {
	if strings.TrimSpace(r.SSML) != "" {
		return r.SSML, true
	}
	return r.Text, IsSSML(r.Text)
}

// VoiceParams are the per-request settings shared by every chunk
type VoiceParams struct {
	VoiceName     string
	LanguageCode  string
	AudioEncoding AudioEncoding
	SpeakingRate  float64
	Pitch         float64
	VolumeGainDb  float64
}

// Params extracts the voice parameters of a normalized request
func (r Request) Params() VoiceParams {
	return VoiceParams{
		VoiceName:     r.VoiceName,
		LanguageCode:  r.LanguageCode,
		AudioEncoding: r.AudioEncoding,
		SpeakingRate:  r.SpeakingRate,
		Pitch:         r.Pitch,
		VolumeGainDb:  r.VolumeGainDb,
	}
}

// Chunk is one ordered segment of a request's input
type Chunk struct {
	Index int
	Text  string
}

// SpeechRequest is a single provider call
type SpeechRequest struct {
	Input  string
	SSML   bool
	Params VoiceParams
}

// Provider performs one synthesis call against the TTS backend
type Provider interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// Voice describes a provider voice
type Voice struct {
	Name                   string `json:"name"`
	LanguageCode           string `json:"languageCode"`
	SSMLGender             string `json:"ssmlGender"`
	NaturalSampleRateHertz int    `json:"naturalSampleRateHertz"`
}

// AudioCache is the cache contract the service depends on
type AudioCache interface {
	Has(key string) bool
	Get(key string) ([]byte, bool)
	Set(key string, data []byte, mimeType string)
}

// Result is the outcome of Service.Synthesize
type Result struct {
	Audio    []byte
	MimeType string
	CacheKey string
	CacheHit bool
}
