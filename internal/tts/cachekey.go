package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// CacheKey derives the cache identifier for a normalized request.
// Every field that changes the synthesized bytes takes part, numbers are
// fixed to two decimals so 1 and 1.0000001 hash the same, and model is the
// provider model discriminator (empty when unused).
func CacheKey(req Request, model string) string {
	text, _ := req.Input()

	canonical := strings.Join([]string{
		text,
		req.VoiceName,
		req.LanguageCode,
		string(req.AudioEncoding),
		formatParam(req.SpeakingRate),
		formatParam(req.Pitch),
		formatParam(req.VolumeGainDb),
		model,
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func formatParam(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	// -0.001 rounds to "-0.00"; keep a single spelling of zero
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

// AudioExtension maps an encoding to the cache file extension
func AudioExtension(encoding AudioEncoding) string {
	switch encoding {
	case EncodingMP3:
		return "mp3"
	case EncodingOggOpus:
		return "ogg"
	case EncodingLinear16, "MULAW", "ALAW":
		return "wav"
	default:
		return "mp3"
	}
}

// AudioMimeType maps an encoding to its HTTP content type
func AudioMimeType(encoding AudioEncoding) string {
	switch encoding {
	case EncodingMP3:
		return "audio/mpeg"
	case EncodingOggOpus:
		return "audio/ogg"
	case EncodingLinear16, "MULAW", "ALAW":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
