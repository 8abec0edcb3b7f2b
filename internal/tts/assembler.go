package tts

// AssembleAudio joins per-chunk audio in order.
//
// MP3 and Ogg Opus are frame based, so independently encoded segments play
// back in sequence when concatenated. LINEAR16 responses each carry their own
// WAV header; players that honour the first header's data length stop after
// the first chunk.
func AssembleAudio(buffers [][]byte) []byte {
	switch len(buffers) {
	case 0:
		return []byte{}
	case 1:
		return buffers[0]
	}

	total := 0
	for _, b := range buffers {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}
