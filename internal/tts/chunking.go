package tts

import (
	"regexp"
	"strings"
)

// MaxChunkBytes is the default byte budget per provider call. The provider
// rejects inputs over 5000 bytes; the margin covers request overhead.
const MaxChunkBytes = 4500

// sentenceEnd matches terminal punctuation followed by whitespace or end of input
var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// IsSSML reports whether text is an SSML document (a leading <speak> root)
func IsSSML(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "<speak")
}

// PlanChunks splits text into ordered chunks of at most maxBytes UTF-8 bytes.
//
// SSML is never split: markup cannot be cut at arbitrary sentence boundaries,
// so an oversized document is sent as-is and left to the provider to reject.
// Plain text is split on sentence boundaries, and sentences that are too long
// on their own are split on whitespace. A single word longer than maxBytes
// cannot be divided and becomes its own oversized chunk.
func PlanChunks(text string, maxBytes int) []Chunk {
	if maxBytes <= 0 {
		maxBytes = MaxChunkBytes
	}

	if len(text) <= maxBytes || IsSSML(text) {
		return []Chunk{{Index: 0, Text: text}}
	}

	var p planner
	p.maxBytes = maxBytes
	for _, sentence := range splitSentences(text) {
		if len(sentence) > maxBytes {
			p.flush()
			for _, word := range strings.Fields(sentence) {
				p.add(word)
			}
			continue
		}
		p.add(sentence)
	}
	p.flush()

	if len(p.chunks) == 0 {
		return []Chunk{{Index: 0, Text: text}}
	}
	return p.chunks
}

// planner accumulates pieces into chunks, closing a chunk before the next
// piece would push it over the budget.
type planner struct {
	maxBytes int
	current  strings.Builder
	chunks   []Chunk
}

func (p *planner) add(piece string) {
	if p.current.Len() > 0 && p.current.Len()+1+len(piece) > p.maxBytes {
		p.flush()
	}
	if p.current.Len() > 0 {
		p.current.WriteByte(' ')
	}
	p.current.WriteString(piece)
}

func (p *planner) flush() {
	chunk := strings.TrimSpace(p.current.String())
	p.current.Reset()
	if chunk == "" {
		return
	}
	p.chunks = append(p.chunks, Chunk{Index: len(p.chunks), Text: chunk})
}

// splitSentences returns the trimmed, non-empty sentences of text in order
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}
