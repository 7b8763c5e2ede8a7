package rag

import "strings"

// Chunker splits document text into overlapping chunks sized for embedding.
// Splitting is recursive: it prefers paragraph boundaries, then line breaks,
// then word boundaries, and only cuts mid-word as a last resort.
type Chunker struct {
	chunkSize int
	overlap   int

	separators []string
}

// NewChunker creates a chunker. Non-positive arguments fall back to the
// defaults of 1000 characters per chunk with 200 characters of overlap.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 200
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}

	return &Chunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", " ", ""},
	}
}

// Split breaks text into chunks of at most the configured size. Consecutive
// chunks overlap so that context spanning a boundary is not lost.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	pieces := c.split(text, c.separators)

	return c.merge(pieces)
}

// split recursively divides text on the first separator that appears in it,
// descending to finer separators for pieces that are still too large.
func (c *Chunker) split(text string, separators []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	sep := separators[len(separators)-1]
	rest := separators
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		for i := 0; i < len(text); i += c.chunkSize {
			end := i + c.chunkSize
			if end > len(text) {
				end = len(text)
			}
			parts = append(parts, text[i:end])
		}
		return parts
	}

	var out []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if len(part) <= c.chunkSize {
			out = append(out, part)
			continue
		}
		out = append(out, c.split(part, rest)...)
	}

	return out
}

// merge packs split pieces back into chunks close to the target size,
// carrying overlap text forward between chunks. A chunk may exceed the
// target by the overlap length when the carried seed precedes a full piece.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder
	seedLen := 0

	flush := func() {
		chunk := strings.TrimSpace(current.String())
		current.Reset()
		seedLen = 0
		if chunk == "" {
			return
		}
		chunks = append(chunks, chunk)

		if c.overlap > 0 {
			seed := chunk
			if len(seed) > c.overlap {
				seed = seed[len(seed)-c.overlap:]
				// Align to a word boundary inside the overlap window.
				if idx := strings.IndexByte(seed, ' '); idx >= 0 && idx < len(seed)-1 {
					seed = seed[idx+1:]
				}
			}
			current.WriteString(seed)
			seedLen = current.Len()
		}
	}

	for _, piece := range pieces {
		// Only flush when the chunk holds more than the carried seed,
		// otherwise an oversized seed would flush forever.
		if current.Len() > seedLen && current.Len()+len(piece)+1 > c.chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(piece)
	}

	if current.Len() > seedLen {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	} else if len(chunks) == 0 && strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}
