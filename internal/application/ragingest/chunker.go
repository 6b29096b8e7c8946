// Package ragingest chunks threat model content for retrieval by the chat
// assistant.  Chunks are content-addressed by SHA-256 so re-ingesting
// unchanged Markdown writes nothing.
package ragingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const defaultMaxChunkSize = 1200

// Chunk is one retrieval unit of a model's Markdown.
type Chunk struct {
	Index int
	Text  string
	Hash  string
}

// SplitChunks breaks text into chunks of at most maxSize runes, preferring
// paragraph boundaries so a chunk never starts mid-sentence.  maxSize <= 0
// uses the default.
func SplitChunks(text string, maxSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = defaultMaxChunkSize
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var (
		chunks  []Chunk
		current strings.Builder
	)
	flush := func() {
		body := strings.TrimSpace(current.String())
		current.Reset()
		if body == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  body,
			Hash:  HashChunk(body),
		})
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		// A single oversized paragraph becomes its own chunk rather than
		// being split mid-word.
		if current.Len() > 0 && current.Len()+len(para)+2 > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		if current.Len() >= maxSize {
			flush()
		}
	}
	flush()
	return chunks
}

// HashChunk returns the hex SHA-256 of the chunk body.
func HashChunk(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
