// Package rag implements the Retrieval-Augmented Generation engine:
// ingestion (chunk/embed/index) and query (contextualize → HyDE → hybrid
// retrieve → rerank → generate), run as a chain of stages sharing one
// *types.RAGState.
package rag

import "strings"

const (
	chunkSize    = 1024
	chunkOverlap = 20
)

// splitIntoChunks splits text into ~chunkSize character chunks with
// chunkOverlap characters of overlap, breaking on sentence boundaries
// where possible.
func splitIntoChunks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	sentenceEnds := findSentenceBoundaries(text)

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		end = nearestBoundaryBefore(sentenceEnds, end, start)

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// findSentenceBoundaries returns the index just after every '.', '!', '?'
// followed by whitespace or end-of-string.
func findSentenceBoundaries(text string) []int {
	var bounds []int
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				bounds = append(bounds, i+1)
			}
		}
	}
	return bounds
}

// nearestBoundaryBefore returns the sentence boundary closest to (but not
// exceeding) target, as long as it's still past start; otherwise it falls
// back to a hard cut at target.
func nearestBoundaryBefore(bounds []int, target, start int) int {
	best := -1
	for _, b := range bounds {
		if b > start && b <= target {
			best = b
		}
		if b > target {
			break
		}
	}
	if best == -1 {
		return target
	}
	return best
}

// imageDescriptionPrefix tags a chunk as having originated from an image
// description, so retrieval can distinguish visual sources.
func imageDescriptionPrefix(filename string) string {
	return "[IMAGE DESCRIPTION for " + filename + "]\n"
}
