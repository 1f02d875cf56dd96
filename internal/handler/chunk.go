package handler

import "github.com/ZaguanLabs/gomtl"

// DefaultMaxTokens bounds the estimated prompt payload of one bulk request.
const DefaultMaxTokens = 3000

// estimateTokens uses the rough 4-characters-per-token rule for Latin text.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(len(text)/4, 1)
}

// chunkTexts splits texts into groups that fit one bulk request: at most
// gomtl.MaxBatchItems items and maxTokens estimated tokens. Texts are never
// split; an oversized text gets a chunk of its own.
func chunkTexts(texts []string, maxTokens int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var chunks [][]string
	var current []string
	tokens := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current, tokens = nil, 0
		}
	}

	for _, text := range texts {
		n := estimateTokens(text)
		if n > maxTokens {
			flush()
			chunks = append(chunks, []string{text})
			continue
		}
		if tokens+n > maxTokens || len(current) == gomtl.MaxBatchItems {
			flush()
		}
		current = append(current, text)
		tokens += n
	}
	flush()
	return chunks
}
