package translate

import (
	"strings"
	"unicode"
)

// Re-chunking thresholds, in runes. Text at or under chunkMaxLen with
// fewer than chunkMaxBreaks paragraph breaks is left alone; otherwise
// it is re-segmented into paragraph-sized chunks, merging neighbors
// shorter than mergeThreshold.
const (
	chunkMaxLen    = 1200
	chunkMaxBreaks = 5
	mergeThreshold = 440
)

// ChunkParagraphs re-segments overly long translated text into
// paragraph-sized chunks at sentence boundaries. Chunking an already
// chunked text yields the same result.
func ChunkParagraphs(text string) string {
	if len([]rune(text)) <= chunkMaxLen && strings.Count(text, "\n\n") < chunkMaxBreaks {
		return text
	}

	var res []string
	for _, chunk := range splitSentences(text) {
		if len(res) > 0 && len([]rune(chunk))+len([]rune(res[len(res)-1])) < mergeThreshold {
			res[len(res)-1] += " " + chunk
		} else {
			res = append(res, chunk)
		}
	}
	return strings.Join(res, "\n\n")
}

// splitSentences splits text at whitespace runs that follow a sentence
// terminator (. ! ?) closing a run of at least 20 non-digit runes.
// The digit guard keeps abbreviated numbers ("v1.2", "10.000") from
// opening a new chunk.
func splitSentences(text string) []string {
	const lookbehind = 20

	runes := []rune(text)
	var parts []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || i < lookbehind+1 {
			continue
		}
		p := runes[i-1]
		if p != '.' && p != '!' && p != '?' {
			continue
		}
		ok := true
		for j := i - 1 - lookbehind; j < i-1; j++ {
			if unicode.IsDigit(runes[j]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		end := i
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		parts = append(parts, string(runes[start:end]))
		start = i
		i--
	}

	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

// TruncateText shortens text to at most maxLen runes, preferring the
// last sentence boundary (or blank line) when it lies beyond 60% of
// the budget, and appends an ellipsis marker.
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	// Reserve space for the ellipsis marker.
	maxLen -= 4
	truncated := string(runes[:maxLen])

	lastEnd := strings.LastIndexAny(truncated, ".!?")
	if idx := strings.LastIndex(truncated, "\n\n"); idx > lastEnd {
		lastEnd = idx
	}

	lastEndRunes := -1
	if lastEnd >= 0 {
		lastEndRunes = len([]rune(truncated[:lastEnd]))
	}
	if float64(lastEndRunes) > float64(maxLen)*0.6 {
		truncated = string([]rune(truncated)[:lastEndRunes+1])
	}

	return strings.TrimRightFunc(truncated, unicode.IsSpace) + " ..."
}
