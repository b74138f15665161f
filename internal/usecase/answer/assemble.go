package answer

import (
	"strings"

	"github.com/opencampus/tutordex/internal/domain"
)

// linkPreviewChars bounds the content preview attached to each link.
const linkPreviewChars = 100

// buildContext concatenates the top maxChunks candidates' content,
// each block tagged with its source label and URL so the generator
// can cite provenance inline. Per-chunk content is truncated to
// maxChars before concatenation to bound prompt size. Deterministic.
func buildContext(ranked []domain.ScoredChunk, maxChunks, maxChars int) string {
	n := len(ranked)
	if n > maxChunks {
		n = maxChunks
	}

	var b strings.Builder
	for _, c := range ranked[:n] {
		b.WriteString("\n\n")
		b.WriteString(c.Source.Label())
		b.WriteString(" (URL: ")
		b.WriteString(c.URL)
		b.WriteString("):\n")
		b.WriteString(truncateRunes(c.Content, maxChars))
	}
	return b.String()
}

// buildLinks derives the source-link list from the FULL ranked
// candidate list — not just the context subset — deduplicated by URL
// in rank order, each carrying a short content preview.
func buildLinks(ranked []domain.ScoredChunk) []domain.Link {
	links := make([]domain.Link, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))

	for _, c := range ranked {
		if c.URL == "" {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}

		preview := truncateRunes(c.Content, linkPreviewChars)
		if preview != c.Content {
			preview += "..."
		}
		links = append(links, domain.Link{URL: c.URL, Text: preview})
	}
	return links
}

// truncateRunes cuts s to at most n runes without splitting a
// multi-byte character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
