// Package classifier labels chunks with a coarse content type using
// markdown structure heuristics.
package classifier

import (
	"strings"

	"document-intelligence/internal/models"
)

// Classify returns the chunk type for text. The first matching rule wins:
// pipe plus "---" is a markdown table, a leading '#' is a heading, anything
// else is plain text. It never returns ChunkTypeParagraph.
func Classify(text string) models.ChunkType {
	if strings.Contains(text, "|") && strings.Contains(text, "---") {
		return models.ChunkTypeTable
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "#") {
		return models.ChunkTypeHeading
	}
	return models.ChunkTypeText
}
