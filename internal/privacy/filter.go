// Package privacy removes caller-marked sensitive spans before anything is
// persisted or indexed.
package privacy

import (
	"regexp"
	"strings"
)

var privateBlockRe = regexp.MustCompile(`(?s)<private>.*?</private>`)

// StripPrivateTags deletes every <private>...</private> block, including
// multiline blocks, and trims surrounding whitespace.
func StripPrivateTags(content string) string {
	return strings.TrimSpace(privateBlockRe.ReplaceAllString(content, ""))
}

// HasOnlyPrivateContent reports whether nothing remains after stripping,
// meaning the record should be rejected rather than stored empty.
func HasOnlyPrivateContent(content string) bool {
	return StripPrivateTags(content) == ""
}
