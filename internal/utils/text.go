package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var ugc = bluemonday.UGCPolicy()

// NormalizeTitle applies NFC normalization and collapses runs of whitespace
// into single spaces.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// SanitizeContent applies NFC normalization, strips unsafe HTML and trims
// surrounding whitespace.
func SanitizeContent(s string) string {
	return strings.TrimSpace(ugc.Sanitize(norm.NFC.String(s)))
}
