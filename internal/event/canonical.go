package event

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName normalizes a player or match name for storage and
// comparison: NFC unicode normalization plus surrounding-whitespace trim.
// Two devices entering "José" with different codepoint compositions must
// store and compare the same bytes.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
