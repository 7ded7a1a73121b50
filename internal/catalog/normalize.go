package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var yoReplacer = strings.NewReplacer("ё", "е")

// Normalize prepares user text for comparison: NFC, Unicode case folding,
// collapsed whitespace, and "ё" folded to "е".
func Normalize(s string) string {
	s = norm.NFC.String(s)
	// A Caser keeps state, so each call gets its own.
	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")
	return yoReplacer.Replace(s)
}
