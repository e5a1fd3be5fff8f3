package reconcile

import (
	"strings"
	"unicode"
)

// stripped holds every rune Normalize drops besides white space
const stripped = "" +
	// quotation marks
	"\"'`" + "“”‘’„‟‚‛«»‹›" + "＂＇" +
	// brackets
	"()[]{}<>" + "（）【】《》〈〉「」『』〔〕［］｛｝〖〗〘〙＜＞" +
	// punctuation
	",.;!?" + "、。，；！？・…·｡､" +
	// colons
	":：" +
	// slashes and bars
	"/\\|" + "／＼｜" +
	// dashes and underscores
	"-_~" + "—–―‐‑－＿～"

// Normalize reduces a display name to its comparison key: lower case with
// quotes, brackets, punctuation, separators and all white space removed.
// It is total and idempotent.
func Normalize(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, strings.ToLower(name))
}
