package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// transliterator folds common Latin diacritics to their ASCII base letters.
var transliterator = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ã", "a", "ä", "a", "å", "a", "æ", "ae",
	"ç", "c", "č", "c", "ć", "c",
	"è", "e", "é", "e", "ê", "e", "ë", "e", "ę", "e",
	"ğ", "g",
	"ì", "i", "í", "i", "î", "i", "ï", "i", "ı", "i",
	"ł", "l",
	"ñ", "n", "ń", "n",
	"ò", "o", "ó", "o", "ô", "o", "õ", "o", "ö", "o", "ø", "o", "œ", "oe",
	"ş", "s", "š", "s", "ś", "s", "ß", "ss",
	"ù", "u", "ú", "u", "û", "u", "ü", "u",
	"ý", "y", "ÿ", "y",
	"ž", "z", "ź", "z", "ż", "z",
)

// Generate creates a lowercase, hyphen-separated ASCII slug from s.
//
// Examples:
//   - "Gaming Laptop" → "gaming-laptop"
//   - "Crème Brûlée" → "creme-brulee"
//   - "Hello   World!" → "hello-world"
func Generate(s string) string {
	out := strings.ToLower(strings.TrimSpace(s))
	out = transliterator.Replace(out)
	out = nonAlnum.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}

// GenerateMax is Generate truncated to at most max bytes. Truncation happens
// at the last hyphen inside the limit when there is one, so words are not
// split. A non-positive max disables truncation.
func GenerateMax(s string, max int) string {
	out := Generate(s)
	if max <= 0 || len(out) <= max {
		return out
	}
	out = out[:max]
	if i := strings.LastIndexByte(out, '-'); i > 0 {
		out = out[:i]
	}
	return strings.Trim(out, "-")
}
