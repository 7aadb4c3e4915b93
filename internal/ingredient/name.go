package ingredient

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Canonical returns the stored form of an ingredient or tag name: NFC
// normalized, lowercased, with whitespace runs collapsed.
func Canonical(name string) string {
	name = norm.NFC.String(name)
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// DecodeName replaces every well-formed %XX escape with the byte it encodes.
// Malformed escapes are kept verbatim and "+" is not treated as a space.
// Invalid UTF-8 produced by decoding is replaced with U+FFFD.
func DecodeName(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '%' && i+2 < len(name) {
			hi, ok1 := unhex(name[i+1])
			lo, ok2 := unhex(name[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(name[i])
	}
	out := b.String()
	if !utf8.ValidString(out) {
		out = strings.ToValidUTF8(out, "�")
	}
	return out
}

// HasEncoding reports whether name still contains a decodable escape.
func HasEncoding(name string) bool {
	return DecodeName(name) != name
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// TitleCase capitalizes the first letter of every whitespace-separated word
// and lowercases the rest.
func TitleCase(name string) string {
	words := strings.Fields(name)
	caser := cases.Title(language.Und)
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
