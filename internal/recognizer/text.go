package recognizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var punctuationFolds = map[rune]string{
	'\u2018': "'", '\u2019': "'",
	'\u201C': "\"", '\u201D': "\"",
	'\u2013': "-", '\u2014': "-",
	'\u00A0': " ", '\u2009': " ",
}

var languageFolds = map[string]map[rune]string{
	"de": {'\u201E': "\""},
	"fr": {'\u00AB': "\"", '\u00BB': "\""},
}

// PostProcessText NFC-normalizes recognized text, drops zero-width and
// control characters, folds typographic punctuation and collapses
// whitespace. The result may be empty.
func PostProcessText(s, language string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	extra := languageFolds[strings.ToLower(language)]

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
			continue
		}
		rep, ok := extra[r]
		if !ok {
			rep, ok = punctuationFolds[r]
		}
		if ok {
			if rep == " " {
				space = true
				continue
			}
			flushSpace(&b, &space)
			b.WriteString(rep)
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		flushSpace(&b, &space)
		b.WriteRune(r)
	}
	return b.String()
}

func flushSpace(b *strings.Builder, pending *bool) {
	if *pending && b.Len() > 0 {
		b.WriteByte(' ')
	}
	*pending = false
}
