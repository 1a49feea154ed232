package retriever

import (
	"strings"
	"unicode"
)

// stopWords are removed before keyword matching (spec §4.2 step 2).
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "and": true,
	"or": true, "but": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "with": true, "by": true, "from": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "as": true, "we": true, "our": true, "has": true,
	"have": true, "had": true, "do": true, "does": true, "did": true,
	"not": true, "no": true, "can": true, "could": true, "will": true,
	"would": true, "should": true,
}

// tokenize lowercases, splits on non-alphanumeric boundaries, and drops
// stop words and tokens shorter than 2 characters (spec §4.2 keyword
// filter step). CJK runes have no inter-word spaces, so each one is its
// own token rather than being grouped or dropped by the ASCII word-run
// logic below.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := strings.ToLower(b.String())
		b.Reset()
		if len(tok) < 2 || stopWords[tok] {
			return
		}
		tokens[tok] = true
	}

	for _, r := range text {
		switch {
		case isASCIIWordRune(r):
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flush()
			tokens[strings.ToLower(string(r))] = true
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func isASCIIWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// keywordHits counts the intersection between the query's tokens and the
// tokens of the given text.
func keywordHits(queryTokens map[string]bool, text string) int {
	hits := 0
	for tok := range tokenize(text) {
		if queryTokens[tok] {
			hits++
		}
	}
	return hits
}
