package search

import (
	"strings"
	"unicode"
)

// Tokenize splits a query into lowercase word tokens. Everything that is not
// a letter or digit separates tokens, so FTS5 operators in user input are
// never interpreted.
func Tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// IsPhrase reports whether the query is wrapped in double quotes.
func IsPhrase(query string) bool {
	q := strings.TrimSpace(query)
	return len(q) >= 2 && strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`)
}

// BuildMatch turns user input into an FTS5 MATCH expression. Plain input
// becomes an AND of prefix terms ("west" matches "Westworld"); input wrapped
// in double quotes becomes one exact phrase. ok is false when the input has
// no searchable tokens.
func BuildMatch(query string) (expr string, ok bool) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return "", false
	}

	if IsPhrase(query) {
		return `"` + strings.Join(tokens, " ") + `"`, true
	}

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = `"` + tok + `"*`
	}
	return strings.Join(terms, " AND "), true
}
