package store

import (
	"strings"
	"unicode"
)

const minTokenLen = 2

// TitleSimilarity returns the Jaccard similarity of the token sets of two
// task titles, in [0, 1]. Short stop-ish tokens are ignored so that
// "buy milk" and "Buy milk and eggs" score on the content words.
func TitleSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(tokensB))
	intersection := 0
	for _, tok := range tokensB {
		if setB[tok] {
			continue
		}
		setB[tok] = true
		if setA[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(s string) []string {
	var tokens []string
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(field) >= minTokenLen {
			tokens = append(tokens, field)
		}
	}
	return tokens
}
