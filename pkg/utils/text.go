package utils

import "strings"

// Tokens splits a sentence into its whitespace-delimited tokens.
// Input lines are assumed to be pre-tokenized (one space between tokens),
// so this is the inverse of strings.Join(tokens, " ").
func Tokens(sentence string) []string {
	return strings.Fields(sentence)
}

// TokenCount returns the number of whitespace-delimited tokens in text.
// Empty or blank text counts as zero tokens.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}
