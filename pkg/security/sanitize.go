package security

import (
	"regexp"
	"strings"
	"unicode"
)

var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*[a-z][^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// SanitizeString trims the input, drops NUL and control characters and
// collapses runs of whitespace into a single space.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = removeControlCharacters(input)
	return strings.Join(strings.Fields(input), " ")
}

// ContainsMarkup reports whether input looks like HTML or script injection.
func ContainsMarkup(input string) bool {
	for _, pattern := range markupPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// HasPrintableContent reports whether input contains at least one letter or digit.
func HasPrintableContent(input string) bool {
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func removeControlCharacters(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, input)
}
