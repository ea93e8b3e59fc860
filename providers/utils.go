package providers

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseModelName splits a full model name string into its provider and model parts.
// The expected format is "provider/model_name".
func ParseModelName(fullModelName string) (string, string, error) {
	parts := strings.SplitN(fullModelName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format. Expected 'provider/model_name', got '%s'", fullModelName)
	}
	return parts[0], parts[1], nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every whitespace run, newlines included, with
// one space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

var unsafePromptChars = regexp.MustCompile(`[^\w\s.,!?-]`)

// StripSpecialChars drops everything except word characters, whitespace and
// basic punctuation.
func StripSpecialChars(s string) string {
	return strings.TrimSpace(unsafePromptChars.ReplaceAllString(s, ""))
}

// TruncateRunes cuts s to at most n characters and trims the result.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return CollapseWhitespace(string(r[:n]))
}
