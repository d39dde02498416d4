// Package utils holds small helpers shared across packages
package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxLogStringLength is the number of runes of a client-supplied value kept in a log line
const MaxLogStringLength = 128

var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString makes a client-supplied value (room id, user id, message type)
// safe to interpolate into a log line: control characters become spaces, format
// verbs are escaped and long values are truncated.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if runes := []rune(input); len(runes) > MaxLogStringLength {
		input = string(runes[:MaxLogStringLength]) + "...(truncated)"
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	sanitized = strings.ReplaceAll(sanitized, "%", "%%")
	return unprintable.ReplaceAllString(sanitized, "")
}
