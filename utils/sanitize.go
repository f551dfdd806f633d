package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richPolicy  = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks. Safe formatting survives.
func Sanitize(input string) string {
	return richPolicy.Sanitize(input)
}

// SanitizeText strips every tag, for names and captions shown as plain text.
func SanitizeText(input string) string {
	return strings.TrimSpace(plainPolicy.Sanitize(input))
}
