package utils

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength is the longest display name accepted, in characters.
	MaxNameLength = 250
	// InvalidName replaces rejected display names.
	InvalidName = "Invalid"
)

var (
	disallowedText = regexp.MustCompile("[^\\w\\s`\\-=~!@#$%^&*()+,./<>?\\[\\]\\\\{}|;':\"]")
	hexColor       = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// SanitizeText strips every character outside the allowed set.
func SanitizeText(s string) string {
	return disallowedText.ReplaceAllString(s, "")
}

// ValidateName returns name, or InvalidName if it is too long or blank.
func ValidateName(name string) string {
	if utf8.RuneCountInString(name) > MaxNameLength || strings.Join(strings.Fields(name), "") == "" {
		return InvalidName
	}
	return name
}

// CleanName validates and sanitizes a user-supplied display name.
func CleanName(name string) string {
	name = SanitizeText(ValidateName(name))
	if IsBlank(name) {
		return InvalidName
	}
	return name
}

// RandomColor returns a random "#rrggbb" color.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}

// ValidColor reports whether c is a "#rrggbb" color.
func ValidColor(c string) bool {
	return hexColor.MatchString(c)
}

// IsBlank reports whether s contains nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
