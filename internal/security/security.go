// Package security provides input validation and credential masking.
package security

import (
	"net/url"
	"regexp"
	"strings"

	apperrors "upstox-options/internal/errors"
)

// instrumentPattern matches index names such as "NIFTY", "Nifty 50" or "NIFTY BANK".
// The pipe is the instrument key separator and is never allowed.
var instrumentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 &_.-]{0,39}$`)

// tokenPatterns match bearer tokens that may leak into error text.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9_\-\.]{8,})`),
	regexp.MustCompile(`(?i)(access[_-]?token[=:\s]+["']?)([A-Za-z0-9_\-\.]{8,})`),
}

// ValidateInstrument checks an instrument name before it is embedded in an instrument key.
func ValidateInstrument(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return apperrors.NewValidationError("instrument", name, "instrument name is required")
	}
	if strings.Contains(trimmed, "|") {
		return apperrors.NewValidationError("instrument", name, "instrument name must not contain '|'")
	}
	if !instrumentPattern.MatchString(trimmed) {
		return apperrors.NewValidationError("instrument", name, "invalid instrument name")
	}
	return nil
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskURL hides the password of a connection URL such as redis://:secret@host:6379/0.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// MaskSensitive masks bearer tokens embedded in free text.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range tokenPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			return parts[1] + MaskCredential(parts[2])
		})
	}
	return result
}
