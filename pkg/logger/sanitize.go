package logger

import (
	"log/slog"
	"strings"
)

// MaskCode keeps the first two characters of an access code (e.g. "WE*****")
func MaskCode(code string) string {
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return code[:2] + strings.Repeat("*", len(code)-2)
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString reports whether the query string carries a sensitive
// parameter, in which case the whole string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"adminkey",
		"admin_key",
		"accesscode",
		"code",
		"secret",
		"token",
		"key",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param+"=") {
			return true
		}
	}
	return false
}
