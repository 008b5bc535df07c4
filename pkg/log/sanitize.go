package log

import (
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd",
	"api_key", "apikey", "api-key",
	"token", "secret",
	"authorization", "credential",
	"dsn",
}

// SanitizeField masks value when key names a credential.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return maskSecret(value)
		}
	}
	return value
}

// maskSecret keeps the first and last four characters of long values.
func maskSecret(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
