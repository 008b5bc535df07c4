package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"api key", "api_key", "sk-live-1234567890abcdef", "sk-l****************cdef"},
		{"header case insensitive", "Authorization", "Bearer abcdefghijkl", "Bear***********ijkl"},
		{"password", "redis_password", "hunter2", "h*****2"},
		{"short token", "token", "ab", "**"},
		{"mysql dsn", "mysql_dsn", "user:pass@tcp(db:3306)/tryon", "user********************ryon"},
		{"empty value", "secret", "", ""},
		{"not sensitive", "upload_id", "7f3c9a2e-1d44-4c1b-9a57-3f1b2c0d9e88", "7f3c9a2e-1d44-4c1b-9a57-3f1b2c0d9e88"},
		{"image uri", "image_uri", "file:///var/mobile/a.jpg", "file:///var/mobile/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeField(tt.key, tt.value))
		})
	}
}

func TestMaskSecret_PreservesLength(t *testing.T) {
	for _, v := range []string{"a", "abc", "abcdefgh", "abcdefghi", "a-much-longer-secret-value"} {
		assert.Len(t, maskSecret(v), len(v), v)
	}
}
