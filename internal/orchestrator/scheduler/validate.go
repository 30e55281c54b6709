package scheduler

import (
	"strings"
	"unicode"

	"github.com/driftcode/orchestra/internal/common/apperrors"
)

const (
	maxContentBytes  = 10_000
	maxContextKeys   = 20
	maxContextKeyLen = 128
	maxContextValLen = 4 * 1024
)

// sanitizeContent trims content, strips control characters other than
// \n \r \t, and rejects it if the result is empty or over the size
// bound.
func sanitizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apperrors.BadRequest("content must not be empty")
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	sanitized := b.String()

	if len(sanitized) > maxContentBytes {
		return "", apperrors.BadRequest("content exceeds maximum size")
	}
	return sanitized, nil
}

// validateContext enforces the bounded-count/bounded-size rules for
// task context entries.
func validateContext(context map[string]string) error {
	if len(context) > maxContextKeys {
		return apperrors.BadRequest("context has too many entries")
	}
	for k, v := range context {
		if len(k) > maxContextKeyLen {
			return apperrors.BadRequest("context key exceeds maximum size")
		}
		if len(v) > maxContextValLen {
			return apperrors.BadRequest("context value exceeds maximum size")
		}
	}
	return nil
}
