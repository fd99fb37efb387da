package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// ShortCodeAlphabet holds the 62 symbols a short code is drawn from.
	ShortCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ShortCodeLength   = 6
	MaxURLLength      = 2048
)

var (
	errEmptyURL   = errors.New("url is required")
	errURLTooLong = fmt.Errorf("url exceeds %d characters", MaxURLLength)
	errBadScheme  = errors.New("url scheme must be http or https")
	errNoHost     = errors.New("url has no host")
)

// ValidateURL reports why raw is not an acceptable original URL, or nil.
func ValidateURL(raw string) error {
	if raw == "" {
		return errEmptyURL
	}
	if utf8.RuneCountInString(raw) > MaxURLLength {
		return errURLTooLong
	}
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errBadScheme
	}
	if u.Host == "" {
		return errNoHost
	}
	return nil
}

// GenerateShortCode draws ShortCodeLength symbols uniformly from
// ShortCodeAlphabet using the ChaCha8-seeded global source of math/rand/v2.
// Codes are not secrets. Collisions are possible and left to the caller.
func GenerateShortCode() string {
	b := make([]byte, ShortCodeLength)
	for i := range b {
		b[i] = ShortCodeAlphabet[rand.IntN(len(ShortCodeAlphabet))]
	}
	return string(b)
}

// IsShortCode reports whether s has the shape of a generated code.
func IsShortCode(s string) bool {
	if len(s) != ShortCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(ShortCodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// HashURL returns a fixed-length key derived from original, used for lock
// and cache keys so their length stays bounded.
func HashURL(original string) string {
	h := sha256.Sum256([]byte(original))
	return hex.EncodeToString(h[:])
}
