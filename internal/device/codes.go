package device

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const secretBytes = 32

var codePattern = regexp.MustCompile(`^[A-Z0-9]{2,8}-[0-9A-F]{4}-[0-9A-F]{4}$`)

// GenerateCode returns a code of the form PREFIX-XXXX-XXXX where X is uppercase hex
func GenerateCode(prefix string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	part1 := strings.ToUpper(hex.EncodeToString(buf[:2]))
	part2 := strings.ToUpper(hex.EncodeToString(buf[2:]))
	return fmt.Sprintf("%s-%s-%s", strings.ToUpper(prefix), part1, part2), nil
}

// GenerateSecret returns 32 random bytes hex encoded
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NormalizeCode trims and upper-cases a code typed by a user
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code matches the PREFIX-XXXX-XXXX format
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
