package timeparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// deviceFormats are the layouts bag firmware has been seen to send, tried in order
var deviceFormats = []string{
	time.RFC3339Nano,      // Standard RFC3339 with optional fraction
	"2006-01-02 15:04:05", // YYYY-MM-DD HH:mm:ss, UTC
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss, UTC
}

// ParseDeviceTimestamp parses a device-supplied timestamp. Besides the layouts above it
// accepts unix epoch seconds and epoch milliseconds as plain integers.
func ParseDeviceTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("failed to parse timestamp: empty value")
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		// anything past year 2286 in seconds is treated as milliseconds
		if epoch > 9_999_999_999 {
			return time.UnixMilli(epoch).UTC(), nil
		}
		return time.Unix(epoch, 0).UTC(), nil
	}

	var lastErr error
	for _, format := range deviceFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", s, lastErr)
}

// IsWithinTolerance checks if the device timestamp is within tolerance of received time
func IsWithinTolerance(sentAt, receivedAt time.Time, toleranceMinutes int) bool {
	diff := sentAt.Sub(receivedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
