package transcription

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewRequestID produces identifiers like req_20250901143012_a1b2c3d4:
// sortable by issue time with a random tail to avoid collisions within a
// second.
func NewRequestID(now time.Time) string {
	return newTimestampedID("req", now)
}

func NewResponseID(now time.Time) string {
	return newTimestampedID("res", now)
}

func newTimestampedID(kind string, now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s_%s", kind, now.UTC().Format("20060102150405"), hex.EncodeToString(b))
}
