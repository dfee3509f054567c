package utils

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

func NowUTC() time.Time {
	return time.Now().UTC()
}

// ContentDigest returns the hex BLAKE2b-256 digest of data.
func ContentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func SplitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
