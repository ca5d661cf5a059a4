package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	fingerprintHexLen    = 16
	idempotencyKeyHexLen = 32

	// Submissions inside the same bucket hash to the same idempotency key,
	// which is what turns a browser resend into an exact duplicate.
	idempotencyBucket = time.Minute
)

// SessionFingerprint derives a stable, cookie-free pseudo-identity from
// request signals. Same inputs always produce the same value; the stored
// value is a truncated one-way hash, not reversible to the inputs.
func SessionFingerprint(ipAddress, userAgent, acceptLanguage, acceptEncoding string) string {
	if ipAddress == "" {
		ipAddress = "unknown"
	}
	if userAgent == "" {
		userAgent = "unknown"
	}

	components := strings.Join([]string{ipAddress, userAgent, acceptLanguage, acceptEncoding}, "|")
	sum := sha256.Sum256([]byte(components))
	return hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

// TimeBucket maps an instant onto its idempotency bucket.
func TimeBucket(t time.Time) int64 {
	return t.Unix() / int64(idempotencyBucket/time.Second)
}

// IdempotencyKey is the deterministic at-most-once key for one logical
// submission: (link, fingerprint, time bucket, client id).
func IdempotencyKey(linkID, fingerprint string, bucket int64, clientID string) string {
	key := linkID + ":" + fingerprint + ":" + strconv.FormatInt(bucket, 10) + ":" + clientID
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:idempotencyKeyHexLen]
}
