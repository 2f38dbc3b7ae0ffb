package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores opaque byte values with a TTL
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// keyVersion is bumped whenever the cached verdict encoding changes
const keyVersion = "v1"

// VerdictKey builds the cache key for one provider's verdict on a target.
// Targets are trimmed and compared case-sensitively (URL paths are case-sensitive).
func VerdictKey(provider, target string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(target)))
	return "threatfuse:" + keyVersion + ":" + provider + ":" + hex.EncodeToString(hash[:])
}
