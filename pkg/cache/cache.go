// Package cache provides pluggable byte caching for asset and render data.
//
// Three backends are available:
//   - FileCache: on-disk cache for CLI usage
//   - RedisCache: shared cache for server deployments
//   - NullCache: caching disabled (testing, one-shot runs)
//
// The batch pipeline uses the cache in two places: raw fetched asset bytes
// keyed by reference (so repeated batch runs against the same template skip
// the network), and rendered certificate PNGs keyed by design and recipient
// hashes (so re-running an interrupted batch skips completed renders).
//
// Keys carry their entry kind as a prefix ("asset:", "render:") so backends
// can group the two payload populations and operators can reason about what
// a given entry is.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TTLs for the different cached value kinds.
const (
	// TTLAsset is how long fetched asset bytes stay cached. Template and
	// overlay images change rarely.
	TTLAsset = 24 * time.Hour

	// TTLRender is how long rendered certificate images stay cached.
	TTLRender = time.Hour
)

// Cache is the interface for cache backends.
type Cache interface {
	// Get retrieves a value. The second return value reports whether the
	// key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// AssetKey generates the cache key for raw asset bytes fetched from ref.
func AssetKey(ref string) string {
	return hashKey("asset", ref)
}

// RenderKey generates the cache key for a rendered certificate.
// designHash covers the template and all elements; recipientHash covers the
// recipient's substituted fields.
func RenderKey(designHash, recipientHash string) string {
	return hashKey("render", designHash, recipientHash)
}

// hashKey builds a kind-prefixed key: the entry kind, a colon, and the hex
// digest of the parts. Parts are separated by a NUL byte so ("ab", "c")
// and ("a", "bc") never collide.
func hashKey(kind string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 digest of data. The batch runner hashes the
// design and recipient JSON documents with it to build render keys.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NullCache misses every read and discards every write, for runs where
// caching is disabled or there is nothing worth reusing.
type NullCache struct{}

// NewNullCache creates a cache that never stores anything.
func NewNullCache() Cache {
	return NullCache{}
}

// Get always misses.
func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete is a no-op.
func (NullCache) Delete(context.Context, string) error { return nil }

// Close is a no-op.
func (NullCache) Close() error { return nil }
