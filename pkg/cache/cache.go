// Package cache provides metadata and artifact caching for the engine.
//
// Resolution and fetching consult the cache before querying configured
// sources. The cache is an explicit object injected into the resolver and
// fetcher rather than ambient global state, so its lifetime is owned by
// whoever constructs the engine.
//
// Backends:
//   - file: directory-based cache for CLI usage (default)
//   - redis: shared cache for multi-instance deployments
//   - null: disables caching (tests, --refresh)
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMetadataTTL is the staleness window for cached package metadata.
const DefaultMetadataTTL = 30 * 24 * time.Hour

// Cache stores opaque byte values under string keys with per-entry TTL.
//
// Implementations must treat expired entries as misses. A TTL of zero
// means the entry never expires.
type Cache interface {
	// Get retrieves a value. The second return value reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// MetadataKey builds the cache key for package metadata from one source.
// Entries are keyed by (name, version, source) per the ledger's cache
// table semantics.
func MetadataKey(source, name, version string) string {
	return hashKey("meta", source, name, version)
}

// VersionsKey builds the cache key for the available-versions listing of a
// package at one source.
func VersionsKey(source, name string) string {
	return hashKey("versions", source, name)
}

// ArtifactKey builds the cache key for a downloaded artifact. Artifacts
// are additionally verified by checksum on every cache hit, so a stale
// entry can never silently substitute a different build.
func ArtifactKey(source, name, version string) string {
	return hashKey("artifact", source, name, version)
}

// ChecksumKey builds the cache key for the pinned checksum of an
// artifact. The pin outlives the artifact bytes themselves: a re-fetch
// that produces different bytes is an error, not a silent substitution.
func ChecksumKey(source, name, version string) string {
	return hashKey("checksum", source, name, version)
}

// hashKey derives a fixed-width key of the form prefix:hex(sha256) from
// the given components. Hashing keeps arbitrary package and source names
// safe to use as file names and Redis keys, and the prefix keeps the key
// namespaces (meta, versions, artifact, checksum) from colliding.
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:]))
}

// Hash returns the hex sha256 of data. This is the checksum format used
// throughout: source-declared checksums, artifact pins and detached
// signatures all carry this form.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NullCache drops everything. It backs the cache.backend = "none"
// configuration and keeps callers free of nil checks.
type NullCache struct{}

// NewNullCache creates a cache that never hits.
func NewNullCache() Cache {
	return &NullCache{}
}

func (c *NullCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (c *NullCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

func (c *NullCache) Delete(ctx context.Context, key string) error { return nil }

func (c *NullCache) Close() error { return nil }

var _ Cache = (*NullCache)(nil)
