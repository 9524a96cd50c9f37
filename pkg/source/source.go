// Package source abstracts the places packages are published.
//
// A Source answers three questions: which versions of a package exist,
// what is the metadata of one version, and where are its artifact bytes.
// Sources are configured at startup and read-only during resolution.
//
// Implementations:
//   - dir: a local directory tree (development, air-gapped installs)
//   - http: a JSON registry API over HTTP(S)
//   - s3: an S3 bucket mirroring the directory layout
//
// Sources carry a priority: lower numbers are consulted first, and a
// lower-precedence source is only consulted when no higher one has a
// match for the package.
package source

import (
	"context"
	"errors"
	"io"
	"sort"
)

// Sentinel errors shared by all source backends.
var (
	// ErrNotFound is returned when a package or version doesn't exist at
	// the source.
	ErrNotFound = errors.New("package not found")

	// ErrNoSignature is returned when signature verification is requested
	// but the source has no signature for the artifact.
	ErrNoSignature = errors.New("no signature for artifact")
)

// Metadata describes one published version of a package.
// Produced by a source and cached; Dependencies hold raw spec strings
// ("name", "name>=1.0.0") that the resolver parses.
type Metadata struct {
	Name         string            `json:"name" yaml:"name"`
	Version      string            `json:"version" yaml:"version"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Author       string            `json:"author,omitempty" yaml:"author,omitempty"`
	License      string            `json:"license,omitempty" yaml:"license,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	HomePage     string            `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Keywords     []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	EntryPoints  map[string]string `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`

	// Artifact is the artifact filename relative to the version directory.
	Artifact string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	// Checksum is the source-declared sha256 of the artifact (hex).
	// Optional; when present the fetcher verifies downloads against it.
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Source retrieves package information and artifacts from one location.
//
// All methods are safe for concurrent use.
type Source interface {
	// Name returns the configured source name.
	Name() string

	// Priority returns the precedence rank; lower is consulted first.
	Priority() int

	// Trusted reports whether artifacts from this source may skip
	// signature verification.
	Trusted() bool

	// Versions lists the available versions of a package.
	// Returns ErrNotFound if the source doesn't carry the package.
	Versions(ctx context.Context, name string) ([]string, error)

	// Metadata retrieves the metadata of one version.
	Metadata(ctx context.Context, name, version string) (*Metadata, error)

	// FetchArtifact opens the artifact bytes of one version.
	// The caller must close the reader.
	FetchArtifact(ctx context.Context, name, version string) (io.ReadCloser, error)

	// Signature returns the detached signature for the artifact, or
	// ErrNoSignature when the source has none.
	Signature(ctx context.Context, name, version string) (string, error)

	// Search finds packages matching a query string. Each result is the
	// metadata of the package's greatest version.
	Search(ctx context.Context, query string) ([]Metadata, error)
}

// ByPriority returns the sources sorted by ascending priority, breaking
// ties by name so iteration order is deterministic.
func ByPriority(sources []Source) []Source {
	out := make([]Source, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}
