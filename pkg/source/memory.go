package source

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/depforge/depforge/pkg/spec"
)

// MemorySource is an in-memory source for tests and embedding scenarios
// where the hosting application supplies packages programmatically.
type MemorySource struct {
	mu         sync.RWMutex
	name       string
	priority   int
	trusted    bool
	packages   map[string]map[string]*Metadata // name -> version -> metadata
	artifacts  map[string][]byte               // name@version -> artifact bytes
	signatures map[string]string               // name@version -> signature
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource(name string, priority int, trusted bool) *MemorySource {
	return &MemorySource{
		name:       name,
		priority:   priority,
		trusted:    trusted,
		packages:   make(map[string]map[string]*Metadata),
		artifacts:  make(map[string][]byte),
		signatures: make(map[string]string),
	}
}

// Add registers a package version with its metadata and artifact bytes.
func (s *MemorySource) Add(meta Metadata, artifact []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.packages[meta.Name] == nil {
		s.packages[meta.Name] = make(map[string]*Metadata)
	}
	m := meta
	s.packages[meta.Name][meta.Version] = &m
	s.artifacts[meta.Name+"@"+meta.Version] = artifact
}

// Sign attaches a detached signature to a previously added version.
func (s *MemorySource) Sign(name, version, signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signatures[name+"@"+version] = signature
}

func (s *MemorySource) Name() string  { return s.name }
func (s *MemorySource) Priority() int { return s.priority }
func (s *MemorySource) Trusted() bool { return s.trusted }

func (s *MemorySource) Versions(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byVersion, ok := s.packages[name]
	if !ok {
		return nil, ErrNotFound
	}
	versions := make([]string, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

func (s *MemorySource) Metadata(ctx context.Context, name, version string) (*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.packages[name][version]
	if !ok {
		return nil, ErrNotFound
	}
	m := *meta
	return &m, nil
}

func (s *MemorySource) FetchArtifact(ctx context.Context, name, version string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.artifacts[name+"@"+version]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemorySource) Signature(ctx context.Context, name, version string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signatures[name+"@"+version]
	if !ok {
		return "", ErrNoSignature
	}
	return sig, nil
}

func (s *MemorySource) Search(ctx context.Context, query string) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var names []string
	for name := range s.packages {
		if strings.Contains(strings.ToLower(name), query) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []Metadata
	for _, name := range names {
		var versions []string
		for v := range s.packages[name] {
			versions = append(versions, v)
		}
		latest, ok := spec.MaxSatisfying(versions, spec.Spec{Name: name})
		if !ok {
			continue
		}
		out = append(out, *s.packages[name][latest])
	}
	return out, nil
}

// Ensure MemorySource implements Source.
var _ Source = (*MemorySource)(nil)
