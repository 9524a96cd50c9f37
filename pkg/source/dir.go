package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/depforge/depforge/pkg/spec"
)

// manifestFile is the per-version metadata file in directory and S3 sources.
const manifestFile = "package.yaml"

// DirSource serves packages from a local directory tree laid out as
// <root>/<name>/<version>/ with a package.yaml manifest and the artifact
// file next to it. Useful for development and air-gapped installs.
type DirSource struct {
	name     string
	root     string
	priority int
	trusted  bool
}

// NewDirSource creates a directory-backed source rooted at root.
func NewDirSource(name, root string, priority int, trusted bool) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}
	return &DirSource{name: name, root: root, priority: priority, trusted: trusted}, nil
}

func (s *DirSource) Name() string  { return s.name }
func (s *DirSource) Priority() int { return s.priority }
func (s *DirSource) Trusted() bool { return s.trusted }

func (s *DirSource) Versions(ctx context.Context, name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	sort.Strings(versions)
	return versions, nil
}

func (s *DirSource) Metadata(ctx context.Context, name, version string) (*Metadata, error) {
	path := filepath.Join(s.root, name, version, manifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Version == "" {
		meta.Version = version
	}
	return &meta, nil
}

func (s *DirSource) FetchArtifact(ctx context.Context, name, version string) (io.ReadCloser, error) {
	path, err := s.artifactPath(ctx, name, version)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *DirSource) Signature(ctx context.Context, name, version string) (string, error) {
	path, err := s.artifactPath(ctx, name, version)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path + ".sig")
	if os.IsNotExist(err) {
		return "", ErrNoSignature
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// artifactPath resolves the artifact file for a version: the manifest's
// artifact field when set, otherwise the only non-manifest file in the
// version directory.
func (s *DirSource) artifactPath(ctx context.Context, name, version string) (string, error) {
	dir := filepath.Join(s.root, name, version)
	meta, err := s.Metadata(ctx, name, version)
	if err != nil {
		return "", err
	}
	if meta.Artifact != "" {
		return filepath.Join(dir, meta.Artifact), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == manifestFile || strings.HasSuffix(e.Name(), ".sig") {
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	return "", ErrNotFound
}

func (s *DirSource) Search(ctx context.Context, query string) ([]Metadata, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var out []Metadata
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(strings.ToLower(e.Name()), query) {
			continue
		}
		versions, err := s.Versions(ctx, e.Name())
		if err != nil {
			continue
		}
		latest, ok := spec.MaxSatisfying(versions, spec.Spec{Name: e.Name()})
		if !ok {
			continue
		}
		meta, err := s.Metadata(ctx, e.Name(), latest)
		if err != nil {
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// Ensure DirSource implements Source.
var _ Source = (*DirSource)(nil)
