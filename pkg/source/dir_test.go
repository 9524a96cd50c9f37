package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// writeVersion lays out <root>/<name>/<version>/ with a manifest and an
// artifact file.
func writeVersion(t *testing.T, root, name, version, manifest string, artifact []byte) {
	t.Helper()
	dir := filepath.Join(root, name, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if artifact != nil {
		if err := os.WriteFile(filepath.Join(dir, name+"-"+version+".tar.gz"), artifact, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDirSource(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	writeVersion(t, root, "requests", "2.1.0", `
name: requests
version: 2.1.0
description: HTTP for humans
license: Apache-2.0
dependencies:
  - urllib3>=1.0.0
entry_points:
  cli: bin/requests
`, []byte("artifact-2.1.0"))
	writeVersion(t, root, "requests", "2.0.0", "name: requests\nversion: 2.0.0\n", []byte("artifact-2.0.0"))
	writeVersion(t, root, "urllib3", "1.5.0", "name: urllib3\nversion: 1.5.0\n", []byte("urllib3-bytes"))

	s, err := NewDirSource("local", root, 1, true)
	if err != nil {
		t.Fatalf("NewDirSource: %v", err)
	}
	if s.Name() != "local" || s.Priority() != 1 || !s.Trusted() {
		t.Errorf("source identity: %s %d %v", s.Name(), s.Priority(), s.Trusted())
	}

	// Versions
	versions, err := s.Versions(ctx, "requests")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("Versions = %v, want 2 entries", versions)
	}

	if _, err := s.Versions(ctx, "absent"); err != ErrNotFound {
		t.Errorf("Versions(absent) = %v, want ErrNotFound", err)
	}

	// Metadata
	meta, err := s.Metadata(ctx, "requests", "2.1.0")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Description != "HTTP for humans" || meta.License != "Apache-2.0" {
		t.Errorf("Metadata = %+v", meta)
	}
	if len(meta.Dependencies) != 1 || meta.Dependencies[0] != "urllib3>=1.0.0" {
		t.Errorf("Dependencies = %v", meta.Dependencies)
	}
	if meta.EntryPoints["cli"] != "bin/requests" {
		t.Errorf("EntryPoints = %v", meta.EntryPoints)
	}

	// Artifact
	rc, err := s.FetchArtifact(ctx, "requests", "2.1.0")
	if err != nil {
		t.Fatalf("FetchArtifact: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "artifact-2.1.0" {
		t.Errorf("artifact = %q", data)
	}

	// No signature published
	if _, err := s.Signature(ctx, "requests", "2.1.0"); err != ErrNoSignature {
		t.Errorf("Signature = %v, want ErrNoSignature", err)
	}

	// Search matches by name substring and returns latest version metadata
	results, err := s.Search(ctx, "req")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Version != "2.1.0" {
		t.Errorf("Search = %+v, want requests@2.1.0", results)
	}
}

func TestDirSourceSignature(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	writeVersion(t, root, "pkg", "1.0.0", "name: pkg\nversion: 1.0.0\n", []byte("bytes"))
	sigPath := filepath.Join(root, "pkg", "1.0.0", "pkg-1.0.0.tar.gz.sig")
	if err := os.WriteFile(sigPath, []byte("deadbeef\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewDirSource("local", root, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.Signature(ctx, "pkg", "1.0.0")
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	if sig != "deadbeef" {
		t.Errorf("Signature = %q, want deadbeef", sig)
	}
}

func TestByPriority(t *testing.T) {
	a := NewMemorySource("alpha", 2, false)
	b := NewMemorySource("beta", 1, false)
	c := NewMemorySource("gamma", 2, false)

	sorted := ByPriority([]Source{a, c, b})
	got := []string{sorted[0].Name(), sorted[1].Name(), sorted[2].Name()}
	want := []string{"beta", "alpha", "gamma"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ByPriority = %v, want %v", got, want)
		}
	}
}
