package manager

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/ledger"
	"github.com/depforge/depforge/pkg/source"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for path, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: path, Mode: 0o644, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func addPkg(t *testing.T, src *source.MemorySource, name, version string, deps ...string) {
	t.Helper()
	src.Add(source.Metadata{
		Name:         name,
		Version:      version,
		Dependencies: deps,
		Artifact:     name + "-" + version + ".tar.gz",
	}, tarGz(t, map[string]string{"content": name + "@" + version}))
}

func newManager(t *testing.T, src *source.MemorySource) *Manager {
	t.Helper()
	store, err := ledger.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(Config{
		Store:       store,
		Sources:     []source.Source{src},
		InstallRoot: t.TempDir(),
		DownloadDir: t.TempDir(),
		Logger:      log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel}),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestInstallResolvesTransitively(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "alpha", "1.0.0", "beta>=1.0.0")
	addPkg(t, src, "beta", "1.2.0")
	addPkg(t, src, "beta", "0.9.0")
	m := newManager(t, src)

	res, err := m.Install(context.Background(), "alpha>=1.0.0", false)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !res.Success || res.NoOp {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Installed) != 2 || res.Installed[0] != "beta" || res.Installed[1] != "alpha" {
		t.Errorf("installed = %v, want [beta alpha]", res.Installed)
	}

	info, err := m.Info(context.Background(), "beta")
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.0" {
		t.Errorf("beta version = %s, want 1.2.0", info.Version)
	}
	if !info.AutoInstalled {
		t.Error("transitive dependency not marked auto-installed")
	}
	root, _ := m.Info(context.Background(), "alpha")
	if root.AutoInstalled {
		t.Error("root marked auto-installed")
	}
}

func TestInstallIdempotent(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "alpha", "1.0.0")
	m := newManager(t, src)

	if _, err := m.Install(context.Background(), "alpha", false); err != nil {
		t.Fatal(err)
	}
	res, err := m.Install(context.Background(), "alpha", false)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !res.Success || !res.NoOp || len(res.Installed) != 0 {
		t.Errorf("second install = %+v, want successful no-op", res)
	}
}

func TestInstallConflictAbortsWithoutForce(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "xray", "1.0.0", "zulu>=2.0.0")
	addPkg(t, src, "fine", "1.0.0")
	// zulu exists only below 2.0.0.
	addPkg(t, src, "zulu", "1.0.0")
	m := newManager(t, src)

	res, err := m.Install(context.Background(), "xray==1.0.0", false)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.Success {
		t.Error("conflicted install reported success")
	}
	if len(res.Conflicts) == 0 {
		t.Error("no conflicts reported")
	}
	if _, err := m.Info(context.Background(), "xray"); errors.GetCode(err) != errors.ErrCodePackageNotFound {
		t.Errorf("xray was installed despite conflict: %v", err)
	}
}

func TestUninstallCascade(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "app", "1.0.0", "lib")
	addPkg(t, src, "lib", "1.0.0")
	m := newManager(t, src)

	if _, err := m.Install(context.Background(), "app", false); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Uninstall(context.Background(), "lib", false); errors.GetCode(err) != errors.ErrCodeDependentsExist {
		t.Fatalf("error = %v, want DEPENDENTS_EXIST", err)
	}

	res, err := m.Uninstall(context.Background(), "lib", true)
	if err != nil {
		t.Fatalf("cascade uninstall: %v", err)
	}
	if !res.Success || len(res.Removed) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestUpdateAllContinuesPastFailures(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "stable", "1.0.0")
	addPkg(t, src, "movable", "1.0.0")
	m := newManager(t, src)

	for _, name := range []string{"stable", "movable"} {
		if _, err := m.Install(context.Background(), name, false); err != nil {
			t.Fatal(err)
		}
	}
	addPkg(t, src, "movable", "2.0.0")

	res, err := m.UpdateAll(context.Background())
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if len(res.Updated) != 1 || res.Updated[0] != "movable" {
		t.Errorf("updated = %v, want [movable]", res.Updated)
	}
	if len(res.Failed) != 0 {
		t.Errorf("failed = %v", res.Failed)
	}

	info, _ := m.Info(context.Background(), "movable")
	if info.Version != "2.0.0" {
		t.Errorf("movable version = %s, want 2.0.0", info.Version)
	}
}

func TestVerifyAfterInstall(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "alpha", "1.0.0")
	m := newManager(t, src)

	if _, err := m.Install(context.Background(), "alpha", false); err != nil {
		t.Fatal(err)
	}
	ok, err := m.Verify(context.Background(), "alpha")
	if err != nil || !ok {
		t.Fatalf("verify = %v, err %v", ok, err)
	}
}

func TestSearchMergesSourcesByPriority(t *testing.T) {
	primary := source.NewMemorySource("primary", 1, true)
	mirror := source.NewMemorySource("mirror", 2, true)
	addPkg(t, primary, "tool", "1.0.0")
	addPkg(t, mirror, "tool", "9.0.0")
	addPkg(t, mirror, "toolbox", "1.0.0")

	store, err := ledger.NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(Config{
		Store:       store,
		Sources:     []source.Source{mirror, primary},
		InstallRoot: t.TempDir(),
		Logger:      log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel}),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })

	hits, err := m.Search(context.Background(), "tool")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %v, want tool and toolbox", hits)
	}
	if hits[0].Name != "tool" || hits[0].Version != "1.0.0" {
		t.Errorf("hit = %+v, want tool@1.0.0 from the primary", hits[0])
	}
}

func TestCleanupRemovesOrphanedAutoInstalls(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "app", "1.0.0", "helper")
	addPkg(t, src, "helper", "1.0.0")
	m := newManager(t, src)

	if _, err := m.Install(context.Background(), "app", false); err != nil {
		t.Fatal(err)
	}
	// Removing app orphans helper but leaves it installed.
	if _, err := m.Uninstall(context.Background(), "app", false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Info(context.Background(), "helper"); err != nil {
		t.Fatalf("helper should survive app's removal: %v", err)
	}

	res, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.RemovedPackages != 1 {
		t.Errorf("removed %d packages, want 1", res.RemovedPackages)
	}
	if _, err := m.Info(context.Background(), "helper"); errors.GetCode(err) != errors.ErrCodePackageNotFound {
		t.Errorf("helper still installed after cleanup: %v", err)
	}
}

func TestResolveDryRun(t *testing.T) {
	src := source.NewMemorySource("main", 1, true)
	addPkg(t, src, "alpha", "1.0.0", "beta")
	addPkg(t, src, "beta", "1.0.0")
	m := newManager(t, src)

	res, err := m.Resolve(context.Background(), "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Order) != 2 {
		t.Errorf("order = %v", res.Order)
	}
	if _, err := m.Info(context.Background(), "alpha"); errors.GetCode(err) != errors.ErrCodePackageNotFound {
		t.Error("dry-run resolution installed something")
	}
}
