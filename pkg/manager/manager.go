// Package manager is the orchestration facade: it wires the resolver,
// fetcher, installer and ledger into the operations exposed to the CLI
// and the HTTP API.
//
// Every operation returns a structured result that distinguishes no-op,
// partial success and failure; the caller never has to parse error
// strings to find out what happened.
package manager

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/depforge/depforge/pkg/cache"
	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/fetch"
	"github.com/depforge/depforge/pkg/install"
	"github.com/depforge/depforge/pkg/ledger"
	"github.com/depforge/depforge/pkg/metrics"
	"github.com/depforge/depforge/pkg/resolve"
	"github.com/depforge/depforge/pkg/source"
	"github.com/depforge/depforge/pkg/spec"
)

// Manager orchestrates package lifecycle operations.
type Manager struct {
	store     ledger.Store
	cache     cache.Cache
	sources   []source.Source
	bySource  map[string]source.Source
	catalog   *resolve.Catalog
	resolver  *resolve.Resolver
	installer *install.Installer
	logger    *log.Logger
}

// Config assembles a Manager's collaborators.
type Config struct {
	Store       ledger.Store
	Cache       cache.Cache // nil disables caching
	Sources     []source.Source
	InstallRoot string
	DownloadDir string
	Workers     int
	VerifySigs  bool
	Logger      *log.Logger
}

// New wires a Manager from its configuration.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "manager requires a ledger store")
	}
	if cfg.InstallRoot == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "manager requires an install root")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = cfg.InstallRoot + "/.downloads"
	}

	catalog := resolve.NewCatalog(cfg.Sources, cfg.Cache, cfg.Store)
	fetcher := fetch.New(cfg.Cache, cfg.DownloadDir,
		fetch.WithWorkers(cfg.Workers),
		fetch.WithSignatureVerification(cfg.VerifySigs),
		fetch.WithLogger(cfg.Logger))
	installer := install.New(cfg.Store, fetcher, catalog, cfg.InstallRoot,
		install.WithWorkers(cfg.Workers),
		install.WithLogger(cfg.Logger))

	bySource := make(map[string]source.Source, len(cfg.Sources))
	for _, src := range cfg.Sources {
		bySource[src.Name()] = src
	}

	return &Manager{
		store:     cfg.Store,
		cache:     cfg.Cache,
		sources:   source.ByPriority(cfg.Sources),
		bySource:  bySource,
		catalog:   catalog,
		resolver:  resolve.New(catalog),
		installer: installer,
		logger:    cfg.Logger,
	}, nil
}

// InstallResult is the outcome of an install request.
type InstallResult struct {
	Installed []string // newly installed package names
	Skipped   []string // already present at the resolved version
	Conflicts []string // resolution conflicts, human-readable
	Planned   int      // packages in the install plan
	Completed int      // packages installed or skipped
	Success   bool
	NoOp      bool // everything was already installed
}

// Install resolves raw and installs the plan. With conflicts present the
// clean part of the graph is installed only when force is set; otherwise
// nothing is touched and the conflicts are returned.
func (m *Manager) Install(ctx context.Context, raw string, force bool) (*InstallResult, error) {
	root, err := spec.Parse(raw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := m.resolver.Resolve(ctx, []spec.Spec{root})
	if err != nil {
		return nil, err
	}
	kinds := make([]string, len(res.Conflicts))
	for i, c := range res.Conflicts {
		kinds[i] = c.Kind.String()
	}
	metrics.RecordResolve(time.Since(start), kinds)

	out := &InstallResult{Planned: len(res.Order)}
	for _, c := range res.Conflicts {
		out.Conflicts = append(out.Conflicts, c.String())
	}
	if len(res.Conflicts) > 0 && !force {
		m.logger.Warn("aborting install", "spec", raw, "conflicts", len(res.Conflicts))
		return out, nil
	}

	items := install.PlanItems(res, m.bySource, map[string]bool{root.Name: true})
	plan, err := m.installer.InstallAll(ctx, items)
	if err != nil {
		return out, err
	}

	out.Installed = plan.Installed
	out.Skipped = plan.Skipped
	out.Completed = plan.Completed
	out.Success = out.Planned > 0 && len(plan.Failed) == 0
	out.NoOp = out.Planned > 0 && len(plan.Installed) == 0 && len(plan.Failed) == 0
	switch {
	case !out.Success:
		metrics.RecordInstall(metrics.ResultFailure)
	case out.NoOp:
		metrics.RecordInstall(metrics.ResultNoOp)
	default:
		metrics.RecordInstall(metrics.ResultSuccess)
	}
	for name, ferr := range plan.Failed {
		out.Conflicts = append(out.Conflicts, name+": "+ferr.Error())
	}
	sort.Strings(out.Conflicts)
	return out, nil
}

// UninstallResult is the outcome of an uninstall request.
type UninstallResult struct {
	Removed []string
	Success bool
}

// Uninstall removes a package, cascading to dependents when requested.
func (m *Manager) Uninstall(ctx context.Context, name string, removeDependents bool) (*UninstallResult, error) {
	removed, err := m.installer.Uninstall(ctx, name, removeDependents)
	if err != nil {
		metrics.RecordUninstall(metrics.ResultFailure)
		return &UninstallResult{Removed: removed}, err
	}
	metrics.RecordUninstall(metrics.ResultSuccess)
	return &UninstallResult{Removed: removed, Success: true}, nil
}

// UpdateResult aggregates update outcomes.
type UpdateResult struct {
	Updated []string
	Failed  []string
	NoOp    bool // nothing had a newer version
}

// Update moves one package to its greatest available version.
func (m *Manager) Update(ctx context.Context, name string) (*UpdateResult, error) {
	updated, err := m.installer.Update(ctx, name)
	if err != nil {
		return &UpdateResult{Failed: []string{name}}, err
	}
	if !updated {
		return &UpdateResult{NoOp: true}, nil
	}
	return &UpdateResult{Updated: []string{name}}, nil
}

// UpdateAll updates every installed package, continuing past individual
// failures.
func (m *Manager) UpdateAll(ctx context.Context) (*UpdateResult, error) {
	rows, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := &UpdateResult{}
	for _, row := range rows {
		updated, err := m.installer.Update(ctx, row.Name)
		if err != nil {
			m.logger.Warn("update failed", "package", row.Name, "error", err)
			out.Failed = append(out.Failed, row.Name)
			continue
		}
		if updated {
			out.Updated = append(out.Updated, row.Name)
		}
	}
	out.NoOp = len(out.Updated) == 0 && len(out.Failed) == 0
	return out, nil
}

// List returns all installed packages sorted by name.
func (m *Manager) List(ctx context.Context) ([]ledger.InstalledPackage, error) {
	return m.store.List(ctx)
}

// Info returns one installed package, or a PACKAGE_NOT_FOUND error.
func (m *Manager) Info(ctx context.Context, name string) (*ledger.InstalledPackage, error) {
	row, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s is not installed", name)
	}
	return row, nil
}

// Search queries all sources and merges results by package name,
// keeping the hit from the highest-priority source.
func (m *Manager) Search(ctx context.Context, query string) ([]source.Metadata, error) {
	seen := make(map[string]bool)
	var out []source.Metadata
	for _, src := range m.sources {
		hits, err := src.Search(ctx, query)
		if err != nil {
			m.logger.Warn("search failed", "source", src.Name(), "error", err)
			continue
		}
		for _, hit := range hits {
			if !seen[hit.Name] {
				seen[hit.Name] = true
				out = append(out, hit)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Verify checks an installed package's files against its recorded
// checksum.
func (m *Manager) Verify(ctx context.Context, name string) (bool, error) {
	return m.installer.Verify(ctx, name)
}

// Events returns installation history, newest first. An empty name
// returns the full history.
func (m *Manager) Events(ctx context.Context, name string) ([]ledger.Event, error) {
	return m.store.Events(ctx, name)
}

// Resolve runs a dry-run resolution without installing anything.
func (m *Manager) Resolve(ctx context.Context, raw string) (*resolve.Result, error) {
	root, err := spec.Parse(raw)
	if err != nil {
		return nil, err
	}
	return m.resolver.Resolve(ctx, []spec.Spec{root})
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	RemovedPackages     int
	RemovedCacheEntries int
}

// Cleanup removes auto-installed packages no longer reachable from any
// explicitly installed package, then purges stale metadata cache rows.
func (m *Manager) Cleanup(ctx context.Context) (*CleanupResult, error) {
	rows, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]ledger.InstalledPackage, len(rows))
	for _, row := range rows {
		byName[row.Name] = row
	}

	// Mark everything reachable from a non-auto root through the
	// dependency specs recorded at install time.
	reachable := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		if reachable[name] {
			return
		}
		row, ok := byName[name]
		if !ok {
			return
		}
		reachable[name] = true
		for _, raw := range row.Dependencies {
			if dep, err := spec.Parse(raw); err == nil {
				mark(dep.Name)
			}
		}
	}
	for _, row := range rows {
		if !row.AutoInstalled {
			mark(row.Name)
		}
	}

	out := &CleanupResult{}
	// Repeatedly remove unreachable leaves so cascades stay safe.
	for {
		removedThisPass := 0
		for _, row := range rows {
			if !row.AutoInstalled || reachable[row.Name] {
				continue
			}
			if _, ok := byName[row.Name]; !ok {
				continue // removed in an earlier pass
			}
			dependents, err := m.store.Dependents(ctx, row.Name)
			if err != nil {
				return out, err
			}
			if len(dependents) > 0 {
				continue
			}
			if _, err := m.installer.Uninstall(ctx, row.Name, false); err != nil {
				return out, err
			}
			delete(byName, row.Name)
			out.RemovedPackages++
			removedThisPass++
		}
		if removedThisPass == 0 {
			break
		}
	}

	purged, err := m.store.CachePurge(ctx, time.Now().Add(-cache.DefaultMetadataTTL))
	if err != nil {
		return out, err
	}
	out.RemovedCacheEntries = purged
	return out, nil
}

// Close releases the manager's resources.
func (m *Manager) Close() error {
	var first error
	if m.cache != nil {
		if err := m.cache.Close(); err != nil {
			first = err
		}
	}
	if err := m.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
