// Package install materializes fetched artifacts on disk and keeps the
// ledger in sync with the filesystem.
//
// Installation is transactional in effect: artifacts are extracted into a
// staging directory and only swapped into place once extraction and
// checksumming succeed, and a package is registered in the ledger only
// after its files are fully in place. A failed install registers nothing.
package install

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/fetch"
	"github.com/depforge/depforge/pkg/ledger"
	"github.com/depforge/depforge/pkg/resolve"
	"github.com/depforge/depforge/pkg/source"
	"github.com/depforge/depforge/pkg/spec"
)

// State is the lifecycle state of one package during installation.
type State int

// Lifecycle states. StateFailed is terminal for the attempt; the ledger
// records nothing for a failed install.
const (
	StateNotInstalled State = iota
	StateInstalling
	StateInstalled
	StateFailed
)

// String returns the state's display name.
func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "not-installed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultWorkers bounds parallel installation of independent packages.
const DefaultWorkers = 4

// Installer installs, removes and updates packages under a root
// directory, recording every outcome in the ledger.
type Installer struct {
	store   ledger.Store
	fetcher *fetch.Fetcher
	catalog *resolve.Catalog
	root    string
	logger  *log.Logger
	workers int

	mu     sync.Mutex
	states map[string]State
}

// Option configures an Installer.
type Option func(*Installer)

// WithWorkers sets how many independent packages install in parallel.
func WithWorkers(n int) Option {
	return func(in *Installer) {
		if n > 0 {
			in.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(in *Installer) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// New creates an Installer rooted at root.
func New(store ledger.Store, fetcher *fetch.Fetcher, catalog *resolve.Catalog, root string, opts ...Option) *Installer {
	in := &Installer{
		store:   store,
		fetcher: fetcher,
		catalog: catalog,
		root:    root,
		logger:  log.Default(),
		workers: DefaultWorkers,
		states:  make(map[string]State),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// State reports the lifecycle state of a package within this process.
func (in *Installer) State(name string) State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.states[name]
}

func (in *Installer) setState(name string, s State) {
	in.mu.Lock()
	in.states[name] = s
	in.mu.Unlock()
}

// InstallSingle installs one resolved package. It returns false when the
// exact version is already installed (a no-op, not an error). auto marks
// packages pulled in only as dependencies.
func (in *Installer) InstallSingle(ctx context.Context, src source.Source, meta *source.Metadata, auto bool) (bool, error) {
	existing, err := in.store.Get(ctx, meta.Name)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Version == meta.Version {
		// Already present. An explicit install of an auto-installed
		// package promotes it to explicitly requested.
		if !auto && existing.AutoInstalled {
			existing.AutoInstalled = false
			ev := ledger.NewEvent(meta.Name, ledger.ActionInstall, true, "")
			if err := in.store.Put(ctx, *existing, ev); err != nil {
				return false, err
			}
		}
		in.setState(meta.Name, StateInstalled)
		return false, nil
	}

	in.setState(meta.Name, StateInstalling)
	if err := in.install(ctx, src, meta, auto, ledger.ActionInstall); err != nil {
		in.setState(meta.Name, StateFailed)
		ev := ledger.NewEvent(meta.Name, ledger.ActionInstall, false, err.Error())
		_ = in.store.AppendEvent(ctx, ev)
		return false, err
	}
	in.setState(meta.Name, StateInstalled)
	return true, nil
}

// install fetches, stages, swaps in and registers one package version.
func (in *Installer) install(ctx context.Context, src source.Source, meta *source.Metadata, auto bool, action ledger.Action) error {
	art, err := in.fetcher.Fetch(ctx, src, meta)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(in.root, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create install root")
	}
	staging, err := os.MkdirTemp(in.root, ".staging-"+meta.Name+"-")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create staging dir")
	}
	defer os.RemoveAll(staging)

	if err := extract(art.Path, staging); err != nil {
		return err
	}
	sum, err := dirChecksum(staging)
	if err != nil {
		return err
	}

	dest := filepath.Join(in.root, meta.Name)
	if err := os.RemoveAll(dest); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "clear install dir %s", dest)
	}
	if err := os.Rename(staging, dest); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "move %s into place", meta.Name)
	}

	row := ledger.InstalledPackage{
		Name:          meta.Name,
		Version:       meta.Version,
		Description:   meta.Description,
		Author:        meta.Author,
		License:       meta.License,
		InstallPath:   dest,
		Dependencies:  meta.Dependencies,
		Checksum:      sum,
		InstalledAt:   time.Now().UTC(),
		AutoInstalled: auto,
	}
	ev := ledger.NewEvent(meta.Name, action, true, "")
	if err := in.store.Put(ctx, row, ev); err != nil {
		// The files are in place but unregistered; remove them so the
		// ledger stays the source of truth.
		_ = os.RemoveAll(dest)
		return err
	}

	if hook, ok := findHook(dest); ok {
		if err := runHook(ctx, hook, dest); err != nil {
			in.logger.Warn("post-install hook failed", "package", meta.Name, "hook", hook, "error", err)
		}
	}

	in.logger.Info("installed", "package", meta.Name, "version", meta.Version, "source", art.Source)
	return nil
}

// Uninstall removes an installed package. With removeDependents set the
// dependents are removed first, depth-first; without it, dependents make
// the call fail with DEPENDENTS_EXIST. Returns the removed names in
// removal order.
func (in *Installer) Uninstall(ctx context.Context, name string, removeDependents bool) ([]string, error) {
	row, err := in.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s is not installed", name)
	}

	dependents, err := in.store.Dependents(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(dependents) > 0 && !removeDependents {
		sort.Strings(dependents)
		return nil, errors.New(errors.ErrCodeDependentsExist,
			"cannot remove %s: required by %v", name, dependents)
	}

	var removed []string
	sort.Strings(dependents)
	for _, dep := range dependents {
		sub, err := in.Uninstall(ctx, dep, true)
		if err != nil && errors.GetCode(err) != errors.ErrCodePackageNotFound {
			return removed, err
		}
		removed = append(removed, sub...)
	}

	if err := os.RemoveAll(row.InstallPath); err != nil {
		return removed, errors.Wrap(errors.ErrCodeInternal, err, "remove %s", row.InstallPath)
	}
	ev := ledger.NewEvent(name, ledger.ActionUninstall, true, "")
	if err := in.store.Delete(ctx, name, ev); err != nil {
		return removed, err
	}
	in.setState(name, StateNotInstalled)
	in.logger.Info("uninstalled", "package", name, "version", row.Version)
	return append(removed, name), nil
}

// Update moves an installed package to its greatest available version.
// It returns false when the package is already current. A failure after
// the old version has been removed is reported as STUCK_UPDATE; the
// package is then absent and needs a fresh install.
func (in *Installer) Update(ctx context.Context, name string) (bool, error) {
	row, err := in.store.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, errors.New(errors.ErrCodePackageNotFound, "package %s is not installed", name)
	}

	meta, src, err := in.catalog.Lookup(ctx, spec.Spec{Name: name, Raw: name})
	if err != nil {
		return false, err
	}
	if cmp, _ := spec.Compare(meta.Version, row.Version); cmp <= 0 {
		return false, nil
	}

	in.logger.Info("updating", "package", name, "from", row.Version, "to", meta.Version)

	if err := os.RemoveAll(row.InstallPath); err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, err, "remove %s", row.InstallPath)
	}
	ev := ledger.NewEvent(name, ledger.ActionUninstall, true, "")
	if err := in.store.Delete(ctx, name, ev); err != nil {
		return false, err
	}

	in.setState(name, StateInstalling)
	if err := in.install(ctx, src, meta, row.AutoInstalled, ledger.ActionUpdate); err != nil {
		in.setState(name, StateFailed)
		stuck := errors.Wrap(errors.ErrCodeStuckUpdate, err,
			"update of %s removed %s but failed to install %s", name, row.Version, meta.Version)
		_ = in.store.AppendEvent(ctx, ledger.NewEvent(name, ledger.ActionUpdate, false, stuck.Error()))
		return false, stuck
	}
	in.setState(name, StateInstalled)
	return true, nil
}

// Verify recomputes the installed tree's checksum and compares it to the
// ledger. It reports drift without repairing it.
func (in *Installer) Verify(ctx context.Context, name string) (bool, error) {
	row, err := in.store.Get(ctx, name)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, errors.New(errors.ErrCodePackageNotFound, "package %s is not installed", name)
	}
	if _, err := os.Stat(row.InstallPath); os.IsNotExist(err) {
		return false, nil
	}
	sum, err := dirChecksum(row.InstallPath)
	if err != nil {
		return false, err
	}
	return sum == row.Checksum, nil
}

// PlanItem is one package of an ordered install plan.
type PlanItem struct {
	Source    source.Source
	Meta      *source.Metadata
	Auto      bool
	DependsOn []string // plan-internal dependency names
}

// PlanResult reports the outcome of an InstallAll run.
type PlanResult struct {
	Installed []string         // newly installed, in completion order
	Skipped   []string         // already present at the requested version
	Failed    map[string]error // per-package failures
	Completed int              // Installed + Skipped
}

// InstallAll installs a resolved plan with bounded parallelism.
// Independent packages install concurrently; a package starts only after
// all of its plan-internal dependencies succeeded. Cancellation is
// cooperative at package boundaries: in-flight packages finish, pending
// ones fail with the context error.
func (in *Installer) InstallAll(ctx context.Context, items []PlanItem) (*PlanResult, error) {
	res := &PlanResult{Failed: make(map[string]error)}
	if len(items) == 0 {
		return res, nil
	}

	type doneState struct {
		ch  chan struct{}
		err error
	}
	done := make(map[string]*doneState, len(items))
	for _, item := range items {
		done[item.Meta.Name] = &doneState{ch: make(chan struct{})}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, in.workers)
	)

	for _, item := range items {
		wg.Add(1)
		go func(item PlanItem) {
			defer wg.Done()
			name := item.Meta.Name
			ds := done[name]
			defer close(ds.ch)

			for _, dep := range item.DependsOn {
				dds, ok := done[dep]
				if !ok {
					continue // dependency already installed outside the plan
				}
				select {
				case <-dds.ch:
				case <-ctx.Done():
					ds.err = ctx.Err()
				}
				if ds.err == nil && dds.err != nil {
					ds.err = errors.New(errors.ErrCodeInternal, "dependency %s failed: %v", dep, dds.err)
				}
				if ds.err != nil {
					break
				}
			}
			if ds.err == nil && ctx.Err() != nil {
				ds.err = ctx.Err()
			}
			if ds.err != nil {
				mu.Lock()
				res.Failed[name] = ds.err
				mu.Unlock()
				return
			}

			sem <- struct{}{}
			changed, err := in.InstallSingle(ctx, item.Source, item.Meta, item.Auto)
			<-sem

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ds.err = err
				res.Failed[name] = err
				return
			}
			res.Completed++
			if changed {
				res.Installed = append(res.Installed, name)
			} else {
				res.Skipped = append(res.Skipped, name)
			}
		}(item)
	}
	wg.Wait()

	sort.Strings(res.Skipped)
	if err := ctx.Err(); err != nil && res.Completed == 0 {
		return res, err
	}
	return res, nil
}

// PlanItems converts a resolution result into an ordered install plan.
// Roots (names in explicit) are marked explicitly installed; everything
// else is auto-installed.
func PlanItems(res *resolve.Result, sources map[string]source.Source, explicit map[string]bool) []PlanItem {
	items := make([]PlanItem, 0, len(res.Order))
	planned := make(map[string]bool, len(res.Order))
	for _, name := range res.Order {
		planned[name] = true
	}
	for _, name := range res.Order {
		meta := res.Resolved[name]
		var deps []string
		for _, raw := range meta.Dependencies {
			dep, err := spec.Parse(raw)
			if err == nil && planned[dep.Name] {
				deps = append(deps, dep.Name)
			}
		}
		items = append(items, PlanItem{
			Source:    sources[res.SourceOf[name]],
			Meta:      meta,
			Auto:      !explicit[name],
			DependsOn: deps,
		})
	}
	return items
}
