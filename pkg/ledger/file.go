package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/spec"
)

// FileStore is a file-based ledger for CLI usage.
//
// All four tables live in a single JSON state file that is rewritten
// atomically (write-temp-then-rename), so a mutation and its event either
// both land or neither does. A store-wide mutex serializes writers, which
// also gives the at-most-one-writer-per-name guarantee.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	state fileState
}

type fileState struct {
	Packages map[string]InstalledPackage          `json:"packages"`
	Sources  map[string]SourceRow                 `json:"sources"`
	Cache    map[string]CacheEntry                `json:"cache"` // key: name\x00version\x00source
	History  []Event                              `json:"history"`
}

// NewFileStore opens (or creates) a file ledger at path. If path is empty
// it defaults to ~/.local/share/depforge/ledger.json.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".local", "share", "depforge", "ledger.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	s := &FileStore{path: path, state: newFileState()}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLedger, err, "corrupt ledger state at %s", path)
	}
	if s.state.Packages == nil || s.state.Sources == nil || s.state.Cache == nil {
		s.state = newFileState()
	}
	return s, nil
}

func newFileState() fileState {
	return fileState{
		Packages: make(map[string]InstalledPackage),
		Sources:  make(map[string]SourceRow),
		Cache:    make(map[string]CacheEntry),
	}
}

func cacheKey(name, version, source string) string {
	return name + "\x00" + version + "\x00" + source
}

// persist writes the current state atomically. Callers must hold mu.
// If the write fails the in-memory state is restored from prev, so a
// failed transaction leaves no partial mutation behind.
func (s *FileStore) persist(prev fileState) error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		s.state = prev
		return errors.Wrap(errors.ErrCodeLedger, err, "marshal ledger state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.state = prev
		return errors.Wrap(errors.ErrCodeLedger, err, "write ledger state")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.state = prev
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeLedger, err, "commit ledger state")
	}
	return nil
}

// snapshot returns a shallow copy of the state suitable for rollback.
func (s *FileStore) snapshot() fileState {
	prev := fileState{
		Packages: make(map[string]InstalledPackage, len(s.state.Packages)),
		Sources:  make(map[string]SourceRow, len(s.state.Sources)),
		Cache:    make(map[string]CacheEntry, len(s.state.Cache)),
		History:  s.state.History,
	}
	for k, v := range s.state.Packages {
		prev.Packages[k] = v
	}
	for k, v := range s.state.Sources {
		prev.Sources[k] = v
	}
	for k, v := range s.state.Cache {
		prev.Cache[k] = v
	}
	return prev
}

func (s *FileStore) Get(ctx context.Context, name string) (*InstalledPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, ok := s.state.Packages[name]
	if !ok {
		return nil, nil
	}
	return &pkg, nil
}

func (s *FileStore) List(ctx context.Context) ([]InstalledPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]InstalledPackage, 0, len(s.state.Packages))
	for _, pkg := range s.state.Packages {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) Put(ctx context.Context, pkg InstalledPackage, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	s.state.Packages[pkg.Name] = pkg
	s.state.History = append(s.state.History, ev)
	return s.persist(prev)
}

func (s *FileStore) Delete(ctx context.Context, name string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	delete(s.state.Packages, name)
	s.state.History = append(s.state.History, ev)
	return s.persist(prev)
}

func (s *FileStore) Dependents(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, pkg := range s.state.Packages {
		for _, dep := range pkg.Dependencies {
			parsed, err := spec.Parse(dep)
			if err != nil {
				continue
			}
			if parsed.Name == name {
				out = append(out, pkg.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Sources(ctx context.Context) ([]SourceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceRow, 0, len(s.state.Sources))
	for _, row := range s.state.Sources {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *FileStore) PutSource(ctx context.Context, row SourceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	s.state.Sources[row.Name] = row
	return s.persist(prev)
}

func (s *FileStore) CacheGet(ctx context.Context, name, version, source string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.state.Cache[cacheKey(name, version, source)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *FileStore) CachePut(ctx context.Context, entry CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	s.state.Cache[cacheKey(entry.Name, entry.Version, entry.Source)] = entry
	return s.persist(prev)
}

func (s *FileStore) CachePurge(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	removed := 0
	for key, entry := range s.state.Cache {
		if entry.FetchedAt.Before(cutoff) {
			delete(s.state.Cache, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.persist(prev); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *FileStore) AppendEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshot()
	s.state.History = append(s.state.History, ev)
	return s.persist(prev)
}

func (s *FileStore) Events(ctx context.Context, name string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.state.History) - 1; i >= 0; i-- {
		ev := s.state.History[i]
		if name == "" || ev.Package == name {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
