// Package ledger is the durable record of what is currently installed.
//
// The ledger holds four logical tables: installed packages, configured
// sources, cached package metadata, and the append-only installation
// history. Every mutating operation appends an installation event in the
// same transaction as the primary mutation, so the audit trail can never
// diverge from ledger state.
//
// Backends:
//   - file: a single atomically-rewritten JSON state file (default, CLI)
//   - mongo: four collections with multi-document transactions (server)
//
// Both backends serialize writers so that at most one mutation per package
// name is in flight at a time.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of lifecycle operation recorded in an event.
type Action string

// Lifecycle actions recorded in the installation history.
const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionUpdate    Action = "update"
)

// InstalledPackage is the ledger row for one installed package.
// Name is the unique key: at most one row exists per name.
type InstalledPackage struct {
	Name          string    `json:"name" bson:"_id"`
	Version       string    `json:"version" bson:"version"`
	Description   string    `json:"description,omitempty" bson:"description,omitempty"`
	Author        string    `json:"author,omitempty" bson:"author,omitempty"`
	License       string    `json:"license,omitempty" bson:"license,omitempty"`
	InstallPath   string    `json:"install_path" bson:"install_path"`
	Dependencies  []string  `json:"dependencies,omitempty" bson:"dependencies,omitempty"` // dependency spec strings, snapshot at install time
	Checksum      string    `json:"checksum" bson:"checksum"`
	InstalledAt   time.Time `json:"installed_at" bson:"installed_at"`
	AutoInstalled bool      `json:"auto_installed" bson:"auto_installed"` // pulled in only transitively
}

// SourceRow is the persisted configuration of one package source.
// Sources are configured at startup and read-only during resolution.
type SourceRow struct {
	Name      string `json:"name" bson:"_id"`
	Location  string `json:"location" bson:"location"`
	Priority  int    `json:"priority" bson:"priority"` // lower number = consulted first
	Trusted   bool   `json:"trusted" bson:"trusted"`
	AuthToken string `json:"auth_token,omitempty" bson:"auth_token,omitempty"`
}

// CacheEntry is cached package metadata from one source.
// Entries are keyed by (Name, Version, Source) and become stale after the
// configured staleness window (default 30 days).
type CacheEntry struct {
	Name      string    `json:"name" bson:"name"`
	Version   string    `json:"version" bson:"version"`
	Source    string    `json:"source" bson:"source"`
	Metadata  []byte    `json:"metadata" bson:"metadata"` // JSON-encoded source.Metadata
	FetchedAt time.Time `json:"fetched_at" bson:"fetched_at"`
}

// Stale reports whether the entry is older than the staleness window.
func (e CacheEntry) Stale(window time.Duration, now time.Time) bool {
	return now.Sub(e.FetchedAt) > window
}

// Event is one row of the append-only installation history.
// Events are never mutated after creation.
type Event struct {
	ID      string    `json:"id" bson:"_id"`
	Package string    `json:"package" bson:"package"`
	Action  Action    `json:"action" bson:"action"`
	Time    time.Time `json:"time" bson:"time"`
	Success bool      `json:"success" bson:"success"`
	Error   string    `json:"error,omitempty" bson:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(pkg string, action Action, success bool, errMsg string) Event {
	return Event{
		ID:      uuid.NewString(),
		Package: pkg,
		Action:  action,
		Time:    time.Now().UTC(),
		Success: success,
		Error:   errMsg,
	}
}

// Store is the interface for ledger storage backends.
//
// Mutating methods take the Event to append atomically with the primary
// mutation. Lookups return (nil, nil) when the row does not exist.
type Store interface {
	// Get retrieves an installed package by name.
	Get(ctx context.Context, name string) (*InstalledPackage, error)

	// List returns all installed packages sorted by name.
	List(ctx context.Context) ([]InstalledPackage, error)

	// Put inserts or replaces an installed package and appends ev in the
	// same transaction.
	Put(ctx context.Context, pkg InstalledPackage, ev Event) error

	// Delete removes an installed package and appends ev in the same
	// transaction. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string, ev Event) error

	// Dependents returns the names of installed packages whose dependency
	// specs reference name.
	Dependents(ctx context.Context, name string) ([]string, error)

	// Sources returns the configured sources sorted by priority.
	Sources(ctx context.Context) ([]SourceRow, error)

	// PutSource inserts or replaces a source row.
	PutSource(ctx context.Context, row SourceRow) error

	// CacheGet retrieves a cache entry, or nil if absent.
	CacheGet(ctx context.Context, name, version, source string) (*CacheEntry, error)

	// CachePut inserts or replaces a cache entry.
	CachePut(ctx context.Context, entry CacheEntry) error

	// CachePurge removes entries fetched before cutoff and returns how
	// many were removed.
	CachePurge(ctx context.Context, cutoff time.Time) (int, error)

	// AppendEvent appends an event without a primary mutation. Used for
	// recording failures.
	AppendEvent(ctx context.Context, ev Event) error

	// Events returns history rows, newest first. An empty name returns
	// the full history.
	Events(ctx context.Context, name string) ([]Event, error)

	// Close releases backend resources.
	Close() error
}
