package resolve

import (
	"context"
	"encoding/json"
	"time"

	"github.com/depforge/depforge/pkg/cache"
	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/ledger"
	"github.com/depforge/depforge/pkg/source"
	"github.com/depforge/depforge/pkg/spec"
)

// DefaultVersionsTTL is how long available-version listings are cached.
// Version sets grow over time, so listings expire much faster than
// per-version metadata.
const DefaultVersionsTTL = 24 * time.Hour

// Catalog answers version and metadata lookups against the configured
// sources, consulting caches first. It owns no global state: the cache
// and ledger are injected and their lifetime belongs to the caller.
type Catalog struct {
	sources     []source.Source // priority-sorted
	cache       cache.Cache
	store       ledger.Store // optional; persists metadata cache rows
	metadataTTL time.Duration
	versionsTTL time.Duration
}

// NewCatalog creates a catalog over the given sources. c may be nil to
// disable the byte cache and store may be nil to disable the persistent
// metadata cache.
func NewCatalog(sources []source.Source, c cache.Cache, store ledger.Store) *Catalog {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Catalog{
		sources:     source.ByPriority(sources),
		cache:       c,
		store:       store,
		metadataTTL: cache.DefaultMetadataTTL,
		versionsTTL: DefaultVersionsTTL,
	}
}

// Sources returns the catalog's sources in priority order.
func (c *Catalog) Sources() []source.Source { return c.sources }

// Lookup chooses the installable version for a spec outside a full
// resolution walk: sources are consulted in priority order, and the
// first source with a satisfying version supplies its greatest match.
func (c *Catalog) Lookup(ctx context.Context, s spec.Spec) (*source.Metadata, source.Source, error) {
	sawPackage := false
	for _, src := range c.sources {
		versions, err := c.versions(ctx, src, s.Name)
		if err == source.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeFetchFailed, err, "list versions of %s at %s", s.Name, src.Name())
		}
		sawPackage = true

		best, ok := spec.MaxSatisfying(versions, s)
		if !ok {
			continue
		}
		meta, err := c.metadata(ctx, src, s.Name, best)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeFetchFailed, err, "fetch metadata %s@%s from %s", s.Name, best, src.Name())
		}
		return meta, src, nil
	}

	if sawPackage {
		return nil, nil, errors.New(errors.ErrCodeUnsatisfiable, "no available version of %s satisfies %s", s.Name, s)
	}
	return nil, nil, errors.New(errors.ErrCodePackageNotFound, "package %s not found in any source", s.Name)
}

// versions lists the available versions of name at one source, using the
// byte cache.
func (c *Catalog) versions(ctx context.Context, src source.Source, name string) ([]string, error) {
	key := cache.VersionsKey(src.Name(), name)
	if data, hit, _ := c.cache.Get(ctx, key); hit {
		var versions []string
		if err := json.Unmarshal(data, &versions); err == nil {
			return versions, nil
		}
	}

	versions, err := src.Versions(ctx, name)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(versions); err == nil {
		_ = c.cache.Set(ctx, key, data, c.versionsTTL)
	}
	return versions, nil
}

// metadata retrieves the metadata of one version from one source,
// consulting the ledger's cache table first and persisting fresh results
// back into it.
func (c *Catalog) metadata(ctx context.Context, src source.Source, name, version string) (*source.Metadata, error) {
	if c.store != nil {
		entry, err := c.store.CacheGet(ctx, name, version, src.Name())
		if err == nil && entry != nil && !entry.Stale(c.metadataTTL, time.Now()) {
			var meta source.Metadata
			if err := json.Unmarshal(entry.Metadata, &meta); err == nil {
				return &meta, nil
			}
		}
	}

	meta, err := src.Metadata(ctx, name, version)
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if data, err := json.Marshal(meta); err == nil {
			_ = c.store.CachePut(ctx, ledger.CacheEntry{
				Name:      name,
				Version:   version,
				Source:    src.Name(),
				Metadata:  data,
				FetchedAt: time.Now().UTC(),
			})
		}
	}
	return meta, nil
}
