package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileCache persists entries as files under a root directory. It is the
// default backend: a single depforge process per machine, entries that
// range from small metadata rows to whole artifact tarballs.
//
// Layout is <root>/<shard>/<digest>.entry where shard is the first byte
// of the hashed key, keeping any one directory from accumulating every
// artifact on the system.
type FileCache struct {
	root string
}

// NewFileCache creates a file-backed cache rooted at dir, creating the
// directory if needed.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{root: dir}, nil
}

// record is the on-disk envelope. A zero Expires means the entry is
// pinned forever; artifact bytes and checksum pins are stored that way.
type record struct {
	Expires time.Time `json:"expires,omitempty"`
	Data    []byte    `json:"data"`
}

func (r record) expired(now time.Time) bool {
	return !r.Expires.IsZero() && now.After(r.Expires)
}

func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.entryPath(key)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Unreadable entry, drop it and report a miss.
		_ = os.Remove(path)
		return nil, false, nil
	}
	if rec.expired(time.Now()) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return rec.Data, true, nil
}

// Set stores data under key. The write is staged and renamed into place
// so a concurrent Get never observes a torn entry.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	rec := record{Data: data}
	if ttl > 0 {
		rec.Expires = time.Now().Add(ttl)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	path := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.entryPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *FileCache) Close() error {
	return nil
}

func (c *FileCache) entryPath(key string) string {
	digest := Hash([]byte(key))
	return filepath.Join(c.root, digest[:2], digest[2:]+".entry")
}

var _ Cache = (*FileCache)(nil)
