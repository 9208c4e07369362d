package cache

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileCache stores entries under a directory, one file per entry, grouped
// into a subdirectory per entry kind (asset/, render/). Payloads are kept
// raw behind a fixed-size expiry header, so a cached PNG is written and
// read without re-encoding.
type FileCache struct {
	dir string
}

// expiryHeaderLen is the size of the per-entry header: the expiry moment as
// big-endian unix nanoseconds, zero meaning no expiry.
const expiryHeaderLen = 8

// NewFileCache creates a file-based cache rooted at dir, creating the
// directory if needed.
func NewFileCache(dir string) (Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Get retrieves a value, removing the entry if it has expired or is
// malformed.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(data) < expiryHeaderLen {
		_ = os.Remove(path)
		return nil, false, nil
	}

	expiry := int64(binary.BigEndian.Uint64(data[:expiryHeaderLen]))
	if expiry != 0 && time.Now().UnixNano() > expiry {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return data[expiryHeaderLen:], true, nil
}

// Set stores a value with the given TTL.
func (c *FileCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	var expiry int64
	if ttl > 0 {
		expiry = time.Now().Add(ttl).UnixNano()
	}

	buf := make([]byte, expiryHeaderLen+len(data))
	binary.BigEndian.PutUint64(buf, uint64(expiry))
	copy(buf[expiryHeaderLen:], data)

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// Delete removes a value. Missing entries are not an error.
func (c *FileCache) Delete(_ context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close is a no-op for the file cache.
func (c *FileCache) Close() error {
	return nil
}

// path places an entry in the subdirectory named by its kind prefix, with
// the hashed key as the filename. Keys without a kind prefix land in misc/.
func (c *FileCache) path(key string) string {
	kind := "misc"
	if k, _, ok := strings.Cut(key, ":"); ok && k != "" {
		kind = k
	}
	return filepath.Join(c.dir, kind, Hash([]byte(key))+".bin")
}

var _ Cache = (*FileCache)(nil)
