package offline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// CacheStorage is a set of named cache buckets on disk, one directory per
// bucket. Entries are keyed by request URL.
type CacheStorage struct {
	dir string
}

// Cache is one named bucket.
type Cache struct {
	name string
	dir  string
}

// Entry is a stored response.
type Entry struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	StoredAt time.Time   `json:"stored_at"`
	Body     []byte      `json:"-"`
}

func NewCacheStorage(dir string) *CacheStorage {
	if dir == "" {
		dir = "./var/offline-cache"
	}
	return &CacheStorage{dir: dir}
}

// Open returns the bucket called name, creating it if needed.
func (s *CacheStorage) Open(name string) (*Cache, error) {
	if name == "" {
		return nil, errors.New("offline: empty cache name")
	}
	dir := filepath.Join(s.dir, bucketDir(name))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	// The directory name is escaped; keep the real name next to the entries.
	if err := os.WriteFile(filepath.Join(dir, ".name"), []byte(name), 0o600); err != nil {
		return nil, err
	}
	return &Cache{name: name, dir: dir}, nil
}

// Has reports whether bucket name exists without creating it.
func (s *CacheStorage) Has(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, bucketDir(name), ".name"))
	return err == nil
}

// Keys lists bucket names in sorted order.
func (s *CacheStorage) Keys() ([]string, error) {
	ents, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name(), ".name"))
		if err != nil {
			continue
		}
		names = append(names, string(raw))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes bucket name. It reports whether the bucket existed.
func (s *CacheStorage) Delete(name string) (bool, error) {
	dir := filepath.Join(s.dir, bucketDir(name))
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Name() string { return c.name }

// Match returns the entry stored for url.
func (c *Cache) Match(url string) (*Entry, bool, error) {
	entryDir := filepath.Join(c.dir, hashKey(url))

	data, err := os.ReadFile(filepath.Join(entryDir, "meta.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, err
	}
	body, err := os.ReadFile(filepath.Join(entryDir, "body"))
	if err != nil {
		return nil, false, err
	}
	e.Body = body
	return &e, true, nil
}

// Put stores e under its URL, replacing any previous entry.
func (c *Cache) Put(e *Entry) error {
	entryDir := filepath.Join(c.dir, hashKey(e.URL))
	if err := os.MkdirAll(entryDir, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at a missing body.
	if err := writeAtomic(filepath.Join(entryDir, "body"), e.Body); err != nil {
		return err
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(entryDir, "meta.json"), data)
}

// Response rebuilds an *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".festplan-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func bucketDir(name string) string {
	return "bucket-" + hex.EncodeToString([]byte(name))
}

func hashKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	// First 16 hex chars are plenty for a per-bucket key.
	return hex.EncodeToString(sum[:8])
}
