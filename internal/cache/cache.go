// Package cache provides a typed TTL cache for retrieval results,
// backed by an embedded Badger store. Entries are grouped into classes
// with independent lifetimes, keys are content fingerprints of the
// query and its parameters, and concurrent misses for the same key are
// collapsed into a single computation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"
)

// Class identifies a family of cached values with a shared TTL.
type Class string

const (
	// ClassEmbedding caches query embedding vectors. Embeddings are
	// deterministic for a given model, so they live the longest.
	ClassEmbedding Class = "embedding"

	// ClassVectorResult caches assembled vector search results.
	ClassVectorResult Class = "vector_result"

	// ClassNavigation caches structural navigation results.
	ClassNavigation Class = "navigation_result"

	// ClassTOC caches rendered document outlines.
	ClassTOC Class = "toc"
)

// TTLs holds the per-class entry lifetimes.
type TTLs struct {
	Embedding    time.Duration
	VectorResult time.Duration
	Navigation   time.Duration
	TOC          time.Duration
}

// DefaultTTLs mirror the volatility of each class: embeddings almost
// never change, search results track corpus updates, outlines sit in
// between.
func DefaultTTLs() TTLs {
	return TTLs{
		Embedding:    7 * 24 * time.Hour,
		VectorResult: time.Hour,
		Navigation:   30 * time.Minute,
		TOC:          24 * time.Hour,
	}
}

func (t TTLs) forClass(c Class) time.Duration {
	switch c {
	case ClassEmbedding:
		return t.Embedding
	case ClassVectorResult:
		return t.VectorResult
	case ClassNavigation:
		return t.Navigation
	case ClassTOC:
		return t.TOC
	default:
		return time.Hour
	}
}

// Cache is a TTL key/value cache over Badger. A nil or failed store
// degrades to pass-through: Get always misses, Set is a no-op, and
// GetOrCompute still deduplicates concurrent callers. The retrieval
// pipeline therefore keeps working through cache outages, only slower.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	db     *badger.DB
	ttls   TTLs
	group  singleflight.Group
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens (or creates) the Badger store at dir. An error here is
// returned rather than swallowed so the caller can decide between
// failing fast and running degraded via NewDisabled.
func Open(dir string, ttls TTLs, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithIndexCacheSize(32 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", dir, err)
	}

	return &Cache{db: db, ttls: ttls, logger: logger}, nil
}

// NewDisabled returns a Cache with no backing store. Every lookup
// misses and every write is dropped; single-flight deduplication still
// applies.
func NewDisabled(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{ttls: DefaultTTLs(), logger: logger}
}

// Key builds the cache key for a query within a class. The query is
// normalized (trimmed, lowercased, whitespace-collapsed) before
// fingerprinting so trivially different spellings share an entry, and
// every parameter that affects the result is folded into the hash.
func Key(class Class, query string, params ...any) string {
	h := sha256.New()
	h.Write([]byte(normalize(query)))
	for _, p := range params {
		fmt.Fprintf(h, "|%v", p)
	}
	return string(class) + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// DocKey builds a document-scoped key, used for outlines so that
// invalidating a document can drop them by prefix.
func DocKey(class Class, documentID int64, parts ...any) string {
	key := fmt.Sprintf("%s:doc:%d", class, documentID)
	for _, p := range parts {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns the cached value for key. Store errors other than
// key-not-found are logged and reported as misses.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c.db == nil {
		c.misses.Add(1)
		return nil, false
	}

	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return val, true
}

// Set stores val under key with the TTL of its class. Write failures
// are logged, not returned: a cold cache is acceptable, a failed
// request is not.
func (c *Cache) Set(key string, val []byte, class Class) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), val).WithTTL(c.ttls.forClass(class))
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value for key, or computes and stores
// it. Concurrent callers with the same key share one compute call; only
// its result is fanned out. Compute errors are never cached, and a
// compute that outlives its context must not commit partial state, so
// the value is only stored after compute returns cleanly.
//
// The second return value reports whether the value was served from
// cache or from another caller's in-flight computation.
func (c *Cache) GetOrCompute(key string, class Class, compute func() ([]byte, error)) ([]byte, bool, error) {
	if val, ok := c.Get(key); ok {
		return val, true, nil
	}

	val, err, shared := c.group.Do(key, func() (any, error) {
		// Another flight may have filled the entry while we queued.
		if val, ok := c.Get(key); ok {
			return val, nil
		}
		val, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, val, class)
		return val, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), shared, nil
}

// InvalidateDocument drops every entry derived from the given document:
// its outline keys plus all search and navigation results, since any of
// those may embed the document's content. Embeddings survive, they
// depend only on the query text.
func (c *Cache) InvalidateDocument(documentID int64) (int, error) {
	if c.db == nil {
		return 0, nil
	}

	prefixes := [][]byte{
		[]byte(DocKey(ClassTOC, documentID)),
		[]byte(string(ClassVectorResult) + ":"),
		[]byte(string(ClassNavigation) + ":"),
	}

	total := 0
	for _, prefix := range prefixes {
		n, err := c.dropPrefix(prefix)
		if err != nil {
			return total, fmt.Errorf("invalidate document %d: %w", documentID, err)
		}
		total += n
	}

	c.logger.Info("cache invalidated", "document_id", documentID, "entries", total)
	return total, nil
}

func (c *Cache) dropPrefix(prefix []byte) (int, error) {
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Len counts live entries, skipping those already expired but not yet
// garbage collected.
func (c *Cache) Len() int64 {
	if c.db == nil {
		return 0
	}

	var n int64
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if !it.Item().IsDeletedOrExpired() {
				n++
			}
		}
		return nil
	})
	return n
}

// HitRate returns hits / (hits + misses) since process start, or 0
// before the first lookup.
func (c *Cache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Close flushes and closes the backing store.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
