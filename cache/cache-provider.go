package cache

import (
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrNotFound is returned by providers when a key is not stored in a partition.
var ErrNotFound = errors.New("cache entry not found")

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP responses.
// Entries are grouped in named partitions, and every operation is scoped to one partition.
// It also keeps track of when entries were stored and last used,
// which the partition policies need for eviction.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Get returns the cache entry for the given key.
	// It returns ErrNotFound if the partition does not hold the key.
	Get(partition, key string) (CacheEntry, error)
	// Put stores the entry, replacing any entry with the same key.
	Put(partition string, ce CacheEntry) error
	// Touch sets the last used time of an entry.
	Touch(partition, key string, usedAt time.Time) error
	// Purge removes the cache entry for the given key.
	Purge(partition, key string) error
	// Len returns the number of entries in the partition.
	Len(partition string) (int, error)
	// LeastRecentlyUsed returns the key of the entry with the oldest last used time.
	// It returns ErrNotFound for empty partitions.
	LeastRecentlyUsed(partition string) (string, error)
	// Oldest returns the key and store time of the entry stored first.
	// It returns ErrNotFound for empty partitions.
	Oldest(partition string) (string, time.Time, error)
	// AllKeys calls the given callback for each key in the partition.
	AllKeys(partition string, cb func(string)) error
}

type CacheEntry struct {
	Key string
	// When the entry was written.
	StoredAt time.Time
	// When the entry was last written or served.
	UsedAt time.Time
	// Revision of a precached asset. Empty for runtime entries.
	Revision string
	Bytes    []byte
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) (SQLiteCache, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteCache{}, err
	}
	// a single connection avoids SQLITE_LOCKED on shared in-memory databases
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS cache (
		partition TEXT NOT NULL,
		key TEXT NOT NULL,
		stored_at INTEGER,
		used_at INTEGER,
		revision TEXT,
		bytes BLOB,
		PRIMARY KEY (partition, key)
	)`,
		"CREATE INDEX IF NOT EXISTS used_at_idx ON cache (partition, used_at)",
		"CREATE INDEX IF NOT EXISTS stored_at_idx ON cache (partition, stored_at)",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteCache{}, err
		}
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

// DB returns the underlying database, so that other tables can share its connection.
func (s SQLiteCache) DB() *sql.DB {
	return s.db
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}

func (s SQLiteCache) Get(partition, key string) (CacheEntry, error) {
	entry := CacheEntry{Key: key}
	var stored, used int64
	var revision sql.NullString
	err := s.db.QueryRow(
		"SELECT stored_at, used_at, revision, bytes FROM cache WHERE partition = ? AND key = ?",
		partition, key,
	).Scan(&stored, &used, &revision, &entry.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, ErrNotFound
	}
	if err != nil {
		return entry, err
	}
	entry.StoredAt = time.UnixMilli(stored)
	entry.UsedAt = time.UnixMilli(used)
	entry.Revision = revision.String
	return entry, nil
}

func (s SQLiteCache) Put(partition string, ce CacheEntry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache
		(partition, key, stored_at, used_at, revision, bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		partition, ce.Key, ce.StoredAt.UnixMilli(), ce.UsedAt.UnixMilli(), ce.Revision, ce.Bytes)
	return err
}

func (s SQLiteCache) Touch(partition, key string, usedAt time.Time) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("UPDATE cache SET used_at = ? WHERE partition = ? AND key = ?",
		usedAt.UnixMilli(), partition, key)
	return err
}

func (s SQLiteCache) Purge(partition, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE partition = ? AND key = ?", partition, key)
	return err
}

func (s SQLiteCache) Len(partition string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cache WHERE partition = ?", partition).Scan(&n)
	return n, err
}

func (s SQLiteCache) LeastRecentlyUsed(partition string) (string, error) {
	var key string
	err := s.db.QueryRow(
		"SELECT key FROM cache WHERE partition = ? ORDER BY used_at ASC, stored_at ASC LIMIT 1",
		partition,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return key, err
}

func (s SQLiteCache) Oldest(partition string) (string, time.Time, error) {
	var key string
	var stored int64
	err := s.db.QueryRow(
		"SELECT key, stored_at FROM cache WHERE partition = ? ORDER BY stored_at ASC LIMIT 1",
		partition,
	).Scan(&key, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return key, time.UnixMilli(stored), nil
}

func (s SQLiteCache) AllKeys(partition string, cb func(string)) error {
	rows, err := s.db.Query("SELECT key FROM cache WHERE partition = ?", partition)
	if err != nil {
		return err
	}
	// collect first, the callback may write to the db
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return err
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		cb(key)
	}
	return nil
}
