// Package preferences persists user settings such as the preferred language.
// Settings are scoped per client; a Prefs value is the view of one client's settings.
package preferences

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// KeyLang is the preference holding the preferred locale.
const KeyLang = "lang"

// Store keeps preference values per client.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the value and whether it was set.
	Get(ctx context.Context, client, key string) (string, bool, error)
	Set(ctx context.Context, client, key, value string) error
}

// Prefs is the preference store of a single client.
type Prefs struct {
	store  Store
	client string
}

func Scoped(store Store, client string) Prefs {
	return Prefs{store: store, client: client}
}

func (p Prefs) Get(ctx context.Context, key string) (string, bool, error) {
	if p.store == nil {
		return "", false, nil
	}
	return p.store.Get(ctx, p.client, key)
}

func (p Prefs) Set(ctx context.Context, key, value string) error {
	if p.store == nil {
		return errors.New("no preference store")
	}
	return p.store.Set(ctx, p.client, key, value)
}

type contextKey struct{}

// NewContext returns a context carrying the preferences.
func NewContext(ctx context.Context, p Prefs) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the preferences carried by ctx.
// Without preferences, an empty view is returned: every Get reports an unset value.
func FromContext(ctx context.Context) Prefs {
	if p, ok := ctx.Value(contextKey{}).(Prefs); ok {
		return p
	}
	return Prefs{}
}

type MemStore struct {
	mutex  *sync.RWMutex
	values map[string]map[string]string
}

func NewMemStore() MemStore {
	return MemStore{
		mutex:  &sync.RWMutex{},
		values: make(map[string]map[string]string),
	}
}

func (m MemStore) Get(ctx context.Context, client, key string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	value, ok := m.values[client][key]
	return value, ok, nil
}

func (m MemStore) Set(ctx context.Context, client, key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.values[client]; !ok {
		m.values[client] = make(map[string]string)
	}
	m.values[client][key] = value
	return nil
}

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
	// whether Close closes db
	owned bool
}

// NewSQLiteStore opens (and creates if needed) the preferences table in the given db file.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, err
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStoreWithDB(db)
	if err != nil {
		db.Close()
		return SQLiteStore{}, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStoreWithDB creates the preferences table in an open db, typically the cache db.
// Writes then go through the connection pool of db, serialized with those of its owner.
// Closing the store leaves db open.
func NewSQLiteStoreWithDB(db *sql.DB) (SQLiteStore, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		client TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		PRIMARY KEY (client, key)
	)`)
	if err != nil {
		return SQLiteStore{}, err
	}
	return SQLiteStore{db: db, writeMutex: &sync.Mutex{}}, nil
}

func (s SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s SQLiteStore) Get(ctx context.Context, client, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE client = ? AND key = ?", client, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s SQLiteStore) Set(ctx context.Context, client, key, value string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO preferences (client, key, value) VALUES (?, ?, ?)", client, key, value)
	return err
}
