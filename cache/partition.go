package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Policy limits the size and age of a partition. Zero values disable a limit.
type Policy struct {
	// Maximum number of entries. Least recently used entries are evicted first.
	MaxEntries int `yaml:"maxEntries"`
	// Maximum time since an entry was stored.
	MaxAge time.Duration `yaml:"maxAge"`
}

// Partition is a named, independently evictable set of cache entries.
// Partitions are created lazily: nothing is stored until the first Put.
type Partition struct {
	name     string
	policy   Policy
	provider CacheProvider
	log      zerolog.Logger
	now      func() time.Time
	// serializes put and evict so the partition never exceeds MaxEntries
	mutex sync.Mutex
}

func (p *Partition) Name() string {
	return p.name
}

func (p *Partition) Policy() Policy {
	return p.policy
}

// Match returns the entry stored under key.
// Entries older than the maximum age are purged and reported as ErrNotFound.
// A successful match counts as a use of the entry.
func (p *Partition) Match(key string) (CacheEntry, error) {
	ce, err := p.provider.Get(p.name, key)
	if err != nil {
		return ce, err
	}
	now := p.now()
	if p.expired(ce, now) {
		p.log.Trace().Str("key", key).Msg("Entry expired")
		if err := p.provider.Purge(p.name, key); err != nil {
			p.log.Error().Err(err).Str("key", key).Msg("Could not purge expired entry")
		}
		return CacheEntry{Key: key}, ErrNotFound
	}
	if err := p.provider.Touch(p.name, key, now); err != nil {
		p.log.Error().Err(err).Str("key", key).Msg("Could not update entry use time")
	}
	return ce, nil
}

// Put stores bytes under key and evicts entries as needed by the partition policy.
func (p *Partition) Put(key string, bytes []byte) error {
	return p.PutEntry(CacheEntry{Key: key, Bytes: bytes})
}

// PutEntry stores the entry, setting its store and use times to now.
func (p *Partition) PutEntry(ce CacheEntry) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	now := p.now()
	ce.StoredAt = now
	ce.UsedAt = now
	p.log.Trace().Str("key", ce.Key).Msg("Writing to cache")
	if err := p.provider.Put(p.name, ce); err != nil {
		return err
	}
	return p.evict()
}

// Delete removes the entry for key, if any.
func (p *Partition) Delete(key string) error {
	return p.provider.Purge(p.name, key)
}

func (p *Partition) Len() (int, error) {
	return p.provider.Len(p.name)
}

func (p *Partition) Keys(cb func(string)) error {
	return p.provider.AllKeys(p.name, cb)
}

// evict removes least recently used entries until the partition fits MaxEntries.
// It must be called with the mutex held.
func (p *Partition) evict() error {
	if p.policy.MaxEntries <= 0 {
		return nil
	}
	for {
		n, err := p.provider.Len(p.name)
		if err != nil {
			return err
		}
		if n <= p.policy.MaxEntries {
			return nil
		}
		key, err := p.provider.LeastRecentlyUsed(p.name)
		if errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		p.log.Trace().Str("key", key).Msg("Evicting least recently used entry")
		if err := p.provider.Purge(p.name, key); err != nil {
			return err
		}
	}
}

// PurgeExpired removes entries stored longer ago than MaxAge.
// It returns the number of purged entries.
func (p *Partition) PurgeExpired() (int, error) {
	if p.policy.MaxAge <= 0 {
		return 0, nil
	}
	purged := 0
	now := p.now()
	for {
		key, storedAt, err := p.provider.Oldest(p.name)
		if errors.Is(err, ErrNotFound) {
			return purged, nil
		} else if err != nil {
			return purged, err
		}
		if now.Sub(storedAt) <= p.policy.MaxAge {
			return purged, nil
		}
		if err := p.provider.Purge(p.name, key); err != nil {
			return purged, err
		}
		purged++
	}
}

func (p *Partition) expired(ce CacheEntry, now time.Time) bool {
	return p.policy.MaxAge > 0 && now.Sub(ce.StoredAt) > p.policy.MaxAge
}
