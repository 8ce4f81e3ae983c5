package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Storage hands out partitions backed by a single provider.
// Opening the same name twice returns the same partition.
type Storage struct {
	provider   CacheProvider
	log        zerolog.Logger
	now        func() time.Time
	mutex      sync.Mutex
	partitions map[string]*Partition
}

func NewStorage(provider CacheProvider, logger zerolog.Logger) *Storage {
	return &Storage{
		provider:   provider,
		log:        logger,
		now:        time.Now,
		partitions: make(map[string]*Partition),
	}
}

// SetClock replaces the clock used for store and use times.
func (s *Storage) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
	for _, p := range s.partitions {
		p.now = now
	}
}

// Open returns the partition with the given name.
// The policy of the first Open call for a name is kept.
func (s *Storage) Open(name string, policy Policy) *Partition {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if p, ok := s.partitions[name]; ok {
		return p
	}
	p := &Partition{
		name:     name,
		policy:   policy,
		provider: s.provider,
		log:      s.log.With().Str("partition", name).Logger(),
		now:      s.now,
	}
	s.partitions[name] = p
	return p
}

// Partitions returns the opened partitions ordered by name.
func (s *Storage) Partitions() []*Partition {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	partitions := make([]*Partition, 0, len(s.partitions))
	for _, p := range s.partitions {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].name < partitions[j].name
	})
	return partitions
}
