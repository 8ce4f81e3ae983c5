// Package precache installs the build-time manifest of site assets into the precache
// partition and serves them from there.
package precache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/always-cache/swsi/cache"
	cachestatus "github.com/always-cache/swsi/pkg/cache-status"
	"github.com/always-cache/swsi/strategy"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PartitionName is the name of the partition precached responses are stored in.
const PartitionName = "precache"

const directoryIndex = "index.html"

// ErrNotPrecached is returned when a path is not in the manifest or not installed.
var ErrNotPrecached = errors.New("not precached")

// Entry is a manifest entry, as emitted by the build.
type Entry struct {
	URL      string `json:"url"`
	Revision string `json:"revision"`
}

type Manifest []Entry

// LoadManifest reads a JSON manifest file.
func LoadManifest(filename string) (Manifest, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseManifest(b)
}

func ParseManifest(b []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("could not parse manifest: %w", err)
	}
	for _, e := range m {
		if e.URL == "" {
			return nil, errors.New("manifest entry without url")
		}
	}
	return m, nil
}

type Options struct {
	Partition *cache.Partition
	Fetcher   strategy.Fetcher
	// Maximum number of concurrent fetches during install. Unlimited if 0.
	Concurrency int
	Logger      *zerolog.Logger
}

// Precache holds the installed manifest.
type Precache struct {
	partition   *cache.Partition
	fetcher     strategy.Fetcher
	concurrency int
	log         zerolog.Logger

	mutex   sync.RWMutex
	entries map[string]Entry
}

func New(manifest Manifest, opts Options) *Precache {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	p := &Precache{
		partition:   opts.Partition,
		fetcher:     opts.Fetcher,
		concurrency: opts.Concurrency,
		log:         logger.With().Str("component", "precache").Logger(),
	}
	p.SetManifest(manifest)
	return p
}

// SetManifest replaces the manifest. Install and Cleanup bring the partition in line with it.
func (p *Precache) SetManifest(manifest Manifest) {
	entries := make(map[string]Entry, len(manifest))
	for _, e := range manifest {
		entries[keyOf(e.URL)] = e
	}
	p.mutex.Lock()
	p.entries = entries
	p.mutex.Unlock()
}

func (p *Precache) snapshot() map[string]Entry {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.entries
}

// Install fetches every manifest entry whose installed revision differs from the
// manifest one. It returns the number of fetched entries.
// Install fails if any entry could not be fetched; entries fetched so far stay installed.
func (p *Precache) Install(ctx context.Context) (int, error) {
	entries := p.snapshot()
	g, ctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	var (
		mutex     sync.Mutex
		installed int
	)
	for key, e := range entries {
		if ce, err := p.partition.Match(key); err == nil && e.Revision != "" && ce.Revision == e.Revision {
			p.log.Trace().Str("url", key).Msg("Revision unchanged, skipping")
			continue
		}
		g.Go(func() error {
			if err := p.install(ctx, key, e); err != nil {
				return err
			}
			mutex.Lock()
			installed++
			mutex.Unlock()
			return nil
		})
	}
	err := g.Wait()
	p.log.Info().Int("installed", installed).Int("entries", len(entries)).Err(err).Msg("Install done")
	return installed, err
}

func (p *Precache) install(ctx context.Context, key string, e Entry) error {
	req := strategy.Request{
		URL:         &url.URL{Path: key},
		Method:      http.MethodGet,
		Mode:        strategy.ModeSubresource,
		Destination: strategy.DestinationOther,
		Header:      http.Header{},
	}
	res, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("could not precache %s: %w", key, err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("could not precache %s: status %d", key, res.StatusCode)
	}
	bytes, err := res.Bytes()
	if err != nil {
		return err
	}
	if err := p.partition.PutEntry(cache.CacheEntry{Key: key, Revision: e.Revision, Bytes: bytes}); err != nil {
		return fmt.Errorf("could not store %s: %w", key, err)
	}
	p.log.Debug().Str("url", key).Str("revision", e.Revision).Msg("Precached")
	return nil
}

// Cleanup removes installed entries that are no longer in the manifest.
func (p *Precache) Cleanup() (int, error) {
	entries := p.snapshot()
	var stale []string
	if err := p.partition.Keys(func(key string) {
		if _, ok := entries[key]; !ok {
			stale = append(stale, key)
		}
	}); err != nil {
		return 0, err
	}
	for _, key := range stale {
		if err := p.partition.Delete(key); err != nil {
			return 0, err
		}
		p.log.Debug().Str("url", key).Msg("Removed outdated precache entry")
	}
	return len(stale), nil
}

// Has tells whether the URL denotes a manifest entry.
func (p *Precache) Has(u *url.URL) bool {
	_, ok := p.lookup(u.Path)
	return ok
}

// lookup finds the manifest key for a path, applying directory index rules.
func (p *Precache) lookup(urlPath string) (string, bool) {
	entries := p.snapshot()
	for _, candidate := range candidates(urlPath) {
		if _, ok := entries[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// Match returns the installed response for the URL. The query is ignored.
func (p *Precache) Match(u *url.URL) (*strategy.Response, error) {
	key, ok := p.lookup(u.Path)
	if !ok {
		return nil, ErrNotPrecached
	}
	ce, err := p.partition.Match(key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotPrecached
	} else if err != nil {
		return nil, err
	}
	return strategy.ResponseFromBytes(ce.Bytes)
}

// Text returns the body of a precached path.
func (p *Precache) Text(ctx context.Context, urlPath string) (string, error) {
	u, err := url.Parse(urlPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotPrecached, err)
	}
	res, err := p.Match(u)
	if err != nil {
		return "", err
	}
	return string(res.Body), nil
}

// Handle serves a precached URL, going to the network if it is not installed.
// A network response for a manifest entry is installed.
func (p *Precache) Handle(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
	res, err := p.Match(req.URL)
	if err == nil {
		res.CacheStatus = cachestatus.Hit(PartitionName)
		return res, nil
	}
	if !errors.Is(err, ErrNotPrecached) {
		p.log.Error().Err(err).Str("url", req.URL.String()).Msg("Could not read precached response")
	}
	res, err = p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", strategy.ErrNoResponse, err)
	}
	res.CacheStatus = cachestatus.Forward(cachestatus.FwdUriMiss, PartitionName)
	if key, ok := p.lookup(req.URL.Path); ok && res.StatusCode == http.StatusOK {
		e := p.snapshot()[key]
		if bytes, err := res.Bytes(); err == nil {
			if err := p.partition.PutEntry(cache.CacheEntry{Key: key, Revision: e.Revision, Bytes: bytes}); err != nil {
				p.log.Error().Err(err).Str("url", key).Msg("Could not store precached response")
			} else {
				res.CacheStatus.Stored = true
			}
		}
	}
	return res, nil
}

// keyOf maps a manifest url to its key, an absolute clean path.
func keyOf(manifestURL string) string {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return manifestURL
	}
	p := u.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

func candidates(urlPath string) []string {
	key := keyOf(urlPath)
	if strings.HasSuffix(key, "/") {
		return []string{key, key + directoryIndex}
	}
	return []string{key, key + "/" + directoryIndex}
}
