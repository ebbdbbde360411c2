// Package cache holds resolved sites and their blobs in two tiers:
// a memory tier for hot content and an optional disk tier that survives
// restarts. Site snapshots are immutable and only ever replaced by a
// newer manifest, so readers always see a consistent file set.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/singleflight"

	"github.com/nsyte/gateway/pkg/events"
	"github.com/nsyte/gateway/pkg/store"
)

// Variant distinguishes the cached bodies of one blob.
type Variant int

const (
	// Raw is the blob exactly as downloaded, hashing to its sha256.
	Raw Variant = iota

	// Decompressed is the blob after brotli or gzip decompression.
	Decompressed
)

// BlobKey identifies one cached body: a blob of a site, in one variant.
type BlobKey struct {
	Site    events.Site
	Hash    string
	Variant Variant
}

// Snapshot is an immutable view of a site derived from its manifest.
// Callers must not modify the Files map.
type Snapshot struct {
	Files     map[string]string // path -> sha256
	Servers   []string          // blob servers endorsed by the publisher
	CreatedAt nostr.Timestamp   // created_at of the manifest
	Empty     bool              // the manifest lists no files
}

type siteState struct {
	manifest *nostr.Event
	snapshot Snapshot

	updated      int64 // unix ms of the last observed content change
	loading      bool
	missingUntil time.Time
}

type Cache struct {
	mu    sync.RWMutex
	sites map[events.Site]*siteState

	blobMu sync.RWMutex
	blobs  map[BlobKey][]byte

	flight singleflight.Group
	disk   disk
	config Config
}

// New returns a cache from the provided [Config], which is assumed to have
// been validated. The disk tier directory is created if needed.
func New(config Config) (*Cache, error) {
	if config.Dir != "" {
		if err := os.MkdirAll(config.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	return &Cache{
		sites:  make(map[events.Site]*siteState),
		blobs:  make(map[BlobKey][]byte),
		disk:   disk{root: config.Dir},
		config: config,
	}, nil
}

// Site returns the current snapshot of the site.
// On a memory miss the disk tier is consulted.
func (c *Cache) Site(site events.Site) (Snapshot, bool) {
	c.mu.RLock()
	state, ok := c.sites[site]
	if ok && state.manifest != nil {
		snapshot := state.snapshot
		c.mu.RUnlock()
		return snapshot, true
	}
	c.mu.RUnlock()

	manifest, err := c.disk.readManifest(site)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cache: failed to read manifest from disk", "site", site.String(), "error", err)
		}
		return Snapshot{}, false
	}

	snapshot, _ := c.storeManifest(site, manifest, false)
	return snapshot, true
}

// StoreManifest caches the manifest and derives the new snapshot of the
// site. An older manifest never replaces a newer one. Returns the current
// snapshot and whether the site advanced.
func (c *Cache) StoreManifest(site events.Site, manifest events.Manifest) (Snapshot, bool) {
	return c.storeManifest(site, manifest, true)
}

func (c *Cache) storeManifest(site events.Site, manifest events.Manifest, persist bool) (Snapshot, bool) {
	snapshot := Snapshot{
		Files:     manifest.PathMap(),
		Servers:   manifest.Servers,
		CreatedAt: manifest.Event.CreatedAt,
		Empty:     manifest.Empty(),
	}

	c.mu.Lock()
	state := c.state(site)
	if state.manifest != nil && !store.Newer(manifest.Event, state.manifest) {
		current := state.snapshot
		c.mu.Unlock()
		return current, false
	}

	before := state.snapshot.Files
	state.manifest = manifest.Event
	state.snapshot = snapshot
	state.missingUntil = time.Time{}
	c.mu.Unlock()

	c.dropSuperseded(site, before, snapshot.Files)

	if persist {
		if err := c.disk.writeManifest(site, manifest.Event); err != nil {
			slog.Warn("cache: failed to persist manifest", "site", site.String(), "error", err)
		}
	}
	return snapshot, true
}

// state returns the state of the site, creating it if needed.
// The caller must hold the write lock.
func (c *Cache) state(site events.Site) *siteState {
	state, ok := c.sites[site]
	if !ok {
		state = &siteState{}
		c.sites[site] = state
	}
	return state
}

// dropSuperseded evicts blobs whose hash does not appear in the new file
// set, so replaced content does not accumulate in the cache.
func (c *Cache) dropSuperseded(site events.Site, before, after map[string]string) {
	if len(before) == 0 {
		return
	}

	live := make(map[string]bool, len(after))
	for _, hash := range after {
		live[hash] = true
	}

	for _, hash := range before {
		if !live[hash] {
			c.dropBlob(site, hash)
		}
	}
}

// dropBlob removes both variants of the blob from memory and disk.
func (c *Cache) dropBlob(site events.Site, hash string) {
	c.blobMu.Lock()
	delete(c.blobs, BlobKey{Site: site, Hash: hash, Variant: Raw})
	delete(c.blobs, BlobKey{Site: site, Hash: hash, Variant: Decompressed})
	c.blobMu.Unlock()

	c.disk.removeBlob(site, hash)
}

// Invalidate removes both variants of the blob from the cache, forcing the
// next request to download it again.
func (c *Cache) Invalidate(site events.Site, hash string) {
	c.dropBlob(site, hash)
}

// BeginLoading marks the site as being resolved for the first time.
// Returns false when another loader already claimed it.
func (c *Cache) BeginLoading(site events.Site) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state(site)
	if state.loading {
		return false
	}
	state.loading = true
	return true
}

// EndLoading clears the loading mark set by [Cache.BeginLoading].
func (c *Cache) EndLoading(site events.Site) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.sites[site]; ok {
		state.loading = false
	}
}

// MarkMissing records that resolution found no manifest for the site, so
// requests fail fast instead of re-triggering resolution on every hit.
// The mark expires after the retry interval.
func (c *Cache) MarkMissing(site events.Site, retry time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state(site)
	if state.manifest != nil {
		return
	}
	state.missingUntil = time.Now().Add(retry)
}

// Missing reports whether resolution recently found no manifest for the site.
func (c *Cache) Missing(site events.Site) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.sites[site]
	return ok && state.manifest == nil && time.Now().Before(state.missingUntil)
}

// MarkUpdated records that site content changed at the given unix ms time.
// The timestamp only moves forward.
func (c *Cache) MarkUpdated(site events.Site, at int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state(site)
	if at > state.updated {
		state.updated = at
	}
}

// Updated returns the unix ms time of the last observed content change of
// the site, or 0 when none was observed since startup.
func (c *Cache) Updated(site events.Site) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.sites[site]
	if !ok {
		return 0
	}
	return state.updated
}

// Blob returns the cached body for the key, promoting disk hits to memory.
func (c *Cache) Blob(key BlobKey) ([]byte, bool) {
	c.blobMu.RLock()
	data, ok := c.blobs[key]
	c.blobMu.RUnlock()
	if ok {
		return data, true
	}

	data, err := c.disk.readBlob(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cache: failed to read blob from disk", "hash", key.Hash, "error", err)
		}
		return nil, false
	}

	c.storeInMemory(key, data)
	return data, true
}

// StoreBlob caches the body in memory and on disk.
func (c *Cache) StoreBlob(key BlobKey, data []byte) {
	c.storeInMemory(key, data)

	if err := c.disk.writeBlob(key, data); err != nil {
		slog.Warn("cache: failed to persist blob", "hash", key.Hash, "error", err)
	}
}

func (c *Cache) storeInMemory(key BlobKey, data []byte) {
	if int64(len(data)) > c.config.MaxBlobSize {
		return
	}

	c.blobMu.Lock()
	c.blobs[key] = data
	c.blobMu.Unlock()
}

// GetOrFill returns the cached body for the key, filling the cache with
// the given function on a miss. Concurrent fills of the same key are
// collapsed into a single call.
func (c *Cache) GetOrFill(key BlobKey, fill func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Blob(key); ok {
		return data, nil
	}

	result, err, _ := c.flight.Do(flightKey(key), func() (any, error) {
		if data, ok := c.Blob(key); ok {
			return data, nil
		}

		data, err := fill()
		if err != nil {
			return nil, err
		}

		c.StoreBlob(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func flightKey(key BlobKey) string {
	return fmt.Sprintf("%s/%s/%s/%d", key.Site.Pubkey, key.Site.Identifier, key.Hash, key.Variant)
}
