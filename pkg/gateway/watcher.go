package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nsyte/gateway/pkg/cache"
	"github.com/nsyte/gateway/pkg/events"
	"github.com/nsyte/gateway/pkg/resolver"
)

// checkCooldown spaces out background checks for the same site, so the
// 5-second poll loop of an open page drives roughly one relay round-trip
// per interval.
const checkCooldown = 5 * time.Second

// Watcher re-resolves the manifests of recently served sites in the
// background, so open pages learn about new publishes.
type Watcher struct {
	resolver *resolver.Resolver
	cache    *cache.Cache
	log      *slog.Logger

	mu        sync.Mutex
	closed    bool
	inflight  map[events.Site]bool
	lastCheck map[events.Site]time.Time
	wg        sync.WaitGroup
}

func NewWatcher(resolver *resolver.Resolver, cache *cache.Cache, log *slog.Logger) *Watcher {
	return &Watcher{
		resolver:  resolver,
		cache:     cache,
		log:       log,
		inflight:  make(map[events.Site]bool),
		lastCheck: make(map[events.Site]time.Time),
	}
}

// Poke schedules a background manifest check for the site. At most one
// check per site runs at a time, and pokes within the cooldown window
// of the last check are dropped.
func (w *Watcher) Poke(site events.Site) {
	w.mu.Lock()
	if w.closed || w.inflight[site] || time.Since(w.lastCheck[site]) < checkCooldown {
		w.mu.Unlock()
		return
	}
	w.inflight[site] = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.check(site)
}

// check re-resolves the site manifest and, when it advanced with actual
// path changes, stamps the site as updated so polling pages reload.
func (w *Watcher) check(site events.Site) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, site)
		w.lastCheck[site] = time.Now()
		w.mu.Unlock()
	}()

	before, ok := w.cache.Site(site)
	if !ok {
		return
	}

	manifest, err := w.resolver.Resolve(context.Background(), site)
	if err != nil {
		w.log.Debug("watcher: failed to re-resolve site", "site", site.String(), "error", err)
		return
	}

	after, advanced := w.cache.StoreManifest(site, manifest)
	if !advanced {
		return
	}

	changed := diffPaths(before.Files, after.Files)
	if len(changed) == 0 {
		return
	}

	w.cache.MarkUpdated(site, time.Now().UnixMilli())
	w.log.Info("watcher: site updated", "site", site.String(), "changed", len(changed))
}

// Close stops accepting pokes and waits for the running checks to finish.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
}

// diffPaths returns the paths whose hashes differ between two manifests,
// including paths present on only one side.
func diffPaths(before, after map[string]string) []string {
	var changed []string
	for path, hash := range after {
		if old, ok := before[path]; !ok || old != hash {
			changed = append(changed, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			changed = append(changed, path)
		}
	}
	return changed
}
