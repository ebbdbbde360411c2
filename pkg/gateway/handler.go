package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/nsyte/gateway/pkg/cache"
	"github.com/nsyte/gateway/pkg/events"
	"github.com/nsyte/gateway/pkg/resolver"
)

// missingRetryInterval is how long a site that resolved to nothing is
// remembered as missing before the relays are asked again.
const missingRetryInterval = time.Minute

func (s *Server) handleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	host := hostname(r)

	site, ok := s.hosts.Lookup(host)
	if !ok {
		if isBare(host) {
			s.redirectToTarget(w, r)
			return
		}

		var err error
		site, err = parseSiteHost(host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.serveSite(w, r, site)
}

func (s *Server) serveSite(w http.ResponseWriter, r *http.Request, site events.Site) {
	snapshot, ok := s.cache.Site(site)
	if !ok {
		s.serveCold(w, r, site)
		return
	}

	if snapshot.Empty {
		s.respondEmptySite(w, r)
		s.watcher.Poke(site)
		return
	}

	candidates := buildCandidates(r.URL.Path, snapshot.Files, r.Header.Get("Accept-Encoding"))
	if len(candidates) == 0 {
		s.respondNotFound(w, r)
		s.watcher.Poke(site)
		return
	}

	var lastErr error
	for _, c := range candidates {
		data, err := s.fetchCandidate(r.Context(), site, snapshot, c)
		if err != nil {
			slog.Debug("gateway: candidate failed", "site", site.String(), "path", c.path, "error", err)
			lastErr = err
			continue
		}

		s.respond(w, r, c, data)
		s.watcher.Poke(site)
		return
	}

	slog.Warn("gateway: failed to serve path",
		"site", site.String(), "path", r.URL.Path, "error", lastErr)
	http.Error(w, fmt.Sprintf("failed to fetch content: %v", lastErr), http.StatusInternalServerError)
}

// serveCold handles a request for a site that is not cached yet: it kicks
// off one background resolution and answers with the self-refreshing
// loading page, or with a 404 for sites known to not exist.
func (s *Server) serveCold(w http.ResponseWriter, r *http.Request, site events.Site) {
	if s.cache.Missing(site) {
		s.respondNotFound(w, r)
		return
	}

	if s.cache.BeginLoading(site) {
		go s.loadSite(site)
	}

	if isHTMLPath(r.URL.Path) {
		s.respondLoading(w)
		return
	}
	s.respondNotFound(w, r)
}

// loadSite resolves the site and fills the cache. It runs detached from the
// request that triggered it, so a closed tab does not abort the load.
func (s *Server) loadSite(site events.Site) {
	defer s.cache.EndLoading(site)

	ctx := context.Background()
	go s.resolver.Warm(ctx, site.Pubkey)

	manifest, err := s.resolver.Resolve(ctx, site)
	if err != nil {
		if errors.Is(err, resolver.ErrManifestNotFound) {
			s.cache.MarkMissing(site, missingRetryInterval)
		}
		slog.Warn("gateway: failed to resolve site", "site", site.String(), "error", err)
		return
	}

	s.cache.StoreManifest(site, manifest)
	slog.Info("gateway: site loaded", "site", site.String(), "files", len(manifest.Files))
}

// fetchCandidate returns the response body for the candidate, downloading
// and caching the blob as needed. Compressed variants come back decompressed.
func (s *Server) fetchCandidate(ctx context.Context, site events.Site, snapshot cache.Snapshot, c candidate) ([]byte, error) {
	rawKey := cache.BlobKey{Site: site, Hash: c.hash, Variant: cache.Raw}

	raw, err := s.cache.GetOrFill(rawKey, func() ([]byte, error) {
		data, server, err := s.blobs.Fetch(ctx, c.hash, s.servers(ctx, site, snapshot))
		if err != nil {
			return nil, err
		}
		slog.Debug("gateway: blob downloaded", "hash", c.hash, "server", server)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	if c.compression == "" {
		return raw, nil
	}

	decompressedKey := cache.BlobKey{Site: site, Hash: c.hash, Variant: cache.Decompressed}
	plain, err := s.cache.GetOrFill(decompressedKey, func() ([]byte, error) {
		return decompress(c.compression, raw)
	})
	if err != nil {
		// the stored variant is corrupt, drop it so the next request
		// does not trip over it again
		s.cache.Invalidate(site, c.hash)
		return nil, fmt.Errorf("failed to decompress %s: %w", c.path, err)
	}
	return plain, nil
}

// servers returns the blob servers endorsed for the site. The publisher's
// server list is consulted only when the manifest endorses none; the
// configured servers are appended later by the downloader.
func (s *Server) servers(ctx context.Context, site events.Site, snapshot cache.Snapshot) []string {
	if len(snapshot.Servers) > 0 {
		return snapshot.Servers
	}
	if !s.config.AllowFallbackServers {
		return nil
	}

	list, err := s.resolver.ServerList(ctx, site.Pubkey)
	if err != nil {
		slog.Debug("gateway: failed to fetch server list", "site", site.String(), "error", err)
		return nil
	}
	return list
}

// isHTMLPath reports whether the path likely renders as a page in a
// browser, which is when the loading placeholder is a useful response.
func isHTMLPath(p string) bool {
	if looksLikeDir(events.NormalizePath(p)) {
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	return ext == ".html" || ext == ".htm"
}

type updateStatus struct {
	HasUpdate bool  `json:"hasUpdate"`
	Timestamp int64 `json:"timestamp"`
}

// handleCheckUpdates reports whether the site changed after the client's
// reference time. Polling this endpoint also nudges the background watcher,
// so pages of an idle site keep learning about new publishes.
func (s *Server) handleCheckUpdates(w http.ResponseWriter, r *http.Request) {
	host := hostname(r)

	site, ok := s.hosts.Lookup(host)
	if !ok {
		var err error
		site, err = parseSiteHost(host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if r.URL.Query().Get("path") == "" {
		http.Error(w, "missing path parameter", http.StatusBadRequest)
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	updated := s.cache.Updated(site)

	s.watcher.Poke(site)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(updateStatus{
		HasUpdate: updated > since,
		Timestamp: updated,
	})
}
