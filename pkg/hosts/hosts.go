// Package hosts maps custom hostnames to sites, so a site can be served on
// a domain like docs.example.com instead of its npub subdomain.
// The mapping lives in a YAML file that is hot-reloaded when it changes.
package hosts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nsyte/gateway/pkg/events"
)

// Registry is the host to site mapping loaded from the hosts file.
// A nil Registry is valid and never matches.
type Registry struct {
	mu    sync.RWMutex
	sites map[string]events.Site

	log     *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	config Config
}

// entry is one host mapping in the YAML file.
type entry struct {
	Pubkey     string `yaml:"pubkey"`
	Identifier string `yaml:"identifier"`
}

// New creates a Registry from the hosts file in [Config.File] and reloads
// it whenever the file changes, logging with the given logger.
func New(c Config, log *slog.Logger) (*Registry, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}

	// Resolve absolute path for reliable comparison with fsnotify events
	abs, err := filepath.Abs(c.File)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hosts file path: %w", err)
	}
	c.File = abs

	registry := &Registry{
		log:    log,
		done:   make(chan struct{}),
		config: c,
	}

	if _, err := registry.reload(); err != nil {
		return nil, fmt.Errorf("failed to load hosts file: %w", err)
	}

	registry.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// We watch the directory instead of the file because most editors use
	// atomic writes (write to temp file, then rename), which would cause
	// us to lose the watch.
	if err := registry.watcher.Add(filepath.Dir(c.File)); err != nil {
		registry.watcher.Close()
		return nil, fmt.Errorf("failed to watch hosts directory: %w", err)
	}

	go registry.watch()
	return registry, nil
}

// Close stops the file watcher and releases resources.
func (r *Registry) Close() error {
	close(r.done)
	return r.watcher.Close()
}

// Lookup returns the site mapped to the host, if any.
// The host must be lowercase and without a port.
func (r *Registry) Lookup(host string) (events.Site, bool) {
	if r == nil {
		return events.Site{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	site, ok := r.sites[host]
	return site, ok
}

// Size returns the number of mapped hosts.
func (r *Registry) Size() int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sites)
}

// watch monitors the hosts file for changes and reloads it.
func (r *Registry) watch() {
	const delay = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-r.done:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(r.config.File) {
				continue
			}

			// debounce the reload by stopping the timer if it exists.
			if timer != nil {
				timer.Stop()
			}

			timer = time.AfterFunc(delay, func() {
				count, err := r.reload()
				if err != nil {
					r.log.Error("hosts: reload failed, keeping old mapping", "error", err)
					return
				}

				r.log.Info("hosts: successful reload", "hosts", count)
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Error("hosts: watcher error", "error", err)
		}
	}
}

// reload re-reads the hosts file and swaps the mapping.
// It returns the number of hosts in the new mapping.
func (r *Registry) reload() (int, error) {
	sites, err := parseFile(r.config.File)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sites = sites
	return len(sites), nil
}

// parseFile parses the YAML hosts file into a host to site mapping.
// Host keys are lowercased.
func parseFile(path string) (map[string]events.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hosts file: %w", err)
	}

	var entries map[string]entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse hosts file: %w", err)
	}

	sites := make(map[string]events.Site, len(entries))
	for host, entry := range entries {
		site, err := events.NewSite(entry.Pubkey, entry.Identifier)
		if err != nil {
			return nil, fmt.Errorf("invalid mapping for host %q: %w", host, err)
		}
		sites[strings.ToLower(host)] = site
	}
	return sites, nil
}
