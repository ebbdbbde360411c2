// Package resolver finds the nostr events a static site is built from:
// site manifests, profiles, relay lists and blob server lists.
// Manifests are resolved against the configured file relays, with one
// fallback round against the publisher's own write relays. Profile-class
// lookups are cached with a TTL and deduplicated with singleflight.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nsyte/gateway/pkg/events"
	"github.com/nsyte/gateway/pkg/pool"
	"github.com/nsyte/gateway/pkg/store"
)

// ErrManifestNotFound means no relay returned a valid manifest for the site.
var ErrManifestNotFound = errors.New("site manifest not found")

// Resolver fetches and validates site events from relays.
// Resolved events are folded into the store, so the winner of each
// replaceable key only ever moves forward.
type Resolver struct {
	pool  *pool.Pool
	store *store.Store

	profiles    *expirable.LRU[string, events.Profile]
	relayLists  *expirable.LRU[string, events.RelayList]
	serverLists *expirable.LRU[string, events.ServerList]

	flight singleflight.Group
	config Config
}

func New(pool *pool.Pool, store *store.Store, config Config) *Resolver {
	return &Resolver{
		pool:        pool,
		store:       store,
		profiles:    expirable.NewLRU[string, events.Profile](config.CacheSize, nil, config.CacheTTL),
		relayLists:  expirable.NewLRU[string, events.RelayList](config.CacheSize, nil, config.CacheTTL),
		serverLists: expirable.NewLRU[string, events.ServerList](config.CacheSize, nil, config.CacheTTL),
		config:      config,
	}
}

// Resolve fetches the manifest of the site and returns the winning version.
// When the file relays return nothing and fallbacks are allowed, the
// publisher's write relays and the configured fallback relays are queried
// in a second round. The whole resolution is bounded by the pool's
// manifest timeout, each round by its request timeout.
func (r *Resolver) Resolve(ctx context.Context, site events.Site) (events.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.ManifestTimeout())
	defer cancel()

	manifest, err := r.resolve(ctx, site, r.config.FileRelays)
	if err == nil || !errors.Is(err, ErrManifestNotFound) {
		return manifest, err
	}

	if !r.config.AllowFallbackRelays {
		return events.Manifest{}, err
	}

	fallback := r.fallbackRelays(ctx, site.Pubkey)
	if len(fallback) == 0 {
		return events.Manifest{}, err
	}

	slog.Debug("resolver: retrying on fallback relays", "site", site.String(), "relays", fallback)
	return r.resolve(ctx, site, fallback)
}

func (r *Resolver) resolve(ctx context.Context, site events.Site, relays []string) (events.Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pool.RequestTimeout())
	defer cancel()

	for _, event := range r.pool.Query(ctx, relays, site.Filter()) {
		if err := verify(event); err != nil {
			slog.Debug("resolver: dropping manifest", "site", site.String(), "id", event.ID, "error", err)
			continue
		}
		if err := events.ValidateManifest(event); err != nil {
			slog.Debug("resolver: dropping manifest", "site", site.String(), "id", event.ID, "error", err)
			continue
		}
		r.store.Save(event)
	}

	winner, ok := r.store.Replaceable(site.Kind(), site.Pubkey, site.Identifier)
	if !ok {
		return events.Manifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, site.String())
	}
	return events.ParseManifest(winner)
}

// fallbackRelays returns the publisher's write relays merged with the
// configured fallback relays, excluding the file relays already queried.
func (r *Resolver) fallbackRelays(ctx context.Context, pubkey string) []string {
	list, err := r.RelayList(ctx, pubkey)
	if err != nil {
		slog.Debug("resolver: failed to fetch relay list", "pubkey", pubkey, "error", err)
	}

	queried := make(map[string]bool, len(r.config.FileRelays))
	for _, url := range pool.Normalize(r.config.FileRelays) {
		queried[url] = true
	}

	var fallback []string
	for _, url := range pool.Normalize(append(list.WriteRelays(), r.config.FallbackRelays...)) {
		if !queried[url] {
			fallback = append(fallback, url)
		}
	}
	return fallback
}

// Warm primes the profile, relay-list and server-list caches for the pubkey.
// The three lookups run in parallel; failures are left to the callers that
// actually need the data.
func (r *Resolver) Warm(ctx context.Context, pubkey string) {
	var group errgroup.Group
	group.Go(func() error { _, err := r.Profile(ctx, pubkey); return err })
	group.Go(func() error { _, err := r.RelayList(ctx, pubkey); return err })
	group.Go(func() error { _, err := r.ServerList(ctx, pubkey); return err })

	if err := group.Wait(); err != nil {
		slog.Debug("resolver: cache warmup incomplete", "pubkey", pubkey, "error", err)
	}
}

// Profile returns the profile of the pubkey, using the cache when fresh.
// A pubkey without a kind-0 event yields the zero value, which is cached too.
func (r *Resolver) Profile(ctx context.Context, pubkey string) (events.Profile, error) {
	if profile, ok := r.profiles.Get(pubkey); ok {
		return profile, nil
	}

	result, err, _ := r.flight.Do("profile/"+pubkey, func() (any, error) {
		event, ok := r.fetchReplaceable(ctx, events.KindProfile, pubkey)
		if !ok {
			r.profiles.Add(pubkey, events.Profile{})
			return events.Profile{}, nil
		}

		profile, err := events.ParseProfile(event)
		if err != nil {
			return nil, fmt.Errorf("failed to parse profile of %s: %w", pubkey, err)
		}

		r.profiles.Add(pubkey, profile)
		return profile, nil
	})
	if err != nil {
		return events.Profile{}, err
	}
	return result.(events.Profile), nil
}

// RelayList returns the relay list of the pubkey, using the cache when fresh.
func (r *Resolver) RelayList(ctx context.Context, pubkey string) (events.RelayList, error) {
	if list, ok := r.relayLists.Get(pubkey); ok {
		return list, nil
	}

	result, err, _ := r.flight.Do("relays/"+pubkey, func() (any, error) {
		event, ok := r.fetchReplaceable(ctx, events.KindRelayList, pubkey)
		if !ok {
			r.relayLists.Add(pubkey, events.RelayList{})
			return events.RelayList{}, nil
		}

		list, err := events.ParseRelayList(event)
		if err != nil {
			return nil, fmt.Errorf("failed to parse relay list of %s: %w", pubkey, err)
		}

		r.relayLists.Add(pubkey, list)
		return list, nil
	})
	if err != nil {
		return events.RelayList{}, err
	}
	return result.(events.RelayList), nil
}

// ServerList returns the blob servers endorsed by the pubkey, using the
// cache when fresh.
func (r *Resolver) ServerList(ctx context.Context, pubkey string) (events.ServerList, error) {
	if list, ok := r.serverLists.Get(pubkey); ok {
		return list, nil
	}

	result, err, _ := r.flight.Do("servers/"+pubkey, func() (any, error) {
		event, ok := r.fetchReplaceable(ctx, events.KindServerList, pubkey)
		if !ok {
			r.serverLists.Add(pubkey, events.ServerList{})
			return events.ServerList{}, nil
		}

		list, err := events.ParseServerList(event)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server list of %s: %w", pubkey, err)
		}

		r.serverLists.Add(pubkey, list)
		return list, nil
	})
	if err != nil {
		return events.ServerList{}, err
	}
	return result.(events.ServerList), nil
}

// fetchReplaceable queries the profile relays for the latest event of the
// given replaceable kind, folds valid results into the store and returns
// the winner, which may predate this query.
func (r *Resolver) fetchReplaceable(ctx context.Context, kind int, pubkey string) (*nostr.Event, bool) {
	filter := nostr.Filter{
		Kinds:   []int{kind},
		Authors: []string{pubkey},
		Limit:   1,
	}

	for _, event := range r.pool.Query(ctx, r.config.ProfileRelays, filter) {
		if event.Kind != kind || event.PubKey != pubkey {
			continue
		}
		if err := verify(event); err != nil {
			slog.Debug("resolver: dropping event", "kind", kind, "pubkey", pubkey, "error", err)
			continue
		}
		r.store.Save(event)
	}
	return r.store.Replaceable(kind, pubkey, "")
}

// verify checks the event ID and its signature.
func verify(event *nostr.Event) error {
	if !event.CheckID() {
		return fmt.Errorf("invalid event ID")
	}

	ok, err := event.CheckSignature()
	if err != nil {
		return fmt.Errorf("failed to check signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
