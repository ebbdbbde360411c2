// The pool package multiplexes nostr subscriptions and publishes over a set
// of WebSocket relays. It wraps a [nostr.SimplePool], which keeps at most one
// connection per relay URL with lazy dialing and reconnection, and adds
// bounded-wait query semantics on top: a query ends when every relay has
// signalled end-of-stored-events or when the deadline hits, whichever comes
// first.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pippellia-btc/smallset"
)

type Pool struct {
	pool   *nostr.SimplePool
	config Config
}

// New creates a new Pool whose connections live until ctx is cancelled.
// Relays that misbehave are put in a penalty box with increasing backoff.
func New(ctx context.Context, config Config) *Pool {
	return &Pool{
		pool:   nostr.NewSimplePool(ctx, nostr.WithPenaltyBox()),
		config: config,
	}
}

func (p *Pool) RequestTimeout() time.Duration  { return p.config.RequestTimeout }
func (p *Pool) ManifestTimeout() time.Duration { return p.config.ManifestTimeout }

// Query subscribes on every relay and consumes the merged stream until all
// relays have signalled end-of-stored-events or the deadline expires.
// Events are deduplicated by id; stragglers past the deadline are abandoned
// together with their undelivered events. A broken relay never blocks the
// stream of another.
func (p *Pool) Query(ctx context.Context, relays []string, filter nostr.Filter) []*nostr.Event {
	urls := Normalize(relays)
	if len(urls) == 0 {
		return nil
	}

	ctx, cancel := p.withDeadline(ctx, p.config.RequestTimeout)
	defer cancel()

	seen := make(map[string]struct{})
	var results []*nostr.Event

	for ie := range p.pool.FetchMany(ctx, urls, filter) {
		if ie.Event == nil {
			continue
		}
		if _, ok := seen[ie.Event.ID]; ok {
			continue
		}

		seen[ie.Event.ID] = struct{}{}
		results = append(results, ie.Event)
	}
	return results
}

// Publish sends the event to every relay, best effort.
// It returns the outcome per relay URL.
func (p *Pool) Publish(ctx context.Context, relays []string, event nostr.Event) map[string]error {
	urls := Normalize(relays)
	results := make(map[string]error, len(urls))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := p.publish(ctx, url, event)
			mu.Lock()
			results[url] = err
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

func (p *Pool) publish(ctx context.Context, url string, event nostr.Event) error {
	ctx, cancel := p.withDeadline(ctx, p.config.RequestTimeout)
	defer cancel()

	relay, err := p.pool.EnsureRelay(url)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := relay.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// withDeadline applies the fallback timeout only when the caller set no deadline.
func (p *Pool) withDeadline(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, fallback)
}

// Normalize canonicalizes the relay URLs and deduplicates them,
// dropping the invalid ones.
func Normalize(relays []string) []string {
	valid := make([]string, 0, len(relays))
	for _, relay := range relays {
		url := nostr.NormalizeURL(relay)
		if !nostr.IsValidRelayURL(url) {
			continue
		}
		valid = append(valid, url)
	}
	return smallset.NewFrom(valid...).Items()
}
