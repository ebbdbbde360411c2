package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

type Config struct {
	// FileRelays are queried for site manifests. Default covers the
	// big general-purpose relays where nsite publishers are expected.
	FileRelays []string `env:"RESOLVER_FILE_RELAYS"`

	// ProfileRelays are queried for profiles (kind 0), relay lists (kind 10002)
	// and blob server lists (kind 10063). Default is the purplepag.es indexer
	// plus two general-purpose relays.
	ProfileRelays []string `env:"RESOLVER_PROFILE_RELAYS"`

	// FallbackRelays are queried together with the publisher's own relay list
	// when the manifest is not found on the FileRelays. Default is two
	// general-purpose relays.
	FallbackRelays []string `env:"RESOLVER_FALLBACK_RELAYS"`

	// AllowFallbackRelays controls whether the fallback round runs at all.
	// Default is true.
	AllowFallbackRelays bool `env:"RESOLVER_ALLOW_FALLBACK_RELAYS"`

	// CacheSize is the maximum number of pubkeys in the profile, relay-list
	// and server-list caches. Default is 1000.
	CacheSize int `env:"RESOLVER_CACHE_SIZE"`

	// CacheTTL is the expiration of cached profiles, relay lists and
	// server lists. Default is 10 minutes.
	CacheTTL time.Duration `env:"RESOLVER_CACHE_TTL"`
}

func NewConfig() Config {
	return Config{
		FileRelays:          []string{"wss://relay.damus.io", "wss://nos.lol", "wss://relay.nostr.band"},
		ProfileRelays:       []string{"wss://purplepag.es", "wss://relay.nostr.band", "wss://relay.damus.io"},
		FallbackRelays:      []string{"wss://relay.primal.net", "wss://relay.snort.social"},
		AllowFallbackRelays: true,
		CacheSize:           1000,
		CacheTTL:            10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if len(c.FileRelays) == 0 {
		return errors.New("file relays are empty or not set")
	}

	for _, url := range c.FileRelays {
		if !nostr.IsValidRelayURL(url) {
			return fmt.Errorf("file relay %s is not a valid relay URL", url)
		}
	}
	for _, url := range c.ProfileRelays {
		if !nostr.IsValidRelayURL(url) {
			return fmt.Errorf("profile relay %s is not a valid relay URL", url)
		}
	}
	for _, url := range c.FallbackRelays {
		if !nostr.IsValidRelayURL(url) {
			return fmt.Errorf("fallback relay %s is not a valid relay URL", url)
		}
	}

	if c.CacheSize <= 0 {
		return errors.New("cache size must be greater than 0")
	}
	if c.CacheTTL < time.Second {
		return errors.New("cache TTL must be greater than 1 second")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("Resolver Config:\n"+
		"\tFileRelays: %v\n"+
		"\tProfileRelays: %v\n"+
		"\tFallbackRelays: %v\n"+
		"\tAllowFallbackRelays: %v\n"+
		"\tCacheSize: %d\n"+
		"\tCacheTTL: %v\n",
		c.FileRelays, c.ProfileRelays, c.FallbackRelays, c.AllowFallbackRelays, c.CacheSize, c.CacheTTL)
}
