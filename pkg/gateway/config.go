package gateway

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nsyte/gateway/pkg/events"
)

type Config struct {
	// Port is the TCP port the gateway listens on. Default is "6798".
	Port string `env:"GATEWAY_PORT"`

	// TargetPubkey is the pubkey (hex or npub) of the site that requests
	// to the bare host are redirected to. Default is "".
	TargetPubkey string `env:"GATEWAY_TARGET_PUBKEY"`

	// TargetIdentifier selects a named site of the target pubkey.
	// An empty identifier selects the root site. Default is "".
	TargetIdentifier string `env:"GATEWAY_TARGET_IDENTIFIER"`

	// AllowFallbackServers controls whether blobs can be fetched from the
	// servers in the publisher's server list (kind 10063), in addition to
	// the ones endorsed by the manifest. Default is true.
	AllowFallbackServers bool `env:"GATEWAY_ALLOW_FALLBACK_SERVERS"`

	// NoOpen disables opening the browser on startup. Default is false.
	NoOpen bool `env:"GATEWAY_NO_OPEN"`
}

func NewConfig() Config {
	return Config{
		Port:                 "6798",
		AllowFallbackServers: true,
	}
}

// Target returns the site that the bare host redirects to,
// and whether one is configured.
func (c Config) Target() (events.Site, bool) {
	if c.TargetPubkey == "" {
		return events.Site{}, false
	}

	site, err := events.NewSite(c.TargetPubkey, c.TargetIdentifier)
	if err != nil {
		return events.Site{}, false
	}
	return site, true
}

func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must be set")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}

	if c.TargetIdentifier != "" && c.TargetPubkey == "" {
		return errors.New("target identifier requires a target pubkey")
	}
	if c.TargetPubkey != "" {
		if _, err := events.NewSite(c.TargetPubkey, c.TargetIdentifier); err != nil {
			return fmt.Errorf("invalid target site: %w", err)
		}
	}
	return nil
}

func (c Config) String() string {
	target := "(none)"
	if site, ok := c.Target(); ok {
		target = site.String()
	}

	return fmt.Sprintf("Gateway Config:\n"+
		"\tPort: %s\n"+
		"\tTarget: %s\n"+
		"\tAllowFallbackServers: %v\n"+
		"\tNoOpen: %v\n",
		c.Port, target, c.AllowFallbackServers, c.NoOpen)
}
