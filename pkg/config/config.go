// The package config is responsible for loading package specific configs from the
// environment variables, and validating them.
//
// Packages requiring configs should expose:
// - A Config struct with the package specific config parameters.
// - A NewConfig() function to create a new Config with default parameters.
// - A Validate() method to validate the config.
// - A String() method to return a string representation of the config.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nsyte/gateway/pkg/blobs"
	"github.com/nsyte/gateway/pkg/cache"
	"github.com/nsyte/gateway/pkg/gateway"
	"github.com/nsyte/gateway/pkg/hosts"
	"github.com/nsyte/gateway/pkg/pool"
	"github.com/nsyte/gateway/pkg/rate"
	"github.com/nsyte/gateway/pkg/resolver"
)

type Config struct {
	Gateway  gateway.Config
	Pool     pool.Config
	Resolver resolver.Config
	Blobs    blobs.Config
	Cache    cache.Config
	Hosts    hosts.Config
	Rate     rate.Config
}

// Load creates a new [Config] with default parameters, that get overwritten by env variables when specified.
// It returns an error if the config is invalid.
func Load() (Config, error) {
	config := New()
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate config: %w", err)
	}
	return config, nil
}

func New() Config {
	return Config{
		Gateway:  gateway.NewConfig(),
		Pool:     pool.NewConfig(),
		Resolver: resolver.NewConfig(),
		Blobs:    blobs.NewConfig(),
		Cache:    cache.NewConfig(),
		Hosts:    hosts.NewConfig(),
		Rate:     rate.NewConfig(),
	}
}

func (c Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := c.Blobs.Validate(); err != nil {
		return fmt.Errorf("blobs: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Hosts.Validate(); err != nil {
		return fmt.Errorf("hosts: %w", err)
	}
	if err := c.Rate.Validate(); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	return nil
}

func (c Config) Print() {
	fmt.Println(c.Gateway)
	fmt.Println(c.Pool)
	fmt.Println(c.Resolver)
	fmt.Println(c.Blobs)
	fmt.Println(c.Cache)
	fmt.Println(c.Hosts)
	fmt.Println(c.Rate)
}
