package pool

import (
	"fmt"
	"time"
)

type Config struct {
	// RequestTimeout bounds a single query when the caller sets no deadline.
	// Default is 5 seconds.
	RequestTimeout time.Duration `env:"POOL_REQUEST_TIMEOUT"`

	// ManifestTimeout bounds manifest listings, which are heavier than
	// single-event lookups. Default is 15 seconds.
	ManifestTimeout time.Duration `env:"POOL_MANIFEST_TIMEOUT"`
}

func NewConfig() Config {
	return Config{
		RequestTimeout:  5 * time.Second,
		ManifestTimeout: 15 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.ManifestTimeout <= 0 {
		return fmt.Errorf("manifest timeout must be greater than 0")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("Pool:\n"+
		"\tRequest Timeout: %v\n"+
		"\tManifest Timeout: %v\n",
		c.RequestTimeout, c.ManifestTimeout)
}
