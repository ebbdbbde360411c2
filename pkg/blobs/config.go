package blobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Servers are tried after the servers endorsed by the site publisher.
	// Default is two popular public blossom servers.
	Servers []string `env:"BLOBS_SERVERS"`

	// Timeout for a single blob request. Default is 30 seconds.
	Timeout time.Duration `env:"BLOBS_REQUEST_TIMEOUT"`

	// DialTimeout for establishing a connection to a blob server,
	// so that a dead server is skipped quickly. Default is 10 seconds.
	DialTimeout time.Duration `env:"BLOBS_DIAL_TIMEOUT"`

	// MaxPerServer is the number of concurrent downloads allowed per server.
	// Default is 4.
	MaxPerServer int `env:"BLOBS_MAX_PER_SERVER"`
}

func NewConfig() Config {
	return Config{
		Servers:      []string{"https://blossom.primal.net", "https://cdn.satellite.earth"},
		Timeout:      30 * time.Second,
		DialTimeout:  10 * time.Second,
		MaxPerServer: 4,
	}
}

func (c Config) Validate() error {
	for _, server := range c.Servers {
		if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
			return fmt.Errorf("server %s is not a valid http(s) URL", server)
		}
	}

	if c.Timeout < time.Second {
		return errors.New("timeout must be greater than 1s to function reliably")
	}
	if c.DialTimeout < time.Second {
		return errors.New("dial timeout must be greater than 1s to function reliably")
	}
	if c.MaxPerServer <= 0 {
		return errors.New("max downloads per server must be greater than 0")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("Blobs Config:\n"+
		"\tServers: %v\n"+
		"\tTimeout: %v\n"+
		"\tDialTimeout: %v\n"+
		"\tMaxPerServer: %d\n",
		c.Servers, c.Timeout, c.DialTimeout, c.MaxPerServer)
}
