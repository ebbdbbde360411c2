package cache

import (
	"errors"
	"fmt"
)

type Config struct {
	// Dir is the directory where manifests and blobs are persisted so sites
	// survive a restart. An empty Dir disables the disk tier. Default is "".
	Dir string `env:"CACHE_DIR"`

	// MaxBlobSize is the largest body kept in the memory tier, in bytes.
	// Bigger blobs are still served and persisted to disk. Default is 16 MiB.
	MaxBlobSize int64 `env:"CACHE_MAX_BLOB_SIZE"`
}

func NewConfig() Config {
	return Config{
		MaxBlobSize: 16 << 20,
	}
}

func (c Config) Validate() error {
	if c.MaxBlobSize <= 0 {
		return errors.New("max blob size must be greater than 0")
	}
	return nil
}

func (c Config) String() string {
	dir := c.Dir
	if dir == "" {
		dir = "(disk tier disabled)"
	}

	return fmt.Sprintf("Cache Config:\n"+
		"\tDir: %s\n"+
		"\tMaxBlobSize: %d\n",
		dir, c.MaxBlobSize)
}
