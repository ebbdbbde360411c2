package hosts

import "fmt"

type Config struct {
	// File is the YAML file mapping custom hostnames to sites.
	// An empty File disables the registry. Default is "".
	File string `env:"HOSTS_FILE"`
}

func NewConfig() Config {
	return Config{}
}

// Validate always succeeds: an empty File disables the registry and any
// other value is checked when the file is loaded.
func (c Config) Validate() error {
	return nil
}

func (c Config) String() string {
	file := c.File
	if file == "" {
		file = "(disabled)"
	}

	return fmt.Sprintf("Hosts Config:\n"+
		"\tFile: %s\n",
		file)
}
