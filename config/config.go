package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Sale defaults apply when an RPC create
// request leaves the corresponding parameter unset.
type Config struct {
	RPCAddress string `toml:"RPCAddress"`
	DataDir    string `toml:"DataDir"`
	Env        string `toml:"Env"`

	DefaultTimeoutSeconds int64  `toml:"DefaultTimeoutSeconds"`
	DefaultNumberOfHashes uint32 `toml:"DefaultNumberOfHashes"`
	DefaultFilterSize     uint32 `toml:"DefaultFilterSize"`

	// RPCRequestsPerMinute throttles each client IP; zero or negative
	// disables throttling.
	RPCRequestsPerMinute float64 `toml:"RPCRequestsPerMinute"`
	RPCBurst             int     `toml:"RPCBurst"`
}

// Default returns the configuration the daemon runs with when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:            "127.0.0.1:8645",
		DataDir:               "./wordsale-data",
		DefaultTimeoutSeconds: 60 * 24,
		DefaultNumberOfHashes: 3,
		DefaultFilterSize:     256,
		RPCRequestsPerMinute:  600,
		RPCBurst:              50,
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration ranges.
func (c *Config) Validate() error {
	if c.RPCAddress == "" {
		return fmt.Errorf("config: RPCAddress must be set")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("config: DefaultTimeoutSeconds must be positive")
	}
	if c.DefaultNumberOfHashes == 0 {
		return fmt.Errorf("config: DefaultNumberOfHashes must be at least 1")
	}
	if c.DefaultFilterSize < 2 {
		return fmt.Errorf("config: DefaultFilterSize must be at least 2")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.DefaultTimeoutSeconds == 0 {
		cfg.DefaultTimeoutSeconds = def.DefaultTimeoutSeconds
	}
	if cfg.DefaultNumberOfHashes == 0 {
		cfg.DefaultNumberOfHashes = def.DefaultNumberOfHashes
	}
	if cfg.DefaultFilterSize == 0 {
		cfg.DefaultFilterSize = def.DefaultFilterSize
	}
	if cfg.RPCRequestsPerMinute == 0 {
		cfg.RPCRequestsPerMinute = def.RPCRequestsPerMinute
	}
	if cfg.RPCBurst == 0 {
		cfg.RPCBurst = def.RPCBurst
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
