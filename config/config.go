package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"usdacore/crypto"
)

// Config is the node configuration for one protocol deployment.
type Config struct {
	DataDir             string `toml:"DataDir"`
	GenesisFile         string `toml:"GenesisFile"`
	ChainID             uint64 `toml:"ChainID"`
	PeerChainID         uint64 `toml:"PeerChainID"`
	PeerSigner          string `toml:"PeerSigner"`
	Custody             string `toml:"Custody"`
	SignerKeystorePath  string `toml:"SignerKeystorePath"`
	SignerPassphraseEnv string `toml:"SignerPassphraseEnv"`

	Messaging Messaging `toml:"messaging"`
	Oracle    Oracle    `toml:"oracle"`
	Yield     Yield     `toml:"yield"`
	Journal   Journal   `toml:"journal"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./usda-data"
	}
	if c.SignerKeystorePath == "" {
		c.SignerKeystorePath = defaultKeystorePath(path)
	}
	if c.SignerPassphraseEnv == "" {
		c.SignerPassphraseEnv = "USDA_SIGNER_PASSPHRASE"
	}
	if c.Messaging.TimeoutSeconds == 0 {
		c.Messaging.TimeoutSeconds = 10
	}
	if c.Oracle.MaxAgeSeconds == 0 {
		c.Oracle.MaxAgeSeconds = 300
	}
	if c.Journal.DSN == "" {
		c.Journal.DSN = "file:" + filepath.Join(c.DataDir, "events.db")
	}
}

// createDefault writes a single-chain configuration with a fresh signer.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:     "./usda-data",
		GenesisFile: "genesis.json",
		ChainID:     1,
		Messaging: Messaging{
			NativeFeeWei:    "0",
			TokenFee:        "0",
			TimeoutSeconds:  10,
			OutboxFlushSecs: 5,
		},
		Oracle: Oracle{MaxAgeSeconds: 300},
	}
	cfg.applyDefaults(path)
	if _, err := crypto.LoadOrCreateSigner(cfg.SignerKeystorePath, os.Getenv(cfg.SignerPassphraseEnv)); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "signer.keystore")
}
