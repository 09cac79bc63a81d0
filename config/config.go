package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"yieldsplit/crypto"
	"yieldsplit/native/series"
	"yieldsplit/storage"
)

// KeystorePassphraseEnv names the variable holding the passphrase used when
// a default admin keystore has to be generated.
const KeystorePassphraseEnv = "YIELDSPLIT_KEYSTORE_PASSPHRASE"

type Config struct {
	DataDir           string `toml:"DataDir"`
	StorageBackend    string `toml:"StorageBackend"`
	AdminKeystorePath string `toml:"AdminKeystorePath"`
	Series            Series `toml:"series"`
	Vault             Vault  `toml:"vault"`
}

// Load loads the configuration from the given path, creating a default file
// and admin keystore when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for new deployments.
func Default() *Config {
	params := series.DefaultParams()
	return &Config{
		DataDir:        "./yieldsplit-data",
		StorageBackend: storage.BackendLevelDB,
		Series: Series{
			Scale:           params.Scale,
			MaturitySeconds: uint64((90 * 24 * time.Hour).Seconds()),
			Decimals:        params.Decimals,
			PrincipalName:   params.PrincipalName,
			PrincipalSymbol: params.PrincipalSymbol,
			YieldName:       params.YieldName,
			YieldSymbol:     params.YieldSymbol,
		},
		Vault: Vault{
			Kind:        "4626",
			YieldBps:    1,
			AssetName:   "Test Dollar",
			AssetSymbol: "TUSD",
		},
	}
}

// SeriesParams returns the deployer parameters described by c.
func (c *Config) SeriesParams() series.Params {
	return series.Params{
		Scale:           c.Series.Scale,
		Decimals:        c.Series.Decimals,
		PrincipalName:   strings.TrimSpace(c.Series.PrincipalName),
		PrincipalSymbol: strings.TrimSpace(c.Series.PrincipalSymbol),
		YieldName:       strings.TrimSpace(c.Series.YieldName),
		YieldSymbol:     strings.TrimSpace(c.Series.YieldSymbol),
	}
}

// MaturityAt resolves the maturity of a series deployed at now. An absolute
// Maturity wins over the relative MaturitySeconds.
func (c *Config) MaturityAt(now time.Time) uint64 {
	if c.Series.Maturity != 0 {
		return c.Series.Maturity
	}
	return uint64(now.Unix()) + c.Series.MaturitySeconds
}

// RolloverMaturityAt resolves the maturity of a series rolled over at now.
// An absolute Maturity only applies to the first series.
func (c *Config) RolloverMaturityAt(now time.Time) uint64 {
	return uint64(now.Unix()) + c.Series.MaturitySeconds
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(KeystorePassphraseEnv)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	// ensureKeystore persists the file once the keystore path is known.
	if err := ensureKeystore(path, cfg); err != nil {
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
	return filepath.Join(dir, "admin.keystore")
}
