package config

import (
	"time"

	"confidential-revote/encryption"
	"confidential-revote/storage"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Config is the server configuration, read from a TOML file.
type Config struct {
	Listen       string   `toml:"listen"`
	DataDir      string   `toml:"data_dir"`
	Backend      string   `toml:"backend"`
	KeyBits      int      `toml:"key_bits"`
	MinimumFee   string   `toml:"minimum_fee"` // wei, decimal
	BallotWidth  int      `toml:"ballot_width"`
	Difficulty   uint8    `toml:"difficulty"`
	MaxClockSkew Duration `toml:"max_clock_skew"`
}

// Duration lets TOML carry values like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	return &Config{
		Listen:       ":8080",
		DataDir:      "data",
		Backend:      storage.BackendBolt,
		KeyBits:      2048,
		MinimumFee:   "5000000000000000",
		BallotWidth:  8,
		Difficulty:   1,
		MaxClockSkew: Duration{5 * time.Minute},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warnf("unknown config key %q in %s", key.String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case storage.BackendMemory, storage.BackendJSON, storage.BackendBolt:
	default:
		return xerrors.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend != storage.BackendMemory && c.DataDir == "" {
		return xerrors.New("data_dir is required for persistent backends")
	}
	if c.KeyBits < 512 {
		return xerrors.Errorf("key_bits %d is too small", c.KeyBits)
	}
	if _, err := c.Fee(); err != nil {
		return err
	}
	if _, err := c.BallotType(); err != nil {
		return err
	}
	if c.Difficulty > 3 {
		return xerrors.Errorf("difficulty %d is impractical", c.Difficulty)
	}
	if c.MaxClockSkew.Duration <= 0 {
		return xerrors.New("max_clock_skew must be positive")
	}
	return nil
}

// Fee parses MinimumFee.
func (c *Config) Fee() (*uint256.Int, error) {
	fee, err := uint256.FromDecimal(c.MinimumFee)
	if err != nil {
		return nil, xerrors.Errorf("bad minimum_fee %q: %w", c.MinimumFee, err)
	}
	return fee, nil
}

// BallotType maps BallotWidth to an encrypted integer type.
func (c *Config) BallotType() (encryption.Type, error) {
	return encryption.TypeForWidth(c.BallotWidth)
}
