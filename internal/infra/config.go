package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stablecoin_go/internal/domain"
)

const (
	// DefaultUserAgent is sent by the price feed workers.
	DefaultUserAgent = "stablecoin-go/1.0"

	// DSCDecimals is the precision of the pegged token.
	DSCDecimals = 18
)

// CollateralConfig binds one collateral token to its price feed.
type CollateralConfig struct {
	Symbol       string          `yaml:"symbol" toml:"symbol"`
	Asset        string          `yaml:"asset" toml:"asset"`
	Feed         string          `yaml:"feed" toml:"feed"`
	FeedDecimals uint8           `yaml:"feed_decimals" toml:"feed_decimals"`
	InitialPrice decimal.Decimal `yaml:"initial_price" toml:"initial_price"` // USD, seeds the price service
}

// AssetAddress returns the parsed asset identifier.
func (c CollateralConfig) AssetAddress() common.Address { return common.HexToAddress(c.Asset) }

// FeedAddress returns the parsed feed identifier.
func (c CollateralConfig) FeedAddress() common.Address { return common.HexToAddress(c.Feed) }

// Config holds every application setting.
// After LoadConfig parses the file, environment variables override it.
type Config struct {
	App struct {
		Name    string `yaml:"name" toml:"name"`
		Version string `yaml:"version" toml:"version"`
	} `yaml:"app" toml:"app"`

	Engine struct {
		Address        string `yaml:"address" toml:"address"`           // custody account
		PeggedToken    string `yaml:"pegged_token" toml:"pegged_token"` // DSC identifier
		MaxPriceAgeSec int    `yaml:"max_price_age_sec" toml:"max_price_age_sec"`
		InboxSize      int    `yaml:"inbox_size" toml:"inbox_size"`
	} `yaml:"engine" toml:"engine"`

	Collateral []CollateralConfig `yaml:"collateral" toml:"collateral"`

	Feeds struct {
		WSURL           string `yaml:"ws_url" toml:"ws_url"`
		RestURL         string `yaml:"rest_url" toml:"rest_url"`
		PollIntervalSec int    `yaml:"poll_interval_sec" toml:"poll_interval_sec"`
		APIKey          string `yaml:"api_key" toml:"api_key"`
		APISecret       string `yaml:"api_secret" toml:"api_secret"`
	} `yaml:"feeds" toml:"feeds"`

	Storage struct {
		Path string `yaml:"path" toml:"path"`
	} `yaml:"storage" toml:"storage"`

	HTTP struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"http" toml:"http"`

	Keeper struct {
		Enabled        bool            `yaml:"enabled" toml:"enabled"`
		Liquidator     string          `yaml:"liquidator" toml:"liquidator"`
		MaxDebtToCover decimal.Decimal `yaml:"max_debt_to_cover" toml:"max_debt_to_cover"` // DSC, human units; zero = uncapped
	} `yaml:"keeper" toml:"keeper"`

	Logging struct {
		Level string `yaml:"level" toml:"level"`
		Dir   string `yaml:"dir" toml:"dir"`
	} `yaml:"logging" toml:"logging"`
}

// LoadConfig reads and parses the configuration file. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.InboxSize == 0 {
		cfg.Engine.InboxSize = 1024
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join("data", "engine.db")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "localhost:8080"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Feeds.RestURL != "" && cfg.Feeds.PollIntervalSec == 0 {
		cfg.Feeds.PollIntervalSec = 10
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := validAddress("engine.address", c.Engine.Address); err != nil {
		return err
	}
	if err := validAddress("engine.pegged_token", c.Engine.PeggedToken); err != nil {
		return err
	}
	if c.Engine.MaxPriceAgeSec < 0 {
		return &domain.ConfigError{Field: "engine.max_price_age_sec", Err: errors.New("must not be negative")}
	}
	if c.Engine.InboxSize < 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must not be negative")}
	}

	if len(c.Collateral) == 0 {
		return &domain.ConfigError{Field: "collateral", Err: errors.New("at least one collateral asset is required")}
	}
	seen := make(map[common.Address]bool, len(c.Collateral))
	for i, col := range c.Collateral {
		field := fmt.Sprintf("collateral[%d]", i)
		if col.Symbol == "" {
			return &domain.ConfigError{Field: field + ".symbol", Err: errors.New("required")}
		}
		if err := validAddress(field+".asset", col.Asset); err != nil {
			return err
		}
		if err := validAddress(field+".feed", col.Feed); err != nil {
			return err
		}
		if col.FeedDecimals == 0 || col.FeedDecimals > 36 {
			return &domain.ConfigError{Field: field + ".feed_decimals", Err: fmt.Errorf("must be between 1 and 36, got %d", col.FeedDecimals)}
		}
		if col.InitialPrice.IsNegative() {
			return &domain.ConfigError{Field: field + ".initial_price", Err: errors.New("must not be negative")}
		}
		if seen[col.AssetAddress()] {
			return &domain.ConfigError{Field: field + ".asset", Err: domain.ErrDuplicateAsset}
		}
		seen[col.AssetAddress()] = true
	}

	if u := c.Feeds.WSURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return &domain.ConfigError{Field: "feeds.ws_url", Err: fmt.Errorf("invalid WS URL: %s", u)}
	}
	if u := c.Feeds.RestURL; u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return &domain.ConfigError{Field: "feeds.rest_url", Err: fmt.Errorf("invalid REST URL: %s", u)}
		}
		if c.Feeds.PollIntervalSec <= 0 {
			return &domain.ConfigError{Field: "feeds.poll_interval_sec", Err: errors.New("poll interval must be positive")}
		}
	}

	if c.Keeper.Enabled {
		if err := validAddress("keeper.liquidator", c.Keeper.Liquidator); err != nil {
			return err
		}
	}
	if c.Keeper.MaxDebtToCover.IsNegative() {
		return &domain.ConfigError{Field: "keeper.max_debt_to_cover", Err: errors.New("must not be negative")}
	}

	return nil
}

func validAddress(field, s string) error {
	if !common.IsHexAddress(s) {
		return &domain.ConfigError{Field: field, Err: fmt.Errorf("invalid address %q", s)}
	}
	if common.HexToAddress(s) == (common.Address{}) {
		return &domain.ConfigError{Field: field, Err: domain.ErrZeroAddress}
	}
	return nil
}

// MaxPriceAge returns the staleness limit; zero disables it.
func (c *Config) MaxPriceAge() time.Duration {
	return time.Duration(c.Engine.MaxPriceAgeSec) * time.Second
}

// KeeperMaxDebt converts keeper.max_debt_to_cover to DSC base units.
func (c *Config) KeeperMaxDebt() (*uint256.Int, error) {
	return ToBaseUnits(c.Keeper.MaxDebtToCover, DSCDecimals)
}

// ToBaseUnits converts a human amount to fixed point with the given
// decimals. Digits beyond that precision are truncated.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	v, overflow := uint256.FromBig(amount.Shift(decimals).BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", domain.ErrArithmeticOverflow, amount)
	}
	return v, nil
}

// overrideWithEnv overwrites settings with environment variables when set.
func overrideWithEnv(cfg *Config) {
	if level := os.Getenv("DSC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("DSC_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("DSC_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if key := os.Getenv("DSC_FEED_API_KEY"); key != "" {
		cfg.Feeds.APIKey = key
	}
	if secret := os.Getenv("DSC_FEED_API_SECRET"); secret != "" {
		cfg.Feeds.APISecret = secret
	}
}
