package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Source types.
const (
	SourcePush  = "push"
	SourceTWAP  = "twap"
	SourceRatio = "ratio"
	SourceChain = "chain"
)

// Feed types.
const (
	FeedCoinGecko = "coingecko"
	FeedChainlink = "chainlink"
)

// Config captures runtime configuration for arthd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	StateDir      string          `yaml:"state_dir"`
	ParamsPath    string          `yaml:"params"`
	RPCURL        string          `yaml:"rpc_url"`
	Chain         ChainConfig     `yaml:"chain"`
	Keeper        KeeperConfig    `yaml:"keeper"`
	Feeder        FeederConfig    `yaml:"feeder"`
	Sources       []Source        `yaml:"sources"`
	Feeds         []Feed          `yaml:"feeds"`
	Routes        Routes          `yaml:"routes"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Log           LogConfig       `yaml:"log"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// ChainConfig derives the logical block height used for redemption delays.
type ChainConfig struct {
	GenesisUnix   int64    `yaml:"genesis_unix"`
	BlockInterval Duration `yaml:"block_interval"`
}

// KeeperConfig tunes the ratio refresh loop.
type KeeperConfig struct {
	Interval Duration `yaml:"interval"`
	Disabled bool     `yaml:"disabled"`
}

// FeederConfig tunes the feed polling loop.
type FeederConfig struct {
	Interval Duration `yaml:"interval"`
	MaxAge   Duration `yaml:"max_age"`
	Timeout  Duration `yaml:"timeout"`
}

// Source declares a price source. Push and TWAP sources are fed by feeds;
// ratio and chain sources combine other sources.
type Source struct {
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	MaxStaleness Duration `yaml:"max_staleness"`
	Period       Duration `yaml:"period"`
	Numerator    string   `yaml:"numerator"`
	Denominator  string   `yaml:"denominator"`
	Hops         []string `yaml:"hops"`
}

// Feed describes an upstream price feed and the source it supplies.
type Feed struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Target   string `yaml:"target"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	AssetID  string `yaml:"asset_id"`
	VS       string `yaml:"vs"`
	Address  string `yaml:"address"`
}

// Routes binds the aggregator's routes to source identifiers.
type Routes struct {
	Stablecoin string            `yaml:"stablecoin"`
	Share      string            `yaml:"share"`
	Collateral map[string]string `yaml:"collateral"`
}

// RateLimitConfig throttles the HTTP surface per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/arthd.sqlite"
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "/var/data/arthd/state"
	}
	if cfg.ParamsPath == "" {
		cfg.ParamsPath = "services/arthd/params.toml"
	}
	if cfg.Chain.BlockInterval.Duration == 0 {
		cfg.Chain.BlockInterval.Duration = 12 * time.Second
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = 5 * time.Minute
	}
	if cfg.Feeder.Interval.Duration == 0 {
		cfg.Feeder.Interval.Duration = 30 * time.Second
	}
	if cfg.Feeder.MaxAge.Duration == 0 {
		cfg.Feeder.MaxAge.Duration = 2 * time.Minute
	}
	if cfg.Feeder.Timeout.Duration == 0 {
		cfg.Feeder.Timeout.Duration = 10 * time.Second
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	for i := range cfg.Sources {
		cfg.Sources[i].ID = normaliseID(cfg.Sources[i].ID)
		cfg.Sources[i].Type = strings.ToLower(strings.TrimSpace(cfg.Sources[i].Type))
		cfg.Sources[i].Numerator = normaliseID(cfg.Sources[i].Numerator)
		cfg.Sources[i].Denominator = normaliseID(cfg.Sources[i].Denominator)
		for j := range cfg.Sources[i].Hops {
			cfg.Sources[i].Hops[j] = normaliseID(cfg.Sources[i].Hops[j])
		}
	}
	for i := range cfg.Feeds {
		cfg.Feeds[i].Type = strings.ToLower(strings.TrimSpace(cfg.Feeds[i].Type))
		cfg.Feeds[i].Target = normaliseID(cfg.Feeds[i].Target)
		if cfg.Feeds[i].VS == "" {
			cfg.Feeds[i].VS = "usd"
		}
	}
	cfg.Routes.Stablecoin = normaliseID(cfg.Routes.Stablecoin)
	cfg.Routes.Share = normaliseID(cfg.Routes.Share)
	collateral := make(map[string]string, len(cfg.Routes.Collateral))
	for pool, src := range cfg.Routes.Collateral {
		collateral[normaliseID(pool)] = normaliseID(src)
	}
	cfg.Routes.Collateral = collateral
}

func validate(cfg Config) error {
	if cfg.Chain.BlockInterval.Duration < 0 {
		return fmt.Errorf("chain.block_interval must be positive")
	}
	defined := make(map[string]Source, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("source id required")
		}
		if _, dup := defined[src.ID]; dup {
			return fmt.Errorf("source %s declared twice", src.ID)
		}
		switch src.Type {
		case SourcePush:
		case SourceTWAP:
			if src.Period.Duration <= 0 {
				return fmt.Errorf("source %s: twap period must be positive", src.ID)
			}
		case SourceRatio:
			if src.Numerator == "" || src.Denominator == "" {
				return fmt.Errorf("source %s: ratio needs numerator and denominator", src.ID)
			}
		case SourceChain:
			if len(src.Hops) == 0 {
				return fmt.Errorf("source %s: chain needs hops", src.ID)
			}
		default:
			return fmt.Errorf("source %s: unknown type %q", src.ID, src.Type)
		}
		defined[src.ID] = src
	}
	for _, src := range cfg.Sources {
		for _, dep := range append([]string{src.Numerator, src.Denominator}, src.Hops...) {
			if dep == "" {
				continue
			}
			if _, ok := defined[dep]; !ok {
				return fmt.Errorf("source %s references unknown source %s", src.ID, dep)
			}
		}
	}
	for _, feed := range cfg.Feeds {
		if strings.TrimSpace(feed.Name) == "" {
			return fmt.Errorf("feed name required")
		}
		target, ok := defined[feed.Target]
		if !ok {
			return fmt.Errorf("feed %s targets unknown source %s", feed.Name, feed.Target)
		}
		if target.Type != SourcePush && target.Type != SourceTWAP {
			return fmt.Errorf("feed %s: target %s must be a push or twap source", feed.Name, feed.Target)
		}
		switch feed.Type {
		case FeedCoinGecko:
			if strings.TrimSpace(feed.AssetID) == "" {
				return fmt.Errorf("feed %s: asset_id required", feed.Name)
			}
		case FeedChainlink:
			if strings.TrimSpace(feed.Address) == "" {
				return fmt.Errorf("feed %s: address required", feed.Name)
			}
			if strings.TrimSpace(cfg.RPCURL) == "" {
				return fmt.Errorf("feed %s: rpc_url required for chainlink feeds", feed.Name)
			}
		default:
			return fmt.Errorf("feed %s: unknown type %q", feed.Name, feed.Type)
		}
	}
	routes := map[string]string{"stablecoin": cfg.Routes.Stablecoin, "share": cfg.Routes.Share}
	for pool, src := range cfg.Routes.Collateral {
		routes["collateral "+pool] = src
	}
	for route, src := range routes {
		if src == "" {
			continue
		}
		if _, ok := defined[src]; !ok {
			return fmt.Errorf("route %s references unknown source %s", route, src)
		}
	}
	if cfg.Routes.Stablecoin == "" {
		return fmt.Errorf("routes.stablecoin must be configured")
	}
	return nil
}

func normaliseID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
