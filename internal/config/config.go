package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"blockminds/internal/domain"
	"blockminds/internal/logging"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Every key maps to an upper-case
// environment variable with dots replaced by underscores (database.url -> DATABASE_URL).
type Config struct {
	App           AppConfig         `mapstructure:"app"`
	Logging       logging.Config    `mapstructure:"logging"`
	HTTP          HTTPConfig        `mapstructure:"http"`
	Store         StoreConfig       `mapstructure:"store"`
	Database      DatabaseConfig    `mapstructure:"database"`
	Mongo         MongoConfig       `mapstructure:"mongo"`
	Redis         RedisConfig       `mapstructure:"redis"`
	Telegram      TelegramConfig    `mapstructure:"telegram"`
	Kafka         KafkaConfig       `mapstructure:"kafka"`
	CoinGecko     CoinGeckoConfig   `mapstructure:"coingecko"`
	DexScreener   DexScreenerConfig `mapstructure:"dexscreener"`
	Fetch         FetchConfig       `mapstructure:"fetch"`
	Collector     CollectorConfig   `mapstructure:"collector"`
	Indicator     IndicatorConfig   `mapstructure:"indicator"`
	Sentiment     SentimentConfig   `mapstructure:"sentiment"`
	Reddit        RedditConfig      `mapstructure:"reddit"`
	NewsAPI       SourceConfig      `mapstructure:"newsapi"`
	NewsData      SourceConfig      `mapstructure:"newsdata"`
	MediaStack    SourceConfig      `mapstructure:"mediastack"`
	ContextualWeb SourceConfig      `mapstructure:"contextualweb"`
	RSS           RSSConfig         `mapstructure:"rss"`
	OpenAI        OpenAIConfig      `mapstructure:"openai"`
	Scheduler     SchedulerConfig   `mapstructure:"scheduler"`
	Pipeline      PipelineConfig    `mapstructure:"pipeline"`
	MCP           MCPConfig         `mapstructure:"mcp"`
	SSH           SSHConfig         `mapstructure:"ssh"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// StoreConfig selects the published snapshot and history backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	SnapshotCacheTTL time.Duration `mapstructure:"snapshot_cache_ttl"`
	EnrichmentTTL    time.Duration `mapstructure:"enrichment_ttl"`
}

// TelegramConfig covers both the command bot and the status channel.
// StatusToken falls back to BotToken when empty.
type TelegramConfig struct {
	BotToken     string `mapstructure:"bot_token"`
	StatusToken  string `mapstructure:"status_token"`
	StatusChatID int64  `mapstructure:"status_chat_id"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type CoinGeckoConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	HistoryDays int           `mapstructure:"history_days"`
}

type DexScreenerConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// FetchConfig is the retry policy shared by every upstream client.
type FetchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type CollectorConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	Workers    int           `mapstructure:"workers"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`
}

type IndicatorConfig struct {
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

type SentimentConfig struct {
	Providers          []string      `mapstructure:"providers"`
	TargetCount        int           `mapstructure:"target_count"`
	PageSize           int           `mapstructure:"page_size"`
	PositiveThreshold  float64       `mapstructure:"positive_threshold"`
	NegativeThreshold  float64       `mapstructure:"negative_threshold"`
	TrendingSentiment  float64       `mapstructure:"trending_sentiment"`
	TrendingEngagement float64       `mapstructure:"trending_engagement"`
	PriceCorrelation   bool          `mapstructure:"price_correlation"`
	PriceWindow        time.Duration `mapstructure:"price_window"`
	PriceTolerance     time.Duration `mapstructure:"price_tolerance"`
}

type RedditConfig struct {
	BaseURL           string   `mapstructure:"base_url"`
	Subreddits        []string `mapstructure:"subreddits"`
	UserAgent         string   `mapstructure:"user_agent"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
}

// SourceConfig configures a keyed news API.
type SourceConfig struct {
	BaseURL           string   `mapstructure:"base_url"`
	Keys              []string `mapstructure:"keys"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
}

type RSSConfig struct {
	Feeds []string `mapstructure:"feeds"`
}

type OpenAIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
}

type SchedulerConfig struct {
	PipelineInterval time.Duration `mapstructure:"pipeline_interval"`
	HistoryInterval  time.Duration `mapstructure:"history_interval"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

type PipelineConfig struct {
	Assets        []string `mapstructure:"assets"`
	EnrichWorkers int      `mapstructure:"enrich_workers"`
}

type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	Addr      string `mapstructure:"addr"`
}

type SSHConfig struct {
	Addr                string   `mapstructure:"addr"`
	HostKeyPath         string   `mapstructure:"host_key_path"`
	AllowedFingerprints []string `mapstructure:"allowed_fingerprints"`
}

// Load reads defaults, an optional file named by CONFIG_FILE, and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", domain.ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", domain.ErrConfiguration, err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "blockminds")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.api_key", "")

	v.SetDefault("store.backend", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "blockminds")

	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.lock_ttl", "30m")
	v.SetDefault("redis.snapshot_cache_ttl", "60s")
	v.SetDefault("redis.enrichment_ttl", "15m")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.status_token", "")
	v.SetDefault("telegram.status_chat_id", 0)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "blockminds.pipeline")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.min_interval", "1s")
	v.SetDefault("coingecko.history_days", 365)

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.requests_per_second", 4.0)

	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.base_delay", "1s")
	v.SetDefault("fetch.max_delay", "60s")
	v.SetDefault("fetch.timeout", "30s")

	v.SetDefault("collector.chunk_size", 4)
	v.SetDefault("collector.workers", 2)
	v.SetDefault("collector.chunk_delay", "50s")

	v.SetDefault("indicator.risk_free_rate", 0.01)

	v.SetDefault("sentiment.providers", []string{"reddit", "newsapi", "newsdata", "mediastack", "contextualweb", "rss"})
	v.SetDefault("sentiment.target_count", 100)
	v.SetDefault("sentiment.page_size", 100)
	v.SetDefault("sentiment.positive_threshold", 0.05)
	v.SetDefault("sentiment.negative_threshold", -0.05)
	v.SetDefault("sentiment.trending_sentiment", 0.2)
	v.SetDefault("sentiment.trending_engagement", 10.0)
	v.SetDefault("sentiment.price_correlation", false)
	v.SetDefault("sentiment.price_window", "6h")
	v.SetDefault("sentiment.price_tolerance", "2h")

	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.subreddits", []string{"cryptocurrency", "CryptoMarkets"})
	v.SetDefault("reddit.user_agent", "blockminds/1.0")
	v.SetDefault("reddit.requests_per_second", 1.0)

	v.SetDefault("newsapi.base_url", "https://newsapi.org/v2")
	v.SetDefault("newsapi.keys", []string{})
	v.SetDefault("newsapi.requests_per_second", 1.0)
	v.SetDefault("newsdata.base_url", "https://newsdata.io/api/1")
	v.SetDefault("newsdata.keys", []string{})
	v.SetDefault("newsdata.requests_per_second", 1.0)
	v.SetDefault("mediastack.base_url", "http://api.mediastack.com/v1")
	v.SetDefault("mediastack.keys", []string{})
	v.SetDefault("mediastack.requests_per_second", 1.0)
	v.SetDefault("contextualweb.base_url", "https://contextualwebsearch-websearch-v1.p.rapidapi.com/api/search")
	v.SetDefault("contextualweb.keys", []string{})
	v.SetDefault("contextualweb.requests_per_second", 1.0)

	v.SetDefault("rss.feeds", []string{
		"https://www.coindesk.com/arc/outboundfeeds/rss/",
		"https://cointelegraph.com/rss",
	})

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.batch_size", 20)

	v.SetDefault("scheduler.pipeline_interval", "15m")
	v.SetDefault("scheduler.history_interval", "1h")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_timeout", "25m")

	v.SetDefault("pipeline.assets", []string{})
	v.SetDefault("pipeline.enrich_workers", 2)

	v.SetDefault("mcp.transport", "stdio")
	v.SetDefault("mcp.addr", ":8090")

	v.SetDefault("ssh.addr", "0.0.0.0:2222")
	v.SetDefault("ssh.host_key_path", ".ssh/blockminds_ed25519")
	v.SetDefault("ssh.allowed_fingerprints", []string{})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.MCP.Transport = strings.ToLower(strings.TrimSpace(c.MCP.Transport))
	c.Sentiment.Providers = cleanList(c.Sentiment.Providers, true)
	c.Reddit.Subreddits = cleanList(c.Reddit.Subreddits, false)
	c.RSS.Feeds = cleanList(c.RSS.Feeds, false)
	c.Pipeline.Assets = cleanList(c.Pipeline.Assets, true)
	c.SSH.AllowedFingerprints = cleanList(c.SSH.AllowedFingerprints, false)
	for _, src := range []*SourceConfig{&c.NewsAPI, &c.NewsData, &c.MediaStack, &c.ContextualWeb} {
		src.Keys = cleanList(src.Keys, false)
	}
	if c.Telegram.StatusToken == "" {
		c.Telegram.StatusToken = c.Telegram.BotToken
	}
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if lower {
			s = strings.ToLower(s)
		}
		out = append(out, s)
	}
	return out
}

var knownProviders = map[string]struct{}{
	"reddit": {}, "newsapi": {}, "newsdata": {}, "mediastack": {}, "contextualweb": {}, "rss": {},
}

// Validate reports the first invalid setting, wrapped in domain.ErrConfiguration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, fmt.Sprintf(format, args...))
	}

	switch c.Store.Backend {
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return invalid("database.url is required for the postgres store")
		}
	case "mongo":
		if strings.TrimSpace(c.Mongo.URI) == "" {
			return invalid("mongo.uri is required for the mongo store")
		}
	case "memory":
	default:
		return invalid("store.backend must be postgres, mongo or memory, got %q", c.Store.Backend)
	}

	if strings.TrimSpace(c.CoinGecko.BaseURL) == "" {
		return invalid("coingecko.base_url is required")
	}
	if c.CoinGecko.MinInterval <= 0 {
		return invalid("coingecko.min_interval must be greater than zero")
	}
	if c.CoinGecko.HistoryDays <= 0 {
		return invalid("coingecko.history_days must be greater than zero")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return invalid("fetch.max_attempts must be greater than zero")
	}
	if c.Fetch.BaseDelay < 0 || c.Fetch.MaxDelay < 0 {
		return invalid("fetch delays cannot be negative")
	}
	if c.Collector.ChunkSize <= 0 {
		return invalid("collector.chunk_size must be greater than zero")
	}
	if c.Collector.Workers <= 0 {
		return invalid("collector.workers must be greater than zero")
	}
	if c.Collector.ChunkDelay < 0 {
		return invalid("collector.chunk_delay cannot be negative")
	}
	if c.Pipeline.EnrichWorkers <= 0 {
		return invalid("pipeline.enrich_workers must be greater than zero")
	}
	if c.Sentiment.TargetCount <= 0 {
		return invalid("sentiment.target_count must be greater than zero")
	}
	for _, f := range []float64{
		c.Indicator.RiskFreeRate,
		c.Sentiment.PositiveThreshold,
		c.Sentiment.NegativeThreshold,
		c.Sentiment.TrendingSentiment,
		c.Sentiment.TrendingEngagement,
	} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return invalid("thresholds must be finite")
		}
	}
	if c.Sentiment.NegativeThreshold > c.Sentiment.PositiveThreshold {
		return invalid("sentiment.negative_threshold must not exceed sentiment.positive_threshold")
	}
	for _, p := range c.Sentiment.Providers {
		if _, ok := knownProviders[p]; !ok {
			return invalid("unknown sentiment provider %q", p)
		}
	}
	if c.MCP.Transport != "stdio" && c.MCP.Transport != "http" {
		return invalid("mcp.transport must be stdio or http")
	}
	return nil
}
