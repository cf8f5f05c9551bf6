// Package app assembles the pipeline and its read side from configuration.
// Every binary builds on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"blockminds/internal/cache"
	"blockminds/internal/collector"
	"blockminds/internal/config"
	"blockminds/internal/db"
	"blockminds/internal/indicator"
	"blockminds/internal/logging"
	"blockminds/internal/notify"
	"blockminds/internal/onchain"
	"blockminds/internal/pipeline"
	"blockminds/internal/provider"
	"blockminds/internal/publisher"
	"blockminds/internal/sentiment"
	"blockminds/internal/service"
	"blockminds/internal/store"
	mongostore "blockminds/internal/store/mongo"
	pgstore "blockminds/internal/store/postgres"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	initPostgresFunc    = db.InitPostgres
	connectMongoFunc    = mongostore.Connect
	newRedisFunc        = cache.NewRedis
	newTelegramSinkFunc = func(token string, chatID int64) (notify.Sink, error) {
		return notify.NewTelegramSink(token, chatID)
	}
	newKafkaSinkFunc = func(brokers, topic string) (notify.Sink, error) {
		return notify.NewKafkaSink(brokers, topic)
	}
)

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Tracer    trace.Tracer
	Store     store.Store
	Redis     *redis.Client
	Market    *provider.CoinGeckoProvider
	Pipeline  *pipeline.Pipeline
	Snapshots *service.SnapshotService
	Notifier  *notify.Dispatcher

	deps    pipeline.Deps
	opts    pipeline.Options
	closers []func(context.Context) error
}

// OpenStore connects the configured snapshot and history backend.
func OpenStore(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (store.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := initPostgresFunc(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return pgstore.New(pool, tracer, pool.Close), nil
	case "mongo":
		return connectMongoFunc(ctx, cfg.Mongo.URI, cfg.Mongo.Database, tracer)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// New wires the full pipeline. Redis, Telegram, Kafka, OpenAI and every
// keyed news source are optional; without Redis the publish lock only
// covers this process.
func New(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Tracer: tracer}
	log := logging.Component(logger, "app")

	st, err := OpenStore(ctx, cfg, tracer)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	var (
		locker        publisher.Locker
		snapshotCache service.Cache
		onchainCache  onchain.Cache
	)
	if cfg.Redis.URL != "" {
		client, err := newRedisFunc(ctx, cfg.Redis.URL, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without shared lock and caches")
		} else {
			a.Redis = client
			a.closers = append(a.closers, func(context.Context) error { return client.Close() })
			locker = cache.NewLocker(client, cfg.Redis.LockTTL)
			snapshotCache = cache.NewTTLCache(client, "blockminds:snapshot:", cfg.Redis.SnapshotCacheTTL)
			onchainCache = cache.NewTTLCache(client, "blockminds:onchain:", cfg.Redis.EnrichmentTTL)
		}
	}

	retry := RetryPolicy(cfg.Fetch)
	a.Market = provider.NewCoinGeckoProvider(tracer, logger, provider.CoinGeckoOptions{
		BaseURL:     cfg.CoinGecko.BaseURL,
		APIKey:      cfg.CoinGecko.APIKey,
		MinInterval: cfg.CoinGecko.MinInterval,
		Retry:       retry,
		Timeout:     cfg.Fetch.Timeout,
	})
	dex := provider.NewDexScreenerProvider(tracer, logger, cfg.DexScreener.BaseURL, cfg.DexScreener.RequestsPerSecond, retry)

	a.Notifier = notify.NewDispatcher(logger, 0, a.sinks(cfg, log)...)
	a.closers = append(a.closers, func(context.Context) error { a.Notifier.Wait(); return nil })

	a.deps = pipeline.Deps{
		Market: a.Market,
		Collector: collector.New(a.Market, collector.Options{
			ChunkSize:  cfg.Collector.ChunkSize,
			Workers:    cfg.Collector.Workers,
			ChunkDelay: cfg.Collector.ChunkDelay,
		}, tracer, logger),
		Indicators: indicator.NewEngine(cfg.Indicator.RiskFreeRate),
		Sentiment:  a.sentiment(cfg, retry, log),
		OnChain:    onchain.NewResolver(dex, onchainCache, tracer, logger),
		Publisher:  publisher.New(st, locker, tracer, logger),
		Universe:   st,
		History:    st,
		Runs:       st,
		Notifier:   a.Notifier,
	}
	a.opts = pipeline.Options{
		Assets:          cfg.Pipeline.Assets,
		HistoryDays:     cfg.CoinGecko.HistoryDays,
		SentimentTarget: cfg.Sentiment.TargetCount,
		EnrichWorkers:   cfg.Pipeline.EnrichWorkers,
	}
	a.Pipeline = pipeline.New(a.deps, a.opts, tracer, logger)

	a.Snapshots = service.NewSnapshotService(tracer, st, snapshotCache, logger)
	return a, nil
}

// PipelineFor returns a pipeline over explicit asset ids that shares this
// app's clients, store and publish lock.
func (a *App) PipelineFor(assetIDs []string) *pipeline.Pipeline {
	opts := a.opts
	opts.Assets = assetIDs
	return pipeline.New(a.deps, opts, a.Tracer, a.Logger)
}

// RetryPolicy converts the shared fetch settings.
func RetryPolicy(cfg config.FetchConfig) provider.RetryPolicy {
	return provider.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

func (a *App) sinks(cfg *config.Config, log zerolog.Logger) []notify.Sink {
	var sinks []notify.Sink
	if cfg.Telegram.StatusToken != "" && cfg.Telegram.StatusChatID != 0 {
		sink, err := newTelegramSinkFunc(cfg.Telegram.StatusToken, cfg.Telegram.StatusChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram status sink disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if cfg.Kafka.Brokers != "" {
		sink, err := newKafkaSinkFunc(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Warn().Err(err).Msg("kafka sink disabled")
		} else {
			sinks = append(sinks, sink)
			if c, ok := sink.(interface{ Close() }); ok {
				a.closers = append(a.closers, func(context.Context) error { c.Close(); return nil })
			}
		}
	}
	return sinks
}

// sentiment registers the configured providers in priority order. Keyed
// sources without keys are skipped.
func (a *App) sentiment(cfg *config.Config, retry provider.RetryPolicy, log zerolog.Logger) pipeline.SentimentAggregator {
	news := func(src config.SourceConfig) provider.NewsOptions {
		return provider.NewsOptions{
			BaseURL:           src.BaseURL,
			Keys:              src.Keys,
			RequestsPerSecond: src.RequestsPerSecond,
			Retry:             retry,
		}
	}

	var providers []sentiment.Provider
	for _, name := range cfg.Sentiment.Providers {
		switch name {
		case "reddit":
			providers = append(providers, provider.NewRedditProvider(a.Tracer, a.Logger, provider.RedditOptions{
				BaseURL:           cfg.Reddit.BaseURL,
				UserAgent:         cfg.Reddit.UserAgent,
				Subreddits:        cfg.Reddit.Subreddits,
				RequestsPerSecond: cfg.Reddit.RequestsPerSecond,
				Retry:             retry,
			}))
		case "newsapi":
			if len(cfg.NewsAPI.Keys) > 0 {
				providers = append(providers, provider.NewNewsAPIProvider(a.Tracer, a.Logger, news(cfg.NewsAPI)))
			}
		case "newsdata":
			if len(cfg.NewsData.Keys) > 0 {
				providers = append(providers, provider.NewNewsDataProvider(a.Tracer, a.Logger, news(cfg.NewsData)))
			}
		case "mediastack":
			if len(cfg.MediaStack.Keys) > 0 {
				providers = append(providers, provider.NewMediaStackProvider(a.Tracer, a.Logger, news(cfg.MediaStack)))
			}
		case "contextualweb":
			if len(cfg.ContextualWeb.Keys) > 0 {
				providers = append(providers, provider.NewContextualWebProvider(a.Tracer, a.Logger, news(cfg.ContextualWeb)))
			}
		case "rss":
			if len(cfg.RSS.Feeds) > 0 {
				providers = append(providers, provider.NewRSSProvider(a.Tracer, a.Logger, cfg.RSS.Feeds, retry))
			}
		}
	}
	if len(providers) == 0 {
		log.Warn().Msg("no sentiment providers configured, records carry empty sentiment")
		return nil
	}

	var rescorer sentiment.BatchRescorer
	if cfg.OpenAI.APIKey != "" {
		rescorer = sentiment.NewOpenAIRescorer(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	scorer := sentiment.NewScorer(nil, sentiment.Thresholds{
		Positive: cfg.Sentiment.PositiveThreshold,
		Negative: cfg.Sentiment.NegativeThreshold,
	}, rescorer, cfg.OpenAI.BatchSize, logging.Component(a.Logger, "sentiment-scorer"))

	opts := sentiment.DefaultOptions()
	opts.TargetCount = cfg.Sentiment.TargetCount
	opts.PageSize = cfg.Sentiment.PageSize
	opts.TrendingSentiment = cfg.Sentiment.TrendingSentiment
	opts.TrendingEngagement = cfg.Sentiment.TrendingEngagement
	opts.PriceCorrelation = cfg.Sentiment.PriceCorrelation
	opts.PriceWindow = cfg.Sentiment.PriceWindow
	opts.PriceTolerance = cfg.Sentiment.PriceTolerance

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	log.Info().Strs("providers", names).Bool("llm_rescoring", rescorer != nil).Msg("sentiment providers registered")
	return sentiment.NewAggregator(providers, scorer, a.Market, opts, a.Tracer, a.Logger)
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
