package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"AstroSense/internal/alerting"
	"AstroSense/internal/backtest"
	"AstroSense/internal/domain/repository"
	domsvc "AstroSense/internal/domain/service"
	"AstroSense/internal/handler/api"
	mid "AstroSense/internal/middleware"
	internalrepo "AstroSense/internal/repository"
	icache "AstroSense/internal/service/cache"
	"AstroSense/internal/service/ingest"
	"AstroSense/internal/service/notify"
	"AstroSense/internal/service/swfeed"
	"AstroSense/internal/services/features"
	"AstroSense/internal/services/fusion"
	"AstroSense/internal/services/mlmodel"
	"AstroSense/internal/services/normalize"
	"AstroSense/internal/services/physics"
	"AstroSense/internal/services/sectors"
	"AstroSense/internal/services/validate"
	"AstroSense/internal/usecase"
	pkgcache "AstroSense/pkg/cache"
	pkgch "AstroSense/pkg/clickhouse"
	"AstroSense/pkg/config"
	pkgkafka "AstroSense/pkg/kafka"
	applogger "AstroSense/pkg/logger"
	"AstroSense/pkg/metrics"
	"AstroSense/pkg/queue"
	"AstroSense/pkg/server"
)

// ProvideLogger creates the application logger from the environment.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClock returns the real clock; tests swap in fakes directly.
func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	maxOpen := cfg.ClickHouse.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 10
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(maxOpen, maxOpen/2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStorage creates the ClickHouse storage repository and initializes
// its schema.
func ProvideStorage(chClient *pkgch.Client, cfg *config.Config) (repository.Storage, error) {
	store := internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePublisher creates the Kafka publisher repository. In production it
// also routes aggregated error logs through the same producer.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) repository.Publisher {
	if cfg.Environment == "production" {
		topic := cfg.Kafka.LogsTopic
		if topic == "" {
			topic = "astrosense.logs"
		}
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          topic,
			Publisher:      kafkaLogSink{producer: producer},
		})
	}
	return internalrepo.NewKafkaPublisher(producer,
		cfg.Kafka.MeasurementsTopic,
		cfg.Kafka.ScoresTopic,
		cfg.Kafka.AlertsTopic,
	)
}

// kafkaLogSink adapts the producer to the log collector's publisher.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaMeasurementsHandler registers the persistence handler for the
// measurements topic.
func ProvideKafkaMeasurementsHandler(store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.KafkaMeasurementsHandler {
	return usecase.NewKafkaMeasurementsHandler(cfg.Kafka.MeasurementsTopic, store, m)
}

// ProvideFeedStream creates the live WebSocket measurement stream, or nil
// when no feed is configured.
func ProvideFeedStream(cfg *config.Config) repository.MeasurementStream {
	if cfg.Feed.WebSocketURL == "" {
		return nil
	}
	return swfeed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Channels,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideIngestClient creates the NOAA/DONKI polling client.
func ProvideIngestClient(cfg *config.Config, clock clockwork.Clock, l *applogger.Logger) *ingest.Client {
	return ingest.NewClient(ingest.Config{
		NOAABaseURL:  cfg.Ingest.NOAABaseURL,
		DONKIBaseURL: cfg.Ingest.DONKIBaseURL,
		NASAAPIKey:   cfg.Ingest.NASAAPIKey,
		CacheTTL:     cfg.Ingest.CacheTTL,
		MaxRetries:   cfg.Ingest.MaxRetries,
		BaseBackoff:  cfg.Ingest.BaseBackoff,
		LookbackDays: cfg.Ingest.LookbackDays,
	}, clock, l)
}

// ProvideIngestor exposes the ingest client behind the domain interface.
func ProvideIngestor(c *ingest.Client) domsvc.Ingestor { return c }

// ProvideHistoricalEvents exposes the ingest client's archive queries.
func ProvideHistoricalEvents(c *ingest.Client) usecase.HistoricalEvents { return c }

// ProvideEstimator builds the estimator chain: HTTP service first, heuristic
// fallback when it is unreachable or unconfigured.
func ProvideEstimator(cfg *config.Config, l *applogger.Logger) domsvc.RiskEstimator {
	return mlmodel.NewFallbackEstimator(mlmodel.NewHTTPEstimator(cfg, l), l)
}

// ProvideFusion builds the ML/physics combiner from config weights.
func ProvideFusion(cfg *config.Config, l *applogger.Logger) (*fusion.Combiner, error) {
	c, err := fusion.New(cfg.FusionMLWeight(), cfg.FusionPhysicsWeight(), l)
	if err != nil {
		return nil, fmt.Errorf("fusion combiner: %w", err)
	}
	c.SetConflictThreshold(cfg.FusionConflictThreshold())
	return c, nil
}

// ProvideSectorModels builds the five sector predictors and the composite
// aggregator.
func ProvideSectorModels(clock clockwork.Clock, l *applogger.Logger) usecase.SectorModels {
	return usecase.SectorModels{
		Aviation:  sectors.NewAviationPredictor(clock, l),
		Telecom:   sectors.NewTelecomPredictor(clock, l),
		GPS:       sectors.NewGPSPredictor(l),
		PowerGrid: sectors.NewPowerGridPredictor(clock, l),
		Satellite: sectors.NewSatellitePredictor(clock, l),
		Composite: sectors.NewCompositeCalculator(clock, l),
	}
}

// ProvideAlertManager builds the alert lifecycle manager.
func ProvideAlertManager(clock clockwork.Clock, l *applogger.Logger) *alerting.Manager {
	return alerting.NewManager(clock, l)
}

// ProvideAlertNotifier builds the redis-backed alert fan-out, or nil when
// redis is disabled. The same queue hosts the in-process delivery worker.
func ProvideAlertNotifier(cfg *config.Config, l *applogger.Logger) *notify.Dispatcher {
	if !cfg.Redis.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 10 * time.Second,
	}, rdb, queue.ModeProducerConsumer, queue.WithKeyPrefix("astrosense:alerts"))
	q.RegisterJob(notify.NewAlertNotifyJob(l))
	if err := q.Start(); err != nil {
		l.Error("alert queue start failed", applogger.Error(err))
		return nil
	}
	return notify.NewDispatcher(q)
}

// ProvideMeasurementProcessor creates the backend router.
func ProvideMeasurementProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	notifier *notify.Dispatcher,
	cfg *config.Config,
) *usecase.MeasurementProcessor {
	proc := usecase.NewMeasurementProcessor(pub, store, m, cfg.Backend.Type)
	if notifier != nil {
		proc.SetNotifier(notifier)
	}
	return proc
}

// ProvideImpactPipeline assembles the prediction pipeline.
func ProvideImpactPipeline(
	estimator domsvc.RiskEstimator,
	combiner *fusion.Combiner,
	sectorModels usecase.SectorModels,
	alerts *alerting.Manager,
	proc *usecase.MeasurementProcessor,
	ingestor domsvc.Ingestor,
	m repository.Metrics,
	clock clockwork.Clock,
	l *applogger.Logger,
) *usecase.ImpactPipeline {
	return usecase.NewImpactPipeline(
		normalize.New(l),
		features.New(clock, l),
		physics.New(l),
		estimator,
		combiner,
		validate.New(l),
		sectorModels,
		alerts,
		proc,
		ingestor,
		m,
		clock,
		l,
	)
}

// ProvideMeasurementCollector wires the live stream through the realtime
// middleware into the pipeline. Nil when no feed is configured.
func ProvideMeasurementCollector(
	stream repository.MeasurementStream,
	impact *usecase.ImpactPipeline,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.MeasurementCollector {
	if stream == nil {
		return nil
	}
	var opts []mid.PipelineOption
	if cfg.Pipeline.MaxRPS > 0 {
		opts = append(opts, mid.WithMaxRPS(cfg.Pipeline.MaxRPS))
	}
	if cfg.Pipeline.BufferSize > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Pipeline.BufferSize))
	}
	pipe := mid.NewRealtimePipeline(impact, m, opts...)
	return usecase.NewMeasurementCollector(stream, impact, m, pipe)
}

// ProvideBacktestEngine builds the replay engine on its own predictor set so
// replays never touch live predictor state.
func ProvideBacktestEngine(clock clockwork.Clock, l *applogger.Logger) *backtest.Engine {
	return backtest.NewEngine(backtest.Predictors{
		Aviation:  sectors.NewAviationPredictor(clock, l),
		Telecom:   sectors.NewTelecomPredictor(clock, l),
		GPS:       sectors.NewGPSPredictor(l),
		PowerGrid: sectors.NewPowerGridPredictor(clock, l),
		Satellite: sectors.NewSatellitePredictor(clock, l),
		Composite: sectors.NewCompositeCalculator(clock, l),
	}, clock, l)
}

// ProvideBacktestUseCase drives the replay engine from the API.
func ProvideBacktestUseCase(
	engine *backtest.Engine,
	events usecase.HistoricalEvents,
	clock clockwork.Clock,
	l *applogger.Logger,
) *usecase.BacktestUseCase {
	return usecase.NewBacktestUseCase(engine, events, clock, l)
}

// ProvideHistoryUseCase serves stored measurement queries.
func ProvideHistoryUseCase(store repository.Storage) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(store)
}

// ProvideHTTPHandler builds the Echo handler with a response cache: redis
// when enabled, in-process TTL cache otherwise.
func ProvideHTTPHandler(
	l *applogger.Logger,
	pipeline *usecase.ImpactPipeline,
	backtests *usecase.BacktestUseCase,
	history *usecase.HistoryUseCase,
	cfg *config.Config,
) *api.ImpactEchoHandler {
	h := api.NewImpactEchoHandler(l, pipeline, backtests, history)
	if cfg.Redis.Enabled {
		redisCache, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(redisHost(cfg.Redis.Addr)),
			pkgcache.WithRedisPort(redisPort(cfg.Redis.Addr)),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPrefix("astrosense"),
		)
		if err != nil {
			l.Warn("redis cache unavailable, falling back to in-process cache", applogger.Error(err))
			h.SetCache(icache.NewTTLCache())
			return h
		}
		layered := pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(1000))
		h.SetCache(icache.NewServiceAdapter(layered))
	} else {
		h.SetCache(icache.NewTTLCache())
	}
	return h
}

func redisHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func redisPort(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 6379
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 6379
	}
	return n
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.MeasurementCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaMeasurementsHandler,
	chClient *pkgch.Client,
	handler *api.ImpactEchoHandler,
	proc *usecase.MeasurementProcessor,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	var mh pkgkafka.MessageHandler
	if kh != nil {
		mh = kh
	}
	app := server.New(cfg, collector, consumer, mh, chClient)
	app.SetHTTPHandler(handler)
	app.Proc = proc
	return app
}
