//go:build wireinject
// +build wireinject

package di

import (
	"AstroSense/pkg/config"
	"AstroSense/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideClock,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideStorage,
		ProvidePublisher,
		ProvideFeedStream,
		ProvideIngestClient,
		ProvideIngestor,
		ProvideHistoricalEvents,

		// Model services
		ProvideEstimator,
		ProvideFusion,
		ProvideSectorModels,
		ProvideAlertManager,

		// Use cases
		ProvideAlertNotifier,
		ProvideMeasurementProcessor,
		ProvideImpactPipeline,
		ProvideMeasurementCollector,
		ProvideKafkaMeasurementsHandler,
		ProvideBacktestEngine,
		ProvideBacktestUseCase,
		ProvideHistoryUseCase,

		// Transport
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
