package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/audit"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/events"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/sources"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/warehouse"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/application/services"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/refdata"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/repositories"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/infrastructure/clients/postgres"
	redisclient "github.com/zatekoja/nhs-data-integration/pipeline/internal/infrastructure/clients/redis"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/infrastructure/observability"
	"github.com/zatekoja/nhs-data-integration/pipeline/pkg/config"
)

func main() {
	var dryRun bool
	flag.BoolVar(&dryRun, "dry-run", false, "run against an in-memory warehouse instead of Postgres")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)

	report, err := run(ctx, cfg, dryRun)
	if err != nil || (report != nil && report.State == entities.StateFailed) {
		log.Error().Err(err).Msg("pipeline run did not complete")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, dryRun bool) (*entities.RunReport, error) {
	opts := []services.PipelineOption{
		services.WithLoadTimeout(cfg.Pipeline.LoadTimeout),
		services.WithWorkers(cfg.Pipeline.Workers),
	}

	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			return nil, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("telemetry shutdown failed")
			}
		}()

		if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
			log.Warn().Err(err).Msg("failed to start runtime instrumentation")
		}

		metrics, err := observability.InitMetrics()
		if err != nil {
			return nil, err
		}
		opts = append(opts, services.WithMetrics(metrics))
	}

	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		defer redisClient.Close()

		bus := events.NewRedisEventBus(redisClient)
		defer bus.Close()
		opts = append(opts, services.WithEventBus(bus))
	}

	if cfg.Pipeline.RejectsParquet != "" {
		rejects, err := audit.NewParquetRejectWriter(cfg.Pipeline.RejectsParquet)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := rejects.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close reject audit file")
			}
		}()
		opts = append(opts, services.WithRejectWriter(rejects))
	}

	var sink repositories.Warehouse
	if dryRun {
		log.Info().Msg("dry run, loading into in-memory warehouse")
		sink = warehouse.NewMemoryAdapter()
	} else {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			return nil, err
		}
		defer pgClient.Close()
		sink = warehouse.NewPostgresAdapter(pgClient)
	}

	if err := sink.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	recordSources := []providers.RecordSource{
		sources.NewCSVSource(entities.SourcePAS, cfg.Sources.PatientsCSV),
		sources.NewJSONSource(entities.SourceEHR, cfg.Sources.EncountersJSON),
		sources.NewCSVSource(entities.SourceLIMS, cfg.Sources.LabResultsCSV),
		sources.NewCSVSource(entities.SourceAppointments, cfg.Sources.AppointmentsCSV),
	}

	store := services.NewDimensionStore()
	pipeline := services.NewPipelineService(
		services.NewIdentityService(refdata.Default(), cfg.Pipeline.MinRecordDate),
		services.NewQualityService(cfg.Pipeline.CompletenessWeight, cfg.Pipeline.ValidityWeight),
		services.NewDimensionService(store),
		services.NewFactService(store),
		services.NewIntegrityService(store),
		sink,
		recordSources,
		opts...,
	)

	report, err := pipeline.Run(ctx)
	if report != nil {
		logReport(report)
	}
	return report, err
}

func logReport(report *entities.RunReport) {
	logger := observability.GetLogger()
	for _, source := range entities.AllSources() {
		sr, ok := report.Sources[source]
		if !ok {
			continue
		}
		event := logger.Info()
		if sr.LoadFailed {
			event = logger.Warn().Str("error", sr.LoadError)
		}
		event.
			Str("source", string(source)).
			Int("read", sr.Read).
			Int("valid", sr.Valid).
			Int("rejected", sr.Rejected).
			Int("integrity_failed", sr.IntegrityFailed).
			Int("loaded", sr.Loaded).
			Float64("quality", sr.Quality.Score).
			Msg("source summary")
	}
	logger.Info().
		Str("run_id", report.RunID.String()).
		Str("state", string(report.State)).
		Dur("duration", report.CompletedAt.Sub(report.StartedAt)).
		Float64("overall_quality", report.OverallQuality).
		Msg("run summary")
}
