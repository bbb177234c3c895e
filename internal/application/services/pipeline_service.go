package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/repositories"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/infrastructure/observability"
	"github.com/zatekoja/nhs-data-integration/pipeline/pkg/retry"
)

// RejectWriter receives rejected records for offline audit. Implementations
// must tolerate being handed records from multiple goroutines.
type RejectWriter interface {
	WriteReject(record entities.ValidatedRecord) error
	Close() error
}

// PipelineService orchestrates one Extract → Validate → Transform → Load →
// Verify run. Sources are processed concurrently where they share no
// mutable state; the dimension store serializes the one shared resource.
// A single source's failure marks that source failed and the run carries
// on (partial-failure semantics); only resource-level failures such as an
// unreachable sink move the run to the Failed state.
type PipelineService struct {
	identity  *IdentityService
	quality   *QualityService
	dims      *DimensionService
	facts     *FactService
	integrity *IntegrityService
	warehouse repositories.Warehouse
	sources   []providers.RecordSource

	// optional collaborators, all nil-safe
	eventBus providers.EventBus
	metrics  *observability.Metrics
	rejects  RejectWriter

	loadTimeout time.Duration
	retryCfg    retry.Config
	workers     int

	mu    sync.Mutex
	state entities.PipelineState
}

// PipelineOption configures optional orchestrator collaborators
type PipelineOption func(*PipelineService)

// WithEventBus publishes stage transitions and the final report to a bus
func WithEventBus(bus providers.EventBus) PipelineOption {
	return func(s *PipelineService) { s.eventBus = bus }
}

// WithMetrics records pipeline counters and stage durations
func WithMetrics(metrics *observability.Metrics) PipelineOption {
	return func(s *PipelineService) { s.metrics = metrics }
}

// WithRejectWriter streams rejected records to an audit writer
func WithRejectWriter(w RejectWriter) PipelineOption {
	return func(s *PipelineService) { s.rejects = w }
}

// WithLoadTimeout bounds each sink write
func WithLoadTimeout(d time.Duration) PipelineOption {
	return func(s *PipelineService) { s.loadTimeout = d }
}

// WithRetryConfig overrides the sink write retry policy
func WithRetryConfig(cfg retry.Config) PipelineOption {
	return func(s *PipelineService) { s.retryCfg = cfg }
}

// WithWorkers caps how many sources are processed concurrently per stage
func WithWorkers(n int) PipelineOption {
	return func(s *PipelineService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewPipelineService wires the orchestrator
func NewPipelineService(
	identity *IdentityService,
	quality *QualityService,
	dims *DimensionService,
	facts *FactService,
	integrity *IntegrityService,
	warehouse repositories.Warehouse,
	sources []providers.RecordSource,
	opts ...PipelineOption,
) *PipelineService {
	s := &PipelineService{
		identity:    identity,
		quality:     quality,
		dims:        dims,
		facts:       facts,
		integrity:   integrity,
		warehouse:   warehouse,
		sources:     sources,
		loadTimeout: 60 * time.Second,
		retryCfg:    retry.DefaultConfig(),
		workers:     4,
		state:       entities.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the orchestrator's current state
func (s *PipelineService) State() entities.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes one full pipeline run and returns the immutable run report.
// Cancellation is cooperative: the context is checked at stage boundaries,
// not mid-record.
func (s *PipelineService) Run(ctx context.Context) (*entities.RunReport, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	defer span.End()

	report := &entities.RunReport{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		Sources:   make(map[entities.SourceType]*entities.SourceReport),
	}

	batches, err := s.extract(ctx, report)
	if err != nil {
		return s.fail(ctx, report, err)
	}

	validated, err := s.validate(ctx, report, batches)
	if err != nil {
		return s.fail(ctx, report, err)
	}

	factSet, err := s.transform(ctx, report, validated)
	if err != nil {
		return s.fail(ctx, report, err)
	}

	if err := s.load(ctx, report, factSet); err != nil {
		return s.fail(ctx, report, err)
	}

	if err := s.verify(ctx, report); err != nil {
		return s.fail(ctx, report, err)
	}

	s.setState(ctx, report.RunID, entities.StateComplete)
	report.State = entities.StateComplete
	report.CompletedAt = time.Now()
	report.OverallQuality = overallQuality(report)

	s.publishReport(ctx, report)
	log.Info().
		Str("run_id", report.RunID.String()).
		Int("records_read", report.TotalRead()).
		Int("rows_loaded", report.TotalLoaded()).
		Float64("overall_quality", report.OverallQuality).
		Msg("pipeline run complete")

	return report, nil
}

// extract reads every source's raw records. A source whose read fails is
// marked failed and contributes an empty batch; the run continues.
func (s *PipelineService) extract(ctx context.Context, report *entities.RunReport) (map[entities.SourceType][]entities.RawRecord, error) {
	if err := s.setState(ctx, report.RunID, entities.StateExtracting); err != nil {
		return nil, err
	}
	started := time.Now()

	batches := make(map[entities.SourceType][]entities.RawRecord, len(s.sources))
	var mu sync.Mutex
	var wg sync.WaitGroup
	slots := make(chan struct{}, s.workers)

	for _, source := range s.sources {
		wg.Add(1)
		go func(src providers.RecordSource) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			records, err := src.Read(ctx)

			mu.Lock()
			defer mu.Unlock()
			sr := report.SourceReportFor(src.Source())
			if err != nil {
				sr.LoadFailed = true
				sr.LoadError = err.Error()
				log.Error().Err(err).Str("source", string(src.Source())).Msg("source extract failed")
				return
			}
			sr.Read = len(records)
			batches[src.Source()] = records
		}(source)
	}
	wg.Wait()

	s.metrics.RecordStage(ctx, string(entities.StateExtracting), time.Since(started))
	return batches, nil
}

// validate runs identity validation and quality scoring per source, fully
// parallel since sources share no mutable state here
func (s *PipelineService) validate(ctx context.Context, report *entities.RunReport, batches map[entities.SourceType][]entities.RawRecord) (map[entities.SourceType][]entities.ValidatedRecord, error) {
	if err := s.setState(ctx, report.RunID, entities.StateValidating); err != nil {
		return nil, err
	}
	started := time.Now()

	validated := make(map[entities.SourceType][]entities.ValidatedRecord, len(batches))
	var mu sync.Mutex
	var wg sync.WaitGroup
	slots := make(chan struct{}, s.workers)

	for source, batch := range batches {
		wg.Add(1)
		go func(source entities.SourceType, batch []entities.RawRecord) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			records := s.identity.ValidateBatch(batch)
			quality := s.quality.Score(records)

			valid, rejected := 0, 0
			reasons := make(map[string]int)
			for _, record := range records {
				if record.Valid {
					valid++
					continue
				}
				rejected++
				for _, reason := range record.Violations {
					reasons[reason]++
				}
				s.writeReject(record)
			}

			mu.Lock()
			defer mu.Unlock()
			validated[source] = records
			sr := report.SourceReportFor(source)
			sr.Valid = valid
			sr.Rejected = rejected
			sr.Quality = quality
			for reason, count := range reasons {
				sr.RejectionReasons[reason] += count
			}
			s.metrics.RecordSourceCounts(ctx, string(source), int64(len(batch)), int64(valid), int64(rejected))
		}(source, batch)
	}
	wg.Wait()

	s.metrics.RecordStage(ctx, string(entities.StateValidating), time.Since(started))
	return validated, nil
}

// factSet gathers the fact rows surviving the integrity check, per table
type factSet struct {
	encounters   []entities.FactEncounter
	labTests     []entities.FactLabTest
	appointments []entities.FactAppointment
}

// transform builds dimensions across all sources, then facts behind an
// explicit barrier so fact builders only ever read completed dimension
// state, then runs the integrity verification pass
func (s *PipelineService) transform(ctx context.Context, report *entities.RunReport, validated map[entities.SourceType][]entities.ValidatedRecord) (*factSet, error) {
	if err := s.setState(ctx, report.RunID, entities.StateTransforming); err != nil {
		return nil, err
	}
	started := time.Now()

	// dimension pass: per-source workers, serialized inside the store
	var wg sync.WaitGroup
	for _, records := range validated {
		wg.Add(1)
		go func(records []entities.ValidatedRecord) {
			defer wg.Done()
			s.dims.Build(records)
		}(records)
	}
	// barrier: no fact is built until every dimension worker is done
	wg.Wait()

	set := &factSet{}
	var mu sync.Mutex
	for source, records := range validated {
		wg.Add(1)
		go func(source entities.SourceType, records []entities.ValidatedRecord) {
			defer wg.Done()
			built, unresolved := s.buildFacts(source, records)

			mu.Lock()
			defer mu.Unlock()
			set.encounters = append(set.encounters, built.encounters...)
			set.labTests = append(set.labTests, built.labTests...)
			set.appointments = append(set.appointments, built.appointments...)
			sr := report.SourceReportFor(source)
			sr.FactsBuilt = len(built.encounters) + len(built.labTests) + len(built.appointments)
			sr.IntegrityFailed += unresolved
		}(source, records)
	}
	wg.Wait()

	s.checkIntegrity(report, set)

	s.metrics.RecordStage(ctx, string(entities.StateTransforming), time.Since(started))
	return set, nil
}

func (s *PipelineService) buildFacts(source entities.SourceType, records []entities.ValidatedRecord) (*factSet, int) {
	set := &factSet{}
	unresolved := 0
	for _, record := range records {
		if !record.Valid {
			continue
		}

		var err error
		switch source {
		case entities.SourceEHR:
			var fact *entities.FactEncounter
			if fact, err = s.facts.BuildEncounter(record); err == nil {
				set.encounters = append(set.encounters, *fact)
			}
		case entities.SourceLIMS:
			var fact *entities.FactLabTest
			if fact, err = s.facts.BuildLabTest(record); err == nil {
				set.labTests = append(set.labTests, *fact)
			}
		case entities.SourceAppointments:
			var fact *entities.FactAppointment
			if fact, err = s.facts.BuildAppointment(record); err == nil {
				set.appointments = append(set.appointments, *fact)
			}
		default:
			// PAS records feed the patient dimension only
		}

		if err != nil {
			// invariant violation: fatal for the row, never for the run
			unresolved++
			log.Error().Err(err).
				Str("source", string(source)).
				Int("row", record.Raw.Position).
				Msg("fact row excluded")
		}
	}
	return set, unresolved
}

func (s *PipelineService) checkIntegrity(report *entities.RunReport, set *factSet) {
	var result IntegrityResult

	set.encounters, result = s.integrity.CheckEncounters(set.encounters)
	report.SourceReportFor(entities.SourceEHR).IntegrityFailed += result.Failed

	set.labTests, result = s.integrity.CheckLabTests(set.labTests)
	report.SourceReportFor(entities.SourceLIMS).IntegrityFailed += result.Failed

	set.appointments, result = s.integrity.CheckAppointments(set.appointments)
	report.SourceReportFor(entities.SourceAppointments).IntegrityFailed += result.Failed
}

// load writes dimensions then facts. A dimension write failure is
// unrecoverable (every fact table references them); a fact table failure
// marks only that source as failed.
func (s *PipelineService) load(ctx context.Context, report *entities.RunReport, set *factSet) error {
	if err := s.setState(ctx, report.RunID, entities.StateLoading); err != nil {
		return err
	}
	started := time.Now()
	store := s.dims.Store()

	if err := s.writeTable(ctx, repositories.TableDimPatient, len(store.Patients()), func(writeCtx context.Context) error {
		return s.warehouse.WriteDimPatients(writeCtx, repositories.WriteModeReplace, store.Patients())
	}); err != nil {
		return fmt.Errorf("load %s: %w", repositories.TableDimPatient, err)
	}
	if err := s.writeTable(ctx, repositories.TableDimDate, len(store.Dates()), func(writeCtx context.Context) error {
		return s.warehouse.WriteDimDates(writeCtx, repositories.WriteModeReplace, store.Dates())
	}); err != nil {
		return fmt.Errorf("load %s: %w", repositories.TableDimDate, err)
	}
	if err := s.writeTable(ctx, repositories.TableDimClinician, len(store.Clinicians()), func(writeCtx context.Context) error {
		return s.warehouse.WriteDimClinicians(writeCtx, repositories.WriteModeReplace, store.Clinicians())
	}); err != nil {
		return fmt.Errorf("load %s: %w", repositories.TableDimClinician, err)
	}
	if err := s.writeTable(ctx, repositories.TableDimDepartment, len(store.Departments()), func(writeCtx context.Context) error {
		return s.warehouse.WriteDimDepartments(writeCtx, repositories.WriteModeReplace, store.Departments())
	}); err != nil {
		return fmt.Errorf("load %s: %w", repositories.TableDimDepartment, err)
	}
	if err := s.writeTable(ctx, repositories.TableDimDiagnosis, len(store.Diagnoses()), func(writeCtx context.Context) error {
		return s.warehouse.WriteDimDiagnoses(writeCtx, repositories.WriteModeReplace, store.Diagnoses())
	}); err != nil {
		return fmt.Errorf("load %s: %w", repositories.TableDimDiagnosis, err)
	}

	// the patient source's load is its dimension table
	report.SourceReportFor(entities.SourcePAS).Loaded = len(store.Patients())

	s.loadFactTable(ctx, report, entities.SourceEHR, repositories.TableFactEncounters, len(set.encounters), func(writeCtx context.Context) error {
		return s.warehouse.WriteFactEncounters(writeCtx, repositories.WriteModeReplace, set.encounters)
	})
	s.loadFactTable(ctx, report, entities.SourceLIMS, repositories.TableFactLabTests, len(set.labTests), func(writeCtx context.Context) error {
		return s.warehouse.WriteFactLabTests(writeCtx, repositories.WriteModeReplace, set.labTests)
	})
	s.loadFactTable(ctx, report, entities.SourceAppointments, repositories.TableFactAppointments, len(set.appointments), func(writeCtx context.Context) error {
		return s.warehouse.WriteFactAppointments(writeCtx, repositories.WriteModeReplace, set.appointments)
	})

	s.metrics.RecordStage(ctx, string(entities.StateLoading), time.Since(started))
	return nil
}

func (s *PipelineService) loadFactTable(ctx context.Context, report *entities.RunReport, source entities.SourceType, table string, rows int, write func(context.Context) error) {
	sr := report.SourceReportFor(source)
	if err := s.writeTable(ctx, table, rows, write); err != nil {
		sr.LoadFailed = true
		sr.LoadError = err.Error()
		log.Error().Err(err).Str("table", table).Msg("fact load failed, continuing with other sources")
		s.publishSourceFailed(ctx, report.RunID, source)
		return
	}
	sr.Loaded = rows
}

// writeTable performs one bounded, retried sink write
func (s *PipelineService) writeTable(ctx context.Context, table string, rows int, write func(context.Context) error) error {
	err := retry.Do(ctx, s.retryCfg, func() error {
		writeCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
		defer cancel()
		return write(writeCtx)
	})
	if err != nil {
		return err
	}
	s.metrics.RecordLoaded(ctx, table, int64(rows))
	return nil
}

// verify re-reads sink table counts to confirm loaded volumes
func (s *PipelineService) verify(ctx context.Context, report *entities.RunReport) error {
	if err := s.setState(ctx, report.RunID, entities.StateVerifying); err != nil {
		return err
	}
	started := time.Now()

	counts, err := s.warehouse.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("verify warehouse: %w", err)
	}

	expected := map[string]entities.SourceType{
		repositories.TableFactEncounters:   entities.SourceEHR,
		repositories.TableFactLabTests:     entities.SourceLIMS,
		repositories.TableFactAppointments: entities.SourceAppointments,
	}
	for table, source := range expected {
		sr := report.SourceReportFor(source)
		if sr.LoadFailed {
			continue
		}
		if counts[table] != sr.Loaded {
			log.Warn().
				Str("table", table).
				Int("loaded", sr.Loaded).
				Int("counted", counts[table]).
				Msg("verification count mismatch")
		}
	}

	s.metrics.RecordStage(ctx, string(entities.StateVerifying), time.Since(started))
	return nil
}

func (s *PipelineService) fail(ctx context.Context, report *entities.RunReport, err error) (*entities.RunReport, error) {
	s.setFailedState(ctx, report.RunID)
	report.State = entities.StateFailed
	report.CompletedAt = time.Now()
	report.OverallQuality = overallQuality(report)
	s.publishReport(ctx, report)
	log.Error().Err(err).Str("run_id", report.RunID.String()).Msg("pipeline run failed")
	return report, err
}

// setState transitions the state machine, checking for cooperative
// cancellation at the stage boundary
func (s *PipelineService) setState(ctx context.Context, runID uuid.UUID, state entities.PipelineState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	log.Info().Str("run_id", runID.String()).Str("state", string(state)).Msg("pipeline stage")
	s.publishEvent(ctx, entities.NewPipelineEvent(runID, entities.EventStageChanged, state))
	return nil
}

func (s *PipelineService) setFailedState(ctx context.Context, runID uuid.UUID) {
	s.mu.Lock()
	s.state = entities.StateFailed
	s.mu.Unlock()
	s.publishEvent(ctx, entities.NewPipelineEvent(runID, entities.EventStageChanged, entities.StateFailed))
}

func (s *PipelineService) publishSourceFailed(ctx context.Context, runID uuid.UUID, source entities.SourceType) {
	event := entities.NewPipelineEvent(runID, entities.EventSourceFailed, s.State())
	event.Source = source
	s.publishEvent(ctx, event)
}

func (s *PipelineService) publishReport(ctx context.Context, report *entities.RunReport) {
	event := entities.NewPipelineEvent(report.RunID, entities.EventRunCompleted, report.State)
	event.Report = report
	s.publishEvent(ctx, event)
}

// publishEvent fans an event out to the firehose channel and to the
// run-scoped channel consumers subscribe to for a single run
func (s *PipelineService) publishEvent(ctx context.Context, event *entities.PipelineEvent) {
	if s.eventBus == nil {
		return
	}
	channels := []string{providers.EventChannelRuns, providers.GetRunChannel(event.RunID)}
	for _, channel := range channels {
		if err := s.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Str("event", string(event.Type)).Msg("event publish failed")
		}
	}
}

func (s *PipelineService) writeReject(record entities.ValidatedRecord) {
	if s.rejects == nil {
		return
	}
	if err := s.rejects.WriteReject(record); err != nil {
		log.Warn().Err(err).Msg("reject audit write failed")
	}
}

// overallQuality is the read-count weighted mean of per-source scores
func overallQuality(report *entities.RunReport) float64 {
	totalRead := 0
	var weighted float64
	for _, sr := range report.Sources {
		if sr.Read == 0 {
			continue
		}
		totalRead += sr.Read
		weighted += sr.Quality.Score * float64(sr.Read)
	}
	if totalRead == 0 {
		return 1
	}
	return weighted / float64(totalRead)
}
