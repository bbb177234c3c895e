package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/sources"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/warehouse"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/application/services"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/refdata"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/repositories"
	"github.com/zatekoja/nhs-data-integration/pipeline/pkg/retry"
)

// captureBus records published events in memory, keyed by channel
type captureBus struct {
	mu     sync.Mutex
	events map[string][]*entities.PipelineEvent
}

func (b *captureBus) Publish(ctx context.Context, channel string, event *entities.PipelineEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][]*entities.PipelineEvent)
	}
	b.events[channel] = append(b.events[channel], event)
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PipelineEvent, error) {
	return nil, nil
}

func (b *captureBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *captureBus) Close() error { return nil }

func (b *captureBus) byType(channel string, t entities.PipelineEventType) []*entities.PipelineEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []*entities.PipelineEvent
	for _, e := range b.events[channel] {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:     2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffFactor:   1,
		MaxTotalTimeout: time.Second,
	}
}

func newPipeline(sink repositories.Warehouse, recordSources []providers.RecordSource, opts ...services.PipelineOption) *services.PipelineService {
	minDate, _ := time.Parse("2006-01-02", "1900-01-01")
	store := services.NewDimensionStore()
	opts = append(opts, services.WithRetryConfig(fastRetry()))
	return services.NewPipelineService(
		services.NewIdentityService(refdata.Default(), minDate),
		services.NewQualityService(0.5, 0.5),
		services.NewDimensionService(store),
		services.NewFactService(store),
		services.NewIntegrityService(store),
		sink,
		recordSources,
		opts...,
	)
}

func pasRaw(position int, fields map[string]string) entities.RawRecord {
	return entities.RawRecord{Source: entities.SourcePAS, Position: position, Fields: fields}
}

func patientFields(nhsNumber, firstName string) map[string]string {
	return map[string]string{
		"patient_id":    "P-" + nhsNumber,
		"nhs_number":    nhsNumber,
		"first_name":    firstName,
		"last_name":     "Morgan",
		"date_of_birth": "1970-06-01",
		"gender":        "M",
	}
}

func TestPipelineService_Run(t *testing.T) {
	t.Run("loads valid patients and rejects the bad checksum", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		bus := &captureBus{}
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
				pasRaw(2, patientFields("0830166130", "Brendan")),
				pasRaw(3, patientFields("1234567890", "Cheryl")),
			}),
		}, services.WithEventBus(bus))

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)
		assert.Equal(t, entities.StateComplete, pipeline.State())

		sr := report.Sources[entities.SourcePAS]
		require.NotNil(t, sr)
		assert.Equal(t, 3, sr.Read)
		assert.Equal(t, 2, sr.Valid)
		assert.Equal(t, 1, sr.Rejected)
		assert.Equal(t, 1, sr.RejectionReasons[entities.ReasonInvalidChecksum])

		require.Len(t, sink.Patients, 2)
		assert.Equal(t, 1, sink.Patients[0].PatientKey)
		assert.Equal(t, "9434765919", sink.Patients[0].NHSNumber)
		assert.Equal(t, 2, sink.Patients[1].PatientKey)
		assert.Equal(t, "0830166130", sink.Patients[1].NHSNumber)

		completed := bus.byType(providers.EventChannelRuns, entities.EventRunCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, entities.StateComplete, completed[0].State)
		require.NotNil(t, completed[0].Report)

		// the same event also lands on the run-scoped channel
		scoped := bus.byType(providers.GetRunChannel(report.RunID), entities.EventRunCompleted)
		require.Len(t, scoped, 1)
	})

	t.Run("builds facts across sources", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
			sources.NewStaticSource(entities.SourceEHR, []entities.RawRecord{
				{Source: entities.SourceEHR, Position: 1, Fields: map[string]string{
					"encounter_id":           "E100",
					"nhs_number":             "9434765919",
					"encounter_date":         "2024-05-14 10:30:00",
					"encounter_type":         "Outpatient",
					"department":             "Cardiology",
					"clinician_id":           "C100",
					"primary_diagnosis_code": "I10",
				}},
			}),
			sources.NewStaticSource(entities.SourceAppointments, []entities.RawRecord{
				{Source: entities.SourceAppointments, Position: 1, Fields: map[string]string{
					"appointment_id":    "A300",
					"nhs_number":        "9434765919",
					"appointment_date":  "2024-05-20",
					"appointment_type":  "Follow-up",
					"department":        "Cardiology",
					"attendance_status": "Attended",
				}},
			}),
		})

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)

		require.Len(t, sink.Encounters, 1)
		assert.Equal(t, "E100", sink.Encounters[0].EncounterID)
		require.NotNil(t, sink.Encounters[0].DiagnosisKey)

		require.Len(t, sink.Appointments, 1)
		assert.Equal(t, "A300", sink.Appointments[0].AppointmentID)

		// one conformed patient, referenced from both fact tables
		require.Len(t, sink.Patients, 1)
		assert.Equal(t, sink.Patients[0].PatientKey, sink.Encounters[0].PatientKey)
		assert.Equal(t, sink.Patients[0].PatientKey, sink.Appointments[0].PatientKey)

		assert.Len(t, sink.Dates, 2)
	})

	t.Run("malformed lab measures do not fail the run", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
			sources.NewStaticSource(entities.SourceLIMS, []entities.RawRecord{
				{Source: entities.SourceLIMS, Position: 1, Fields: map[string]string{
					"test_id":        "T200",
					"nhs_number":     "9434765919",
					"order_date":     "2024-05-14 08:00:00",
					"test_type":      "HbA1c",
					"test_component": "HbA1c",
					"result_value":   "forty one",
					"status":         "Completed",
				}},
			}),
		})

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)
		require.Len(t, sink.LabTests, 1)
		assert.Nil(t, sink.LabTests[0].ResultValue)
	})

	t.Run("an all-rejected lab batch loads zero lab facts", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		labRow := func(position int, testID, orderDate string) entities.RawRecord {
			// no test_type, so every row is rejected
			return entities.RawRecord{Source: entities.SourceLIMS, Position: position, Fields: map[string]string{
				"test_id":        testID,
				"nhs_number":     "9434765919",
				"order_date":     orderDate,
				"test_component": "HbA1c",
				"result_value":   "41.5",
				"status":         "Completed",
			}}
		}
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
			sources.NewStaticSource(entities.SourceLIMS, []entities.RawRecord{
				labRow(1, "T200", "2024-05-14 08:00:00"),
				labRow(2, "T201", "2024-05-15 08:00:00"),
			}),
			sources.NewStaticSource(entities.SourceAppointments, []entities.RawRecord{
				{Source: entities.SourceAppointments, Position: 1, Fields: map[string]string{
					"appointment_id":    "A300",
					"nhs_number":        "9434765919",
					"appointment_date":  "2024-05-20",
					"appointment_type":  "Follow-up",
					"department":        "Cardiology",
					"attendance_status": "Attended",
				}},
			}),
		})

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)

		lims := report.Sources[entities.SourceLIMS]
		require.NotNil(t, lims)
		assert.Equal(t, 2, lims.Read)
		assert.Equal(t, 0, lims.Valid)
		assert.Equal(t, 2, lims.Rejected)
		assert.Equal(t, 2, lims.RejectionReasons[entities.ReasonMissingField("test_type")])
		assert.Zero(t, lims.Quality.ValidityRate)
		assert.False(t, lims.LoadFailed)
		assert.Equal(t, 0, lims.Loaded)

		// the other sources still load in full
		assert.Empty(t, sink.LabTests)
		assert.Len(t, sink.Patients, 1)
		assert.Len(t, sink.Appointments, 1)
	})

	t.Run("a failing fact sink marks only that source failed", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		sink.FailTables[repositories.TableFactLabTests] = true
		bus := &captureBus{}
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
			sources.NewStaticSource(entities.SourceLIMS, []entities.RawRecord{
				{Source: entities.SourceLIMS, Position: 1, Fields: map[string]string{
					"test_id":        "T200",
					"nhs_number":     "9434765919",
					"order_date":     "2024-05-14 08:00:00",
					"test_type":      "HbA1c",
					"test_component": "HbA1c",
					"result_value":   "41.5",
					"status":         "Completed",
				}},
			}),
		}, services.WithEventBus(bus))

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)

		lims := report.Sources[entities.SourceLIMS]
		require.NotNil(t, lims)
		assert.True(t, lims.LoadFailed)
		assert.NotEmpty(t, lims.LoadError)
		assert.Equal(t, 0, lims.Loaded)

		pas := report.Sources[entities.SourcePAS]
		require.NotNil(t, pas)
		assert.False(t, pas.LoadFailed)
		assert.Equal(t, 1, pas.Loaded)

		assert.Len(t, bus.byType(providers.EventChannelRuns, entities.EventSourceFailed), 1)
	})

	t.Run("a failing dimension sink fails the run", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		sink.FailTables[repositories.TableDimPatient] = true
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
		})

		report, err := pipeline.Run(context.Background())

		require.Error(t, err)
		assert.Equal(t, entities.StateFailed, report.State)
		assert.Equal(t, entities.StateFailed, pipeline.State())
	})

	t.Run("a failing source contributes nothing but does not stop the run", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
			sources.NewFailingSource(entities.SourceLIMS, errors.New("lims export unavailable")),
		})

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, entities.StateComplete, report.State)

		lims := report.Sources[entities.SourceLIMS]
		require.NotNil(t, lims)
		assert.True(t, lims.LoadFailed)
		assert.Equal(t, 0, lims.Read)

		assert.Len(t, sink.Patients, 1)
	})

	t.Run("cancellation stops the run at a stage boundary", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
			}),
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := pipeline.Run(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, entities.StateFailed, report.State)
		assert.Empty(t, sink.Patients)
	})

	t.Run("overall quality weights sources by volume", func(t *testing.T) {
		sink := warehouse.NewMemoryAdapter()
		pipeline := newPipeline(sink, []providers.RecordSource{
			sources.NewStaticSource(entities.SourcePAS, []entities.RawRecord{
				pasRaw(1, patientFields("9434765919", "Amira")),
				pasRaw(2, patientFields("1234567890", "Cheryl")),
			}),
		})

		report, err := pipeline.Run(context.Background())

		require.NoError(t, err)
		assert.Greater(t, report.OverallQuality, 0.0)
		assert.LessOrEqual(t, report.OverallQuality, 1.0)
		assert.Equal(t, report.Sources[entities.SourcePAS].Quality.Score, report.OverallQuality)
	})
}
