package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/application/services"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

func seededStore(t *testing.T) *services.DimensionStore {
	t.Helper()
	store := services.NewDimensionStore()
	store.ResolvePatient(entities.DimPatient{NHSNumber: "9434765919"})
	store.ResolveDate(time.Date(2024, time.May, 14, 0, 0, 0, 0, time.UTC))
	store.ResolveClinician("C100", "Dr Patel")
	store.ResolveDepartment("Cardiology", "Cardiovascular Medicine")
	store.ResolveDiagnosis("I10", "Essential hypertension")
	return store
}

func encounterRecord(overrides map[string]string) entities.ValidatedRecord {
	fields := map[string]string{
		"encounter_id":           "E100",
		"nhs_number":             "9434765919",
		"encounter_date":         "2024-05-14 10:30:00",
		"encounter_type":         "Outpatient",
		"department":             "Cardiology",
		"clinician_id":           "C100",
		"primary_diagnosis_code": "I10",
		"length_of_stay_days":    "3",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return entities.ValidatedRecord{
		Raw:        entities.RawRecord{Source: entities.SourceEHR, Position: 1, Fields: fields},
		Valid:      true,
		NaturalKey: fields["nhs_number"],
	}
}

func TestFactService_BuildEncounter(t *testing.T) {
	t.Run("resolves every key", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		fact, err := svc.BuildEncounter(encounterRecord(nil))

		require.NoError(t, err)
		assert.Equal(t, "E100", fact.EncounterID)
		assert.Equal(t, 1, fact.PatientKey)
		assert.Equal(t, 20240514, fact.DateKey)
		require.NotNil(t, fact.ClinicianKey)
		require.NotNil(t, fact.DepartmentKey)
		require.NotNil(t, fact.DiagnosisKey)
		require.NotNil(t, fact.LengthOfStayDays)
		assert.Equal(t, 3, *fact.LengthOfStayDays)
		assert.Empty(t, fact.Flags)
	})

	t.Run("missing attributes leave optional keys nil", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		fact, err := svc.BuildEncounter(encounterRecord(map[string]string{
			"clinician_id":           "",
			"primary_diagnosis_code": "",
			"length_of_stay_days":    "",
		}))

		require.NoError(t, err)
		assert.Nil(t, fact.ClinicianKey)
		assert.Nil(t, fact.DiagnosisKey)
		assert.Nil(t, fact.LengthOfStayDays)
	})

	t.Run("unknown patient is an unresolved reference", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		record := encounterRecord(map[string]string{"nhs_number": "0830166130"})
		_, err := svc.BuildEncounter(record)

		require.Error(t, err)
		appErr, ok := err.(*apperrors.AppError)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrorTypeUnresolvedReference, appErr.Type)
	})

	t.Run("unknown clinician is an unresolved reference", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		_, err := svc.BuildEncounter(encounterRecord(map[string]string{"clinician_id": "C999"}))

		require.Error(t, err)
	})

	t.Run("unpopulated date is an unresolved reference", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		_, err := svc.BuildEncounter(encounterRecord(map[string]string{"encounter_date": "2023-01-01 09:00:00"}))

		require.Error(t, err)
	})

	t.Run("unparseable measure nulls the value and flags the row", func(t *testing.T) {
		store := seededStore(t)
		svc := services.NewFactService(store)

		fact, err := svc.BuildEncounter(encounterRecord(map[string]string{"length_of_stay_days": "three"}))

		require.NoError(t, err)
		assert.Nil(t, fact.LengthOfStayDays)
		assert.Contains(t, fact.Flags, entities.MeasureUnparseable)
	})
}

func TestFactService_BuildLabTest(t *testing.T) {
	store := seededStore(t)
	svc := services.NewFactService(store)

	record := entities.ValidatedRecord{
		Raw: entities.RawRecord{
			Source:   entities.SourceLIMS,
			Position: 4,
			Fields: map[string]string{
				"test_id":            "T200",
				"nhs_number":         "9434765919",
				"order_date":         "2024-05-14 08:00:00",
				"ordering_clinician": "C100",
				"test_type":          "HbA1c",
				"test_component":     "HbA1c",
				"result_value":       "41.5",
				"unit":               "mmol/mol",
				"is_abnormal":        "false",
				"status":             "Completed",
			},
		},
		Valid:      true,
		NaturalKey: "9434765919",
	}

	fact, err := svc.BuildLabTest(record)

	require.NoError(t, err)
	assert.Equal(t, "T200", fact.TestID)
	assert.Equal(t, 20240514, fact.DateKey)
	require.NotNil(t, fact.ResultValue)
	assert.Equal(t, 41.5, *fact.ResultValue)
	require.NotNil(t, fact.IsAbnormal)
	assert.False(t, *fact.IsAbnormal)

	t.Run("pending result stays null without flagging", func(t *testing.T) {
		pending := record
		pending.Raw.Fields = map[string]string{}
		for k, v := range record.Raw.Fields {
			pending.Raw.Fields[k] = v
		}
		pending.Raw.Fields["result_value"] = ""
		pending.Raw.Fields["is_abnormal"] = ""
		pending.Raw.Fields["status"] = "Pending"

		fact, err := svc.BuildLabTest(pending)

		require.NoError(t, err)
		assert.Nil(t, fact.ResultValue)
		assert.Nil(t, fact.IsAbnormal)
		assert.Empty(t, fact.Flags)
	})
}

func TestFactService_BuildAppointment(t *testing.T) {
	store := seededStore(t)
	svc := services.NewFactService(store)

	record := entities.ValidatedRecord{
		Raw: entities.RawRecord{
			Source:   entities.SourceAppointments,
			Position: 7,
			Fields: map[string]string{
				"appointment_id":    "A300",
				"nhs_number":        "9434765919",
				"appointment_date":  "2024-05-14",
				"clinician_id":      "C100",
				"department":        "Cardiology",
				"appointment_type":  "Follow-up",
				"specialty":         "Cardiology",
				"duration_minutes":  "20",
				"wait_time_minutes": "n/a",
				"attendance_status": "Attended",
			},
		},
		Valid:      true,
		NaturalKey: "9434765919",
	}

	fact, err := svc.BuildAppointment(record)

	require.NoError(t, err)
	assert.Equal(t, "A300", fact.AppointmentID)
	require.NotNil(t, fact.DurationMinutes)
	assert.Equal(t, 20, *fact.DurationMinutes)
	assert.Nil(t, fact.WaitTimeMinutes)
	assert.Contains(t, fact.Flags, entities.MeasureUnparseable)
}
