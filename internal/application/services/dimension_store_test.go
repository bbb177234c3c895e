package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/application/services"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

func TestDimensionStore_ResolvePatient(t *testing.T) {
	t.Run("assigns sequential surrogate keys", func(t *testing.T) {
		store := services.NewDimensionStore()

		first := store.ResolvePatient(entities.DimPatient{NHSNumber: "9434765919"})
		second := store.ResolvePatient(entities.DimPatient{NHSNumber: "0830166130"})

		assert.Equal(t, 1, first)
		assert.Equal(t, 2, second)
	})

	t.Run("is idempotent for the same natural key", func(t *testing.T) {
		store := services.NewDimensionStore()

		first := store.ResolvePatient(entities.DimPatient{NHSNumber: "9434765919"})
		again := store.ResolvePatient(entities.DimPatient{NHSNumber: "9434765919"})

		assert.Equal(t, first, again)
		assert.Len(t, store.Patients(), 1)
	})

	t.Run("merges attributes last write wins without clearing", func(t *testing.T) {
		store := services.NewDimensionStore()

		store.ResolvePatient(entities.DimPatient{
			NHSNumber: "9434765919",
			FirstName: "Amira",
			LastName:  "Khan",
			Postcode:  "LS1 4AP",
		})
		store.ResolvePatient(entities.DimPatient{
			NHSNumber: "9434765919",
			LastName:  "Khan-Riley",
			City:      "Leeds",
		})

		patients := store.Patients()
		require.Len(t, patients, 1)
		assert.Equal(t, "Amira", patients[0].FirstName)
		assert.Equal(t, "Khan-Riley", patients[0].LastName)
		assert.Equal(t, "LS1 4AP", patients[0].Postcode)
		assert.Equal(t, "Leeds", patients[0].City)
	})

	t.Run("concurrent resolution of one key mints one entry", func(t *testing.T) {
		store := services.NewDimensionStore()

		var wg sync.WaitGroup
		keys := make([]int, 32)
		for i := range keys {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				keys[i] = store.ResolvePatient(entities.DimPatient{NHSNumber: "9434765919"})
			}(i)
		}
		wg.Wait()

		for _, key := range keys {
			assert.Equal(t, 1, key)
		}
		assert.Len(t, store.Patients(), 1)
	})
}

func TestDimensionStore_ResolveDate(t *testing.T) {
	store := services.NewDimensionStore()

	day := time.Date(2024, time.May, 14, 10, 30, 0, 0, time.UTC)
	key := store.ResolveDate(day)

	assert.Equal(t, 20240514, key)
	assert.True(t, store.HasDateKey(key))

	dates := store.Dates()
	require.Len(t, dates, 1)
	assert.Equal(t, "2024-05-14", dates[0].Date)
	assert.Equal(t, 2024, dates[0].Year)
	assert.Equal(t, 2, dates[0].Quarter)
	assert.Equal(t, 5, dates[0].Month)
	assert.Equal(t, 14, dates[0].Day)
	assert.Equal(t, int(time.Tuesday), dates[0].DayOfWeek)

	// same day at a different time resolves to the same entry
	assert.Equal(t, key, store.ResolveDate(day.Add(7*time.Hour)))
	assert.Len(t, store.Dates(), 1)
}

func TestDimensionStore_PopulateDates(t *testing.T) {
	store := services.NewDimensionStore()

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	store.PopulateDates(from, to)

	assert.Len(t, store.Dates(), 31)
	assert.True(t, store.HasDateKey(20240101))
	assert.True(t, store.HasDateKey(20240131))
	assert.False(t, store.HasDateKey(20240201))
}

func TestDimensionStore_OtherDimensions(t *testing.T) {
	store := services.NewDimensionStore()

	t.Run("clinicians are keyed by identifier", func(t *testing.T) {
		key := store.ResolveClinician("C100", "")
		again := store.ResolveClinician("C100", "Dr Patel")

		assert.Equal(t, key, again)
		clinicians := store.Clinicians()
		require.Len(t, clinicians, 1)
		assert.Equal(t, "Dr Patel", clinicians[0].Name)
	})

	t.Run("departments are keyed by name", func(t *testing.T) {
		key := store.ResolveDepartment("Cardiology", "")
		again := store.ResolveDepartment("Cardiology", "Cardiovascular Medicine")

		assert.Equal(t, key, again)
		departments := store.Departments()
		require.Len(t, departments, 1)
		assert.Equal(t, "Cardiovascular Medicine", departments[0].Specialty)
	})

	t.Run("diagnoses are keyed by code", func(t *testing.T) {
		key := store.ResolveDiagnosis("I10", "Essential hypertension")
		again := store.ResolveDiagnosis("I10", "")

		assert.Equal(t, key, again)
		diagnoses := store.Diagnoses()
		require.Len(t, diagnoses, 1)
		assert.Equal(t, "Essential hypertension", diagnoses[0].Description)
	})
}

func TestDimensionService_Build(t *testing.T) {
	store := services.NewDimensionStore()
	svc := services.NewDimensionService(store)

	records := []entities.ValidatedRecord{
		{
			Raw: entities.RawRecord{
				Source: entities.SourcePAS,
				Fields: map[string]string{
					"nhs_number": "9434765919",
					"first_name": "Amira",
					"last_name":  "Khan",
				},
			},
			Valid:      true,
			NaturalKey: "9434765919",
		},
		{
			Raw: entities.RawRecord{
				Source: entities.SourceEHR,
				Fields: map[string]string{
					"nhs_number":             "0830166130",
					"encounter_date":         "2024-05-14 10:30:00",
					"clinician_id":           "C100",
					"department":             "Cardiology",
					"primary_diagnosis_code": "I10",
				},
			},
			Valid:      true,
			NaturalKey: "0830166130",
		},
		{
			Raw: entities.RawRecord{
				Source: entities.SourcePAS,
				Fields: map[string]string{"nhs_number": "1234567890"},
			},
			Valid:      false,
			Violations: []string{entities.ReasonInvalidChecksum},
			NaturalKey: "1234567890",
		},
	}

	svc.Build(records)

	t.Run("valid records produce dimension entries", func(t *testing.T) {
		assert.Len(t, store.Patients(), 2)
		assert.True(t, store.HasDateKey(20240514))

		_, ok := store.LookupClinicianKey("C100")
		assert.True(t, ok)
		_, ok = store.LookupDepartmentKey("Cardiology")
		assert.True(t, ok)
		_, ok = store.LookupDiagnosisKey("I10")
		assert.True(t, ok)
	})

	t.Run("rejected records never reach the dimensions", func(t *testing.T) {
		_, ok := store.LookupPatientKey("1234567890")
		assert.False(t, ok)
	})

	t.Run("rebuilding the same batch changes nothing", func(t *testing.T) {
		svc.Build(records)

		assert.Len(t, store.Patients(), 2)
		assert.Len(t, store.Clinicians(), 1)
		assert.Len(t, store.Departments(), 1)
		assert.Len(t, store.Diagnoses(), 1)
	})
}
