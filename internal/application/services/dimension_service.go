package services

import (
	"time"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/refdata"
)

// DimensionService builds conformed dimension entries from validated
// records. For each record it resolves every dimension the record
// touches; the store serializes surrogate-key assignment, so Build may be
// called concurrently from per-source workers.
type DimensionService struct {
	store *DimensionStore
}

// NewDimensionService creates a dimension builder over the given store
func NewDimensionService(store *DimensionStore) *DimensionService {
	return &DimensionService{store: store}
}

// Store returns the dimension store handle
func (s *DimensionService) Store() *DimensionStore {
	return s.store
}

// Build resolves dimension entries for every valid record in the batch.
// Invalid records never reach the dimension tables.
func (s *DimensionService) Build(records []entities.ValidatedRecord) {
	for _, record := range records {
		if !record.Valid {
			continue
		}
		s.buildOne(record)
	}
}

func (s *DimensionService) buildOne(record entities.ValidatedRecord) {
	raw := record.Raw

	switch raw.Source {
	case entities.SourcePAS:
		s.store.ResolvePatient(entities.DimPatient{
			NHSNumber:   record.NaturalKey,
			PatientID:   raw.Field("patient_id"),
			Title:       raw.Field("title"),
			FirstName:   raw.Field("first_name"),
			LastName:    raw.Field("last_name"),
			DateOfBirth: raw.Field("date_of_birth"),
			Gender:      raw.Field("gender"),
			Ethnicity:   raw.Field("ethnicity"),
			Postcode:    raw.Field("postcode"),
			City:        raw.Field("city"),
		})

	case entities.SourceEHR:
		s.store.ResolvePatient(entities.DimPatient{NHSNumber: record.NaturalKey})
		s.resolveDate(raw.Field("encounter_date"), refdata.LayoutDateTime)
		if id := raw.Field("clinician_id"); id != "" {
			s.store.ResolveClinician(id, "")
		}
		if dept := raw.Field("department"); dept != "" {
			s.store.ResolveDepartment(dept, "")
		}
		if code := raw.Field("primary_diagnosis_code"); code != "" {
			s.store.ResolveDiagnosis(code, raw.Field("primary_diagnosis_description"))
		}

	case entities.SourceLIMS:
		s.store.ResolvePatient(entities.DimPatient{NHSNumber: record.NaturalKey})
		s.resolveDate(raw.Field("order_date"), refdata.LayoutDateTime)
		if id := raw.Field("ordering_clinician"); id != "" {
			s.store.ResolveClinician(id, "")
		}

	case entities.SourceAppointments:
		s.store.ResolvePatient(entities.DimPatient{NHSNumber: record.NaturalKey})
		s.resolveDate(raw.Field("appointment_date"), refdata.LayoutDate)
		if id := raw.Field("clinician_id"); id != "" {
			s.store.ResolveClinician(id, raw.Field("clinician_name"))
		}
		if dept := raw.Field("department"); dept != "" {
			s.store.ResolveDepartment(dept, raw.Field("specialty"))
		}
	}
}

func (s *DimensionService) resolveDate(value, layout string) {
	if value == "" {
		return
	}
	parsed, err := time.Parse(layout, value)
	if err != nil {
		// validation already flagged unparseable dates; nothing to resolve
		return
	}
	s.store.ResolveDate(parsed)
}
