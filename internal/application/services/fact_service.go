package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/refdata"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

// FactService produces fact rows from validated records, resolving
// natural keys through the dimension store's read-only lookups. A missing
// dimension entry is a pipeline invariant violation: the row is rejected
// with an UNRESOLVED_REFERENCE error, never retried.
type FactService struct {
	store *DimensionStore
}

// NewFactService creates a fact builder over the given dimension store
func NewFactService(store *DimensionStore) *FactService {
	return &FactService{store: store}
}

// BuildEncounter builds an encounter fact row from a valid EHR record
func (s *FactService) BuildEncounter(record entities.ValidatedRecord) (*entities.FactEncounter, error) {
	raw := record.Raw

	patientKey, err := s.patientKey(record)
	if err != nil {
		return nil, err
	}
	dateKey, err := s.dateKey(raw, "encounter_date", refdata.LayoutDateTime)
	if err != nil {
		return nil, err
	}

	clinicianKey, err := s.optionalClinicianKey(raw.Field("clinician_id"))
	if err != nil {
		return nil, err
	}
	departmentKey, err := s.optionalDepartmentKey(raw.Field("department"))
	if err != nil {
		return nil, err
	}
	diagnosisKey, err := s.optionalDiagnosisKey(raw.Field("primary_diagnosis_code"))
	if err != nil {
		return nil, err
	}

	fact := &entities.FactEncounter{
		EncounterID:   raw.Field("encounter_id"),
		PatientKey:    patientKey,
		DateKey:       dateKey,
		ClinicianKey:  clinicianKey,
		DepartmentKey: departmentKey,
		DiagnosisKey:  diagnosisKey,
		EncounterType: raw.Field("encounter_type"),
		Disposition:   raw.Field("disposition"),
		NHSNumber:     record.NaturalKey,
	}
	fact.LengthOfStayDays, fact.Flags = intMeasure(raw, "length_of_stay_days", fact.Flags)

	return fact, nil
}

// BuildLabTest builds a lab test fact row from a valid LIMS record
func (s *FactService) BuildLabTest(record entities.ValidatedRecord) (*entities.FactLabTest, error) {
	raw := record.Raw

	patientKey, err := s.patientKey(record)
	if err != nil {
		return nil, err
	}
	dateKey, err := s.dateKey(raw, "order_date", refdata.LayoutDateTime)
	if err != nil {
		return nil, err
	}
	clinicianKey, err := s.optionalClinicianKey(raw.Field("ordering_clinician"))
	if err != nil {
		return nil, err
	}

	fact := &entities.FactLabTest{
		TestID:        raw.Field("test_id"),
		PatientKey:    patientKey,
		DateKey:       dateKey,
		ClinicianKey:  clinicianKey,
		TestType:      raw.Field("test_type"),
		TestComponent: raw.Field("test_component"),
		Unit:          raw.Field("unit"),
		Status:        raw.Field("status"),
		NHSNumber:     record.NaturalKey,
	}
	fact.ResultValue, fact.Flags = floatMeasure(raw, "result_value", fact.Flags)
	fact.IsAbnormal = boolField(raw, "is_abnormal")

	return fact, nil
}

// BuildAppointment builds an appointment fact row from a valid record
func (s *FactService) BuildAppointment(record entities.ValidatedRecord) (*entities.FactAppointment, error) {
	raw := record.Raw

	patientKey, err := s.patientKey(record)
	if err != nil {
		return nil, err
	}
	dateKey, err := s.dateKey(raw, "appointment_date", refdata.LayoutDate)
	if err != nil {
		return nil, err
	}
	clinicianKey, err := s.optionalClinicianKey(raw.Field("clinician_id"))
	if err != nil {
		return nil, err
	}
	departmentKey, err := s.optionalDepartmentKey(raw.Field("department"))
	if err != nil {
		return nil, err
	}

	fact := &entities.FactAppointment{
		AppointmentID:    raw.Field("appointment_id"),
		PatientKey:       patientKey,
		DateKey:          dateKey,
		ClinicianKey:     clinicianKey,
		DepartmentKey:    departmentKey,
		AppointmentType:  raw.Field("appointment_type"),
		Specialty:        raw.Field("specialty"),
		AttendanceStatus: raw.Field("attendance_status"),
		NHSNumber:        record.NaturalKey,
	}
	fact.DurationMinutes, fact.Flags = intMeasure(raw, "duration_minutes", fact.Flags)
	fact.WaitTimeMinutes, fact.Flags = intMeasure(raw, "wait_time_minutes", fact.Flags)

	return fact, nil
}

func (s *FactService) patientKey(record entities.ValidatedRecord) (int, error) {
	key, ok := s.store.LookupPatientKey(record.NaturalKey)
	if !ok {
		return 0, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("no patient dimension entry for nhs number %q (%s row %d)",
				record.NaturalKey, record.Raw.Source, record.Raw.Position))
	}
	return key, nil
}

func (s *FactService) dateKey(raw entities.RawRecord, field, layout string) (int, error) {
	value := raw.Field(field)
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return 0, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("unparseable %s %q (%s row %d)", field, value, raw.Source, raw.Position))
	}
	key := entities.DateKeyFor(parsed)
	if !s.store.HasDateKey(key) {
		return 0, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("no date dimension entry for key %d (%s row %d)", key, raw.Source, raw.Position))
	}
	return key, nil
}

func (s *FactService) optionalClinicianKey(clinicianID string) (*int, error) {
	if clinicianID == "" {
		return nil, nil
	}
	key, ok := s.store.LookupClinicianKey(clinicianID)
	if !ok {
		return nil, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("no clinician dimension entry for %q", clinicianID))
	}
	return &key, nil
}

func (s *FactService) optionalDepartmentKey(name string) (*int, error) {
	if name == "" {
		return nil, nil
	}
	key, ok := s.store.LookupDepartmentKey(name)
	if !ok {
		return nil, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("no department dimension entry for %q", name))
	}
	return &key, nil
}

func (s *FactService) optionalDiagnosisKey(code string) (*int, error) {
	if code == "" {
		return nil, nil
	}
	key, ok := s.store.LookupDiagnosisKey(code)
	if !ok {
		return nil, apperrors.NewUnresolvedReferenceError(
			fmt.Sprintf("no diagnosis dimension entry for %q", code))
	}
	return &key, nil
}

// intMeasure coerces an integer measure field. An unparseable value nulls
// the measure and flags the row instead of rejecting it.
func intMeasure(raw entities.RawRecord, field string, flags []string) (*int, []string) {
	value := raw.Field(field)
	if value == "" {
		return nil, flags
	}
	// sources sometimes emit whole numbers with a decimal point
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, append(flags, entities.MeasureUnparseable)
	}
	n := int(parsed)
	return &n, flags
}

// floatMeasure coerces a decimal measure field with the same null-and-flag
// policy as intMeasure
func floatMeasure(raw entities.RawRecord, field string, flags []string) (*float64, []string) {
	value := raw.Field(field)
	if value == "" {
		return nil, flags
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, append(flags, entities.MeasureUnparseable)
	}
	return &parsed, flags
}

func boolField(raw entities.RawRecord, field string) *bool {
	value := strings.ToLower(raw.Field(field))
	switch value {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	}
	return nil
}
