package services

import (
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// IntegrityResult summarizes one verification pass over a fact table
type IntegrityResult struct {
	Checked int
	Passed  int
	Failed  int
}

// Percentage returns the share of rows that passed, in [0,1]. An empty
// table verifies vacuously.
func (r IntegrityResult) Percentage() float64 {
	if r.Checked == 0 {
		return 1
	}
	return float64(r.Passed) / float64(r.Checked)
}

func (r *IntegrityResult) record(ok bool) {
	r.Checked++
	if ok {
		r.Passed++
	} else {
		r.Failed++
	}
}

// IntegrityService verifies that every fact row's foreign keys resolve to
// an existing dimension entry and that mandatory fields are present. It is
// a pure verification pass: rows are never mutated, failing rows are
// excluded from the returned load set.
type IntegrityService struct {
	store *DimensionStore
}

// NewIntegrityService creates an integrity checker over the given store
func NewIntegrityService(store *DimensionStore) *IntegrityService {
	return &IntegrityService{store: store}
}

// CheckEncounters verifies encounter fact rows
func (s *IntegrityService) CheckEncounters(rows []entities.FactEncounter) ([]entities.FactEncounter, IntegrityResult) {
	var result IntegrityResult
	passed := make([]entities.FactEncounter, 0, len(rows))
	for _, row := range rows {
		ok := row.EncounterID != "" &&
			row.EncounterType != "" &&
			s.keysResolve(row.PatientKey, row.DateKey, row.ClinicianKey, row.DepartmentKey, row.DiagnosisKey)
		result.record(ok)
		if ok {
			passed = append(passed, row)
		}
	}
	return passed, result
}

// CheckLabTests verifies lab test fact rows
func (s *IntegrityService) CheckLabTests(rows []entities.FactLabTest) ([]entities.FactLabTest, IntegrityResult) {
	var result IntegrityResult
	passed := make([]entities.FactLabTest, 0, len(rows))
	for _, row := range rows {
		ok := row.TestID != "" &&
			row.TestType != "" &&
			row.TestComponent != "" &&
			s.keysResolve(row.PatientKey, row.DateKey, row.ClinicianKey, nil, nil)
		result.record(ok)
		if ok {
			passed = append(passed, row)
		}
	}
	return passed, result
}

// CheckAppointments verifies appointment fact rows
func (s *IntegrityService) CheckAppointments(rows []entities.FactAppointment) ([]entities.FactAppointment, IntegrityResult) {
	var result IntegrityResult
	passed := make([]entities.FactAppointment, 0, len(rows))
	for _, row := range rows {
		ok := row.AppointmentID != "" &&
			row.AttendanceStatus != "" &&
			s.keysResolve(row.PatientKey, row.DateKey, row.ClinicianKey, row.DepartmentKey, nil)
		result.record(ok)
		if ok {
			passed = append(passed, row)
		}
	}
	return passed, result
}

func (s *IntegrityService) keysResolve(patientKey, dateKey int, clinicianKey, departmentKey, diagnosisKey *int) bool {
	if !s.store.HasPatientKey(patientKey) {
		return false
	}
	if !s.store.HasDateKey(dateKey) {
		return false
	}
	if clinicianKey != nil && !s.store.HasClinicianKey(*clinicianKey) {
		return false
	}
	if departmentKey != nil && !s.store.HasDepartmentKey(*departmentKey) {
		return false
	}
	if diagnosisKey != nil && !s.store.HasDiagnosisKey(*diagnosisKey) {
		return false
	}
	return true
}
