package services

import (
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// DimensionStore is the arena of conformed dimension tables. Each
// dimension sits behind its own mutex so concurrent discovery of the same
// natural key from two sources can never mint two surrogate keys; this is
// the pipeline's single shared mutable resource. Callers receive the store
// as an explicit handle, never as ambient state.
type DimensionStore struct {
	patientsMu sync.Mutex
	patients   map[string]*entities.DimPatient
	patientSeq int

	datesMu sync.Mutex
	dates   map[int]entities.DimDate

	cliniciansMu sync.Mutex
	clinicians   map[string]*entities.DimClinician
	clinicianSeq int

	departmentsMu sync.Mutex
	departments   map[string]*entities.DimDepartment
	departmentSeq int

	diagnosesMu sync.Mutex
	diagnoses   map[string]*entities.DimDiagnosis
	diagnosisSeq int
}

// NewDimensionStore creates an empty dimension store
func NewDimensionStore() *DimensionStore {
	return &DimensionStore{
		patients:    make(map[string]*entities.DimPatient),
		dates:       make(map[int]entities.DimDate),
		clinicians:  make(map[string]*entities.DimClinician),
		departments: make(map[string]*entities.DimDepartment),
		diagnoses:   make(map[string]*entities.DimDiagnosis),
	}
}

// ResolvePatient upserts a patient dimension entry by NHS number. An
// existing entry keeps its surrogate key and merges non-empty descriptive
// attributes last-write-wins; a new natural key gets the next key.
func (s *DimensionStore) ResolvePatient(p entities.DimPatient) int {
	s.patientsMu.Lock()
	defer s.patientsMu.Unlock()

	existing, ok := s.patients[p.NHSNumber]
	if !ok {
		s.patientSeq++
		p.PatientKey = s.patientSeq
		s.patients[p.NHSNumber] = &p
		return p.PatientKey
	}

	mergePatient(existing, p)
	return existing.PatientKey
}

func mergePatient(dst *entities.DimPatient, src entities.DimPatient) {
	setIfPresent(&dst.PatientID, src.PatientID)
	setIfPresent(&dst.Title, src.Title)
	setIfPresent(&dst.FirstName, src.FirstName)
	setIfPresent(&dst.LastName, src.LastName)
	setIfPresent(&dst.DateOfBirth, src.DateOfBirth)
	setIfPresent(&dst.Gender, src.Gender)
	setIfPresent(&dst.Ethnicity, src.Ethnicity)
	setIfPresent(&dst.Postcode, src.Postcode)
	setIfPresent(&dst.City, src.City)
}

func setIfPresent(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// ResolveDate derives (and records) the calendar entry for a day,
// returning its YYYYMMDD key. Derivation is pure calendar math, so
// re-resolution of the same day is trivially idempotent.
func (s *DimensionStore) ResolveDate(t time.Time) int {
	entry := entities.NewDimDate(t)

	s.datesMu.Lock()
	defer s.datesMu.Unlock()
	s.dates[entry.DateKey] = entry
	return entry.DateKey
}

// PopulateDates pre-populates the calendar dimension for a fixed range,
// inclusive of both bounds
func (s *DimensionStore) PopulateDates(from, to time.Time) {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		s.ResolveDate(d)
	}
}

// ResolveClinician upserts a clinician dimension entry by clinician ID
func (s *DimensionStore) ResolveClinician(clinicianID, name string) int {
	s.cliniciansMu.Lock()
	defer s.cliniciansMu.Unlock()

	existing, ok := s.clinicians[clinicianID]
	if !ok {
		s.clinicianSeq++
		s.clinicians[clinicianID] = &entities.DimClinician{
			ClinicianKey: s.clinicianSeq,
			ClinicianID:  clinicianID,
			Name:         name,
		}
		return s.clinicianSeq
	}

	setIfPresent(&existing.Name, name)
	return existing.ClinicianKey
}

// ResolveDepartment upserts a department dimension entry by name
func (s *DimensionStore) ResolveDepartment(name, specialty string) int {
	s.departmentsMu.Lock()
	defer s.departmentsMu.Unlock()

	existing, ok := s.departments[name]
	if !ok {
		s.departmentSeq++
		s.departments[name] = &entities.DimDepartment{
			DepartmentKey: s.departmentSeq,
			Name:          name,
			Specialty:     specialty,
		}
		return s.departmentSeq
	}

	setIfPresent(&existing.Specialty, specialty)
	return existing.DepartmentKey
}

// ResolveDiagnosis upserts a diagnosis dimension entry by ICD-10 code
func (s *DimensionStore) ResolveDiagnosis(icd10Code, description string) int {
	s.diagnosesMu.Lock()
	defer s.diagnosesMu.Unlock()

	existing, ok := s.diagnoses[icd10Code]
	if !ok {
		s.diagnosisSeq++
		s.diagnoses[icd10Code] = &entities.DimDiagnosis{
			DiagnosisKey: s.diagnosisSeq,
			ICD10Code:    icd10Code,
			Description:  description,
		}
		return s.diagnosisSeq
	}

	setIfPresent(&existing.Description, description)
	return existing.DiagnosisKey
}

// LookupPatientKey returns the surrogate key for an NHS number, if assigned
func (s *DimensionStore) LookupPatientKey(nhsNumber string) (int, bool) {
	s.patientsMu.Lock()
	defer s.patientsMu.Unlock()
	p, ok := s.patients[nhsNumber]
	if !ok {
		return 0, false
	}
	return p.PatientKey, true
}

// HasDateKey reports whether a date key exists in the calendar dimension
func (s *DimensionStore) HasDateKey(dateKey int) bool {
	s.datesMu.Lock()
	defer s.datesMu.Unlock()
	_, ok := s.dates[dateKey]
	return ok
}

// LookupClinicianKey returns the surrogate key for a clinician ID, if assigned
func (s *DimensionStore) LookupClinicianKey(clinicianID string) (int, bool) {
	s.cliniciansMu.Lock()
	defer s.cliniciansMu.Unlock()
	c, ok := s.clinicians[clinicianID]
	if !ok {
		return 0, false
	}
	return c.ClinicianKey, true
}

// LookupDepartmentKey returns the surrogate key for a department name, if assigned
func (s *DimensionStore) LookupDepartmentKey(name string) (int, bool) {
	s.departmentsMu.Lock()
	defer s.departmentsMu.Unlock()
	d, ok := s.departments[name]
	if !ok {
		return 0, false
	}
	return d.DepartmentKey, true
}

// LookupDiagnosisKey returns the surrogate key for an ICD-10 code, if assigned
func (s *DimensionStore) LookupDiagnosisKey(icd10Code string) (int, bool) {
	s.diagnosesMu.Lock()
	defer s.diagnosesMu.Unlock()
	d, ok := s.diagnoses[icd10Code]
	if !ok {
		return 0, false
	}
	return d.DiagnosisKey, true
}

// HasPatientKey reports whether a patient surrogate key exists
func (s *DimensionStore) HasPatientKey(key int) bool {
	s.patientsMu.Lock()
	defer s.patientsMu.Unlock()
	for _, p := range s.patients {
		if p.PatientKey == key {
			return true
		}
	}
	return false
}

// HasClinicianKey reports whether a clinician surrogate key exists
func (s *DimensionStore) HasClinicianKey(key int) bool {
	s.cliniciansMu.Lock()
	defer s.cliniciansMu.Unlock()
	for _, c := range s.clinicians {
		if c.ClinicianKey == key {
			return true
		}
	}
	return false
}

// HasDepartmentKey reports whether a department surrogate key exists
func (s *DimensionStore) HasDepartmentKey(key int) bool {
	s.departmentsMu.Lock()
	defer s.departmentsMu.Unlock()
	for _, d := range s.departments {
		if d.DepartmentKey == key {
			return true
		}
	}
	return false
}

// HasDiagnosisKey reports whether a diagnosis surrogate key exists
func (s *DimensionStore) HasDiagnosisKey(key int) bool {
	s.diagnosesMu.Lock()
	defer s.diagnosesMu.Unlock()
	for _, d := range s.diagnoses {
		if d.DiagnosisKey == key {
			return true
		}
	}
	return false
}

// Patients returns a copy of the patient dimension ordered by surrogate key
func (s *DimensionStore) Patients() []entities.DimPatient {
	s.patientsMu.Lock()
	defer s.patientsMu.Unlock()
	rows := make([]entities.DimPatient, 0, len(s.patients))
	for _, p := range s.patients {
		rows = append(rows, *p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PatientKey < rows[j].PatientKey })
	return rows
}

// Dates returns a copy of the calendar dimension ordered by date key
func (s *DimensionStore) Dates() []entities.DimDate {
	s.datesMu.Lock()
	defer s.datesMu.Unlock()
	rows := make([]entities.DimDate, 0, len(s.dates))
	for _, d := range s.dates {
		rows = append(rows, d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DateKey < rows[j].DateKey })
	return rows
}

// Clinicians returns a copy of the clinician dimension ordered by surrogate key
func (s *DimensionStore) Clinicians() []entities.DimClinician {
	s.cliniciansMu.Lock()
	defer s.cliniciansMu.Unlock()
	rows := make([]entities.DimClinician, 0, len(s.clinicians))
	for _, c := range s.clinicians {
		rows = append(rows, *c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ClinicianKey < rows[j].ClinicianKey })
	return rows
}

// Departments returns a copy of the department dimension ordered by surrogate key
func (s *DimensionStore) Departments() []entities.DimDepartment {
	s.departmentsMu.Lock()
	defer s.departmentsMu.Unlock()
	rows := make([]entities.DimDepartment, 0, len(s.departments))
	for _, d := range s.departments {
		rows = append(rows, *d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DepartmentKey < rows[j].DepartmentKey })
	return rows
}

// Diagnoses returns a copy of the diagnosis dimension ordered by surrogate key
func (s *DimensionStore) Diagnoses() []entities.DimDiagnosis {
	s.diagnosesMu.Lock()
	defer s.diagnosesMu.Unlock()
	rows := make([]entities.DimDiagnosis, 0, len(s.diagnoses))
	for _, d := range s.diagnoses {
		rows = append(rows, *d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DiagnosisKey < rows[j].DiagnosisKey })
	return rows
}
