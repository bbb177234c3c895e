package warehouse

import (
	"context"
	"sync"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/repositories"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

// MemoryAdapter is an in-memory Warehouse for local runs and tests. Writes
// to a table listed in FailTables return an external error, which lets
// tests exercise partial-failure handling.
type MemoryAdapter struct {
	mu sync.Mutex

	Patients     []entities.DimPatient
	Dates        []entities.DimDate
	Clinicians   []entities.DimClinician
	Departments  []entities.DimDepartment
	Diagnoses    []entities.DimDiagnosis
	Encounters   []entities.FactEncounter
	LabTests     []entities.FactLabTest
	Appointments []entities.FactAppointment

	FailTables map[string]bool
}

// NewMemoryAdapter creates an empty in-memory warehouse
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{FailTables: make(map[string]bool)}
}

func (a *MemoryAdapter) EnsureSchema(ctx context.Context) error {
	return nil
}

func (a *MemoryAdapter) guard(table string, mode repositories.WriteMode) error {
	if err := validWriteMode(table, mode); err != nil {
		return err
	}
	if a.FailTables[table] {
		return apperrors.NewExternalError("warehouse write refused for "+table, nil)
	}
	return nil
}

func (a *MemoryAdapter) WriteDimPatients(ctx context.Context, mode repositories.WriteMode, rows []entities.DimPatient) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableDimPatient, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Patients = nil
	}
	a.Patients = append(a.Patients, rows...)
	return nil
}

func (a *MemoryAdapter) WriteDimDates(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableDimDate, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Dates = nil
	}
	a.Dates = append(a.Dates, rows...)
	return nil
}

func (a *MemoryAdapter) WriteDimClinicians(ctx context.Context, mode repositories.WriteMode, rows []entities.DimClinician) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableDimClinician, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Clinicians = nil
	}
	a.Clinicians = append(a.Clinicians, rows...)
	return nil
}

func (a *MemoryAdapter) WriteDimDepartments(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDepartment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableDimDepartment, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Departments = nil
	}
	a.Departments = append(a.Departments, rows...)
	return nil
}

func (a *MemoryAdapter) WriteDimDiagnoses(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDiagnosis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableDimDiagnosis, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Diagnoses = nil
	}
	a.Diagnoses = append(a.Diagnoses, rows...)
	return nil
}

func (a *MemoryAdapter) WriteFactEncounters(ctx context.Context, mode repositories.WriteMode, rows []entities.FactEncounter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableFactEncounters, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Encounters = nil
	}
	a.Encounters = append(a.Encounters, rows...)
	return nil
}

func (a *MemoryAdapter) WriteFactLabTests(ctx context.Context, mode repositories.WriteMode, rows []entities.FactLabTest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableFactLabTests, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.LabTests = nil
	}
	a.LabTests = append(a.LabTests, rows...)
	return nil
}

func (a *MemoryAdapter) WriteFactAppointments(ctx context.Context, mode repositories.WriteMode, rows []entities.FactAppointment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.guard(repositories.TableFactAppointments, mode); err != nil {
		return err
	}
	if mode == repositories.WriteModeReplace {
		a.Appointments = nil
	}
	a.Appointments = append(a.Appointments, rows...)
	return nil
}

func (a *MemoryAdapter) TableCounts(ctx context.Context) (map[string]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]int{
		repositories.TableDimPatient:       len(a.Patients),
		repositories.TableDimDate:          len(a.Dates),
		repositories.TableDimClinician:     len(a.Clinicians),
		repositories.TableDimDepartment:    len(a.Departments),
		repositories.TableDimDiagnosis:     len(a.Diagnoses),
		repositories.TableFactEncounters:   len(a.Encounters),
		repositories.TableFactLabTests:     len(a.LabTests),
		repositories.TableFactAppointments: len(a.Appointments),
	}, nil
}
