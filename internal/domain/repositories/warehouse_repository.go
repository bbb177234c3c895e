package repositories

import (
	"context"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// WriteMode selects bulk-write semantics for a table load
type WriteMode string

const (
	// WriteModeAppend inserts rows after any existing rows
	WriteModeAppend WriteMode = "append"

	// WriteModeReplace removes existing rows before inserting
	WriteModeReplace WriteMode = "replace"
)

// Warehouse is the sink contract for the dimensional warehouse. The
// pipeline depends on nothing beyond typed per-table bulk writes and
// simple scans for verification.
type Warehouse interface {
	// EnsureSchema creates the warehouse tables if they do not exist
	EnsureSchema(ctx context.Context) error

	WriteDimPatients(ctx context.Context, mode WriteMode, rows []entities.DimPatient) error
	WriteDimDates(ctx context.Context, mode WriteMode, rows []entities.DimDate) error
	WriteDimClinicians(ctx context.Context, mode WriteMode, rows []entities.DimClinician) error
	WriteDimDepartments(ctx context.Context, mode WriteMode, rows []entities.DimDepartment) error
	WriteDimDiagnoses(ctx context.Context, mode WriteMode, rows []entities.DimDiagnosis) error

	WriteFactEncounters(ctx context.Context, mode WriteMode, rows []entities.FactEncounter) error
	WriteFactLabTests(ctx context.Context, mode WriteMode, rows []entities.FactLabTest) error
	WriteFactAppointments(ctx context.Context, mode WriteMode, rows []entities.FactAppointment) error

	// TableCounts returns the row count per warehouse table, used by the
	// verify stage to confirm loaded volumes
	TableCounts(ctx context.Context) (map[string]int, error)
}

// Warehouse table names
const (
	TableDimPatient       = "dim_patient"
	TableDimDate          = "dim_date"
	TableDimClinician     = "dim_clinician"
	TableDimDepartment    = "dim_department"
	TableDimDiagnosis     = "dim_diagnosis"
	TableFactEncounters   = "fact_encounters"
	TableFactLabTests     = "fact_lab_tests"
	TableFactAppointments = "fact_appointments"
)

// AllTables lists every warehouse table in load order
func AllTables() []string {
	return []string{
		TableDimPatient, TableDimDate, TableDimClinician,
		TableDimDepartment, TableDimDiagnosis,
		TableFactEncounters, TableFactLabTests, TableFactAppointments,
	}
}
