package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/repositories"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

// insertChunkSize caps rows per INSERT so statements stay under the
// Postgres bind-parameter limit
const insertChunkSize = 500

// PostgresAdapter implements the Warehouse contract on Postgres
type PostgresAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostgresAdapter creates a new Postgres warehouse adapter
func NewPostgresAdapter(client *postgres.Client) repositories.Warehouse {
	return &PostgresAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// EnsureSchema creates the warehouse tables if they do not exist
func (a *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dim_patient (
			patient_key   INTEGER PRIMARY KEY,
			nhs_number    VARCHAR(10) NOT NULL UNIQUE,
			patient_id    VARCHAR(64),
			title         VARCHAR(16),
			first_name    VARCHAR(128),
			last_name     VARCHAR(128),
			date_of_birth VARCHAR(10),
			gender        VARCHAR(16),
			ethnicity     VARCHAR(64),
			postcode      VARCHAR(16),
			city          VARCHAR(128)
		)`,
		`CREATE TABLE IF NOT EXISTS dim_date (
			date_key    INTEGER PRIMARY KEY,
			date        VARCHAR(10) NOT NULL,
			year        INTEGER NOT NULL,
			quarter     INTEGER NOT NULL,
			month       INTEGER NOT NULL,
			day         INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dim_clinician (
			clinician_key INTEGER PRIMARY KEY,
			clinician_id  VARCHAR(64) NOT NULL UNIQUE,
			name          VARCHAR(256)
		)`,
		`CREATE TABLE IF NOT EXISTS dim_department (
			department_key INTEGER PRIMARY KEY,
			name           VARCHAR(128) NOT NULL UNIQUE,
			specialty      VARCHAR(128)
		)`,
		`CREATE TABLE IF NOT EXISTS dim_diagnosis (
			diagnosis_key INTEGER PRIMARY KEY,
			icd10_code    VARCHAR(16) NOT NULL UNIQUE,
			description   VARCHAR(256)
		)`,
		`CREATE TABLE IF NOT EXISTS fact_encounters (
			encounter_id        VARCHAR(64) PRIMARY KEY,
			patient_key         INTEGER NOT NULL REFERENCES dim_patient(patient_key),
			date_key            INTEGER NOT NULL REFERENCES dim_date(date_key),
			clinician_key       INTEGER REFERENCES dim_clinician(clinician_key),
			department_key      INTEGER REFERENCES dim_department(department_key),
			diagnosis_key       INTEGER REFERENCES dim_diagnosis(diagnosis_key),
			encounter_type      VARCHAR(32),
			disposition         VARCHAR(64),
			length_of_stay_days INTEGER,
			nhs_number          VARCHAR(10) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fact_lab_tests (
			test_id        VARCHAR(64) PRIMARY KEY,
			patient_key    INTEGER NOT NULL REFERENCES dim_patient(patient_key),
			date_key       INTEGER NOT NULL REFERENCES dim_date(date_key),
			clinician_key  INTEGER REFERENCES dim_clinician(clinician_key),
			test_type      VARCHAR(64),
			test_component VARCHAR(128),
			result_value   DOUBLE PRECISION,
			unit           VARCHAR(32),
			is_abnormal    BOOLEAN,
			status         VARCHAR(32),
			nhs_number     VARCHAR(10) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fact_appointments (
			appointment_id    VARCHAR(64) PRIMARY KEY,
			patient_key       INTEGER NOT NULL REFERENCES dim_patient(patient_key),
			date_key          INTEGER NOT NULL REFERENCES dim_date(date_key),
			clinician_key     INTEGER REFERENCES dim_clinician(clinician_key),
			department_key    INTEGER REFERENCES dim_department(department_key),
			appointment_type  VARCHAR(64),
			specialty         VARCHAR(128),
			duration_minutes  INTEGER,
			wait_time_minutes INTEGER,
			attendance_status VARCHAR(32),
			nhs_number        VARCHAR(10) NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := a.client.DB().ExecContext(ctx, stmt); err != nil {
			return apperrors.NewInternalError("failed to ensure warehouse schema", err)
		}
	}
	return nil
}

// WriteDimPatients bulk-writes the patient dimension
func (a *PostgresAdapter) WriteDimPatients(ctx context.Context, mode repositories.WriteMode, rows []entities.DimPatient) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"patient_key":   row.PatientKey,
			"nhs_number":    row.NHSNumber,
			"patient_id":    row.PatientID,
			"title":         row.Title,
			"first_name":    row.FirstName,
			"last_name":     row.LastName,
			"date_of_birth": row.DateOfBirth,
			"gender":        row.Gender,
			"ethnicity":     row.Ethnicity,
			"postcode":      row.Postcode,
			"city":          row.City,
		}
	}
	return a.write(ctx, repositories.TableDimPatient, mode, records)
}

// WriteDimDates bulk-writes the date dimension
func (a *PostgresAdapter) WriteDimDates(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDate) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"date_key":    row.DateKey,
			"date":        row.Date,
			"year":        row.Year,
			"quarter":     row.Quarter,
			"month":       row.Month,
			"day":         row.Day,
			"day_of_week": row.DayOfWeek,
		}
	}
	return a.write(ctx, repositories.TableDimDate, mode, records)
}

// WriteDimClinicians bulk-writes the clinician dimension
func (a *PostgresAdapter) WriteDimClinicians(ctx context.Context, mode repositories.WriteMode, rows []entities.DimClinician) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"clinician_key": row.ClinicianKey,
			"clinician_id":  row.ClinicianID,
			"name":          row.Name,
		}
	}
	return a.write(ctx, repositories.TableDimClinician, mode, records)
}

// WriteDimDepartments bulk-writes the department dimension
func (a *PostgresAdapter) WriteDimDepartments(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDepartment) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"department_key": row.DepartmentKey,
			"name":           row.Name,
			"specialty":      row.Specialty,
		}
	}
	return a.write(ctx, repositories.TableDimDepartment, mode, records)
}

// WriteDimDiagnoses bulk-writes the diagnosis dimension
func (a *PostgresAdapter) WriteDimDiagnoses(ctx context.Context, mode repositories.WriteMode, rows []entities.DimDiagnosis) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"diagnosis_key": row.DiagnosisKey,
			"icd10_code":    row.ICD10Code,
			"description":   row.Description,
		}
	}
	return a.write(ctx, repositories.TableDimDiagnosis, mode, records)
}

// WriteFactEncounters bulk-writes the encounter fact table
func (a *PostgresAdapter) WriteFactEncounters(ctx context.Context, mode repositories.WriteMode, rows []entities.FactEncounter) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"encounter_id":        row.EncounterID,
			"patient_key":         row.PatientKey,
			"date_key":            row.DateKey,
			"clinician_key":       nullableKey(row.ClinicianKey),
			"department_key":      nullableKey(row.DepartmentKey),
			"diagnosis_key":       nullableKey(row.DiagnosisKey),
			"encounter_type":      row.EncounterType,
			"disposition":         row.Disposition,
			"length_of_stay_days": nullableKey(row.LengthOfStayDays),
			"nhs_number":          row.NHSNumber,
		}
	}
	return a.write(ctx, repositories.TableFactEncounters, mode, records)
}

// WriteFactLabTests bulk-writes the lab test fact table
func (a *PostgresAdapter) WriteFactLabTests(ctx context.Context, mode repositories.WriteMode, rows []entities.FactLabTest) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"test_id":        row.TestID,
			"patient_key":    row.PatientKey,
			"date_key":       row.DateKey,
			"clinician_key":  nullableKey(row.ClinicianKey),
			"test_type":      row.TestType,
			"test_component": row.TestComponent,
			"result_value":   nullableFloat(row.ResultValue),
			"unit":           row.Unit,
			"is_abnormal":    nullableBool(row.IsAbnormal),
			"status":         row.Status,
			"nhs_number":     row.NHSNumber,
		}
	}
	return a.write(ctx, repositories.TableFactLabTests, mode, records)
}

// WriteFactAppointments bulk-writes the appointment fact table
func (a *PostgresAdapter) WriteFactAppointments(ctx context.Context, mode repositories.WriteMode, rows []entities.FactAppointment) error {
	records := make([]goqu.Record, len(rows))
	for i, row := range rows {
		records[i] = goqu.Record{
			"appointment_id":    row.AppointmentID,
			"patient_key":       row.PatientKey,
			"date_key":          row.DateKey,
			"clinician_key":     nullableKey(row.ClinicianKey),
			"department_key":    nullableKey(row.DepartmentKey),
			"appointment_type":  row.AppointmentType,
			"specialty":         row.Specialty,
			"duration_minutes":  nullableKey(row.DurationMinutes),
			"wait_time_minutes": nullableKey(row.WaitTimeMinutes),
			"attendance_status": row.AttendanceStatus,
			"nhs_number":        row.NHSNumber,
		}
	}
	return a.write(ctx, repositories.TableFactAppointments, mode, records)
}

// TableCounts returns the row count per warehouse table
func (a *PostgresAdapter) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(repositories.AllTables()))
	for _, table := range repositories.AllTables() {
		query, args, err := a.db.From(table).Select(goqu.COUNT("*")).ToSQL()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to build count query", err)
		}
		var count int
		if err := a.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("failed to count %s", table), err)
		}
		counts[table] = count
	}
	return counts, nil
}

// write performs one table load. Replace mode truncates and inserts inside
// a single transaction so a failed load never leaves the table half empty.
// validWriteMode rejects modes outside the two the sink supports
func validWriteMode(table string, mode repositories.WriteMode) error {
	switch mode {
	case repositories.WriteModeAppend, repositories.WriteModeReplace:
		return nil
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown write mode %q for %s", mode, table))
	}
}

func (a *PostgresAdapter) write(ctx context.Context, table string, mode repositories.WriteMode, records []goqu.Record) error {
	if err := validWriteMode(table, mode); err != nil {
		return err
	}

	tx, err := a.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to begin load transaction", err)
	}
	defer tx.Rollback()

	if mode == repositories.WriteModeReplace {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to truncate %s", table), err)
		}
	}

	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := make([]interface{}, 0, end-start)
		for _, record := range records[start:end] {
			chunk = append(chunk, record)
		}

		query, args, err := a.db.Insert(table).Rows(chunk...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to load %s", table), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit load transaction", err)
	}
	return nil
}

func nullableKey(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
