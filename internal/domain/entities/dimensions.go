package entities

import "time"

// DimPatient is the conformed patient dimension, deduplicated by NHS number
type DimPatient struct {
	PatientKey  int    `json:"patient_key" db:"patient_key"`
	NHSNumber   string `json:"nhs_number" db:"nhs_number"`
	PatientID   string `json:"patient_id" db:"patient_id"`
	Title       string `json:"title" db:"title"`
	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	DateOfBirth string `json:"date_of_birth" db:"date_of_birth"`
	Gender      string `json:"gender" db:"gender"`
	Ethnicity   string `json:"ethnicity" db:"ethnicity"`
	Postcode    string `json:"postcode" db:"postcode"`
	City        string `json:"city" db:"city"`
}

// DimDate is the calendar dimension. Its key is the date encoded as
// YYYYMMDD, derived purely from calendar math, so repeated derivation is
// trivially idempotent.
type DimDate struct {
	DateKey   int    `json:"date_key" db:"date_key"`
	Date      string `json:"date" db:"date"`
	Year      int    `json:"year" db:"year"`
	Quarter   int    `json:"quarter" db:"quarter"`
	Month     int    `json:"month" db:"month"`
	Day       int    `json:"day" db:"day"`
	DayOfWeek int    `json:"day_of_week" db:"day_of_week"`
}

// NewDimDate derives a date dimension entry for the given day
func NewDimDate(t time.Time) DimDate {
	return DimDate{
		DateKey:   DateKeyFor(t),
		Date:      t.Format("2006-01-02"),
		Year:      t.Year(),
		Quarter:   (int(t.Month())-1)/3 + 1,
		Month:     int(t.Month()),
		Day:       t.Day(),
		DayOfWeek: int(t.Weekday()),
	}
}

// DateKeyFor encodes a time as its YYYYMMDD integer date key
func DateKeyFor(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DimClinician is the conformed clinician dimension, deduplicated by
// clinician identifier
type DimClinician struct {
	ClinicianKey int    `json:"clinician_key" db:"clinician_key"`
	ClinicianID  string `json:"clinician_id" db:"clinician_id"`
	Name         string `json:"name" db:"name"`
}

// DimDepartment is the conformed department dimension, deduplicated by name
type DimDepartment struct {
	DepartmentKey int    `json:"department_key" db:"department_key"`
	Name          string `json:"name" db:"name"`
	Specialty     string `json:"specialty" db:"specialty"`
}

// DimDiagnosis is the conformed diagnosis dimension, deduplicated by
// ICD-10 code
type DimDiagnosis struct {
	DiagnosisKey int    `json:"diagnosis_key" db:"diagnosis_key"`
	ICD10Code    string `json:"icd10_code" db:"icd10_code"`
	Description  string `json:"description" db:"description"`
}
