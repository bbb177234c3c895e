package entities

// MeasureUnparseable marks a fact row whose numeric measure could not be
// coerced; the measure is nulled and the row otherwise proceeds.
const MeasureUnparseable = "measure_unparseable"

// Fact foreign keys: PatientKey and DateKey are mandatory on every fact.
// Clinician, department and diagnosis keys are pointers because not every
// source record carries those attributes; nil means not applicable, while
// a non-nil key must resolve to a dimension entry before the row may be
// persisted.

// FactEncounter is one clinical encounter. NHSNumber is retained for
// traceability back to the validated source record.
type FactEncounter struct {
	EncounterID      string   `json:"encounter_id" db:"encounter_id"`
	PatientKey       int      `json:"patient_key" db:"patient_key"`
	DateKey          int      `json:"date_key" db:"date_key"`
	ClinicianKey     *int     `json:"clinician_key" db:"clinician_key"`
	DepartmentKey    *int     `json:"department_key" db:"department_key"`
	DiagnosisKey     *int     `json:"diagnosis_key" db:"diagnosis_key"`
	EncounterType    string   `json:"encounter_type" db:"encounter_type"`
	Disposition      string   `json:"disposition" db:"disposition"`
	LengthOfStayDays *int     `json:"length_of_stay_days" db:"length_of_stay_days"`
	NHSNumber        string   `json:"nhs_number" db:"nhs_number"`
	Flags            []string `json:"flags,omitempty" db:"-"`
}

// FactLabTest is one laboratory test result. ResultValue is nil when the
// test is incomplete or the raw value was unparseable.
type FactLabTest struct {
	TestID        string   `json:"test_id" db:"test_id"`
	PatientKey    int      `json:"patient_key" db:"patient_key"`
	DateKey       int      `json:"date_key" db:"date_key"`
	ClinicianKey  *int     `json:"clinician_key" db:"clinician_key"`
	TestType      string   `json:"test_type" db:"test_type"`
	TestComponent string   `json:"test_component" db:"test_component"`
	ResultValue   *float64 `json:"result_value" db:"result_value"`
	Unit          string   `json:"unit" db:"unit"`
	IsAbnormal    *bool    `json:"is_abnormal" db:"is_abnormal"`
	Status        string   `json:"status" db:"status"`
	NHSNumber     string   `json:"nhs_number" db:"nhs_number"`
	Flags         []string `json:"flags,omitempty" db:"-"`
}

// FactAppointment is one scheduled appointment and its attendance outcome
type FactAppointment struct {
	AppointmentID    string   `json:"appointment_id" db:"appointment_id"`
	PatientKey       int      `json:"patient_key" db:"patient_key"`
	DateKey          int      `json:"date_key" db:"date_key"`
	ClinicianKey     *int     `json:"clinician_key" db:"clinician_key"`
	DepartmentKey    *int     `json:"department_key" db:"department_key"`
	AppointmentType  string   `json:"appointment_type" db:"appointment_type"`
	Specialty        string   `json:"specialty" db:"specialty"`
	DurationMinutes  *int     `json:"duration_minutes" db:"duration_minutes"`
	WaitTimeMinutes  *int     `json:"wait_time_minutes" db:"wait_time_minutes"`
	AttendanceStatus string   `json:"attendance_status" db:"attendance_status"`
	NHSNumber        string   `json:"nhs_number" db:"nhs_number"`
	Flags            []string `json:"flags,omitempty" db:"-"`
}
