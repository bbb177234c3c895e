// Package refdata holds the fixed reference sets the validation layer
// checks coded fields against, and the per-source mandatory field and
// dated field lists. All of it is handed to the pipeline at construction
// time and immutable for the run's duration.
package refdata

import (
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// ICD10Codes maps the known ICD-10 diagnosis codes to their descriptions
var ICD10Codes = map[string]string{
	"I10":   "Essential hypertension",
	"E11.9": "Type 2 diabetes without complications",
	"J44.0": "Chronic obstructive pulmonary disease",
	"I25.1": "Coronary heart disease",
	"M17.0": "Bilateral primary osteoarthritis of knee",
	"F32.9": "Major depressive disorder",
	"J18.1": "Lobar pneumonia",
	"I21.0": "Acute myocardial infarction",
	"N18.3": "Chronic kidney disease stage 3",
	"E78.5": "Hyperlipidaemia",
	"K21.9": "Gastro-oesophageal reflux disease",
	"M54.5": "Low back pain",
	"J45.9": "Asthma",
	"N39.0": "Urinary tract infection",
	"I50.0": "Congestive heart failure",
}

// CodeSet is a set of allowed values for one coded field
type CodeSet map[string]struct{}

// Contains reports whether a value belongs to the set
func (s CodeSet) Contains(value string) bool {
	_, ok := s[value]
	return ok
}

func newCodeSet(values ...string) CodeSet {
	s := make(CodeSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func icd10CodeSet() CodeSet {
	s := make(CodeSet, len(ICD10Codes))
	for code := range ICD10Codes {
		s[code] = struct{}{}
	}
	return s
}

// Rules bundles the validation reference data for one pipeline run
type Rules struct {
	// RequiredFields lists the mandatory fields per source
	RequiredFields map[entities.SourceType][]string

	// CodedFields maps each source's coded fields to their reference sets
	CodedFields map[entities.SourceType]map[string]CodeSet

	// DatedFields lists the fields subject to the plausible-date check,
	// with the layout each is expected in
	DatedFields map[entities.SourceType]map[string]string
}

// DateLayouts used by the source systems
const (
	LayoutDate     = "2006-01-02"
	LayoutDateTime = "2006-01-02 15:04:05"
)

// Default returns the reference data for the four NHS source systems
func Default() Rules {
	return Rules{
		RequiredFields: map[entities.SourceType][]string{
			entities.SourcePAS: {
				"patient_id", "nhs_number", "first_name", "last_name",
				"date_of_birth", "gender",
			},
			entities.SourceEHR: {
				"encounter_id", "nhs_number", "encounter_date",
				"encounter_type", "department",
			},
			entities.SourceLIMS: {
				"test_id", "nhs_number", "test_type", "test_component",
				"order_date", "status",
			},
			entities.SourceAppointments: {
				"appointment_id", "nhs_number", "appointment_date",
				"appointment_type", "attendance_status",
			},
		},
		CodedFields: map[entities.SourceType]map[string]CodeSet{
			entities.SourcePAS: {
				"gender": newCodeSet("M", "F", "Other"),
			},
			entities.SourceEHR: {
				"encounter_type": newCodeSet(
					"Emergency", "Outpatient", "Inpatient", "GP Visit",
				),
				"primary_diagnosis_code": icd10CodeSet(),
			},
			entities.SourceLIMS: {
				"test_type": newCodeSet(
					"Full Blood Count", "Renal Function", "Liver Function",
					"HbA1c", "Lipid Profile", "CRP",
				),
				"status":  newCodeSet("Completed", "Pending", "Rejected"),
				"urgency": newCodeSet("Routine", "Urgent", "Emergency"),
			},
			entities.SourceAppointments: {
				"appointment_type": newCodeSet(
					"GP Consultation", "Specialist Outpatient", "Follow-up",
					"Diagnostic", "Treatment", "Mental Health",
				),
				"attendance_status": newCodeSet(
					"Attended", "DNA (Did Not Attend)", "Cancelled by Patient",
					"Cancelled by Hospital", "Rescheduled", "Scheduled",
				),
				"priority": newCodeSet("Routine", "Soon", "Urgent", "Emergency"),
			},
		},
		DatedFields: map[entities.SourceType]map[string]string{
			entities.SourcePAS: {
				"date_of_birth":     LayoutDate,
				"registration_date": LayoutDate,
			},
			entities.SourceEHR: {
				"encounter_date": LayoutDateTime,
			},
			entities.SourceLIMS: {
				"order_date": LayoutDateTime,
			},
			entities.SourceAppointments: {
				"appointment_date": LayoutDate,
			},
		},
	}
}
