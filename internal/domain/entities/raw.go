package entities

import "strings"

// SourceType identifies which clinical source system a record came from
type SourceType string

const (
	// SourcePAS is the Patient Administration System (patient demographics)
	SourcePAS SourceType = "pas"

	// SourceEHR is the Electronic Health Records system (clinical encounters)
	SourceEHR SourceType = "ehr"

	// SourceLIMS is the Laboratory Information Management System (lab results)
	SourceLIMS SourceType = "lims"

	// SourceAppointments is the appointment booking system
	SourceAppointments SourceType = "appointments"
)

// AllSources lists every source system in a stable order
func AllSources() []SourceType {
	return []SourceType{SourcePAS, SourceEHR, SourceLIMS, SourceAppointments}
}

// RawRecord is one record as delivered by a source system: an unordered
// field-name to raw-value mapping tagged with its source type and original
// row position for error reporting. Immutable once read.
type RawRecord struct {
	Source   SourceType
	Position int
	Fields   map[string]string
}

// Field returns the trimmed value of a field, or "" when absent
func (r RawRecord) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// HasField reports whether a field is present and non-empty
func (r RawRecord) HasField(name string) bool {
	return r.Field(name) != ""
}
