package entities

// Rejection reason codes produced by identity validation. Parameterised
// reasons carry the offending field name after a colon.
const (
	ReasonInvalidChecksum = "invalid_identifier_checksum"
	ReasonDateOutOfRange  = "date_out_of_range"

	reasonMissingFieldPrefix = "missing_required_field:"
	reasonUnknownCodePrefix  = "unknown_code:"
)

// ReasonMissingField returns the rejection reason for an absent mandatory field
func ReasonMissingField(field string) string {
	return reasonMissingFieldPrefix + field
}

// ReasonUnknownCode returns the rejection reason for a coded field whose
// value is outside the known reference set
func ReasonUnknownCode(field string) string {
	return reasonUnknownCodePrefix + field
}

// ValidatedRecord is a raw record annotated with its validation outcome.
// Produced by identity validation and never mutated afterwards. Rejected
// records keep their violations for the run report; they are never dropped.
type ValidatedRecord struct {
	Raw        RawRecord
	Valid      bool
	Violations []string
	// NaturalKey is the canonical NHS number for the record, set even for
	// rejected records when the field was present
	NaturalKey string
}
