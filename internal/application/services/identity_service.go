package services

import (
	"sort"
	"time"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/refdata"
)

// IdentityService validates and normalizes per-source natural keys and
// flags malformed records. Rules are applied independently so a rejected
// record carries every violation, not just the first.
type IdentityService struct {
	rules   refdata.Rules
	minDate time.Time
	now     func() time.Time
}

// NewIdentityService creates an identity validator. minDate is the lower
// bound of the plausible date range; the upper bound is the run's current
// date.
func NewIdentityService(rules refdata.Rules, minDate time.Time) *IdentityService {
	return &IdentityService{
		rules:   rules,
		minDate: minDate,
		now:     time.Now,
	}
}

// Validate applies every validation rule to a raw record and returns the
// annotated result. Rejected records are retained with their violations,
// never dropped.
func (s *IdentityService) Validate(raw entities.RawRecord) entities.ValidatedRecord {
	var violations []string

	nhsNumber := raw.Field("nhs_number")
	if nhsNumber != "" && !ValidNHSNumber(nhsNumber) {
		violations = append(violations, entities.ReasonInvalidChecksum)
	}

	for _, field := range s.rules.RequiredFields[raw.Source] {
		if !raw.HasField(field) {
			violations = append(violations, entities.ReasonMissingField(field))
		}
	}

	coded := s.rules.CodedFields[raw.Source]
	codedFields := make([]string, 0, len(coded))
	for field := range coded {
		codedFields = append(codedFields, field)
	}
	sort.Strings(codedFields)
	for _, field := range codedFields {
		value := raw.Field(field)
		if value == "" {
			continue
		}
		if !coded[field].Contains(value) {
			violations = append(violations, entities.ReasonUnknownCode(field))
		}
	}

	if s.datesOutOfRange(raw) {
		violations = append(violations, entities.ReasonDateOutOfRange)
	}

	return entities.ValidatedRecord{
		Raw:        raw,
		Valid:      len(violations) == 0,
		Violations: violations,
		NaturalKey: nhsNumber,
	}
}

// ValidateBatch validates every record in a source batch
func (s *IdentityService) ValidateBatch(batch []entities.RawRecord) []entities.ValidatedRecord {
	validated := make([]entities.ValidatedRecord, 0, len(batch))
	for _, raw := range batch {
		validated = append(validated, s.Validate(raw))
	}
	return validated
}

func (s *IdentityService) datesOutOfRange(raw entities.RawRecord) bool {
	maxDate := s.now()
	for field, layout := range s.rules.DatedFields[raw.Source] {
		value := raw.Field(field)
		if value == "" {
			continue
		}
		parsed, err := time.Parse(layout, value)
		if err != nil {
			return true
		}
		if parsed.Before(s.minDate) || parsed.After(maxDate) {
			return true
		}
	}
	return false
}

// ValidNHSNumber reports whether an NHS number passes the Modulus 11
// check: digits 1-9 are weighted 10 down to 2, the weighted sum modulo 11
// is subtracted from 11; a result of 11 means check digit 0, a result of
// 10 means the number is invalid, anything else must equal digit 10.
func ValidNHSNumber(nhsNumber string) bool {
	if len(nhsNumber) != 10 {
		return false
	}

	total := 0
	for i := 0; i < 9; i++ {
		d := nhsNumber[i]
		if d < '0' || d > '9' {
			return false
		}
		total += int(d-'0') * (10 - i)
	}

	last := nhsNumber[9]
	if last < '0' || last > '9' {
		return false
	}

	check := 11 - total%11
	if check == 11 {
		check = 0
	}
	if check == 10 {
		return false
	}

	return int(last-'0') == check
}
