package entities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

func TestAllSources(t *testing.T) {
	assert.Equal(t, []entities.SourceType{
		entities.SourcePAS,
		entities.SourceEHR,
		entities.SourceLIMS,
		entities.SourceAppointments,
	}, entities.AllSources())
}

func TestRawRecord_Field(t *testing.T) {
	record := entities.RawRecord{
		Source:   entities.SourcePAS,
		Position: 1,
		Fields:   map[string]string{"nhs_number": "  9434765919 ", "gender": ""},
	}

	assert.Equal(t, "9434765919", record.Field("nhs_number"))
	assert.Equal(t, "", record.Field("missing"))
	assert.True(t, record.HasField("nhs_number"))
	assert.False(t, record.HasField("gender"))
	assert.False(t, record.HasField("missing"))
}
