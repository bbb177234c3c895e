package audit_test

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/adapters/audit"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

func rejected(position int, nhsNumber string, reasons ...string) entities.ValidatedRecord {
	return entities.ValidatedRecord{
		Raw: entities.RawRecord{
			Source:   entities.SourcePAS,
			Position: position,
			Fields:   map[string]string{"nhs_number": nhsNumber, "first_name": "Amira"},
		},
		Valid:      false,
		Violations: reasons,
		NaturalKey: nhsNumber,
	}
}

func TestParquetRejectWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.parquet")

	writer, err := audit.NewParquetRejectWriter(path)
	require.NoError(t, err)

	require.NoError(t, writer.WriteReject(rejected(3, "1234567890", entities.ReasonInvalidChecksum)))
	require.NoError(t, writer.WriteReject(rejected(7, "9434765919",
		entities.ReasonMissingField("last_name"), entities.ReasonDateOutOfRange)))

	assert.Equal(t, 2, writer.Count())
	require.NoError(t, writer.Close())

	rows, err := parquet.ReadFile[audit.RejectRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "pas", rows[0].Source)
	assert.Equal(t, 3, rows[0].Position)
	assert.Equal(t, "1234567890", rows[0].NHSNumber)
	assert.Equal(t, entities.ReasonInvalidChecksum, rows[0].Reasons)
	assert.Contains(t, rows[0].Fields, `"nhs_number":"1234567890"`)

	assert.Equal(t, "missing_required_field:last_name;date_out_of_range", rows[1].Reasons)
}

func TestParquetRejectWriter_EmptyFileIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	writer, err := audit.NewParquetRejectWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rows, err := parquet.ReadFile[audit.RejectRow](path)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
