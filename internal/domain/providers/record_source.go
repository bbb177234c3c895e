package providers

import (
	"context"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// RecordSource delivers the already-extracted raw records for one source
// system. Implementations stream from CSV or JSON files; tests use an
// in-memory slice.
type RecordSource interface {
	// Source identifies which source system the records belong to
	Source() entities.SourceType

	// Read returns every raw record in the batch. Records are immutable
	// once returned.
	Read(ctx context.Context) ([]entities.RawRecord, error)
}
