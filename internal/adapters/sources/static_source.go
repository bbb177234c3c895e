package sources

import (
	"context"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
)

// StaticSource serves an in-memory batch of raw records. Used in tests
// and wherever records arrive pre-extracted.
type StaticSource struct {
	source  entities.SourceType
	records []entities.RawRecord
	err     error
}

// NewStaticSource creates a record source over a fixed slice
func NewStaticSource(source entities.SourceType, records []entities.RawRecord) providers.RecordSource {
	return &StaticSource{source: source, records: records}
}

// NewFailingSource creates a record source whose Read always fails
func NewFailingSource(source entities.SourceType, err error) providers.RecordSource {
	return &StaticSource{source: source, err: err}
}

// Source identifies the source system
func (s *StaticSource) Source() entities.SourceType {
	return s.source
}

// Read returns the fixed batch
func (s *StaticSource) Read(ctx context.Context) ([]entities.RawRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}
