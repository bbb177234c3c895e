package sources

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

// CSVSource reads raw records from a header-mapped CSV file, one source
// row per record. Row positions are 1-based data row indices, matching
// how source systems report line numbers.
type CSVSource struct {
	source entities.SourceType
	path   string
}

// NewCSVSource creates a CSV-backed record source
func NewCSVSource(source entities.SourceType, path string) providers.RecordSource {
	return &CSVSource{source: source, path: path}
}

// Source identifies the source system
func (s *CSVSource) Source() entities.SourceType {
	return s.source
}

// Read streams the whole file into raw records
func (s *CSVSource) Read(ctx context.Context) ([]entities.RawRecord, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s source file %s", s.source, s.path))
		}
		return nil, fmt.Errorf("open %s source: %w", s.source, err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReaderSize(file, 1<<16))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", s.source, err)
	}

	var records []entities.RawRecord
	position := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", s.source, position+1, err)
		}

		position++
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			}
		}

		records = append(records, entities.RawRecord{
			Source:   s.source,
			Position: position,
			Fields:   fields,
		})
	}

	return records, nil
}
