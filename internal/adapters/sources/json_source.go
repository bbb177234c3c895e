package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/providers"
	apperrors "github.com/zatekoja/nhs-data-integration/pipeline/pkg/errors"
)

// JSONSource reads raw records from a JSON array of objects, as exported
// by the EHR system. Nested objects are flattened into prefixed fields
// (primary_diagnosis.icd10_code becomes primary_diagnosis_code) so the
// rest of the pipeline sees one flat mapping per record.
type JSONSource struct {
	source entities.SourceType
	path   string
}

// NewJSONSource creates a JSON-backed record source
func NewJSONSource(source entities.SourceType, path string) providers.RecordSource {
	return &JSONSource{source: source, path: path}
}

// Source identifies the source system
func (s *JSONSource) Source() entities.SourceType {
	return s.source
}

// Read decodes the whole file into raw records
func (s *JSONSource) Read(ctx context.Context) ([]entities.RawRecord, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s source file %s", s.source, s.path))
		}
		return nil, fmt.Errorf("open %s source: %w", s.source, err)
	}
	defer file.Close()

	var objects []map[string]any
	decoder := json.NewDecoder(bufio.NewReaderSize(file, 1<<16))
	if err := decoder.Decode(&objects); err != nil {
		return nil, fmt.Errorf("decode %s source: %w", s.source, err)
	}

	records := make([]entities.RawRecord, 0, len(objects))
	for i, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records = append(records, entities.RawRecord{
			Source:   s.source,
			Position: i + 1,
			Fields:   flatten(obj),
		})
	}

	return records, nil
}

func flatten(obj map[string]any) map[string]string {
	fields := make(map[string]string, len(obj))
	for name, value := range obj {
		switch v := value.(type) {
		case nil:
			fields[name] = ""
		case string:
			fields[name] = v
		case bool:
			fields[name] = strconv.FormatBool(v)
		case float64:
			fields[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case map[string]any:
			if name == "primary_diagnosis" {
				fields["primary_diagnosis_code"] = stringValue(v["icd10_code"])
				fields["primary_diagnosis_description"] = stringValue(v["description"])
			}
			// other nested payloads (vitals, medications) are not part of
			// the warehouse model and are dropped here
		default:
			// arrays (secondary_diagnoses, lab_tests_ordered) likewise
		}
	}
	return fields
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
