package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/snappy"
	"github.com/zatekoja/nhs-data-integration/pipeline/internal/domain/entities"
)

// RejectRow is one rejected record flattened for columnar audit storage.
// Fields holds the raw record as JSON so analysts can recover the full
// payload without the audit schema tracking every source's columns.
type RejectRow struct {
	Source    string `parquet:"source,dict"`
	Position  int    `parquet:"position"`
	NHSNumber string `parquet:"nhs_number"`
	Reasons   string `parquet:"reasons"`
	Fields    string `parquet:"fields"`
}

// ParquetRejectWriter streams rejected records to a Parquet file. Safe for
// concurrent use; rows are flushed to a row group every flushEvery writes
// so a crashed run still leaves a readable audit trail.
type ParquetRejectWriter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *parquet.GenericWriter[RejectRow]
	pending []RejectRow
	count   int
}

const flushEvery = 1000

// NewParquetRejectWriter creates the audit file, truncating any previous one
func NewParquetRejectWriter(filename string) (*ParquetRejectWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create reject audit file: %w", err)
	}

	writer := parquet.NewGenericWriter[RejectRow](file,
		parquet.Compression(&snappy.Codec{}),
	)

	return &ParquetRejectWriter{
		file:   file,
		writer: writer,
	}, nil
}

// WriteReject buffers one rejected record for the audit file
func (w *ParquetRejectWriter) WriteReject(record entities.ValidatedRecord) error {
	fields, err := json.Marshal(record.Raw.Fields)
	if err != nil {
		return fmt.Errorf("marshal rejected record: %w", err)
	}

	row := RejectRow{
		Source:    string(record.Raw.Source),
		Position:  record.Raw.Position,
		NHSNumber: record.Raw.Field("nhs_number"),
		Reasons:   strings.Join(record.Violations, ";"),
		Fields:    string(fields),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, row)
	w.count++
	if len(w.pending) >= flushEvery {
		return w.flushLocked()
	}
	return nil
}

func (w *ParquetRejectWriter) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	if _, err := w.writer.Write(w.pending); err != nil {
		return fmt.Errorf("write reject rows: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush reject row group: %w", err)
	}
	w.pending = w.pending[:0]
	return nil
}

// Count returns the total number of rejected records received
func (w *ParquetRejectWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes remaining rows and closes the file
func (w *ParquetRejectWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close reject writer: %w", err)
	}
	return w.file.Close()
}
