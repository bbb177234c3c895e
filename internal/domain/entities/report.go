package entities

import (
	"time"

	"github.com/google/uuid"
)

// PipelineState is one state of the orchestrator's state machine
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateExtracting   PipelineState = "extracting"
	StateValidating   PipelineState = "validating"
	StateTransforming PipelineState = "transforming"
	StateLoading      PipelineState = "loading"
	StateVerifying    PipelineState = "verifying"
	StateComplete     PipelineState = "complete"
	StateFailed       PipelineState = "failed"
)

// BatchQuality holds the quality metrics computed for one source batch.
// Score is a weighted average of mean field completeness and validity
// rate, always within [0,1]. Empty marks a batch with zero records, whose
// score is defined as 1 (vacuously complete) rather than a division error.
type BatchQuality struct {
	Empty             bool               `json:"empty"`
	Score             float64            `json:"score"`
	ValidityRate      float64            `json:"validity_rate"`
	MeanCompleteness  float64            `json:"mean_completeness"`
	FieldCompleteness map[string]float64 `json:"field_completeness"`
}

// SourceReport holds per-source counts for one pipeline run
type SourceReport struct {
	Read             int            `json:"read"`
	Valid            int            `json:"valid"`
	Rejected         int            `json:"rejected"`
	FactsBuilt       int            `json:"facts_built"`
	IntegrityFailed  int            `json:"integrity_failed"`
	Loaded           int            `json:"loaded"`
	LoadFailed       bool           `json:"load_failed"`
	LoadError        string         `json:"load_error,omitempty"`
	RejectionReasons map[string]int `json:"rejection_reasons"`
	Quality          BatchQuality   `json:"quality"`
}

// RunReport is the immutable summary of one pipeline run. It is created
// once when the run completes and is never updated afterwards.
type RunReport struct {
	RunID          uuid.UUID                    `json:"run_id"`
	State          PipelineState                `json:"state"`
	StartedAt      time.Time                    `json:"started_at"`
	CompletedAt    time.Time                    `json:"completed_at"`
	Sources        map[SourceType]*SourceReport `json:"sources"`
	OverallQuality float64                      `json:"overall_quality"`
}

// SourceReportFor returns the report for a source, creating it if absent
func (r *RunReport) SourceReportFor(source SourceType) *SourceReport {
	if r.Sources == nil {
		r.Sources = make(map[SourceType]*SourceReport)
	}
	sr, ok := r.Sources[source]
	if !ok {
		sr = &SourceReport{RejectionReasons: make(map[string]int)}
		r.Sources[source] = sr
	}
	return sr
}

// TotalRead sums records read across all sources
func (r *RunReport) TotalRead() int {
	total := 0
	for _, sr := range r.Sources {
		total += sr.Read
	}
	return total
}

// TotalLoaded sums fact and dimension rows loaded across all sources
func (r *RunReport) TotalLoaded() int {
	total := 0
	for _, sr := range r.Sources {
		total += sr.Loaded
	}
	return total
}
