package entities

import (
	"time"

	"github.com/google/uuid"
)

// PipelineEventType represents the type of pipeline event
type PipelineEventType string

const (
	// EventStageChanged is published on every orchestrator state transition
	EventStageChanged PipelineEventType = "stage_changed"

	// EventSourceFailed is published when a source's load step fails
	EventSourceFailed PipelineEventType = "source_failed"

	// EventRunCompleted is published once with the final run report
	EventRunCompleted PipelineEventType = "run_completed"
)

// PipelineEvent is published to the event bus as a run progresses so
// external consumers (the monitoring dashboard) can follow along.
type PipelineEvent struct {
	ID        string            `json:"id"`
	RunID     uuid.UUID         `json:"run_id"`
	Type      PipelineEventType `json:"type"`
	State     PipelineState     `json:"state"`
	Source    SourceType        `json:"source,omitempty"`
	Report    *RunReport        `json:"report,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewPipelineEvent creates a pipeline event with a fresh event ID
func NewPipelineEvent(runID uuid.UUID, eventType PipelineEventType, state PipelineState) *PipelineEvent {
	return &PipelineEvent{
		ID:        uuid.New().String(),
		RunID:     runID,
		Type:      eventType,
		State:     state,
		Timestamp: time.Now(),
	}
}
