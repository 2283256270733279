package retraining

import (
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusEvaluating Status = "evaluating"
	StatusRetraining Status = "retraining"
)

// HistoryEntry records one retraining attempt
type HistoryEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	Forced       bool      `json:"forced"`
	SampleSize   int       `json:"sample_size"`
	DurationMS   int64     `json:"duration_ms"`
	PreviousMAPE *float64  `json:"previous_mape,omitempty"`
	NewMAPE      *float64  `json:"new_mape,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// State is the persisted retraining state machine.
type State struct {
	Status          Status                 `json:"status"`
	LastEvaluation  *time.Time             `json:"last_evaluation,omitempty"`
	LastRetraining  *time.Time             `json:"last_retraining,omitempty"`
	CurrentMAPE     *float64               `json:"current_mape,omitempty"`
	CurrentAccuracy *float64               `json:"current_accuracy,omitempty"`
	IsEnabled       bool                   `json:"is_enabled"`
	Coefficients    *forecast.Coefficients `json:"coefficients,omitempty"`
	History         []HistoryEntry         `json:"history"`
}

func newState(enabled bool) State {
	return State{
		Status:    StatusIdle,
		IsEnabled: enabled,
		History:   []HistoryEntry{},
	}
}

// clone deep-copies the state so callers can't reach the service's copy
func (s State) clone() State {
	out := s
	out.LastEvaluation = copyPtr(s.LastEvaluation)
	out.LastRetraining = copyPtr(s.LastRetraining)
	out.CurrentMAPE = copyPtr(s.CurrentMAPE)
	out.CurrentAccuracy = copyPtr(s.CurrentAccuracy)
	out.Coefficients = copyPtr(s.Coefficients)
	out.History = append([]HistoryEntry{}, s.History...)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityInfo   Priority = "info"
)

const (
	RecommendEvaluationNeeded      = "evaluation_needed"
	RecommendStaleEvaluation       = "stale_evaluation"
	RecommendRetrainingRecommended = "retraining_recommended"
	RecommendGoodPerformance       = "good_performance"
)

type Recommendation struct {
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
}

type EvaluationResult struct {
	Success         bool    `json:"success"`
	MAPE            float64 `json:"mape"`
	Accuracy        float64 `json:"accuracy"`
	MAE             float64 `json:"mae"`
	RMSE            float64 `json:"rmse"`
	Tested          int     `json:"tested"`
	SampleSize      int     `json:"sample_size"`
	NeedsRetraining bool    `json:"needs_retraining"`
}

type RetrainOptions struct {
	Force         bool
	ValidateAfter bool
}

type RetrainResult struct {
	Success     bool                 `json:"success"`
	Duration    time.Duration        `json:"duration"`
	SampleSize  int                  `json:"sample_size"`
	Calibration forecast.Calibration `json:"calibration"`
	Validation  *EvaluationResult    `json:"validation,omitempty"`
}

type WorkflowOptions struct {
	Force bool
}

// WorkflowResult is what RunWorkflow did. Reason explains a skipped step.
type WorkflowResult struct {
	Skipped    bool              `json:"skipped"`
	Reason     string            `json:"reason,omitempty"`
	Evaluation *EvaluationResult `json:"evaluation,omitempty"`
	Retrain    *RetrainResult    `json:"retrain,omitempty"`
}

type EventType string

const (
	EventEvaluationCompleted EventType = "evaluation_completed"
	EventRetrainingStarted   EventType = "retraining_started"
	EventRetrainingCompleted EventType = "retraining_completed"
)

// Event is delivered to observers after the state has been updated.
type Event struct {
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Evaluation *EvaluationResult `json:"evaluation,omitempty"`
	Retrain    *RetrainResult    `json:"retrain,omitempty"`
}

type Observer func(Event)
