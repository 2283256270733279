package retraining

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/forecast"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
	"github.com/andresuchdata/autopo-forecast/backend-go/internal/series"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

type Config struct {
	Enabled              bool
	MinValidationSamples int
	MinTrainingSamples   int
	MaxEvaluationHoldout int
	Cooldown             time.Duration
	DegradationThreshold float64
	GoodAccuracy         float64
	StaleEvaluationAfter time.Duration
	MaxHistory           int
	StateKey             string
}

func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MinValidationSamples: 30,
		MinTrainingSamples:   100,
		MaxEvaluationHoldout: 30,
		Cooldown:             24 * time.Hour,
		DegradationThreshold: 25,
		GoodAccuracy:         85,
		StaleEvaluationAfter: 7 * 24 * time.Hour,
		MaxHistory:           50,
		StateKey:             "retraining:state",
	}
}

// Model is the forecasting model being evaluated and recalibrated.
type Model interface {
	Backtest(history []domain.SalesObservation, holdout int) (forecast.Accuracy, bool)
	Calibrate(history []domain.SalesObservation) (forecast.Calibration, error)
}

// Service runs the evaluate/retrain state machine. At most one evaluation or
// retraining is in flight; a concurrent call fails with domain.ErrBusy.
type Service struct {
	cfg   Config
	store cache.DurableStore
	log   zerolog.Logger
	now   func() time.Time

	inFlight *semaphore.Weighted

	mu        sync.RWMutex
	state     State
	observers map[int]Observer
	nextObs   int
}

// NewService loads any persisted state from store. A missing or unreadable
// state starts the machine fresh.
func NewService(ctx context.Context, cfg Config, store cache.DurableStore, log zerolog.Logger) (*Service, error) {
	def := DefaultConfig()
	if cfg.MinValidationSamples <= 0 {
		cfg.MinValidationSamples = def.MinValidationSamples
	}
	if cfg.MinTrainingSamples <= 0 {
		cfg.MinTrainingSamples = def.MinTrainingSamples
	}
	if cfg.MaxEvaluationHoldout <= 0 {
		cfg.MaxEvaluationHoldout = def.MaxEvaluationHoldout
	}
	if cfg.DegradationThreshold <= 0 {
		cfg.DegradationThreshold = def.DegradationThreshold
	}
	if cfg.GoodAccuracy <= 0 {
		cfg.GoodAccuracy = def.GoodAccuracy
	}
	if cfg.StaleEvaluationAfter <= 0 {
		cfg.StaleEvaluationAfter = def.StaleEvaluationAfter
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.StateKey == "" {
		cfg.StateKey = def.StateKey
	}
	if store == nil {
		store = cache.NewMemoryDurableStore()
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		log:       log,
		now:       time.Now,
		inFlight:  semaphore.NewWeighted(1),
		state:     newState(cfg.Enabled),
		observers: make(map[int]Observer),
	}

	payload, ok, err := store.Get(ctx, cfg.StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load retraining state: %w", err)
	}
	if ok {
		var loaded State
		if err := json.Unmarshal(payload, &loaded); err != nil {
			log.Warn().Err(err).Msg("discarding unreadable retraining state")
		} else {
			// a crash mid-run leaves a non-idle status behind
			loaded.Status = StatusIdle
			if loaded.History == nil {
				loaded.History = []HistoryEntry{}
			}
			s.state = loaded
		}
	}

	return s, nil
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EvaluateModel backtests the model on the newest min(30, n/3) days.
func (s *Service) EvaluateModel(ctx context.Context, model Model, history []domain.SalesObservation) (EvaluationResult, error) {
	sorted := series.Normalize(history)
	n := len(sorted)
	if n < s.cfg.MinValidationSamples {
		metrics.RetrainingRuns.WithLabelValues("evaluate", string(domain.KindInsufficientData)).Inc()
		return EvaluationResult{}, domain.NewReasonError(domain.KindInsufficientData,
			"evaluation needs %d days of history, got %d", s.cfg.MinValidationSamples, n)
	}

	if !s.inFlight.TryAcquire(1) {
		metrics.RetrainingRuns.WithLabelValues("evaluate", string(domain.KindBusy)).Inc()
		return EvaluationResult{}, domain.NewReasonError(domain.KindBusy, "retraining state is %s", s.currentStatus())
	}
	defer s.inFlight.Release(1)

	return s.evaluate(ctx, model, sorted)
}

func (s *Service) evaluate(ctx context.Context, model Model, sorted []domain.SalesObservation) (EvaluationResult, error) {
	s.transition(ctx, func(st *State) { st.Status = StatusEvaluating })

	holdout := len(sorted) / 3
	if holdout > s.cfg.MaxEvaluationHoldout {
		holdout = s.cfg.MaxEvaluationHoldout
	}

	acc, ok := model.Backtest(sorted, holdout)
	if !ok {
		s.transition(ctx, func(st *State) { st.Status = StatusIdle })
		metrics.RetrainingRuns.WithLabelValues("evaluate", string(domain.KindInsufficientData)).Inc()
		return EvaluationResult{}, domain.NewReasonError(domain.KindInsufficientData, "no testable days in the last %d", holdout)
	}

	result := EvaluationResult{
		Success:         true,
		MAPE:            acc.MAPE,
		Accuracy:        acc.Accuracy,
		MAE:             acc.MAE,
		RMSE:            acc.RMSE,
		Tested:          acc.Tested,
		SampleSize:      len(sorted),
		NeedsRetraining: acc.MAPE > s.cfg.DegradationThreshold,
	}

	now := s.now()
	s.transition(ctx, func(st *State) {
		st.Status = StatusIdle
		st.CurrentMAPE = &result.MAPE
		st.CurrentAccuracy = &result.Accuracy
		st.LastEvaluation = &now
	})

	metrics.ModelMAPE.Set(result.MAPE)
	metrics.RetrainingRuns.WithLabelValues("evaluate", "success").Inc()
	s.log.Info().
		Float64("mape", result.MAPE).
		Float64("accuracy", result.Accuracy).
		Int("tested", result.Tested).
		Bool("needs_retraining", result.NeedsRetraining).
		Msg("model evaluated")

	s.notify(Event{Type: EventEvaluationCompleted, Timestamp: now, Evaluation: &result})
	return result, nil
}

// Retrain recalibrates the model. Without opts.Force it refuses to run within
// the cooldown of the last successful retraining.
func (s *Service) Retrain(ctx context.Context, model Model, history []domain.SalesObservation, opts RetrainOptions) (RetrainResult, error) {
	sorted := series.Normalize(history)
	n := len(sorted)
	if n < s.cfg.MinTrainingSamples {
		metrics.RetrainingRuns.WithLabelValues("retrain", string(domain.KindInsufficientData)).Inc()
		return RetrainResult{}, domain.NewReasonError(domain.KindInsufficientData,
			"retraining needs %d days of history, got %d", s.cfg.MinTrainingSamples, n)
	}

	if !s.inFlight.TryAcquire(1) {
		metrics.RetrainingRuns.WithLabelValues("retrain", string(domain.KindBusy)).Inc()
		return RetrainResult{}, domain.NewReasonError(domain.KindBusy, "retraining state is %s", s.currentStatus())
	}

	// checked while holding the slot so a run finishing concurrently is seen
	if !opts.Force {
		if remaining := s.cooldownRemaining(); remaining > 0 {
			s.inFlight.Release(1)
			metrics.RetrainingRuns.WithLabelValues("retrain", string(domain.KindCooldown)).Inc()
			return RetrainResult{}, domain.NewReasonError(domain.KindCooldown,
				"next retraining allowed in %s", remaining.Round(time.Minute))
		}
	}

	started := s.now()
	s.transition(ctx, func(st *State) { st.Status = StatusRetraining })
	s.notify(Event{Type: EventRetrainingStarted, Timestamp: started})

	calibration, err := model.Calibrate(sorted)
	finished := s.now()

	entry := HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  finished,
		Success:    err == nil,
		Forced:     opts.Force,
		SampleSize: n,
		DurationMS: finished.Sub(started).Milliseconds(),
	}
	result := RetrainResult{
		Success:    err == nil,
		Duration:   finished.Sub(started),
		SampleSize: n,
	}

	if err != nil {
		entry.Error = err.Error()
	} else {
		result.Calibration = calibration
		entry.NewMAPE = &calibration.MAPE
		entry.PreviousMAPE = &calibration.BaselineMAPE
	}

	s.transition(ctx, func(st *State) {
		st.Status = StatusIdle
		st.History = append(st.History, entry)
		if len(st.History) > s.cfg.MaxHistory {
			st.History = st.History[len(st.History)-s.cfg.MaxHistory:]
		}
		if err == nil {
			st.LastRetraining = &finished
			coef := calibration.Coefficients
			st.Coefficients = &coef
		}
	})
	s.inFlight.Release(1)

	s.notify(Event{Type: EventRetrainingCompleted, Timestamp: finished, Retrain: &result})

	if err != nil {
		metrics.RetrainingRuns.WithLabelValues("retrain", "error").Inc()
		s.log.Error().Err(err).Int("samples", n).Msg("retraining failed")
		return result, fmt.Errorf("retraining failed: %w", err)
	}

	metrics.RetrainingRuns.WithLabelValues("retrain", "success").Inc()
	s.log.Info().
		Int("samples", n).
		Dur("duration", result.Duration).
		Float64("mape", calibration.MAPE).
		Bool("forced", opts.Force).
		Msg("model retrained")

	if opts.ValidateAfter {
		validation, err := s.EvaluateModel(ctx, model, sorted)
		if err != nil {
			s.log.Warn().Err(err).Msg("post-retraining validation failed")
		} else {
			result.Validation = &validation
		}
	}

	return result, nil
}

// RunWorkflow evaluates the model and retrains it when accuracy has degraded
// (or when forced). It is skipped entirely while the service is disabled.
func (s *Service) RunWorkflow(ctx context.Context, model Model, history []domain.SalesObservation, opts WorkflowOptions) (WorkflowResult, error) {
	if !s.IsEnabled() {
		return WorkflowResult{Skipped: true, Reason: string(domain.KindDisabled)}, nil
	}

	evaluation, err := s.EvaluateModel(ctx, model, history)
	if err != nil {
		return WorkflowResult{}, err
	}

	result := WorkflowResult{Evaluation: &evaluation}
	if !evaluation.NeedsRetraining && !opts.Force {
		return result, nil
	}

	retrain, err := s.Retrain(ctx, model, history, RetrainOptions{Force: opts.Force, ValidateAfter: true})
	if err != nil {
		var re *domain.ReasonError
		if errors.As(err, &re) && (re.Kind == domain.KindCooldown || re.Kind == domain.KindInsufficientData) {
			result.Reason = string(re.Kind)
			return result, nil
		}
		return result, err
	}
	result.Retrain = &retrain
	return result, nil
}

// GetStatus returns a snapshot of the state
func (s *Service) GetStatus() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// GetRecommendations lists what an operator should do next, most urgent first.
func (s *Service) GetRecommendations() []Recommendation {
	st := s.GetStatus()
	out := []Recommendation{}

	if st.LastEvaluation == nil {
		return append(out, Recommendation{
			Type:     RecommendEvaluationNeeded,
			Priority: PriorityHigh,
			Message:  "The forecast model has never been evaluated",
		})
	}

	if s.now().Sub(*st.LastEvaluation) > s.cfg.StaleEvaluationAfter {
		out = append(out, Recommendation{
			Type:     RecommendStaleEvaluation,
			Priority: PriorityMedium,
			Message:  fmt.Sprintf("Last evaluation is older than %s", s.cfg.StaleEvaluationAfter),
		})
	}
	if st.CurrentMAPE != nil && *st.CurrentMAPE > s.cfg.DegradationThreshold {
		out = append(out, Recommendation{
			Type:     RecommendRetrainingRecommended,
			Priority: PriorityHigh,
			Message:  fmt.Sprintf("MAPE %.1f%% is above the %.0f%% threshold", *st.CurrentMAPE, s.cfg.DegradationThreshold),
		})
	}
	if st.CurrentAccuracy != nil && *st.CurrentAccuracy > s.cfg.GoodAccuracy {
		out = append(out, Recommendation{
			Type:     RecommendGoodPerformance,
			Priority: PriorityInfo,
			Message:  fmt.Sprintf("Forecast accuracy is %.1f%%", *st.CurrentAccuracy),
		})
	}
	return out
}

// GetHistory returns the newest limit attempts in chronological order.
// limit <= 0 returns all of them.
func (s *Service) GetHistory(limit int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.state.History
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]HistoryEntry{}, h...)
}

func (s *Service) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsEnabled
}

func (s *Service) SetEnabled(ctx context.Context, enabled bool) error {
	return s.transition(ctx, func(st *State) { st.IsEnabled = enabled })
}

// Reset forgets all state, including the persisted copy.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.state = newState(s.cfg.Enabled)
	s.mu.Unlock()
	return s.store.Delete(ctx, s.cfg.StateKey)
}

// RestoreCoefficients installs the last calibrated coefficients into the
// model, reporting whether there were any.
func (s *Service) RestoreCoefficients(model interface{ SetCoefficients(forecast.Coefficients) }) bool {
	s.mu.RLock()
	coef := copyPtr(s.state.Coefficients)
	s.mu.RUnlock()

	if coef == nil {
		return false
	}
	model.SetCoefficients(*coef)
	return true
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Service) Subscribe(obs Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(evt Event) {
	s.mu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		observers = append(observers, obs)
	}
	s.mu.RUnlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Str("event", string(evt.Type)).Msg("retraining observer panicked")
				}
			}()
			obs(evt)
		}()
	}
}

// transition applies fn to the state and persists the result. Persistence
// failures are logged; the in-memory state stays authoritative.
func (s *Service) transition(ctx context.Context, fn func(*State)) error {
	s.mu.Lock()
	fn(&s.state)
	payload, err := json.Marshal(s.state)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to encode retraining state: %w", err)
	}
	if err := s.store.Put(ctx, s.cfg.StateKey, payload); err != nil {
		s.log.Error().Err(err).Str("key", s.cfg.StateKey).Msg("failed to persist retraining state")
		return fmt.Errorf("failed to persist retraining state: %w", err)
	}
	return nil
}

func (s *Service) currentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

func (s *Service) cooldownRemaining() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.LastRetraining == nil || s.cfg.Cooldown <= 0 {
		return 0
	}
	return s.cfg.Cooldown - s.now().Sub(*s.state.LastRetraining)
}
