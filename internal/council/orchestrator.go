// Package council runs the answer and peer review rounds for a question
// posed to several independently configured LLM participants, then folds the
// reviews into a deterministic ranking.
package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/llm"
	"github.com/agent-council/backend/internal/metrics"
	"github.com/agent-council/backend/internal/storage/models"
	"github.com/agent-council/backend/pkg/logger"
)

var (
	ErrRunNotFound         = errors.New("run not found")
	ErrEmptyQuestion       = errors.New("question must not be empty")
	ErrInvalidTransition   = errors.New("invalid run state transition")
	ErrInsufficientAnswers = errors.New("at least two successful answers are required for evaluation")
)

const (
	defaultAnswerTemperature float32 = 0.7
	defaultAnswerMaxTokens           = 2048
)

// ParticipantConfig is the caller-facing shape of one participant. Nil
// temperature and max tokens take the council defaults.
type ParticipantConfig struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Temperature  *float32 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	DisplayLabel string   `json:"display_label,omitempty"`
}

// Store is the persistence surface the orchestrator needs. The sqlite client
// implements it.
type Store interface {
	CreateRun(run *models.Run, participants []models.Participant) error
	GetRun(id string) (*models.Run, error)
	UpdateRunStatus(id string, status models.RunStatus, runErr string) error
	ListRuns(limit, offset int) ([]models.Run, error)
	DeleteRun(id string) error
	GetParticipants(runID string) ([]models.Participant, error)
	InsertAnswers(runID string, answers []models.Answer) error
	GetAnswers(runID string) ([]models.Answer, error)
	InsertReviews(runID string, reviews []models.Review) error
	GetReviews(runID string) ([]models.Review, error)
	InsertAggregation(result *models.AggregationResult) error
	GetAggregation(runID string) (*models.AggregationResult, error)
}

// AdapterRegistry resolves provider names to LLM adapters.
type AdapterRegistry interface {
	Get(provider string) (llm.Adapter, bool)
}

// EventPublisher receives run status change events.
type EventPublisher interface {
	Publish(evt Event)
}

// Config carries the orchestration knobs. Zero values take defaults.
type Config struct {
	MaxConcurrency    int
	AnswerTimeout     time.Duration
	ReviewTimeout     time.Duration
	ReviewTemperature float32
	ReviewMaxTokens   int
	SelfExclusion     bool
}

type Orchestrator struct {
	store    Store
	registry AdapterRegistry
	events   EventPublisher
	cfg      Config
}

func NewOrchestrator(store Store, registry AdapterRegistry, events EventPublisher, cfg Config) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 6
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 120 * time.Second
	}
	if cfg.ReviewTimeout <= 0 {
		cfg.ReviewTimeout = 120 * time.Second
	}
	if cfg.ReviewTemperature <= 0 {
		cfg.ReviewTemperature = 0.3
	}
	if cfg.ReviewMaxTokens <= 0 {
		cfg.ReviewMaxTokens = 4096
	}
	return &Orchestrator{store: store, registry: registry, events: events, cfg: cfg}
}

// CreateRun records a new pending run with its participant roster. Display
// labels are deduplicated here so they are stable for the run's lifetime.
func (o *Orchestrator) CreateRun(question string, configs []ParticipantConfig, blindReview bool) (*models.RunDetail, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	now := time.Now()
	run := &models.Run{
		ID:          uuid.New().String(),
		Question:    question,
		Status:      models.RunStatusPending,
		BlindReview: blindReview,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	participants := make([]models.Participant, len(configs))
	for i, cfg := range configs {
		temperature := defaultAnswerTemperature
		if cfg.Temperature != nil {
			temperature = *cfg.Temperature
		}
		maxTokens := defaultAnswerMaxTokens
		if cfg.MaxTokens != nil && *cfg.MaxTokens > 0 {
			maxTokens = *cfg.MaxTokens
		}
		participants[i] = models.Participant{
			RunID:        run.ID,
			Position:     i,
			Provider:     cfg.Provider,
			Model:        cfg.Model,
			DisplayLabel: cfg.DisplayLabel,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
			SystemPrompt: cfg.SystemPrompt,
		}
	}
	applyDisplayLabels(participants)

	if err := o.store.CreateRun(run, participants); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	metrics.RunsCreated.Inc()
	o.events.Publish(Event{RunID: run.ID, Status: run.Status, At: now})
	logger.Info("Run created",
		zap.String("run_id", run.ID),
		zap.Int("participants", len(participants)),
		zap.Bool("blind_review", blindReview))

	return o.GetRunDetail(run.ID)
}

// GetRunDetail loads a run with everything recorded for it so far.
func (o *Orchestrator) GetRunDetail(id string) (*models.RunDetail, error) {
	run, err := o.store.GetRun(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	participants, err := o.store.GetParticipants(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	answers, err := o.store.GetAnswers(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	reviews, err := o.store.GetReviews(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}

	detail := &models.RunDetail{
		Run:          *run,
		Participants: participants,
		Answers:      answers,
		Reviews:      reviews,
	}

	aggregation, err := o.store.GetAggregation(id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to load aggregation result: %w", err)
		}
	} else {
		detail.Aggregation = aggregation
	}
	return detail, nil
}

// ListRuns returns run summaries, newest first.
func (o *Orchestrator) ListRuns(limit, offset int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	runs, err := o.store.ListRuns(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and everything recorded for it.
func (o *Orchestrator) DeleteRun(id string) error {
	if err := o.store.DeleteRun(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrRunNotFound
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	logger.Info("Run deleted", zap.String("run_id", id))
	return nil
}

// GenerateAnswers runs the answer round for a pending run. Individual call
// failures are recorded on the answers; the run only fails when nothing
// succeeds. Calling this on a terminal run returns the current state
// unchanged.
func (o *Orchestrator) GenerateAnswers(ctx context.Context, runID string) (*models.RunDetail, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if run.Status.Terminal() {
		return o.GetRunDetail(runID)
	}
	if run.Status != models.RunStatusPending {
		return nil, fmt.Errorf("%w: cannot generate answers from status %s", ErrInvalidTransition, run.Status)
	}

	participants, err := o.store.GetParticipants(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	if len(participants) == 0 {
		if err := o.setStatus(runID, models.RunStatusFailed, "no participants configured"); err != nil {
			return nil, err
		}
		return o.GetRunDetail(runID)
	}

	if err := o.setStatus(runID, models.RunStatusGeneratingAnswers, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	answers := o.fanOutAnswers(ctx, run, participants)
	metrics.PhaseDuration.WithLabelValues("generate_answers").Observe(time.Since(start).Seconds())

	if err := o.store.InsertAnswers(runID, answers); err != nil {
		return nil, fmt.Errorf("failed to store answers: %w", err)
	}

	succeeded := 0
	for _, a := range answers {
		if !a.Failed() {
			succeeded++
		}
	}
	logger.Info("Answer round finished",
		zap.String("run_id", runID),
		zap.Int("answers", len(answers)),
		zap.Int("succeeded", succeeded),
		zap.Duration("took", time.Since(start)))

	if succeeded == 0 {
		if err := o.setStatus(runID, models.RunStatusFailed, "all answer generations failed"); err != nil {
			return nil, err
		}
	} else {
		if err := o.setStatus(runID, models.RunStatusAnswersComplete, ""); err != nil {
			return nil, err
		}
	}
	return o.GetRunDetail(runID)
}

// RunEvaluation runs the blind peer review round and aggregates the ballots.
// Fewer than two reviewable answers is rejected without touching the run
// state, so a caller can still read the answers that did succeed. Calling
// this on a terminal run returns the current state unchanged.
func (o *Orchestrator) RunEvaluation(ctx context.Context, runID string, overrides []ParticipantConfig) (*models.RunDetail, error) {
	run, err := o.store.GetRun(runID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if run.Status.Terminal() {
		return o.GetRunDetail(runID)
	}
	if run.Status != models.RunStatusAnswersComplete {
		return nil, fmt.Errorf("%w: cannot evaluate from status %s", ErrInvalidTransition, run.Status)
	}

	answers, err := o.store.GetAnswers(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	eligible := make([]models.Answer, 0, len(answers))
	for _, a := range answers {
		if !a.Failed() {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) < 2 {
		return nil, ErrInsufficientAnswers
	}

	participants, err := o.store.GetParticipants(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	panel := o.buildReviewers(participants, overrides)
	if len(panel) == 0 {
		if err := o.setStatus(runID, models.RunStatusFailed, "no eligible reviewers"); err != nil {
			return nil, err
		}
		return o.GetRunDetail(runID)
	}

	if err := o.setStatus(runID, models.RunStatusEvaluating, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	reviews := o.fanOutReviews(ctx, run, panel, eligible)
	metrics.PhaseDuration.WithLabelValues("evaluate").Observe(time.Since(start).Seconds())

	logger.Info("Review round finished",
		zap.String("run_id", runID),
		zap.Int("reviewers", len(panel)),
		zap.Int("reviews", len(reviews)),
		zap.Duration("took", time.Since(start)))

	if len(reviews) == 0 {
		if err := o.setStatus(runID, models.RunStatusFailed, "no reviews recorded"); err != nil {
			return nil, err
		}
		return o.GetRunDetail(runID)
	}

	if err := o.store.InsertReviews(runID, reviews); err != nil {
		return nil, fmt.Errorf("failed to store reviews: %w", err)
	}

	result := AggregateVotes(reviews, eligible)
	result.RunID = runID
	result.CreatedAt = time.Now()
	if err := o.store.InsertAggregation(result); err != nil {
		return nil, fmt.Errorf("failed to store aggregation result: %w", err)
	}

	if err := o.setStatus(runID, models.RunStatusComplete, ""); err != nil {
		return nil, err
	}
	return o.GetRunDetail(runID)
}

// RunFullPipeline creates a run and drives it through both rounds in one
// call. A run that fails during answer generation is returned as is.
func (o *Orchestrator) RunFullPipeline(ctx context.Context, question string, configs []ParticipantConfig, blindReview bool) (*models.RunDetail, error) {
	detail, err := o.CreateRun(question, configs, blindReview)
	if err != nil {
		return nil, err
	}

	detail, err = o.GenerateAnswers(ctx, detail.Run.ID)
	if err != nil {
		return nil, err
	}
	if detail.Run.Status != models.RunStatusAnswersComplete {
		return detail, nil
	}

	return o.RunEvaluation(ctx, detail.Run.ID, nil)
}

func (o *Orchestrator) setStatus(runID string, status models.RunStatus, message string) error {
	if err := o.store.UpdateRunStatus(runID, status, message); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	o.events.Publish(Event{RunID: runID, Status: status, Error: message, At: time.Now()})
	if status.Terminal() {
		metrics.RunsFinished.WithLabelValues(string(status)).Inc()
	}
	return nil
}
