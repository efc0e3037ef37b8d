package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage lookups when no record matches.
var ErrNotFound = errors.New("record not found")

type RunStatus string

const (
	RunStatusPending           RunStatus = "pending"
	RunStatusGeneratingAnswers RunStatus = "generating_answers"
	RunStatusAnswersComplete   RunStatus = "answers_complete"
	RunStatusEvaluating        RunStatus = "evaluating"
	RunStatusComplete          RunStatus = "complete"
	RunStatusFailed            RunStatus = "failed"
)

// Terminal reports whether the run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

type Run struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Status      RunStatus `json:"status"`
	BlindReview bool      `json:"blind_review"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant is one configured council member. Position preserves the
// order participants were supplied in; answer labels derive from it.
type Participant struct {
	ID           int     `json:"-"`
	RunID        string  `json:"-"`
	Position     int     `json:"position"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	DisplayLabel string  `json:"display_label"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// Answer is one participant's response to the run question. A non-empty
// Error marks the answer failed; failed answers are excluded from review
// and aggregation. Token counts are zero when the provider did not report
// usage.
type Answer struct {
	ID            int       `json:"-"`
	RunID         string    `json:"-"`
	Label         string    `json:"label"`
	Provider      string    `json:"provider"`
	ProducerModel string    `json:"producer_model"`
	Text          string    `json:"text,omitempty"`
	Error         string    `json:"error,omitempty"`
	LatencyMS     int       `json:"latency_ms"`
	TokensIn      int       `json:"tokens_in,omitempty"`
	TokensOut     int       `json:"tokens_out,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *Answer) Failed() bool {
	return a.Error != ""
}

// ReviewScores holds the six judged dimensions, each on a 0-10 scale.
type ReviewScores struct {
	Correctness  float64 `json:"correctness"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Helpfulness  float64 `json:"helpfulness"`
	Safety       float64 `json:"safety"`
	Overall      float64 `json:"overall"`
}

// Judgment is one reviewer's verdict on one labeled answer.
type Judgment struct {
	AnswerLabel string       `json:"answer_label"`
	Scores      ReviewScores `json:"scores"`
	Critique    string       `json:"critique"`
}

// Review is one reviewer's full assessment of a run: per-answer judgments
// plus a best-to-worst preference ordering. ParseFallback marks reviews
// whose raw response could not be parsed and were kept with defaults.
type Review struct {
	ID               int        `json:"-"`
	RunID            string     `json:"-"`
	ReviewerProvider string     `json:"reviewer_provider"`
	ReviewerModel    string     `json:"reviewer_model"`
	ReviewerLabel    string     `json:"reviewer_label,omitempty"`
	Judgments        []Judgment `json:"judgments"`
	PreferenceOrder  []string   `json:"preference_order"`
	Confidence       float64    `json:"confidence"`
	ParseFallback    bool       `json:"parse_fallback,omitempty"`
	RawResponse      string     `json:"-"`
	LatencyMS        int        `json:"latency_ms"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RankedAnswer is one row of the final ordering, best first.
type RankedAnswer struct {
	Position        int     `json:"position"`
	Label           string  `json:"label"`
	Provider        string  `json:"provider"`
	ProducerModel   string  `json:"producer_model"`
	BordaPoints     int     `json:"borda_points"`
	FirstPlaceVotes int     `json:"first_place_votes"`
	MeanOverall     float64 `json:"mean_overall"`
	MeanCorrectness float64 `json:"mean_correctness"`
}

// ScoreAverage carries the per-label score means used for tie-breaking.
type ScoreAverage struct {
	MeanOverall     float64 `json:"mean_overall"`
	MeanCorrectness float64 `json:"mean_correctness"`
}

// AggregationResult is the single per-run voting outcome. MethodVersion
// names the aggregation algorithm so stored results stay comparable if
// the method ever changes.
type AggregationResult struct {
	ID              int                     `json:"-"`
	RunID           string                  `json:"-"`
	MethodVersion   string                  `json:"method_version"`
	FinalRanking    []RankedAnswer          `json:"final_ranking"`
	BordaTotals     map[string]int          `json:"borda_totals"`
	FirstPlaceVotes map[string]int          `json:"first_place_votes"`
	ScoreAverages   map[string]ScoreAverage `json:"score_averages"`
	CreatedAt       time.Time               `json:"created_at"`
}

// RunDetail bundles a run with everything generated for it.
type RunDetail struct {
	Run          Run                `json:"run"`
	Participants []Participant      `json:"participants"`
	Answers      []Answer           `json:"answers"`
	Reviews      []Review           `json:"reviews"`
	Aggregation  *AggregationResult `json:"aggregation,omitempty"`
}
