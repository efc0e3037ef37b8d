package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agent-council/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "council.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return client
}

func seedRun(t *testing.T, client *Client, id string, createdAt time.Time) *models.Run {
	t.Helper()
	run := &models.Run{
		ID:          id,
		Question:    "What is the tallest mountain?",
		Status:      models.RunStatusPending,
		BlindReview: true,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	participants := []models.Participant{
		{RunID: id, Position: 0, Provider: "openai", Model: "gpt-4o", DisplayLabel: "gpt-4o", Temperature: 0.7, MaxTokens: 2048},
		{RunID: id, Position: 1, Provider: "anthropic", Model: "claude-3-5-haiku-20241022", DisplayLabel: "claude-3-5-haiku-20241022", Temperature: 0.2, MaxTokens: 512, SystemPrompt: "Be terse."},
	}
	if err := client.CreateRun(run, participants); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func TestRunRoundTrip(t *testing.T) {
	client := newTestClient(t)
	created := seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	got, err := client.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Question != created.Question || got.Status != models.RunStatusPending || !got.BlindReview {
		t.Errorf("run = %+v", got)
	}
	if got.CreatedAt.Unix() != created.CreatedAt.Unix() {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created.CreatedAt)
	}

	participants, err := client.GetParticipants("run-1")
	if err != nil {
		t.Fatalf("GetParticipants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(participants))
	}
	for i, p := range participants {
		if p.Position != i {
			t.Errorf("participant %d position = %d, want roster order", i, p.Position)
		}
	}
	if participants[1].SystemPrompt != "Be terse." || participants[1].MaxTokens != 512 {
		t.Errorf("participant fields lost: %+v", participants[1])
	}
}

func TestGetRunMissing(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.GetRun("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRunStatus(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	if err := client.UpdateRunStatus("run-1", models.RunStatusFailed, "all answer generations failed"); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	got, err := client.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusFailed || got.Error != "all answer generations failed" {
		t.Errorf("run = %+v", got)
	}

	// A later transition clears the old failure message.
	if err := client.UpdateRunStatus("run-1", models.RunStatusComplete, ""); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	got, _ = client.GetRun("run-1")
	if got.Error != "" {
		t.Errorf("error not cleared: %q", got.Error)
	}

	if err := client.UpdateRunStatus("missing", models.RunStatusFailed, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-old", time.Unix(1000, 0))
	seedRun(t, client, "run-mid", time.Unix(2000, 0))
	seedRun(t, client, "run-new", time.Unix(3000, 0))

	runs, err := client.ListRuns(10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	wantOrder := []string{"run-new", "run-mid", "run-old"}
	if len(runs) != len(wantOrder) {
		t.Fatalf("runs = %d, want %d", len(runs), len(wantOrder))
	}
	for i, want := range wantOrder {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, want)
		}
	}

	page, err := client.ListRuns(1, 1)
	if err != nil {
		t.Fatalf("ListRuns page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "run-mid" {
		t.Errorf("page = %+v, want just run-mid", page)
	}
}

func TestAnswersRoundTrip(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	answers := []models.Answer{
		{RunID: "run-1", Label: "A", Provider: "openai", ProducerModel: "gpt-4o", Text: "Everest.", LatencyMS: 812, TokensIn: 20, TokensOut: 7, CreatedAt: time.Now()},
		{RunID: "run-1", Label: "B", Provider: "anthropic", ProducerModel: "claude-3-5-haiku-20241022", Error: "connection reset", LatencyMS: 4, CreatedAt: time.Now()},
	}
	if err := client.InsertAnswers("run-1", answers); err != nil {
		t.Fatalf("InsertAnswers: %v", err)
	}

	got, err := client.GetAnswers("run-1")
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("answers = %d, want 2", len(got))
	}
	if got[0].Label != "A" || got[1].Label != "B" {
		t.Errorf("labels = %s, %s, want label order", got[0].Label, got[1].Label)
	}
	if got[0].Text != "Everest." || got[0].TokensOut != 7 {
		t.Errorf("answer A = %+v", got[0])
	}
	if !got[1].Failed() || got[1].Error != "connection reset" {
		t.Errorf("answer B = %+v", got[1])
	}
}

func TestDuplicateAnswerLabelRejected(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	answers := []models.Answer{
		{RunID: "run-1", Label: "A", Provider: "openai", ProducerModel: "gpt-4o", CreatedAt: time.Now()},
		{RunID: "run-1", Label: "A", Provider: "openai", ProducerModel: "gpt-4o", CreatedAt: time.Now()},
	}
	if err := client.InsertAnswers("run-1", answers); err == nil {
		t.Fatal("duplicate label within one run was accepted")
	}

	// The transaction must roll back as a whole.
	got, err := client.GetAnswers("run-1")
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("answers = %d after failed insert, want 0", len(got))
	}
}

func TestReviewsRoundTrip(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	reviews := []models.Review{{
		RunID:            "run-1",
		ReviewerProvider: "openai",
		ReviewerModel:    "gpt-4o",
		ReviewerLabel:    "A",
		Judgments: []models.Judgment{{
			AnswerLabel: "B",
			Scores:      models.ReviewScores{Correctness: 9, Completeness: 8, Clarity: 7, Helpfulness: 8, Safety: 10, Overall: 8.5},
			Critique:    "Solid but vague on measurement.",
		}},
		PreferenceOrder: []string{"B", "A"},
		Confidence:      0.8,
		RawResponse:     `{"rank_order": ["B", "A"]}`,
		LatencyMS:       950,
		CreatedAt:       time.Now(),
	}, {
		RunID:            "run-1",
		ReviewerProvider: "anthropic",
		ReviewerModel:    "claude-3-5-haiku-20241022",
		ReviewerLabel:    "B",
		Judgments:        nil,
		PreferenceOrder:  nil,
		Confidence:       0.5,
		ParseFallback:    true,
		RawResponse:      "I cannot rank these.",
		CreatedAt:        time.Now(),
	}}
	if err := client.InsertReviews("run-1", reviews); err != nil {
		t.Fatalf("InsertReviews: %v", err)
	}

	got, err := client.GetReviews("run-1")
	if err != nil {
		t.Fatalf("GetReviews: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reviews = %d, want 2", len(got))
	}

	first := got[0]
	if len(first.Judgments) != 1 || first.Judgments[0].Scores.Overall != 8.5 {
		t.Errorf("judgments = %+v", first.Judgments)
	}
	if len(first.PreferenceOrder) != 2 || first.PreferenceOrder[0] != "B" {
		t.Errorf("preference order = %v", first.PreferenceOrder)
	}
	if first.Confidence != 0.8 || first.ParseFallback {
		t.Errorf("review = %+v", first)
	}
	if !got[1].ParseFallback {
		t.Error("fallback flag lost")
	}
}

func TestAggregationRoundTripAndUniqueness(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	result := &models.AggregationResult{
		RunID:         "run-1",
		MethodVersion: "borda_v1",
		FinalRanking: []models.RankedAnswer{
			{Position: 1, Label: "B", Provider: "anthropic", ProducerModel: "claude-3-5-haiku-20241022", BordaPoints: 2, FirstPlaceVotes: 2, MeanOverall: 8.5, MeanCorrectness: 9},
			{Position: 2, Label: "A", Provider: "openai", ProducerModel: "gpt-4o", BordaPoints: 0, MeanOverall: 6, MeanCorrectness: 7},
		},
		BordaTotals:     map[string]int{"A": 0, "B": 2},
		FirstPlaceVotes: map[string]int{"B": 2},
		ScoreAverages:   map[string]models.ScoreAverage{"B": {MeanOverall: 8.5, MeanCorrectness: 9}},
		CreatedAt:       time.Now(),
	}
	if err := client.InsertAggregation(result); err != nil {
		t.Fatalf("InsertAggregation: %v", err)
	}

	got, err := client.GetAggregation("run-1")
	if err != nil {
		t.Fatalf("GetAggregation: %v", err)
	}
	if got.MethodVersion != "borda_v1" {
		t.Errorf("method = %s", got.MethodVersion)
	}
	if len(got.FinalRanking) != 2 || got.FinalRanking[0].Label != "B" {
		t.Errorf("ranking = %+v", got.FinalRanking)
	}
	if got.BordaTotals["B"] != 2 || got.FirstPlaceVotes["B"] != 2 {
		t.Errorf("tallies = %+v / %+v", got.BordaTotals, got.FirstPlaceVotes)
	}
	if got.ScoreAverages["B"].MeanOverall != 8.5 {
		t.Errorf("averages = %+v", got.ScoreAverages)
	}

	if err := client.InsertAggregation(result); err == nil {
		t.Fatal("second aggregation for the same run was accepted")
	}

	if _, err := client.GetAggregation("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	client := newTestClient(t)
	seedRun(t, client, "run-1", time.Unix(1700000000, 0))

	if err := client.InsertAnswers("run-1", []models.Answer{
		{RunID: "run-1", Label: "A", Provider: "openai", ProducerModel: "gpt-4o", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("InsertAnswers: %v", err)
	}
	if err := client.InsertReviews("run-1", []models.Review{
		{RunID: "run-1", ReviewerProvider: "openai", ReviewerModel: "gpt-4o", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("InsertReviews: %v", err)
	}
	if err := client.InsertAggregation(&models.AggregationResult{
		RunID: "run-1", MethodVersion: "borda_v1", FinalRanking: []models.RankedAnswer{}, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("InsertAggregation: %v", err)
	}

	if err := client.DeleteRun("run-1"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	if _, err := client.GetRun("run-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("run still present: %v", err)
	}
	participants, _ := client.GetParticipants("run-1")
	if len(participants) != 0 {
		t.Errorf("participants survived delete: %d", len(participants))
	}
	answers, _ := client.GetAnswers("run-1")
	if len(answers) != 0 {
		t.Errorf("answers survived delete: %d", len(answers))
	}
	reviews, _ := client.GetReviews("run-1")
	if len(reviews) != 0 {
		t.Errorf("reviews survived delete: %d", len(reviews))
	}
	if _, err := client.GetAggregation("run-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("aggregation survived delete: %v", err)
	}

	if err := client.DeleteRun("run-1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("repeat delete err = %v, want ErrNotFound", err)
	}
}
