package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/storage/models"
	"github.com/agent-council/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		status TEXT NOT NULL,
		blind_review INTEGER DEFAULT 1,
		error TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		display_label TEXT NOT NULL,
		temperature REAL,
		max_tokens INTEGER,
		system_prompt TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_participants_run ON participants(run_id);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		label TEXT NOT NULL,
		provider TEXT NOT NULL,
		producer_model TEXT NOT NULL,
		answer_text TEXT,
		error TEXT,
		latency_ms INTEGER,
		tokens_in INTEGER,
		tokens_out INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_answers_run ON answers(run_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_run_label ON answers(run_id, label);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		reviewer_provider TEXT NOT NULL,
		reviewer_model TEXT NOT NULL,
		reviewer_label TEXT,
		judgments TEXT,
		preference_order TEXT,
		confidence REAL,
		parse_fallback INTEGER DEFAULT 0,
		raw_response TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_run ON reviews(run_id);

	CREATE TABLE IF NOT EXISTS aggregation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		method_version TEXT NOT NULL,
		final_ranking TEXT NOT NULL,
		borda_totals TEXT,
		first_place_votes TEXT,
		score_averages TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// CreateRun inserts the run and its participants in one transaction.
func (c *Client) CreateRun(run *models.Run, participants []models.Participant) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, question, status, blind_review, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Question,
		string(run.Status),
		boolToInt(run.BlindReview),
		run.Error,
		run.CreatedAt.Unix(),
		run.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(
			`INSERT INTO participants (run_id, position, provider, model, display_label, temperature, max_tokens, system_prompt)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			p.Position,
			p.Provider,
			p.Model,
			p.DisplayLabel,
			p.Temperature,
			p.MaxTokens,
			p.SystemPrompt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	logger.Info("Run created",
		zap.String("run_id", run.ID),
		zap.Int("participants", len(participants)),
	)

	return nil
}

func (c *Client) GetRun(id string) (*models.Run, error) {
	query := `SELECT id, question, status, blind_review, error, created_at, updated_at FROM runs WHERE id = ?`

	var run models.Run
	var status string
	var blindReview int
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&run.ID,
		&run.Question,
		&status,
		&blindReview,
		&run.Error,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = models.RunStatus(status)
	run.BlindReview = blindReview != 0
	run.CreatedAt = time.Unix(createdAt, 0)
	run.UpdatedAt = time.Unix(updatedAt, 0)

	return &run, nil
}

// UpdateRunStatus moves the run to a new status and refreshes updated_at.
// The error column is overwritten on every call so a later success clears
// an earlier failure message.
func (c *Client) UpdateRunStatus(id string, status models.RunStatus, runErr string) error {
	result, err := c.db.Exec(
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status),
		runErr,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}

	logger.Debug("Run status updated",
		zap.String("run_id", id),
		zap.String("status", string(status)),
	)

	return nil
}

func (c *Client) ListRuns(limit, offset int) ([]models.Run, error) {
	query := `
		SELECT id, question, status, blind_review, error, created_at, updated_at
		FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var status string
		var blindReview int
		var createdAt, updatedAt int64

		err := rows.Scan(&run.ID, &run.Question, &status, &blindReview, &run.Error, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		run.Status = models.RunStatus(status)
		run.BlindReview = blindReview != 0
		run.CreatedAt = time.Unix(createdAt, 0)
		run.UpdatedAt = time.Unix(updatedAt, 0)
		runs = append(runs, run)
	}

	return runs, nil
}

func (c *Client) DeleteRun(id string) error {
	result, err := c.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}

	logger.Info("Run deleted", zap.String("run_id", id))
	return nil
}

func (c *Client) GetParticipants(runID string) ([]models.Participant, error) {
	query := `
		SELECT id, run_id, position, provider, model, display_label, temperature, max_tokens, system_prompt
		FROM participants
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := c.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		err := rows.Scan(&p.ID, &p.RunID, &p.Position, &p.Provider, &p.Model, &p.DisplayLabel, &p.Temperature, &p.MaxTokens, &p.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, nil
}

// InsertAnswers stores the full answer round in one transaction.
func (c *Client) InsertAnswers(runID string, answers []models.Answer) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range answers {
		_, err = tx.Exec(
			`INSERT INTO answers (run_id, label, provider, producer_model, answer_text, error, latency_ms, tokens_in, tokens_out, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			a.Label,
			a.Provider,
			a.ProducerModel,
			a.Text,
			a.Error,
			a.LatencyMS,
			a.TokensIn,
			a.TokensOut,
			a.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert answer %s: %w", a.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit answers: %w", err)
	}

	return nil
}

func (c *Client) GetAnswers(runID string) ([]models.Answer, error) {
	query := `
		SELECT id, run_id, label, provider, producer_model, answer_text, error, latency_ms, tokens_in, tokens_out, created_at
		FROM answers
		WHERE run_id = ?
		ORDER BY label ASC
	`

	rows, err := c.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var a models.Answer
		var createdAt int64

		err := rows.Scan(&a.ID, &a.RunID, &a.Label, &a.Provider, &a.ProducerModel, &a.Text, &a.Error, &a.LatencyMS, &a.TokensIn, &a.TokensOut, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.CreatedAt = time.Unix(createdAt, 0)
		answers = append(answers, a)
	}

	return answers, nil
}

// InsertReviews stores the full review round in one transaction.
func (c *Client) InsertReviews(runID string, reviews []models.Review) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range reviews {
		judgmentsJSON, err := json.Marshal(r.Judgments)
		if err != nil {
			return fmt.Errorf("failed to marshal judgments: %w", err)
		}
		orderJSON, err := json.Marshal(r.PreferenceOrder)
		if err != nil {
			return fmt.Errorf("failed to marshal preference order: %w", err)
		}

		_, err = tx.Exec(
			`INSERT INTO reviews (run_id, reviewer_provider, reviewer_model, reviewer_label, judgments, preference_order, confidence, parse_fallback, raw_response, latency_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			r.ReviewerProvider,
			r.ReviewerModel,
			r.ReviewerLabel,
			string(judgmentsJSON),
			string(orderJSON),
			r.Confidence,
			boolToInt(r.ParseFallback),
			r.RawResponse,
			r.LatencyMS,
			r.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert review: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reviews: %w", err)
	}

	return nil
}

func (c *Client) GetReviews(runID string) ([]models.Review, error) {
	query := `
		SELECT id, run_id, reviewer_provider, reviewer_model, reviewer_label, judgments, preference_order, confidence, parse_fallback, raw_response, latency_ms, created_at
		FROM reviews
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := c.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		var judgmentsJSON, orderJSON string
		var parseFallback int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.RunID, &r.ReviewerProvider, &r.ReviewerModel, &r.ReviewerLabel, &judgmentsJSON, &orderJSON, &r.Confidence, &parseFallback, &r.RawResponse, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(judgmentsJSON), &r.Judgments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal judgments: %w", err)
		}
		if err := json.Unmarshal([]byte(orderJSON), &r.PreferenceOrder); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preference order: %w", err)
		}

		r.ParseFallback = parseFallback != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		reviews = append(reviews, r)
	}

	return reviews, nil
}

// InsertAggregation stores the voting outcome. The run_id unique constraint
// keeps it to one result per run.
func (c *Client) InsertAggregation(result *models.AggregationResult) error {
	rankingJSON, err := json.Marshal(result.FinalRanking)
	if err != nil {
		return fmt.Errorf("failed to marshal ranking: %w", err)
	}
	totalsJSON, err := json.Marshal(result.BordaTotals)
	if err != nil {
		return fmt.Errorf("failed to marshal borda totals: %w", err)
	}
	firstJSON, err := json.Marshal(result.FirstPlaceVotes)
	if err != nil {
		return fmt.Errorf("failed to marshal first place votes: %w", err)
	}
	averagesJSON, err := json.Marshal(result.ScoreAverages)
	if err != nil {
		return fmt.Errorf("failed to marshal score averages: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO aggregation_results (run_id, method_version, final_ranking, borda_totals, first_place_votes, score_averages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.MethodVersion,
		string(rankingJSON),
		string(totalsJSON),
		string(firstJSON),
		string(averagesJSON),
		result.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert aggregation result: %w", err)
	}

	logger.Info("Aggregation stored",
		zap.String("run_id", result.RunID),
		zap.String("method", result.MethodVersion),
	)

	return nil
}

func (c *Client) GetAggregation(runID string) (*models.AggregationResult, error) {
	query := `
		SELECT id, run_id, method_version, final_ranking, borda_totals, first_place_votes, score_averages, created_at
		FROM aggregation_results
		WHERE run_id = ?
	`

	var result models.AggregationResult
	var rankingJSON, totalsJSON, firstJSON, averagesJSON string
	var createdAt int64

	err := c.db.QueryRow(query, runID).Scan(
		&result.ID,
		&result.RunID,
		&result.MethodVersion,
		&rankingJSON,
		&totalsJSON,
		&firstJSON,
		&averagesJSON,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("aggregation for run %s: %w", runID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregation result: %w", err)
	}

	if err := json.Unmarshal([]byte(rankingJSON), &result.FinalRanking); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranking: %w", err)
	}
	if err := json.Unmarshal([]byte(totalsJSON), &result.BordaTotals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal borda totals: %w", err)
	}
	if err := json.Unmarshal([]byte(firstJSON), &result.FirstPlaceVotes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal first place votes: %w", err)
	}
	if err := json.Unmarshal([]byte(averagesJSON), &result.ScoreAverages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal score averages: %w", err)
	}

	result.CreatedAt = time.Unix(createdAt, 0)

	return &result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
