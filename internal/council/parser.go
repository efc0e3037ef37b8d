package council

import (
	"encoding/json"
	"strings"

	"github.com/agent-council/backend/internal/storage/models"
)

// ParsedReview is the tolerant decoding of one reviewer's raw reply.
type ParsedReview struct {
	Judgments  []models.Judgment
	RankOrder  []string
	Confidence float64
	Fallback   bool
}

// ParseReviewResponse extracts the JSON object between the first opening
// brace and the last closing brace of raw and decodes it. Models wrap their
// JSON in prose or markdown fences often enough that strict decoding would
// throw away usable reviews. The function is total: when no object can be
// decoded, or the object carries neither judgments nor a ranking, it returns
// the safe default (no judgments, empty ordering, confidence 0.5) with
// Fallback set so the degraded review is visible downstream.
func ParseReviewResponse(raw string) ParsedReview {
	fallback := ParsedReview{
		Judgments:  []models.Judgment{},
		RankOrder:  []string{},
		Confidence: 0.5,
		Fallback:   true,
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fallback
	}

	var decoded struct {
		Reviews []struct {
			Label    string              `json:"label"`
			Scores   models.ReviewScores `json:"scores"`
			Critique string              `json:"critique"`
		} `json:"reviews"`
		RankOrder  []string `json:"rank_order"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decoded); err != nil {
		return fallback
	}
	if len(decoded.Reviews) == 0 && len(decoded.RankOrder) == 0 {
		return fallback
	}

	parsed := ParsedReview{
		Judgments:  make([]models.Judgment, 0, len(decoded.Reviews)),
		RankOrder:  []string{},
		Confidence: 0.5,
	}
	if decoded.RankOrder != nil {
		parsed.RankOrder = decoded.RankOrder
	}
	if decoded.Confidence != nil {
		parsed.Confidence = clampConfidence(*decoded.Confidence)
	}
	for _, r := range decoded.Reviews {
		parsed.Judgments = append(parsed.Judgments, models.Judgment{
			AnswerLabel: r.Label,
			Scores:      r.Scores,
			Critique:    r.Critique,
		})
	}
	return parsed
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
