package council

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agent-council/backend/internal/llm"
	"github.com/agent-council/backend/internal/metrics"
	"github.com/agent-council/backend/internal/storage/models"
	"github.com/agent-council/backend/pkg/logger"
)

// reviewer is one model taking part in the peer review round. Model is what
// the provider API is called with; Display is the deduplicated label the
// review is recorded under. AnswerLabel is the blind label of the answer the
// reviewer produced, empty for override reviewers that did not answer.
type reviewer struct {
	Provider    string
	Model       string
	Display     string
	AnswerLabel string
}

// buildReviewers picks the review panel. The run's own participants review
// by default; a non-empty override list replaces them and gets its own
// display label pass. Reviewers whose provider is not registered are
// dropped.
func (o *Orchestrator) buildReviewers(participants []models.Participant, overrides []ParticipantConfig) []reviewer {
	var panel []reviewer
	if len(overrides) > 0 {
		roster := make([]models.Participant, len(overrides))
		for i, cfg := range overrides {
			roster[i] = models.Participant{
				Provider:     cfg.Provider,
				Model:        cfg.Model,
				DisplayLabel: cfg.DisplayLabel,
			}
		}
		applyDisplayLabels(roster)
		for _, p := range roster {
			panel = append(panel, reviewer{
				Provider: p.Provider,
				Model:    p.Model,
				Display:  displayName(p),
			})
		}
	} else {
		for i, p := range participants {
			panel = append(panel, reviewer{
				Provider:    p.Provider,
				Model:       p.Model,
				Display:     displayName(p),
				AnswerLabel: labelFor(i),
			})
		}
	}

	eligible := panel[:0]
	for _, rv := range panel {
		if _, ok := o.registry.Get(rv.Provider); !ok {
			logger.Warn("Dropping reviewer with unknown provider",
				zap.String("provider", rv.Provider),
				zap.String("model", rv.Model))
			continue
		}
		eligible = append(eligible, rv)
	}
	return eligible
}

// fanOutReviews runs the peer review round concurrently under the same
// semaphore bound as answer generation. A reviewer whose call fails outright
// records no review; a reply that cannot be parsed still records one with
// the fallback defaults.
func (o *Orchestrator) fanOutReviews(ctx context.Context, run *models.Run, panel []reviewer, eligible []models.Answer) []models.Review {
	packet := make([]PacketAnswer, 0, len(eligible))
	for _, a := range eligible {
		packet = append(packet, PacketAnswer{
			Label:    a.Label,
			Text:     a.Text,
			Producer: fmt.Sprintf("%s:%s", a.Provider, a.ProducerModel),
		})
	}

	results := make([]*models.Review, len(panel))
	sem := make(chan struct{}, o.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i := range panel {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = o.reviewOne(ctx, run, panel[idx], packet)
		}(i)
	}
	wg.Wait()

	reviews := make([]models.Review, 0, len(panel))
	for _, r := range results {
		if r != nil {
			reviews = append(reviews, *r)
		}
	}
	return reviews
}

func (o *Orchestrator) reviewOne(ctx context.Context, run *models.Run, rv reviewer, packet []PacketAnswer) *models.Review {
	adapter, ok := o.registry.Get(rv.Provider)
	if !ok {
		return nil
	}

	exclude := ""
	if o.cfg.SelfExclusion {
		exclude = rv.AnswerLabel
	}
	prompt := BuildReviewPrompt(run.Question, packet, !run.BlindReview, exclude)

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ReviewTimeout)
	defer cancel()

	result := adapter.GenerateReview(callCtx, llm.ReviewRequest{
		Model:       rv.Model,
		Prompt:      prompt,
		Temperature: o.cfg.ReviewTemperature,
		MaxTokens:   o.cfg.ReviewMaxTokens,
	})

	status := "ok"
	if result.Failed() {
		status = "error"
	}
	metrics.ProviderCalls.WithLabelValues(rv.Provider, "review", status).Inc()
	metrics.ProviderCallDuration.WithLabelValues(rv.Provider, "review").Observe(float64(result.LatencyMS) / 1000)

	if result.Failed() {
		logger.Error("Review call failed",
			zap.String("run_id", run.ID),
			zap.String("provider", rv.Provider),
			zap.String("model", rv.Model),
			zap.String("error", result.Error))
		return nil
	}

	parsed := ParseReviewResponse(result.RawResponse)
	if parsed.Fallback {
		metrics.ReviewParseFallbacks.Inc()
		logger.Warn("Review reply not parseable, using fallback",
			zap.String("run_id", run.ID),
			zap.String("provider", rv.Provider),
			zap.String("model", rv.Model))
	}
	metrics.ReviewConfidence.Observe(parsed.Confidence)

	return &models.Review{
		RunID:            run.ID,
		ReviewerProvider: rv.Provider,
		ReviewerModel:    rv.Display,
		ReviewerLabel:    rv.AnswerLabel,
		Judgments:        parsed.Judgments,
		PreferenceOrder:  parsed.RankOrder,
		Confidence:       parsed.Confidence,
		ParseFallback:    parsed.Fallback,
		RawResponse:      result.RawResponse,
		LatencyMS:        result.LatencyMS,
		CreatedAt:        time.Now(),
	}
}
