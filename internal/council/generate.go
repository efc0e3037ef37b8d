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

// applyDisplayLabels gives every participant a unique display label. An
// explicit label from the caller is kept. Otherwise the model name is used,
// numbered "#1", "#2" when the same provider and model appear more than
// once. A remaining collision gets a usage suffix so labels stay unique.
func applyDisplayLabels(participants []models.Participant) {
	duplicates := make(map[string]int, len(participants))
	for _, p := range participants {
		duplicates[p.Provider+"/"+p.Model]++
	}

	perModel := make(map[string]int, len(participants))
	usage := make(map[string]int, len(participants))

	for i := range participants {
		p := &participants[i]
		key := p.Provider + "/" + p.Model
		perModel[key]++

		label := p.DisplayLabel
		if label == "" {
			label = p.Model
			if duplicates[key] > 1 {
				label = fmt.Sprintf("%s #%d", p.Model, perModel[key])
			}
		}

		usage[label]++
		if usage[label] > 1 {
			label = fmt.Sprintf("%s #%d", label, usage[label])
		}

		p.DisplayLabel = label
	}
}

// displayName is the participant's deduplicated label, falling back to the
// bare model name for rosters that never went through applyDisplayLabels.
func displayName(p models.Participant) string {
	if p.DisplayLabel != "" {
		return p.DisplayLabel
	}
	return p.Model
}

// fanOutAnswers asks every participant the run's question concurrently,
// bounded by the configured semaphore. Results land in per-participant slots
// so blind labels follow participant order, never completion order.
func (o *Orchestrator) fanOutAnswers(ctx context.Context, run *models.Run, participants []models.Participant) []models.Answer {
	results := make([]llm.AnswerResult, len(participants))
	sem := make(chan struct{}, o.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for i := range participants {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = o.answerOne(ctx, run.Question, participants[idx])
		}(i)
	}
	wg.Wait()

	now := time.Now()
	answers := make([]models.Answer, len(participants))
	for i, p := range participants {
		res := results[i]
		answers[i] = models.Answer{
			RunID:         run.ID,
			Label:         labelFor(i),
			Provider:      p.Provider,
			ProducerModel: displayName(p),
			Text:          res.Text,
			Error:         res.Error,
			LatencyMS:     res.LatencyMS,
			TokensIn:      res.TokensIn,
			TokensOut:     res.TokensOut,
			CreatedAt:     now,
		}
	}
	return answers
}

func (o *Orchestrator) answerOne(ctx context.Context, question string, p models.Participant) llm.AnswerResult {
	adapter, ok := o.registry.Get(p.Provider)
	if !ok {
		return llm.AnswerResult{Error: fmt.Sprintf("unknown provider: %s", p.Provider)}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.AnswerTimeout)
	defer cancel()

	result := adapter.GenerateAnswer(callCtx, llm.AnswerRequest{
		Model:        p.Model,
		Question:     question,
		SystemPrompt: p.SystemPrompt,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
	})

	status := "ok"
	if result.Failed() {
		status = "error"
		logger.Error("Answer generation failed",
			zap.String("provider", p.Provider),
			zap.String("model", p.Model),
			zap.String("error", result.Error))
	}
	metrics.ProviderCalls.WithLabelValues(p.Provider, "answer", status).Inc()
	metrics.ProviderCallDuration.WithLabelValues(p.Provider, "answer").Observe(float64(result.LatencyMS) / 1000)
	if result.TokensIn > 0 {
		metrics.LLMTokensUsed.WithLabelValues(p.Provider, "input").Add(float64(result.TokensIn))
	}
	if result.TokensOut > 0 {
		metrics.LLMTokensUsed.WithLabelValues(p.Provider, "output").Add(float64(result.TokensOut))
	}

	return result
}
