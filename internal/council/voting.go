package council

import (
	"sort"

	"github.com/agent-council/backend/internal/storage/models"
)

// MethodVersionBorda names the aggregation algorithm stored with every
// result, so persisted rankings stay interpretable if the method changes.
const MethodVersionBorda = "borda_v1"

// AggregateVotes folds the recorded reviews into a final ranking over the
// eligible answers using a Borda count. Each sanitized ballot of length n
// awards n-1 points to its first label, n-2 to the second, down to 0. A
// review whose ballot sanitizes to empty contributes nothing, including its
// per-label scores. Ordering is Borda points, then mean overall score, then
// mean correctness, then label, so equal inputs always produce the same
// ranking.
func AggregateVotes(reviews []models.Review, eligible []models.Answer) *models.AggregationResult {
	labels := make([]string, 0, len(eligible))
	byLabel := make(map[string]models.Answer, len(eligible))
	for _, a := range eligible {
		labels = append(labels, a.Label)
		byLabel[a.Label] = a
	}

	borda := make(map[string]int, len(labels))
	firstPlace := make(map[string]int, len(labels))
	for _, l := range labels {
		borda[l] = 0
		firstPlace[l] = 0
	}

	overallSums := make(map[string]float64, len(labels))
	correctnessSums := make(map[string]float64, len(labels))
	scoreCounts := make(map[string]int, len(labels))

	for _, review := range reviews {
		ballot := sanitizeBallot(review.PreferenceOrder, byLabel)
		if len(ballot) == 0 {
			continue
		}

		n := len(ballot)
		for i, label := range ballot {
			borda[label] += n - 1 - i
		}
		firstPlace[ballot[0]]++

		for _, j := range review.Judgments {
			if _, ok := byLabel[j.AnswerLabel]; !ok {
				continue
			}
			overallSums[j.AnswerLabel] += j.Scores.Overall
			correctnessSums[j.AnswerLabel] += j.Scores.Correctness
			scoreCounts[j.AnswerLabel]++
		}
	}

	averages := make(map[string]models.ScoreAverage, len(labels))
	for _, l := range labels {
		avg := models.ScoreAverage{}
		if scoreCounts[l] > 0 {
			avg.MeanOverall = overallSums[l] / float64(scoreCounts[l])
			avg.MeanCorrectness = correctnessSums[l] / float64(scoreCounts[l])
		}
		averages[l] = avg
	}

	ordered := append([]string(nil), labels...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if borda[a] != borda[b] {
			return borda[a] > borda[b]
		}
		if averages[a].MeanOverall != averages[b].MeanOverall {
			return averages[a].MeanOverall > averages[b].MeanOverall
		}
		if averages[a].MeanCorrectness != averages[b].MeanCorrectness {
			return averages[a].MeanCorrectness > averages[b].MeanCorrectness
		}
		return a < b
	})

	ranking := make([]models.RankedAnswer, 0, len(ordered))
	for pos, label := range ordered {
		answer := byLabel[label]
		ranking = append(ranking, models.RankedAnswer{
			Position:        pos + 1,
			Label:           label,
			Provider:        answer.Provider,
			ProducerModel:   answer.ProducerModel,
			BordaPoints:     borda[label],
			FirstPlaceVotes: firstPlace[label],
			MeanOverall:     averages[label].MeanOverall,
			MeanCorrectness: averages[label].MeanCorrectness,
		})
	}

	return &models.AggregationResult{
		MethodVersion:   MethodVersionBorda,
		FinalRanking:    ranking,
		BordaTotals:     borda,
		FirstPlaceVotes: firstPlace,
		ScoreAverages:   averages,
	}
}

// sanitizeBallot drops labels that do not belong to an eligible answer and
// keeps only the first occurrence of each label, preserving order.
func sanitizeBallot(order []string, eligible map[string]models.Answer) []string {
	seen := make(map[string]bool, len(order))
	var ballot []string
	for _, label := range order {
		if _, ok := eligible[label]; !ok {
			continue
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		ballot = append(ballot, label)
	}
	return ballot
}
