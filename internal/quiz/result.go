package quiz

import (
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-study/internal/codec"
	"github.com/p-n-ai/pai-study/internal/content"
)

// ReviewEntry is one question of a finished session as shown on the
// review screen.
type ReviewEntry struct {
	codec.ReviewItem
	Correct bool `json:"isCorrect"`
	Flagged bool `json:"isFlagged,omitempty"`
}

// FinalResult is the score of a finished session.
type FinalResult struct {
	Score       int           `json:"score"`
	Total       int           `json:"total"`
	TimeElapsed int           `json:"timeElapsed"` // seconds
	Details     []ReviewEntry `json:"details"`
}

// Attempt converts the result into a history record. The review is packed
// into SummaryData so it can be unpacked again by Review.
func (r FinalResult) Attempt(now time.Time) content.Attempt {
	items := make([]codec.ReviewItem, 0, len(r.Details))
	for _, d := range r.Details {
		items = append(items, d.ReviewItem)
	}
	return content.Attempt{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Score:          r.Score,
		TotalQuestions: r.Total,
		SummaryData:    codec.PackAttemptReview(items),
	}
}

// Review unpacks an attempt's summary into review entries. Correctness is
// recomputed from the stored indexes.
func Review(a content.Attempt) []ReviewEntry {
	items := codec.UnpackAttemptReview(a.SummaryData)
	out := make([]ReviewEntry, 0, len(items))
	for _, it := range items {
		out = append(out, ReviewEntry{ReviewItem: it, Correct: it.IsCorrect()})
	}
	return out
}

func score(questions []Question, elapsed int) FinalResult {
	res := FinalResult{
		Total:       len(questions),
		TimeElapsed: elapsed,
		Details:     make([]ReviewEntry, 0, len(questions)),
	}
	for _, q := range questions {
		item := codec.ReviewItem{
			Question:     q.Text,
			Answers:      q.Answers,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Hint,
			UserIndex:    q.UserIndex,
		}
		correct := item.IsCorrect()
		if correct {
			res.Score++
		}
		res.Details = append(res.Details, ReviewEntry{
			ReviewItem: item,
			Correct:    correct,
			Flagged:    q.Flagged,
		})
	}
	return res
}
