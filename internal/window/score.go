package window

import "convwin/internal/conversation"

// Perturbations are expressed as fractions of one index step. Their combined
// magnitude must stay below 1 so that age always dominates.
const (
	summaryAdjustment = -0.5
	errorAdjustment   = 0.25
)

// AgeScore ranks a message's eviction priority. Higher scores are evicted first.
//
// The base is the normalized age: index 0 scores 1, index total-1 scores 0.
// Already-summarized entries are nudged down and error entries nudged up, both
// by less than one index step, so for i1 < i2 the score of i1 is never below
// the score of i2 whatever the two messages contain.
func AgeScore(index, total int, msg conversation.Message) float64 {
	if total < 1 {
		total = 1
	}
	if index < 0 {
		index = 0
	}
	if index > total-1 {
		index = total - 1
	}

	span := total - 1
	if span < 1 {
		span = 1
	}
	step := 1.0 / float64(span)
	score := float64(total-1-index) * step

	switch {
	case msg.IsConversationSummary():
		score += summaryAdjustment * step
	case msg.Role == conversation.RoleError:
		score += errorAdjustment * step
	}
	return score
}
