package window

import "convwin/internal/conversation"

// TokenCounter estimates token counts for text and messages.
// Window bounds are message counts; the estimate is only reported for observability.
type TokenCounter struct{}

// NewTokenCounter creates a new TokenCounter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// EstimateText estimates the token count for a given text.
// This uses a simple heuristic: approximately 3 characters per token,
// which works reasonably well for mixed English/Chinese content.
func (tc *TokenCounter) EstimateText(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 2) / 3
}

// EstimateMessages estimates the total token count for a slice of messages,
// adding ~4 tokens of overhead per message for role and separators.
func (tc *TokenCounter) EstimateMessages(messages []conversation.Message) int {
	total := 0
	for _, msg := range messages {
		total += tc.EstimateText(msg.Content)
		total += 4
	}
	return total
}
