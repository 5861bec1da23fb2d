package llm

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Budget counts prompt tokens for a model.
type Budget struct {
	count func(string) int
}

// NewBudget uses the model's tiktoken encoding, falling back to cl100k_base
// and then to an estimate of four bytes per token when the encoding cannot
// be loaded (tiktoken fetches its tables on first use).
func NewBudget(model string, logger *zap.Logger) *Budget {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, estimating tokens", zap.String("model", model), zap.Error(err))
		return EstimateBudget()
	}
	return &Budget{count: func(s string) int { return len(enc.Encode(s, nil, nil)) }}
}

// EstimateBudget approximates tokens from the UTF-8 length.
func EstimateBudget() *Budget {
	return &Budget{count: func(s string) int {
		if s == "" {
			return 0
		}
		return max(1, (len(s)+3)/4)
	}}
}

// Count returns the token count of s.
func (b *Budget) Count(s string) int {
	return b.count(s)
}

// Fit returns the longest prefix of texts whose total token count stays
// within limit. Order is kept; a text that does not fit ends the prefix.
func (b *Budget) Fit(texts []string, limit int) []string {
	used := 0
	for i, t := range texts {
		n := b.count(t)
		if used+n > limit {
			return texts[:i]
		}
		used += n
	}
	return texts
}
