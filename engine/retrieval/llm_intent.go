package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Completer is the narrow contract to the external intent parser: one
// instruction-plus-query exchange returning raw text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// intentInstruction is the fixed template sent with every query.
const intentInstruction = `You turn a shopper's message into a JSON retrieval plan for a
product catalog spanning ebay (English listings), momo and pchome (Chinese listings).
Reply with ONLY a JSON object, no prose and no code fences, with fields:
  "ebay_count", "momo_count", "pchome_count": integers >= 0, results wanted per site
  "keyword": the single product search term, or "" if none is clear
  "price_floor", "price_ceiling": price bounds in New Taiwan Dollar, 0 when unconstrained
When the user names no site, spread a total of 6 results evenly across all three.`

// LLMIntentParser derives a QueryIntent from query text via a Completer.
type LLMIntentParser struct {
	llm Completer
}

// NewLLMIntentParser creates the parser.
func NewLLMIntentParser(llm Completer) *LLMIntentParser {
	return &LLMIntentParser{llm: llm}
}

// Parse implements IntentParser. Output that cannot be decoded as the
// expected record is a hard failure for this request only.
func (p *LLMIntentParser) Parse(ctx context.Context, query string) (QueryIntent, error) {
	out, err := p.llm.Complete(ctx, intentInstruction, query)
	if err != nil {
		return QueryIntent{}, fmt.Errorf("retrieval: intent completion: %w", err)
	}
	return ParseIntent([]byte(stripFences(out)))
}

// stripFences removes a markdown code fence the model sometimes wraps
// around the JSON despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
