// internal/resolver/synthesizer.go
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/llmutil"
)

// synthesisResult is what the chunk-by-attempt loop learned: the last
// parsed suggestion (validated or not), the attempts charged, and the last
// failure diagnostic for the caller's reasoning field.
type synthesisResult struct {
	suggestion *schemas.SelectorSuggestion
	validated  bool
	attempts   int
	diagnostic string
}

// Synthesizer asks the model to write selectors for one HTML chunk at a
// time, tolerating malformed output and invalid selectors. A single bad
// response is never fatal; it consumes one attempt and the loop continues.
type Synthesizer struct {
	client    schemas.LLMClient
	validator *Validator
	logger    *zap.Logger
}

func NewSynthesizer(client schemas.LLMClient, validator *Validator, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		client:    client,
		validator: validator,
		logger:    logger.Named("synthesizer"),
	}
}

// Synthesize runs the chunk by attempt loop: per attempt one provider
// call, a parse of the reply, then validation of the suggestion's
// selectors in order, primary first. The first validated selector stops
// all loops.
// Provider errors (timeouts included) and unparseable output are charged
// against the attempt budget; only DOM transport failures and context
// cancellation abort the loop with an error.
func (s *Synthesizer) Synthesize(ctx context.Context, page schemas.Page, query schemas.ElementQuery, chunks []string) (synthesisResult, error) {
	result := synthesisResult{}
	if len(chunks) == 0 {
		result.diagnostic = "no HTML chunks to synthesize from"
		return result, nil
	}
	if s.client == nil {
		result.diagnostic = "no synthesis model configured"
		return result, nil
	}

	for chunkIdx, chunk := range chunks {
		for attempt := 1; attempt <= query.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if attempt > result.attempts {
				result.attempts = attempt
			}
			logger := s.logger.With(zap.Int("chunk", chunkIdx), zap.Int("attempt", attempt))

			raw, err := s.client.Complete(ctx, buildSynthesisPrompt(query.Description, query.TypeConstraint, chunk))
			if err != nil {
				result.diagnostic = fmt.Sprintf("provider call failed: %v", err)
				logger.Warn("Synthesis call failed; attempt charged.", zap.Error(err))
				continue
			}

			suggestion, err := llmutil.ParseJSONResponse[schemas.SelectorSuggestion](raw)
			if err != nil {
				result.diagnostic = fmt.Sprintf("unparseable model output: %v", err)
				logger.Debug("Model output failed all parse strategies; attempt charged.", zap.Error(err))
				continue
			}
			suggestion.Confidence = schemas.ClampConfidence(suggestion.Confidence)
			result.suggestion = suggestion

			selectors := orderedSelectors(suggestion)
			if len(selectors) == 0 {
				result.diagnostic = "model returned no selector"
				logger.Debug("Suggestion carried no selectors; attempt charged.")
				continue
			}

			validatedSelector := ""
			for _, sel := range selectors {
				outcome, err := s.validator.Validate(ctx, page, sel, query.TypeConstraint)
				if err != nil {
					return result, err
				}
				if ModeLenient.Accepts(outcome) {
					validatedSelector = sel
					break
				}
			}
			if validatedSelector == "" {
				result.diagnostic = fmt.Sprintf("no suggested selector validated (primary %q)", suggestion.Selector)
				logger.Debug("No suggested selector survived validation; attempt charged.",
					zap.String("primary", suggestion.Selector),
					zap.Int("alternatives", len(suggestion.Alternatives)))
				continue
			}

			result.suggestion = promoteSelector(*suggestion, validatedSelector)
			result.validated = true
			logger.Debug("Synthesized selector validated.", zap.String("selector", validatedSelector))
			return result, nil
		}
	}
	return result, nil
}

// orderedSelectors lists a suggestion's selectors in validation order:
// primary first, then alternatives, empties dropped.
func orderedSelectors(s *schemas.SelectorSuggestion) []string {
	out := make([]string, 0, 1+len(s.Alternatives))
	if strings.TrimSpace(s.Selector) != "" {
		out = append(out, s.Selector)
	}
	for _, alt := range s.Alternatives {
		if strings.TrimSpace(alt) != "" {
			out = append(out, alt)
		}
	}
	return out
}

// promoteSelector returns a copy of the suggestion with the validated
// selector promoted to primary and the remaining ones kept as alternatives.
func promoteSelector(s schemas.SelectorSuggestion, validated string) *schemas.SelectorSuggestion {
	if s.Selector == validated {
		return &s
	}
	alts := make([]string, 0, 1+len(s.Alternatives))
	if s.Selector != "" {
		alts = append(alts, s.Selector)
	}
	for _, alt := range s.Alternatives {
		if alt != validated {
			alts = append(alts, alt)
		}
	}
	s.Selector = validated
	s.Alternatives = alts
	return &s
}
