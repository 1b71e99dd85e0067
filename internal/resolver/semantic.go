// internal/resolver/semantic.go
package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/llmutil"
)

// defaultSemanticMarkupLimit caps the element markup sent for corroboration.
const defaultSemanticMarkupLimit = 1200

// semanticVerdict mirrors the strict yes/no contract of the corroboration
// prompt.
type semanticVerdict struct {
	Matches   bool   `json:"matches"`
	Reasoning string `json:"reasoning"`
}

// SemanticValidator corroborates an uncertain match by asking the model a
// yes/no question about one element's markup. Availability beats
// strictness here: any failure of the corroboration call itself counts as
// agreement, so an outage cannot discard an otherwise good match.
type SemanticValidator struct {
	client      schemas.LLMClient
	markupLimit int
	logger      *zap.Logger
}

func NewSemanticValidator(client schemas.LLMClient, logger *zap.Logger) *SemanticValidator {
	return &SemanticValidator{
		client:      client,
		markupLimit: defaultSemanticMarkupLimit,
		logger:      logger.Named("semantic"),
	}
}

// Corroborate reports whether the element behind selector matches the
// description. Returns true on provider failure, unreadable markup, or
// unparseable output.
func (s *SemanticValidator) Corroborate(ctx context.Context, page schemas.Page, selector, description string) bool {
	if s.client == nil {
		return true
	}

	markup, err := page.OuterHTML(ctx, selector)
	if err != nil || strings.TrimSpace(markup) == "" {
		s.logger.Debug("Could not read element markup; accepting the match.",
			zap.String("selector", selector), zap.Error(err))
		return true
	}
	markup = truncateRunes(markup, s.markupLimit)

	raw, err := s.client.Complete(ctx, buildSemanticCheckPrompt(description, markup))
	if err != nil {
		s.logger.Warn("Semantic corroboration call failed; accepting the match.", zap.Error(err))
		return true
	}

	verdict, err := llmutil.ParseJSONResponse[semanticVerdict](raw)
	if err != nil {
		s.logger.Debug("Semantic corroboration returned malformed JSON; accepting the match.", zap.Error(err))
		return true
	}
	if !verdict.Matches {
		s.logger.Debug("Semantic corroboration rejected the selector.",
			zap.String("selector", selector), zap.String("reasoning", verdict.Reasoning))
	}
	return verdict.Matches
}
