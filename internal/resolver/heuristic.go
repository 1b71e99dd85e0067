// internal/resolver/heuristic.go
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
)

const (
	confidenceExact = 0.98
	confidenceFuzzy = 0.85
)

type matchKind string

const (
	matchExact matchKind = "exact"
	matchFuzzy matchKind = "fuzzy"
)

// HeuristicMatcher finds selectors from local attribute comparison alone,
// with no model involvement. It is the first and cheapest strategy.
type HeuristicMatcher struct {
	validator *Validator
	logger    *zap.Logger
}

func NewHeuristicMatcher(validator *Validator, logger *zap.Logger) *HeuristicMatcher {
	return &HeuristicMatcher{
		validator: validator,
		logger:    logger.Named("heuristic"),
	}
}

// Match scans candidates in document order for an attribute-level match of
// the description and returns the first one that also yields a unique,
// constraint-compatible live selector. Returns nil when nothing matches;
// only DOM transport failures produce an error.
func (m *HeuristicMatcher) Match(ctx context.Context, page schemas.Page, query schemas.ElementQuery, candidates []schemas.Candidate) (*schemas.SelectorSuggestion, error) {
	desc := strings.ToLower(strings.TrimSpace(query.Description))
	if desc == "" {
		return nil, nil
	}
	tokens := tokenize(desc)

	for _, c := range candidates {
		kind, ok := classifyMatch(desc, tokens, c)
		if !ok {
			continue
		}

		selector, ruleName, err := selectorForCandidate(ctx, page, c, func(count int) bool { return count == 1 })
		if err != nil {
			return nil, err
		}
		if selector == "" {
			m.logger.Debug("Matched candidate has no unique selector; skipping.",
				zap.Int("candidate_index", c.Index), zap.String("match", string(kind)))
			continue
		}

		outcome, err := m.validator.Validate(ctx, page, selector, query.TypeConstraint)
		if err != nil {
			return nil, err
		}
		if !ModeStrict.Accepts(outcome) {
			m.logger.Debug("Unique selector failed constraint validation; skipping candidate.",
				zap.String("selector", selector),
				zap.Bool("tag_matches", outcome.TagMatches),
				zap.Bool("type_matches", outcome.TypeMatches))
			continue
		}

		confidence := confidenceFuzzy
		if kind == matchExact {
			confidence = confidenceExact
		}
		m.logger.Debug("Heuristic match found.",
			zap.String("selector", selector),
			zap.String("match", string(kind)),
			zap.String("rule", ruleName))
		return &schemas.SelectorSuggestion{
			Selector:   selector,
			Confidence: confidence,
			Reasoning:  fmt.Sprintf("%s attribute match via %s rule", kind, ruleName),
		}, nil
	}
	return nil, nil
}

// tokenize lowers the description to its significant tokens: whitespace
// separated, punctuation trimmed, longer than two characters.
func tokenize(desc string) []string {
	fields := strings.Fields(desc)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,!?;:"'()[]`)
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// matchAttributes collects the candidate fields eligible for description
// matching, lowercased, empties dropped.
func matchAttributes(c schemas.Candidate) []string {
	raw := []string{c.ID, c.Name, c.Placeholder, c.Text, c.AriaLabel, c.Href, c.Title, c.Alt}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if v != "" {
			values = append(values, strings.ToLower(v))
		}
	}
	return values
}

// reduceByElement drops tokens the element itself already answers for: a
// token equal to the tag name or the type attribute describes the element
// kind, not its identifying text ("submit button" on a <button> reduces to
// "submit"). Returns "" when no token was dropped.
func reduceByElement(tokens []string, c schemas.Candidate) string {
	tag := strings.ToLower(c.TagName)
	typ := strings.ToLower(c.Type)
	remaining := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == tag || (typ != "" && tok == typ) {
			continue
		}
		remaining = append(remaining, tok)
	}
	if len(remaining) == len(tokens) {
		return ""
	}
	return strings.Join(remaining, " ")
}

// classifyMatch grades one candidate against the description. Exact: some
// attribute equals the full description, or equals the description reduced
// by the element's own kind words. Fuzzy: every token must be a substring
// of at least one attribute value, so coverage is conjunctive.
func classifyMatch(desc string, tokens []string, c schemas.Candidate) (matchKind, bool) {
	values := matchAttributes(c)
	if len(values) == 0 {
		return "", false
	}

	reduced := reduceByElement(tokens, c)
	for _, v := range values {
		if v == desc || (reduced != "" && v == reduced) {
			return matchExact, true
		}
	}

	if len(tokens) == 0 {
		return "", false
	}
	for _, tok := range tokens {
		covered := false
		for _, v := range values {
			if strings.Contains(v, tok) {
				covered = true
				break
			}
		}
		if !covered {
			return "", false
		}
	}
	return matchFuzzy, true
}
