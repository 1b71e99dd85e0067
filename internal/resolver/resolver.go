// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/config"
	"github.com/quarkbyte/domscout/internal/llmutil"
)

// resolutionState names one phase of the strategy ladder.
type resolutionState string

const (
	stateHeuristic        resolutionState = "HEURISTIC"         // Local attribute matching, no network.
	stateAISynthesis      resolutionState = "AI_SYNTHESIS"      // Model writes selectors per chunk.
	stateSemanticFallback resolutionState = "SEMANTIC_FALLBACK" // Model picks one enumerated candidate.
	stateDone             resolutionState = "DONE"              // Terminal; emits the result.
)

const (
	defaultCandidateCap      = 50
	defaultSemanticThreshold = 0.9
	fallbackConfidence       = 0.5
)

// ClientRouter supplies the model tiers the engine calls: powerful for
// selector synthesis, fast for corroboration and the index fallback.
type ClientRouter interface {
	Client(tier schemas.ModelTier) schemas.LLMClient
}

// Engine is the resolution orchestrator: a small state machine sequencing
// cheap local heuristics, then chunked model synthesis, then one last
// "pick an index" call before giving up.
type Engine struct {
	cfg       config.ResolverConfig
	router    ClientRouter
	store     schemas.SelectorStore
	snapshots *Snapshotter
	matcher   *HeuristicMatcher
	validator *Validator
	semantic  *SemanticValidator
	logger    *zap.Logger
}

// NewEngine wires the engine. router may be nil (heuristic-only operation);
// store may be nil (caching disabled).
func NewEngine(cfg config.ResolverConfig, router ClientRouter, store schemas.SelectorStore, logger *zap.Logger) *Engine {
	logger = logger.Named("resolver")
	validator := NewValidator(logger)

	e := &Engine{
		cfg:       cfg,
		router:    router,
		store:     store,
		snapshots: NewSnapshotter(cfg.MaxBodyLength, logger),
		matcher:   NewHeuristicMatcher(validator, logger),
		validator: validator,
		logger:    logger,
	}
	if router != nil {
		e.semantic = NewSemanticValidator(router.Client(schemas.TierFast), logger)
	}
	if cfg.UseAI && router == nil {
		logger.Warn("AI synthesis enabled but no model router provided; running heuristic-only.")
	}
	return e
}

// Resolve runs the strategy ladder for one query against a live page. The
// returned error is non-nil only for transport-level failures (page gone,
// context canceled); "nothing found" is a nil-error result with
// Validated=false and the last diagnostic in Reasoning. Resolve never
// navigates the page.
func (e *Engine) Resolve(ctx context.Context, page schemas.Page, query schemas.ElementQuery) (schemas.ResolutionResult, error) {
	if page == nil {
		return noneResult(), fmt.Errorf("%w: no page provided", schemas.ErrPageUnreachable)
	}
	if query.MaxAttempts == 0 && e.cfg.MaxAttempts > 0 {
		query.MaxAttempts = e.cfg.MaxAttempts
	}
	query = query.Normalized()
	if err := query.Validate(); err != nil {
		return noneResult(), err
	}

	logger := e.logger.With(
		zap.String("description", query.Description),
		zap.String("type", string(query.TypeConstraint)))

	if res, ok, err := e.lookupCache(ctx, page, query, logger); err != nil {
		return noneResult(), err
	} else if ok {
		return res, nil
	}

	snap, err := e.snapshots.Capture(ctx, page, query.TypeConstraint)
	if err != nil {
		return noneResult(), err
	}
	logger.Debug("Snapshot captured.",
		zap.Int("candidates", len(snap.Candidates)),
		zap.Int("html_length", len(snap.HTML)))

	ranker := &Ranker{}
	attempts := 0
	lastDiagnostic := ""

	state := stateHeuristic
	for state != stateDone {
		if err := ctx.Err(); err != nil {
			return noneResult(), err
		}

		switch state {
		case stateHeuristic:
			suggestion, err := e.matcher.Match(ctx, page, query, snap.Candidates)
			if err != nil {
				return noneResult(), err
			}
			if suggestion != nil && e.corroborate(ctx, page, query, suggestion) {
				ranker.Observe(ResolutionAttempt{
					Suggestion: *suggestion,
					Strategy:   schemas.StrategyHeuristic,
					Accepted:   true,
					Validated:  true,
				})
				state = e.transition(logger, state, stateDone)
				continue
			}
			if suggestion != nil {
				lastDiagnostic = "heuristic match rejected by semantic corroboration"
			} else {
				lastDiagnostic = "no heuristic attribute match"
			}
			if e.cfg.UseAI && e.router != nil {
				state = e.transition(logger, state, stateAISynthesis)
			} else {
				state = e.transition(logger, state, stateDone)
			}

		case stateAISynthesis:
			chunks := FilterAndChunk(snap.HTML, query.TypeConstraint, e.cfg.MaxChunkLength)
			synth := NewSynthesizer(e.router.Client(schemas.TierPowerful), e.validator, e.logger)
			sres, err := synth.Synthesize(ctx, page, query, chunks)
			if err != nil {
				return noneResult(), err
			}
			attempts = sres.attempts
			if sres.suggestion != nil {
				ranker.Observe(ResolutionAttempt{
					Suggestion: *sres.suggestion,
					Strategy:   schemas.StrategyAI,
					Accepted:   sres.validated,
					Validated:  sres.validated,
				})
			}
			if sres.validated {
				state = e.transition(logger, state, stateDone)
				continue
			}
			if sres.diagnostic != "" {
				lastDiagnostic = sres.diagnostic
			}
			state = e.transition(logger, state, stateSemanticFallback)

		case stateSemanticFallback:
			attempt, diagnostic, err := e.semanticIndexFallback(ctx, page, query, snap.Candidates)
			if err != nil {
				return noneResult(), err
			}
			if attempt != nil {
				ranker.Observe(*attempt)
			} else if diagnostic != "" {
				lastDiagnostic = diagnostic
			}
			state = e.transition(logger, state, stateDone)
		}
	}

	result := finalize(ranker.Best(), attempts, lastDiagnostic)
	logger.Info("Resolution complete.",
		zap.String("selector", result.Selector),
		zap.Bool("validated", result.Validated),
		zap.String("strategy", string(result.StrategyUsed)),
		zap.Int("attempts", result.Attempts))
	e.saveCache(ctx, page, query, result, logger)
	return result, nil
}

func (e *Engine) transition(logger *zap.Logger, from, to resolutionState) resolutionState {
	logger.Debug("Resolution state transition.",
		zap.String("from", string(from)), zap.String("to", string(to)))
	return to
}

func noneResult() schemas.ResolutionResult {
	return schemas.ResolutionResult{StrategyUsed: schemas.StrategyNone}
}

// finalize folds the best attempt into the terminal result. Only accepted
// attempts may populate the selector; exhaustion yields an empty selector
// with the last diagnostic as reasoning.
func finalize(best *ResolutionAttempt, attempts int, diagnostic string) schemas.ResolutionResult {
	if best == nil || !best.Accepted {
		if diagnostic == "" {
			diagnostic = "no strategy produced a selector"
		}
		return schemas.ResolutionResult{
			Reasoning:    diagnostic,
			Attempts:     attempts,
			StrategyUsed: schemas.StrategyNone,
		}
	}
	return schemas.ResolutionResult{
		Selector:     best.Suggestion.Selector,
		Confidence:   schemas.ClampConfidence(best.Suggestion.Confidence),
		Reasoning:    best.Suggestion.Reasoning,
		Validated:    best.Validated,
		Attempts:     attempts,
		Alternatives: best.Suggestion.Alternatives,
		StrategyUsed: best.Strategy,
	}
}

// corroborate optionally double-checks a heuristic match with the fast
// model; it runs only when semantic validation is enabled and the match's
// confidence falls below the configured threshold.
func (e *Engine) corroborate(ctx context.Context, page schemas.Page, query schemas.ElementQuery, s *schemas.SelectorSuggestion) bool {
	if !e.cfg.SemanticValidation || e.semantic == nil {
		return true
	}
	threshold := e.cfg.SemanticThreshold
	if threshold <= 0 {
		threshold = defaultSemanticThreshold
	}
	if s.Confidence >= threshold {
		return true
	}
	return e.semantic.Corroborate(ctx, page, s.Selector, query.Description)
}

// -- Semantic Index Fallback --

// fallbackCandidate is the geometry-stripped candidate view sent to the
// index prompt.
type fallbackCandidate struct {
	Index       int    `json:"index"`
	TagName     string `json:"tag_name"`
	Text        string `json:"text,omitempty"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Class       string `json:"class,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Type        string `json:"type,omitempty"`
	AriaLabel   string `json:"aria_label,omitempty"`
	Href        string `json:"href,omitempty"`
	Title       string `json:"title,omitempty"`
	Alt         string `json:"alt,omitempty"`
}

// indexPick mirrors the fallback prompt's JSON contract.
type indexPick struct {
	Index     int    `json:"index"`
	Reasoning string `json:"reasoning"`
}

// semanticIndexFallback is the last resort: enumerate the candidates
// (capped, geometry stripped) and ask the fast model to pick one index,
// then address that candidate via the selector rule ladder. Acceptance is
// existence only; the returned attempt's Validated flag still reflects the
// strict bar so it never overstates what was checked.
func (e *Engine) semanticIndexFallback(ctx context.Context, page schemas.Page, query schemas.ElementQuery, candidates []schemas.Candidate) (*ResolutionAttempt, string, error) {
	if e.router == nil {
		return nil, "no model router for semantic fallback", nil
	}
	if len(candidates) == 0 {
		return nil, "no candidates for semantic fallback", nil
	}

	limit := e.cfg.CandidateCap
	if limit <= 0 {
		limit = defaultCandidateCap
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	enumerated := make([]fallbackCandidate, len(candidates))
	for i, c := range candidates {
		enumerated[i] = fallbackCandidate{
			Index:       c.Index,
			TagName:     c.TagName,
			Text:        c.Text,
			ID:          c.ID,
			Name:        c.Name,
			Class:       c.Class,
			Placeholder: c.Placeholder,
			Type:        c.Type,
			AriaLabel:   c.AriaLabel,
			Href:        c.Href,
			Title:       c.Title,
			Alt:         c.Alt,
		}
	}
	payload, err := json.Marshal(enumerated)
	if err != nil {
		return nil, fmt.Sprintf("failed to encode candidates: %v", err), nil
	}

	prompt := buildIndexPickPrompt(query.Description, query.TypeConstraint, string(payload))
	raw, err := e.router.Client(schemas.TierFast).Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("Semantic fallback call failed.", zap.Error(err))
		return nil, fmt.Sprintf("semantic fallback provider call failed: %v", err), nil
	}

	pick, err := llmutil.ParseJSONResponse[indexPick](raw)
	if err != nil {
		return nil, fmt.Sprintf("semantic fallback returned unparseable output: %v", err), nil
	}
	if pick.Index < 0 || pick.Index >= len(candidates) {
		return nil, fmt.Sprintf("semantic fallback picked no usable candidate (index %d)", pick.Index), nil
	}

	chosen := candidates[pick.Index]
	selector, ruleName, err := selectorForCandidate(ctx, page, chosen, func(count int) bool { return count >= 1 })
	if err != nil {
		return nil, "", err
	}
	if selector == "" {
		return nil, fmt.Sprintf("no live selector found for fallback candidate %d", pick.Index), nil
	}

	outcome, err := e.validator.Validate(ctx, page, selector, query.TypeConstraint)
	if err != nil {
		return nil, "", err
	}
	reasoning := pick.Reasoning
	if reasoning == "" {
		reasoning = fmt.Sprintf("model picked candidate %d (%s rule)", pick.Index, ruleName)
	}
	return &ResolutionAttempt{
		Suggestion: schemas.SelectorSuggestion{
			Selector:   selector,
			Confidence: fallbackConfidence,
			Reasoning:  reasoning,
		},
		Strategy:  schemas.StrategySemanticFallback,
		Accepted:  true,
		Validated: ModeStrict.Accepts(outcome),
	}, "", nil
}

// -- Cache --

func (e *Engine) lookupCache(ctx context.Context, page schemas.Page, query schemas.ElementQuery, logger *zap.Logger) (schemas.ResolutionResult, bool, error) {
	if e.store == nil || page.URL() == "" {
		return schemas.ResolutionResult{}, false, nil
	}

	rec, err := e.store.Lookup(ctx, page.URL(), query.Description, query.TypeConstraint)
	if err != nil {
		logger.Warn("Selector cache lookup failed; resolving fresh.", zap.Error(err))
		return schemas.ResolutionResult{}, false, nil
	}
	if rec == nil || rec.Selector == "" {
		return schemas.ResolutionResult{}, false, nil
	}

	// Cache hits are revalidated against the live DOM before reuse.
	outcome, err := e.validator.Validate(ctx, page, rec.Selector, query.TypeConstraint)
	if err != nil {
		return schemas.ResolutionResult{}, false, err
	}
	if !ModeStrict.Accepts(outcome) {
		logger.Debug("Cached selector no longer valid; resolving fresh.", zap.String("selector", rec.Selector))
		return schemas.ResolutionResult{}, false, nil
	}

	logger.Debug("Cache hit; cached selector revalidated.", zap.String("selector", rec.Selector))
	return schemas.ResolutionResult{
		Selector:     rec.Selector,
		Confidence:   schemas.ClampConfidence(rec.Confidence),
		Reasoning:    "cached selector revalidated against the live DOM",
		Validated:    true,
		StrategyUsed: rec.Strategy,
	}, true, nil
}

func (e *Engine) saveCache(ctx context.Context, page schemas.Page, query schemas.ElementQuery, result schemas.ResolutionResult, logger *zap.Logger) {
	if e.store == nil || !result.Validated || page.URL() == "" {
		return
	}
	rec := schemas.CachedSelector{
		PageURL:        page.URL(),
		Description:    query.Description,
		TypeConstraint: query.TypeConstraint,
		Selector:       result.Selector,
		Confidence:     result.Confidence,
		Strategy:       result.StrategyUsed,
		ResolvedAt:     time.Now().UTC(),
	}
	if err := e.store.Save(ctx, rec); err != nil {
		logger.Warn("Selector cache save failed.", zap.Error(err))
	}
}
