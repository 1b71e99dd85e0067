package schemas

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// -- Element Types --

// ElementType constrains a resolution to a semantic element category. The
// zero value is treated as ElementAuto.
type ElementType string

const (
	ElementAuto      ElementType = "auto" // No explicit constraint; match the interactive superset.
	ElementInput     ElementType = "input"
	ElementButton    ElementType = "button"
	ElementSelect    ElementType = "select"
	ElementCheckbox  ElementType = "checkbox"
	ElementRadio     ElementType = "radio"
	ElementTextarea  ElementType = "textarea"
	ElementDiv       ElementType = "div"
	ElementAnchor    ElementType = "a"
	ElementImage     ElementType = "img"
	ElementSpan      ElementType = "span"
	ElementParagraph ElementType = "p"
	ElementHeading   ElementType = "heading" // Any of h1 through h6.
	ElementTable     ElementType = "table"
	ElementAny       ElementType = "any" // Matches every tag; "*" normalizes to this.
)

var knownElementTypes = map[ElementType]struct{}{
	ElementAuto: {}, ElementInput: {}, ElementButton: {}, ElementSelect: {},
	ElementCheckbox: {}, ElementRadio: {}, ElementTextarea: {}, ElementDiv: {},
	ElementAnchor: {}, ElementImage: {}, ElementSpan: {}, ElementParagraph: {},
	ElementHeading: {}, ElementTable: {}, ElementAny: {},
}

// Valid reports whether t is one of the recognized element types.
func (t ElementType) Valid() bool {
	_, ok := knownElementTypes[t]
	return ok
}

// -- Sentinel Errors --

var (
	// ErrPageUnreachable indicates the browser page is gone or the DOM cannot
	// be reached at all. Resolution propagates this instead of retrying.
	ErrPageUnreachable = errors.New("page unreachable")
	// ErrEmptyDescription is returned when a query carries no description text.
	ErrEmptyDescription = errors.New("element description must not be empty")
)

// -- Query --

// ElementQuery is the immutable input to a resolution call: what the caller
// is looking for, phrased in natural language, plus an optional semantic
// type constraint and a retry budget for the synthesis path.
type ElementQuery struct {
	Description    string      `json:"description"`
	TypeConstraint ElementType `json:"type_constraint,omitempty"`
	MaxAttempts    int         `json:"max_attempts,omitempty"`
}

// Normalized returns a copy of the query with defaults applied: an unset
// type becomes ElementAuto ("*" is accepted as an alias for ElementAny) and
// MaxAttempts is raised to at least 1 (default 3 when unset).
func (q ElementQuery) Normalized() ElementQuery {
	out := q
	switch out.TypeConstraint {
	case "":
		out.TypeConstraint = ElementAuto
	case "*":
		out.TypeConstraint = ElementAny
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 3
	}
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	return out
}

// Validate checks the query after normalization.
func (q ElementQuery) Validate() error {
	if strings.TrimSpace(q.Description) == "" {
		return ErrEmptyDescription
	}
	if !q.TypeConstraint.Valid() {
		return fmt.Errorf("unknown element type %q", q.TypeConstraint)
	}
	return nil
}

// -- Candidates --

// BoundingBox holds element geometry in CSS pixels, as reported by the page.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Candidate is one DOM element lifted into a structured record for matching.
// Candidates are produced fresh for every resolution call and are never
// mutated after creation; they do not outlive the call that produced them.
type Candidate struct {
	Index       int         `json:"index"`     // Position in DOM document order.
	TagName     string      `json:"tag_name"`  // Lowercase tag name.
	Text        string      `json:"text"`      // Visible text, truncated to 100 chars.
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Class       string      `json:"class"`
	Placeholder string      `json:"placeholder"`
	Type        string      `json:"type"` // The type attribute, e.g. "checkbox".
	AriaLabel   string      `json:"aria_label"`
	Href        string      `json:"href"`
	Title       string      `json:"title"`
	Alt         string      `json:"alt"`
	IsVisible   bool        `json:"is_visible"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// -- Suggestions & Validation --

// SelectorSuggestion is a proposed selector from either the heuristic
// matcher or the AI synthesizer, before (or after) live validation.
type SelectorSuggestion struct {
	Selector     string   `json:"selector"`
	Confidence   float64  `json:"confidence"` // Always clamped into [0,1].
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// ClampConfidence forces a model- or heuristic-reported confidence into the
// [0,1] range. NaN collapses to 0.
func ClampConfidence(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidationOutcome records what the live DOM said about one selector.
type ValidationOutcome struct {
	Selector    string `json:"selector"`
	Exists      bool   `json:"exists"`
	UniqueCount int    `json:"unique_count"`
	TagMatches  bool   `json:"tag_matches"`
	TypeMatches bool   `json:"type_matches"`
}

// -- Result --

// Strategy identifies which resolution stage produced the final selector.
type Strategy string

const (
	StrategyHeuristic        Strategy = "heuristic"
	StrategyAI               Strategy = "ai"
	StrategySemanticFallback Strategy = "semantic_fallback"
	StrategyNone             Strategy = "none"
)

// ResolutionResult is the single value returned to callers. It is terminal:
// nothing mutates it after the orchestrator emits it.
//
// Validated == true guarantees the selector, re-queried at validation time,
// matched exactly one element satisfying the type constraint. An empty
// Selector always carries Validated == false.
type ResolutionResult struct {
	Selector     string   `json:"selector"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Validated    bool     `json:"validated"`
	Attempts     int      `json:"attempts"`
	Alternatives []string `json:"alternatives,omitempty"`
	StrategyUsed Strategy `json:"strategy_used"`
}

// -- Cache --

// CachedSelector is a previously validated resolution, keyed by page URL,
// description and type constraint. Cache hits are revalidated against the
// live DOM before reuse.
type CachedSelector struct {
	PageURL        string      `json:"page_url"`
	Description    string      `json:"description"`
	TypeConstraint ElementType `json:"type_constraint"`
	Selector       string      `json:"selector"`
	Confidence     float64     `json:"confidence"`
	Strategy       Strategy    `json:"strategy"`
	ResolvedAt     time.Time   `json:"resolved_at"`
}
