// internal/resolver/ranker.go
package resolver

import "github.com/quarkbyte/domscout/api/schemas"

// ResolutionAttempt is one strategy iteration's immutable outcome. Attempts
// are produced complete and folded into a running best by the Ranker, so no
// loose selector/confidence/validated variables leak across strategies.
type ResolutionAttempt struct {
	Suggestion schemas.SelectorSuggestion
	Strategy   schemas.Strategy
	// Accepted marks attempts a strategy emitted as its answer. Unaccepted
	// attempts (an unvalidated synthesis suggestion) are observed for
	// ranking but never become the final selector.
	Accepted bool
	// Validated is true only when the selector matched exactly one element
	// satisfying the type constraint at validation time.
	Validated bool
}

// rank orders attempt classes: validated beats accepted-but-unvalidated
// beats merely observed, regardless of confidence.
func (a ResolutionAttempt) rank() int {
	switch {
	case a.Validated:
		return 2
	case a.Accepted:
		return 1
	default:
		return 0
	}
}

// outranks reports whether a should replace b as the running best. Equal
// ranks fall back to confidence; ties keep the earlier attempt.
func outranks(a, b ResolutionAttempt) bool {
	if ar, br := a.rank(), b.rank(); ar != br {
		return ar > br
	}
	return a.Suggestion.Confidence > b.Suggestion.Confidence
}

// Ranker folds attempts into the best seen so far.
type Ranker struct {
	best *ResolutionAttempt
}

// Observe folds one attempt into the running best.
func (r *Ranker) Observe(a ResolutionAttempt) {
	if r.best == nil || outranks(a, *r.best) {
		r.best = &a
	}
}

// Best returns the highest-ranked attempt observed, or nil when none.
func (r *Ranker) Best() *ResolutionAttempt {
	return r.best
}
