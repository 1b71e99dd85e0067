// internal/resolver/validator.go
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
)

// ValidationMode sets the acceptance bar for a selector depending on which
// strategy produced it.
type ValidationMode string

const (
	// ModeStrict requires exactly one live match with a compatible tag and
	// type. Heuristic-built selectors are positional guesses and must prove
	// uniqueness.
	ModeStrict ValidationMode = "strict"
	// ModeLenient accepts one or more compatible matches. Model-written
	// selectors are expected to be attribute-precise already.
	ModeLenient ValidationMode = "lenient"
	// ModeExistence only requires that the selector matches something. Used
	// by the index fallback, which picked the element itself and just needs
	// an address for it.
	ModeExistence ValidationMode = "existence"
)

// Accepts folds a validation outcome into pass/fail under the mode's bar.
func (m ValidationMode) Accepts(o schemas.ValidationOutcome) bool {
	switch m {
	case ModeStrict:
		return o.Exists && o.UniqueCount == 1 && o.TagMatches && o.TypeMatches
	case ModeLenient:
		return o.Exists && o.TagMatches && o.TypeMatches
	case ModeExistence:
		return o.Exists
	}
	return false
}

// Validator re-queries the live DOM for proposed selectors and grades the
// result against the requested type constraint.
type Validator struct {
	logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger.Named("validator")}
}

// Validate queries the DOM for selector and records existence, match count,
// and tag/type compatibility of the first match. A query transport failure
// is the only error path; an unparseable selector simply does not exist.
func (v *Validator) Validate(ctx context.Context, page schemas.Page, selector string, t schemas.ElementType) (schemas.ValidationOutcome, error) {
	outcome := schemas.ValidationOutcome{Selector: selector}
	if strings.TrimSpace(selector) == "" {
		return outcome, nil
	}

	matches, err := page.QueryAll(ctx, selector)
	if err != nil {
		return outcome, fmt.Errorf("failed to validate selector %q: %w", selector, err)
	}
	if len(matches) == 0 {
		v.logger.Debug("Selector matched nothing.", zap.String("selector", selector))
		return outcome, nil
	}

	first := matches[0]
	outcome.Exists = true
	outcome.UniqueCount = len(matches)
	outcome.TagMatches, outcome.TypeMatches = matchesConstraint(t, first.TagName, first.Type)
	return outcome, nil
}

// matchesConstraint grades a live element's tag name and type attribute
// against the constraint. The table is fixed: checkbox and radio demand the
// matching input type, heading admits h1 through h6, input admits textarea,
// button admits the button-like input types, and the remaining constraints
// require their own tag.
func matchesConstraint(t schemas.ElementType, tagName, typeAttr string) (tagMatches, typeMatches bool) {
	tag := strings.ToLower(tagName)
	typ := strings.ToLower(typeAttr)

	switch t {
	case schemas.ElementAuto, schemas.ElementAny, "":
		return true, true
	case schemas.ElementCheckbox:
		return tag == "input", tag == "input" && typ == "checkbox"
	case schemas.ElementRadio:
		return tag == "input", tag == "input" && typ == "radio"
	case schemas.ElementHeading:
		ok := len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
		return ok, ok
	case schemas.ElementInput:
		ok := tag == "input" || tag == "textarea"
		return ok, ok
	case schemas.ElementButton:
		if tag == "button" {
			return true, true
		}
		if tag == "input" {
			return true, typ == "button" || typ == "submit" || typ == "reset"
		}
		return false, false
	default:
		ok := tag == string(t)
		return ok, ok
	}
}
