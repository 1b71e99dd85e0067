// internal/resolver/prompts.go
package resolver

import (
	"fmt"

	"github.com/quarkbyte/domscout/api/schemas"
)

// buildSynthesisPrompt renders the selector synthesis request for one HTML
// chunk. The response contract matches SelectorSuggestion's JSON shape.
func buildSynthesisPrompt(description string, t schemas.ElementType, chunk string) string {
	return fmt.Sprintf(`You are an expert at locating elements in HTML documents.

Find the single element best matching this description: %q
Required element type: %s

HTML fragment:
%s

Respond with only a single JSON object, no prose:
{"selector": "<css selector>", "confidence": <number 0.0-1.0>, "reasoning": "<one sentence>", "alternatives": ["<fallback css selector>"]}

Rules:
- Prefer stable attributes (id, name, aria-label, data attributes) over positional selectors.
- The selector must match exactly one element in the full document.
- Use standard CSS selector syntax only.
- If nothing matches the description, return an empty selector with confidence 0.`, description, t, chunk)
}

// buildSemanticCheckPrompt renders the yes/no corroboration question for a
// single element's markup.
func buildSemanticCheckPrompt(description, markup string) string {
	return fmt.Sprintf(`You are verifying an element match in an HTML document.

Description of the wanted element: %q

Element markup:
%s

Does this element match the description? Respond with only a single JSON object:
{"matches": <true|false>, "reasoning": "<one sentence>"}`, description, markup)
}

// buildIndexPickPrompt renders the last-resort request: choose one candidate
// from an enumerated list.
func buildIndexPickPrompt(description string, t schemas.ElementType, candidatesJSON string) string {
	return fmt.Sprintf(`You are selecting a UI element from a list of candidates extracted from a web page.

Description of the wanted element: %q
Required element type: %s

Candidates (JSON array, indexed):
%s

Pick the single best matching candidate. Respond with only a single JSON object:
{"index": <candidate index number>, "reasoning": "<one sentence>"}

If no candidate matches, use index -1.`, description, t, candidatesJSON)
}
