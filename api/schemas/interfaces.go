package schemas

import (
	"context"
)

// -- Browser Interfaces --

// Page is the browser collaborator the resolution engine works against. It
// exposes read-only DOM access; the engine never navigates and never leaves
// the page in an altered state.
//
// Selector arguments accept standard CSS plus the engine's `:contains("…")`
// text predicate; implementations translate the predicate to whatever query
// mechanism the backing browser understands.
type Page interface {
	// ID returns the unique ID of the underlying browser session.
	ID() string
	// URL returns the page's current address.
	URL() string
	// Content returns the full serialized HTML of the current document.
	Content(ctx context.Context) (string, error)
	// QueryAll returns a structured Candidate for every element matching the
	// selector, in DOM document order.
	QueryAll(ctx context.Context, selector string) ([]Candidate, error)
	// Exists reports whether at least one element matches the selector.
	Exists(ctx context.Context, selector string) (bool, error)
	// Count returns the number of elements matching the selector.
	Count(ctx context.Context, selector string) (int, error)
	// OuterHTML returns the serialized markup of the first element matching
	// the selector.
	OuterHTML(ctx context.Context, selector string) (string, error)
	// Evaluate runs a JavaScript expression and unmarshals its result into out.
	Evaluate(ctx context.Context, expression string, out any) error
	// Close releases the underlying browser session.
	Close(ctx context.Context) error
}

// PageManager hands out live Page sessions. The batch runner acquires one
// session per input item and closes it on every exit path.
type PageManager interface {
	// NewPage opens a session and navigates it to the given URL, waiting for
	// the document to stabilize before returning.
	NewPage(ctx context.Context, url string) (Page, error)
	// Shutdown closes all outstanding sessions and the browser itself.
	Shutdown(ctx context.Context) error
}

// -- LLM Interfaces --

// ModelTier selects a model by a speed/capability preference rather than by
// concrete model name.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Cheap corroboration calls: yes/no checks, index picking.
	TierPowerful ModelTier = "powerful" // Selector synthesis over HTML chunks.
)

// LLMClient is the single contract every model provider adapts to: one
// prompt in, raw text out. The response is expected to contain JSON but is
// not guaranteed to be well formed; the parse is the caller's problem. No
// streaming.
type LLMClient interface {
	// Complete produces a text completion for the prompt. Errors cover
	// transport and provider failures; malformed content is not an error.
	Complete(ctx context.Context, prompt string) (string, error)
	// Close releases any resources held by the client.
	Close() error
}

// -- Store Interfaces --

// SelectorStore persists validated resolutions so that repeat queries
// against the same page can skip the full pipeline. Implementations must
// treat (page URL, description, type constraint) as the lookup key.
type SelectorStore interface {
	// Lookup returns the cached record for the key, or nil when absent.
	Lookup(ctx context.Context, pageURL, description string, t ElementType) (*CachedSelector, error)
	// Save upserts a validated resolution.
	Save(ctx context.Context, rec CachedSelector) error
}
