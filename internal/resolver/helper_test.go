// internal/resolver/helper_test.go
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarkbyte/domscout/api/schemas"
)

// -- Page Fake --

// fakePage is an in-memory Page for unit tests. QueryAll and Count answer
// from the candidates map keyed by selector; every query is recorded in
// order so tests can assert which selectors were probed.
type fakePage struct {
	mu         sync.Mutex
	id         string
	url        string
	content    string
	contentErr error
	candidates map[string][]schemas.Candidate
	queryErr   map[string]error
	outerHTML  map[string]string
	queryLog   []string
}

var _ schemas.Page = (*fakePage)(nil)

func newFakePage(url, content string) *fakePage {
	return &fakePage{
		id:         "page-test",
		url:        url,
		content:    content,
		candidates: make(map[string][]schemas.Candidate),
		queryErr:   make(map[string]error),
		outerHTML:  make(map[string]string),
	}
}

func (p *fakePage) ID() string  { return p.id }
func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Content(ctx context.Context) (string, error) {
	if p.contentErr != nil {
		return "", p.contentErr
	}
	return p.content, nil
}

func (p *fakePage) QueryAll(ctx context.Context, selector string) ([]schemas.Candidate, error) {
	p.mu.Lock()
	p.queryLog = append(p.queryLog, selector)
	p.mu.Unlock()
	if err := p.queryErr[selector]; err != nil {
		return nil, err
	}
	return p.candidates[selector], nil
}

func (p *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	n, err := p.Count(ctx, selector)
	return n > 0, err
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	matches, err := p.QueryAll(ctx, selector)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (p *fakePage) OuterHTML(ctx context.Context, selector string) (string, error) {
	return p.outerHTML[selector], nil
}

func (p *fakePage) Evaluate(ctx context.Context, expression string, out any) error { return nil }
func (p *fakePage) Close(ctx context.Context) error                                { return nil }

// queries returns a copy of the selectors queried so far, probe calls
// included.
func (p *fakePage) queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queryLog...)
}

// -- LLM Fakes --

type llmReply struct {
	text string
	err  error
}

// fakeLLM replays scripted replies in order. A call past the end of the
// script fails, so tests catch strategies making more calls than expected.
type fakeLLM struct {
	mu      sync.Mutex
	replies []llmReply
	prompts []string
}

var _ schemas.LLMClient = (*fakeLLM)(nil)

func (c *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.replies) == 0 {
		return "", fmt.Errorf("unscripted completion call %d", len(c.prompts))
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.text, r.err
}

func (c *fakeLLM) Close() error { return nil }

func (c *fakeLLM) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func (c *fakeLLM) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

// fakeRouter hands out one scripted client per tier.
type fakeRouter struct {
	fast     *fakeLLM
	powerful *fakeLLM
}

var _ ClientRouter = (*fakeRouter)(nil)

func (r *fakeRouter) Client(tier schemas.ModelTier) schemas.LLMClient {
	if tier == schemas.TierFast {
		return r.fast
	}
	return r.powerful
}

// -- Store Fake --

// fakeStore is an in-memory SelectorStore recording every save.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]schemas.CachedSelector
	lookupErr error
	saveErr   error
	saved     []schemas.CachedSelector
}

var _ schemas.SelectorStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]schemas.CachedSelector)}
}

func storeKey(pageURL, description string, t schemas.ElementType) string {
	return pageURL + "|" + description + "|" + string(t)
}

func (s *fakeStore) Lookup(ctx context.Context, pageURL, description string, t schemas.ElementType) (*schemas.CachedSelector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	rec, ok := s.records[storeKey(pageURL, description, t)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) Save(ctx context.Context, rec schemas.CachedSelector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records[storeKey(rec.PageURL, rec.Description, rec.TypeConstraint)] = rec
	s.saved = append(s.saved, rec)
	return nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}
