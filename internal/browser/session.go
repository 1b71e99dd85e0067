// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/config"
)

// Session represents one open browser tab and implements schemas.Page. All
// DOM access goes through JavaScript evaluation so a query never leaves the
// page in an altered state.
type Session struct {
	id     string
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// Ensure Session implements the interface.
var _ schemas.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", sessionID)),
	}
}

// navigate drives the tab to the URL and waits for the document to settle.
// Navigation failures are wrapped in schemas.ErrPageUnreachable.
func (s *Session) navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(c context.Context) error {
			if s.cfg.DisableCache {
				// A revalidated selector must be checked against the live
				// document, not whatever the HTTP cache last saw.
				if err := network.SetCacheDisabled(true).Do(c); err != nil {
					s.logger.Warn("Failed to disable browser cache.", zap.Error(err))
				}
			}
			return nil
		}),
		chromedp.Navigate(url),
	}
	if err := s.runActions(navCtx, tasks); err != nil {
		return fmt.Errorf("%w: %s: %v", schemas.ErrPageUnreachable, url, err)
	}
	s.url = url

	s.stabilize(ctx)
	return nil
}

// stabilize waits for the page state to settle. Failure here is not fatal:
// a slow third-party resource must not block resolution of an otherwise
// ready document.
func (s *Session) stabilize(ctx context.Context) {
	timeout := s.cfg.StabilizationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.runActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// URL returns the address the session was navigated to.
func (s *Session) URL() string {
	return s.url
}

// Content returns the full serialized HTML of the current document.
func (s *Session) Content(ctx context.Context) (string, error) {
	var content string
	if err := s.runActions(ctx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture document content: %w", err)
	}
	return content, nil
}

// QueryAll returns a structured Candidate for every element matching the
// selector, in DOM document order. Malformed selectors yield an empty list
// rather than an error; only transport-level failures are returned.
func (s *Session) QueryAll(ctx context.Context, selector string) ([]schemas.Candidate, error) {
	candidates := make([]schemas.Candidate, 0)
	if err := s.Evaluate(ctx, selectorScript(candidateScript, selector), &candidates); err != nil {
		return nil, fmt.Errorf("failed to query candidates for %q: %w", selector, err)
	}
	return candidates, nil
}

// Exists reports whether at least one element matches the selector.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	count, err := s.Count(ctx, selector)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count returns the number of elements matching the selector. Selectors the
// document cannot parse count as zero matches.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var count int
	if err := s.Evaluate(ctx, selectorScript(countScript, selector), &count); err != nil {
		return 0, fmt.Errorf("failed to count matches for %q: %w", selector, err)
	}
	return count, nil
}

// OuterHTML returns the serialized markup of the first element matching the
// selector, or the empty string when nothing matches.
func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	var markup string
	if err := s.Evaluate(ctx, selectorScript(outerHTMLScript, selector), &markup); err != nil {
		return "", fmt.Errorf("failed to capture outer HTML for %q: %w", selector, err)
	}
	return markup, nil
}

// Evaluate runs a snippet of JavaScript in the current document and
// optionally unmarshals the result into out.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	// chromedp.Evaluate handles the case where out is nil (no result expected).
	return s.runActions(ctx, chromedp.Evaluate(expression, out))
}

// Close terminates the browser session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing page session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// runActions executes chromedp.Actions, ensuring they respect both the
// session lifetime (s.ctx) and the incoming request context (ctx).
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// -- DOM Query Scripts --

// candidateScript lifts every matching element into the record shape of
// schemas.Candidate. Text is normalized and truncated to 100 characters at
// the source so no caller sees more.
const candidateScript = `(() => {
	const selector = %s;
	const xpath = %s;
	const records = [];
	let nodes = [];
	try {
		if (xpath) {
			const result = document.evaluate(xpath, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < result.snapshotLength; i++) {
				nodes.push(result.snapshotItem(i));
			}
		} else {
			nodes = Array.from(document.querySelectorAll(selector));
		}
	} catch (e) {
		return records;
	}
	const attr = (el, name) => el.getAttribute(name) || '';
	nodes.forEach((el, i) => {
		if (!(el instanceof Element)) { return; }
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const visible = rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
		let text = (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
		if (text.length > 100) { text = text.slice(0, 100); }
		records.push({
			index: i,
			tag_name: el.tagName.toLowerCase(),
			text: text,
			id: el.id || '',
			name: attr(el, 'name'),
			class: attr(el, 'class'),
			placeholder: attr(el, 'placeholder'),
			type: attr(el, 'type'),
			aria_label: attr(el, 'aria-label'),
			href: attr(el, 'href'),
			title: attr(el, 'title'),
			alt: attr(el, 'alt'),
			is_visible: visible,
			bounding_box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height }
		});
	});
	return records;
})()`

const countScript = `(() => {
	const selector = %s;
	const xpath = %s;
	try {
		if (xpath) {
			const result = document.evaluate(xpath, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			return result.snapshotLength;
		}
		return document.querySelectorAll(selector).length;
	} catch (e) {
		return 0;
	}
})()`

const outerHTMLScript = `(() => {
	const selector = %s;
	const xpath = %s;
	try {
		let el = null;
		if (xpath) {
			el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		} else {
			el = document.querySelector(selector);
		}
		return el ? el.outerHTML : '';
	} catch (e) {
		return '';
	}
})()`
