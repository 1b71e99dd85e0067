// internal/resolver/snapshot.go
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/quarkbyte/domscout/api/schemas"
)

const (
	// DefaultMaxBodyLength bounds the cleaned HTML kept for the chunking path.
	DefaultMaxBodyLength = 35000
	// maxCandidateText is the hard cap on a candidate's visible text.
	maxCandidateText = 100
)

// interactiveSelector is the superset queried when no type constraint
// narrows the candidate set.
const interactiveSelector = `a, button, input, select, textarea, [role="button"]`

// typeSelectors maps a constraint to the query that lifts its candidates.
// Types without an entry fall back to the interactive superset.
var typeSelectors = map[schemas.ElementType]string{
	schemas.ElementInput:     "input, textarea",
	schemas.ElementButton:    `button, input[type="button"], input[type="submit"], [role="button"]`,
	schemas.ElementSelect:    "select",
	schemas.ElementCheckbox:  `input[type="checkbox"]`,
	schemas.ElementRadio:     `input[type="radio"]`,
	schemas.ElementTextarea:  "textarea",
	schemas.ElementDiv:       "div",
	schemas.ElementAnchor:    "a",
	schemas.ElementImage:     "img",
	schemas.ElementSpan:      "span",
	schemas.ElementParagraph: "p",
	schemas.ElementHeading:   "h1, h2, h3, h4, h5, h6",
	schemas.ElementTable:     "table",
}

// candidateSelector returns the DOM query used to extract candidates for t.
func candidateSelector(t schemas.ElementType) string {
	if sel, ok := typeSelectors[t]; ok {
		return sel
	}
	return interactiveSelector
}

// Snapshot is one frozen view of a page: cleaned markup for the model paths
// and the structured candidate list for local matching.
type Snapshot struct {
	HTML       string
	Candidates []schemas.Candidate
}

// Snapshotter captures page state for a resolution run. Candidate query
// failures degrade to an empty candidate list; only page-level connectivity
// failures surface as errors.
type Snapshotter struct {
	maxBodyLength int
	logger        *zap.Logger
}

func NewSnapshotter(maxBodyLength int, logger *zap.Logger) *Snapshotter {
	if maxBodyLength <= 0 {
		maxBodyLength = DefaultMaxBodyLength
	}
	return &Snapshotter{
		maxBodyLength: maxBodyLength,
		logger:        logger.Named("snapshotter"),
	}
}

// Capture reads the page content and the candidate set for the requested
// type. A content read failure means the page itself is gone and wraps
// schemas.ErrPageUnreachable.
func (s *Snapshotter) Capture(ctx context.Context, page schemas.Page, t schemas.ElementType) (Snapshot, error) {
	raw, err := page.Content(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: reading page content: %v", schemas.ErrPageUnreachable, err)
	}

	snap := Snapshot{HTML: s.cleanHTML(raw)}

	selector := candidateSelector(t)
	candidates, err := page.QueryAll(ctx, selector)
	if err != nil {
		s.logger.Debug("Candidate query failed; continuing with an empty candidate set.",
			zap.String("selector", selector), zap.Error(err))
		return snap, nil
	}
	snap.Candidates = normalizeCandidates(candidates)
	return snap, nil
}

// normalizeCandidates enforces the candidate invariants regardless of the
// Page implementation: text capped at 100 characters and Index matching the
// slice position, which the index-based fallback relies on.
func normalizeCandidates(in []schemas.Candidate) []schemas.Candidate {
	out := make([]schemas.Candidate, len(in))
	for i, c := range in {
		if r := []rune(c.Text); len(r) > maxCandidateText {
			c.Text = string(r[:maxCandidateText])
		}
		c.Index = i
		out[i] = c
	}
	return out
}

// cleanHTML strips script and style elements plus comments, then renders
// and truncates the document. Unparseable input falls back to raw text.
func (s *Snapshotter) cleanHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		s.logger.Debug("HTML parse failed; using raw content.", zap.Error(err))
		return truncateRunes(raw, s.maxBodyLength)
	}
	stripNoise(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		s.logger.Debug("HTML render failed; using raw content.", zap.Error(err))
		return truncateRunes(raw, s.maxBodyLength)
	}
	return truncateRunes(b.String(), s.maxBodyLength)
}

func stripNoise(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		switch {
		case child.Type == html.CommentNode:
			n.RemoveChild(child)
		case child.Type == html.ElementNode && (child.Data == "script" || child.Data == "style"):
			n.RemoveChild(child)
		default:
			stripNoise(child)
		}
	}
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
