// internal/resolver/selector_rules.go
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/quarkbyte/domscout/api/schemas"
)

// minHrefSegment is the shortest href path segment considered identifying.
const minHrefSegment = 4

// selectorRule is one step of the selector construction ladder: applies
// reports whether the rule can serve a candidate, build renders the
// selector. Rules are evaluated strictly in slice order.
type selectorRule struct {
	name    string
	applies func(schemas.Candidate) bool
	build   func(schemas.Candidate) string
}

// selectorRules is the construction priority shared by the heuristic
// matcher and the index fallback: stable identifying attributes first,
// positional addressing as the last resort.
var selectorRules = []selectorRule{
	{
		name:    "id",
		applies: func(c schemas.Candidate) bool { return c.ID != "" },
		build: func(c schemas.Candidate) string {
			if bareIdentRegex.MatchString(c.ID) {
				return "#" + c.ID
			}
			return fmt.Sprintf(`[id="%s"]`, escapeAttr(c.ID))
		},
	},
	{
		name:    "name",
		applies: func(c schemas.Candidate) bool { return c.Name != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[name="%s"]`, c.TagName, escapeAttr(c.Name))
		},
	},
	{
		name:    "href_segment",
		applies: func(c schemas.Candidate) bool { return lastPathSegment(c.Href) != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[href*="%s"]`, c.TagName, escapeAttr(lastPathSegment(c.Href)))
		},
	},
	{
		name:    "aria_label",
		applies: func(c schemas.Candidate) bool { return c.AriaLabel != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[aria-label="%s"]`, c.TagName, escapeAttr(c.AriaLabel))
		},
	},
	{
		name:    "placeholder",
		applies: func(c schemas.Candidate) bool { return c.Placeholder != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[placeholder="%s"]`, c.TagName, escapeAttr(c.Placeholder))
		},
	},
	{
		name:    "title",
		applies: func(c schemas.Candidate) bool { return c.Title != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[title="%s"]`, c.TagName, escapeAttr(c.Title))
		},
	},
	{
		name:    "alt",
		applies: func(c schemas.Candidate) bool { return c.Alt != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s[alt="%s"]`, c.TagName, escapeAttr(c.Alt))
		},
	},
	{
		name: "text_contains",
		applies: func(c schemas.Candidate) bool {
			n := len(strings.TrimSpace(c.Text))
			return n >= 2 && n <= 49
		},
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf(`%s:contains("%s")`, c.TagName, escapeAttr(strings.TrimSpace(c.Text)))
		},
	},
	{
		name:    "nth_of_type",
		applies: func(c schemas.Candidate) bool { return c.TagName != "" },
		build: func(c schemas.Candidate) string {
			return fmt.Sprintf("%s:nth-of-type(%d)", c.TagName, c.Index+1)
		},
	},
}

// bareIdentRegex matches ids that are safe as a literal #id selector.
var bareIdentRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// escapeAttr escapes a value for embedding in a double-quoted CSS attribute
// selector.
func escapeAttr(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// lastPathSegment extracts the final non-empty path component of an href,
// ignoring query and fragment. Short segments are too generic to identify a
// link and are rejected.
func lastPathSegment(href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	segments := strings.Split(href, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := segments[i]; seg != "" {
			if len(seg) < minHrefSegment {
				return ""
			}
			return seg
		}
	}
	return ""
}

// selectorForCandidate walks the rule ladder and returns the first selector
// whose live match count satisfies accept, along with the rule name that
// produced it. Returns empty strings when no rule yields an acceptable
// selector. Count failures are transport failures and propagate.
func selectorForCandidate(ctx context.Context, page schemas.Page, c schemas.Candidate, accept func(count int) bool) (string, string, error) {
	for _, rule := range selectorRules {
		if !rule.applies(c) {
			continue
		}
		selector := rule.build(c)
		count, err := page.Count(ctx, selector)
		if err != nil {
			return "", "", fmt.Errorf("failed to probe selector %q: %w", selector, err)
		}
		if accept(count) {
			return selector, rule.name, nil
		}
	}
	return "", "", nil
}
