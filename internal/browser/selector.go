// internal/browser/selector.go
package browser

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// containsRegex recognizes the jQuery-style text predicate this engine emits,
// e.g. button:contains("Submit Order"). Only the whole-selector form is
// supported; compound selectors pass through to the CSS engine untouched.
// The argument may be single or double quoted, with backslash escapes for
// the quote character inside.
var containsRegex = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)?:contains\((?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')\)$`)

// TranslateContains splits a selector into the pair of expressions the DOM
// scripts understand. Standard CSS comes back in css with an empty xpath;
// a :contains() selector comes back as an equivalent XPath expression with
// an empty css, since querySelectorAll has no text predicate.
func TranslateContains(selector string) (css, xpath string) {
	m := containsRegex.FindStringSubmatch(strings.TrimSpace(selector))
	if m == nil {
		return selector, ""
	}
	tag := m[1]
	if tag == "" {
		tag = "*"
	}
	text := m[2]
	if text == "" {
		text = m[3]
	}
	return "", fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", tag, xpathStringLiteral(unescapeQuoted(text)))
}

// unescapeQuoted resolves backslash escapes inside a quoted :contains()
// argument, the inverse of the escaping the selector builder applies.
func unescapeQuoted(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// xpathStringLiteral quotes s for embedding in an XPath expression. XPath 1.0
// has no escape syntax inside string literals, so text containing both quote
// characters must be assembled with concat().
func xpathStringLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// selectorScript renders a DOM query script template with the selector split
// into its css and xpath forms, both JSON-quoted so arbitrary selector text
// cannot break out of the script.
func selectorScript(template, selector string) string {
	css, xpath := TranslateContains(selector)
	cssLit, _ := json.Marshal(css)
	xpathLit, _ := json.Marshal(xpath)
	return fmt.Sprintf(template, cssLit, xpathLit)
}
