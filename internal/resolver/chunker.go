// internal/resolver/chunker.go
package resolver

import (
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/quarkbyte/domscout/api/schemas"
)

// DefaultMaxChunkLength bounds one model-bound HTML chunk.
const DefaultMaxChunkLength = 35000

// filterXPaths narrows the page markup to the blocks relevant for a type
// constraint before chunking. Types without an entry (the generic block
// types and the unconstrained modes) keep the whole body.
var filterXPaths = map[schemas.ElementType]string{
	schemas.ElementButton:   "//button",
	schemas.ElementInput:    "//input | //textarea",
	schemas.ElementSelect:   "//select",
	schemas.ElementCheckbox: `//input[@type="checkbox"]`,
	schemas.ElementRadio:    `//input[@type="radio"]`,
	schemas.ElementTextarea: "//textarea",
	schemas.ElementAnchor:   "//a",
	schemas.ElementImage:    "//img",
	schemas.ElementHeading:  "//h1 | //h2 | //h3 | //h4 | //h5 | //h6",
	schemas.ElementTable:    "//table",
}

// FilterAndChunk narrows html to the markup relevant for the type constraint
// and splits it into fixed-size non-overlapping chunks in original order.
// An empty filter result falls back to the unfiltered input, so non-empty
// html always yields at least one chunk. Pure and deterministic: identical
// input produces identical boundaries and count.
func FilterAndChunk(html string, t schemas.ElementType, maxChunkLength int) []string {
	if maxChunkLength <= 0 {
		maxChunkLength = DefaultMaxChunkLength
	}
	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return nil
	}

	filtered := filterByType(trimmed, t)
	if strings.TrimSpace(filtered) == "" {
		filtered = trimmed
	}
	return splitChunks(filtered, maxChunkLength)
}

// filterByType extracts the tag blocks matching the constraint. Returns the
// input unchanged when the type has no filter, and an empty string when the
// filter matched nothing (the caller falls back).
func filterByType(html string, t schemas.ElementType) string {
	xpath, ok := filterXPaths[t]
	if !ok {
		return html
	}

	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return html
	}
	nodes, err := htmlquery.QueryAll(doc, xpath)
	if err != nil || len(nodes) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(nodes))
	for _, n := range nodes {
		blocks = append(blocks, htmlquery.OutputHTML(n, true))
	}
	return strings.Join(blocks, "\n")
}

func splitChunks(s string, size int) []string {
	chunks := make([]string, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[start:end])
	}
	return chunks
}
