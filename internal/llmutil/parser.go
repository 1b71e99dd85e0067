package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedObjectRegex extracts a JSON object wrapped in a markdown code block.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// fencedArrayRegex extracts a JSON array wrapped in a markdown code block.
	fencedArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
	// balancedObjectRegex grabs the first balanced-looking object. One nesting
	// level is enough for suggestion payloads; deeper nesting never survives a
	// model that already failed the earlier stages anyway.
	balancedObjectRegex = regexp.MustCompile(`(?s)\{(?:[^{}]|\{[^{}]*\})*\}`)
)

// parseStrategy is one stage of the recovery ladder: extract a parseable
// JSON payload from raw model output, or report that the stage does not
// apply. Stages run in order; the first extraction that unmarshals wins.
type parseStrategy struct {
	name    string
	extract func(string) (string, bool)
}

// parseStrategies is the ordered recovery ladder for model output:
// fence stripping, then brace slicing with comment removal, then a balanced
// object regex as the last resort.
var parseStrategies = []parseStrategy{
	{name: "fenced", extract: extractFenced},
	{name: "brace_slice", extract: extractBraceSlice},
	{name: "balanced_object", extract: extractBalancedObject},
}

// ParseJSONResponse parses an LLM response string into a target Go type.
// Models wrap payloads in markdown fences, prepend prose, and sprinkle //
// comments into the JSON; each strategy peels off one of those habits. The
// returned error carries the last extracted snippet (truncated) so failed
// attempts are diagnosable from logs.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("empty response")
	}

	var lastErr error
	lastSnippet := response
	for _, strategy := range parseStrategies {
		candidate, ok := strategy.extract(response)
		if !ok {
			continue
		}
		var result T
		if err := json.Unmarshal([]byte(candidate), &result); err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", strategy.name, err)
			lastSnippet = candidate
			continue
		}
		return &result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON structure found")
	}
	return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", lastErr, truncateString(lastSnippet, 500))
}

// extractFenced returns the content of a markdown code fence, or the raw
// input unchanged when there is no fence. Always applies: a well-behaved
// response passes straight through to the unmarshal.
func extractFenced(response string) (string, bool) {
	if !strings.HasPrefix(response, "```") {
		return response, true
	}
	if matches := fencedObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
		return matches[1], true
	}
	if matches := fencedArrayRegex.FindStringSubmatch(response); len(matches) > 1 {
		return matches[1], true
	}
	return response, true
}

// extractBraceSlice slices the substring between the first opening and last
// closing bracket, preferring object over array boundaries, and strips //
// line comments from the result.
func extractBraceSlice(response string) (string, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		start = strings.Index(response, "[")
		end = strings.LastIndex(response, "]")
	}
	if start == -1 || end <= start {
		return "", false
	}
	return stripLineComments(response[start : end+1]), true
}

// extractBalancedObject finds the first balanced-looking {...} block.
func extractBalancedObject(response string) (string, bool) {
	match := balancedObjectRegex.FindString(response)
	if match == "" {
		return "", false
	}
	return stripLineComments(match), true
}

// stripLineComments removes // comments from would-be JSON while leaving
// string contents alone, so "https://example.com" survives intact.
func stripLineComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			// Skip to end of line; the newline itself is kept.
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
