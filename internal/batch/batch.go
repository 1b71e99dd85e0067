package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
)

// Resolver is the slice of the resolution engine the runner depends on.
type Resolver interface {
	Resolve(ctx context.Context, page schemas.Page, query schemas.ElementQuery) (schemas.ResolutionResult, error)
}

// Item is a single resolution request read from a JSON lines input file.
type Item struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// ItemResult pairs an input item with its outcome. Exactly one of Result
// and Error is set.
type ItemResult struct {
	ID          string                    `json:"id"`
	URL         string                    `json:"url"`
	Description string                    `json:"description"`
	Type        schemas.ElementType       `json:"type"`
	Result      *schemas.ResolutionResult `json:"result,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// Report is the aggregated outcome of a batch run.
type Report struct {
	RunID   string         `json:"run_id"`
	Items   []ItemResult   `json:"items"`
	Summary map[string]int `json:"summary"`
}

// ToJSON serializes the report to a JSON byte slice.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// maxLineBytes bounds a single input line; bufio.Scanner's default token
// limit is too small for generated files with long descriptions.
const maxLineBytes = 1 << 20

// ReadItems parses a JSON lines reader. Blank lines are skipped. A
// malformed line fails the whole read so a bad file is rejected before any
// browser work starts.
func ReadItems(r io.Reader) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var items []Item
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to parse batch item on line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	return items, nil
}

// Runner resolves batch items strictly in order, one page session per item.
// There is no cross-item state; each item owns its page for the duration of
// its resolution and releases it on every exit path.
type Runner struct {
	pages    schemas.PageManager
	resolver Resolver
	logger   *zap.Logger
}

// NewRunner creates a batch runner over an open page manager and a
// resolution engine.
func NewRunner(pages schemas.PageManager, resolver Resolver, logger *zap.Logger) *Runner {
	return &Runner{
		pages:    pages,
		resolver: resolver,
		logger:   logger.Named("batch"),
	}
}

// Run processes the items sequentially and aggregates a report. A failed
// item is recorded and the run continues with the next one; cancellation
// stops the run and returns the partial report together with the context
// error.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	report := &Report{
		RunID: uuid.NewString(),
		Items: make([]ItemResult, 0, len(items)),
	}
	r.logger.Info("Starting batch run.",
		zap.String("run_id", report.RunID),
		zap.Int("items", len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Summary = summarize(report.Items)
			return report, err
		}
		report.Items = append(report.Items, r.runItem(ctx, i, item))
	}

	report.Summary = summarize(report.Items)
	r.logger.Info("Batch run complete.",
		zap.String("run_id", report.RunID),
		zap.Int("items", report.Summary["total"]),
		zap.Int("errors", report.Summary["errors"]))
	return report, nil
}

func (r *Runner) runItem(ctx context.Context, index int, item Item) ItemResult {
	// MaxAttempts stays raw on the query so the engine can apply its
	// configured default when the item does not set one.
	query := schemas.ElementQuery{
		Description:    item.Description,
		TypeConstraint: schemas.ElementType(item.Type),
		MaxAttempts:    item.MaxAttempts,
	}
	normalized := query.Normalized()

	out := ItemResult{
		ID:          uuid.NewString(),
		URL:         item.URL,
		Description: item.Description,
		Type:        normalized.TypeConstraint,
	}
	log := r.logger.With(zap.Int("index", index), zap.String("item_id", out.ID))

	if item.URL == "" {
		out.Error = "item has no url"
		log.Warn("Skipping batch item.", zap.String("reason", out.Error))
		return out
	}
	if err := normalized.Validate(); err != nil {
		out.Error = err.Error()
		log.Warn("Skipping batch item.", zap.String("reason", out.Error))
		return out
	}

	res, err := r.resolveOne(ctx, item.URL, query)
	if err != nil {
		out.Error = err.Error()
		log.Warn("Batch item failed.", zap.Error(err))
		return out
	}

	out.Result = &res
	log.Info("Batch item resolved.",
		zap.String("selector", res.Selector),
		zap.Bool("validated", res.Validated),
		zap.String("strategy", string(res.StrategyUsed)))
	return out
}

// resolveOne owns the page session for exactly one item: acquired here,
// released on every exit path.
func (r *Runner) resolveOne(ctx context.Context, url string, query schemas.ElementQuery) (schemas.ResolutionResult, error) {
	page, err := r.pages.NewPage(ctx, url)
	if err != nil {
		return schemas.ResolutionResult{}, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(ctx); cerr != nil {
			r.logger.Warn("Failed to close page after batch item.", zap.Error(cerr))
		}
	}()

	return r.resolver.Resolve(ctx, page, query)
}

func summarize(items []ItemResult) map[string]int {
	summary := make(map[string]int)
	summary["total"] = len(items)
	for _, item := range items {
		if item.Error != "" {
			summary["errors"]++
			continue
		}
		summary[string(item.Result.StrategyUsed)]++
		if item.Result.Validated {
			summary["validated"]++
		}
	}
	return summary
}
