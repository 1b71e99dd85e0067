package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
	"github.com/quarkbyte/domscout/internal/browser"
	"github.com/quarkbyte/domscout/internal/config"
	"github.com/quarkbyte/domscout/internal/llmclient"
	"github.com/quarkbyte/domscout/internal/observability"
	"github.com/quarkbyte/domscout/internal/resolver"
	"github.com/quarkbyte/domscout/internal/store"
)

// newResolveCmd creates and configures the `resolve` command.
func newResolveCmd() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolves one element description against a live page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			url, _ := cmd.Flags().GetString("url")
			description, _ := cmd.Flags().GetString("description")
			elementType, _ := cmd.Flags().GetString("type")
			maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
			noAI, _ := cmd.Flags().GetBool("no-ai")
			asJSON, _ := cmd.Flags().GetBool("json")

			query := schemas.ElementQuery{
				Description:    description,
				TypeConstraint: schemas.ElementType(elementType),
				MaxAttempts:    maxAttempts,
			}
			// Reject a bad query before any browser or provider spins up.
			if err := query.Normalized().Validate(); err != nil {
				return err
			}

			runCfg := *cfg
			if noAI {
				runCfg.Resolver.UseAI = false
			}

			components, err := initializeComponents(ctx, &runCfg, logger)
			if err != nil {
				components.Shutdown()
				return err
			}
			defer components.Shutdown()

			page, err := components.Pages.NewPage(ctx, url)
			if err != nil {
				return fmt.Errorf("failed to open page: %w", err)
			}
			defer func() {
				if cerr := page.Close(ctx); cerr != nil {
					logger.Warn("Failed to close page", zap.Error(cerr))
				}
			}()

			result, err := components.Engine.Resolve(ctx, page, query)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("resolution aborted by user signal")
				}
				return err
			}

			return printResult(cmd, result, asJSON)
		},
	}

	resolveCmd.Flags().StringP("url", "u", "", "Page address to resolve against (required).")
	resolveCmd.Flags().StringP("description", "d", "", "Natural language description of the element (required).")
	resolveCmd.Flags().StringP("type", "t", "", "Optional element type constraint (button, input, checkbox, ...).")
	resolveCmd.Flags().Int("max-attempts", 0, "Synthesis retry budget for this query. (Overrides config/env)")
	resolveCmd.Flags().Bool("no-ai", false, "Disable the AI synthesis and fallback strategies for this run.")
	resolveCmd.Flags().Bool("json", false, "Print the full resolution result as JSON.")
	_ = resolveCmd.MarkFlagRequired("url")
	_ = resolveCmd.MarkFlagRequired("description")

	return resolveCmd
}

// resolveComponents holds the initialized services a resolution run needs.
type resolveComponents struct {
	Pages  *browser.Manager
	Router *llmclient.Router
	Store  *store.Store
	Engine *resolver.Engine
	DBPool *pgxpool.Pool
}

// Shutdown gracefully closes all components.
func (rc *resolveComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if rc.Pages != nil {
		if err := rc.Pages.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if rc.Router != nil {
		if err := rc.Router.Close(); err != nil {
			observability.GetLogger().Warn("Error closing model clients", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeComponents handles dependency injection for resolve and batch.
// On error the partially built components are returned so the caller can
// shut down whatever already exists.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*resolveComponents, error) {
	components := &resolveComponents{}

	// 1. Optional selector cache.
	var selectorStore schemas.SelectorStore
	if cfg.Cache.Enabled {
		dbPool, err := pgxpool.New(ctx, cfg.Cache.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to cache database: %w", err)
		}
		components.DBPool = dbPool

		cacheStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize selector cache: %w", err)
		}
		if err := cacheStore.EnsureSchema(ctx); err != nil {
			return components, err
		}
		if _, err := cacheStore.Purge(ctx, cfg.Cache.MaxAge); err != nil {
			logger.Warn("Selector cache purge failed", zap.Error(err))
		}
		components.Store = cacheStore
		selectorStore = cacheStore
	}

	// 2. Model router, only when the AI path is on.
	var router resolver.ClientRouter
	if cfg.Resolver.UseAI {
		r, err := llmclient.NewRouterFromConfig(cfg.LLM, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize model clients: %w", err)
		}
		components.Router = r
		router = r
	}

	// 3. Browser manager.
	components.Pages = browser.NewManager(cfg.Browser, logger)

	// 4. Resolution engine.
	components.Engine = resolver.NewEngine(cfg.Resolver, router, selectorStore, logger)

	return components, nil
}

func printResult(cmd *cobra.Command, result schemas.ResolutionResult, asJSON bool) error {
	if asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	if result.Selector == "" {
		cmd.Printf("No selector found: %s\n", result.Reasoning)
		return nil
	}

	cmd.Printf("Selector:   %s\n", result.Selector)
	cmd.Printf("Confidence: %.2f\n", result.Confidence)
	cmd.Printf("Validated:  %t\n", result.Validated)
	cmd.Printf("Strategy:   %s\n", result.StrategyUsed)
	if result.Reasoning != "" {
		cmd.Printf("Reasoning:  %s\n", result.Reasoning)
	}
	for _, alt := range result.Alternatives {
		cmd.Printf("Alternative: %s\n", alt)
	}
	return nil
}
