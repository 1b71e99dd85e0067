package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/quarkbyte/domscout/api/schemas"
)

// Router maps model tiers to concrete clients. The resolution engine asks
// for the powerful tier when synthesizing selectors over HTML chunks and
// the fast tier for cheap corroboration calls.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// NewRouter creates a router with the specified clients for each tier. The
// same client may serve both tiers.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// Client returns the client for the tier. An empty or unknown tier falls
// back to the powerful tier.
func (r *Router) Client(tier schemas.ModelTier) schemas.LLMClient {
	if client, ok := r.clients[tier]; ok {
		return client
	}
	r.logger.Debug("Unknown tier requested, using powerful", zap.String("tier", string(tier)))
	return r.clients[schemas.TierPowerful]
}

// Close closes every distinct client exactly once.
func (r *Router) Close() error {
	closed := make(map[schemas.LLMClient]struct{}, len(r.clients))
	var firstErr error
	for _, client := range r.clients {
		if _, done := closed[client]; done {
			continue
		}
		closed[client] = struct{}{}
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
