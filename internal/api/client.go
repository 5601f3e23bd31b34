package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"grantify-client/internal/cache"
	"grantify-client/internal/cache/service"
	"grantify-client/internal/inflight"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/models"
	"grantify-client/internal/transport"
	"grantify-client/internal/utils"
)

// Endpoint identifiers used for cache keys and cache rules
const (
	EndpointSearch          = "grants/search"
	EndpointInteractions    = "interactions"
	EndpointRecommendations = "recommendations"
	EndpointCSRF            = "csrf-token"
)

// Endpoints lists every endpoint the client talks to
var Endpoints = []string{EndpointSearch, EndpointInteractions, EndpointRecommendations, EndpointCSRF}

// Ensure Client implements the grants interfaces
var (
	_ interfaces.Searcher          = (*Client)(nil)
	_ interfaces.InteractionWriter = (*Client)(nil)
)

// Client is the grants service API. Reads are served from the response cache
// when possible and concurrent identical reads share one request; writes go
// straight to the transport.
type Client struct {
	transport   *transport.Client
	cache       *service.CacheService
	inflight    *inflight.Registry
	credentials interfaces.CredentialProvider
	logger      *zap.Logger
}

// NewClient creates the API client. credentials may be nil for anonymous use.
func NewClient(tr *transport.Client, cacheService *service.CacheService, registry *inflight.Registry, credentials interfaces.CredentialProvider, logger *zap.Logger) *Client {
	return &Client{
		transport:   tr,
		cache:       cacheService,
		inflight:    registry,
		credentials: credentials,
		logger:      logger,
	}
}

// Search runs a grants search with already built query parameters
func (c *Client) Search(ctx context.Context, params url.Values) (*models.SearchResult, error) {
	data, err := c.cachedRead(ctx, EndpointSearch, "/grants", params)
	if err != nil {
		return nil, err
	}

	var result models.SearchResult
	if err := utils.DecodeJSONBody(data, &result); err != nil {
		return nil, fmt.Errorf("invalid search response: %w", err)
	}
	if result.Items == nil {
		result.Items = []models.Grant{}
	}
	return &result, nil
}

// Interactions returns the interactions recorded by the current user
func (c *Client) Interactions(ctx context.Context) ([]models.Interaction, error) {
	data, err := c.cachedRead(ctx, EndpointInteractions, "/interactions", nil)
	if err != nil {
		return nil, err
	}

	var interactions []models.Interaction
	if err := utils.DecodeJSONBody(data, &interactions); err != nil {
		return nil, fmt.Errorf("invalid interactions response: %w", err)
	}
	return interactions, nil
}

// Recommendations returns the grants recommended to the current user
func (c *Client) Recommendations(ctx context.Context) ([]models.Recommendation, error) {
	data, err := c.cachedRead(ctx, EndpointRecommendations, "/recommendations", nil)
	if err != nil {
		return nil, err
	}

	var recommendations []models.Recommendation
	if err := utils.DecodeJSONBody(data, &recommendations); err != nil {
		return nil, fmt.Errorf("invalid recommendations response: %w", err)
	}
	return recommendations, nil
}

// RecordInteraction records action against a grant
func (c *Client) RecordInteraction(ctx context.Context, grantID string, action models.Action) error {
	_, err := c.transport.Execute(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     "/interactions",
		Body:     models.InteractionRequest{GrantID: grantID, Action: action},
		Resource: interactionResource(grantID),
	})
	return err
}

// DeleteInteraction removes a recorded action from a grant
func (c *Client) DeleteInteraction(ctx context.Context, grantID string, action models.Action) error {
	_, err := c.transport.Execute(ctx, transport.Request{
		Method:   http.MethodDelete,
		Path:     "/interactions/" + url.PathEscape(grantID),
		Query:    url.Values{"action": {string(action)}},
		Resource: interactionResource(grantID),
	})
	return err
}

// WritePatterns are the cache patterns a recorded interaction makes stale
func WritePatterns() []string {
	return []string{
		cache.EndpointPattern(EndpointInteractions),
		cache.EndpointPattern(EndpointRecommendations),
		cache.EndpointPattern(EndpointSearch),
	}
}

// cachedRead resolves a GET through the response cache and the in-flight
// registry. Only successful responses are stored.
func (c *Client) cachedRead(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	identity := cache.AnonymousIdentity
	if c.credentials != nil {
		identity = c.credentials.Identity(ctx)
	}

	cached, err := c.cache.Get(endpoint, params, identity)
	if err != nil {
		return nil, err
	}
	if cached.Found {
		c.logger.Debug("Serving cached response",
			zap.String("endpoint", endpoint),
			zap.String("level", string(cached.CacheLevel)))
		return cached.Data, nil
	}

	// a read started after an invalidation never joins one started before it
	flightKey := fmt.Sprintf("%s@%d", cached.Key, cached.Generation)
	data, shared, err := c.inflight.Do(ctx, flightKey, func(opCtx context.Context) ([]byte, error) {
		resp, err := c.transport.Execute(opCtx, transport.Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  params,
		})
		if err != nil {
			return nil, err
		}
		c.cache.Set(cached, resp.Body)
		return resp.Body, nil
	})
	metrics.RecordInflightCall(endpoint, shared)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func interactionResource(grantID string) string {
	return "interactions/" + grantID
}
