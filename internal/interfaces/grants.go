package interfaces

import (
	"context"
	"net/url"

	"grantify-client/internal/models"
)

//go:generate mockgen -package=mock -source=grants.go -destination=mock/grants.go

// Searcher runs a grants search for already built query parameters
type Searcher interface {
	Search(ctx context.Context, params url.Values) (*models.SearchResult, error)
}

// InteractionWriter records and removes user interactions remotely
type InteractionWriter interface {
	RecordInteraction(ctx context.Context, grantID string, action models.Action) error
	DeleteInteraction(ctx context.Context, grantID string, action models.Action) error
}

// CacheInvalidator drops cached reads whose keys contain any of patterns
type CacheInvalidator interface {
	Invalidate(patterns ...string) int
}
