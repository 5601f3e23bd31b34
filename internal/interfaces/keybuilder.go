package interfaces

import "net/url"

//go:generate mockgen -package=mock -source=keybuilder.go -destination=mock/keybuilder.go

// KeyBuilder canonizes requests into deterministic cache keys
type KeyBuilder interface {
	// Build derives a key from the endpoint, its query parameters and the caller identity
	Build(endpoint string, params url.Values, identity string) (string, error)
}
