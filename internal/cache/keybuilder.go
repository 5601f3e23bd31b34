package cache

import (
	"crypto/md5"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"grantify-client/internal/interfaces"
)

// AnonymousIdentity marks keys of requests made without a credential
const AnonymousIdentity = "anon"

// KeyPrefix starts every response cache key
const KeyPrefix = "api"

// Ensure KeyBuilderImpl implements interfaces.KeyBuilder
var _ interfaces.KeyBuilder = (*KeyBuilderImpl)(nil)

// KeyBuilderImpl implements the KeyBuilder interface
type KeyBuilderImpl struct{}

// NewKeyBuilder creates a new KeyBuilder instance
func NewKeyBuilder() interfaces.KeyBuilder {
	return &KeyBuilderImpl{}
}

// Build creates a cache key of the form api:<endpoint>:<params hash>:<identity>
func (kb *KeyBuilderImpl) Build(endpoint string, params url.Values, identity string) (string, error) {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return "", errors.New("endpoint cannot be empty")
	}

	if identity == "" {
		identity = AnonymousIdentity
	}
	if strings.Contains(identity, ":") {
		return "", fmt.Errorf("identity %q cannot contain ':'", identity)
	}

	// Hash of the canonical parameter encoding, empty when there are no params
	var paramsHashStr string
	if canonical := CanonicalParams(params); canonical != "" {
		hasher := md5.New()
		hasher.Write([]byte(canonical))
		paramsHashStr = fmt.Sprintf("%x", hasher.Sum(nil))
	}

	return fmt.Sprintf("%s:%s:%s:%s", KeyPrefix, endpoint, paramsHashStr, identity), nil
}

// CanonicalParams encodes params with sorted keys and sorted values per key,
// so the same logical query always yields the same string
func CanonicalParams(params url.Values) string {
	if len(params) == 0 {
		return ""
	}

	sorted := make(url.Values, len(params))
	for k, vs := range params {
		if len(vs) == 0 {
			continue
		}
		cp := append([]string(nil), vs...)
		sort.Strings(cp)
		sorted[k] = cp
	}
	return sorted.Encode()
}

// EndpointPattern returns the substring that matches every key of an endpoint
func EndpointPattern(endpoint string) string {
	return fmt.Sprintf("%s:%s:", KeyPrefix, strings.Trim(endpoint, "/"))
}
