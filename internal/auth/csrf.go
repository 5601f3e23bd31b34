package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"grantify-client/internal/config"
	"grantify-client/internal/models"
	"grantify-client/internal/utils"
)

// CSRFFetcher obtains anti-forgery tokens from the service. It uses a plain
// HTTP call: the retrying transport itself depends on the token.
type CSRFFetcher struct {
	httpClient *http.Client
	url        string
	apiKey     string
	clock      clock.Clock
}

// NewCSRFFetcher creates a fetcher for cfg.Auth.CSRFPath below the service base URL
func NewCSRFFetcher(cfg *config.Config, httpClient *http.Client, clk clock.Clock) *CSRFFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Service.RequestTimeout}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &CSRFFetcher{
		httpClient: httpClient,
		url:        strings.TrimRight(cfg.Service.BaseURL, "/") + cfg.Auth.CSRFPath,
		apiKey:     cfg.Service.APIKey,
		clock:      clk,
	}
}

// Fetch requests a new token. It satisfies FetchFunc.
func (f *CSRFFetcher) Fetch(ctx context.Context) (models.CredentialToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return models.CredentialToken{}, fmt.Errorf("failed to build CSRF request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return models.CredentialToken{}, fmt.Errorf("CSRF request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.CredentialToken{}, fmt.Errorf("failed to read CSRF response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.CredentialToken{}, fmt.Errorf("CSRF endpoint returned status %d: %s", resp.StatusCode, utils.ExtractErrorMessage(body))
	}

	var payload models.TokenResponse
	if err := utils.DecodeJSONBody(body, &payload); err != nil {
		return models.CredentialToken{}, err
	}
	if payload.Token == "" {
		return models.CredentialToken{}, fmt.Errorf("CSRF endpoint returned an empty token")
	}
	if payload.ExpiresInSeconds <= 0 {
		return models.CredentialToken{}, fmt.Errorf("CSRF endpoint returned invalid lifetime %d", payload.ExpiresInSeconds)
	}

	return models.CredentialToken{
		Value:     payload.Token,
		ExpiresAt: f.clock.Now().Add(time.Duration(payload.ExpiresInSeconds) * time.Second),
	}, nil
}
