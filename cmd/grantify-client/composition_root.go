package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"grantify-client/internal/api"
	"grantify-client/internal/auth"
	"grantify-client/internal/cache/l1"
	"grantify-client/internal/cache/l2"
	"grantify-client/internal/cache/memory"
	"grantify-client/internal/cache/multi"
	"grantify-client/internal/cache/noop"
	"grantify-client/internal/cache/service"
	"grantify-client/internal/cache_rules"
	"grantify-client/internal/cancellation"
	"grantify-client/internal/config"
	"grantify-client/internal/httpserver"
	"grantify-client/internal/inflight"
	"grantify-client/internal/interaction"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/search"
	"grantify-client/internal/transport"
)

// CompositionRoot holds all application dependencies and wires them together
// in one place so that cleanup happens in one place too.
type CompositionRoot struct {
	// Configuration
	Config     *config.Config
	Logger     *zap.Logger
	CacheRules *cache_rules.CacheConfig

	// Cache components
	L1Cache      interfaces.Cache
	L2Cache      interfaces.Cache
	CacheService *service.CacheService

	// Request plumbing
	Cancellations *cancellation.Registry
	CSRFTokens    *auth.TokenCache
	Credentials   *auth.Credentials
	Transport     *transport.Client
	InFlight      *inflight.Registry
	API           *api.Client

	// Interaction layer
	Orchestrator *search.Orchestrator
	Coordinator  *interaction.Coordinator
	HTTPServer   *httpserver.Server
}

// NewCompositionRoot creates and initializes all application dependencies.
//
// Initialization order:
// 1. Logger (needed by all other components)
// 2. Configuration, then the logger is rebuilt if debug logging is on
// 3. Cache rules and metric labels
// 4. Cache levels and the cache service
// 5. Cancellation registry, credentials and the retrying transport
// 6. API client with request deduplication
// 7. Search orchestrator and interaction coordinator
// 8. HTTP server (uses all above components)
func NewCompositionRoot() (*CompositionRoot, error) {
	root := &CompositionRoot{}

	if err := root.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := root.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := root.loadCacheRules(); err != nil {
		return nil, fmt.Errorf("failed to load cache rules: %w", err)
	}

	if err := root.initCacheComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize cache components: %w", err)
	}

	if err := root.initTransport(); err != nil {
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}

	root.initServices()

	if err := root.initHTTPServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return root, nil
}

// initLogger initializes the application logger
func (r *CompositionRoot) initLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

// loadConfig loads the application configuration. A missing file is not an
// error; defaults and environment overrides are used instead.
func (r *CompositionRoot) loadConfig() error {
	configPath := os.Getenv("GRANTIFY_CONFIG_FILE")
	if configPath == "" {
		configPath = "/app/grantify_config.yaml"
	}

	cfg, err := config.LoadConfig(configPath, r.Logger)
	if errors.Is(err, fs.ErrNotExist) {
		r.Logger.Warn("Config file not found, using defaults", zap.String("path", configPath))
		cfg = config.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return err
	}
	r.Config = cfg

	if cfg.FeatureEnabled(config.FeatureDebugLogging) {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		_ = r.Logger.Sync()
		r.Logger = logger
		r.Logger.Debug("Debug logging enabled")
	}
	return nil
}

// loadCacheRules loads cache rules configuration, falling back to the
// built-in rules when no file is present
func (r *CompositionRoot) loadCacheRules() error {
	rulesPath := os.Getenv("GRANTIFY_CACHE_RULES_FILE")
	if rulesPath == "" {
		rulesPath = "/app/cache_rules.yaml"
	}

	cacheRules, err := cache_rules.LoadCacheRulesConfig(rulesPath, r.Logger)
	if errors.Is(err, fs.ErrNotExist) {
		r.Logger.Warn("Cache rules file not found, using built-in rules", zap.String("path", rulesPath))
		cacheRules, err = cache_rules.NewCacheConfig(cache_rules.DefaultRules(), r.Logger), nil
	}
	if err != nil {
		return err
	}
	r.CacheRules = cacheRules

	endpoints := append([]string{"grants"}, api.Endpoints...)
	metrics.InitializeAllowedEndpoints(append(endpoints, cacheRules.GetAllEndpoints()...))
	return nil
}

// initCacheComponents initializes the cache levels and the cache service
func (r *CompositionRoot) initCacheComponents() error {
	if err := r.initL1Cache(); err != nil {
		return fmt.Errorf("failed to initialize L1 cache: %w", err)
	}

	r.initL2Cache()

	levels := multi.NewMultiCache([]interfaces.Cache{r.L1Cache, r.L2Cache}, r.Logger, r.Config.MultiCache.EnablePropagation)
	r.CacheService = service.NewCacheService(
		levels,
		cache_rules.NewClassifier(r.Logger, r.CacheRules),
		r.Logger,
	)
	return nil
}

// initL1Cache initializes the in-process level: bigcache when enabled,
// otherwise the map-backed memory cache
func (r *CompositionRoot) initL1Cache() error {
	switch {
	case r.Config.BigCache.Enabled:
		l1Cache, err := l1.NewBigCache(&r.Config.BigCache, r.Logger)
		if err != nil {
			return err
		}
		r.L1Cache = l1Cache
		r.Logger.Info("BigCache (L1) initialized", zap.Int("size_mb", r.Config.BigCache.Size))
	case !r.Config.Cache.Disabled:
		r.L1Cache = memory.New(r.Logger, memory.WithJanitor(r.Config.Cache.JanitorInterval))
		r.Logger.Info("Memory cache (L1) initialized", zap.Duration("janitor_interval", r.Config.Cache.JanitorInterval))
	default:
		r.L1Cache = noop.NewNoOpCache()
		r.Logger.Info("L1 cache disabled")
	}
	return nil
}

// initL2Cache initializes the L2 cache (KeyDB)
func (r *CompositionRoot) initL2Cache() {
	if !r.Config.KeyDB.Enabled {
		r.L2Cache = noop.NewNoOpCache()
		r.Logger.Info("KeyDB (L2) disabled")
		return
	}

	keydbURL := GetKeyDBURL(r.Logger)
	keydbClient, err := l2.NewRedisKeyDbClient(&r.Config.KeyDB, keydbURL, r.Logger)
	if err != nil {
		r.Logger.Warn("Failed to connect to KeyDB, falling back to no L2 cache",
			zap.String("keydb_url", keydbURL),
			zap.Error(err))
		r.L2Cache = noop.NewNoOpCache()
		return
	}

	r.L2Cache = l2.NewKeyDBCache(r.Config, keydbClient, r.Logger)
	r.Logger.Info("KeyDB (L2) initialized", zap.String("keydb_url", keydbURL))
}

// initTransport builds the credential sources and the retrying transport
func (r *CompositionRoot) initTransport() error {
	r.Cancellations = cancellation.NewRegistry(r.Logger)

	fetcher := auth.NewCSRFFetcher(r.Config, nil, clock.New())
	r.CSRFTokens = auth.NewTokenCache("csrf", fetcher.Fetch, r.Config.Auth.RefreshSkew, clock.New(), r.Logger)

	r.Credentials = auth.NewCredentials(auth.StaticSource(os.Getenv("GRANTIFY_ACCESS_TOKEN")), r.Logger)
	if !r.Credentials.Authenticated(context.Background()) {
		r.Logger.Info("No access token configured, running anonymously")
	}

	tr, err := transport.NewClient(r.Config, nil, r.Cancellations, r.Logger,
		transport.WithCredentials(r.Credentials),
		transport.WithCSRF(r.CSRFTokens),
	)
	if err != nil {
		return err
	}
	r.Transport = tr
	return nil
}

// initServices wires the API client, the search orchestrator and the
// interaction coordinator
func (r *CompositionRoot) initServices() {
	r.InFlight = inflight.NewRegistry(r.Logger)
	r.API = api.NewClient(r.Transport, r.CacheService, r.InFlight, r.Credentials, r.Logger)

	r.Orchestrator = search.NewOrchestrator(r.API, r.Config.Search, r.Logger)
	r.Coordinator = interaction.NewCoordinator(
		r.API,
		r.Credentials,
		r.CacheService,
		api.WritePatterns(),
		r.Config.Interactions,
		r.Logger,
		interaction.WithView(r.Orchestrator),
		interaction.WithBackgroundRefresh(r.Config.FeatureEnabled(config.FeatureBackgroundRefresh)),
	)
}

// initHTTPServer initializes the HTTP server
func (r *CompositionRoot) initHTTPServer() error {
	r.HTTPServer = httpserver.NewServer(
		r.Orchestrator,
		r.Coordinator,
		r.API,
		r.CacheService,
		r.Logger,
		httpserver.WithRecommendations(r.Config.FeatureEnabled(config.FeatureRecommendations)),
	)
	return nil
}

// Shutdown stops background work and aborts every outstanding request
func (r *CompositionRoot) Shutdown() {
	if r.Coordinator != nil {
		r.Coordinator.Close()
	}
	if r.Orchestrator != nil {
		r.Orchestrator.Close()
	}
	if r.Cancellations != nil {
		if n := r.Cancellations.CancelAll(); n > 0 {
			r.Logger.Info("Cancelled outstanding requests", zap.Int("count", n))
		}
	}
}

// Cleanup performs cleanup of all resources
func (r *CompositionRoot) Cleanup() error {
	var errs []error

	// Close L1 cache
	switch c := r.L1Cache.(type) {
	case *l1.BigCache:
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L1 cache: %w", err))
		}
	case *memory.Cache:
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L1 cache: %w", err))
		}
	}

	// Close L2 cache
	if l2KeyDBCache, ok := r.L2Cache.(*l2.KeyDBCache); ok {
		if err := l2KeyDBCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L2 cache: %w", err))
		}
	}

	// Sync logger
	if r.Logger != nil {
		if err := r.Logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	return errors.Join(errs...)
}
