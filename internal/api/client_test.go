package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"grantify-client/internal/cache/memory"
	"grantify-client/internal/cache/multi"
	"grantify-client/internal/cache/service"
	"grantify-client/internal/cache_rules"
	"grantify-client/internal/cancellation"
	"grantify-client/internal/config"
	"grantify-client/internal/inflight"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/interfaces/mock"
	"grantify-client/internal/models"
	"grantify-client/internal/transport"
)

type testEnv struct {
	client  *Client
	cache   *service.CacheService
	cancels *cancellation.Registry
}

func newTestEnv(t *testing.T, server *httptest.Server, credentials interfaces.CredentialProvider) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	cfg := config.Default()
	cfg.Service.BaseURL = server.URL
	cfg.Retry = config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	cancels := cancellation.NewRegistry(logger)
	var opts []transport.Option
	if credentials != nil {
		opts = append(opts, transport.WithCredentials(credentials))
	}
	tr, err := transport.NewClient(cfg, server.Client(), cancels, logger, opts...)
	require.NoError(t, err)

	levels := multi.NewMultiCache([]interfaces.Cache{memory.New(logger)}, logger, false)
	classifier := cache_rules.NewClassifier(logger, cache_rules.NewCacheConfig(cache_rules.DefaultRules(), logger))
	cacheService := service.NewCacheService(levels, classifier, logger)

	return &testEnv{
		client:  NewClient(tr, cacheService, inflight.NewRegistry(logger), credentials, logger),
		cache:   cacheService,
		cancels: cancels,
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Search_CachesResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/grants", r.URL.Path)
		writeJSON(w, models.SearchResult{Items: []models.Grant{{ID: "g-1", Title: "Rural broadband"}}, TotalCount: 1})
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)
	params := url.Values{"page": {"1"}, "limit": {"6"}}

	first, err := env.client.Search(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "g-1", first.Items[0].ID)

	second, err := env.client.Search(context.Background(), url.Values{"limit": {"6"}, "page": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Search_DeduplicatesConcurrentReads(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		writeJSON(w, models.SearchResult{Items: []models.Grant{}, TotalCount: 0})
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)
	params := url.Values{"q": {"water"}}

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.client.Search(context.Background(), params)
			assert.NoError(t, err)
			assert.NotNil(t, result)
		}()
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Search_FailureNotCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, models.SearchResult{Items: []models.Grant{{ID: "g-2"}}, TotalCount: 1})
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)

	_, err := env.client.Search(context.Background(), url.Values{})
	require.Error(t, err)
	assert.True(t, transport.IsStatus(err, http.StatusBadRequest))

	result, err := env.client.Search(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Reads_PartitionedByIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, []models.Interaction{{GrantID: "g-1", Action: models.ActionSaved}})
	}))
	defer server.Close()

	identity := "u-aaaaaaaaaaaa"
	credentials := mock.NewMockCredentialProvider(ctrl)
	credentials.EXPECT().Identity(gomock.Any()).DoAndReturn(func(ctx context.Context) string { return identity }).AnyTimes()
	credentials.EXPECT().AccessToken(gomock.Any()).Return("token", true, nil).AnyTimes()

	env := newTestEnv(t, server, credentials)

	interactions, err := env.client.Interactions(context.Background())
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, models.ActionSaved, interactions[0].Action)

	_, err = env.client.Interactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	identity = "u-bbbbbbbbbbbb"
	_, err = env.client.Interactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Recommendations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recommendations", r.URL.Path)
		writeJSON(w, []models.Recommendation{{GrantID: "g-9", Score: 0.9}})
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)

	recommendations, err := env.client.Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recommendations, 1)
	assert.Equal(t, "g-9", recommendations[0].GrantID)
}

func TestClient_RecordAndDeleteInteraction(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var body models.InteractionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)

	require.NoError(t, env.client.RecordInteraction(context.Background(), "g-1", models.ActionApplied))
	require.NoError(t, env.client.DeleteInteraction(context.Background(), "g 1", models.ActionApplied))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /interactions",
		"DELETE /interactions/g%201?action=applied",
	}, seen)
	assert.Equal(t, models.InteractionRequest{GrantID: "g-1", Action: models.ActionApplied}, body)
	assert.Equal(t, 0, env.cancels.Len())
}

func TestClient_WritePatternsInvalidateReads(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/grants":
			writeJSON(w, models.SearchResult{Items: []models.Grant{}, TotalCount: 0})
		default:
			writeJSON(w, []interface{}{})
		}
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)
	ctx := context.Background()

	_, err := env.client.Search(ctx, url.Values{"page": {"1"}})
	require.NoError(t, err)
	_, err = env.client.Recommendations(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))

	removed := env.cache.Invalidate(WritePatterns()...)
	assert.Equal(t, 2, removed)

	_, err = env.client.Search(ctx, url.Values{"page": {"1"}})
	require.NoError(t, err)
	_, err = env.client.Recommendations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestClient_ReadSpanningWriteIsNotCached(t *testing.T) {
	var searches int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/grants":
			if atomic.AddInt32(&searches, 1) == 1 {
				close(started)
				<-release
				writeJSON(w, models.SearchResult{Items: []models.Grant{{ID: "g-1"}, {ID: "g-2"}}, TotalCount: 2})
				return
			}
			writeJSON(w, models.SearchResult{Items: []models.Grant{{ID: "g-2"}}, TotalCount: 1})
		case "/interactions":
			writeJSON(w, map[string]string{"status": "ok"})
		}
	}))
	defer server.Close()

	env := newTestEnv(t, server, nil)
	ctx := context.Background()
	params := url.Values{"page": {"1"}}

	before := make(chan *models.SearchResult, 1)
	go func() {
		result, err := env.client.Search(ctx, params)
		assert.NoError(t, err)
		before <- result
	}()
	<-started

	env.cache.Invalidate(WritePatterns()...)
	require.NoError(t, env.client.RecordInteraction(ctx, "g-1", models.ActionIgnored))

	close(release)
	assert.Equal(t, 2, (<-before).TotalCount)

	result, err := env.client.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searches))

	// the post-write response is cached normally
	result, err = env.client.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searches))
}

func TestClient_ReadAfterInvalidationDoesNotJoinEarlierRead(t *testing.T) {
	var searches int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&searches, 1) == 1 {
			close(started)
			<-release
			writeJSON(w, models.SearchResult{Items: []models.Grant{{ID: "g-1"}}, TotalCount: 1})
			return
		}
		writeJSON(w, models.SearchResult{Items: []models.Grant{}, TotalCount: 0})
	}))
	defer server.Close()
	defer close(release)

	env := newTestEnv(t, server, nil)
	ctx := context.Background()
	params := url.Values{"page": {"1"}}

	go func() { _, _ = env.client.Search(ctx, params) }()
	<-started

	env.cache.Invalidate(WritePatterns()...)

	result, err := env.client.Search(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&searches))
}
