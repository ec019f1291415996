package repo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/incident-autopilot/internal/utils"
)

func newIAMServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret-key", r.PostForm.Get("apikey"))
		assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", r.PostForm.Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
}

func TestIAMTokenSourceExchangesAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := newIAMServer(t, &hits)
	defer server.Close()

	store := newStubCache()
	src := NewIAMTokenSource(nil, server.URL, "secret-key", store, time.Second)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-123", tok.AccessToken)
	assert.Equal(t, int32(1), hits.Load())

	key, ttl, single := store.only()
	require.True(t, single, "expected exactly one cached entry")
	assert.NotContains(t, key, "secret-key")
	assert.InDelta(t, (59 * time.Minute).Seconds(), ttl.Seconds(), 5)

	// A second source sharing the cache (another replica) skips the exchange.
	other := NewIAMTokenSource(nil, server.URL, "secret-key", store, time.Second)
	cached, err := other.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-123", cached.AccessToken)
	assert.Equal(t, int32(1), hits.Load())
}

func TestIAMTokenSourceIgnoresNearlyExpiredCache(t *testing.T) {
	var hits atomic.Int32
	server := newIAMServer(t, &hits)
	defer server.Close()

	store := newStubCache()
	src := NewIAMTokenSource(nil, server.URL, "secret-key", store, time.Second)
	_, err := src.Token()
	require.NoError(t, err)

	src.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	// The stale entry is evicted and the fresh token is too short-lived to store.
	assert.Equal(t, 1, store.deleted())
	_, _, present := store.only()
	assert.False(t, present)
}

func TestIAMTokenSourceEvictsCorruptCache(t *testing.T) {
	var hits atomic.Int32
	server := newIAMServer(t, &hits)
	defer server.Close()

	store := newStubCache()
	src := NewIAMTokenSource(nil, server.URL, "secret-key", store, time.Second)
	require.NoError(t, store.Set(context.Background(), src.cacheKey, []byte("not-json"), time.Hour))

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "token-123", tok.AccessToken)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, store.deleted())

	data, err := store.Get(context.Background(), src.cacheKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token-123")
}

func TestReusableTokenSource(t *testing.T) {
	var hits atomic.Int32
	server := newIAMServer(t, &hits)
	defer server.Close()

	ts := NewReusableTokenSource(NewIAMTokenSource(nil, server.URL, "secret-key", nil, time.Second))
	for i := 0; i < 3; i++ {
		_, err := ts.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestIAMTokenSourceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"invalid key"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	src := NewIAMTokenSource(nil, server.URL, "bad", nil, time.Second)
	_, err := src.Token()
	require.Error(t, err)

	var appErr *utils.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "iam.token", appErr.Op)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestIAMTokenSourceMissingKey(t *testing.T) {
	src := NewIAMTokenSource(nil, "https://iam.example", "", nil, time.Second)
	_, err := src.Token()
	require.Error(t, err)
}
