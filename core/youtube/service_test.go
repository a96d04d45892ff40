package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediavault/cache"
	"mediavault/core/extractor"
)

// memStore is a minimal in-memory cache.Store for service tests. It records
// the TTL of every write so tests can pin per-endpoint freshness windows.
type memStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    []time.Duration
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key], nil
}

func (s *memStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = data
	s.ttls = append(s.ttls, ttl)
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type fakeUpstream struct {
	searches     int
	trendings    int
	videos       int
	trendingKind string
	fail         bool
}

func (f *fakeUpstream) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	f.searches++
	if f.fail {
		return nil, &UpstreamError{StatusCode: 502, Endpoint: "/api/v1/search"}
	}
	return json.RawMessage(`[{"videoId":"abc","title":"` + query + `"}]`), nil
}

func (f *fakeUpstream) Trending(ctx context.Context, region, kind string) (json.RawMessage, error) {
	f.trendings++
	f.trendingKind = kind
	return json.RawMessage(`[{"videoId":"trend"}]`), nil
}

func (f *fakeUpstream) Video(ctx context.Context, videoID string) (json.RawMessage, error) {
	f.videos++
	return json.RawMessage(`{"videoId":"` + videoID + `"}`), nil
}

func (f *fakeUpstream) Channel(ctx context.Context, channelID string, page int) (json.RawMessage, error) {
	return json.RawMessage(`{"channelId":"` + channelID + `"}`), nil
}

func (f *fakeUpstream) Comments(ctx context.Context, videoID, continuation string) (json.RawMessage, error) {
	return json.RawMessage(`{"comments":[]}`), nil
}

type fakeExtractor struct {
	calls int
	err   error
	info  *extractor.StreamInfo
}

func (f *fakeExtractor) Extract(ctx context.Context, videoID, quality string) (*extractor.StreamInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	info := *f.info
	info.VideoID = videoID
	info.Quality = quality
	return &info, nil
}

func newTestService(upstream *fakeUpstream, streams *fakeExtractor) *Service {
	return newTestServiceWithStore(upstream, streams, newMemStore())
}

func newTestServiceWithStore(upstream *fakeUpstream, streams *fakeExtractor, store *memStore) *Service {
	c := cache.NewResourceCache(store, time.Hour, 30*time.Minute)
	ttl := TTLConfig{
		Search:   time.Hour,
		Trending: time.Hour,
		Video:    6 * time.Hour,
		Stream:   6 * time.Hour,
		Channel:  6 * time.Hour,
		Comments: time.Hour,
		Negative: 5 * time.Minute,
	}
	return NewService(upstream, streams, c, ttl, "medium")
}

func TestSearchCachesUpstreamPayload(t *testing.T) {
	upstream := &fakeUpstream{}
	svc := newTestService(upstream, &fakeExtractor{})

	payload, cached, err := svc.Search(context.Background(), "cats", 1, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.JSONEq(t, `[{"videoId":"abc","title":"cats"}]`, string(payload))

	_, cached, err = svc.Search(context.Background(), "cats", 1, false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, upstream.searches)

	// A different page is a different resource.
	_, cached, err = svc.Search(context.Background(), "cats", 2, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, upstream.searches)
}

func TestSearchForceRefreshBypassesCache(t *testing.T) {
	upstream := &fakeUpstream{}
	svc := newTestService(upstream, &fakeExtractor{})

	_, _, err := svc.Search(context.Background(), "cats", 1, false)
	require.NoError(t, err)

	_, cached, err := svc.Search(context.Background(), "cats", 1, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, upstream.searches)
}

func TestTrendingCachesForOneHour(t *testing.T) {
	upstream := &fakeUpstream{}
	store := newMemStore()
	svc := newTestServiceWithStore(upstream, &fakeExtractor{}, store)

	payload, cached, err := svc.Trending(context.Background(), "US", "", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.JSONEq(t, `[{"videoId":"trend"}]`, string(payload))
	require.Len(t, store.ttls, 1)
	assert.Equal(t, time.Hour, store.ttls[0])

	_, cached, err = svc.Trending(context.Background(), "US", "", false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, upstream.trendings)
}

func TestTrendingTypeIsPartOfIdentity(t *testing.T) {
	upstream := &fakeUpstream{}
	svc := newTestService(upstream, &fakeExtractor{})

	_, _, err := svc.Trending(context.Background(), "US", "music", false)
	require.NoError(t, err)
	assert.Equal(t, "music", upstream.trendingKind)

	_, cached, err := svc.Trending(context.Background(), "US", "gaming", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "gaming", upstream.trendingKind)
	assert.Equal(t, 2, upstream.trendings)
}

func TestUpstreamFailureIsNotCached(t *testing.T) {
	upstream := &fakeUpstream{fail: true}
	svc := newTestService(upstream, &fakeExtractor{})

	_, _, err := svc.Search(context.Background(), "cats", 1, false)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 502, upErr.StatusCode)

	// Once the upstream recovers the very next call succeeds; no negative
	// entry was left behind for metadata.
	upstream.fail = false
	_, cached, err := svc.Search(context.Background(), "cats", 1, false)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestStreamSuccessIsCached(t *testing.T) {
	streams := &fakeExtractor{info: &extractor.StreamInfo{
		StreamURL: "https://cdn/signed",
		Title:     "Cached stream",
		Format:    "18",
		MimeType:  "video/mp4",
		ExpiresAt: time.Now().UTC().Add(6 * time.Hour),
	}}
	svc := newTestService(&fakeUpstream{}, streams)

	result, cached, err := svc.Stream(context.Background(), "abc", "", false)
	require.NoError(t, err)
	assert.False(t, cached)
	require.True(t, result.Success)
	assert.Equal(t, "https://cdn/signed", result.Data.StreamURL)
	assert.Equal(t, "medium", result.Data.Quality) // default quality applied

	result, cached, err = svc.Stream(context.Background(), "abc", "", false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.True(t, result.Success)
	assert.Equal(t, 1, streams.calls)
}

func TestStreamExtractionFailureIsNegativeCached(t *testing.T) {
	streams := &fakeExtractor{err: &extractor.ExtractionError{
		VideoID: "broken", Err: errors.New("no progressive format"),
	}}
	svc := newTestService(&fakeUpstream{}, streams)

	result, cached, err := svc.Stream(context.Background(), "broken", "medium", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, result.Success)
	assert.True(t, result.ExtractOnDevice)
	assert.Equal(t, "broken", result.VideoID)

	// Devices get a fixed message; extractor diagnostics stay server-side.
	assert.Equal(t, "stream extraction failed", result.Error)
	assert.NotContains(t, result.Error, "no progressive format")

	// The negative result is served from cache; the extractor is not
	// retried while the entry lives.
	result, cached, err = svc.Stream(context.Background(), "broken", "medium", false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.True(t, result.ExtractOnDevice)
	assert.Equal(t, 1, streams.calls)
}

func TestStreamForceRefreshRetriesAfterFailure(t *testing.T) {
	streams := &fakeExtractor{err: &extractor.ExtractionError{
		VideoID: "flaky", Err: errors.New("timed out"),
	}}
	svc := newTestService(&fakeUpstream{}, streams)

	_, _, err := svc.Stream(context.Background(), "flaky", "medium", false)
	require.NoError(t, err)

	// The video recovered; forceRefresh discards the negative entry.
	streams.err = nil
	streams.info = &extractor.StreamInfo{
		StreamURL: "https://cdn/recovered",
		ExpiresAt: time.Now().UTC().Add(6 * time.Hour),
	}
	result, cached, err := svc.Stream(context.Background(), "flaky", "medium", true)
	require.NoError(t, err)
	assert.False(t, cached)
	require.True(t, result.Success)
	assert.Equal(t, "https://cdn/recovered", result.Data.StreamURL)
	assert.Equal(t, 2, streams.calls)
}

func TestStreamInfrastructureErrorSurfaces(t *testing.T) {
	streams := &fakeExtractor{err: errors.New("context canceled")}
	svc := newTestService(&fakeUpstream{}, streams)

	_, _, err := svc.Stream(context.Background(), "abc", "medium", false)
	require.Error(t, err)

	// Not cached: the next call hits the extractor again.
	_, _, err = svc.Stream(context.Background(), "abc", "medium", false)
	require.Error(t, err)
	assert.Equal(t, 2, streams.calls)
}

func TestStreamQualityIsPartOfIdentity(t *testing.T) {
	streams := &fakeExtractor{info: &extractor.StreamInfo{
		StreamURL: "https://cdn/x",
		ExpiresAt: time.Now().UTC().Add(6 * time.Hour),
	}}
	svc := newTestService(&fakeUpstream{}, streams)

	_, _, err := svc.Stream(context.Background(), "abc", "low", false)
	require.NoError(t, err)
	_, cached, err := svc.Stream(context.Background(), "abc", "high", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, streams.calls)
}
