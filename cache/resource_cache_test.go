package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for tests. TTL eviction is checked lazily
// against the clock the test controls.
type memStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
	getErr  error
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{entries: make(map[string]memEntry), now: now}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return nil, nil
	}
	return e.data, nil
}

func (s *memStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// testCache builds a cache with a mutable clock. The margin matches the
// production stream safety window.
func testCache(t *testing.T) (*ResourceCache, *memStore, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := newMemStore(func() time.Time { return *clock })
	c := NewResourceCache(store, time.Hour, 30*time.Minute)
	c.now = func() time.Time { return *clock }
	return c, store, clock
}

func staticProducer(payload string, calls *int32) Producer {
	return func(ctx context.Context) (*Value, error) {
		atomic.AddInt32(calls, 1)
		return &Value{Payload: []byte(payload)}, nil
	}
}

func TestDescriptorKeyHashesParts(t *testing.T) {
	a := Descriptor{Kind: "search", Parts: []string{"cat videos", "1"}}
	b := Descriptor{Kind: "search", Parts: []string{"cat videos", "2"}}

	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), Descriptor{Kind: "search", Parts: []string{"cat videos", "1"}}.Key())
	// Raw input never appears in the key.
	assert.NotContains(t, a.Key(), "cat videos")
	assert.Contains(t, a.Key(), "youtube:search:")
}

func TestGetOrComputeFillsThenHits(t *testing.T) {
	c, _, _ := testCache(t)
	desc := Descriptor{Kind: "video", Parts: []string{"abc"}}
	var calls int32

	payload, cached, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`{"id":"abc"}`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.JSONEq(t, `{"id":"abc"}`, string(payload))

	payload, cached, err = c.GetOrCompute(context.Background(), desc, false, staticProducer(`{"id":"other"}`, &calls))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.JSONEq(t, `{"id":"abc"}`, string(payload))
	assert.Equal(t, int32(1), calls)
}

func TestGetOrComputeExpiresWithTTL(t *testing.T) {
	c, _, clock := testCache(t)
	desc := Descriptor{Kind: "search", Parts: []string{"q", "1"}}
	var calls int32

	_, _, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"v1"`, &calls))
	require.NoError(t, err)

	*clock = clock.Add(61 * time.Minute)
	_, cached, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"v2"`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls)
}

func TestGetOrComputeHonorsTTLOverride(t *testing.T) {
	c, _, clock := testCache(t)
	desc := Descriptor{Kind: "search", Parts: []string{"short-lived"}}
	var calls int32

	_, _, err := c.GetOrCompute(context.Background(), desc, false, func(ctx context.Context) (*Value, error) {
		atomic.AddInt32(&calls, 1)
		return &Value{Payload: []byte(`"v"`), TTL: 5 * time.Minute}, nil
	})
	require.NoError(t, err)

	*clock = clock.Add(6 * time.Minute)
	_, cached, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"v"`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls)
}

func TestHardExpiryMarginForcesMiss(t *testing.T) {
	c, _, clock := testCache(t)
	desc := Descriptor{Kind: "stream", Parts: []string{"abc", "medium"}}
	var calls int32

	hardExpiry := clock.Add(45 * time.Minute)
	produce := func(ctx context.Context) (*Value, error) {
		atomic.AddInt32(&calls, 1)
		return &Value{Payload: []byte(`{"url":"signed"}`), HardExpiry: hardExpiry}, nil
	}

	_, _, err := c.GetOrCompute(context.Background(), desc, false, produce)
	require.NoError(t, err)

	// 10 minutes in, 35 minutes of hard lifetime remain: still usable.
	*clock = clock.Add(10 * time.Minute)
	_, cached, err := c.GetOrCompute(context.Background(), desc, false, produce)
	require.NoError(t, err)
	assert.True(t, cached)

	// 20 minutes in, only 25 minutes remain, inside the 30-minute margin.
	*clock = clock.Add(10 * time.Minute)
	_, cached, err = c.GetOrCompute(context.Background(), desc, false, produce)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), calls)
}

func TestHardExpiryCapsStoredTTL(t *testing.T) {
	c, store, clock := testCache(t)
	desc := Descriptor{Kind: "stream", Parts: []string{"xyz"}}

	// Default TTL is an hour but the payload dies in 40 minutes; with the
	// 30-minute margin the entry may only live 10 minutes in the store.
	_, _, err := c.GetOrCompute(context.Background(), desc, false, func(ctx context.Context) (*Value, error) {
		return &Value{Payload: []byte(`"v"`), HardExpiry: clock.Add(40 * time.Minute)}, nil
	})
	require.NoError(t, err)

	e := store.entries[desc.Key()]
	assert.Equal(t, clock.Add(10*time.Minute), e.expiresAt)
}

func TestForceRefreshDiscardsEntry(t *testing.T) {
	c, _, _ := testCache(t)
	desc := Descriptor{Kind: "video", Parts: []string{"abc"}}
	var calls int32

	_, _, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"old"`, &calls))
	require.NoError(t, err)

	payload, cached, err := c.GetOrCompute(context.Background(), desc, true, staticProducer(`"new"`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `"new"`, string(payload))
	assert.Equal(t, int32(2), calls)
}

func TestProducerErrorIsNotCached(t *testing.T) {
	c, _, _ := testCache(t)
	desc := Descriptor{Kind: "video", Parts: []string{"flaky"}}
	var calls int32

	_, _, err := c.GetOrCompute(context.Background(), desc, false, func(ctx context.Context) (*Value, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("upstream down")
	})
	require.Error(t, err)

	// The failure left nothing behind; the next call computes again.
	payload, cached, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"ok"`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `"ok"`, string(payload))
	assert.Equal(t, int32(2), calls)
}

func TestConcurrentCallersShareOneProducerRun(t *testing.T) {
	c, _, _ := testCache(t)
	desc := Descriptor{Kind: "search", Parts: []string{"stampede"}}

	var calls int32
	release := make(chan struct{})
	produce := func(ctx context.Context) (*Value, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Value{Payload: []byte(`"shared"`)}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _, err := c.GetOrCompute(context.Background(), desc, false, produce)
			assert.NoError(t, err)
			results[i] = payload
		}(i)
	}

	// Give every goroutine time to pile onto the flight, then let it finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < n; i++ {
		assert.Equal(t, `"shared"`, string(results[i]))
	}
}

func TestBackendReadFailureFallsThroughToProducer(t *testing.T) {
	c, store, _ := testCache(t)
	desc := Descriptor{Kind: "video", Parts: []string{"abc"}}
	var calls int32

	store.getErr = errors.New("connection reset")
	payload, cached, err := c.GetOrCompute(context.Background(), desc, false, staticProducer(`"fresh"`, &calls))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, `"fresh"`, string(payload))
}
