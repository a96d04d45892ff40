package library

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediavault/model"
	"mediavault/repository"
)

// fakeStore is an in-memory stand-in for the MySQL media repository. It
// enforces the same (user_id, url_hash) uniqueness the real schema does and
// snapshots state at BeginTx so Rollback behaves like a real transaction.
type fakeStore struct {
	records map[string]*model.Media // keyed by id
	clock   time.Time
	logs    []*model.SyncLog
	failTx  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*model.Media),
		clock:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) BeginTx(ctx context.Context) (repository.MediaTx, error) {
	if s.failTx {
		return nil, fmt.Errorf("connection refused")
	}
	snapshot := make(map[string]*model.Media, len(s.records))
	for id, m := range s.records {
		copied := *m
		snapshot[id] = &copied
	}
	return &fakeTx{store: s, snapshot: snapshot}, nil
}

func (s *fakeStore) Create(ctx context.Context, m *model.Media) error { panic("not used") }
func (s *fakeStore) GetByID(ctx context.Context, userID int64, id string) (*model.Media, error) {
	panic("not used")
}
func (s *fakeStore) List(ctx context.Context, userID int64, f repository.MediaListFilter) ([]*model.Media, int, error) {
	panic("not used")
}
func (s *fakeStore) Update(ctx context.Context, m *model.Media) error { panic("not used") }
func (s *fakeStore) SoftDeleteOne(ctx context.Context, userID int64, id string) error {
	panic("not used")
}
func (s *fakeStore) FindModifiedSince(ctx context.Context, userID int64, since time.Time) ([]model.MediaDelta, error) {
	return s.modifiedSince(userID, since), nil
}

func (s *fakeStore) modifiedSince(userID int64, since time.Time) []model.MediaDelta {
	deltas := make([]model.MediaDelta, 0)
	for _, m := range s.records {
		if m.UserID == userID && m.DeletedAt == nil && m.UpdatedAt.After(since) {
			deltas = append(deltas, model.MediaDelta{
				ID: m.ID, Title: m.Title, UpdatedAt: m.UpdatedAt.UnixMilli(),
			})
		}
	}
	for i := range deltas {
		for j := i + 1; j < len(deltas); j++ {
			if deltas[j].UpdatedAt < deltas[i].UpdatedAt {
				deltas[i], deltas[j] = deltas[j], deltas[i]
			}
		}
	}
	return deltas
}

func (s *fakeStore) Append(ctx context.Context, entry *model.SyncLog) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.SyncLog, error) {
	return s.logs, nil
}

// seed inserts a live record directly, bypassing the engine.
func (s *fakeStore) seed(userID int64, id, rawURL, title string) *model.Media {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		panic(err)
	}
	hash := Fingerprint(userID, normalized)
	now := s.tick()
	m := &model.Media{
		ID: id, UserID: userID, URL: rawURL, URLHash: &hash, Title: title,
		Category: "music", SourcePlatform: "youtube", PlaybackSpeed: 1.0,
		CreatedAt: now, UpdatedAt: now,
	}
	s.records[id] = m
	return m
}

type fakeTx struct {
	store    *fakeStore
	snapshot map[string]*model.Media
	done     bool
}

func (t *fakeTx) Upsert(m *model.Media) error {
	if m.URLHash != nil {
		for _, other := range t.store.records {
			if other.ID != m.ID && other.UserID == m.UserID &&
				other.URLHash != nil && *other.URLHash == *m.URLHash {
				return repository.ErrDuplicateFingerprint
			}
		}
	}
	now := t.store.tick()
	if existing, ok := t.store.records[m.ID]; ok && existing.UserID == m.UserID {
		m.CreatedAt = existing.CreatedAt
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.DeletedAt = nil
	copied := *m
	t.store.records[m.ID] = &copied
	return nil
}

func (t *fakeTx) SoftDelete(userID int64, ids []string) error {
	for _, id := range ids {
		m, ok := t.store.records[id]
		if !ok || m.UserID != userID || m.DeletedAt != nil {
			continue
		}
		now := t.store.tick()
		m.DeletedAt = &now
		m.UpdatedAt = now
		m.URLHash = nil
	}
	return nil
}

func (t *fakeTx) FindModifiedSince(userID int64, since time.Time) ([]model.MediaDelta, error) {
	return t.store.modifiedSince(userID, since), nil
}

func (t *fakeTx) Commit() error {
	t.done = true
	return nil
}

func (t *fakeTx) Rollback() {
	if t.done {
		return
	}
	t.store.records = t.snapshot
	t.done = true
}

func newItem(rawURL, title string) ClientItem {
	return ClientItem{
		ID:             uuid.NewString(),
		URL:            rawURL,
		Title:          title,
		Category:       "music",
		SourcePlatform: "youtube",
		PlaybackSpeed:  1.0,
	}
}

func TestMergeInsertsNewItems(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 1000)

	items := []ClientItem{
		newItem("https://www.youtube.com/watch?v=abc", "First"),
		newItem("https://www.youtube.com/watch?v=def", "Second"),
	}
	result, err := engine.Merge(context.Background(), 1, "device-a", items, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 0, result.FailedCount)
	// A full sync (zero watermark) echoes back everything just written.
	assert.Len(t, result.ServerUpdates, 2)

	require.Len(t, store.logs, 1)
	assert.Equal(t, model.SyncTypeFull, store.logs[0].SyncType)
	assert.Equal(t, model.SyncStatusSuccess, store.logs[0].Status)
	assert.Equal(t, 2, store.logs[0].ItemsSynced)
	assert.Nil(t, store.logs[0].ErrorDetails)
}

func TestMergeIsIdempotent(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 1000)

	items := []ClientItem{newItem("https://example.com/video/1", "Replay me")}
	first, err := engine.Merge(context.Background(), 1, "device-a", items, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.SyncedCount)

	// Replaying the identical batch matches by id and overwrites in place.
	second, err := engine.Merge(context.Background(), 1, "device-a", items, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, second.SyncedCount)
	assert.Equal(t, 0, second.FailedCount)
	assert.Len(t, store.records, 1)
}

func TestMergeCountsFingerprintConflicts(t *testing.T) {
	store := newFakeStore()
	store.seed(1, uuid.NewString(), "https://example.com/watch?v=dup", "Already here")
	engine := NewEngine(store, store, 1000)

	conflicting := newItem("HTTPS://EXAMPLE.COM/watch?v=dup", "Same URL, new id")
	items := []ClientItem{
		newItem("https://example.com/watch?v=one", "Fine"),
		conflicting,
		newItem("https://example.com/watch?v=two", "Also fine"),
	}
	result, err := engine.Merge(context.Background(), 1, "device-a", items, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, result.SyncedCount)
	assert.Equal(t, 1, result.FailedCount)

	require.Len(t, store.logs, 1)
	entry := store.logs[0]
	assert.Equal(t, model.SyncStatusPartial, entry.Status)
	require.NotNil(t, entry.ErrorDetails)
	assert.Equal(t, 1, entry.ErrorDetails.FailedCount)
	assert.Equal(t, []string{conflicting.ID}, entry.ErrorDetails.ConflictIDs)
}

func TestMergeSameURLDifferentUsers(t *testing.T) {
	store := newFakeStore()
	store.seed(1, uuid.NewString(), "https://example.com/shared", "User one's copy")
	engine := NewEngine(store, store, 1000)

	items := []ClientItem{newItem("https://example.com/shared", "User two's copy")}
	result, err := engine.Merge(context.Background(), 2, "device-b", items, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestMergeDeletionIsIdempotent(t *testing.T) {
	store := newFakeStore()
	seeded := store.seed(1, uuid.NewString(), "https://example.com/gone", "Delete me")
	engine := NewEngine(store, store, 1000)

	ids := []string{seeded.ID, uuid.NewString()} // second id never existed
	result, err := engine.Merge(context.Background(), 1, "device-a", nil, ids, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.FailedCount)
	require.NotNil(t, store.records[seeded.ID].DeletedAt)

	// Deleting again is a silent no-op.
	_, err = engine.Merge(context.Background(), 1, "device-a", nil, ids, 0)
	require.NoError(t, err)
}

func TestMergeDeletedURLCanBeReAdded(t *testing.T) {
	store := newFakeStore()
	seeded := store.seed(1, uuid.NewString(), "https://example.com/revived", "Old bookmark")
	engine := NewEngine(store, store, 1000)

	_, err := engine.Merge(context.Background(), 1, "device-a", nil, []string{seeded.ID}, 0)
	require.NoError(t, err)

	// The soft-deleted record no longer holds the fingerprint, so the same
	// URL can come back under a fresh id.
	result, err := engine.Merge(context.Background(), 1, "device-a",
		[]ClientItem{newItem("https://example.com/revived", "New bookmark")}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestMergeDeltaIncludesOtherDeviceWrites(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 1000)

	// Device B wrote something earlier.
	other := newItem("https://example.com/from-b", "From device B")
	_, err := engine.Merge(context.Background(), 1, "device-b", []ClientItem{other}, nil, 0)
	require.NoError(t, err)
	watermark := store.clock.UnixMilli() - 1

	mine := newItem("https://example.com/from-a", "From device A")
	result, err := engine.Merge(context.Background(), 1, "device-a", []ClientItem{mine}, nil, watermark)
	require.NoError(t, err)

	// The delta carries both device B's write and the echo of this call's
	// own write, oldest first.
	require.Len(t, result.ServerUpdates, 2)
	assert.Equal(t, other.ID, result.ServerUpdates[0].ID)
	assert.Equal(t, mine.ID, result.ServerUpdates[1].ID)
	assert.LessOrEqual(t, result.ServerUpdates[0].UpdatedAt, result.ServerUpdates[1].UpdatedAt)

	require.Len(t, store.logs, 2)
	assert.Equal(t, model.SyncTypeIncremental, store.logs[1].SyncType)
}

func TestMergeDeltaExcludesDeletedAndForeign(t *testing.T) {
	store := newFakeStore()
	deleted := store.seed(1, uuid.NewString(), "https://example.com/del", "Deleted")
	store.seed(2, uuid.NewString(), "https://example.com/other-user", "Not yours")
	engine := NewEngine(store, store, 1000)

	result, err := engine.Merge(context.Background(), 1, "device-a", nil, []string{deleted.ID}, 0)
	require.NoError(t, err)
	assert.Empty(t, result.ServerUpdates)
}

func TestMergeValidationRejectsBatchUpfront(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 1000)

	bad := newItem("https://example.com/x", "Bad speed")
	bad.PlaybackSpeed = 5.0
	_, err := engine.Merge(context.Background(), 1, "device-a", []ClientItem{bad}, nil, 0)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "playbackSpeed", verr.Fields[0].Field)
	assert.Equal(t, 0, verr.Fields[0].Index)

	// Nothing was written, no audit entry either.
	assert.Empty(t, store.records)
	assert.Empty(t, store.logs)
}

func TestMergeTitleLimitCountsRunes(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 1000)

	// 200 CJK characters are 600 bytes but well under the 255-character cap.
	ok := newItem("https://example.com/cjk", strings.Repeat("日", 200))
	result, err := engine.Merge(context.Background(), 1, "device-a", []ClientItem{ok}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SyncedCount)

	long := newItem("https://example.com/long", strings.Repeat("日", 256))
	_, err = engine.Merge(context.Background(), 1, "device-a", []ClientItem{long}, nil, 0)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "title", verr.Fields[0].Field)
}

func TestMergeValidationCollectsAllProblems(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, store, 2)

	items := []ClientItem{
		{ID: "not-a-uuid", URL: "://broken", Category: "nope", SourcePlatform: "youtube", PlaybackSpeed: 1.0},
		newItem("https://example.com/ok", "Fine"),
		newItem("https://example.com/over", "Over the limit"),
	}
	_, err := engine.Merge(context.Background(), 1, "", items, nil, 0)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make(map[string]bool)
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["deviceId"])
	assert.True(t, fields["mediaItems"])
	assert.True(t, fields["id"])
	assert.True(t, fields["url"])
	assert.True(t, fields["title"])
	assert.True(t, fields["category"])
}

func TestMergeInfrastructureFailure(t *testing.T) {
	store := newFakeStore()
	store.failTx = true
	engine := NewEngine(store, store, 1000)

	_, err := engine.Merge(context.Background(), 1, "device-a",
		[]ClientItem{newItem("https://example.com/x", "Never lands")}, nil, 0)

	var ierr *InfrastructureError
	require.ErrorAs(t, err, &ierr)
	assert.Empty(t, store.records)
	assert.Empty(t, store.logs)
}
