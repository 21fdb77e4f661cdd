package historydb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/mobiletts/internal/domain/history"
	"github.com/osa030/mobiletts/internal/domain/segment"
)

func openTestStore(t *testing.T, maxEntries int) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:       filepath.Join(t.TempDir(), "data", "history.db"),
		MaxEntries: maxEntries,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(text string, created time.Time) history.Entry {
	e := history.NewEntry(text, "af_heart", 1, []byte("mp3:"+text), []segment.Segment{
		{Text: text, Start: 0, End: 2.5, ChunkIndex: 0},
	})
	e.CreatedAt = created
	return e
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	entry := testEntry("Hello world.", created)

	require.NoError(t, s.Save(ctx, entry))

	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.Text, got.Text)
	assert.Equal(t, entry.Voice, got.Voice)
	assert.Equal(t, entry.Speed, got.Speed)
	assert.Equal(t, entry.Audio, got.Audio)
	assert.Equal(t, entry.TimingSegments, got.TimingSegments)
	assert.Equal(t, 2.5, got.Duration)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	s := openTestStore(t, 0)
	entry := testEntry("  ", time.Now())

	err := s.Save(context.Background(), entry)
	assert.True(t, errors.Is(err, history.ErrEmptyText))
}

func TestStore_SaveReplacesSameID(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	entry := testEntry("first", time.Now())
	require.NoError(t, s.Save(ctx, entry))

	entry.Text = "second"
	require.NoError(t, s.Save(ctx, entry))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, text := range []string{"old", "newest", "middle"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		require.NoError(t, s.Save(ctx, testEntry(text, base.Add(offsets[i]))))
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "newest", entries[0].Text)
	assert.Equal(t, "middle", entries[1].Text)
	assert.Equal(t, "old", entries[2].Text)
}

func TestStore_ListEmpty(t *testing.T) {
	s := openTestStore(t, 0)

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestStore_MaxEntriesPrunesOldest(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(ctx, testEntry(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].Text)
	assert.Equal(t, "c", entries[1].Text)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t, 0)
	ctx := context.Background()
	entry := testEntry("bye", time.Now())
	require.NoError(t, s.Save(ctx, entry))

	require.NoError(t, s.Delete(ctx, entry.ID))

	_, err := s.Get(ctx, entry.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, entry.ID), ErrNotFound))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	entry := testEntry("durable", time.Now())
	require.NoError(t, s.Save(ctx, entry))
	require.NoError(t, s.KV().Set(ctx, "auth_token", "tok"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Text)

	v, ok, err := s.KV().Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}

func TestKV(t *testing.T) {
	s, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	kv := s.KV()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v1"))
	require.NoError(t, kv.Set(ctx, "k", "v2"))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, kv.Delete(ctx, "k"))
	require.NoError(t, kv.Delete(ctx, "k"), "deleting twice is fine")
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
