package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newMemoryStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestSQLiteStorage(t *testing.T) {
	ctx := context.Background()
	storage := newMemoryStorage(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	total := 10.0

	records := []Record{
		{ID: "1", SessionID: "s1", Token: "op-42", Progress: 3, Total: &total, SentAt: base},
		{ID: "2", SessionID: "s1", Token: "op-42", Progress: 7, Total: &total, SentAt: base.Add(time.Second)},
		{ID: "3", SessionID: "s2", Token: "op-7", Progress: 1.5, SentAt: base.Add(2 * time.Second), Error: "blocked"},
	}
	for _, r := range records {
		require.NoError(t, storage.Append(ctx, r))
	}

	t.Run("lists a token in send order", func(t *testing.T) {
		got, err := storage.ListByToken(ctx, "op-42")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 3.0, got[0].Progress)
		assert.Equal(t, 7.0, got[1].Progress)
		require.NotNil(t, got[1].Total)
		assert.Equal(t, 10.0, *got[1].Total)
		assert.True(t, base.Equal(got[0].SentAt))
	})

	t.Run("keeps absent totals and errors", func(t *testing.T) {
		got, err := storage.ListByToken(ctx, "op-7")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Nil(t, got[0].Total)
		assert.Equal(t, "blocked", got[0].Error)
		assert.Equal(t, "s2", got[0].SessionID)
	})

	t.Run("recent returns newest first", func(t *testing.T) {
		got, err := storage.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "3", got[0].ID)
		assert.Equal(t, "2", got[1].ID)
	})

	t.Run("cleanup drops old records", func(t *testing.T) {
		n, err := storage.CleanupOldRecords(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		got, err := storage.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestNewStorage(t *testing.T) {
	storage, err := NewStorage(false, "")
	require.NoError(t, err)
	assert.False(t, storage.IsEnabled())
	assert.NoError(t, storage.Append(context.Background(), Record{}))

	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	storage, err = NewStorage(true, path)
	require.NoError(t, err)
	assert.True(t, storage.IsEnabled())
	assert.NoError(t, storage.Close())
	assert.FileExists(t, path)
}

type fakeSession struct {
	err   error
	calls int
}

func (f *fakeSession) SendProgressNotification(context.Context, mcp.ProgressToken, float64, *float64) error {
	f.calls++
	return f.err
}

type failingStorage struct {
	NoOpStorage
}

func (failingStorage) Append(context.Context, Record) error {
	return errors.New("disk full")
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("journals successful and failed sends", func(t *testing.T) {
		storage := newMemoryStorage(t)
		next := &fakeSession{}
		recorder := NewRecorder(next, storage)
		recorder.now = func() time.Time { return fixed }
		recorder.sessionID = func(context.Context) string { return "session-1" }

		total := 4.0
		require.NoError(t, recorder.SendProgressNotification(ctx, 42, 1, &total))

		next.err = errors.New("notification channel blocked")
		err := recorder.SendProgressNotification(ctx, 42, 2, &total)
		assert.ErrorIs(t, err, next.err)

		got, err := storage.ListByToken(ctx, "42")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "session-1", got[0].SessionID)
		assert.Empty(t, got[0].Error)
		assert.Equal(t, "notification channel blocked", got[1].Error)
		assert.NotEqual(t, got[0].ID, got[1].ID)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("journal failures do not fail the send", func(t *testing.T) {
		next := &fakeSession{}
		recorder := NewRecorder(next, failingStorage{})
		assert.NoError(t, recorder.SendProgressNotification(ctx, "t", 1, nil))
		assert.Equal(t, 1, next.calls)
	})

	t.Run("session id is empty outside an MCP request", func(t *testing.T) {
		assert.Empty(t, sessionIDFromContext(ctx))
	})
}

func TestStartRetention(t *testing.T) {
	defer goleak.VerifyNone(t)

	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer storage.Close()

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, storage.Append(ctx, Record{ID: "old", Token: "t", SentAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, storage.Append(ctx, Record{ID: "new", Token: "t", SentAt: time.Now()}))

	done := StartRetention(ctx, storage, 24*time.Hour, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		got, err := storage.ListByToken(context.Background(), "t")
		return err == nil && len(got) == 1 && got[0].ID == "new"
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
