package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcto/mcp-progress/internal/config"
	"github.com/vcto/mcp-progress/internal/journal"
)

func seedJournal(t *testing.T, path string, records ...journal.Record) {
	t.Helper()
	storage, err := journal.NewSQLiteStorage(path)
	require.NoError(t, err)
	defer storage.Close()
	for _, r := range records {
		require.NoError(t, storage.Append(context.Background(), r))
	}
}

func TestJournalCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	t.Setenv("PROGRESSD_JOURNAL", "true")
	t.Setenv("PROGRESSD_JOURNAL_PATH", path)

	now := time.Now()
	seedJournal(t, path,
		journal.Record{ID: "a", Token: "op-42", Progress: 3, SentAt: now},
		journal.Record{ID: "b", Token: "op-42", Progress: 7, SentAt: now.Add(time.Second)},
		journal.Record{ID: "c", Token: "op-7", Progress: 1.5, SentAt: now.Add(2 * time.Second)},
	)

	t.Run("filters by token", func(t *testing.T) {
		var out bytes.Buffer
		err := newRootCmd(&out).Run(context.Background(), []string{"progressd", "journal", "--token", "op-42"})
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 2)
		var first journal.Record
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, "a", first.ID)
		assert.Equal(t, 3.0, first.Progress)
	})

	t.Run("limits recent records", func(t *testing.T) {
		var out bytes.Buffer
		err := newRootCmd(&out).Run(context.Background(), []string{"progressd", "journal", "--limit", "1"})
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"id":"c"`)
	})
}

func TestJournalCommandDisabled(t *testing.T) {
	t.Setenv("PROGRESSD_JOURNAL", "false")

	err := newRootCmd(&bytes.Buffer{}).Run(context.Background(), []string{"progressd", "journal"})
	assert.ErrorIs(t, err, ErrJournalDisabled)
}

func TestServeRejectsInvalidTransport(t *testing.T) {
	err := newRootCmd(&bytes.Buffer{}).Run(context.Background(), []string{"progressd", "serve", "--transport", "smoke-signals"})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "smoke-signals")
}
