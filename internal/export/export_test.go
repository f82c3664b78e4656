// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/store"
)

type brokenReader struct{}

func (brokenReader) List(context.Context, int) ([]model.LogEntry, error) {
	return nil, errors.New("disk gone")
}

func TestWriteJSON(t *testing.T) {
	log := store.NewMemoryLog()
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, log.Append(context.Background(), model.LogEntry{
			Kind:    model.EntrySession,
			Session: model.SessionSnapshot{ID: id, State: model.StateCompleted},
		}))
	}

	path := filepath.Join(t.TempDir(), "out", "log.json")
	n, err := WriteJSON(context.Background(), log, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []model.LogEntry
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].Session.ID)
	assert.Equal(t, "s2", got[1].Session.ID)
	assert.Contains(t, string(data), "\n  {")
}

func TestWriteJSON_EmptyLogIsEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	n, err := WriteJSON(context.Background(), store.NewMemoryLog(), path)
	require.NoError(t, err)
	assert.Zero(t, n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestWriteJSON_ReadFailureLeavesFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o600))

	_, err := WriteJSON(context.Background(), brokenReader{}, path)
	require.Error(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestDefaultPath(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, filepath.Join("/data", "exports", "emergency-log-20250301T110005Z.json"), DefaultPath("/data", at))
}
