package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leadbridge/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tasks.json")
	store := NewFileStore(path, nil)

	created := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	completed := created.Add(45 * time.Second)
	snap := &domain.PanelSnapshot{
		Tasks: []*domain.Task{
			{
				ID:          "upload-1",
				Kind:        domain.TaskKindLeadUpload,
				Title:       "Lead upload",
				Progress:    100,
				Status:      domain.TaskStatusCompleted,
				CreatedAt:   created,
				CompletedAt: &completed,
				Metadata: &domain.TaskMetadata{
					ListID:            "101",
					TotalRecords:      500,
					SuccessfulRecords: 495,
					FailedRecords:     5,
					ProcessedRecords:  500,
				},
			},
		},
		Minimized: true,
		SavedAt:   completed,
	}

	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Tasks, 1)

	task := loaded.Tasks[0]
	assert.Equal(t, "upload-1", task.ID)
	assert.True(t, task.CreatedAt.Equal(created), "created_at must survive serialization")
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(completed))
	assert.Equal(t, 500, task.Metadata.ProcessedRecords)
	assert.True(t, loaded.Minimized)
}

func TestFileStore_LoadMissingFileReturnsNil(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), nil)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStore_SaveOverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	store := NewFileStore(path, nil)

	first := &domain.PanelSnapshot{Tasks: []*domain.Task{{ID: "a"}, {ID: "b"}}}
	require.NoError(t, store.Save(context.Background(), first))

	second := &domain.PanelSnapshot{Tasks: []*domain.Task{{ID: "a"}}}
	require.NoError(t, store.Save(context.Background(), second))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, "a", loaded.Tasks[0].ID)
}
