package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateFiles_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := sampleProject()
	require.NoError(t, m.CreateProject(ctx, p))

	err := m.CreateFiles(ctx, []File{
		{ID: uuid.New(), ProjectID: p.ID, Name: "a.txt"},
		{ID: uuid.New(), ProjectID: p.ID, Name: "a.txt"},
	})
	assert.ErrorIs(t, err, ErrConflict)

	files, err := m.ListFiles(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, files, "a rejected batch must not leave rows behind")
}

func TestMemory_DeleteProject_Cascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := sampleProject()
	require.NoError(t, m.CreateProject(ctx, p))
	require.NoError(t, m.CreateFiles(ctx, []File{{ID: uuid.New(), ProjectID: p.ID, Name: "a.txt"}}))

	require.NoError(t, m.DeleteProject(ctx, p.ID))

	projects, files := m.Counts()
	assert.Zero(t, projects)
	assert.Zero(t, files)
	_, err := m.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListExpired_SkipsDeletedAndPurged(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := t0.Add(10 * 24 * time.Hour)

	expired := sampleProject()
	live := sampleProject()
	live.ExpiresAt = now.Add(time.Hour)
	gone := sampleProject()
	deletedAt := now.Add(-time.Hour)
	gone.DeletedAt = &deletedAt

	for _, p := range []*Project{expired, live, gone} {
		require.NoError(t, m.CreateProject(ctx, p))
	}
	purgedID := uuid.New()
	require.NoError(t, m.CreateFiles(ctx, []File{
		{ID: uuid.New(), ProjectID: expired.ID, Name: "keep.txt", Size: 3},
		{ID: purgedID, ProjectID: expired.ID, Name: "purged.txt", Size: 4},
	}))
	require.NoError(t, m.MarkFilePurged(ctx, purgedID, now))

	out, err := m.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, expired.ID, out[0].ID)
	require.Len(t, out[0].Files, 1)
	assert.Equal(t, "keep.txt", out[0].Files[0].Name)
}

func TestMemory_MarkProjectDeleted_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := sampleProject()
	require.NoError(t, m.CreateProject(ctx, p))

	ok, err := m.MarkProjectDeleted(ctx, p.ID, t0, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.MarkProjectDeleted(ctx, p.ID, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.DeletedAt.Equal(t0))
	assert.Equal(t, int64(10), got.ReclaimedBytes)
}

func TestMemory_Fail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	m.Fail("CreateProject", boom)
	assert.ErrorIs(t, m.CreateProject(ctx, sampleProject()), boom)

	m.Fail("CreateProject", nil)
	assert.NoError(t, m.CreateProject(ctx, sampleProject()))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := sampleProject()
	require.NoError(t, m.CreateProject(ctx, p))

	got, err := m.GetProject(ctx, p.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := m.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "holiday", again.Name)
}
