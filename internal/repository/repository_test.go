package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lite-rag-go/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedProject(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, NewProjectRepository(db).Create(context.Background(), &model.Project{ID: id, Name: "p"}))
}

func TestProjectCreateFindDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Project{ID: "p1", Name: "first", Description: "d"}))
	p, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = repo.FindByID(ctx, "nope")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	projects, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, projects, 1)

	require.NoError(t, repo.Delete(ctx, "p1"))
	assert.True(t, errors.Is(repo.Delete(ctx, "p1"), gorm.ErrRecordNotFound))
}

func TestDeleteProjectCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1")
	seedProject(t, db, "p2")

	assets := NewAssetRepository(db)
	chunks := NewChunkRepository(db)
	for _, pid := range []string{"p1", "p2"} {
		a := &model.Asset{ID: "a-" + pid, ProjectID: pid, Name: "doc.txt", Type: model.AssetTypeText, ObjectName: "o"}
		require.NoError(t, assets.Upsert(ctx, a))
		require.NoError(t, chunks.ReplaceForAsset(ctx, pid, a.ID, []*model.Chunk{
			{ProjectID: pid, AssetID: a.ID, FileID: "doc.txt", Order: 0, Content: "x"},
		}))
	}

	require.NoError(t, NewProjectRepository(db).Delete(ctx, "p1"))

	left, err := chunks.FindByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)
	list, err := assets.ListByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, list)

	other, err := chunks.FindByProject(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestAssetUpsertKeepsIdentity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1")
	repo := NewAssetRepository(db)

	first := &model.Asset{ID: "a1", ProjectID: "p1", Name: "doc.txt", Type: model.AssetTypeText, Size: 10, ObjectName: "o1"}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &model.Asset{ID: "a2", ProjectID: "p1", Name: "doc.txt", Type: model.AssetTypeText, Size: 20, ObjectName: "o2"}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, "a1", second.ID)

	got, err := repo.FindByName(ctx, "p1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Size)
	assert.Equal(t, "o2", got.ObjectName)

	all, err := repo.ListByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReplaceForAssetIsOrderedAndIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1")
	repo := NewChunkRepository(db)

	build := func(contents ...string) []*model.Chunk {
		out := make([]*model.Chunk, len(contents))
		for i, c := range contents {
			out[i] = &model.Chunk{ProjectID: "p1", AssetID: "a1", FileID: "b.txt", Order: i, Content: c,
				Metadata: map[string]any{"start_offset": float64(i * 10)}}
		}
		return out
	}
	require.NoError(t, repo.ReplaceForAsset(ctx, "p1", "a1", build("x", "y", "z")))
	require.NoError(t, repo.ReplaceForAsset(ctx, "p1", "a1", build("c2", "b2", "a2")))
	require.NoError(t, repo.ReplaceForAsset(ctx, "p1", "a0", []*model.Chunk{
		{ProjectID: "p1", AssetID: "a0", FileID: "a.txt", Order: 0, Content: "first file"},
	}))

	n, err := repo.CountByAsset(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := repo.FindByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "a.txt", got[0].FileID)
	for i, c := range got[1:] {
		assert.Equal(t, i, c.Order)
		assert.Equal(t, float64(i*10), c.Metadata["start_offset"])
	}
	assert.Equal(t, "c2", got[1].Content)
}

func TestAssetAndChunkDeletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedProject(t, db, "p1")
	assets := NewAssetRepository(db)
	chunks := NewChunkRepository(db)

	for _, a := range []*model.Asset{
		{ID: "a1", ProjectID: "p1", Name: "a.txt", Type: model.AssetTypeText, Size: 1, ObjectName: "o1"},
		{ID: "a2", ProjectID: "p1", Name: "b.txt", Type: model.AssetTypeText, Size: 1, ObjectName: "o2"},
	} {
		require.NoError(t, assets.Upsert(ctx, a))
		require.NoError(t, chunks.ReplaceForAsset(ctx, "p1", a.ID, []*model.Chunk{
			{ProjectID: "p1", AssetID: a.ID, FileID: a.Name, Order: 0, Content: "c"},
		}))
	}

	got, err := assets.FindByID(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Name)
	_, err = assets.FindByID(ctx, "other", "a1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	require.NoError(t, chunks.DeleteByAsset(ctx, "p1", "a1"))
	require.NoError(t, assets.Delete(ctx, "p1", "a1"))
	assert.True(t, errors.Is(assets.Delete(ctx, "p1", "a1"), gorm.ErrRecordNotFound))

	n, err := chunks.CountByAsset(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = chunks.CountByAsset(ctx, "p1", "a2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, chunks.DeleteByProject(ctx, "p1"))
	deleted, err := assets.DeleteByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left, err := chunks.FindByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, left)
}
