package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docrender/constants"
	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/entity"
)

func setupTestRepo(t *testing.T) ConversionAttemptRepository {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	db, err := Open(context.Background(), Config{Driver: SQLite, DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { Close(db, logger) })
	return NewConversionAttemptRepository(db, logger)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestConversionAttempt_StartFinishGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	a := &entity.ConversionAttempt{
		CacheKey:   "lesson1_1700000000000_123",
		Format:     string(constants.SlideDeck),
		SourcePath: "/uploads/lesson1.pptx",
		Status:     string(constants.AttemptStatusRunning),
		StartedAt:  started,
	}
	require.NoError(t, repo.Start(ctx, a))
	require.NotEqual(t, uuid.Nil, a.ID)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.AttemptStatusRunning), got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, started.Equal(got.StartedAt))

	finished := started.Add(3 * time.Second)
	require.NoError(t, repo.Finish(ctx, a.ID, constants.AttemptStatusConverted, 3, "", "", "", finished))

	got, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.AttemptStatusConverted), got.Status)
	assert.Equal(t, 3, got.Pages)
	assert.Nil(t, got.Stage)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 3*time.Second, got.Duration())
}

func TestConversionAttempt_FinishFailure(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	a := &entity.ConversionAttempt{CacheKey: "k", Format: "document", SourcePath: "/x.docx", Status: "RUNNING"}
	require.NoError(t, repo.Start(ctx, a))
	require.NoError(t, repo.Finish(ctx, a.ID, constants.AttemptStatusFailed, 0, constants.StageOfficeToPDF, "missing-output", "boom", time.Now()))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Stage)
	assert.Equal(t, constants.StageOfficeToPDF, *got.Stage)
	require.NotNil(t, got.Reason)
	assert.Equal(t, "missing-output", *got.Reason)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
}

func TestConversionAttempt_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = repo.Finish(ctx, uuid.New(), constants.AttemptStatusConverted, 1, "", "", "", time.Now())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConversionAttempt_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, key := range []string{"a", "b", "a", "a"} {
		require.NoError(t, repo.Start(ctx, &entity.ConversionAttempt{
			CacheKey:   key,
			Format:     "slides",
			SourcePath: "/src/" + key,
			Status:     "RUNNING",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := repo.List(ctx, AttemptFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartedAt.After(all[i-1].StartedAt), "newest first")
	}

	byKey, err := repo.List(ctx, AttemptFilter{CacheKey: "a", Limit: 2})
	require.NoError(t, err)
	require.Len(t, byKey, 2)
	assert.True(t, base.Add(3*time.Minute).Equal(byKey[0].StartedAt))

	since, err := repo.List(ctx, AttemptFilter{Since: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	failed, err := repo.List(ctx, AttemptFilter{Status: constants.AttemptStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, failed)
}
