package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/model"
)

func newMockStore(t *testing.T) (*JobStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &JobStore{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func jobRowColumns() []string {
	return []string{
		"id", "owner_user_id", "status", "progress", "input_object_key",
		"output_object_key", "vertical_output_object_keys", "input_duration_seconds",
		"requested_quality", "final_quality", "watermark_applied", "retention_score",
		"optimization_notes", "render_settings", "analysis", "priority_level",
		"error", "created_at", "updated_at",
	}
}

func TestGetJobNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`select \* from jobs where id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, xerrors.IsObjectNotFound(err))
}

func TestUpdateRejectsIllegalTransition(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns()).AddRow(
		"job1", "user1", string(model.StatusCompleted), 100, "in.mp4",
		"out.mp4", nil, 30.0, "1080p", "1080p", false, 91.0,
		nil, nil, nil, 2, nil, now, now,
	)
	mock.ExpectQuery(`select \* from jobs where id = \$1`).WithArgs("job1").WillReturnRows(rows)

	err := s.Update(context.Background(), "job1", map[string]interface{}{"status": string(model.StatusAnalyzing)}, UpdateOpts{})
	require.Error(t, err)
}

func TestListRecentCompletedParsesAnalysis(t *testing.T) {
	s, mock := newMockStore(t)
	analysis, _ := json.Marshal(map[string]interface{}{"strategy": "hook-heavy", "content_format": "talking_head"})
	rows := sqlmock.NewRows([]string{"id", "owner_user_id", "retention_score", "analysis", "updated_at"}).
		AddRow("job1", "user1", 88.5, analysis, time.Now())
	mock.ExpectQuery(`select id, owner_user_id, retention_score, analysis, updated_at`).
		WithArgs("user1", string(model.StatusCompleted), 5).
		WillReturnRows(rows)

	out, err := s.ListRecentCompleted(context.Background(), "user1", 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "hook-heavy", out[0].Strategy)
	require.Equal(t, "talking_head", out[0].ContentFormat)
}

func TestFindImmediatelyRecoverableFiltersOnProgressAndInput(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns()).AddRow(
		"job1", "user1", string(model.StatusUploading), 5, "in.mp4",
		"", nil, 0, "", "", false, 0,
		nil, nil, nil, 1, nil, now, now,
	)
	mock.ExpectQuery(`select \* from jobs where status in \(.+\) and progress >= 1 and input_object_key <> ''`).
		WillReturnRows(rows)

	jobs, err := s.FindImmediatelyRecoverable(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, model.StatusUploading, jobs[0].Status)
}

func TestFindStaleInProgressFiltersOnUpdatedAt(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows(jobRowColumns()).AddRow(
		"job2", "user1", string(model.StatusRendering), 60, "in.mp4",
		"", nil, 30, "1080p", "", false, 0,
		nil, nil, nil, 1, nil, now.Add(-2*time.Hour), now.Add(-2*time.Hour),
	)
	mock.ExpectQuery(`select \* from jobs where status in \(.+\) and updated_at < `).
		WillReturnRows(rows)

	jobs, err := s.FindStaleInProgress(context.Background(), 90*time.Minute, 200)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, model.StatusRendering, jobs[0].Status)
}
