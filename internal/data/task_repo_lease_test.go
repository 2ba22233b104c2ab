package data_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data/testhelpers"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/testutil"
)

// These tests drive the repository clock directly to verify lease expiry
// reclamation and the retry backoff schedule without real waiting.

func seedTaskFixture(t *testing.T, db *sql.DB, repo *data.TaskRepo, maxRetries int) *model.Task {
	t.Helper()

	batchRepo := data.NewBatchJobRepo(db, data.BatchJobRepoConfig{})
	batch, err := batchRepo.Create(context.Background(), &model.CreateBatchJobRequest{
		Owner:       "user-1",
		TotalEmails: 1,
	})
	require.NoError(t, err)

	var emailID string
	err = db.QueryRowContext(context.Background(), `
		INSERT INTO emails (owner, subject, sender, unsubscribe_link, unsubscribe_status)
		VALUES ('user-1', 'Lease test', 'sender@example.com', 'https://example.com/unsub', 'pending')
		RETURNING id`).Scan(&emailID)
	require.NoError(t, err)

	task, err := repo.Create(context.Background(), &model.CreateTaskRequest{
		BatchJobID:      batch.ID,
		Owner:           "user-1",
		EmailID:         emailID,
		UnsubscribeLink: "https://example.com/unsub",
		Subject:         "Lease test",
		Sender:          "sender@example.com",
		MaxRetries:      maxRetries,
	})
	require.NoError(t, err)
	return task
}

func TestTaskRepo_LeaseExpiryReclaimsTask(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		tp := testutil.NewTestTimeProvider(start)
		repo := testhelpers.NewTaskRepoWithTimeProvider(db, data.RepoConfig{}, tp)

		created := seedTaskFixture(t, db, repo, 3)

		reserved, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		assert.Equal(t, created.ID, reserved.ID)

		// Lease still live: nothing to reserve
		tp.AddTime(10 * time.Second)
		_, err = repo.ReserveNext(context.Background(), 30)
		require.ErrorIs(t, err, model.ErrNoTasksAvailable)

		// Past the lease: the task is requeued and handed out again
		tp.AddTime(25 * time.Second)
		reclaimed, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)
		assert.Equal(t, created.ID, reclaimed.ID)
		assert.Equal(t, model.TaskStatusRunning, reclaimed.Status)
	})
}

func TestTaskRepo_RetryBackoffSchedule(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		tp := testutil.NewTestTimeProvider(start)
		repo := testhelpers.NewTaskRepoWithTimeProvider(db, data.RepoConfig{RetryBaseSeconds: 10}, tp)

		created := seedTaskFixture(t, db, repo, 3)

		_, err := repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)

		// First failure: rescheduled base * 2^0 = 10s out
		success, err := repo.Fail(context.Background(), created.ID, "first failure")
		require.NoError(t, err)
		require.True(t, success)

		task, err := repo.GetByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusPending, task.Status)
		assert.WithinDuration(t, tp.Now().Add(10*time.Second), task.ScheduledAt, time.Second)

		// Not yet due
		tp.AddTime(5 * time.Second)
		_, err = repo.ReserveNext(context.Background(), 30)
		require.ErrorIs(t, err, model.ErrNoTasksAvailable)

		// Due again after the backoff elapses
		tp.AddTime(6 * time.Second)
		_, err = repo.ReserveNext(context.Background(), 30)
		require.NoError(t, err)

		// Second failure: rescheduled base * 2^1 = 20s out
		success, err = repo.Fail(context.Background(), created.ID, "second failure")
		require.NoError(t, err)
		require.True(t, success)

		task, err = repo.GetByID(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusPending, task.Status)
		assert.Equal(t, 2, task.RetryCount)
		assert.WithinDuration(t, tp.Now().Add(20*time.Second), task.ScheduledAt, time.Second)
	})
}
