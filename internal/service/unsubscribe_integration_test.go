package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	apperrors "github.com/clodoaldofavaro/email-sort-app-backend/internal/errors"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/testutil"
)

func insertEmailRow(t *testing.T, db *sql.DB, owner string, link *string) string {
	t.Helper()
	var id string
	err := db.QueryRow(`
		INSERT INTO emails (owner, subject, sender, unsubscribe_link)
		VALUES ($1, 'Weekly digest', 'news@example.com', $2)
		RETURNING id
	`, owner, link).Scan(&id)
	require.NoError(t, err)
	return id
}

func newIntegrationOrchestrator(t *testing.T, db *sql.DB) *UnsubscribeOrchestrator {
	t.Helper()
	orch, err := NewUnsubscribeOrchestrator(UnsubscribeOrchestratorOptions{
		DB:          db,
		Emails:      data.NewEmailRepo(db, nil),
		BatchJobs:   data.NewBatchJobRepo(db, data.BatchJobRepoConfig{}),
		Tasks:       data.NewTaskRepo(db, data.RepoConfig{}),
		TaskResults: data.NewTaskResultRepo(db, nil),
		MaxRetries:  3,
	})
	require.NoError(t, err)
	return orch
}

func TestUnsubscribeOrchestrator_Submit_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("enqueues one task per eligible email atomically", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			const owner = "batch-owner"

			linkA := "https://a.example.com/unsub"
			linkB := "https://b.example.com/unsub"
			otherLink := "https://c.example.com/unsub"

			emailA := insertEmailRow(t, db, owner, &linkA)
			emailB := insertEmailRow(t, db, owner, &linkB)
			noLink := insertEmailRow(t, db, owner, nil)
			foreign := insertEmailRow(t, db, "someone-else", &otherLink)

			orch := newIntegrationOrchestrator(t, db)

			// Duplicates, a linkless email, and another owner's email must
			// all be filtered out before enqueueing.
			resp, err := orch.Submit(ctx, owner, []string{emailA, emailB, emailA, noLink, foreign})

			require.NoError(t, err)
			assert.Equal(t, 2, resp.TotalEmails)
			assert.Equal(t, model.BatchJobStatusPending, resp.Status)

			job, err := data.NewBatchJobRepo(db, data.BatchJobRepoConfig{}).
				GetForOwner(ctx, core.GetBatchJobParams{ID: resp.BatchJobID, Owner: owner})
			require.NoError(t, err)
			assert.Equal(t, 2, job.TotalEmails)
			assert.Equal(t, 0, job.ProcessedCount)

			tasks, err := data.NewTaskRepo(db, data.RepoConfig{}).ListByBatchJob(ctx, resp.BatchJobID)
			require.NoError(t, err)
			require.Len(t, tasks, 2)
			for _, task := range tasks {
				assert.Equal(t, resp.BatchJobID, task.BatchJobID)
				assert.Equal(t, owner, task.Owner)
				assert.Equal(t, model.TaskStatusPending, task.Status)
				assert.Equal(t, 3, task.MaxRetries)
			}
		})
	})

	t.Run("leaves no rows behind when nothing is eligible", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			const owner = "batch-owner"

			noLink := insertEmailRow(t, db, owner, nil)
			orch := newIntegrationOrchestrator(t, db)

			_, err := orch.Submit(ctx, owner, []string{noLink})

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)

			jobs, err := data.NewBatchJobRepo(db, data.BatchJobRepoConfig{}).ListByOwner(ctx, owner, 10, 0)
			require.NoError(t, err)
			assert.Empty(t, jobs)
		})
	})
}
