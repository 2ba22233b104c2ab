package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/unsubscribe"
	apperrors "github.com/clodoaldofavaro/email-sort-app-backend/internal/errors"
)

// stubTaskStore implements TaskStore for paths that never touch the queue.
// Embedding the interface leaves unused methods panicking if called.
type stubTaskStore struct {
	core.TaskRepository
	createInTxFn func(ctx context.Context, tx *sql.Tx, req *model.CreateTaskRequest) (*model.Task, error)
}

func (s *stubTaskStore) CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateTaskRequest) (*model.Task, error) {
	return s.createInTxFn(ctx, tx, req)
}

type stubAttemptRunner struct {
	runFn func(ctx context.Context, link string) (unsubscribe.Result, error)
}

func (s *stubAttemptRunner) Run(ctx context.Context, link string) (unsubscribe.Result, error) {
	return s.runFn(ctx, link)
}

func eligibleEmail(id, link string) *model.Email {
	return &model.Email{
		ID:              id,
		Owner:           "user-1",
		Subject:         "Subject " + id,
		Sender:          "sender@example.com",
		UnsubscribeLink: &link,
	}
}

func newTestOrchestrator(t *testing.T, opts UnsubscribeOrchestratorOptions) *UnsubscribeOrchestrator {
	t.Helper()
	if opts.DB == nil {
		opts.DB = &sql.DB{}
	}
	if opts.Emails == nil {
		opts.Emails = passiveEmailRepo()
	}
	if opts.BatchJobs == nil {
		opts.BatchJobs = &stubBatchJobStore{}
	}
	if opts.Tasks == nil {
		opts.Tasks = &stubTaskStore{}
	}
	if opts.TaskResults == nil {
		opts.TaskResults = &stubTaskResultRepo{}
	}
	orch, err := NewUnsubscribeOrchestrator(opts)
	require.NoError(t, err)
	return orch
}

func TestNewUnsubscribeOrchestrator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UnsubscribeOrchestratorOptions)
		errMsg string
	}{
		{name: "missing db", mutate: func(o *UnsubscribeOrchestratorOptions) { o.DB = nil }, errMsg: "DB is required"},
		{name: "missing emails", mutate: func(o *UnsubscribeOrchestratorOptions) { o.Emails = nil }, errMsg: "EmailRepository is required"},
		{name: "missing batch jobs", mutate: func(o *UnsubscribeOrchestratorOptions) { o.BatchJobs = nil }, errMsg: "BatchJobStore is required"},
		{name: "missing tasks", mutate: func(o *UnsubscribeOrchestratorOptions) { o.Tasks = nil }, errMsg: "TaskStore is required"},
		{name: "missing task results", mutate: func(o *UnsubscribeOrchestratorOptions) { o.TaskResults = nil }, errMsg: "TaskResultRepository is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := UnsubscribeOrchestratorOptions{
				DB:          &sql.DB{},
				Emails:      passiveEmailRepo(),
				BatchJobs:   &stubBatchJobStore{},
				Tasks:       &stubTaskStore{},
				TaskResults: &stubTaskResultRepo{},
			}
			tt.mutate(&opts)

			_, err := NewUnsubscribeOrchestrator(opts)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("applies sync defaults", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{})
		assert.Equal(t, 10, orch.syncLimit)
		assert.Equal(t, 10, orch.syncConcurrency)
	})

	t.Run("clamps concurrency to sync limit", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{
			SyncLimit:       5,
			SyncConcurrency: 50,
		})
		assert.Equal(t, 5, orch.syncConcurrency)
	})
}

func TestUnsubscribeOrchestrator_Submit_Validation(t *testing.T) {
	emails := &stubEmailRepo{
		findEligibleFn: func(context.Context, string, []string) ([]*model.Email, error) {
			return nil, nil
		},
	}
	orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{Emails: emails})

	t.Run("requires owner", func(t *testing.T) {
		_, err := orch.Submit(context.Background(), "", []string{"email-1"})
		requireValidationError(t, err)
	})

	t.Run("requires email ids", func(t *testing.T) {
		_, err := orch.Submit(context.Background(), "user-1", nil)
		requireValidationError(t, err)
	})

	t.Run("reports no eligible emails as not found", func(t *testing.T) {
		_, err := orch.Submit(context.Background(), "user-1", []string{"email-1"})
		requireNotFoundError(t, err)
		assert.Contains(t, err.Error(), "none of the requested emails are eligible")
	})

	t.Run("deduplicates requested ids before eligibility check", func(t *testing.T) {
		var seenIDs []string
		dedupeEmails := &stubEmailRepo{
			findEligibleFn: func(_ context.Context, _ string, emailIDs []string) ([]*model.Email, error) {
				seenIDs = emailIDs
				return nil, nil
			},
		}
		dedupeOrch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{Emails: dedupeEmails})

		_, err := dedupeOrch.Submit(context.Background(), "user-1", []string{"a", "b", "a", "b", "c"})

		require.Error(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, seenIDs)
	})
}

func TestUnsubscribeOrchestrator_SubmitSync(t *testing.T) {
	t.Run("requires an attempt runner", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{})

		_, err := orch.SubmitSync(context.Background(), "user-1", []string{"email-1"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires an attempt runner")
	})

	t.Run("enforces the sync batch limit", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{
			Runner:    &stubAttemptRunner{},
			SyncLimit: 2,
		})

		_, err := orch.SubmitSync(context.Background(), "user-1", []string{"a", "b", "c"})

		requireValidationError(t, err)
		assert.Contains(t, err.Error(), "at most 2 emails")
	})

	t.Run("runs attempts and aggregates outcomes", func(t *testing.T) {
		var outcomes []core.SetEmailOutcomeParams
		emails := &stubEmailRepo{
			findEligibleFn: func(context.Context, string, []string) ([]*model.Email, error) {
				return []*model.Email{
					eligibleEmail("email-1", "https://a.example.com/unsub"),
					eligibleEmail("email-2", "https://b.example.com/unsub"),
				}, nil
			},
			claimFn: func(context.Context, string) (bool, error) { return true, nil },
			setOutcomeFn: func(_ context.Context, params core.SetEmailOutcomeParams) error {
				outcomes = append(outcomes, params)
				return nil
			},
		}
		runner := &stubAttemptRunner{
			runFn: func(_ context.Context, link string) (unsubscribe.Result, error) {
				if link == "https://a.example.com/unsub" {
					return unsubscribe.Result{Success: true, Message: "Successfully unsubscribed"}, nil
				}
				return unsubscribe.Result{Success: false, Message: "Could not find an unsubscribe control"}, nil
			},
		}

		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{
			Emails:          emails,
			Runner:          runner,
			SyncConcurrency: 1,
			Logger:          slog.Default(),
		})

		resp, err := orch.SubmitSync(context.Background(), "user-1", []string{"email-1", "email-2"})

		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "email-1", resp.Results[0].EmailID)
		assert.True(t, resp.Results[0].Success)
		assert.Equal(t, "email-2", resp.Results[1].EmailID)
		assert.False(t, resp.Results[1].Success)
		assert.Len(t, outcomes, 2)
	})

	t.Run("reports an already claimed email as failed", func(t *testing.T) {
		emails := &stubEmailRepo{
			findEligibleFn: func(context.Context, string, []string) ([]*model.Email, error) {
				return []*model.Email{eligibleEmail("email-1", "https://a.example.com/unsub")}, nil
			},
			claimFn: func(context.Context, string) (bool, error) { return false, nil },
		}
		runnerCalled := false
		runner := &stubAttemptRunner{
			runFn: func(context.Context, string) (unsubscribe.Result, error) {
				runnerCalled = true
				return unsubscribe.Result{}, nil
			},
		}

		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{Emails: emails, Runner: runner})

		resp, err := orch.SubmitSync(context.Background(), "user-1", []string{"email-1"})

		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.False(t, resp.Results[0].Success)
		assert.Contains(t, resp.Results[0].Message, "already in progress")
		assert.False(t, runnerCalled)
	})

	t.Run("maps runner errors to failed outcomes", func(t *testing.T) {
		emails := &stubEmailRepo{
			findEligibleFn: func(context.Context, string, []string) ([]*model.Email, error) {
				return []*model.Email{eligibleEmail("email-1", "https://a.example.com/unsub")}, nil
			},
			claimFn:      func(context.Context, string) (bool, error) { return true, nil },
			setOutcomeFn: func(context.Context, core.SetEmailOutcomeParams) error { return nil },
		}
		runner := &stubAttemptRunner{
			runFn: func(context.Context, string) (unsubscribe.Result, error) {
				return unsubscribe.Result{}, errors.New("browser crashed")
			},
		}

		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{Emails: emails, Runner: runner})

		resp, err := orch.SubmitSync(context.Background(), "user-1", []string{"email-1"})

		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.False(t, resp.Results[0].Success)
		assert.Equal(t, 1, resp.Failed)
	})
}

func TestUnsubscribeOrchestrator_GetStatus(t *testing.T) {
	const jobID = "5e0f8c3a-6f4e-4f0a-9b7d-2f1c3d4e5f60"

	t.Run("rejects malformed job ids", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{})

		_, err := orch.GetStatus(context.Background(), "user-1", "not-a-uuid")

		requireValidationError(t, err)
	})

	t.Run("serves from cache on repeat polls", func(t *testing.T) {
		lookups := 0
		batchJobs := &stubBatchJobStore{
			getForOwnerFn: func(_ context.Context, params core.GetBatchJobParams) (*model.BatchJob, error) {
				lookups++
				return &model.BatchJob{
					ID:             params.ID,
					Owner:          params.Owner,
					TotalEmails:    4,
					ProcessedCount: 2,
					SuccessCount:   2,
					Status:         model.BatchJobStatusProcessing,
					CreatedAt:      time.Now(),
					UpdatedAt:      time.Now(),
				}, nil
			},
		}
		statusCache := core.NewStatusCacheService(newMemCache(), core.StatusCacheConfig{TTL: time.Minute})

		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{
			BatchJobs:   batchJobs,
			StatusCache: statusCache,
		})

		first, err := orch.GetStatus(context.Background(), "user-1", jobID)
		require.NoError(t, err)
		assert.Equal(t, jobID, first.JobID)
		assert.Equal(t, 50, first.ProgressPercentage)

		second, err := orch.GetStatus(context.Background(), "user-1", jobID)
		require.NoError(t, err)
		assert.Equal(t, first.JobID, second.JobID)

		assert.Equal(t, 1, lookups)
	})

	t.Run("maps missing jobs to not found", func(t *testing.T) {
		batchJobs := &stubBatchJobStore{
			getForOwnerFn: func(context.Context, core.GetBatchJobParams) (*model.BatchJob, error) {
				return nil, model.ErrBatchJobNotFound
			},
		}
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{BatchJobs: batchJobs})

		_, err := orch.GetStatus(context.Background(), "user-1", jobID)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
	})
}

func TestUnsubscribeOrchestrator_GetResults(t *testing.T) {
	const jobID = "5e0f8c3a-6f4e-4f0a-9b7d-2f1c3d4e5f60"

	t.Run("returns results after ownership check", func(t *testing.T) {
		batchJobs := &stubBatchJobStore{
			getForOwnerFn: func(_ context.Context, params core.GetBatchJobParams) (*model.BatchJob, error) {
				return &model.BatchJob{ID: params.ID, Owner: params.Owner}, nil
			},
		}
		taskResults := &stubTaskResultRepo{
			results: []*model.TaskResult{
				{JobID: jobID, EmailID: "email-1", Success: true, Message: "Successfully unsubscribed"},
			},
		}

		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{
			BatchJobs:   batchJobs,
			TaskResults: taskResults,
		})

		results, err := orch.GetResults(context.Background(), "user-1", jobID)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "email-1", results[0].EmailID)
	})

	t.Run("hides other owners' jobs", func(t *testing.T) {
		batchJobs := &stubBatchJobStore{
			getForOwnerFn: func(context.Context, core.GetBatchJobParams) (*model.BatchJob, error) {
				return nil, model.ErrBatchJobNotFound
			},
		}
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{BatchJobs: batchJobs})

		_, err := orch.GetResults(context.Background(), "user-2", jobID)

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
	})
}

func TestUnsubscribeOrchestrator_ListJobs(t *testing.T) {
	t.Run("requires owner", func(t *testing.T) {
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{})

		_, err := orch.ListJobs(context.Background(), "", 10, 0)

		requireValidationError(t, err)
	})

	t.Run("passes paging through", func(t *testing.T) {
		var gotLimit, gotOffset int
		batchJobs := &stubBatchJobStore{
			listByOwnerFn: func(_ context.Context, _ string, limit, offset int) ([]*model.BatchJob, error) {
				gotLimit, gotOffset = limit, offset
				return []*model.BatchJob{{ID: "batch-1"}}, nil
			},
		}
		orch := newTestOrchestrator(t, UnsubscribeOrchestratorOptions{BatchJobs: batchJobs})

		jobs, err := orch.ListJobs(context.Background(), "user-1", 25, 50)

		require.NoError(t, err)
		assert.Len(t, jobs, 1)
		assert.Equal(t, 25, gotLimit)
		assert.Equal(t, 50, gotOffset)
	})
}

func requireValidationError(t *testing.T, err error) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}

func requireNotFoundError(t *testing.T, err error) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}
