package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/data/pgxutil"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

const defaultRetryBaseSeconds = 2

// taskNotifyChannel is the LISTEN/NOTIFY channel signalling newly enqueued tasks.
const taskNotifyChannel = "unsubscribe_task_added"

func (r *TaskRepo) retryBaseSeconds() int {
	if r.cfg.RetryBaseSeconds > 0 {
		return r.cfg.RetryBaseSeconds
	}
	return defaultRetryBaseSeconds
}

// SQL used by ReserveNext to atomically reserve the next task.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM unsubscribe_tasks
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE unsubscribe_tasks t
  SET
    status = 'running',
    started_at = COALESCE(t.started_at, $2),
    lease_expires_at = $3,
    updated_at = $4
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.batch_job_id, t.owner, t.email_id, t.unsubscribe_link, t.subject, t.sender, t.status, t.retry_count, t.max_retries, t.last_error, t.scheduled_at, t.started_at, t.completed_at, t.lease_expires_at, t.created_at, t.updated_at`

// Create creates a new task in the database with the given parameters.
func (r *TaskRepo) Create(
	ctx context.Context,
	req *model.CreateTaskRequest,
) (*model.Task, error) {
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var task *model.Task
	if txErr := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var insertErr error
			task, insertErr = r.CreateInTx(ctx, tx, req)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return task, nil
}

// CreateInTx inserts a task within an existing SQL transaction and notifies
// waiting workers on the same transaction, so the notification never precedes
// a visible row.
func (r *TaskRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.CreateTaskRequest,
) (*model.Task, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("create task request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	query, args := r.buildInsertQuery(req)
	row := sqlTx.QueryRowContext(ctx, query, args...)

	task, scanErr := scanTaskFromRow(row)
	if scanErr != nil {
		return nil, fmt.Errorf("collect task: %w", scanErr)
	}

	if _, notifyErr := sqlTx.ExecContext(ctx,
		`SELECT pg_notify($1::text, $2::text)`, taskNotifyChannel, task.ID); notifyErr != nil {
		return nil, fmt.Errorf("send task notification: %w", notifyErr)
	}

	return task, nil
}

// buildInsertQuery builds an INSERT statement for a task based on the request.
func (r *TaskRepo) buildInsertQuery(req *model.CreateTaskRequest) (string, []any) {
	query := `
      INSERT INTO unsubscribe_tasks(batch_job_id, owner, email_id, unsubscribe_link, subject, sender, status, scheduled_at, max_retries)
      VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8)
      RETURNING ` + taskColumns

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	args := []any{
		req.BatchJobID,
		req.Owner,
		req.EmailID,
		req.UnsubscribeLink,
		req.Subject,
		req.Sender,
		scheduledAt,
		maxRetries,
	}
	return query, args
}

type taskRowScanner interface {
	Scan(dest ...any) error
}

type taskRowData struct {
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *taskRowData) scanInto(scanner taskRowScanner, task *model.Task) error {
	return scanner.Scan(
		&task.ID,
		&task.BatchJobID,
		&task.Owner,
		&task.EmailID,
		&task.UnsubscribeLink,
		&task.Subject,
		&task.Sender,
		&task.Status,
		&task.RetryCount,
		&task.MaxRetries,
		&d.lastError,
		&task.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&d.leaseExpiresAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
}

func (d *taskRowData) apply(task *model.Task) {
	task.LastError = cloneNullableString(d.lastError)
	task.StartedAt = cloneNullableTime(d.startedAt)
	task.CompletedAt = cloneNullableTime(d.completedAt)
	task.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanTaskFromRow(scanner taskRowScanner) (*model.Task, error) {
	task := &model.Task{}
	var data taskRowData
	if err := data.scanInto(scanner, task); err != nil {
		return nil, err
	}

	data.apply(task)
	return task, nil
}

// collectTaskFromRows collects a single task from pgx rows using pgx v5 helpers.
func collectTaskFromRows(rows pgx.Rows) (*model.Task, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	task, err := scanTaskFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return task, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired.
const (
	advisoryLockRequeueMajor int64 = 1001
	advisoryLockRequeueMinor int64 = 1
)

// requeueExpired moves running tasks whose lease has lapsed back to pending,
// so tasks orphaned by a crashed worker become reservable again.
func (r *TaskRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE unsubscribe_tasks
          SET status = 'pending', lease_expires_at = NULL
          WHERE status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next available task for processing under a lease.
func (r *TaskRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Task, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}

	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired tasks: %w", err)
	}

	var task *model.Task
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve task: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTaskFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTasksAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve task: %w", cerr)
			}
			task = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTasksAvailable) {
			return nil, model.ErrNoTasksAvailable
		}
		return nil, err
	}
	return task, nil
}

// Heartbeat refreshes the lease on a running task.
func (r *TaskRepo) Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE unsubscribe_tasks
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, taskID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Complete marks a task as completed successfully. The status guard makes the
// transition idempotent under lease races: a worker whose lease lapsed and
// whose task was re-reserved cannot complete it twice.
func (r *TaskRepo) Complete(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE unsubscribe_tasks
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, id, currentTime, currentTime)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail records a failed attempt. Tasks with retry budget left go back to
// pending with an exponentially backed-off scheduled_at; exhausted tasks turn
// terminally failed and get completed_at stamped.
func (r *TaskRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	if errMsg == "" {
		return false, errors.New("error message required")
	}

	currentTime := r.timeProvider.Now()

	query := `
      UPDATE unsubscribe_tasks
      SET
        last_error = $2,
        retry_count = retry_count + 1,
        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
        completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
                            ELSE $3::timestamptz + make_interval(secs => $4::float8 * power(2, retry_count)) END,
        updated_at = $3
      WHERE id = $1 AND status = 'running'
      RETURNING status
    `

	var status string
	err := r.DB.QueryRowContext(ctx, query,
		id, errMsg, currentTime.UTC(), r.retryBaseSeconds()).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("fail task: %w", err)
	}

	if r.logger != nil && status == string(model.TaskStatusFailed) {
		r.logger.DebugContext(ctx, "task terminally failed", "task_id", id)
	}

	return true, nil
}

// Stats returns statistics about tasks in different states.
func (r *TaskRepo) Stats(ctx context.Context) (*model.TaskStats, error) {
	var s model.TaskStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM unsubscribe_tasks
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new tasks are available.
func (r *TaskRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{taskNotifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", taskNotifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a task by its ID.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*model.Task, error) {
	var task *model.Task
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+taskColumns+`
			FROM unsubscribe_tasks
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		task, err = collectTaskFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListByBatchJob returns all tasks of a batch job ordered by creation.
func (r *TaskRepo) ListByBatchJob(ctx context.Context, batchJobID string) ([]*model.Task, error) {
	if batchJobID == "" {
		return nil, errors.New("batch job id is required")
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM unsubscribe_tasks
		WHERE batch_job_id = $1
		ORDER BY created_at ASC
	`, batchJobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by batch job: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, scanErr := scanTaskFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}
		tasks = append(tasks, task)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return tasks, nil
}
