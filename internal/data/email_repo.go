package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
)

// EmailRepo reads the ingestion-owned email rows and annotates their
// unsubscribe_* fields. Nothing else on the row is touched here.
type EmailRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewEmailRepo creates a new EmailRepo instance.
func NewEmailRepo(db *sql.DB, tp TimeProvider) *EmailRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &EmailRepo{DB: db, timeProvider: tp}
}

const emailColumns = `
  id,
  owner,
  subject,
  sender,
  unsubscribe_link,
  unsubscribe_status,
  unsubscribe_attempted_at,
  unsubscribe_completed_at,
  unsubscribe_result
`

type emailRowScanner interface {
	Scan(dest ...any) error
}

func scanEmailFromRow(scanner emailRowScanner) (*model.Email, error) {
	email := &model.Email{}
	var link, status sql.NullString
	var attemptedAt, completedAt sql.NullTime
	var result []byte

	if err := scanner.Scan(
		&email.ID,
		&email.Owner,
		&email.Subject,
		&email.Sender,
		&link,
		&status,
		&attemptedAt,
		&completedAt,
		&result,
	); err != nil {
		return nil, err
	}

	email.UnsubscribeLink = cloneNullableString(link)
	if status.Valid {
		s := model.UnsubscribeStatus(status.String)
		email.UnsubscribeStatus = &s
	}
	email.UnsubscribeAttemptedAt = cloneNullableTime(attemptedAt)
	email.UnsubscribeCompletedAt = cloneNullableTime(completedAt)
	if len(result) > 0 {
		email.UnsubscribeResult = append(json.RawMessage(nil), result...)
	}
	return email, nil
}

// GetByID retrieves an email by its ID.
func (r *EmailRepo) GetByID(ctx context.Context, id string) (*model.Email, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE id = $1
	`, id)

	email, err := scanEmailFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return email, nil
}

// FindEligible returns the subset of the given email IDs that belong to the
// owner and carry an unsubscribe link. IDs that do not exist, belong to
// someone else, are malformed, or have no link are silently dropped.
func (r *EmailRepo) FindEligible(
	ctx context.Context,
	owner string,
	emailIDs []string,
) ([]*model.Email, error) {
	if owner == "" {
		return nil, errors.New("owner is required")
	}

	// Malformed ids would fail uuid[] encoding and error the whole query.
	wellFormed := make([]string, 0, len(emailIDs))
	for _, id := range emailIDs {
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			wellFormed = append(wellFormed, id)
		}
	}
	if len(wellFormed) == 0 {
		return nil, nil
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE owner = $1
		  AND id = ANY($2)
		  AND unsubscribe_link IS NOT NULL
		  AND unsubscribe_link != ''
	`, owner, wellFormed)
	if err != nil {
		return nil, fmt.Errorf("find eligible emails: %w", err)
	}
	defer rows.Close()

	var emails []*model.Email
	for rows.Next() {
		email, scanErr := scanEmailFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan email: %w", scanErr)
		}
		emails = append(emails, email)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return emails, nil
}

// ClaimForUnsubscribe conditionally marks an email in_progress and stamps
// unsubscribe_attempted_at. Returns false when another attempt already holds
// the claim, which keeps concurrent workers off the same email.
func (r *EmailRepo) ClaimForUnsubscribe(ctx context.Context, emailID string) (bool, error) {
	if emailID == "" {
		return false, errors.New("email id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	res, err := r.DB.ExecContext(ctx, `
		UPDATE emails
		SET unsubscribe_status = 'in_progress',
		    unsubscribe_attempted_at = $2
		WHERE id = $1
		  AND unsubscribe_status IS DISTINCT FROM 'in_progress'
	`, emailID, currentTime)
	if err != nil {
		return false, fmt.Errorf("claim email for unsubscribe: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ReleaseClaim puts an in_progress email back to pending so a later attempt
// can claim it again. Rows in any other state are left alone.
func (r *EmailRepo) ReleaseClaim(ctx context.Context, emailID string) (bool, error) {
	if emailID == "" {
		return false, errors.New("email id is required")
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE emails
		SET unsubscribe_status = 'pending'
		WHERE id = $1
		  AND unsubscribe_status = 'in_progress'
	`, emailID)
	if err != nil {
		return false, fmt.Errorf("release email claim: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// SetOutcome records the terminal unsubscribe outcome on the email row.
// unsubscribe_result keeps the structured message and details as JSON.
func (r *EmailRepo) SetOutcome(ctx context.Context, params core.SetEmailOutcomeParams) error {
	if params.EmailID == "" {
		return errors.New("email id is required")
	}

	currentTime := r.timeProvider.Now().UTC()

	status := model.UnsubscribeStatusFailed
	var completedAt any
	if params.Success {
		status = model.UnsubscribeStatusCompleted
		completedAt = currentTime
	}

	record, err := json.Marshal(model.UnsubscribeResultRecord{
		Message:   params.Message,
		Details:   params.Details,
		Timestamp: currentTime,
	})
	if err != nil {
		return fmt.Errorf("marshal unsubscribe result: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE emails
		SET unsubscribe_status = $2,
		    unsubscribe_completed_at = $3,
		    unsubscribe_result = $4
		WHERE id = $1
	`, params.EmailID, status, completedAt, record)
	if err != nil {
		return fmt.Errorf("set unsubscribe outcome: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outcome rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrEmailNotFound
	}
	return nil
}
