package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clodoaldofavaro/email-sort-app-backend/internal/core"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/domain/model"
	"github.com/clodoaldofavaro/email-sort-app-backend/internal/testutil"
)

func createTestEmailNoLink(t *testing.T, db *sql.DB, owner string) string {
	t.Helper()
	var id string
	err := db.QueryRowContext(context.Background(), `
		INSERT INTO emails (owner, subject, sender)
		VALUES ($1, 'Receipt', 'store@example.com')
		RETURNING id`, owner).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestEmailRepo_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewEmailRepo(db, nil)
		ctx := context.Background()

		t.Run("returns the email", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			email, err := repo.GetByID(ctx, id)

			require.NoError(t, err)
			assert.Equal(t, id, email.ID)
			assert.Equal(t, "user-1", email.Owner)
			require.NotNil(t, email.UnsubscribeLink)
			assert.Equal(t, "https://example.com/unsub", *email.UnsubscribeLink)
		})

		t.Run("returns not found for unknown id", func(t *testing.T) {
			_, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")

			assert.ErrorIs(t, err, model.ErrEmailNotFound)
		})
	})
}

func TestEmailRepo_FindEligible(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewEmailRepo(db, nil)
		ctx := context.Background()

		linked := createTestEmail(t, db, "user-1", "https://example.com/unsub")
		noLink := createTestEmailNoLink(t, db, "user-1")
		foreign := createTestEmail(t, db, "user-2", "https://example.com/unsub")

		t.Run("keeps only the owner's linked emails", func(t *testing.T) {
			eligible, err := repo.FindEligible(ctx, "user-1", []string{linked, noLink, foreign})

			require.NoError(t, err)
			require.Len(t, eligible, 1)
			assert.Equal(t, linked, eligible[0].ID)
		})

		t.Run("requires owner", func(t *testing.T) {
			_, err := repo.FindEligible(ctx, "", []string{linked})

			assert.Error(t, err)
		})

		t.Run("empty id list yields nothing", func(t *testing.T) {
			eligible, err := repo.FindEligible(ctx, "user-1", nil)

			require.NoError(t, err)
			assert.Empty(t, eligible)
		})

		t.Run("malformed ids are silently excluded", func(t *testing.T) {
			eligible, err := repo.FindEligible(ctx, "user-1", []string{"not-an-id", linked})

			require.NoError(t, err)
			require.Len(t, eligible, 1)
			assert.Equal(t, linked, eligible[0].ID)
		})

		t.Run("all malformed ids yield nothing", func(t *testing.T) {
			eligible, err := repo.FindEligible(ctx, "user-1", []string{"not-an-id", "also-bad"})

			require.NoError(t, err)
			assert.Empty(t, eligible)
		})
	})
}

func TestEmailRepo_ClaimAndRelease(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewEmailRepo(db, nil)
		ctx := context.Background()

		t.Run("claim is exclusive until released", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			claimed, err := repo.ClaimForUnsubscribe(ctx, id)
			require.NoError(t, err)
			assert.True(t, claimed)

			claimed, err = repo.ClaimForUnsubscribe(ctx, id)
			require.NoError(t, err)
			assert.False(t, claimed)

			released, err := repo.ReleaseClaim(ctx, id)
			require.NoError(t, err)
			assert.True(t, released)

			claimed, err = repo.ClaimForUnsubscribe(ctx, id)
			require.NoError(t, err)
			assert.True(t, claimed)
		})

		t.Run("claim stamps attempted at", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			claimed, err := repo.ClaimForUnsubscribe(ctx, id)
			require.NoError(t, err)
			require.True(t, claimed)

			email, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, email.UnsubscribeStatus)
			assert.Equal(t, model.UnsubscribeStatusInProgress, *email.UnsubscribeStatus)
			assert.NotNil(t, email.UnsubscribeAttemptedAt)
		})

		t.Run("release without a claim is a no-op", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			released, err := repo.ReleaseClaim(ctx, id)
			require.NoError(t, err)
			assert.False(t, released)
		})

		t.Run("claim requires email id", func(t *testing.T) {
			_, err := repo.ClaimForUnsubscribe(ctx, "")
			assert.Error(t, err)

			_, err = repo.ReleaseClaim(ctx, "")
			assert.Error(t, err)
		})
	})
}

func TestEmailRepo_SetOutcome(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewEmailRepo(db, nil)
		ctx := context.Background()

		t.Run("success marks email completed", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			err := repo.SetOutcome(ctx, core.SetEmailOutcomeParams{
				EmailID: id,
				Success: true,
				Message: "Successfully unsubscribed",
				Details: "Page confirms the unsubscribe.",
			})
			require.NoError(t, err)

			email, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, email.UnsubscribeStatus)
			assert.Equal(t, model.UnsubscribeStatusCompleted, *email.UnsubscribeStatus)
			assert.NotNil(t, email.UnsubscribeCompletedAt)

			var record model.UnsubscribeResultRecord
			require.NoError(t, json.Unmarshal(email.UnsubscribeResult, &record))
			assert.Equal(t, "Successfully unsubscribed", record.Message)
			assert.Equal(t, "Page confirms the unsubscribe.", record.Details)
		})

		t.Run("failure marks email failed without completion time", func(t *testing.T) {
			id := createTestEmail(t, db, "user-1", "https://example.com/unsub")

			err := repo.SetOutcome(ctx, core.SetEmailOutcomeParams{
				EmailID: id,
				Success: false,
				Message: "This link has expired",
			})
			require.NoError(t, err)

			email, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, email.UnsubscribeStatus)
			assert.Equal(t, model.UnsubscribeStatusFailed, *email.UnsubscribeStatus)
			assert.Nil(t, email.UnsubscribeCompletedAt)
		})

		t.Run("unknown email returns not found", func(t *testing.T) {
			err := repo.SetOutcome(ctx, core.SetEmailOutcomeParams{
				EmailID: "00000000-0000-0000-0000-000000000000",
				Success: true,
				Message: "ok",
			})

			assert.ErrorIs(t, err, model.ErrEmailNotFound)
		})
	})
}
