package moderation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/companion/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_WithResponse(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	resp := "you should kill yourself"
	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO moderation_records \(id, owner_id, exchange_id, message, response, reason\)`).
		WithArgs(sqlmock.AnyArg(), "u1", sql.NullString{String: "e1", Valid: true}, "hello", &resp, "AI response contained: kill yourself").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	rec, err := repo.Create(context.Background(), &models.ModerationRecord{
		OwnerID: "u1", ExchangeID: "e1", Message: "hello", Response: &resp, Reason: "AI response contained: kill yourself",
	})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NullResponse(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	var nilResp *string
	mock.ExpectQuery(`INSERT INTO moderation_records`).
		WithArgs("fixed-id", "u1", sql.NullString{}, "i want to die", nilResp, "User message contained: want to die").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	_, err := repo.Create(context.Background(), &models.ModerationRecord{
		ID: "fixed-id", OwnerID: "u1", Message: "i want to die", Reason: "User message contained: want to die",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO moderation_records`).WillReturnError(errors.New("down"))

	_, err := repo.Create(context.Background(), &models.ModerationRecord{OwnerID: "u1"})
	require.ErrorContains(t, err, "db error")
}

func TestList_ByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM moderation_records WHERE owner_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "exchange_id", "message", "response", "reason", "created_at"}).
			AddRow("r2", "u1", "e2", "m2", "bad", "AI response contained: bad", now).
			AddRow("r1", "u1", nil, "m1", nil, "User message contained: x", now.Add(-time.Minute)))

	got, err := repo.List(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Response)
	assert.Equal(t, "bad", *got[0].Response)
	assert.Equal(t, "e2", got[0].ExchangeID)
	assert.Nil(t, got[1].Response)
	assert.Empty(t, got[1].ExchangeID)
}

func TestList_AllOwners(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM moderation_records ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "exchange_id", "message", "response", "reason", "created_at"}))

	got, err := repo.List(context.Background(), "", 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}
