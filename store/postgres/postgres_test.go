package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

var testSchema = store.Schema{
	"users": {{Name: "email", Fields: []string{"email"}}},
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return New(db, testSchema), mock, db
}

func TestGetByID_Found(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+data\s+FROM\s+documents\s+WHERE\s+collection\s*=\s*\$1\s+AND\s+id\s*=\s*\$2$`).
		WithArgs("users", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"email":"a@x.com"}`)))

	d, err := s.GetByID(context.Background(), "users", "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", d.ID)
	require.JSONEq(t, `{"email":"a@x.com"}`, string(d.Data))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_MissingIsEmpty(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+data\s+FROM\s+documents`).
		WithArgs("users", "nope").
		WillReturnError(sql.ErrNoRows)

	d, err := s.GetByID(context.Background(), "users", "nope")
	require.NoError(t, err)
	require.True(t, d.IsEmpty())
}

func TestFind_BindsFilterFieldsAsParameters(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*data\s+FROM\s+documents\s+WHERE\s+collection\s*=\s*\$1\s+AND\s+data->>\$2\s*=\s*\$3\s+AND\s+data->>\$4\s*=\s*\$5\s+ORDER\s+BY\s+seq$`).
		WithArgs("sessions", "provider", "email", "userId", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("s1", []byte(`{"userId":"u1"}`)).
			AddRow("s2", []byte(`{"userId":"u1"}`)))

	docs, err := s.Find(context.Background(), "sessions", store.Filter{"userId": "u1", "provider": "email"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "s1", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount_Capped(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+count\(\*\)\s+FROM\s+\(SELECT\s+1\s+FROM\s+documents\s+WHERE\s+collection\s*=\s*\$1\s+LIMIT\s+10\)\s+AS\s+capped`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	n, err := s.Count(context.Background(), "users", nil, 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
}

func TestCreate_InsertsDocumentAndUniqueKeys(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	data := []byte(`{"email":"a@x.com"}`)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+documents`).
		WithArgs("users", "u1", data).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+unique_keys`).
		WithArgs("users", "email", "a@x.com", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := s.Create(context.Background(), "users", store.Document{ID: "u1", Data: data})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolationMapsToDuplicateKey(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	data := []byte(`{"email":"a@x.com"}`)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+documents`).
		WithArgs("users", "u2", data).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+unique_keys`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), "users", store.Document{ID: "u2", Data: data})
	require.ErrorIs(t, err, store.ErrDuplicateKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_MissingDocument(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+documents`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "users", store.Document{ID: "ghost", Data: []byte(`{}`)})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_ReportsExistence(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE\s+FROM\s+unique_keys`).
		WithArgs("users", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+documents`).
		WithArgs("users", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.Delete(context.Background(), "users", "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDBErrorsAreWrapped(t *testing.T) {
	s, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+data\s+FROM\s+documents`).
		WillReturnError(errors.New("db down"))

	_, err := s.GetByID(context.Background(), "users", "u1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "db error: db down")
}
