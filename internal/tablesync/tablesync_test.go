package tablesync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwards/hubsync/internal/apperr"
	"github.com/johnwards/hubsync/internal/database"
	"github.com/johnwards/hubsync/internal/domain"
	"github.com/johnwards/hubsync/internal/tablesync"
	"github.com/johnwards/hubsync/internal/testhelpers"
)

const (
	dropOwners   = "DROP TABLE IF EXISTS [hb_owners]"
	createOwners = "CREATE TABLE [hb_owners] ([a] NVARCHAR(MAX), [b] NVARCHAR(MAX), [c] NVARCHAR(MAX))"
	insertOwners = "INSERT INTO [hb_owners] ([a], [b], [c]) VALUES (@p1, @p2, @p3)"
)

func mockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	d, err := database.DialectFor(database.DriverSQLServer)
	require.NoError(t, err)
	return &database.DB{DB: db, Dialect: d}, mock
}

func ownerRows() []domain.Row {
	return []domain.Row{
		{"b": "2", "a": 1},
		{"a": nil, "c": true},
	}
}

func TestInferColumns(t *testing.T) {
	cols := tablesync.InferColumns([]domain.Row{
		{"id": "1", "name": "x"},
		{"id": "2", "zeta": "z", "alpha": "a"},
		{"name": "y"},
	})
	assert.Equal(t, tablesync.Columns{"id", "name", "alpha", "zeta"}, cols)
	assert.Empty(t, tablesync.InferColumns(nil))
}

func TestInferColumnsFoldsCase(t *testing.T) {
	cols := tablesync.InferColumns([]domain.Row{
		{"id": "1", "Email": "a@example.com", "email": "b@example.com"},
		{"ID": "2", "EMAIL": "c@example.com", "phone": "8888"},
	})
	assert.Equal(t, tablesync.Columns{"Email", "id", "phone"}, cols)

	vals := cols.Values(domain.Row{"ID": "2", "EMAIL": "c@example.com"})
	assert.Equal(t, []any{"c@example.com", "2", nil}, vals)

	vals = cols.Values(domain.Row{"email": "b@example.com", "Email": "a@example.com"})
	assert.Equal(t, "a@example.com", vals[0])
}

func TestColumnsStatements(t *testing.T) {
	d, err := database.DialectFor(database.DriverMySQL)
	require.NoError(t, err)
	cols := tablesync.Columns{"id", "name"}

	assert.Equal(t, "CREATE TABLE `t` (`id` LONGTEXT, `name` LONGTEXT)", cols.CreateTable(d, "t"))
	assert.Equal(t, "INSERT INTO `t` (`id`, `name`) VALUES (?, ?)", cols.Insert(d, "t"))
	assert.Equal(t, []any{"7", nil}, cols.Values(domain.Row{"id": int64(7), "extra": "x"}))
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, tablesync.ValidIdentifier("hb_deals"))
	assert.True(t, tablesync.ValidIdentifier("_x-1"))
	assert.False(t, tablesync.ValidIdentifier("1abc"))
	assert.False(t, tablesync.ValidIdentifier("deals; DROP TABLE x"))
	assert.False(t, tablesync.ValidIdentifier(string(make([]byte, 129))))
}

func TestSyncDirect(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(dropOwners).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createOwners).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(insertOwners)
	prep.ExpectExec().WithArgs("1", "2", nil).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(nil, nil, "true").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	res, err := tablesync.New(db).Sync(context.Background(), ownerRows(), tablesync.TableOwners)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.False(t, res.Fallback)
	assert.Equal(t, tablesync.Columns{"a", "b", "c"}, res.Columns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncFallsBackToManualPath(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(dropOwners).WillReturnError(errors.New("deadlock victim"))
	mock.ExpectRollback()

	mock.ExpectExec(dropOwners).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(createOwners).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertOwners).WithArgs("1", "2", nil).WillReturnError(errors.New("string truncation"))
	mock.ExpectExec(insertOwners).WithArgs(nil, nil, "true").WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := tablesync.New(db).Sync(context.Background(), ownerRows(), tablesync.TableOwners)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncFailsWhenManualPathFails(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(dropOwners).WillReturnError(errors.New("connection reset"))

	_, err := tablesync.New(db).Sync(context.Background(), ownerRows(), tablesync.TableOwners)
	assert.ErrorContains(t, err, "sync table hb_owners")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRejectsTables(t *testing.T) {
	db, mock := mockDB(t)
	s := tablesync.New(db)

	for _, table := range []string{"hb_deals; DROP TABLE users", "users"} {
		_, err := s.Sync(context.Background(), ownerRows(), table)
		var verr *apperr.ValidationError
		require.True(t, errors.As(err, &verr), table)
		assert.Equal(t, "table", verr.Field)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncEmptyRecreatesTable(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS [hb_deals]").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE [hb_deals] ([hs_object_id] NVARCHAR(MAX))").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO [hb_deals] ([hs_object_id]) VALUES (@p1)")
	mock.ExpectCommit()

	res, err := tablesync.New(db).Sync(context.Background(), nil, tablesync.TableDeals)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, tablesync.Columns{"hs_object_id"}, res.Columns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyColumn(t *testing.T) {
	assert.Equal(t, "hs_object_id", tablesync.KeyColumn(tablesync.TableTickets))
	assert.Equal(t, "id", tablesync.KeyColumn(tablesync.TableOwners))
	assert.Equal(t, "pipeline_id", tablesync.KeyColumn(tablesync.TableDealsPipeline))
	assert.Equal(t, "id", tablesync.KeyColumn("hb_custom"))
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+db.Dialect.Quote(table)).Scan(&n))
	return n
}

func TestSyncReplacesTableInSQLite(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	s := tablesync.New(db)
	ctx := context.Background()

	_, err := s.Sync(ctx, []domain.Row{
		{"id": "1", "dealname": "Renewal", "amount": 1200.5},
		{"id": "2", "dealname": "Upsell"},
	}, tablesync.TableDeals)
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, db, tablesync.TableDeals))

	var amount string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT amount FROM hb_deals WHERE id = '1'`).Scan(&amount))
	assert.Equal(t, "1200.5", amount)

	res, err := s.Sync(ctx, []domain.Row{{"id": "3", "pipeline": "default"}}, tablesync.TableDeals)
	require.NoError(t, err)
	assert.Equal(t, tablesync.Columns{"id", "pipeline"}, res.Columns)
	assert.Equal(t, 1, countRows(t, db, tablesync.TableDeals))

	var name string
	err = db.QueryRowContext(ctx, `SELECT dealname FROM hb_deals`).Scan(&name)
	assert.Error(t, err, "old columns must be gone after a full refresh")
}

func TestSyncEmptyClearsStaleRowsInSQLite(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	s := tablesync.New(db)
	ctx := context.Background()

	_, err := s.Sync(ctx, []domain.Row{{"id": "11", "email": "ana@example.com"}}, tablesync.TableOwners)
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db, tablesync.TableOwners))

	_, err = s.Sync(ctx, nil, tablesync.TableOwners)
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, db, tablesync.TableOwners))

	var email string
	err = db.QueryRowContext(ctx, `SELECT email FROM hb_owners`).Scan(&email)
	assert.Error(t, err, "only the key column survives an empty sync")
}

func TestSyncMergesColumnsDifferingByCaseInSQLite(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ctx := context.Background()

	res, err := tablesync.New(db).Sync(ctx, []domain.Row{
		{"id": "1", "Email": "ana@example.com"},
		{"id": "2", "email": "luis@example.com"},
	}, tablesync.TableContacts)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, tablesync.Columns{"Email", "id"}, res.Columns)
	assert.Equal(t, 2, countRows(t, db, tablesync.TableContacts))

	var email string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT Email FROM hb_contacts WHERE id = '2'`).Scan(&email))
	assert.Equal(t, "luis@example.com", email)
}

func TestManualPathDropsInvalidColumns(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	ctx := context.Background()

	res, err := tablesync.New(db).Sync(ctx, []domain.Row{
		{"id": "1", "bad column": "x"},
		{"id": "2"},
	}, tablesync.TableContacts)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, tablesync.Columns{"id"}, res.Columns)
	assert.Equal(t, 2, countRows(t, db, tablesync.TableContacts))
}
