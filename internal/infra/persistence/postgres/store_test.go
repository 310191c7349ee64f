package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"whalewatcher/internal/infra/persistence/buckets"
	"whalewatcher/pkg/domain"
)

func openMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		require.Equal(t, defaultDriver, driver)
		return db, nil
	})
	t.Cleanup(restore)
	return db, mock
}

func expectPersist(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	for range buckets.Names {
		mock.ExpectExec("INSERT INTO case_state").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestNewStoreLoadsSnapshot(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS case_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM case_state").WillReturnRows(
		sqlmock.NewRows([]string{"bucket", "payload"}).
			AddRow(buckets.Cases, []byte(`{"CASE-1":{"id":"CASE-1","stage":3,"stage_status":"blocked"}}`)).
			AddRow("unknown", []byte(`{}`)),
	)

	store, err := NewStore("", domain.NewRulesEngine())
	require.NoError(t, err)
	state := store.ExportState()
	require.Len(t, state.Cases, 1)
	require.Equal(t, domain.StageBlocked, state.Cases["CASE-1"].StageStatus)
	empty, err := store.Empty(context.Background())
	require.NoError(t, err)
	require.False(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionPersistsBuckets(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS case_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM case_state").WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore("postgres://ignored", domain.NewRulesEngine())
	require.NoError(t, err)
	empty, _ := store.Empty(context.Background())
	require.True(t, empty)

	expectPersist(mock)
	require.NoError(t, store.ReplaceState(context.Background(), domain.Snapshot{
		Cases: map[string]domain.Case{"CASE-1": {Base: domain.Base{ID: "CASE-1"}, Stage: 1}},
	}))

	expectPersist(mock)
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateCase("CASE-1", func(c *domain.Case) error {
			c.Stage = 2
			return nil
		})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 2, store.ExportState().Cases["CASE-1"].Stage)
}

func TestPersistRollsBackOnUpsertFailure(t *testing.T) {
	_, mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS case_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM case_state").WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))
	store, err := NewStore("", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO case_state").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.ReplaceState(context.Background(), domain.Snapshot{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert cases")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreErrors(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
		defer restore()
		_, err := NewStore("", nil)
		require.ErrorContains(t, err, "open postgres")
	})
	t.Run("ddl", func(t *testing.T) {
		_, mock := openMock(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS case_state").WillReturnError(errors.New("denied"))
		_, err := NewStore("", nil)
		require.ErrorContains(t, err, "ensure state table")
	})
	t.Run("decode", func(t *testing.T) {
		_, mock := openMock(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS case_state").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT bucket, payload FROM case_state").WillReturnRows(
			sqlmock.NewRows([]string{"bucket", "payload"}).AddRow(buckets.Gaps, []byte(`[`)),
		)
		_, err := NewStore("", nil)
		require.ErrorContains(t, err, "decode gaps")
	})
}
