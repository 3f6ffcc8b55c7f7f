package sql_test

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/aretw0/parley/pkg/adapters/sql"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.TranscriptStore = (*sql.Transcript)(nil)

var columns = []string{"session_id", "seq", "created_at", "query", "response", "ending", "domain", "rule", "understood"}

func newMock(t *testing.T) (*sql.Transcript, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sql.New(sqlx.NewDb(db, "postgres")), mock
}

func TestTranscript_SQLite_Contract(t *testing.T) {
	store, err := sql.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	defer store.Close()

	ports.RunTranscriptStoreContract(t, store)
}

func TestTranscript_Append_UsesNextSequence(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(seq), 0) + 1 FROM parley_exchanges WHERE session_id = $1`)).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO parley_exchanges`).
		WithArgs("s1", 3, sqlmock.AnyArg(), "what is 5 plus 3", "8", "speak", "arithmetic", "ComputeExpression", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ex := domain.NewExchange("s1", "what is 5 plus 3", domain.Speak("8").From("arithmetic", "ComputeExpression"), true)
	require.NoError(t, store.Append(context.Background(), ex))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranscript_Append_RollsBackOnError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO parley_exchanges`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Append(context.Background(), domain.NewExchange("s1", "hi", domain.Speak("Hello!"), true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranscript_ReadsOrderedRows(t *testing.T) {
	store, mock := newMock(t)
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(columns).
		AddRow("s1", 1, t1, "what is 5", "Which operation should I perform?", "prompt", "arithmetic", "operator", true).
		AddRow("s1", 2, t1.Add(time.Second), "plus 3", "8", "speak", "arithmetic", "ComputeExpression", true)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM parley_exchanges WHERE session_id = $1 ORDER BY seq ASC`)).
		WithArgs("s1").
		WillReturnRows(rows)

	got, err := store.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EndingPrompt, got[0].Ending)
	assert.Equal(t, "8", got[1].Text)
	assert.Equal(t, 2, got[1].Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranscript_Forget(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM parley_exchanges WHERE session_id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.Forget(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
