package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/orm/internal/orm/dialect"
)

func setupMockDB(t *testing.T, opts ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, dialect.Postgres, opts...), mock
}

func TestFetchAll(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT * FROM "user"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), "a@x").
			AddRow(int64(2), nil))

	rows, err := db.FetchAll(context.Background(), `SELECT * FROM "user"`)
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{"id": int64(1), "email": "a@x"},
		{"id": int64(2), "email": nil},
	}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchAll_Empty(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT * FROM "user"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := db.FetchAll(context.Background(), `SELECT * FROM "user"`)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetchOne(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT * FROM "user" WHERE "id" = $1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(9)))
	mock.ExpectQuery(`SELECT * FROM "user" WHERE "id" = $1`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := db.FetchOne(context.Background(), `SELECT * FROM "user" WHERE "id" = $1`, 1)
	require.NoError(t, err)
	assert.Equal(t, Row{"id": int64(1)}, row)

	row, err = db.FetchOne(context.Background(), `SELECT * FROM "user" WHERE "id" = $1`, 2)
	require.NoError(t, err)
	assert.Nil(t, row, "absent row is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchScalar(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT COUNT(*) FROM "user"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT "id" FROM "user" WHERE 1 = 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	v, err := db.FetchScalar(context.Background(), `SELECT COUNT(*) FROM "user"`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = db.FetchScalar(context.Background(), `SELECT "id" FROM "user" WHERE 1 = 0`)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExecute(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(`DELETE FROM "user" WHERE "id" = $1`).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := db.Execute(context.Background(), `DELETE FROM "user" WHERE "id" = $1`, 4)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExecute_ClassifiesDriverErrors(t *testing.T) {
	db, mock := setupMockDB(t)

	driverErr := &pgconn.PgError{Code: "23505", Detail: "Key (email)=(a@x) already exists."}
	mock.ExpectExec(`INSERT INTO "user" ("email") VALUES ($1)`).
		WithArgs("a@x").
		WillReturnError(driverErr)

	_, err := db.Execute(context.Background(), `INSERT INTO "user" ("email") VALUES ($1)`, "a@x")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "driver error stays in the chain")
	assert.Equal(t, "23505", pgErr.Code)
}

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, ErrUniqueViolation},
		{"pgx foreign key", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation},
		{"pgx not null", &pgconn.PgError{Code: "23502"}, ErrNotNullViolation},
		{"pgx check", &pgconn.PgError{Code: "23514"}, ErrCheckViolation},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, ErrDeadlock},
		{"pq unique", &pq.Error{Code: "23505"}, ErrUniqueViolation},
		{"pq deadlock", &pq.Error{Code: "40P01"}, ErrDeadlock},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrUniqueViolation},
		{"mysql foreign key", &mysql.MySQLError{Number: 1452}, ErrForeignKeyViolation},
		{"mysql not null", &mysql.MySQLError{Number: 1048}, ErrNotNullViolation},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, ErrDeadlock},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrUniqueViolation},
		{"sqlite foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, ErrForeignKeyViolation},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, ErrNotNullViolation},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ErrUniqueViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertDBError(tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
			assert.True(t, errors.Is(got, tt.err), "original error kept")
		})
	}
}

func TestConvertDBError_Passthrough(t *testing.T) {
	assert.Nil(t, ConvertDBError(nil))

	plain := errors.New("connection refused")
	assert.Same(t, plain, ConvertDBError(plain))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), ConvertDBError(other))

	assert.Equal(t, sql.ErrNoRows, ConvertDBError(sql.ErrNoRows))
}

func TestTrace_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, mock := setupMockDB(t, WithLogger(zap.New(core)), WithSlowThreshold(time.Hour))

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT 2`).WillReturnError(errors.New("boom"))

	_, err := db.FetchAll(context.Background(), `SELECT 1`)
	require.NoError(t, err)
	_, err = db.FetchAll(context.Background(), `SELECT 2`)
	require.Error(t, err)

	executed := logs.FilterMessage("sql executed").All()
	require.Len(t, executed, 1)
	assert.Equal(t, "SELECT 1", executed[0].ContextMap()["sql"])
	assert.Equal(t, int64(1), executed[0].ContextMap()["rows"])

	failed := logs.FilterMessage("sql failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, "boom", failed[0].ContextMap()["error"])
}

func TestTrace_SlowQuery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, mock := setupMockDB(t, WithLogger(zap.New(core)), WithSlowThreshold(time.Nanosecond))

	mock.ExpectExec(`UPDATE "user" SET "active" = $1`).
		WithArgs(true).
		WillDelayFor(5 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 2))

	_, err := db.Execute(context.Background(), `UPDATE "user" SET "active" = $1`, true)
	require.NoError(t, err)

	slow := logs.FilterMessage("slow sql").All()
	require.Len(t, slow, 1)
	assert.Equal(t, zapcore.WarnLevel, slow[0].Level)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, mock := setupMockDB(t, WithMetrics(NewMetrics(reg)))

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))
	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("boom"))

	_, _ = db.FetchAll(context.Background(), `SELECT 1`)
	_, _ = db.FetchAll(context.Background(), `SELECT 1`)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "orm_queries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			counts[labels["op"]+"/"+labels["status"]] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, map[string]float64{"fetch_all/ok": 1, "fetch_all/error": 1}, counts)
}

func TestTransaction(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "post"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Begin(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, tx.Dialect())

	_, err = tx.Execute(context.Background(), `DELETE FROM "post"`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.True(t, tx.Done())
	assert.True(t, errors.Is(tx.Commit(), ErrTxDone))
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_Rollback(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Begin(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteIdentifier(t *testing.T) {
	db, _ := setupMockDB(t)
	assert.Equal(t, `"user"."id"`, db.QuoteIdentifier("user.id"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SQLDB().SetMaxOpenConns(1)

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, dialect.SQLite, db.Dialect())

	ctx := context.Background()
	_, err = db.Execute(ctx, `CREATE TABLE "t" ("id" INTEGER PRIMARY KEY, "name" TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	_, err = db.Execute(ctx, `INSERT INTO "t" ("name") VALUES (?)`, "a")
	require.NoError(t, err)

	_, err = db.Execute(ctx, `INSERT INTO "t" ("name") VALUES (?)`, "a")
	assert.True(t, IsUniqueViolation(err))
	_, err = db.Execute(ctx, `INSERT INTO "t" ("name") VALUES (?)`, nil)
	assert.True(t, errors.Is(err, ErrNotNullViolation))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "postgres", driverName("postgres", dialect.Postgres))
	assert.Equal(t, "pgx", driverName("pgx", dialect.Postgres))
	assert.Equal(t, "mysql", driverName("mariadb", dialect.MySQL))
	assert.Equal(t, "sqlite3", driverName("sqlite", dialect.SQLite))
}
