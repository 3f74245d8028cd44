package database

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names understood by Open.  They double as database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
	DriverPgx    = "pgx"
)

// DB is the shared connection pool.  Every repository call borrows a
// connection (or a transaction) from it and hands it back before returning.
type DB struct {
	*sqlx.DB
	Driver string
}

// MySQLDSN builds the DSN used for MySQL.
func MySQLDSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
}

// SQLiteDSN builds the DSN used for a SQLite file.  Transactions begin with
// an immediate write lock so concurrent borrows queue instead of failing.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path)
}

// Open connects to the store selected by driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverMySQL, DriverSQLite, DriverPgx:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// one writer at a time; WAL lets readers proceed alongside it
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db, Driver: driver}, nil
}

// Goqu returns a query builder speaking this database's SQL dialect.
func (db *DB) Goqu() goqu.DialectWrapper {
	switch db.Driver {
	case DriverPgx:
		return goqu.Dialect("postgres")
	case DriverSQLite:
		return goqu.Dialect("sqlite3")
	}
	return goqu.Dialect("mysql")
}

// WithTx runs fn inside a transaction.  The transaction is committed when fn
// returns nil and rolled back on every other path, panics included.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// Insert executes an INSERT and returns the generated id.  Postgres has no
// LastInsertId, so the statement is extended with RETURNING there.
func (db *DB) Insert(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	query = ext.Rebind(query)
	if db.Driver == DriverPgx {
		var id int64
		if err := ext.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
