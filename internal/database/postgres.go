// Package database provides the PostgreSQL and Redis access layers.
//
// PostgreSQL holds users and pings. Redis holds everything ephemeral about
// authentication: the refresh token registry, the blacklist, device sessions
// and rate limit counters.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// TxFunc runs inside a transaction opened by WithTransaction.
type TxFunc func(tx *sql.Tx) error

// Querier abstracts *sql.DB and *sql.Tx so the same query helpers work inside
// and outside a transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// QueryObserver is told about every statement the store runs. The server
// wires it to the Prometheus database counters.
type QueryObserver func(operation string, duration time.Duration, err error)

// PostgresDB wraps the connection pool and implements the user and ping
// stores.
type PostgresDB struct {
	db       *sql.DB
	observer QueryObserver
}

// NewPostgresDB opens the pool and retries the initial ping with backoff so
// the service tolerates the database container starting after it.
//
// Example:
//
//	db, err := database.NewPostgresDB(&cfg.Database)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Database connection failed")
//	}
//	defer db.Close()
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	var db *sql.DB
	var connErr error

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	err := utils.Retry(ctx, retryConfig, func() error {
		var err error
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to open database connection, retrying...")
			return err
		}

		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
		db.SetConnMaxLifetime(time.Hour)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := db.PingContext(pingCtx); err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to ping database, retrying...")
			db.Close()
			return err
		}

		return nil
	})
	if err != nil {
		if connErr != nil {
			return nil, fmt.Errorf("failed to connect to database after retries: %w", connErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")

	return &PostgresDB{db: db}, nil
}

// SetQueryObserver installs a hook called after every store query.
func (p *PostgresDB) SetQueryObserver(observer QueryObserver) {
	p.observer = observer
}

// Close closes the pool.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks that the database answers. Used by the readiness probe.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// RunMigrations executes an idempotent schema script.
//
// Example:
//
//	if err := db.RunMigrations(ctx, database.Schema); err != nil {
//	    log.Fatal().Err(err).Msg("Migration failed")
//	}
func (p *PostgresDB) RunMigrations(ctx context.Context, migrationSQL string) error {
	if _, err := p.db.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed successfully")
	return nil
}

// WithTransaction runs fn in a transaction. It commits when fn returns nil
// and rolls back on error or panic; a panic is re-raised after rollback.
//
// Example:
//
//	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
//	    if err := lockPing(ctx, tx, parentID); err != nil {
//	        return err // rolled back
//	    }
//	    return insertPing(ctx, tx, p)
//	})
func (p *PostgresDB) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPQError(err))
	}

	return nil
}

// observe reports a finished query to the observer, if any.
func (p *PostgresDB) observe(operation string, start time.Time, err error) {
	if p.observer != nil {
		p.observer(operation, time.Since(start), err)
	}
}
