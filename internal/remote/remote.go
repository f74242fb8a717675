// Package remote implements the client of the authoritative cloud store.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"field-gateway/internal/errs"
	"field-gateway/internal/migrations"
	"field-gateway/internal/model"
)

// Client inserts records into the remote store. It does not deduplicate:
// inserting the same record twice creates two remote rows.
type Client interface {
	Insert(ctx context.Context, record model.Record) (model.RemoteAck, error)
	IsReachable(ctx context.Context) bool
}

// PgxPoolIface is the subset of *pgxpool.Pool used by the client.
type PgxPoolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Ping(ctx context.Context) error
	Close()
}

const insertSQL = `INSERT INTO records (type, name, value, unit, comment, "timestamp")
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

// PgClient is a Client backed by a PostgreSQL pool.
type PgClient struct {
	pool          PgxPoolIface
	insertTimeout time.Duration
	migrate       func(ctx context.Context) error

	mu    sync.Mutex
	ready bool
}

// NewPool creates a lazily connecting pool; no connection is attempted until
// the first query, so the gateway starts even when the cloud is unreachable.
func NewPool(ctx context.Context, dsn string, connectTimeout time.Duration) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid remote dsn: %w", err)
	}
	connConfig.ConnConfig.ConnectTimeout = connectTimeout
	connConfig.MaxConnIdleTime = 15 * time.Second
	connConfig.ConnConfig.RuntimeParams["application_name"] = "field-gateway"
	connConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		logrus.WithField("severity", n.Severity).WithField("notice", n.Message).Info("Notice received")
	}
	return pgxpool.NewWithConfig(ctx, connConfig)
}

// NewPgClient wraps pool. insertTimeout bounds a single Insert; zero means
// the pool's own timeouts apply.
func NewPgClient(pool PgxPoolIface, insertTimeout time.Duration) *PgClient {
	c := &PgClient{pool: pool, insertTimeout: insertTimeout}
	c.migrate = c.applyMigrations
	return c
}

func (c *PgClient) applyMigrations(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	needsMigration, err := migrations.NeedsUpgrade(ctx, conn.Conn())
	if err != nil {
		return err
	}
	if !needsMigration {
		logrus.Info("Remote schema is up to date")
		return nil
	}
	logrus.Info("Applying remote schema migrations...")
	return migrations.Apply(ctx, conn.Conn())
}

// ensureSchema creates the remote table on first contact.
func (c *PgClient) ensureSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	if err := c.migrate(ctx); err != nil {
		return err
	}
	c.ready = true
	return nil
}

// IsReachable pings the remote store and makes sure its schema exists.
func (c *PgClient) IsReachable(ctx context.Context) bool {
	if err := c.pool.Ping(ctx); err != nil {
		logrus.WithError(err).Debug("Remote store ping failed")
		return false
	}
	if err := c.ensureSchema(ctx); err != nil {
		logrus.WithError(err).Warn("Remote store reachable but schema setup failed")
		return false
	}
	return true
}

// Insert writes record to the remote store, keeping its original timestamp.
// The local id is not transmitted.
func (c *PgClient) Insert(ctx context.Context, record model.Record) (model.RemoteAck, error) {
	if c.insertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.insertTimeout)
		defer cancel()
	}

	if err := c.ensureSchema(ctx); err != nil {
		return model.RemoteAck{}, classify("remote schema", err)
	}

	var remoteID int64
	err := c.pool.QueryRow(ctx, insertSQL,
		record.Type,
		record.Name,
		record.Value,
		record.Unit,
		record.Comment,
		record.Timestamp,
	).Scan(&remoteID)
	if err != nil {
		return model.RemoteAck{}, classify(fmt.Sprintf("remote insert of record %d", record.ID), err)
	}
	return model.RemoteAck{RemoteID: remoteID}, nil
}

// Close releases the pool.
func (c *PgClient) Close() {
	c.pool.Close()
}

// classify maps server-side rejections to errs.ErrWrite and everything else,
// such as dial failures and timeouts, to errs.ErrConnection.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Write(op, err)
	}
	return errs.Connection(op, err)
}
