// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/permcore/internal/subject"
)

const (
	// notifyChannel carries "type:name" payloads for changed subjects.
	// A table trigger emits them so external writers are covered too.
	notifyChannel = "subject_changed"

	saveMaxRetries     = 3
	saveRetryBackoff   = 100 * time.Millisecond
	listenRetryInitial = 100 * time.Millisecond
	listenRetryMax     = 30 * time.Second
)

// pgPool is the pool subset PostgresStore uses. pgxpool.Pool satisfies
// it in production; pgxmock satisfies it in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store over PostgreSQL. Each subject maps to
// one row holding the JSONB snapshot and a ULID revision that advances
// on every save.
type PostgresStore struct {
	db pgPool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pool and wraps it. The caller owns the
// returned pool and closes it on shutdown.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, oops.Code("STORE_CONNECT_FAILED").Wrapf(err, "connect to database")
	}
	return &PostgresStore{db: pool}, pool, nil
}

// NewPostgresStoreWithPool wraps an existing pool or mock.
func NewPostgresStoreWithPool(db pgPool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, ref subject.Ref) (*subject.Data, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM subject_data WHERE subject_type = $1 AND subject_name = $2`,
		ref.Type, ref.Name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("STORE_LOAD_FAILED").
			With("subject", ref.String()).
			Wrapf(err, "load subject data")
	}
	return decodeData(raw)
}

// Save implements Store. Transient serialization and deadlock failures
// are retried with backoff before surfacing.
func (s *PostgresStore) Save(ctx context.Context, ref subject.Ref, data *subject.Data) error {
	if data == nil || data.IsEmpty() {
		return s.exec(ctx, "delete subject data", ref,
			`DELETE FROM subject_data WHERE subject_type = $1 AND subject_name = $2`,
			ref.Type, ref.Name)
	}
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	revision := ulid.Make().String()
	return s.exec(ctx, "save subject data", ref, `
		INSERT INTO subject_data (subject_type, subject_name, revision, data, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (subject_type, subject_name)
		DO UPDATE SET revision = EXCLUDED.revision, data = EXCLUDED.data, updated_at = now()
	`, ref.Type, ref.Name, revision, raw)
}

func (s *PostgresStore) exec(ctx context.Context, op string, ref subject.Ref, sql string, args ...any) error {
	backoff := retry.WithMaxRetries(saveMaxRetries, retry.NewConstant(saveRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx, sql, args...); err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_SAVE_FAILED").
			With("operation", op).
			With("subject", ref.String()).
			Wrapf(err, "%s", op)
	}
	return nil
}

// PgListener streams change notifications over a dedicated connection,
// reconnecting with exponential backoff when the connection drops.
type PgListener struct {
	dsn string
}

// NewPgListener creates a listener for the store's notification
// channel. The listener opens its own non-pooled connection.
func NewPgListener(dsn string) *PgListener {
	return &PgListener{dsn: dsn}
}

// Listen opens the connection and returns the payload channel. The
// channel closes when the context is cancelled.
func (l *PgListener) Listen(ctx context.Context) (<-chan string, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 16)
	go l.run(ctx, conn, ch)
	return ch, nil
}

func (l *PgListener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return nil, oops.Code("LISTEN_CONNECT_FAILED").Wrapf(err, "open listen connection")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		_ = conn.Close(ctx)
		return nil, oops.Code("LISTEN_FAILED").Wrapf(err, "subscribe to %s", notifyChannel)
	}
	return conn, nil
}

func (l *PgListener) run(ctx context.Context, conn *pgx.Conn, ch chan<- string) {
	defer close(ch)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_ = conn.Close(context.Background())
			conn, err = l.reconnect(ctx)
			if err != nil {
				conn = nil
				return
			}
			continue
		}
		select {
		case ch <- notification.Payload:
		case <-ctx.Done():
			return
		}
	}
}

func (l *PgListener) reconnect(ctx context.Context) (*pgx.Conn, error) {
	backoff := retry.WithCappedDuration(listenRetryMax, retry.NewExponential(listenRetryInitial))
	var conn *pgx.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var connErr error
		conn, connErr = l.connect(ctx)
		if connErr != nil {
			return retry.RetryableError(connErr)
		}
		return nil
	})
	return conn, err
}
