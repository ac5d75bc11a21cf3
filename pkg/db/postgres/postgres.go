package postgres

import (
	"context"

	"github.com/exaring/otelpgx"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehud/rehud-delta/log"
)

type PoolConfigOption func(cfg *pgxpool.Config)

func WithTracer(tracer pgx.QueryTracer) PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.Tracer = tracer
	}
}

func WithMaxConns(n int32) PoolConfigOption {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConns = n
	}
}

// InitWithURL creates a connection pool. The process exits if no valid
// connection can be established.
func InitWithURL(url string, opts ...PoolConfigOption) *pgxpool.Pool {
	pool, err := NewPool(context.Background(), url, opts...)
	if err != nil {
		log.Fatal("Unable to create the database pool", log.ErrorField(err))
	}
	return pool
}

func NewPool(ctx context.Context, url string, opts ...PoolConfigOption) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	dbConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	for _, opt := range opts {
		opt(dbConfig)
	}
	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewOtlpTracer creates spans for all queries.
func NewOtlpTracer() pgx.QueryTracer {
	return otelpgx.NewTracer()
}

// NewMyTracer logs all queries on the given level.
func NewMyTracer(logger *log.Logger, level log.Level) pgx.QueryTracer {
	return &myQueryTracer{log: logger, level: level}
}

type myQueryTracer struct {
	log   *log.Logger
	level log.Level
}

func (tracer *myQueryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	if ce := tracer.log.Check(tracer.level, "Executing"); ce != nil {
		ce.Write(log.String("sql", data.SQL), log.Any("args", data.Args))
	}
	return ctx
}

//nolint:whitespace // can't make the linters happy
func (tracer *myQueryTracer) TraceQueryEnd(
	ctx context.Context,
	conn *pgx.Conn,
	data pgx.TraceQueryEndData,
) {
	if data.Err != nil {
		tracer.log.Debug("query failed", log.ErrorField(data.Err))
	}
}
