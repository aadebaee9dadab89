// Package history records price samples and order submissions to Postgres,
// promoting the tables to Timescale hypertables when the extension exists.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"perennial-dash/internal/config"
)

const writeTimeout = 3 * time.Second

var schemaName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type PriceSample struct {
	Time   time.Time
	Market string
	Source string
	// Price is a decimal string, already scaled to units.
	Price string
	Valid bool
}

type Submission struct {
	Time       time.Time
	Kind       string
	Account    string
	Market     string
	Side       string
	Amount     string
	LimitPrice string
	TxHash     string
}

type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	prices      chan PriceSample
	submissions chan Submission
	started     atomic.Bool
	dropPrice   atomic.Uint64
	dropSub     atomic.Uint64
}

// New returns nil without error when history is disabled.
func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	if !schemaName.MatchString(schema) {
		return nil, fmt.Errorf("invalid history schema %q", schema)
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := newWriter(db, schema, queueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	return &Writer{
		db:          db,
		log:         log,
		schema:      schema,
		prices:      make(chan PriceSample, queueSize),
		submissions: make(chan Submission, queueSize),
	}
}

// Run drains the queues until ctx is done. Only the first call does work.
func (w *Writer) Run(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case sample := <-w.prices:
			w.writePrice(ctx, sample)
		case sub := <-w.submissions:
			w.writeSubmission(ctx, sub)
		}
	}
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueuePrice(sample PriceSample) {
	if w == nil {
		return
	}
	select {
	case w.prices <- sample:
	default:
		if w.dropPrice.Add(1) == 1 {
			w.log.Warn("history price queue full")
		}
	}
}

func (w *Writer) EnqueueSubmission(sub Submission) {
	if w == nil {
		return
	}
	select {
	case w.submissions <- sub:
	default:
		if w.dropSub.Add(1) == 1 {
			w.log.Warn("history submission queue full")
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market TEXT NOT NULL,
		source TEXT NOT NULL,
		price NUMERIC NOT NULL,
		valid BOOLEAN NOT NULL,
		PRIMARY KEY (ts, market, source)
	)`, w.table("price_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		market TEXT NOT NULL,
		side TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		limit_price NUMERIC NOT NULL,
		tx_hash TEXT NOT NULL
	)`, w.table("submissions"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"price_samples", "submissions"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writePrice(ctx context.Context, sample PriceSample) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, market, source, price, valid)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (ts, market, source) DO UPDATE SET price = EXCLUDED.price, valid = EXCLUDED.valid`, w.table("price_samples"))
	if _, err := w.db.ExecContext(ctx, query, sample.Time, sample.Market, sample.Source, numeric(sample.Price), sample.Valid); err != nil {
		w.log.Warn("history price insert failed", zap.Error(err))
	}
}

func (w *Writer) writeSubmission(ctx context.Context, sub Submission) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, kind, account, market, side, amount, limit_price, tx_hash)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, w.table("submissions"))
	if _, err := w.db.ExecContext(ctx, query,
		sub.Time,
		sub.Kind,
		sub.Account,
		sub.Market,
		sub.Side,
		numeric(sub.Amount),
		numeric(sub.LimitPrice),
		sub.TxHash,
	); err != nil {
		w.log.Warn("history submission insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func numeric(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0"
	}
	return v
}
