package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"

	"github.com/Nancy-30/LTrail/internal/model"
	"github.com/Nancy-30/LTrail/internal/telemetry"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS trace_snapshots (
	trace_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	snapshot   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trace_snapshots_created_at ON trace_snapshots(created_at DESC);
`

// Archive persists trace snapshots to SQLite off the hot path. Writes are
// queued on a bounded channel and applied by a single background worker;
// archival failures never fail the request that produced them. They are
// logged and counted instead.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger

	queue      chan model.TraceDetail
	done       chan struct{}
	cancelLoop context.CancelFunc
	dropped    atomic.Int64
}

// OpenArchive opens (or creates) the SQLite database at path and prepares
// the schema. The connection pool is capped at one connection; SQLite
// serializes writers anyway and a single connection keeps in-memory
// databases coherent.
func OpenArchive(path string, bufferSize int, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ensure schema: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Archive{
		db:     db,
		logger: logger,
		queue:  make(chan model.TraceDetail, bufferSize),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the background writer and registers OTEL gauges. The
// worker's lifetime is owned by the Archive itself, not a caller context:
// it must keep accepting snapshots from in-flight requests while the rest
// of the process shuts down, and stops only when Drain is called.
func (a *Archive) Start() {
	a.registerMetrics()
	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancelLoop = cancel
	go a.writeLoop(loopCtx)
}

// Enqueue queues a snapshot for archival. Never blocks: when the queue is
// full the snapshot is dropped and counted. The canonical in-memory state
// is unaffected either way.
func (a *Archive) Enqueue(detail model.TraceDetail) {
	select {
	case a.queue <- detail:
	default:
		a.dropped.Add(1)
		a.logger.Warn("archive: queue full, snapshot dropped", "trace_id", detail.TraceID)
	}
}

func (a *Archive) writeLoop(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case detail := <-a.queue:
					a.write(detail)
				default:
					return
				}
			}
		case detail := <-a.queue:
			a.write(detail)
		}
	}
}

func (a *Archive) write(detail model.TraceDetail) {
	snapshot, err := json.Marshal(detail)
	if err != nil {
		a.logger.Error("archive: marshal snapshot", "trace_id", detail.TraceID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO trace_snapshots (trace_id, name, status, created_at, updated_at, snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			updated_at = excluded.updated_at,
			snapshot = excluded.snapshot`,
		detail.TraceID, detail.Name, string(detail.Status), detail.CreatedAt,
		model.Timestamp(time.Now()), string(snapshot),
	)
	if err != nil {
		a.logger.Error("archive: write snapshot", "trace_id", detail.TraceID, "error", err)
	}
}

// Drain stops the writer, flushes queued snapshots, and closes the
// database. The ctx deadline bounds how long to wait for the flush.
func (a *Archive) Drain(ctx context.Context) {
	if a.cancelLoop != nil {
		a.cancelLoop()
	}
	select {
	case <-a.done:
	case <-ctx.Done():
		a.logger.Warn("archive: drain timed out")
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("archive: close database", "error", err)
	}
}

// Load returns the archived snapshot for a trace id, or ErrNotFound.
func (a *Archive) Load(ctx context.Context, traceID string) (model.TraceDetail, error) {
	var raw string
	err := a.db.QueryRowContext(ctx,
		`SELECT snapshot FROM trace_snapshots WHERE trace_id = ?`, traceID).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.TraceDetail{}, ErrNotFound
	}
	if err != nil {
		return model.TraceDetail{}, fmt.Errorf("archive: load %s: %w", traceID, err)
	}
	var detail model.TraceDetail
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return model.TraceDetail{}, fmt.Errorf("archive: decode %s: %w", traceID, err)
	}
	return detail, nil
}

// QueueDepth returns the number of snapshots waiting to be written.
func (a *Archive) QueueDepth() int {
	return len(a.queue)
}

// Dropped returns the total snapshots dropped because the queue was full.
func (a *Archive) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Archive) registerMetrics() {
	meter := telemetry.Meter("ltrail/archive")

	_, _ = meter.Int64ObservableGauge("ltrail.archive.queue_depth",
		metric.WithDescription("Snapshots waiting in the archive queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(a.QueueDepth()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("ltrail.archive.dropped_total",
		metric.WithDescription("Snapshots dropped because the archive queue was full"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(a.Dropped())
			return nil
		}),
	)
}
