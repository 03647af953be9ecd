package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
	"github.com/lib/pq"
)

// Schema creates the tables PostgresSink writes to. Document ids are
// NUMERIC because they span the full uint64 range.
const Schema = `
CREATE TABLE IF NOT EXISTS dedup_runs (
	run_id      UUID PRIMARY KEY,
	clusters    INTEGER NOT NULL,
	documents   BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS doc_clusters (
	run_id      UUID NOT NULL REFERENCES dedup_runs(run_id) ON DELETE CASCADE,
	cluster_id  INTEGER NOT NULL,
	doc_id      NUMERIC(20, 0) NOT NULL,
	PRIMARY KEY (run_id, doc_id)
);
CREATE INDEX IF NOT EXISTS doc_clusters_cluster_idx ON doc_clusters (run_id, cluster_id);
`

// TxRunner is satisfied by *postgres.Client.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// PostgresSink stores one row per document. A run is written in a single
// transaction; rewriting the same run id replaces it.
type PostgresSink struct {
	db    TxRunner
	retry resilience.RetryConfig
}

func NewPostgresSink(db TxRunner, retry resilience.RetryConfig) *PostgresSink {
	return &PostgresSink{db: db, retry: retry}
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema applies Schema.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, Schema); err != nil {
			return fmt.Errorf("applying doc_clusters schema: %w", err)
		}
		return nil
	})
}

func (s *PostgresSink) Write(ctx context.Context, runID string, c cluster.Clustering) error {
	if !ValidRunID(runID) {
		return fmt.Errorf("run id %q is not a uuid", runID)
	}
	return resilience.Retry(ctx, "postgres-sink", s.retry, func(ctx context.Context) error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			return writeRun(ctx, tx, runID, c)
		})
	})
}

func writeRun(ctx context.Context, tx *sql.Tx, runID string, c cluster.Clustering) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dedup_runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clearing run %s: %w", runID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dedup_runs (run_id, clusters, documents, created_at) VALUES ($1, $2, $3, $4)`,
		runID, len(c), int64(c.Len()), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("doc_clusters", "run_id", "cluster_id", "doc_id"))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}
	for i, bm := range c {
		it := bm.Iterator()
		for it.HasNext() {
			if _, err := stmt.ExecContext(ctx, runID, i+1, strconv.FormatUint(it.Next(), 10)); err != nil {
				stmt.Close()
				return fmt.Errorf("copying cluster %d: %w", i+1, err)
			}
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing copy: %w", err)
	}
	return stmt.Close()
}

// ReadRun loads a stored clustering back, clusters in id order.
func ReadRun(ctx context.Context, db *sql.DB, runID string) (cluster.Clustering, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT cluster_id, doc_id::text FROM doc_clusters WHERE run_id = $1 ORDER BY cluster_id, doc_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var sets [][]cluster.DocID
	for rows.Next() {
		var (
			cid int
			raw string
		)
		if err := rows.Scan(&cid, &raw); err != nil {
			return nil, fmt.Errorf("scanning run %s: %w", runID, err)
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad doc id %q: %w", runID, raw, err)
		}
		for len(sets) < cid {
			sets = append(sets, nil)
		}
		sets[cid-1] = append(sets[cid-1], id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cluster.FromSets(sets...), nil
}
