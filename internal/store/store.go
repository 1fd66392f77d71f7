// Package store persists run results to PostgreSQL for dashboards and BI
// queries. Persistence is optional: the file-based baseline and history
// stores work without it, and a missing database.url disables it entirely.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides the PostgreSQL persistence layer for run snapshots.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// PersistSnapshot writes one portfolio snapshot, its contract records, and
// the per-function breakdown inside a single transaction.
func (s *Store) PersistSnapshot(ctx context.Context, snap *schemas.PortfolioSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback on an already committed transaction returns ErrTxClosed;
		// that is not worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	generatedAtUTC := snap.GeneratedAt.UTC()

	_, err = tx.Exec(ctx, `
        INSERT INTO risk_runs (id, generated_at, overall, grade, delta_overall, weighting_mode, degraded, missing_contracts)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `, snap.RunID, generatedAtUTC, snap.Summary.Overall, string(snap.Summary.Grade),
		snap.Summary.DeltaOverall, string(snap.WeightingMode), snap.Degraded, snap.MissingContracts)
	if err != nil {
		return fmt.Errorf("failed to insert run row: %w", err)
	}

	if err := s.persistContracts(ctx, tx, snap); err != nil {
		return err
	}
	if err := s.persistFunctions(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistContracts inserts one row per contract record, in id order so the
// statement sequence is deterministic.
func (s *Store) persistContracts(ctx context.Context, tx pgx.Tx, snap *schemas.PortfolioSnapshot) error {
	ids := make([]string, 0, len(snap.ByContract))
	for id := range snap.ByContract {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sql := `
        INSERT INTO risk_contracts (run_id, contract_id, overall, grade, delta, degraded, generated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	for _, id := range ids {
		c := snap.ByContract[id]
		_, err := tx.Exec(ctx, sql, snap.RunID, c.ContractID, c.Overall, string(c.Grade),
			c.Delta, len(c.Degraded) > 0, c.GeneratedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert contract row for %s: %w", c.ContractID, err)
		}
	}
	return nil
}

// persistFunctions bulk-copies the per-function breakdown.
func (s *Store) persistFunctions(ctx context.Context, tx pgx.Tx, snap *schemas.PortfolioSnapshot) error {
	var rows [][]interface{}
	for _, c := range snap.ByContract {
		for _, f := range c.ByFunction {
			rows = append(rows, []interface{}{
				snap.RunID, f.ContractID, f.FunctionName,
				f.Score, string(f.Grade), f.Delta,
				joinCategories(f.StrideCategories),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"risk_functions"},
		[]string{"run_id", "contract_id", "function_name", "score", "grade", "delta", "stride_cats"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy function rows: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied function rows: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// RecentOveralls returns the most recent overall scores recorded for a
// contract, oldest first, suitable for rebuilding a history window from the
// database instead of the file store.
func (s *Store) RecentOveralls(ctx context.Context, contractID string, limit int) ([]schemas.HistorySample, error) {
	query := `
        SELECT generated_at, overall
        FROM risk_contracts
        WHERE contract_id = $1
        ORDER BY generated_at DESC
        LIMIT $2;
    `
	rows, err := s.pool.Query(ctx, query, contractID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract history: %w", err)
	}
	defer rows.Close()

	var samples []schemas.HistorySample
	for rows.Next() {
		var sample schemas.HistorySample
		if err := rows.Scan(&sample.Timestamp, &sample.Overall); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

func joinCategories(cats []schemas.StrideCategory) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
