// Package prune bounds storage growth by deleting single-game positions
// that sit too many moves away from any well-traveled line. Distance is
// computed with a batched multi-source BFS over workspace tables living
// beside the live graph; every batch is its own transaction, so an
// interrupted run resumes where it stopped.
package prune

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/isofarro/chess-opening-trees/internal/store"
)

// Progress observes phase completion as (stage, count) pairs. Purely
// observational; invoked synchronously at phase checkpoints.
type Progress func(stage string, count int64)

// Pruner runs the closeness analysis and deletion over one store. It is a
// maintenance operation, assumed exclusive with ingestion.
type Pruner struct {
	st  *store.Store
	log zerolog.Logger
}

// New creates a Pruner over st.
func New(st *store.Store, logger zerolog.Logger) *Pruner {
	return &Pruner{st: st, log: logger}
}

// Run deletes every position with exactly one recorded game that is not
// reachable within maxDistance moves of a core position (one with more
// than one game). Core positions and reachable single-game positions are
// never touched. batchSize bounds each transaction's working set.
func (p *Pruner) Run(ctx context.Context, maxDistance, batchSize int, progress Progress) error {
	if maxDistance < 1 {
		return fmt.Errorf("max distance must be >= 1, got %d", maxDistance)
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	if progress == nil {
		progress = func(string, int64) {}
	}

	seeded, err := p.seedWorkspace()
	if err != nil {
		return fmt.Errorf("seed workspace: %w", err)
	}
	progress("initialised workspace", seeded)

	marked, err := p.calculateCloseness(ctx, maxDistance, batchSize)
	if err != nil {
		return fmt.Errorf("calculate closeness: %w", err)
	}
	progress("calculated position closeness", marked)

	enqueued, err := p.markForDeletion()
	if err != nil {
		return fmt.Errorf("mark for deletion: %w", err)
	}
	progress("marked positions for deletion", enqueued)

	deleted, err := p.deleteMarked(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("delete positions: %w", err)
	}
	progress("completed deletions", deleted)

	if err := p.dropWorkspace(); err != nil {
		return fmt.Errorf("drop workspace: %w", err)
	}
	if err := p.st.Vacuum(); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	progress("database compacted", deleted)

	return nil
}

// seedWorkspace creates the analysis tables and tracks every single-game
// position at closeness 0. INSERT OR IGNORE makes re-seeding after an
// interrupted run a no-op for rows already tracked.
func (p *Pruner) seedWorkspace() (int64, error) {
	tx, err := p.st.Begin()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS position_closeness (
			position_id INTEGER PRIMARY KEY,
			closeness   INTEGER NOT NULL DEFAULT 0,
			processed   INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_position_closeness_unprocessed
		ON position_closeness(processed, closeness)`); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS positions_to_delete (
			position_id INTEGER PRIMARY KEY
		)`); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO position_closeness (position_id, closeness)
		SELECT p.id, 0
		FROM positions p
		JOIN position_statistics ps ON ps.position_id = p.id
		WHERE ps.total_games = 1`); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	var tracked int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM position_closeness`).Scan(&tracked); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	return tracked, tx.Commit()
}

// calculateCloseness assigns hop-derived closeness values. Candidates one
// move from a core position get maxDistance; each propagation round k then
// reaches one hop further, assigning k, until the hops run out or a
// round marks nothing.
func (p *Pruner) calculateCloseness(ctx context.Context, maxDistance, batchSize int) (int64, error) {
	var total int64

	// First hop: candidates directly reachable from core positions.
	n, err := p.runBatches(ctx, batchSize, func(tx *sql.Tx) (int64, error) {
		return execCount(tx, `
			UPDATE position_closeness
			SET closeness = ?, processed = 1
			WHERE position_id IN (
				SELECT pc.position_id
				FROM position_closeness pc
				JOIN moves m ON m.to_position_id = pc.position_id
				JOIN position_statistics ps ON ps.position_id = m.from_position_id
				WHERE pc.closeness = 0 AND pc.processed = 0
				  AND ps.total_games > 1
				LIMIT ?
			)`, maxDistance, batchSize)
	})
	if err != nil {
		return total, err
	}
	total += n

	// Propagation rounds walk outward from the already-marked frontier.
	for k := maxDistance - 1; k >= 1; k-- {
		n, err := p.runBatches(ctx, batchSize, func(tx *sql.Tx) (int64, error) {
			return execCount(tx, `
				UPDATE position_closeness
				SET closeness = ?, processed = 1
				WHERE position_id IN (
					SELECT target.position_id
					FROM position_closeness target
					JOIN moves m ON m.to_position_id = target.position_id
					JOIN position_closeness src ON src.position_id = m.from_position_id
					WHERE src.closeness = ?
					  AND target.closeness = 0 AND target.processed = 0
					LIMIT ?
				)`, k, k+1, batchSize)
		})
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			// A round that marks nothing ends the walk, unless rows at
			// this closeness already exist from an interrupted earlier
			// run, in which case deeper rounds still have a frontier.
			var atK int64
			if err := p.st.DB().QueryRow(
				`SELECT COUNT(*) FROM position_closeness WHERE closeness = ?`, k,
			).Scan(&atK); err != nil {
				return total, err
			}
			if atK == 0 {
				break
			}
		}
		p.log.Debug().Int("closeness", k).Int64("marked", n).Msg("propagation round")
	}

	return total, nil
}

// markForDeletion enqueues every tracked candidate the BFS never reached.
func (p *Pruner) markForDeletion() (int64, error) {
	tx, err := p.st.Begin()
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO positions_to_delete (position_id)
		SELECT position_id FROM position_closeness WHERE closeness = 0`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	var queued int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM positions_to_delete`).Scan(&queued); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return queued, tx.Commit()
}

// deleteMarked drains the deletion queue leaf-first: a position with no
// outgoing edges can go without leaving another queued position's edges
// dangling. Once no leaves remain among the queue, remaining positions
// (cycle members) are deleted directly, edges first, in the same atomic
// batch shape.
func (p *Pruner) deleteMarked(ctx context.Context, batchSize int) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := p.deleteBatch(batchSize)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
		p.log.Debug().Int64("deleted", total).Msg("deletion progress")
	}
}

func (p *Pruner) deleteBatch(batchSize int) (int64, error) {
	tx, err := p.st.Begin()
	if err != nil {
		return 0, err
	}

	ids, err := queryIDs(tx, `
		SELECT ptd.position_id
		FROM positions_to_delete ptd
		WHERE NOT EXISTS (
			SELECT 1 FROM moves m WHERE m.from_position_id = ptd.position_id
		)
		LIMIT ?`, batchSize)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if len(ids) == 0 {
		ids, err = queryIDs(tx, `SELECT position_id FROM positions_to_delete LIMIT ?`, batchSize)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if len(ids) == 0 {
		_ = tx.Rollback()
		return 0, nil
	}

	ph := placeholders(len(ids))
	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id)
	}

	// Edges in either direction go before the position rows they reference.
	dblArgs := append(append([]any{}, args...), args...)
	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM moves WHERE from_position_id IN (%s) OR to_position_id IN (%s)`, ph, ph),
		dblArgs...); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM position_statistics WHERE position_id IN (%s)`, ph), args...); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM positions WHERE id IN (%s)`, ph), args...); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM positions_to_delete WHERE position_id IN (%s)`, ph), args...); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// dropWorkspace discards the analysis tables once the run completes.
func (p *Pruner) dropWorkspace() error {
	if _, err := p.st.DB().Exec(`DROP TABLE IF EXISTS position_closeness`); err != nil {
		return err
	}
	_, err := p.st.DB().Exec(`DROP TABLE IF EXISTS positions_to_delete`)
	return err
}

// runBatches repeats one batch-sized transaction until it stops making
// progress, returning the total rows affected.
func (p *Pruner) runBatches(ctx context.Context, batchSize int, batch func(tx *sql.Tx) (int64, error)) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		tx, err := p.st.Begin()
		if err != nil {
			return total, err
		}
		n, err := batch(tx)
		if err != nil {
			_ = tx.Rollback()
			return total, err
		}
		if err := tx.Commit(); err != nil {
			return total, err
		}

		if n == 0 {
			return total, nil
		}
		total += n
	}
}

func execCount(tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryIDs(tx *sql.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
