package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// NormaliseResult summarizes a renormalization pass.
type NormaliseResult struct {
	Processed int64 // positions examined
	Updated   int64 // keys rewritten in place
	Merged    int64 // positions folded into an existing key
}

// NormaliseFENs rewrites every stored position key through canon,
// repairing stores built before the current canonicalization rules. When
// the rewritten key is free the row is updated in place; when it collides
// with an existing position the two rows are merged: statistics combined,
// moves re-pointed with duplicate edges collapsed, and the old row
// deleted. Each rewrite is one transaction. Keys canon rejects are left
// untouched.
func (s *Store) NormaliseFENs(canon func(string) (string, error), dryRun bool) (*NormaliseResult, error) {
	rows, err := s.db.Query(`SELECT id, fen FROM positions`)
	if err != nil {
		return nil, err
	}

	type posRow struct {
		id  int64
		fen string
	}
	var positions []posRow
	for rows.Next() {
		var p posRow
		if err := rows.Scan(&p.id, &p.fen); err != nil {
			rows.Close()
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	res := &NormaliseResult{}
	for _, p := range positions {
		res.Processed++

		newKey, err := canon(p.fen)
		if err != nil || newKey == p.fen {
			continue
		}

		existingID, err := s.LookupPosition(newKey)
		switch {
		case err == nil:
			if !dryRun {
				if err := s.mergePositions(p.id, existingID); err != nil {
					return res, fmt.Errorf("merge position %d into %d: %w", p.id, existingID, err)
				}
			}
			res.Merged++
		case errors.Is(err, ErrNotFound):
			if !dryRun {
				if _, err := s.db.Exec(`UPDATE positions SET fen = ? WHERE id = ?`, newKey, p.id); err != nil {
					return res, fmt.Errorf("rewrite position %d: %w", p.id, err)
				}
			}
			res.Updated++
		default:
			return res, err
		}
	}

	if !dryRun && (res.Updated > 0 || res.Merged > 0) {
		if err := s.Vacuum(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// mergePositions folds oldID's statistics and edges into newID and
// deletes the old row, all in one transaction.
func (s *Store) mergePositions(oldID, newID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	st, err := statsInTx(tx, oldID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if st.TotalGames > 0 {
		if err := mergeStats(tx, newID, st); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := repointMoves(tx, oldID, newID, "from_position_id", "to_position_id"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := repointMoves(tx, oldID, newID, "to_position_id", "from_position_id"); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.Exec(`DELETE FROM position_statistics WHERE position_id = ?`, oldID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM positions WHERE id = ?`, oldID); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// repointMoves redirects the edges touching oldID on the given side to
// newID, dropping edges that would duplicate one already present.
func repointMoves(tx *sql.Tx, oldID, newID int64, side, otherSide string) error {
	rows, err := tx.Query(
		fmt.Sprintf(`SELECT id, %s, move FROM moves WHERE %s = ?`, otherSide, side), oldID)
	if err != nil {
		return err
	}

	type edge struct {
		id    int64
		other int64
		move  string
	}
	var edges []edge
	for rows.Next() {
		var e edge
		if err := rows.Scan(&e.id, &e.other, &e.move); err != nil {
			rows.Close()
			return err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, e := range edges {
		var dup int64
		err := tx.QueryRow(
			fmt.Sprintf(`SELECT id FROM moves WHERE %s = ? AND %s = ? AND move = ?`, side, otherSide),
			newID, e.other, e.move,
		).Scan(&dup)
		switch err {
		case nil:
			if _, err := tx.Exec(`DELETE FROM moves WHERE id = ?`, e.id); err != nil {
				return err
			}
		case sql.ErrNoRows:
			if _, err := tx.Exec(
				fmt.Sprintf(`UPDATE moves SET %s = ? WHERE id = ?`, side), newID, e.id); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func statsInTx(tx *sql.Tx, positionID int64) (Stats, error) {
	var st Stats
	err := tx.QueryRow(`
		SELECT total_games, white_wins, black_wins, draws,
		       total_player_elo, total_player_performance, last_played_date, game_ref
		FROM position_statistics WHERE position_id = ?`, positionID,
	).Scan(&st.TotalGames, &st.WhiteWins, &st.BlackWins, &st.Draws,
		&st.PlayerElo, &st.PlayerPerf, &st.LastPlayed, &st.GameRef)
	if err == sql.ErrNoRows {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
