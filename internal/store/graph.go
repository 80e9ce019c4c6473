package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound reports a canonical key absent from the positions table.
// Distinct from a found position with zero outgoing moves.
var ErrNotFound = errors.New("position not found")

// PlyDelta is one half-move's contribution to the graph: both endpoint
// positions by canonical key, the SAN token connecting them, and the
// statistics merged into the from-position.
type PlyDelta struct {
	FromFEN   string
	Move      string
	ToFEN     string
	FromStats Stats
}

// GameDelta is one game's complete set of store mutations. FinalStats is
// merged into the last ply's to-position.
type GameDelta struct {
	Plies      []PlyDelta
	FinalStats Stats
}

// MoveRow is one outgoing edge joined with the statistics of the position
// the move leads to.
type MoveRow struct {
	Move  string
	ToFEN string
	Stats
}

// AddGame applies one game's mutations inside a single transaction:
// position and edge upserts per ply, a statistics merge into each
// from-position, and a final merge into the last to-position. A failure
// anywhere rolls the whole game back so no partial statistics survive.
func (s *Store) AddGame(g *GameDelta) error {
	if len(g.Plies) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin game transaction: %w", err)
	}

	var lastToID int64
	for _, ply := range g.Plies {
		fromID, err := upsertPosition(tx, ply.FromFEN)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		toID, err := upsertPosition(tx, ply.ToFEN)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := upsertMove(tx, fromID, toID, ply.Move); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := mergeStats(tx, fromID, ply.FromStats); err != nil {
			_ = tx.Rollback()
			return err
		}
		lastToID = toID
	}

	if err := mergeStats(tx, lastToID, g.FinalStats); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// UpsertPosition inserts the canonical key if new and returns the position
// id either way.
func (s *Store) UpsertPosition(fenKey string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	id, err := upsertPosition(tx, fenKey)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return id, tx.Commit()
}

func upsertPosition(tx *sql.Tx, fenKey string) (int64, error) {
	res, err := tx.Exec(`INSERT OR IGNORE INTO positions (fen) VALUES (?)`, fenKey)
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	// Conflict: the key already exists, fetch its id.
	var id int64
	if err := tx.QueryRow(`SELECT id FROM positions WHERE fen = ?`, fenKey).Scan(&id); err != nil {
		return 0, fmt.Errorf("fetch position id: %w", err)
	}
	return id, nil
}

func upsertMove(tx *sql.Tx, fromID, toID int64, move string) error {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO moves (from_position_id, to_position_id, move) VALUES (?, ?, ?)`,
		fromID, toID, move,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func mergeStats(tx *sql.Tx, positionID int64, delta Stats) error {
	_, err := tx.Exec(`
		INSERT INTO position_statistics (
			position_id, total_games, white_wins, black_wins, draws,
			total_player_elo, total_player_performance, last_played_date, game_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
			total_games = total_games + excluded.total_games,
			white_wins = white_wins + excluded.white_wins,
			black_wins = black_wins + excluded.black_wins,
			draws = draws + excluded.draws,
			total_player_elo = total_player_elo + excluded.total_player_elo,
			total_player_performance = total_player_performance + excluded.total_player_performance,
			last_played_date = MAX(last_played_date, excluded.last_played_date),
			game_ref = CASE
				WHEN excluded.last_played_date > last_played_date THEN excluded.game_ref
				ELSE game_ref
			END`,
		positionID,
		delta.TotalGames, delta.WhiteWins, delta.BlackWins, delta.Draws,
		delta.PlayerElo, delta.PlayerPerf, delta.LastPlayed, delta.GameRef,
	)
	if err != nil {
		return fmt.Errorf("merge statistics: %w", err)
	}
	return nil
}

// MergeStats merges delta into a position's statistics row in its own
// transaction.
func (s *Store) MergeStats(positionID int64, delta Stats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := mergeStats(tx, positionID, delta); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LookupPosition resolves a canonical key to its position id.
// Returns ErrNotFound when the key is absent.
func (s *Store) LookupPosition(fenKey string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM positions WHERE fen = ?`, fenKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, fenKey)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// PositionStats reads a position's statistics row, zero-valued when the
// position has no statistics yet.
func (s *Store) PositionStats(positionID int64) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
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

// MovesFrom returns all outgoing edges of a position joined with the
// statistics of each destination, busiest lines first.
func (s *Store) MovesFrom(positionID int64) ([]MoveRow, error) {
	rows, err := s.db.Query(`
		SELECT m.move, p.fen,
		       COALESCE(ps.total_games, 0), COALESCE(ps.white_wins, 0),
		       COALESCE(ps.black_wins, 0), COALESCE(ps.draws, 0),
		       COALESCE(ps.total_player_elo, 0), COALESCE(ps.total_player_performance, 0),
		       COALESCE(ps.last_played_date, ''), COALESCE(ps.game_ref, '')
		FROM moves m
		JOIN positions p ON p.id = m.to_position_id
		LEFT JOIN position_statistics ps ON ps.position_id = m.to_position_id
		WHERE m.from_position_id = ?
		ORDER BY ps.total_games DESC`,
		positionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoveRow
	for rows.Next() {
		var r MoveRow
		if err := rows.Scan(&r.Move, &r.ToFEN,
			&r.TotalGames, &r.WhiteWins, &r.BlackWins, &r.Draws,
			&r.PlayerElo, &r.PlayerPerf, &r.LastPlayed, &r.GameRef,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
