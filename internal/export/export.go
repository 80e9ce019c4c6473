// Package export streams an opening tree to a portable line-oriented
// dump. Each line is one JSON object describing a position, its
// aggregated statistics, and its outgoing moves, written through a zstd
// stream so large trees stay manageable on disk.
package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/isofarro/chess-opening-trees/internal/store"
)

// Record is one exported position with its outgoing edges.
type Record struct {
	FEN        string `json:"fen"`
	TotalGames int64  `json:"total_games"`
	WhiteWins  int64  `json:"white_wins"`
	Draws      int64  `json:"draws"`
	BlackWins  int64  `json:"black_wins"`
	PlayerElo  int64  `json:"total_player_elo,omitempty"`
	PlayerPerf int64  `json:"total_player_performance,omitempty"`
	LastPlayed string `json:"last_played_date,omitempty"`
	GameRef    string `json:"game_ref,omitempty"`
	Moves      []Edge `json:"moves,omitempty"`
}

// Edge is one outgoing move from an exported position.
type Edge struct {
	Move string `json:"move"`
	FEN  string `json:"fen"`
}

// Tree writes every position in st to w as zstd-compressed JSON lines,
// ordered by position id. Returns the number of records written.
func Tree(st *store.Store, w io.Writer) (int64, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return 0, err
	}

	n, err := writeRecords(st.DB(), zw)
	if err != nil {
		zw.Close()
		return n, err
	}
	return n, zw.Close()
}

func writeRecords(db *sql.DB, w io.Writer) (int64, error) {
	rows, err := db.Query(`
		SELECT p.id, p.fen,
		       COALESCE(ps.total_games, 0), COALESCE(ps.white_wins, 0),
		       COALESCE(ps.draws, 0), COALESCE(ps.black_wins, 0),
		       COALESCE(ps.total_player_elo, 0), COALESCE(ps.total_player_performance, 0),
		       COALESCE(ps.last_played_date, ''), COALESCE(ps.game_ref, '')
		FROM positions p
		LEFT JOIN position_statistics ps ON ps.position_id = p.id
		ORDER BY p.id`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	var written int64
	for rows.Next() {
		var id int64
		var rec Record
		if err := rows.Scan(&id, &rec.FEN,
			&rec.TotalGames, &rec.WhiteWins, &rec.Draws, &rec.BlackWins,
			&rec.PlayerElo, &rec.PlayerPerf, &rec.LastPlayed, &rec.GameRef); err != nil {
			return written, err
		}

		rec.Moves, err = edgesFrom(db, id)
		if err != nil {
			return written, fmt.Errorf("edges for position %d: %w", id, err)
		}

		if err := enc.Encode(&rec); err != nil {
			return written, err
		}
		written++
	}
	return written, rows.Err()
}

func edgesFrom(db *sql.DB, positionID int64) ([]Edge, error) {
	rows, err := db.Query(`
		SELECT m.move, p.fen
		FROM moves m
		JOIN positions p ON p.id = m.to_position_id
		WHERE m.from_position_id = ?
		ORDER BY m.move`, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.Move, &e.FEN); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
