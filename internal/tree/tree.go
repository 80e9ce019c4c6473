// Package tree resolves queried positions against one opening graph store
// and shapes the aggregated move statistics callers see.
package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/isofarro/chess-opening-trees/internal/fen"
	"github.com/isofarro/chess-opening-trees/internal/store"
)

// MoveStats is one candidate move out of a queried position, with the
// aggregated statistics of the position it leads to. Rating and
// Performance are per-game averages; the raw sums stay internal.
type MoveStats struct {
	Move           string `json:"move"`
	FEN            string `json:"fen"`
	TotalGames     int64  `json:"total_games"`
	WhiteWins      int64  `json:"white_wins"`
	Draws          int64  `json:"draws"`
	BlackWins      int64  `json:"black_wins"`
	Rating         int64  `json:"rating"`
	Performance    int64  `json:"performance"`
	LastPlayedDate string `json:"last_played_date"`
	GameRef        string `json:"game_ref"`
}

// Result is the response to a position query.
type Result struct {
	FEN   string      `json:"fen"`
	Moves []MoveStats `json:"moves"`
}

// Tree serves queries against one opening graph store.
type Tree struct {
	name string
	st   *store.Store
}

// New wraps st as a named queryable tree.
func New(name string, st *store.Store) *Tree {
	return &Tree{name: name, st: st}
}

// Name returns the tree's registry name.
func (t *Tree) Name() string { return t.name }

// Store exposes the underlying graph store.
func (t *Tree) Store() *store.Store { return t.st }

// QueryPosition canonicalizes raw and returns the moves played from that
// position, most games first. Returns store.ErrNotFound when the key is
// absent, which is distinct from a known position with no moves.
//
// Stores built before en-passant normalization may hold the same logical
// position under two keys: one with the en-passant target and one with
// "-". When the canonical key carries a target, the "-" twin's moves are
// unioned in by token. On a token collision the en-passant-aware row wins
// wholesale; the two rows' statistics for what is logically one move are
// left unreconciled because there is no defined rule for combining them.
func (t *Tree) QueryPosition(raw string) (*Result, error) {
	key, err := fen.Canonicalize(raw)
	if err != nil {
		return nil, err
	}

	id, err := t.st.LookupPosition(key)
	if err != nil {
		return nil, err
	}
	rows, err := t.st.MovesFrom(id)
	if err != nil {
		return nil, fmt.Errorf("fetch moves: %w", err)
	}

	if alt, ok := enPassantTwin(key); ok {
		altID, err := t.st.LookupPosition(alt)
		switch {
		case err == nil:
			altRows, err := t.st.MovesFrom(altID)
			if err != nil {
				return nil, fmt.Errorf("fetch en-passant twin moves: %w", err)
			}
			rows = unionByMove(rows, altRows)
		case errors.Is(err, store.ErrNotFound):
			// No twin stored; nothing to union.
		default:
			return nil, fmt.Errorf("look up en-passant twin: %w", err)
		}
	}

	res := &Result{FEN: key, Moves: make([]MoveStats, 0, len(rows))}
	for _, r := range rows {
		m := MoveStats{
			Move:           r.Move,
			FEN:            r.ToFEN,
			TotalGames:     r.TotalGames,
			WhiteWins:      r.WhiteWins,
			Draws:          r.Draws,
			BlackWins:      r.BlackWins,
			LastPlayedDate: r.LastPlayed,
			GameRef:        r.GameRef,
		}
		if r.TotalGames > 0 {
			m.Rating = r.PlayerElo / r.TotalGames
			m.Performance = r.PlayerPerf / r.TotalGames
		}
		res.Moves = append(res.Moves, m)
	}
	return res, nil
}

// enPassantTwin returns the same key with the en-passant field forced to
// "-", and whether that differs from the input.
func enPassantTwin(key string) (string, bool) {
	fields := strings.Fields(key)
	if len(fields) != 4 || fields[3] == "-" {
		return "", false
	}
	fields[3] = "-"
	return strings.Join(fields, " "), true
}

// unionByMove merges two move lists by token, primary rows winning on
// conflict, then re-sorts by total games.
func unionByMove(primary, secondary []store.MoveRow) []store.MoveRow {
	seen := make(map[string]bool, len(primary))
	for _, r := range primary {
		seen[r.Move] = true
	}
	merged := primary
	for _, r := range secondary {
		if !seen[r.Move] {
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TotalGames > merged[j].TotalGames
	})
	return merged
}
