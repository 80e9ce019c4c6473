package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/isofarro/chess-opening-trees/internal/store"
)

const (
	keyStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	keyE4    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq -"
)

func TestTreeRoundTrip(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "tree.db"), store.DefaultBusyTimeoutMS)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	err = st.AddGame(&store.GameDelta{
		Plies: []store.PlyDelta{{
			FromFEN: keyStart, Move: "e4", ToFEN: keyE4,
			FromStats: store.Stats{TotalGames: 1, WhiteWins: 1, PlayerElo: 2400, LastPlayed: "2024-01-01", GameRef: "g1"},
		}},
		FinalStats: store.Stats{TotalGames: 1, WhiteWins: 1, PlayerElo: 2400, LastPlayed: "2024-01-01", GameRef: "g1"},
	})
	if err != nil {
		t.Fatalf("AddGame: %v", err)
	}

	var buf bytes.Buffer
	n, err := Tree(st, &buf)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if n != 2 {
		t.Errorf("exported %d records, want 2", n)
	}

	zr, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer zr.Close()

	var recs []Record
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("decoded %d records, want 2", len(recs))
	}

	start := recs[0]
	if start.FEN != keyStart || start.TotalGames != 1 || start.WhiteWins != 1 {
		t.Errorf("record[0] = %+v, want the start position with one white win", start)
	}
	if len(start.Moves) != 1 || start.Moves[0].Move != "e4" || start.Moves[0].FEN != keyE4 {
		t.Errorf("record[0].Moves = %+v, want one e4 edge", start.Moves)
	}
	if len(recs[1].Moves) != 0 {
		t.Errorf("leaf record has %d edges, want 0", len(recs[1].Moves))
	}
}
