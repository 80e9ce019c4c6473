package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/isofarro/chess-opening-trees/internal/chess"
	"github.com/isofarro/chess-opening-trees/internal/store"
)

const (
	rawStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	rawE4    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq e3 0 1"
	rawE4E5  = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPPPPPP/RNBQKBNR w KQkq e6 0 2"

	keyStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	keyE4    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq -"
	keyE4E5  = "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPPPPPP/RNBQKBNR w KQkq -"
)

// fakeSource feeds a fixed game list through the Source interface.
type fakeSource struct {
	games   []*chess.Game
	err     error
	ch      chan *chess.Game
	stopped bool
}

func (f *fakeSource) Games() <-chan *chess.Game {
	f.ch = make(chan *chess.Game, len(f.games))
	for _, g := range f.games {
		f.ch <- g
	}
	close(f.ch)
	return f.ch
}

func (f *fakeSource) Err() error { return f.err }
func (f *fakeSource) Stop()      { f.stopped = true }

func testImporter(t *testing.T, cfg Config, games ...*chess.Game) (*Importer, *store.Store, string) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "tree.db"), store.DefaultBusyTimeoutMS)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	pgnPath := filepath.Join(dir, "games.pgn")
	if err := os.WriteFile(pgnPath, []byte("synthetic\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	imp := New(st, cfg, zerolog.Nop())
	imp.newSource = func(string) chess.Source {
		return &fakeSource{games: games}
	}
	return imp, st, pgnPath
}

func oneGame() *chess.Game {
	return &chess.Game{
		Plies: []chess.Ply{
			{FromFEN: rawStart, Move: "e4", ToFEN: rawE4},
			{FromFEN: rawE4, Move: "e5", ToFEN: rawE4E5},
		},
		Result:   "1-0",
		WhiteElo: 2400,
		BlackElo: 2000,
		Date:     "2024.03.15",
		Ref:      "https://example.com/g1",
	}
}

func TestImportFileBuildsGraph(t *testing.T) {
	imp, st, path := testImporter(t, Config{}, oneGame())

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	positions, err := st.PositionCount()
	if err != nil {
		t.Fatalf("PositionCount: %v", err)
	}
	if positions != 3 {
		t.Errorf("PositionCount = %d, want 3", positions)
	}
	moves, err := st.MoveCount()
	if err != nil {
		t.Fatalf("MoveCount: %v", err)
	}
	if moves != 2 {
		t.Errorf("MoveCount = %d, want 2", moves)
	}

	// Keys land canonicalized: counters gone, unplayable en passant gone.
	if _, err := st.LookupPosition(keyE4); err != nil {
		t.Errorf("canonical key missing: %v", err)
	}
	if _, err := st.LookupPosition(rawE4); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("raw key stored: got %v, want ErrNotFound", err)
	}
}

func TestImportFileAttribution(t *testing.T) {
	imp, st, path := testImporter(t, Config{}, oneGame())

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	// White won at 2400 vs 2000: white performance 2400, black 2000-400.
	wantWhitePerf, wantBlackPerf := int64(2400), int64(1600)

	// Start position: white to move, so it is credited to black.
	id, err := st.LookupPosition(keyStart)
	if err != nil {
		t.Fatalf("LookupPosition: %v", err)
	}
	got, err := st.PositionStats(id)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if got.PlayerElo != 2000 || got.PlayerPerf != wantBlackPerf {
		t.Errorf("start position credited elo=%d perf=%d, want black's 2000/%d",
			got.PlayerElo, got.PlayerPerf, wantBlackPerf)
	}
	if got.WhiteWins != 1 || got.TotalGames != 1 {
		t.Errorf("start position outcome = %+v, want one white win", got)
	}
	if got.LastPlayed != "2024-03-15" {
		t.Errorf("LastPlayed = %q, want 2024-03-15", got.LastPlayed)
	}

	// After 1.e4: black to move, credited to white.
	id, err = st.LookupPosition(keyE4)
	if err != nil {
		t.Fatalf("LookupPosition: %v", err)
	}
	got, err = st.PositionStats(id)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if got.PlayerElo != 2400 || got.PlayerPerf != wantWhitePerf {
		t.Errorf("position after 1.e4 credited elo=%d perf=%d, want white's 2400/%d",
			got.PlayerElo, got.PlayerPerf, wantWhitePerf)
	}

	// Final position: white to move there, so the final merge credits white.
	id, err = st.LookupPosition(keyE4E5)
	if err != nil {
		t.Fatalf("LookupPosition: %v", err)
	}
	got, err = st.PositionStats(id)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if got.PlayerElo != 2400 || got.PlayerPerf != wantWhitePerf {
		t.Errorf("final position credited elo=%d perf=%d, want white's 2400/%d",
			got.PlayerElo, got.PlayerPerf, wantWhitePerf)
	}
}

func TestImportFileAlreadyImported(t *testing.T) {
	imp, st, path := testImporter(t, Config{}, oneGame())

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("first ImportFile: %v", err)
	}
	before, err := st.PositionStats(1)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}

	err = imp.ImportFile(context.Background(), path)
	if !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("second ImportFile: got %v, want ErrAlreadyImported", err)
	}

	after, err := st.PositionStats(1)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if before != after {
		t.Errorf("re-import changed statistics: %+v -> %+v", before, after)
	}
}

func TestImportFileModifiedFileReimports(t *testing.T) {
	imp, st, path := testImporter(t, Config{}, oneGame())

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	// Same path, new content hash: the ledger must let it through.
	if err := os.WriteFile(path, []byte("synthetic v2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("re-import after modification: %v", err)
	}

	id, err := st.LookupPosition(keyStart)
	if err != nil {
		t.Fatalf("LookupPosition: %v", err)
	}
	got, err := st.PositionStats(id)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if got.TotalGames != 2 {
		t.Errorf("TotalGames = %d, want 2 after two imports", got.TotalGames)
	}
}

func TestImportFileMinRating(t *testing.T) {
	low := oneGame()
	low.BlackElo = 1500
	imp, st, path := testImporter(t, Config{MinRating: 2000}, low)

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	positions, err := st.PositionCount()
	if err != nil {
		t.Fatalf("PositionCount: %v", err)
	}
	if positions != 0 {
		t.Errorf("PositionCount = %d, want 0 when the only game is under-rated", positions)
	}
}

func TestImportFileMaxPly(t *testing.T) {
	imp, st, path := testImporter(t, Config{MaxPly: 1}, oneGame())

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	moves, err := st.MoveCount()
	if err != nil {
		t.Fatalf("MoveCount: %v", err)
	}
	if moves != 1 {
		t.Errorf("MoveCount = %d, want 1 with a one-ply limit", moves)
	}
	// The truncation point becomes the final position and still gets the
	// game's outcome merged in.
	id, err := st.LookupPosition(keyE4)
	if err != nil {
		t.Fatalf("LookupPosition: %v", err)
	}
	got, err := st.PositionStats(id)
	if err != nil {
		t.Fatalf("PositionStats: %v", err)
	}
	if got.TotalGames != 1 || got.WhiteWins != 1 {
		t.Errorf("truncated final stats = %+v, want one white win", got)
	}
}

func TestImportFileDeclaredTotal(t *testing.T) {
	g := oneGame()
	g.DeclaredTotal = 12345
	imp, st, path := testImporter(t, Config{}, g)

	if err := imp.ImportFile(context.Background(), path); err != nil {
		t.Fatalf("ImportFile: %v", err)
	}

	var total int64
	err := st.DB().QueryRow(`SELECT total_games FROM imported_files`).Scan(&total)
	if err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if total != 12345 {
		t.Errorf("ledger total_games = %d, want the declared 12345", total)
	}
}

func TestPerformanceRatings(t *testing.T) {
	tests := []struct {
		result               string
		whiteElo, blackElo   int
		wantWhite, wantBlack int
	}{
		{"1-0", 2400, 2000, 2400, 1600},
		{"1-0", 2000, 2400, 2800, 1600},
		{"0-1", 2400, 2000, 1600, 2800},
		{"0-1", 2000, 2400, 1600, 2400},
		{"1/2-1/2", 2400, 2000, 2000, 2400},
		{"*", 2400, 2000, 2000, 2400},
	}
	for _, tt := range tests {
		white, black := performanceRatings(tt.result, tt.whiteElo, tt.blackElo)
		if white != tt.wantWhite || black != tt.wantBlack {
			t.Errorf("performanceRatings(%q, %d, %d) = %d, %d; want %d, %d",
				tt.result, tt.whiteElo, tt.blackElo, white, black, tt.wantWhite, tt.wantBlack)
		}
	}
}
