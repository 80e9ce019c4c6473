package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/isofarro/chess-opening-trees/internal/store"
	"github.com/isofarro/chess-opening-trees/internal/tree"
)

const (
	keyStart = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq -"
	keyE4    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPPPPPP/RNBQKBNR b KQkq -"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tree.db"), store.DefaultBusyTimeoutMS)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	err = st.AddGame(&store.GameDelta{
		Plies: []store.PlyDelta{{
			FromFEN: keyStart, Move: "e4", ToFEN: keyE4,
			FromStats: store.Stats{TotalGames: 1, WhiteWins: 1, LastPlayed: "2024-01-01", GameRef: "g1"},
		}},
		FinalStats: store.Stats{TotalGames: 1, WhiteWins: 1, LastPlayed: "2024-01-01", GameRef: "g1"},
	})
	if err != nil {
		t.Fatalf("AddGame: %v", err)
	}

	registry := tree.NewRegistry(map[string]*tree.Tree{
		"masters": tree.New("masters", st),
	})
	return NewRouter(zerolog.Nop(), registry)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, testRouter(t), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
}

func TestListTrees(t *testing.T) {
	rec := get(t, testRouter(t), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d, want 200", rec.Code)
	}

	var trees []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &trees); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trees) != 1 || trees[0].Name != "masters" || trees[0].Path != "/masters/" {
		t.Errorf("trees = %+v, want [{masters /masters/}]", trees)
	}
}

func TestQueryPosition(t *testing.T) {
	h := testRouter(t)
	rec := get(t, h, "/masters/"+url.PathEscape(keyStart))
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		FEN   string `json:"fen"`
		Moves []struct {
			Move       string `json:"move"`
			TotalGames int64  `json:"total_games"`
		} `json:"moves"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.FEN != keyStart {
		t.Errorf("fen = %q, want %q", res.FEN, keyStart)
	}
	if len(res.Moves) != 1 || res.Moves[0].Move != "e4" || res.Moves[0].TotalGames != 1 {
		t.Errorf("moves = %+v, want one e4 with 1 game", res.Moves)
	}
}

func TestQueryErrors(t *testing.T) {
	h := testRouter(t)

	tests := []struct {
		path string
		want int
	}{
		{"/nosuchtree/" + url.PathEscape(keyStart), http.StatusNotFound},
		{"/masters/" + url.PathEscape(keyE4+" 0 1"), http.StatusOK},
		{"/masters/" + url.PathEscape("8/8/8/8/8/8/8/8 w - -"), http.StatusNotFound},
		{"/masters/" + url.PathEscape("garbage"), http.StatusBadRequest},
		{"/masters", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := get(t, h, tt.path)
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/masters/"+url.PathEscape(keyStart), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST = %d, want 405", rec.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	h := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-0042")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-0042" {
		t.Errorf("X-Request-ID = %q, want the caller's req-0042", got)
	}

	rec = get(t, h, "/healthz")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("no request id assigned when the caller sent none")
	}
}
