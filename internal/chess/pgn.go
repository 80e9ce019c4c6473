package chess

import (
	"strconv"
	"sync"

	"github.com/freeeve/pgn/v3"
)

// pgnSource adapts the pgn library's streaming parser to the Source
// contract, replaying each game's moves into per-ply FEN triples.
// Handles .pgn and .pgn.zst inputs; the parser decompresses transparently.
type pgnSource struct {
	out  chan *Game
	quit chan struct{}

	mu  sync.Mutex
	err error

	once sync.Once
}

// NewPGNSource streams standard-rules games from a PGN file. Games with a
// Variant header or a non-initial starting position (SetUp/FEN headers)
// are skipped; a game whose move text stops replaying cleanly is truncated
// at the last good ply rather than dropped.
func NewPGNSource(path string) Source {
	s := &pgnSource{
		out:  make(chan *Game, 16),
		quit: make(chan struct{}),
	}

	parser := pgn.Games(path)

	go func() {
		defer close(s.out)
		for game := range parser.Games {
			g := convertGame(game)
			if g == nil {
				continue
			}
			select {
			case s.out <- g:
			case <-s.quit:
				parser.Stop()
				// Drain so the parser goroutine can finish.
				for range parser.Games {
				}
				return
			}
		}
		s.mu.Lock()
		s.err = parser.Err()
		s.mu.Unlock()
	}()

	return s
}

func (s *pgnSource) Games() <-chan *Game { return s.out }

func (s *pgnSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pgnSource) Stop() {
	s.once.Do(func() { close(s.quit) })
}

// convertGame replays one parsed game from the starting position and
// collects per-ply FEN triples. Returns nil for games the core must not
// see (variants, custom starting positions, empty move lists).
func convertGame(game *pgn.Game) *Game {
	if _, ok := game.Tags["Variant"]; ok {
		return nil
	}
	if _, ok := game.Tags["SetUp"]; ok {
		return nil
	}
	if _, ok := game.Tags["FEN"]; ok {
		return nil
	}

	pos := pgn.NewStartingPosition()
	plies := make([]Ply, 0, len(game.Moves))
	for _, mv := range game.Moves {
		fromFEN := pos.ToFEN()
		san := moveToSAN(pos, mv)
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
		plies = append(plies, Ply{FromFEN: fromFEN, Move: san, ToFEN: pos.ToFEN()})
	}
	if len(plies) == 0 {
		return nil
	}

	ref := game.Tags["Site"]
	if ref == "" {
		ref = game.Tags["Event"]
	}

	return &Game{
		Plies:         plies,
		Result:        resultTag(game.Tags["Result"]),
		WhiteElo:      parseElo(game.Tags["WhiteElo"]),
		BlackElo:      parseElo(game.Tags["BlackElo"]),
		Date:          game.Tags["Date"],
		Ref:           ref,
		DeclaredTotal: parseDeclaredTotal(game.Tags["TotalGames"]),
	}
}

func resultTag(s string) string {
	switch s {
	case "1-0", "0-1", "1/2-1/2":
		return s
	default:
		return "*"
	}
}

func parseElo(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}

func parseDeclaredTotal(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
