// Package ingest turns PGN game streams into opening graph mutations:
// one transaction per game, a ledger entry per file, and idempotent
// re-import protection keyed on (filename, content hash).
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/isofarro/chess-opening-trees/internal/chess"
	"github.com/isofarro/chess-opening-trees/internal/fen"
	"github.com/isofarro/chess-opening-trees/internal/store"
)

// ErrAlreadyImported signals that a file with identical name and content
// hash is already in the ledger. A deliberate skip, not a failure; callers
// must not retry the import.
var ErrAlreadyImported = errors.New("file already imported")

// Config bounds what gets ingested.
type Config struct {
	MaxPly    int // plies kept per game, default 40
	MinRating int // both players must be rated at least this, default 0
}

// Importer feeds games from source files into one store.
type Importer struct {
	st  *store.Store
	cfg Config
	log zerolog.Logger

	// newSource is swappable so tests can feed synthetic games.
	newSource func(path string) chess.Source
}

// New creates an Importer writing to st.
func New(st *store.Store, cfg Config, logger zerolog.Logger) *Importer {
	if cfg.MaxPly == 0 {
		cfg.MaxPly = 40
	}
	return &Importer{
		st:        st,
		cfg:       cfg,
		log:       logger,
		newSource: chess.NewPGNSource,
	}
}

// ImportFile ingests every game in one file. A game that fails to derive
// or apply is logged and skipped; it never aborts the rest of the file.
// If at least one game lands, a ledger entry is appended with the declared
// total game count when a game carried one, otherwise the ingested count.
// Returns ErrAlreadyImported when the (filename, hash) pair is in the
// ledger already.
func (i *Importer) ImportFile(ctx context.Context, path string) error {
	meta, err := fileIdentity(path)
	if err != nil {
		return fmt.Errorf("file identity: %w", err)
	}

	existing, err := i.st.FindImport(meta.Filename, meta.FileHash)
	if err != nil {
		return fmt.Errorf("check import ledger: %w", err)
	}
	if existing != nil {
		i.log.Info().
			Str("file", meta.Name).
			Str("imported", existing.ImportDate).
			Msg("skipping file, already imported")
		return fmt.Errorf("%w: %s on %s", ErrAlreadyImported, meta.Name, existing.ImportDate)
	}

	startTime := time.Now()
	var gamesIngested, gamesSkipped int64
	declaredTotal := 0
	lastLog := time.Now()

	src := i.newSource(path)

	stopped := false
gameLoop:
	for game := range src.Games() {
		select {
		case <-ctx.Done():
			if !stopped {
				src.Stop()
				stopped = true
			}
			break gameLoop
		default:
		}

		if game.DeclaredTotal > 0 {
			declaredTotal = game.DeclaredTotal
		}

		if game.WhiteElo < i.cfg.MinRating || game.BlackElo < i.cfg.MinRating {
			gamesSkipped++
			continue
		}

		delta, err := i.deriveGame(game)
		if err != nil {
			i.log.Warn().Err(err).Str("ref", game.Ref).Msg("game derivation failed, skipping")
			gamesSkipped++
			continue
		}
		if err := i.st.AddGame(delta); err != nil {
			i.log.Warn().Err(err).Str("ref", game.Ref).Msg("game write failed, skipping")
			gamesSkipped++
			continue
		}
		gamesIngested++

		if time.Since(lastLog) > 10*time.Second {
			elapsed := time.Since(startTime)
			i.log.Info().
				Str("file", meta.Name).
				Int64("games", gamesIngested).
				Int64("skipped", gamesSkipped).
				Float64("games_per_sec", float64(gamesIngested)/elapsed.Seconds()).
				Msg("ingest progress")
			lastLog = time.Now()
		}
	}

	srcErr := src.Err()
	if srcErr != nil {
		i.log.Error().Err(srcErr).Str("file", meta.Name).Msg("parse error")
	}

	// A partially ingested file still earns its ledger entry; the hash
	// changes if the file is ever repaired, so re-import stays possible.
	if gamesIngested > 0 {
		total := gamesIngested
		if declaredTotal > 0 {
			total = int64(declaredTotal)
		}
		rec := &store.ImportRecord{
			Filename:     meta.Filename,
			Name:         meta.Name,
			LastModified: meta.LastModified,
			FileSize:     meta.FileSize,
			FileHash:     meta.FileHash,
			TotalGames:   total,
		}
		if err := i.st.RecordImport(rec); err != nil {
			return fmt.Errorf("record import: %w", err)
		}
	}

	i.log.Info().
		Str("file", meta.Name).
		Int64("games", gamesIngested).
		Int64("skipped", gamesSkipped).
		Dur("elapsed", time.Since(startTime)).
		Msg("file ingest complete")

	if err := ctx.Err(); err != nil {
		return err
	}
	return srcErr
}

// deriveGame truncates a game to the configured ply limit, canonicalizes
// every endpoint, and computes the per-position statistics deltas.
func (i *Importer) deriveGame(game *chess.Game) (*store.GameDelta, error) {
	var whiteWins, blackWins, draws int64
	switch game.Result {
	case "1-0":
		whiteWins = 1
	case "0-1":
		blackWins = 1
	case "1/2-1/2":
		draws = 1
	}

	whitePerf, blackPerf := performanceRatings(game.Result, game.WhiteElo, game.BlackElo)
	date := formatPGNDate(game.Date)

	plies := game.Plies
	if len(plies) > i.cfg.MaxPly {
		plies = plies[:i.cfg.MaxPly]
	}

	delta := &store.GameDelta{Plies: make([]store.PlyDelta, 0, len(plies))}
	for _, ply := range plies {
		fromKey, err := fen.Canonicalize(ply.FromFEN)
		if err != nil {
			return nil, err
		}
		toKey, err := fen.Canonicalize(ply.ToFEN)
		if err != nil {
			return nil, err
		}

		// The from-position is credited to the side that is not on move
		// there, i.e. the player who arrived in it.
		elo, perf := game.BlackElo, blackPerf
		if sideToMove(fromKey) == "b" {
			elo, perf = game.WhiteElo, whitePerf
		}

		delta.Plies = append(delta.Plies, store.PlyDelta{
			FromFEN: fromKey,
			Move:    ply.Move,
			ToFEN:   toKey,
			FromStats: store.Stats{
				TotalGames: 1,
				WhiteWins:  whiteWins,
				BlackWins:  blackWins,
				Draws:      draws,
				PlayerElo:  int64(elo),
				PlayerPerf: int64(perf),
				LastPlayed: date,
				GameRef:    game.Ref,
			},
		})
	}

	if len(delta.Plies) == 0 {
		return nil, errors.New("no usable plies")
	}

	// The final position is credited to the side on move there.
	finalKey := delta.Plies[len(delta.Plies)-1].ToFEN
	elo, perf := game.BlackElo, blackPerf
	if sideToMove(finalKey) == "w" {
		elo, perf = game.WhiteElo, whitePerf
	}
	delta.FinalStats = store.Stats{
		TotalGames: 1,
		WhiteWins:  whiteWins,
		BlackWins:  blackWins,
		Draws:      draws,
		PlayerElo:  int64(elo),
		PlayerPerf: int64(perf),
		LastPlayed: date,
		GameRef:    game.Ref,
	}

	return delta, nil
}

// performanceRatings derives each side's single-game performance rating:
// a win counts as the greater of own rating and opponent+400, a loss as
// the lesser of own rating and opponent-400, anything else as the
// opponent's rating.
func performanceRatings(result string, whiteElo, blackElo int) (white, black int) {
	switch result {
	case "1-0":
		white = max(whiteElo, blackElo+400)
		black = min(blackElo, whiteElo-400)
	case "0-1":
		white = min(whiteElo, blackElo-400)
		black = max(blackElo, whiteElo+400)
	default:
		white = blackElo
		black = whiteElo
	}
	return white, black
}

// sideToMove pulls the side-to-move field out of a canonical key.
func sideToMove(canonicalFEN string) string {
	fields := strings.Fields(canonicalFEN)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

type fileMeta struct {
	Filename     string
	Name         string
	LastModified string
	FileSize     int64
	FileHash     string
}

// fileIdentity computes a file's ledger identity: sha256 content hash,
// size, and modification time. Computed once per import, before parsing.
func fileIdentity(path string) (*fileMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return &fileMeta{
		Filename:     path,
		Name:         filepath.Base(path),
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
		FileSize:     info.Size(),
		FileHash:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}
