// Package fen normalizes FEN position strings into the canonical four-field
// keys the graph store indexes positions by.
package fen

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPosition reports a position string with fewer than the four
// mandatory FEN fields.
var ErrInvalidPosition = errors.New("invalid position")

// Canonicalize reduces a FEN string to its canonical four-field key:
// piece placement, side to move, castling rights, and en-passant target.
// Halfmove and fullmove counters are dropped. The en-passant field is
// rewritten to "-" unless a pawn of the side to move actually stands
// adjacent to the target file, so that move generators which always emit
// an en-passant square after a double push and those which only emit a
// capturable one produce the same key. Idempotent.
func Canonicalize(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) < 4 {
		return "", fmt.Errorf("%w: %q has %d fields, need 4", ErrInvalidPosition, raw, len(fields))
	}
	fields = fields[:4]
	if !enPassantPlayable(fields[0], fields[1], fields[3]) {
		fields[3] = "-"
	}
	return strings.Join(fields, " "), nil
}

// enPassantPlayable checks pseudo-legality of the en-passant target: a pawn
// of the side to move must occupy an adjacent file on the rank a capturing
// pawn would stand on. Check and pin legality are deliberately ignored; the
// same relaxed rule runs at ingest and query time so keys always agree.
func enPassantPlayable(placement, sideToMove, epSquare string) bool {
	if epSquare == "-" || len(epSquare) < 2 {
		return false
	}

	whiteToMove := sideToMove == "w"
	pawn := byte('p')
	captureRank := 4 // black pawns capture from rank 4 onto rank 3
	if whiteToMove {
		pawn = 'P'
		captureRank = 5 // white pawns capture from rank 5 onto rank 6
	}

	epFile := int(epSquare[0] - 'a')
	if epFile < 0 || epFile > 7 {
		return false
	}

	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return false
	}
	// Placement lists rank 8 first.
	row := expandRank(ranks[8-captureRank])

	if epFile > 0 && row[epFile-1] == pawn {
		return true
	}
	if epFile < 7 && row[epFile+1] == pawn {
		return true
	}
	return false
}

// expandRank decodes one run-length-encoded placement rank into exactly
// eight bytes, empty squares as spaces.
func expandRank(rle string) [8]byte {
	var row [8]byte
	for i := range row {
		row[i] = ' '
	}
	idx := 0
	for i := 0; i < len(rle) && idx < 8; i++ {
		c := rle[i]
		if c >= '1' && c <= '8' {
			idx += int(c - '0')
			continue
		}
		row[idx] = c
		idx++
	}
	return row
}
