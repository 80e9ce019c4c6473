package chess

import "github.com/freeeve/pgn/v3"

const (
	sanFiles = "abcdefgh"
	sanRanks = "12345678"
)

// moveToSAN renders mv as standard algebraic notation against the position
// it is played from. mv must be legal in pos.
func moveToSAN(pos *pgn.GameState, mv pgn.Mv) string {
	if mv.Flags == 4 {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	fromSq := int(mv.From)
	toSq := int(mv.To)
	fromFile := fromSq % 8
	fromRank := fromSq / 8
	toFile := toSq % 8
	toRank := toSq / 8

	piece := pos.PieceAt(mv.From)
	isPawn := piece == 'P' || piece == 'p'
	// Flags == 2 is an en passant capture; the target square is empty.
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2)

	var san string
	if isPawn {
		if isCapture {
			san = string(sanFiles[fromFile]) + "x" + string(sanFiles[toFile]) + string(sanRanks[toRank])
		} else {
			san = string(sanFiles[toFile]) + string(sanRanks[toRank])
		}
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
	} else {
		pieceChar := piece
		if piece >= 'a' && piece <= 'z' {
			pieceChar = piece - 32
		}
		san = string(pieceChar)

		// Another piece of the same type reaching the same square forces a
		// file, rank, or full-square disambiguator.
		for _, other := range pgn.GenerateLegalMoves(pos) {
			if other.To != mv.To || other.From == mv.From {
				continue
			}
			otherPiece := pos.PieceAt(other.From)
			if otherPiece >= 'a' && otherPiece <= 'z' {
				otherPiece = otherPiece - 32
			}
			if otherPiece != pieceChar {
				continue
			}
			otherFile := int(other.From) % 8
			otherRank := int(other.From) / 8
			switch {
			case fromFile != otherFile:
				san += string(sanFiles[fromFile])
			case fromRank != otherRank:
				san += string(sanRanks[fromRank])
			default:
				san += string(sanFiles[fromFile]) + string(sanRanks[fromRank])
			}
			break
		}

		if isCapture {
			san += "x"
		}
		san += string(sanFiles[toFile]) + string(sanRanks[toRank])
	}

	return san + checkSuffix(pos, mv)
}

// checkSuffix appends "+" or "#" by applying mv to a copy of pos.
func checkSuffix(pos *pgn.GameState, mv pgn.Mv) string {
	after := pos.Pack().Unpack()
	if after == nil {
		return ""
	}
	if err := pgn.ApplyMove(after, mv); err != nil {
		return ""
	}
	if !after.IsInCheck() {
		return ""
	}
	if len(pgn.GenerateLegalMoves(after)) == 0 {
		return "#"
	}
	return "+"
}
