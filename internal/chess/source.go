// Package chess is the boundary to the chess-rules engine. The core never
// computes move legality itself; it consumes streams of replayed games,
// each ply already resolved to (position-before, SAN token, position-after)
// FEN strings, plus the header metadata ingestion needs.
package chess

// Ply is one half-move of a replayed game. The FEN strings are raw
// six-field FENs; canonicalization happens downstream.
type Ply struct {
	FromFEN string
	Move    string // SAN token
	ToFEN   string
}

// Game is one standard-rules game ready for ingestion. Variant games never
// reach this type; the source skips them.
type Game struct {
	Plies    []Ply
	Result   string // "1-0", "0-1", "1/2-1/2", or "*" when unknown
	WhiteElo int    // 0 when the header is missing or unparseable
	BlackElo int
	Date     string // raw header value, e.g. "2024.03.15"
	Ref      string // game identifier, e.g. the Site URL
	// DeclaredTotal carries an optional collection-level game count some
	// exporters stamp on their games. 0 when absent.
	DeclaredTotal int
}

// Source streams games from one input. Consumers range over Games until it
// closes, then check Err. Stop aborts parsing early; the consumer must
// still drain the channel.
type Source interface {
	Games() <-chan *Game
	Err() error
	Stop()
}
