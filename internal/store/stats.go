package store

// Stats is one position's aggregated outcome snapshot. The counter fields
// always satisfy TotalGames == WhiteWins + BlackWins + Draws. PlayerElo and
// PlayerPerf sum the rating and derived performance rating of whichever
// side the ingestion attributed the position to, so dividing either by
// TotalGames yields an average.
type Stats struct {
	TotalGames int64
	WhiteWins  int64
	BlackWins  int64
	Draws      int64
	PlayerElo  int64
	PlayerPerf int64
	LastPlayed string // ISO-8601, lexicographically comparable; "" when unknown
	GameRef    string // identifier of the most recently contributing game
}

// Merge combines two statistics snapshots. Counters add, LastPlayed takes
// the maximum, and GameRef follows whichever operand carries the greater
// date. Commutative and associative on the counters.
func (s Stats) Merge(o Stats) Stats {
	out := Stats{
		TotalGames: s.TotalGames + o.TotalGames,
		WhiteWins:  s.WhiteWins + o.WhiteWins,
		BlackWins:  s.BlackWins + o.BlackWins,
		Draws:      s.Draws + o.Draws,
		PlayerElo:  s.PlayerElo + o.PlayerElo,
		PlayerPerf: s.PlayerPerf + o.PlayerPerf,
		LastPlayed: s.LastPlayed,
		GameRef:    s.GameRef,
	}
	if o.LastPlayed > s.LastPlayed {
		out.LastPlayed = o.LastPlayed
		out.GameRef = o.GameRef
	}
	return out
}
