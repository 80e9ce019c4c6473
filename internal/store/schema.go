package store

// schemaVersion is the current schema version. Bump this and add a
// migration when the schema changes.
const schemaVersion = 1

// migrations maps schema version to the SQL that brings the previous
// version up to it. Applied in order inside runMigrations.
var migrations = map[int]string{
	1: `
	-- Positions keyed by canonical FEN (first four fields, en passant
	-- normalized).
	CREATE TABLE IF NOT EXISTS positions (
		id  INTEGER PRIMARY KEY AUTOINCREMENT,
		fen TEXT NOT NULL UNIQUE
	);

	-- Directed move edges between positions, one row per distinct
	-- (from, to, SAN) triple.
	CREATE TABLE IF NOT EXISTS moves (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		from_position_id INTEGER NOT NULL REFERENCES positions(id),
		to_position_id   INTEGER NOT NULL REFERENCES positions(id),
		move             TEXT NOT NULL,
		UNIQUE(from_position_id, to_position_id, move)
	);
	CREATE INDEX IF NOT EXISTS idx_moves_from ON moves(from_position_id);
	CREATE INDEX IF NOT EXISTS idx_moves_to ON moves(to_position_id);

	-- Aggregated outcomes per position, merged game by game.
	CREATE TABLE IF NOT EXISTS position_statistics (
		position_id              INTEGER PRIMARY KEY REFERENCES positions(id),
		total_games              INTEGER NOT NULL DEFAULT 0,
		white_wins               INTEGER NOT NULL DEFAULT 0,
		black_wins               INTEGER NOT NULL DEFAULT 0,
		draws                    INTEGER NOT NULL DEFAULT 0,
		total_player_elo         INTEGER NOT NULL DEFAULT 0,
		total_player_performance INTEGER NOT NULL DEFAULT 0,
		last_played_date         TEXT NOT NULL DEFAULT '',
		game_ref                 TEXT NOT NULL DEFAULT ''
	);

	-- Append-only ledger of ingested files, keyed by name and content hash.
	CREATE TABLE IF NOT EXISTS imported_files (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		filename      TEXT NOT NULL,
		name          TEXT NOT NULL,
		last_modified TEXT NOT NULL DEFAULT '',
		file_size     INTEGER NOT NULL DEFAULT 0,
		file_hash     TEXT NOT NULL,
		total_games   INTEGER NOT NULL DEFAULT 0,
		import_date   TEXT NOT NULL DEFAULT '',
		UNIQUE(filename, file_hash)
	);
	`,
}
