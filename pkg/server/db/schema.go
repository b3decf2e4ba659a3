package db

// schemaStatements create the normalized game tables. Enums are TEXT under
// sqlite; uniqueness constraints carry the structural invariants (one bid per
// seat per round, one play per seat per trick, and so on).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		state TEXT NOT NULL DEFAULT 'LOBBY',
		name TEXT NOT NULL DEFAULT '',
		join_code TEXT UNIQUE,
		current_round INTEGER,
		current_trick_no INTEGER NOT NULL DEFAULT 0,
		dealer_pos_start INTEGER,
		rng_seed INTEGER,
		visibility TEXT NOT NULL DEFAULT 'PRIVATE',
		created_by TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS game_players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		seat INTEGER,
		kind TEXT NOT NULL DEFAULT 'HUMAN',
		user_id TEXT,
		ai_profile_id INTEGER,
		original_user_id TEXT,
		display_name TEXT NOT NULL DEFAULT '',
		is_ready BOOLEAN NOT NULL DEFAULT FALSE,
		role TEXT NOT NULL DEFAULT 'PLAYER',
		UNIQUE (game_id, seat)
	)`,
	`CREATE TABLE IF NOT EXISTS game_rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		round_no INTEGER NOT NULL,
		hand_size INTEGER NOT NULL,
		dealer_pos INTEGER NOT NULL,
		trump TEXT,
		completed_at TIMESTAMP,
		UNIQUE (game_id, round_no)
	)`,
	`CREATE TABLE IF NOT EXISTS round_hands (
		round_id INTEGER NOT NULL REFERENCES game_rounds(id) ON DELETE CASCADE,
		seat INTEGER NOT NULL,
		cards_json TEXT NOT NULL,
		UNIQUE (round_id, seat)
	)`,
	`CREATE TABLE IF NOT EXISTS round_bids (
		round_id INTEGER NOT NULL REFERENCES game_rounds(id) ON DELETE CASCADE,
		seat INTEGER NOT NULL,
		bid_value INTEGER NOT NULL,
		bid_order INTEGER NOT NULL,
		UNIQUE (round_id, seat),
		UNIQUE (round_id, bid_order)
	)`,
	`CREATE TABLE IF NOT EXISTS round_tricks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round_id INTEGER NOT NULL REFERENCES game_rounds(id) ON DELETE CASCADE,
		trick_no INTEGER NOT NULL,
		lead_suit TEXT NOT NULL,
		winner_seat INTEGER,
		UNIQUE (round_id, trick_no)
	)`,
	`CREATE TABLE IF NOT EXISTS trick_plays (
		trick_id INTEGER NOT NULL REFERENCES round_tricks(id) ON DELETE CASCADE,
		seat INTEGER NOT NULL,
		card_json TEXT NOT NULL,
		play_order INTEGER NOT NULL,
		played_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (trick_id, seat),
		UNIQUE (trick_id, play_order)
	)`,
	`CREATE TABLE IF NOT EXISTS round_scores (
		round_id INTEGER NOT NULL REFERENCES game_rounds(id) ON DELETE CASCADE,
		seat INTEGER NOT NULL,
		bid INTEGER NOT NULL,
		tricks_won INTEGER NOT NULL,
		bid_met BOOLEAN NOT NULL,
		base INTEGER NOT NULL,
		bonus INTEGER NOT NULL,
		round_score INTEGER NOT NULL,
		total_after INTEGER NOT NULL,
		UNIQUE (round_id, seat)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		registry_name TEXT NOT NULL,
		registry_version TEXT NOT NULL DEFAULT '',
		variant TEXT NOT NULL DEFAULT 'default',
		display_name TEXT NOT NULL,
		memory_level INTEGER,
		config_json TEXT,
		UNIQUE (registry_name, variant)
	)`,
	`CREATE TABLE IF NOT EXISTS ai_overrides (
		game_player_id INTEGER PRIMARY KEY REFERENCES game_players(id) ON DELETE CASCADE,
		name TEXT,
		memory_level INTEGER,
		config_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_game_players_game ON game_players(game_id)`,
	`CREATE INDEX IF NOT EXISTS idx_game_rounds_game ON game_rounds(game_id)`,
	`CREATE INDEX IF NOT EXISTS idx_round_tricks_round ON round_tricks(round_id)`,
}
