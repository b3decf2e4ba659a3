package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/robpatriot/nommie-server/pkg/game"
)

// Game lifecycle states as persisted in games.state.
const (
	StateLobby         = "LOBBY"
	StateBidding       = "BIDDING"
	StateTrumpSelect   = "TRUMP_SELECT"
	StateTrick         = "TRICK"
	StateScoring       = "SCORING"
	StateBetweenRounds = "BETWEEN_ROUNDS"
	StateComplete      = "COMPLETE"
	StateAbandoned     = "ABANDONED"
)

// Player kinds and roles.
const (
	KindHuman = "HUMAN"
	KindAI    = "AI"

	RolePlayer    = "PLAYER"
	RoleSpectator = "SPECTATOR"
)

// Game visibilities.
const (
	VisibilityPublic  = "PUBLIC"
	VisibilityPrivate = "PRIVATE"
)

// GameRow mirrors one games row.
type GameRow struct {
	ID             int64
	State          string
	Name           string
	JoinCode       sql.NullString
	CurrentRound   sql.NullInt64
	CurrentTrickNo int
	DealerPosStart sql.NullInt64
	RNGSeed        sql.NullInt64
	Visibility     string
	CreatedBy      string
	Version        int64
}

const gameColumns = `id, state, name, join_code, current_round, current_trick_no,
	dealer_pos_start, rng_seed, visibility, created_by, version`

func scanGame(row *sql.Row) (*GameRow, error) {
	var g GameRow
	err := row.Scan(&g.ID, &g.State, &g.Name, &g.JoinCode, &g.CurrentRound,
		&g.CurrentTrickNo, &g.DealerPosStart, &g.RNGSeed, &g.Visibility,
		&g.CreatedBy, &g.Version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CreateGame inserts a fresh lobby game and returns its row.
func CreateGame(ctx context.Context, tx *sql.Tx, name, createdBy, visibility, joinCode string, seed int64) (*GameRow, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO games (state, name, join_code, visibility, created_by, rng_seed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, StateLobby, name, joinCode, visibility, createdBy, seed)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return GetGame(ctx, tx, id)
}

// GetGame loads one games row.
func GetGame(ctx context.Context, tx *sql.Tx, id int64) (*GameRow, error) {
	return scanGame(tx.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
}

// TouchGame bumps the optimistic version via compare-and-set. Zero rows
// updated means another writer committed first: ErrOptimisticLock.
func TouchGame(ctx context.Context, tx *sql.Tx, id, expectedVersion int64) (*GameRow, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE games SET version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`, id, expectedVersion)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrOptimisticLock
	}
	return GetGame(ctx, tx, id)
}

// UpdateGamePhase records the lifecycle state plus round/trick cursors.
func UpdateGamePhase(ctx context.Context, tx *sql.Tx, id int64, state string, currentRound sql.NullInt64, trickNo int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE games SET state = ?, current_round = ?, current_trick_no = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, currentRound, trickNo, id)
	return err
}

// SetDealerStart persists the first-round dealer once, on first deal.
func SetDealerStart(ctx context.Context, tx *sql.Tx, id int64, dealer game.Seat) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE games SET dealer_pos_start = ? WHERE id = ? AND dealer_pos_start IS NULL`,
		int(dealer), id)
	return err
}

// DeleteGame removes the game and, via cascades, all dependent rows.
func DeleteGame(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game: %w", ErrNotFound)
	}
	return nil
}

// PlayerRow mirrors one game_players row.
type PlayerRow struct {
	ID             int64
	GameID         int64
	Seat           sql.NullInt64
	Kind           string
	UserID         sql.NullString
	AIProfileID    sql.NullInt64
	OriginalUserID sql.NullString
	DisplayName    string
	IsReady        bool
	Role           string
}

const playerColumns = `id, game_id, seat, kind, user_id, ai_profile_id,
	original_user_id, display_name, is_ready, role`

func scanPlayers(rows *sql.Rows) ([]PlayerRow, error) {
	defer rows.Close()
	var players []PlayerRow
	for rows.Next() {
		var p PlayerRow
		if err := rows.Scan(&p.ID, &p.GameID, &p.Seat, &p.Kind, &p.UserID,
			&p.AIProfileID, &p.OriginalUserID, &p.DisplayName, &p.IsReady, &p.Role); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// AddPlayer inserts a membership row and returns its id.
func AddPlayer(ctx context.Context, tx *sql.Tx, p *PlayerRow) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO game_players (game_id, seat, kind, user_id, ai_profile_id,
			original_user_id, display_name, is_ready, role)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.GameID, p.Seat, p.Kind, p.UserID, p.AIProfileID, p.OriginalUserID,
		p.DisplayName, p.IsReady, p.Role)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPlayers returns all memberships of a game ordered by seat (spectators,
// with NULL seats, first).
func GetPlayers(ctx context.Context, tx *sql.Tx, gameID int64) ([]PlayerRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM game_players WHERE game_id = ? ORDER BY seat`, gameID)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

// UpdatePlayer rewrites the mutable membership fields.
func UpdatePlayer(ctx context.Context, tx *sql.Tx, p *PlayerRow) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE game_players SET kind = ?, user_id = ?, ai_profile_id = ?,
			original_user_id = ?, display_name = ?, is_ready = ?, role = ?
		WHERE id = ?
	`, p.Kind, p.UserID, p.AIProfileID, p.OriginalUserID, p.DisplayName,
		p.IsReady, p.Role, p.ID)
	return err
}

// RemovePlayer deletes a membership row.
func RemovePlayer(ctx context.Context, tx *sql.Tx, playerID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM game_players WHERE id = ?`, playerID)
	return err
}

// RoundRow mirrors one game_rounds row.
type RoundRow struct {
	ID        int64
	GameID    int64
	RoundNo   int
	HandSize  int
	DealerPos int
	Trump     sql.NullString
	Completed sql.NullString
}

// InsertRound records a freshly dealt round.
func InsertRound(ctx context.Context, tx *sql.Tx, gameID int64, roundNo int, handSize int, dealer game.Seat) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO game_rounds (game_id, round_no, hand_size, dealer_pos)
		VALUES (?, ?, ?, ?)
	`, gameID, roundNo, handSize, int(dealer))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRound loads the round row for (game, round_no).
func GetRound(ctx context.Context, tx *sql.Tx, gameID int64, roundNo int) (*RoundRow, error) {
	var r RoundRow
	err := tx.QueryRowContext(ctx, `
		SELECT id, game_id, round_no, hand_size, dealer_pos, trump, completed_at
		FROM game_rounds WHERE game_id = ? AND round_no = ?
	`, gameID, roundNo).Scan(&r.ID, &r.GameID, &r.RoundNo, &r.HandSize,
		&r.DealerPos, &r.Trump, &r.Completed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("round: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRoundTrump records the trump contract on the round row.
func SetRoundTrump(ctx context.Context, tx *sql.Tx, roundID int64, trump game.Trump) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE game_rounds SET trump = ? WHERE id = ?`, trump.String(), roundID)
	return err
}

// CompleteRound stamps the round as finished.
func CompleteRound(ctx context.Context, tx *sql.Tx, roundID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE game_rounds SET completed_at = CURRENT_TIMESTAMP WHERE id = ?`, roundID)
	return err
}

// InsertHands stores the dealt hands, one JSON array per seat.
func InsertHands(ctx context.Context, tx *sql.Tx, roundID int64, hands [game.NumPlayers][]game.Card) error {
	for seat, hand := range hands {
		blob, err := json.Marshal(hand)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO round_hands (round_id, seat, cards_json) VALUES (?, ?, ?)
		`, roundID, seat, string(blob)); err != nil {
			return err
		}
	}
	return nil
}

// GetHands loads the dealt hands of a round.
func GetHands(ctx context.Context, tx *sql.Tx, roundID int64) ([game.NumPlayers][]game.Card, error) {
	var hands [game.NumPlayers][]game.Card
	rows, err := tx.QueryContext(ctx,
		`SELECT seat, cards_json FROM round_hands WHERE round_id = ?`, roundID)
	if err != nil {
		return hands, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat int
		var blob string
		if err := rows.Scan(&seat, &blob); err != nil {
			return hands, err
		}
		var cards []game.Card
		if err := json.Unmarshal([]byte(blob), &cards); err != nil {
			return hands, fmt.Errorf("corrupt hand for seat %d: %w", seat, err)
		}
		hands[seat] = cards
	}
	return hands, rows.Err()
}

// InsertBid records one bid in bidding order.
func InsertBid(ctx context.Context, tx *sql.Tx, roundID int64, seat game.Seat, bid uint8, order int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO round_bids (round_id, seat, bid_value, bid_order) VALUES (?, ?, ?, ?)
	`, roundID, int(seat), int(bid), order)
	return err
}

// GetBids returns the round's bids indexed by seat (BidUnset when missing).
func GetBids(ctx context.Context, tx *sql.Tx, roundID int64) ([game.NumPlayers]int8, error) {
	bids := [game.NumPlayers]int8{game.BidUnset, game.BidUnset, game.BidUnset, game.BidUnset}
	rows, err := tx.QueryContext(ctx,
		`SELECT seat, bid_value FROM round_bids WHERE round_id = ? ORDER BY bid_order`, roundID)
	if err != nil {
		return bids, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat, bid int
		if err := rows.Scan(&seat, &bid); err != nil {
			return bids, err
		}
		bids[seat] = int8(bid)
	}
	return bids, rows.Err()
}

// TrickRow is one resolved or in-progress trick with its plays in order.
type TrickRow struct {
	ID         int64
	TrickNo    int
	LeadSuit   game.Suit
	WinnerSeat sql.NullInt64
	Plays      []game.SeatCard
}

// EnsureTrick creates the trick row when its first card is played.
func EnsureTrick(ctx context.Context, tx *sql.Tx, roundID int64, trickNo int, lead game.Suit) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM round_tricks WHERE round_id = ? AND trick_no = ?`,
		roundID, trickNo).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO round_tricks (round_id, trick_no, lead_suit) VALUES (?, ?, ?)
	`, roundID, trickNo, lead.String())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetTrickWinner resolves a trick.
func SetTrickWinner(ctx context.Context, tx *sql.Tx, trickID int64, winner game.Seat) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE round_tricks SET winner_seat = ? WHERE id = ?`, int(winner), trickID)
	return err
}

// InsertTrickPlay appends one play to a trick.
func InsertTrickPlay(ctx context.Context, tx *sql.Tx, trickID int64, seat game.Seat, card game.Card, order int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trick_plays (trick_id, seat, card_json, play_order)
		VALUES (?, ?, ?, ?)
	`, trickID, int(seat), card.String(), order)
	return err
}

// GetTricks loads all tricks of a round, plays included, ordered by trick_no.
func GetTricks(ctx context.Context, tx *sql.Tx, roundID int64) ([]TrickRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, trick_no, lead_suit, winner_seat
		FROM round_tricks WHERE round_id = ? ORDER BY trick_no
	`, roundID)
	if err != nil {
		return nil, err
	}
	var tricks []TrickRow
	for rows.Next() {
		var t TrickRow
		var lead string
		if err := rows.Scan(&t.ID, &t.TrickNo, &lead, &t.WinnerSeat); err != nil {
			rows.Close()
			return nil, err
		}
		suit, err := game.ParseSuit(lead)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("corrupt lead suit in trick %d: %w", t.TrickNo, err)
		}
		t.LeadSuit = suit
		tricks = append(tricks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range tricks {
		playRows, err := tx.QueryContext(ctx, `
			SELECT seat, card_json FROM trick_plays WHERE trick_id = ? ORDER BY play_order
		`, tricks[i].ID)
		if err != nil {
			return nil, err
		}
		var plays []game.SeatCard
		for playRows.Next() {
			var seat int
			var code string
			if err := playRows.Scan(&seat, &code); err != nil {
				playRows.Close()
				return nil, err
			}
			card, err := game.ParseCard(code)
			if err != nil {
				playRows.Close()
				return nil, fmt.Errorf("corrupt play in trick %d: %w", tricks[i].TrickNo, err)
			}
			plays = append(plays, game.SeatCard{Seat: game.Seat(seat), Card: card})
		}
		if err := playRows.Err(); err != nil {
			playRows.Close()
			return nil, err
		}
		playRows.Close()
		tricks[i].Plays = plays
	}
	return tricks, nil
}

// InsertRoundScores writes the settled scoring lines of a round.
func InsertRoundScores(ctx context.Context, tx *sql.Tx, roundID int64, scores [game.NumPlayers]game.RoundScore) error {
	for _, line := range scores {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO round_scores (round_id, seat, bid, tricks_won, bid_met,
				base, bonus, round_score, total_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, roundID, int(line.Seat), int(line.Bid), int(line.TricksWon), line.BidMet,
			line.Base, line.Bonus, line.RoundScore, line.TotalAfter); err != nil {
			return err
		}
	}
	return nil
}

// ScoreTotals sums committed round scores per seat.
func ScoreTotals(ctx context.Context, tx *sql.Tx, gameID int64) ([game.NumPlayers]int16, error) {
	var totals [game.NumPlayers]int16
	rows, err := tx.QueryContext(ctx, `
		SELECT rs.seat, SUM(rs.round_score)
		FROM round_scores rs
		JOIN game_rounds gr ON gr.id = rs.round_id
		WHERE gr.game_id = ?
		GROUP BY rs.seat
	`, gameID)
	if err != nil {
		return totals, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat, total int
		if err := rows.Scan(&seat, &total); err != nil {
			return totals, err
		}
		totals[seat] = int16(total)
	}
	return totals, rows.Err()
}

// RoundSummaryRow condenses one scored round for history views and the AI.
type RoundSummaryRow struct {
	RoundNo   int
	HandSize  int
	Bids      [game.NumPlayers]int8
	TricksWon [game.NumPlayers]uint8
	Scores    [game.NumPlayers]int16
}

// GetRoundSummaries returns scored rounds in order.
func GetRoundSummaries(ctx context.Context, tx *sql.Tx, gameID int64) ([]RoundSummaryRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT gr.round_no, gr.hand_size, rs.seat, rs.bid, rs.tricks_won, rs.round_score
		FROM round_scores rs
		JOIN game_rounds gr ON gr.id = rs.round_id
		WHERE gr.game_id = ?
		ORDER BY gr.round_no, rs.seat
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RoundSummaryRow
	byRound := make(map[int]int)
	for rows.Next() {
		var roundNo, handSize, seat, bid, won, score int
		if err := rows.Scan(&roundNo, &handSize, &seat, &bid, &won, &score); err != nil {
			return nil, err
		}
		idx, ok := byRound[roundNo]
		if !ok {
			summaries = append(summaries, RoundSummaryRow{RoundNo: roundNo, HandSize: handSize})
			idx = len(summaries) - 1
			for s := range summaries[idx].Bids {
				summaries[idx].Bids[s] = game.BidUnset
			}
			byRound[roundNo] = idx
		}
		summaries[idx].Bids[seat] = int8(bid)
		summaries[idx].TricksWon[seat] = uint8(won)
		summaries[idx].Scores[seat] = int16(score)
	}
	return summaries, rows.Err()
}

// AIProfileRow mirrors one ai_profiles row.
type AIProfileRow struct {
	ID              int64
	RegistryName    string
	RegistryVersion string
	Variant         string
	DisplayName     string
	MemoryLevel     sql.NullInt64
	ConfigJSON      sql.NullString
}

// GetProfile loads an AI profile by id.
func GetProfile(ctx context.Context, tx *sql.Tx, id int64) (*AIProfileRow, error) {
	var p AIProfileRow
	err := tx.QueryRowContext(ctx, `
		SELECT id, registry_name, registry_version, variant, display_name, memory_level, config_json
		FROM ai_profiles WHERE id = ?
	`, id).Scan(&p.ID, &p.RegistryName, &p.RegistryVersion, &p.Variant,
		&p.DisplayName, &p.MemoryLevel, &p.ConfigJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ai profile: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByName loads the default variant of a registry name.
func GetProfileByName(ctx context.Context, tx *sql.Tx, name string) (*AIProfileRow, error) {
	var p AIProfileRow
	err := tx.QueryRowContext(ctx, `
		SELECT id, registry_name, registry_version, variant, display_name, memory_level, config_json
		FROM ai_profiles WHERE registry_name = ? AND variant = 'default'
	`, name).Scan(&p.ID, &p.RegistryName, &p.RegistryVersion, &p.Variant,
		&p.DisplayName, &p.MemoryLevel, &p.ConfigJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ai profile: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AIOverrideRow mirrors one ai_overrides row.
type AIOverrideRow struct {
	GamePlayerID int64
	Name         sql.NullString
	MemoryLevel  sql.NullInt64
	ConfigJSON   sql.NullString
}

// GetOverride loads a per-seat AI override, or nil when absent.
func GetOverride(ctx context.Context, tx *sql.Tx, gamePlayerID int64) (*AIOverrideRow, error) {
	var o AIOverrideRow
	err := tx.QueryRowContext(ctx, `
		SELECT game_player_id, name, memory_level, config_json
		FROM ai_overrides WHERE game_player_id = ?
	`, gamePlayerID).Scan(&o.GamePlayerID, &o.Name, &o.MemoryLevel, &o.ConfigJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpsertOverride writes a per-seat AI override.
func UpsertOverride(ctx context.Context, tx *sql.Tx, o *AIOverrideRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ai_overrides (game_player_id, name, memory_level, config_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_player_id) DO UPDATE SET
			name = excluded.name,
			memory_level = excluded.memory_level,
			config_json = excluded.config_json
	`, o.GamePlayerID, o.Name, o.MemoryLevel, o.ConfigJSON)
	return err
}
