package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/robpatriot/nommie-server/pkg/ai"
	"github.com/robpatriot/nommie-server/pkg/game"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

// freeSeat returns the lowest unoccupied seat, or false when the table is
// full.
func freeSeat(players []db.PlayerRow) (game.Seat, bool) {
	var taken [game.NumPlayers]bool
	for _, p := range players {
		if p.Role == db.RolePlayer && p.Seat.Valid {
			taken[p.Seat.Int64] = true
		}
	}
	for seat := game.Seat(0); seat < game.NumPlayers; seat++ {
		if !taken[seat] {
			return seat, true
		}
	}
	return 0, false
}

// runMembership wraps a membership mutation in the standard envelope.
func (s *Server) runMembership(w http.ResponseWriter, r *http.Request, fn func(mc *MutationContext, userID string) error) {
	userID, err := s.requireUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body versioned
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := body.version()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.flow.RunMutation(r.Context(), gameID, version, func(mc *MutationContext) error {
		return fn(mc, userID)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutationOK(w, result)
}

// handleJoin seats the caller in the lobby.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.runMembership(w, r, func(mc *MutationContext, userID string) error {
		if mc.State.Phase.Kind != game.PhaseLobby {
			return ErrConflictf("game already started")
		}
		if mc.PlayerByUser(userID) != nil {
			return ErrConflictf("user already in game")
		}
		seat, ok := freeSeat(mc.Players)
		if !ok {
			return ErrConflictf("game is full")
		}
		_, err := db.AddPlayer(mc.Ctx, mc.Tx, &db.PlayerRow{
			GameID:      mc.GameID,
			Seat:        sql.NullInt64{Int64: int64(seat), Valid: true},
			Kind:        db.KindHuman,
			UserID:      sql.NullString{String: userID, Valid: true},
			DisplayName: userID,
			Role:        db.RolePlayer,
		})
		if err != nil {
			return err
		}
		mc.AddTransition(Transition{Kind: TransitionPlayerJoined, UserID: userID})
		return mc.ReloadPlayers()
	})
}

// handleSpectate adds the caller as a spectator. Public games only.
func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	s.runMembership(w, r, func(mc *MutationContext, userID string) error {
		if mc.Row.Visibility != db.VisibilityPublic {
			return ErrForbiddenf("game is not public")
		}
		if mc.PlayerByUser(userID) != nil {
			return ErrConflictf("user already in game")
		}
		_, err := db.AddPlayer(mc.Ctx, mc.Tx, &db.PlayerRow{
			GameID:      mc.GameID,
			Kind:        db.KindHuman,
			UserID:      sql.NullString{String: userID, Valid: true},
			DisplayName: userID,
			Role:        db.RoleSpectator,
		})
		return err
	})
}

// handleLeave removes the caller. Mid-game, the seat is handed to an AI
// placeholder remembering the original user so a later rejoin can restore
// them.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.runMembership(w, r, func(mc *MutationContext, userID string) error {
		player := mc.PlayerByUser(userID)
		if player == nil {
			return ErrNotFoundf("user is not in this game")
		}

		if player.Role == db.RoleSpectator || mc.State.Phase.Kind == game.PhaseLobby {
			if err := db.RemovePlayer(mc.Ctx, mc.Tx, player.ID); err != nil {
				return err
			}
			mc.AddTransition(Transition{Kind: TransitionPlayerLeft, UserID: userID})
			return mc.ReloadPlayers()
		}

		// Mid-game: AI placeholder takes over the seat.
		profile, err := db.GetProfileByName(mc.Ctx, mc.Tx, ai.DefaultStrategyName)
		if err != nil {
			return err
		}
		player.Kind = db.KindAI
		player.OriginalUserID = player.UserID
		player.UserID = sql.NullString{}
		player.AIProfileID = sql.NullInt64{Int64: profile.ID, Valid: true}
		if err := db.UpdatePlayer(mc.Ctx, mc.Tx, player); err != nil {
			return err
		}
		mc.AddTransition(Transition{Kind: TransitionPlayerLeft, UserID: userID})
		if err := mc.ReloadPlayers(); err != nil {
			return err
		}
		// The placeholder may be the seat the game is waiting on.
		return mc.Advance()
	})
}

// handleRejoin converts the caller's AI placeholder back into the original
// human.
func (s *Server) handleRejoin(w http.ResponseWriter, r *http.Request) {
	s.runMembership(w, r, func(mc *MutationContext, userID string) error {
		for i := range mc.Players {
			p := &mc.Players[i]
			if p.Kind == db.KindAI && p.OriginalUserID.Valid && p.OriginalUserID.String == userID {
				p.Kind = db.KindHuman
				p.UserID = sql.NullString{String: userID, Valid: true}
				p.OriginalUserID = sql.NullString{}
				p.AIProfileID = sql.NullInt64{}
				if err := db.UpdatePlayer(mc.Ctx, mc.Tx, p); err != nil {
					return err
				}
				mc.AddTransition(Transition{Kind: TransitionPlayerRejoined, UserID: userID})
				return mc.ReloadPlayers()
			}
		}
		return ErrNotFoundf("no seat to rejoin")
	})
}

// handleReady flips the caller's ready flag; when the fourth ready lands the
// first round is dealt and AI seats start acting.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	userID, err := s.requireUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		versioned
		IsReady *bool `json:"is_ready"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := body.version()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.IsReady == nil {
		s.writeError(w, r, ErrValidationf("is_ready is required"))
		return
	}

	result, err := s.flow.RunMutation(r.Context(), gameID, version, func(mc *MutationContext) error {
		if mc.State.Phase.Kind != game.PhaseLobby {
			return ErrConflictf("game already started")
		}
		player := mc.PlayerByUser(userID)
		if player == nil || player.Role != db.RolePlayer {
			return ErrForbiddenf("user is not seated in this game")
		}
		player.IsReady = *body.IsReady
		if err := db.UpdatePlayer(mc.Ctx, mc.Tx, player); err != nil {
			return err
		}
		if err := mc.ReloadPlayers(); err != nil {
			return err
		}
		if allSeatsReady(mc.Players) {
			if err := mc.DealFirstRound(); err != nil {
				return err
			}
			return mc.Advance()
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutationOK(w, result)
}

// allSeatsReady reports whether all four seats are occupied and ready.
func allSeatsReady(players []db.PlayerRow) bool {
	ready := 0
	for _, p := range players {
		if p.Role == db.RolePlayer && p.Seat.Valid && p.IsReady {
			ready++
		}
	}
	return ready == game.NumPlayers
}

// aiSeatBody is the shared body of the host-only AI seat management
// endpoints.
type aiSeatBody struct {
	versioned
	Seat         *int    `json:"seat"`
	RegistryName string  `json:"registry_name"`
	MemoryLevel  *int    `json:"memory_level"`
	ConfigSeed   *uint64 `json:"config_seed"`
}

// requireHost verifies the caller created the game.
func requireHost(mc *MutationContext, userID string) error {
	if mc.Row.CreatedBy != userID {
		return ErrForbiddenf("only the host may manage ai seats")
	}
	return nil
}

// handleAIAdd seats a new AI player. Host only, lobby only.
func (s *Server) handleAIAdd(w http.ResponseWriter, r *http.Request) {
	s.runAISeatOp(w, r, func(mc *MutationContext, body *aiSeatBody) error {
		if mc.State.Phase.Kind != game.PhaseLobby {
			return ErrConflictf("game already started")
		}
		name := body.RegistryName
		if name == "" {
			name = ai.DefaultStrategyName
		}
		profile, err := db.GetProfileByName(mc.Ctx, mc.Tx, name)
		if err != nil {
			return err
		}

		seat, ok := freeSeat(mc.Players)
		if body.Seat != nil {
			seat = game.Seat(*body.Seat)
			if !game.ValidSeat(seat) {
				return game.NewValidationError(game.InvalidSeat, "seat %d", *body.Seat)
			}
			if mc.PlayerBySeat(seat) != nil {
				return ErrConflictf("seat %d is taken", seat)
			}
		} else if !ok {
			return ErrConflictf("game is full")
		}

		playerID, err := db.AddPlayer(mc.Ctx, mc.Tx, &db.PlayerRow{
			GameID:      mc.GameID,
			Seat:        sql.NullInt64{Int64: int64(seat), Valid: true},
			Kind:        db.KindAI,
			AIProfileID: sql.NullInt64{Int64: profile.ID, Valid: true},
			DisplayName: profile.DisplayName,
			IsReady:     true,
			Role:        db.RolePlayer,
		})
		if err != nil {
			return err
		}
		return writeAIOverride(mc, playerID, body)
	})
}

// handleAIUpdate reconfigures an existing AI seat. Host only.
func (s *Server) handleAIUpdate(w http.ResponseWriter, r *http.Request) {
	s.runAISeatOp(w, r, func(mc *MutationContext, body *aiSeatBody) error {
		player, err := aiSeatFromBody(mc, body)
		if err != nil {
			return err
		}
		if body.RegistryName != "" {
			profile, err := db.GetProfileByName(mc.Ctx, mc.Tx, body.RegistryName)
			if err != nil {
				return err
			}
			player.AIProfileID = sql.NullInt64{Int64: profile.ID, Valid: true}
			player.DisplayName = profile.DisplayName
			if err := db.UpdatePlayer(mc.Ctx, mc.Tx, player); err != nil {
				return err
			}
		}
		return writeAIOverride(mc, player.ID, body)
	})
}

// handleAIRemove unseats an AI player. Host only, lobby only.
func (s *Server) handleAIRemove(w http.ResponseWriter, r *http.Request) {
	s.runAISeatOp(w, r, func(mc *MutationContext, body *aiSeatBody) error {
		if mc.State.Phase.Kind != game.PhaseLobby {
			return ErrConflictf("game already started")
		}
		player, err := aiSeatFromBody(mc, body)
		if err != nil {
			return err
		}
		if err := db.RemovePlayer(mc.Ctx, mc.Tx, player.ID); err != nil {
			return err
		}
		return mc.ReloadPlayers()
	})
}

func (s *Server) runAISeatOp(w http.ResponseWriter, r *http.Request, fn func(mc *MutationContext, body *aiSeatBody) error) {
	userID, err := s.requireUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body aiSeatBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := body.version()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.flow.RunMutation(r.Context(), gameID, version, func(mc *MutationContext) error {
		if err := requireHost(mc, userID); err != nil {
			return err
		}
		if err := fn(mc, &body); err != nil {
			return err
		}
		return mc.ReloadPlayers()
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutationOK(w, result)
}

// aiSeatFromBody resolves the AI membership row named by the body's seat.
func aiSeatFromBody(mc *MutationContext, body *aiSeatBody) (*db.PlayerRow, error) {
	if body.Seat == nil {
		return nil, ErrValidationf("seat is required")
	}
	seat := game.Seat(*body.Seat)
	if !game.ValidSeat(seat) {
		return nil, game.NewValidationError(game.InvalidSeat, "seat %d", *body.Seat)
	}
	player := mc.PlayerBySeat(seat)
	if player == nil || player.Kind != db.KindAI {
		return nil, ErrNotFoundf("no ai at seat %d", seat)
	}
	return player, nil
}

// writeAIOverride persists the optional per-seat override fields.
func writeAIOverride(mc *MutationContext, playerID int64, body *aiSeatBody) error {
	if body.MemoryLevel == nil && body.ConfigSeed == nil {
		return nil
	}
	override := &db.AIOverrideRow{GamePlayerID: playerID}
	if body.MemoryLevel != nil {
		override.MemoryLevel = sql.NullInt64{Int64: int64(*body.MemoryLevel), Valid: true}
	}
	if body.ConfigSeed != nil {
		blob, err := json.Marshal(map[string]any{"seed": *body.ConfigSeed})
		if err != nil {
			return err
		}
		override.ConfigJSON = sql.NullString{String: string(blob), Valid: true}
	}
	return db.UpsertOverride(mc.Ctx, mc.Tx, override)
}
