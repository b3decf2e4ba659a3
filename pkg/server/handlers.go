package server

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/robpatriot/nommie-server/pkg/game"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

// versioned is embedded by every mutation body: the optimistic version the
// client last observed. A missing version is a validation error.
type versioned struct {
	Version *int64 `json:"version"`
}

func (v versioned) version() (int64, error) {
	if v.Version == nil {
		return 0, ErrValidationf("version is required")
	}
	return *v.Version, nil
}

// decodeBody parses a JSON request body into dst. An empty body decodes to
// the zero value.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ErrValidationf("invalid request body: %v", err)
	}
	return nil
}

func gameIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "gameID"), 10, 64)
	if err != nil {
		return 0, ErrValidationf("invalid game id")
	}
	return id, nil
}

// writeMutationOK responds 204 with the post-mutation ETag so the client can
// skip its next poll.
func (s *Server) writeMutationOK(w http.ResponseWriter, result *MutationResult) {
	w.Header().Set("ETag", GameETag(result.Game.ID, result.Game.Version))
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateGame creates a lobby game with the caller seated as host.
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	userID, err := s.requireUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	visibility := db.VisibilityPrivate
	if body.Visibility == db.VisibilityPublic {
		visibility = db.VisibilityPublic
	}

	// Seed and join code both derive from a fresh UUID; the seed feeds every
	// deterministic deal of the game.
	id := uuid.New()
	seed := int64(binary.LittleEndian.Uint64(id[:8]) >> 1)
	joinCode := id.String()[:8]

	var header GameHeader
	ctx := r.Context()
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := db.CreateGame(ctx, tx, body.Name, userID, visibility, joinCode, seed)
		if err != nil {
			return err
		}
		seat := sql.NullInt64{Int64: 0, Valid: true}
		if _, err := db.AddPlayer(ctx, tx, &db.PlayerRow{
			GameID:      row.ID,
			Seat:        seat,
			Kind:        db.KindHuman,
			UserID:      sql.NullString{String: userID, Valid: true},
			DisplayName: userID,
			Role:        db.RolePlayer,
		}); err != nil {
			return err
		}
		header, err = gameHeader(ctx, tx, row)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", GameETag(header.ID, header.Version))
	s.writeJSON(w, http.StatusOK, map[string]any{"game": header, "join_code": joinCode})
}

// handleDeleteGame removes a game entirely. Host only.
func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
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

	ctx := r.Context()
	var humans []string
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := db.GetGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if row.CreatedBy != userID {
			return ErrForbiddenf("only the host may delete the game")
		}
		if row.Version != version {
			return db.ErrOptimisticLock
		}
		players, err := db.GetPlayers(ctx, tx, gameID)
		if err != nil {
			return err
		}
		for _, p := range players {
			if p.Kind == db.KindHuman && p.UserID.Valid {
				humans = append(humans, p.UserID.String)
			}
		}
		return db.DeleteGame(ctx, tx, gameID)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cache.Invalidate(gameID, version)
	for _, uid := range humans {
		s.broadcaster.Publish(Event{Type: EventLongWaitInvalidated, GameID: gameID, UserID: uid})
	}
	w.WriteHeader(http.StatusNoContent)
}

// runGameAction is the shared shape of bid/trump/play: resolve the caller's
// seat, apply the action and let the AI drain loop advance the game.
func (s *Server) runGameAction(w http.ResponseWriter, r *http.Request, version int64, apply func(mc *MutationContext, seat game.Seat) error) {
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

	result, err := s.flow.RunMutation(r.Context(), gameID, version, func(mc *MutationContext) error {
		player := mc.PlayerByUser(userID)
		if player == nil || player.Role != db.RolePlayer || !player.Seat.Valid {
			return ErrForbiddenf("user is not seated in this game")
		}
		seat := game.Seat(player.Seat.Int64)
		if err := apply(mc, seat); err != nil {
			return err
		}
		return mc.Advance()
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutationOK(w, result)
}

// handleBid places a bid for the calling user's seat.
func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		versioned
		Bid *uint8 `json:"bid"`
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
	if body.Bid == nil {
		s.writeError(w, r, ErrValidationf("bid is required"))
		return
	}
	s.runGameAction(w, r, version, func(mc *MutationContext, seat game.Seat) error {
		return mc.ApplyBid(seat, *body.Bid)
	})
}

// handleTrump sets the round's trump for the winning bidder.
func (s *Server) handleTrump(w http.ResponseWriter, r *http.Request) {
	var body struct {
		versioned
		Trump string `json:"trump"`
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
	trump, err := game.ParseTrump(body.Trump)
	if err != nil {
		s.writeError(w, r, game.NewValidationError(game.InvalidTrumpConversion, "%v", err))
		return
	}
	s.runGameAction(w, r, version, func(mc *MutationContext, seat game.Seat) error {
		return mc.ApplyTrump(seat, trump)
	})
}

// handlePlay plays a card for the calling user's seat.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		versioned
		Card string `json:"card"`
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
	card, err := game.ParseCard(body.Card)
	if err != nil {
		s.writeError(w, r, ErrValidationf("%v", err))
		return
	}
	s.runGameAction(w, r, version, func(mc *MutationContext, seat game.Seat) error {
		return mc.ApplyPlay(seat, card)
	})
}

// handleSnapshot serves the per-viewer snapshot with If-None-Match support:
// a matching ETag (or the * wildcard) short-circuits to 304.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
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
	ctx := r.Context()

	var version int64
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := db.GetGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		version = row.Version
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	etag := GameETag(gameID, version)
	if ETagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	shared, err := s.cache.GetOrBuild(gameID, version, func() (*SharedSnapshotParts, error) {
		return s.buildSharedParts(ctx, gameID)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	viewer, err := s.buildViewerParts(ctx, gameID, userID, shared)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	s.writeJSON(w, http.StatusOK, SnapshotResponse{
		PublicSnapshot: shared.Snapshot,
		Viewer:         viewer,
	})
}

// buildSharedParts loads the game and projects the viewer-independent
// snapshot bundle.
func (s *Server) buildSharedParts(ctx context.Context, gameID int64) (*SharedSnapshotParts, error) {
	var shared *SharedSnapshotParts
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		state, row, err := db.LoadGameState(ctx, tx, gameID)
		if err != nil {
			return err
		}
		header, err := gameHeader(ctx, tx, row)
		if err != nil {
			return err
		}
		shared = BuildPublicSnapshot(state, header)
		return nil
	})
	return shared, err
}

// buildViewerParts computes the user-specific extension: own seat, own hand
// and bid constraints.
func (s *Server) buildViewerParts(ctx context.Context, gameID int64, userID string, shared *SharedSnapshotParts) (*ViewerState, error) {
	viewer := &ViewerState{}
	var seat *int
	for _, info := range shared.Players {
		if info.UserID != nil && *info.UserID == userID {
			v := info.Seat
			seat = &v
			break
		}
	}
	if seat == nil {
		return viewer, nil
	}
	viewer.Seat = seat
	if shared.Snapshot.Game.RoundNo > 0 {
		viewer.Hand = shared.Hands[*seat]
	}

	if shared.Snapshot.Phase.Phase == game.PhaseBidding.String() {
		constraints := &BidConstraints{Min: 0}
		if shared.Snapshot.Phase.MaxBid != nil {
			constraints.Max = *shared.Snapshot.Phase.MaxBid
		}
		locked, err := s.zeroBidLocked(ctx, gameID, *seat)
		if err != nil {
			return nil, err
		}
		constraints.ZeroBidLocked = locked
		viewer.BidConstraints = constraints
	}
	return viewer, nil
}

// zeroBidLocked applies the three-consecutive-zero-bids rule: a player whose
// last three completed rounds were all zero bids must bid at least one.
func (s *Server) zeroBidLocked(ctx context.Context, gameID int64, seat int) (bool, error) {
	var locked bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		summaries, err := db.GetRoundSummaries(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if len(summaries) < 3 {
			return nil
		}
		locked = true
		for _, round := range summaries[len(summaries)-3:] {
			if round.Bids[seat] != 0 {
				locked = false
				break
			}
		}
		return nil
	})
	return locked, err
}

// handleHistory serves the completed-round summaries with the same 304
// semantics as the snapshot.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireUser(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	gameID, err := gameIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	var version int64
	var summaries []db.RoundSummaryRow
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := db.GetGame(ctx, tx, gameID)
		if err != nil {
			return err
		}
		version = row.Version
		summaries, err = db.GetRoundSummaries(ctx, tx, gameID)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	etag := GameETag(gameID, version)
	if ETagMatches(r.Header.Get("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	type historyRound struct {
		RoundNo   int                    `json:"round_no"`
		HandSize  int                    `json:"hand_size"`
		Bids      [game.NumPlayers]int8  `json:"bids"`
		TricksWon [game.NumPlayers]uint8 `json:"tricks_won"`
		Scores    [game.NumPlayers]int16 `json:"scores"`
	}
	rounds := make([]historyRound, 0, len(summaries))
	for _, sum := range summaries {
		rounds = append(rounds, historyRound{
			RoundNo:   sum.RoundNo,
			HandSize:  sum.HandSize,
			Bids:      sum.Bids,
			TricksWon: sum.TricksWon,
			Scores:    sum.Scores,
		})
	}
	w.Header().Set("ETag", etag)
	s.writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}
