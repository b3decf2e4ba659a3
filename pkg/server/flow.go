package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/decred/slog"

	"github.com/robpatriot/nommie-server/pkg/ai"
	"github.com/robpatriot/nommie-server/pkg/game"
	"github.com/robpatriot/nommie-server/pkg/server/db"
)

// Bounds on the AI drain loop. Exceeding either is a hard internal error,
// never an infinite spin.
const (
	maxNoProgressIterations = 100
	maxRetriesPerAction     = 3
)

// TransitionKind names the semantic transitions a mutation can produce.
type TransitionKind string

const (
	TransitionPlayerJoined   TransitionKind = "player_joined"
	TransitionPlayerLeft     TransitionKind = "player_left"
	TransitionPlayerRejoined TransitionKind = "player_rejoined"
	TransitionTurnBecame     TransitionKind = "turn_became"
	TransitionGameStarted    TransitionKind = "game_started"
	TransitionGameEnded      TransitionKind = "game_ended"
	TransitionGameAbandoned  TransitionKind = "game_abandoned"
)

// Transition is one semantic state change detected during a mutation.
type Transition struct {
	Kind   TransitionKind
	UserID string
	Seat   game.Seat
}

// MutationResult is what RunMutation hands back after commit.
type MutationResult struct {
	OldVersion  int64
	Game        *db.GameRow
	Transitions []Transition
}

// Flow couples the pure domain to storage under the optimistic lock, drives
// the AI advance loop and emits post-commit broadcasts.
type Flow struct {
	db          *db.DB
	log         slog.Logger
	cache       *SnapshotCache
	broadcaster *Broadcaster
	registry    *ai.Registry
	metrics     *Metrics
}

// NewFlow wires a flow orchestrator. metrics may be nil.
func NewFlow(database *db.DB, log slog.Logger, cache *SnapshotCache, broadcaster *Broadcaster, registry *ai.Registry, metrics *Metrics) *Flow {
	return &Flow{db: database, log: log, cache: cache, broadcaster: broadcaster,
		registry: registry, metrics: metrics}
}

// MutationContext is the in-transaction working set handed to mutation
// closures: the loaded state, membership rows and the transition collector.
type MutationContext struct {
	Ctx     context.Context
	Tx      *sql.Tx
	GameID  int64
	State   *game.GameState
	Row     *db.GameRow
	Players []db.PlayerRow

	flow        *Flow
	roundRow    *db.RoundRow
	transitions []Transition
}

// AddTransition records a semantic transition for post-commit broadcast.
func (mc *MutationContext) AddTransition(t Transition) {
	mc.transitions = append(mc.transitions, t)
}

// PlayerBySeat returns the membership row occupying a seat.
func (mc *MutationContext) PlayerBySeat(seat game.Seat) *db.PlayerRow {
	for i := range mc.Players {
		if mc.Players[i].Seat.Valid && game.Seat(mc.Players[i].Seat.Int64) == seat &&
			mc.Players[i].Role == db.RolePlayer {
			return &mc.Players[i]
		}
	}
	return nil
}

// PlayerByUser returns the membership row of a user, if any.
func (mc *MutationContext) PlayerByUser(userID string) *db.PlayerRow {
	for i := range mc.Players {
		if mc.Players[i].UserID.Valid && mc.Players[i].UserID.String == userID {
			return &mc.Players[i]
		}
	}
	return nil
}

// ReloadPlayers refreshes the membership rows after a membership mutation.
func (mc *MutationContext) ReloadPlayers() error {
	players, err := db.GetPlayers(mc.Ctx, mc.Tx, mc.GameID)
	if err != nil {
		return err
	}
	mc.Players = players
	return nil
}

// currentRound lazily loads the game_rounds row for the current round.
func (mc *MutationContext) currentRound() (*db.RoundRow, error) {
	if mc.roundRow != nil && mc.roundRow.RoundNo == int(mc.State.RoundNo) {
		return mc.roundRow, nil
	}
	round, err := db.GetRound(mc.Ctx, mc.Tx, mc.GameID, int(mc.State.RoundNo))
	if err != nil {
		return nil, err
	}
	mc.roundRow = round
	return round, nil
}

// RunMutation opens a transaction, loads the game (a stale expectedVersion
// fails with ErrOptimisticLock before the closure runs), runs the closure, bumps
// the optimistic version and commits. After commit it invalidates the stale
// snapshot entry and publishes broadcasts. The closure observes a consistent
// state; all of its effects commit or none do.
func (f *Flow) RunMutation(ctx context.Context, gameID, expectedVersion int64, fn func(mc *MutationContext) error) (*MutationResult, error) {
	var result *MutationResult
	err := f.db.WithTx(ctx, func(tx *sql.Tx) error {
		state, row, err := db.LoadGameState(ctx, tx, gameID)
		if err != nil {
			return err
		}
		if row.Version != expectedVersion {
			return db.ErrOptimisticLock
		}
		players, err := db.GetPlayers(ctx, tx, gameID)
		if err != nil {
			return err
		}
		mc := &MutationContext{
			Ctx: ctx, Tx: tx, GameID: gameID,
			State: state, Row: row, Players: players, flow: f,
		}

		preTurn, prePhase := state.Turn, state.Phase.Kind

		if err := fn(mc); err != nil {
			return err
		}

		mc.detectTransitions(prePhase, preTurn)

		final, err := db.TouchGame(ctx, tx, gameID, expectedVersion)
		if err != nil {
			return err
		}
		result = &MutationResult{
			OldVersion:  expectedVersion,
			Game:        final,
			Transitions: mc.transitions,
		}
		return nil
	})
	if err != nil {
		f.metrics.mutationFailed()
		if errors.Is(err, db.ErrOptimisticLock) {
			f.metrics.lockConflict()
		}
		return nil, err
	}

	f.metrics.mutationCommitted()
	f.afterCommit(result)
	return result, nil
}

// detectTransitions diffs phase and turn across the whole mutation
// (AI-driven actions included) and appends the induced transitions.
func (mc *MutationContext) detectTransitions(prePhase game.PhaseKind, preTurn game.Seat) {
	postPhase, postTurn := mc.State.Phase.Kind, mc.State.Turn
	if prePhase == game.PhaseLobby && postPhase != game.PhaseLobby && postPhase != game.PhaseAbandoned {
		mc.AddTransition(Transition{Kind: TransitionGameStarted})
	}
	if postPhase == game.PhaseComplete && prePhase != game.PhaseComplete {
		mc.AddTransition(Transition{Kind: TransitionGameEnded})
	}
	if postPhase == game.PhaseAbandoned && prePhase != game.PhaseAbandoned {
		mc.AddTransition(Transition{Kind: TransitionGameAbandoned})
	}
	if postTurn != preTurn && game.ValidSeat(postTurn) && pendingAction(postPhase) {
		mc.AddTransition(Transition{Kind: TransitionTurnBecame, Seat: postTurn})
	}
}

func pendingAction(kind game.PhaseKind) bool {
	switch kind {
	case game.PhaseBidding, game.PhaseTrumpSelect, game.PhaseTrick:
		return true
	}
	return false
}

// afterCommit runs the post-commit side effects: cache invalidation and the
// broadcast fan-out. Failures here are logged and swallowed; clients recover
// on their next poll.
func (f *Flow) afterCommit(result *MutationResult) {
	gameID := result.Game.ID
	f.cache.Invalidate(gameID, result.OldVersion)

	if result.Game.Version != result.OldVersion {
		f.broadcaster.Publish(Event{
			Type: EventGameStateAvailable, GameID: gameID, Version: result.Game.Version,
		})
	}

	humans := make(map[game.Seat]string)
	var allHumans []string
	players, err := f.listPlayers(context.Background(), gameID)
	if err != nil {
		f.log.Warnf("post-commit membership lookup failed for game %d: %v", gameID, err)
	} else {
		for _, p := range players {
			if p.Kind == db.KindHuman && p.UserID.Valid {
				allHumans = append(allHumans, p.UserID.String)
				if p.Seat.Valid {
					humans[game.Seat(p.Seat.Int64)] = p.UserID.String
				}
			}
		}
	}

	longWait := false
	for _, t := range result.Transitions {
		switch t.Kind {
		case TransitionTurnBecame:
			if uid, ok := humans[t.Seat]; ok {
				f.broadcaster.Publish(Event{
					Type: EventYourTurn, GameID: gameID, UserID: uid, Version: result.Game.Version,
				})
			}
		case TransitionGameStarted, TransitionGameEnded, TransitionGameAbandoned,
			TransitionPlayerLeft, TransitionPlayerRejoined:
			longWait = true
		}
	}
	if longWait {
		for _, uid := range allHumans {
			f.broadcaster.Publish(Event{Type: EventLongWaitInvalidated, GameID: gameID, UserID: uid})
		}
	}
}

func (f *Flow) listPlayers(ctx context.Context, gameID int64) ([]db.PlayerRow, error) {
	var players []db.PlayerRow
	err := f.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		players, err = db.GetPlayers(ctx, tx, gameID)
		return err
	})
	return players, err
}

// actionType names the pending domain action the drain loop resolves.
type actionType int

const (
	actionBid actionType = iota
	actionTrump
	actionPlay
)

// determineNextAction returns the seat and action the game is waiting on, or
// false when no immediate per-seat action is pending (lobby, scoring and the
// between-round states are handled by advance itself).
func determineNextAction(g *game.GameState) (game.Seat, actionType, bool) {
	switch g.Phase.Kind {
	case game.PhaseBidding:
		if g.Round.BidCount() >= game.NumPlayers {
			return 0, 0, false
		}
		seat := g.Dealer.Next()
		for i := 0; i < g.Round.BidCount(); i++ {
			seat = seat.Next()
		}
		return seat, actionBid, true
	case game.PhaseTrumpSelect:
		return g.Round.WinningBidder, actionTrump, true
	case game.PhaseTrick:
		seat := g.Leader
		for i := 0; i < len(g.Round.TrickPlays); i++ {
			seat = seat.Next()
		}
		return seat, actionPlay, true
	}
	return 0, 0, false
}

// progressSignature fingerprints the advancing state; an iteration that
// leaves it unchanged made no progress.
func (mc *MutationContext) progressSignature() [5]int {
	return [5]int{
		int(mc.State.Phase.Kind),
		int(mc.State.RoundNo),
		int(mc.State.TrickNo),
		mc.State.Round.BidCount(),
		len(mc.State.Round.TrickPlays),
	}
}

// Advance drives the game forward until it waits on a human: applies round
// scoring, deals the next round, and lets AI seats act. Bounded by a
// no-progress counter so a wedged state fails hard instead of spinning.
func (mc *MutationContext) Advance() error {
	noProgress := 0
	for {
		before := mc.progressSignature()
		if noProgress > maxNoProgressIterations {
			return fmt.Errorf("ai advance loop made no progress after %d iterations in phase %s (game %d round %d)",
				maxNoProgressIterations, mc.State.Phase.Kind, mc.GameID, mc.State.RoundNo)
		}

		switch mc.State.Phase.Kind {
		case game.PhaseScoring:
			if err := mc.applyScoring(); err != nil {
				return err
			}
			continue
		case game.PhaseBetweenRounds:
			if err := mc.dealNextRound(); err != nil {
				return err
			}
			continue
		case game.PhaseLobby, game.PhaseComplete, game.PhaseAbandoned:
			return nil
		}

		seat, action, ok := determineNextAction(mc.State)
		if !ok {
			return nil
		}
		player := mc.PlayerBySeat(seat)
		if player == nil {
			return fmt.Errorf("no membership for seat %d in game %d", seat, mc.GameID)
		}
		if player.Kind != db.KindAI {
			return nil
		}
		if err := mc.runAIAction(player, seat, action); err != nil {
			return err
		}
		if mc.progressSignature() == before {
			noProgress++
		} else {
			noProgress = 0
		}
	}
}

// runAIAction builds the seat's AI from its profile and override, asks it
// for a decision and applies it, retrying transient validation failures up
// to the per-action cap.
func (mc *MutationContext) runAIAction(player *db.PlayerRow, seat game.Seat, action actionType) error {
	aiPlayer, memoryLevel, cfg, err := mc.buildAI(player)
	if err != nil {
		return err
	}

	gameCtx, err := mc.buildGameContext(seat, memoryLevel, cfg)
	if err != nil {
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), maxRetriesPerAction-1)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		info := ai.BuildCurrentRoundInfo(mc.State, seat)
		err := mc.applyAIDecision(aiPlayer, info, gameCtx, seat, action)
		if err == nil {
			mc.flow.metrics.aiActionApplied()
			return nil
		}
		var ve *game.ValidationError
		var aiErr *ai.Error
		if errors.As(err, &ve) || errors.As(err, &aiErr) {
			mc.flow.metrics.aiActionRetried()
			mc.flow.log.Warnf("ai action retry %d for game %d seat %d: %v",
				attempt, mc.GameID, seat, err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// applyAIDecision asks the strategy for one decision and applies it through
// the same persistence path a human action takes.
func (mc *MutationContext) applyAIDecision(player ai.Player, info *ai.CurrentRoundInfo, gameCtx *ai.GameContext, seat game.Seat, action actionType) error {
	switch action {
	case actionBid:
		bid, err := player.ChooseBid(info, gameCtx)
		if err != nil {
			return err
		}
		if err := ai.CheckBid(info, bid); err != nil {
			return err
		}
		return mc.ApplyBid(seat, bid)
	case actionTrump:
		trump, err := player.ChooseTrump(info, gameCtx)
		if err != nil {
			return err
		}
		if err := ai.CheckTrump(info, trump); err != nil {
			return err
		}
		return mc.ApplyTrump(seat, trump)
	default:
		card, err := player.ChoosePlay(info, gameCtx)
		if err != nil {
			return err
		}
		if err := ai.CheckPlay(info, card); err != nil {
			return err
		}
		return mc.ApplyPlay(seat, card)
	}
}

// buildAI resolves the profile plus per-seat override into a configured
// strategy and its memory level.
func (mc *MutationContext) buildAI(player *db.PlayerRow) (ai.Player, int, ai.Config, error) {
	name := ai.DefaultStrategyName
	memoryLevel := 100
	var cfg ai.Config

	if player.AIProfileID.Valid {
		profile, err := db.GetProfile(mc.Ctx, mc.Tx, player.AIProfileID.Int64)
		if err != nil {
			return nil, 0, cfg, err
		}
		name = profile.RegistryName
		if profile.MemoryLevel.Valid {
			memoryLevel = int(profile.MemoryLevel.Int64)
		}
		if profile.ConfigJSON.Valid {
			cfg, err = ai.ParseConfig([]byte(profile.ConfigJSON.String))
			if err != nil {
				return nil, 0, cfg, fmt.Errorf("corrupt profile config: %w", err)
			}
		}
	}

	override, err := db.GetOverride(mc.Ctx, mc.Tx, player.ID)
	if err != nil {
		return nil, 0, cfg, err
	}
	if override != nil {
		if override.Name.Valid {
			name = override.Name.String
		}
		if override.MemoryLevel.Valid {
			memoryLevel = int(override.MemoryLevel.Int64)
		}
		if override.ConfigJSON.Valid {
			overrideCfg, err := ai.ParseConfig([]byte(override.ConfigJSON.String))
			if err != nil {
				return nil, 0, cfg, fmt.Errorf("corrupt override config: %w", err)
			}
			cfg = cfg.Merge(overrideCfg)
		}
	}

	built, err := mc.flow.registry.Build(name, cfg)
	if err != nil {
		return nil, 0, cfg, err
	}
	return built, memoryLevel, cfg, nil
}

// buildGameContext assembles history and the seat's degraded round memory.
func (mc *MutationContext) buildGameContext(seat game.Seat, memoryLevel int, cfg ai.Config) (*ai.GameContext, error) {
	gameCtx := &ai.GameContext{GameID: mc.GameID}

	summaries, err := db.GetRoundSummaries(mc.Ctx, mc.Tx, mc.GameID)
	if err != nil {
		return nil, err
	}
	if len(summaries) > 0 {
		history := &ai.GameHistory{}
		for _, s := range summaries {
			history.Rounds = append(history.Rounds, ai.RoundSummary{
				RoundNo:   uint8(s.RoundNo),
				HandSize:  uint8(s.HandSize),
				Bids:      s.Bids,
				TricksWon: s.TricksWon,
			})
		}
		gameCtx.History = history
	}

	round, err := mc.currentRound()
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return gameCtx, nil
		}
		return nil, err
	}
	tricks, err := db.GetTricks(mc.Ctx, mc.Tx, round.ID)
	if err != nil {
		return nil, err
	}
	var plays [][]game.SeatCard
	for _, trick := range tricks {
		plays = append(plays, trick.Plays)
	}
	seed := game.DeriveMemorySeed(mc.State.Seed, mc.State.RoundNo, seat)
	gameCtx.Memory = ai.BuildRoundMemory(plays, memoryLevel, seed, cfg.MemoryRecency)
	return gameCtx, nil
}

// ApplyBid validates and persists a bid through the domain.
func (mc *MutationContext) ApplyBid(seat game.Seat, bid uint8) error {
	round, err := mc.currentRound()
	if err != nil {
		return err
	}
	order := mc.State.Round.BidCount()
	if err := mc.State.PlaceBid(seat, bid); err != nil {
		return err
	}
	if err := db.InsertBid(mc.Ctx, mc.Tx, round.ID, seat, bid, order); err != nil {
		return err
	}
	if mc.State.Phase.Kind == game.PhaseTrumpSelect {
		return mc.persistPhase()
	}
	return nil
}

// ApplyTrump validates and persists the trump selection.
func (mc *MutationContext) ApplyTrump(seat game.Seat, trump game.Trump) error {
	round, err := mc.currentRound()
	if err != nil {
		return err
	}
	if err := mc.State.SetTrump(seat, trump); err != nil {
		return err
	}
	if err := db.SetRoundTrump(mc.Ctx, mc.Tx, round.ID, trump); err != nil {
		return err
	}
	return mc.persistPhase()
}

// ApplyPlay validates and persists one card play, resolving the trick when
// it is the fourth card.
func (mc *MutationContext) ApplyPlay(seat game.Seat, card game.Card) error {
	round, err := mc.currentRound()
	if err != nil {
		return err
	}
	trickNo := int(mc.State.TrickNo)
	order := len(mc.State.Round.TrickPlays)
	lead := card.Suit
	if order > 0 {
		lead, _ = mc.State.Round.TrickLead()
	}

	if err := mc.State.PlayCard(seat, card); err != nil {
		return err
	}

	trickID, err := db.EnsureTrick(mc.Ctx, mc.Tx, round.ID, trickNo, lead)
	if err != nil {
		return err
	}
	if err := db.InsertTrickPlay(mc.Ctx, mc.Tx, trickID, seat, card, order); err != nil {
		return err
	}

	if order == game.NumPlayers-1 {
		// Fourth card: the domain resolved the trick and the winner leads.
		if err := db.SetTrickWinner(mc.Ctx, mc.Tx, trickID, mc.State.Leader); err != nil {
			return err
		}
		return mc.persistPhase()
	}
	return nil
}

// applyScoring settles the round and records the per-seat scoring lines.
func (mc *MutationContext) applyScoring() error {
	round, err := mc.currentRound()
	if err != nil {
		return err
	}
	scores, err := mc.State.ApplyRoundScoring()
	if err != nil {
		return err
	}
	if err := db.InsertRoundScores(mc.Ctx, mc.Tx, round.ID, scores); err != nil {
		return err
	}
	if err := db.CompleteRound(mc.Ctx, mc.Tx, round.ID); err != nil {
		return err
	}
	return mc.persistPhase()
}

// dealNextRound deals the following round and persists its rows.
func (mc *MutationContext) dealNextRound() error {
	if err := mc.State.DealRound(); err != nil {
		return err
	}
	roundID, err := db.InsertRound(mc.Ctx, mc.Tx, mc.GameID,
		int(mc.State.RoundNo), int(mc.State.HandSize), mc.State.Dealer)
	if err != nil {
		return err
	}
	if err := db.InsertHands(mc.Ctx, mc.Tx, roundID, mc.State.Round.Hands); err != nil {
		return err
	}
	if err := db.SetDealerStart(mc.Ctx, mc.Tx, mc.GameID, mc.State.Dealer); err != nil {
		return err
	}
	mc.roundRow = nil
	return mc.persistPhase()
}

// DealFirstRound starts the game from the lobby once all seats are ready.
func (mc *MutationContext) DealFirstRound() error {
	if mc.State.Phase.Kind != game.PhaseLobby {
		return game.NewValidationError(game.PhaseMismatch, "game already started")
	}
	return mc.dealNextRound()
}

// Abandon marks the game abandoned.
func (mc *MutationContext) Abandon() error {
	mc.State.Phase = game.Phase{Kind: game.PhaseAbandoned}
	return mc.persistPhase()
}

// persistPhase writes the lifecycle cursor (state, current round, trick
// number) derived from the in-memory state.
func (mc *MutationContext) persistPhase() error {
	currentRound := sql.NullInt64{}
	if mc.State.RoundNo > 0 {
		currentRound = sql.NullInt64{Int64: int64(mc.State.RoundNo), Valid: true}
	}
	return db.UpdateGamePhase(mc.Ctx, mc.Tx, mc.GameID,
		db.StateForPhase(mc.State.Phase), currentRound, int(mc.State.TrickNo))
}
