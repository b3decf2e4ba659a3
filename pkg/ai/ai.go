// Package ai implements the computer opponents: a small capability interface
// over the game domain plus five reference strategies and the bounded
// round-memory model that feeds them.
package ai

import (
	"fmt"

	"github.com/robpatriot/nommie-server/pkg/game"
)

// ErrorKind classifies AI failures.
type ErrorKind string

const (
	// ErrInvalidMove means the strategy produced a value outside the legal
	// set. That is a bug in the strategy, never client input.
	ErrInvalidMove ErrorKind = "INVALID_MOVE"
	// ErrInternal is any other strategy failure.
	ErrInternal ErrorKind = "INTERNAL"
)

// Error is the typed failure surface of an AiPlayer. It never reaches
// clients; the orchestrator retries and then fails the request as internal.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai %s: %s", e.Kind, e.Detail)
}

// invalidMove builds an ErrInvalidMove error.
func invalidMove(format string, args ...any) error {
	return &Error{Kind: ErrInvalidMove, Detail: fmt.Sprintf(format, args...)}
}

// internalErr builds an ErrInternal error.
func internalErr(format string, args ...any) error {
	return &Error{Kind: ErrInternal, Detail: fmt.Sprintf(format, args...)}
}

// CurrentRoundInfo is the per-viewer projection of the game state handed to a
// strategy: its own hand, the legal sets, and everything public.
type CurrentRoundInfo struct {
	RoundNo   uint8
	HandSize  uint8
	TrickNo   uint8
	Seat      game.Seat
	Dealer    game.Seat
	TrumpSet  bool
	Trump     game.Trump
	Hand      []game.Card
	Bids      [game.NumPlayers]int8
	TricksWon [game.NumPlayers]uint8
	Scores    [game.NumPlayers]int16
	// TrickPlays is the trick currently on the table, in play order.
	TrickPlays  []game.SeatCard
	LegalBids   []uint8
	LegalPlays  []game.Card
	LegalTrumps []game.Trump
}

// MyBid returns the viewer's own bid, or 0 if not yet placed.
func (s *CurrentRoundInfo) MyBid() uint8 {
	b := s.Bids[s.Seat]
	if b == game.BidUnset {
		return 0
	}
	return uint8(b)
}

// TricksRemaining counts tricks not yet resolved, including the one on the
// table.
func (s *CurrentRoundInfo) TricksRemaining() uint8 {
	played := s.TrickNo
	if played > 0 {
		played--
	}
	if played > s.HandSize {
		return 0
	}
	return s.HandSize - played
}

// RoundSummary condenses one completed round for history-aware bidding.
type RoundSummary struct {
	RoundNo   uint8
	HandSize  uint8
	Bids      [game.NumPlayers]int8
	TricksWon [game.NumPlayers]uint8
}

// GameHistory is the list of completed rounds, oldest first.
type GameHistory struct {
	Rounds []RoundSummary
}

// GameContext carries everything outside the current round: identity, history
// and the (possibly degraded) memory of the round's earlier tricks.
type GameContext struct {
	GameID  int64
	History *GameHistory
	Memory  *RoundMemory
}

// Player is the capability every strategy implements. Every returned value
// must be a member of the corresponding legal set in CurrentRoundInfo.
type Player interface {
	ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error)
	ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error)
	ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error)
}

// CheckBid surfaces an out-of-set bid as an InvalidMove error. Strategies
// returning an illegal value is a bug in the strategy; the orchestrator
// checks every decision before applying it.
func CheckBid(state *CurrentRoundInfo, bid uint8) error {
	if !bidIsLegal(state, bid) {
		return invalidMove("bid %d not in legal set %v", bid, state.LegalBids)
	}
	return nil
}

// CheckTrump surfaces an out-of-set trump selection as an InvalidMove error.
func CheckTrump(state *CurrentRoundInfo, trump game.Trump) error {
	if !trumpIsLegal(state, trump) {
		return invalidMove("trump %v not in legal set %v", trump, state.LegalTrumps)
	}
	return nil
}

// CheckPlay surfaces an out-of-set card as an InvalidMove error.
func CheckPlay(state *CurrentRoundInfo, card game.Card) error {
	if !playIsLegal(state, card) {
		return invalidMove("play %v not in legal set %v", card, state.LegalPlays)
	}
	return nil
}

// bidIsLegal reports membership of the legal bid set.
func bidIsLegal(state *CurrentRoundInfo, bid uint8) bool {
	for _, b := range state.LegalBids {
		if b == bid {
			return true
		}
	}
	return false
}

// playIsLegal reports membership of the legal play set.
func playIsLegal(state *CurrentRoundInfo, card game.Card) bool {
	for _, c := range state.LegalPlays {
		if c == card {
			return true
		}
	}
	return false
}

// trumpIsLegal reports membership of the legal trump set.
func trumpIsLegal(state *CurrentRoundInfo, trump game.Trump) bool {
	for _, t := range state.LegalTrumps {
		if t == trump {
			return true
		}
	}
	return false
}

// clampBidToLegal rounds the estimate to the nearest legal bid, preferring
// the lower bid on ties.
func clampBidToLegal(state *CurrentRoundInfo, estimate float64) (uint8, error) {
	if len(state.LegalBids) == 0 {
		return 0, internalErr("empty legal bid set")
	}
	best := state.LegalBids[0]
	bestDist := distance(estimate, best)
	for _, b := range state.LegalBids[1:] {
		d := distance(estimate, b)
		if d < bestDist || (d == bestDist && b < best) {
			best = b
			bestDist = d
		}
	}
	return best, nil
}

func distance(estimate float64, bid uint8) float64 {
	d := estimate - float64(bid)
	if d < 0 {
		return -d
	}
	return d
}
