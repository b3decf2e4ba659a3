package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// BuildCurrentRoundInfo projects the canonical game state into the view a
// strategy at the given seat is allowed to see: its own hand, the legal
// sets for its pending decision, and the public round data.
func BuildCurrentRoundInfo(g *game.GameState, seat game.Seat) *CurrentRoundInfo {
	info := &CurrentRoundInfo{
		RoundNo:    g.RoundNo,
		HandSize:   g.HandSize,
		TrickNo:    g.TrickNo,
		Seat:       seat,
		Dealer:     g.Dealer,
		TrumpSet:   g.Round.TrumpSet,
		Trump:      g.Round.Trump,
		Hand:       append([]game.Card(nil), g.Round.Hands[seat]...),
		Bids:       g.Round.Bids,
		TricksWon:  g.Round.TricksWon,
		Scores:     g.ScoresTotal,
		TrickPlays: append([]game.SeatCard(nil), g.Round.TrickPlays...),
	}

	switch g.Phase.Kind {
	case game.PhaseBidding:
		info.LegalBids = g.LegalBids(seat)
	case game.PhaseTrumpSelect:
		info.LegalTrumps = append([]game.Trump(nil), game.Trumps[:]...)
	case game.PhaseTrick:
		info.LegalPlays = g.LegalMoves(seat)
	}
	return info
}
