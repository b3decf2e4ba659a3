package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/robpatriot/nommie-server/pkg/game"
)

// phaseForState converts the persisted lifecycle state into the domain
// phase, tagging Trick with the current trick number.
func phaseForState(state string, trickNo int) (game.Phase, error) {
	switch state {
	case StateLobby:
		return game.Phase{Kind: game.PhaseLobby}, nil
	case StateBidding:
		return game.Phase{Kind: game.PhaseBidding}, nil
	case StateTrumpSelect:
		return game.Phase{Kind: game.PhaseTrumpSelect}, nil
	case StateTrick:
		return game.TrickPhase(uint8(trickNo)), nil
	case StateScoring:
		return game.Phase{Kind: game.PhaseScoring}, nil
	case StateBetweenRounds:
		return game.Phase{Kind: game.PhaseBetweenRounds}, nil
	case StateComplete:
		return game.Phase{Kind: game.PhaseComplete}, nil
	case StateAbandoned:
		return game.Phase{Kind: game.PhaseAbandoned}, nil
	}
	return game.Phase{}, fmt.Errorf("unknown game state %q", state)
}

// StateForPhase is the inverse mapping, used when persisting transitions.
func StateForPhase(p game.Phase) string {
	switch p.Kind {
	case game.PhaseLobby:
		return StateLobby
	case game.PhaseBidding:
		return StateBidding
	case game.PhaseTrumpSelect:
		return StateTrumpSelect
	case game.PhaseTrick:
		return StateTrick
	case game.PhaseScoring:
		return StateScoring
	case game.PhaseBetweenRounds:
		return StateBetweenRounds
	case game.PhaseComplete:
		return StateComplete
	default:
		return StateAbandoned
	}
}

// LoadGameState reconstructs the canonical GameState for the game's current
// round from the normalized tables. The returned value is a transient view
// valid only within the transaction.
func LoadGameState(ctx context.Context, tx *sql.Tx, gameID int64) (*game.GameState, *GameRow, error) {
	row, err := GetGame(ctx, tx, gameID)
	if err != nil {
		return nil, nil, err
	}

	seed := uint64(row.RNGSeed.Int64)
	if !row.RNGSeed.Valid {
		// Legacy rows fall back to the game id as seed.
		seed = uint64(row.ID)
	}

	g := game.NewLobbyState(seed)
	g.Phase, err = phaseForState(row.State, row.CurrentTrickNo)
	if err != nil {
		return nil, nil, err
	}
	if !row.CurrentRound.Valid {
		return g, row, nil
	}

	round, err := GetRound(ctx, tx, gameID, int(row.CurrentRound.Int64))
	if err != nil {
		return nil, nil, err
	}
	g.RoundNo = uint8(round.RoundNo)
	g.HandSize = uint8(round.HandSize)
	g.Dealer = game.Seat(round.DealerPos)
	g.TrickNo = uint8(row.CurrentTrickNo)

	g.Round = game.NewRoundState()
	if round.Trump.Valid {
		trump, err := game.ParseTrump(round.Trump.String)
		if err != nil {
			return nil, nil, err
		}
		g.Round.Trump = trump
		g.Round.TrumpSet = true
	}

	g.Round.Hands, err = GetHands(ctx, tx, round.ID)
	if err != nil {
		return nil, nil, err
	}
	g.Round.Bids, err = GetBids(ctx, tx, round.ID)
	if err != nil {
		return nil, nil, err
	}

	tricks, err := GetTricks(ctx, tx, round.ID)
	if err != nil {
		return nil, nil, err
	}

	// Remove every played card from the hands and rebuild derived state.
	lastWinner := game.NoSeat
	for _, trick := range tricks {
		for _, play := range trick.Plays {
			g.Round.RemoveCard(play.Seat, play.Card)
		}
		if trick.WinnerSeat.Valid {
			winner := game.Seat(trick.WinnerSeat.Int64)
			g.Round.TricksWon[winner]++
			lastWinner = winner
		} else {
			// In-progress trick: its plays sit on the table.
			g.Round.TrickPlays = append([]game.SeatCard(nil), trick.Plays...)
		}
	}

	// Winning bidder exists once all four bids are in.
	if winner, ok := g.Round.WinningBidderFor(g.Dealer); ok {
		g.Round.WinningBidder = winner
	}

	g.ScoresTotal, err = ScoreTotals(ctx, tx, gameID)
	if err != nil {
		return nil, nil, err
	}

	// Leader: winner of the last resolved trick; before any, the winning
	// bidder leads the first trick.
	switch {
	case lastWinner != game.NoSeat:
		g.Leader = lastWinner
	case g.Round.WinningBidder != game.NoSeat && g.Round.TrumpSet:
		g.Leader = g.Round.WinningBidder
	default:
		g.Leader = g.Dealer.Next()
	}

	g.Turn = deriveTurn(g)
	return g, row, nil
}

// deriveTurn computes whose action the phase is waiting on.
func deriveTurn(g *game.GameState) game.Seat {
	switch g.Phase.Kind {
	case game.PhaseBidding:
		seat := g.Dealer.Next()
		for i := 0; i < g.Round.BidCount(); i++ {
			seat = seat.Next()
		}
		return seat
	case game.PhaseTrumpSelect:
		return g.Round.WinningBidder
	case game.PhaseTrick:
		seat := g.Leader
		for i := 0; i < len(g.Round.TrickPlays); i++ {
			seat = seat.Next()
		}
		return seat
	}
	return game.NoSeat
}
