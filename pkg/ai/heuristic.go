package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// Heuristic is the simplest non-random opponent: honor counting for bids,
// longest/strongest suit for trump, and a duck-or-lead play rule.
type Heuristic struct{}

// NewHeuristic creates a Heuristic strategy. The config carries nothing it
// uses; the strategy is fully deterministic.
func NewHeuristic(Config) *Heuristic {
	return &Heuristic{}
}

// honorPoints is a coarse per-card trick estimate: aces nearly always win a
// trick, kings usually, queens sometimes.
func honorPoints(rank game.Rank) float64 {
	switch rank {
	case game.Ace:
		return 1.0
	case game.King:
		return 0.7
	case game.Queen:
		return 0.35
	case game.Jack:
		return 0.15
	}
	return 0
}

// suitLengths tallies cards held per suit.
func suitLengths(hand []game.Card) [4]int {
	var lengths [4]int
	for _, c := range hand {
		lengths[c.Suit]++
	}
	return lengths
}

// ChooseBid estimates tricks by summing honor points.
func (h *Heuristic) ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error) {
	estimate := 0.0
	for _, c := range state.Hand {
		estimate += honorPoints(c.Rank)
	}
	// Long suits promote small cards into winners.
	for _, n := range suitLengths(state.Hand) {
		if n > 4 {
			estimate += 0.5 * float64(n-4)
		}
	}
	return clampBidToLegal(state, estimate)
}

// ChooseTrump picks the longest suit, breaking length ties by honor weight.
func (h *Heuristic) ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error) {
	lengths := suitLengths(state.Hand)
	var strength [4]float64
	for _, c := range state.Hand {
		strength[c.Suit] += honorPoints(c.Rank)
	}
	best := game.Clubs
	for suit := game.Diamonds; suit <= game.Spades; suit++ {
		if lengths[suit] > lengths[best] ||
			(lengths[suit] == lengths[best] && strength[suit] > strength[best]) {
			best = suit
		}
	}
	choice := game.TrumpOfSuit(best)
	if !trumpIsLegal(state, choice) {
		if len(state.LegalTrumps) == 0 {
			return 0, internalErr("empty legal trump set")
		}
		return state.LegalTrumps[0], nil
	}
	return choice, nil
}

// ChoosePlay leads its highest card, and when following plays the cheapest
// winner or, if it cannot win, its lowest legal card.
func (h *Heuristic) ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error) {
	if len(state.LegalPlays) == 0 {
		return game.Card{}, internalErr("empty legal play set")
	}
	legal := append([]game.Card(nil), state.LegalPlays...)
	game.SortCards(legal)

	if len(state.TrickPlays) == 0 {
		// Leading: highest card by rank.
		best := legal[0]
		for _, c := range legal[1:] {
			if c.Rank > best.Rank {
				best = c
			}
		}
		return best, nil
	}

	lead := state.TrickPlays[0].Card.Suit
	champion := currentWinningCard(state)

	var cheapestWinner *game.Card
	for i := range legal {
		c := legal[i]
		if game.CardBeats(c, champion, lead, trumpOf(state)) {
			if cheapestWinner == nil || c.Rank < cheapestWinner.Rank {
				cheapestWinner = &legal[i]
			}
		}
	}
	if cheapestWinner != nil {
		return *cheapestWinner, nil
	}
	// Cannot win: lowest legal by rank.
	low := legal[0]
	for _, c := range legal[1:] {
		if c.Rank < low.Rank {
			low = c
		}
	}
	return low, nil
}

// trumpOf returns the state's trump, defaulting to NoTrumps before
// selection.
func trumpOf(state *CurrentRoundInfo) game.Trump {
	if state.TrumpSet {
		return state.Trump
	}
	return game.NoTrumps
}

// currentWinningCard folds the trick on the table to its current winner.
func currentWinningCard(state *CurrentRoundInfo) game.Card {
	lead := state.TrickPlays[0].Card.Suit
	winner := state.TrickPlays[0].Card
	for _, p := range state.TrickPlays[1:] {
		if game.CardBeats(p.Card, winner, lead, trumpOf(state)) {
			winner = p.Card
		}
	}
	return winner
}
