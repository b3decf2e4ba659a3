package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// Tactician plays to hit exact bids: weighted hand evaluation for bidding,
// trump chosen for control, and play that switches between winning and
// ducking based on remaining need.
type Tactician struct{}

// NewTactician creates a Tactician. It carries no RNG; every choice is a
// deterministic function of the state.
func NewTactician(Config) *Tactician {
	return &Tactician{}
}

// evaluateHand estimates trick-taking power under a candidate trump. Honor
// weights scale up in short hands where any high card dominates, and length
// and shortness contribute when a trump suit gives control.
func (t *Tactician) evaluateHand(hand []game.Card, handSize uint8, trump game.Trump) float64 {
	// Small hands concentrate power in fewer cards.
	honorScale := 1.0
	if handSize <= 5 {
		honorScale = 1.25
	} else if handSize <= 8 {
		honorScale = 1.1
	}

	est := 0.0
	lengths := suitLengths(hand)
	trumpSuit, hasTrump := trump.Suit()

	for _, c := range hand {
		w := honorPoints(c.Rank) * honorScale
		if hasTrump && c.Suit == trumpSuit {
			// Trump honors are harder to dislodge.
			w *= 1.2
		}
		est += w
	}

	if hasTrump {
		// Length in trumps is extra tricks; shortness elsewhere is ruffing
		// potential proportional to trump holding.
		trumpLen := lengths[trumpSuit]
		if trumpLen > 3 {
			est += 0.6 * float64(trumpLen-3)
		}
		if trumpLen >= 2 {
			for suit, n := range lengths {
				if game.Suit(suit) == trumpSuit {
					continue
				}
				switch n {
				case 0:
					est += 0.5
				case 1:
					est += 0.2
				}
			}
		}
	} else {
		// At no trumps only established length scores.
		for _, n := range lengths {
			if n > 4 {
				est += 0.45 * float64(n-4)
			}
		}
	}
	return est
}

// stopperCount counts suits holding a likely stopper (ace, or king with
// cover).
func stopperCount(hand []game.Card) int {
	var hasAce, hasKing, depth [4]int
	for _, c := range hand {
		depth[c.Suit]++
		if c.Rank == game.Ace {
			hasAce[c.Suit] = 1
		}
		if c.Rank == game.King {
			hasKing[c.Suit] = 1
		}
	}
	n := 0
	for suit := 0; suit < 4; suit++ {
		if hasAce[suit] == 1 || (hasKing[suit] == 1 && depth[suit] >= 2) {
			n++
		}
	}
	return n
}

// ChooseBid estimates tricks under the most promising trump and applies a
// conservative correction so a missed high bid does not forfeit the bonus.
func (t *Tactician) ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error) {
	best := 0.0
	for _, trump := range game.Trumps {
		est := t.evaluateHand(state.Hand, state.HandSize, trump)
		if est > best {
			best = est
		}
	}

	// Bigger estimates miss more often; shave proportionally.
	switch {
	case best >= 6:
		best -= 0.8
	case best >= 3:
		best -= 0.5
	default:
		best -= 0.3
	}
	if best < 0 {
		best = 0
	}
	return clampBidToLegal(state, best)
}

// ChooseTrump evaluates every legal trump and keeps the best, preferring
// no-trumps for balanced hands with enough stoppers.
func (t *Tactician) ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error) {
	if len(state.LegalTrumps) == 0 {
		return 0, internalErr("empty legal trump set")
	}

	lengths := suitLengths(state.Hand)
	minLen, maxLen := lengths[0], lengths[0]
	for _, n := range lengths[1:] {
		if n < minLen {
			minLen = n
		}
		if n > maxLen {
			maxLen = n
		}
	}
	requiredStoppers := 3
	if state.HandSize <= 5 {
		requiredStoppers = 2
	}
	balanced := minLen >= 1 && maxLen <= 6 && stopperCount(state.Hand) >= requiredStoppers
	if balanced && trumpIsLegal(state, game.NoTrumps) {
		return game.NoTrumps, nil
	}

	best := state.LegalTrumps[0]
	bestScore := t.evaluateHand(state.Hand, state.HandSize, best)
	for _, trump := range state.LegalTrumps[1:] {
		score := t.evaluateHand(state.Hand, state.HandSize, trump)
		if score > bestScore {
			best = trump
			bestScore = score
		}
	}
	return best, nil
}

// ChoosePlay wins while tricks are still needed and ducks once the bid is
// met. The first-trick lead is patient: low from the longest suit rather
// than cashing top honors immediately.
func (t *Tactician) ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error) {
	if len(state.LegalPlays) == 0 {
		return game.Card{}, internalErr("empty legal play set")
	}
	legal := append([]game.Card(nil), state.LegalPlays...)
	game.SortCards(legal)

	need := int(state.MyBid()) - int(state.TricksWon[state.Seat])
	leading := len(state.TrickPlays) == 0

	if leading {
		if state.TrickNo == 1 && need > 0 {
			// Patient opening: low card from the longest suit.
			lengths := suitLengths(state.Hand)
			longest := legal[0].Suit
			for _, c := range legal {
				if lengths[c.Suit] > lengths[longest] {
					longest = c.Suit
				}
			}
			low := legal[0]
			found := false
			for _, c := range legal {
				if c.Suit == longest && (!found || c.Rank < low.Rank) {
					low = c
					found = true
				}
			}
			return low, nil
		}
		if need > 0 {
			// Chase: lead the highest card.
			best := legal[0]
			for _, c := range legal[1:] {
				if c.Rank > best.Rank {
					best = c
				}
			}
			return best, nil
		}
		// Duck: lead the lowest card.
		low := legal[0]
		for _, c := range legal[1:] {
			if c.Rank < low.Rank {
				low = c
			}
		}
		return low, nil
	}

	lead := state.TrickPlays[0].Card.Suit
	champion := currentWinningCard(state)

	if need > 0 {
		// Cheapest winner if one exists.
		var winner *game.Card
		for i := range legal {
			c := legal[i]
			if game.CardBeats(c, champion, lead, trumpOf(state)) {
				if winner == nil || c.Rank < winner.Rank {
					winner = &legal[i]
				}
			}
		}
		if winner != nil {
			return *winner, nil
		}
	}

	// Bid met: highest card that does not win, else lowest. Still needing
	// tricks but unable to win: lowest.
	var bestLoser *game.Card
	for i := range legal {
		c := legal[i]
		if !game.CardBeats(c, champion, lead, trumpOf(state)) {
			if bestLoser == nil || c.Rank > bestLoser.Rank {
				bestLoser = &legal[i]
			}
		}
	}
	if bestLoser != nil && need <= 0 {
		// Shed the most dangerous card that still loses.
		return *bestLoser, nil
	}
	low := legal[0]
	for _, c := range legal[1:] {
		if c.Rank < low.Rank {
			low = c
		}
	}
	return low, nil
}
