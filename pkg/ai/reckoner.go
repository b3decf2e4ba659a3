package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// Reckoner is a close sibling of Strategic tuned for tempo: it treats "win
// security" as the primary signal (how safe a win is given who still acts)
// and is harsher about accidental wins when ducking. It uses no RNG at all.
type Reckoner struct{}

// NewReckoner creates a Reckoner.
func NewReckoner(Config) *Reckoner {
	return &Reckoner{}
}

// winSecurity scores how firmly a card would hold the trick in [0,1]:
// 1.0 is uncontestable, 0 is an immediate loss.
func winSecurity(state *CurrentRoundInfo, mem *RoundMemory, card game.Card) float64 {
	playersLeft := game.NumPlayers - 1 - len(state.TrickPlays)
	leading := len(state.TrickPlays) == 0

	lead := card.Suit
	if !leading {
		lead = state.TrickPlays[0].Card.Suit
		champion := currentWinningCard(state)
		if !game.CardBeats(card, champion, lead, trumpOf(state)) {
			return 0
		}
		if playersLeft == 0 {
			return 1
		}
	}

	security := rankFrac(card.Rank)
	if trumpSuit, ok := trumpOf(state).Suit(); ok {
		if card.Suit == trumpSuit {
			security = 0.5 + 0.5*security
		} else {
			// A plain-suit winner is only as safe as the chance nobody ruffs.
			voids := DetectOpponentVoids(mem)
			for seat := game.Seat(0); seat < game.NumPlayers; seat++ {
				if seat != state.Seat && KnownVoidIn(&voids, seat, lead) {
					return 0.05
				}
			}
		}
	}
	security -= 0.5 * float64(trackedHighsRemaining(state, mem, lead)) / 5
	security -= 0.1 * float64(playersLeft)
	return clamp(security, 0, 1)
}

// ChoosePlay targets landing the bid exactly: secure wins while tricks are
// needed, hard ducks afterwards.
func (r *Reckoner) ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error) {
	if len(state.LegalPlays) == 0 {
		return game.Card{}, internalErr("empty legal play set")
	}
	legal := append([]game.Card(nil), state.LegalPlays...)
	game.SortCards(legal)

	var mem *RoundMemory
	if ctx != nil {
		mem = ctx.Memory
	}
	p := computePolicy(state)

	// The endgame hard rules are shared with Strategic; both variants must
	// agree on forced positions.
	if card, ok := endgamePlay(state, p, legal); ok {
		return card, nil
	}

	best := legal[0]
	bestScore := r.scorePlay(state, mem, p, best)
	for _, c := range legal[1:] {
		score := r.scorePlay(state, mem, p, c)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, nil
}

func (r *Reckoner) scorePlay(state *CurrentRoundInfo, mem *RoundMemory, p policy, card game.Card) float64 {
	security := winSecurity(state, mem, card)

	if p.avoid {
		// Ducking: punish any win chance, and dangerous discards double.
		return -4.5*security - 2.5*accidentalWinRisk(state, card)
	}

	score := 3.2 * security
	// Tempo: fragile wins cost a high card better spent later; secure wins
	// early buy flexibility.
	if security < 0.45 {
		score *= 0.55
	}
	score += p.pressure * security * 0.4
	// Conserve top cash unless every remaining trick is required.
	if !p.mustWinOut {
		score -= cashWeight(card.Rank) * 0.08
	}
	return score
}

// ChooseBid mirrors Strategic's estimator but leans conservative one notch
// harder: the Reckoner would rather bid low and duck than chase.
func (r *Reckoner) ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error) {
	var mem *RoundMemory
	if ctx != nil {
		mem = ctx.Memory
	}
	estimate := 0.0
	for _, trump := range legalOrAllTrumps(state) {
		if total := computeExpectations(state, mem, trump).total(); total > estimate {
			estimate = total
		}
	}
	estimate -= 0.4
	if estimate >= float64(state.HandSize)*0.5 {
		estimate -= 0.3
	}
	estimate = clamp(estimate, 0, float64(state.HandSize))
	return clampBidToLegal(state, estimate)
}

// ChooseTrump shares Strategic's expectation-maximizing selection without
// the balanced-hand no-trumps shortcut: the Reckoner only goes trumpless
// when no suit expectation beats it.
func (r *Reckoner) ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error) {
	if len(state.LegalTrumps) == 0 {
		return 0, internalErr("empty legal trump set")
	}
	var mem *RoundMemory
	if ctx != nil {
		mem = ctx.Memory
	}
	best := state.LegalTrumps[0]
	bestScore := computeExpectations(state, mem, best).total()
	for _, trump := range state.LegalTrumps[1:] {
		score := computeExpectations(state, mem, trump).total()
		if score > bestScore {
			best = trump
			bestScore = score
		}
	}
	return best, nil
}
