package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// Strategic is the flagship opponent: it models its remaining trick-taking
// potential as bucket expectations (trump control, cash, length, ruffs),
// classifies each legal card's win certainty, and scores cards against a
// policy derived from how far it is from its bid.
type Strategic struct{}

// NewStrategic creates a Strategic player. It is deterministic and uses no
// RNG; the config is accepted for registry uniformity.
func NewStrategic(Config) *Strategic {
	return &Strategic{}
}

// policy captures the urgency of the current score position.
type policy struct {
	need            int
	tricksRemaining int
	avoid           bool
	mustWinOut      bool
	endgame         bool
	pressure        float64
}

// winCertainty buckets how confident we are a card takes the trick.
type winCertainty int

const (
	winNo winCertainty = iota
	winFragile
	winLikely
	winSure
)

// expect is the bucket expectation of future tricks from the hand.
type expect struct {
	trump  float64
	cash   float64
	length float64
	ruff   float64
}

func (e expect) total() float64 {
	return e.trump + e.cash + e.length + e.ruff
}

func computePolicy(state *CurrentRoundInfo) policy {
	p := policy{}
	myBid := int(state.MyBid())
	won := int(state.TricksWon[state.Seat])
	p.tricksRemaining = int(state.TricksRemaining())

	p.need = myBid - won
	if p.need < 0 {
		p.need = 0
	}
	p.avoid = won >= myBid
	p.mustWinOut = p.tricksRemaining > 0 && p.need >= p.tricksRemaining

	endgameWindow := 3
	if state.HandSize >= 10 {
		endgameWindow = 4
	}
	p.endgame = p.tricksRemaining <= endgameWindow

	switch {
	case p.need == 0:
		p.pressure = -2
	case p.mustWinOut:
		p.pressure = 2
	default:
		p.pressure = clamp(float64(p.need)/float64(p.tricksRemaining)*1.5, -0.2, 1.5)
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cashWeight is the immediate cashing value of a high card.
func cashWeight(rank game.Rank) float64 {
	switch rank {
	case game.Ace:
		return 1.0
	case game.King:
		return 0.85
	case game.Queen:
		return 0.55
	case game.Jack:
		return 0.35
	case game.Ten:
		return 0.25
	}
	return 0
}

// rankFrac maps a rank linearly onto [0,1].
func rankFrac(rank game.Rank) float64 {
	return float64(rank-game.Two) / 12
}

// trackedHighsRemaining estimates how many of the five high cards (T..A) of
// the suit are still unaccounted for: not remembered as played and not in our
// own hand.
func trackedHighsRemaining(state *CurrentRoundInfo, mem *RoundMemory, suit game.Suit) int {
	remaining := 5 - mem.RememberedHighCards(suit)
	for _, c := range state.Hand {
		if c.Suit == suit && c.Rank >= game.Ten {
			remaining--
		}
	}
	// Highs played into the visible trick are certain, memory or not.
	for _, p := range state.TrickPlays {
		if p.Card.Suit == suit && p.Card.Rank >= game.Ten && !rememberedExactly(mem, p.Card) {
			remaining--
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func rememberedExactly(mem *RoundMemory, card game.Card) bool {
	if mem == nil {
		return false
	}
	for _, trick := range mem.Tricks {
		for _, sp := range trick.Plays {
			if sp.Play.Kind == MemoryExact && sp.Play.Card == card {
				return true
			}
		}
	}
	return false
}

// safeToRunSuitFactor scales length expectations in trump games by how safe a
// long side suit is to run. Zero whenever any opponent is known void (they
// will ruff); otherwise shrinks with weak trump holdings and with too few
// tricks left to establish the suit.
func safeToRunSuitFactor(suit game.Suit, voids *[game.NumPlayers][]game.Suit, mySeat game.Seat, trumpLen, suitLen, tricksRemaining int) float64 {
	for seat := game.Seat(0); seat < game.NumPlayers; seat++ {
		if seat == mySeat {
			continue
		}
		if KnownVoidIn(voids, seat, suit) {
			return 0
		}
	}
	f := 0.8
	if trumpLen < 2 {
		f *= 0.6
	}
	if tricksRemaining < suitLen {
		f *= 0.7
	}
	return clamp(f, 0, 0.8)
}

// computeExpectations builds the bucket expectations for the hand under the
// given trump contract.
func computeExpectations(state *CurrentRoundInfo, mem *RoundMemory, trump game.Trump) expect {
	var e expect
	lengths := suitLengths(state.Hand)
	trumpSuit, hasTrump := trump.Suit()
	voids := DetectOpponentVoids(mem)
	tricksRemaining := int(state.TricksRemaining())

	// E_cash: top three cards of each non-trump suit, rank-weighted and
	// discounted by how many tracked highs could still cover them.
	var topPerSuit [4][]game.Card
	for _, c := range state.Hand {
		if hasTrump && c.Suit == trumpSuit {
			continue
		}
		topPerSuit[c.Suit] = append(topPerSuit[c.Suit], c)
	}
	for suit, cards := range topPerSuit {
		if len(cards) == 0 {
			continue
		}
		game.SortCards(cards)
		// Hands are sorted ascending; walk the top three from the back.
		uncertainty := float64(trackedHighsRemaining(state, mem, game.Suit(suit))) / 5
		count := 0
		for i := len(cards) - 1; i >= 0 && count < 3; i, count = i-1, count+1 {
			w := cashWeight(cards[i].Rank)
			if cards[i].Rank != game.Ace {
				w *= 1 - 0.35*uncertainty
			}
			e.cash += w
		}
	}

	if hasTrump {
		trumpLen := lengths[trumpSuit]
		// Trump control scales up in short hands.
		handRatio := float64(state.HandSize) / 13
		scale := 2.5
		if handRatio > 0 && 1/handRatio < 2.5 {
			scale = 1 / handRatio
		}
		quality := 0.0
		for _, c := range state.Hand {
			if c.Suit == trumpSuit {
				quality += cashWeight(c.Rank)
			}
		}
		if trumpLen > 0 {
			e.trump = (0.35*float64(trumpLen-1) + quality) * scale * 0.5
		}

		// E_ruff: shortness elsewhere pays off only with trumps to spare.
		if trumpLen >= 2 {
			ratio := clamp(float64(trumpLen)/float64(state.HandSize), 0.2, 1.0)
			for suit, n := range lengths {
				if game.Suit(suit) == trumpSuit {
					continue
				}
				switch n {
				case 0:
					e.ruff += 0.55 * ratio
				case 1:
					e.ruff += 0.25 * ratio
				}
			}
		}

		// E_length: discounted by run safety.
		for suit, n := range lengths {
			if game.Suit(suit) == trumpSuit || n <= 3 {
				continue
			}
			f := safeToRunSuitFactor(game.Suit(suit), &voids, state.Seat, trumpLen, n, tricksRemaining)
			e.length += float64(n-3) * 0.55 * f
		}
	} else {
		for _, n := range lengths {
			if n > 3 {
				e.length += float64(n-3) * 0.55
			}
		}
	}
	return e
}

// classifyWin buckets a candidate card's chance of taking the current trick.
func classifyWin(state *CurrentRoundInfo, mem *RoundMemory, card game.Card) winCertainty {
	playersLeft := game.NumPlayers - 1 - len(state.TrickPlays)
	leading := len(state.TrickPlays) == 0

	var lead game.Suit
	if leading {
		lead = card.Suit
	} else {
		lead = state.TrickPlays[0].Card.Suit
		champion := currentWinningCard(state)
		if !game.CardBeats(card, champion, lead, trumpOf(state)) {
			return winNo
		}
		if playersLeft == 0 {
			return winSure
		}
	}

	risk := float64(trackedHighsRemaining(state, mem, lead)) / 5
	score := rankFrac(card.Rank) - 0.55*risk - 0.12*float64(playersLeft)
	if score >= 0.75 {
		return winLikely
	}
	return winFragile
}

// accidentalWinRisk estimates how likely a card wins a trick we are trying to
// lose: trumps and high lead-suit cards are dangerous discards, off-suit
// pips are safe.
func accidentalWinRisk(state *CurrentRoundInfo, card game.Card) float64 {
	if trumpSuit, ok := trumpOf(state).Suit(); ok && card.Suit == trumpSuit {
		return 0.5 + 0.5*rankFrac(card.Rank)
	}
	if len(state.TrickPlays) > 0 {
		if card.Suit == state.TrickPlays[0].Card.Suit {
			return 0.8 * rankFrac(card.Rank)
		}
		return 0.05
	}
	return 0.6 * rankFrac(card.Rank)
}

var pursueReward = map[winCertainty]float64{
	winSure:    3.0,
	winLikely:  2.4,
	winFragile: 1.2,
	winNo:      0,
}

var avoidPenalty = map[winCertainty]float64{
	winSure:    5.0,
	winLikely:  3.5,
	winFragile: 1.5,
	winNo:      0,
}

// scoreCard runs the full scorer for one legal card.
func scoreCard(state *CurrentRoundInfo, mem *RoundMemory, p policy, e expect, card game.Card) float64 {
	certainty := classifyWin(state, mem, card)
	playersLeft := game.NumPlayers - 1 - len(state.TrickPlays)
	score := 0.0

	if p.avoid {
		score -= avoidPenalty[certainty]
		score -= accidentalWinRisk(state, card) * 2.0
	} else {
		reward := pursueReward[certainty]
		if certainty == winFragile && playersLeft > 0 {
			reward *= 0.6
		}
		score += reward
		score += p.pressure * reward * 0.35
	}

	// Pace: compare expected future tricks against need.
	total := e.total()
	trumpSuit, hasTrump := trumpOf(state).Suit()
	switch {
	case total+0.25 < float64(p.need):
		// Behind: spend trump control and cashing power now.
		if hasTrump && card.Suit == trumpSuit {
			score += 0.25
		}
		score += 0.3 * cashWeight(card.Rank)
	case total > float64(p.need)+0.75:
		// Ahead: dump high cards to shed future forced wins.
		score += 0.3 * rankFrac(card.Rank)
	}

	if !p.mustWinOut {
		score -= cashWeight(card.Rank) * 0.05
	}
	return score
}

// lowestCard returns the lowest card by rank (suit order breaking ties).
func lowestCard(cards []game.Card) game.Card {
	low := cards[0]
	for _, c := range cards[1:] {
		if c.Rank < low.Rank || (c.Rank == low.Rank && c.Less(low)) {
			low = c
		}
	}
	return low
}

// highestCard returns the highest card by rank.
func highestCard(cards []game.Card) game.Card {
	high := cards[0]
	for _, c := range cards[1:] {
		if c.Rank > high.Rank || (c.Rank == high.Rank && high.Less(c)) {
			high = c
		}
	}
	return high
}

// endgamePlay applies the hard rules that override the scorer once few
// tricks remain. Returns false when no hard rule fires.
func endgamePlay(state *CurrentRoundInfo, p policy, legal []game.Card) (game.Card, bool) {
	if !p.endgame {
		return game.Card{}, false
	}
	leading := len(state.TrickPlays) == 0

	if p.avoid {
		if leading {
			return lowestCard(legal), true
		}
		champion := currentWinningCard(state)
		lead := state.TrickPlays[0].Card.Suit
		var losers []game.Card
		for _, c := range legal {
			if !game.CardBeats(c, champion, lead, trumpOf(state)) {
				losers = append(losers, c)
			}
		}
		if len(losers) > 0 {
			return lowestCard(losers), true
		}
		return lowestCard(legal), true
	}

	if p.mustWinOut {
		if leading {
			if trumpSuit, ok := trumpOf(state).Suit(); ok {
				var trumps []game.Card
				for _, c := range legal {
					if c.Suit == trumpSuit {
						trumps = append(trumps, c)
					}
				}
				if len(trumps) > 0 {
					return highestCard(trumps), true
				}
			}
			return highestCard(legal), true
		}
		champion := currentWinningCard(state)
		lead := state.TrickPlays[0].Card.Suit
		var cheapest *game.Card
		for i := range legal {
			c := legal[i]
			if game.CardBeats(c, champion, lead, trumpOf(state)) {
				if cheapest == nil || c.Rank < cheapest.Rank {
					cheapest = &legal[i]
				}
			}
		}
		if cheapest != nil {
			return *cheapest, true
		}
		return lowestCard(legal), true
	}
	return game.Card{}, false
}

// ChoosePlay scores every legal card and plays the best, with endgame hard
// rules taking precedence. Exact score ties fall to the lexicographically
// smallest card.
func (s *Strategic) ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error) {
	if len(state.LegalPlays) == 0 {
		return game.Card{}, internalErr("empty legal play set")
	}
	legal := append([]game.Card(nil), state.LegalPlays...)
	game.SortCards(legal)

	p := computePolicy(state)
	if card, ok := endgamePlay(state, p, legal); ok {
		return card, nil
	}

	var mem *RoundMemory
	if ctx != nil {
		mem = ctx.Memory
	}
	e := computeExpectations(state, mem, trumpOf(state))

	best := legal[0]
	bestScore := scoreCard(state, mem, p, e, best)
	for _, c := range legal[1:] {
		score := scoreCard(state, mem, p, e, c)
		// Strictly greater keeps the lexicographically smallest on ties.
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, nil
}

// estimateTricks is the bidding-time hand evaluation: scaled honor weights
// (low cards promote in small hands), shape and short-suit bonuses.
func (s *Strategic) estimateTricks(state *CurrentRoundInfo, mem *RoundMemory) float64 {
	bestTotal := 0.0
	for _, trump := range legalOrAllTrumps(state) {
		e := computeExpectations(state, mem, trump)
		if e.total() > bestTotal {
			bestTotal = e.total()
		}
	}

	// In small hands even middling cards win tricks; fold a per-card floor
	// into the estimate.
	if state.HandSize <= 4 {
		for _, c := range state.Hand {
			if c.Rank >= game.Eight && c.Rank <= game.Jack {
				bestTotal += 0.1
			}
		}
	}
	return bestTotal
}

func legalOrAllTrumps(state *CurrentRoundInfo) []game.Trump {
	if len(state.LegalTrumps) > 0 {
		return state.LegalTrumps
	}
	return game.Trumps[:]
}

// ChooseBid estimates expected tricks, adjusts for visible opponent bids,
// seat position and history, applies a magnitude-dependent conservative
// correction and clamps to the legal set (preferring the lower bid on ties).
func (s *Strategic) ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error) {
	var mem *RoundMemory
	var history *GameHistory
	if ctx != nil {
		mem = ctx.Memory
		history = ctx.History
	}
	estimate := s.estimateTricks(state, mem)

	// Visible opponent bids: if the table is already claiming most of the
	// tricks, shave; if they are pessimistic, the remainder is ours.
	claimed, bidders := 0, 0
	for seat, b := range state.Bids {
		if game.Seat(seat) == state.Seat || b == game.BidUnset {
			continue
		}
		claimed += int(b)
		bidders++
	}
	if bidders > 0 {
		expected := float64(state.HandSize) * float64(bidders) / 4
		estimate += clamp((expected-float64(claimed))*0.15, -0.5, 0.5)
	}

	// Winning the auction means leading trick one; strong hands convert that
	// tempo into a trick more often.
	estimate += clamp(estimate*0.03, 0, 0.3)

	// As last bidder, a table that left a lot of capacity frees us to bid up.
	if bidders == game.NumPlayers-1 {
		remaining := int(state.HandSize) - claimed
		if remaining > int(state.HandSize)/2 {
			estimate += 0.2
		}
	}

	estimate += historyBidSignal(history, state)

	// Conservative correction grows with bid magnitude relative to the hand.
	switch {
	case estimate >= float64(state.HandSize)*0.6:
		estimate -= 0.8
	case estimate >= float64(state.HandSize)*0.35:
		estimate -= 0.5
	default:
		estimate -= 0.3
	}

	estimate = clamp(estimate, 0, float64(state.HandSize))
	return clampBidToLegal(state, estimate)
}

// historyBidSignal nudges the estimate by how opponents have been landing
// their bids: a table of overbidders leaves more tricks on the floor. The
// adjustment is bounded to half a trick and weights recent rounds more.
func historyBidSignal(history *GameHistory, state *CurrentRoundInfo) float64 {
	if history == nil || len(history.Rounds) == 0 {
		return 0
	}
	signal, weightSum := 0.0, 0.0
	for i, round := range history.Rounds {
		weight := float64(i+1) / float64(len(history.Rounds))
		for seat := game.Seat(0); seat < game.NumPlayers; seat++ {
			if seat == state.Seat || round.Bids[seat] == game.BidUnset {
				continue
			}
			diff := float64(round.TricksWon[seat]) - float64(round.Bids[seat])
			signal += diff * weight
			weightSum += weight
		}
	}
	if weightSum == 0 {
		return 0
	}
	return clamp(-signal/weightSum*0.3, -0.5, 0.5)
}

// ChooseTrump simulates bucket expectations under each legal trump and keeps
// the maximum, preferring no-trumps for balanced stopper-rich hands. Exact
// ties break deterministically by (round + seat) over the tied candidates.
func (s *Strategic) ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error) {
	if len(state.LegalTrumps) == 0 {
		return 0, internalErr("empty legal trump set")
	}
	var mem *RoundMemory
	if ctx != nil {
		mem = ctx.Memory
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
	if minLen >= 1 && maxLen <= 6 && stopperCount(state.Hand) >= requiredStoppers &&
		trumpIsLegal(state, game.NoTrumps) {
		return game.NoTrumps, nil
	}

	bestScore := -1.0
	var tied []game.Trump
	for _, trump := range state.LegalTrumps {
		score := computeExpectations(state, mem, trump).total()
		if score > bestScore {
			bestScore = score
			tied = tied[:0]
			tied = append(tied, trump)
		} else if score == bestScore {
			tied = append(tied, trump)
		}
	}
	pick := tied[(int(state.RoundNo)+int(state.Seat))%len(tied)]
	return pick, nil
}
