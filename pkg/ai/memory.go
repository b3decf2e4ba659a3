package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// PlayMemoryKind distinguishes how well a past play is remembered.
type PlayMemoryKind uint8

const (
	// MemoryExact remembers the card.
	MemoryExact PlayMemoryKind = iota
	// MemorySuit remembers only the suit.
	MemorySuit
	// MemoryUnknown remembers nothing.
	MemoryUnknown
)

// PlayMemory is one remembered play, possibly degraded.
type PlayMemory struct {
	Kind PlayMemoryKind
	Card game.Card // valid when Kind == MemoryExact
	Suit game.Suit // valid when Kind == MemorySuit
}

// SuitOf returns the remembered suit, if any survives degradation.
func (p PlayMemory) SuitOf() (game.Suit, bool) {
	switch p.Kind {
	case MemoryExact:
		return p.Card.Suit, true
	case MemorySuit:
		return p.Suit, true
	}
	return 0, false
}

// SeatPlayMemory pairs a remembered play with the seat that made it.
type SeatPlayMemory struct {
	Seat game.Seat
	Play PlayMemory
}

// TrickMemory is the remembered sequence of plays of one trick, in play
// order.
type TrickMemory struct {
	Plays []SeatPlayMemory
}

// LeadSuit returns the trick's apparent lead suit: the remembered suit of the
// first play, if it survived degradation.
func (t *TrickMemory) LeadSuit() (game.Suit, bool) {
	if len(t.Plays) == 0 {
		return 0, false
	}
	return t.Plays[0].Play.SuitOf()
}

// RoundMemory is the per-player memory of the round's tricks so far, oldest
// first. The final entry may be the in-progress trick.
type RoundMemory struct {
	Tricks []TrickMemory
}

// MemoryMode buckets the integer memory level.
type MemoryMode uint8

const (
	MemoryNone MemoryMode = iota
	MemoryPartial
	MemoryFull
)

// ModeForLevel maps a memory level in [0,100] to its mode.
func ModeForLevel(level int) MemoryMode {
	switch {
	case level <= 0:
		return MemoryNone
	case level >= 100:
		return MemoryFull
	default:
		return MemoryPartial
	}
}

// BuildRoundMemory degrades the round's played tricks into a RoundMemory for
// one AI seat. The PRNG is seeded from the deterministic memory seed, and
// plays are visited in a fixed order, so repeated calls within a round return
// identical memories.
//
// Per play, with probability level/100 the card is kept exactly; otherwise
// with probability 0.5*(1-level/100) it degrades to its suit, else to
// Unknown. With recency enabled, older tricks degrade harder: the keep
// probability is scaled by a linear weight that never shrinks for more recent
// tricks.
func BuildRoundMemory(tricks [][]game.SeatCard, level int, seed [32]byte, recency bool) *RoundMemory {
	mem := &RoundMemory{Tricks: make([]TrickMemory, 0, len(tricks))}
	mode := ModeForLevel(level)
	rng := game.NewRand(seed)
	trickCount := len(tricks)

	for trickIdx, plays := range tricks {
		tm := TrickMemory{Plays: make([]SeatPlayMemory, 0, len(plays))}
		keep := float64(level) / 100
		if recency && trickCount > 1 {
			// Linear ramp from 0.5x for the oldest trick to 1.0x for the
			// newest; monotone non-decreasing in recency.
			weight := 0.5 + 0.5*float64(trickIdx)/float64(trickCount-1)
			keep *= weight
		}
		suitProb := 0.5 * (1 - float64(level)/100)

		for _, play := range plays {
			// Always consume one draw per play so the stream stays aligned
			// regardless of mode.
			roll := rng.Float64()
			var pm PlayMemory
			switch mode {
			case MemoryFull:
				pm = PlayMemory{Kind: MemoryExact, Card: play.Card}
			case MemoryNone:
				pm = PlayMemory{Kind: MemoryUnknown}
			default:
				switch {
				case roll < keep:
					pm = PlayMemory{Kind: MemoryExact, Card: play.Card}
				case roll < keep+suitProb:
					pm = PlayMemory{Kind: MemorySuit, Suit: play.Card.Suit}
				default:
					pm = PlayMemory{Kind: MemoryUnknown}
				}
			}
			tm.Plays = append(tm.Plays, SeatPlayMemory{Seat: play.Seat, Play: pm})
		}
		mem.Tricks = append(mem.Tricks, tm)
	}
	return mem
}

// DetectOpponentVoids scans the memory for follow-suit violations: a seat is
// void in a suit if some trick's apparent lead was that suit and the seat is
// remembered playing another suit. Unknown plays contribute no evidence.
func DetectOpponentVoids(mem *RoundMemory) [game.NumPlayers][]game.Suit {
	var voids [game.NumPlayers][]game.Suit
	if mem == nil {
		return voids
	}
	var seen [game.NumPlayers][4]bool
	for _, trick := range mem.Tricks {
		lead, ok := trick.LeadSuit()
		if !ok {
			continue
		}
		for _, sp := range trick.Plays[1:] {
			suit, ok := sp.Play.SuitOf()
			if !ok || suit == lead {
				continue
			}
			if !seen[sp.Seat][lead] {
				seen[sp.Seat][lead] = true
				voids[sp.Seat] = append(voids[sp.Seat], lead)
			}
		}
	}
	return voids
}

// KnownVoidIn reports whether the voids table marks seat void in suit.
func KnownVoidIn(voids *[game.NumPlayers][]game.Suit, seat game.Seat, suit game.Suit) bool {
	for _, s := range voids[seat] {
		if s == suit {
			return true
		}
	}
	return false
}

// RememberedHighCards counts the remembered played cards of the suit ranked
// Ten or above. Strategies use this to estimate how many dangerous cards are
// gone.
func (m *RoundMemory) RememberedHighCards(suit game.Suit) int {
	if m == nil {
		return 0
	}
	n := 0
	for _, trick := range m.Tricks {
		for _, sp := range trick.Plays {
			if sp.Play.Kind == MemoryExact && sp.Play.Card.Suit == suit && sp.Play.Card.Rank >= game.Ten {
				n++
			}
		}
	}
	return n
}
