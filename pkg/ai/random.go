package ai

import (
	"github.com/robpatriot/nommie-server/pkg/game"
)

// Random picks uniformly from the legal set. Deterministic for a fixed seed
// and state: the PRNG is re-derived from the seed and the decision point, so
// the choice is a pure function of (seed, state).
type Random struct {
	seed uint64
}

// NewRandom creates a Random strategy from its config.
func NewRandom(cfg Config) *Random {
	return &Random{seed: cfg.SeedOr(0)}
}

// decisionRand derives a fresh PRNG for one decision point.
func (r *Random) decisionRand(state *CurrentRoundInfo, kind uint64) *game.Rand {
	mix := kind<<32 |
		uint64(state.RoundNo)<<24 |
		uint64(state.TrickNo)<<16 |
		uint64(len(state.TrickPlays))<<8 |
		uint64(state.Seat)
	return game.NewRand(game.Mix32(r.seed, mix))
}

// ChooseBid picks a uniform legal bid.
func (r *Random) ChooseBid(state *CurrentRoundInfo, ctx *GameContext) (uint8, error) {
	if len(state.LegalBids) == 0 {
		return 0, internalErr("empty legal bid set")
	}
	rng := r.decisionRand(state, 1)
	return state.LegalBids[rng.Intn(len(state.LegalBids))], nil
}

// ChooseTrump picks a uniform legal trump.
func (r *Random) ChooseTrump(state *CurrentRoundInfo, ctx *GameContext) (game.Trump, error) {
	if len(state.LegalTrumps) == 0 {
		return 0, internalErr("empty legal trump set")
	}
	rng := r.decisionRand(state, 2)
	return state.LegalTrumps[rng.Intn(len(state.LegalTrumps))], nil
}

// ChoosePlay picks a uniform legal card.
func (r *Random) ChoosePlay(state *CurrentRoundInfo, ctx *GameContext) (game.Card, error) {
	if len(state.LegalPlays) == 0 {
		return game.Card{}, internalErr("empty legal play set")
	}
	rng := r.decisionRand(state, 3)
	return state.LegalPlays[rng.Intn(len(state.LegalPlays))], nil
}
