package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robpatriot/nommie-server/pkg/game"
)

func sampleTricks(t *testing.T) [][]game.SeatCard {
	t.Helper()
	return [][]game.SeatCard{
		{
			{Seat: 1, Card: game.MustCard("TS")},
			{Seat: 2, Card: game.MustCard("QS")},
			{Seat: 3, Card: game.MustCard("5D")},
			{Seat: 0, Card: game.MustCard("AS")},
		},
		{
			{Seat: 0, Card: game.MustCard("KH")},
			{Seat: 1, Card: game.MustCard("3H")},
			{Seat: 2, Card: game.MustCard("6C")},
			{Seat: 3, Card: game.MustCard("7H")},
		},
	}
}

func TestMemoryModeFull(t *testing.T) {
	mem := BuildRoundMemory(sampleTricks(t), 100, game.DeriveMemorySeed(1, 1, 0), false)
	require.Len(t, mem.Tricks, 2)
	for _, trick := range mem.Tricks {
		for _, sp := range trick.Plays {
			assert.Equal(t, MemoryExact, sp.Play.Kind)
		}
	}
}

func TestMemoryModeNone(t *testing.T) {
	mem := BuildRoundMemory(sampleTricks(t), 0, game.DeriveMemorySeed(1, 1, 0), false)
	for _, trick := range mem.Tricks {
		for _, sp := range trick.Plays {
			assert.Equal(t, MemoryUnknown, sp.Play.Kind)
		}
	}
}

func TestMemoryPartialStableWithinRound(t *testing.T) {
	seed := game.DeriveMemorySeed(42, 7, 2)
	a := BuildRoundMemory(sampleTricks(t), 50, seed, true)
	b := BuildRoundMemory(sampleTricks(t), 50, seed, true)
	require.Equal(t, a, b, "memory must be stable across calls within a round")
}

func TestMemorySeedSeparation(t *testing.T) {
	// Different seats get independent degradation streams.
	a := game.DeriveMemorySeed(42, 7, 0)
	b := game.DeriveMemorySeed(42, 7, 1)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, game.DeriveMemorySeed(42, 7, 0), game.DeriveMemorySeed(42, 8, 0))
}

func TestMemoryPartialDistribution(t *testing.T) {
	// Over many plays, a level-60 memory keeps roughly 60% exact and
	// degrades roughly 20% to suit-only.
	var tricks [][]game.SeatCard
	deck := game.NewDeck()
	for i := 0; i+4 <= len(deck); i += 4 {
		trick := make([]game.SeatCard, 4)
		for j := 0; j < 4; j++ {
			trick[j] = game.SeatCard{Seat: game.Seat(j), Card: deck[i+j]}
		}
		tricks = append(tricks, trick)
	}

	exact, suit, unknown := 0, 0, 0
	for round := uint8(1); round <= 50; round++ {
		mem := BuildRoundMemory(tricks, 60, game.DeriveMemorySeed(9, round, 0), false)
		for _, trick := range mem.Tricks {
			for _, sp := range trick.Plays {
				switch sp.Play.Kind {
				case MemoryExact:
					exact++
				case MemorySuit:
					suit++
				default:
					unknown++
				}
			}
		}
	}
	total := float64(exact + suit + unknown)
	assert.InDelta(t, 0.60, float64(exact)/total, 0.05)
	assert.InDelta(t, 0.20, float64(suit)/total, 0.05)
	assert.InDelta(t, 0.20, float64(unknown)/total, 0.05)
}

func TestMemoryRecencyFavorsLaterTricks(t *testing.T) {
	// With recency enabled, the newest tricks must keep at least as much as
	// the oldest, aggregated over many seeds.
	var tricks [][]game.SeatCard
	deck := game.NewDeck()
	for i := 0; i+4 <= 48; i += 4 {
		trick := make([]game.SeatCard, 4)
		for j := 0; j < 4; j++ {
			trick[j] = game.SeatCard{Seat: game.Seat(j), Card: deck[i+j]}
		}
		tricks = append(tricks, trick)
	}

	oldExact, newExact := 0, 0
	for s := uint64(0); s < 200; s++ {
		mem := BuildRoundMemory(tricks, 70, game.Mix32(s, 99), true)
		half := len(mem.Tricks) / 2
		for i, trick := range mem.Tricks {
			for _, sp := range trick.Plays {
				if sp.Play.Kind == MemoryExact {
					if i < half {
						oldExact++
					} else {
						newExact++
					}
				}
			}
		}
	}
	assert.Greater(t, newExact, oldExact,
		"recent tricks must degrade no more than older tricks")
}

func TestDetectOpponentVoids(t *testing.T) {
	// Seat 3 discarded a diamond on a spade lead: void in spades.
	mem := BuildRoundMemory(sampleTricks(t), 100, game.DeriveMemorySeed(1, 1, 0), false)
	voids := DetectOpponentVoids(mem)
	assert.True(t, KnownVoidIn(&voids, 3, game.Spades))
	assert.False(t, KnownVoidIn(&voids, 2, game.Spades))
	// Seat 2 discarded a club on a heart lead: void in hearts.
	assert.True(t, KnownVoidIn(&voids, 2, game.Hearts))
}

func TestDetectOpponentVoidsIgnoresUnknown(t *testing.T) {
	mem := BuildRoundMemory(sampleTricks(t), 0, game.DeriveMemorySeed(1, 1, 0), false)
	voids := DetectOpponentVoids(mem)
	for seat := range voids {
		assert.Empty(t, voids[seat], "unknown plays contribute no void evidence")
	}
}

func TestConfigMergeAndUnknownKeys(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"seed": 7, "memory_recency": true, "wat": [1,2]}`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.EqualValues(t, 7, *cfg.Seed)
	assert.True(t, cfg.MemoryRecency)

	override, err := ParseConfig([]byte(`{"seed": 9}`))
	require.NoError(t, err)
	merged := cfg.Merge(override)
	assert.EqualValues(t, 9, *merged.Seed)
	assert.True(t, merged.MemoryRecency, "unset override fields keep profile values")
}
