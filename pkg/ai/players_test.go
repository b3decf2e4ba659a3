package ai

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robpatriot/nommie-server/pkg/game"
)

func allPlayers(t *testing.T) map[string]Player {
	t.Helper()
	seed := uint64(1234)
	players := make(map[string]Player)
	for _, name := range DefaultRegistry().Names() {
		p, err := DefaultRegistry().Build(name, Config{Seed: &seed})
		require.NoError(t, err)
		players[name] = p
	}
	return players
}

func containsBid(bids []uint8, bid uint8) bool {
	for _, b := range bids {
		if b == bid {
			return true
		}
	}
	return false
}

func containsCard(cards []game.Card, card game.Card) bool {
	for _, c := range cards {
		if c == card {
			return true
		}
	}
	return false
}

func containsTrump(trumps []game.Trump, trump game.Trump) bool {
	for _, tr := range trumps {
		if tr == trump {
			return true
		}
	}
	return false
}

// TestAllStrategiesAlwaysLegal drives full engine rounds with every strategy
// consulted at every decision point, asserting each returned value is in the
// legal set.
func TestAllStrategiesAlwaysLegal(t *testing.T) {
	players := allPlayers(t)

	for gameSeed := uint64(1); gameSeed <= 8; gameSeed++ {
		g := game.NewLobbyState(gameSeed)
		require.NoError(t, g.DealRound())

		var playedTricks [][]game.SeatCard
		for g.Phase.Kind != game.PhaseScoring {
			seat := g.Turn
			if g.Phase.Kind == game.PhaseTrumpSelect {
				seat = g.Round.WinningBidder
			}
			info := BuildCurrentRoundInfo(g, seat)
			ctx := &GameContext{
				GameID: int64(gameSeed),
				Memory: BuildRoundMemory(playedTricks, 80,
					game.DeriveMemorySeed(gameSeed, g.RoundNo, seat), true),
			}

			switch g.Phase.Kind {
			case game.PhaseBidding:
				for name, p := range players {
					bid, err := p.ChooseBid(info, ctx)
					require.NoError(t, err, "%s bid", name)
					require.True(t, containsBid(info.LegalBids, bid),
						"%s bid %d not in %v", name, bid, info.LegalBids)
				}
				// Advance with the strategic choice.
				bid, err := players["strategic"].ChooseBid(info, ctx)
				require.NoError(t, err)
				require.NoError(t, g.PlaceBid(seat, bid))

			case game.PhaseTrumpSelect:
				for name, p := range players {
					trump, err := p.ChooseTrump(info, ctx)
					require.NoError(t, err, "%s trump", name)
					require.True(t, containsTrump(info.LegalTrumps, trump),
						"%s trump %v not in %v", name, trump, info.LegalTrumps)
				}
				trump, err := players["tactician"].ChooseTrump(info, ctx)
				require.NoError(t, err)
				require.NoError(t, g.SetTrump(seat, trump))

			case game.PhaseTrick:
				before := len(g.Round.TrickPlays)
				for name, p := range players {
					card, err := p.ChoosePlay(info, ctx)
					require.NoError(t, err, "%s play", name)
					require.True(t, containsCard(info.LegalPlays, card),
						"%s play %v not in %v", name, card, info.LegalPlays)
				}
				card, err := players["reckoner"].ChoosePlay(info, ctx)
				require.NoError(t, err)
				trickBefore := append([]game.SeatCard(nil), g.Round.TrickPlays...)
				require.NoError(t, g.PlayCard(seat, card))
				if before == game.NumPlayers-1 {
					full := append(trickBefore, game.SeatCard{Seat: seat, Card: card})
					playedTricks = append(playedTricks, full)
				}
			default:
				t.Fatalf("unexpected phase %s", g.Phase.Kind)
			}
		}
		require.Equal(t, int(g.HandSize), g.Round.TotalTricksWon())
	}
}

// TestStrategyDeterminism replays identical states and requires identical
// choices for every strategy.
func TestStrategyDeterminism(t *testing.T) {
	g := game.NewLobbyState(555)
	require.NoError(t, g.DealRound())

	info := BuildCurrentRoundInfo(g, g.Turn)
	ctx := &GameContext{GameID: 1}

	for _, name := range DefaultRegistry().Names() {
		t.Run(name, func(t *testing.T) {
			seed := uint64(99)
			a, err := DefaultRegistry().Build(name, Config{Seed: &seed})
			require.NoError(t, err)
			b, err := DefaultRegistry().Build(name, Config{Seed: &seed})
			require.NoError(t, err)

			bidA, err := a.ChooseBid(info, ctx)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				bidB, err := b.ChooseBid(info, ctx)
				require.NoError(t, err)
				require.Equal(t, bidA, bidB, "repeated calls must agree")
			}
		})
	}
}

func TestRandomSeedChangesChoices(t *testing.T) {
	// Two seeds should disagree on at least one of several decision points.
	differs := false
	for gameSeed := uint64(1); gameSeed <= 6 && !differs; gameSeed++ {
		g := game.NewLobbyState(gameSeed)
		require.NoError(t, g.DealRound())
		info := BuildCurrentRoundInfo(g, g.Turn)

		s1, s2 := uint64(1), uint64(2)
		a := NewRandom(Config{Seed: &s1})
		b := NewRandom(Config{Seed: &s2})
		bidA, err := a.ChooseBid(info, nil)
		require.NoError(t, err)
		bidB, err := b.ChooseBid(info, nil)
		require.NoError(t, err)
		if bidA != bidB {
			differs = true
		}
	}
	require.True(t, differs, "different seeds should eventually disagree")
}

func TestStrategicEndgameMustWinOut(t *testing.T) {
	// Two tricks remain, bid needs both: the strategic player must take the
	// cheapest winner when following.
	g := game.NewLobbyState(1)
	g.Phase = game.TrickPhase(2)
	g.RoundNo = 11
	g.HandSize = 3
	g.TrickNo = 2
	g.Dealer = 3
	g.Leader = 1
	g.Turn = 2
	g.Round = game.NewRoundState()
	g.Round.Trump = game.TrumpHearts
	g.Round.TrumpSet = true
	g.Round.Bids = [game.NumPlayers]int8{0, 1, 2, 0}
	g.Round.WinningBidder = 2
	g.Round.Hands[2] = []game.Card{game.MustCard("QS"), game.MustCard("AS")}
	g.Round.TrickPlays = []game.SeatCard{{Seat: 1, Card: game.MustCard("TS")}}

	info := BuildCurrentRoundInfo(g, 2)
	p := NewStrategic(Config{})
	card, err := p.ChoosePlay(info, &GameContext{})
	require.NoError(t, err)
	require.Equal(t, game.MustCard("QS"), card,
		"must-win-out following should take the cheapest winner")
}

func TestStrategicEndgameAvoidsWinning(t *testing.T) {
	// Bid already met: in the endgame the strategic player ducks with the
	// lowest non-winning card.
	g := game.NewLobbyState(1)
	g.Phase = game.TrickPhase(3)
	g.RoundNo = 11
	g.HandSize = 3
	g.TrickNo = 3
	g.Dealer = 3
	g.Leader = 1
	g.Turn = 2
	g.Round = game.NewRoundState()
	g.Round.Trump = game.NoTrumps
	g.Round.TrumpSet = true
	g.Round.Bids = [game.NumPlayers]int8{1, 1, 1, 0}
	g.Round.TricksWon = [game.NumPlayers]uint8{1, 0, 1, 0} // seat 2's bid met
	g.Round.WinningBidder = 1
	g.Round.Hands[2] = []game.Card{game.MustCard("2S"), game.MustCard("KS")}
	g.Round.TrickPlays = []game.SeatCard{{Seat: 1, Card: game.MustCard("QS")}}

	info := BuildCurrentRoundInfo(g, 2)
	p := NewStrategic(Config{})
	card, err := p.ChoosePlay(info, &GameContext{})
	require.NoError(t, err)
	require.Equal(t, game.MustCard("2S"), card,
		"avoid mode should duck under the queen")
}

func TestClampBidPrefersLowerOnTies(t *testing.T) {
	state := &CurrentRoundInfo{LegalBids: []uint8{0, 1, 2, 3}}
	bid, err := clampBidToLegal(state, 1.5)
	require.NoError(t, err)
	require.EqualValues(t, 1, bid)
}

func TestRegistryUnknownStrategy(t *testing.T) {
	_, err := DefaultRegistry().Build("does-not-exist", Config{})
	require.Error(t, err)
	require.Contains(t, fmt.Sprint(err), "unknown ai strategy")
}
