package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robpatriot/nommie-server/pkg/game"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func TestMigrateSeedsDefaultProfiles(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := GetProfileByName(ctx, tx, "strategic")
		require.NoError(t, err)
		assert.Equal(t, "strategic", p.RegistryName)
		assert.True(t, p.MemoryLevel.Valid)
		return nil
	}))
	// Migrating twice is idempotent.
	require.NoError(t, d.Migrate(ctx))
}

func TestTouchGameOptimisticLock(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	var gameID int64
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		g, err := CreateGame(ctx, tx, "test", "alice", VisibilityPrivate, "JOIN1", 42)
		require.NoError(t, err)
		gameID = g.ID
		require.EqualValues(t, 1, g.Version)
		return nil
	}))

	// First writer wins 7 -> 8 style; here 1 -> 2.
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		g, err := TouchGame(ctx, tx, gameID, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, g.Version)
		return nil
	}))

	// Second writer with the stale version loses.
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := TouchGame(ctx, tx, gameID, 1)
		return err
	})
	require.ErrorIs(t, err, ErrOptimisticLock)

	// Monotonicity: each successful touch bumps by exactly one.
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		g, err := TouchGame(ctx, tx, gameID, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 3, g.Version)
		return nil
	}))
}

func TestLoadGameStateRoundTrip(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	var gameID int64
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := CreateGame(ctx, tx, "rt", "alice", VisibilityPrivate, "JOIN2", 42)
		require.NoError(t, err)
		gameID = row.ID

		// Deal round 1 through the domain and persist it.
		g := game.NewLobbyState(42)
		require.NoError(t, g.DealRound())

		roundID, err := InsertRound(ctx, tx, gameID, int(g.RoundNo), int(g.HandSize), g.Dealer)
		require.NoError(t, err)
		require.NoError(t, InsertHands(ctx, tx, roundID, g.Round.Hands))
		require.NoError(t, SetDealerStart(ctx, tx, gameID, g.Dealer))
		require.NoError(t, UpdateGamePhase(ctx, tx, gameID, StateBidding,
			sql.NullInt64{Int64: 1, Valid: true}, 0))

		// Two bids in order.
		require.NoError(t, InsertBid(ctx, tx, roundID, 1, 3, 0))
		require.NoError(t, InsertBid(ctx, tx, roundID, 2, 0, 1))
		return nil
	}))

	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		loaded, row, err := LoadGameState(ctx, tx, gameID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, row.Version)
		assert.Equal(t, game.PhaseBidding, loaded.Phase.Kind)
		assert.EqualValues(t, 1, loaded.RoundNo)
		assert.EqualValues(t, 13, loaded.HandSize)
		assert.Equal(t, game.Seat(0), loaded.Dealer)

		// Turn derives from bid count: dealer+1+2 = seat 3.
		assert.Equal(t, game.Seat(3), loaded.Turn)
		assert.EqualValues(t, 3, loaded.Round.Bids[1])
		assert.EqualValues(t, 0, loaded.Round.Bids[2])
		assert.EqualValues(t, game.BidUnset, loaded.Round.Bids[0])

		// The loaded hands must match a re-deal from the same seed.
		fresh := game.NewLobbyState(42)
		require.NoError(t, fresh.DealRound())
		assert.Equal(t, fresh.Round.Hands, loaded.Round.Hands)
		return nil
	}))
}

func TestLoadGameStateRemovesPlayedCards(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	var gameID int64
	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := CreateGame(ctx, tx, "plays", "alice", VisibilityPrivate, "JOIN3", 7)
		require.NoError(t, err)
		gameID = row.ID

		g := game.NewLobbyState(7)
		require.NoError(t, g.DealRound())
		roundID, err := InsertRound(ctx, tx, gameID, 1, int(g.HandSize), g.Dealer)
		require.NoError(t, err)
		require.NoError(t, InsertHands(ctx, tx, roundID, g.Round.Hands))

		// All four bids; seat 1 wins with 5 and picks spades.
		for order, sc := range []struct {
			seat game.Seat
			bid  uint8
		}{{1, 5}, {2, 1}, {3, 1}, {0, 2}} {
			require.NoError(t, InsertBid(ctx, tx, roundID, sc.seat, sc.bid, order))
		}
		require.NoError(t, SetRoundTrump(ctx, tx, roundID, game.TrumpSpades))

		// Seat 1 leads its first card into trick 1.
		lead := g.Round.Hands[1][0]
		trickID, err := EnsureTrick(ctx, tx, roundID, 1, lead.Suit)
		require.NoError(t, err)
		require.NoError(t, InsertTrickPlay(ctx, tx, trickID, 1, lead, 0))
		require.NoError(t, UpdateGamePhase(ctx, tx, gameID, StateTrick,
			sql.NullInt64{Int64: 1, Valid: true}, 1))
		return nil
	}))

	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		loaded, _, err := LoadGameState(ctx, tx, gameID)
		require.NoError(t, err)

		fresh := game.NewLobbyState(7)
		require.NoError(t, fresh.DealRound())
		played := fresh.Round.Hands[1][0]

		assert.Equal(t, game.PhaseTrick, loaded.Phase.Kind)
		assert.Len(t, loaded.Round.Hands[1], int(loaded.HandSize)-1,
			"played card must leave the hand")
		assert.False(t, loaded.Round.HasCard(1, played))
		require.Len(t, loaded.Round.TrickPlays, 1)
		assert.Equal(t, played, loaded.Round.TrickPlays[0].Card)

		// Winning bidder leads trick 1; one play done, so seat 2 acts.
		assert.Equal(t, game.Seat(1), loaded.Round.WinningBidder)
		assert.Equal(t, game.Seat(1), loaded.Leader)
		assert.Equal(t, game.Seat(2), loaded.Turn)
		assert.True(t, loaded.Round.TrumpSet)
		assert.Equal(t, game.TrumpSpades, loaded.Round.Trump)
		return nil
	}))
}

func TestScoreTotalsAndSummaries(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	require.NoError(t, d.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := CreateGame(ctx, tx, "scores", "alice", VisibilityPrivate, "JOIN4", 1)
		require.NoError(t, err)

		roundID, err := InsertRound(ctx, tx, row.ID, 1, 13, 0)
		require.NoError(t, err)
		var lines [game.NumPlayers]game.RoundScore
		for seat := game.Seat(0); seat < game.NumPlayers; seat++ {
			lines[seat] = game.RoundScore{
				Seat: seat, Bid: 3, TricksWon: 3, BidMet: true,
				Base: 3, Bonus: 10, RoundScore: 13, TotalAfter: 13,
			}
		}
		require.NoError(t, InsertRoundScores(ctx, tx, roundID, lines))
		require.NoError(t, CompleteRound(ctx, tx, roundID))

		totals, err := ScoreTotals(ctx, tx, row.ID)
		require.NoError(t, err)
		assert.Equal(t, [game.NumPlayers]int16{13, 13, 13, 13}, totals)

		summaries, err := GetRoundSummaries(ctx, tx, row.ID)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.EqualValues(t, 3, summaries[0].Bids[2])
		assert.EqualValues(t, 3, summaries[0].TricksWon[2])
		return nil
	}))
}

func TestMigrateLockGuard(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nommie.sqlite")
	ctx := context.Background()

	lock, err := AcquireMigrateLock(ctx, dbPath, time.Second)
	require.NoError(t, err)

	// A second holder must time out while the first holds the lock.
	_, err = AcquireMigrateLock(ctx, dbPath, 150*time.Millisecond)
	require.Error(t, err)

	require.NoError(t, lock.Release())
	// Double release is a no-op.
	require.NoError(t, lock.Release())

	// Lock is free again.
	lock2, err := AcquireMigrateLock(ctx, dbPath, time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
