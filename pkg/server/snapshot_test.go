package server

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robpatriot/nommie-server/pkg/game"
)

func testCache(t *testing.T) *SnapshotCache {
	t.Helper()
	cache, err := NewSnapshotCache(slog.NewBackend(io.Discard).Logger("T"), 16)
	require.NoError(t, err)
	return cache
}

func TestSnapshotCacheGetOrBuildDeduplicates(t *testing.T) {
	cache := testCache(t)
	var builds atomic.Int32
	release := make(chan struct{})

	build := func() (*SharedSnapshotParts, error) {
		builds.Add(1)
		<-release
		return &SharedSnapshotParts{Version: 5}, nil
	}

	const concurrency = 8
	var wg sync.WaitGroup
	results := make([]*SharedSnapshotParts, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parts, err := cache.GetOrBuild(1, 5, build)
			assert.NoError(t, err)
			results[i] = parts
		}(i)
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, builds.Load(), int32(2),
		"concurrent misses for one key must share a build")
	for _, parts := range results {
		assert.EqualValues(t, 5, parts.Version)
	}

	// Subsequent gets hit the cache.
	before := builds.Load()
	_, err := cache.GetOrBuild(1, 5, build)
	require.NoError(t, err)
	assert.Equal(t, before, builds.Load())
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	cache := testCache(t)
	_, err := cache.GetOrBuild(1, 4, func() (*SharedSnapshotParts, error) {
		return &SharedSnapshotParts{Version: 4}, nil
	})
	require.NoError(t, err)

	_, ok := cache.Get(1, 4)
	require.True(t, ok)

	cache.Invalidate(1, 4)
	_, ok = cache.Get(1, 4)
	assert.False(t, ok, "invalidated entry must be gone")

	// Other games and versions are untouched.
	_, err = cache.GetOrBuild(2, 4, func() (*SharedSnapshotParts, error) {
		return &SharedSnapshotParts{Version: 4}, nil
	})
	require.NoError(t, err)
	cache.Invalidate(1, 4)
	_, ok = cache.Get(2, 4)
	assert.True(t, ok)
}

func TestBuildPublicSnapshotOmitsHands(t *testing.T) {
	g := game.NewLobbyState(42)
	require.NoError(t, g.DealRound())

	header := GameHeader{ID: 1, Version: 3, State: "BIDDING"}
	shared := BuildPublicSnapshot(g, header)

	assert.Equal(t, "Bidding", shared.Snapshot.Phase.Phase)
	require.NotNil(t, shared.Snapshot.Phase.ToAct)
	assert.Equal(t, 1, *shared.Snapshot.Phase.ToAct)
	require.NotNil(t, shared.Snapshot.Phase.MaxBid)
	assert.EqualValues(t, 13, *shared.Snapshot.Phase.MaxBid)

	// Hands live only in the server-side bundle for viewer projection.
	for seat := 0; seat < game.NumPlayers; seat++ {
		assert.Len(t, shared.Hands[seat], 13)
	}
}

func TestBuildPublicSnapshotTrickPhase(t *testing.T) {
	g := game.NewLobbyState(7)
	require.NoError(t, g.DealRound())
	for g.Phase.Kind == game.PhaseBidding {
		require.NoError(t, g.PlaceBid(g.Turn, g.LegalBids(g.Turn)[0]))
	}
	require.NoError(t, g.SetTrump(g.Round.WinningBidder, game.TrumpHearts))
	require.NoError(t, g.PlayCard(g.Turn, g.LegalMoves(g.Turn)[0]))

	shared := BuildPublicSnapshot(g, GameHeader{ID: 1, Version: 9})
	phase := shared.Snapshot.Phase
	assert.Equal(t, "Trick", phase.Phase)
	assert.EqualValues(t, 1, phase.TrickNo)
	require.NotNil(t, phase.Trump)
	assert.Equal(t, game.TrumpHearts, *phase.Trump)
	require.Len(t, phase.TrickPlays, 1)
}
