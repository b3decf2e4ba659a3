package server

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/decred/slog"
	"github.com/robpatriot/nommie-server/pkg/game"
)

// SeatInfo is the public description of one seat.
type SeatInfo struct {
	Seat           int     `json:"seat"`
	DisplayName    string  `json:"display_name"`
	IsReady        bool    `json:"is_ready"`
	IsAI           bool    `json:"is_ai"`
	AIProfile      *string `json:"ai_profile,omitempty"`
	UserID         *string `json:"user_id,omitempty"`
	OriginalUserID *string `json:"original_user_id,omitempty"`
	HostSeat       bool    `json:"host_seat"`
}

// GameHeader is the public game block of a snapshot.
type GameHeader struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	State       string                 `json:"state"`
	Visibility  string                 `json:"visibility"`
	RoundNo     uint8                  `json:"round_no"`
	Dealer      int                    `json:"dealer"`
	Seating     []SeatInfo             `json:"seating"`
	ScoresTotal [game.NumPlayers]int16 `json:"scores_total"`
	Version     int64                  `json:"version"`
}

// TrickPlayView is one visible play of the current trick.
type TrickPlayView struct {
	Seat int       `json:"seat"`
	Card game.Card `json:"card"`
}

// PhaseSnapshot is the tagged per-phase public payload. Exactly the fields
// meaningful for the phase are populated; no other player's hand ever
// appears.
type PhaseSnapshot struct {
	Phase      string                  `json:"phase"`
	TrickNo    uint8                   `json:"trick_no,omitempty"`
	ToAct      *int                    `json:"to_act,omitempty"`
	Bids       []*uint8                `json:"bids,omitempty"`
	MinBid     *uint8                  `json:"min_bid,omitempty"`
	MaxBid     *uint8                  `json:"max_bid,omitempty"`
	Trump      *game.Trump             `json:"trump,omitempty"`
	TrickPlays []TrickPlayView         `json:"trick_plays,omitempty"`
	TricksWon  *[game.NumPlayers]uint8 `json:"tricks_won,omitempty"`
}

// PublicSnapshot is the shared, viewer-independent projection.
type PublicSnapshot struct {
	Game  GameHeader    `json:"game"`
	Phase PhaseSnapshot `json:"phase"`
}

// BidConstraints carries viewer-specific bidding limits.
type BidConstraints struct {
	Min           uint8 `json:"min"`
	Max           uint8 `json:"max"`
	ZeroBidLocked bool  `json:"zero_bid_locked"`
}

// ViewerState is the per-viewer private extension of a snapshot.
type ViewerState struct {
	Seat           *int            `json:"seat,omitempty"`
	Hand           []game.Card     `json:"hand,omitempty"`
	BidConstraints *BidConstraints `json:"bid_constraints,omitempty"`
}

// SnapshotResponse is the full GET /snapshot body.
type SnapshotResponse struct {
	PublicSnapshot
	Viewer *ViewerState `json:"viewer,omitempty"`
}

// SharedSnapshotParts is the cacheable, viewer-independent bundle for one
// (game, version).
type SharedSnapshotParts struct {
	Snapshot PublicSnapshot
	// Hands are kept server-side for viewer projection; never serialized in
	// the public snapshot.
	Hands   [game.NumPlayers][]game.Card
	Players []SeatInfo
	Version int64
	BuiltAt time.Time
}

// BuildPublicSnapshot projects the game state and memberships into the
// shared snapshot parts.
func BuildPublicSnapshot(g *game.GameState, header GameHeader) *SharedSnapshotParts {
	snap := PublicSnapshot{Game: header}
	snap.Game.RoundNo = g.RoundNo
	snap.Game.Dealer = int(g.Dealer)
	snap.Game.ScoresTotal = g.ScoresTotal

	phase := PhaseSnapshot{Phase: g.Phase.Kind.String()}
	switch g.Phase.Kind {
	case game.PhaseBidding:
		toAct := int(g.Turn)
		phase.ToAct = &toAct
		phase.Bids = publicBids(&g.Round)
		minBid, maxBid := uint8(0), g.HandSize
		phase.MinBid = &minBid
		phase.MaxBid = &maxBid
	case game.PhaseTrumpSelect:
		toAct := int(g.Round.WinningBidder)
		phase.ToAct = &toAct
		phase.Bids = publicBids(&g.Round)
	case game.PhaseTrick:
		toAct := int(g.Turn)
		phase.ToAct = &toAct
		phase.TrickNo = g.Phase.Trick
		trump := g.Round.Trump
		phase.Trump = &trump
		phase.Bids = publicBids(&g.Round)
		tricksWon := g.Round.TricksWon
		phase.TricksWon = &tricksWon
		for _, p := range g.Round.TrickPlays {
			phase.TrickPlays = append(phase.TrickPlays, TrickPlayView{Seat: int(p.Seat), Card: p.Card})
		}
	case game.PhaseScoring, game.PhaseBetweenRounds, game.PhaseComplete:
		phase.Bids = publicBids(&g.Round)
		tricksWon := g.Round.TricksWon
		phase.TricksWon = &tricksWon
		if g.Round.TrumpSet {
			trump := g.Round.Trump
			phase.Trump = &trump
		}
	}
	snap.Phase = phase

	return &SharedSnapshotParts{
		Snapshot: snap,
		Hands:    g.Round.Hands,
		Players:  header.Seating,
		Version:  header.Version,
		BuiltAt:  time.Now(),
	}
}

func publicBids(r *game.RoundState) []*uint8 {
	bids := make([]*uint8, game.NumPlayers)
	for seat, b := range r.Bids {
		if b != game.BidUnset {
			v := uint8(b)
			bids[seat] = &v
		}
	}
	return bids
}

// SnapshotCache caches shared snapshot parts by (game, version). Concurrent
// misses for one key share a single build via singleflight.
type SnapshotCache struct {
	log     slog.Logger
	cache   *lru.Cache[string, *SharedSnapshotParts]
	group   singleflight.Group
	metrics *Metrics
}

// NewSnapshotCache creates a cache holding up to size entries.
func NewSnapshotCache(log slog.Logger, size int) (*SnapshotCache, error) {
	cache, err := lru.New[string, *SharedSnapshotParts](size)
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{log: log, cache: cache}, nil
}

func snapshotKey(gameID, version int64) string {
	return fmt.Sprintf("g%d:v%d", gameID, version)
}

// Get returns the cached parts, if present.
func (c *SnapshotCache) Get(gameID, version int64) (*SharedSnapshotParts, bool) {
	return c.cache.Get(snapshotKey(gameID, version))
}

// GetOrBuild returns the cached parts or builds them once, deduplicating
// concurrent misses for the same key.
func (c *SnapshotCache) GetOrBuild(gameID, version int64, build func() (*SharedSnapshotParts, error)) (*SharedSnapshotParts, error) {
	key := snapshotKey(gameID, version)
	if parts, ok := c.cache.Get(key); ok {
		c.metrics.snapshotHit()
		return parts, nil
	}
	c.metrics.snapshotMiss()
	start := time.Now()
	v, err, shared := c.group.Do(key, func() (any, error) {
		if parts, ok := c.cache.Get(key); ok {
			return parts, nil
		}
		parts, err := build()
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, parts)
		return parts, nil
	})
	if shared {
		if wait := time.Since(start); wait > 0 {
			c.log.Debugf("snapshot build for %s shared, waited %s", key, wait)
		}
	}
	if err != nil {
		return nil, err
	}
	return v.(*SharedSnapshotParts), nil
}

// Invalidate drops the entry for (game, version). Called with the
// pre-mutation version right after a commit; newer versions build lazily on
// the next read.
func (c *SnapshotCache) Invalidate(gameID, version int64) {
	c.cache.Remove(snapshotKey(gameID, version))
}
