package game

// PhaseKind enumerates the lifecycle states of a game. Bidding through
// Complete are the in-round phases driven by the trick engine; Lobby,
// BetweenRounds and Abandoned are outer lifecycle states owned by the flow
// orchestrator.
type PhaseKind uint8

const (
	PhaseLobby PhaseKind = iota
	PhaseBidding
	PhaseTrumpSelect
	PhaseTrick
	PhaseScoring
	PhaseBetweenRounds
	PhaseComplete
	PhaseAbandoned
)

// String returns the wire name of the phase kind.
func (k PhaseKind) String() string {
	switch k {
	case PhaseLobby:
		return "Lobby"
	case PhaseBidding:
		return "Bidding"
	case PhaseTrumpSelect:
		return "TrumpSelect"
	case PhaseTrick:
		return "Trick"
	case PhaseScoring:
		return "Scoring"
	case PhaseBetweenRounds:
		return "BetweenRounds"
	case PhaseComplete:
		return "Complete"
	case PhaseAbandoned:
		return "Abandoned"
	}
	return "Unknown"
}

// Phase is a phase kind optionally tagged with the 1-based trick number while
// in the Trick phase.
type Phase struct {
	Kind  PhaseKind
	Trick uint8
}

// TrickPhase builds the Trick phase for trick n.
func TrickPhase(n uint8) Phase {
	return Phase{Kind: PhaseTrick, Trick: n}
}

// GameState is the canonical state of one game, reconstructed from the
// database within a transaction. In-memory instances never outlive a request.
type GameState struct {
	Phase       Phase
	RoundNo     uint8
	HandSize    uint8
	Dealer      Seat
	Leader      Seat
	Turn        Seat
	TrickNo     uint8
	ScoresTotal [NumPlayers]int16
	Round       RoundState
	Seed        uint64
}

// NewLobbyState returns the empty pre-deal state.
func NewLobbyState(seed uint64) *GameState {
	return &GameState{
		Phase:  Phase{Kind: PhaseLobby},
		Dealer: NoSeat,
		Leader: NoSeat,
		Turn:   NoSeat,
		Round:  NewRoundState(),
		Seed:   seed,
	}
}

// DealRound advances the game into the next round: computes hand size and
// dealer, deals four hands from the round-derived seed and enters Bidding
// with the seat after the dealer to act.
func (g *GameState) DealRound() error {
	switch g.Phase.Kind {
	case PhaseLobby, PhaseBetweenRounds:
	default:
		return NewValidationError(PhaseMismatch, "cannot deal in phase %s", g.Phase.Kind)
	}

	nextRound := g.RoundNo + 1
	handSize, err := HandSizeForRound(nextRound)
	if err != nil {
		return NewValidationError(InvalidHandSize, "%v", err)
	}

	if g.Phase.Kind == PhaseLobby {
		if !ValidSeat(g.Dealer) {
			g.Dealer = 0
		}
	} else {
		g.Dealer = g.Dealer.Next()
	}

	dealt, err := DealHands(NumPlayers, handSize, Mix32(g.Seed, uint64(nextRound)))
	if err != nil {
		return err
	}

	g.RoundNo = nextRound
	g.HandSize = handSize
	g.TrickNo = 0
	g.Round = NewRoundState()
	g.Round.Hands = dealt.Hands
	g.Phase = Phase{Kind: PhaseBidding}
	g.Leader = NoSeat
	g.Turn = g.Dealer.Next()
	return nil
}

// nextBidder returns the seat expected to bid next.
func (g *GameState) nextBidder() Seat {
	seat := g.Dealer.Next()
	for i := 0; i < g.Round.BidCount(); i++ {
		seat = seat.Next()
	}
	return seat
}

// LegalBids returns the bids the seat may place: 0..hand_size, minus the
// value forbidden to the dealer when three bids are already down.
func (g *GameState) LegalBids(seat Seat) []uint8 {
	bids := make([]uint8, 0, g.HandSize+1)
	for b := uint8(0); b <= g.HandSize; b++ {
		if g.dealerBidForbidden(seat, b) {
			continue
		}
		bids = append(bids, b)
	}
	return bids
}

// dealerBidForbidden reports whether the bid would violate the dealer
// constraint: the fourth bid must not make the total equal hand_size.
func (g *GameState) dealerBidForbidden(seat Seat, bid uint8) bool {
	if seat != g.Dealer || g.Round.BidCount() != NumPlayers-1 {
		return false
	}
	return g.Round.BidSum()+int(bid) == int(g.HandSize)
}

// PlaceBid records a bid for the seat. When the fourth bid lands, the winning
// bidder is fixed and the game moves to TrumpSelect with that seat to act.
func (g *GameState) PlaceBid(seat Seat, bid uint8) error {
	if g.Phase.Kind != PhaseBidding {
		return NewValidationError(PhaseMismatch, "cannot bid in phase %s", g.Phase.Kind)
	}
	if !ValidSeat(seat) {
		return NewValidationError(InvalidSeat, "seat %d", seat)
	}
	if seat != g.nextBidder() {
		return NewValidationError(OutOfTurn, "seat %d bid out of turn, expected %d", seat, g.nextBidder())
	}
	if bid > g.HandSize {
		return NewValidationError(InvalidBid, "bid %d exceeds hand size %d", bid, g.HandSize)
	}
	if g.dealerBidForbidden(seat, bid) {
		return NewValidationError(DealerBidConstraint,
			"dealer may not bid %d: bids would sum to hand size %d", bid, g.HandSize)
	}

	g.Round.Bids[seat] = int8(bid)
	if g.Round.BidCount() == NumPlayers {
		winner, _ := g.Round.WinningBidderFor(g.Dealer)
		g.Round.WinningBidder = winner
		g.Phase = Phase{Kind: PhaseTrumpSelect}
		g.Turn = winner
	} else {
		g.Turn = g.nextBidder()
	}
	return nil
}

// SetTrump fixes the round's trump. Only the winning bidder may choose; on
// success the game enters the first trick with the winning bidder leading.
func (g *GameState) SetTrump(seat Seat, trump Trump) error {
	if g.Phase.Kind != PhaseTrumpSelect {
		return NewValidationError(PhaseMismatch, "cannot set trump in phase %s", g.Phase.Kind)
	}
	if seat != g.Round.WinningBidder {
		return NewValidationError(OutOfTurn, "seat %d is not the winning bidder", seat)
	}

	g.Round.Trump = trump
	g.Round.TrumpSet = true
	g.TrickNo = 1
	g.Phase = TrickPhase(1)
	g.Leader = seat
	g.Turn = seat
	return nil
}

// LegalMoves returns the cards the seat may legally play right now. Leading
// allows any held card; following requires the led suit when held.
func (g *GameState) LegalMoves(seat Seat) []Card {
	hand := g.Round.Hands[seat]
	lead, inProgress := g.Round.TrickLead()
	if !inProgress {
		return append([]Card(nil), hand...)
	}
	var following []Card
	for _, c := range hand {
		if c.Suit == lead {
			following = append(following, c)
		}
	}
	if len(following) > 0 {
		return following
	}
	return append([]Card(nil), hand...)
}

// nextToPlay returns the seat expected to play the next card of the current
// trick.
func (g *GameState) nextToPlay() Seat {
	seat := g.Leader
	for i := 0; i < len(g.Round.TrickPlays); i++ {
		seat = seat.Next()
	}
	return seat
}

// PlayCard plays a card for the seat. The first card of a trick fixes the
// lead; the fourth resolves the trick, credits the winner and either advances
// to the next trick or to Scoring.
func (g *GameState) PlayCard(seat Seat, card Card) error {
	if g.Phase.Kind != PhaseTrick {
		return NewValidationError(PhaseMismatch, "cannot play in phase %s", g.Phase.Kind)
	}
	if !ValidSeat(seat) {
		return NewValidationError(InvalidSeat, "seat %d", seat)
	}
	if seat != g.nextToPlay() {
		return NewValidationError(OutOfTurn, "seat %d played out of turn, expected %d", seat, g.nextToPlay())
	}
	if !g.Round.HasCard(seat, card) {
		return NewValidationError(CardNotInHand, "seat %d does not hold %s", seat, card)
	}
	if lead, ok := g.Round.TrickLead(); ok && card.Suit != lead && g.Round.HasSuit(seat, lead) {
		return NewValidationError(MustFollowSuit, "seat %d must follow %s", seat, lead)
	}

	g.Round.RemoveCard(seat, card)
	g.Round.TrickPlays = append(g.Round.TrickPlays, SeatCard{Seat: seat, Card: card})

	if len(g.Round.TrickPlays) < NumPlayers {
		g.Turn = g.nextToPlay()
		return nil
	}

	winner, _ := g.Round.ResolveCurrentTrick()
	g.Round.TricksWon[winner]++
	g.Round.TrickPlays = nil
	g.Leader = winner
	g.Turn = winner
	if g.TrickNo < g.HandSize {
		g.TrickNo++
		g.Phase = TrickPhase(g.TrickNo)
	} else {
		g.Phase = Phase{Kind: PhaseScoring}
		g.Turn = NoSeat
	}
	return nil
}

// RoundScore is the per-seat scoring line for one completed round.
type RoundScore struct {
	Seat       Seat
	Bid        uint8
	TricksWon  uint8
	BidMet     bool
	Base       int16
	Bonus      int16
	RoundScore int16
	TotalAfter int16
}

// exactBidBonus is awarded when a seat's tricks won equals its bid.
const exactBidBonus = 10

// ApplyRoundScoring settles a round in the Scoring phase: base points per
// trick, +10 for an exact bid, cumulative totals. Moves to Complete after the
// final round, BetweenRounds otherwise. The phase gate makes a second call a
// PhaseMismatch, so scoring is never applied twice.
func (g *GameState) ApplyRoundScoring() ([NumPlayers]RoundScore, error) {
	var scores [NumPlayers]RoundScore
	if g.Phase.Kind != PhaseScoring {
		return scores, NewValidationError(PhaseMismatch, "cannot score in phase %s", g.Phase.Kind)
	}

	for seat := Seat(0); seat < NumPlayers; seat++ {
		won := g.Round.TricksWon[seat]
		bid := g.Round.Bids[seat]
		line := RoundScore{
			Seat:      seat,
			TricksWon: won,
			Base:      int16(won),
		}
		if bid != BidUnset {
			line.Bid = uint8(bid)
			line.BidMet = int8(won) == bid
		}
		if line.BidMet {
			line.Bonus = exactBidBonus
		}
		line.RoundScore = line.Base + line.Bonus
		line.TotalAfter = g.ScoresTotal[seat] + line.RoundScore
		g.ScoresTotal[seat] = line.TotalAfter
		scores[seat] = line
	}

	if g.RoundNo >= NumRounds {
		g.Phase = Phase{Kind: PhaseComplete}
	} else {
		g.Phase = Phase{Kind: PhaseBetweenRounds}
	}
	g.Turn = NoSeat
	return scores, nil
}
