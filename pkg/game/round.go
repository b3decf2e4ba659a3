package game

// SeatCard is one play into a trick: which seat played which card.
type SeatCard struct {
	Seat Seat
	Card Card
}

// BidUnset marks a seat that has not yet bid.
const BidUnset int8 = -1

// RoundState carries everything that belongs to the round in progress: bids,
// trump, remaining hands, the trick under construction and tricks won so far.
type RoundState struct {
	Trump         Trump
	TrumpSet      bool
	Bids          [NumPlayers]int8
	WinningBidder Seat
	Hands         [NumPlayers][]Card
	TrickPlays    []SeatCard
	TricksWon     [NumPlayers]uint8
}

// NewRoundState returns an empty round with all bids unset.
func NewRoundState() RoundState {
	rs := RoundState{WinningBidder: NoSeat}
	for i := range rs.Bids {
		rs.Bids[i] = BidUnset
	}
	return rs
}

// BidCount returns how many seats have bid so far.
func (r *RoundState) BidCount() int {
	n := 0
	for _, b := range r.Bids {
		if b != BidUnset {
			n++
		}
	}
	return n
}

// BidSum returns the total of all placed bids.
func (r *RoundState) BidSum() int {
	sum := 0
	for _, b := range r.Bids {
		if b != BidUnset {
			sum += int(b)
		}
	}
	return sum
}

// TrickLead returns the suit led in the current trick, if a card has been
// played.
func (r *RoundState) TrickLead() (Suit, bool) {
	if len(r.TrickPlays) == 0 {
		return 0, false
	}
	return r.TrickPlays[0].Card.Suit, true
}

// HasCard reports whether the seat's remaining hand contains the card.
func (r *RoundState) HasCard(seat Seat, card Card) bool {
	for _, c := range r.Hands[seat] {
		if c == card {
			return true
		}
	}
	return false
}

// HasSuit reports whether the seat's remaining hand contains any card of the
// suit.
func (r *RoundState) HasSuit(seat Seat, suit Suit) bool {
	for _, c := range r.Hands[seat] {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// RemoveCard removes one instance of card from the seat's hand. Returns false
// if the card is not held.
func (r *RoundState) RemoveCard(seat Seat, card Card) bool {
	hand := r.Hands[seat]
	for i, c := range hand {
		if c == card {
			r.Hands[seat] = append(hand[:i:i], hand[i+1:]...)
			return true
		}
	}
	return false
}

// TotalTricksWon sums tricks won across all seats.
func (r *RoundState) TotalTricksWon() int {
	total := 0
	for _, w := range r.TricksWon {
		total += int(w)
	}
	return total
}

// CurrentTrickWinner folds the trick in progress with CardBeats and returns
// the seat currently winning it, or false for an empty trick.
func (r *RoundState) CurrentTrickWinner() (Seat, bool) {
	if len(r.TrickPlays) == 0 {
		return 0, false
	}
	lead := r.TrickPlays[0].Card.Suit
	winner := r.TrickPlays[0]
	for _, play := range r.TrickPlays[1:] {
		if CardBeats(play.Card, winner.Card, lead, r.Trump) {
			winner = play
		}
	}
	return winner.Seat, true
}

// ResolveCurrentTrick returns the winner of a complete four-card trick, or
// false if the trick is not complete.
func (r *RoundState) ResolveCurrentTrick() (Seat, bool) {
	if len(r.TrickPlays) != NumPlayers {
		return 0, false
	}
	return r.CurrentTrickWinner()
}

// WinningBidderFor returns the earliest seat in bidding order (starting at
// dealer+1) holding the maximum bid. All four bids must be present.
func (r *RoundState) WinningBidderFor(dealer Seat) (Seat, bool) {
	if r.BidCount() != NumPlayers {
		return 0, false
	}
	best := NoSeat
	bestBid := int8(-1)
	seat := dealer.Next()
	for i := 0; i < NumPlayers; i++ {
		if r.Bids[seat] > bestBid {
			bestBid = r.Bids[seat]
			best = seat
		}
		seat = seat.Next()
	}
	return best, true
}
