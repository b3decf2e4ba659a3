package game

import (
	"math"
	"testing"
)

func TestNewDeckCanonicalOrder(t *testing.T) {
	deck := NewDeck()
	if len(deck) != DeckSize {
		t.Fatalf("expected %d cards, got %d", DeckSize, len(deck))
	}
	if deck[0] != MustCard("2C") || deck[12] != MustCard("AC") || deck[51] != MustCard("AS") {
		t.Errorf("deck not in canonical construction order: %v %v %v", deck[0], deck[12], deck[51])
	}
	seen := make(map[Card]bool)
	for _, c := range deck {
		if seen[c] {
			t.Errorf("duplicate card: %v", c)
		}
		seen[c] = true
	}
}

func TestHandSizeSchedule(t *testing.T) {
	want := []uint8{
		13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 2,
		2, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13,
	}
	if len(want) != NumRounds {
		t.Fatalf("schedule table covers %d rounds, want %d", len(want), NumRounds)
	}
	for i, w := range want {
		h, err := HandSizeForRound(uint8(i + 1))
		if err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
		if h != w {
			t.Errorf("round %d: got %d want %d", i+1, h, w)
		}
	}

	// Symmetric, bounded, and every round dealable.
	for r := uint8(1); r <= NumRounds; r++ {
		h, err := HandSizeForRound(r)
		if err != nil {
			t.Fatalf("round %d: %v", r, err)
		}
		mirror, err := HandSizeForRound(NumRounds + 1 - r)
		if err != nil {
			t.Fatalf("round %d: %v", NumRounds+1-r, err)
		}
		if h != mirror {
			t.Errorf("schedule not symmetric at round %d: %d vs %d", r, h, mirror)
		}
		if h < 2 || h > 13 {
			t.Errorf("round %d hand size %d outside 2..13", r, h)
		}
		if _, err := DealHands(4, h, Mix32(1, uint64(r))); err != nil {
			t.Errorf("round %d hand size %d is not dealable: %v", r, h, err)
		}
	}

	if _, err := HandSizeForRound(0); err == nil {
		t.Error("round 0 should be rejected")
	}
	if _, err := HandSizeForRound(27); err == nil {
		t.Error("round 27 should be rejected")
	}
}

func TestDealHandsPermutation(t *testing.T) {
	for _, handSize := range []uint8{2, 5, 10, 13} {
		dealt, err := DealHands(4, handSize, Mix32(42, uint64(handSize)))
		if err != nil {
			t.Fatalf("deal failed: %v", err)
		}
		seen := make(map[Card]int)
		total := 0
		for seat, hand := range dealt.Hands {
			if len(hand) != int(handSize) {
				t.Fatalf("seat %d hand size %d, want %d", seat, len(hand), handSize)
			}
			for _, c := range hand {
				seen[c]++
				total++
			}
		}
		for _, c := range dealt.Undealt {
			seen[c]++
			total++
		}
		if total != DeckSize {
			t.Errorf("hand size %d: dealt+undealt = %d cards", handSize, total)
		}
		for _, c := range NewDeck() {
			if seen[c] != 1 {
				t.Errorf("hand size %d: card %v appears %d times", handSize, c, seen[c])
			}
		}
	}
}

func TestDealHandsSorted(t *testing.T) {
	dealt, err := DealHands(4, 13, Mix32(42, 0))
	if err != nil {
		t.Fatal(err)
	}
	for seat, hand := range dealt.Hands {
		for i := 1; i < len(hand); i++ {
			if hand[i].Less(hand[i-1]) {
				t.Errorf("seat %d hand not sorted at %d: %v", seat, i, hand)
			}
		}
	}
}

func TestDealHandsDeterministic(t *testing.T) {
	a, err := DealHands(4, 10, Mix32(99999, 0))
	if err != nil {
		t.Fatal(err)
	}
	b, err := DealHands(4, 10, Mix32(99999, 0))
	if err != nil {
		t.Fatal(err)
	}
	for seat := range a.Hands {
		if len(a.Hands[seat]) != len(b.Hands[seat]) {
			t.Fatalf("seat %d size mismatch", seat)
		}
		for i := range a.Hands[seat] {
			if a.Hands[seat][i] != b.Hands[seat][i] {
				t.Fatalf("seat %d card %d differs between identical seeds", seat, i)
			}
		}
	}
}

func TestDealHandsSeedSensitivity(t *testing.T) {
	a, _ := DealHands(4, 13, Mix32(111, 0))
	b, _ := DealHands(4, 13, Mix32(222, 0))
	same := true
	for seat := range a.Hands {
		for i := range a.Hands[seat] {
			if a.Hands[seat][i] != b.Hands[seat][i] {
				same = false
			}
		}
	}
	if same {
		t.Error("different seeds produced identical deals")
	}
}

func TestDealHandsRejectsBadInput(t *testing.T) {
	if _, err := DealHands(3, 13, Mix32(1, 0)); err == nil {
		t.Error("expected error for 3 players")
	}
	if _, err := DealHands(4, 1, Mix32(1, 0)); err == nil {
		t.Error("expected error for hand size 1")
	}
	if _, err := DealHands(4, 14, Mix32(1, 0)); err == nil {
		t.Error("expected error for hand size 14")
	}
}

// Fairness thresholds chosen for alpha ~= 0.001; tightening them produces
// flakes on unlucky master seeds.
const (
	chiSquare999Df3  = 16.27
	chiSquare999Df9  = 27.88
	chiSquare999Df12 = 32.91
	fairnessDeals    = 5000
)

func TestDealFairnessSuitBySeat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical fairness batch in short mode")
	}
	var counts [4][4]float64 // seat x suit
	for i := 0; i < fairnessDeals; i++ {
		dealt, err := DealHands(4, 13, Mix32(0xD00DF00DBA5E0001, uint64(i)))
		if err != nil {
			t.Fatal(err)
		}
		for seat, hand := range dealt.Hands {
			for _, c := range hand {
				counts[seat][c.Suit]++
			}
		}
	}

	// Per-seat suit marginal: chi-square GoF against uniform, df=3.
	for seat := 0; seat < 4; seat++ {
		total := 0.0
		for _, n := range counts[seat] {
			total += n
		}
		expected := total / 4
		chi := 0.0
		for _, n := range counts[seat] {
			d := n - expected
			chi += d * d / expected
		}
		if chi > chiSquare999Df3 {
			t.Errorf("seat %d suit distribution biased: chi2=%.2f", seat, chi)
		}
	}

	// Seat x suit independence, df=9.
	var rowTotals, colTotals [4]float64
	grand := 0.0
	for seat := 0; seat < 4; seat++ {
		for suit := 0; suit < 4; suit++ {
			rowTotals[seat] += counts[seat][suit]
			colTotals[suit] += counts[seat][suit]
			grand += counts[seat][suit]
		}
	}
	chi := 0.0
	for seat := 0; seat < 4; seat++ {
		for suit := 0; suit < 4; suit++ {
			expected := rowTotals[seat] * colTotals[suit] / grand
			d := counts[seat][suit] - expected
			chi += d * d / expected
		}
	}
	if chi > chiSquare999Df9 {
		t.Errorf("seat x suit not independent: chi2=%.2f", chi)
	}
}

func TestDealFairnessRankBySeatAndStrongestSeat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical fairness batch in short mode")
	}
	var rankCounts [4][13]float64
	var strongest [4]float64
	for i := 0; i < fairnessDeals; i++ {
		dealt, err := DealHands(4, 13, Mix32(0xFA1253A7CAFE0002, uint64(i)))
		if err != nil {
			t.Fatal(err)
		}
		bestSeat, bestSum := 0, -1
		for seat, hand := range dealt.Hands {
			sum := 0
			for _, c := range hand {
				rankCounts[seat][c.Rank-Two]++
				sum += int(c.Rank)
			}
			if sum > bestSum {
				bestSum = sum
				bestSeat = seat
			}
		}
		strongest[bestSeat]++
	}

	// Per-seat rank marginal, df=12.
	for seat := 0; seat < 4; seat++ {
		total := 0.0
		for _, n := range rankCounts[seat] {
			total += n
		}
		expected := total / 13
		chi := 0.0
		for _, n := range rankCounts[seat] {
			d := n - expected
			chi += d * d / expected
		}
		if chi > chiSquare999Df12 {
			t.Errorf("seat %d rank distribution biased: chi2=%.2f", seat, chi)
		}
	}

	// Strongest seat should be uniform across seats, df=3.
	expected := float64(fairnessDeals) / 4
	chi := 0.0
	for _, n := range strongest {
		d := n - expected
		chi += d * d / expected
	}
	if chi > chiSquare999Df3 {
		t.Errorf("strongest-seat distribution biased: chi2=%.2f counts=%v", chi, strongest)
	}
}

func TestShuffleAdjacencyStructure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical fairness batch in short mode")
	}
	// Expected same-suit adjacent pairs in a shuffled 52-card deck is
	// 51 * 12/51 = 12.0. The batch mean should sit within |z| <= 8.
	const deals = 2000
	var sum, sumSq float64
	for i := 0; i < deals; i++ {
		deck := NewDeck()
		rng := NewRand(Mix32(0xADDBEEF0AD7A0003, uint64(i)))
		rng.Shuffle(len(deck), func(a, b int) { deck[a], deck[b] = deck[b], deck[a] })
		adj := 0.0
		for j := 1; j < len(deck); j++ {
			if deck[j].Suit == deck[j-1].Suit {
				adj++
			}
		}
		sum += adj
		sumSq += adj * adj
	}
	mean := sum / deals
	variance := sumSq/deals - mean*mean
	se := math.Sqrt(variance / deals)
	z := (mean - 12.0) / se
	if math.Abs(z) > 8 {
		t.Errorf("same-suit adjacency mean %.3f deviates from 12.0: z=%.2f", mean, z)
	}
}
