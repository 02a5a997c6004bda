package pricing

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func fourWay(t *testing.T) *Parimutuel {
	t.Helper()
	p, err := NewParimutuel([]Outcome{
		{ID: 1, Name: "A", Pool: 10},
		{ID: 2, Name: "B", Pool: 10},
		{ID: 3, Name: "C", Pool: 10},
		{ID: 4, Name: "D", Pool: 10},
	})
	if err != nil {
		t.Fatalf("NewParimutuel failed: %v", err)
	}
	return p
}

func sumProbabilities(t *testing.T, p *Parimutuel) float64 {
	t.Helper()
	var sum float64
	for _, s := range p.Stats() {
		sum += s.Probability
	}
	return sum
}

func TestParimutuelEvenPools(t *testing.T) {
	p := fourWay(t)

	for _, s := range p.Stats() {
		if !almostEqual(s.Probability, 0.25) {
			t.Errorf("outcome %s: expected probability 0.25, got %f", s.Name, s.Probability)
		}
		if !almostEqual(s.ProbabilityPercent, 25) {
			t.Errorf("outcome %s: expected 25%%, got %f", s.Name, s.ProbabilityPercent)
		}
		if !almostEqual(s.Multiplier, 4) {
			t.Errorf("outcome %s: expected multiplier 4.00x, got %f", s.Name, s.Multiplier)
		}
	}
}

func TestParimutuelBetCouplesOdds(t *testing.T) {
	p := fourWay(t)

	if err := p.PlaceBet(1, 10); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	if total := p.Total(); !almostEqual(total, 50) {
		t.Fatalf("expected total 50, got %f", total)
	}

	probA, _ := p.Probability(1)
	multA, _ := p.Multiplier(1)
	probB, _ := p.Probability(2)

	if !almostEqual(probA, 0.40) {
		t.Errorf("expected probability(A) 0.40, got %f", probA)
	}
	if !almostEqual(multA, 2.5) {
		t.Errorf("expected multiplier(A) 2.50, got %f", multA)
	}
	if !almostEqual(probB, 0.20) {
		t.Errorf("expected probability(B) 0.20, got %f", probB)
	}
	if sum := sumProbabilities(t, p); !almostEqual(sum, 1) {
		t.Errorf("expected probabilities to sum to 1, got %f", sum)
	}
}

func TestParimutuelProbabilitiesSumToOne(t *testing.T) {
	vectors := [][]float64{
		{1, 2, 3},
		{0.1, 0, 999.9},
		{7},
		{3, 3, 3, 3, 3, 3, 3},
		{1e-6, 1e6},
	}

	for _, pools := range vectors {
		outcomes := make([]Outcome, len(pools))
		for i, v := range pools {
			outcomes[i] = Outcome{ID: uint(i + 1), Pool: v}
		}
		p, err := NewParimutuel(outcomes)
		if err != nil {
			t.Fatalf("NewParimutuel failed: %v", err)
		}
		if sum := sumProbabilities(t, p); !almostEqual(sum, 1) {
			t.Errorf("pools %v: expected sum 1, got %f", pools, sum)
		}
	}
}

func TestParimutuelMultiplierTimesPoolIsTotal(t *testing.T) {
	p, _ := NewParimutuel([]Outcome{
		{ID: 1, Pool: 3.5},
		{ID: 2, Pool: 12},
		{ID: 3, Pool: 0},
	})

	for _, id := range []uint{1, 2} {
		pool, _ := p.Pool(id)
		mult, _ := p.Multiplier(id)
		if !almostEqual(mult*pool, p.Total()) {
			t.Errorf("outcome %d: multiplier*pool = %f, total = %f", id, mult*pool, p.Total())
		}
	}

	if mult, _ := p.Multiplier(3); mult != 0 {
		t.Errorf("expected zero-pool multiplier 0, got %f", mult)
	}
}

func TestParimutuelBetMovesEveryOutcome(t *testing.T) {
	p, _ := NewParimutuel([]Outcome{
		{ID: 1, Pool: 5},
		{ID: 2, Pool: 20},
		{ID: 3, Pool: 75},
	})

	before := map[uint]float64{}
	for _, s := range p.Stats() {
		before[s.ID] = s.Probability
	}

	if err := p.PlaceBet(2, 30); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	for _, s := range p.Stats() {
		if s.ID == 2 {
			if s.Probability <= before[s.ID] {
				t.Errorf("expected probability of the staked outcome to increase")
			}
			continue
		}
		if s.Probability >= before[s.ID] {
			t.Errorf("outcome %d: expected probability to decrease, %f -> %f", s.ID, before[s.ID], s.Probability)
		}
	}
	if sum := sumProbabilities(t, p); !almostEqual(sum, 1) {
		t.Errorf("expected sum 1, got %f", sum)
	}
}

func TestParimutuelEmptyPoolIsUniform(t *testing.T) {
	p, _ := NewParimutuel([]Outcome{{ID: 1}, {ID: 2}, {ID: 3}})

	for _, s := range p.Stats() {
		if !almostEqual(s.Probability, 1.0/3) {
			t.Errorf("expected uniform probability, got %f", s.Probability)
		}
		if s.Multiplier != 0 {
			t.Errorf("expected multiplier 0 on empty pool, got %f", s.Multiplier)
		}
	}
}

func TestParimutuelProjectZeroPoolOutcome(t *testing.T) {
	p, _ := NewParimutuel([]Outcome{
		{ID: 1, Pool: 90},
		{ID: 2, Pool: 0},
	})

	proj, err := p.Project(2, 10)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if !almostEqual(proj.ProjectedMultiplier, 10) {
		t.Errorf("expected projected multiplier 10, got %f", proj.ProjectedMultiplier)
	}
	if !almostEqual(proj.EstimatedPayout, 100) {
		t.Errorf("expected payout 100, got %f", proj.EstimatedPayout)
	}

	zero, err := p.Project(2, 0)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if zero.ProjectedMultiplier != 0 || zero.EstimatedPayout != 0 {
		t.Errorf("expected zero quote for empty stake on empty pool, got %+v", zero)
	}

	// Projection must not mutate the pool.
	if pool, _ := p.Pool(2); pool != 0 {
		t.Errorf("expected pool unchanged, got %f", pool)
	}
}

func TestParimutuelErrors(t *testing.T) {
	if _, err := NewParimutuel(nil); !errors.Is(err, ErrNoOutcomes) {
		t.Errorf("expected ErrNoOutcomes, got %v", err)
	}
	if _, err := NewParimutuel([]Outcome{{ID: 1}, {ID: 1}}); err == nil {
		t.Error("expected duplicate id error")
	}

	p := fourWay(t)
	if err := p.PlaceBet(9, 1); !errors.Is(err, ErrUnknownOutcome) {
		t.Errorf("expected ErrUnknownOutcome, got %v", err)
	}
	if err := p.PlaceBet(1, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if err := p.PlaceBet(1, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := p.Project(1, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestBinaryScenario(t *testing.T) {
	b := NewBinary(9500, 500)

	if !almostEqual(b.PriceYes(), 0.95) {
		t.Fatalf("expected priceYes 0.95, got %f", b.PriceYes())
	}

	price, err := b.PlaceBet(SideNo, 500)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	want := 9500.0 / 10500.0
	if !almostEqual(price, want) {
		t.Errorf("expected priceYes %f, got %f", want, price)
	}
	if math.Abs(price-0.9048) > 1e-4 {
		t.Errorf("expected priceYes ~0.9048, got %f", price)
	}
	if last, ok := b.History().Last(); !ok || !almostEqual(last, want) {
		t.Errorf("expected history to end with %f, got %f", want, last)
	}
}

func TestBinaryPricesSumToOne(t *testing.T) {
	cases := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {3, 7}, {0.001, 1000}}
	for _, c := range cases {
		b := NewBinary(c[0], c[1])
		if !almostEqual(b.PriceYes()+b.PriceNo(), 1) {
			t.Errorf("pools %v: prices do not sum to 1", c)
		}
	}

	if p := NewBinary(0, 0).PriceYes(); p != 0.5 {
		t.Errorf("expected empty pool price 0.5, got %f", p)
	}
}

func TestBinaryYesBetRaisesYesPrice(t *testing.T) {
	b := NewBinary(100, 300)
	before := b.PriceYes()

	after, err := b.PlaceBet(SideYes, 50)
	if err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if after <= before {
		t.Errorf("expected priceYes to increase, %f -> %f", before, after)
	}
}

func TestBinarySharesAndPayout(t *testing.T) {
	b := NewBinary(250, 750)

	shares, err := b.EstimatedShares(SideYes, 10)
	if err != nil {
		t.Fatalf("EstimatedShares failed: %v", err)
	}
	if !almostEqual(shares, 40) {
		t.Errorf("expected 40 shares, got %f", shares)
	}

	if got := Payout(SideYes, shares, SideYes); !almostEqual(got, 40) {
		t.Errorf("expected payout 40, got %f", got)
	}
	if got := Payout(SideYes, shares, SideNo); got != 0 {
		t.Errorf("expected losing payout 0, got %f", got)
	}

	empty := NewBinary(0, 10)
	if s, _ := empty.EstimatedShares(SideYes, 5); s != 0 {
		t.Errorf("expected 0 shares at price 0, got %f", s)
	}
}

func TestBinaryHistoryAndRestart(t *testing.T) {
	b := NewBinary(0, 0)
	for i := 0; i < 5; i++ {
		side := SideYes
		if i%2 == 1 {
			side = SideNo
		}
		if _, err := b.PlaceBet(side, float64(i+1)); err != nil {
			t.Fatalf("PlaceBet failed: %v", err)
		}
	}

	old := b.History()
	if old.Len() != 5 {
		t.Fatalf("expected 5 history points, got %d", old.Len())
	}

	b.Restart()
	if yes, no := b.Pools(); yes != 0 || no != 0 {
		t.Errorf("expected empty pools after restart, got %f/%f", yes, no)
	}
	if b.History().Len() != 0 {
		t.Errorf("expected fresh history after restart")
	}
	if old.Len() != 5 {
		t.Errorf("restart must not truncate the previous log")
	}
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"yes": SideYes, "YES": SideYes, " No ": SideNo} {
		got, err := ParseSide(in)
		if err != nil || got != want {
			t.Errorf("ParseSide(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSide("maybe"); !errors.Is(err, ErrUnknownSide) {
		t.Errorf("expected ErrUnknownSide, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{
		"10":     "10",
		"0.5":    "0.5",
		".25":    "0.25",
		"3.":     "3",
		" 42.0 ": "42",
	}
	for in, want := range valid {
		got, err := ParseAmount(in)
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"", ".", "1.2.3", "-1", "1e5", "abc", "1,5"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrMalformedAmount) {
			t.Errorf("ParseAmount(%q): expected ErrMalformedAmount, got %v", in, err)
		}
	}

	if _, err := ParseAmount("0.00"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero, got %v", err)
	}
}

func TestContractValueConversion(t *testing.T) {
	eth, err := ToContractValue(decimal.NewFromInt(100), decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("ToContractValue failed: %v", err)
	}
	if !eth.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("expected 0.05 ETH, got %s", eth)
	}

	wei := ToWei(eth)
	want, _ := new(big.Int).SetString("50000000000000000", 10)
	if wei.Cmp(want) != 0 {
		t.Errorf("expected %s wei, got %s", want, wei)
	}
	if !FromWei(wei).Equal(eth) {
		t.Errorf("expected round trip to %s, got %s", eth, FromWei(wei))
	}

	if _, err := ToContractValue(decimal.NewFromInt(1), decimal.Zero); err == nil {
		t.Error("expected error for zero unit price")
	}
}
