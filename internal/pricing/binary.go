package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// Side is one half of a binary market. The values match the outcome
// strings the betting contract expects.
type Side string

const (
	SideYes Side = "Yes"
	SideNo  Side = "No"
)

var ErrUnknownSide = errors.New("unknown side")

// ParseSide accepts yes/no in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return SideYes, nil
	case "no":
		return SideNo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
	}
}

// Binary is a constant-sum yes/no pool. The price of a side is its share of
// the combined pool; a share pays 1 unit if that side wins.
type Binary struct {
	yes     float64
	no      float64
	history *History
}

// NewBinary creates a pool with the given sizes and an empty history.
func NewBinary(yes, no float64) *Binary {
	if yes < 0 {
		yes = 0
	}
	if no < 0 {
		no = 0
	}
	return &Binary{yes: yes, no: no, history: NewHistory()}
}

// Pools returns the current yes and no pool sizes.
func (b *Binary) Pools() (yes, no float64) {
	return b.yes, b.no
}

// PriceYes is yes/(yes+no), 0.5 for an empty pool.
func (b *Binary) PriceYes() float64 {
	total := b.yes + b.no
	if total == 0 {
		return 0.5
	}
	return b.yes / total
}

// PriceNo is always 1 - PriceYes.
func (b *Binary) PriceNo() float64 {
	return 1 - b.PriceYes()
}

// Price returns the current price of a side.
func (b *Binary) Price(side Side) (float64, error) {
	switch side {
	case SideYes:
		return b.PriceYes(), nil
	case SideNo:
		return b.PriceNo(), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
}

// EstimatedShares is amount/price at the current price, 0 when the side is
// priced at 0.
func (b *Binary) EstimatedShares(side Side, amount float64) (float64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}
	price, err := b.Price(side)
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, nil
	}
	return amount / price, nil
}

// PlaceBet adds amount to one side, then records the new yes price.
func (b *Binary) PlaceBet(side Side, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	switch side {
	case SideYes:
		b.yes += amount
	case SideNo:
		b.no += amount
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}

	price := b.PriceYes()
	b.history.Append(price)
	return price, nil
}

// History is the append-only log of yes prices for the current epoch.
func (b *Binary) History() *History {
	return b.history
}

// Restart empties both pools and starts a fresh history log.
func (b *Binary) Restart() {
	b.yes = 0
	b.no = 0
	b.history = NewHistory()
}

// Payout settles shares at par: 1 per share on the winning side, nothing
// otherwise.
func Payout(side Side, shares float64, winner Side) float64 {
	if side == winner && shares > 0 {
		return shares
	}
	return 0
}
