package pricing

import (
	"errors"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrMalformedAmount = errors.New("malformed amount")

// amountPattern is the order ticket input filter: digits with at most one dot.
var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// weiDecimals is the ether to wei exponent.
const weiDecimals = 18

// ParseAmount validates ticket input and returns a positive amount.
func ParseAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "." || !amountPattern.MatchString(text) {
		return decimal.Zero, ErrMalformedAmount
	}

	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// ToContractValue converts a ticket amount into the contract's native unit.
// unitPrice is the ticket-currency value of one native unit (2000 for a USD
// ticket against ETH at 2000, 1 for an ETH ticket).
func ToContractValue(amount, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	if !unitPrice.IsPositive() {
		return decimal.Zero, errors.New("unit price must be greater than 0")
	}
	return amount.DivRound(unitPrice, weiDecimals), nil
}

// ToWei converts an ether-denominated amount to wei, truncating dust below
// one wei.
func ToWei(ether decimal.Decimal) *big.Int {
	return ether.Shift(weiDecimals).Truncate(0).BigInt()
}

// FromWei converts wei to ether.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}
