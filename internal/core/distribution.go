package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	BucketProfit Bucket = "Profit"
	BucketOpex   Bucket = "OPEX"
	BucketSlush  Bucket = "Slush"
)

// Buckets lists the distribution buckets in display order.
var Buckets = []Bucket{BucketProfit, BucketOpex, BucketSlush}

// DefaultSplit is used whenever saved settings cannot be read.
var DefaultSplit = DistributionSplit{ProfitPct: 20, OpexPct: 60, SlushPct: 20}

type (
	Bucket string

	// DistributionSplit holds three independent percentages. Their sum is
	// not required to be 100.
	DistributionSplit struct {
		ProfitPct int
		OpexPct   int
		SlushPct  int
	}

	Distribution struct {
		Profit decimal.Decimal
		Opex   decimal.Decimal
		Slush  decimal.Decimal
	}
)

// NewSplit builds a split, rejecting percentages outside [0,100].
func NewSplit(profit, opex, slush int) (DistributionSplit, error) {
	s := DistributionSplit{ProfitPct: profit, OpexPct: opex, SlushPct: slush}
	if err := s.Validate(); err != nil {
		return DistributionSplit{}, err
	}
	return s, nil
}

func (s DistributionSplit) Validate() error {
	for _, b := range Buckets {
		if p := s.Percent(b); p < 0 || p > 100 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPercent, b, p)
		}
	}
	return nil
}

// Sum returns the total of the three percentages.
func (s DistributionSplit) Sum() int {
	return s.ProfitPct + s.OpexPct + s.SlushPct
}

// Percent returns the percentage assigned to bucket b.
func (s DistributionSplit) Percent(b Bucket) int {
	switch b {
	case BucketProfit:
		return s.ProfitPct
	case BucketOpex:
		return s.OpexPct
	case BucketSlush:
		return s.SlushPct
	}
	return 0
}

// Distribute applies the split to an income figure: each bucket receives
// income * pct / 100.
func Distribute(s DistributionSplit, income decimal.Decimal) Distribution {
	return Distribution{
		Profit: share(income, s.ProfitPct),
		Opex:   share(income, s.OpexPct),
		Slush:  share(income, s.SlushPct),
	}
}

func share(income decimal.Decimal, pct int) decimal.Decimal {
	return income.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
}

// Amount returns the distributed amount for bucket b.
func (d Distribution) Amount(b Bucket) decimal.Decimal {
	switch b {
	case BucketProfit:
		return d.Profit
	case BucketOpex:
		return d.Opex
	case BucketSlush:
		return d.Slush
	}
	return decimal.Zero
}

func (d Distribution) Total() decimal.Decimal {
	return d.Profit.Add(d.Opex).Add(d.Slush)
}
