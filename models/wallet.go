package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	UserID           string          `json:"user_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	LockedBalance    decimal.Decimal `json:"locked_balance"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Amounts are persisted as integer minor units (two decimal places) so that
// balance arithmetic runs inside a single SQL statement.
const minorUnitExp = 2

// ErrAmountOutOfRange is returned for amounts whose minor units do not fit
// in an int64.
var ErrAmountOutOfRange = errors.New("amount out of range")

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinor converts d to minor units, rounding half away from zero.
func ToMinor(d decimal.Decimal) (int64, error) {
	minor := d.Shift(minorUnitExp).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%s: %w", d.String(), ErrAmountOutOfRange)
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back into a decimal amount.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -minorUnitExp)
}
