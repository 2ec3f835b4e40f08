// README: Cargo weight value object shared by tours, bookings and the capacity ledger.
package types

import (
	"fmt"
	"math"
)

// Weight is a cargo weight stored in whole grams so capacity arithmetic stays exact.
type Weight int64

const (
	Gram     Weight = 1
	Kilogram Weight = 1000
)

// Kg converts a kilogram amount (as sent by clients) into a Weight, rounding to the gram.
func Kg(v float64) Weight {
	return Weight(math.Round(v * float64(Kilogram)))
}

func (w Weight) Kilograms() float64 {
	return float64(w) / float64(Kilogram)
}

func (w Weight) String() string {
	return fmt.Sprintf("%.3fkg", w.Kilograms())
}
