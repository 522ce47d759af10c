package fees

import (
	"math"
	"os"
	"strconv"
)

// DefaultPercent is the platform commission applied when PLATFORM_FEE_PERCENT
// is unset. Payments snapshot the computed fee at funding time, so changing
// the configured percentage never rewrites historical accounting.
const DefaultPercent = 10.0

// Percent reads the platform fee percentage from the environment.
func Percent() float64 {
	v := os.Getenv("PLATFORM_FEE_PERCENT")
	if v == "" {
		return DefaultPercent
	}
	p, err := strconv.ParseFloat(v, 64)
	if err != nil || p < 0 || p >= 100 {
		return DefaultPercent
	}
	return p
}

// Fee returns the platform commission on a gross amount in minor units.
func Fee(amount int64, percent float64) int64 {
	return int64(math.Round(float64(amount) * percent / 100))
}

// Net returns what the payee receives after the platform fee.
func Net(amount int64, percent float64) int64 {
	return amount - Fee(amount, percent)
}

// Gross approximates the original gross from a net amount. Rounding makes
// this lossy: it is NOT an exact inverse of Net and must never be used to
// re-derive an amount on the money-movement path. Callers that need the
// original gross must store it.
func Gross(net int64, percent float64) int64 {
	return int64(math.Round(float64(net) * 100 / (100 - percent)))
}
