package invoke

import (
	"math/rand"
	"time"
)

// growthFactor matches spec §4.F's worked example literally: base=10ms,
// count=4 must produce delays {10, ~40, ~160, ~640, ~2560}, which is
// base*4^i.
const growthFactor = 4.0

// ExponentialBackOff returns count+1 delays growing geometrically from
// base, each with independent uniform jitter added in [0, 0.25*delay]
// (spec §4.F step 5).
func ExponentialBackOff(base time.Duration, count int) []time.Duration {
	delays := make([]time.Duration, count+1)
	mult := 1.0
	for i := range delays {
		d := time.Duration(float64(base) * mult)
		jitter := time.Duration(rand.Float64() * 0.25 * float64(d))
		delays[i] = d + jitter
		mult *= growthFactor
	}
	return delays
}
