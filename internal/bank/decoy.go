package bank

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	decoyCount          = 3
	noiseSpan           = 10
	attemptsPerWidening = 64
	maxWidenings        = 4
	fallbackAttempts    = 256

	// maxExact is the largest magnitude at which every integer is a float64.
	maxExact = 1 << 53
)

// parseNumeric accepts finite answers small enough that neighbouring
// integers stay distinct.
func parseNumeric(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > maxExact {
		return 0, false
	}
	return v, true
}

func isInteger(v float64) bool {
	return v == math.Trunc(v)
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatValue(v float64, integer bool) string {
	if integer {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(roundOne(v), 'f', 1, 64)
}

// generateDecoys draws noise around correct until three distinct positive
// values are found whose display form differs from the correct answer. The
// noise range doubles after every batch of failed draws; if it still cannot
// produce enough values, small positive offsets are used instead. The boolean
// is false when even the offsets could not fill the set.
func generateDecoys(rng *rand.Rand, correct float64, integer bool) ([]string, bool) {
	step := 1.0
	if !integer {
		step = 0.1
	}
	correctText := formatValue(correct, integer)

	out := make([]string, 0, decoyCount)
	seen := map[string]struct{}{correctText: {}}
	accept := func(v float64) {
		if v <= 0 {
			return
		}
		s := formatValue(v, integer)
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	span := noiseSpan
	for w := 0; w <= maxWidenings && len(out) < decoyCount; w++ {
		for i := 0; i < attemptsPerWidening && len(out) < decoyCount; i++ {
			noise := rng.IntN(2*span+1) - span
			if integer {
				accept(correct + float64(noise))
			} else {
				accept(roundOne(correct + float64(noise)*step))
			}
		}
		span *= 2
	}

	base := correct
	if base <= 0 {
		base = 0
	}
	for k := 1; k <= fallbackAttempts && len(out) < decoyCount; k++ {
		accept(roundOne(base + float64(k)*step))
	}
	return out, len(out) == decoyCount
}
