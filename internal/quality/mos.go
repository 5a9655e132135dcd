// Package quality derives call-quality estimates from media-engine
// statistics: a Mean Opinion Score model plus a periodic reporter.
package quality

import "math"

// Band is the call quality rating derived from a MOS score.
type Band int

const (
	// BandUnknown - quality could not be calculated
	BandUnknown Band = iota
	// BandBad - MOS <= 3.0
	BandBad
	// BandPoor - 3.1 <= MOS <= 3.6
	BandPoor
	// BandFair - 3.7 <= MOS <= 4.0
	BandFair
	// BandGood - 4.1 <= MOS <= 4.2
	BandGood
	// BandExcellent - MOS > 4.2
	BandExcellent
)

// String returns the string representation of the band
func (b Band) String() string {
	switch b {
	case BandExcellent:
		return "excellent"
	case BandGood:
		return "good"
	case BandFair:
		return "fair"
	case BandPoor:
		return "poor"
	case BandBad:
		return "bad"
	default:
		return "unknown"
	}
}

// R-factor model constants for the G.711 reference codec.
const (
	rFactorBase = 93.2
	// delayThresholdMs is where the steeper delay penalty kicks in
	delayThresholdMs = 177.3

	mosMin = 1.0
	mosMax = 5.0
)

// Score maps network metrics to a MOS score and its quality band.
// Deterministic and stateless: identical inputs give identical output.
func Score(jitterMs, rttMs float64, packetsReceived, packetsLost int) (float64, Band) {
	id := delayImpairment(jitterMs, rttMs)
	ie := equipmentImpairment(packetsLost, packetsReceived)

	r := rFactorBase - id - ie

	mos := 1 + 0.035*r + 0.000007*r*(r-60)*(100-r)
	if math.IsNaN(mos) {
		return mos, BandUnknown
	}
	mos = math.Min(math.Max(mos, mosMin), mosMax)
	return mos, Quality(mos)
}

// Quality maps a MOS score to its band. NaN maps to BandUnknown.
// The cutoffs leave the intervals (3.6,3.7) and (4.0,4.1) in BandBad,
// matching the reference thresholds exactly.
func Quality(mos float64) Band {
	switch {
	case math.IsNaN(mos):
		return BandUnknown
	case mos > 4.2:
		return BandExcellent
	case mos >= 4.1:
		return BandGood
	case mos >= 3.7 && mos <= 4.0:
		return BandFair
	case mos >= 3.1 && mos <= 3.6:
		return BandPoor
	default:
		return BandBad
	}
}

// delayImpairment approximates one-way latency as jitter + rtt/2 and
// applies a linear penalty with a steeper term past the threshold.
func delayImpairment(jitterMs, rttMs float64) float64 {
	latency := jitterMs + rttMs/2
	impairment := 0.024 * latency
	if latency > delayThresholdMs {
		impairment += 0.11 * (latency - delayThresholdMs)
	}
	return impairment
}

// equipmentImpairment penalizes packet loss logarithmically.
func equipmentImpairment(packetsLost, packetsReceived int) float64 {
	total := packetsReceived + packetsLost
	if total == 0 {
		return 0
	}
	lossPct := float64(packetsLost) / float64(total) * 100
	return 20 * math.Log(1+lossPct)
}
