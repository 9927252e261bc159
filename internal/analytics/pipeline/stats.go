package pipeline

import "math"

// stdEpsilon floors sample standard deviations so threshold comparisons never
// divide or multiply by zero on flat baselines.
const stdEpsilon = 1e-6

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd returns the n-1 sample standard deviation, floored at stdEpsilon.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return stdEpsilon
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	std := math.Sqrt(sum / float64(len(values)-1))
	if std < stdEpsilon {
		return stdEpsilon
	}
	return std
}

// weightedMean averages values by the given weights, falling back to an even
// mean when all weights are zero.
func weightedMean(values, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum, weightSum float64
	for i, v := range values {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		sum += v * w
		weightSum += w
	}
	if weightSum == 0 {
		return mean(values)
	}
	return sum / weightSum
}
