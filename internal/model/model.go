package model

import "math"

// Sigmoid is the logistic activation used by both layers.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// RoundTh rounds x away from zero when its fractional magnitude reaches th.
// With th = 0.5 this is round-half-away-from-zero.
func RoundTh(x, th float64) int {
	ip, frac := math.Modf(x)
	if math.Abs(frac) >= th {
		if x >= 0 {
			ip++
		} else {
			ip--
		}
	}
	return int(ip)
}

// CurrentToDigits quantizes a summed column current against its maximum
// onto a numBitPartialSum-bit code. A zero maximum yields zero.
func CurrentToDigits(current, currentMax float64, numBitPartialSum int) int {
	if currentMax <= 0 {
		return 0
	}
	return int(current / currentMax * (math.Exp2(float64(numBitPartialSum)) - 1))
}

// DigitsToAlgorithm rescales a partial-sum code into algorithm units, where
// pSumMax is the largest partial sum the bit-plane can produce.
func DigitsToAlgorithm(digits int, pSumMax float64, numBitPartialSum int) float64 {
	return float64(digits) / (math.Exp2(float64(numBitPartialSum)) - 1) * pSumMax
}

// Argmax returns the index of the largest element, or -1 for an empty slice.
func Argmax(v []float64) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}
