package analyze

import "math"

// ShannonEntropy computes -Σ pᵢ·log₂ pᵢ over character frequencies of s,
// in bits per character, per spec.md §4.3 / §8.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}
	n := float64(total)
	var entropy float64
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
