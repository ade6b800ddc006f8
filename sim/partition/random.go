package partition

import "math/rand"

// RandomShard shuffles devices 0..n-1 and deals them round-robin into
// clusters parts, so cluster sizes differ by at most one.
func RandomShard(n, clusters int, rng *rand.Rand) []int {
	order := rng.Perm(n)
	parts := make([]int, n)
	for i, d := range order {
		parts[d] = i % clusters
	}
	return parts
}
