package discussion

import "math/rand"

// speakingOrder returns a uniformly random permutation of n participants
// under one fairness constraint: the participant who opened the previous
// round (prevFirst, -1 when none) must not open this one. A violating draw
// is repaired by swapping positions 0 and 1, which is sufficient with two
// or more participants.
func speakingOrder(rng *rand.Rand, n, prevFirst int) []int {
	order := rng.Perm(n)
	if prevFirst >= 0 && n >= 2 && order[0] == prevFirst {
		order[0], order[1] = order[1], order[0]
	}
	return order
}
