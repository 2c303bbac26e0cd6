package discussion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeakingOrder_IsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	order := speakingOrder(rng, 4, -1)
	require.Len(t, order, 4)
	seen := make(map[int]bool)
	for _, idx := range order {
		assert.False(t, seen[idx])
		seen[idx] = true
	}
}

func TestSpeakingOrder_FirstSpeakerRotates(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	prevFirst := -1
	for round := 1; round <= 200; round++ {
		order := speakingOrder(rng, 3, prevFirst)
		if prevFirst >= 0 {
			assert.NotEqual(t, prevFirst, order[0],
				"round %d first speaker repeated", round)
		}
		prevFirst = order[0]
	}
}

func TestSpeakingOrder_TwoParticipantsAlternate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	prevFirst := 0
	for round := 0; round < 50; round++ {
		order := speakingOrder(rng, 2, prevFirst)
		assert.NotEqual(t, prevFirst, order[0])
		prevFirst = order[0]
	}
}
