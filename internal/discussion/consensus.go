package discussion

import (
	"math"

	"dev.veil.experiment/internal/models"
)

// toleranceFloor is the minimum absolute tolerance for semantic consensus
// over constraint amounts.
const toleranceFloor = 1000

// CheckConsensus evaluates a ballot with the two-tier matching algorithm.
// Tier 1 requires identical principle and identical constraint amount across
// all votes. Tier 2 requires only a shared principle; for constraint
// principles the amounts must additionally lie within a relative tolerance
// band, and the agreed amount is the most frequent one (first-seen order
// breaking ties). The returned VoteResult carries the tally either way.
func CheckConsensus(votes []models.PrincipleChoice) models.VoteResult {
	result := models.NewVoteResult(votes)
	if len(votes) == 0 {
		return result
	}

	if agreed, ok := exactConsensus(votes); ok {
		result.ConsensusReached = true
		result.AgreedPrinciple = &agreed
		return result
	}
	if agreed, ok := semanticConsensus(votes); ok {
		result.ConsensusReached = true
		result.AgreedPrinciple = &agreed
		return result
	}
	return result
}

// exactConsensus requires every vote to match the first on principle and
// constraint amount (both nil, or both equal). A nil amount on a constraint
// principle can never match.
func exactConsensus(votes []models.PrincipleChoice) (models.PrincipleChoice, bool) {
	first := votes[0]
	if first.Principle.RequiresConstraint() && first.ConstraintAmount == nil {
		return models.PrincipleChoice{}, false
	}
	for _, v := range votes[1:] {
		if !first.Equal(v) {
			return models.PrincipleChoice{}, false
		}
	}
	return first, true
}

// semanticConsensus requires a shared principle across all votes. For a
// non-constraint principle that alone suffices. For a constraint principle
// every amount must be present and the spread must fit inside
// max(1000, round(mean*0.1)).
func semanticConsensus(votes []models.PrincipleChoice) (models.PrincipleChoice, bool) {
	principle := votes[0].Principle
	for _, v := range votes[1:] {
		if v.Principle != principle {
			return models.PrincipleChoice{}, false
		}
	}

	if !principle.RequiresConstraint() {
		return models.PrincipleChoice{Principle: principle, Certainty: votes[0].Certainty}, true
	}

	amounts := make([]int, 0, len(votes))
	for _, v := range votes {
		if v.ConstraintAmount == nil {
			return models.PrincipleChoice{}, false
		}
		amounts = append(amounts, *v.ConstraintAmount)
	}

	min, max, sum := amounts[0], amounts[0], 0
	for _, a := range amounts {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
		sum += a
	}
	mean := float64(sum) / float64(len(amounts))
	tolerance := int(math.Round(mean * 0.1))
	if tolerance < toleranceFloor {
		tolerance = toleranceFloor
	}
	if max-min > tolerance {
		return models.PrincipleChoice{}, false
	}

	agreed := mostFrequent(amounts)
	return models.PrincipleChoice{
		Principle:        principle,
		ConstraintAmount: &agreed,
		Certainty:        votes[0].Certainty,
	}, true
}

// mostFrequent returns the most common amount, breaking ties by first-seen
// order over the ballot. Deterministic by construction, not an artifact of
// map iteration.
func mostFrequent(amounts []int) int {
	counts := make(map[int]int, len(amounts))
	for _, a := range amounts {
		counts[a]++
	}
	best := amounts[0]
	bestCount := counts[best]
	for _, a := range amounts[1:] {
		if counts[a] > bestCount {
			best, bestCount = a, counts[a]
		}
	}
	return best
}
