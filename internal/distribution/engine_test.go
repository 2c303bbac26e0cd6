package distribution

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.veil.experiment/internal/models"
)

func intPtr(v int) *int { return &v }

// distsWithLows builds four distributions whose floors are the given values,
// with averages increasing in input order.
func distsWithLows(lows [4]int) [4]models.IncomeDistribution {
	var out [4]models.IncomeDistribution
	for i, low := range lows {
		out[i] = models.IncomeDistribution{
			High:       low + 20000 + i*1000,
			MediumHigh: low + 15000 + i*1000,
			Medium:     low + 10000 + i*1000,
			MediumLow:  low + 5000 + i*1000,
			Low:        low,
		}
	}
	return out
}

func TestGenerateDistributionSet_DegenerateRange(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(1)))
	set, err := engine.GenerateDistributionSet(MultiplierRange{Min: 1.0, Max: 1.0})
	require.NoError(t, err)

	assert.Equal(t, 1.0, set.Multiplier)
	assert.Equal(t, BaseDistributions(), set.Distributions, "multiplier 1 must reproduce the base tables unscaled")
}

func TestGenerateDistributionSet_SharedMultiplier(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(7)))
	set, err := engine.GenerateDistributionSet(MultiplierRange{Min: 2.0, Max: 2.0})
	require.NoError(t, err)

	base := BaseDistributions()
	for i := range set.Distributions {
		assert.Equal(t, base[i].High*2, set.Distributions[i].High)
		assert.Equal(t, base[i].Low*2, set.Distributions[i].Low)
	}
}

func TestGenerateDistributionSet_InvalidRange(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(1)))
	_, err := engine.GenerateDistributionSet(MultiplierRange{Min: 0, Max: 1})
	assert.Error(t, err)
	_, err = engine.GenerateDistributionSet(MultiplierRange{Min: 2, Max: 1})
	assert.Error(t, err)
}

func TestApplyPrinciple_MaximizingFloor(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 15000, 15000})
	chosen, _, err := ApplyPrinciple(dists, models.PrincipleChoice{Principle: models.MaximizingFloor, Certainty: models.Sure})
	require.NoError(t, err)
	assert.Equal(t, dists[2], chosen, "ties break to the first maximal element in input order")
}

func TestApplyPrinciple_MaximizingAverage(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	chosen, _, err := ApplyPrinciple(dists, models.PrincipleChoice{Principle: models.MaximizingAverage, Certainty: models.Sure})
	require.NoError(t, err)
	assert.Equal(t, dists[3], chosen)
}

func TestApplyPrinciple_FloorConstraint(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})

	// Qualifying set is {14000, 15000}; the 15000 one has the higher average.
	chosen, explanation, err := ApplyPrinciple(dists, models.PrincipleChoice{
		Principle:        models.MaximizingAverageFloorConstraint,
		ConstraintAmount: intPtr(14000),
		Certainty:        models.Sure,
	})
	require.NoError(t, err)
	assert.Equal(t, dists[3], chosen)
	assert.NotContains(t, explanation, "could not")
}

func TestApplyPrinciple_FloorConstraintFallback(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	// Make the first distribution the highest-average one so the fallback
	// visibly prefers floor over average.
	dists[0].High = 90000

	chosen, explanation, err := ApplyPrinciple(dists, models.PrincipleChoice{
		Principle:        models.MaximizingAverageFloorConstraint,
		ConstraintAmount: intPtr(20000),
		Certainty:        models.Sure,
	})
	require.NoError(t, err)
	assert.Equal(t, 15000, chosen.Floor(), "fallback picks the highest floor, not the highest average")
	assert.Contains(t, explanation, "No distribution meets the floor constraint")
}

func TestApplyPrinciple_RangeConstraint(t *testing.T) {
	dists := [4]models.IncomeDistribution{
		{High: 32000, MediumHigh: 27000, Medium: 24000, MediumLow: 13000, Low: 12000}, // range 20000
		{High: 28000, MediumHigh: 22000, Medium: 20000, MediumLow: 17000, Low: 13000}, // range 15000
		{High: 31000, MediumHigh: 24000, Medium: 21000, MediumLow: 16000, Low: 14000}, // range 17000
		{High: 21000, MediumHigh: 20000, Medium: 19000, MediumLow: 16000, Low: 15000}, // range 6000
	}

	chosen, _, err := ApplyPrinciple(dists, models.PrincipleChoice{
		Principle:        models.MaximizingAverageRangeConstraint,
		ConstraintAmount: intPtr(16000),
		Certainty:        models.Sure,
	})
	require.NoError(t, err)
	assert.Equal(t, dists[1], chosen, "highest average among ranges <= 16000")

	chosen, explanation, err := ApplyPrinciple(dists, models.PrincipleChoice{
		Principle:        models.MaximizingAverageRangeConstraint,
		ConstraintAmount: intPtr(5000),
		Certainty:        models.Sure,
	})
	require.NoError(t, err)
	assert.Equal(t, dists[3], chosen, "fallback picks the smallest range")
	assert.Contains(t, explanation, "No distribution meets the range constraint")
}

func TestApplyPrinciple_Idempotent(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	choice := models.PrincipleChoice{
		Principle:        models.MaximizingAverageFloorConstraint,
		ConstraintAmount: intPtr(13000),
		Certainty:        models.Sure,
	}
	first, firstExplanation, err := ApplyPrinciple(dists, choice)
	require.NoError(t, err)
	second, secondExplanation, err := ApplyPrinciple(dists, choice)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, firstExplanation, secondExplanation)
}

func TestApplyPrinciple_UnknownPrinciple(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	_, _, err := ApplyPrinciple(dists, models.PrincipleChoice{Principle: "maximizing_vibes"})
	assert.Error(t, err)
}

func TestEarnings(t *testing.T) {
	d := models.IncomeDistribution{High: 30000, MediumHigh: 25000, Medium: 20000, MediumLow: 15000, Low: 10000}
	assert.Equal(t, 1.0, Earnings(d, models.ClassLow))
	assert.Equal(t, 3.0, Earnings(d, models.ClassHigh))
}

func TestAssignPayoff_CoversAllClasses(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(42)))
	d := models.IncomeDistribution{High: 30000, MediumHigh: 25000, Medium: 20000, MediumLow: 15000, Low: 10000}

	seen := make(map[models.IncomeClass]bool)
	for i := 0; i < 200; i++ {
		class, earnings := engine.AssignPayoff(d)
		require.True(t, class.Valid())
		assert.Equal(t, Earnings(d, class), earnings)
		seen[class] = true
	}
	assert.Len(t, seen, 5, "uniform assignment should hit every class over 200 draws")
}

func TestAssignPayoffWeighted(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(3)))
	d := models.IncomeDistribution{High: 30000, MediumHigh: 25000, Medium: 20000, MediumLow: 15000, Low: 10000}

	probs := ClassProbabilities{
		models.ClassHigh:       0,
		models.ClassMediumHigh: 0,
		models.ClassMedium:     0,
		models.ClassMediumLow:  0,
		models.ClassLow:        1,
	}
	for i := 0; i < 20; i++ {
		class, earnings, err := engine.AssignPayoffWeighted(d, probs)
		require.NoError(t, err)
		assert.Equal(t, models.ClassLow, class)
		assert.Equal(t, 1.0, earnings)
	}
}

func TestClassProbabilities_Validate(t *testing.T) {
	valid := ClassProbabilities{
		models.ClassHigh:       0.1,
		models.ClassMediumHigh: 0.2,
		models.ClassMedium:     0.4,
		models.ClassMediumLow:  0.2,
		models.ClassLow:        0.1,
	}
	assert.NoError(t, valid.Validate())

	missing := ClassProbabilities{models.ClassHigh: 1}
	assert.Error(t, missing.Validate())

	badSum := ClassProbabilities{
		models.ClassHigh:       0.5,
		models.ClassMediumHigh: 0.5,
		models.ClassMedium:     0.5,
		models.ClassMediumLow:  0.0,
		models.ClassLow:        0.0,
	}
	assert.Error(t, badSum.Validate())
}

func TestCounterfactualEarningsSameClass(t *testing.T) {
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	earnings := CounterfactualEarningsSameClass(dists, models.ClassLow, intPtr(14000))

	require.Len(t, earnings, 4)
	assert.Equal(t, 1.5, earnings[models.MaximizingFloor], "floor principle picks low=15000, class low pays 1.5")
	for _, p := range models.AllPrinciples() {
		assert.GreaterOrEqual(t, earnings[p], 0.0)
	}
}

func TestCounterfactualEarnings_FreshDraw(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(11)))
	dists := distsWithLows([4]int{12000, 13000, 14000, 15000})
	earnings := engine.CounterfactualEarnings(dists, nil)
	require.Len(t, earnings, 4)
	for _, p := range models.AllPrinciples() {
		assert.Greater(t, earnings[p], 0.0)
	}
}

func TestFormatDistributionTable_BaseValues(t *testing.T) {
	engine := NewEngine(rand.New(rand.NewSource(1)))
	set, err := engine.GenerateDistributionSet(MultiplierRange{Min: 1.0, Max: 1.0})
	require.NoError(t, err)

	table := FormatDistributionTable(set)
	for _, d := range BaseDistributions() {
		for _, c := range models.AllIncomeClasses() {
			assert.Contains(t, table, fmt.Sprintf("%d", d.ValueForClass(c)))
		}
	}
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	assert.Len(t, lines, 6, "header plus five class rows")
}
