// Package distribution implements the income-distribution and
// justice-principle engine: generating candidate distribution sets,
// applying a principle to select one distribution, and computing payoffs
// and counterfactual earnings.
package distribution

import (
	"fmt"
	"math"
	"math/rand"

	"dev.veil.experiment/internal/models"
)

// EarningsDivisor converts a yearly class income into an experiment payoff.
const EarningsDivisor = 10000.0

// DefaultConstraintAmount is the implied constraint used when computing
// counterfactual earnings for a constraint principle the participant never
// parameterized.
const DefaultConstraintAmount = 15000

// baseDistributions are the four fixed income tables scaled by the per-round
// multiplier. Values are yearly incomes for high..low.
var baseDistributions = [4]models.IncomeDistribution{
	{High: 32000, MediumHigh: 27000, Medium: 24000, MediumLow: 13000, Low: 12000},
	{High: 28000, MediumHigh: 22000, Medium: 20000, MediumLow: 17000, Low: 13000},
	{High: 31000, MediumHigh: 24000, Medium: 21000, MediumLow: 16000, Low: 14000},
	{High: 21000, MediumHigh: 20000, Medium: 19000, MediumLow: 16000, Low: 15000},
}

// BaseDistributions returns a copy of the four unscaled base distributions.
func BaseDistributions() [4]models.IncomeDistribution {
	return baseDistributions
}

// MultiplierRange bounds the uniform multiplier draw for a distribution set.
type MultiplierRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Validate checks 0 < Min <= Max.
func (r MultiplierRange) Validate() error {
	if r.Min <= 0 || r.Max <= 0 {
		return fmt.Errorf("multiplier range: bounds must be positive, got (%f, %f)", r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("multiplier range: min %f exceeds max %f", r.Min, r.Max)
	}
	return nil
}

// Engine generates distribution sets and assigns payoffs. The random source
// is injected so tests can pin outcomes.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an engine backed by the given random source. A nil
// source gets a time-seeded one.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Engine{rng: rng}
}

// GenerateDistributionSet draws one uniform multiplier in the inclusive
// range and scales the four base distributions elementwise, rounding to
// integers. One shared multiplier covers the whole set.
func (e *Engine) GenerateDistributionSet(r MultiplierRange) (models.DistributionSet, error) {
	if err := r.Validate(); err != nil {
		return models.DistributionSet{}, err
	}
	multiplier := r.Min + e.rng.Float64()*(r.Max-r.Min)

	var set models.DistributionSet
	set.Multiplier = multiplier
	for i, base := range baseDistributions {
		set.Distributions[i] = scale(base, multiplier)
	}
	return set, nil
}

func scale(d models.IncomeDistribution, multiplier float64) models.IncomeDistribution {
	round := func(v int) int { return int(math.Round(float64(v) * multiplier)) }
	return models.IncomeDistribution{
		High:       round(d.High),
		MediumHigh: round(d.MediumHigh),
		Medium:     round(d.Medium),
		MediumLow:  round(d.MediumLow),
		Low:        round(d.Low),
	}
}

// ApplyPrinciple selects the distribution the given choice implies, with a
// human-readable explanation of the selection. Pure: same inputs always
// yield the same output. An unknown principle is an error the caller must
// treat as fatal.
func ApplyPrinciple(distributions [4]models.IncomeDistribution, choice models.PrincipleChoice) (models.IncomeDistribution, string, error) {
	switch choice.Principle {
	case models.MaximizingFloor:
		best := maxBy(distributions[:], func(d models.IncomeDistribution) float64 { return float64(d.Floor()) })
		return best, fmt.Sprintf("Selected the distribution with the highest floor income (%d).", best.Floor()), nil

	case models.MaximizingAverage:
		best := maxBy(distributions[:], func(d models.IncomeDistribution) float64 { return d.Average() })
		return best, fmt.Sprintf("Selected the distribution with the highest average income (%.1f).", best.Average()), nil

	case models.MaximizingAverageFloorConstraint:
		if choice.ConstraintAmount == nil {
			return models.IncomeDistribution{}, "", fmt.Errorf("apply principle: %s requires a constraint amount", choice.Principle)
		}
		amount := *choice.ConstraintAmount
		qualifying := filter(distributions[:], func(d models.IncomeDistribution) bool { return d.Floor() >= amount })
		if len(qualifying) == 0 {
			best := maxBy(distributions[:], func(d models.IncomeDistribution) float64 { return float64(d.Floor()) })
			return best, fmt.Sprintf("No distribution meets the floor constraint of %d; fell back to the distribution with the highest floor income (%d).", amount, best.Floor()), nil
		}
		best := maxBy(qualifying, func(d models.IncomeDistribution) float64 { return d.Average() })
		return best, fmt.Sprintf("Selected the highest-average distribution (%.1f) among those meeting the floor constraint of %d.", best.Average(), amount), nil

	case models.MaximizingAverageRangeConstraint:
		if choice.ConstraintAmount == nil {
			return models.IncomeDistribution{}, "", fmt.Errorf("apply principle: %s requires a constraint amount", choice.Principle)
		}
		amount := *choice.ConstraintAmount
		qualifying := filter(distributions[:], func(d models.IncomeDistribution) bool { return d.Range() <= amount })
		if len(qualifying) == 0 {
			best := minBy(distributions[:], func(d models.IncomeDistribution) float64 { return float64(d.Range()) })
			return best, fmt.Sprintf("No distribution meets the range constraint of %d; fell back to the distribution with the smallest range (%d).", amount, best.Range()), nil
		}
		best := maxBy(qualifying, func(d models.IncomeDistribution) float64 { return d.Average() })
		return best, fmt.Sprintf("Selected the highest-average distribution (%.1f) among those meeting the range constraint of %d.", best.Average(), amount), nil
	}

	return models.IncomeDistribution{}, "", fmt.Errorf("apply principle: unknown principle %q", choice.Principle)
}

// maxBy returns the first element attaining the maximum key (stable
// tie-break in input order).
func maxBy(ds []models.IncomeDistribution, key func(models.IncomeDistribution) float64) models.IncomeDistribution {
	best := ds[0]
	bestKey := key(best)
	for _, d := range ds[1:] {
		if k := key(d); k > bestKey {
			best, bestKey = d, k
		}
	}
	return best
}

// minBy returns the first element attaining the minimum key.
func minBy(ds []models.IncomeDistribution, key func(models.IncomeDistribution) float64) models.IncomeDistribution {
	best := ds[0]
	bestKey := key(best)
	for _, d := range ds[1:] {
		if k := key(d); k < bestKey {
			best, bestKey = d, k
		}
	}
	return best
}

func filter(ds []models.IncomeDistribution, keep func(models.IncomeDistribution) bool) []models.IncomeDistribution {
	var out []models.IncomeDistribution
	for _, d := range ds {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Earnings converts the income of the given class into a payoff.
func Earnings(d models.IncomeDistribution, class models.IncomeClass) float64 {
	return float64(d.ValueForClass(class)) / EarningsDivisor
}

// AssignPayoff uniformly draws one of the five income classes and returns it
// with the resulting earnings.
func (e *Engine) AssignPayoff(d models.IncomeDistribution) (models.IncomeClass, float64) {
	classes := models.AllIncomeClasses()
	class := classes[e.rng.Intn(len(classes))]
	return class, Earnings(d, class)
}

// ClassProbabilities maps each income class to its assignment probability in
// the weighted payoff mode.
type ClassProbabilities map[models.IncomeClass]float64

// Validate requires exactly the five classes with non-negative weights
// summing to 1 (within rounding slack).
func (p ClassProbabilities) Validate() error {
	if len(p) != len(models.AllIncomeClasses()) {
		return fmt.Errorf("class probabilities: expected %d entries, got %d", len(models.AllIncomeClasses()), len(p))
	}
	sum := 0.0
	for _, class := range models.AllIncomeClasses() {
		weight, ok := p[class]
		if !ok {
			return fmt.Errorf("class probabilities: missing class %s", class)
		}
		if weight < 0 {
			return fmt.Errorf("class probabilities: negative weight %f for class %s", weight, class)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("class probabilities: weights sum to %f, want 1", sum)
	}
	return nil
}

// AssignPayoffWeighted draws an income class according to the given
// probability table. Extension of the uniform base contract; the table comes
// from configuration, never from guessed defaults.
func (e *Engine) AssignPayoffWeighted(d models.IncomeDistribution, probs ClassProbabilities) (models.IncomeClass, float64, error) {
	if err := probs.Validate(); err != nil {
		return "", 0, err
	}
	draw := e.rng.Float64()
	cumulative := 0.0
	classes := models.AllIncomeClasses()
	for _, class := range classes {
		cumulative += probs[class]
		if draw < cumulative {
			return class, Earnings(d, class), nil
		}
	}
	// Rounding can leave draw at or above the cumulative sum.
	last := classes[len(classes)-1]
	return last, Earnings(d, last), nil
}

// impliedChoice builds the default choice used when computing a
// counterfactual for the given principle.
func impliedChoice(p models.JusticePrinciple, constraintAmount *int) models.PrincipleChoice {
	choice := models.PrincipleChoice{Principle: p, Certainty: models.NoOpinion}
	if p.RequiresConstraint() {
		amount := DefaultConstraintAmount
		if constraintAmount != nil && *constraintAmount > 0 {
			amount = *constraintAmount
		}
		choice.ConstraintAmount = &amount
	}
	return choice
}

// CounterfactualEarnings computes, for each of the four principles, what
// the participant would have earned had that principle been applied, with a
// fresh random class draw per principle. A failing principle records 0.0
// and the computation continues.
func (e *Engine) CounterfactualEarnings(distributions [4]models.IncomeDistribution, constraintAmount *int) map[models.JusticePrinciple]float64 {
	out := make(map[models.JusticePrinciple]float64, 4)
	for _, p := range models.AllPrinciples() {
		chosen, _, err := ApplyPrinciple(distributions, impliedChoice(p, constraintAmount))
		if err != nil {
			out[p] = 0.0
			continue
		}
		_, earnings := e.AssignPayoff(chosen)
		out[p] = earnings
	}
	return out
}

// CounterfactualEarningsSameClass computes per-principle counterfactual
// earnings reusing the class already assigned this round. This is the
// economically meaningful comparison shown to participants.
func CounterfactualEarningsSameClass(distributions [4]models.IncomeDistribution, class models.IncomeClass, constraintAmount *int) map[models.JusticePrinciple]float64 {
	out := make(map[models.JusticePrinciple]float64, 4)
	for _, p := range models.AllPrinciples() {
		chosen, _, err := ApplyPrinciple(distributions, impliedChoice(p, constraintAmount))
		if err != nil {
			out[p] = 0.0
			continue
		}
		out[p] = Earnings(chosen, class)
	}
	return out
}
