package models

import "fmt"

// IncomeClass identifies one of the five income strata in a distribution.
// It doubles as the outcome of random class assignment at payoff time.
type IncomeClass string

const (
	ClassHigh       IncomeClass = "high"
	ClassMediumHigh IncomeClass = "medium_high"
	ClassMedium     IncomeClass = "medium"
	ClassMediumLow  IncomeClass = "medium_low"
	ClassLow        IncomeClass = "low"
)

// AllIncomeClasses returns the five classes ordered high to low.
func AllIncomeClasses() []IncomeClass {
	return []IncomeClass{ClassHigh, ClassMediumHigh, ClassMedium, ClassMediumLow, ClassLow}
}

// Valid reports whether c is one of the five known classes.
func (c IncomeClass) Valid() bool {
	switch c {
	case ClassHigh, ClassMediumHigh, ClassMedium, ClassMediumLow, ClassLow:
		return true
	}
	return false
}

// IncomeDistribution is one candidate distribution of yearly incomes across
// the five classes. All values are positive integers.
type IncomeDistribution struct {
	High       int `json:"high"`
	MediumHigh int `json:"medium_high"`
	Medium     int `json:"medium"`
	MediumLow  int `json:"medium_low"`
	Low        int `json:"low"`
}

// Validate checks that every class income is positive.
func (d IncomeDistribution) Validate() error {
	for _, c := range AllIncomeClasses() {
		if d.ValueForClass(c) <= 0 {
			return fmt.Errorf("income distribution: %s income must be positive, got %d", c, d.ValueForClass(c))
		}
	}
	return nil
}

// ValueForClass returns the income assigned to the given class.
func (d IncomeDistribution) ValueForClass(c IncomeClass) int {
	switch c {
	case ClassHigh:
		return d.High
	case ClassMediumHigh:
		return d.MediumHigh
	case ClassMedium:
		return d.Medium
	case ClassMediumLow:
		return d.MediumLow
	case ClassLow:
		return d.Low
	}
	return 0
}

// Floor returns the lowest income in the distribution.
func (d IncomeDistribution) Floor() int { return d.Low }

// Average returns the mean income over the five classes.
func (d IncomeDistribution) Average() float64 {
	return float64(d.High+d.MediumHigh+d.Medium+d.MediumLow+d.Low) / 5.0
}

// Range returns the spread between the highest and lowest incomes.
func (d IncomeDistribution) Range() int { return d.High - d.Low }

func (d IncomeDistribution) String() string {
	return fmt.Sprintf("[high=%d medium_high=%d medium=%d medium_low=%d low=%d]",
		d.High, d.MediumHigh, d.Medium, d.MediumLow, d.Low)
}

// DistributionSet holds the four candidate distributions presented in one
// round, together with the multiplier used to scale the base tables.
type DistributionSet struct {
	Distributions [4]IncomeDistribution `json:"distributions"`
	Multiplier    float64               `json:"multiplier"`
}

// Validate checks the multiplier and every member distribution.
func (s DistributionSet) Validate() error {
	if s.Multiplier <= 0 {
		return fmt.Errorf("distribution set: multiplier must be positive, got %f", s.Multiplier)
	}
	for i, d := range s.Distributions {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("distribution set: distribution %d: %w", i+1, err)
		}
	}
	return nil
}

// Labels returns the display labels for the four distributions, in order.
func (s DistributionSet) Labels() [4]string {
	return [4]string{"distribution_1", "distribution_2", "distribution_3", "distribution_4"}
}
