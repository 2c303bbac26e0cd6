// Package models defines the core data model for the veil-of-ignorance
// justice experiment: justice principles, income distributions, participant
// choices and rankings, vote records, and the immutable result aggregates
// produced by each phase.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// JusticePrinciple identifies one of the four distributive-justice principles
// participants can choose between.
type JusticePrinciple string

const (
	MaximizingFloor                  JusticePrinciple = "maximizing_floor"
	MaximizingAverage                JusticePrinciple = "maximizing_average"
	MaximizingAverageFloorConstraint JusticePrinciple = "maximizing_average_floor_constraint"
	MaximizingAverageRangeConstraint JusticePrinciple = "maximizing_average_range_constraint"
)

// AllPrinciples returns the four principles in canonical order.
func AllPrinciples() []JusticePrinciple {
	return []JusticePrinciple{
		MaximizingFloor,
		MaximizingAverage,
		MaximizingAverageFloorConstraint,
		MaximizingAverageRangeConstraint,
	}
}

// Valid reports whether p is one of the four known principles.
func (p JusticePrinciple) Valid() bool {
	switch p {
	case MaximizingFloor, MaximizingAverage,
		MaximizingAverageFloorConstraint, MaximizingAverageRangeConstraint:
		return true
	}
	return false
}

// RequiresConstraint reports whether p carries an associated constraint amount.
func (p JusticePrinciple) RequiresConstraint() bool {
	return p == MaximizingAverageFloorConstraint || p == MaximizingAverageRangeConstraint
}

// CertaintyLevel expresses how sure a participant is about a choice or
// ranking. Levels are ordered from VeryUnsure (0) to VerySure (4).
type CertaintyLevel string

const (
	VeryUnsure CertaintyLevel = "very_unsure"
	Unsure     CertaintyLevel = "unsure"
	NoOpinion  CertaintyLevel = "no_opinion"
	Sure       CertaintyLevel = "sure"
	VerySure   CertaintyLevel = "very_sure"
)

// Valid reports whether c is one of the five known certainty levels.
func (c CertaintyLevel) Valid() bool {
	switch c {
	case VeryUnsure, Unsure, NoOpinion, Sure, VerySure:
		return true
	}
	return false
}

// Ordinal returns the position of c in the certainty ordering, with
// VeryUnsure at 0. Unknown levels return -1.
func (c CertaintyLevel) Ordinal() int {
	switch c {
	case VeryUnsure:
		return 0
	case Unsure:
		return 1
	case NoOpinion:
		return 2
	case Sure:
		return 3
	case VerySure:
		return 4
	}
	return -1
}

// PrincipleChoice is a participant's selection of a single principle,
// optionally with a constraint amount and free-text reasoning. Immutable
// once constructed.
type PrincipleChoice struct {
	Principle        JusticePrinciple `json:"principle"`
	ConstraintAmount *int             `json:"constraint_amount,omitempty"`
	Certainty        CertaintyLevel   `json:"certainty"`
	Reasoning        string           `json:"reasoning,omitempty"`
}

// NewPrincipleChoice validates and builds a PrincipleChoice. A constraint
// principle must carry a positive constraint amount; a non-constraint
// principle must not carry one.
func NewPrincipleChoice(principle JusticePrinciple, constraintAmount *int, certainty CertaintyLevel, reasoning string) (PrincipleChoice, error) {
	c := PrincipleChoice{
		Principle:        principle,
		ConstraintAmount: constraintAmount,
		Certainty:        certainty,
		Reasoning:        reasoning,
	}
	if err := c.Validate(); err != nil {
		return PrincipleChoice{}, err
	}
	return c, nil
}

// Validate checks the principle/constraint invariant.
func (c PrincipleChoice) Validate() error {
	if !c.Principle.Valid() {
		return fmt.Errorf("principle choice: unknown principle %q", c.Principle)
	}
	if !c.Certainty.Valid() {
		return fmt.Errorf("principle choice: unknown certainty %q", c.Certainty)
	}
	if c.Principle.RequiresConstraint() {
		if c.ConstraintAmount == nil || *c.ConstraintAmount <= 0 {
			return fmt.Errorf("principle choice: %s requires a positive constraint amount", c.Principle)
		}
	} else if c.ConstraintAmount != nil {
		return fmt.Errorf("principle choice: %s does not take a constraint amount", c.Principle)
	}
	return nil
}

// VoteKey returns a stable principle+constraint key used to tally ballots.
func (c PrincipleChoice) VoteKey() string {
	if c.ConstraintAmount != nil {
		return fmt.Sprintf("%s:%d", c.Principle, *c.ConstraintAmount)
	}
	return string(c.Principle)
}

// Equal reports whether two choices agree on principle and constraint amount.
// Certainty and reasoning are deliberately excluded.
func (c PrincipleChoice) Equal(other PrincipleChoice) bool {
	if c.Principle != other.Principle {
		return false
	}
	if (c.ConstraintAmount == nil) != (other.ConstraintAmount == nil) {
		return false
	}
	if c.ConstraintAmount != nil && *c.ConstraintAmount != *other.ConstraintAmount {
		return false
	}
	return true
}

func (c PrincipleChoice) String() string {
	if c.ConstraintAmount != nil {
		return fmt.Sprintf("%s (constraint %d)", c.Principle, *c.ConstraintAmount)
	}
	return string(c.Principle)
}

// RankedPrinciple pairs a principle with its rank (1 = most preferred).
type RankedPrinciple struct {
	Principle JusticePrinciple `json:"principle"`
	Rank      int              `json:"rank"`
}

// PrincipleRanking is a full preference ordering over the four principles
// with a single overall certainty level.
type PrincipleRanking struct {
	Rankings  []RankedPrinciple `json:"rankings"`
	Certainty CertaintyLevel    `json:"certainty"`
}

// NewPrincipleRanking validates and builds a PrincipleRanking: exactly the
// four principles once each, ranks exactly 1..4 once each.
func NewPrincipleRanking(rankings []RankedPrinciple, certainty CertaintyLevel) (PrincipleRanking, error) {
	r := PrincipleRanking{Rankings: rankings, Certainty: certainty}
	if err := r.Validate(); err != nil {
		return PrincipleRanking{}, err
	}
	return r, nil
}

// Validate checks the completeness invariant on principles and ranks.
func (r PrincipleRanking) Validate() error {
	if !r.Certainty.Valid() {
		return fmt.Errorf("principle ranking: unknown certainty %q", r.Certainty)
	}
	if len(r.Rankings) != len(AllPrinciples()) {
		return fmt.Errorf("principle ranking: expected %d entries, got %d", len(AllPrinciples()), len(r.Rankings))
	}
	seenPrinciples := make(map[JusticePrinciple]bool, 4)
	seenRanks := make(map[int]bool, 4)
	for _, rp := range r.Rankings {
		if !rp.Principle.Valid() {
			return fmt.Errorf("principle ranking: unknown principle %q", rp.Principle)
		}
		if seenPrinciples[rp.Principle] {
			return fmt.Errorf("principle ranking: duplicate principle %q", rp.Principle)
		}
		seenPrinciples[rp.Principle] = true
		if rp.Rank < 1 || rp.Rank > 4 {
			return fmt.Errorf("principle ranking: rank %d out of range 1..4", rp.Rank)
		}
		if seenRanks[rp.Rank] {
			return fmt.Errorf("principle ranking: duplicate rank %d", rp.Rank)
		}
		seenRanks[rp.Rank] = true
	}
	return nil
}

// RankOf returns the rank assigned to the given principle, or 0 when absent.
func (r PrincipleRanking) RankOf(p JusticePrinciple) int {
	for _, rp := range r.Rankings {
		if rp.Principle == p {
			return rp.Rank
		}
	}
	return 0
}

// Top returns the principle ranked first.
func (r PrincipleRanking) Top() JusticePrinciple {
	for _, rp := range r.Rankings {
		if rp.Rank == 1 {
			return rp.Principle
		}
	}
	return ""
}

func (r PrincipleRanking) String() string {
	sorted := make([]RankedPrinciple, len(r.Rankings))
	copy(sorted, r.Rankings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	parts := make([]string, 0, len(sorted))
	for _, rp := range sorted {
		parts = append(parts, fmt.Sprintf("%d. %s", rp.Rank, rp.Principle))
	}
	return strings.Join(parts, ", ")
}
