// Package participant holds the mutable per-participant state threaded
// through both experiment phases: balance, private free-text memory, round
// number, and phase. Each Context is owned by exactly one phase manager at a
// time and is never accessed concurrently.
package participant

import (
	"context"
	"fmt"

	"dev.veil.experiment/internal/agent"
)

// Phase identifies which part of the experiment a participant is in.
type Phase int

const (
	PhaseOne Phase = 1
	PhaseTwo Phase = 2
)

// maxMemoryRetries bounds the shorten-and-retry loop on memory overflow.
const maxMemoryRetries = 3

// Context is one participant's mutable experiment state.
type Context struct {
	Participant agent.Participant
	Balance     float64
	Memory      string
	RoundNumber int
	Phase       Phase
}

// NewContext builds the initial Phase 1 state for a participant.
func NewContext(p agent.Participant) *Context {
	return &Context{
		Participant: p,
		Phase:       PhaseOne,
		RoundNumber: 1,
	}
}

// ForPhaseTwo builds a fresh Phase 2 context carrying the final Phase 1
// memory verbatim. Memory is the only channel of continuity between phases.
func ForPhaseTwo(p agent.Participant, finalMemory string, balance float64) *Context {
	return &Context{
		Participant: p,
		Balance:     balance,
		Memory:      finalMemory,
		Phase:       PhaseTwo,
		RoundNumber: 1,
	}
}

// Credit adds earnings to the participant's balance.
func (c *Context) Credit(earnings float64) {
	c.Balance += earnings
}

// MemoryOverflowError reports that a participant kept exceeding its memory
// character limit after bounded re-prompts.
type MemoryOverflowError struct {
	Participant string
	Limit       int
	Length      int
}

func (e *MemoryOverflowError) Error() string {
	return fmt.Sprintf("memory for %s exceeds limit after retries: %d chars over the %d-char limit",
		e.Participant, e.Length-e.Limit, e.Limit)
}

// UpdateMemory asks the participant to rewrite its memory based on the given
// prompt. A result over the configured character limit triggers a re-prompt
// naming the exact overflow; after bounded retries the overflow is fatal.
func (c *Context) UpdateMemory(ctx context.Context, updater agent.MemoryUpdater, prompt string) error {
	limit := c.Participant.MemoryCharLimit

	current := prompt
	var memory string
	var err error
	for attempt := 0; attempt <= maxMemoryRetries; attempt++ {
		memory, err = updater.UpdateMemory(ctx, c.Participant.ID, current)
		if err != nil {
			return fmt.Errorf("update memory for %s: %w", c.Participant.Name, err)
		}
		if limit <= 0 || len(memory) <= limit {
			c.Memory = memory
			return nil
		}
		overflow := len(memory) - limit
		current = fmt.Sprintf(
			"%s\n\nYour previous answer was %d characters over the %d-character limit. Shorten it accordingly.",
			prompt, overflow, limit,
		)
	}
	return &MemoryOverflowError{
		Participant: c.Participant.Name,
		Limit:       limit,
		Length:      len(memory),
	}
}
