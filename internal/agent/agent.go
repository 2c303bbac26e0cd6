// Package agent defines the collaborator interfaces through which the
// experiment core talks to LLM-backed participants: free-text reply
// generation, structured choice/ranking extraction, vote-proposal detection,
// and memory updates. The LLM transport itself lives outside this module;
// the core only depends on these contracts.
package agent

import (
	"context"
	"fmt"

	"dev.veil.experiment/internal/models"
)

// Capabilities describes what a participant's backing model supports.
// Resolved once at participant construction and carried immutably; there is
// no process-wide capability cache.
type Capabilities struct {
	Reasoning   bool     `json:"reasoning"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// CapabilityResolver resolves the capabilities of a model identifier.
type CapabilityResolver interface {
	Resolve(ctx context.Context, model string) (Capabilities, error)
}

// Participant is the immutable identity and configuration of one
// experiment participant.
type Participant struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Model           string       `json:"model"`
	Capabilities    Capabilities `json:"capabilities"`
	MemoryCharLimit int          `json:"memory_char_limit"`
}

// ReplyGenerator produces a single free-text reply from a participant.
// Implementations perform the network call; failures surface as *CommError.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, participantID, prompt string) (string, error)
}

// ChoiceParser extracts structured choices and rankings from free text.
// Best effort: a text that cannot be shaped into a valid result yields a
// *ValidationError, never a fabricated invalid combination.
type ChoiceParser interface {
	ParseChoice(ctx context.Context, text string) (models.PrincipleChoice, error)
	ParseRanking(ctx context.Context, text string) (models.PrincipleRanking, error)
}

// VoteDetector inspects a single discussion statement for an intent to put
// the group decision to a vote. A nil proposal means no intent detected.
type VoteDetector interface {
	DetectVoteProposal(ctx context.Context, participantID, statement string) (*models.VoteProposal, error)
}

// MemoryUpdater asks a participant to rewrite its private memory given a
// prompt describing the most recent events. Returns the new memory text.
type MemoryUpdater interface {
	UpdateMemory(ctx context.Context, participantID, prompt string) (string, error)
}

// Runner bundles the four collaborator capabilities one participant backend
// provides.
type Runner interface {
	ReplyGenerator
	ChoiceParser
	VoteDetector
	MemoryUpdater
}

// StaticResolver resolves capabilities from a fixed table. Useful when the
// deployment config already knows what each model supports.
type StaticResolver struct {
	Table map[string]Capabilities
}

// Resolve looks up the model in the table.
func (r StaticResolver) Resolve(_ context.Context, model string) (Capabilities, error) {
	caps, ok := r.Table[model]
	if !ok {
		return Capabilities{}, fmt.Errorf("capability resolver: unknown model %q", model)
	}
	return caps, nil
}
