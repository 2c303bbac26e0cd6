package agent

import (
	"context"
	"strings"
	"sync"

	"dev.veil.experiment/internal/models"
)

// ScriptedRunner is a Runner whose behavior is driven by optional function
// hooks. Unset hooks fall back to benign defaults. It backs the dry-run mode
// of the experiment binary and the package tests; it never talks to a model.
type ScriptedRunner struct {
	ReplyFn   func(participantID, prompt string) (string, error)
	ChoiceFn  func(text string) (models.PrincipleChoice, error)
	RankingFn func(text string) (models.PrincipleRanking, error)
	DetectFn  func(participantID, statement string) (*models.VoteProposal, error)
	MemoryFn  func(participantID, prompt string) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ Runner = (*ScriptedRunner)(nil)

func (s *ScriptedRunner) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[method]++
}

// Calls returns how many times the named method ran.
func (s *ScriptedRunner) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *ScriptedRunner) GenerateReply(_ context.Context, participantID, prompt string) (string, error) {
	s.record("GenerateReply")
	if s.ReplyFn != nil {
		return s.ReplyFn(participantID, prompt)
	}
	return "I believe we should protect the worst-off members of society.", nil
}

func (s *ScriptedRunner) ParseChoice(_ context.Context, text string) (models.PrincipleChoice, error) {
	s.record("ParseChoice")
	if s.ChoiceFn != nil {
		return s.ChoiceFn(text)
	}
	return models.PrincipleChoice{Principle: models.MaximizingFloor, Certainty: models.Sure}, nil
}

func (s *ScriptedRunner) ParseRanking(_ context.Context, text string) (models.PrincipleRanking, error) {
	s.record("ParseRanking")
	if s.RankingFn != nil {
		return s.RankingFn(text)
	}
	return DefaultRanking(), nil
}

func (s *ScriptedRunner) DetectVoteProposal(_ context.Context, participantID, statement string) (*models.VoteProposal, error) {
	s.record("DetectVoteProposal")
	if s.DetectFn != nil {
		return s.DetectFn(participantID, statement)
	}
	if strings.Contains(strings.ToLower(statement), "vote") {
		return &models.VoteProposal{ProposedBy: participantID, ProposalText: statement}, nil
	}
	return nil, nil
}

func (s *ScriptedRunner) UpdateMemory(_ context.Context, participantID, prompt string) (string, error) {
	s.record("UpdateMemory")
	if s.MemoryFn != nil {
		return s.MemoryFn(participantID, prompt)
	}
	return "Recalled the latest round and its payoff.", nil
}

// DefaultRanking returns the canonical principle ordering with no opinion.
// Used as the conservative fallback when ranking extraction keeps failing
// on a path where a fallback is explicitly permitted.
func DefaultRanking() models.PrincipleRanking {
	principles := models.AllPrinciples()
	rankings := make([]models.RankedPrinciple, 0, len(principles))
	for i, p := range principles {
		rankings = append(rankings, models.RankedPrinciple{Principle: p, Rank: i + 1})
	}
	return models.PrincipleRanking{Rankings: rankings, Certainty: models.NoOpinion}
}
