// Package discussion implements the Phase 2 group-discussion state machine:
// multi-round sequential turn-taking with speaking-order fairness, vote
// proposal detection, a unanimous agreement gate, secret ballots, two-tier
// consensus matching, and bounded-round termination with fallback payoffs.
package discussion

import (
	"fmt"
	"strings"

	"dev.veil.experiment/internal/models"
)

// Status is the state of a discussion session.
type Status string

const (
	// StatusDiscussing means rounds are still in progress.
	StatusDiscussing Status = "discussing"
	// StatusConsensus means a ballot produced unanimous agreement.
	StatusConsensus Status = "done_consensus"
	// StatusNoConsensus means the round budget ran out without agreement.
	StatusNoConsensus Status = "done_no_consensus"
)

// State holds the mutable discussion record: round counter, ordered
// statements, past ballots, and the growing public transcript every
// participant sees. Owned by one Engine for the session; turns are strictly
// sequential so no locking is needed.
type State struct {
	Round       int
	Status      Status
	FinalRound  int
	Statements  []models.Statement
	VoteHistory []models.VoteResult

	publicHistory strings.Builder
	// firstSpeaker is the index of the participant who opened each round,
	// used to enforce the rotation constraint. -1 before round 1.
	firstSpeaker int
}

// NewState initializes a discussion at round 1.
func NewState() *State {
	return &State{
		Round:        1,
		Status:       StatusDiscussing,
		firstSpeaker: -1,
	}
}

// AppendStatement records a public statement and extends the transcript so
// later speakers in the same round see it.
func (s *State) AppendStatement(participant, text string) {
	s.Statements = append(s.Statements, models.Statement{
		Participant: participant,
		Text:        text,
		Round:       s.Round,
	})
	fmt.Fprintf(&s.publicHistory, "[Round %d] %s: %s\n", s.Round, participant, text)
}

// AppendEvent records a non-statement event (such as a ballot outcome) in
// the public transcript.
func (s *State) AppendEvent(text string) {
	fmt.Fprintf(&s.publicHistory, "[Round %d] %s\n", s.Round, text)
}

// PublicHistory returns the full transcript so far.
func (s *State) PublicHistory() string {
	return s.publicHistory.String()
}
