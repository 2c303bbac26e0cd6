package models

// VoteProposal records that a participant's statement was recognized as a
// call to put the group's choice to a vote. Ephemeral: it exists only to
// trigger the agreement gate.
type VoteProposal struct {
	ProposedBy   string `json:"proposed_by"`
	ProposalText string `json:"proposal_text"`
}

// Statement is one public contribution to the group discussion.
type Statement struct {
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Round       int    `json:"round"`
}

// VoteResult is the outcome of one secret ballot. Votes are ordered by
// participant order, not completion order.
type VoteResult struct {
	Votes            []PrincipleChoice `json:"votes"`
	ConsensusReached bool              `json:"consensus_reached"`
	AgreedPrinciple  *PrincipleChoice  `json:"agreed_principle,omitempty"`
	VoteCounts       map[string]int    `json:"vote_counts"`
}

// NewVoteResult tallies the given ballots into a VoteResult shell with
// consensus fields unset. Counting is keyed by principle+constraint.
func NewVoteResult(votes []PrincipleChoice) VoteResult {
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v.VoteKey()]++
	}
	return VoteResult{
		Votes:      votes,
		VoteCounts: counts,
	}
}
