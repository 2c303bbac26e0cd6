package models

import "time"

// ApplicationResult captures one Phase 1 demonstration round for a single
// participant: the choice they made, the distribution it selected, and the
// earnings outcome with counterfactuals.
type ApplicationResult struct {
	RoundNumber         int                          `json:"round_number"`
	PrincipleChoice     PrincipleChoice              `json:"principle_choice"`
	DistributionSet     DistributionSet              `json:"distribution_set"`
	ChosenDistribution  IncomeDistribution           `json:"chosen_distribution"`
	Explanation         string                       `json:"explanation"`
	AssignedIncomeClass IncomeClass                  `json:"assigned_income_class"`
	Earnings            float64                      `json:"earnings"`
	AlternativeEarnings map[JusticePrinciple]float64 `json:"alternative_earnings"`
	SameClassEarnings   map[JusticePrinciple]float64 `json:"alternative_earnings_same_class"`
}

// Phase1Results is the immutable per-participant outcome of Phase 1.
// FinalMemoryState is the sole channel of continuity into Phase 2 and must
// be carried verbatim into the participant's Phase 2 context.
type Phase1Results struct {
	Participant            string              `json:"participant"`
	InitialRanking         PrincipleRanking    `json:"initial_ranking"`
	PostExplanationRanking PrincipleRanking    `json:"post_explanation_ranking"`
	ApplicationResults     []ApplicationResult `json:"application_results"`
	FinalRanking           PrincipleRanking    `json:"final_ranking"`
	FinalBalance           float64             `json:"final_balance"`
	FinalMemoryState       string              `json:"final_memory_state"`
}

// ParticipantOutcome is one participant's Phase 2 payoff record.
type ParticipantOutcome struct {
	Participant         string             `json:"participant"`
	Distribution        IncomeDistribution `json:"distribution"`
	AssignedIncomeClass IncomeClass        `json:"assigned_income_class"`
	Earnings            float64            `json:"earnings"`
	FinalBalance        float64            `json:"final_balance"`
	FinalRanking        PrincipleRanking   `json:"final_ranking"`
}

// Phase2Results is the immutable outcome of the group discussion phase.
type Phase2Results struct {
	ConsensusReached bool                 `json:"consensus_reached"`
	AgreedPrinciple  *PrincipleChoice     `json:"agreed_principle,omitempty"`
	FinalRound       int                  `json:"final_round"`
	Statements       []Statement          `json:"statements"`
	PublicHistory    string               `json:"public_history"`
	VoteHistory      []VoteResult         `json:"vote_history"`
	DistributionSet  DistributionSet      `json:"distribution_set"`
	Outcomes         []ParticipantOutcome `json:"outcomes"`
}

// GeneralInformation is the top-level summary block persisted with every
// experiment: the consensus outcome, full transcript, and the final vote map.
type GeneralInformation struct {
	ConsensusReached   bool                       `json:"consensus_reached"`
	ConsensusPrinciple *PrincipleChoice           `json:"consensus_principle,omitempty"`
	PublicHistory      string                     `json:"public_history"`
	FinalVotes         map[string]PrincipleChoice `json:"final_votes"`
	ConfigFile         string                     `json:"config_file"`
}

// ExperimentResults is the complete record of one experiment run, produced
// only after both phases finish. Keyed storage and the results API consume
// it as-is.
type ExperimentResults struct {
	ID                 string                   `json:"id"`
	StartedAt          time.Time                `json:"started_at"`
	FinishedAt         time.Time                `json:"finished_at"`
	Phase1             map[string]Phase1Results `json:"phase1"`
	Phase2             Phase2Results            `json:"phase2"`
	GeneralInformation GeneralInformation       `json:"general_information"`
}
