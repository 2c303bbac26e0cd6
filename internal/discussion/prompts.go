package discussion

import (
	"fmt"
	"strings"

	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

// Prompt scaffolding for the discussion protocol. The wording here is thin
// glue; the substantive agent-facing prompt engineering lives with the
// external agent implementation.

func transcriptSection(s *State) string {
	history := s.PublicHistory()
	if history == "" {
		return "The discussion has not started yet; you speak first."
	}
	return "Discussion so far:\n" + history
}

func memorySection(p *participant.Context) string {
	if p.Memory == "" {
		return ""
	}
	return "Your private notes:\n" + p.Memory + "\n\n"
}

func reasoningPrompt(p *participant.Context, s *State) string {
	return fmt.Sprintf(
		"%sYou are %s in round %d of a group discussion about which justice principle the group should adopt. %s\n\nThink through your position privately. This reasoning will not be shared.",
		memorySection(p), p.Participant.Name, s.Round, transcriptSection(s),
	)
}

func statementPrompt(p *participant.Context, s *State, reasoning string) string {
	var b strings.Builder
	b.WriteString(memorySection(p))
	fmt.Fprintf(&b, "You are %s in round %d of a group discussion about which justice principle the group should adopt. %s\n\n", p.Participant.Name, s.Round, transcriptSection(s))
	if reasoning != "" {
		fmt.Fprintf(&b, "Your private reasoning:\n%s\n\n", reasoning)
	}
	b.WriteString("Make your statement to the group. If you believe the group is ready to decide, you may propose holding a vote.")
	return b.String()
}

func turnMemoryPrompt(prompt, statement string) string {
	return fmt.Sprintf(
		"Update your private notes given what just happened.\n\nYou were asked:\n%s\n\nYou said:\n%s",
		prompt, statement,
	)
}

func agreementPrompt(proposal models.VoteProposal, s *State) string {
	return fmt.Sprintf(
		"%s\n\n%s has proposed that the group vote now:\n%q\n\nDo you agree to hold a binding vote now? Answer yes or no.",
		transcriptSection(s), proposal.ProposedBy, proposal.ProposalText,
	)
}

func ballotPrompt(p *participant.Context, s *State) string {
	return fmt.Sprintf(
		"%s%s\n\nThe group agreed to vote. Cast your binding, secret vote for one justice principle. If you choose a constraint principle, state the constraint amount as a positive integer. State how certain you are.",
		memorySection(p), transcriptSection(s),
	)
}

func ballotRetryPrompt(p *participant.Context, s *State, cause error) string {
	return fmt.Sprintf(
		"%s\n\nYour previous vote could not be accepted: %v. Cast your vote again, naming exactly one principle and, if it is a constraint principle, a positive integer constraint amount.",
		ballotPrompt(p, s), cause,
	)
}

func voteOutcomeText(result models.VoteResult) string {
	if result.ConsensusReached {
		return fmt.Sprintf(
			"Update your private notes: the group voted and reached consensus on %s.",
			result.AgreedPrinciple,
		)
	}
	return "Update your private notes: the group voted but did not reach consensus, so the discussion continues."
}

func outcomeMemoryPrompt(outcome models.ParticipantOutcome, agreed *models.PrincipleChoice) string {
	if agreed != nil {
		return fmt.Sprintf(
			"Update your private notes: the group's agreed principle %s selected the distribution %s. You were assigned the %s income class and earned $%.2f, bringing your balance to $%.2f.",
			agreed, outcome.Distribution, outcome.AssignedIncomeClass, outcome.Earnings, outcome.FinalBalance,
		)
	}
	return fmt.Sprintf(
		"Update your private notes: the group reached no consensus, so a distribution was drawn for you at random: %s. You were assigned the %s income class and earned $%.2f, bringing your balance to $%.2f.",
		outcome.Distribution, outcome.AssignedIncomeClass, outcome.Earnings, outcome.FinalBalance,
	)
}

func finalRankingPrompt(p *participant.Context) string {
	return fmt.Sprintf(
		"%sThe experiment is over. Rank all four justice principles from 1 (most preferred) to 4 (least preferred) and state how certain you are about the ranking as a whole.",
		memorySection(p),
	)
}

func rankingRetryPrompt(p *participant.Context, cause error) string {
	return fmt.Sprintf(
		"%s\n\nYour previous ranking could not be accepted: %v. Rank all four principles, using each rank 1 through 4 exactly once.",
		finalRankingPrompt(p), cause,
	)
}
