package phase1

import (
	"fmt"
	"strings"

	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

// principleExplanations is the study text presented between the first and
// second rankings.
const principleExplanations = `The four justice principles:

1. maximizing_floor: choose the distribution whose worst-off income class earns the most.
2. maximizing_average: choose the distribution with the highest average income.
3. maximizing_average_floor_constraint: among distributions whose lowest income meets a minimum you set, choose the one with the highest average.
4. maximizing_average_range_constraint: among distributions whose gap between highest and lowest income stays within a limit you set, choose the one with the highest average.`

func memorySection(pc *participant.Context) string {
	if pc.Memory == "" {
		return ""
	}
	return "Your private notes:\n" + pc.Memory + "\n\n"
}

func initialRankingPrompt(pc *participant.Context) string {
	return fmt.Sprintf(
		"You are %s, a participant in an experiment about distributive justice. You will later be assigned an income class at random, without knowing in advance which one.\n\n%s\n\nRank the four principles from 1 (most preferred) to 4 (least preferred) and state how certain you are about the ranking as a whole.",
		pc.Participant.Name, principleExplanations,
	)
}

func explanationMemoryPrompt(initial models.PrincipleRanking) string {
	return fmt.Sprintf(
		"Update your private notes. You studied the principles in detail:\n\n%s\n\nYour initial ranking was: %s.",
		principleExplanations, initial,
	)
}

func postExplanationRankingPrompt(pc *participant.Context) string {
	return fmt.Sprintf(
		"%sHaving studied the principles in detail, rank them again from 1 (most preferred) to 4 (least preferred) and state how certain you are.",
		memorySection(pc),
	)
}

func choicePrompt(pc *participant.Context, set models.DistributionSet) string {
	var b strings.Builder
	b.WriteString(memorySection(pc))
	fmt.Fprintf(&b, "Round %d. Four income distributions are on offer:\n\n%s\n", pc.RoundNumber, distribution.FormatDistributionTable(set))
	b.WriteString("\nChoose the justice principle to apply. You will then be assigned an income class at random and paid accordingly. If you choose a constraint principle, state the constraint amount as a positive integer. State how certain you are.")
	return b.String()
}

func choiceRetryPrompt(pc *participant.Context, set models.DistributionSet, cause error) string {
	return fmt.Sprintf(
		"%s\n\nYour previous answer could not be accepted: %v. Choose exactly one principle and, if it is a constraint principle, a positive integer constraint amount.",
		choicePrompt(pc, set), cause,
	)
}

func roundMemoryPrompt(result models.ApplicationResult, balance float64) string {
	var counterfactuals strings.Builder
	for _, p := range models.AllPrinciples() {
		fmt.Fprintf(&counterfactuals, "  %s: $%.2f\n", p, result.SameClassEarnings[p])
	}
	return fmt.Sprintf(
		"Update your private notes. In round %d you chose %s. %s You were assigned the %s income class and earned $%.2f, bringing your balance to $%.2f.\n\nHad the same class assignment been combined with each principle, you would have earned:\n%s",
		result.RoundNumber, result.PrincipleChoice, result.Explanation,
		result.AssignedIncomeClass, result.Earnings, balance, counterfactuals.String(),
	)
}

func finalRankingPrompt(pc *participant.Context) string {
	return fmt.Sprintf(
		"%sYou have now applied the principles over several paid rounds. Rank them one last time from 1 (most preferred) to 4 (least preferred) and state how certain you are.",
		memorySection(pc),
	)
}

func rankingRetryPrompt(pc *participant.Context, cause error) string {
	return fmt.Sprintf(
		"Your previous ranking could not be accepted: %v. Rank all four principles, using each rank 1 through 4 exactly once.\n\n%s",
		cause, memorySection(pc),
	)
}
