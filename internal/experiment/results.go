package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dev.veil.experiment/internal/models"
)

// SaveJSON writes the experiment record to <dir>/<id>.json. The file is
// written to a temporary path and renamed so a crash mid-write never leaves
// a partial result behind.
func SaveJSON(results *models.ExperimentResults, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}

	path := filepath.Join(dir, results.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize results: %w", err)
	}
	return path, nil
}

// Summary renders a human-readable digest of a finished experiment.
func Summary(results *models.ExperimentResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Experiment %s (%s to %s)\n", results.ID,
		results.StartedAt.Format("2006-01-02 15:04:05"),
		results.FinishedAt.Format("2006-01-02 15:04:05"))

	if results.Phase2.ConsensusReached {
		fmt.Fprintf(&b, "Consensus: yes, on %s (round %d)\n",
			results.Phase2.AgreedPrinciple, results.Phase2.FinalRound)
	} else {
		fmt.Fprintf(&b, "Consensus: no (after %d rounds)\n", results.Phase2.FinalRound)
	}

	for _, outcome := range results.Phase2.Outcomes {
		p1 := results.Phase1[outcome.Participant]
		fmt.Fprintf(&b, "  %s: phase 1 balance $%.2f, phase 2 class %s, earnings $%.2f, final balance $%.2f, top-ranked %s\n",
			outcome.Participant, p1.FinalBalance, outcome.AssignedIncomeClass,
			outcome.Earnings, outcome.FinalBalance, outcome.FinalRanking.Top())
	}
	return b.String()
}
