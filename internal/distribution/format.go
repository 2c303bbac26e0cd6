package distribution

import (
	"fmt"
	"strings"

	"dev.veil.experiment/internal/models"
)

// FormatDistributionTable renders a distribution set as a fixed-width text
// table suitable for inclusion in agent-facing prompts.
func FormatDistributionTable(set models.DistributionSet) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-16s", "income class"))
	labels := set.Labels()
	for _, label := range labels {
		b.WriteString(fmt.Sprintf("%16s", label))
	}
	b.WriteString("\n")

	rows := []struct {
		name  string
		class models.IncomeClass
	}{
		{"high", models.ClassHigh},
		{"medium high", models.ClassMediumHigh},
		{"medium", models.ClassMedium},
		{"medium low", models.ClassMediumLow},
		{"low", models.ClassLow},
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%-16s", row.name))
		for _, d := range set.Distributions {
			b.WriteString(fmt.Sprintf("%16d", d.ValueForClass(row.class)))
		}
		b.WriteString("\n")
	}
	return b.String()
}
