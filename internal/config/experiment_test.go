package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.veil.experiment/internal/models"
)

const minimalYAML = `
participants:
  - name: alice
    model: gpt-4o
  - name: bob
    model: claude-sonnet
`

func TestLoadFromString_Defaults(t *testing.T) {
	cfg, err := NewLoader("").LoadFromString(minimalYAML)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Phase2Rounds)
	assert.Equal(t, RangeConfig{Min: 0.8, Max: 1.2}, cfg.DistributionRangePhase1)
	assert.Equal(t, RangeConfig{Min: 0.8, Max: 1.2}, cfg.DistributionRangePhase2)
	assert.Equal(t, "results", cfg.ResultsDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	for _, p := range cfg.Participants {
		assert.Equal(t, 2000, p.MemoryCharLimit)
	}
}

func TestLoadFromString_FullConfig(t *testing.T) {
	tempYAML := `
participants:
  - name: alice
    model: gpt-4o
    reasoning: true
    temperature: 0.4
    memory_char_limit: 1500
  - name: bob
    model: claude-sonnet
  - name: carol
    model: llama-70b
phase2_rounds: 8
distribution_range_phase1:
  min: 0.5
  max: 1.5
distribution_range_phase2:
  min: 0.9
  max: 1.1
class_probabilities:
  high: 0.1
  medium_high: 0.2
  medium: 0.4
  medium_low: 0.2
  low: 0.1
retry:
  max_retries: 5
  initial_delay: 500ms
  max_delay: 10s
  multiplier: 1.5
  jitter_factor: 0.2
results_dir: out
log_level: debug
seed: 42
`
	cfg, err := NewLoader("").LoadFromString(tempYAML)
	require.NoError(t, err)

	require.Len(t, cfg.Participants, 3)
	assert.True(t, cfg.Participants[0].Reasoning)
	require.NotNil(t, cfg.Participants[0].Temperature)
	assert.InDelta(t, 0.4, *cfg.Participants[0].Temperature, 1e-9)
	assert.Equal(t, 1500, cfg.Participants[0].MemoryCharLimit)
	assert.Equal(t, 8, cfg.Phase2Rounds)
	assert.Equal(t, int64(42), cfg.Seed)

	retry := cfg.RetrySettings()
	assert.Equal(t, 5, retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, retry.InitialDelay)

	probs, err := cfg.ClassProbabilityTable()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, probs[models.ClassMedium], 1e-9)

	r1 := cfg.MultiplierRangePhase1()
	assert.InDelta(t, 0.5, r1.Min, 1e-9)
	assert.InDelta(t, 1.5, r1.Max, 1e-9)
}

func TestLoad_FromFileSetsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := NewLoader("").Load()
	assert.Error(t, err)

	_, err = NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("EXPERIMENT_DB_URL", "postgres://localhost/experiments")
	cfg, err := NewLoader("").LoadFromString(minimalYAML + `
database_url: ${EXPERIMENT_DB_URL}
`)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/experiments", cfg.DatabaseURL)
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "too few participants",
			yaml: `
participants:
  - name: alice
    model: gpt-4o
`,
			want: "at least two participants",
		},
		{
			name: "duplicate names",
			yaml: `
participants:
  - name: alice
    model: gpt-4o
  - name: alice
    model: claude-sonnet
`,
			want: "duplicate participant name",
		},
		{
			name: "empty name",
			yaml: `
participants:
  - name: ""
    model: gpt-4o
  - name: bob
    model: claude-sonnet
`,
			want: "must not be empty",
		},
		{
			name: "negative rounds",
			yaml: minimalYAML + `
phase2_rounds: -1
`,
			want: "phase2_rounds",
		},
		{
			name: "inverted range",
			yaml: minimalYAML + `
distribution_range_phase1:
  min: 1.5
  max: 0.5
`,
			want: "distribution_range_phase1",
		},
		{
			name: "unknown income class",
			yaml: minimalYAML + `
class_probabilities:
  aristocracy: 1.0
`,
			want: "unknown income class",
		},
		{
			name: "probabilities do not sum to one",
			yaml: minimalYAML + `
class_probabilities:
  high: 0.3
  medium_high: 0.2
  medium: 0.2
  medium_low: 0.1
  low: 0.1
`,
			want: "sum",
		},
		{
			name: "unknown log level",
			yaml: minimalYAML + `
log_level: verbose
`,
			want: "log_level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader("").LoadFromString(tc.yaml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
