// Package config loads and validates the experiment configuration from
// YAML, with ${ENV} substitution and defaults applied before validation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
)

// ParticipantConfig describes one experiment participant.
type ParticipantConfig struct {
	Name            string   `yaml:"name"`
	Model           string   `yaml:"model"`
	Reasoning       bool     `yaml:"reasoning"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MemoryCharLimit int      `yaml:"memory_char_limit"`
}

// RangeConfig is a multiplier range in the YAML schema.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// RetryConfig mirrors agent.RetryConfig in the YAML schema.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

// Config is the complete on-disk experiment configuration.
type Config struct {
	Participants            []ParticipantConfig `yaml:"participants"`
	Phase2Rounds            int                 `yaml:"phase2_rounds"`
	DistributionRangePhase1 RangeConfig         `yaml:"distribution_range_phase1"`
	DistributionRangePhase2 RangeConfig         `yaml:"distribution_range_phase2"`
	ClassProbabilities      map[string]float64  `yaml:"class_probabilities,omitempty"`
	Retry                   RetryConfig         `yaml:"retry"`
	ResultsDir              string              `yaml:"results_dir"`
	DatabaseURL             string              `yaml:"database_url,omitempty"`
	LogLevel                string              `yaml:"log_level"`
	Seed                    int64               `yaml:"seed,omitempty"`

	// ConfigFile records where the config was loaded from; set by the
	// loader, not the file.
	ConfigFile string `yaml:"-"`
}

// Loader reads experiment configurations from disk.
type Loader struct {
	configPath string
}

// NewLoader creates a loader for the given path.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads, substitutes, defaults, and validates the configuration.
// Any validation failure is fatal before the run starts.
func (l *Loader) Load() (*Config, error) {
	if l.configPath == "" {
		return nil, fmt.Errorf("configuration path is required")
	}
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = l.configPath
	return cfg, nil
}

// LoadFromString parses configuration from a YAML string.
func (l *Loader) LoadFromString(yamlContent string) (*Config, error) {
	return l.parse([]byte(yamlContent))
}

func (l *Loader) parse(data []byte) (*Config, error) {
	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} placeholders with environment
// variable values. Unset variables substitute to the empty string.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Phase2Rounds == 0 {
		cfg.Phase2Rounds = 5
	}
	if cfg.DistributionRangePhase1 == (RangeConfig{}) {
		cfg.DistributionRangePhase1 = RangeConfig{Min: 0.8, Max: 1.2}
	}
	if cfg.DistributionRangePhase2 == (RangeConfig{}) {
		cfg.DistributionRangePhase2 = RangeConfig{Min: 0.8, Max: 1.2}
	}
	if cfg.Retry == (RetryConfig{}) {
		defaults := agent.DefaultRetryConfig()
		cfg.Retry = RetryConfig{
			MaxRetries:   defaults.MaxRetries,
			InitialDelay: defaults.InitialDelay,
			MaxDelay:     defaults.MaxDelay,
			Multiplier:   defaults.Multiplier,
			JitterFactor: defaults.JitterFactor,
		}
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	for i := range cfg.Participants {
		if cfg.Participants[i].MemoryCharLimit == 0 {
			cfg.Participants[i].MemoryCharLimit = 2000
		}
	}
}

// Validate applies the configuration error taxonomy: any violation here
// aborts the run before it starts.
func (cfg *Config) Validate() error {
	if len(cfg.Participants) < 2 {
		return fmt.Errorf("at least two participants are required, got %d", len(cfg.Participants))
	}
	seen := make(map[string]bool, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if p.Name == "" {
			return fmt.Errorf("participant name must not be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate participant name %q", p.Name)
		}
		seen[p.Name] = true
		if p.MemoryCharLimit < 0 {
			return fmt.Errorf("participant %q: memory_char_limit must not be negative", p.Name)
		}
	}
	if cfg.Phase2Rounds <= 0 {
		return fmt.Errorf("phase2_rounds must be positive, got %d", cfg.Phase2Rounds)
	}
	if err := cfg.MultiplierRangePhase1().Validate(); err != nil {
		return fmt.Errorf("distribution_range_phase1: %w", err)
	}
	if err := cfg.MultiplierRangePhase2().Validate(); err != nil {
		return fmt.Errorf("distribution_range_phase2: %w", err)
	}
	if cfg.ClassProbabilities != nil {
		probs, err := cfg.ClassProbabilityTable()
		if err != nil {
			return err
		}
		if err := probs.Validate(); err != nil {
			return err
		}
	}
	if _, err := logLevelOf(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// MultiplierRangePhase1 converts the Phase 1 range into engine terms.
func (cfg *Config) MultiplierRangePhase1() distribution.MultiplierRange {
	return distribution.MultiplierRange{Min: cfg.DistributionRangePhase1.Min, Max: cfg.DistributionRangePhase1.Max}
}

// MultiplierRangePhase2 converts the Phase 2 range into engine terms.
func (cfg *Config) MultiplierRangePhase2() distribution.MultiplierRange {
	return distribution.MultiplierRange{Min: cfg.DistributionRangePhase2.Min, Max: cfg.DistributionRangePhase2.Max}
}

// ClassProbabilityTable converts the configured probability table into
// engine terms, rejecting unknown class names. Returns nil when the table
// is absent (uniform mode).
func (cfg *Config) ClassProbabilityTable() (distribution.ClassProbabilities, error) {
	if cfg.ClassProbabilities == nil {
		return nil, nil
	}
	probs := make(distribution.ClassProbabilities, len(cfg.ClassProbabilities))
	for name, weight := range cfg.ClassProbabilities {
		class := models.IncomeClass(name)
		if !class.Valid() {
			return nil, fmt.Errorf("class_probabilities: unknown income class %q", name)
		}
		probs[class] = weight
	}
	return probs, nil
}

// RetrySettings converts the retry block into agent terms.
func (cfg *Config) RetrySettings() agent.RetryConfig {
	return agent.RetryConfig{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		JitterFactor: cfg.Retry.JitterFactor,
	}
}

func logLevelOf(level string) (string, error) {
	switch level {
	case "debug", "info", "warn", "error":
		return level, nil
	}
	return "", fmt.Errorf("unknown log_level %q", level)
}
