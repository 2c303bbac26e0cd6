package discussion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

func fastRetry() agent.RetryConfig {
	return agent.RetryConfig{MaxRetries: 1, Multiplier: 1}
}

func testConfig(maxRounds int) Config {
	return Config{
		MaxRounds:       maxRounds,
		MultiplierRange: distribution.MultiplierRange{Min: 1.0, Max: 1.0},
		Retry:           fastRetry(),
	}
}

func testContexts(n int) []*participant.Context {
	contexts := make([]*participant.Context, 0, n)
	for i := 0; i < n; i++ {
		p := agent.Participant{
			ID:              fmt.Sprintf("p-%d", i+1),
			Name:            fmt.Sprintf("participant-%d", i+1),
			MemoryCharLimit: 2000,
		}
		contexts = append(contexts, participant.ForPhaseTwo(p, "carried phase 1 memory", 5.0))
	}
	return contexts
}

// consensusRunner scripts a group that proposes a vote immediately, agrees
// unanimously, and votes identically.
func consensusRunner() *agent.ScriptedRunner {
	return &agent.ScriptedRunner{
		ReplyFn: func(_, prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Do you agree to hold a binding vote"):
				return "Yes, I am ready to vote.", nil
			case strings.Contains(prompt, "Cast your binding"):
				return "I vote for maximizing the floor income.", nil
			case strings.Contains(prompt, "Rank all four"):
				return "floor first, then average, then the two constraints", nil
			default:
				return "I think we all lean the same way; I propose we vote now.", nil
			}
		},
		ChoiceFn: func(string) (models.PrincipleChoice, error) {
			return models.PrincipleChoice{Principle: models.MaximizingFloor, Certainty: models.Sure}, nil
		},
	}
}

func newTestEngine(t *testing.T, cfg Config, runner agent.Runner, contexts []*participant.Context, seed int64) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, runner,
		distribution.NewEngine(rand.New(rand.NewSource(seed))),
		contexts, rand.New(rand.NewSource(seed)), nil)
	require.NoError(t, err)
	return engine
}

func TestEngine_ConsensusFirstRound(t *testing.T) {
	contexts := testContexts(3)
	engine := newTestEngine(t, testConfig(5), consensusRunner(), contexts, 21)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 1, result.FinalRound)
	require.NotNil(t, result.AgreedPrinciple)
	assert.Equal(t, models.MaximizingFloor, result.AgreedPrinciple.Principle)
	require.Len(t, result.VoteHistory, 1)
	assert.True(t, result.VoteHistory[0].ConsensusReached)

	// One shared chosen distribution for every participant.
	require.Len(t, result.Outcomes, 3)
	for _, outcome := range result.Outcomes[1:] {
		assert.Equal(t, result.Outcomes[0].Distribution, outcome.Distribution)
	}
	for i, outcome := range result.Outcomes {
		assert.Equal(t, 5.0+outcome.Earnings, outcome.FinalBalance)
		assert.Equal(t, contexts[i].Balance, outcome.FinalBalance)
		assert.NoError(t, outcome.FinalRanking.Validate())
	}

	// Only the first speaker got to talk before the vote.
	assert.Len(t, result.Statements, 1)
	assert.Contains(t, result.PublicHistory, "reached consensus")
}

func TestEngine_NoConsensusTerminatesAtMaxRounds(t *testing.T) {
	// Ballots always split between two principles, so no tier can match.
	var ballots atomic.Int64
	runner := consensusRunner()
	runner.ChoiceFn = func(string) (models.PrincipleChoice, error) {
		if ballots.Add(1)%2 == 0 {
			return models.PrincipleChoice{Principle: models.MaximizingAverage, Certainty: models.Sure}, nil
		}
		return models.PrincipleChoice{Principle: models.MaximizingFloor, Certainty: models.Sure}, nil
	}

	contexts := testContexts(2)
	engine := newTestEngine(t, testConfig(3), runner, contexts, 7)

	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Nil(t, result.AgreedPrinciple)
	assert.Equal(t, 3, result.FinalRound)
	assert.Len(t, result.Statements, 6, "two speakers per round over three rounds")
	for _, vote := range result.VoteHistory {
		assert.False(t, vote.ConsensusReached)
	}

	// Without consensus each participant draws their own distribution.
	require.Len(t, result.Outcomes, 2)
	for _, outcome := range result.Outcomes {
		assert.Greater(t, outcome.Earnings, 0.0)
		assert.NoError(t, outcome.FinalRanking.Validate())
	}
}

func TestEngine_GateDeclineContinuesDiscussion(t *testing.T) {
	runner := consensusRunner()
	runner.ReplyFn = func(id, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Do you agree to hold a binding vote"):
			if id == "p-2" {
				return "No, I want to keep discussing.", nil
			}
			return "Yes.", nil
		case strings.Contains(prompt, "Rank all four"):
			return "floor first", nil
		default:
			return "I propose we vote now.", nil
		}
	}

	engine := newTestEngine(t, testConfig(2), runner, testContexts(2), 13)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Empty(t, result.VoteHistory, "a declined gate must not produce a ballot")
	assert.Equal(t, 2, result.FinalRound)
}

func TestEngine_RefusalWithAffirmativeWordsBlocksBallot(t *testing.T) {
	// A refusal phrased around affirmative vocabulary ("disagree" contains
	// "agree") must still read as a no.
	runner := consensusRunner()
	runner.ReplyFn = func(id, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Do you agree to hold a binding vote"):
			if id == "p-2" {
				return "No, I disagree. Keep discussing.", nil
			}
			return "Yes, I am ready to vote.", nil
		case strings.Contains(prompt, "Rank all four"):
			return "floor first", nil
		default:
			return "I propose we vote now.", nil
		}
	}

	engine := newTestEngine(t, testConfig(2), runner, testContexts(2), 29)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Empty(t, result.VoteHistory, "a refused gate must not produce a ballot")
}

func TestContainsAffirmative(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"Yes.", true},
		{"Yes, I am ready to vote.", true},
		{"I agree, let's vote.", true},
		{"No.", false},
		{"No, I disagree.", false},
		{"I do not want to vote yet.", false},
		{"I disagree, we need more rounds.", false},
		{"I don't think we are ready.", false},
		{"Not yet.", false},
		{"Maybe later.", false},
		{"Now is a good time; yes.", true},
		{"I have noted my concerns, but yes.", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, containsAffirmative(tc.answer), "answer: %q", tc.answer)
	}
}

func TestEngine_ConstraintReprompt(t *testing.T) {
	// The first ballot reply per participant lacks the required amount;
	// the re-prompted reply carries it.
	runner := consensusRunner()
	base := runner.ReplyFn
	runner.ReplyFn = func(id, prompt string) (string, error) {
		if strings.Contains(prompt, "could not be accepted") {
			return "ballot-complete", nil
		}
		if strings.Contains(prompt, "Cast your binding") {
			return "ballot-initial", nil
		}
		return base(id, prompt)
	}
	runner.ChoiceFn = func(text string) (models.PrincipleChoice, error) {
		if text == "ballot-initial" {
			return models.PrincipleChoice{
				Principle: models.MaximizingAverageFloorConstraint,
				Certainty: models.Sure,
			}, nil
		}
		return models.PrincipleChoice{
			Principle:        models.MaximizingAverageFloorConstraint,
			ConstraintAmount: intPtr(15000),
			Certainty:        models.Sure,
		}, nil
	}

	engine := newTestEngine(t, testConfig(5), runner, testContexts(2), 3)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	require.NotNil(t, result.AgreedPrinciple)
	assert.Equal(t, 15000, *result.AgreedPrinciple.ConstraintAmount)
}

func TestEngine_CommunicationFailureIsFatal(t *testing.T) {
	runner := consensusRunner()
	runner.ReplyFn = func(string, string) (string, error) {
		return "", agent.NewCommError("p-1", errors.New("connection reset"))
	}

	engine := newTestEngine(t, testConfig(2), runner, testContexts(2), 1)
	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, agent.IsCommError(err))
}

func TestEngine_MemoryCarriedIntoPrompts(t *testing.T) {
	var sawMemory atomic.Bool
	runner := consensusRunner()
	base := runner.ReplyFn
	runner.ReplyFn = func(id, prompt string) (string, error) {
		if strings.Contains(prompt, "carried phase 1 memory") {
			sawMemory.Store(true)
		}
		return base(id, prompt)
	}

	engine := newTestEngine(t, testConfig(2), runner, testContexts(2), 17)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sawMemory.Load(), "phase 1 memory must reach the discussion prompts")
}

func TestNewEngine_Validation(t *testing.T) {
	runner := consensusRunner()
	dist := distribution.NewEngine(rand.New(rand.NewSource(1)))

	_, err := NewEngine(testConfig(0), runner, dist, testContexts(2), nil, nil)
	assert.Error(t, err, "zero rounds")

	_, err = NewEngine(testConfig(3), runner, dist, testContexts(1), nil, nil)
	assert.ErrorIs(t, err, ErrTooFewParticipants)

	_, err = NewEngine(testConfig(3), nil, dist, testContexts(2), nil, nil)
	assert.Error(t, err, "missing runner")
}
