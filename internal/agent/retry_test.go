package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := WithRetry(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewCommError("p-1", errors.New("timeout"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), fastConfig(2), func() (string, error) {
		attempts++
		return "", NewCommError("p-1", errors.New("down"))
	})
	require.Error(t, err)
	assert.True(t, IsCommError(err))
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestWithRetry_ValidationErrorNotRetried(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), fastConfig(5), func() (string, error) {
		attempts++
		return "", NewValidationError("missing constraint amount")
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithRetry(ctx, fastConfig(3), func() (string, error) {
		return "", NewCommError("p-1", errors.New("down"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommError_Unwrap(t *testing.T) {
	cause := errors.New("refused")
	err := NewCommError("p-1", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "p-1")
}

func TestScriptedRunner_Defaults(t *testing.T) {
	runner := &ScriptedRunner{}
	ctx := context.Background()

	reply, err := runner.GenerateReply(ctx, "p-1", "say something")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	choice, err := runner.ParseChoice(ctx, reply)
	require.NoError(t, err)
	assert.NoError(t, choice.Validate())

	ranking, err := runner.ParseRanking(ctx, reply)
	require.NoError(t, err)
	assert.NoError(t, ranking.Validate())

	proposal, err := runner.DetectVoteProposal(ctx, "p-1", "shall we vote on this?")
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, "p-1", proposal.ProposedBy)

	proposal, err = runner.DetectVoteProposal(ctx, "p-1", "I still have doubts.")
	require.NoError(t, err)
	assert.Nil(t, proposal)

	assert.Equal(t, 1, runner.Calls("GenerateReply"))
	assert.Equal(t, 2, runner.Calls("DetectVoteProposal"))
}

func TestStaticResolver(t *testing.T) {
	temp := 0.7
	resolver := StaticResolver{Table: map[string]Capabilities{
		"gpt-4o": {Reasoning: true, Temperature: &temp},
	}}

	caps, err := resolver.Resolve(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.True(t, caps.Reasoning)

	_, err = resolver.Resolve(context.Background(), "unknown-model")
	assert.Error(t, err)
}

func TestDefaultRanking_IsValid(t *testing.T) {
	assert.NoError(t, DefaultRanking().Validate())
}
