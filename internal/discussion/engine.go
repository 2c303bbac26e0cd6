package discussion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

// maxVoteRetries bounds the re-prompt loop for a ballot whose constraint
// amount is missing or invalid.
const maxVoteRetries = 3

// maxRankingRetries bounds the re-prompt loop for final ranking extraction.
const maxRankingRetries = 3

// ErrTooFewParticipants is returned when a discussion is configured with
// fewer than two participants.
var ErrTooFewParticipants = errors.New("discussion requires at least two participants")

// Config controls one discussion session.
type Config struct {
	// MaxRounds bounds the discussion; the session terminates without
	// consensus once the budget is exhausted.
	MaxRounds int
	// MultiplierRange drives the post-discussion distribution set.
	MultiplierRange distribution.MultiplierRange
	// Retry applies to every participant communication.
	Retry agent.RetryConfig
	// ClassProbabilities switches payoff assignment to the weighted mode
	// when set; nil keeps the uniform base contract.
	ClassProbabilities distribution.ClassProbabilities
}

// Validate checks the round budget and multiplier range.
func (c Config) Validate() error {
	if c.MaxRounds <= 0 {
		return fmt.Errorf("discussion config: max rounds must be positive, got %d", c.MaxRounds)
	}
	if err := c.MultiplierRange.Validate(); err != nil {
		return fmt.Errorf("discussion config: %w", err)
	}
	if c.ClassProbabilities != nil {
		if err := c.ClassProbabilities.Validate(); err != nil {
			return fmt.Errorf("discussion config: %w", err)
		}
	}
	return nil
}

// Engine runs one Phase 2 group discussion to termination. Turns are
// strictly sequential; only the agreement gate, the secret ballot, and the
// final ranking elicitation fan out in parallel.
type Engine struct {
	cfg          Config
	runner       agent.Runner
	dist         *distribution.Engine
	participants []*participant.Context
	rng          *rand.Rand
	log          *logrus.Logger
	state        *State
}

// NewEngine validates the configuration and builds a discussion engine.
// A nil logger defaults to logrus.New().
func NewEngine(cfg Config, runner agent.Runner, dist *distribution.Engine, participants []*participant.Context, rng *rand.Rand, log *logrus.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(participants) < 2 {
		return nil, ErrTooFewParticipants
	}
	if runner == nil {
		return nil, errors.New("discussion: runner is required")
	}
	if dist == nil {
		return nil, errors.New("discussion: distribution engine is required")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		cfg:          cfg,
		runner:       runner,
		dist:         dist,
		participants: participants,
		rng:          rng,
		log:          log,
		state:        NewState(),
	}, nil
}

// State exposes the discussion record, primarily for result assembly.
func (e *Engine) State() *State { return e.state }

// Run drives the discussion until consensus or round exhaustion, then
// applies payoffs and collects final rankings. Communication failures are
// fatal to the run; only constraint re-prompts and memory overflow
// re-prompts recover locally.
func (e *Engine) Run(ctx context.Context) (*models.Phase2Results, error) {
	for round := 1; round <= e.cfg.MaxRounds; round++ {
		e.state.Round = round
		order := speakingOrder(e.rng, len(e.participants), e.state.firstSpeaker)
		e.state.firstSpeaker = order[0]

		e.log.WithFields(logrus.Fields{
			"round":         round,
			"first_speaker": e.participants[order[0]].Participant.Name,
		}).Info("Discussion round started")

		for _, idx := range order {
			p := e.participants[idx]
			statement, err := e.takeTurn(ctx, p)
			if err != nil {
				return nil, err
			}

			proposal, err := e.runner.DetectVoteProposal(ctx, p.Participant.ID, statement)
			if err != nil {
				return nil, fmt.Errorf("detect vote proposal after %s: %w", p.Participant.Name, err)
			}
			if proposal == nil {
				continue
			}

			e.log.WithFields(logrus.Fields{
				"round":       round,
				"proposed_by": p.Participant.Name,
			}).Info("Vote proposed")

			agreed, err := e.agreementGate(ctx, *proposal)
			if err != nil {
				return nil, err
			}
			if !agreed {
				e.log.WithField("round", round).Info("Group declined to vote; discussion continues")
				continue
			}

			voteResult, err := e.holdBallot(ctx)
			if err != nil {
				return nil, err
			}
			e.state.VoteHistory = append(e.state.VoteHistory, voteResult)

			if voteResult.ConsensusReached {
				e.state.AppendEvent(fmt.Sprintf("The group voted and reached consensus on %s.", voteResult.AgreedPrinciple))
				if err := e.broadcastOutcome(ctx, voteResult); err != nil {
					return nil, err
				}
				e.state.Status = StatusConsensus
				e.state.FinalRound = round
				e.log.WithFields(logrus.Fields{
					"round":     round,
					"principle": voteResult.AgreedPrinciple.String(),
				}).Info("Consensus reached")
				return e.applyOutcome(ctx)
			}

			e.state.AppendEvent("The group voted but did not reach consensus; discussion continues.")
			if err := e.broadcastOutcome(ctx, voteResult); err != nil {
				return nil, err
			}
			e.log.WithField("round", round).Info("Ballot held without consensus")
		}
	}

	e.state.Status = StatusNoConsensus
	e.state.FinalRound = e.cfg.MaxRounds
	e.log.WithField("max_rounds", e.cfg.MaxRounds).Info("Round budget exhausted without consensus")
	return e.applyOutcome(ctx)
}

// takeTurn elicits one participant's public statement (optionally preceded
// by private reasoning), appends it to the shared transcript, and updates
// the participant's memory.
func (e *Engine) takeTurn(ctx context.Context, p *participant.Context) (string, error) {
	var reasoning string
	if p.Participant.Capabilities.Reasoning {
		prompt := reasoningPrompt(p, e.state)
		text, err := agent.WithRetry(ctx, e.cfg.Retry, func() (string, error) {
			return e.runner.GenerateReply(ctx, p.Participant.ID, prompt)
		})
		if err != nil {
			return "", fmt.Errorf("internal reasoning for %s: %w", p.Participant.Name, err)
		}
		reasoning = text
	}

	prompt := statementPrompt(p, e.state, reasoning)
	statement, err := agent.WithRetry(ctx, e.cfg.Retry, func() (string, error) {
		return e.runner.GenerateReply(ctx, p.Participant.ID, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("statement from %s: %w", p.Participant.Name, err)
	}

	e.state.AppendStatement(p.Participant.Name, statement)

	memoryPrompt := turnMemoryPrompt(prompt, statement)
	if err := p.UpdateMemory(ctx, e.runner, memoryPrompt); err != nil {
		return "", err
	}
	return statement, nil
}

// agreementGate asks every participant in parallel whether to vote now.
// The vote proceeds only on unanimous affirmation.
func (e *Engine) agreementGate(ctx context.Context, proposal models.VoteProposal) (bool, error) {
	answers := make([]string, len(e.participants))
	err := e.fanOut(ctx, func(ctx context.Context, i int, p *participant.Context) error {
		prompt := agreementPrompt(proposal, e.state)
		answer, err := agent.WithRetry(ctx, e.cfg.Retry, func() (string, error) {
			return e.runner.GenerateReply(ctx, p.Participant.ID, prompt)
		})
		if err != nil {
			return fmt.Errorf("agreement check for %s: %w", p.Participant.Name, err)
		}
		answers[i] = answer
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, answer := range answers {
		if !containsAffirmative(answer) {
			return false, nil
		}
	}
	return true, nil
}

// holdBallot collects one binding vote per participant in parallel. No
// participant sees another's vote. Votes land in participant order.
func (e *Engine) holdBallot(ctx context.Context) (models.VoteResult, error) {
	votes := make([]models.PrincipleChoice, len(e.participants))
	err := e.fanOut(ctx, func(ctx context.Context, i int, p *participant.Context) error {
		vote, err := e.collectVote(ctx, p)
		if err != nil {
			return err
		}
		votes[i] = vote
		return nil
	})
	if err != nil {
		return models.VoteResult{}, err
	}
	return CheckConsensus(votes), nil
}

// collectVote elicits one participant's vote, re-prompting a bounded number
// of times while the extraction is malformed or a constraint amount is
// missing. Nothing is ever substituted for a missing amount: after
// exhaustion the last parsed choice stands as-is and simply cannot match in
// the consensus check.
func (e *Engine) collectVote(ctx context.Context, p *participant.Context) (models.PrincipleChoice, error) {
	prompt := ballotPrompt(p, e.state)

	var lastChoice *models.PrincipleChoice
	var lastErr error
	for attempt := 0; attempt <= maxVoteRetries; attempt++ {
		reply, err := agent.WithRetry(ctx, e.cfg.Retry, func() (string, error) {
			return e.runner.GenerateReply(ctx, p.Participant.ID, prompt)
		})
		if err != nil {
			return models.PrincipleChoice{}, fmt.Errorf("ballot from %s: %w", p.Participant.Name, err)
		}

		choice, err := e.runner.ParseChoice(ctx, reply)
		if err != nil {
			if agent.IsValidationError(err) {
				lastErr = err
				prompt = ballotRetryPrompt(p, e.state, err)
				continue
			}
			return models.PrincipleChoice{}, fmt.Errorf("parse ballot from %s: %w", p.Participant.Name, err)
		}

		lastChoice = &choice
		if choice.Principle.RequiresConstraint() && (choice.ConstraintAmount == nil || *choice.ConstraintAmount <= 0) {
			lastErr = agent.NewValidationError("%s requires a positive constraint amount", choice.Principle)
			prompt = ballotRetryPrompt(p, e.state, lastErr)
			continue
		}
		return choice, nil
	}

	if lastChoice != nil {
		e.log.WithFields(logrus.Fields{
			"participant": p.Participant.Name,
			"principle":   lastChoice.Principle,
		}).Warn("Ballot accepted without a valid constraint amount after retries")
		return *lastChoice, nil
	}
	return models.PrincipleChoice{}, fmt.Errorf("ballot from %s: %w", p.Participant.Name, lastErr)
}

// broadcastOutcome pushes the ballot outcome into every participant's
// memory. Sequential: each update mutates that participant's context.
func (e *Engine) broadcastOutcome(ctx context.Context, result models.VoteResult) error {
	text := voteOutcomeText(result)
	for _, p := range e.participants {
		if err := p.UpdateMemory(ctx, e.runner, text); err != nil {
			return err
		}
	}
	return nil
}

// fanOut runs fn once per participant concurrently and joins all results.
// Per-participant state is only touched by its own goroutine.
func (e *Engine) fanOut(ctx context.Context, fn func(ctx context.Context, i int, p *participant.Context) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(e.participants))
	for i, p := range e.participants {
		wg.Add(1)
		go func(i int, p *participant.Context) {
			defer wg.Done()
			errs[i] = fn(ctx, i, p)
		}(i, p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// containsAffirmative reports whether a free-text yes/no answer carries an
// affirmative signal. Negation markers are checked first so an explicit
// refusal ("No, I disagree", "I do not want to vote") never counts as
// agreement; the unanimity gate must treat any doubt as a no.
func containsAffirmative(answer string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range []string{"no", "not", "disagree", "don't", "do not"} {
		if containsWord(lower, marker) {
			return false
		}
	}
	for _, marker := range []string{"yes", "agree", "i do", "let's vote", "ready to vote"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// containsWord reports whether text contains marker bounded by non-letters,
// so "no" does not match inside "now" and "not" does not match "notes".
func containsWord(text, marker string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], marker)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(marker)
		beforeOK := idx == 0 || !isLetter(text[idx-1])
		afterOK := end == len(text) || !isLetter(text[end])
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
