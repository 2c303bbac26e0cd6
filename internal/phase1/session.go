// Package phase1 runs the individual learning phase: each participant
// independently ranks the justice principles, studies them, applies them
// over four paid demonstration rounds, and ranks them again. Participants
// run fully in parallel with no shared mutable state.
package phase1

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

// DemonstrationRounds is the number of paid application rounds every
// participant plays.
const DemonstrationRounds = 4

// maxChoiceRetries bounds the re-prompt loop for choice extraction during a
// demonstration round.
const maxChoiceRetries = 3

// maxRankingRetries bounds the re-prompt loop for ranking extraction.
const maxRankingRetries = 3

// Config controls the Phase 1 session.
type Config struct {
	// MultiplierRange drives the per-round distribution sets.
	MultiplierRange distribution.MultiplierRange
	// Retry applies to every participant communication.
	Retry agent.RetryConfig
	// ClassProbabilities switches payoff assignment to the weighted mode
	// when set; nil keeps the uniform base contract.
	ClassProbabilities distribution.ClassProbabilities
}

// Validate checks the multiplier range and optional probability table.
func (c Config) Validate() error {
	if err := c.MultiplierRange.Validate(); err != nil {
		return fmt.Errorf("phase 1 config: %w", err)
	}
	if c.ClassProbabilities != nil {
		if err := c.ClassProbabilities.Validate(); err != nil {
			return fmt.Errorf("phase 1 config: %w", err)
		}
	}
	return nil
}

// Session runs Phase 1 for a group of participants.
type Session struct {
	cfg    Config
	runner agent.Runner
	rng    *rand.Rand
	log    *logrus.Logger
}

// NewSession validates the configuration and builds a session. A nil logger
// defaults to logrus.New().
func NewSession(cfg Config, runner agent.Runner, rng *rand.Rand, log *logrus.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, errors.New("phase1: runner is required")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if log == nil {
		log = logrus.New()
	}
	return &Session{cfg: cfg, runner: runner, rng: rng, log: log}, nil
}

// Run executes the full Phase 1 pipeline for every participant in parallel
// and joins the results. The first failure cancels the remaining work.
// Results are keyed by participant name.
func (s *Session) Run(ctx context.Context, participants []agent.Participant) (map[string]models.Phase1Results, error) {
	if len(participants) == 0 {
		return nil, errors.New("phase1: no participants")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Seed one independent engine per participant up front; a shared
	// rand.Rand must not cross goroutine boundaries.
	seeds := make([]int64, len(participants))
	for i := range seeds {
		seeds[i] = s.rng.Int63()
	}

	results := make([]models.Phase1Results, len(participants))
	errs := make([]error, len(participants))
	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p agent.Participant) {
			defer wg.Done()
			engine := distribution.NewEngine(rand.New(rand.NewSource(seeds[i])))
			result, err := s.runParticipant(ctx, p, engine)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = result
		}(i, p)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	out := make(map[string]models.Phase1Results, len(participants))
	for i, p := range participants {
		out[p.Name] = results[i]
	}
	return out, nil
}

// runParticipant drives the pipeline for a single participant:
// ranking, explanation, ranking, four demonstration rounds, final ranking.
func (s *Session) runParticipant(ctx context.Context, p agent.Participant, engine *distribution.Engine) (models.Phase1Results, error) {
	pc := participant.NewContext(p)
	log := s.log.WithField("participant", p.Name)

	initial, err := s.elicitRanking(ctx, pc, initialRankingPrompt(pc))
	if err != nil {
		return models.Phase1Results{}, err
	}
	log.WithField("top", initial.Top()).Info("Initial ranking collected")

	if err := pc.UpdateMemory(ctx, s.runner, explanationMemoryPrompt(initial)); err != nil {
		return models.Phase1Results{}, err
	}

	postExplanation, err := s.elicitRanking(ctx, pc, postExplanationRankingPrompt(pc))
	if err != nil {
		return models.Phase1Results{}, err
	}

	applications := make([]models.ApplicationResult, 0, DemonstrationRounds)
	for round := 1; round <= DemonstrationRounds; round++ {
		pc.RoundNumber = round
		application, err := s.runDemonstrationRound(ctx, pc, engine, round)
		if err != nil {
			return models.Phase1Results{}, err
		}
		applications = append(applications, application)
		log.WithFields(logrus.Fields{
			"round":    round,
			"earnings": application.Earnings,
			"balance":  pc.Balance,
		}).Info("Demonstration round complete")
	}

	final, err := s.elicitRanking(ctx, pc, finalRankingPrompt(pc))
	if err != nil {
		return models.Phase1Results{}, err
	}

	return models.Phase1Results{
		Participant:            p.Name,
		InitialRanking:         initial,
		PostExplanationRanking: postExplanation,
		ApplicationResults:     applications,
		FinalRanking:           final,
		FinalBalance:           pc.Balance,
		FinalMemoryState:       pc.Memory,
	}, nil
}

// runDemonstrationRound plays one paid round: generate a distribution set,
// elicit a principle choice, apply it, draw a payoff, compute both
// counterfactual maps, and update the participant's memory.
func (s *Session) runDemonstrationRound(ctx context.Context, pc *participant.Context, engine *distribution.Engine, round int) (models.ApplicationResult, error) {
	set, err := engine.GenerateDistributionSet(s.cfg.MultiplierRange)
	if err != nil {
		return models.ApplicationResult{}, err
	}

	choice, err := s.elicitChoice(ctx, pc, set)
	if err != nil {
		return models.ApplicationResult{}, err
	}

	chosen, explanation, err := distribution.ApplyPrinciple(set.Distributions, choice)
	if err != nil {
		return models.ApplicationResult{}, fmt.Errorf("round %d for %s: %w", round, pc.Participant.Name, err)
	}

	class, earnings, err := s.assignClass(engine, chosen)
	if err != nil {
		return models.ApplicationResult{}, err
	}
	pc.Credit(earnings)

	alternative := engine.CounterfactualEarnings(set.Distributions, choice.ConstraintAmount)
	sameClass := distribution.CounterfactualEarningsSameClass(set.Distributions, class, choice.ConstraintAmount)

	result := models.ApplicationResult{
		RoundNumber:         round,
		PrincipleChoice:     choice,
		DistributionSet:     set,
		ChosenDistribution:  chosen,
		Explanation:         explanation,
		AssignedIncomeClass: class,
		Earnings:            earnings,
		AlternativeEarnings: alternative,
		SameClassEarnings:   sameClass,
	}

	if err := pc.UpdateMemory(ctx, s.runner, roundMemoryPrompt(result, pc.Balance)); err != nil {
		return models.ApplicationResult{}, err
	}
	return result, nil
}

func (s *Session) assignClass(engine *distribution.Engine, d models.IncomeDistribution) (models.IncomeClass, float64, error) {
	if s.cfg.ClassProbabilities != nil {
		return engine.AssignPayoffWeighted(d, s.cfg.ClassProbabilities)
	}
	class, earnings := engine.AssignPayoff(d)
	return class, earnings, nil
}

// elicitChoice asks for a principle choice over the given distribution set,
// re-prompting on malformed extraction. After exhaustion it falls back to
// the conservative default choice (maximizing the floor) rather than
// aborting the participant's run.
func (s *Session) elicitChoice(ctx context.Context, pc *participant.Context, set models.DistributionSet) (models.PrincipleChoice, error) {
	prompt := choicePrompt(pc, set)
	for attempt := 0; attempt <= maxChoiceRetries; attempt++ {
		reply, err := agent.WithRetry(ctx, s.cfg.Retry, func() (string, error) {
			return s.runner.GenerateReply(ctx, pc.Participant.ID, prompt)
		})
		if err != nil {
			return models.PrincipleChoice{}, fmt.Errorf("choice from %s: %w", pc.Participant.Name, err)
		}

		choice, err := s.runner.ParseChoice(ctx, reply)
		if err != nil {
			if agent.IsValidationError(err) {
				prompt = choiceRetryPrompt(pc, set, err)
				continue
			}
			return models.PrincipleChoice{}, fmt.Errorf("parse choice from %s: %w", pc.Participant.Name, err)
		}
		if err := choice.Validate(); err != nil {
			prompt = choiceRetryPrompt(pc, set, err)
			continue
		}
		return choice, nil
	}

	s.log.WithField("participant", pc.Participant.Name).Warn("Choice extraction kept failing; using the default floor choice")
	return models.PrincipleChoice{Principle: models.MaximizingFloor, Certainty: models.NoOpinion}, nil
}

// elicitRanking asks for a full principle ranking, re-prompting on
// malformed extraction and falling back to the default ranking after
// exhaustion.
func (s *Session) elicitRanking(ctx context.Context, pc *participant.Context, prompt string) (models.PrincipleRanking, error) {
	for attempt := 0; attempt <= maxRankingRetries; attempt++ {
		reply, err := agent.WithRetry(ctx, s.cfg.Retry, func() (string, error) {
			return s.runner.GenerateReply(ctx, pc.Participant.ID, prompt)
		})
		if err != nil {
			return models.PrincipleRanking{}, fmt.Errorf("ranking from %s: %w", pc.Participant.Name, err)
		}

		ranking, err := s.runner.ParseRanking(ctx, reply)
		if err != nil {
			if agent.IsValidationError(err) {
				prompt = rankingRetryPrompt(pc, err)
				continue
			}
			return models.PrincipleRanking{}, fmt.Errorf("parse ranking from %s: %w", pc.Participant.Name, err)
		}
		if err := ranking.Validate(); err != nil {
			prompt = rankingRetryPrompt(pc, err)
			continue
		}
		return ranking, nil
	}

	s.log.WithField("participant", pc.Participant.Name).Warn("Ranking extraction kept failing; using the default ranking")
	return agent.DefaultRanking(), nil
}
