package discussion

import (
	"context"
	"fmt"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
)

// applyOutcome computes every participant's Phase 2 payoff, updates their
// memories with the outcome, collects final rankings in parallel, and
// assembles the phase results.
//
// With consensus the agreed principle is applied once to a fresh
// distribution set and every participant draws a class from that single
// chosen distribution. Without consensus each participant instead draws an
// entire distribution of their own at random before drawing a class; the
// two payoff shapes are deliberately different.
func (e *Engine) applyOutcome(ctx context.Context) (*models.Phase2Results, error) {
	set, err := e.dist.GenerateDistributionSet(e.cfg.MultiplierRange)
	if err != nil {
		return nil, fmt.Errorf("phase 2 distribution set: %w", err)
	}

	var agreed *models.PrincipleChoice
	if e.state.Status == StatusConsensus && len(e.state.VoteHistory) > 0 {
		agreed = e.state.VoteHistory[len(e.state.VoteHistory)-1].AgreedPrinciple
	}

	outcomes := make([]models.ParticipantOutcome, len(e.participants))
	if agreed != nil {
		chosen, explanation, err := distribution.ApplyPrinciple(set.Distributions, *agreed)
		if err != nil {
			return nil, fmt.Errorf("apply agreed principle: %w", err)
		}
		e.log.WithField("explanation", explanation).Info("Applied the agreed principle")
		for i, p := range e.participants {
			class, earnings, err := e.assignClass(chosen)
			if err != nil {
				return nil, err
			}
			p.Credit(earnings)
			outcomes[i] = models.ParticipantOutcome{
				Participant:         p.Participant.Name,
				Distribution:        chosen,
				AssignedIncomeClass: class,
				Earnings:            earnings,
				FinalBalance:        p.Balance,
			}
		}
	} else {
		for i, p := range e.participants {
			dist := set.Distributions[e.rng.Intn(len(set.Distributions))]
			class, earnings, err := e.assignClass(dist)
			if err != nil {
				return nil, err
			}
			p.Credit(earnings)
			outcomes[i] = models.ParticipantOutcome{
				Participant:         p.Participant.Name,
				Distribution:        dist,
				AssignedIncomeClass: class,
				Earnings:            earnings,
				FinalBalance:        p.Balance,
			}
		}
	}

	// Memory update and final ranking per participant, in parallel; each
	// goroutine touches only its own participant's state.
	rankings := make([]models.PrincipleRanking, len(e.participants))
	err = e.fanOut(ctx, func(ctx context.Context, i int, p *participant.Context) error {
		memoryPrompt := outcomeMemoryPrompt(outcomes[i], agreed)
		if err := p.UpdateMemory(ctx, e.runner, memoryPrompt); err != nil {
			return err
		}
		ranking, err := e.elicitRanking(ctx, p)
		if err != nil {
			return err
		}
		rankings[i] = ranking
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range outcomes {
		outcomes[i].FinalRanking = rankings[i]
	}

	return &models.Phase2Results{
		ConsensusReached: agreed != nil,
		AgreedPrinciple:  agreed,
		FinalRound:       e.state.FinalRound,
		Statements:       e.state.Statements,
		PublicHistory:    e.state.PublicHistory(),
		VoteHistory:      e.state.VoteHistory,
		DistributionSet:  set,
		Outcomes:         outcomes,
	}, nil
}

// assignClass draws an income class for one payoff, weighted when a
// probability table is configured.
func (e *Engine) assignClass(d models.IncomeDistribution) (models.IncomeClass, float64, error) {
	if e.cfg.ClassProbabilities != nil {
		return e.dist.AssignPayoffWeighted(d, e.cfg.ClassProbabilities)
	}
	class, earnings := e.dist.AssignPayoff(d)
	return class, earnings, nil
}

// elicitRanking asks a participant for their final principle ranking,
// re-prompting on malformed extraction. After exhaustion it falls back to
// the conservative default ranking rather than failing the whole run.
func (e *Engine) elicitRanking(ctx context.Context, p *participant.Context) (models.PrincipleRanking, error) {
	prompt := finalRankingPrompt(p)
	for attempt := 0; attempt <= maxRankingRetries; attempt++ {
		reply, err := agent.WithRetry(ctx, e.cfg.Retry, func() (string, error) {
			return e.runner.GenerateReply(ctx, p.Participant.ID, prompt)
		})
		if err != nil {
			return models.PrincipleRanking{}, fmt.Errorf("final ranking from %s: %w", p.Participant.Name, err)
		}

		ranking, err := e.runner.ParseRanking(ctx, reply)
		if err != nil {
			if agent.IsValidationError(err) {
				prompt = rankingRetryPrompt(p, err)
				continue
			}
			return models.PrincipleRanking{}, fmt.Errorf("parse final ranking from %s: %w", p.Participant.Name, err)
		}
		if err := ranking.Validate(); err != nil {
			prompt = rankingRetryPrompt(p, err)
			continue
		}
		return ranking, nil
	}

	e.log.WithField("participant", p.Participant.Name).Warn("Final ranking extraction kept failing; using the default ranking")
	return agent.DefaultRanking(), nil
}
