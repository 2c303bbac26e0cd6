// Package experiment sequences the two phases of the veil-of-ignorance
// study, aggregates the immutable results, and persists them.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/config"
	"dev.veil.experiment/internal/discussion"
	"dev.veil.experiment/internal/distribution"
	"dev.veil.experiment/internal/models"
	"dev.veil.experiment/internal/participant"
	"dev.veil.experiment/internal/phase1"
)

// Orchestrator runs one complete experiment: Phase 1 in parallel across
// participants, then the sequential Phase 2 group discussion.
type Orchestrator struct {
	cfg      *config.Config
	runner   agent.Runner
	resolver agent.CapabilityResolver
	rng      *rand.Rand
	log      *logrus.Logger
}

// New validates the wiring and builds an orchestrator. A nil logger
// defaults to logrus.New(); a nil rng gets a time-seeded source unless the
// config pins a seed.
func New(cfg *config.Config, runner agent.Runner, resolver agent.CapabilityResolver, log *logrus.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("experiment: config is required")
	}
	if runner == nil {
		return nil, errors.New("experiment: runner is required")
	}
	if resolver == nil {
		return nil, errors.New("experiment: capability resolver is required")
	}
	if log == nil {
		log = logrus.New()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Orchestrator{
		cfg:      cfg,
		runner:   runner,
		resolver: resolver,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log,
	}, nil
}

// buildParticipants resolves capabilities once per participant at
// construction time and freezes them into the participant records.
func (o *Orchestrator) buildParticipants(ctx context.Context) ([]agent.Participant, error) {
	participants := make([]agent.Participant, 0, len(o.cfg.Participants))
	for _, pc := range o.cfg.Participants {
		caps, err := o.resolver.Resolve(ctx, pc.Model)
		if err != nil {
			return nil, fmt.Errorf("resolve capabilities for %s: %w", pc.Name, err)
		}
		caps.Reasoning = caps.Reasoning || pc.Reasoning
		if pc.Temperature != nil {
			caps.Temperature = pc.Temperature
		}
		participants = append(participants, agent.Participant{
			ID:              uuid.New().String(),
			Name:            pc.Name,
			Model:           pc.Model,
			Capabilities:    caps,
			MemoryCharLimit: pc.MemoryCharLimit,
		})
	}
	return participants, nil
}

// Run executes both phases and assembles the experiment record. Results
// exist only after full completion; a fatal error mid-run yields nothing.
func (o *Orchestrator) Run(ctx context.Context) (*models.ExperimentResults, error) {
	startedAt := time.Now()
	id := uuid.New().String()
	o.log.WithFields(logrus.Fields{
		"experiment":   id,
		"participants": len(o.cfg.Participants),
	}).Info("Experiment started")

	participants, err := o.buildParticipants(ctx)
	if err != nil {
		return nil, err
	}

	probs, err := o.cfg.ClassProbabilityTable()
	if err != nil {
		return nil, err
	}

	session, err := phase1.NewSession(phase1.Config{
		MultiplierRange:    o.cfg.MultiplierRangePhase1(),
		Retry:              o.cfg.RetrySettings(),
		ClassProbabilities: probs,
	}, o.runner, rand.New(rand.NewSource(o.rng.Int63())), o.log)
	if err != nil {
		return nil, err
	}

	phase1Results, err := session.Run(ctx, participants)
	if err != nil {
		return nil, fmt.Errorf("phase 1: %w", err)
	}
	o.log.WithField("experiment", id).Info("Phase 1 complete")

	// Phase 2 contexts carry each participant's final Phase 1 memory
	// verbatim, together with the balance earned so far.
	contexts := make([]*participant.Context, 0, len(participants))
	for _, p := range participants {
		p1 := phase1Results[p.Name]
		contexts = append(contexts, participant.ForPhaseTwo(p, p1.FinalMemoryState, p1.FinalBalance))
	}

	engine, err := discussion.NewEngine(discussion.Config{
		MaxRounds:          o.cfg.Phase2Rounds,
		MultiplierRange:    o.cfg.MultiplierRangePhase2(),
		Retry:              o.cfg.RetrySettings(),
		ClassProbabilities: probs,
	}, o.runner, distribution.NewEngine(rand.New(rand.NewSource(o.rng.Int63()))), contexts, rand.New(rand.NewSource(o.rng.Int63())), o.log)
	if err != nil {
		return nil, err
	}

	phase2Results, err := engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 2: %w", err)
	}
	o.log.WithFields(logrus.Fields{
		"experiment":        id,
		"consensus_reached": phase2Results.ConsensusReached,
		"final_round":       phase2Results.FinalRound,
	}).Info("Phase 2 complete")

	results := &models.ExperimentResults{
		ID:         id,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Phase1:     phase1Results,
		Phase2:     *phase2Results,
		GeneralInformation: models.GeneralInformation{
			ConsensusReached:   phase2Results.ConsensusReached,
			ConsensusPrinciple: phase2Results.AgreedPrinciple,
			PublicHistory:      phase2Results.PublicHistory,
			FinalVotes:         finalVotes(participants, phase2Results),
			ConfigFile:         o.cfg.ConfigFile,
		},
	}
	return results, nil
}

// finalVotes maps each participant to their vote in the last ballot held,
// if any ballot was held at all.
func finalVotes(participants []agent.Participant, phase2 *models.Phase2Results) map[string]models.PrincipleChoice {
	if len(phase2.VoteHistory) == 0 {
		return nil
	}
	last := phase2.VoteHistory[len(phase2.VoteHistory)-1]
	votes := make(map[string]models.PrincipleChoice, len(last.Votes))
	for i, vote := range last.Votes {
		if i < len(participants) {
			votes[participants[i].Name] = vote
		}
	}
	return votes
}
