package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.veil.experiment/internal/agent"
	"dev.veil.experiment/internal/config"
	"dev.veil.experiment/internal/database"
	"dev.veil.experiment/internal/experiment"
	"dev.veil.experiment/internal/models"
)

func main() {
	configPath := flag.String("config", "", "path to the experiment YAML configuration")
	scripted := flag.Bool("scripted", false, "run with the scripted agent backend (dry run, no model calls)")
	flag.Parse()

	log := logrus.New()

	if *configPath == "" {
		log.Fatal("missing -config")
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		log.WithError(err).Fatal("Configuration error")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if !*scripted {
		log.Fatal("No agent backend is wired into this binary; run with -scripted for a dry run or embed the orchestrator with a real agent.Runner")
	}
	runner := &agent.ScriptedRunner{}

	table := make(map[string]agent.Capabilities, len(cfg.Participants))
	for _, p := range cfg.Participants {
		table[p.Model] = agent.Capabilities{Reasoning: p.Reasoning, Temperature: p.Temperature}
	}
	resolver := agent.StaticResolver{Table: table}

	orchestrator, err := experiment.New(cfg, runner, resolver, log)
	if err != nil {
		log.WithError(err).Fatal("Experiment setup failed")
	}

	ctx := context.Background()
	results, err := orchestrator.Run(ctx)
	if err != nil {
		log.WithError(err).Fatal("Experiment run failed")
	}

	path, err := experiment.SaveJSON(results, cfg.ResultsDir)
	if err != nil {
		log.WithError(err).Fatal("Saving results failed")
	}
	log.WithField("path", path).Info("Results saved")

	// Results are already on disk; database persistence is best-effort.
	if cfg.DatabaseURL != "" {
		if err := persist(ctx, cfg.DatabaseURL, results, log); err != nil {
			log.WithError(err).Warn("Database persistence failed")
		}
	}

	fmt.Print(experiment.Summary(results))
}

func persist(ctx context.Context, databaseURL string, results *models.ExperimentResults, log *logrus.Logger) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := database.NewExperimentRepository(pool, log)
	if err := repo.CreateTable(ctx); err != nil {
		return err
	}
	return repo.Insert(ctx, results)
}
