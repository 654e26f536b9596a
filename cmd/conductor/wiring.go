package main

import (
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/conductor/internal/classify"
	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/dispatch"
	"github.com/ShayCichocki/conductor/internal/directory"
	"github.com/ShayCichocki/conductor/internal/llm"
	"github.com/ShayCichocki/conductor/internal/responder"
	"github.com/ShayCichocki/conductor/internal/router"
	"github.com/ShayCichocki/conductor/internal/session"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/internal/workflows"
)

// app holds the wired components behind every command. Construction is
// explicit; there are no package-level singletons.
type app struct {
	cfg        *config.Config
	db         *state.DB
	client     *llm.Client
	sessions   *session.Manager
	dispatcher *dispatch.Dispatcher
}

var debugFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
}

// buildApp loads configuration and wires every component. The caller
// must Close the returned app.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	apiKey := ""
	if !cfg.Anthropic.UseAWSBedrock {
		apiKey, err = config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("build API client: %w", err)
	}

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoint database: %w", err)
	}

	triggers := router.DefaultTriggers()
	if cfg.Router.TriggersFile != "" {
		triggers, err = router.LoadTriggers(cfg.Router.TriggersFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load triggers: %w", err)
		}
	}

	dir := directory.NewMemory()

	registry, err := workflows.NewRegistry(workflows.Deps{
		LLM:         client,
		Directory:   dir,
		Model:       cfg.Anthropic.Model,
		NodeTimeout: cfg.Timeouts.Node,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build workflow registry: %w", err)
	}

	opts := []session.Option{
		session.WithMaxIterations(cfg.Defaults.MaxIterations),
		session.WithConcurrency(cfg.Defaults.Concurrency),
	}
	if debugFlag {
		opts = append(opts, session.WithDebugLog(log.Printf))
	}
	sessions := session.NewManager(db, registry, opts...)

	classifier := classify.New(client)
	classifier.SetModel(cfg.Anthropic.Model)

	pool := responder.NewPool(client, dir,
		responder.WithModel(cfg.Anthropic.Model),
		responder.WithBudget(cfg.Timeouts.Responder),
	)

	dispatcher := dispatch.NewDispatcher(classifier, router.NewEvaluator(triggers), sessions, pool)

	return &app{
		cfg:        cfg,
		db:         db,
		client:     client,
		sessions:   sessions,
		dispatcher: dispatcher,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
