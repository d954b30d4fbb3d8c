package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/helpinghand/relay/internal/completion"
	"github.com/helpinghand/relay/internal/config"
	"github.com/helpinghand/relay/internal/graph"
	"github.com/helpinghand/relay/internal/persona"
	"github.com/helpinghand/relay/internal/reports"
	"github.com/helpinghand/relay/internal/routing"
	"github.com/helpinghand/relay/internal/sessions"
	"github.com/helpinghand/relay/internal/subscription"
)

// app is the wired service graph shared by serve and catchup.
type app struct {
	cfg         *config.Config
	registry    *persona.Registry
	client      *graph.Client
	tokens      *graph.TokenSource
	store       *sessions.Store
	completions *completion.Client
	scheduler   *routing.Scheduler
	processor   *routing.Processor
	scanner     *routing.Scanner
	manager     *subscription.Manager
}

func buildApp(cfg *config.Config) (*app, error) {
	registry := persona.NewRegistry(cfg.Personas.DefinitionsDir)
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no personas loaded from %s", cfg.Personas.DefinitionsDir)
	}

	client := graph.NewClient()
	tokens := graph.NewTokenSource(cfg.Graph.TenantID, cfg.Graph.ClientID, cfg.Paths.CredentialsFile)
	store := sessions.NewStore(cfg.Paths.SessionsDir)
	completions := completion.NewClient(cfg.Anthropic.APIKey,
		completion.WithModel(cfg.Anthropic.Model),
		completion.WithMaxTokens(cfg.Anthropic.MaxTokens))

	var follow routing.FollowUp
	if cfg.Graph.SiteID != "" {
		follow = reports.NewReporter(client, client, tokens, cfg.Graph.SiteID, cfg.Graph.DriveRoot)
	}

	scheduler := routing.NewScheduler(client, tokens, store, completions, follow)
	evaluator := routing.NewEvaluator(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	ledger := routing.NewLedger(0)
	manager := subscription.NewManager(client, tokens,
		cfg.Paths.StateFile,
		cfg.Subscription.Resource,
		cfg.Subscription.CallbackURL,
		cfg.Subscription.Lifetime())

	processor := routing.NewProcessor(registry, ledger, evaluator, client, tokens, scheduler, manager)
	scanner := routing.NewScanner(processor, client, tokens, ledger, manager)

	return &app{
		cfg:         cfg,
		registry:    registry,
		client:      client,
		tokens:      tokens,
		store:       store,
		completions: completions,
		scheduler:   scheduler,
		processor:   processor,
		scanner:     scanner,
		manager:     manager,
	}, nil
}
