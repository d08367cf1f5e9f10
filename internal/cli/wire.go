// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-answer/internal/backend"
	"github.com/jeranaias/rigrun-answer/internal/cloud"
	"github.com/jeranaias/rigrun-answer/internal/config"
	"github.com/jeranaias/rigrun-answer/internal/llm"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/ollama"
	"github.com/jeranaias/rigrun-answer/internal/pipeline"
	"github.com/jeranaias/rigrun-answer/internal/router"
	"github.com/jeranaias/rigrun-answer/internal/server"
	"github.com/jeranaias/rigrun-answer/internal/sources"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/templates"
)

// services is the assembled pipeline plus what must be closed afterwards.
type services struct {
	agent     *pipeline.Agent
	tracker   *telemetry.CostTracker
	templates templates.Provider
	checks    map[string]server.HealthCheck

	closers []func() error
}

// Close releases template sources and persists the usage session.
func (s *services) Close() error {
	var errs []error
	if err := s.tracker.EndSession(); err != nil {
		errs = append(errs, fmt.Errorf("saving usage session: %w", err))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServices wires completer, backends, templates, router, executor,
// orchestrator, agent and cost tracker from cfg.
func buildServices(cfg *config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{checks: make(map[string]server.HealthCheck)}

	completer, check, err := newCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.checks["llm"] = check

	provider, closeTemplates, err := openTemplates(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.templates = provider
	if closeTemplates != nil {
		svc.closers = append(svc.closers, closeTemplates)
	}
	if provider != nil {
		svc.checks["templates"] = func(ctx context.Context) error {
			_, err := provider.Templates(ctx)
			return err
		}
	}

	rt := router.New(completer, routerConfig(cfg), logger)

	exec := sources.NewExecutor(completer, sources.Config{
		SynthesisModel:       cfg.Models.Synthesis,
		SynthesisTemperature: cfg.Models.SynthesisTemperature,
		AssistantName:        cfg.Assistant.Name,
	}, logger)
	if provider != nil {
		exec.WithTemplates(provider)
	}
	for tag, url := range map[model.SourceTag]string{
		model.SourceDatabase: cfg.Backends.DatabaseURL,
		model.SourceDocument: cfg.Backends.DocumentURL,
	} {
		if url == "" {
			logger.Warn("backend not configured, its questions will fail", zap.String("source", tag.String()))
			continue
		}
		exec.WithBackend(tag, backend.NewClient(tag.String(), url).
			WithTimeout(cfg.BackendTimeout()).
			WithToken(cfg.Backends.Token).
			WithLogger(logger))
	}

	if cfg.Telemetry.Enabled {
		tracker, err := telemetry.NewCostTracker(cfg.Telemetry.Dir)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("opening cost storage: %w", err)
		}
		svc.tracker = tracker
	}

	orch := pipeline.NewOrchestrator(rt, exec, logger)
	svc.agent = pipeline.NewAgent(orch, completer, pipeline.AgentConfig{
		Apology:           cfg.Assistant.Apology,
		SupportApology:    cfg.Assistant.SupportApology,
		SupportSuggestion: cfg.Assistant.SupportSuggestion,
		SuccessConfidence: cfg.Assistant.SuccessConfidence,
		TitleModel:        cfg.Models.Title,
		TitleTemperature:  cfg.Models.TitleTemperature,
	}, logger).WithCostTracker(svc.tracker)

	return svc, nil
}

// routerConfig maps the assistant and routing sections onto the router.
func routerConfig(cfg *config.Config) router.Config {
	return router.Config{
		Model:            cfg.Models.Routing,
		Temperature:      cfg.Models.RoutingTemperature,
		HistoryTurns:     cfg.Routing.HistoryTurns,
		AssistantName:    cfg.Assistant.Name,
		SiteURL:          cfg.Assistant.SiteURL,
		Apology:          cfg.Assistant.CasualApology,
		DatabaseKeywords: cfg.Routing.DatabaseKeywords,
		DocumentKeywords: cfg.Routing.DocumentKeywords,
	}
}

// newCompleter builds the configured completion provider and a health
// probe for it.
func newCompleter(cfg *config.Config, logger *zap.Logger) (llm.Completer, server.HealthCheck, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		client := ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:      cfg.LLM.OllamaURL,
			Timeout:      cfg.LLMTimeout(),
			DefaultModel: cfg.Models.Synthesis,
			KeepAlive:    cfg.LLM.OllamaKeepAlive,
		}).WithLogger(logger)
		return client, client.CheckRunning, nil

	default:
		client := cloud.NewOpenRouterClient(cfg.LLM.OpenRouterKey).
			WithBaseURL(cfg.LLM.OpenRouterURL).
			WithTimeout(cfg.LLMTimeout()).
			WithMaxRetries(cfg.LLM.MaxRetries).
			WithSiteURL(cfg.Assistant.SiteURL).
			WithSiteName(cfg.Assistant.Name).
			WithRateLimit(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst).
			WithPricing(cfg.Pricing).
			WithLogger(logger)
		if !client.IsConfigured() {
			return nil, nil, fmt.Errorf("%w: set llm.openrouter_key or OPENROUTER_API_KEY", cloud.ErrNotConfigured)
		}
		logger.Debug("openrouter configured", zap.String("key", client.KeyFingerprint()))
		return client, func(context.Context) error { return nil }, nil
	}
}

// openTemplates opens the configured template source. A file source wins
// over the database. Both nil means no templates.
func openTemplates(cfg *config.Config, logger *zap.Logger) (templates.Provider, func() error, error) {
	if cfg.Templates.File != "" {
		fs, err := templates.NewFileSource(cfg.Templates.File, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Templates.Watch {
			if err := fs.Watch(); err != nil {
				return nil, nil, err
			}
		}
		return fs, fs.Close, nil
	}

	if cfg.Templates.DBPath != "" {
		store, err := templates.OpenStore(cfg.Templates.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, nil
}
