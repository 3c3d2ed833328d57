package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/ensemble/internal/config"
	"github.com/ChamsBouzaiene/ensemble/internal/engine"
	"github.com/ChamsBouzaiene/ensemble/internal/orchestrator"
	"github.com/ChamsBouzaiene/ensemble/internal/persona"
	"github.com/ChamsBouzaiene/ensemble/internal/providers"
	"github.com/ChamsBouzaiene/ensemble/internal/search"
	"github.com/ChamsBouzaiene/ensemble/internal/session"
)

// runtimeFlags are the command-line overrides of the saved config.
type runtimeFlags struct {
	DataDir  string
	Store    string
	Tone     string
	UserRole string
	Parallel bool
	Verbose  bool
}

type runtimeEnv struct {
	Config   *config.Config
	LLM      engine.LLMClient
	Model    string
	Store    session.Store
	Index    *search.TranscriptIndex
	Synth    *persona.Synthesizer
	Orch     *orchestrator.Orchestrator
	Titler   *session.Titler
	Tone     persona.Tone
	UserRole string
	Logger   *log.Logger
}

func (r *runtimeEnv) Close() {
	if r.Index != nil {
		if err := r.Index.Close(); err != nil {
			r.Logger.Printf("⚠️  failed to close transcript index: %v", err)
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			r.Logger.Printf("⚠️  failed to close session store: %v", err)
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, flags runtimeFlags) (*runtimeEnv, error) {
	logger := log.New(io.Discard, "", 0)
	if flags.Verbose {
		logger = log.New(os.Stderr, "ensemble ", log.LstdFlags)
	}

	cfg, err := loadUserConfig(logger)
	if err != nil {
		return nil, err
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}
	if flags.Store != "" {
		cfg.Store = flags.Store
	}
	if flags.Tone != "" {
		cfg.Tone = flags.Tone
	}
	if flags.UserRole != "" {
		cfg.UserRole = flags.UserRole
	}
	if flags.Parallel {
		cfg.ParallelRounds = true
	}

	tone, err := persona.ParseTone(cfg.Tone)
	if err != nil {
		return nil, err
	}
	probe, err := orchestrator.ParseProbePolicy(cfg.ProbePolicy, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}

	applyConfigToEnv(cfg)
	llm, model, err := providers.NewLLMClientFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	logger.Printf("Model: %s", model)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := openStore(ctx, cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Printf("Sessions: %s store in %s", cfg.Store, cfg.DataDir)

	env := &runtimeEnv{
		Config:   cfg,
		LLM:      llm,
		Model:    model,
		Store:    store,
		Tone:     tone,
		UserRole: cfg.UserRole,
		Logger:   logger,
	}

	index, err := search.NewTranscriptIndex(filepath.Join(cfg.DataDir, "transcripts.bleve"))
	if err != nil {
		logger.Printf("⚠️  Failed to open transcript index: %v (search will be disabled)", err)
	} else {
		env.Index = index
	}

	synthOpts := persona.DefaultOptions()
	synthOpts.Logger = logger
	env.Synth = persona.NewSynthesizer(llm, model, synthOpts)

	orchOpts := orchestrator.DefaultOptions()
	orchOpts.Parallel = cfg.ParallelRounds
	orchOpts.MaxContextTokens = cfg.ContextTokens
	orchOpts.Probe = probe
	orchOpts.Store = store
	orchOpts.Hook = orchestrator.LoggerHook{L: logger, Model: model}
	env.Orch = orchestrator.New(llm, model, orchOpts)
	env.Titler = session.NewTitler(llm, model)

	return env, nil
}

// loadUserConfig reads the saved config, falling back to defaults when the
// config directory is unavailable.
func loadUserConfig(logger *log.Logger) (*config.Config, error) {
	manager, err := config.NewManager()
	if err != nil {
		logger.Printf("⚠️  Failed to initialize config manager: %v", err)
		manager = config.NewManagerAt(filepath.Join(".", ".ensemble"))
	}
	cfg, err := manager.Load()
	if err != nil {
		return nil, err
	}
	if manager.Exists() {
		logger.Printf("User config loaded from: %s", manager.GetConfigPath())
	}
	return cfg, nil
}

func openStore(ctx context.Context, kind, dataDir string) (session.Store, error) {
	switch kind {
	case "", "json":
		return session.NewFileStore(dataDir), nil
	case "sqlite":
		store, err := session.NewSQLiteStore(ctx, filepath.Join(dataDir, "sessions.db"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q (supported: json, sqlite)", kind)
	}
}
