package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/hupe1980/supervisor"
	"github.com/hupe1980/supervisor/checkpoint"
	"github.com/hupe1980/supervisor/checkpoint/sqlite"
	"github.com/hupe1980/supervisor/config"
	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/internal/util"
	"github.com/hupe1980/supervisor/logging"
	"github.com/hupe1980/supervisor/model"
	"github.com/hupe1980/supervisor/model/anthropic"
	"github.com/hupe1980/supervisor/model/gemini"
	"github.com/hupe1980/supervisor/model/openai"
	"github.com/hupe1980/supervisor/router"
	"github.com/hupe1980/supervisor/worker"
)

// app holds everything a command needs. close releases the store and
// flushes the logger.
type app struct {
	sup     *supervisor.Supervisor
	logger  logging.Logger
	closer  []func() error
	durable bool // checkpoints outlive the process
}

func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		_ = a.closer[i]()
	}
}

// newLogger builds the process logger for cfg.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, func() error, error) {
	level := logging.ParseLevel(cfg.Log.Level)

	if cfg.Log.Backend == "slog" {
		l := logging.NewLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    cfg.Log.Format,
			Output:    out,
			Component: "supervisor",
		})
		return l, func() error { return nil }, nil
	}

	zl, err := logging.NewZapLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	adapter := logging.NewZapAdapter(zl.With(zap.String("component", "supervisor")))
	return adapter, adapter.Sync, nil
}

// newModel constructs the configured LLM.
func newModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = float32(cfg.Temperature)
			if cfg.MaxTokens > 0 {
				o.MaxOutputTokens = int32(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
		})
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// newStore opens the configured checkpoint backend.
func newStore(cfg config.CheckpointConfig) (core.CheckpointStore, func() error, error) {
	if cfg.Driver == "sqlite" {
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return checkpoint.NewInMemoryStore(), func() error { return nil }, nil
}

// newApp wires a Supervisor from cfg. The mock provider routes
// sequentially since a canned model cannot make routing decisions.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{durable: cfg.Checkpoint.Driver == "sqlite"}

	logger, syncLog, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closer = append(a.closer, syncLog)

	store, closeStore, err := newStore(cfg.Checkpoint)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closer = append(a.closer, closeStore)

	llm, err := newModel(ctx, cfg.Model)
	if err != nil {
		a.close()
		return nil, err
	}

	specs := worker.DefaultSpecs()
	var supervisorPrompt string
	if cfg.Team != "" {
		team, err := config.LoadTeam(cfg.Team)
		if err != nil {
			a.close()
			return nil, err
		}
		specs = team.Workers
		supervisorPrompt = team.SupervisorInstructions
	}

	workers, err := worker.NewTeam(llm, specs, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	var policy core.Policy = router.SequentialPolicy{}
	if cfg.Model.Provider != "mock" {
		policy = router.NewLLMPolicy(llm, func(o *router.LLMPolicyOptions) {
			if supervisorPrompt != "" {
				o.SystemPrompt = supervisorPrompt
			}
			o.Logger = logger
		})
	}

	sup, err := supervisor.New(workers, policy, func(o *supervisor.Options) {
		o.EngineConfig = cfg.EngineConfig()
		o.MaxConcurrentSessions = cfg.MaxConcurrentSessions
		o.Store = store
		o.Logger = logger
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.sup = sup

	return a, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	return util.Truncate(n, s)
}
