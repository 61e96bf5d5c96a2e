package agentdesk

import (
	"context"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentdesk/config"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/model/anthropic"
	"github.com/hupe1980/agentdesk/model/gemini"
	"github.com/hupe1980/agentdesk/model/openai"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/session/sqlite"
	"github.com/hupe1980/agentdesk/tool"
	"github.com/hupe1980/agentdesk/toolkit"
	"github.com/hupe1980/agentdesk/toolkit/googlecalendar"
	"github.com/hupe1980/agentdesk/toolkit/googletasks"
)

// NewModel builds the provider adapter selected by cfg.
func NewModel(ctx context.Context, cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.MaxTokens > 0 {
				o.MaxOutputTokens = int32(cfg.MaxTokens)
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("agentdesk: unknown model provider %q", cfg.Provider)
	}
}

// NewLogger builds the logger described by cfg, writing to w.
func NewLogger(cfg config.LogConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    w,
		Component: "agentdesk",
	}), nil
}

// OpenStore opens the sqlite store at cfg.Path, or an in-memory store when
// the path is empty.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (session.Store, error) {
	if cfg.Path == "" {
		return session.NewInMemoryStore(), nil
	}
	return sqlite.Open(ctx, cfg.Path)
}

// GoogleTools returns the tool providers for the Google workers. Services
// are created when the agents file names the worker; missing credentials
// then skip that worker with a diagnostic. optFns are applied after the
// credentials from cfg.
func GoogleTools(ctx context.Context, cfg config.GoogleConfig, optFns ...func(o *toolkit.Options)) map[string]ToolProvider {
	withCreds := func(o *toolkit.Options) {
		o.CredentialsFile = cfg.CredentialsFile
		for _, fn := range optFns {
			fn(o)
		}
	}

	return map[string]ToolProvider{
		googletasks.WorkerName: func() ([]tool.Tool, error) {
			tk, err := googletasks.New(ctx, withCreds)
			if err != nil {
				return nil, err
			}
			return tk.Tools(), nil
		},
		googlecalendar.WorkerName: func() ([]tool.Tool, error) {
			tk, err := googlecalendar.New(ctx, withCreds)
			if err != nil {
				return nil, err
			}
			return tk.Tools(), nil
		},
	}
}

// FromConfig assembles a Desk from cfg: provider model, transcript store,
// Google toolkits and logging to stderr. Callers own the returned Desk and
// must Close it.
func FromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Desk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	llm, err := NewModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Server.Metrics {
		m = metrics.New()
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.AgentsFile = cfg.AgentsFile
		o.Tools = GoogleTools(ctx, cfg.Google)
		o.Store = store
		o.Metrics = m
		o.Logger = logger
		o.MaxCycles = cfg.Supervisor.MaxCycles
		o.MaxRounds = cfg.Worker.MaxRounds
		o.EnhancerName = cfg.Supervisor.Enhancer
		o.RetryAttempts = cfg.Retry.MaxAttempts
		o.RetryCooldown = cfg.Retry.Cooldown
	}}, optFns...)

	desk, err := New(llm, fns...)
	if err != nil {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}

	return desk, nil
}
