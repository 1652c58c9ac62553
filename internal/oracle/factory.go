package oracle

import (
	"context"
	"fmt"

	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/oracle/execagent"
	"github.com/metalagman/socratic/internal/oracle/gemini"
	"github.com/metalagman/socratic/internal/oracle/openaiapi"
)

// New builds the configured oracle backend wrapped with the call timeout.
func New(ctx context.Context, cfg config.OracleConfig) (Oracle, error) {
	var next Oracle
	switch cfg.Type {
	case config.OracleTypeOpenAI, "":
		c, err := openaiapi.NewClient(openaiapi.Config{
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			APIKeyEnv:    cfg.APIKeyEnv,
			Timeout:      cfg.Timeout,
			Instructions: cfg.SystemPrompt,
		}, nil)
		if err != nil {
			return nil, err
		}
		next = Func(c.Prompt)
	case config.OracleTypeGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			APIKeyEnv:         cfg.APIKeyEnv,
			SystemInstruction: cfg.SystemPrompt,
		}, nil)
		if err != nil {
			return nil, err
		}
		next = Func(c.Prompt)
	case config.OracleTypeExec:
		useTTY := false
		if cfg.UseTTY != nil {
			useTTY = *cfg.UseTTY
		}
		r, err := execagent.New(execagent.Config{
			Agent:        cfg.Agent,
			Cmd:          cfg.Cmd,
			Model:        cfg.Model,
			UseTTY:       useTTY,
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			return nil, err
		}
		next = Func(r.Prompt)
	default:
		return nil, fmt.Errorf("unknown oracle type %q", cfg.Type)
	}
	return WithTimeout(next, cfg.Type, cfg.Timeout), nil
}
