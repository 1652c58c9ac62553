// Package execagent runs a local coding-agent CLI (codex, claude, gemini,
// opencode or a custom command) as the oracle backend.
package execagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/ainvoke"
	"github.com/rs/zerolog/log"
)

const inputSchema = `{
  "type": "object",
  "required": ["prompt"],
  "properties": {"prompt": {"type": "string"}}
}`

const outputSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {"text": {"type": "string"}}
}`

// Config selects the agent CLI.
type Config struct {
	// Agent is one of codex, claude, gemini, opencode. Ignored when Cmd is set.
	Agent        string
	Cmd          []string
	Model        string
	UseTTY       bool
	SystemPrompt string
	// WorkDir is where per-call run directories are created. Defaults to os.TempDir.
	WorkDir string
}

type agentSpec struct {
	subcommand string
	extraFlags []string
}

var agentSpecs = map[string]agentSpec{
	"codex":    {subcommand: "exec", extraFlags: []string{"--full-auto", "--skip-git-repo-check"}},
	"opencode": {subcommand: "run"},
	"gemini":   {extraFlags: []string{"--output-format", "text", "--approval-mode", "yolo"}},
	"claude":   {extraFlags: []string{"--output-format", "text", "--print", "--dangerously-skip-permissions"}},
}

// Runner invokes the agent once per prompt.
type Runner struct {
	cfg    Config
	cmd    []string
	runner ainvoke.Runner
}

// New builds a runner for cfg.
func New(cfg Config) (*Runner, error) {
	var cmd []string
	switch {
	case len(cfg.Cmd) > 0:
		cmd = cfg.Cmd
	case cfg.Agent != "":
		spec, ok := agentSpecs[cfg.Agent]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", cfg.Agent)
		}
		cmd = prepareCmd(cfg.Agent, spec, cfg.Model)
	default:
		return nil, errors.New("exec oracle requires agent or cmd")
	}

	ar, err := ainvoke.NewRunner(ainvoke.AgentConfig{Cmd: cmd, UseTTY: cfg.UseTTY})
	if err != nil {
		return nil, fmt.Errorf("create agent runner: %w", err)
	}
	return &Runner{cfg: cfg, cmd: cmd, runner: ar}, nil
}

func prepareCmd(base string, spec agentSpec, model string) []string {
	out := []string{base}
	if spec.subcommand != "" {
		out = append(out, spec.subcommand)
	}
	if model != "" {
		out = append(out, "--model", model)
	}
	return append(out, spec.extraFlags...)
}

// Command returns the resolved command line.
func (r *Runner) Command() []string {
	return append([]string(nil), r.cmd...)
}

// Prompt runs the agent in a fresh run directory and returns its text answer.
func (r *Runner) Prompt(ctx context.Context, prompt string) (string, error) {
	runDir, err := os.MkdirTemp(r.cfg.WorkDir, "socratic-oracle-*")
	if err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(runDir) }()

	var stderr bytes.Buffer
	inv := ainvoke.Invocation{
		RunDir:       runDir,
		SystemPrompt: systemPrompt(r.cfg.SystemPrompt),
		Input:        map[string]string{"prompt": prompt},
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
	}
	out, _, exitCode, err := r.runner.Run(ctx, inv,
		ainvoke.WithStdout(io.Discard),
		ainvoke.WithStderr(&stderr))
	if err != nil {
		return "", fmt.Errorf("agent %s exited with code %d: %w: %s", r.cmd[0], exitCode, err, strings.TrimSpace(stderr.String()))
	}

	text, err := decodeOutput(out, filepath.Join(runDir, "output.json"))
	if err != nil {
		return "", err
	}
	log.Debug().Strs("cmd", r.cmd).Int("exit_code", exitCode).Int("response_len", len(text)).Msg("agent completion")
	return text, nil
}

func decodeOutput(out []byte, outputPath string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err == nil && resp.Text != "" {
		return resp.Text, nil
	}
	if data, err := os.ReadFile(outputPath); err == nil {
		if err := json.Unmarshal(data, &resp); err == nil && resp.Text != "" {
			return resp.Text, nil
		}
	}
	if text := strings.TrimSpace(string(out)); text != "" {
		return text, nil
	}
	return "", errors.New("agent produced no output")
}

func systemPrompt(extra string) string {
	var b strings.Builder
	b.WriteString("You answer a single prompt for a requirements-gathering tool.\n")
	b.WriteString("- Read the prompt from 'input.json' field 'prompt'.\n")
	b.WriteString("- Do NOT modify any files other than 'output.json'.\n")
	b.WriteString("- Write your complete answer to 'output.json' as {\"text\": \"...\"}.\n")
	b.WriteString("- When the prompt asks for JSON, the 'text' field must hold that JSON verbatim.\n")
	if extra = strings.TrimSpace(extra); extra != "" {
		b.WriteString(extra)
		b.WriteString("\n")
	}
	return b.String()
}
