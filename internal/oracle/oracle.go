// Package oracle wraps the external language model used for extraction,
// conflict analysis, question generation and code generation.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/metalagman/socratic/internal/model"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/metalagman/socratic/internal/oracle")

// Oracle completes a prompt with raw model text. Implementations give no
// structural guarantees about the returned text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type guarded struct {
	next    Oracle
	name    string
	timeout time.Duration
}

// WithTimeout enforces timeout on every call, even when next ignores its context.
func WithTimeout(next Oracle, name string, timeout time.Duration) Oracle {
	return &guarded{next: next, name: name, timeout: timeout}
}

type completion struct {
	text string
	err  error
}

func (g *guarded) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "oracle.complete")
	defer span.End()
	span.SetAttributes(attribute.String("oracle.backend", g.name), attribute.Int("oracle.prompt_len", len(prompt)))

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan completion, 1)
	go func() {
		text, err := g.next.Complete(ctx, prompt)
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case res = <-done:
	case <-ctx.Done():
		res = completion{err: ctx.Err()}
	}

	event := log.Debug().Str("backend", g.name).Dur("duration", time.Since(started)).Int("response_len", len(res.text))
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "oracle call failed")
		event = event.Err(res.err)
	}
	event.Msg("oracle call")
	return res.text, res.err
}

// Call runs prompt through o and types any failure as a model.OracleError for op.
func Call(ctx context.Context, o Oracle, op, prompt string) (string, error) {
	if o == nil {
		return "", &model.OracleError{Op: op, Err: errors.New("oracle is not configured")}
	}
	text, err := o.Complete(ctx, prompt)
	if err != nil {
		var oe *model.OracleError
		if errors.As(err, &oe) {
			return "", err
		}
		return "", &model.OracleError{Op: op, Err: err}
	}
	return text, nil
}

// Script returns an Oracle that replays responses in order. It fails once the
// script is exhausted. Intended for tests and dry runs.
func Script(responses ...string) Oracle {
	var mu sync.Mutex
	idx := 0
	return Func(func(_ context.Context, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(responses) {
			return "", fmt.Errorf("script exhausted after %d responses", len(responses))
		}
		out := responses[idx]
		idx++
		return out, nil
	})
}

type lazy struct {
	once  sync.Once
	build func() (Oracle, error)
	next  Oracle
	err   error
}

// Lazy defers building the backend until the first call, so commands that never
// consult the model do not need its credentials. A build failure is returned
// from every call.
func Lazy(build func() (Oracle, error)) Oracle {
	return &lazy{build: build}
}

func (l *lazy) Complete(ctx context.Context, prompt string) (string, error) {
	l.once.Do(func() {
		l.next, l.err = l.build()
	})
	if l.err != nil {
		return "", l.err
	}
	return l.next.Complete(ctx, prompt)
}
