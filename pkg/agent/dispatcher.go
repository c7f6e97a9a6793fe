package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/resilience"
)

// Tool result statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
	StatusUnknown = "unknown_tool"
)

// MetaIdempotency is added to tool arguments so side-effecting tools can dedupe retries.
const MetaIdempotency = "idempotency_key"

var ErrToolTimeout = errors.New("tool timeout")

type ToolDispatcherOptions struct {
	Concurrency  int
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	Call     llm.ToolCall
	Content  string
	Status   string
	Err      error
	Duration time.Duration
}

// ToolDispatcher runs a round of tool calls concurrently, each with its own
// timeout and retry budget. Results keep the order of the calls.
type ToolDispatcher struct {
	registry llm.ToolRegistry
	opts     ToolDispatcherOptions
	logger   *slog.Logger
}

func NewToolDispatcher(registry llm.ToolRegistry, opts ToolDispatcherOptions) *ToolDispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 150 * time.Millisecond
	}
	return &ToolDispatcher{registry: registry, opts: opts, logger: slog.Default()}
}

// SetLogger replaces the dispatcher logger.
func (d *ToolDispatcher) SetLogger(logger *slog.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Dispatch runs calls and returns one result per call. A failed call never
// fails the round; only ctx cancellation does.
func (d *ToolDispatcher) Dispatch(ctx context.Context, turnID string, calls []llm.ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, len(calls))
	known := d.known()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for i, call := range calls {
		g.Go(func() error {
			start := time.Now()
			res := ToolResult{Call: call, Status: StatusOK}
			if _, ok := known[call.Name]; !ok {
				res.Status = StatusUnknown
				res.Err = errorsx.New(errorsx.ReasonToolUnknown, fmt.Sprintf("unknown tool %q", call.Name))
			} else {
				args := withIdempotency(call.Arguments, turnID, call.ID)
				res.Content, res.Err = d.callWithRetry(gctx, call.Name, args)
				if res.Err != nil {
					res.Status = StatusError
					if errors.Is(res.Err, ErrToolTimeout) {
						res.Status = StatusTimeout
					}
				}
			}
			if res.Err != nil {
				res.Content = "error: " + res.Err.Error()
				d.logger.Warn("tool_call_failed", "tool", call.Name, "status", res.Status, "reason_code", string(errorsx.Reason(res.Err)), "error", res.Err)
			}
			res.Duration = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *ToolDispatcher) known() map[string]struct{} {
	out := map[string]struct{}{}
	if d.registry == nil {
		return out
	}
	for _, t := range d.registry.Tools() {
		out[t.Name] = struct{}{}
	}
	return out
}

func (d *ToolDispatcher) callWithRetry(ctx context.Context, name string, args map[string]any) (string, error) {
	var result string
	policy := resilience.NewRetryPolicy(d.opts.Retries, d.opts.RetryBackoff)
	err := policy.Do(ctx, func(ctx context.Context) error {
		out, err := d.callWithTimeout(ctx, name, args)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		reason := errorsx.ReasonToolCall
		if errors.Is(err, ErrToolTimeout) {
			reason = errorsx.ReasonToolTimeout
		}
		return "", errorsx.Wrap(err, reason)
	}
	return result, nil
}

// callWithTimeout also bounds tools that ignore their context.
func (d *ToolDispatcher) callWithTimeout(ctx context.Context, name string, args map[string]any) (string, error) {
	if d.opts.Timeout <= 0 {
		return d.registry.HandleTool(ctx, name, args)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		res, err := d.registry.HandleTool(callCtx, name, args)
		ch <- result{text: res, err: err}
	}()
	select {
	case out := <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", ErrToolTimeout
		}
		return out.text, out.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrToolTimeout
	}
}

func withIdempotency(args map[string]any, turnID, callID string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	if _, ok := out[MetaIdempotency]; !ok {
		if turnID == "" && callID == "" {
			out[MetaIdempotency] = fmt.Sprintf("tool-%d", time.Now().UnixNano())
		} else {
			out[MetaIdempotency] = turnID + ":" + callID
		}
	}
	return out
}
