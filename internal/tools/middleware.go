package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/openproject-mcp/internal/audit"
	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
)

// Recorder persists one entry per tool call. *audit.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) (audit.Entry, error)
}

// Middleware tags every call with a correlation id, logs it with its
// duration and outcome, and records it when rec is non-nil. Argument
// values are never logged; only their hash is stored.
func Middleware(log *logger.Logger, rec Recorder) server.ToolHandlerMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id := uuid.NewString()
			ctx = logger.WithCallID(ctx, id)
			tool := req.Params.Name

			start := time.Now()
			res, err := next(ctx, req)
			took := time.Since(start)

			outcome, code := classify(res, err)
			ev := logger.C(ctx, log).Info()
			if outcome == audit.OutcomeError {
				ev = logger.C(ctx, log).Warn().Str("code", code)
			}
			ev.Str("tool", tool).Dur("took", took).Str("outcome", string(outcome)).Msg("tool call")

			if rec != nil {
				entry := audit.Entry{
					ID:         id,
					Tool:       tool,
					ArgsHash:   audit.HashArgs(req.GetArguments()),
					Outcome:    outcome,
					ErrorCode:  code,
					DurationMS: took.Milliseconds(),
				}
				if _, rerr := rec.Record(context.WithoutCancel(ctx), entry); rerr != nil {
					logger.C(ctx, log).Warn().Err(rerr).Str("tool", tool).Msg("audit record failed")
				}
			}
			return res, err
		}
	}
}

// classify derives the outcome and error code of a finished call. Error
// results carry the wire payload; anything else is internal.
func classify(res *mcp.CallToolResult, err error) (audit.Outcome, string) {
	if err != nil {
		return audit.OutcomeError, string(errs.CodeOf(err))
	}
	if res == nil || !res.IsError {
		return audit.OutcomeOK, ""
	}
	for _, c := range res.Content {
		tc, ok := c.(mcp.TextContent)
		if !ok {
			continue
		}
		var w errs.Wire
		if json.Unmarshal([]byte(tc.Text), &w) == nil && w.Code != "" {
			return audit.OutcomeError, string(w.Code)
		}
	}
	return audit.OutcomeError, string(errs.CodeInternal)
}
