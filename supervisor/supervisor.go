package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/model"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/tool"
)

const (
	// ToolName is the name of the escalation tool.
	ToolName = "escalate_to_supervisor"
	// ArgContext is the single argument of the escalation tool.
	ArgContext = "relevant_context_from_last_user_message"
	// CodeEscalationFailed marks a failed escalation result.
	CodeEscalationFailed = "ESCALATION_FAILED"
	// FallbackMessage is returned to the front agent on any failure.
	FallbackMessage = "I'm sorry, something went wrong on my end. Let me connect you with a member of our team who can help."
	// DefaultMaxIterations bounds the nested reasoning loop.
	DefaultMaxIterations = core.DefaultIterationLimit
	// DefaultTimeout bounds the whole escalation.
	DefaultTimeout = 20 * time.Second
)

// Breadcrumb titles recorded for nested tool calls.
const (
	TitleFunctionCall       = "supervisor function call: "
	TitleFunctionCallResult = "supervisor function call result: "
)

// ErrIterationBudget is returned when the nested loop exhausts its budget.
var ErrIterationBudget = errors.New("escalation iteration budget exhausted")

// ErrEmptyAnswer is returned when the reasoning model answers with neither
// text nor tool calls.
var ErrEmptyAnswer = errors.New("escalation produced an empty answer")

const defaultInstructions = `You are a supervisor assisting a junior voice agent that is talking to a customer in real time.
You receive the conversation so far and the most relevant context from the last user message.
Use your tools when facts are needed. Reply with exactly what the junior agent should say next,
concise and suitable for speech.`

// Options configures the escalation tool.
type Options struct {
	// MaxIterations bounds the reasoning calls of one escalation. Values <= 0
	// fall back to DefaultMaxIterations.
	MaxIterations int
	// Timeout bounds the whole escalation including nested tools. Values <= 0
	// fall back to DefaultTimeout.
	Timeout time.Duration
	// Tools are available to the reasoning model. Nil means none.
	Tools *tool.Registry
	// Instructions is the system prompt of the reasoning call.
	Instructions string
	// Model overrides the adapter's default model identifier.
	Model string
	// FallbackMessage is what the front agent is told on failure.
	FallbackMessage string
	// Description is the tool description exposed to the front agent.
	Description string
}

// Supervisor is the escalation tool. It is safe for concurrent use.
type Supervisor struct {
	llm  model.Model
	opts Options
}

// New creates the escalation tool backed by llm.
func New(llm model.Model, optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		MaxIterations:   DefaultMaxIterations,
		Timeout:         DefaultTimeout,
		Instructions:    defaultInstructions,
		FallbackMessage: FallbackMessage,
		Description: "Escalate to a more capable supervisor to decide the next response. " +
			"Use it for anything beyond greetings and collecting basic information. " +
			"Say a short filler phrase before calling it.",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Supervisor{llm: llm, opts: opts}
}

// Name implements tool.Tool.
func (s *Supervisor) Name() string { return ToolName }

// Description implements tool.Tool.
func (s *Supervisor) Description() string { return s.opts.Description }

// Parameters implements tool.Tool.
func (s *Supervisor) Parameters() *jsonschema.Schema {
	return schema.Object(schema.Required(ArgContext, schema.String(
		"Key information from the user's most recent message. Be succinct; the supervisor also receives the full conversation.",
	)))
}

// ResultSchema implements tool.ResultDeclarer.
func (s *Supervisor) ResultSchema() *jsonschema.Schema {
	return schema.Object(schema.Required("next_response", schema.String("What the agent should say next.")))
}

// Call runs the bounded escalation loop. Failures are reported as a
// ToolError with code ESCALATION_FAILED whose message is the fallback text.
func (s *Supervisor) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	summary, _ := args[ArgContext].(string)

	ctx, cancel := context.WithTimeout(tc.Context(), s.opts.Timeout)
	defer cancel()
	loopCtx := tc.WithContext(ctx)

	start := time.Now()
	answer, stats, err := s.run(loopCtx, summary)
	dur := time.Since(start)

	if ml, ok := tc.Logger().(*logging.MeshLogger); ok {
		ml.LogReasoningCall(s.modelName(), stats.tokens, dur, err == nil, err)
	}

	if err != nil {
		tc.LogWarn("supervisor.escalation.failed", "iterations", stats.iterations, "error", err.Error())
		tc.Emit(observability.EventEscalationFailed, observability.LevelError, map[string]any{
			"iterations":  stats.iterations,
			"duration_ms": dur.Milliseconds(),
			"error":       err.Error(),
		})
		return nil, &tool.ToolError{
			Tool:    ToolName,
			Message: s.opts.FallbackMessage,
			Code:    CodeEscalationFailed,
			Details: err.Error(),
		}
	}

	tc.Emit(observability.EventEscalationCompleted, observability.LevelInfo, map[string]any{
		"iterations":  stats.iterations,
		"duration_ms": dur.Milliseconds(),
		"tool_calls":  stats.toolCalls,
	})
	return map[string]any{"next_response": answer}, nil
}

type runStats struct {
	iterations int
	toolCalls  int
	tokens     int
}

func (s *Supervisor) run(tc *core.ToolContext, summary string) (string, runStats, error) {
	var stats runStats
	ctx := tc.Context()

	req, err := s.buildRequest(tc, summary)
	if err != nil {
		return "", stats, err
	}

	budget := core.NewIterationBudget(s.opts.MaxIterations)
	for {
		if err := budget.Spend(); err != nil {
			return "", stats, fmt.Errorf("%w: %w", ErrIterationBudget, err)
		}
		if err := ctx.Err(); err != nil {
			return "", stats, err
		}
		stats.iterations = budget.Count()

		resp, err := s.generate(ctx, req)
		if err != nil {
			return "", stats, fmt.Errorf("reasoning call: %w", err)
		}
		if resp == nil {
			return "", stats, ErrEmptyAnswer
		}
		if resp.Usage != nil {
			stats.tokens += resp.Usage.TotalTokens
		}

		if !resp.HasToolCalls() {
			answer := strings.TrimSpace(resp.Content)
			if answer == "" {
				return "", stats, ErrEmptyAnswer
			}
			return answer, stats, nil
		}

		req.Messages = append(req.Messages, model.AssistantMessage(resp.Content, resp.ToolCalls...))
		for _, call := range resp.ToolCalls {
			output, err := s.execute(tc, call)
			if err != nil {
				return "", stats, err
			}
			stats.toolCalls++
			req.Messages = append(req.Messages, model.ToolMessage(call.ID, output))
		}
	}
}

// within runs fn on its own goroutine and returns as soon as either fn
// finishes or ctx is done. A call abandoned on ctx expiry keeps running in
// the background; its result is discarded.
func within[T any](ctx context.Context, fn func() T) (T, error) {
	done := make(chan T, 1)
	go func() { done <- fn() }()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type generated struct {
	resp *model.Response
	err  error
}

func (s *Supervisor) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	g, err := within(ctx, func() generated {
		resp, err := s.llm.Generate(ctx, req)
		return generated{resp: resp, err: err}
	})
	if err != nil {
		return nil, err
	}
	return g.resp, g.err
}

func (s *Supervisor) execute(tc *core.ToolContext, call model.ToolCall) (string, error) {
	nestedCall := core.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
	nested := tc.Nested(nestedCall)

	tc.AddBreadcrumb(TitleFunctionCall+nestedCall.Name, map[string]any{
		"call_id":   nestedCall.ID,
		"arguments": nestedCall.Arguments,
	})

	res, err := within(tc.Context(), func() tool.Result {
		return tool.Execute(nested, s.opts.Tools, nestedCall)
	})
	if err != nil {
		tc.LogWarn("supervisor.tool.abandoned", "tool", nestedCall.Name, "error", err.Error())
		return "", err
	}

	data := res.Data()
	data["call_id"] = nestedCall.ID
	tc.AddBreadcrumb(TitleFunctionCallResult+nestedCall.Name, data)

	if a := nested.Actions(); a.TransferToAgent != nil || a.Disconnect != nil {
		tc.LogWarn("supervisor.tool.actions_ignored", "tool", nestedCall.Name)
	}
	return res.Output(), nil
}

func (s *Supervisor) buildRequest(tc *core.ToolContext, summary string) (model.Request, error) {
	type line struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	var history []line
	for _, it := range tc.Messages() {
		history = append(history, line{Role: string(it.Role), Text: it.Text})
	}
	b, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return model.Request{}, fmt.Errorf("encode conversation: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("==== Conversation History ====\n")
	prompt.Write(b)
	prompt.WriteString("\n\n==== Relevant Context From Last User Message ====\n")
	prompt.WriteString(summary)

	req := model.Request{
		Model: s.opts.Model,
		Messages: []model.Message{
			model.SystemMessage(s.opts.Instructions),
			model.UserMessage(prompt.String()),
		},
	}

	specs, err := s.opts.Tools.Specs()
	if err != nil {
		return model.Request{}, err
	}
	for _, spec := range specs {
		req.Tools = append(req.Tools, model.ToolDefinitionFromSpec(spec))
	}
	return req, nil
}

func (s *Supervisor) modelName() string {
	if s.opts.Model != "" {
		return s.opts.Model
	}
	return s.llm.Info().Name
}
