package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dusk-indust/evalbuilder/internal/agent"
	"github.com/dusk-indust/evalbuilder/internal/llm"
)

// errEmptyOutput reports a sub-agent reply without any text.
var errEmptyOutput = errors.New("sub-agent returned no text")

// emitFunc sends an event to the current turn.
type emitFunc func(Event)

// sequencer runs single stage invocations: the coordinator's tool call to a
// sub-agent, the sub-agent's model/tool loop and the output emission.
type sequencer struct {
	cfg      Config
	registry *agent.Registry
	policy   *PolicyEngine
	fanout   *agent.FanOut
	tracer   trace.Tracer
	logger   *zap.Logger
}

func newSequencer(cfg Config, registry *agent.Registry, policy *PolicyEngine) *sequencer {
	return &sequencer{
		cfg:      cfg,
		registry: registry,
		policy:   policy,
		fanout:   agent.NewFanOut(agent.Hooks{Logger: cfg.Logger}),
		tracer:   otel.Tracer("evalbuilder/orchestrator"),
		logger:   cfg.Logger,
	}
}

// runStage invokes the stage's sub-agent with input, stores the output
// verbatim under the stage's output key and emits the tool call, its result
// and the four-part output. It returns the policy decision for the sub-agent
// so the caller can suspend at the gate.
func (s *sequencer) runStage(ctx context.Context, model llm.Model, st *State, stage Stage, input string, emit emitFunc) (string, PolicyResult, error) {
	spec := stage.Spec()

	ctx, span := s.tracer.Start(ctx, "orchestrator.stage", trace.WithAttributes(
		attribute.String("stage", stage.String()),
		attribute.String("tool", spec.AgentName),
	))
	defer span.End()

	sub, err := s.registry.Lookup(spec.AgentName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", PolicyResult{}, &UpstreamError{Stage: stage, Tool: spec.AgentName, Err: err}
	}

	callID := uuid.NewString()
	emit(NewEvent(agent.CoordinatorName, ToolCallRequest{
		ID:   callID,
		Name: spec.AgentName,
		Args: map[string]any{"request": input},
	}))

	decision := s.policy.Evaluate(spec.AgentName)
	span.SetAttributes(attribute.String("policy", decision.Outcome.String()))

	output, err := s.invoke(ctx, model, sub, input, emit)
	if err != nil {
		stageInvocations.WithLabelValues(stage.String(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", decision, &UpstreamError{Stage: stage, Tool: spec.AgentName, Err: err}
	}
	stageInvocations.WithLabelValues(stage.String(), "ok").Inc()

	st.Set(spec.OutputKey, output)
	st.Set(KeyCoordinatorOutput, output)

	emit(NewEvent(agent.CoordinatorName, ToolCallResult{
		ID:       callID,
		Name:     spec.AgentName,
		Response: map[string]any{"output": output},
	}))
	emit(NewEvent(agent.CoordinatorName, stageOutputParts(spec, output)...))

	s.logger.Debug("stage output committed",
		zap.String("stage", stage.String()),
		zap.String("tool", spec.AgentName),
		zap.Int("bytes", len(output)))

	return output, decision, nil
}

// invoke runs the sub-agent's model/tool loop and returns its final text.
func (s *sequencer) invoke(ctx context.Context, model llm.Model, sub *agent.SubAgent, input string, emit emitFunc) (string, error) {
	contents := []llm.Content{llm.TextContent(llm.RoleUser, input)}

	for round := 0; ; round++ {
		resp, err := model.Generate(ctx, &llm.Request{
			Model:             s.cfg.Model,
			SystemInstruction: sub.Instruction,
			Contents:          contents,
			Functions:         sub.FunctionDecls(),
			GoogleSearch:      sub.GoogleSearch,
		})
		if err != nil {
			return "", err
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			text := resp.Text()
			if text == "" {
				return "", errEmptyOutput
			}
			return text, nil
		}
		if round >= s.cfg.MaxToolRounds {
			return "", fmt.Errorf("sub-agent exceeded %d tool rounds", s.cfg.MaxToolRounds)
		}

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = uuid.NewString()
			}
		}
		contents = append(contents, modelTurn(resp, calls))

		allowed, refused := s.screen(calls)
		emit(NewEvent(sub.Name, toolRequests(calls)...))

		results, err := s.fanout.Run(ctx, sub, allowed)
		if err != nil {
			return "", err
		}
		results = append(results, refused...)
		results = inCallOrder(calls, results)

		emit(NewEvent(sub.Name, toolResults(results)...))
		contents = append(contents, responseTurn(results))
	}
}

// screen splits calls by policy. A sub-agent cannot trigger a nested
// confirmation; such calls are answered with an error result.
func (s *sequencer) screen(calls []llm.FunctionCall) (allowed []llm.FunctionCall, refused []agent.CallResult) {
	for _, c := range calls {
		if s.policy.Evaluate(c.Name).Outcome == OutcomeConfirm {
			refused = append(refused, agent.CallResult{
				Call:     c,
				Response: agent.ErrorResult(fmt.Sprintf("tool %q requires user confirmation and cannot be called here", c.Name)),
			})
			continue
		}
		allowed = append(allowed, c)
	}
	return allowed, refused
}

func inCallOrder(calls []llm.FunctionCall, results []agent.CallResult) []agent.CallResult {
	byID := make(map[string]agent.CallResult, len(results))
	for _, r := range results {
		byID[r.Call.ID] = r
	}
	ordered := make([]agent.CallResult, 0, len(calls))
	for _, c := range calls {
		ordered = append(ordered, byID[c.ID])
	}
	return ordered
}

// modelTurn rebuilds the model's reply with the call ids filled in.
func modelTurn(resp *llm.Response, calls []llm.FunctionCall) llm.Content {
	out := llm.Content{Role: llm.RoleModel}
	n := 0
	for _, p := range resp.Content.Parts {
		if p.FunctionCall != nil {
			c := calls[n]
			n++
			out.Parts = append(out.Parts, llm.Part{FunctionCall: &c})
			continue
		}
		out.Parts = append(out.Parts, p)
	}
	return out
}

func responseTurn(results []agent.CallResult) llm.Content {
	out := llm.Content{Role: llm.RoleUser}
	for _, r := range results {
		out.Parts = append(out.Parts, llm.Part{FunctionResponse: &llm.FunctionResponse{
			ID:       r.Call.ID,
			Name:     r.Call.Name,
			Response: r.Response,
		}})
	}
	return out
}

func toolRequests(calls []llm.FunctionCall) []Part {
	parts := make([]Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, ToolCallRequest{ID: c.ID, Name: c.Name, Args: c.Args})
	}
	return parts
}

func toolResults(results []agent.CallResult) []Part {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, ToolCallResult{ID: r.Call.ID, Name: r.Call.Name, Response: r.Response})
	}
	return parts
}
