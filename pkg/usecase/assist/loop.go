package assist

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/policy"
	"github.com/k-taniguchi/sidekick/pkg/repository"
	"github.com/k-taniguchi/sidekick/pkg/tool"
	"github.com/k-taniguchi/sidekick/pkg/tool/channels"
	"github.com/k-taniguchi/sidekick/pkg/tool/handoff"
	"github.com/k-taniguchi/sidekick/pkg/tool/memory"
	"github.com/k-taniguchi/sidekick/pkg/usecase/reflect"
	"github.com/k-taniguchi/sidekick/pkg/utils/logging"
)

// historyWindow caps how many past turns feed the model.
const historyWindow = 20

// runLoop drives Modeling and ToolDispatch until the model emits a
// final answer or the iteration budget runs out. Each tool result is
// appended to the transcript before the next model consultation. An
// error return means the model boundary failed; tool faults never
// surface here.
func (m *Manager) runLoop(ctx context.Context, session *model.Session, event model.InboundEvent) (*model.Turn, error) {
	logger := logging.From(ctx)

	contents := historyContents(session)
	contents = append(contents, genai.NewContentFromText(event.Text, genai.RoleUser))

	role := session.ActiveRole
	registry, director, err := m.buildRegistry(ctx, session.UserID, role)
	if err != nil {
		return nil, err
	}

	var toolCalls []model.ToolCall
	maxIterations := m.cfg.maxIterations()

	for i := 0; i < maxIterations; i++ {
		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(m.systemPrompt(ctx, session, role, registry), ""),
		}
		if specs := registry.Specs(); specs != nil {
			config.Tools = specs
		}

		resp, err := m.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return nil, goerr.Wrap(err, "model invocation failed",
				goerr.V("thread", session.ThreadID), goerr.V("iteration", i))
		}

		hasFunctionCall := false
		var roundText strings.Builder
		var functionResponses []*genai.Part

		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					if roundText.Len() > 0 {
						roundText.WriteString("\n")
					}
					roundText.WriteString(part.Text)
				}

				if part.FunctionCall == nil {
					continue
				}
				hasFunctionCall = true

				funcResp := m.dispatch(ctx, role, registry, *part.FunctionCall)
				toolCalls = append(toolCalls, model.ToolCall{
					Name:   part.FunctionCall.Name,
					Args:   part.FunctionCall.Args,
					Result: responseResult(funcResp),
				})
				functionResponses = append(functionResponses, &genai.Part{FunctionResponse: funcResp})
			}
		}

		// Tool results join the transcript before the next model call,
		// in order, as one content.
		if len(functionResponses) > 0 {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: functionResponses,
			})
		}

		// A handoff directive transitions within the same turn and is
		// consumed exactly once.
		if target, ok := director.Consume(); ok {
			next, err := applyHandoff(role, target)
			if err != nil {
				logger.Warn("ignoring invalid handoff",
					"from", role, "to", target)
			} else if next != role {
				role = next
				session.ActiveRole = next
				registry, director, err = m.buildRegistry(ctx, session.UserID, role)
				if err != nil {
					return nil, err
				}
				continue
			}
		}

		if !hasFunctionCall {
			return &model.Turn{
				ID:        model.NewTurnID(),
				Role:      role,
				Input:     event.Text,
				ToolCalls: toolCalls,
				Output:    strings.TrimSpace(roundText.String()),
				CreatedAt: now(),
			}, nil
		}
	}

	// Budget exhausted; end the turn with a degraded response rather
	// than looping forever.
	return &model.Turn{
		ID:        model.NewTurnID(),
		Role:      role,
		Input:     event.Text,
		ToolCalls: toolCalls,
		Output:    fallbackUnableToComplete,
		CreatedAt: now(),
	}, nil
}

// dispatch runs the Approval and ToolDispatch states for one requested
// capability call. Every outcome becomes a structured FunctionResponse
// the model can observe; nothing propagates as a session fault.
func (m *Manager) dispatch(ctx context.Context, role model.Role, registry *tool.Registry, fc genai.FunctionCall) *genai.FunctionResponse {
	logger := logging.From(ctx)

	approved, err := m.approve(ctx, role, registry, fc)
	if err != nil {
		logger.Warn("approval policy failed", "capability", fc.Name, "error", err)
		approved = false
	}
	if !approved {
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"error": "call was denied by the approval policy"},
		}
	}

	funcResp, err := registry.Execute(ctx, fc)
	if err != nil {
		// Unknown capability or argument validation failure: correctable
		// by the model, never fatal.
		return &genai.FunctionResponse{
			Name:     fc.Name,
			Response: map[string]any{"error": err.Error()},
		}
	}
	return funcResp
}

func (m *Manager) approve(ctx context.Context, role model.Role, registry *tool.Registry, fc genai.FunctionCall) (bool, error) {
	if m.approver == nil {
		return true, nil
	}
	return m.approver.Approve(ctx, policy.Input{
		Role:       role,
		Capability: fc.Name,
		Args:       fc.Args,
		ReadOnly:   registry.IsReadOnly(fc.Name),
	})
}

// buildRegistry assembles the capability set for one role. Memory
// capabilities are bound to the role's private scope and the user's
// shared scope here, at registration time.
func (m *Manager) buildRegistry(ctx context.Context, userID string, role model.Role) (*tool.Registry, *handoff.Handoff, error) {
	private := repository.NewHandle(m.store, model.RoleScope(userID, role))
	shared := repository.NewHandle(m.store, model.SharedScope(userID))
	search := repository.NewHandle(m.store, model.UserScope(userID))

	director := handoff.New()

	tools := []tool.Tool{
		channels.New(
			channels.WithLookback(m.cfg.LookbackDays),
			channels.WithMinPosts(m.cfg.MinPosts),
		),
		memory.New(private, shared, search),
		director,
	}
	tools = append(tools, m.extraTools...)

	registry := tool.New(tools...)
	if err := registry.Init(ctx, &tool.Client{
		Store:  m.store,
		Source: m.source,
		Gemini: m.gemini,
	}); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize capability registry")
	}

	return registry, director, nil
}

// systemPrompt combines the role's current instructions with the tool
// prompts and the conversation context.
func (m *Manager) systemPrompt(ctx context.Context, session *model.Session, role model.Role, registry *tool.Registry) string {
	instructions, err := reflect.Instructions(ctx, m.store, session.UserID, role)
	if err != nil {
		logging.From(ctx).Warn("failed to load role instructions, using defaults",
			"role", role, "error", err)
		instructions = ""
	}

	var b strings.Builder
	b.WriteString(instructions)
	if prompts := registry.Prompts(ctx); prompts != "" {
		b.WriteString("\n\n")
		b.WriteString(prompts)
	}
	b.WriteString("\n\nYou are talking to user ")
	b.WriteString(session.UserID)
	b.WriteString(" in thread ")
	b.WriteString(session.ThreadID)
	b.WriteString(".")
	return b.String()
}

// historyContents rebuilds model contents from the committed transcript.
func historyContents(session *model.Session) []*genai.Content {
	turns := session.Transcript
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}

	contents := make([]*genai.Content, 0, len(turns)*2)
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Input, genai.RoleUser))
		if turn.Output != "" {
			contents = append(contents, genai.NewContentFromText(turn.Output, genai.RoleModel))
		}
	}
	return contents
}

// responseResult flattens a FunctionResponse for the turn record.
func responseResult(resp *genai.FunctionResponse) string {
	if resp == nil {
		return ""
	}
	if result, ok := resp.Response["result"].(string); ok {
		return result
	}
	if errMsg, ok := resp.Response["error"].(string); ok {
		return "Error: " + errMsg
	}
	return ""
}
