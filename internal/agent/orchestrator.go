package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/internal/telemetry"
	"github.com/taskpilot/taskpilot/tools"
)

// DefaultMaxHistoryMessages caps the transcript window replayed to the model.
const DefaultMaxHistoryMessages = 100

const systemPrompt = "You are a task management assistant. You help the user manage their " +
	"personal task list through the provided tools. Use the tools for every " +
	"task lookup or change; never invent task ids or claim a change you did " +
	"not make. When a tool reports an error, tell the user plainly what went " +
	"wrong. Keep replies short."

// maxTitleRunes bounds the lazily derived conversation title.
const maxTitleRunes = 48

type Orchestrator struct {
	gateway    *provider.Gateway
	store      *store.Store
	maxHistory int
}

// ToolCall summarizes one requested tool invocation for the caller.
type ToolCall struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// Result is the outcome of one successful turn.
type Result struct {
	Reply          string
	ConversationID uuid.UUID
	ToolCalls      []ToolCall
}

func New(gateway *provider.Gateway, st *store.Store) *Orchestrator {
	return &Orchestrator{gateway: gateway, store: st, maxHistory: DefaultMaxHistoryMessages}
}

// toolResultRecord is the persisted form of one tool outcome; it doubles as
// the tool-result message content so transcript replay stays self-describing.
type toolResultRecord struct {
	Tool   string `json:"tool"`
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// invocationRecord carries the audit fields for one requested tool call.
type invocationRecord struct {
	name      string
	arguments string
	result    string
	errText   string
}

// Handle runs one chat turn for owner. conversationID may be nil, in which
// case a conversation is created lazily. On gateway failure the already
// persisted user message remains so a retry replays it.
func (o *Orchestrator) Handle(ctx context.Context, owner uuid.UUID, messageText string, conversationID *uuid.UUID) (*Result, error) {
	if strings.TrimSpace(messageText) == "" {
		return nil, ErrInvalidMessage
	}

	turnID, ok := telemetry.TurnIDFromContext(ctx)
	if !ok {
		turnID = fmt.Sprintf("turn-%d", time.Now().UnixNano())
		ctx = telemetry.WithTurnID(ctx, turnID)
	}

	conv, err := o.resolveConversation(ctx, owner, conversationID, messageText)
	if err != nil {
		return nil, err
	}

	if _, err := o.store.AppendMessage(ctx, conv.ID, store.RoleUser, messageText); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	transcript, err := o.store.ListMessages(ctx, conv.ID, o.maxHistory)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	window := replayTranscript(transcript)

	defs := tools.Registry(o.store, owner)
	toolParams := anthropicTools(defs)

	telemetry.Emit("turn_started", map[string]any{
		"turn_id":         turnID,
		"conversation_id": conv.ID.String(),
		"history_len":     len(transcript),
	})

	// Phase AwaitingModel: first round, tools offered.
	first, err := o.gateway.Complete(ctx, systemPrompt, window, toolParams)
	if err != nil {
		return nil, err
	}

	var (
		calls    []ToolCall
		rejected []invocationRecord
		replySrc = first
	)

	// Phase ExecutingTools: run requested calls in order against the store.
	// Every executed call is audited against its tool-result message before
	// the next gateway round, so a failure there cannot lose the record.
	toolResults := []anthropic.ContentBlockParamUnion{}
	for _, block := range first.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		input := json.RawMessage(tu.JSON.Input.Raw())
		rec, inv := o.execTool(ctx, defs, tu.Name, input)
		calls = append(calls, ToolCall{Name: tu.Name, OK: rec.OK})

		content, merr := json.Marshal(rec)
		if merr != nil {
			return nil, fmt.Errorf("encode tool result: %w", merr)
		}
		trMsg, err := o.store.AppendMessage(ctx, conv.ID, store.RoleToolResult, string(content))
		if err != nil {
			return nil, fmt.Errorf("persist tool result: %w", err)
		}
		if _, err := o.store.RecordToolInvocation(ctx, trMsg.ID, inv.name, inv.arguments, inv.result, inv.errText); err != nil {
			return nil, fmt.Errorf("record tool invocation: %w", err)
		}
		toolResults = append(toolResults, anthropic.NewToolResultBlock(tu.ID, resultContent(rec), !rec.OK))
	}

	// One bounded results round: feed outcomes back so the model can compose
	// the user-facing reply. Further tool requests are rejected, not run.
	if len(toolResults) > 0 {
		window = append(window, first.ToParam(), anthropic.NewUserMessage(toolResults...))
		second, err := o.gateway.Complete(ctx, systemPrompt, window, toolParams)
		if err != nil {
			return nil, err
		}
		for _, block := range second.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				calls = append(calls, ToolCall{Name: tu.Name, OK: false})
				rejected = append(rejected, invocationRecord{
					name:      tu.Name,
					arguments: tu.JSON.Input.Raw(),
					errText:   "rejected: tool round limit reached",
				})
			}
		}
		replySrc = second
	}

	reply := textContent(replySrc)
	if reply == "" && replySrc != first {
		reply = textContent(first)
	}

	agentMsg, err := o.store.AppendMessage(ctx, conv.ID, store.RoleAgent, reply)
	if err != nil {
		return nil, fmt.Errorf("persist agent message: %w", err)
	}
	for _, inv := range rejected {
		if _, err := o.store.RecordToolInvocation(ctx, agentMsg.ID, inv.name, inv.arguments, inv.result, inv.errText); err != nil {
			return nil, fmt.Errorf("record tool invocation: %w", err)
		}
	}

	telemetry.Emit("turn_completed", map[string]any{
		"turn_id":         turnID,
		"conversation_id": conv.ID.String(),
		"tool_calls":      len(calls),
		"reply_size":      len(reply),
	})

	return &Result{Reply: reply, ConversationID: conv.ID, ToolCalls: calls}, nil
}

// resolveConversation loads the addressed conversation or creates one.
// A conversation that is absent or owned by someone else reads identically
// as a permission failure.
func (o *Orchestrator) resolveConversation(ctx context.Context, owner uuid.UUID, id *uuid.UUID, firstMessage string) (store.Conversation, error) {
	if id == nil {
		return o.store.CreateConversation(ctx, owner, deriveTitle(firstMessage))
	}
	conv, err := o.store.GetConversation(ctx, *id)
	if err != nil || conv.UserID != owner {
		return store.Conversation{}, ErrPermissionDenied
	}
	return conv, nil
}

// execTool validates the tool name against the closed registry, runs the
// handler, and emits a tool_exec event. Failures are captured, never thrown:
// the turn continues and the model is told what went wrong.
func (o *Orchestrator) execTool(ctx context.Context, defs []tools.ToolDefinition, name string, input json.RawMessage) (toolResultRecord, invocationRecord) {
	turnID, _ := telemetry.TurnIDFromContext(ctx)

	emit := func(durationMs int64, outputSize int, errStr string) {
		fields := map[string]any{
			"tool_name":   name,
			"duration_ms": durationMs,
			"input_size":  len(input),
			"output_size": outputSize,
			"turn_id":     turnID,
		}
		if errStr != "" {
			fields["error"] = errStr
		} else {
			fields["error"] = nil
		}
		telemetry.Emit("tool_exec", fields)
	}

	var def *tools.ToolDefinition
	for i := range defs {
		if defs[i].Name == name {
			def = &defs[i]
			break
		}
	}

	start := time.Now()
	if def == nil {
		emit(time.Since(start).Milliseconds(), 0, "tool not found")
		errText := fmt.Sprintf("unknown tool %q", name)
		return toolResultRecord{Tool: name, Error: errText},
			invocationRecord{name: name, arguments: string(input), errText: errText}
	}

	out, err := def.Function(ctx, input)
	if err != nil {
		// Generic error string in telemetry; detail goes to the audit record
		// and back to the model.
		emit(time.Since(start).Milliseconds(), 0, "tool error")
		errText := fmt.Errorf("%w: %v", ErrToolExecution, err).Error()
		return toolResultRecord{Tool: name, Error: err.Error()},
			invocationRecord{name: name, arguments: string(input), errText: errText}
	}
	emit(time.Since(start).Milliseconds(), len(out), "")
	return toolResultRecord{Tool: name, OK: true, Output: out},
		invocationRecord{name: name, arguments: string(input), result: out}
}

// replayTranscript maps persisted messages onto Messages API params in
// stored order. Tool results replay on the user side, matching how they were
// presented to the model during the original turn.
func replayTranscript(msgs []store.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleAgent:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default: // RoleUser, RoleToolResult
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func anthropicTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, t := range defs {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: t.InputSchema,
		}})
	}
	return out
}

func textContent(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func resultContent(rec toolResultRecord) string {
	if rec.OK {
		return rec.Output
	}
	return rec.Error
}

func deriveTitle(message string) string {
	title := strings.TrimSpace(message)
	r := []rune(title)
	if len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	return title
}
