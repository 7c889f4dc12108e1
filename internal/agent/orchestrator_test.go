package agent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
)

// fakeTransport serves scripted responses in order and captures request
// bodies. A nil script entry produces a transport error.
type fakeTransport struct {
	responses []string
	failAt    map[int]error
	calls     int
	captured  [][]byte
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.captured = append(f.captured, b)
	i := f.calls
	f.calls++
	if err, ok := f.failAt[i]; ok {
		return nil, err
	}
	if i >= len(f.responses) {
		return nil, fmt.Errorf("unexpected request %d", i)
	}
	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.responses[i]))),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newOrchestrator(t *testing.T, ft *fakeTransport) (*agent.Orchestrator, *store.Store, uuid.UUID) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	u, err := st.CreateUser(context.Background(), "a@example.com", "A", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	cli := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: ft}),
		option.WithAPIKey("test-key"),
	)
	gw := provider.NewGatewayWithClient(&cli, provider.DefaultModel)
	return agent.New(gw, st), st, u.ID
}

func textResponse(text string) string {
	return fmt.Sprintf(`{"role":"assistant","content":[{"type":"text","text":%q}]}`, text)
}

func toolUseResponse(id, name, input string) string {
	return fmt.Sprintf(`{"role":"assistant","content":[{"type":"tool_use","id":%q,"name":%q,"input":%s}]}`, id, name, input)
}

func TestHandle_TextReply_AppendsOneUserOneAgentMessage(t *testing.T) {
	ft := &fakeTransport{responses: []string{textResponse("Hello! How can I help with your tasks?")}}
	orc, st, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "hi", nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Reply != "Hello! How can I help with your tasks?" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}
	if len(res.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %v", res.ToolCalls)
	}

	msgs, err := st.ListMessages(context.Background(), res.ConversationID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[0].Content != "hi" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != store.RoleAgent {
		t.Errorf("unexpected agent message: %+v", msgs[1])
	}
}

func TestHandle_EmptyMessage_Rejected(t *testing.T) {
	orc, _, owner := newOrchestrator(t, &fakeTransport{})
	if _, err := orc.Handle(context.Background(), owner, "   ", nil); !errors.Is(err, agent.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandle_ForeignConversation_PermissionDenied_NoPersistence(t *testing.T) {
	ft := &fakeTransport{responses: []string{textResponse("nope")}}
	orc, st, owner := newOrchestrator(t, ft)

	other, err := st.CreateUser(context.Background(), "b@example.com", "B", "hash")
	if err != nil {
		t.Fatalf("create other user: %v", err)
	}
	conv, err := st.CreateConversation(context.Background(), other.ID, "private")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err = orc.Handle(context.Background(), owner, "read their chat", &conv.ID)
	if !errors.Is(err, agent.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	msgs, err := st.ListMessages(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("no messages should be persisted on permission failure, got %d", len(msgs))
	}
	if ft.calls != 0 {
		t.Fatalf("gateway must not be called on permission failure")
	}
}

func TestHandle_MissingConversation_ReadsAsPermissionDenied(t *testing.T) {
	orc, _, owner := newOrchestrator(t, &fakeTransport{})
	missing := uuid.New()
	if _, err := orc.Handle(context.Background(), owner, "hi", &missing); !errors.Is(err, agent.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for absent conversation, got %v", err)
	}
}

func TestHandle_AddTaskFlow(t *testing.T) {
	ft := &fakeTransport{responses: []string{
		toolUseResponse("t1", "add_task", `{"title":"buy milk"}`),
		textResponse(`Added "buy milk" to your tasks.`),
	}}
	orc, st, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "add a task to buy milk", nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(res.Reply, "buy milk") {
		t.Errorf("reply should reference the created task, got %q", res.Reply)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "add_task" || !res.ToolCalls[0].OK {
		t.Fatalf("expected one successful add_task call, got %+v", res.ToolCalls)
	}

	tasks, err := st.ListTasks(context.Background(), owner)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "buy milk" {
		t.Fatalf("task not created: %+v", tasks)
	}

	// Transcript: user, tool-result, agent.
	msgs, err := st.ListMessages(context.Background(), res.ConversationID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != store.RoleToolResult {
		t.Errorf("middle message should be a tool result: %+v", msgs[1])
	}

	// Audit record attached to the tool-result message.
	invs, err := st.InvocationsByMessage(context.Background(), msgs[1].ID)
	if err != nil {
		t.Fatalf("invocations: %v", err)
	}
	if len(invs) != 1 || invs[0].ToolName != "add_task" || invs[0].Error != "" {
		t.Fatalf("unexpected audit records: %+v", invs)
	}
}

func TestHandle_GatewayUnreachable_UserMessageSurvives(t *testing.T) {
	ft := &fakeTransport{failAt: map[int]error{0: fmt.Errorf("connection refused")}}
	orc, st, owner := newOrchestrator(t, ft)

	conv, err := st.CreateConversation(context.Background(), owner, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err = orc.Handle(context.Background(), owner, "hello?", &conv.ID)
	if !errors.Is(err, provider.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	msgs, err := st.ListMessages(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != store.RoleUser {
		t.Fatalf("expected only the persisted user message, got %+v", msgs)
	}
}

func TestHandle_UnknownTool_RecordedNotExecuted(t *testing.T) {
	ft := &fakeTransport{responses: []string{
		toolUseResponse("x1", "drop_database", `{}`),
		textResponse("I can't do that."),
	}}
	orc, st, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "do something weird", nil)
	if err != nil {
		t.Fatalf("turn should complete despite unknown tool: %v", err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].OK {
		t.Fatalf("unknown tool should be reported as failed: %+v", res.ToolCalls)
	}

	msgs, _ := st.ListMessages(context.Background(), res.ConversationID, 0)
	invs, err := st.InvocationsByMessage(context.Background(), msgs[1].ID)
	if err != nil {
		t.Fatalf("invocations: %v", err)
	}
	if len(invs) != 1 || !strings.Contains(invs[0].Error, "unknown tool") {
		t.Fatalf("expected an unknown-tool audit record, got %+v", invs)
	}
}

func TestHandle_DeleteMissingTask_TurnStillCompletes(t *testing.T) {
	missing := uuid.New()
	ft := &fakeTransport{responses: []string{
		toolUseResponse("d1", "delete_task", fmt.Sprintf(`{"task_id":%q}`, missing)),
		textResponse("That task could not be found."),
	}}
	orc, st, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "delete task", nil)
	if err != nil {
		t.Fatalf("turn should complete: %v", err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].OK {
		t.Fatalf("expected one failed delete_task call: %+v", res.ToolCalls)
	}
	if !strings.Contains(res.Reply, "could not be found") {
		t.Errorf("reply should describe the failure, got %q", res.Reply)
	}

	msgs, _ := st.ListMessages(context.Background(), res.ConversationID, 0)
	if len(msgs) != 3 {
		t.Fatalf("expected full turn persisted, got %d messages", len(msgs))
	}
}

func TestHandle_CompleteForeignTask_NotFound_NoMutation(t *testing.T) {
	stPath := filepath.Join(t.TempDir(), "shared.db")
	st, err := store.Open(stPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	alice, err := st.CreateUser(context.Background(), "alice@example.com", "A", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := st.CreateUser(context.Background(), "bob@example.com", "B", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	task, err := st.CreateTask(context.Background(), alice.ID, "alice's task", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	ft := &fakeTransport{responses: []string{
		toolUseResponse("c1", "complete_task", fmt.Sprintf(`{"task_id":%q}`, task.ID)),
		textResponse("That task could not be found."),
	}}
	cli := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: ft}),
		option.WithAPIKey("test-key"),
	)
	orc := agent.New(provider.NewGatewayWithClient(&cli, provider.DefaultModel), st)

	res, err := orc.Handle(context.Background(), bob.ID, "mark that task done", nil)
	if err != nil {
		t.Fatalf("turn should complete: %v", err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].OK {
		t.Fatalf("cross-owner complete should fail: %+v", res.ToolCalls)
	}

	got, err := st.GetTask(context.Background(), alice.ID, task.ID)
	if err != nil || got.Completed {
		t.Fatalf("alice's task must be unchanged: %+v err=%v", got, err)
	}
}

func TestHandle_SecondRoundToolUse_RejectedNotExecuted(t *testing.T) {
	ft := &fakeTransport{responses: []string{
		toolUseResponse("t1", "list_tasks", `{}`),
		toolUseResponse("t2", "add_task", `{"title":"sneaky"}`),
	}}
	orc, st, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "list my tasks", nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(res.ToolCalls) != 2 {
		t.Fatalf("expected executed + rejected call, got %+v", res.ToolCalls)
	}
	if !res.ToolCalls[0].OK || res.ToolCalls[1].OK {
		t.Fatalf("second-round call must be rejected: %+v", res.ToolCalls)
	}

	// The rejected add_task must not have run.
	tasks, err := st.ListTasks(context.Background(), owner)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("rejected tool call mutated state: %+v", tasks)
	}

	// Exactly two gateway round-trips.
	if ft.calls != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", ft.calls)
	}

	// The rejection is still audited, against the agent message.
	msgs, _ := st.ListMessages(context.Background(), res.ConversationID, 0)
	invs, err := st.InvocationsByMessage(context.Background(), msgs[len(msgs)-1].ID)
	if err != nil {
		t.Fatalf("invocations: %v", err)
	}
	if len(invs) != 1 || invs[0].ToolName != "add_task" || !strings.Contains(invs[0].Error, "rejected") {
		t.Fatalf("expected a rejection audit record, got %+v", invs)
	}
}

func TestHandle_SecondRoundFails_AuditRecordSurvives(t *testing.T) {
	ft := &fakeTransport{
		responses: []string{toolUseResponse("t1", "add_task", `{"title":"buy milk"}`)},
		failAt:    map[int]error{1: fmt.Errorf("connection reset")},
	}
	orc, st, owner := newOrchestrator(t, ft)

	conv, err := st.CreateConversation(context.Background(), owner, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err = orc.Handle(context.Background(), owner, "add a task to buy milk", &conv.ID)
	if !errors.Is(err, provider.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	// The tool ran, so its audit record must exist even though the turn
	// never produced an agent message.
	tasks, err := st.ListTasks(context.Background(), owner)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected the executed add_task to persist, got %+v", tasks)
	}

	msgs, err := st.ListMessages(context.Background(), conv.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Role != store.RoleToolResult {
		t.Fatalf("expected user + tool-result messages, got %+v", msgs)
	}
	invs, err := st.InvocationsByMessage(context.Background(), msgs[1].ID)
	if err != nil {
		t.Fatalf("invocations: %v", err)
	}
	if len(invs) != 1 || invs[0].ToolName != "add_task" || invs[0].Error != "" {
		t.Fatalf("expected one successful add_task audit record, got %+v", invs)
	}
}

func TestHandle_TranscriptReplayedInOrder(t *testing.T) {
	ft := &fakeTransport{responses: []string{
		textResponse("first reply"),
		textResponse("second reply"),
	}}
	orc, _, owner := newOrchestrator(t, ft)

	res, err := orc.Handle(context.Background(), owner, "first message", nil)
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, err := orc.Handle(context.Background(), owner, "second message", &res.ConversationID); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(ft.captured[1], &body); err != nil {
		t.Fatalf("decode second request: %v", err)
	}
	if len(body.Messages) != 3 {
		t.Fatalf("expected 3-message window, got %d", len(body.Messages))
	}
	wantRoles := []string{"user", "assistant", "user"}
	wantTexts := []string{"first message", "first reply", "second message"}
	for i, m := range body.Messages {
		if m.Role != wantRoles[i] || len(m.Content) == 0 || m.Content[0].Text != wantTexts[i] {
			t.Errorf("message %d: got role=%s text=%q", i, m.Role, m.Content[0].Text)
		}
	}
}
