package flow

import (
	"context"
	"testing"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/session"
	"github.com/cardassist/cardassist/tool"
)

type stubMemoryStore struct{}

func (m *stubMemoryStore) Get(sessionID string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (m *stubMemoryStore) Put(sessionID string, delta map[string]any) error { return nil }
func (m *stubMemoryStore) Search(sessionID, query string, limit int) ([]core.SearchResult, error) {
	return []core.SearchResult{}, nil
}
func (m *stubMemoryStore) Store(sessionID, content string, metadata map[string]interface{}) error {
	return nil
}
func (m *stubMemoryStore) Delete(sessionID, memoryID string) error { return nil }

func newTestRunContext() *core.RunContext {
	ctx := context.Background()
	eventChan := make(chan core.Event, 10)
	sessions := session.NewInMemoryStore()
	sess, _ := sessions.Create("sess-1")
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "What is my card limit?"}}}
	return core.NewRunContext(ctx, "sess-1", "inv-1", core.AgentInfo{Name: "AccountAgent", Type: "specialist"}, userContent, 10, eventChan, nil, sess, sessions, nil, &stubMemoryStore{}, nil)
}

type mockFlowAgent struct {
	name string
	llm  model.Model
}

func (m *mockFlowAgent) GetName() string     { return m.name }
func (m *mockFlowAgent) GetLLM() model.Model { return m.llm }
func (m *mockFlowAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return "You answer corporate card account questions.", nil
}
func (m *mockFlowAgent) GetTools() map[string]tool.Tool { return map[string]tool.Tool{} }
func (m *mockFlowAgent) GetSubAgents() []FlowAgent      { return []FlowAgent{} }
func (m *mockFlowAgent) IsFunctionCallingEnabled() bool { return false }
func (m *mockFlowAgent) IsStreamingEnabled() bool       { return false }
func (m *mockFlowAgent) IsTransferEnabled() bool        { return false }
func (m *mockFlowAgent) GetOutputKey() string           { return "" }
func (m *mockFlowAgent) MaxHistoryMessages() int        { return 10 }
func (m *mockFlowAgent) ExecuteTool(toolCtx *core.ToolContext, toolName string, args string) (interface{}, error) {
	return nil, nil
}
func (m *mockFlowAgent) TransferToAgent(runCtx *core.RunContext, agentName string) error {
	return nil
}

func TestSingleAgentFlow(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.AddResponse("What is my card limit?", "Your monthly limit is $10,000.")
	agent := &mockFlowAgent{name: "AccountAgent", llm: llm}
	runCtx := newTestRunContext()
	f := NewSingleAgentFlow(agent)
	eventChan, err := f.Execute(runCtx)
	if err != nil {
		t.Fatalf("flow execution failed: %v", err)
	}
	var events []core.Event
	for ev := range eventChan {
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Error("expected at least one event from flow execution")
	}
}
