package flow

import (
	"context"
	"testing"
	"time"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/logging"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/session"
	"github.com/cardassist/cardassist/tool"
)

// toolTurnModel issues two function calls on the first turn and a plain
// text answer on the second, mimicking a lookup-then-answer exchange.
type toolTurnModel struct {
	turns int
}

func (m *toolTurnModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	m.turns++
	turn := m.turns
	go func() {
		defer close(respCh)
		defer close(errCh)
		if turn == 1 {
			parts := []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "fc1", Name: "t1", Arguments: "{}"}},
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "fc2", Name: "t2", Arguments: "{}"}},
			}
			respCh <- model.Response{Content: core.Content{Role: "assistant", Parts: parts}, FinishReason: "tool_calls"}
			return
		}
		parts := []core.Part{core.TextPart{Text: "done"}}
		respCh <- model.Response{Content: core.Content{Role: "assistant", Parts: parts}, FinishReason: "stop"}
	}()
	return respCh, errCh
}

func (m *toolTurnModel) Info() model.Info {
	return model.Info{Name: "tool-turn-mock", Provider: "mock", SupportsTools: true}
}

type toolTurnAgent struct {
	*teAgent
	llm model.Model
}

func (a *toolTurnAgent) GetLLM() model.Model { return a.llm }

func newToolTurnRunContext() *core.RunContext {
	ctx := context.Background()
	eventChan := make(chan core.Event, 100)
	sessSvc := session.NewInMemoryStore()
	sess, _ := sessSvc.Create("sess")
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "freeze my card and check the balance"}}}
	return core.NewRunContext(ctx, "sess", "run", core.AgentInfo{Name: "A", Type: "test"}, userContent, 100, eventChan, nil, sess, sessSvc, nil, nil, logging.NoOpLogger{})
}

// A turn with several tool calls must surface one response event per call,
// in call order, each carrying the actions its tool produced.
func TestBaseFlow_OrderedToolResponseEvents(t *testing.T) {
	tools := map[string]tool.Tool{
		"t1": &teMockTool{name: "t1", delay: 20 * time.Millisecond, result: "r1", actionState: map[string]any{"a": 1}},
		"t2": &teMockTool{name: "t2", delay: 5 * time.Millisecond, result: "r2", transferTo: "next"},
	}
	agent := &toolTurnAgent{teAgent: &teAgent{name: "A", tools: tools}, llm: &toolTurnModel{}}
	bf := NewBaseFlow(agent)
	rc := newToolTurnRunContext()

	evCh, err := bf.Execute(rc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var toolEvents []core.Event
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-evCh:
			if !ok {
				break loop
			}
			if len(ev.GetFunctionResponses()) > 0 {
				toolEvents = append(toolEvents, ev)
			}
		case <-timeout:
			t.Fatalf("timeout waiting for events")
		}
	}

	if len(toolEvents) != 2 {
		t.Fatalf("expected 2 tool response events, got %d", len(toolEvents))
	}
	// t1 is slower than t2 but must still arrive first.
	for i, want := range []string{"t1", "t2"} {
		frs := toolEvents[i].GetFunctionResponses()
		if len(frs) != 1 {
			t.Fatalf("event %d: expected 1 function response, got %d", i, len(frs))
		}
		if frs[0].Name != want {
			t.Fatalf("event %d: expected response from %s, got %s", i, want, frs[0].Name)
		}
	}

	if v, ok := toolEvents[0].Actions.StateDelta["a"]; !ok || v.(int) != 1 {
		t.Fatalf("state delta from t1 not carried: %+v", toolEvents[0].Actions.StateDelta)
	}
	if toolEvents[1].Actions.TransferToAgent == nil || *toolEvents[1].Actions.TransferToAgent != "next" {
		t.Fatalf("transfer from t2 not carried")
	}
}
