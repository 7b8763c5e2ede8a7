package core

import (
	"context"
	"testing"

	"github.com/cardassist/cardassist/logging"
)

type stubSessionStore struct{ sessions map[string]*Session }

func (m *stubSessionStore) Get(id string) (*Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := NewSession(id)
	if m.sessions == nil {
		m.sessions = map[string]*Session{}
	}
	m.sessions[id] = s
	return s, nil
}
func (m *stubSessionStore) Create(id string) (*Session, error) { return m.Get(id) }
func (m *stubSessionStore) AppendEvent(id string, ev Event) error {
	if s, ok := m.sessions[id]; ok {
		s.Events = append(s.Events, ev)
	}
	return nil
}
func (m *stubSessionStore) ApplyDelta(id string, delta map[string]interface{}) error {
	if s, ok := m.sessions[id]; ok {
		for k, v := range delta {
			s.State[k] = v
		}
	}
	return nil
}

type stubArtifactStore struct{ data map[string]map[string][]byte }

func (a *stubArtifactStore) Save(sid, aid string, b []byte) error {
	if a.data == nil {
		a.data = map[string]map[string][]byte{}
	}
	if _, ok := a.data[sid]; !ok {
		a.data[sid] = map[string][]byte{}
	}
	a.data[sid][aid] = append([]byte{}, b...)
	return nil
}
func (a *stubArtifactStore) Get(sid, aid string) ([]byte, error) {
	if a.data == nil {
		return nil, nil
	}
	if m, ok := a.data[sid]; ok {
		return m[aid], nil
	}
	return nil, nil
}
func (a *stubArtifactStore) List(sid string) ([]string, error) {
	if a.data == nil {
		return []string{}, nil
	}
	res := []string{}
	for k := range a.data[sid] {
		res = append(res, k)
	}
	return res, nil
}
func (a *stubArtifactStore) Delete(sid, aid string) error { return nil }

type stubMemoryStore struct{}

func (m *stubMemoryStore) Get(sid string) (map[string]any, error)     { return map[string]any{}, nil }
func (m *stubMemoryStore) Put(sid string, delta map[string]any) error { return nil }
func (m *stubMemoryStore) Search(sid, q string, limit int) ([]SearchResult, error) {
	return []SearchResult{{ID: "mem-1", Content: "prior dispute about vendor X", Score: 0.9, Metadata: map[string]interface{}{"topic": "dispute"}}}, nil
}
func (m *stubMemoryStore) Store(sid, content string, metadata map[string]interface{}) error {
	return nil
}
func (m *stubMemoryStore) Delete(sid, memoryID string) error { return nil }

func newToolTestRunContext() *RunContext {
	sessions := &stubSessionStore{sessions: map[string]*Session{}}
	artifacts := &stubArtifactStore{data: map[string]map[string][]byte{}}
	memories := &stubMemoryStore{}
	sess, _ := sessions.Create("sess-1")
	emit := make(chan Event, 10)
	resume := make(chan struct{}, 10)
	return NewRunContext(
		context.Background(), "sess-1", "inv-1", AgentInfo{Name: "PolicyAgent", Type: "specialist"},
		Content{Role: "user", Parts: []Part{TextPart{Text: "What is the daily limit?"}}},
		10,
		emit, resume, sess, sessions, artifacts, memories, logging.NoOpLogger{},
	)
}

func TestToolContext_Identity(t *testing.T) {
	inv := newToolTestRunContext()
	tc := NewToolContext(inv, "fc-1")
	if !tc.IsValid() {
		t.Fatal("expected valid tool context")
	}
	if tc.SessionID() != "sess-1" {
		t.Errorf("session id mismatch")
	}
	if tc.RunID() != "inv-1" {
		t.Errorf("run id mismatch")
	}
	if tc.FunctionCallID() != "fc-1" {
		t.Errorf("function call id mismatch")
	}
	if tc.AgentName() != "PolicyAgent" {
		t.Errorf("agent name mismatch")
	}
	if tc.Logger() == nil {
		t.Errorf("expected logger")
	}
}

func TestToolContext_StateDelta(t *testing.T) {
	tc := NewToolContext(NewRunContext(
		context.Background(), "sess-1", "inv-1", AgentInfo{Name: "PolicyAgent", Type: "specialist"},
		Content{}, 0, nil, nil, nil, nil, nil, nil, nil,
	), "fc-1")
	tc.SetState("dispute_reason", "duplicate charge")
	actions := tc.Actions()
	if actions.StateDelta == nil {
		t.Fatal("missing state delta")
	}
	if v, ok := actions.StateDelta["dispute_reason"]; !ok || v != "duplicate charge" {
		t.Errorf("unexpected state delta: %+v", actions.StateDelta)
	}
}

func TestToolContext_FlowControlActions(t *testing.T) {
	tc := NewToolContext(newToolTestRunContext(), "fc-1")
	tc.SkipSummarization()
	tc.TransferToAgent("EscalationAgent")
	tc.Escalate()
	actions := tc.Actions()
	if actions.SkipSummarization == nil || !*actions.SkipSummarization {
		t.Error("skip summarization not set")
	}
	if actions.TransferToAgent == nil || *actions.TransferToAgent != "EscalationAgent" {
		t.Error("transfer not set")
	}
	if actions.Escalate == nil || !*actions.Escalate {
		t.Error("escalate not set")
	}
}

func TestToolContext_Artifacts(t *testing.T) {
	tc := NewToolContext(newToolTestRunContext(), "fc-1")
	if err := tc.SaveArtifact("statement.csv", []byte("date,amount")); err != nil {
		t.Fatalf("save artifact: %v", err)
	}
	b, err := tc.LoadArtifact("statement.csv")
	if err != nil || string(b) != "date,amount" {
		t.Fatalf("load artifact mismatch: %v %s", err, string(b))
	}
	list, err := tc.ListArtifacts()
	if err != nil || len(list) != 1 || list[0] != "statement.csv" {
		t.Fatalf("list artifacts mismatch: %v %v", err, list)
	}
}

func TestToolContext_Memory(t *testing.T) {
	tc := NewToolContext(newToolTestRunContext(), "fc-1")
	if err := tc.StoreMemory("customer disputed vendor X before", map[string]interface{}{"topic": "dispute"}); err != nil {
		t.Fatalf("store memory: %v", err)
	}
	res, err := tc.SearchMemory("dispute", 10)
	if err != nil || len(res) != 1 {
		t.Fatalf("search memory: %v len=%d", err, len(res))
	}
}

func TestToolContext_ApplyActionsCarriesEverything(t *testing.T) {
	tc := NewToolContext(newToolTestRunContext(), "fc-1")
	tc.SetState("k", "v")
	tc.SkipSummarization()
	tc.TransferToAgent("EscalationAgent")
	tc.Escalate()
	if err := tc.SaveArtifact("report.txt", []byte("contents")); err != nil {
		t.Fatalf("save artifact: %v", err)
	}

	ev := Event{}
	tc.InternalApplyActions(&ev)

	if ev.Actions.StateDelta["k"] != "v" {
		t.Error("state delta not applied")
	}
	if ev.Actions.SkipSummarization == nil || !*ev.Actions.SkipSummarization {
		t.Error("skip summarization not applied")
	}
	if ev.Actions.TransferToAgent == nil || *ev.Actions.TransferToAgent != "EscalationAgent" {
		t.Error("transfer not applied")
	}
	if ev.Actions.Escalate == nil || !*ev.Actions.Escalate {
		t.Error("escalate not applied")
	}
	if ev.Actions.ArtifactDelta["report.txt"] == 0 {
		t.Error("artifact delta not applied")
	}
}

func TestToolContext_Validation(t *testing.T) {
	if (&ToolContext{}).IsValid() {
		t.Error("zero value should be invalid")
	}
	tc := NewToolContext(newToolTestRunContext(), "fc-1")
	if !tc.IsValid() {
		t.Error("expected valid tool context")
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("validate error: %v", err)
	}
}
