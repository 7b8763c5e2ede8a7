package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/session"
)

// scriptedAgent emits a progress note with a state delta, waits for the
// persistence barrier, then emits a final answer.
type scriptedAgent struct {
	name string
}

func (a *scriptedAgent) Name() string                     { return a.name }
func (a *scriptedAgent) Description() string              { return "scripted" }
func (a *scriptedAgent) Start(*core.RunContext) error     { return nil }
func (a *scriptedAgent) Stop(*core.RunContext) error      { return nil }
func (a *scriptedAgent) SetSubAgents(...core.Agent) error { return nil }
func (a *scriptedAgent) SubAgents() []core.Agent          { return nil }
func (a *scriptedAgent) Parent() core.Agent               { return nil }
func (a *scriptedAgent) FindAgent(string) core.Agent      { return nil }

func (a *scriptedAgent) Run(rc *core.RunContext) error {
	rc.StateDelta["intent"] = "policy_query"

	notPartial := false
	note := core.NewEvent(rc.RunID, a.name)
	note.Content = &core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "checking the travel policy"}}}
	note.Partial = &notPartial
	if err := rc.EmitEvent(note); err != nil {
		return err
	}
	if err := rc.WaitForResume(); err != nil {
		return err
	}

	done := true
	final := core.NewEvent(rc.RunID, a.name)
	final.Content = &core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "Flights up to $500 are pre-approved."}}}
	final.Partial = &notPartial
	final.TurnComplete = &done
	return rc.EmitEvent(final)
}

func userMessage(text string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
}

func TestEngine_InvokeSync_PersistsRunEvents(t *testing.T) {
	store := session.NewInMemoryStore()
	eng := New(func(o *Options) { o.SessionStore = store })
	eng.Register(&scriptedAgent{name: "PolicyAgent"})

	invID, events, err := eng.InvokeSync(context.Background(), "sess-1", "PolicyAgent", userMessage("what is the flight limit?"))
	require.NoError(t, err)
	assert.NotEmpty(t, invID)
	require.Len(t, events, 2)

	final := events[1]
	require.NotNil(t, final.Content)
	assert.Equal(t, "Flights up to $500 are pre-approved.", final.Content.Parts[0].(core.TextPart).Text)
	assert.True(t, final.IsFinalResponse())

	// State delta applied and full transcript persisted (user + 2 agent events).
	sess, err := eng.GetSession("sess-1")
	require.NoError(t, err)
	intent, ok := sess.GetState("intent")
	require.True(t, ok)
	assert.Equal(t, "policy_query", intent)
	assert.Len(t, sess.GetEvents(), 3)
	assert.Equal(t, "user", sess.GetEvents()[0].Author)
}

func TestEngine_Invoke_UnknownAgent(t *testing.T) {
	eng := New()
	_, _, _, err := eng.Invoke(context.Background(), "sess-1", "NoSuchAgent", userMessage("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestEngine_BeforeAgentCallbackVeto(t *testing.T) {
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackBeforeAgent, func(context.Context, *CallbackContext) error {
		return errors.New("maintenance window")
	}))
	eng := New(func(o *Options) { o.Callbacks = cm })
	eng.Register(&scriptedAgent{name: "PolicyAgent"})

	_, events, err := eng.InvokeSync(context.Background(), "sess-1", "PolicyAgent", userMessage("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance window")
	assert.Empty(t, events)
}

// gatedAgent signals when its run starts and then blocks until released,
// letting tests hold an invocation slot open.
type gatedAgent struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (a *gatedAgent) Name() string                     { return a.name }
func (a *gatedAgent) Description() string              { return "gated" }
func (a *gatedAgent) Start(*core.RunContext) error     { return nil }
func (a *gatedAgent) Stop(*core.RunContext) error      { return nil }
func (a *gatedAgent) SetSubAgents(...core.Agent) error { return nil }
func (a *gatedAgent) SubAgents() []core.Agent          { return nil }
func (a *gatedAgent) Parent() core.Agent               { return nil }
func (a *gatedAgent) FindAgent(string) core.Agent      { return nil }

func (a *gatedAgent) Run(*core.RunContext) error {
	a.started <- struct{}{}
	<-a.release
	return nil
}

func TestEngine_MaxConcurrentInvocations(t *testing.T) {
	agent := &gatedAgent{
		name:    "PolicyAgent",
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	eng := New(func(o *Options) { o.Config.MaxConcurrentInvocations = 1 })
	eng.Register(agent)

	_, eventsA, _, err := eng.Invoke(context.Background(), "sess-a", "PolicyAgent", userMessage("first question"))
	require.NoError(t, err)
	<-agent.started

	secondDone := make(chan error, 1)
	go func() {
		_, eventsB, _, err := eng.Invoke(context.Background(), "sess-b", "PolicyAgent", userMessage("second question"))
		if err == nil {
			for range eventsB {
			}
		}
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		t.Fatalf("second invocation should wait for a free slot, returned early with err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Releasing the first run frees the slot; the second run can now start
	// and finish.
	close(agent.release)
	for range eventsA {
	}
	require.NoError(t, <-secondDone)
}

func TestEngine_Invoke_CancelledWhileWaitingForSlot(t *testing.T) {
	agent := &gatedAgent{
		name:    "PolicyAgent",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	eng := New(func(o *Options) { o.Config.MaxConcurrentInvocations = 1 })
	eng.Register(agent)

	_, events, _, err := eng.Invoke(context.Background(), "sess-a", "PolicyAgent", userMessage("first question"))
	require.NoError(t, err)
	<-agent.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = eng.Invoke(ctx, "sess-b", "PolicyAgent", userMessage("second question"))
	require.ErrorIs(t, err, context.Canceled)

	close(agent.release)
	for range events {
	}
}

func TestEngine_StopInvocation_Unknown(t *testing.T) {
	eng := New()
	err := eng.StopInvocation("nope")
	require.Error(t, err)
}
