package core

import (
	"context"
	"fmt"

	"maps"

	"github.com/cardassist/cardassist/logging"
)

// RunContext is the per-invocation scope handed to an agent's Run method.
// It bundles the cancellation context, identifiers, the user's input, the
// emit/resume coordination channels, the backing stores and a working
// session snapshot.
//
// State written via SetState accumulates in StateDelta until EmitEvent or
// CommitStateDelta flushes it. Clone and NewChildContext give sub-agent
// runs isolated delta buffers over the same stores, which is how the
// orchestrator keeps specialist turns from trampling each other's state.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	Agent            AgentInfo
	UserContent      Content
	MaxModelCalls    int
	Emit             chan<- Event
	Resume           <-chan struct{}
	SessionStore     SessionStore
	ArtifactStore    ArtifactStore
	MemoryStore      MemoryStore
	Limiter          *ModelLimiter
	Session          *Session
	StateDelta       map[string]any
	Artifacts        []string
	Branch           string

	*loggerAdapter
}

// NewRunContext constructs a RunContext with empty delta buffers. The model
// limiter is sized from maxModelCalls; zero disables the cap.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	userContent Content,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	artifactStore ArtifactStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		MaxModelCalls: maxModelCalls,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		ArtifactStore: artifactStore,
		MemoryStore:   memoryStore,
		Limiter:       NewModelLimiter(maxModelCalls),
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done exposes the invocation's cancellation channel.
func (ic *RunContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err reports why the invocation was cancelled, if it was.
func (ic *RunContext) Err() error { return ic.Context.Err() }

// GetState reads a key, preferring a staged value over the persisted one.
func (ic *RunContext) GetState(k string) (any, bool) {
	if v, ok := ic.StateDelta[k]; ok {
		return v, true
	}

	if ic.Session != nil {
		return ic.Session.GetState(k)
	}

	return nil, false
}

// SetState stages a value; it is not persisted until the delta is flushed.
func (ic *RunContext) SetState(k string, v any) { ic.StateDelta[k] = v }

// ApplyStateDelta stages every pair from d.
func (ic *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(ic.StateDelta, d)
}

// AddArtifact records an artifact id for attachment to the next event.
func (ic *RunContext) AddArtifact(id string) { ic.Artifacts = append(ic.Artifacts, id) }

// SaveArtifact writes data to the artifact store and records the id so the
// next emitted event advertises it.
func (ic *RunContext) SaveArtifact(id string, data []byte) error {
	if ic.ArtifactStore == nil {
		return fmt.Errorf("artifact store not configured")
	}

	if err := ic.ArtifactStore.Save(ic.SessionID, id, data); err != nil {
		return err
	}

	ic.AddArtifact(id)

	return nil
}

// GetArtifact loads a previously saved artifact.
func (ic *RunContext) GetArtifact(id string) ([]byte, error) {
	if ic.ArtifactStore == nil {
		return nil, fmt.Errorf("artifact store not configured")
	}

	return ic.ArtifactStore.Get(ic.SessionID, id)
}

// ListArtifacts returns the artifact ids saved under this session.
func (ic *RunContext) ListArtifacts() ([]string, error) {
	if ic.ArtifactStore == nil {
		return []string{}, nil
	}

	return ic.ArtifactStore.List(ic.SessionID)
}

// SearchMemory looks up past conversation snippets relevant to q.
func (ic *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if ic.MemoryStore == nil {
		return []SearchResult{}, nil
	}

	return ic.MemoryStore.Search(ic.SessionID, q, limit)
}

// StoreMemory saves content with metadata for future recall.
func (ic *RunContext) StoreMemory(content string, md map[string]any) error {
	if ic.MemoryStore == nil {
		return fmt.Errorf("memory store not configured")
	}
	return ic.MemoryStore.Store(ic.SessionID, content, md)
}

// RefreshSession replaces the working snapshot with the stored session.
func (ic *RunContext) RefreshSession() error {
	if ic.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	s, err := ic.SessionStore.Get(ic.SessionID)
	if err != nil {
		return err
	}

	ic.Session = s

	return nil
}

// CommitStateDelta flushes staged state to the session store and resets
// the buffer. A no-op when nothing is staged.
func (ic *RunContext) CommitStateDelta() error {
	if len(ic.StateDelta) == 0 {
		return nil
	}

	if ic.SessionStore == nil {
		return fmt.Errorf("session store not configured")
	}

	if err := ic.SessionStore.ApplyDelta(ic.SessionID, ic.StateDelta); err != nil {
		return err
	}

	ic.StateDelta = map[string]any{}

	return nil
}

// GetSessionHistory returns the session's event log.
func (ic *RunContext) GetSessionHistory() []Event {
	if ic.Session == nil {
		return []Event{}
	}

	return ic.Session.GetEvents()
}

// GetAgentName returns the invoked agent's name.
func (ic *RunContext) GetAgentName() string { return ic.Agent.Name }

// GetAgentType returns the invoked agent's category label.
func (ic *RunContext) GetAgentType() string { return ic.Agent.Type }

// Clone copies the context with its own delta and artifact buffers, seeded
// from the current ones. Stores, channels and the limiter are shared.
func (ic *RunContext) Clone() *RunContext {
	c := &RunContext{
		Context:       ic.Context,
		SessionID:     ic.SessionID,
		RunID:         ic.RunID,
		Agent:         ic.Agent,
		UserContent:   ic.UserContent,
		MaxModelCalls: ic.MaxModelCalls,
		Emit:          ic.Emit,
		Resume:        ic.Resume,
		SessionStore:  ic.SessionStore,
		ArtifactStore: ic.ArtifactStore,
		MemoryStore:   ic.MemoryStore,
		Limiter:       ic.Limiter,
		Session:       ic.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        ic.Branch,
		loggerAdapter: ic.loggerAdapter,
	}

	maps.Copy(c.StateDelta, ic.StateDelta)

	c.Artifacts = append(c.Artifacts, ic.Artifacts...)

	return c
}

// WithBranch clones the context under a new branch label.
func (ic *RunContext) WithBranch(b string) *RunContext {
	c := ic.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested agent run with its own
// channels and empty buffers. An empty branch inherits the parent's.
func (ic *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	finalBranch := ic.Branch
	if branch != "" {
		finalBranch = branch
	}

	return &RunContext{
		Context:       ic.Context,
		SessionID:     ic.SessionID,
		RunID:         ic.RunID,
		Agent:         ic.Agent,
		UserContent:   ic.UserContent,
		MaxModelCalls: ic.MaxModelCalls,
		Emit:          emit,
		Resume:        resume,
		SessionStore:  ic.SessionStore,
		ArtifactStore: ic.ArtifactStore,
		MemoryStore:   ic.MemoryStore,
		Limiter:       ic.Limiter,
		Session:       ic.Session,
		StateDelta:    map[string]any{},
		Artifacts:     []string{},
		Branch:        finalBranch,
		loggerAdapter: ic.loggerAdapter,
	}
}

// EmitEvent attaches the pending StateDelta and Artifacts to the event,
// sends it on the emit channel and clears both buffers. Returns the context
// error when the run was cancelled before the event could be delivered.
func (ic *RunContext) EmitEvent(ev Event) error {
	if len(ic.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = make(map[string]any, len(ic.StateDelta))
		}
		maps.Copy(ev.Actions.StateDelta, ic.StateDelta)
	}

	if len(ic.Artifacts) > 0 {
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = map[string]int{}
		}
		for _, id := range ic.Artifacts {
			ev.Actions.ArtifactDelta[id] = 1
		}
	}

	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.Emit <- ev:
	}

	ic.StateDelta = map[string]any{}
	ic.Artifacts = []string{}

	return nil
}

// WaitForResume blocks until the engine signals the next step may run, or
// the invocation is cancelled.
func (ic *RunContext) WaitForResume() error {
	if ic.Resume == nil {
		return nil
	}

	select {
	case <-ic.Resume:
		return nil
	case <-ic.Context.Done():
		return ic.Context.Err()
	}
}
