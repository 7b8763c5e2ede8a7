package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cardassist/cardassist/artifact"
	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/logging"
	"github.com/cardassist/cardassist/memory"
	"github.com/cardassist/cardassist/session"
)

// Config holds the engine's operational tuning knobs. Anything beyond
// concurrency, buffering and the per-run model budget belongs in Options,
// not here.
type Config struct {
	// MaxConcurrentInvocations bounds how many agent runs may execute at
	// once. Zero means unbounded.
	MaxConcurrentInvocations int

	// EnableStreaming forwards partial model output as it arrives instead
	// of buffering until the turn completes.
	EnableStreaming bool

	// EventBufferSize is the buffer of the per-invocation event channels.
	EventBufferSize int

	// MaxModelCalls caps the number of model calls per invocation.
	// Zero means unlimited.
	MaxModelCalls int
}

// DefaultConfig is a safe starting point for a single support deployment.
var DefaultConfig = Config{
	MaxConcurrentInvocations: 10,
	EnableStreaming:          true,
	EventBufferSize:          100,
	MaxModelCalls:            25,
}

// Options configures an Engine. Every store has an in-memory default so the
// engine works out of the box in tests and local development; production
// wiring swaps in Redis sessions, S3 artifacts and so on.
type Options struct {
	Config Config

	// SessionStore persists conversation history and state.
	SessionStore core.SessionStore

	// ArtifactStore holds binary artifacts (reports, exports).
	ArtifactStore core.ArtifactStore

	// MemoryStore provides searchable conversational memory.
	MemoryStore core.MemoryStore

	// Logger defaults to a no-op logger when nil.
	Logger logging.Logger

	// Callbacks receives lifecycle hooks (agent start/stop, state changes,
	// errors). Defaults to an empty manager.
	Callbacks *CallbackManager
}

// Engine runs registered agents against sessions and turns their event
// streams into persisted conversation history.
//
// Responsibilities:
//   - agent registry (thread-safe, by name)
//   - invocation lifecycle: spawn, track, cancel
//   - event pipeline: apply actions, persist, forward, signal resume
//
// Each invocation gets its own goroutine pair (agent run + event pump) and
// a cancellable child context. The engine never owns the stores it is given.
type Engine struct {
	sessionStore  core.SessionStore
	artifactStore core.ArtifactStore
	memoryStore   core.MemoryStore
	logger        logging.Logger

	config Config

	agents map[string]core.Agent
	mu     sync.RWMutex

	activeInvocations map[string]context.CancelFunc
	invocationsMu     sync.RWMutex

	// invocationSem limits concurrent runs; nil when unbounded.
	invocationSem chan struct{}

	callbacks *CallbackManager
}

// New builds an engine. With no options it uses DefaultConfig and in-memory
// stores, which is what the tests and local runs want.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:        DefaultConfig,
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
		Callbacks:     NewCallbackManager(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var sem chan struct{}
	if opts.Config.MaxConcurrentInvocations > 0 {
		sem = make(chan struct{}, opts.Config.MaxConcurrentInvocations)
	}

	return &Engine{
		sessionStore:      opts.SessionStore,
		invocationSem:     sem,
		artifactStore:     opts.ArtifactStore,
		memoryStore:       opts.MemoryStore,
		config:            opts.Config,
		agents:            make(map[string]core.Agent),
		activeInvocations: make(map[string]context.CancelFunc),
		logger:            opts.Logger,
		callbacks:         opts.Callbacks,
	}
}

// Register makes an agent invocable under its Name(). Re-registering a name
// replaces the previous agent. Register everything before serving traffic;
// swapping agents mid-invocation is safe but confusing.
func (e *Engine) Register(a core.Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[a.Name()] = a
}

// GetAgent looks up a registered agent by name.
func (e *Engine) GetAgent(name string) (core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// Invoke starts an asynchronous agent run for the given session and returns
// the invocation ID plus streaming event and terminal error channels. Both
// channels close when the run finishes or the context is cancelled.
//
// The user content is persisted as the first event of the invocation before
// the agent starts, so the transcript always begins with what the user said.
//
// When MaxConcurrentInvocations runs are already active, Invoke blocks until
// a slot frees up or ctx is cancelled.
func (e *Engine) Invoke(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	agent, ok := e.GetAgent(agentName)
	if !ok {
		return "", nil, nil, fmt.Errorf("agent %s not found", agentName)
	}

	sess, err := e.sessionStore.Get(sessionID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	// Block until a slot frees up. Keeps a burst of chat requests from
	// spawning an unbounded number of agent runs.
	if e.invocationSem != nil {
		select {
		case e.invocationSem <- struct{}{}:
		case <-ctx.Done():
			return "", nil, nil, ctx.Err()
		}
	}

	invocationID := uuid.NewString()

	eventsCh := make(chan core.Event, e.config.EventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, e.config.EventBufferSize)
	resumeCh := make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)

	e.invocationsMu.Lock()
	e.activeInvocations[invocationID] = cancel
	e.invocationsMu.Unlock()

	agentInfo := core.AgentInfo{Name: agent.Name(), Type: "unknown"}

	invCtx := core.NewRunContext(
		runCtx,
		sessionID,
		invocationID,
		agentInfo,
		userContent,
		e.config.MaxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		e.sessionStore,
		e.artifactStore,
		e.memoryStore,
		e.logger,
	)

	userEvent := core.NewUserContentEvent(invocationID, &userContent)

	if err := e.sessionStore.AppendEvent(sessionID, userEvent); err != nil {
		cancel()
		e.invocationsMu.Lock()
		delete(e.activeInvocations, invocationID)
		e.invocationsMu.Unlock()
		e.releaseInvocationSlot()
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}

	go func() {
		defer func() {
			close(agentEmit)
			e.invocationsMu.Lock()
			delete(e.activeInvocations, invocationID)
			e.invocationsMu.Unlock()
			e.releaseInvocationSlot()
		}()

		if err := e.runAgent(invCtx, agent); err != nil {
			select {
			case <-runCtx.Done():
				return
			case errorsCh <- fmt.Errorf("agent execution failed: %w", err):
			}
		}
	}()

	go func() {
		defer func() {
			close(eventsCh)
			close(errorsCh)
		}()

		e.processEvents(runCtx, sessionID, agentEmit, resumeCh, eventsCh, errorsCh)
	}()

	return invocationID, eventsCh, errorsCh, nil
}

// InvokeSync runs an agent to completion and returns every event it emitted,
// in order. Partial streaming events are included. This is the call the HTTP
// chat handler uses; it buffers everything in memory, so prefer Invoke for
// high-volume streaming consumers.
func (e *Engine) InvokeSync(
	ctx context.Context,
	sessionID string,
	agentName string,
	userContent core.Content,
) (string, []core.Event, error) {
	invocationID, eventsCh, errorsCh, err := e.Invoke(ctx, sessionID, agentName, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for {
		select {
		case <-ctx.Done():
			return invocationID, events, ctx.Err()

		case event, ok := <-eventsCh:
			if !ok {
				// Events channel closed; drain any terminal error.
				select {
				case err := <-errorsCh:
					return invocationID, events, err
				default:
					return invocationID, events, nil
				}
			}
			events = append(events, event)

		case err := <-errorsCh:
			if err != nil {
				return invocationID, events, err
			}
		}
	}
}

func (e *Engine) releaseInvocationSlot() {
	if e.invocationSem != nil {
		<-e.invocationSem
	}
}

// StopInvocation cancels a running invocation by ID. The run's context is
// cancelled, its goroutines wind down and its channels close. Returns an
// error when the ID is unknown or already finished.
func (e *Engine) StopInvocation(invocationID string) error {
	e.invocationsMu.Lock()
	cancel, exists := e.activeInvocations[invocationID]
	e.invocationsMu.Unlock()

	if !exists {
		return fmt.Errorf("invocation %s not found", invocationID)
	}

	cancel()
	return nil
}

// runAgent drives one agent through its Start/Run/Stop lifecycle and fires
// the registered callbacks around it. A before-agent callback returning an
// error vetoes the run.
func (e *Engine) runAgent(runCtx *core.RunContext, agent core.Agent) error {
	cbCtx := &CallbackContext{RunContext: runCtx, AgentID: agent.Name()}

	if e.callbacks != nil {
		cbCtx.CallbackType = CallbackBeforeAgent
		if err := e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackBeforeAgent, cbCtx); err != nil {
			return fmt.Errorf("before-agent callback rejected run: %w", err)
		}
	}

	if err := agent.Start(runCtx); err != nil {
		return err
	}
	defer func() {
		if err := agent.Stop(runCtx); err != nil {
			e.logger.Warn("engine.agent.stop.error", "agent", agent.Name(), "error", err.Error())
		}
		if e.callbacks != nil {
			cbCtx.CallbackType = CallbackAfterAgent
			_ = e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackAfterAgent, cbCtx)
		}
	}()

	if err := agent.Run(runCtx); err != nil {
		if e.callbacks != nil {
			cbCtx.CallbackType = CallbackOnError
			_ = e.callbacks.ExecuteCallbacks(runCtx.Context, CallbackOnError, cbCtx)
		}
		return err
	}

	return nil
}

// processEvents is the per-invocation event pump. For every event the agent
// emits it applies the event's actions to the stores, persists non-partial
// events to the session, forwards the event to the client channel and then
// signals the resume channel so the agent can continue past its persistence
// barrier. Store errors are terminal: they abort the invocation rather than
// leave the session half-written.
func (e *Engine) processEvents(
	ctx context.Context,
	sessionID string,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-agentEmit:
			if !ok {
				// Agent closed its emit channel: normal completion.
				return
			}

			if err := e.applyEventActions(ctx, sessionID, ev); err != nil {
				select {
				case <-ctx.Done():
					return
				case errorsCh <- fmt.Errorf("failed to process event actions: %w", err):
				}
				return
			}

			if !ev.IsPartial() {
				if err := e.sessionStore.AppendEvent(sessionID, ev); err != nil {
					select {
					case <-ctx.Done():
						return
					case errorsCh <- fmt.Errorf("failed to append event to session: %w", err):
					}
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case eventsCh <- ev:
				e.logger.Debug("engine.event.delivered", "event_id", ev.ID, "session_id", sessionID)
			}

			if !ev.IsPartial() {
				select {
				case <-ctx.Done():
					return
				case resumeCh <- struct{}{}:
				default:
					// Resume buffer full; the agent is not waiting.
				}
			}
		}
	}
}

// applyEventActions commits the side effects an event carries: state deltas
// go through the on-state-change callback (which may veto them) and then the
// session store. Transfer and escalate markers are informational at this
// layer; the orchestrator acts on them inside the run.
func (e *Engine) applyEventActions(ctx context.Context, sessionID string, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if e.callbacks != nil {
			cbCtx := &CallbackContext{Event: &ev, AgentID: ev.Author, CallbackType: CallbackOnStateChange}
			if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, cbCtx); err != nil {
				return fmt.Errorf("state change rejected: %w", err)
			}
		}

		if err := e.sessionStore.ApplyDelta(sessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if ev.Actions.TransferToAgent != nil && *ev.Actions.TransferToAgent != "" {
		e.logger.Debug("engine.event.transfer_to_agent", "target", *ev.Actions.TransferToAgent, "session_id", sessionID)
	}

	if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
		e.logger.Debug("engine.event.escalate", "session_id", sessionID)
	}

	return nil
}

// GetSession returns a point-in-time snapshot of a session. The HTTP layer
// reads the orchestrator's results out of it after InvokeSync returns.
func (e *Engine) GetSession(sessionID string) (*core.Session, error) {
	return e.sessionStore.Get(sessionID)
}
