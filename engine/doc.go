// Package engine runs registered agents against sessions.
//
// The engine is the layer between the HTTP API and the agents: it looks up
// the requested agent, builds a core.RunContext over the configured stores,
// persists the user's message, and then pumps the agent's event stream
// through a pipeline that applies state deltas, appends events to the
// session and forwards them to the caller.
//
// Invoke streams events as they are produced; InvokeSync drains the stream
// and returns everything at once, which is what the chat endpoint uses.
// Each invocation runs in its own goroutine pair with a cancellable context,
// so StopInvocation and request timeouts interrupt cleanly.
//
// The callback system (CallbackManager) hooks the lifecycle: the metrics
// collector registers hooks for agent start/stop and errors, and state
// validation hooks can veto a delta before it reaches the session store.
//
// Typical wiring:
//
//	eng := engine.New(func(o *engine.Options) {
//	    o.SessionStore = redisSessions
//	    o.ArtifactStore = s3Artifacts
//	    o.Logger = logger
//	    o.Callbacks = callbacks
//	})
//	eng.Register(orchestrator)
//	_, events, err := eng.InvokeSync(ctx, sessionID, orchestrator.Name(), content)
package engine
