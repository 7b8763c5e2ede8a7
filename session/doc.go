// Package session contains concrete implementations of core.SessionStore.
// The interface and the Session struct live in the core package so the
// engine and agents depend on the contract rather than a backend.
//
// Two stores ship here: an in-memory store for tests and single-process
// deployments, and a Redis store with per-session TTLs for running several
// chatbot replicas against shared conversation state. The wiring layer
// picks one at startup; nothing else needs to change.
package session
