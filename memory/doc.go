// Package memory contains concrete implementations of core.MemoryStore,
// the engine's long-term recall across sessions. The in-memory store here
// indexes completed conversations by keyword; agents reach it through
// ToolContext.SearchMemory and StoreMemory. Depend on the core interface so
// a vector-backed store can be swapped in at wiring time.
package memory
