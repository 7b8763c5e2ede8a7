// Package core defines the contracts the rest of CardAssist is built on:
//
//   - Agent, the unit of work the engine runs
//   - Session and Event, the conversational record and its entries
//   - RunContext and ToolContext, the scoped execution environments handed
//     to agents and tools
//   - SessionStore, ArtifactStore and MemoryStore, the pluggable persistence
//     interfaces
//
// Implementations live elsewhere (engine, agent, session, artifact, memory);
// this package stays free of storage, transport and vendor concerns so every
// other package can import it without cycles.
package core
