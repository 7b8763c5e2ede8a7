// Package model abstracts the language model providers behind one interface.
//
// The Model interface unifies streaming and non-streaming generation, and
// ToolDefinition / ToolCall normalize function calling across vendors. The
// anthropic and openai subpackages adapt their SDKs to this interface; flows
// and agents never see a vendor type. MockModel provides scripted responses
// for tests.
package model
