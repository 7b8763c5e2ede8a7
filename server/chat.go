package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cardassist/cardassist/core"
)

// chatFallbackText mirrors the orchestrator's degraded response so even a
// failed invocation produces a usable answer instead of a 500.
const chatFallbackText = "I apologize, but I encountered an error processing your request. Please try again or contact support."

type chatMessage struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}

type chatRequest struct {
	Messages  []chatMessage  `json:"messages"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

type chatAgentInfo struct {
	Intent          string          `json:"intent"`
	PrimaryAgent    string          `json:"primaryAgent"`
	ConsultedAgents []string        `json:"consultedAgents"`
	Confidence      float64         `json:"confidence"`
	Escalation      json.RawMessage `json:"escalation,omitempty"`
	Steps           json.RawMessage `json:"steps,omitempty"`
	Handoffs        json.RawMessage `json:"handoffs,omitempty"`
}

type chatResponse struct {
	Text            string          `json:"text"`
	FollowUpOptions []string        `json:"followUpOptions"`
	Quote           json.RawMessage `json:"quote,omitempty"`
	Context         json.RawMessage `json:"context"`
	Agent           chatAgentInfo   `json:"agent"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := lastUserMessage(req.Messages)
	if query == "" {
		writeError(w, http.StatusBadRequest, "messages must contain at least one user message")
		return
	}

	sessionID := s.resolveSessionID(&req, r)

	// Client context round-trips each turn, so it overwrites what the
	// session held before.
	if len(req.Context) > 0 && s.opts.Sessions != nil {
		if err := s.opts.Sessions.ApplyDelta(sessionID, map[string]any{
			core.StateUserContext: req.Context,
		}); err != nil {
			s.logger.Warn("failed to seed user context", "session_id", sessionID, "error", err)
		}
	}

	content := core.Content{
		Role:  "user",
		Parts: []core.Part{core.TextPart{Text: query}},
	}

	if _, _, err := s.engine.InvokeSync(r.Context(), sessionID, s.opts.AgentName, content); err != nil {
		s.logger.Error("chat invocation failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusOK, s.fallbackResponse(sessionID))
		return
	}

	sess, err := s.engine.GetSession(sessionID)
	if err != nil {
		s.logger.Error("failed to load session after chat", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusOK, s.fallbackResponse(sessionID))
		return
	}

	resp := s.buildChatResponse(r, sessionID, query, sess)
	writeJSON(w, http.StatusOK, resp)
}

// buildChatResponse assembles the API response from session state. State is
// navigated through its JSON form because values are typed structs on the
// in-memory store but generic maps after a Redis round trip.
func (s *Server) buildChatResponse(r *http.Request, sessionID, query string, sess *core.Session) chatResponse {
	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		s.logger.Error("failed to encode session state", "session_id", sessionID, "error", err)
		return s.fallbackResponse(sessionID)
	}
	state := gjson.ParseBytes(stateJSON)

	text := state.Get(core.StateFinalResponse).String()
	if text == "" {
		text = chatFallbackText
	}

	var followUps []string
	for _, opt := range state.Get(core.StateFollowUpOptions).Array() {
		followUps = append(followUps, opt.String())
	}

	info := chatAgentInfo{
		Intent:       state.Get(core.StateIntent).String(),
		PrimaryAgent: state.Get(core.StatePrimaryAgent).String(),
		Confidence:   state.Get(core.StateConfidenceScore).Float(),
	}
	for _, a := range state.Get(core.StateConsultedAgents).Array() {
		info.ConsultedAgents = append(info.ConsultedAgents, a.String())
	}
	if esc := state.Get(core.StateEscalation); esc.IsObject() {
		info.Escalation = json.RawMessage(esc.Raw)
	}
	if steps := state.Get(core.StateAgentSteps); steps.IsArray() {
		info.Steps = json.RawMessage(steps.Raw)
	}
	if handoffs := state.Get(core.StateAgentHandoffs); handoffs.IsArray() {
		info.Handoffs = json.RawMessage(handoffs.Raw)
	}

	var quote json.RawMessage
	if q := state.Get(core.StateQuote); q.IsObject() {
		quote = json.RawMessage(q.Raw)
	} else if info.Intent == "policy_query" {
		quote = s.policyQuote(r, query)
	}

	ctxJSON := []byte("{}")
	if uc := state.Get(core.StateUserContext); uc.IsObject() {
		ctxJSON = []byte(uc.Raw)
	}
	ctxJSON, err = sjson.SetBytes(ctxJSON, "session_id", sessionID)
	if err != nil {
		ctxJSON = []byte(`{"session_id":"` + sessionID + `"}`)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveChat(info.Intent, info.PrimaryAgent, info.Confidence)
		if esc := gjson.GetBytes(info.Escalation, "type"); esc.Exists() {
			s.opts.Metrics.ObserveEscalation(esc.String(), gjson.GetBytes(info.Escalation, "priority").String())
		}
	}

	return chatResponse{
		Text:            text,
		FollowUpOptions: followUps,
		Quote:           quote,
		Context:         ctxJSON,
		Agent:           info,
	}
}

// policyQuote attaches a short citation from the knowledge base when the top
// hit is strong enough.
func (s *Server) policyQuote(r *http.Request, query string) json.RawMessage {
	if s.opts.Knowledge == nil {
		return nil
	}
	results, err := s.opts.Knowledge.Search(r.Context(), query, 1)
	if err != nil || len(results) == 0 {
		return nil
	}
	top := results[0]
	if top.Score < s.opts.QuoteThreshold {
		return nil
	}

	quote, _ := sjson.SetBytes([]byte("{}"), "text", snippet(top.Text, 240))
	quote, _ = sjson.SetBytes(quote, "source", top.Document)
	quote, _ = sjson.SetBytes(quote, "score", top.Score)
	return quote
}

func (s *Server) fallbackResponse(sessionID string) chatResponse {
	ctxJSON, _ := sjson.SetBytes([]byte("{}"), "session_id", sessionID)
	return chatResponse{
		Text:            chatFallbackText,
		FollowUpOptions: []string{"Try again", "Contact support"},
		Context:         ctxJSON,
		Agent: chatAgentInfo{
			Intent:       "general",
			PrimaryAgent: "error_handler",
		},
	}
}

func (s *Server) resolveSessionID(req *chatRequest, r *http.Request) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	if sid, ok := req.Context["session_id"].(string); ok && sid != "" {
		return sid
	}
	if sid := r.Header.Get("X-Session-Id"); sid != "" {
		return sid
	}
	return uuid.NewString()
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser && strings.TrimSpace(messages[i].Text) != "" {
			return strings.TrimSpace(messages[i].Text)
		}
	}
	return ""
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	cut := string(r[:max])
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
