package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardassist/cardassist/agent"
	"github.com/cardassist/cardassist/docstore"
	"github.com/cardassist/cardassist/engine"
	"github.com/cardassist/cardassist/metrics"
	"github.com/cardassist/cardassist/mockdata"
	"github.com/cardassist/cardassist/model"
	"github.com/cardassist/cardassist/rag"
	"github.com/cardassist/cardassist/rag/vectorstore"
	"github.com/cardassist/cardassist/session"
)

// stubEmbedder returns fixed vectors so retrieval works without a real
// embedding backend.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "fee") {
			out[i] = []float32{1, 0, 0}
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *metrics.Collector) {
	t.Helper()

	docs := docstore.NewInMemoryStore()
	docs.Put("corporate-card-policy.md", []byte("The annual fee is waived for all corporate cardholders enrolled in the rewards program."))

	kb := rag.NewManager(docs, stubEmbedder{}, vectorstore.NewInMemoryStore())
	require.NoError(t, kb.Sync(context.Background()))

	llm := model.NewMockModel("mock", "test")
	accounts := mockdata.NewAccountService()
	txns := mockdata.NewTransactionService(42)

	orch, err := agent.NewOrchestrator(
		agent.NewPolicyAgent(llm, kb),
		agent.NewAccountAgent(llm, accounts),
		agent.NewTransactionAgent(llm, txns),
		agent.NewAnalyticsAgent(llm, mockdata.NewAnalyticsService(txns, 42)),
		agent.NewEscalationAgent(llm, mockdata.NewTicketService(42)),
	)
	require.NoError(t, err)

	sessions := session.NewInMemoryStore()
	collector := metrics.NewCollector()
	callbacks := engine.NewCallbackManager()
	collector.Register(callbacks)

	eng := engine.New(func(o *engine.Options) {
		o.SessionStore = sessions
		o.Callbacks = callbacks
	})
	eng.Register(orch)

	srv := New(eng, func(o *Options) {
		o.Sessions = sessions
		o.Knowledge = kb
		o.Documents = docs
		o.Metrics = collector
	})
	return srv, collector
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestChat_AccountQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postChat(t, srv, `{
		"messages": [{"text": "What is my current balance?", "isUser": true}],
		"context": {"account_id": "acct-1"}
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.Text)
	assert.NotEmpty(t, resp.FollowUpOptions)
	assert.Equal(t, "account_management", resp.Agent.Intent)
	assert.Equal(t, "account", resp.Agent.PrimaryAgent)
	assert.InDelta(t, 0.95, resp.Agent.Confidence, 0.001)

	// Context round-trips with the session id attached.
	var ctxMap map[string]any
	require.NoError(t, json.Unmarshal(resp.Context, &ctxMap))
	assert.Equal(t, "acct-1", ctxMap["account_id"])
	assert.NotEmpty(t, ctxMap["session_id"])

	// Balance queries carry a data quote.
	require.NotNil(t, resp.Quote)
	var quote map[string]any
	require.NoError(t, json.Unmarshal(resp.Quote, &quote))
	assert.InDelta(t, 4850.75, quote["current_balance"], 0.001)
}

func TestChat_PolicyQuoteFromKnowledgeBase(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postChat(t, srv, `{"messages": [{"text": "What is the annual fee?", "isUser": true}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "policy_query", resp.Agent.Intent)
	assert.Equal(t, "policy", resp.Agent.PrimaryAgent)

	require.NotNil(t, resp.Quote)
	var quote map[string]any
	require.NoError(t, json.Unmarshal(resp.Quote, &quote))
	assert.Equal(t, "corporate-card-policy.md", quote["source"])
	assert.Contains(t, quote["text"], "annual fee")
}

func TestChat_EmptyMessages(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postChat(t, srv, `{"messages": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postChat(t, srv, `{"messages": [{"text": "hi", "isUser": false}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := postChat(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_SessionContinuity(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := postChat(t, srv, `{
		"messages": [{"text": "There is a fraudulent charge on my card", "isUser": true}],
		"session_id": "sess-esc"
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var first chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.Contains(t, first.Agent.ConsultedAgents, "escalation")
	assert.InDelta(t, 1.0, first.Agent.Confidence, 0.001)
	// Gathering phase: questions first, no ticket yet.
	assert.Nil(t, first.Agent.Escalation)

	// Second turn on the same session skips the questions and files a ticket.
	rr = postChat(t, srv, `{
		"messages": [{"text": "Skip questions and escalate now", "isUser": true}],
		"session_id": "sess-esc"
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var second chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	require.NotNil(t, second.Agent.Escalation)
	var ticket map[string]any
	require.NoError(t, json.Unmarshal(second.Agent.Escalation, &ticket))
	assert.Equal(t, "fraud_security", ticket["type"])
	assert.Equal(t, "critical", ticket["priority"])
}

func TestChat_UnknownAgentDegrades(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.opts.AgentName = "missing"

	rr := postChat(t, srv, `{"messages": [{"text": "hello", "isUser": true}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, chatFallbackText, resp.Text)
	assert.Equal(t, "error_handler", resp.Agent.PrimaryAgent)
	assert.Contains(t, resp.FollowUpOptions, "Contact support")
}

func TestRagStats(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rag/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats rag.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, rag.StatusReady, stats.Status)
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestRagIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/rag/index", bytes.NewBufferString(`{"reindex": true}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats rag.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, rag.StatusReady, stats.Status)

	// Empty body triggers an incremental sync.
	req = httptest.NewRequest(http.MethodPost, "/rag/index", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDocuments(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/corporate-card-policy.md", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/markdown", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "annual fee")

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/missing.md", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	// A chat turn first so counters exist.
	postChat(t, srv, `{"messages": [{"text": "What is my balance?", "isUser": true}]}`)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cardassist_chat_queries_total")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("  short text  ", 240))

	long := strings.Repeat("receipts required over $25 ", 20)
	got := snippet(long, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 103)

	// Multibyte text must not be cut mid-rune.
	accented := strings.Repeat("prépayé çà ", 40)
	got = snippet(accented, 100)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
