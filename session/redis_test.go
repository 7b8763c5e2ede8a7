package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardassist/cardassist/core"
	"github.com/cardassist/cardassist/internal/testutil"
)

var _ core.SessionStore = (*RedisStore)(nil)

func newTestRedisStore(t *testing.T, opts ...RedisOption) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...)
}

func TestRedisStore_GetCreatesLazily(t *testing.T) {
	store := newTestRedisStore(t)

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Empty(t, sess.Events)

	again, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)
}

func TestRedisStore_AppendEventRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)

	ev := core.NewUserMessageEvent("run-1", "What is my balance?")
	ev.Actions.StateDelta = map[string]any{"intent": "account_management"}
	require.NoError(t, store.AppendEvent("sess-1", ev))

	toolEv := core.NewFunctionResponseEvent("AccountAgent", "call-1", "update_spending_limit",
		map[string]any{"status": "updated"}, nil)
	require.NoError(t, store.AppendEvent("sess-1", toolEv))

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)

	// Heterogeneous parts must survive serialization.
	first := sess.Events[0]
	require.NotNil(t, first.Content)
	require.Len(t, first.Content.Parts, 1)
	tp, ok := first.Content.Parts[0].(core.TextPart)
	require.True(t, ok)
	assert.Equal(t, "What is my balance?", tp.Text)
	assert.Equal(t, "account_management", first.Actions.StateDelta["intent"])

	second := sess.Events[1]
	require.NotNil(t, second.Content)
	require.Len(t, second.Content.Parts, 1)
	fr, ok := second.Content.Parts[0].(core.FunctionResponsePart)
	require.True(t, ok)
	assert.Equal(t, "update_spending_limit", fr.FunctionResponse.Name)
}

func TestRedisStore_FunctionCallRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)

	ev := testutil.NewEventBuilder().
		Author("AccountAgent").
		Invocation("run-9").
		Branch("SupportOrchestrator.AccountAgent").
		FunctionCall("add_authorized_user", `{"name":"Dana"}`).
		Build()
	require.NoError(t, store.AppendEvent("sess-2", ev))

	sess, err := store.Get("sess-2")
	require.NoError(t, err)
	require.Len(t, sess.Events, 1)

	got := sess.Events[0]
	require.NotNil(t, got.Branch)
	assert.Equal(t, "SupportOrchestrator.AccountAgent", *got.Branch)
	require.Len(t, got.Content.Parts, 1)
	fc, ok := got.Content.Parts[0].(core.FunctionCallPart)
	require.True(t, ok)
	assert.Equal(t, "add_authorized_user", fc.FunctionCall.Name)
	assert.JSONEq(t, `{"name":"Dana"}`, fc.FunctionCall.Arguments)
}

func TestSessionJSONRoundTrip(t *testing.T) {
	sess := testutil.NewSessionBuilder("sess-json").
		State(core.StateIntent, "policy_query").
		State(core.StateConfidenceScore, 0.95).
		Events(
			testutil.NewEventBuilder().Author("user").UserText("What fees apply?").Build(),
			testutil.NewEventBuilder().Author("policy").AssistantText("No annual fee.").TurnComplete(true).Build(),
		).
		Build()

	data, err := json.Marshal(sess)
	require.NoError(t, err)

	var got core.Session
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "sess-json", got.ID)
	assert.Equal(t, "policy_query", got.State[core.StateIntent])
	require.Len(t, got.Events, 2)
	tp, ok := got.Events[1].Content.Parts[0].(core.TextPart)
	require.True(t, ok)
	assert.Equal(t, "No annual fee.", tp.Text)
}

func TestRedisStore_ApplyDelta(t *testing.T) {
	store := newTestRedisStore(t)

	require.NoError(t, store.ApplyDelta("sess-1", map[string]any{
		core.StateIntent:          "policy_query",
		core.StateConfidenceScore: 0.95,
	}))
	require.NoError(t, store.ApplyDelta("sess-1", map[string]any{
		core.StateIntent: "multi_domain",
	}))

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	intent, ok := sess.GetState(core.StateIntent)
	require.True(t, ok)
	assert.Equal(t, "multi_domain", intent)
	score, ok := sess.GetState(core.StateConfidenceScore)
	require.True(t, ok)
	assert.InDelta(t, 0.95, score, 0.001)
}

func TestRedisStore_CreateOverwrites(t *testing.T) {
	store := newTestRedisStore(t)

	require.NoError(t, store.AppendEvent("sess-1", core.NewUserMessageEvent("run-1", "hello")))
	sess, err := store.Create("sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Events)
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, WithTTL(time.Minute), WithKeyPrefix("test:"))
	_, err := store.Create("sess-1")
	require.NoError(t, err)

	ttl := mr.TTL("test:sess-1")
	assert.Equal(t, time.Minute, ttl)
}
