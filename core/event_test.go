package core

import (
	"errors"
	"testing"
)

func TestEvent_Constructors(t *testing.T) {
	e := NewEvent("inv-42", "PolicyAgent")
	if e.Author != "PolicyAgent" || e.InvocationID != "inv-42" || e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewEvent did not initialize fields: %+v", e)
	}

	msg := NewMessageEvent("PolicyAgent", "Receipts are required above $25.")
	if msg.Content == nil || msg.Content.Role != "assistant" || len(msg.Content.Parts) != 1 {
		t.Fatalf("NewMessageEvent malformed: %+v", msg)
	}

	user := NewUserMessageEvent("inv-42", "what is the receipt threshold?")
	if user.Content == nil || user.Content.Role != "user" || user.InvocationID != "inv-42" {
		t.Fatalf("NewUserMessageEvent malformed: %+v", user)
	}
	if user.Content.Parts[0].(TextPart).Text != "what is the receipt threshold?" {
		t.Fatalf("user message text lost: %+v", user.Content.Parts)
	}

	args := `{"card_id":"CARD-001"}`
	fCall := NewFunctionCallEvent("AccountAgent", "get_card_status", args)
	calls := fCall.GetFunctionCalls()
	if len(calls) != 1 || calls[0].Name != "get_card_status" || calls[0].Arguments != args {
		t.Fatalf("GetFunctionCalls extraction failed: %+v", calls)
	}

	fRespOK := NewFunctionResponseEvent("AccountAgent", "call-1", "get_card_status", "active", nil)
	resps := fRespOK.GetFunctionResponses()
	if len(resps) != 1 || resps[0].Response.(string) != "active" || resps[0].Error != "" {
		t.Fatalf("function response success extraction failed: %+v", resps)
	}

	fRespErr := NewFunctionResponseEvent("AccountAgent", "call-2", "get_card_status", nil, errors.New("account service unavailable"))
	resps = fRespErr.GetFunctionResponses()
	if resps[0].Error == "" {
		t.Fatalf("expected error message in function response: %+v", resps[0])
	}
}

func TestEvent_IsFinalResponse(t *testing.T) {
	e := NewEvent("inv", "PolicyAgent")
	if !e.IsFinalResponse() {
		t.Error("plain event should be final")
	}

	partial := true
	e2 := NewEvent("inv", "PolicyAgent")
	e2.Partial = &partial
	if e2.IsFinalResponse() {
		t.Error("streaming fragment should not be final")
	}

	e3 := NewFunctionCallEvent("TransactionAgent", "list_transactions", "")
	if e3.IsFinalResponse() {
		t.Error("event with pending tool call should not be final")
	}

	e4 := NewFunctionResponseEvent("TransactionAgent", "call-3", "list_transactions", "ok", nil)
	if e4.IsFinalResponse() {
		t.Error("tool response event should not be final")
	}

	skip := true
	e5 := NewEvent("inv", "EscalationAgent")
	e5.Partial = &partial
	e5.Actions.SkipSummarization = &skip
	if !e5.IsFinalResponse() {
		t.Error("SkipSummarization should force final")
	}

	e6 := NewEvent("inv", "EscalationAgent")
	e6.LongRunningToolIDs = []string{"create_ticket"}
	if !e6.IsFinalResponse() {
		t.Error("long-running tool hand-off should end the turn")
	}
}

func TestEvent_IDUniqueness(t *testing.T) {
	if NewID() == NewID() {
		t.Error("expected unique IDs")
	}
}

func TestParts_DiscriminatedUnion(t *testing.T) {
	parts := []Part{
		TextPart{Text: "Your balance is $4,850.75."},
		DataPart{Data: map[string]any{"balance": 4850.75}},
		FilePart{File: FilePartFile{URI: "s3://cardassist-docs/travel-policy.pdf"}},
		FunctionCallPart{FunctionCall: FunctionCall{Name: "rag_search"}},
		FunctionResponsePart{FunctionResponse: FunctionResponse{Name: "rag_search"}},
	}
	for _, p := range parts {
		switch pt := p.(type) {
		case TextPart, DataPart, FilePart, FunctionCallPart, FunctionResponsePart:
		default:
			t.Fatalf("unexpected part type: %T (%v)", pt, pt)
		}
	}
}
