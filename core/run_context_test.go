package core

import "testing"

func TestRunContext_EmitEventStateAndArtifacts(t *testing.T) {
	rc, emitCh := newRunContextForTest()
	rc.SetState("detected_intent", "transaction_inquiry")
	rc.AddArtifact("spending-report.csv")
	ev := NewEvent(rc.RunID, "TransactionAgent")
	if err := rc.EmitEvent(ev); err != nil {
		t.Fatalf("EmitEvent error: %v", err)
	}
	received := <-emitCh
	if received.Actions.StateDelta["detected_intent"].(string) != "transaction_inquiry" {
		t.Fatalf("State delta missing: %+v", received.Actions)
	}
	if received.Actions.ArtifactDelta["spending-report.csv"] != 1 {
		t.Fatalf("Artifact delta missing: %+v", received.Actions)
	}
	if len(rc.StateDelta) != 0 || len(rc.Artifacts) != 0 {
		t.Fatal("StateDelta & Artifacts should clear after emit")
	}
}

func TestRunContext_CommitStateDelta(t *testing.T) {
	rc, _ := newRunContextForTest()
	sSvc := rc.SessionStore.(*icMockSessionService)
	rc.SetState("escalation_ticket", "TICK-20260830-001")
	if err := rc.CommitStateDelta(); err != nil {
		t.Fatalf("CommitStateDelta error: %v", err)
	}
	if sSvc.applied == nil || sSvc.applied[rc.SessionID]["escalation_ticket"].(string) != "TICK-20260830-001" {
		t.Fatalf("State delta not applied: %+v", sSvc.applied)
	}
	if len(rc.StateDelta) != 0 {
		t.Error("StateDelta should be cleared after commit")
	}
}

func TestRunContext_CloneIsolation(t *testing.T) {
	rc, _ := newRunContextForTest()
	rc.SetState("routing_confidence", 0.92)
	rc.AddArtifact("receipt-scan.png")
	clone := rc.Clone()
	if clone.Session != rc.Session {
		t.Error("Session pointer should be shared")
	}
	clone.SetState("secondary_agent", "AnalyticsAgent")
	if _, exists := rc.StateDelta["secondary_agent"]; exists {
		t.Error("Original should not have clone's new state")
	}
	if v, _ := clone.GetState("routing_confidence"); v.(float64) != 0.92 {
		t.Error("Clone missing original state")
	}
}

func TestRunContext_WithBranch(t *testing.T) {
	rc, _ := newRunContextForTest()
	branched := rc.WithBranch("Orchestrator.PolicyAgent")
	if branched.Branch != "Orchestrator.PolicyAgent" {
		t.Errorf("Expected branch Orchestrator.PolicyAgent, got %s", branched.Branch)
	}
	if rc.Branch != "" {
		t.Error("Original branch should remain empty")
	}
}
