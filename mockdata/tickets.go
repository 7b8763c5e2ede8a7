package mockdata

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Ticket is an escalation ticket handed to the human support team.
type Ticket struct {
	TicketID    string   `json:"ticket_id"`
	CaseNumber  string   `json:"case_number"`
	Type        string   `json:"type"`
	Priority    string   `json:"priority"`
	Summary     string   `json:"summary"`
	Details     string   `json:"details"`
	Status      string   `json:"status"`
	AssignedTo  string   `json:"assigned_to"`
	CreatedAt   string   `json:"created_at"`
	ResponseSLA string   `json:"response_sla"`
	NextSteps   []string `json:"next_steps"`
}

// slaByPriority maps ticket priority to the committed first-response window.
var slaByPriority = map[string]string{
	"critical": "2 hours",
	"high":     "24 hours",
	"medium":   "48 hours",
	"low":      "72 hours",
}

// priorityByType maps escalation type to its default priority.
var priorityByType = map[string]string{
	"fraud_security":     "critical",
	"account_closure":    "high",
	"technical_issue":    "high",
	"complaint":          "medium",
	"general_escalation": "medium",
}

// teamByType routes each escalation type to its specialist team.
var teamByType = map[string]string{
	"fraud_security":     "Fraud Prevention Team",
	"account_closure":    "Account Services Team",
	"complaint":          "Customer Relations Team",
	"technical_issue":    "Technical Support Team",
	"general_escalation": "Senior Support Team",
}

// NextSteps returns the post-escalation checklist shared with the customer
// for the given escalation type.
func NextSteps(escalationType string) []string {
	switch escalationType {
	case "fraud_security":
		return []string{
			"Card has been flagged for review",
			"Fraud specialist will contact you within 2 hours",
			"Do not use the card until cleared",
			"Monitor your account for suspicious activity",
			"Keep all relevant documentation",
		}
	case "account_closure":
		return []string{
			"Account closure request received",
			"Specialist will verify your identity",
			"Outstanding balance must be cleared",
			"Rewards points will be forfeited unless redeemed",
			"Final confirmation required before processing",
		}
	case "complaint":
		return []string{
			"Your feedback has been documented",
			"Customer Relations team will review",
			"You will receive a detailed response",
			"Case manager assigned to your issue",
			"Follow-up within 24-48 hours",
		}
	default:
		return []string{
			"Your issue has been escalated",
			"A specialist will review your case",
			"You will receive email updates",
			"Expected response time provided below",
			"Reference your case number for follow-up",
		}
	}
}

// TicketService files and tracks escalation tickets. Safe for concurrent use.
type TicketService struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
	rng     *rand.Rand
}

// NewTicketService returns an empty ticket store.
func NewTicketService(seed int64) *TicketService {
	return &TicketService{
		tickets: make(map[string]*Ticket),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Create files a new escalation ticket. Unknown escalation types fall back
// to general_escalation priority.
func (s *TicketService) Create(escalationType, summary, details string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priority, ok := priorityByType[escalationType]
	if !ok {
		escalationType = "general_escalation"
		priority = priorityByType[escalationType]
	}

	now := time.Now()

	t := &Ticket{
		TicketID:    fmt.Sprintf("ESC-%d%06d", now.Year(), s.rng.Intn(1000000)),
		CaseNumber:  fmt.Sprintf("CASE-%05d", 10000+s.rng.Intn(90000)),
		Type:        escalationType,
		Priority:    priority,
		Summary:     summary,
		Details:     details,
		Status:      "open",
		AssignedTo:  teamByType[escalationType],
		CreatedAt:   now.Format(time.RFC3339),
		ResponseSLA: slaByPriority[priority],
		NextSteps:   NextSteps(escalationType),
	}

	s.tickets[t.TicketID] = t

	return t, nil
}

// Get returns a ticket by id.
func (s *TicketService) Get(ticketID string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %s not found", ticketID)
	}

	cp := *t

	return &cp, nil
}
