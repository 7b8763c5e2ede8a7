package agent

import "strings"

// Intent labels the dominant topic of a cardholder query. Classification is
// rule based; swapping in a model-backed classifier only requires replacing
// ClassifyIntent since downstream routing keys off the Intent value.
type Intent string

const (
	IntentPolicyQuery        Intent = "policy_query"
	IntentAccountManagement  Intent = "account_management"
	IntentTransactionInquiry Intent = "transaction_inquiry"
	IntentDisputeFiling      Intent = "dispute_filing"
	IntentAnalyticsRequest   Intent = "analytics_request"
	IntentEscalation         Intent = "escalation"
	IntentMultiDomain        Intent = "multi_domain"
	IntentGeneralQuestion    Intent = "general_question"
)

// Classification is the outcome of intent analysis for a single query.
type Classification struct {
	Intent Intent
	// RequiresCollaboration is set when the query touches two or more
	// distinct domains and a secondary agent should be consulted.
	RequiresCollaboration bool
	// Domains lists the domain groups matched for multi-domain queries.
	Domains []string
}

// Ordered intent rules. First match wins, mirroring a routing table.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentPolicyQuery, []string{"policy", "benefit", "fee", "eligibility", "what is", "explain"}},
	{IntentAccountManagement, []string{"balance", "limit", "account", "credit", "authorized user"}},
	{IntentTransactionInquiry, []string{"transaction", "charge", "statement", "purchase"}},
	{IntentDisputeFiling, []string{"dispute", "fraud", "unauthorized"}},
	{IntentAnalyticsRequest, []string{"analytics", "spending", "trend", "report", "budget"}},
	{IntentEscalation, []string{"escalate", "manager", "complaint", "speak to"}},
}

// Domain groups used for multi-domain detection. A query matching two or more
// groups is promoted to IntentMultiDomain.
var domainGroups = []struct {
	name     string
	keywords []string
}{
	{"policy", []string{"policy", "benefit", "fee"}},
	{"account", []string{"balance", "limit", "account"}},
	{"transaction", []string{"transaction", "charge"}},
	{"analytics", []string{"analytics", "spending", "report"}},
}

// ClassifyIntent runs rule-based intent classification over the raw query.
func ClassifyIntent(query string) Classification {
	q := strings.ToLower(query)

	cls := Classification{Intent: IntentGeneralQuestion}
	for _, rule := range intentRules {
		if containsAny(q, rule.keywords) {
			cls.Intent = rule.intent
			break
		}
	}

	for _, group := range domainGroups {
		if containsAny(q, group.keywords) {
			cls.Domains = append(cls.Domains, group.name)
		}
	}

	if len(cls.Domains) >= 2 {
		cls.Intent = IntentMultiDomain
		cls.RequiresCollaboration = true
	}

	return cls
}

func containsAny(query string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			return true
		}
	}
	return false
}

// countMatches returns how many of the keywords occur in the query.
func countMatches(query string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(query, kw) {
			n++
		}
	}
	return n
}
