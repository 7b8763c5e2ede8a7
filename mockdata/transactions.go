package mockdata

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transaction is a single card transaction.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	Merchant      string    `json:"merchant"`
	Category      string    `json:"category"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Location      string    `json:"location"`
	International bool      `json:"international"`
	RewardsEarned int       `json:"rewards_earned"`
}

// Dispute records a filed transaction dispute.
type Dispute struct {
	DisputeID          string  `json:"dispute_id"`
	CaseNumber         string  `json:"case_number"`
	TransactionID      string  `json:"transaction_id"`
	Reason             string  `json:"reason"`
	Status             string  `json:"status"`
	FiledDate          string  `json:"filed_date"`
	ExpectedResolution string  `json:"expected_resolution"`
	ProvisionalCredit  float64 `json:"provisional_credit"`
	CreditDate         string  `json:"credit_date,omitempty"`
}

type merchantProfile struct {
	name     string
	category string
	base     float64
}

var merchants = []merchantProfile{
	{"Amazon Canada", "Online Shopping", 156.43},
	{"Starbucks", "Dining", 12.75},
	{"Shell Gas Station", "Fuel", 85.20},
	{"Air Canada", "Travel", 1245.00},
	{"Hilton Hotels", "Travel", 389.50},
	{"Office Depot", "Office Supplies", 234.67},
	{"Uber", "Transportation", 45.30},
	{"Rogers", "Telecom", 125.99},
	{"Tim Hortons", "Dining", 8.95},
	{"Best Buy", "Electronics", 567.89},
	{"Staples", "Office Supplies", 98.45},
	{"Delta Hotels", "Travel", 295.00},
	{"Esso", "Fuel", 72.50},
	{"LinkedIn Premium", "Software", 39.99},
	{"Microsoft Azure", "Cloud Services", 450.00},
}

var locations = []string{"Toronto, ON", "Vancouver, BC", "Montreal, QC", "Online"}

// TransactionService serves transaction history and dispute filing.
// Transactions are generated once at construction, one per day going back
// from now, so repeated queries see a stable ledger. Safe for concurrent use.
type TransactionService struct {
	mu           sync.RWMutex
	transactions []Transaction
	disputes     map[string]*Dispute
	rng          *rand.Rand
}

// NewTransactionService generates 30 days of mock transaction history using
// the given seed, anchored to the current UTC day. The same seed yields the
// same ledger for any two services built on the same day; use
// NewTransactionServiceAt for a fully fixed ledger.
func NewTransactionService(seed int64) *TransactionService {
	return NewTransactionServiceAt(seed, time.Now().UTC().Truncate(24*time.Hour))
}

// NewTransactionServiceAt generates the ledger anchored to base. The same
// seed and base always yield the same ledger.
func NewTransactionServiceAt(seed int64, base time.Time) *TransactionService {
	rng := rand.New(rand.NewSource(seed))

	txns := make([]Transaction, 0, 30)
	for i := 0; i < 30; i++ {
		m := merchants[rng.Intn(len(merchants))]
		date := base.AddDate(0, 0, -i)

		amount := m.base * (0.8 + rng.Float64()*0.4)

		status := "posted"
		if i <= 2 {
			status = "pending"
		}

		txns = append(txns, Transaction{
			TransactionID: fmt.Sprintf("TXN-%d%06d", date.Year(), rng.Intn(1000000)),
			Date:          date,
			Merchant:      m.name,
			Category:      m.category,
			Amount:        round2(amount),
			Currency:      "CAD",
			Status:        status,
			Location:      locations[rng.Intn(len(locations))],
			International: rng.Float64() < 0.1,
			RewardsEarned: rng.Intn(91) + 10,
		})
	}

	return &TransactionService{
		transactions: txns,
		disputes:     make(map[string]*Dispute),
		rng:          rng,
	}
}

// GetRecent returns the most recent transactions, newest first.
func (s *TransactionService) GetRecent(limit int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.transactions) {
		limit = len(s.transactions)
	}

	out := make([]Transaction, limit)
	copy(out, s.transactions[:limit])

	return out
}

// GetByID looks up a single transaction.
func (s *TransactionService) GetByID(transactionID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.transactions {
		if s.transactions[i].TransactionID == transactionID {
			cp := s.transactions[i]
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("transaction %s not found", transactionID)
}

// Search filters transactions by merchant substring, category, and amount
// range. Zero values leave the corresponding filter open.
func (s *TransactionService) Search(merchant, category string, minAmount, maxAmount float64) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, t := range s.transactions {
		if merchant != "" && !strings.Contains(strings.ToLower(t.Merchant), strings.ToLower(merchant)) {
			continue
		}
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		if minAmount > 0 && t.Amount < minAmount {
			continue
		}
		if maxAmount > 0 && t.Amount > maxAmount {
			continue
		}
		out = append(out, t)
	}

	return out
}

// All returns a copy of the full ledger, newest first.
func (s *TransactionService) All() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)

	return out
}

// FileDispute opens a dispute for the given transaction. Disputed amounts
// over $100 receive a provisional credit within 10 days; resolution is
// expected within 45 days.
func (s *TransactionService) FileDispute(transactionID, reason string) (*Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txn *Transaction
	for i := range s.transactions {
		if s.transactions[i].TransactionID == transactionID {
			txn = &s.transactions[i]
			break
		}
	}
	if txn == nil {
		return nil, fmt.Errorf("transaction %s not found", transactionID)
	}

	now := time.Now()

	d := &Dispute{
		DisputeID:          fmt.Sprintf("DSP-%d%06d", now.Year(), s.rng.Intn(1000000)),
		CaseNumber:         fmt.Sprintf("CASE-%05d", s.rng.Intn(100000)),
		TransactionID:      transactionID,
		Reason:             reason,
		Status:             "submitted",
		FiledDate:          now.Format(time.RFC3339),
		ExpectedResolution: now.AddDate(0, 0, 45).Format("2006-01-02"),
	}

	if txn.Amount > 100 {
		d.ProvisionalCredit = txn.Amount
		d.CreditDate = now.AddDate(0, 0, 10).Format("2006-01-02")
	}

	s.disputes[d.DisputeID] = d

	return d, nil
}

// GetDispute returns a previously filed dispute.
func (s *TransactionService) GetDispute(disputeID string) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.disputes[disputeID]
	if !ok {
		return nil, fmt.Errorf("dispute %s not found", disputeID)
	}

	cp := *d

	return &cp, nil
}

// TopMerchants aggregates spending per merchant, largest total first.
func (s *TransactionService) TopMerchants(limit int) []MerchantTotal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*MerchantTotal)
	for _, t := range s.transactions {
		mt, ok := totals[t.Merchant]
		if !ok {
			mt = &MerchantTotal{Merchant: t.Merchant}
			totals[t.Merchant] = mt
		}
		mt.Total = round2(mt.Total + t.Amount)
		mt.Count++
	}

	out := make([]MerchantTotal, 0, len(totals))
	for _, mt := range totals {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}

	return out
}

// MerchantTotal is the per-merchant spending aggregate.
type MerchantTotal struct {
	Merchant string  `json:"merchant"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
