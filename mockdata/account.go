// Package mockdata provides deterministic in-memory implementations of the
// banking backends the assistant talks to. In production these would be
// replaced by real card-platform API clients; the data shapes are the
// integration contract.
package mockdata

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Account holds the full card account profile returned by the account backend.
type Account struct {
	AccountID            string   `json:"account_id"`
	CardholderName       string   `json:"cardholder_name"`
	CardType             string   `json:"card_type"`
	CardLast4            string   `json:"card_number_last4"`
	CreditLimit          float64  `json:"credit_limit"`
	CurrentBalance       float64  `json:"current_balance"`
	AvailableCredit      float64  `json:"available_credit"`
	StatementDate        string   `json:"statement_date"`
	PaymentDueDate       string   `json:"payment_due_date"`
	MinimumPayment       float64  `json:"minimum_payment"`
	RewardsPoints        int      `json:"rewards_points"`
	RewardsValue         float64  `json:"rewards_value"`
	AccountStatus        string   `json:"account_status"`
	CardStatus           string   `json:"card_status"`
	AuthorizedUsers      int      `json:"authorized_users"`
	PerTransactionLimit  float64  `json:"spending_limit_per_transaction"`
	DailySpendingLimit   float64  `json:"daily_spending_limit"`
	InternationalEnabled bool     `json:"international_enabled"`
	ContactlessEnabled   bool     `json:"contactless_enabled"`
	EnrolledPrograms     []string `json:"enrolled_programs"`
}

// BalanceSummary is the condensed balance view for quick answers.
type BalanceSummary struct {
	CreditLimit           float64 `json:"credit_limit"`
	CurrentBalance        float64 `json:"current_balance"`
	AvailableCredit       float64 `json:"available_credit"`
	PendingTransactions   float64 `json:"pending_transactions"`
	AvailableAfterPending float64 `json:"available_after_pending"`
}

// Rewards describes the rewards program position for an account.
type Rewards struct {
	PointsBalance     int               `json:"points_balance"`
	PointsValue       float64           `json:"points_value"`
	PointsExpiring    int               `json:"points_expiring"`
	ExpiryDate        string            `json:"expiry_date"`
	EarningRates      map[string]string `json:"earning_rates"`
	RedemptionOptions []string          `json:"redemption_options"`
}

// AccountService serves card account data. Safe for concurrent use.
type AccountService struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	rng      *rand.Rand
}

const defaultAccountID = "demo_account_1"

// NewAccountService seeds the service with the demo corporate account.
func NewAccountService() *AccountService {
	return &AccountService{
		accounts: map[string]*Account{
			defaultAccountID: {
				AccountID:            "ACC-BMO-2024-001",
				CardholderName:       "Demo User",
				CardType:             "BMO Corporate World Elite Mastercard",
				CardLast4:            "8247",
				CreditLimit:          25000.00,
				CurrentBalance:       4850.75,
				AvailableCredit:      20149.25,
				StatementDate:        "2024-01-31",
				PaymentDueDate:       "2024-02-15",
				MinimumPayment:       145.00,
				RewardsPoints:        24580,
				RewardsValue:         245.80,
				AccountStatus:        "active",
				CardStatus:           "active",
				AuthorizedUsers:      2,
				PerTransactionLimit:  5000.00,
				DailySpendingLimit:   10000.00,
				InternationalEnabled: true,
				ContactlessEnabled:   true,
				EnrolledPrograms:     []string{"travel_insurance", "purchase_protection", "extended_warranty"},
			},
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetAccount returns the account profile. An empty id resolves to the demo
// account, mirroring the single-tenant demo backend.
func (s *AccountService) GetAccount(accountID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if accountID == "" {
		accountID = defaultAccountID
	}

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}

	cp := *acct
	cp.EnrolledPrograms = append([]string(nil), acct.EnrolledPrograms...)

	return &cp, nil
}

// GetBalanceSummary returns the condensed balance view including a mock
// pending amount.
func (s *AccountService) GetBalanceSummary(accountID string) (*BalanceSummary, error) {
	acct, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	const pending = 325.50

	return &BalanceSummary{
		CreditLimit:           acct.CreditLimit,
		CurrentBalance:        acct.CurrentBalance,
		AvailableCredit:       acct.AvailableCredit,
		PendingTransactions:   pending,
		AvailableAfterPending: acct.AvailableCredit - pending,
	}, nil
}

// GetRewards returns the rewards program snapshot.
func (s *AccountService) GetRewards(accountID string) (*Rewards, error) {
	acct, err := s.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	return &Rewards{
		PointsBalance:  acct.RewardsPoints,
		PointsValue:    acct.RewardsValue,
		PointsExpiring: 1250,
		ExpiryDate:     "2025-06-30",
		EarningRates: map[string]string{
			"travel": "3 points per $1",
			"dining": "2 points per $1",
			"other":  "1 point per $1",
		},
		RedemptionOptions: []string{"travel", "cash_back", "merchandise", "statement_credit"},
	}, nil
}

// UpdateSpendingLimit changes a per-transaction or daily spending limit and
// returns the previous value. limitType must be "transaction" or "daily".
func (s *AccountService) UpdateSpendingLimit(accountID, limitType string, newLimit float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accountID == "" {
		accountID = defaultAccountID
	}

	acct, ok := s.accounts[accountID]
	if !ok {
		return 0, fmt.Errorf("account %s not found", accountID)
	}

	var old float64
	switch limitType {
	case "transaction":
		old = acct.PerTransactionLimit
		acct.PerTransactionLimit = newLimit
	case "daily":
		old = acct.DailySpendingLimit
		acct.DailySpendingLimit = newLimit
	default:
		return 0, fmt.Errorf("invalid limit type %q", limitType)
	}

	return old, nil
}

// AuthorizedUser describes a newly added cardholder.
type AuthorizedUser struct {
	Name          string  `json:"name"`
	CardLast4     string  `json:"card_last4"`
	Status        string  `json:"status"`
	SpendingLimit float64 `json:"spending_limit"`
	AddedDate     string  `json:"added_date"`
}

// AddAuthorizedUser registers an additional cardholder on the account.
// A zero spendingLimit applies the default of 2500.
func (s *AccountService) AddAuthorizedUser(accountID, name string, spendingLimit float64) (*AuthorizedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accountID == "" {
		accountID = defaultAccountID
	}

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}

	if spendingLimit <= 0 {
		spendingLimit = 2500.00
	}

	user := &AuthorizedUser{
		Name:          name,
		CardLast4:     fmt.Sprintf("%04d", s.rng.Intn(9000)+1000),
		Status:        "pending_activation",
		SpendingLimit: spendingLimit,
		AddedDate:     time.Now().Format(time.RFC3339),
	}

	acct.AuthorizedUsers++

	return user, nil
}

// SetCardStatus updates the card status (active, blocked, frozen, replaced).
func (s *AccountService) SetCardStatus(accountID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accountID == "" {
		accountID = defaultAccountID
	}

	acct, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s not found", accountID)
	}

	acct.CardStatus = status

	return nil
}
