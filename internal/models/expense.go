package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money going out from money coming in.
type TransactionType string

const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// Frequency is the recurrence cadence of a recurring transaction.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Expense is a single recorded transaction. Despite the name it also covers income.
type Expense struct {
	ID                 int64           `json:"id"`
	Title              string          `json:"title"`
	Amount             decimal.Decimal `json:"amount"`
	CategoryID         int64           `json:"categoryId"`
	CategoryName       string          `json:"categoryName,omitempty"`
	CategoryColor      string          `json:"categoryColor,omitempty"`
	Date               Date            `json:"date"`
	Type               TransactionType `json:"type"`
	PaymentMethod      string          `json:"paymentMethod,omitempty"`
	Tags               []string        `json:"tags"`
	IsRecurring        bool            `json:"isRecurring"`
	RecurringFrequency Frequency       `json:"recurringFrequency,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// ExpensePatch carries a partial update. Nil fields are left untouched.
type ExpensePatch struct {
	Title              *string          `json:"title"`
	Amount             *decimal.Decimal `json:"amount"`
	CategoryID         *int64           `json:"categoryId"`
	Date               *Date            `json:"date"`
	Type               *TransactionType `json:"type"`
	PaymentMethod      *string          `json:"paymentMethod"`
	Tags               *[]string        `json:"tags"`
	IsRecurring        *bool            `json:"isRecurring"`
	RecurringFrequency *Frequency       `json:"recurringFrequency"`
}

// Empty reports whether the patch changes nothing.
func (p ExpensePatch) Empty() bool {
	return p.Title == nil && p.Amount == nil && p.CategoryID == nil && p.Date == nil &&
		p.Type == nil && p.PaymentMethod == nil && p.Tags == nil && p.IsRecurring == nil &&
		p.RecurringFrequency == nil
}

// ExpenseFilter narrows an expense listing. Zero values mean "no filter".
type ExpenseFilter struct {
	CategoryID  int64
	Type        TransactionType
	DateFrom    *Date
	DateTo      *Date
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Search      string
	Tags        []string
	IsRecurring *bool
	Limit       int
	Offset      int
}

// Summary aggregates a set of transactions.
type Summary struct {
	TotalExpenses  decimal.Decimal `json:"totalExpenses"`
	TotalIncome    decimal.Decimal `json:"totalIncome"`
	ExpenseCount   int             `json:"expenseCount"`
	IncomeCount    int             `json:"incomeCount"`
	AverageExpense decimal.Decimal `json:"averageExpense"`
	AverageIncome  decimal.Decimal `json:"averageIncome"`
	NetAmount      decimal.Decimal `json:"netAmount"`
}
