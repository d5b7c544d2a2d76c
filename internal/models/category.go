package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups expenses under a monthly budget ceiling.
type Category struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Budget      decimal.Decimal `json:"budget"`
	Color       string          `json:"color"`
	Icon        string          `json:"icon,omitempty"`
	Description string          `json:"description,omitempty"`
	IsActive    bool            `json:"isActive"`
	Show        bool            `json:"show"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CategoryPatch carries a partial update. Nil fields are left untouched.
type CategoryPatch struct {
	Name        *string          `json:"name"`
	Budget      *decimal.Decimal `json:"budget"`
	Color       *string          `json:"color"`
	Icon        *string          `json:"icon"`
	Description *string          `json:"description"`
	IsActive    *bool            `json:"isActive"`
	Show        *bool            `json:"show"`
}

// Empty reports whether the patch changes nothing.
func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Budget == nil && p.Color == nil && p.Icon == nil &&
		p.Description == nil && p.IsActive == nil && p.Show == nil
}

// CategoryFilter narrows a category listing.
type CategoryFilter struct {
	IsActive *bool
	Show     *bool
	Search   string
}

// CategorySpending is a category enriched with how much of its budget is used.
type CategorySpending struct {
	Category
	Spent           decimal.Decimal `json:"spent"`
	Remaining       decimal.Decimal `json:"remaining"`
	PercentageUsed  decimal.Decimal `json:"percentageUsed"`
	IsOverBudget    bool            `json:"isOverBudget"`
	IsCloseToBudget bool            `json:"isCloseToBudget"`
}

// BudgetUtilization summarises spending across every budgeted category.
type BudgetUtilization struct {
	TotalBudget             decimal.Decimal `json:"totalBudget"`
	TotalSpent              decimal.Decimal `json:"totalSpent"`
	TotalRemaining          decimal.Decimal `json:"totalRemaining"`
	OverallPercentage       decimal.Decimal `json:"overallPercentage"`
	OverBudgetCategories    int             `json:"overBudgetCategories"`
	CloseToBudgetCategories int             `json:"closeToBudgetCategories"`
}
