package api

import (
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/models"
)

// CategoryRequest is the request body for creating a category.
type CategoryRequest struct {
	Name        string          `json:"name" example:"Groceries"`
	Budget      decimal.Decimal `json:"budget" example:"300"`
	Color       string          `json:"color" example:"#4caf50"`
	Icon        string          `json:"icon,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (r CategoryRequest) category() models.Category {
	return models.Category{
		Name:        r.Name,
		Budget:      r.Budget,
		Color:       r.Color,
		Icon:        r.Icon,
		Description: r.Description,
	}
}

// ExpenseRequest is the request body for creating a transaction.
type ExpenseRequest struct {
	Title              string                 `json:"title" example:"Rent"`
	Amount             decimal.Decimal        `json:"amount" example:"750.00"`
	CategoryID         int64                  `json:"categoryId" example:"3"`
	Date               models.Date            `json:"date" example:"2024-06-01"`
	Type               models.TransactionType `json:"type" example:"expense"`
	PaymentMethod      string                 `json:"paymentMethod,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	IsRecurring        bool                   `json:"isRecurring"`
	RecurringFrequency models.Frequency       `json:"recurringFrequency,omitempty"`
}

func (r ExpenseRequest) expense() models.Expense {
	return models.Expense{
		Title:              r.Title,
		Amount:             r.Amount,
		CategoryID:         r.CategoryID,
		Date:               r.Date,
		Type:               r.Type,
		PaymentMethod:      r.PaymentMethod,
		Tags:               r.Tags,
		IsRecurring:        r.IsRecurring,
		RecurringFrequency: r.RecurringFrequency,
	}
}

// NoteRequest is the request body for creating or replacing a note. Content
// is a serialized envelope, or legacy plain text/HTML.
type NoteRequest struct {
	Content string `json:"content"`
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	PIN string `json:"pin"`
}

// UploadResponse describes a staged upload. Clients embed it in a note's
// attachment list to have it adopted on save.
type UploadResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	StoragePath string `json:"storagePath"`
	IsTemp      bool   `json:"isTemp"`
}
