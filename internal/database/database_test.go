package database

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "tirelire-db-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedCategory(t *testing.T, db *DB, name string) *models.Category {
	t.Helper()
	c, err := db.CreateCategory(context.Background(), models.Category{
		Name:     name,
		Budget:   decimal.RequireFromString("500"),
		Color:    "#ff0000",
		IsActive: true,
		Show:     true,
	})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	return c
}

func seedExpense(t *testing.T, db *DB, e models.Expense) *models.Expense {
	t.Helper()
	if e.Type == "" {
		e.Type = models.TypeExpense
	}
	got, err := db.CreateExpense(context.Background(), e)
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	return got
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "tirelire-db-*.db")
	f.Close()
	for i := 0; i < 2; i++ {
		db, err := Open(f.Name())
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		db.Close()
	}
}

func TestNoteLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.InsertNote(ctx, NoteRow{Content: "{}", Title: "Groceries", BodyText: "milk", Tags: []string{"home"}, Checksum: "c1"})
	if err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	n, err := db.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if n.Title != "Groceries" || n.Checksum != "c1" || len(n.Tags) != 1 || n.Tags[0] != "home" {
		t.Errorf("note = %+v", n)
	}

	if err := db.UpdateNote(ctx, NoteRow{ID: id, Content: "{}", Title: "Shopping", Checksum: "c2"}); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	n, _ = db.GetNote(ctx, id)
	if n.Title != "Shopping" || len(n.Tags) != 0 {
		t.Errorf("after update = %+v", n)
	}

	if err := db.DeleteNote(ctx, id); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := db.GetNote(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetNote after delete err = %v", err)
	}
	if err := db.DeleteNote(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if err := db.UpdateNote(ctx, NoteRow{ID: id}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}

func TestListNotesByTag(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.InsertNote(ctx, NoteRow{Content: "a", Title: "A", Tags: []string{"bills"}})
	_, _ = db.InsertNote(ctx, NoteRow{Content: "b", Title: "B", Tags: []string{"travel"}})

	all, err := db.ListNotes(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListNotes = %d, %v", len(all), err)
	}
	bills, err := db.ListNotes(ctx, "bills")
	if err != nil || len(bills) != 1 || bills[0].Title != "A" {
		t.Fatalf("ListNotes(bills) = %+v, %v", bills, err)
	}
}

func TestSearchNotes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, _ := db.InsertNote(ctx, NoteRow{Content: "x", Title: "Insurance", BodyText: "renewal due in march"})
	_, _ = db.InsertNote(ctx, NoteRow{Content: "y", Title: "Other", BodyText: "nothing"})

	results, err := db.SearchNotes("renewal", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(results) != 1 || results[0].ID != id {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchNotes_TagsAndWords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	bills, _ := db.InsertNote(ctx, NoteRow{Content: "a", Title: "Insurance", BodyText: "car insurance renewal due", Tags: []string{"bills"}})
	food, _ := db.InsertNote(ctx, NoteRow{Content: "b", Title: "Groceries", BodyText: "insurance came up at the market", Tags: []string{"food"}})

	tests := []struct {
		name  string
		query string
		want  []int64
	}{
		{name: "word and tag", query: "insurance #bills", want: []int64{bills}},
		{name: "tag only", query: "#food", want: []int64{food}},
		{name: "unknown tag", query: "#travel", want: nil},
		{name: "blank", query: "   ", want: nil},
		{name: "query syntax is literal", query: `50% "off AND`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := db.SearchNotes(tt.query, 10)
			if err != nil {
				t.Fatalf("SearchNotes(%q): %v", tt.query, err)
			}
			var got []int64
			for _, r := range results {
				got = append(got, r.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestParseSearch(t *testing.T) {
	q := parseSearch(`  rent "march" #bills # #Home  `)
	if len(q.words) != 2 || q.words[0] != "rent" || q.words[1] != "march" {
		t.Errorf("words = %q", q.words)
	}
	if len(q.tags) != 2 || q.tags[0] != "bills" || q.tags[1] != "Home" {
		t.Errorf("tags = %q", q.tags)
	}
	if !parseSearch(" \t ").empty() {
		t.Error("blank query should be empty")
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 30) + "the renewal is due " + strings.Repeat("dolor ", 40)
	got := excerpt(long, []string{"Renewal"})
	if !strings.HasPrefix(got, "…") || !strings.HasSuffix(got, "…") || !strings.Contains(got, "renewal") {
		t.Errorf("excerpt = %q", got)
	}
	if got := excerpt("short body", []string{"absent"}); got != "short body" {
		t.Errorf("excerpt = %q", got)
	}
	if got := excerpt(strings.Repeat("é", 150), nil); !utf8.ValidString(got) {
		t.Errorf("excerpt split a rune: %q", got)
	}
}

func TestCategoryCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := seedCategory(t, db, "Food")
	if !c.Budget.Equal(decimal.NewFromInt(500)) || !c.IsActive || !c.Show {
		t.Errorf("category = %+v", c)
	}

	if _, err := db.CreateCategory(ctx, models.Category{Name: "Food", Color: "#000"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}

	hidden := false
	budget := decimal.RequireFromString("620.50")
	updated, err := db.UpdateCategory(ctx, c.ID, models.CategoryPatch{Show: &hidden, Budget: &budget})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if updated.Show || !updated.Budget.Equal(budget) || updated.Name != "Food" {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := db.UpdateCategory(ctx, c.ID, models.CategoryPatch{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty patch err = %v", err)
	}
	if _, err := db.UpdateCategory(ctx, 999, models.CategoryPatch{Show: &hidden}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing category err = %v", err)
	}
}

func TestListCategoriesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedCategory(t, db, "Transport")
	rent := seedCategory(t, db, "Rent")
	off := false
	_, _ = db.UpdateCategory(ctx, rent.ID, models.CategoryPatch{IsActive: &off})

	tests := []struct {
		name   string
		filter models.CategoryFilter
		want   []string
	}{
		{name: "all ordered by name", filter: models.CategoryFilter{}, want: []string{"Rent", "Transport"}},
		{name: "active only", filter: models.CategoryFilter{IsActive: boolPtr(true)}, want: []string{"Transport"}},
		{name: "inactive only", filter: models.CategoryFilter{IsActive: boolPtr(false)}, want: []string{"Rent"}},
		{name: "search", filter: models.CategoryFilter{Search: "trans"}, want: []string{"Transport"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListCategories(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListCategories: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d categories, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if c.Name != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, c.Name, tt.want[i])
				}
			}
		})
	}
}

func TestDeleteCategoryInUse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := seedCategory(t, db, "Food")
	seedExpense(t, db, models.Expense{Title: "Bread", Amount: decimal.NewFromInt(3), CategoryID: c.ID, Date: models.NewDate(2024, 5, 2)})

	if err := db.DeleteCategory(ctx, c.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("delete in-use err = %v", err)
	}

	empty := seedCategory(t, db, "Empty")
	if err := db.DeleteCategory(ctx, empty.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := db.DeleteCategory(ctx, empty.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestExpenseCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	c := seedCategory(t, db, "Housing")

	e := seedExpense(t, db, models.Expense{
		Title:              "Rent",
		Amount:             decimal.RequireFromString("750.00"),
		CategoryID:         c.ID,
		Date:               models.NewDate(2024, 5, 1),
		PaymentMethod:      "transfer",
		Tags:               []string{"home", "fixed"},
		IsRecurring:        true,
		RecurringFrequency: models.Monthly,
	})
	if e.CategoryName != "Housing" || e.Date.String() != "2024-05-01" || !e.IsRecurring || e.RecurringFrequency != models.Monthly {
		t.Errorf("expense = %+v", e)
	}
	if !e.Amount.Equal(decimal.NewFromInt(750)) || len(e.Tags) != 2 {
		t.Errorf("amount/tags = %s %v", e.Amount, e.Tags)
	}

	title := "Rent May"
	updated, err := db.UpdateExpense(ctx, e.ID, models.ExpensePatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if updated.Title != "Rent May" || updated.PaymentMethod != "transfer" {
		t.Errorf("updated = %+v", updated)
	}

	if err := db.DeleteExpense(ctx, e.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := db.GetExpense(ctx, e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
}

func TestListExpensesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	food := seedCategory(t, db, "Food")
	job := seedCategory(t, db, "Job")

	seedExpense(t, db, models.Expense{Title: "Groceries", Amount: decimal.RequireFromString("45.50"), CategoryID: food.ID, Date: models.NewDate(2024, 5, 10), Tags: []string{"weekly"}})
	seedExpense(t, db, models.Expense{Title: "Restaurant", Amount: decimal.RequireFromString("80"), CategoryID: food.ID, Date: models.NewDate(2024, 6, 3)})
	seedExpense(t, db, models.Expense{Title: "Salary", Amount: decimal.RequireFromString("2500"), CategoryID: job.ID, Date: models.NewDate(2024, 5, 27), Type: models.TypeIncome, IsRecurring: true, RecurringFrequency: models.Monthly})

	from := models.NewDate(2024, 5, 1)
	to := models.NewDate(2024, 5, 31)
	minAmount := decimal.NewFromInt(50)

	tests := []struct {
		name   string
		filter models.ExpenseFilter
		want   []string
	}{
		{name: "all newest first", filter: models.ExpenseFilter{}, want: []string{"Restaurant", "Salary", "Groceries"}},
		{name: "category", filter: models.ExpenseFilter{CategoryID: food.ID}, want: []string{"Restaurant", "Groceries"}},
		{name: "type", filter: models.ExpenseFilter{Type: models.TypeIncome}, want: []string{"Salary"}},
		{name: "date range", filter: models.ExpenseFilter{DateFrom: &from, DateTo: &to}, want: []string{"Salary", "Groceries"}},
		{name: "min amount", filter: models.ExpenseFilter{MinAmount: &minAmount}, want: []string{"Restaurant", "Salary"}},
		{name: "search", filter: models.ExpenseFilter{Search: "rest"}, want: []string{"Restaurant"}},
		{name: "tag", filter: models.ExpenseFilter{Tags: []string{"weekly"}}, want: []string{"Groceries"}},
		{name: "recurring", filter: models.ExpenseFilter{IsRecurring: boolPtr(true)}, want: []string{"Salary"}},
		{name: "limit offset", filter: models.ExpenseFilter{Limit: 1, Offset: 1}, want: []string{"Salary"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListExpenses(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListExpenses: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d expenses, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Title != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, e.Title, tt.want[i])
				}
			}
		})
	}
}

func TestCategorySpent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	food := seedCategory(t, db, "Food")
	seedExpense(t, db, models.Expense{Title: "a", Amount: decimal.RequireFromString("10.25"), CategoryID: food.ID, Date: models.NewDate(2024, 5, 1)})
	seedExpense(t, db, models.Expense{Title: "b", Amount: decimal.RequireFromString("4.75"), CategoryID: food.ID, Date: models.NewDate(2024, 5, 31)})
	seedExpense(t, db, models.Expense{Title: "refund", Amount: decimal.RequireFromString("100"), CategoryID: food.ID, Date: models.NewDate(2024, 5, 3), Type: models.TypeIncome})
	seedExpense(t, db, models.Expense{Title: "june", Amount: decimal.RequireFromString("99"), CategoryID: food.ID, Date: models.NewDate(2024, 6, 1)})

	spent, err := db.CategorySpent(ctx, models.NewDate(2024, 5, 1), models.NewDate(2024, 5, 31))
	if err != nil {
		t.Fatalf("CategorySpent: %v", err)
	}
	if !spent[food.ID].Equal(decimal.NewFromInt(15)) {
		t.Errorf("spent = %s, want 15", spent[food.ID])
	}
}

func TestTokens(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_ = db.InsertToken(ctx, models.AuthToken{Token: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	_ = db.InsertToken(ctx, models.AuthToken{Token: "old", ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour)})

	tok, err := db.GetToken(ctx, "live")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expiresAt = %v", tok.ExpiresAt)
	}

	n, err := db.DeleteExpiredTokens(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredTokens = %d, %v", n, err)
	}
	if _, err := db.GetToken(ctx, "old"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expired token still present: %v", err)
	}
	if err := db.DeleteToken(ctx, "live"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}
	if err := db.DeleteToken(ctx, "live"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second DeleteToken err = %v", err)
	}
}

func TestSettings(t *testing.T) {
	s := testDB(t).Settings()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get unset = %v, %v", ok, err)
	}
	_ = s.Set(ctx, "k", "2024-05")
	_ = s.Set(ctx, "k", "2024-06")
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "2024-06" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
}

func boolPtr(b bool) *bool { return &b }
