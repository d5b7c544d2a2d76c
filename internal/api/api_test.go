package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/starford/tirelire/internal/attachment"
	"github.com/starford/tirelire/internal/auth"
	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/envelope"
	"github.com/starford/tirelire/internal/ledger"
	"github.com/starford/tirelire/internal/models"
	"github.com/starford/tirelire/internal/noteservice"
	"github.com/starford/tirelire/internal/recurring"
	"github.com/starford/tirelire/internal/testutil"
)

const testPIN = "4321"

type testEnv struct {
	router  http.Handler
	db      *database.DB
	auth    *auth.Service
	uploads string
}

// newTestEnv wires every service against a temp database and uploads root.
// When authEnabled is false the middleware lets everything through.
func newTestEnv(t *testing.T, authEnabled bool, maxUpload int64) testEnv {
	t.Helper()
	db := testutil.TestDB(t)
	dir, store := testutil.TestUploads(t)
	logger := testutil.Logger()

	authSvc := auth.NewService(db, auth.Options{PIN: testPIN})
	ledgerSvc := ledger.NewService(db, nil)
	svc := Services{
		Ledger:         ledgerSvc,
		Notes:          noteservice.NewService(db, store, attachment.NewReconciler(store, logger), nil, logger),
		Auth:           authSvc,
		Recurring:      recurring.New(ledgerSvc, db.Settings(), recurring.WithLogger(logger)),
		Store:          store,
		MaxUploadBytes: maxUpload,
	}
	var verifier TokenVerifier
	if authEnabled {
		verifier = authSvc
	}

	r := chi.NewRouter()
	r.Mount("/api", NewRouter(svc, verifier, nil))
	r.Handle("/uploads/*", UploadsHandler("/uploads/", store.Root()))
	return testEnv{router: r, db: db, auth: authSvc, uploads: dir}
}

func (e testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true, 0)
	w := env.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w); got["status"] != "OK" || got["timestamp"] == "" {
		t.Errorf("health = %v", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, true, 0)

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "not bearer", header: []string{"Authorization", "Basic abc"}, want: http.StatusUnauthorized},
		{name: "unknown token", header: []string{"Authorization", "Bearer nope"}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/categories", nil, tt.header...)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	env := newTestEnv(t, false, 0)
	w := env.do(t, http.MethodGet, "/api/categories", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestLoginVerifyLogout(t *testing.T) {
	env := newTestEnv(t, true, 0)

	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", map[string]string{}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"pin": "0000"}), http.StatusUnauthorized)

	w := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"pin": testPIN})
	expectStatus(t, w, http.StatusOK)
	login := decode[struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}](t, w)
	if login.Token == "" || !login.ExpiresAt.After(time.Now()) {
		t.Fatalf("login = %+v", login)
	}
	bearer := []string{"Authorization", "Bearer " + login.Token}

	w = env.do(t, http.MethodGet, "/api/auth/verify", nil, bearer...)
	expectStatus(t, w, http.StatusOK)
	if !decode[map[string]bool](t, w)["valid"] {
		t.Error("verify: valid = false")
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/categories", nil, bearer...), http.StatusOK)

	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", nil, bearer...), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPost, "/api/auth/logout", nil, bearer...), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/auth/verify", nil, bearer...), http.StatusForbidden)
}

func TestCategoryEndpoints(t *testing.T) {
	env := newTestEnv(t, false, 0)

	w := env.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Food", "color": "#ff0000", "budget": 200})
	expectStatus(t, w, http.StatusCreated)
	cat := decode[models.Category](t, w)
	if cat.ID == 0 || !cat.IsActive || !cat.Show {
		t.Fatalf("created = %+v", cat)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "Food", "color": "#00ff00"}), http.StatusConflict)
	expectStatus(t, env.do(t, http.MethodPost, "/api/categories", map[string]any{"name": "NoColor"}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/categories/999", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, "/api/categories/abc", nil), http.StatusBadRequest)

	path := "/api/categories/" + itoa(cat.ID)
	w = env.do(t, http.MethodPut, path, map[string]any{})
	expectStatus(t, w, http.StatusBadRequest)
	if msg := decode[errResponse](t, w).Error; msg != "no valid fields to update" {
		t.Errorf("empty patch message = %q", msg)
	}

	w = env.do(t, http.MethodPut, path, map[string]any{"show": false})
	expectStatus(t, w, http.StatusOK)
	if decode[models.Category](t, w).Show {
		t.Error("show not updated")
	}

	w = env.do(t, http.MethodGet, "/api/categories?show=true", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]models.Category](t, w); len(got) != 0 {
		t.Errorf("show=true returned %d categories", len(got))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/categories?isActive=maybe", nil), http.StatusBadRequest)

	expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", expenseBody(cat.ID, "2024-06-02", "10")), http.StatusCreated)
	expectStatus(t, env.do(t, http.MethodDelete, path, nil), http.StatusConflict)

	w = env.do(t, http.MethodGet, path+"/expenses", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]models.Expense](t, w); len(got) != 1 {
		t.Errorf("category expenses = %d", len(got))
	}
}

func TestCategorySpendingEndpoint(t *testing.T) {
	env := newTestEnv(t, false, 0)
	cat := testutil.SeedCategory(t, env.db, "Rent", "100")
	expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", expenseBody(cat.ID, "2024-06-02", "85")), http.StatusCreated)

	w := env.do(t, http.MethodGet, "/api/categories/spending?year=2024&month=6", nil)
	expectStatus(t, w, http.StatusOK)
	report := decode[ledger.SpendingReport](t, w)
	if len(report.Categories) != 1 {
		t.Fatalf("categories = %+v", report.Categories)
	}
	c := report.Categories[0]
	if c.Spent.String() != "85" || !c.IsCloseToBudget || c.IsOverBudget {
		t.Errorf("spending = %+v", c)
	}

	expectStatus(t, env.do(t, http.MethodGet, "/api/categories/spending?year=2024&month=13", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/categories/spending?month=june", nil), http.StatusBadRequest)
}

func expenseBody(categoryID int64, date, amount string) map[string]any {
	return map[string]any{
		"title":      "Item " + date,
		"amount":     amount,
		"categoryId": categoryID,
		"date":       date,
		"type":       "expense",
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestExpenseEndpoints(t *testing.T) {
	env := newTestEnv(t, false, 0)
	cat := testutil.SeedCategory(t, env.db, "Misc", "0")

	invalid := []struct {
		name string
		body map[string]any
	}{
		{name: "zero amount", body: expenseBody(cat.ID, "2024-06-01", "0")},
		{name: "unknown category", body: expenseBody(999, "2024-06-01", "5")},
		{name: "bad type", body: func() map[string]any { b := expenseBody(cat.ID, "2024-06-01", "5"); b["type"] = "gift"; return b }()},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", tt.body), http.StatusBadRequest)
		})
	}

	for _, d := range []string{"2024-05-20", "2024-06-01", "2024-06-15"} {
		expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", expenseBody(cat.ID, d, "10")), http.StatusCreated)
	}
	income := expenseBody(cat.ID, "2024-06-05", "100")
	income["type"] = "income"
	w := env.do(t, http.MethodPost, "/api/expenses", income)
	expectStatus(t, w, http.StatusCreated)
	inc := decode[models.Expense](t, w)

	w = env.do(t, http.MethodGet, "/api/expenses?dateFrom=2024-06-01&type=expense", nil)
	expectStatus(t, w, http.StatusOK)
	got := decode[[]models.Expense](t, w)
	if len(got) != 2 || got[0].Date.String() != "2024-06-15" {
		t.Errorf("filtered list = %+v", got)
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/expenses?dateFrom=yesterday", nil), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodGet, "/api/expenses?limit=-1", nil), http.StatusBadRequest)

	w = env.do(t, http.MethodGet, "/api/expenses/month/2024/6", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]models.Expense](t, w); len(got) != 3 {
		t.Errorf("june = %d, want 3", len(got))
	}

	w = env.do(t, http.MethodGet, "/api/expenses/type/income", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]models.Expense](t, w); len(got) != 1 {
		t.Errorf("income = %d, want 1", len(got))
	}
	expectStatus(t, env.do(t, http.MethodGet, "/api/expenses/type/gift", nil), http.StatusBadRequest)

	w = env.do(t, http.MethodGet, "/api/expenses/summary?dateFrom=2024-06-01&dateTo=2024-06-30", nil)
	expectStatus(t, w, http.StatusOK)
	sum := decode[models.Summary](t, w)
	if sum.TotalExpenses.String() != "20" || sum.TotalIncome.String() != "100" || sum.NetAmount.String() != "80" {
		t.Errorf("summary = %+v", sum)
	}

	path := "/api/expenses/" + itoa(inc.ID)
	w = env.do(t, http.MethodPut, path, map[string]any{"title": "Salary"})
	expectStatus(t, w, http.StatusOK)
	if decode[models.Expense](t, w).Title != "Salary" {
		t.Error("title not updated")
	}
	expectStatus(t, env.do(t, http.MethodPut, path, map[string]any{"amount": -3}), http.StatusBadRequest)
	expectStatus(t, env.do(t, http.MethodDelete, path, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, path, nil), http.StatusNotFound)
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t, false, 0)
	cat := testutil.SeedCategory(t, env.db, "Misc", "0")
	expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", expenseBody(cat.ID, "2024-06-01", "12.5")), http.StatusCreated)

	w := env.do(t, http.MethodGet, "/api/expenses/export.xlsx", nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != ledger.XLSXContentType {
		t.Errorf("content type = %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("Transactions", "B2"); v != "Item 2024-06-01" {
		t.Errorf("B2 = %q", v)
	}
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndAdopt(t *testing.T) {
	env := newTestEnv(t, false, 0)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "photo.PNG", []byte("png-bytes")))
	expectStatus(t, w, http.StatusCreated)
	up := decode[UploadResponse](t, w)
	if !up.IsTemp || up.Size != 9 || up.Name != "photo.PNG" || !strings.HasPrefix(up.StoragePath, "temp/") || up.URL != "/uploads/"+up.StoragePath {
		t.Fatalf("upload = %+v", up)
	}

	w = env.do(t, http.MethodGet, up.URL, nil)
	expectStatus(t, w, http.StatusOK)
	if w.Body.String() != "png-bytes" {
		t.Errorf("served = %q", w.Body.String())
	}

	content, err := envelope.Encode(envelope.Envelope{
		HTML: "<h1>Trip</h1><p>receipt #travel</p>",
		Attachments: []attachment.Attachment{{
			ID: up.ID, Name: up.Name, Type: up.Type, Size: up.Size,
			URL: up.URL, StoragePath: up.StoragePath, IsTemp: true,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	w = env.do(t, http.MethodPost, "/api/notes", NoteRequest{Content: content})
	expectStatus(t, w, http.StatusCreated)
	note := decode[noteservice.NoteDetail](t, w)
	if note.Title != "Trip" || len(note.Attachments) != 1 {
		t.Fatalf("note = %+v", note)
	}
	att := note.Attachments[0]
	if att.IsTemp || att.ID != up.ID || !strings.HasPrefix(att.StoragePath, attachment.NoteDir(note.ID)+"/") {
		t.Errorf("adopted attachment = %+v", att)
	}
	expectStatus(t, env.do(t, http.MethodGet, up.URL, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, http.MethodGet, att.URL, nil), http.StatusOK)

	path := "/api/notes/" + itoa(note.ID)
	expectStatus(t, env.do(t, http.MethodPut, path, NoteRequest{Content: "plain"}, "If-Match", `"stale"`), http.StatusConflict)
	w = env.do(t, http.MethodPut, path, NoteRequest{Content: "plain"}, "If-Match", note.Checksum)
	expectStatus(t, w, http.StatusOK)
	if got := decode[noteservice.NoteDetail](t, w); len(got.Attachments) != 0 {
		t.Errorf("attachments after update = %+v", got.Attachments)
	}
	expectStatus(t, env.do(t, http.MethodGet, att.URL, nil), http.StatusNotFound)

	expectStatus(t, env.do(t, http.MethodDelete, path, nil), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodGet, path, nil), http.StatusNotFound)
}

func TestCreateNoteMissingUpload(t *testing.T) {
	env := newTestEnv(t, false, 0)
	content, _ := envelope.Encode(envelope.Envelope{
		HTML: "<p>x</p>",
		Attachments: []attachment.Attachment{{
			ID: "gone", Name: "a.png", Type: "image/png", StoragePath: "temp/gone.png", IsTemp: true,
		}},
	})
	expectStatus(t, env.do(t, http.MethodPost, "/api/notes", NoteRequest{Content: content}), http.StatusBadRequest)

	w := env.do(t, http.MethodGet, "/api/notes", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]noteservice.NoteDetail](t, w); len(got) != 0 {
		t.Errorf("failed create left %d notes", len(got))
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, false, 16)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "big.bin", bytes.Repeat([]byte("x"), 64)))
	expectStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestEnv(t, false, 0)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestRecurringEndpoints(t *testing.T) {
	env := newTestEnv(t, false, 0)
	cat := testutil.SeedCategory(t, env.db, "Home", "0")

	now := time.Now()
	first, _ := models.MonthBounds(now.Year(), now.Month()-1)
	body := expenseBody(cat.ID, first.String(), "750")
	body["isRecurring"] = true
	body["recurringFrequency"] = "monthly"
	expectStatus(t, env.do(t, http.MethodPost, "/api/expenses", body), http.StatusCreated)

	expectStatus(t, env.do(t, http.MethodPost, "/api/recurring/accept", nil), http.StatusConflict)

	w := env.do(t, http.MethodGet, "/api/recurring/offer", nil)
	expectStatus(t, w, http.StatusOK)
	offer := decode[struct {
		State        string           `json:"state"`
		Transactions []models.Expense `json:"transactions"`
	}](t, w)
	if offer.State != "offering" || len(offer.Transactions) != 1 {
		t.Fatalf("offer = %+v", offer)
	}

	w = env.do(t, http.MethodPost, "/api/recurring/accept", nil)
	expectStatus(t, w, http.StatusOK)
	res := decode[recurring.AcceptResult](t, w)
	if len(res.Created) != 1 || res.Created[0].Date.MonthKey() != models.DateOf(now).MonthKey() {
		t.Errorf("accept = %+v", res)
	}

	w = env.do(t, http.MethodGet, "/api/recurring/offer", nil)
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]any](t, w)["state"] != "idle" {
		t.Error("offer not suppressed after accept")
	}
	if v, ok, _ := env.db.Settings().Get(context.Background(), recurring.MarkerKey); !ok || v != models.DateOf(now).MonthKey() {
		t.Errorf("marker = %q, %v", v, ok)
	}
}
