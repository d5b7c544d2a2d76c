// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tirelire budget and note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/envelope"
	"github.com/starford/tirelire/internal/ledger"
	"github.com/starford/tirelire/internal/models"
	"github.com/starford/tirelire/internal/noteservice"
	"github.com/starford/tirelire/internal/recurring"
)

// Server wraps the MCP server with tirelire tools.
type Server struct {
	mcp       *server.MCPServer
	ledger    *ledger.Service
	notes     *noteservice.Service
	recurring *recurring.Materializer
}

// New creates a new MCP server with all tools registered.
func New(l *ledger.Service, notes *noteservice.Service, rec *recurring.Materializer) *Server {
	s := &Server{ledger: l, notes: notes, recurring: rec}

	s.mcp = server.NewMCPServer(
		"Tirelire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List budget categories ordered by name."),
		mcp.WithBoolean("include_hidden", mcp.Description("Include inactive and hidden categories")),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("budget_overview",
		mcp.WithDescription("Per-category spending against budget for a month, with totals."),
		mcp.WithNumber("year", mcp.Description("Year, defaults to the current one")),
		mcp.WithNumber("month", mcp.Description("Month 1-12, defaults to the current one")),
	), s.budgetOverview)

	s.mcp.AddTool(mcp.NewTool("list_expenses",
		mcp.WithDescription("List transactions, newest first."),
		mcp.WithString("date_from", mcp.Description("Inclusive start date YYYY-MM-DD")),
		mcp.WithString("date_to", mcp.Description("Inclusive end date YYYY-MM-DD")),
		mcp.WithNumber("category_id", mcp.Description("Only this category")),
		mcp.WithString("type", mcp.Description("expense or income")),
		mcp.WithString("search", mcp.Description("Substring of title or payment method")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows, default 100")),
	), s.listExpenses)

	s.mcp.AddTool(mcp.NewTool("add_expense",
		mcp.WithDescription("Record a transaction."),
		mcp.WithString("title", mcp.Required()),
		mcp.WithString("amount", mcp.Required(), mcp.Description("Positive decimal amount, e.g. 12.50")),
		mcp.WithNumber("category_id", mcp.Required()),
		mcp.WithString("date", mcp.Description("YYYY-MM-DD, defaults to today")),
		mcp.WithString("type", mcp.Description("expense (default) or income")),
		mcp.WithString("payment_method"),
	), s.addExpense)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note: title, tags, HTML body and attachments."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note from an HTML body. Read the format first via "+
			"get_note_format or the "+NoteFormatURI+" resource."),
		mcp.WithString("html", mcp.Required(), mcp.Description("Note body as HTML")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("attach_to_note",
		mcp.WithDescription("Attach a file given as a base64 data URL to an existing note."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name shown to the user")),
		mcp.WithString("data_url", mcp.Required(), mcp.Description("data:<mime>;base64,<payload>")),
	), s.attachToNote)

	s.mcp.AddTool(mcp.NewTool("get_note_format",
		mcp.WithDescription("Returns the note envelope format."),
	), s.getNoteFormat)

	s.mcp.AddTool(mcp.NewTool("recurring_offer",
		mcp.WithDescription("Check, accept or skip copying last month's recurring transactions into this month."),
		mcp.WithString("action", mcp.Description("check (default), accept or skip"), mcp.Enum("check", "accept", "skip")),
	), s.recurringOffer)

	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format",
			mcp.WithResourceDescription("Envelope format of a tirelire note body."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optionalDate(req mcp.CallToolRequest, key string) (*models.Date, error) {
	v := req.GetString(key, "")
	if v == "" {
		return nil, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &d, nil
}

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f models.CategoryFilter
	if !req.GetBool("include_hidden", false) {
		active, visible := true, true
		f.IsActive, f.Show = &active, &visible
	}
	cats, err := s.ledger.ListCategories(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cats)
}

func (s *Server) budgetOverview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	year := req.GetInt("year", 0)
	month := req.GetInt("month", 0)
	report, err := s.ledger.Spending(ctx, year, time.Month(month))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) listExpenses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := optionalDate(req, "date_from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := optionalDate(req, "date_to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rows, err := s.ledger.ListExpenses(ctx, models.ExpenseFilter{
		CategoryID: int64(req.GetInt("category_id", 0)),
		Type:       models.TransactionType(req.GetString("type", "")),
		DateFrom:   from,
		DateTo:     to,
		Search:     req.GetString("search", ""),
		Limit:      req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) addExpense(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawAmount, err := req.RequireString("amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid amount: %s", rawAmount)), nil
	}
	categoryID, err := req.RequireInt("category_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	date := models.DateOf(time.Now())
	if d, err := optionalDate(req, "date"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	} else if d != nil {
		date = *d
	}

	e, err := s.ledger.CreateExpense(ctx, models.Expense{
		Title:         title,
		Amount:        amount,
		CategoryID:    int64(categoryID),
		Date:          date,
		Type:          models.TransactionType(req.GetString("type", string(models.TypeExpense))),
		PaymentMethod: req.GetString("payment_method", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(e)
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

// noteView is what read_note returns; the raw envelope is left out.
type noteView struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Tags        []string  `json:"tags"`
	HTML        string    `json:"html"`
	Attachments []string  `json:"attachments"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, int64(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %d", id)), nil
	}
	view := noteView{ID: note.ID, Title: note.Title, Tags: note.Tags, HTML: note.HTML, UpdatedAt: note.UpdatedAt, Attachments: []string{}}
	for _, a := range note.Attachments {
		view.Attachments = append(view.Attachments, a.Name+" "+a.URL)
	}
	return jsonResult(view)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := envelope.Encode(envelope.Envelope{HTML: html})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.CreateNote(ctx, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d %s", note.ID, note.Title)), nil
}

func (s *Server) getNoteFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func (s *Server) recurringOffer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch action := req.GetString("action", "check"); action {
	case "check":
		offer, err := s.recurring.Check(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(offer)
	case "accept":
		if _, err := s.recurring.Check(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, err := s.recurring.Accept(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(res)
	case "skip":
		if err := s.recurring.Skip(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("skipped"), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}
