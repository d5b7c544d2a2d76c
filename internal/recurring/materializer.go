// Package recurring offers, once per month, to copy last month's recurring
// transactions into the current month.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/models"
)

// MarkerKey is the marker entry holding the YYYY-MM of the last month an offer
// was accepted or skipped.
const MarkerKey = "recurring.last_shown"

// DefaultSettleDelay is how long Start waits before the first check.
const DefaultSettleDelay = time.Second

var (
	ErrNotOffering     = fmt.Errorf("%w: no recurring offer pending", apperr.ErrConflict)
	ErrCheckInProgress = fmt.Errorf("%w: recurring check already running", apperr.ErrConflict)
)

// TransactionStore reads and creates transactions.
type TransactionStore interface {
	QueryByDateRange(ctx context.Context, start, end models.Date) ([]models.Expense, error)
	Create(ctx context.Context, e models.Expense) (*models.Expense, error)
}

// MarkerStore persists the once-per-month marker.
type MarkerStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// State is the materializer's position in its offer cycle.
type State int

const (
	Idle State = iota
	Checking
	Offering
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Offering:
		return "offering"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "checking":
		*s = Checking
	case "offering":
		*s = Offering
	default:
		return fmt.Errorf("recurring: unknown state %q", b)
	}
	return nil
}

// Offer is the result of a check.
type Offer struct {
	State        State            `json:"state"`
	Month        string           `json:"month"`
	SourceMonth  string           `json:"sourceMonth"`
	Transactions []models.Expense `json:"transactions"`
}

// Failure records one transaction that could not be cloned.
type Failure struct {
	SourceID int64  `json:"sourceId"`
	Title    string `json:"title"`
	Error    string `json:"error"`
}

// AcceptResult lists what Accept created and what failed.
type AcceptResult struct {
	Month    string           `json:"month"`
	Created  []models.Expense `json:"created"`
	Failures []Failure        `json:"failures"`
}

// Materializer runs the Idle → Checking → Offering → Idle cycle.
type Materializer struct {
	store   TransactionStore
	markers MarkerStore
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	offer []models.Expense
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.logger = l }
}

// New creates a materializer in the Idle state.
func New(store TransactionStore, markers MarkerStore, opts ...Option) *Materializer {
	m := &Materializer{
		store:   store,
		markers: markers,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Materializer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ShouldOffer reports whether an offer is due this month and returns last
// month's recurring transactions. It does not change state.
func (m *Materializer) ShouldOffer(ctx context.Context) (bool, []models.Expense, error) {
	today := models.DateOf(m.now())
	marker, ok, err := m.markers.Get(ctx, MarkerKey)
	if err != nil {
		return false, nil, fmt.Errorf("recurring: read marker: %w", err)
	}
	if ok && marker == today.MonthKey() {
		return false, nil, nil
	}

	from, to := previousMonth(today)
	rows, err := m.store.QueryByDateRange(ctx, from, to)
	if err != nil {
		return false, nil, fmt.Errorf("recurring: query %s: %w", from.MonthKey(), err)
	}
	var out []models.Expense
	for _, e := range rows {
		if e.IsRecurring {
			out = append(out, e)
		}
	}
	return len(out) > 0, out, nil
}

// Check moves Idle to Checking and then to Offering or back to Idle. While
// an offer is pending for the current month it is returned unchanged.
func (m *Materializer) Check(ctx context.Context) (Offer, error) {
	m.mu.Lock()
	switch m.state {
	case Checking:
		m.mu.Unlock()
		return Offer{}, ErrCheckInProgress
	case Offering:
		offer := m.offerLocked()
		m.mu.Unlock()
		return offer, nil
	}
	m.state = Checking
	m.mu.Unlock()

	ok, txs, err := m.ShouldOffer(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.offer = Idle, nil
	if err != nil {
		return Offer{}, err
	}
	if ok {
		m.state, m.offer = Offering, txs
	}
	return m.offerLocked(), nil
}

func (m *Materializer) offerLocked() Offer {
	today := models.DateOf(m.now())
	from, _ := previousMonth(today)
	txs := m.offer
	if txs == nil {
		txs = []models.Expense{}
	}
	return Offer{State: m.state, Month: today.MonthKey(), SourceMonth: from.MonthKey(), Transactions: txs}
}

// Accept clones last month's recurring transactions into the current month,
// records the marker and returns to Idle. The list is re-read first, so an
// offer already handled elsewhere this month yields ErrNotOffering. Clone
// failures are collected, not rolled back.
func (m *Materializer) Accept(ctx context.Context) (AcceptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Offering {
		return AcceptResult{}, ErrNotOffering
	}

	ok, txs, err := m.ShouldOffer(ctx)
	if err != nil {
		return AcceptResult{}, err
	}
	if !ok {
		m.state, m.offer = Idle, nil
		return AcceptResult{}, ErrNotOffering
	}

	now := m.now()
	res := AcceptResult{Month: models.DateOf(now).MonthKey(), Created: []models.Expense{}, Failures: []Failure{}}
	for _, src := range txs {
		created, err := m.store.Create(ctx, Clone(src, now))
		if err != nil {
			m.logger.ErrorContext(ctx, "recurring clone failed",
				slog.Int64("source_id", src.ID),
				slog.String("error", err.Error()))
			res.Failures = append(res.Failures, Failure{SourceID: src.ID, Title: src.Title, Error: err.Error()})
			continue
		}
		res.Created = append(res.Created, *created)
	}

	if err := m.markers.Set(ctx, MarkerKey, res.Month); err != nil {
		return res, fmt.Errorf("recurring: write marker: %w", err)
	}
	m.state, m.offer = Idle, nil
	m.logger.InfoContext(ctx, "recurring offer accepted",
		slog.String("month", res.Month),
		slog.Int("created", len(res.Created)),
		slog.Int("failed", len(res.Failures)))
	return res, nil
}

// Skip records the marker without creating anything and returns to Idle.
func (m *Materializer) Skip(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Checking {
		return ErrCheckInProgress
	}
	month := models.DateOf(m.now()).MonthKey()
	if err := m.markers.Set(ctx, MarkerKey, month); err != nil {
		return fmt.Errorf("recurring: write marker: %w", err)
	}
	m.state, m.offer = Idle, nil
	m.logger.InfoContext(ctx, "recurring offer skipped", slog.String("month", month))
	return nil
}

// Start waits for settle and runs one Check. It returns nil when ctx is
// cancelled first.
func (m *Materializer) Start(ctx context.Context, settle time.Duration) error {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	offer, err := m.Check(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		m.logger.ErrorContext(ctx, "recurring check failed", slog.String("error", err.Error()))
		return nil
	}
	if offer.State == Offering {
		m.logger.InfoContext(ctx, "recurring transactions to offer",
			slog.String("from", offer.SourceMonth),
			slog.Int("count", len(offer.Transactions)))
	}
	return nil
}

// Clone copies src into the month of now, keeping its day of month. Days past
// the end of the month clamp to its last day.
func Clone(src models.Expense, now time.Time) models.Expense {
	return models.Expense{
		Title:              src.Title,
		Amount:             src.Amount,
		CategoryID:         src.CategoryID,
		Date:               CloneDate(src.Date, now),
		Type:               src.Type,
		PaymentMethod:      src.PaymentMethod,
		Tags:               append([]string(nil), src.Tags...),
		IsRecurring:        src.IsRecurring,
		RecurringFrequency: src.RecurringFrequency,
	}
}

// CloneDate maps d onto the same day of the month containing now.
func CloneDate(d models.Date, now time.Time) models.Date {
	_, last := models.MonthBounds(now.Year(), now.Month())
	day := min(d.Day(), last.Day())
	return models.NewDate(now.Year(), now.Month(), day)
}

func previousMonth(today models.Date) (from, to models.Date) {
	return models.MonthBounds(today.Year(), today.Month()-1)
}
