package service

import (
	"context"
	"sync"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/model"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// In-memory fakes backing the service tests. They mimic the repository
// contracts closely enough to exercise the fold/locking/idempotency logic:
// reads return copies (as a DB would), missing rows surface
// gorm.ErrRecordNotFound, and the journal keeps insertion order via seq.

// ── Locker ───────────────────────────────────────────────────────────────────

type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

// ── CashRepository ───────────────────────────────────────────────────────────

type fakeCashRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.DailyCashSession // by date
	txs      []model.Transaction
	archive  []model.CashArchiveEntry
	nextSeq  int64

	failAppend bool // when set, AppendTransaction errors
}

func newFakeCashRepo() *fakeCashRepo {
	return &fakeCashRepo{sessions: make(map[string]*model.DailyCashSession)}
}

func copySession(s *model.DailyCashSession) *model.DailyCashSession {
	cp := *s
	cp.MethodTotals = make(map[string]decimal.Decimal, len(s.MethodTotals))
	for k, v := range s.MethodTotals {
		cp.MethodTotals[k] = v
	}
	return &cp
}

func (r *fakeCashRepo) FindSessionByDate(_ context.Context, date string) (*model.DailyCashSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[date]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copySession(s), nil
}

func (r *fakeCashRepo) CreateSession(_ context.Context, s *model.DailyCashSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.Date]; exists {
		return gorm.ErrDuplicatedKey
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.sessions[s.Date] = copySession(s)
	return nil
}

func (r *fakeCashRepo) UpdateSession(_ context.Context, s *model.DailyCashSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Date] = copySession(s)
	return nil
}

func (r *fakeCashRepo) DeleteSession(_ context.Context, date string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, date)
	return nil
}

func (r *fakeCashRepo) ListSessionsInRange(_ context.Context, start, end string) ([]model.DailyCashSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DailyCashSession
	for _, s := range r.sessions {
		if s.Date >= start && s.Date <= end {
			out = append(out, *copySession(s))
		}
	}
	return out, nil
}

func (r *fakeCashRepo) AppendTransaction(_ context.Context, t *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return gorm.ErrInvalidTransaction
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.nextSeq++
	t.Seq = r.nextSeq
	t.CreatedAt = time.Now()
	r.txs = append(r.txs, *t)
	return nil
}

func (r *fakeCashRepo) ListTransactionsByDate(_ context.Context, date string) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Transaction
	for _, t := range r.txs {
		if t.Date == date {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeCashRepo) ListTransactionsBySession(_ context.Context, sessionID uuid.UUID) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Transaction
	for _, t := range r.txs {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeCashRepo) CreateArchiveEntry(_ context.Context, e *model.CashArchiveEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.archive = append(r.archive, *e)
	return nil
}

func (r *fakeCashRepo) ListArchiveInRange(_ context.Context, start, end string) ([]model.CashArchiveEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CashArchiveEntry
	for _, e := range r.archive {
		if e.Date >= start && e.Date <= end {
			out = append(out, e)
		}
	}
	return out, nil
}

// ── ClientRepository ─────────────────────────────────────────────────────────

type fakeClientRepo struct {
	mu      sync.Mutex
	byPhone map[string]*model.Client
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{byPhone: make(map[string]*model.Client)}
}

func (r *fakeClientRepo) Create(_ context.Context, c *model.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.byPhone[c.Phone] = &cp
	return nil
}

func (r *fakeClientRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeClientRepo) FindByPhone(_ context.Context, phone string) (*model.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byPhone[phone]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeClientRepo) Update(_ context.Context, c *model.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byPhone[c.Phone] = &cp
	return nil
}

func (r *fakeClientRepo) List(_ context.Context, status string, _, _ int) ([]model.Client, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Client
	for _, c := range r.byPhone {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	return out, int64(len(out)), nil
}

// ── OrderRepository ──────────────────────────────────────────────────────────

type fakeOrderRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byID: make(map[uuid.UUID]*model.Order)}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	r.byID[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.UpdatedAt = time.Now()
	cp := *o
	r.byID[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Order
	for _, o := range r.byID {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Phone != "" && o.CustomerPhone != filter.Phone {
			continue
		}
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (r *fakeOrderRepo) SumTotals(_ context.Context, start, end time.Time, excludeStatus string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, o := range r.byID {
		if o.Status == excludeStatus {
			continue
		}
		if o.CreatedAt.Before(start) || !o.CreatedAt.Before(end) {
			continue
		}
		sum = sum.Add(o.Total)
	}
	return sum, nil
}

// ── ProductRepository ────────────────────────────────────────────────────────

type fakeProductRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{byID: make(map[uuid.UUID]*model.Product)}
}

func (r *fakeProductRepo) Create(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProductRepo) Update(_ context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeProductRepo) List(_ context.Context, activeOnly bool, category string) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, p := range r.byID {
		if activeOnly && !p.Active {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// ── ReconciliationRepository ─────────────────────────────────────────────────

type stepKey struct {
	orderID uuid.UUID
	step    string
}

type fakeStepRepo struct {
	mu    sync.Mutex
	steps map[stepKey]*model.ReconciliationStep
}

func newFakeStepRepo() *fakeStepRepo {
	return &fakeStepRepo{steps: make(map[stepKey]*model.ReconciliationStep)}
}

func (r *fakeStepRepo) Find(_ context.Context, orderID uuid.UUID, step string) (*model.ReconciliationStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.steps[stepKey{orderID, step}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeStepRepo) Upsert(_ context.Context, rec *model.ReconciliationStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	r.steps[stepKey{rec.OrderID, rec.Step}] = &cp
	return nil
}

func (r *fakeStepRepo) ListDue(_ context.Context, now time.Time, limit int) ([]model.ReconciliationStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ReconciliationStep
	for _, rec := range r.steps {
		if rec.Status == model.StepFailed && rec.NextRetryAt != nil && !rec.NextRetryAt.After(now) {
			out = append(out, *rec)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeStepRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]model.ReconciliationStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ReconciliationStep
	for _, rec := range r.steps {
		if rec.OrderID == orderID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// ── Dispatcher ───────────────────────────────────────────────────────────────

type fakeDispatcher struct {
	mu         sync.Mutex
	reconciles []uuid.UUID
	emails     []uuid.UUID
	reports    []string
}

func (d *fakeDispatcher) EnqueueReconcile(_ context.Context, orderID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconciles = append(d.reconciles, orderID)
	return nil
}

func (d *fakeDispatcher) EnqueueOrderEmail(_ context.Context, orderID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = append(d.emails, orderID)
	return nil
}

func (d *fakeDispatcher) EnqueueClosingReport(_ context.Context, date string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, date)
	return nil
}
