// Package memory provides an in-memory implementation of the case persistence
// store used for tests, ephemeral environments and as the transactional core
// of the snapshotting drivers.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"whalewatcher/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store provides an in-memory transactional store for the case domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// Option customises a Store.
type Option func(*Store)

// WithNowFunc overrides the transaction clock.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDFunc overrides the identifier generator used for new records.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// ReplaceState implements domain.PersistentStore by importing the snapshot.
func (s *Store) ReplaceState(_ context.Context, snapshot domain.Snapshot) error {
	s.ImportState(snapshot)
	return nil
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy is committed only when fn succeeds and no rule reports a blocking
// violation, so callers never observe a partial update.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListCases() []domain.Case {
	out := make([]domain.Case, 0, len(v.state.cases))
	for _, c := range v.state.cases {
		out = append(out, cloneCase(c))
	}
	sortByCreation(out, func(c domain.Case) domain.Base { return c.Base })
	return out
}

func (v transactionView) FindCase(id string) (domain.Case, bool) {
	c, ok := v.state.cases[id]
	if !ok {
		return domain.Case{}, false
	}
	return cloneCase(c), true
}

func (v transactionView) ListGaps(caseID string) []domain.Gap {
	out := make([]domain.Gap, 0)
	for _, g := range v.state.gaps {
		if caseID == "" || g.CaseID == caseID {
			out = append(out, cloneGap(g))
		}
	}
	sortByCreation(out, func(g domain.Gap) domain.Base { return g.Base })
	return out
}

func (v transactionView) FindGap(id string) (domain.Gap, bool) {
	g, ok := v.state.gaps[id]
	if !ok {
		return domain.Gap{}, false
	}
	return cloneGap(g), true
}

func (v transactionView) ListEvidenceOrders(caseID string) []domain.EvidenceOrder {
	out := make([]domain.EvidenceOrder, 0)
	for _, o := range v.state.orders {
		if caseID == "" || o.CaseID == caseID {
			out = append(out, cloneOrder(o))
		}
	}
	sortByCreation(out, func(o domain.EvidenceOrder) domain.Base { return o.Base })
	return out
}

func (v transactionView) FindEvidenceOrder(id string) (domain.EvidenceOrder, bool) {
	o, ok := v.state.orders[id]
	if !ok {
		return domain.EvidenceOrder{}, false
	}
	return cloneOrder(o), true
}

func (v transactionView) ListDocuments(caseID string) []domain.Document {
	out := make([]domain.Document, 0)
	for _, d := range v.state.documents {
		if caseID == "" || d.CaseID == caseID {
			out = append(out, cloneDocument(d))
		}
	}
	sortByCreation(out, func(d domain.Document) domain.Base { return d.Base })
	return out
}

func (v transactionView) FindDocument(id string) (domain.Document, bool) {
	d, ok := v.state.documents[id]
	if !ok {
		return domain.Document{}, false
	}
	return cloneDocument(d), true
}

func (v transactionView) ListApplicationFields(caseID string) []domain.ApplicationField {
	out := make([]domain.ApplicationField, 0)
	for _, f := range v.state.fields {
		if caseID == "" || f.CaseID == caseID {
			out = append(out, cloneField(f))
		}
	}
	sortByCreation(out, func(f domain.ApplicationField) domain.Base { return f.Base })
	return out
}

func (v transactionView) FindApplicationField(id string) (domain.ApplicationField, bool) {
	f, ok := v.state.fields[id]
	if !ok {
		return domain.ApplicationField{}, false
	}
	return cloneField(f), true
}

func (v transactionView) ListNotifications(caseID string) []domain.Notification {
	out := make([]domain.Notification, 0)
	for _, n := range v.state.notifications {
		if caseID == "" || n.CaseID == caseID {
			out = append(out, cloneNotification(n))
		}
	}
	sortByCreation(out, func(n domain.Notification) domain.Base { return n.Base })
	return out
}

func (v transactionView) FindNotification(id string) (domain.Notification, bool) {
	n, ok := v.state.notifications[id]
	if !ok {
		return domain.Notification{}, false
	}
	return cloneNotification(n), true
}

// ListAuditEvents returns events in append order (ascending Seq).
func (v transactionView) ListAuditEvents(caseID string) []domain.AuditEvent {
	out := make([]domain.AuditEvent, 0)
	for _, e := range v.state.audit {
		if caseID == "" || e.CaseID == caseID {
			out = append(out, cloneAuditEvent(e))
		}
	}
	sortAuditEvents(out)
	return out
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every mutation in the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// UpdateCase mutates a case using the provided mutator function.
func (tx *transaction) UpdateCase(id string, mutator func(*domain.Case) error) (domain.Case, error) {
	current, ok := tx.state.cases[id]
	if !ok {
		return domain.Case{}, fmt.Errorf("case %q not found", id)
	}
	before := cloneCase(current)
	if err := mutator(&current); err != nil {
		return domain.Case{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cases[id] = cloneCase(current)
	tx.recordChange(domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: cloneCase(current)})
	return cloneCase(current), nil
}

// CreateGap stores a new gap.
func (tx *transaction) CreateGap(g domain.Gap) (domain.Gap, error) {
	if g.ID == "" {
		g.ID = tx.store.idFn()
	}
	if _, exists := tx.state.gaps[g.ID]; exists {
		return domain.Gap{}, fmt.Errorf("gap %q already exists", g.ID)
	}
	g.CreatedAt = tx.now
	g.UpdatedAt = tx.now
	tx.state.gaps[g.ID] = cloneGap(g)
	tx.recordChange(domain.Change{Entity: domain.EntityGap, Action: domain.ActionCreate, After: cloneGap(g)})
	return cloneGap(g), nil
}

// UpdateGap mutates an existing gap.
func (tx *transaction) UpdateGap(id string, mutator func(*domain.Gap) error) (domain.Gap, error) {
	current, ok := tx.state.gaps[id]
	if !ok {
		return domain.Gap{}, fmt.Errorf("gap %q not found", id)
	}
	before := cloneGap(current)
	if err := mutator(&current); err != nil {
		return domain.Gap{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.gaps[id] = cloneGap(current)
	tx.recordChange(domain.Change{Entity: domain.EntityGap, Action: domain.ActionUpdate, Before: before, After: cloneGap(current)})
	return cloneGap(current), nil
}

// DeleteGap removes a gap from state.
func (tx *transaction) DeleteGap(id string) error {
	current, ok := tx.state.gaps[id]
	if !ok {
		return fmt.Errorf("gap %q not found", id)
	}
	delete(tx.state.gaps, id)
	tx.recordChange(domain.Change{Entity: domain.EntityGap, Action: domain.ActionDelete, Before: cloneGap(current)})
	return nil
}

// CreateEvidenceOrder stores a new evidence order.
func (tx *transaction) CreateEvidenceOrder(o domain.EvidenceOrder) (domain.EvidenceOrder, error) {
	if o.ID == "" {
		o.ID = tx.store.idFn()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return domain.EvidenceOrder{}, fmt.Errorf("evidence order %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.orders[o.ID] = cloneOrder(o)
	tx.recordChange(domain.Change{Entity: domain.EntityEvidenceOrder, Action: domain.ActionCreate, After: cloneOrder(o)})
	return cloneOrder(o), nil
}

// UpdateEvidenceOrder mutates an existing evidence order.
func (tx *transaction) UpdateEvidenceOrder(id string, mutator func(*domain.EvidenceOrder) error) (domain.EvidenceOrder, error) {
	current, ok := tx.state.orders[id]
	if !ok {
		return domain.EvidenceOrder{}, fmt.Errorf("evidence order %q not found", id)
	}
	before := cloneOrder(current)
	if err := mutator(&current); err != nil {
		return domain.EvidenceOrder{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.orders[id] = cloneOrder(current)
	tx.recordChange(domain.Change{Entity: domain.EntityEvidenceOrder, Action: domain.ActionUpdate, Before: before, After: cloneOrder(current)})
	return cloneOrder(current), nil
}

// CreateDocument stores a new document record.
func (tx *transaction) CreateDocument(d domain.Document) (domain.Document, error) {
	if d.ID == "" {
		d.ID = tx.store.idFn()
	}
	if _, exists := tx.state.documents[d.ID]; exists {
		return domain.Document{}, fmt.Errorf("document %q already exists", d.ID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.documents[d.ID] = cloneDocument(d)
	tx.recordChange(domain.Change{Entity: domain.EntityDocument, Action: domain.ActionCreate, After: cloneDocument(d)})
	return cloneDocument(d), nil
}

// UpdateDocument mutates an existing document.
func (tx *transaction) UpdateDocument(id string, mutator func(*domain.Document) error) (domain.Document, error) {
	current, ok := tx.state.documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %q not found", id)
	}
	before := cloneDocument(current)
	if err := mutator(&current); err != nil {
		return domain.Document{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.documents[id] = cloneDocument(current)
	tx.recordChange(domain.Change{Entity: domain.EntityDocument, Action: domain.ActionUpdate, Before: before, After: cloneDocument(current)})
	return cloneDocument(current), nil
}

// UpdateApplicationField mutates an existing application field.
func (tx *transaction) UpdateApplicationField(id string, mutator func(*domain.ApplicationField) error) (domain.ApplicationField, error) {
	current, ok := tx.state.fields[id]
	if !ok {
		return domain.ApplicationField{}, fmt.Errorf("application field %q not found", id)
	}
	before := cloneField(current)
	if err := mutator(&current); err != nil {
		return domain.ApplicationField{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.fields[id] = cloneField(current)
	tx.recordChange(domain.Change{Entity: domain.EntityApplicationField, Action: domain.ActionUpdate, Before: before, After: cloneField(current)})
	return cloneField(current), nil
}

// CreateNotification stores a new notification.
func (tx *transaction) CreateNotification(n domain.Notification) (domain.Notification, error) {
	if n.ID == "" {
		n.ID = tx.store.idFn()
	}
	if _, exists := tx.state.notifications[n.ID]; exists {
		return domain.Notification{}, fmt.Errorf("notification %q already exists", n.ID)
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.notifications[n.ID] = cloneNotification(n)
	tx.recordChange(domain.Change{Entity: domain.EntityNotification, Action: domain.ActionCreate, After: cloneNotification(n)})
	return cloneNotification(n), nil
}

// UpdateNotification mutates an existing notification.
func (tx *transaction) UpdateNotification(id string, mutator func(*domain.Notification) error) (domain.Notification, error) {
	current, ok := tx.state.notifications[id]
	if !ok {
		return domain.Notification{}, fmt.Errorf("notification %q not found", id)
	}
	before := cloneNotification(current)
	if err := mutator(&current); err != nil {
		return domain.Notification{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.notifications[id] = cloneNotification(current)
	tx.recordChange(domain.Change{Entity: domain.EntityNotification, Action: domain.ActionUpdate, Before: before, After: cloneNotification(current)})
	return cloneNotification(current), nil
}

// AppendAuditEvent appends an immutable audit record. The store assigns the
// sequence number; a zero timestamp defaults to the transaction time.
func (tx *transaction) AppendAuditEvent(e domain.AuditEvent) (domain.AuditEvent, error) {
	if e.ID == "" {
		e.ID = tx.store.idFn()
	}
	if _, exists := tx.state.audit[e.ID]; exists {
		return domain.AuditEvent{}, fmt.Errorf("audit event %q already exists", e.ID)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	tx.state.auditSeq++
	e.Seq = tx.state.auditSeq
	tx.state.audit[e.ID] = cloneAuditEvent(e)
	tx.recordChange(domain.Change{Entity: domain.EntityAuditEvent, Action: domain.ActionCreate, After: cloneAuditEvent(e)})
	return cloneAuditEvent(e), nil
}
