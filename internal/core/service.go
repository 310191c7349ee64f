package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"whalewatcher/internal/infra/persistence/memory"
	"whalewatcher/pkg/domain"
)

// Service is the case state store. Every action runs inside a single store
// transaction, so callers never observe a partial update.
type Service struct {
	store domain.PersistentStore
	opts  serviceOptions

	mu      sync.RWMutex
	session Session
}

// Session is the per-process reader state that is not part of the collections.
type Session struct {
	SelectedCaseID *string `json:"selected_case_id"`
	DemoCompleted  bool    `json:"demo_completed"`
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, opts: o}
}

// NewInMemoryService creates a service over a fresh in-memory store that
// shares the service clock. When a seed is configured it is loaded immediately.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	store := memory.NewStore(engine, memory.WithNowFunc(o.clock.Now))
	if o.seed != nil {
		store.ImportState(*o.seed)
	}
	return &Service{store: store, opts: o}
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// EnsureSeeded loads the configured seed into the store when it holds no cases.
// It reports whether the seed was applied.
func (s *Service) EnsureSeeded(ctx context.Context) (bool, error) {
	if s.opts.seed == nil || len(s.store.ExportState().Cases) > 0 {
		return false, nil
	}
	if err := s.store.ReplaceState(ctx, *s.opts.seed); err != nil {
		return false, err
	}
	s.opts.logger.Info("store seeded", "cases", len(s.opts.seed.Cases))
	return true, nil
}

type actorKey struct{}

// WithActor attributes actions run with ctx to a named user.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) (string, domain.ActorType) {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor, domain.ActorUser
	}
	return SystemActor, domain.ActorSystem
}

// action carries the transaction plus the events produced by one action so
// they can be published once the transaction commits.
type action struct {
	svc           *Service
	tx            domain.Transaction
	now           time.Time
	actor         string
	actorType     domain.ActorType
	audits        []domain.AuditEvent
	notifications []domain.Notification
}

func (a *action) audit(caseID string, typ domain.AuditEventType, actor string, actorType domain.ActorType, details string, ref *domain.EntityRef) error {
	ev, err := a.tx.AppendAuditEvent(domain.AuditEvent{
		CaseID:        caseID,
		Type:          typ,
		Timestamp:     a.now,
		Actor:         actor,
		ActorType:     actorType,
		Details:       details,
		RelatedEntity: ref,
	})
	if err != nil {
		return err
	}
	a.audits = append(a.audits, ev)
	return nil
}

// auditAs records an event attributed to the caller.
func (a *action) auditAs(caseID string, typ domain.AuditEventType, details string, ref *domain.EntityRef) error {
	return a.audit(caseID, typ, a.actor, a.actorType, details, ref)
}

// auditSystem records an event attributed to the system actor.
func (a *action) auditSystem(caseID string, typ domain.AuditEventType, details string, ref *domain.EntityRef) error {
	return a.audit(caseID, typ, SystemActor, domain.ActorSystem, details, ref)
}

func (a *action) missing(entity domain.EntityType, id string) error {
	if a.svc.opts.strictLookups {
		return ErrNotFound{Entity: entity, ID: id}
	}
	a.svc.opts.logger.Debug("lookup miss ignored", "entity", entity, "id", id)
	return nil
}

func ref(entity domain.EntityType, id string) *domain.EntityRef {
	return &domain.EntityRef{Type: entity, ID: id}
}

// run executes fn in a transaction with tracing, metrics and logging, then
// publishes the produced events.
func (s *Service) run(ctx context.Context, op string, fn func(a *action) error) (domain.Result, error) {
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := s.opts.clock.Now()
	actor, actorType := actorFrom(ctx)
	var committed *action
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		a := &action{svc: s, tx: tx, now: tx.Now(), actor: actor, actorType: actorType}
		if err := fn(a); err != nil {
			return err
		}
		committed = a
		return nil
	})
	duration := s.opts.clock.Now().Sub(start)
	s.opts.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	for _, v := range res.Violations {
		if v.Severity != domain.RuleBlock {
			s.opts.logger.Warn("rule violation", "op", op, "rule", v.Rule, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
		}
	}
	if err != nil {
		var violation domain.RuleViolationError
		switch {
		case errors.As(err, &violation):
			s.opts.logger.Warn("action blocked by rules", "op", op, "violations", len(violation.Result.Violations))
		case IsNotFound(err), errors.Is(err, ErrInvalidInput):
			s.opts.logger.Info("action rejected", "op", op, "error", err)
		default:
			s.opts.logger.Error("action failed", "op", op, "error", err)
		}
		return res, err
	}
	s.opts.logger.Debug("action committed", "op", op, "actor", actor, "audit_events", len(committed.audits), "duration", duration)
	s.publish(ctx, committed)
	return res, nil
}

func (s *Service) publish(ctx context.Context, a *action) {
	if s.opts.publisher == nil || a == nil {
		return
	}
	for _, ev := range a.audits {
		if err := s.opts.publisher.PublishAudit(ctx, ev); err != nil {
			s.opts.logger.Warn("publish audit event failed", "event", ev.ID, "error", err)
		}
	}
	for _, n := range a.notifications {
		if err := s.opts.publisher.PublishNotification(ctx, n); err != nil {
			s.opts.logger.Warn("publish notification failed", "notification", n.ID, "error", err)
		}
	}
}

// view runs a read-only query against a consistent snapshot.
func (s *Service) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// Session returns a copy of the current session state.
func (s *Service) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.session
	if out.SelectedCaseID != nil {
		id := *out.SelectedCaseID
		out.SelectedCaseID = &id
	}
	return out
}

// SelectCase sets the current case pointer for readers. A nil id clears it.
// Nothing in the collections changes and no audit event is written.
func (s *Service) SelectCase(ctx context.Context, caseID *string) error {
	if caseID != nil && s.opts.strictLookups {
		if _, err := s.GetCase(ctx, *caseID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if caseID == nil {
		s.session.SelectedCaseID = nil
		return nil
	}
	id := *caseID
	s.session.SelectedCaseID = &id
	return nil
}

func (s *Service) setDemoCompleted(v bool) {
	s.mu.Lock()
	s.session.DemoCompleted = v
	s.mu.Unlock()
}

// GetCase returns a single case or ErrNotFound.
func (s *Service) GetCase(ctx context.Context, id string) (Case, error) {
	var out Case
	var found bool
	err := s.view(ctx, func(v domain.TransactionView) error {
		out, found = v.FindCase(id)
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	if !found {
		return Case{}, ErrNotFound{Entity: domain.EntityCase, ID: id}
	}
	return out, nil
}

// ListCases returns the work queue ordered by priority, then SLA due time, then ID.
func (s *Service) ListCases(ctx context.Context) ([]Case, error) {
	var out []Case
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListCases()
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.SLADueAt.Equal(b.SLADueAt) {
			return a.SLADueAt.Before(b.SLADueAt)
		}
		return a.ID < b.ID
	})
	return out, err
}

// ListGaps returns gaps for caseID (all when empty) in creation order.
func (s *Service) ListGaps(ctx context.Context, caseID string) ([]Gap, error) {
	var out []Gap
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListGaps(caseID)
		return nil
	})
	return out, err
}

// GetGap returns a single gap or ErrNotFound.
func (s *Service) GetGap(ctx context.Context, id string) (Gap, error) {
	var out Gap
	var found bool
	err := s.view(ctx, func(v domain.TransactionView) error {
		out, found = v.FindGap(id)
		return nil
	})
	if err == nil && !found {
		err = ErrNotFound{Entity: domain.EntityGap, ID: id}
	}
	return out, err
}

// ListEvidenceOrders returns orders for caseID in creation order.
func (s *Service) ListEvidenceOrders(ctx context.Context, caseID string) ([]EvidenceOrder, error) {
	var out []EvidenceOrder
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListEvidenceOrders(caseID)
		return nil
	})
	return out, err
}

// ListDocuments returns documents for caseID in creation order.
func (s *Service) ListDocuments(ctx context.Context, caseID string) ([]Document, error) {
	var out []Document
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListDocuments(caseID)
		return nil
	})
	return out, err
}

// ListApplicationFields returns application fields for caseID in creation order.
func (s *Service) ListApplicationFields(ctx context.Context, caseID string) ([]ApplicationField, error) {
	var out []ApplicationField
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListApplicationFields(caseID)
		return nil
	})
	return out, err
}

// ListNotifications returns notifications for caseID in creation order.
func (s *Service) ListNotifications(ctx context.Context, caseID string) ([]Notification, error) {
	var out []Notification
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListNotifications(caseID)
		return nil
	})
	return out, err
}

// ListAuditEvents returns the audit trail newest first. Events sharing a
// timestamp are ordered by descending sequence.
func (s *Service) ListAuditEvents(ctx context.Context, caseID string) ([]AuditEvent, error) {
	var out []AuditEvent
	err := s.view(ctx, func(v domain.TransactionView) error {
		out = v.ListAuditEvents(caseID)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Seq > out[j].Seq
	})
	return out, err
}

// Snapshot exports every collection.
func (s *Service) Snapshot() Snapshot {
	return s.store.ExportState()
}
