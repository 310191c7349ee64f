package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"whalewatcher/internal/seed"
	"whalewatcher/pkg/domain"
)

var testNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

// stepClock advances by one second on every read so consecutive actions get
// distinct timestamps.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock { return &stepClock{now: testNow} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func loadSeed(t *testing.T) domain.Snapshot {
	t.Helper()
	snap, err := seed.Load()
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	return snap
}

func newSeededService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithClock(newStepClock()), WithSeed(loadSeed(t))}
	return NewInMemoryService(NewDefaultRulesEngine(), append(base, opts...)...)
}

func mustCase(t *testing.T, svc *Service, id string) Case {
	t.Helper()
	c, err := svc.GetCase(context.Background(), id)
	if err != nil {
		t.Fatalf("get case %s: %v", id, err)
	}
	return c
}

func mustGap(t *testing.T, svc *Service, id string) Gap {
	t.Helper()
	g, err := svc.GetGap(context.Background(), id)
	if err != nil {
		t.Fatalf("get gap %s: %v", id, err)
	}
	return g
}

func auditEvents(t *testing.T, svc *Service, caseID string) []AuditEvent {
	t.Helper()
	events, err := svc.ListAuditEvents(context.Background(), caseID)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	return events
}

func countAudit(events []AuditEvent, typ domain.AuditEventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func findOrder(t *testing.T, svc *Service, id string) EvidenceOrder {
	t.Helper()
	var out EvidenceOrder
	var ok bool
	if err := svc.store.View(context.Background(), func(v domain.TransactionView) error {
		out, ok = v.FindEvidenceOrder(id)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if !ok {
		t.Fatalf("evidence order %s not found", id)
	}
	return out
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *captureLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
