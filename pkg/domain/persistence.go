package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	UpdateCase(id string, mutator func(*Case) error) (Case, error)
	CreateGap(Gap) (Gap, error)
	UpdateGap(id string, mutator func(*Gap) error) (Gap, error)
	DeleteGap(id string) error
	CreateEvidenceOrder(EvidenceOrder) (EvidenceOrder, error)
	UpdateEvidenceOrder(id string, mutator func(*EvidenceOrder) error) (EvidenceOrder, error)
	CreateDocument(Document) (Document, error)
	UpdateDocument(id string, mutator func(*Document) error) (Document, error)
	UpdateApplicationField(id string, mutator func(*ApplicationField) error) (ApplicationField, error)
	CreateNotification(Notification) (Notification, error)
	UpdateNotification(id string, mutator func(*Notification) error) (Notification, error)
	AppendAuditEvent(AuditEvent) (AuditEvent, error)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
// List methods filter by case when caseID is non-empty and return records in
// creation order.
type TransactionView interface {
	ListCases() []Case
	FindCase(id string) (Case, bool)
	ListGaps(caseID string) []Gap
	FindGap(id string) (Gap, bool)
	ListEvidenceOrders(caseID string) []EvidenceOrder
	FindEvidenceOrder(id string) (EvidenceOrder, bool)
	ListDocuments(caseID string) []Document
	FindDocument(id string) (Document, bool)
	ListApplicationFields(caseID string) []ApplicationField
	FindApplicationField(id string) (ApplicationField, bool)
	ListNotifications(caseID string) []Notification
	FindNotification(id string) (Notification, bool)
	ListAuditEvents(caseID string) []AuditEvent
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	ReplaceState(ctx context.Context, snapshot Snapshot) error
}

// Snapshot captures a point-in-time copy of every collection keyed by ID.
type Snapshot struct {
	Cases             map[string]Case             `json:"cases"`
	Gaps              map[string]Gap              `json:"gaps"`
	EvidenceOrders    map[string]EvidenceOrder    `json:"evidence_orders"`
	Documents         map[string]Document         `json:"documents"`
	ApplicationFields map[string]ApplicationField `json:"application_fields"`
	Notifications     map[string]Notification     `json:"notifications"`
	AuditEvents       map[string]AuditEvent       `json:"audit_events"`
}
