package core

import "whalewatcher/pkg/domain"

type (
	// Case is an insurance application under review.
	Case = domain.Case
	// Gap is an outstanding information or process item.
	Gap = domain.Gap
	// EvidenceOrder is a request to an external data source.
	EvidenceOrder = domain.EvidenceOrder
	// Document is an ingested artifact.
	Document = domain.Document
	// ApplicationField is the cross-document projection of a field.
	ApplicationField = domain.ApplicationField
	// AuditEvent is an immutable audit record.
	AuditEvent = domain.AuditEvent
	// Notification records an outbound message.
	Notification = domain.Notification
	// Snapshot captures every collection keyed by ID.
	Snapshot = domain.Snapshot
	// Result aggregates rule violations.
	Result = domain.Result
	// RulesEngine orchestrates rule evaluation.
	RulesEngine = domain.RulesEngine
	// Transaction is the mutable transactional scope.
	Transaction = domain.Transaction
	// TransactionView is a read-only view over store state.
	TransactionView = domain.TransactionView
	// PersistentStore abstracts durable backends.
	PersistentStore = domain.PersistentStore
)
