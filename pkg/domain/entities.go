// Package domain defines the underwriting case entities, status enumerations,
// and rule evaluation primitives used by the whale watcher case store.
package domain

import "time"

// EntityType identifies the type of record stored in the case store.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCase identifies an insurance application under review.
	EntityCase EntityType = "case"
	// EntityGap identifies an outstanding information or process item.
	EntityGap EntityType = "gap"
	// EntityEvidenceOrder identifies a request to an external data source.
	EntityEvidenceOrder EntityType = "evidence_order"
	// EntityDocument identifies an ingested artifact.
	EntityDocument EntityType = "document"
	// EntityApplicationField identifies a cross-document field projection.
	EntityApplicationField EntityType = "application_field"
	// EntityNotification identifies an outbound message record.
	EntityNotification EntityType = "notification"
	// EntityAuditEvent identifies an immutable audit trail record.
	EntityAuditEvent EntityType = "audit_event"
)

// MinStage and MaxStage bound the ordinal case lifecycle stage.
const (
	MinStage = 1
	MaxStage = 8
)

// StageNames maps each ordinal stage to its display label.
var StageNames = map[int]string{
	1: "Application Initiated",
	2: "Data Collection",
	3: "Identity & Demographics Verification",
	4: "Evidence Planning",
	5: "Evidence Ordering",
	6: "Evidence Review",
	7: "Underwriter Review",
	8: "Decision-Ready Case",
}

// StageStatus captures progress within the current stage.
type StageStatus string

// Canonical stage statuses.
const (
	StageNotStarted StageStatus = "not-started"
	StageInProgress StageStatus = "in-progress"
	StageBlocked    StageStatus = "blocked"
	StageCompleted  StageStatus = "completed"
)

// Priority ranks cases, gaps and notifications for the work queue.
type Priority string

// Canonical priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities, most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// GapType classifies a gap.
type GapType string

// Canonical gap types.
const (
	GapMissingInfo        GapType = "missing-info"
	GapVerificationNeeded GapType = "verification-needed"
	GapClarification      GapType = "clarification"
	GapDocumentRequest    GapType = "document-request"
	GapEvidenceFailure    GapType = "evidence-failure"
)

// Severity grades the impact of a gap.
type Severity string

// Canonical gap severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// GapStatus tracks a gap through request and resolution. Transitions are not
// strictly linear: received and verified may be skipped.
type GapStatus string

// Canonical gap statuses.
const (
	GapOpen         GapStatus = "open"
	GapRequested    GapStatus = "requested"
	GapReminderSent GapStatus = "reminder-sent"
	GapReceived     GapStatus = "received"
	GapVerified     GapStatus = "verified"
	GapClosed       GapStatus = "closed"
)

// Valid reports whether s is a known gap status.
func (s GapStatus) Valid() bool {
	switch s {
	case GapOpen, GapRequested, GapReminderSent, GapReceived, GapVerified, GapClosed:
		return true
	}
	return false
}

// EvidenceType names an external verification source.
type EvidenceType string

// Supported evidence sources.
const (
	EvidenceMVR      EvidenceType = "MVR"
	EvidenceMIB      EvidenceType = "MIB"
	EvidenceAPS      EvidenceType = "APS"
	EvidenceLabs     EvidenceType = "Labs"
	EvidenceRxCheck  EvidenceType = "Rx-Check"
	EvidenceCredit   EvidenceType = "Credit"
	EvidenceIdentity EvidenceType = "Identity"
)

// Valid reports whether t is a supported evidence source.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceMVR, EvidenceMIB, EvidenceAPS, EvidenceLabs, EvidenceRxCheck, EvidenceCredit, EvidenceIdentity:
		return true
	}
	return false
}

// EvidenceStatus tracks an evidence order.
type EvidenceStatus string

// Canonical evidence order statuses.
const (
	EvidencePlanned  EvidenceStatus = "planned"
	EvidenceOrdered  EvidenceStatus = "ordered"
	EvidenceFailed   EvidenceStatus = "failed"
	EvidenceReceived EvidenceStatus = "received"
)

// PrerequisiteStatus captures whether a prerequisite check passed.
type PrerequisiteStatus string

// Canonical prerequisite statuses.
const (
	PrerequisiteMet        PrerequisiteStatus = "met"
	PrerequisiteUnmet      PrerequisiteStatus = "unmet"
	PrerequisiteOverridden PrerequisiteStatus = "overridden"
)

// DocumentStatus tracks ingestion processing.
type DocumentStatus string

// Canonical document statuses.
const (
	DocumentReceived   DocumentStatus = "received"
	DocumentProcessing DocumentStatus = "processing"
	DocumentProcessed  DocumentStatus = "processed"
	DocumentFailed     DocumentStatus = "failed"
)

// VerificationStatus describes the trust level of an application field.
type VerificationStatus string

// Canonical field verification statuses.
const (
	FieldUnverified     VerificationStatus = "unverified"
	FieldVerified       VerificationStatus = "verified"
	FieldStatusConflict VerificationStatus = "conflict"
	FieldOverridden     VerificationStatus = "overridden"
)

// AuditEventType enumerates the audit trail vocabulary.
type AuditEventType string

// Audit event types.
const (
	AuditStageChange         AuditEventType = "stage-change"
	AuditGapCreated          AuditEventType = "gap-created"
	AuditGapUpdated          AuditEventType = "gap-updated"
	AuditGapClosed           AuditEventType = "gap-closed"
	AuditEvidencePlanned     AuditEventType = "evidence-planned"
	AuditEvidenceOrdered     AuditEventType = "evidence-ordered"
	AuditEvidenceFailed      AuditEventType = "evidence-failed"
	AuditEvidenceReceived    AuditEventType = "evidence-received"
	AuditDocumentReceived    AuditEventType = "document-received"
	AuditDocumentProcessed   AuditEventType = "document-processed"
	AuditDocumentFailed      AuditEventType = "document-failed"
	AuditFieldExtracted      AuditEventType = "field-extracted"
	AuditFieldVerified       AuditEventType = "field-verified"
	AuditFieldOverridden     AuditEventType = "field-overridden"
	AuditNotificationSent    AuditEventType = "notification-sent"
	AuditCaseAssigned        AuditEventType = "case-assigned"
	AuditCasePriorityChanged AuditEventType = "case-priority-changed"
)

// ActorType distinguishes human from automated actors.
type ActorType string

// Actor types.
const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// NotificationChannel selects the delivery medium.
type NotificationChannel string

// Notification channels.
const (
	ChannelInApp NotificationChannel = "in-app"
	ChannelEmail NotificationChannel = "email"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Applicant captures identity and demographics of the proposed insured.
type Applicant struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	State       string `json:"state"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Case represents one insurance application under review.
type Case struct {
	Base
	Applicant         Applicant      `json:"applicant"`
	ProductType       string         `json:"product_type"`
	CoverageAmount    int64          `json:"coverage_amount"`
	Stage             int            `json:"stage"`
	StageStatus       StageStatus    `json:"stage_status"`
	Priority          Priority       `json:"priority"`
	SLADueAt          time.Time      `json:"sla_due_at"`
	AssignedTo        string         `json:"assigned_to"`
	AssignedRole      string         `json:"assigned_role"`
	CompletenessScore int            `json:"completeness_score"`
	RiskFlags         []string       `json:"risk_flags"`
	Blockers          []string       `json:"blockers"`
	StageOwners       map[int]string `json:"stage_owners,omitempty"`
	StageETAs         map[int]string `json:"stage_etas,omitempty"`
	StageBlockers     map[int]string `json:"stage_blockers,omitempty"`
}

// GapTimelineEntry records a single gap status transition.
type GapTimelineEntry struct {
	Status    GapStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
}

// Gap is an outstanding information or process item blocking progress.
type Gap struct {
	Base
	CaseID                  string             `json:"case_id"`
	Type                    GapType            `json:"type"`
	Description             string             `json:"description"`
	Questions               []string           `json:"questions"`
	Severity                Severity           `json:"severity"`
	Priority                Priority           `json:"priority"`
	Status                  GapStatus          `json:"status"`
	OwningTeam              string             `json:"owning_team"`
	RequestedFrom           string             `json:"requested_from"`
	DueDate                 *time.Time         `json:"due_date,omitempty"`
	ClosedDate              *time.Time         `json:"closed_date,omitempty"`
	RelatedFields           []string           `json:"related_fields"`
	RelatedEvidenceOrderIDs []string           `json:"related_evidence_order_ids"`
	Timeline                []GapTimelineEntry `json:"timeline"`
}

// PrerequisiteCheck is a field-level precondition for placing an evidence order.
type PrerequisiteCheck struct {
	Field    string             `json:"field"`
	Required bool               `json:"required"`
	Status   PrerequisiteStatus `json:"status"`
}

// EvidenceOrder is a request to an external data source.
type EvidenceOrder struct {
	Base
	CaseID        string              `json:"case_id"`
	GapID         *string             `json:"gap_id,omitempty"`
	Type          EvidenceType        `json:"type"`
	Status        EvidenceStatus      `json:"status"`
	Prerequisites []PrerequisiteCheck `json:"prerequisites"`
	FailureReason string              `json:"failure_reason,omitempty"`
	OrderedAt     *time.Time          `json:"ordered_at,omitempty"`
	ReceivedAt    *time.Time          `json:"received_at,omitempty"`
	PriorityRank  int                 `json:"priority_rank"`
	Dependencies  []string            `json:"dependencies"`
}

// HasUnmetPrerequisites reports whether any check is still unmet.
func (o EvidenceOrder) HasUnmetPrerequisites() bool {
	for _, p := range o.Prerequisites {
		if p.Status == PrerequisiteUnmet {
			return true
		}
	}
	return false
}

// ExtractedField is one OCR-extracted value from a document.
type ExtractedField struct {
	Field       string  `json:"field"`
	Value       string  `json:"value"`
	Confidence  float64 `json:"confidence"`
	SourceDocID string  `json:"source_doc_id"`
}

// ConflictValue is one document's reading of a conflicting field.
type ConflictValue struct {
	DocumentID string `json:"document_id"`
	Value      string `json:"value"`
}

// FieldConflict records a field whose value differs across documents of a case.
type FieldConflict struct {
	Field  string          `json:"field"`
	Values []ConflictValue `json:"values"`
}

// Document is an ingested artifact with extracted fields.
type Document struct {
	Base
	CaseID          string           `json:"case_id"`
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	Source          string           `json:"source"`
	ReceivedAt      time.Time        `json:"received_at"`
	Status          DocumentStatus   `json:"status"`
	ExtractedFields []ExtractedField `json:"extracted_fields"`
	Conflicts       []FieldConflict  `json:"conflicts"`
	ConfidenceScore float64          `json:"confidence_score"`
	BlobKey         string           `json:"blob_key,omitempty"`
}

// FieldChange is one append-only entry of an application field's change log.
type FieldChange struct {
	PreviousValue string    `json:"previous_value"`
	NewValue      string    `json:"new_value"`
	Source        string    `json:"source"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// ApplicationField is the cross-document projection of one application field.
type ApplicationField struct {
	Base
	CaseID             string             `json:"case_id"`
	Name               string             `json:"name"`
	Category           string             `json:"category"`
	Value              string             `json:"value"`
	SourceDocID        string             `json:"source_doc_id"`
	Confidence         float64            `json:"confidence"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	ChangeLog          []FieldChange      `json:"change_log"`
}

// EntityRef points at a related record.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// AuditEvent is an immutable record of what happened, when, by whom and why.
type AuditEvent struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	CaseID        string         `json:"case_id"`
	Type          AuditEventType `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor"`
	ActorType     ActorType      `json:"actor_type"`
	Details       string         `json:"details"`
	RelatedEntity *EntityRef     `json:"related_entity,omitempty"`
}

// Notification records an outbound message tied to a case.
type Notification struct {
	Base
	CaseID                 string              `json:"case_id"`
	Trigger                string              `json:"trigger"`
	Channel                NotificationChannel `json:"channel"`
	RecipientRole          string              `json:"recipient_role"`
	Subject                string              `json:"subject"`
	Body                   string              `json:"body"`
	RelatedGapID           *string             `json:"related_gap_id,omitempty"`
	RelatedEvidenceOrderID *string             `json:"related_evidence_order_id,omitempty"`
	Read                   bool                `json:"read"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported modifications captured in a transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// RuleSeverity captures rule outcomes.
type RuleSeverity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// RuleBlock blocks transaction commit.
	RuleBlock RuleSeverity = "block"
	// RuleWarn logs a warning but allows commit.
	RuleWarn RuleSeverity = "warn"
	RuleLog  RuleSeverity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string       `json:"rule"`
	Severity RuleSeverity `json:"severity"`
	Message  string       `json:"message"`
	Entity   EntityType   `json:"entity"`
	EntityID string       `json:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == RuleBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
