package memory

import (
	"sort"
	"time"

	"whalewatcher/pkg/domain"
)

type memoryState struct {
	cases         map[string]domain.Case
	gaps          map[string]domain.Gap
	orders        map[string]domain.EvidenceOrder
	documents     map[string]domain.Document
	fields        map[string]domain.ApplicationField
	notifications map[string]domain.Notification
	audit         map[string]domain.AuditEvent
	auditSeq      int64
}

func newMemoryState() memoryState {
	return memoryState{
		cases:         make(map[string]domain.Case),
		gaps:          make(map[string]domain.Gap),
		orders:        make(map[string]domain.EvidenceOrder),
		documents:     make(map[string]domain.Document),
		fields:        make(map[string]domain.ApplicationField),
		notifications: make(map[string]domain.Notification),
		audit:         make(map[string]domain.AuditEvent),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.cases {
		cloned.cases[k] = cloneCase(v)
	}
	for k, v := range s.gaps {
		cloned.gaps[k] = cloneGap(v)
	}
	for k, v := range s.orders {
		cloned.orders[k] = cloneOrder(v)
	}
	for k, v := range s.documents {
		cloned.documents[k] = cloneDocument(v)
	}
	for k, v := range s.fields {
		cloned.fields[k] = cloneField(v)
	}
	for k, v := range s.notifications {
		cloned.notifications[k] = cloneNotification(v)
	}
	for k, v := range s.audit {
		cloned.audit[k] = cloneAuditEvent(v)
	}
	cloned.auditSeq = s.auditSeq
	return cloned
}

func snapshotFromMemoryState(state memoryState) domain.Snapshot {
	cloned := state.clone()
	return domain.Snapshot{
		Cases:             cloned.cases,
		Gaps:              cloned.gaps,
		EvidenceOrders:    cloned.orders,
		Documents:         cloned.documents,
		ApplicationFields: cloned.fields,
		Notifications:     cloned.notifications,
		AuditEvents:       cloned.audit,
	}
}

func memoryStateFromSnapshot(s domain.Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Cases {
		state.cases[k] = cloneCase(v)
	}
	for k, v := range s.Gaps {
		state.gaps[k] = cloneGap(v)
	}
	for k, v := range s.EvidenceOrders {
		state.orders[k] = cloneOrder(v)
	}
	for k, v := range s.Documents {
		state.documents[k] = cloneDocument(v)
	}
	for k, v := range s.ApplicationFields {
		state.fields[k] = cloneField(v)
	}
	for k, v := range s.Notifications {
		state.notifications[k] = cloneNotification(v)
	}
	for k, v := range s.AuditEvents {
		state.audit[k] = cloneAuditEvent(v)
		if v.Seq > state.auditSeq {
			state.auditSeq = v.Seq
		}
	}
	return state
}

func cloneCase(c domain.Case) domain.Case {
	cp := c
	cp.RiskFlags = cloneSlice(c.RiskFlags)
	cp.Blockers = cloneSlice(c.Blockers)
	cp.StageOwners = cloneStageMap(c.StageOwners)
	cp.StageETAs = cloneStageMap(c.StageETAs)
	cp.StageBlockers = cloneStageMap(c.StageBlockers)
	return cp
}

func cloneGap(g domain.Gap) domain.Gap {
	cp := g
	cp.Questions = cloneSlice(g.Questions)
	cp.DueDate = cloneTime(g.DueDate)
	cp.ClosedDate = cloneTime(g.ClosedDate)
	cp.RelatedFields = cloneSlice(g.RelatedFields)
	cp.RelatedEvidenceOrderIDs = cloneSlice(g.RelatedEvidenceOrderIDs)
	cp.Timeline = cloneSlice(g.Timeline)
	return cp
}

func cloneOrder(o domain.EvidenceOrder) domain.EvidenceOrder {
	cp := o
	cp.GapID = cloneString(o.GapID)
	cp.Prerequisites = cloneSlice(o.Prerequisites)
	cp.OrderedAt = cloneTime(o.OrderedAt)
	cp.ReceivedAt = cloneTime(o.ReceivedAt)
	cp.Dependencies = cloneSlice(o.Dependencies)
	return cp
}

func cloneDocument(d domain.Document) domain.Document {
	cp := d
	cp.ExtractedFields = cloneSlice(d.ExtractedFields)
	if d.Conflicts != nil {
		cp.Conflicts = make([]domain.FieldConflict, len(d.Conflicts))
		for i, c := range d.Conflicts {
			cp.Conflicts[i] = domain.FieldConflict{Field: c.Field, Values: cloneSlice(c.Values)}
		}
	}
	return cp
}

func cloneField(f domain.ApplicationField) domain.ApplicationField {
	cp := f
	cp.ChangeLog = cloneSlice(f.ChangeLog)
	return cp
}

func cloneNotification(n domain.Notification) domain.Notification {
	cp := n
	cp.RelatedGapID = cloneString(n.RelatedGapID)
	cp.RelatedEvidenceOrderID = cloneString(n.RelatedEvidenceOrderID)
	return cp
}

func cloneAuditEvent(e domain.AuditEvent) domain.AuditEvent {
	cp := e
	if e.RelatedEntity != nil {
		ref := *e.RelatedEntity
		cp.RelatedEntity = &ref
	}
	return cp
}

// cloneSlice copies values while preserving the nil/empty distinction so
// exported snapshots stay deep-equal to the state they were imported from.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneStageMap(in map[int]string) map[int]string {
	if in == nil {
		return nil
	}
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func sortAuditEvents(events []domain.AuditEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Seq < events[j].Seq
	})
}

// sortByCreation orders records by creation time, breaking ties on ID.
func sortByCreation[T any](items []T, base func(T) domain.Base) {
	sort.Slice(items, func(i, j int) bool {
		a, b := base(items[i]), base(items[j])
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
