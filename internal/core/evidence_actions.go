package core

import (
	"context"
	"fmt"
	"time"

	"whalewatcher/pkg/domain"
)

const evidenceOperationsTeam = "Evidence Operations"

// receiveOrderAt marks o received. With override set, unmet prerequisites are
// overridden first so the order passes the prerequisite check.
func receiveOrderAt(o *domain.EvidenceOrder, at time.Time, override bool) {
	received := at
	o.Status = domain.EvidenceReceived
	o.FailureReason = ""
	o.ReceivedAt = &received
	if !override {
		return
	}
	for i := range o.Prerequisites {
		if o.Prerequisites[i].Status == domain.PrerequisiteUnmet {
			o.Prerequisites[i].Status = domain.PrerequisiteOverridden
		}
	}
}

// OrderEvidence places a new order with no prerequisites.
func (s *Service) OrderEvidence(ctx context.Context, caseID string, typ domain.EvidenceType) (EvidenceOrder, Result, error) {
	if !typ.Valid() {
		return EvidenceOrder{}, Result{}, invalidf("evidence type %q", typ)
	}
	var created EvidenceOrder
	res, err := s.run(ctx, "order_evidence", func(a *action) error {
		view := a.tx.Snapshot()
		if _, ok := view.FindCase(caseID); !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		ordered := a.now
		var err error
		created, err = a.tx.CreateEvidenceOrder(domain.EvidenceOrder{
			CaseID:        caseID,
			Type:          typ,
			Status:        domain.EvidenceOrdered,
			Prerequisites: []domain.PrerequisiteCheck{},
			OrderedAt:     &ordered,
			PriorityRank:  len(view.ListEvidenceOrders(caseID)) + 1,
			Dependencies:  []string{},
		})
		if err != nil {
			return err
		}
		return a.auditAs(caseID, domain.AuditEvidenceOrdered, fmt.Sprintf("%s evidence ordered", typ), ref(domain.EntityEvidenceOrder, created.ID))
	})
	return created, res, err
}

// ToggleEvidenceFailure fails or restores the first evidence order of the case.
// Failing opens a matching evidence-failure gap.
func (s *Service) ToggleEvidenceFailure(ctx context.Context, caseID string, failed bool) (EvidenceOrder, Result, error) {
	var updated EvidenceOrder
	res, err := s.run(ctx, "toggle_evidence_failure", func(a *action) error {
		view := a.tx.Snapshot()
		if _, ok := view.FindCase(caseID); !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		orders := view.ListEvidenceOrders(caseID)
		if len(orders) == 0 {
			return a.missing(domain.EntityEvidenceOrder, caseID)
		}
		first := orders[0]
		if failed {
			if first.Status == domain.EvidenceFailed {
				updated = first
				return nil
			}
			var err error
			updated, err = s.failOrder(a, first, s.opts.demoFailureText, true)
			return err
		}
		if first.Status != domain.EvidenceFailed {
			updated = first
			return nil
		}
		var err error
		updated, err = a.tx.UpdateEvidenceOrder(first.ID, func(o *domain.EvidenceOrder) error {
			o.Status = domain.EvidenceOrdered
			o.FailureReason = ""
			return nil
		})
		if err != nil || !s.opts.symmetricAudit {
			return err
		}
		return a.auditAs(caseID, domain.AuditEvidenceOrdered,
			fmt.Sprintf("%s evidence failure cleared", updated.Type), ref(domain.EntityEvidenceOrder, updated.ID))
	})
	return updated, res, err
}

// failOrder marks o failed with reason and records one evidence-failed event.
func (s *Service) failOrder(a *action, o domain.EvidenceOrder, reason string, openGap bool) (domain.EvidenceOrder, error) {
	updated, err := a.tx.UpdateEvidenceOrder(o.ID, func(o *domain.EvidenceOrder) error {
		o.Status = domain.EvidenceFailed
		o.FailureReason = reason
		o.ReceivedAt = nil
		return nil
	})
	if err != nil {
		return domain.EvidenceOrder{}, err
	}
	if openGap {
		due := a.now.Add(demographicGapDueIn)
		if _, err := a.tx.CreateGap(domain.Gap{
			CaseID:      o.CaseID,
			Type:        domain.GapEvidenceFailure,
			Description: fmt.Sprintf("%s evidence order failed: %s", o.Type, reason),
			Questions: []string{
				fmt.Sprintf("Should the %s order be retried or replaced with an alternate source?", o.Type),
			},
			Severity:                domain.SeverityCritical,
			Priority:                domain.PriorityUrgent,
			Status:                  domain.GapOpen,
			OwningTeam:              evidenceOperationsTeam,
			RequestedFrom:           "Vendor",
			DueDate:                 &due,
			RelatedFields:           []string{},
			RelatedEvidenceOrderIDs: []string{o.ID},
			Timeline:                []domain.GapTimelineEntry{{Status: domain.GapOpen, Timestamp: a.now, Actor: a.actor}},
		}); err != nil {
			return domain.EvidenceOrder{}, err
		}
	}
	if err := a.auditAs(o.CaseID, domain.AuditEvidenceFailed,
		fmt.Sprintf("%s evidence failed: %s", o.Type, reason), ref(domain.EntityEvidenceOrder, o.ID)); err != nil {
		return domain.EvidenceOrder{}, err
	}
	return updated, nil
}

// ReceiveEvidence marks every order of the given type on the case received.
// Orders with unmet prerequisites cause the whole action to be rejected.
func (s *Service) ReceiveEvidence(ctx context.Context, caseID string, typ domain.EvidenceType) ([]EvidenceOrder, Result, error) {
	if !typ.Valid() {
		return nil, Result{}, invalidf("evidence type %q", typ)
	}
	var received []EvidenceOrder
	res, err := s.run(ctx, "receive_evidence", func(a *action) error {
		view := a.tx.Snapshot()
		if _, ok := view.FindCase(caseID); !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		for _, o := range view.ListEvidenceOrders(caseID) {
			if o.Type != typ {
				continue
			}
			updated, err := a.tx.UpdateEvidenceOrder(o.ID, func(o *domain.EvidenceOrder) error {
				receiveOrderAt(o, a.now, false)
				return nil
			})
			if err != nil {
				return err
			}
			received = append(received, updated)
		}
		if len(received) == 0 {
			return a.missing(domain.EntityEvidenceOrder, fmt.Sprintf("%s/%s", caseID, typ))
		}
		return a.auditAs(caseID, domain.AuditEvidenceReceived,
			fmt.Sprintf("%s evidence received", typ), ref(domain.EntityEvidenceOrder, received[0].ID))
	})
	if err != nil {
		return nil, res, err
	}
	return received, res, nil
}

// RetryEvidenceOrder puts a failed order back into the ordered state.
func (s *Service) RetryEvidenceOrder(ctx context.Context, orderID string) (EvidenceOrder, Result, error) {
	var updated EvidenceOrder
	res, err := s.run(ctx, "retry_evidence_order", func(a *action) error {
		o, ok := a.tx.Snapshot().FindEvidenceOrder(orderID)
		if !ok {
			return a.missing(domain.EntityEvidenceOrder, orderID)
		}
		if o.Status != domain.EvidenceFailed {
			return invalidf("evidence order %s is %s, not failed", orderID, o.Status)
		}
		var err error
		updated, err = a.tx.UpdateEvidenceOrder(orderID, func(o *domain.EvidenceOrder) error {
			ordered := a.now
			o.Status = domain.EvidenceOrdered
			o.FailureReason = ""
			o.OrderedAt = &ordered
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditAs(o.CaseID, domain.AuditEvidenceOrdered,
			fmt.Sprintf("%s evidence re-ordered after failure", o.Type), ref(domain.EntityEvidenceOrder, orderID))
	})
	return updated, res, err
}

// FailEvidenceOrder marks a specific order failed. When openGap is set an
// evidence-failure gap referencing the order is opened as well.
func (s *Service) FailEvidenceOrder(ctx context.Context, orderID, reason string, openGap bool) (EvidenceOrder, Result, error) {
	if reason == "" {
		return EvidenceOrder{}, Result{}, invalidf("failure reason is required")
	}
	var updated EvidenceOrder
	res, err := s.run(ctx, "fail_evidence_order", func(a *action) error {
		o, ok := a.tx.Snapshot().FindEvidenceOrder(orderID)
		if !ok {
			return a.missing(domain.EntityEvidenceOrder, orderID)
		}
		if o.Status == domain.EvidenceReceived {
			return invalidf("evidence order %s already received", orderID)
		}
		var err error
		updated, err = s.failOrder(a, o, reason, openGap)
		return err
	})
	return updated, res, err
}
