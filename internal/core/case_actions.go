package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"whalewatcher/pkg/domain"
)

const (
	// SystemActor attributes automated changes.
	SystemActor = "system"
	// DemographicFlag is the risk flag and blocker added for missing demographics.
	DemographicFlag = "Missing demographic info"
	// DemoEvidenceFailureReason is recorded when the demo toggles an evidence failure.
	DemoEvidenceFailureReason = "Vendor returned no-hit: applicant identifiers could not be matched"

	demographicMarker    = "demographic"
	demographicGapDueIn  = 48 * time.Hour
	verifyCompletenessUp = 15
)

func isDemographic(text string) bool {
	return strings.Contains(strings.ToLower(text), demographicMarker)
}

// withoutDemographic returns a copy of labels minus demographic entries.
func withoutDemographic(labels []string) []string {
	if labels == nil {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !isDemographic(l) {
			out = append(out, l)
		}
	}
	return out
}

func appendUnique(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}

func stageLabel(stage int) string {
	return fmt.Sprintf("stage %d (%s)", stage, domain.StageNames[stage])
}

// AdvanceStage moves the case one stage forward and marks it in progress.
// At the final stage it is a no-op without an audit event.
func (s *Service) AdvanceStage(ctx context.Context, caseID string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, "advance_stage", func(a *action) error {
		c, ok := a.tx.Snapshot().FindCase(caseID)
		if !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		if c.Stage >= domain.MaxStage {
			updated = c
			return nil
		}
		from := c.Stage
		var err error
		updated, err = a.tx.UpdateCase(caseID, func(c *domain.Case) error {
			c.Stage++
			c.StageStatus = domain.StageInProgress
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditSystem(caseID, domain.AuditStageChange,
			fmt.Sprintf("Advanced from %s to %s", stageLabel(from), stageLabel(updated.Stage)),
			ref(domain.EntityCase, caseID))
	})
	return updated, res, err
}

// ToggleMissingDemographics adds or removes the missing-demographics condition.
// Adding opens a critical gap and blocks the case; removing deletes every gap
// whose description mentions demographics and strips the matching labels.
func (s *Service) ToggleMissingDemographics(ctx context.Context, caseID string, missing bool) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, "toggle_missing_demographics", func(a *action) error {
		if _, ok := a.tx.Snapshot().FindCase(caseID); !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		if missing {
			return s.addDemographicGap(a, caseID, &updated)
		}
		return s.removeDemographicGaps(a, caseID, &updated)
	})
	return updated, res, err
}

func (s *Service) addDemographicGap(a *action, caseID string, updated *domain.Case) error {
	due := a.now.Add(demographicGapDueIn)
	gap, err := a.tx.CreateGap(domain.Gap{
		CaseID:      caseID,
		Type:        domain.GapMissingInfo,
		Description: "Missing demographic information required for underwriting",
		Questions: []string{
			"Please confirm the applicant's date of birth.",
			"Please confirm the applicant's gender.",
		},
		Severity:      domain.SeverityCritical,
		Priority:      domain.PriorityUrgent,
		Status:        domain.GapOpen,
		OwningTeam:    "New Business",
		RequestedFrom: "Agent",
		DueDate:       &due,
		RelatedFields: []string{"date_of_birth", "gender"},
		Timeline:      []domain.GapTimelineEntry{{Status: domain.GapOpen, Timestamp: a.now, Actor: a.actor}},
	})
	if err != nil {
		return err
	}
	*updated, err = a.tx.UpdateCase(caseID, func(c *domain.Case) error {
		c.RiskFlags = appendUnique(c.RiskFlags, DemographicFlag)
		c.Blockers = appendUnique(c.Blockers, DemographicFlag)
		c.StageStatus = domain.StageBlocked
		return nil
	})
	if err != nil {
		return err
	}
	return a.auditAs(caseID, domain.AuditGapCreated, "Gap opened: "+gap.Description, ref(domain.EntityGap, gap.ID))
}

func (s *Service) removeDemographicGaps(a *action, caseID string, updated *domain.Case) error {
	removed := 0
	for _, g := range a.tx.Snapshot().ListGaps(caseID) {
		if !isDemographic(g.Description) {
			continue
		}
		if err := a.tx.DeleteGap(g.ID); err != nil {
			return err
		}
		removed++
	}
	var err error
	*updated, err = a.tx.UpdateCase(caseID, func(c *domain.Case) error {
		c.RiskFlags = withoutDemographic(c.RiskFlags)
		c.Blockers = withoutDemographic(c.Blockers)
		c.StageStatus = domain.StageInProgress
		return nil
	})
	if err != nil {
		return err
	}
	if !s.opts.symmetricAudit {
		return nil
	}
	return a.auditAs(caseID, domain.AuditGapUpdated,
		fmt.Sprintf("Demographic condition cleared, %d gap(s) removed", removed),
		ref(domain.EntityCase, caseID))
}

// VerifyDemographics closes every open demographic gap, clears the related
// labels, marks demographic fields verified and raises completeness by 15.
func (s *Service) VerifyDemographics(ctx context.Context, caseID string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, "verify_demographics", func(a *action) error {
		view := a.tx.Snapshot()
		if _, ok := view.FindCase(caseID); !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		for _, g := range view.ListGaps(caseID) {
			if !isDemographic(g.Description) || g.Status == domain.GapClosed {
				continue
			}
			if _, err := a.tx.UpdateGap(g.ID, func(g *domain.Gap) error {
				closeGapAt(g, a.now, a.actor)
				return nil
			}); err != nil {
				return err
			}
			if err := a.auditAs(caseID, domain.AuditGapClosed, "Gap closed: "+g.Description, ref(domain.EntityGap, g.ID)); err != nil {
				return err
			}
		}
		verified := 0
		for _, f := range view.ListApplicationFields(caseID) {
			if !isDemographicField(f) || f.VerificationStatus == domain.FieldVerified {
				continue
			}
			if _, err := a.tx.UpdateApplicationField(f.ID, func(f *domain.ApplicationField) error {
				f.VerificationStatus = domain.FieldVerified
				return nil
			}); err != nil {
				return err
			}
			verified++
		}
		var err error
		updated, err = a.tx.UpdateCase(caseID, func(c *domain.Case) error {
			c.RiskFlags = withoutDemographic(c.RiskFlags)
			c.Blockers = withoutDemographic(c.Blockers)
			c.StageStatus = domain.StageInProgress
			c.CompletenessScore = min(c.CompletenessScore+verifyCompletenessUp, 100)
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditAs(caseID, domain.AuditFieldVerified,
			fmt.Sprintf("Demographics verified (%d field(s))", verified),
			ref(domain.EntityCase, caseID))
	})
	return updated, res, err
}

func isDemographicField(f domain.ApplicationField) bool {
	if strings.EqualFold(f.Category, "demographics") {
		return true
	}
	switch f.Name {
	case "date_of_birth", "gender":
		return true
	}
	return false
}

// CompleteDemoSuccess fast-forwards the case to a decision-ready state in one
// bulk step: orders received, gaps closed, documents processed without
// conflicts and the case at the final stage with full completeness. Unmet
// prerequisites are overridden so the orders can be received. A single
// stage-change event is recorded.
func (s *Service) CompleteDemoSuccess(ctx context.Context, caseID string) (Case, Result, error) {
	var updated Case
	found := false
	res, err := s.run(ctx, "complete_demo_success", func(a *action) error {
		view := a.tx.Snapshot()
		c, ok := view.FindCase(caseID)
		if !ok {
			return a.missing(domain.EntityCase, caseID)
		}
		found = true
		for _, o := range view.ListEvidenceOrders(caseID) {
			if _, err := a.tx.UpdateEvidenceOrder(o.ID, func(o *domain.EvidenceOrder) error {
				receiveOrderAt(o, a.now, true)
				return nil
			}); err != nil {
				return err
			}
		}
		for _, g := range view.ListGaps(caseID) {
			if g.Status == domain.GapClosed {
				continue
			}
			if _, err := a.tx.UpdateGap(g.ID, func(g *domain.Gap) error {
				closeGapAt(g, a.now, a.actor)
				return nil
			}); err != nil {
				return err
			}
		}
		for _, d := range view.ListDocuments(caseID) {
			if _, err := a.tx.UpdateDocument(d.ID, func(d *domain.Document) error {
				d.Status = domain.DocumentProcessed
				d.Conflicts = []domain.FieldConflict{}
				return nil
			}); err != nil {
				return err
			}
		}
		var err error
		updated, err = a.tx.UpdateCase(caseID, func(c *domain.Case) error {
			c.Stage = domain.MaxStage
			c.StageStatus = domain.StageCompleted
			c.CompletenessScore = 100
			c.Blockers = []string{}
			c.RiskFlags = []string{}
			c.StageBlockers = nil
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditSystem(caseID, domain.AuditStageChange,
			fmt.Sprintf("Case fast-forwarded from %s to decision-ready", stageLabel(c.Stage)),
			ref(domain.EntityCase, caseID))
	})
	if err == nil && found {
		s.setDemoCompleted(true)
	}
	return updated, res, err
}

// ResetDemo replaces every collection with the seed fixture and clears the
// demo-completed flag. No audit event is written.
func (s *Service) ResetDemo(ctx context.Context) error {
	ctx, span := s.opts.tracer.Start(ctx, "reset_demo")
	start := s.opts.clock.Now()
	seed := domain.Snapshot{}
	if s.opts.seed != nil {
		seed = *s.opts.seed
	}
	err := s.store.ReplaceState(ctx, seed)
	s.opts.metrics.Observe(ctx, "reset_demo", err == nil, s.opts.clock.Now().Sub(start))
	span.End(err)
	if err != nil {
		s.opts.logger.Error("reset failed", "error", err)
		return fmt.Errorf("reset demo: %w", err)
	}
	s.setDemoCompleted(false)
	s.opts.logger.Info("demo reset", "cases", len(seed.Cases))
	return nil
}
