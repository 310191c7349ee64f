package core

import (
	"context"
	"fmt"
	"time"

	"whalewatcher/pkg/domain"
)

// closeGapAt closes g in place, appending the matching timeline entry.
func closeGapAt(g *domain.Gap, at time.Time, actor string) {
	closed := at
	g.Status = domain.GapClosed
	g.ClosedDate = &closed
	g.Timeline = append(g.Timeline, domain.GapTimelineEntry{Status: domain.GapClosed, Timestamp: at, Actor: actor})
}

// AddGap appends a gap to its case. Status defaults to open and the timeline
// to a single entry for that status.
func (s *Service) AddGap(ctx context.Context, gap Gap) (Gap, Result, error) {
	if gap.Status == "" {
		gap.Status = domain.GapOpen
	}
	if !gap.Status.Valid() {
		return Gap{}, Result{}, invalidf("gap status %q", gap.Status)
	}
	if gap.CaseID == "" {
		return Gap{}, Result{}, invalidf("gap case id is required")
	}
	var created Gap
	res, err := s.run(ctx, "add_gap", func(a *action) error {
		if _, ok := a.tx.Snapshot().FindCase(gap.CaseID); !ok {
			return a.missing(domain.EntityCase, gap.CaseID)
		}
		if len(gap.Timeline) == 0 {
			gap.Timeline = []domain.GapTimelineEntry{{Status: gap.Status, Timestamp: a.now, Actor: a.actor}}
		}
		if gap.Status == domain.GapClosed && gap.ClosedDate == nil {
			closed := a.now
			gap.ClosedDate = &closed
		}
		if gap.Status != domain.GapClosed {
			gap.ClosedDate = nil
		}
		var err error
		created, err = a.tx.CreateGap(gap)
		if err != nil {
			return err
		}
		return a.auditAs(created.CaseID, domain.AuditGapCreated, "Gap opened: "+created.Description, ref(domain.EntityGap, created.ID))
	})
	return created, res, err
}

// UpdateGapStatus moves a gap to status and appends one timeline entry.
// Closed gaps are terminal.
func (s *Service) UpdateGapStatus(ctx context.Context, gapID string, status domain.GapStatus) (Gap, Result, error) {
	if !status.Valid() {
		return Gap{}, Result{}, invalidf("gap status %q", status)
	}
	var updated Gap
	res, err := s.run(ctx, "update_gap_status", func(a *action) error {
		g, ok := a.tx.Snapshot().FindGap(gapID)
		if !ok {
			return a.missing(domain.EntityGap, gapID)
		}
		if g.Status == domain.GapClosed {
			return invalidf("gap %s is closed", gapID)
		}
		from := g.Status
		var err error
		updated, err = a.tx.UpdateGap(gapID, func(g *domain.Gap) error {
			if status == domain.GapClosed {
				closeGapAt(g, a.now, a.actor)
				return nil
			}
			g.Status = status
			g.Timeline = append(g.Timeline, domain.GapTimelineEntry{Status: status, Timestamp: a.now, Actor: a.actor})
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditAs(updated.CaseID, domain.AuditGapUpdated,
			fmt.Sprintf("Gap status changed from %s to %s", from, status), ref(domain.EntityGap, gapID))
	})
	return updated, res, err
}

// CloseGap closes a gap. The owning case is left untouched. Closing an
// already closed gap changes nothing and records no event.
func (s *Service) CloseGap(ctx context.Context, gapID string) (Gap, Result, error) {
	var updated Gap
	res, err := s.run(ctx, "close_gap", func(a *action) error {
		g, ok := a.tx.Snapshot().FindGap(gapID)
		if !ok {
			return a.missing(domain.EntityGap, gapID)
		}
		if g.Status == domain.GapClosed {
			updated = g
			return nil
		}
		var err error
		updated, err = a.tx.UpdateGap(gapID, func(g *domain.Gap) error {
			closeGapAt(g, a.now, a.actor)
			return nil
		})
		if err != nil {
			return err
		}
		return a.auditAs(updated.CaseID, domain.AuditGapClosed, "Gap closed: "+updated.Description, ref(domain.EntityGap, gapID))
	})
	return updated, res, err
}
