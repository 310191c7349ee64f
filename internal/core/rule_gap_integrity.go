package core

import (
	"context"

	"whalewatcher/pkg/domain"
)

// GapIntegrityRule enforces the gap lifecycle. The closed date is present only
// on closed gaps and closing is terminal. The timeline is append-only, ends
// with the current status and grows by at most one entry per update (exactly
// one when the status changes).
func GapIntegrityRule() domain.Rule {
	return gapIntegrityRule{}
}

type gapIntegrityRule struct{}

func (gapIntegrityRule) Name() string { return "gap_integrity" }

func (r gapIntegrityRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityGap || change.Action == domain.ActionDelete {
			continue
		}
		g, ok := payloadAs[domain.Gap](change.After)
		if !ok {
			continue
		}
		block := func(format string, args ...any) {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityGap, g.ID, format, args...))
		}
		if !g.Status.Valid() {
			block("gap %s has invalid status %q", g.ID, g.Status)
			continue
		}
		if (g.Status == domain.GapClosed) != (g.ClosedDate != nil) {
			block("gap %s closed date must be set only when closed (status %s)", g.ID, g.Status)
		}
		if n := len(g.Timeline); n == 0 || g.Timeline[n-1].Status != g.Status {
			block("gap %s timeline does not end with status %s", g.ID, g.Status)
		}
		before, ok := payloadAs[domain.Gap](change.Before)
		if !ok {
			continue
		}
		if before.Status == domain.GapClosed && g.Status != domain.GapClosed {
			block("gap %s cannot be reopened", g.ID)
		}
		if !timelinePrefix(before.Timeline, g.Timeline) {
			block("gap %s timeline entries were rewritten", g.ID)
			continue
		}
		added := len(g.Timeline) - len(before.Timeline)
		if before.Status != g.Status && added != 1 {
			block("gap %s status change from %s to %s added %d timeline entries", g.ID, before.Status, g.Status, added)
		}
		if before.Status == g.Status && added > 1 {
			block("gap %s re-recorded status %s with %d timeline entries", g.ID, g.Status, added)
		}
	}
	return res, nil
}

func timelinePrefix(prefix, full []domain.GapTimelineEntry) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i].Status != full[i].Status || prefix[i].Actor != full[i].Actor || !prefix[i].Timestamp.Equal(full[i].Timestamp) {
			return false
		}
	}
	return true
}
