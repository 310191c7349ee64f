package core

import (
	"context"
	"testing"
	"time"

	"whalewatcher/internal/infra/persistence/memory"
	"whalewatcher/pkg/domain"
)

func evaluateRule(t *testing.T, rule domain.Rule, changes ...domain.Change) domain.Result {
	t.Helper()
	ctx := context.Background()
	var res domain.Result
	err := memory.NewStore(nil).View(ctx, func(v domain.TransactionView) error {
		var err error
		res, err = rule.Evaluate(ctx, v, changes)
		return err
	})
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func TestCaseIntegrityRule(t *testing.T) {
	valid := domain.Case{Base: domain.Base{ID: "c1"}, Stage: 3, StageStatus: domain.StageBlocked, CompletenessScore: 40, Blockers: []string{"x"}}
	cases := []struct {
		name   string
		mutate func(*domain.Case)
		want   int
	}{
		{name: "valid", mutate: func(*domain.Case) {}, want: 0},
		{name: "stage too low", mutate: func(c *domain.Case) { c.Stage = 0 }, want: 1},
		{name: "stage too high", mutate: func(c *domain.Case) { c.Stage = 9 }, want: 1},
		{name: "completeness over", mutate: func(c *domain.Case) { c.CompletenessScore = 101 }, want: 1},
		{name: "blocked without blocker", mutate: func(c *domain.Case) { c.Blockers = nil }, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			c.Blockers = append([]string(nil), valid.Blockers...)
			tc.mutate(&c)
			res := evaluateRule(t, CaseIntegrityRule(), domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, After: c})
			if len(res.Violations) != tc.want {
				t.Fatalf("expected %d violations, got %+v", tc.want, res.Violations)
			}
		})
	}
}

func TestStageMonotonicRule(t *testing.T) {
	before := domain.Case{Base: domain.Base{ID: "c1"}, Stage: 5}
	after := before
	after.Stage = 4
	res := evaluateRule(t, StageMonotonicRule(), domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: after})
	if !res.HasBlocking() {
		t.Fatalf("expected stage regression to block")
	}
	after.Stage = 6
	res = evaluateRule(t, StageMonotonicRule(), domain.Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: &before, After: &after})
	if len(res.Violations) != 0 {
		t.Fatalf("expected advance to pass, got %+v", res.Violations)
	}
}

func TestGapIntegrityRule(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	open := domain.Gap{
		Base:     domain.Base{ID: "g1"},
		Status:   domain.GapOpen,
		Timeline: []domain.GapTimelineEntry{{Status: domain.GapOpen, Timestamp: t0, Actor: "system"}},
	}
	closedAt := t0.Add(time.Hour)
	closed := open
	closed.Status = domain.GapClosed
	closed.ClosedDate = &closedAt
	closed.Timeline = append(append([]domain.GapTimelineEntry(nil), open.Timeline...), domain.GapTimelineEntry{Status: domain.GapClosed, Timestamp: closedAt, Actor: "u"})

	update := func(before, after domain.Gap) domain.Change {
		return domain.Change{Entity: domain.EntityGap, Action: domain.ActionUpdate, Before: before, After: after}
	}

	if res := evaluateRule(t, GapIntegrityRule(), update(open, closed)); len(res.Violations) != 0 {
		t.Fatalf("expected clean close, got %+v", res.Violations)
	}

	noDate := closed
	noDate.ClosedDate = nil
	if res := evaluateRule(t, GapIntegrityRule(), update(open, noDate)); !res.HasBlocking() {
		t.Fatalf("expected closed gap without date to block")
	}

	skipped := open
	skipped.Status = domain.GapRequested
	if res := evaluateRule(t, GapIntegrityRule(), update(open, skipped)); !res.HasBlocking() {
		t.Fatalf("expected status change without timeline entry to block")
	}

	remindedAt := t0.Add(30 * time.Minute)
	reminded := open
	reminded.Status = domain.GapReminderSent
	reminded.Timeline = append(append([]domain.GapTimelineEntry(nil), open.Timeline...), domain.GapTimelineEntry{Status: domain.GapReminderSent, Timestamp: remindedAt, Actor: "u"})
	remindedAgain := reminded
	remindedAgain.Timeline = append(append([]domain.GapTimelineEntry(nil), reminded.Timeline...), domain.GapTimelineEntry{Status: domain.GapReminderSent, Timestamp: remindedAt.Add(time.Hour), Actor: "u"})
	if res := evaluateRule(t, GapIntegrityRule(), update(reminded, remindedAgain)); len(res.Violations) != 0 {
		t.Fatalf("expected repeated status with one entry to pass, got %+v", res.Violations)
	}
	doubled := remindedAgain
	doubled.Timeline = append(append([]domain.GapTimelineEntry(nil), remindedAgain.Timeline...), domain.GapTimelineEntry{Status: domain.GapReminderSent, Timestamp: remindedAt.Add(2 * time.Hour), Actor: "u"})
	if res := evaluateRule(t, GapIntegrityRule(), update(reminded, doubled)); !res.HasBlocking() {
		t.Fatalf("expected two entries for one update to block")
	}
	if res := evaluateRule(t, GapIntegrityRule(), update(reminded, reminded)); len(res.Violations) != 0 {
		t.Fatalf("expected non-status update to pass, got %+v", res.Violations)
	}

	rewritten := closed
	rewritten.Timeline = []domain.GapTimelineEntry{{Status: domain.GapClosed, Timestamp: closedAt, Actor: "u"}}
	if res := evaluateRule(t, GapIntegrityRule(), update(open, rewritten)); !res.HasBlocking() {
		t.Fatalf("expected rewritten timeline to block")
	}

	reopened := open
	reopened.Timeline = append(append([]domain.GapTimelineEntry(nil), closed.Timeline...), domain.GapTimelineEntry{Status: domain.GapOpen, Timestamp: closedAt, Actor: "u"})
	if res := evaluateRule(t, GapIntegrityRule(), update(closed, reopened)); !res.HasBlocking() {
		t.Fatalf("expected reopening to block")
	}

	deleted := domain.Change{Entity: domain.EntityGap, Action: domain.ActionDelete, Before: open}
	if res := evaluateRule(t, GapIntegrityRule(), deleted); len(res.Violations) != 0 {
		t.Fatalf("deletes are not checked, got %+v", res.Violations)
	}
}

func TestEvidenceIntegrityRule(t *testing.T) {
	create := func(o domain.EvidenceOrder) domain.Change {
		return domain.Change{Entity: domain.EntityEvidenceOrder, Action: domain.ActionCreate, After: o}
	}
	base := domain.EvidenceOrder{Base: domain.Base{ID: "o1"}, Type: domain.EvidenceMVR}
	cases := []struct {
		name  string
		order func() domain.EvidenceOrder
		block bool
	}{
		{name: "ordered", order: func() domain.EvidenceOrder { o := base; o.Status = domain.EvidenceOrdered; return o }},
		{name: "failed without reason", block: true, order: func() domain.EvidenceOrder { o := base; o.Status = domain.EvidenceFailed; return o }},
		{name: "reason without failure", block: true, order: func() domain.EvidenceOrder {
			o := base
			o.Status = domain.EvidenceOrdered
			o.FailureReason = "timeout"
			return o
		}},
		{name: "received with unmet", block: true, order: func() domain.EvidenceOrder {
			o := base
			o.Status = domain.EvidenceReceived
			o.Prerequisites = []domain.PrerequisiteCheck{{Field: "date_of_birth", Required: true, Status: domain.PrerequisiteUnmet}}
			return o
		}},
		{name: "received with override", order: func() domain.EvidenceOrder {
			o := base
			o.Status = domain.EvidenceReceived
			o.Prerequisites = []domain.PrerequisiteCheck{{Field: "date_of_birth", Required: true, Status: domain.PrerequisiteOverridden}}
			return o
		}},
		{name: "unknown type", block: true, order: func() domain.EvidenceOrder { o := base; o.Type = "Tarot"; o.Status = domain.EvidencePlanned; return o }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evaluateRule(t, EvidenceIntegrityRule(), create(tc.order()))
			if res.HasBlocking() != tc.block {
				t.Fatalf("block=%v, got %+v", tc.block, res.Violations)
			}
		})
	}
}

func TestFieldChangeLogRule(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	entry := domain.FieldChange{PreviousValue: "a", NewValue: "b", Source: "manual-override", Reason: "r", Timestamp: t0}
	before := domain.ApplicationField{Base: domain.Base{ID: "f1"}, ChangeLog: []domain.FieldChange{entry}}

	grown := before
	grown.ChangeLog = []domain.FieldChange{entry, {PreviousValue: "b", NewValue: "c", Timestamp: t0.Add(time.Minute)}}
	change := domain.Change{Entity: domain.EntityApplicationField, Action: domain.ActionUpdate, Before: before, After: grown}
	if res := evaluateRule(t, FieldChangeLogRule(), change); len(res.Violations) != 0 {
		t.Fatalf("expected append to pass, got %+v", res.Violations)
	}

	edited := before
	edited.ChangeLog = []domain.FieldChange{{PreviousValue: "a", NewValue: "z", Source: "manual-override", Reason: "r", Timestamp: t0}}
	change.After = edited
	if res := evaluateRule(t, FieldChangeLogRule(), change); !res.HasBlocking() {
		t.Fatalf("expected rewrite to block")
	}

	empty := domain.ApplicationField{Base: domain.Base{ID: "f2"}}
	first := empty
	first.ChangeLog = []domain.FieldChange{entry}
	change = domain.Change{Entity: domain.EntityApplicationField, Action: domain.ActionUpdate, Before: empty, After: first}
	if res := evaluateRule(t, FieldChangeLogRule(), change); len(res.Violations) != 0 {
		t.Fatalf("expected first entry to pass, got %+v", res.Violations)
	}
}

func TestDefaultRulesEngineRegistersIntegrityRules(t *testing.T) {
	var names []string
	for _, r := range NewDefaultRulesEngine().Rules() {
		names = append(names, r.Name())
	}
	want := []string{"case_integrity", "stage_monotonic", "gap_integrity", "evidence_integrity", "field_change_log"}
	if len(names) != len(want) {
		t.Fatalf("rules %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("rules %v, want %v", names, want)
		}
	}
}
