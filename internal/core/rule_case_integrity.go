package core

import (
	"context"

	"whalewatcher/pkg/domain"
)

// CaseIntegrityRule keeps the stage and completeness in range and requires a
// blocker whenever a case is blocked.
func CaseIntegrityRule() domain.Rule {
	return caseIntegrityRule{}
}

type caseIntegrityRule struct{}

func (caseIntegrityRule) Name() string { return "case_integrity" }

func (r caseIntegrityRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCase {
			continue
		}
		c, ok := payloadAs[domain.Case](change.After)
		if !ok {
			continue
		}
		if c.Stage < domain.MinStage || c.Stage > domain.MaxStage {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityCase, c.ID,
				"case %s stage %d outside [%d,%d]", c.ID, c.Stage, domain.MinStage, domain.MaxStage))
		}
		if c.CompletenessScore < 0 || c.CompletenessScore > 100 {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityCase, c.ID,
				"case %s completeness %d outside [0,100]", c.ID, c.CompletenessScore))
		}
		if c.StageStatus == domain.StageBlocked && len(c.Blockers) == 0 {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityCase, c.ID,
				"case %s is blocked without a blocker", c.ID))
		}
	}
	return res, nil
}

// StageMonotonicRule blocks any update that moves a case to an earlier stage.
func StageMonotonicRule() domain.Rule {
	return stageMonotonicRule{}
}

type stageMonotonicRule struct{}

func (stageMonotonicRule) Name() string { return "stage_monotonic" }

func (r stageMonotonicRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityCase || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := payloadAs[domain.Case](change.Before)
		if !ok {
			continue
		}
		after, ok := payloadAs[domain.Case](change.After)
		if !ok {
			continue
		}
		if after.Stage < before.Stage {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityCase, after.ID,
				"case %s cannot move back from stage %d to %d", after.ID, before.Stage, after.Stage))
		}
	}
	return res, nil
}
