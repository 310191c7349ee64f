package core

import (
	"context"
	"strings"

	"whalewatcher/pkg/domain"
)

// EvidenceIntegrityRule requires a failure reason exactly when an order has
// failed and rejects received orders that still have unmet prerequisites.
func EvidenceIntegrityRule() domain.Rule {
	return evidenceIntegrityRule{}
}

type evidenceIntegrityRule struct{}

func (evidenceIntegrityRule) Name() string { return "evidence_integrity" }

func (r evidenceIntegrityRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityEvidenceOrder {
			continue
		}
		o, ok := payloadAs[domain.EvidenceOrder](change.After)
		if !ok {
			continue
		}
		block := func(format string, args ...any) {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityEvidenceOrder, o.ID, format, args...))
		}
		if !o.Type.Valid() {
			block("evidence order %s has unsupported type %q", o.ID, o.Type)
		}
		failed := o.Status == domain.EvidenceFailed
		hasReason := strings.TrimSpace(o.FailureReason) != ""
		switch {
		case failed && !hasReason:
			block("evidence order %s failed without a reason", o.ID)
		case !failed && hasReason:
			block("evidence order %s has a failure reason but status %s", o.ID, o.Status)
		}
		if o.Status == domain.EvidenceReceived && o.HasUnmetPrerequisites() {
			var unmet []string
			for _, p := range o.Prerequisites {
				if p.Status == domain.PrerequisiteUnmet {
					unmet = append(unmet, p.Field)
				}
			}
			block("evidence order %s cannot be received with unmet prerequisites: %s", o.ID, strings.Join(unmet, ", "))
		}
	}
	return res, nil
}
