package core

import (
	"context"

	"whalewatcher/pkg/domain"
)

// FieldChangeLogRule keeps application field change logs append-only.
func FieldChangeLogRule() domain.Rule {
	return fieldChangeLogRule{}
}

type fieldChangeLogRule struct{}

func (fieldChangeLogRule) Name() string { return "field_change_log" }

func (r fieldChangeLogRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityApplicationField || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := payloadAs[domain.ApplicationField](change.Before)
		if !ok {
			continue
		}
		after, ok := payloadAs[domain.ApplicationField](change.After)
		if !ok {
			continue
		}
		if !changeLogPrefix(before.ChangeLog, after.ChangeLog) {
			res.Violations = append(res.Violations, blockf(r.Name(), domain.EntityApplicationField, after.ID,
				"field %s change log was rewritten", after.ID))
		}
	}
	return res, nil
}

func changeLogPrefix(prefix, full []domain.FieldChange) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		a, b := prefix[i], full[i]
		if a.PreviousValue != b.PreviousValue || a.NewValue != b.NewValue || a.Source != b.Source ||
			a.Reason != b.Reason || !a.Timestamp.Equal(b.Timestamp) {
			return false
		}
	}
	return true
}
