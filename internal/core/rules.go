package core

import (
	"fmt"

	"whalewatcher/pkg/domain"
)

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in integrity checks.
func NewDefaultRulesEngine() *RulesEngine {
	return domain.NewRulesEngine(
		CaseIntegrityRule(),
		StageMonotonicRule(),
		GapIntegrityRule(),
		EvidenceIntegrityRule(),
		FieldChangeLogRule(),
	)
}

// payloadAs extracts a typed record from a change payload. Stores record
// values, but pointers are accepted too.
func payloadAs[T any](v any) (T, bool) {
	switch p := v.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

func blockf(rule string, entity domain.EntityType, id, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.RuleBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   entity,
		EntityID: id,
	}
}
