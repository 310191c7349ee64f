package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"whalewatcher/pkg/domain"
)

func seedSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Cases: map[string]domain.Case{
			"CASE-1": {Base: domain.Base{ID: "CASE-1"}, Stage: 3, StageStatus: domain.StageInProgress},
		},
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	empty, err := store.Empty(ctx)
	if err != nil || !empty {
		t.Fatalf("expected empty store, got %v %v", empty, err)
	}
	if err := store.ReplaceState(ctx, seedSnapshot()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.CreateGap(domain.Gap{Base: domain.Base{ID: "GAP-1"}, CaseID: "CASE-1", Status: domain.GapOpen})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
	empty, err = reloaded.Empty(ctx)
	if err != nil || empty {
		t.Fatalf("expected persisted rows, got %v %v", empty, err)
	}
	state := reloaded.ExportState()
	if len(state.Cases) != 1 || len(state.Gaps) != 1 {
		t.Fatalf("expected reloaded case and gap, got %d/%d", len(state.Cases), len(state.Gaps))
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.ReplaceState(ctx, seedSnapshot()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, e := tx.UpdateCase("missing", func(*domain.Case) error { return nil })
		return e
	}); err == nil {
		t.Fatalf("expected missing case error")
	}
	var payload []byte
	if err := store.DB().QueryRow(`SELECT payload FROM case_state WHERE bucket = ?`, "gaps").Scan(&payload); err != nil {
		t.Fatalf("select gaps: %v", err)
	}
	if string(payload) != "{}" {
		t.Fatalf("expected empty gaps bucket, got %s", payload)
	}
	_ = store.Close()
}
