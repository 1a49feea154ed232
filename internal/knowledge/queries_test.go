package knowledge

import (
	"context"
	"testing"
)

func seedStandardizedFixture(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO raw_tickets (ticket_id, description) VALUES (?, ?)`, []interface{}{"T-0001", "dashboard slow"}},
		{`INSERT INTO raw_tickets (ticket_id, description) VALUES (?, ?)`, []interface{}{"T-0002", "report slow"}},
		{`INSERT INTO phenomena (id, description, observation_method, cluster_size) VALUES (?, ?, ?, ?)`,
			[]interface{}{"P-0001", "query latency high", "slow query log", 2}},
		{`INSERT INTO root_causes (id, description, solution, ticket_count) VALUES (?, ?, ?, ?)`,
			[]interface{}{"RC-0001", "missing index", "add index", 2}},
		{`INSERT INTO tickets (ticket_id, description, root_cause_id, solution) VALUES (?, ?, ?, ?)`,
			[]interface{}{"T-0001", "dashboard slow", "RC-0001", "add index"}},
		{`INSERT INTO tickets (ticket_id, description, root_cause_id, solution) VALUES (?, ?, ?, ?)`,
			[]interface{}{"T-0002", "report slow", "RC-0001", "add index"}},
		{`INSERT INTO ticket_phenomena (ticket_id, phenomenon_id, why_relevant, raw_anomaly_id) VALUES (?, ?, ?, ?)`,
			[]interface{}{"T-0001", "P-0001", "observed", "T-0001_anomaly_0"}},
		{`INSERT INTO ticket_phenomena (ticket_id, phenomenon_id, why_relevant, raw_anomaly_id) VALUES (?, ?, ?, ?)`,
			[]interface{}{"T-0002", "P-0001", "observed", "T-0002_anomaly_0"}},
		{`INSERT INTO phenomenon_root_cause (phenomenon_id, root_cause_id, ticket_count) VALUES (?, ?, ?)`,
			[]interface{}{"P-0001", "RC-0001", 2}},
	}
	for _, s := range stmts {
		if _, err := store.db.ExecContext(ctx, s.query, s.args...); err != nil {
			t.Fatalf("seeding fixture (%s): %v", s.query, err)
		}
	}
}

func TestGetPhenomenonByID(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	p, err := store.GetPhenomenonByID(ctx, "P-0001")
	if err != nil {
		t.Fatalf("GetPhenomenonByID: %v", err)
	}
	if p == nil {
		t.Fatal("expected a phenomenon, got nil")
	}
	if p.Description != "query latency high" {
		t.Errorf("Description = %q, want %q", p.Description, "query latency high")
	}

	missing, err := store.GetPhenomenonByID(ctx, "P-9999")
	if err != nil {
		t.Fatalf("GetPhenomenonByID for missing id: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing phenomenon, got %+v", missing)
	}
}

func TestGetPhenomenaByIDs(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	phenomena, err := store.GetPhenomenaByIDs(ctx, []string{"P-0001", "P-9999"})
	if err != nil {
		t.Fatalf("GetPhenomenaByIDs: %v", err)
	}
	if len(phenomena) != 1 {
		t.Fatalf("expected 1 phenomenon (unknown id silently omitted), got %d", len(phenomena))
	}

	if empty, err := store.GetPhenomenaByIDs(ctx, nil); err != nil || empty != nil {
		t.Errorf("GetPhenomenaByIDs(nil) = %v, %v; want nil, nil", empty, err)
	}
}

func TestGetRootCauseByID(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	rc, err := store.GetRootCauseByID(ctx, "RC-0001")
	if err != nil {
		t.Fatalf("GetRootCauseByID: %v", err)
	}
	if rc == nil || rc.TicketCount != 2 {
		t.Fatalf("GetRootCauseByID = %+v, want TicketCount 2", rc)
	}
}

func TestGetRootCausesByPhenomenonID(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	rows, err := store.GetRootCausesByPhenomenonID(ctx, "P-0001")
	if err != nil {
		t.Fatalf("GetRootCausesByPhenomenonID: %v", err)
	}
	if len(rows) != 1 || rows[0].RootCauseID != "RC-0001" || rows[0].TicketCount != 2 {
		t.Fatalf("GetRootCausesByPhenomenonID = %+v, want one row RC-0001/2", rows)
	}
}

func TestGetPhenomenaByRootCauseID(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	rows, err := store.GetPhenomenaByRootCauseID(ctx, "RC-0001")
	if err != nil {
		t.Fatalf("GetPhenomenaByRootCauseID: %v", err)
	}
	if len(rows) != 1 || rows[0].PhenomenonID != "P-0001" {
		t.Fatalf("GetPhenomenaByRootCauseID = %+v, want one row P-0001", rows)
	}
}

func TestGetMaxTicketCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if max, err := store.GetMaxTicketCount(ctx); err != nil || max != 0 {
		t.Fatalf("GetMaxTicketCount on empty store = %d, %v; want 0, nil", max, err)
	}

	seedStandardizedFixture(t, store)
	max, err := store.GetMaxTicketCount(ctx)
	if err != nil {
		t.Fatalf("GetMaxTicketCount: %v", err)
	}
	if max != 2 {
		t.Errorf("GetMaxTicketCount = %d, want 2", max)
	}
}

func TestGetTicketIDsForPhenomenonRootCause(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	ids, err := store.GetTicketIDsForPhenomenonRootCause(ctx, "P-0001", "RC-0001")
	if err != nil {
		t.Fatalf("GetTicketIDsForPhenomenonRootCause: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ticket ids, got %v", ids)
	}
}

func TestGetPhenomenaByTicketIDs(t *testing.T) {
	store := newTestStore(t)
	seedStandardizedFixture(t, store)
	ctx := context.Background()

	phenomena, err := store.GetPhenomenaByTicketIDs(ctx, []string{"T-0001", "T-0002"})
	if err != nil {
		t.Fatalf("GetPhenomenaByTicketIDs: %v", err)
	}
	if len(phenomena) != 1 {
		t.Fatalf("expected deduplicated single phenomenon, got %d", len(phenomena))
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if state, err := store.LoadSession(ctx, "sess-1"); err != nil || state != nil {
		t.Fatalf("LoadSession before save = %v, %v; want nil, nil", state, err)
	}

	if err := store.SaveSession(ctx, "sess-1", []byte(`{"confirmed":[]}`)); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	state, err := store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if string(state) != `{"confirmed":[]}` {
		t.Errorf("LoadSession = %q, want %q", state, `{"confirmed":[]}`)
	}

	if err := store.SaveSession(ctx, "sess-1", []byte(`{"confirmed":["P-0001"]}`)); err != nil {
		t.Fatalf("SaveSession (update): %v", err)
	}
	state, err = store.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSession after update: %v", err)
	}
	if string(state) != `{"confirmed":["P-0001"]}` {
		t.Errorf("LoadSession after update = %q, want updated state", state)
	}
}
