package clinical

import (
	"testing"
	"time"
)

func countCurrent(records []ParameterRecord) int {
	n := 0
	for _, r := range records {
		if r.IsCurrent {
			n++
		}
	}
	return n
}

func TestReconcileAllSourcesEmpty(t *testing.T) {
	out := Reconcile(ReconcileInput{})
	if len(out) != 0 {
		t.Errorf("no sources must yield an empty collection, got %v", out)
	}
}

func TestReconcileDraftOnly(t *testing.T) {
	now := day(2025, time.April, 2, 12, 0)
	draft := &ParameterRecord{Weight: "72"}

	out := Reconcile(ReconcileInput{Draft: draft, Now: now})
	if len(out) != 1 {
		t.Fatalf("expected the seeded draft, got %d records", len(out))
	}
	if !out[0].Date.Equal(now) {
		t.Errorf("undated draft must default to now, got %v", out[0].Date)
	}
	if !out[0].IsCurrent {
		t.Error("the only record must be current")
	}
	if !draft.Date.IsZero() {
		t.Error("the caller's draft must not be mutated")
	}
}

func TestReconcileSameDayCollapseDraftWins(t *testing.T) {
	draft := &ParameterRecord{
		Weight: "73",
		Date:   day(2025, time.April, 2, 20, 0),
	}
	cached := []ParameterRecord{
		{Weight: "70", Date: day(2025, time.April, 2, 8, 0)},
		{Weight: "69", Date: day(2025, time.March, 1, 8, 0)},
	}

	out := Reconcile(ReconcileInput{Draft: draft, Cached: cached})
	if len(out) != 2 {
		t.Fatalf("expected one record per day, got %d: %v", len(out), out)
	}
	if out[0].Weight != "73" {
		t.Errorf("draft values must win the same-day collapse, got %+v", out[0])
	}
	if out[1].Weight != "69" {
		t.Errorf("older cached day must survive, got %+v", out[1])
	}
}

func TestReconcileRemoteCurrentOverwritesSameDayDraft(t *testing.T) {
	draft := &ParameterRecord{Weight: "73", Date: day(2025, time.April, 2, 9, 0)}
	remoteCurrent := ParameterRecord{Weight: "74", Pulse: "60", Date: day(2025, time.April, 2, 11, 0)}

	out := Reconcile(ReconcileInput{Draft: draft, RemoteCurrent: remoteCurrent})
	if len(out) != 1 {
		t.Fatalf("same-day draft and remote current must collapse, got %d", len(out))
	}
	if out[0].Weight != "74" || out[0].Pulse != "60" {
		t.Errorf("remote must win same-day conflicts with the draft, got %+v", out[0])
	}
}

func TestReconcileRemoteCurrentNewDayAppends(t *testing.T) {
	draft := &ParameterRecord{Weight: "73", Date: day(2025, time.April, 2, 9, 0)}
	remoteCurrent := ParameterRecord{Weight: "74", Date: day(2025, time.April, 5, 11, 0)}

	out := Reconcile(ReconcileInput{Draft: draft, RemoteCurrent: remoteCurrent})
	if len(out) != 2 {
		t.Fatalf("different days must both survive, got %d", len(out))
	}
	if !out[0].IsCurrent || out[0].Weight != "74" {
		t.Errorf("newer remote record must be current, got %+v", out[0])
	}
}

func TestReconcileRemoteHistoryBeatsCached(t *testing.T) {
	cached := []ParameterRecord{
		{Weight: "70", Date: day(2025, time.March, 1, 8, 0)},
	}
	remoteHistory := []any{
		ParameterRecord{Weight: "71", Date: day(2025, time.March, 1, 10, 0)},
	}

	out := Reconcile(ReconcileInput{Cached: cached, RemoteHistory: remoteHistory})
	if len(out) != 1 {
		t.Fatalf("same-day cached and remote history must collapse, got %d", len(out))
	}
	if out[0].Weight != "71" {
		t.Errorf("remote history must take precedence over cached, got %+v", out[0])
	}
}

func TestReconcileRemoteHistoryDoesNotBeatDraft(t *testing.T) {
	draft := &ParameterRecord{Weight: "73", Date: day(2025, time.April, 2, 20, 0)}
	remoteHistory := []any{
		ParameterRecord{Weight: "71", Date: day(2025, time.April, 2, 10, 0)},
	}

	out := Reconcile(ReconcileInput{Draft: draft, RemoteHistory: remoteHistory})
	if len(out) != 1 {
		t.Fatalf("expected one record, got %d", len(out))
	}
	if out[0].Weight != "73" {
		t.Errorf("history must not displace the draft's day, got %+v", out[0])
	}
}

func TestReconcileWireFormatInputs(t *testing.T) {
	remoteCurrent := map[string]any{
		"M": map[string]any{
			"weight": map[string]any{"N": "74"},
			"date":   map[string]any{"S": "2025-04-05T11:00:00Z"},
		},
	}
	remoteHistory := []any{
		map[string]any{
			"M": map[string]any{
				"weight": map[string]any{"N": "70"},
				"date":   map[string]any{"S": "2025-03-01T08:00:00Z"},
			},
		},
	}

	out := Reconcile(ReconcileInput{RemoteCurrent: remoteCurrent, RemoteHistory: remoteHistory})
	if len(out) != 2 {
		t.Fatalf("expected two decoded records, got %d: %v", len(out), out)
	}
	if out[0].Weight != "74" || out[1].Weight != "70" {
		t.Errorf("wire decode through the pipeline failed: %v", out)
	}
}

func TestReconcileDropsPlaceholderRecords(t *testing.T) {
	placeholder := DefaultPlaceholderDate
	cached := []ParameterRecord{
		{Weight: "1", Date: placeholder},
		{Weight: "70", Date: day(2025, time.March, 1, 8, 0)},
	}

	out := Reconcile(ReconcileInput{
		Cached:     cached,
		DropRecord: PlaceholderDateFilter(placeholder),
	})
	for _, r := range out {
		if r.Date.Equal(placeholder) {
			t.Fatalf("placeholder record surfaced: %+v", r)
		}
	}
	if len(out) != 1 {
		t.Errorf("expected only the real record, got %d", len(out))
	}
}

func TestReconcileInvalidDatesNeverCollapse(t *testing.T) {
	cached := []ParameterRecord{
		{Weight: "a", Date: Epoch},
		{Weight: "b", Date: Epoch},
	}

	out := Reconcile(ReconcileInput{Cached: cached})
	if len(out) != 2 {
		t.Fatalf("unparseable dates are no basis for a collapse, got %d records", len(out))
	}
}

func TestReconcileInvariantHolds(t *testing.T) {
	draft := &ParameterRecord{Weight: "73", Date: day(2025, time.April, 2, 20, 0), IsCurrent: false}
	cached := []ParameterRecord{
		{Weight: "70", Date: day(2025, time.March, 1, 8, 0), IsCurrent: true},
		{Weight: "69", Date: day(2025, time.February, 1, 8, 0), IsCurrent: true},
	}
	remoteHistory := []any{
		ParameterRecord{Weight: "68", Date: day(2025, time.January, 1, 8, 0), IsCurrent: true},
	}

	out := Reconcile(ReconcileInput{Draft: draft, Cached: cached, RemoteHistory: remoteHistory})
	if got := countCurrent(out); got != 1 {
		t.Fatalf("exactly one record may be current, got %d", got)
	}
	if !out[0].IsCurrent {
		t.Error("the newest record must hold the current flag")
	}
	for i := 1; i < len(out); i++ {
		if out[i].Date.After(out[i-1].Date) {
			t.Errorf("records out of order at %d", i)
		}
	}
}
