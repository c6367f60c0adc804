package clinical

import "time"

// Source precedence for the same-day collapse. When two records land on the
// same calendar day, the higher-ranked source keeps the day; the remote
// store's current record even overrides a same-day draft.
const (
	rankCached = iota
	rankRemoteHistory
	rankDraft
	rankRemoteCurrent
)

type slot struct {
	rec  ParameterRecord
	rank int
}

// ReconcileInput carries the three unsynchronized sources into one merge
// pass. RemoteCurrent and RemoteHistory may be wire-tagged values, plain
// decoded maps, or ParameterRecords; anything that does not resolve to a
// record is skipped.
type ReconcileInput struct {
	// Draft is the in-memory "current" record being edited, or nil.
	Draft *ParameterRecord

	// Cached is the record array previously persisted to the local cache.
	Cached []ParameterRecord

	// RemoteCurrent and RemoteHistory are the remote store's view, still in
	// (or already decoded from) wire format.
	RemoteCurrent any
	RemoteHistory []any

	// Now stamps an undated draft. Zero means time.Now().
	Now time.Time

	// DropRecord removes known placeholder records before the invariant is
	// enforced (a data-migration artifact in the remote store; see
	// PlaceholderDateFilter). Nil keeps everything.
	DropRecord func(ParameterRecord) bool
}

// Reconcile merges the draft, the cached records and the remote payload
// into one deduplicated, descending-date-ordered collection with exactly
// one record flagged current. It is a pure function: inputs are not
// mutated, and persistence is the caller's concern.
//
// A total absence of sources yields an empty collection -- unless a draft
// exists, in which case the result is at least the seeded draft.
func Reconcile(in ReconcileInput) []ParameterRecord {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var slots []slot

	// Seed with the draft; an undated draft means "being edited right now".
	if in.Draft != nil {
		seed := *in.Draft
		if seed.Date.IsZero() {
			seed.Date = now
		}
		slots = append(slots, slot{rec: seed, rank: rankDraft})
	}

	for _, rec := range in.Cached {
		if rec.Date.IsZero() {
			rec.Date = Epoch
		}
		slots = fold(slots, slot{rec: rec, rank: rankCached})
	}

	if rc := RecordFromValue(in.RemoteCurrent); rc != nil {
		slots = fold(slots, slot{rec: *rc, rank: rankRemoteCurrent})
	}

	for _, h := range in.RemoteHistory {
		rec := RecordFromValue(h)
		if rec == nil {
			continue
		}
		slots = fold(slots, slot{rec: *rec, rank: rankRemoteHistory})
	}

	merged := make([]ParameterRecord, 0, len(slots))
	for _, s := range slots {
		if in.DropRecord != nil && in.DropRecord(s.rec) {
			continue
		}
		merged = append(merged, s.rec)
	}

	return EnsureSingleCurrent(merged)
}

// fold inserts one record into the working set, collapsing same-day
// collisions by source precedence: the incoming record replaces an
// existing same-day record only when it outranks it. First occurrence wins
// among equals, so a source cannot duplicate a day against itself.
// Records with the epoch-fallback date never collapse: an unparseable date
// is not evidence that two records describe the same day.
func fold(slots []slot, incoming slot) []slot {
	for i, existing := range slots {
		if IsEpochFallback(existing.rec.Date) || IsEpochFallback(incoming.rec.Date) {
			continue
		}
		if !SameDay(existing.rec.Date, incoming.rec.Date) {
			continue
		}
		if incoming.rank > existing.rank {
			slots[i] = incoming
		}
		return slots
	}
	return append(slots, incoming)
}

// PlaceholderDateFilter returns a DropRecord predicate matching records
// stamped with a specific legacy timestamp. The remote store still contains
// placeholder rows from an old data migration; they carry this one fixed
// instant and must never surface to the app.
func PlaceholderDateFilter(placeholder time.Time) func(ParameterRecord) bool {
	return func(rec ParameterRecord) bool {
		return rec.Date.Equal(placeholder)
	}
}
