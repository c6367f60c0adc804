package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// CacheStore is the local persistent key-value store the engine writes
// through to. Values are serialized record arrays or raw history blobs.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RemotePayload is the remote store's view of one patient: the current
// record and the historical records, still in wire format.
type RemotePayload struct {
	Current any   `json:"current"`
	History []any `json:"history"`
}

// RemoteFetcher retrieves a patient's clinical data from the remote store.
// A failed fetch degrades the sync to cache-only; it never fails it.
type RemoteFetcher interface {
	FetchPatientClinicalData(ctx context.Context, patientID string) (RemotePayload, error)
}

// Observer receives callbacks at the pipeline's checkpoints. Implementations
// must be side-effect-free with respect to the merge itself (telemetry,
// logging).
type Observer interface {
	// RemoteDegraded fires when the remote fetch fails and the sync falls
	// back to cache-only reconciliation.
	RemoteDegraded(patientID string, err error)
	// Reconciled fires after every completed merge pass.
	Reconciled(patientID string, records int, stale bool)
	// CacheWriteFailed fires when the write-through persistence step fails.
	CacheWriteFailed(patientID string, err error)
}

// NopObserver ignores every checkpoint.
type NopObserver struct{}

func (NopObserver) RemoteDegraded(string, error)   {}
func (NopObserver) Reconciled(string, int, bool)   {}
func (NopObserver) CacheWriteFailed(string, error) {}

// Cache key namespaces. Clinical parameters and the free-text history blob
// are stored under distinct keys per patient.
func ClinicalKey(patientID string) string { return "clinical_" + patientID }
func HistoryKey(patientID string) string { return "history_" + patientID }

// DefaultPlaceholderDate is the legacy migration timestamp whose records
// the engine filters out. Kept as configuration (see WithPlaceholderDate /
// WithoutPlaceholderFilter) rather than a hard rule.
var DefaultPlaceholderDate = time.Date(2023, time.November, 14, 9, 43, 0, 0, time.UTC)

// Snapshot is the immutable merged view handed to callers. Stale marks a
// sync that ran cache-only because the remote fetch failed.
type Snapshot struct {
	Records []ParameterRecord `json:"records"`
	Stale   bool              `json:"stale"`
}

// Reconciler is the stateful orchestration shell around the pure merge. It
// owns the collaborators and serializes syncs per patient, because the
// write-through in step 8 is a non-atomic read-modify-write against shared
// persistent state.
type Reconciler struct {
	cache  CacheStore
	remote RemoteFetcher
	obs    Observer
	drop   func(ParameterRecord) bool
	now    func() time.Time

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithObserver installs a checkpoint observer.
func WithObserver(obs Observer) Option {
	return func(r *Reconciler) {
		if obs != nil {
			r.obs = obs
		}
	}
}

// WithPlaceholderDate changes the legacy placeholder timestamp to filter.
func WithPlaceholderDate(t time.Time) Option {
	return func(r *Reconciler) { r.drop = PlaceholderDateFilter(t) }
}

// WithoutPlaceholderFilter disables the placeholder filter entirely.
func WithoutPlaceholderFilter() Option {
	return func(r *Reconciler) { r.drop = nil }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler wires the engine shell. remote may be nil for a
// cache-only deployment.
func NewReconciler(cache CacheStore, remote RemoteFetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		cache:  cache,
		remote: remote,
		obs:    NopObserver{},
		drop:   PlaceholderDateFilter(DefaultPlaceholderDate),
		now:    time.Now,
		gates:  make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// gate returns the per-patient semaphore that serializes overlapping syncs
// for the same cache key.
func (r *Reconciler) gate(patientID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[patientID]
	if !ok {
		g = semaphore.NewWeighted(1)
		r.gates[patientID] = g
	}
	return g
}

// Sync runs one full reconciliation pass for a patient: fetch remote
// (degrading to cache-only on failure), load the cached records, merge,
// and persist the result write-through. A persistence failure is reported
// through the observer but never fails the call.
func (r *Reconciler) Sync(ctx context.Context, patientID string, draft *ParameterRecord) (Snapshot, error) {
	if patientID == "" {
		return Snapshot{}, fmt.Errorf("patient id is required")
	}

	g := r.gate(patientID)
	if err := g.Acquire(ctx, 1); err != nil {
		return Snapshot{}, fmt.Errorf("sync canceled for patient %s: %w", patientID, err)
	}
	defer g.Release(1)

	var (
		payload RemotePayload
		stale   bool
	)
	if r.remote != nil {
		var err error
		payload, err = r.remote.FetchPatientClinicalData(ctx, patientID)
		if err != nil {
			stale = true
			payload = RemotePayload{}
			r.obs.RemoteDegraded(patientID, err)
			log.Warn().Err(err).Str("patient_id", patientID).Msg("Remote fetch failed, reconciling from cache only")
		}
	}

	cached := r.loadCached(ctx, patientID)

	records := Reconcile(ReconcileInput{
		Draft:         draft,
		Cached:        cached,
		RemoteCurrent: payload.Current,
		RemoteHistory: payload.History,
		Now:           r.now(),
		DropRecord:    r.drop,
	})

	r.persist(ctx, patientID, records)
	r.obs.Reconciled(patientID, len(records), stale)

	return Snapshot{Records: records, Stale: stale}, nil
}

// loadCached reads and deserializes the patient's cached record array.
// A missing key or a corrupt value both mean "no cached records".
func (r *Reconciler) loadCached(ctx context.Context, patientID string) []ParameterRecord {
	raw, ok, err := r.cache.Get(ctx, ClinicalKey(patientID))
	if err != nil {
		log.Warn().Err(err).Str("patient_id", patientID).Msg("Cache read failed")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var cached []ParameterRecord
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		log.Warn().Err(err).Str("patient_id", patientID).Msg("Discarding corrupt cached clinical data")
		return nil
	}
	return cached
}

// persist writes the merged result back to the cache, best-effort.
func (r *Reconciler) persist(ctx context.Context, patientID string, records []ParameterRecord) {
	b, err := json.Marshal(records)
	if err != nil {
		r.obs.CacheWriteFailed(patientID, err)
		log.Error().Err(err).Str("patient_id", patientID).Msg("Failed to serialize reconciled records")
		return
	}
	if err := r.cache.Set(ctx, ClinicalKey(patientID), string(b)); err != nil {
		r.obs.CacheWriteFailed(patientID, err)
		log.Error().Err(err).Str("patient_id", patientID).Msg("Failed to persist reconciled records")
	}
}

// History segments the patient's free-text history blob into ordered
// entries. The blob itself is the persisted representation; segmentation is
// recomputed on every read.
func (r *Reconciler) History(ctx context.Context, patientID string) ([]HistoryEntry, error) {
	blob, _, err := r.cache.Get(ctx, HistoryKey(patientID))
	if err != nil {
		return nil, fmt.Errorf("load history for patient %s: %w", patientID, err)
	}
	return SegmentHistory(blob), nil
}

// AppendHistory adds a note to the patient's history blob through the
// single appender and persists the new blob. Unlike the parameter sync,
// the write here is the operation, so its failure is returned.
func (r *Reconciler) AppendHistory(ctx context.Context, patientID, text string) ([]HistoryEntry, error) {
	key := HistoryKey(patientID)
	blob, _, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load history for patient %s: %w", patientID, err)
	}

	updated := AppendHistoryEntry(blob, text, r.now())
	if updated != blob {
		if err := r.cache.Set(ctx, key, updated); err != nil {
			return nil, fmt.Errorf("persist history for patient %s: %w", patientID, err)
		}
	}
	return SegmentHistory(updated), nil
}
