/*
Package clinical implements the clinical-data reconciliation engine: it
takes parameter records and free-text history notes arriving from the
in-memory draft, the local cache and the remote store, and produces a
single deduplicated, chronologically ordered view in which exactly one
record is flagged current.

The package splits into pure transformations (Decode mapping, date
normalization, ordering, Reconcile, SegmentHistory) and a thin stateful
shell (Reconciler) that owns the collaborators and the merged snapshot.
*/
package clinical

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"MediSync_V1.0/internal/wire"
)

// ParameterRecord is one set of clinical measurements for a patient.
// Every measurement is an optional string-encoded value, exactly as the
// mobile clients submit them; empty string means "not recorded".
type ParameterRecord struct {
	Systolic         string `json:"systolic,omitempty"`
	Diastolic        string `json:"diastolic,omitempty"`
	Pulse            string `json:"pulse,omitempty"`
	Temperature      string `json:"temperature,omitempty"`
	RespiratoryRate  string `json:"respiratoryRate,omitempty"`
	OxygenSaturation string `json:"oxygenSaturation,omitempty"`
	Weight           string `json:"weight,omitempty"`
	Height           string `json:"height,omitempty"`
	BMI              string `json:"bmi,omitempty"`
	BloodGlucose     string `json:"bloodGlucose,omitempty"`
	HbA1c            string `json:"hba1c,omitempty"`
	Cholesterol      string `json:"cholesterol,omitempty"`
	Hemoglobin       string `json:"hemoglobin,omitempty"`
	Creatinine       string `json:"creatinine,omitempty"`

	// HistoryNotes is the free-text history blob. It rides along with the
	// record but is not a measurement: it never participates in value
	// identity, and the History Segmenter is its only consumer.
	HistoryNotes string `json:"historyNotes,omitempty"`

	Date      time.Time `json:"date"`
	IsCurrent bool      `json:"isCurrent"`
}

// measurementValues returns the fixed measurement fields in a stable order.
// Both the identity hash and the value-identity test are defined over this
// exact sequence.
func (r ParameterRecord) measurementValues() []string {
	return []string{
		r.Systolic, r.Diastolic, r.Pulse, r.Temperature, r.RespiratoryRate,
		r.OxygenSaturation, r.Weight, r.Height, r.BMI, r.BloodGlucose,
		r.HbA1c, r.Cholesterol, r.Hemoglobin, r.Creatinine,
	}
}

// IdentityHash builds a stable comparison key by concatenating every
// measurement field (empty string for missing values). It is a cheap
// pre-check: equal hashes imply value-identical records.
func (r ParameterRecord) IdentityHash() string {
	return strings.Join(r.measurementValues(), "|")
}

// ValueIdentical reports whether two records carry the same measurements.
// Missing fields compare equal to each other; date and current flag are
// ignored.
func ValueIdentical(a, b ParameterRecord) bool {
	av, bv := a.measurementValues(), b.measurementValues()
	for i := range av {
		if av[i] != bv[i] {
			return false
		}
	}
	return true
}

// SameDay reports whether two instants fall on the same calendar day in
// local time. Time-of-day is ignored; this is the unit of the merge
// pipeline's same-day collapse.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// SortRecords orders records in place, newest first. A record with a valid
// date always sorts before one whose date is the epoch fallback; records
// with equally invalid dates keep their relative input order (the sort is
// stable).
func SortRecords(records []ParameterRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		aValid := !IsEpochFallback(records[i].Date)
		bValid := !IsEpochFallback(records[j].Date)
		switch {
		case aValid && !bValid:
			return true
		case !aValid:
			return false
		default:
			return records[i].Date.After(records[j].Date)
		}
	})
}

// EnsureSingleCurrent returns a sorted copy of records in which exactly the
// newest record is flagged current, overwriting whatever flags the input
// carried. The input slice and its elements are left untouched. Empty input
// yields empty output.
func EnsureSingleCurrent(records []ParameterRecord) []ParameterRecord {
	out := make([]ParameterRecord, len(records))
	copy(out, records)
	SortRecords(out)
	for i := range out {
		out[i].IsCurrent = i == 0
	}
	return out
}

// Wire-format field names, as the remote store and the mobile clients know
// them.
const (
	keySystolic         = "systolic"
	keyDiastolic        = "diastolic"
	keyPulse            = "pulse"
	keyTemperature      = "temperature"
	keyRespiratoryRate  = "respiratoryRate"
	keyOxygenSaturation = "oxygenSaturation"
	keyWeight           = "weight"
	keyHeight           = "height"
	keyBMI              = "bmi"
	keyBloodGlucose     = "bloodGlucose"
	keyHbA1c            = "hba1c"
	keyCholesterol      = "cholesterol"
	keyHemoglobin       = "hemoglobin"
	keyCreatinine       = "creatinine"
	keyHistoryNotes     = "historyNotes"
	keyDate             = "date"
	keyIsCurrent        = "isCurrent"
)

// RecordFromValue converts a single payload value -- wire-tagged or already
// plain -- into a ParameterRecord with a normalized date. It returns nil
// when the value does not resolve to an object.
func RecordFromValue(v any) *ParameterRecord {
	if v == nil {
		return nil
	}
	switch rec := v.(type) {
	case ParameterRecord:
		out := rec
		out.Date = ParseFlexibleDate(out.Date)
		return &out
	case *ParameterRecord:
		if rec == nil {
			return nil
		}
		out := *rec
		out.Date = ParseFlexibleDate(out.Date)
		return &out
	}

	plain, ok := wire.Decode(v).(map[string]any)
	if !ok {
		return nil
	}
	return recordFromPlain(plain)
}

func recordFromPlain(m map[string]any) *ParameterRecord {
	rec := ParameterRecord{
		Systolic:         stringField(m, keySystolic),
		Diastolic:        stringField(m, keyDiastolic),
		Pulse:            stringField(m, keyPulse),
		Temperature:      stringField(m, keyTemperature),
		RespiratoryRate:  stringField(m, keyRespiratoryRate),
		OxygenSaturation: stringField(m, keyOxygenSaturation),
		Weight:           stringField(m, keyWeight),
		Height:           stringField(m, keyHeight),
		BMI:              stringField(m, keyBMI),
		BloodGlucose:     stringField(m, keyBloodGlucose),
		HbA1c:            stringField(m, keyHbA1c),
		Cholesterol:      stringField(m, keyCholesterol),
		Hemoglobin:       stringField(m, keyHemoglobin),
		Creatinine:       stringField(m, keyCreatinine),
		HistoryNotes:     stringField(m, keyHistoryNotes),
		Date:             ParseFlexibleDate(m[keyDate]),
	}
	if cur, ok := m[keyIsCurrent].(bool); ok {
		rec.IsCurrent = cur
	}
	return &rec
}

// stringField renders a decoded payload value back to the string encoding
// the record model uses. Numbers lose no precision ("42" stays "42", not
// "42.000000").
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch sv := v.(type) {
	case string:
		return sv
	case float64:
		return strconv.FormatFloat(sv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(sv)
	default:
		return ""
	}
}
