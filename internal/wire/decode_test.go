package wire

import (
	"reflect"
	"testing"
)

func TestDecodeScalars(t *testing.T) {
	if got := Decode(map[string]any{"S": "abc"}); got != "abc" {
		t.Errorf("S tag: got %v, want abc", got)
	}
	if got := Decode(map[string]any{"N": "42"}); got != 42.0 {
		t.Errorf("N tag: got %v, want 42", got)
	}
	if got := Decode(map[string]any{"N": "3.5"}); got != 3.5 {
		t.Errorf("N tag decimal: got %v, want 3.5", got)
	}
	if got := Decode(map[string]any{"BOOL": true}); got != true {
		t.Errorf("BOOL tag: got %v, want true", got)
	}
	if got := Decode(map[string]any{"NULL": true}); got != nil {
		t.Errorf("NULL tag: got %v, want nil", got)
	}
}

func TestDecodeNestedMap(t *testing.T) {
	in := map[string]any{
		"M": map[string]any{
			"a": map[string]any{"S": "x"},
			"b": map[string]any{"N": "1"},
		},
	}
	want := map[string]any{"a": "x", "b": 1.0}

	got := Decode(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("M tag: got %#v, want %#v", got, want)
	}
}

func TestDecodeList(t *testing.T) {
	in := map[string]any{
		"L": []any{
			map[string]any{"S": "first"},
			map[string]any{"N": "2"},
			map[string]any{"NULL": true},
		},
	}
	want := []any{"first", 2.0, nil}

	got := Decode(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("L tag: got %#v, want %#v", got, want)
	}
}

func TestDecodeDeeplyNested(t *testing.T) {
	in := map[string]any{
		"M": map[string]any{
			"records": map[string]any{
				"L": []any{
					map[string]any{
						"M": map[string]any{
							"weight": map[string]any{"N": "72.5"},
							"date":   map[string]any{"S": "2025-04-02"},
						},
					},
				},
			},
		},
	}

	got, ok := Decode(in).(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", Decode(in))
	}
	records, ok := got["records"].([]any)
	if !ok || len(records) != 1 {
		t.Fatalf("expected one record, got %#v", got["records"])
	}
	rec := records[0].(map[string]any)
	if rec["weight"] != 72.5 || rec["date"] != "2025-04-02" {
		t.Errorf("inner record: got %#v", rec)
	}
}

func TestDecodePassthrough(t *testing.T) {
	// Values with no recognized tag must come back unchanged, so Decode is
	// safe to call on already-plain inputs.
	cases := []any{
		nil,
		"plain string",
		12.0,
		true,
		[]any{"a", "b"},
		map[string]any{"weight": "70", "pulse": "64"},
	}
	for _, in := range cases {
		if got := Decode(in); !reflect.DeepEqual(got, in) {
			t.Errorf("Decode(%#v) = %#v, want unchanged", in, got)
		}
	}
}

func TestDecodeIdempotent(t *testing.T) {
	in := map[string]any{
		"M": map[string]any{
			"a": map[string]any{"S": "x"},
			"n": map[string]any{"N": "7"},
		},
	}
	once := Decode(in)
	twice := Decode(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Decode not idempotent: %#v vs %#v", once, twice)
	}
}

func TestDecodeBadNumberDoesNotPanic(t *testing.T) {
	// A numeric parse failure must not crash the pipeline; the raw string
	// passes through instead.
	if got := Decode(map[string]any{"N": "not-a-number"}); got != "not-a-number" {
		t.Errorf("bad N payload: got %v, want raw string", got)
	}
}

func TestDecodeMalformedTagPayload(t *testing.T) {
	// Tag present but payload of the wrong shape: fails closed, input
	// returned unchanged.
	in := map[string]any{"S": 99}
	if got := Decode(in); !reflect.DeepEqual(got, in) {
		t.Errorf("malformed S payload: got %#v, want unchanged", got)
	}
}
