/*
Package wire converts the remote store's tagged-union value format into
plain native values. Payloads arrive as recursively tagged maps
({"S": ...}, {"N": ...}, {"M": {...}}, ...); Decode flattens them into
strings, numbers, booleans, nils, maps and slices that the rest of the
application can consume directly.
*/
package wire

import "strconv"

// Tag keys recognized by Decode. Any map carrying one of these is treated
// as a tagged value; anything else passes through unchanged.
const (
	tagString = "S"
	tagNumber = "N"
	tagBool   = "BOOL"
	tagNull   = "NULL"
	tagMap    = "M"
	tagList   = "L"
)

// Decode recursively converts a tagged-union value into its plain form.
// It is idempotent: values that carry no recognized tag (including nil and
// already-decoded plain values) are returned unchanged, so it is safe to
// call unconditionally on inputs that may already be plain. Decode never
// panics and never returns an error; a malformed tag payload simply passes
// through as-is.
func Decode(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	if s, ok := m[tagString]; ok {
		if str, ok := s.(string); ok {
			return str
		}
	}
	if n, ok := m[tagNumber]; ok {
		return decodeNumber(n)
	}
	if b, ok := m[tagBool]; ok {
		if bv, ok := b.(bool); ok {
			return bv
		}
	}
	if _, ok := m[tagNull]; ok {
		return nil
	}
	if mv, ok := m[tagMap]; ok {
		if entries, ok := mv.(map[string]any); ok {
			out := make(map[string]any, len(entries))
			for k, entry := range entries {
				out[k] = Decode(entry)
			}
			return out
		}
	}
	if lv, ok := m[tagList]; ok {
		if items, ok := lv.([]any); ok {
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = Decode(item)
			}
			return out
		}
	}

	// No recognized tag: already-plain map, return unchanged.
	return v
}

// decodeNumber converts the payload of an N tag. The wire format encodes
// numbers as strings; a string that fails to parse is returned as-is
// rather than propagated as an error, so one bad value cannot take down a
// whole payload.
func decodeNumber(n any) any {
	switch nv := n.(type) {
	case string:
		if f, err := strconv.ParseFloat(nv, 64); err == nil {
			return f
		}
		return nv
	case float64:
		return nv
	case int:
		return float64(nv)
	default:
		return nv
	}
}
