package clinical

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// HistoryEntry is one discrete note recovered from the free-text history
// blob. Entries are a derived view: the blob is the only persisted
// representation, and segmentation is recomputed on every read.
type HistoryEntry struct {
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	Date      time.Time `json:"date"`
}

// entryMarker matches the delimiters the mobile clients write between
// history entries: "--- Entry (4/21/2025, 10:30:45 AM) ---", with or
// without the leading "New" and with flexible whitespace. The parenthetical
// capture is the entry's raw timestamp.
var entryMarker = regexp.MustCompile(`(?i)---\s*(?:New\s+)?Entry\s*\(([^)]*)\)\s*---`)

// historyStampLayout is the locale format the clients have always used for
// marker timestamps.
const historyStampLayout = "1/2/2006, 3:04:05 PM"

// SegmentHistory parses a free-text history blob into discrete, ordered
// entries. A marker labels the entry that follows it. Blobs without any
// marker come back as a single entry with an empty timestamp; entries whose
// timestamp fails to parse sort after every dated entry, keeping their
// discovery order. Entries that are empty after trimming are dropped.
func SegmentHistory(blob string) []HistoryEntry {
	if strings.TrimSpace(blob) == "" {
		return nil
	}

	locs := entryMarker.FindAllStringSubmatchIndex(blob, -1)
	if len(locs) == 0 {
		return []HistoryEntry{{Text: blob, Timestamp: "", Date: Epoch}}
	}

	entries := make([]HistoryEntry, 0, len(locs))
	for i, loc := range locs {
		end := len(blob)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(blob[loc[1]:end])
		if text == "" {
			continue
		}
		stamp := strings.TrimSpace(blob[loc[2]:loc[3]])
		entries = append(entries, HistoryEntry{
			Text:      text,
			Timestamp: stamp,
			Date:      ParseFlexibleDate(stamp),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		aValid := !IsEpochFallback(entries[i].Date)
		bValid := !IsEpochFallback(entries[j].Date)
		switch {
		case aValid && !bValid:
			return true
		case !aValid:
			return false
		default:
			return entries[i].Date.After(entries[j].Date)
		}
	})
	return entries
}

// AppendHistoryEntry adds a pending note to the blob under a fresh marker
// and returns the new blob. This is the single write path for history text;
// every screen that used to splice notes in by hand goes through here.
// Appending an empty note is a no-op.
func AppendHistoryEntry(blob, text string, at time.Time) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return blob
	}

	marker := fmt.Sprintf("--- New Entry (%s) ---", at.Format(historyStampLayout))
	entry := marker + "\n" + text
	if strings.TrimSpace(blob) == "" {
		return entry
	}
	return strings.TrimRight(blob, "\n") + "\n" + entry
}
