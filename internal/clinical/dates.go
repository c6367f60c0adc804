package clinical

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Epoch is the fallback instant returned when every date-parsing strategy
// fails. Records carrying it are treated as "invalid date" by the ordering
// rules and always sort after records with a real date.
var Epoch = time.Unix(0, 0).UTC()

// IsEpochFallback reports whether t is the unparseable-date sentinel.
// A zero time.Time counts as invalid too, since it can only come from a
// record that never went through normalization.
func IsEpochFallback(t time.Time) bool {
	return t.IsZero() || t.Equal(Epoch)
}

// parenPattern extracts the content of the first "(...)" parenthetical,
// used by the history entry markers ("--- Entry (4/21/2025, 10:30:45 AM) ---")
// and by legacy records that embed a timestamp inside free text.
var parenPattern = regexp.MustCompile(`\(([^)]*)\)`)

// dateLayouts are tried in order for a direct parse before falling back to
// token splitting. The mobile clients have shipped several formats over
// the years.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"02 Jan 2006",
}

// ParseFlexibleDate normalizes the heterogeneous date representations found
// across drafts, cached payloads and the remote store into a single instant.
// Strategies are applied in order, first success wins:
//
//  1. input is already a time.Time
//  2. direct parse against the known layouts
//  3. US-locale token split (month/day/year, optional time + AM/PM)
//  4. the Epoch fallback -- never an error
//
// If the raw string wraps its timestamp in a parenthetical, only the
// parenthetical content is parsed.
func ParseFlexibleDate(input any) time.Time {
	switch v := input.(type) {
	case time.Time:
		if v.IsZero() {
			return Epoch
		}
		return v
	case *time.Time:
		if v == nil || v.IsZero() {
			return Epoch
		}
		return *v
	case string:
		return parseDateString(v)
	default:
		return Epoch
	}
}

func parseDateString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return Epoch
	}

	if m := parenPattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
		if s == "" {
			return Epoch
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return parseLocaleTokens(s)
}

// parseLocaleTokens handles strings like "4/21/2025, 10:30:45 AM": split on
// '/', ',', ':' and whitespace, read the first three numeric tokens as
// month/day/year (US convention), and any following numeric tokens as
// time-of-day. Fewer than three numeric tokens means the string is not a
// date we can recover.
func parseLocaleTokens(s string) time.Time {
	upper := strings.ToUpper(s)
	pm := strings.Contains(upper, "PM")
	am := strings.Contains(upper, "AM")

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == ',' || r == ':' || unicode.IsSpace(r)
	})

	var nums []int
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) < 3 {
		return Epoch
	}

	month, day, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Epoch
	}
	if year < 100 {
		year += 2000
	}

	hour, minute, sec := 0, 0, 0
	if len(nums) >= 4 {
		hour = nums[3]
	}
	if len(nums) >= 5 {
		minute = nums[4]
	}
	if len(nums) >= 6 {
		sec = nums[5]
	}
	if pm && hour < 12 {
		hour += 12
	}
	if am && hour == 12 {
		hour = 0
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.Local)
}
