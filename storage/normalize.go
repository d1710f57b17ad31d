package storage

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"alcove-api/domain"
)

// Normalize rebuilds a valid document from untrusted decoded JSON. It never
// fails: a missing collection, a non-array value, or a non-object element
// degrades to an empty collection or a dropped entry. Per-entity rules live
// in the normalize* parse-and-filter functions below; entries they reject
// are silently discarded. Cross-entity invariants (launchpad URL uniqueness)
// are not checked here; mutation closures own those, since they have the
// request context to decide conflict handling.
func Normalize(raw any) *domain.Document {
	doc := domain.NewDocument()
	root, ok := raw.(map[string]any)
	if !ok {
		return doc
	}

	now := Now()
	for i, el := range elements(root["tasks"]) {
		if t, ok := normalizeTask(el, i, now); ok {
			doc.Tasks = append(doc.Tasks, t)
		}
	}
	for i, el := range elements(root["focusSessions"]) {
		if f, ok := normalizeFocusSession(el, i, now); ok {
			doc.FocusSessions = append(doc.FocusSessions, f)
		}
	}
	for i, el := range elements(root["journals"]) {
		if j, ok := normalizeJournal(el, i, now); ok {
			doc.Journals = append(doc.Journals, j)
		}
	}
	for i, el := range elements(root["events"]) {
		if e, ok := normalizeEvent(el, i, now); ok {
			doc.Events = append(doc.Events, e)
		}
	}
	for i, el := range elements(root["launchpad"]) {
		if l, ok := normalizeLaunchpadItem(el, i, now); ok {
			doc.Launchpad = append(doc.Launchpad, l)
		}
	}
	return doc
}

// NormalizeBytes decodes and normalizes a raw JSON payload. Syntax errors
// yield an empty document; callers that need to distinguish corruption from
// emptiness decode first and call Normalize themselves.
func NormalizeBytes(data []byte) *domain.Document {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.NewDocument()
	}
	return Normalize(raw)
}

func normalizeTask(m map[string]any, index int, now time.Time) (domain.Task, bool) {
	title := trimmed(m["title"])
	if title == "" {
		return domain.Task{}, false
	}
	id := trimmed(m["id"])
	if id == "" {
		id = fallbackID("task", index, title)
	}
	priority := trimmed(m["priority"])
	if !domain.ValidPriority(priority) {
		priority = domain.PriorityMedium
	}
	return domain.Task{
		ID:        id,
		Title:     title,
		Done:      truthy(m["done"]),
		Priority:  priority,
		CreatedAt: timeOr(m["createdAt"], now),
	}, true
}

func normalizeFocusSession(m map[string]any, index int, now time.Time) (domain.FocusSession, bool) {
	minutes := wholeNumber(m["minutes"])
	if minutes <= 0 {
		return domain.FocusSession{}, false
	}
	id := trimmed(m["id"])
	if id == "" {
		id = fallbackID("focus", index, timeOr(m["createdAt"], now).Format(time.RFC3339))
	}
	return domain.FocusSession{
		ID:        id,
		Minutes:   minutes,
		CreatedAt: timeOr(m["createdAt"], now),
	}, true
}

func normalizeJournal(m map[string]any, index int, now time.Time) (domain.Journal, bool) {
	text := trimmed(m["text"])
	if text == "" {
		return domain.Journal{}, false
	}
	id := trimmed(m["id"])
	if id == "" {
		id = fallbackID("journal", index, text)
	}
	return domain.Journal{
		ID:        id,
		Text:      text,
		CreatedAt: timeOr(m["createdAt"], now),
	}, true
}

func normalizeEvent(m map[string]any, index int, now time.Time) (domain.CalendarEvent, bool) {
	title := trimmed(m["title"])
	if title == "" {
		return domain.CalendarEvent{}, false
	}
	id := trimmed(m["id"])
	if id == "" {
		id = fallbackID("event", index, title)
	}
	return domain.CalendarEvent{
		ID:        id,
		Title:     title,
		When:      timeOr(m["when"], now),
		CreatedAt: timeOr(m["createdAt"], now),
	}, true
}

func normalizeLaunchpadItem(m map[string]any, index int, now time.Time) (domain.LaunchpadItem, bool) {
	name := clip(trimmed(m["name"]), domain.LaunchpadNameMax)
	if name == "" {
		return domain.LaunchpadItem{}, false
	}
	rawURL := trimmed(m["url"])
	if !ValidLaunchURL(rawURL) {
		return domain.LaunchpadItem{}, false
	}
	id := trimmed(m["id"])
	if id == "" {
		id = fallbackID("launch", index, rawURL)
	}
	createdAt := timeOr(m["createdAt"], now)
	item := domain.LaunchpadItem{
		ID:          id,
		Name:        name,
		URL:         rawURL,
		Description: clip(trimmed(m["description"]), domain.LaunchpadDescriptionMax),
		Enabled:     truthy(m["enabled"]),
		LaunchCount: wholeNumber(m["launchCount"]),
		CreatedAt:   createdAt,
		// A hand-edited updatedAt that fails to parse falls back to
		// createdAt, not to the current instant.
		UpdatedAt: timeOr(m["updatedAt"], createdAt),
	}
	if t, ok := parseTime(m["lastLaunchedAt"]); ok {
		item.LastLaunchedAt = &t
	}
	return item, true
}

// ValidLaunchURL reports whether s is an absolute http or https URL.
func ValidLaunchURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// elements returns the object members of v, dropping everything else.
func elements(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func trimmed(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// truthy coerces arbitrary JSON values the way the persisted format always
// treated flags: zero, empty string, and null are false, everything else
// (including objects and arrays) is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// wholeNumber floors a JSON number and clamps it to [0, MaxInt32].
// Converting an out-of-range float to int is implementation-defined, so the
// upper clamp happens while still in float space.
func wholeNumber(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return 0
	}
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Floor(f))
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func timeOr(v any, fallback time.Time) time.Time {
	if t, ok := parseTime(v); ok {
		return t
	}
	return fallback
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
