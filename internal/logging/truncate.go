package logging

import "strconv"

// MaxLogFieldLength bounds string fields such as command output in log entries.
const MaxLogFieldLength = 1024

// Truncate shortens s to MaxLogFieldLength bytes.
func Truncate(s string) string {
	return TruncateN(s, MaxLogFieldLength)
}

// TruncateN shortens s to n bytes, appending "..." when something was cut.
func TruncateN(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TruncateSlice keeps the first maxItems entries and summarises the rest.
func TruncateSlice(items []string, maxItems int) []string {
	if maxItems < 0 || len(items) <= maxItems {
		return items
	}
	out := make([]string, 0, maxItems+1)
	out = append(out, items[:maxItems]...)
	return append(out, "... and "+strconv.Itoa(len(items)-maxItems)+" more")
}
