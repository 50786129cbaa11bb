package logpipe

import "strings"

// Diff computes the suffix of `next` beyond what was already sent for a
// captured terminal snapshot (§4.G "Diff streaming"). When next extends
// prev, the result is simply the appended lines. When it doesn't (the
// snapshot was cleared or rewound), the longest common line-prefix is
// computed and the remainder of next is emitted.
func Diff(prev, next []string) []string {
	if len(next) >= len(prev) && linesEqual(prev, next[:len(prev)]) {
		return append([]string(nil), next[len(prev):]...)
	}

	n := commonPrefixLen(prev, next)
	return append([]string(nil), next[n:]...)
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// SplitCaptured splits a captured buffer into lines the way Diff expects,
// dropping a single trailing empty line produced by a terminal trailing
// newline.
func SplitCaptured(buf string) []string {
	lines := strings.Split(buf, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
