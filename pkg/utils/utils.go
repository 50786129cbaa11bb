// Package utils holds small formatting and template helpers shared across
// the daemon's subsystems, adapted from the teacher's pkg/utils (the
// GUI-only coloring/rendering helpers are dropped — nothing here renders a
// terminal UI).
package utils

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
)

// SplitLines takes a multiline string and splits it on newlines, stripping
// \r's, matching the teacher's line-splitting behavior for runtime output.
func SplitLines(multilineString string) []string {
	multilineString = strings.ReplaceAll(multilineString, "\r", "")
	if multilineString == "" || multilineString == "\n" {
		return make([]string, 0)
	}
	lines := strings.Split(multilineString, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	return lines
}

// ApplyTemplate populates a Go template with the given object, used for the
// command-template layer in pkg/runtimeinv.
func ApplyTemplate(str string, object interface{}) string {
	var buf bytes.Buffer
	_ = template.Must(template.New("").Parse(str)).Execute(&buf, object)
	return buf.String()
}

// FormatBinaryBytes formats b using binary (Ki/Mi/Gi) units.
func FormatBinaryBytes(b int64) string {
	return formatBytes(b, 1024, []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"})
}

// FormatDecimalBytes formats b using decimal (K/M/G) units.
func FormatDecimalBytes(b int64) string {
	return formatBytes(b, 1000, []string{"B", "KB", "MB", "GB", "TB", "PB"})
}

func formatBytes(b int64, base float64, units []string) string {
	n := float64(b)
	for _, unit := range units {
		if n < base {
			if n == 0 {
				return "0" + units[0]
			}
			return trimZeros(n) + unit
		}
		n /= base
	}
	return trimZeros(n) + units[len(units)-1]
}

func trimZeros(n float64) string {
	s := strconv.FormatFloat(n, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// SafeTruncate truncates str to at most limit bytes.
func SafeTruncate(str string, limit int) string {
	if len(str) > limit {
		return str[0:limit]
	}
	return str
}

// FormatMap renders a string map sorted by key, one "key: value" per line.
func FormatMap(m map[string]string) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(m[k])
		b.WriteString("\n")
	}
	return b.String()
}

type multiErr []error

func (m multiErr) Error() string {
	var b bytes.Buffer
	b.WriteString("encountered multiple errors:")
	for _, err := range m {
		b.WriteString("\n\t... " + err.Error())
	}
	return b.String()
}

// CloseMany closes every closer, aggregating any errors encountered.
func CloseMany(closers []io.Closer) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return multiErr(errs)
	}
	return nil
}
