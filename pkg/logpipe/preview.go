package logpipe

import (
	"github.com/mattn/go-runewidth"

	"github.com/hack-dance/hackd/pkg/utils"
)

// defaultPreviewWidth bounds how much of a message is kept when a caller
// wants a terminal-width-aware preview (e.g. a future CLI tail summary
// line) rather than the full entry.
const defaultPreviewWidth = 120

// maxPreviewInputBytes caps the input to runewidth's rune-by-rune scan
// before width-truncation runs, so a pathological single-line log message
// can't make Preview's cost scale with an attacker-controlled length.
const maxPreviewInputBytes = 4096

// Preview truncates message to at most width display columns (accounting
// for wide runes), appending an ellipsis when truncated. width<=0 uses
// defaultPreviewWidth.
func Preview(message string, width int) string {
	message = utils.SafeTruncate(message, maxPreviewInputBytes)
	if width <= 0 {
		width = defaultPreviewWidth
	}
	if runewidth.StringWidth(message) <= width {
		return message
	}
	return runewidth.Truncate(message, width, "…")
}
