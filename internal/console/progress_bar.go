// Package console renders progress and errors for the terminal.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/NamanBalaji/tfetch/internal/ledger"
)

// ProgressBar returns a styled progress bar. percent is a fraction in [0, 1].
func ProgressBar(width int, percent float64, snap ledger.Snapshot) string {
	if width <= 0 {
		return ""
	}

	if percent < 0 {
		percent = 0
	}

	if percent > 1.0 {
		percent = 1.0
	}

	filledWidth := int(float64(width) * percent)
	emptyWidth := width - filledWidth

	filledStr := strings.Repeat("█", filledWidth)
	emptyStr := strings.Repeat("░", emptyWidth)

	filledStyle := ProgressActiveStyle

	switch {
	case snap.Complete():
		filledStyle = ProgressDoneStyle
	case snap.Failures > 0:
		filledStyle = ProgressRetryStyle
	}

	return filledStyle.Render(filledStr) + ProgressBarEmptyStyle.Render(emptyStr)
}

// Line formats one progress line: bar, percentage, bytes, rate, ETA and pieces.
func Line(width int, snap ledger.Snapshot) string {
	pct := snap.Percentage()

	eta := "--"
	if d := snap.ETA(); d > 0 {
		eta = d.Round(time.Second).String()
	}

	details := fmt.Sprintf("%5.1f%% %s / %s %s/s eta %s pieces %d/%d",
		pct,
		humanize.IBytes(uint64(snap.BytesVerified)),
		humanize.IBytes(uint64(snap.BytesTotal)),
		humanize.IBytes(uint64(snap.RatePerSecond)),
		eta,
		snap.PiecesVerified,
		snap.PiecesTotal,
	)

	if snap.Failures > 0 {
		details += fmt.Sprintf(" retries %d", snap.Failures)
	}

	return ProgressBar(width, pct/100, snap) + " " + DetailStyle.Render(details)
}

// Error renders a fatal error message for stderr.
func Error(err error) string {
	return ErrorStyle.Render("error:") + " " + err.Error()
}
