package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// joinRecipients renders a recipient list the way the form accepts it.
func joinRecipients(rs []string) string {
	return strings.Join(rs, "; ")
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	if n <= 3 {
		return string(r[:n])
	}

	return string(r[:n-3]) + "..."
}

// formatTime returns a compact local timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()
	t = t.Local()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	ew := &errWriter{w: w}

	printRow(ew, headers, widths)

	for _, row := range rows {
		printRow(ew, row, widths)
	}

	return ew.err
}

// printRow writes a single padded row.
func printRow(ew *errWriter, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	ew.printf("%s\n", strings.TrimRight(strings.Join(parts, "  "), " "))
}
