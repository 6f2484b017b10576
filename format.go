package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/ankimd/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
// Method form of statusf — avoids threading `quiet bool` through call chains.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// isTTY reports whether the given file is an interactive terminal.
func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printReport writes a sync report to w: JSON with --json, an aligned table
// on a TTY, plain key=value lines otherwise (scriptable output for cron).
func printReport(w io.Writer, report *sync.Report, jsonOut, tty bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if tty {
		printReportTable(w, report)
	} else {
		printReportPlain(w, report)
	}

	return nil
}

func printReportTable(w io.Writer, report *sync.Report) {
	verb := ""
	if report.DryRun {
		verb = " (dry run)"
	}

	fmt.Fprintf(w, "Sync complete%s in %s\n\n", verb, formatDuration(report.Duration))

	headers := []string{"SCANNED", "CREATED", "UPDATED", "IGNORED", "DELETED", "UPLOADED", "SKIPPED"}
	rows := [][]string{{
		fmt.Sprint(report.Scanned),
		fmt.Sprint(report.Created),
		fmt.Sprint(report.Updated),
		fmt.Sprint(report.Ignored),
		fmt.Sprint(report.Deleted),
		fmt.Sprint(report.Uploaded),
		fmt.Sprint(report.Skipped),
	}}

	printTable(w, headers, rows)
	printFailures(w, report.Failures)
}

func printReportPlain(w io.Writer, report *sync.Report) {
	fmt.Fprintf(w, "run_id=%s dry_run=%t scanned=%d created=%d updated=%d ignored=%d deleted=%d uploaded=%d skipped=%d failures=%d duration=%s\n",
		report.RunID, report.DryRun, report.Scanned, report.Created, report.Updated,
		report.Ignored, report.Deleted, report.Uploaded, report.Skipped,
		len(report.Failures), formatDuration(report.Duration))

	for _, f := range report.Failures {
		fmt.Fprintf(w, "failure stage=%s label=%q path=%q error=%q\n", f.Stage, f.Label, f.Path, f.Err)
	}
}

func printFailures(w io.Writer, failures []sync.CardFailure) {
	if len(failures) == 0 {
		return
	}

	fmt.Fprintf(w, "\nFailures: %d\n\n", len(failures))

	headers := []string{"STAGE", "LABEL", "PATH", "ERROR"}
	rows := make([][]string, len(failures))

	for i := range failures {
		f := &failures[i]
		rows[i] = []string{f.Stage, f.Label, f.Path, f.Err}
	}

	printTable(w, headers, rows)
}

// formatDuration rounds a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
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

	// Print header.
	printRow(w, headers, widths)

	// Print rows.
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
