// Package report renders the final artifacts of a run: a human-readable text
// report, a machine-readable JSON dump, and a colorized terminal summary.
// Everything is derived from the scan aggregate alone.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/reconward/reconward/internal/logger"
	"github.com/reconward/reconward/pkg/types"
)

type Writer struct {
	OutputDir string
	Logger    *logger.Logger
}

func NewWriter(outputDir string, log *logger.Logger) *Writer {
	if outputDir == "" {
		outputDir = "output"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Writer{OutputDir: outputDir, Logger: log.WithComponent("report")}
}

// Write renders the text report and JSON dump for a run and returns their
// paths. It works for failed and partial runs too: whatever phases completed
// is what gets reported.
func (w *Writer) Write(result *types.ScanResult) (reportPath, dumpPath string, err error) {
	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", sanitizeName(result.Target), result.ScanID)
	reportPath = filepath.Join(w.OutputDir, base+".txt")
	dumpPath = filepath.Join(w.OutputDir, base+".json")

	if err := os.WriteFile(reportPath, []byte(RenderText(result)), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write report: %w", err)
	}

	dump, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal scan result: %w", err)
	}
	if err := os.WriteFile(dumpPath, dump, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write dump: %w", err)
	}

	w.Logger.Infow("Report written", "report", reportPath, "dump", dumpPath)
	return reportPath, dumpPath, nil
}

// RenderText produces the plain-text report.
func RenderText(r *types.ScanResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Reconnaissance Report: %s\n", r.Target)
	fmt.Fprintf(&b, "Scan ID:  %s\n", r.ScanID)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Finished: %s (%s)\n", r.FinishedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	if r.Failed {
		b.WriteString("Status:   FAILED (partial results below)\n")
	}
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString("Phases\n" + strings.Repeat("-", 60) + "\n")
	for _, name := range types.PhaseOrder {
		st := r.Phases[name]
		if st == nil {
			continue
		}
		line := fmt.Sprintf("  %-12s %s", name, phaseLabel(st))
		if st.Err != "" {
			line += " (" + st.Err + ")"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	hosts, active, openPorts, endpoints := r.Counts()
	b.WriteString("Summary\n" + strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "  Candidates resolved: %d\n", hosts)
	fmt.Fprintf(&b, "  Active hosts:        %d\n", active)
	fmt.Fprintf(&b, "  Open ports:          %d\n", openPorts)
	fmt.Fprintf(&b, "  Web endpoints:       %d\n\n", endpoints)

	if len(r.ActiveHosts) > 0 {
		b.WriteString("Active Hosts\n" + strings.Repeat("-", 60) + "\n")
		for _, h := range r.ActiveHosts {
			line := "  " + h.Hostname
			if len(h.IPs) > 0 {
				line += "  " + strings.Join(h.IPs, ", ")
			}
			if h.CNAME != "" {
				line += "  CNAME " + h.CNAME
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if wildcards := wildcardHosts(r); len(wildcards) > 0 {
		b.WriteString("Wildcard Matches (excluded from scanning)\n" + strings.Repeat("-", 60) + "\n")
		for _, h := range wildcards {
			b.WriteString("  " + h + "\n")
		}
		b.WriteString("\n")
	}

	if len(r.Ports) > 0 {
		b.WriteString("Open Ports\n" + strings.Repeat("-", 60) + "\n")
		for _, host := range sortedHosts(r.Ports) {
			open := r.OpenPorts(host)
			if len(open) == 0 {
				continue
			}
			b.WriteString("  " + host + "\n")
			for _, pr := range open {
				line := fmt.Sprintf("    %5d/tcp  %-14s", pr.Port, pr.Service)
				if pr.Banner != "" {
					line += " " + pr.Banner
				}
				b.WriteString(strings.TrimRight(line, " ") + "\n")
			}
		}
		b.WriteString("\n")
	}

	if len(r.Tech) > 0 {
		b.WriteString("Technologies\n" + strings.Repeat("-", 60) + "\n")
		for _, tr := range r.Tech {
			if tr.Err != "" {
				fmt.Fprintf(&b, "  %s: fingerprinting failed: %s\n", tr.Endpoint, tr.Err)
				continue
			}
			if len(tr.Technologies) == 0 {
				fmt.Fprintf(&b, "  %s: none detected\n", tr.Endpoint)
				continue
			}
			var names []string
			for _, tech := range tr.Technologies {
				name := tech.Name
				if tech.Version != "" {
					name += " " + tech.Version
				}
				names = append(names, name)
			}
			fmt.Fprintf(&b, "  %s: %s\n", tr.Endpoint, strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}

	if len(r.Screenshots) > 0 {
		b.WriteString("Screenshots\n" + strings.Repeat("-", 60) + "\n")
		for _, s := range r.Screenshots {
			if s.Err != "" {
				fmt.Fprintf(&b, "  %s: capture failed: %s\n", s.Endpoint, s.Err)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", s.Endpoint, s.Path)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// PrintSummary writes the colorized terminal summary.
func PrintSummary(out io.Writer, r *types.ScanResult) {
	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	header.Fprintf(out, "\n%s", r.Target)
	if r.Failed {
		bad.Fprintf(out, "  [failed]")
	}
	fmt.Fprintln(out)

	hosts, active, openPorts, endpoints := r.Counts()
	fmt.Fprintf(out, "  hosts: %d (%d active)   open ports: %d   endpoints: %d\n", hosts, active, openPorts, endpoints)

	for _, name := range types.PhaseOrder {
		st := r.Phases[name]
		if st == nil {
			continue
		}
		label := phaseLabel(st)
		switch st.State {
		case types.PhaseCompleted:
			if st.Partial {
				warn.Fprintf(out, "  %-12s %s\n", name, label)
			} else {
				good.Fprintf(out, "  %-12s %s\n", name, label)
			}
		case types.PhaseFailed:
			bad.Fprintf(out, "  %-12s %s\n", name, label)
		default:
			fmt.Fprintf(out, "  %-12s %s\n", name, label)
		}
	}

	if r.ReportPath != "" {
		fmt.Fprintf(out, "\n  report: %s\n  dump:   %s\n", r.ReportPath, r.DumpPath)
	}
}

// phaseLabel distinguishes never-attempted, skipped, failed, and completed
// (including completed with no findings) phases.
func phaseLabel(st *types.PhaseStatus) string {
	switch st.State {
	case types.PhaseNotRun:
		return "not run"
	case types.PhaseRunning:
		return "running"
	case types.PhaseSkipped:
		return "skipped"
	case types.PhaseFailed:
		return "failed"
	case types.PhaseCompleted:
		if st.Partial {
			return "completed with errors"
		}
		return "completed"
	}
	return string(st.State)
}

func wildcardHosts(r *types.ScanResult) []string {
	var out []string
	for _, h := range r.Hosts {
		if h.Wildcard {
			out = append(out, h.Hostname)
		}
	}
	sort.Strings(out)
	return out
}

func sortedHosts(m map[string][]types.PortResult) []string {
	hosts := make([]string, 0, len(m))
	for h := range m {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, s)
}
