package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay prints a single updating progress line for a run, or one
// line per key in verbose mode
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	label     string
	total     int
	done      int
	skipped   int
	failed    int
	bytes     int64
	current   string
	startTime time.Time
	verbose   bool
}

// NewProgressDisplay creates a display writing to stdout
func NewProgressDisplay(label string, total int, verbose bool) *ProgressDisplay {
	return NewProgressDisplayTo(os.Stdout, label, total, verbose)
}

// NewProgressDisplayTo creates a display writing to out
func NewProgressDisplayTo(out io.Writer, label string, total int, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       out,
		label:     label,
		total:     total,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// AddTotal grows the expected number of keys
func (p *ProgressDisplay) AddTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// Start marks the start of a key
func (p *ProgressDisplay) Start(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = key
	if !p.verbose {
		p.printProgress()
	}
}

// Done marks a key as fetched
func (p *ProgressDisplay) Done(key string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.bytes += size
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s • %s\n", Green("✓"), key, formatBytes(size))
	} else {
		p.printProgress()
	}
}

// Skip marks a key already done by an earlier run
func (p *ProgressDisplay) Skip(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s %s\n", Dim("•"), key, Dim("(already done)"))
	}
}

// Fail marks a key as failed
func (p *ProgressDisplay) Fail(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed++
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s - %v\n", Red("✗"), key, err)
	} else {
		p.printProgress()
	}
}

// printProgress redraws the progress line
func (p *ProgressDisplay) printProgress() {
	processed := p.done + p.skipped + p.failed

	barWidth := 20
	filled := 0
	if p.total > 0 {
		filled = processed * barWidth / p.total
		if filled > barWidth {
			filled = barWidth
		}
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %s • %s",
		Cyan(p.label),
		bar,
		processed,
		p.total,
		formatBytes(p.bytes),
		p.eta(processed),
	)
	if p.current != "" {
		line += " • " + p.current
	}
	if p.failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d failed", p.failed))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Complete prints the run summary
func (p *ProgressDisplay) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	fmt.Fprintf(p.out, "\n\n%s %s: %d fetched, %d already done, %d failed\n",
		Green("✓"), p.label, p.done, p.skipped, p.failed)
	fmt.Fprintf(p.out, "  %s %s in %s\n", Dim("•"), formatBytes(p.bytes), formatDuration(elapsed))
}

// Counts returns fetched, skipped and failed totals
func (p *ProgressDisplay) Counts() (done, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.skipped, p.failed
}

// eta estimates time remaining from the fetch rate so far
func (p *ProgressDisplay) eta(processed int) string {
	if p.done == 0 {
		return "calculating..."
	}
	rate := float64(p.done) / time.Since(p.startTime).Seconds()
	if rate == 0 {
		return "calculating..."
	}
	remaining := p.total - processed
	if remaining < 0 {
		remaining = 0
	}
	return formatDuration(time.Duration(float64(remaining)/rate) * time.Second)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatBytes formats bytes in a human-readable way
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
