// Package output renders genload runs: a live console view while the scenario
// runs, the end-of-run summary and machine-readable result exports.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/genload/internal/engine"
	"github.com/wesleyorama2/genload/internal/executor"
	"github.com/wesleyorama2/genload/internal/metrics"
)

// Cursor control for the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	ruleChar       = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 56
	boxWidth  = 55
)

// LiveStats is what the live display shows on each refresh.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	CheckRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	// CurrentStage is 1-indexed; zero when there are no stages.
	CurrentStage int
	StageName    string
	TotalStages  int
}

// ConsoleOutput writes live progress and the final summary.
type ConsoleOutput struct {
	name     string
	executor executor.Type
	target   string
	writer   io.Writer
	colors   *ColorScheme
	isTTY    bool
	quiet    bool

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig configures a ConsoleOutput.
type ConsoleOutputConfig struct {
	Name     string
	Executor executor.Type
	Target   string
	Writer   io.Writer
	Quiet    bool
	NoColor  bool
	// ForceTTY enables the redrawing display on non-terminal writers.
	ForceTTY    bool
	ForceColors bool
}

// NewConsoleOutput creates a console writer. Colors follow the terminal
// unless forced either way.
func NewConsoleOutput(cfg ConsoleOutputConfig) *ConsoleOutput {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || IsTerminal(cfg.Writer)

	var colors *ColorScheme
	switch {
	case cfg.NoColor:
		colors = NoColorScheme()
	case cfg.ForceColors:
		colors = DefaultColorScheme().ForceColors()
	case isTTY && supportsColors():
		colors = DefaultColorScheme()
	default:
		colors = NoColorScheme()
	}

	return &ConsoleOutput{
		name:     cfg.Name,
		executor: cfg.Executor,
		target:   cfg.Target,
		writer:   cfg.Writer,
		colors:   colors,
		isTTY:    isTTY,
		quiet:    cfg.Quiet,
	}
}

// IsTTY reports whether the live display redraws in place.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner.
func (c *ConsoleOutput) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Rule.Sprint(strings.Repeat(ruleChar, ruleWidth))
	title := c.name + " - Running"
	if c.executor != "" {
		title += fmt.Sprintf(" [%s]", c.executor)
	}

	c.writeln(rule)
	c.writeln(c.colors.Title.Sprint(title))
	if c.target != "" {
		c.writeln(c.colors.Dim.Sprint(c.target))
	}
	c.writeln(rule)
	c.writeln("")
}

// Update redraws the live display. It does nothing on non-terminals; use
// PrintNonInteractiveUpdate there.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY || stats == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintNonInteractiveUpdate prints a one-line status for logs and CI.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet || stats == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | Checks: %.1f%% | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		stats.CheckRate*100,
		formatDurationShort(stats.LatencyP95)))
}

func (c *ConsoleOutput) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	cs := c.colors
	var lines []string

	bar := renderProgressBar(stats.Progress, 40)
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		cs.Success.Sprint(bar),
		cs.Title.Sprintf("%.0f%%", stats.Progress*100),
		cs.Dim.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))))

	phase := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
		if stats.StageName != "" {
			phase += " " + stats.StageName
		}
	}
	lines = append(lines, "Stage:    "+cs.Stage.Sprint(phase))
	lines = append(lines, "")

	lines = append(lines, cs.Dim.Sprint(boxTopLeft+strings.Repeat(ruleChar, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", cs.Value.Sprintf("%d", stats.ActiveVUs), stats.TargetVUs)
	reqs := "Requests:    " + cs.Value.Sprint(formatNumber(stats.TotalRequests))
	lines = append(lines, c.formatBoxRow(vus, reqs))

	errColor := cs.errorColor(stats.ErrorRate)
	rps := "RPS:     " + cs.Success.Sprintf("%.1f", stats.CurrentRPS)
	errs := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprintf("%d", stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rps, errs))

	p95 := "P95:     " + cs.Latency.Sprint(formatDurationShort(stats.LatencyP95))
	checks := "Checks:      " + cs.rateColor(stats.CheckRate).Sprintf("%.1f%%", stats.CheckRate*100)
	lines = append(lines, c.formatBoxRow(p95, checks))

	lines = append(lines, cs.Dim.Sprint(boxBottomLeft+strings.Repeat(ruleChar, boxWidth-2)+boxBottomRight))

	return lines
}

func (c *ConsoleOutput) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2

	leftPad := colWidth - visibleLen(left)
	if leftPad < 0 {
		leftPad = 0
	}
	rightPad := colWidth - visibleLen(right)
	if rightPad < 0 {
		rightPad = 0
	}

	bar := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		bar, left, strings.Repeat(" ", leftPad),
		bar, right, strings.Repeat(" ", rightPad),
		bar)
}

// PrintSummary prints the end-of-run report: totals, per-check results,
// latency distribution and thresholds.
func (c *ConsoleOutput) PrintSummary(result *engine.Result) {
	if result == nil {
		return
	}
	cs := c.colors

	if c.quiet {
		if result.Passed {
			c.writeln(cs.Success.Sprint("PASSED"))
		} else {
			c.writeln(cs.Error.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	rule := cs.Rule.Sprint(strings.Repeat(ruleChar, ruleWidth))
	status := cs.Success.Sprint("Completed ✓")
	if !result.Passed {
		status = cs.Error.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", cs.Title.Sprint(result.Name), status))
	c.writeln(rule)
	c.writeln("")

	c.writeln("Run ID:        " + cs.Dim.Sprint(result.RunID))
	c.writeln("Target:        " + result.Target)
	c.writeln("Duration:      " + cs.Value.Sprint(formatDuration(result.Duration)))
	if result.Error != "" {
		c.writeln("Error:         " + cs.Error.Sprint(result.Error))
	}

	m := result.Metrics
	if m != nil {
		success := 1 - m.ErrorRate
		if m.TotalRequests == 0 {
			success = 0
		}
		c.writeln("Total Reqs:    " + cs.Value.Sprint(formatNumber(m.TotalRequests)))
		c.writeln("Iterations:    " + cs.Value.Sprint(formatNumber(m.Iterations)))
		c.writeln("Success Rate:  " + cs.rateColor(success).Sprintf("%.1f%%", success*100))
		c.writeln(fmt.Sprintf("Avg RPS:       %s", cs.Value.Sprintf("%.1f", m.RPS)))
		c.writeln("")

		if len(m.Checks) > 0 {
			c.writeln(cs.Label.Sprint("Checks:"))
			for _, chk := range m.Checks {
				icon := cs.SuccessIcon()
				if chk.Fails > 0 {
					icon = cs.ErrorIcon()
				}
				c.writeln(fmt.Sprintf("  %s %s (%s/%s)", icon, chk.Name,
					formatNumber(chk.Passes), formatNumber(chk.Fails)))
			}
			c.writeln(fmt.Sprintf("  rate: %s", cs.rateColor(m.CheckRate).Sprintf("%.2f%%", m.CheckRate*100)))
			c.writeln("")
		}

		c.writeln(cs.Label.Sprint("Latency Distribution:"))
		c.printLatency(m.Latency)
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(cs.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := cs.SuccessIcon()
			if !t.Passed {
				icon = cs.ErrorIcon()
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

func (c *ConsoleOutput) printLatency(l metrics.LatencyStats) {
	rows := []struct {
		label string
		value time.Duration
	}{
		{"Min", l.Min}, {"Avg", l.Mean}, {"P50", l.P50}, {"P90", l.P90},
		{"P95", l.P95}, {"P99", l.P99}, {"Max", l.Max},
	}
	for _, r := range rows {
		c.writeln(fmt.Sprintf("  %-10s %s", r.label+":", c.colors.Latency.Sprint(formatDurationShort(r.value))))
	}
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromEngine builds LiveStats from a snapshot and the executor's
// statistics. Either may be nil.
func StatsFromEngine(snap *metrics.Snapshot, st *executor.Stats, progress float64) *LiveStats {
	ls := &LiveStats{Progress: progress, CurrentPhase: string(metrics.PhaseInit)}

	if st != nil {
		ls.TargetVUs = st.TargetVUs
		ls.TotalStages = st.TotalStages
		if st.TotalStages > 0 {
			ls.CurrentStage = st.CurrentStage + 1
			ls.StageName = st.CurrentStageName
		}
		ls.Elapsed = st.Elapsed
		if st.TotalDuration > st.Elapsed {
			ls.Remaining = st.TotalDuration - st.Elapsed
		}
	}

	if snap == nil {
		return ls
	}

	if ls.Elapsed == 0 {
		ls.Elapsed = snap.Elapsed
	}
	ls.ActiveVUs = snap.ActiveVUs
	ls.CurrentRPS = snap.RPS
	ls.TotalRequests = snap.TotalRequests
	ls.Errors = snap.FailedRequests
	ls.ErrorRate = snap.ErrorRate
	ls.CheckRate = snap.CheckRate
	ls.LatencyP95 = snap.Latency.P95
	ls.LatencyAvg = snap.Latency.Mean
	if snap.CurrentPhase != "" {
		ls.CurrentPhase = string(snap.CurrentPhase)
	}
	return ls
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}
