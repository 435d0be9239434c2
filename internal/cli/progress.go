package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// StepStatus is the current status of a workflow step in the progress
// table.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// ANSI color codes for dynamic table rendering.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[90m"
	ansiErase   = "\033[2K" // erase entire line
)

// stepInfo holds one workflow step's progress state.
type stepInfo struct {
	ID        string
	Component string
	Function  string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// ProgressTable renders live workflow-run progress, the same way the
// teacher renders deployment progress: a redrawn table when the writer
// is a terminal, append-only lines otherwise.
type ProgressTable struct {
	mu        sync.Mutex
	steps     map[string]*stepInfo
	order     []string
	writer    io.Writer
	startTime time.Time

	dynamic    bool
	tableLines int
}

// NewProgressTable creates a progress table writing to w. If w is a
// terminal, the table redraws itself in place.
func NewProgressTable(w io.Writer) *ProgressTable {
	dynamic := false
	if f, ok := w.(*os.File); ok {
		dynamic = term.IsTerminal(int(f.Fd()))
	}
	return &ProgressTable{
		steps:     make(map[string]*stepInfo),
		writer:    w,
		startTime: time.Now(),
		dynamic:   dynamic,
	}
}

// AddStep registers a step to track, in declared workflow order.
func (p *ProgressTable) AddStep(id, component, function string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.steps[id]; !exists {
		p.order = append(p.order, id)
	}
	p.steps[id] = &stepInfo{ID: id, Component: component, Function: function, Status: StepPending}
}

// UpdateStatus transitions a step's status and renders the update.
func (p *ProgressTable) UpdateStatus(id string, status StepStatus, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step, ok := p.steps[id]
	if !ok {
		return
	}
	step.Status = status
	step.Err = err

	switch status {
	case StepRunning:
		step.StartTime = time.Now()
	case StepCompleted, StepFailed, StepSkipped:
		step.EndTime = time.Now()
	}

	if p.dynamic {
		p.renderTableLocked()
		return
	}
	p.printLineLocked(step)
}

// PrintInitial announces the run before any step executes.
func (p *ProgressTable) PrintInitial() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dynamic {
		fmt.Fprintf(p.writer, "\nRunning %d workflow steps...\n\n", len(p.order))
		p.renderTableLocked()
		return
	}
	fmt.Fprintf(p.writer, "\nRunning %d workflow steps...\n", len(p.order))
}

// PrintFinalSummary prints the run's terminal outcome.
func (p *ProgressTable) PrintFinalSummary(aborted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var completed, failed, skipped int
	for _, id := range p.order {
		switch p.steps[id].Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	elapsed := time.Since(p.startTime).Round(time.Millisecond)

	if p.dynamic {
		p.renderTableLocked()
	}

	fmt.Fprintln(p.writer)
	if aborted {
		fmt.Fprintf(p.writer, "Run FAILED (%s): %d completed, %d failed, %d skipped\n", elapsed, completed, failed, skipped)
	} else {
		fmt.Fprintf(p.writer, "Run completed successfully in %s (%d steps)\n", elapsed, completed)
	}
}

func (p *ProgressTable) printLineLocked(step *stepInfo) {
	switch step.Status {
	case StepRunning:
		fmt.Fprintf(p.writer, "%s %s/%s running...\n", icon(step.Status), step.Component, step.ID)
	case StepCompleted:
		d := step.EndTime.Sub(step.StartTime).Round(time.Millisecond)
		fmt.Fprintf(p.writer, "%s %s/%s completed (%s)\n", icon(step.Status), step.Component, step.ID, d)
	case StepFailed:
		fmt.Fprintf(p.writer, "%s %s/%s failed: %v\n", icon(step.Status), step.Component, step.ID, step.Err)
	case StepSkipped:
		fmt.Fprintf(p.writer, "%s %s/%s skipped (condition false)\n", icon(step.Status), step.Component, step.ID)
	}
}

// renderTableLocked draws (or redraws) the live progress table.
// Caller MUST hold p.mu.
func (p *ProgressTable) renderTableLocked() {
	if p.tableLines > 0 {
		fmt.Fprintf(p.writer, "\033[%dA", p.tableLines)
	}

	lines := 0
	maxLabelLen := 0
	for _, id := range p.order {
		step := p.steps[id]
		label := step.Component + "/" + step.ID
		if len(label) > maxLabelLen {
			maxLabelLen = len(label)
		}
	}

	var completed int
	for _, id := range p.order {
		step := p.steps[id]
		label := step.Component + "/" + step.ID
		fmt.Fprintf(p.writer, "%s  %s  %-*s  %s\n", ansiErase, coloredIcon(step.Status), maxLabelLen, label, description(step))
		lines++
		if step.Status == StepCompleted {
			completed++
		}
	}

	elapsed := time.Since(p.startTime).Round(time.Second)
	fmt.Fprintf(p.writer, "%s\n", ansiErase)
	lines++
	fmt.Fprintf(p.writer, "%s  %d/%d completed (%s)\n", ansiErase, completed, len(p.order), elapsed)
	lines++

	p.tableLines = lines
}

func icon(status StepStatus) string {
	switch status {
	case StepPending:
		return "○"
	case StepRunning:
		return "◐"
	case StepCompleted:
		return "●"
	case StepFailed:
		return "✗"
	case StepSkipped:
		return "◌"
	default:
		return "?"
	}
}

func coloredIcon(status StepStatus) string {
	switch status {
	case StepPending:
		return colorDim + "○" + colorReset
	case StepRunning:
		return colorYellow + "◐" + colorReset
	case StepCompleted:
		return colorGreen + "●" + colorReset
	case StepFailed:
		return colorRed + "✗" + colorReset
	case StepSkipped:
		return colorDim + "◌" + colorReset
	default:
		return "?"
	}
}

func description(step *stepInfo) string {
	switch step.Status {
	case StepPending:
		return colorDim + "pending" + colorReset
	case StepRunning:
		return colorYellow + "running..." + colorReset
	case StepCompleted:
		d := step.EndTime.Sub(step.StartTime).Round(time.Millisecond)
		return colorGreen + fmt.Sprintf("done (%s)", d) + colorReset
	case StepFailed:
		msg := "FAILED"
		if step.Err != nil {
			errStr := step.Err.Error()
			if len(errStr) > 60 {
				errStr = errStr[:57] + "..."
			}
			msg += ": " + errStr
		}
		return colorRed + msg + colorReset
	case StepSkipped:
		return colorDim + "skipped" + colorReset
	default:
		return ""
	}
}
