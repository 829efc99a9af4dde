package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// MaxQuestionRunes limits the question text shown per answer line.
const MaxQuestionRunes = 60

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	stepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

var stageSteps = map[domain.Stage]string{
	domain.StageCapture:  "[1/3] Screenshot...",
	domain.StageInfer:    "[2/3] Asking the model...",
	domain.StageFeedback: "[3/3] Vibrating answers",
}

// Reporter prints run progress for the user. Safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	pending bool // a step line is open, waiting for its result
}

func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

func (r *Reporter) Rejected() {
	r.line(mutedStyle.Render("Analysis already in progress, trigger ignored."))
}

func (r *Reporter) Started(run *domain.Run) {
	r.line("")
	r.line(headerStyle.Render(fmt.Sprintf("=== Analysis %s ===", run.ID)))
}

func (r *Reporter) Stage(_ *domain.Run, stage domain.Stage) {
	step, ok := stageSteps[stage]
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeStep()
	if stage == domain.StageFeedback {
		fmt.Fprintln(r.w, stepStyle.Render(step))
		return
	}
	fmt.Fprint(r.w, stepStyle.Render(step)+" ")
	r.pending = true
}

func (r *Reporter) Captured(_ *domain.Run, c domain.Capture) {
	r.result(okStyle.Render(fmt.Sprintf("OK (%d KB)", c.Size()/1024)))
}

func (r *Reporter) Answers(_ *domain.Run, answers []domain.Answer) {
	r.result(okStyle.Render(fmt.Sprintf("%d question(s) found", len(answers))))
}

// Answer prints one answer line before its pulses are sent.
func (r *Reporter) Answer(index int, a domain.Answer, pulses int) {
	q := Truncate(a.Question, MaxQuestionRunes)
	var choice string
	if a.FreeText() {
		choice = fmt.Sprintf("-> Text: %s", a.Answer)
	} else {
		choice = fmt.Sprintf("-> %s (option %d/%d)", a.Answer, a.Position, a.Total)
	}
	r.line(fmt.Sprintf("  Q%d: %s %s %s", index+1, q, choice, mutedStyle.Render(plural(pulses, "pulse"))))
}

func (r *Reporter) Warn(err error) {
	r.line(warnStyle.Render(fmt.Sprintf("  ! %v", err)))
}

func (r *Reporter) Failed(_ *domain.Run, err error) {
	msg := fmt.Sprintf("FAILED [%s]", domain.KindOf(err))
	if stage := domain.StageOf(err); stage != "" {
		msg = fmt.Sprintf("FAILED at %s [%s]", stage, domain.KindOf(err))
	}
	r.line(errorStyle.Render(fmt.Sprintf("%s: %v", msg, err)))
}

func (r *Reporter) Finished(run *domain.Run) {
	msg := fmt.Sprintf("Done. %s answered", plural(len(run.Answers), "question"))
	if run.Warnings > 0 {
		msg += fmt.Sprintf(", %s", plural(run.Warnings, "warning"))
	}
	r.line(okStyle.Render(msg + "."))
}

func (r *Reporter) line(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeStep()
	fmt.Fprintln(r.w, s)
}

func (r *Reporter) result(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = false
	fmt.Fprintln(r.w, s)
}

func (r *Reporter) closeStep() {
	if r.pending {
		fmt.Fprintln(r.w)
		r.pending = false
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n <= 3 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
