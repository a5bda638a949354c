package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/propchat/internal/models"
)

var pollInterval = time.Second

// processingFetcher is the part of the API client the progress display polls.
type processingFetcher interface {
	GetProcessing(ctx context.Context, id string) (*models.DocumentProcessing, error)
}

// tickMsg triggers polling the processing status
type tickMsg time.Time

// processingUpdateMsg carries the updated processing run
type processingUpdateMsg struct {
	run *models.DocumentProcessing
	err error
}

// progressModel is the bubbletea model for document processing progress.
type progressModel struct {
	client   processingFetcher
	runID    string
	run      *models.DocumentProcessing
	progress progress.Model
	theme    Theme
	interval time.Duration
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(c processingFetcher, run *models.DocumentProcessing) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		runID:    run.ID,
		run:      run,
		progress: prog,
		theme:    defaultTheme,
		interval: pollInterval,
		done:     run.Status.Terminal(),
		err:      runError(run),
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(
		tickCmd(m.interval),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRun()

	case processingUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch processing status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.run = msg.run
		if m.run.Status.Terminal() {
			m.done = true
			m.err = runError(m.run)
			return m, tea.Quit
		}
		return m, tickCmd(m.interval)

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.run == nil {
		return "Loading processing status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.run.Status))
	bar := m.progress.ViewAs(m.run.Status.Progress())
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, m.run.DocumentID, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting && !m.done {
		msg := fmt.Sprintf("\nProcessing %s continues in background.\nUse 'propchat documents status %s' to check it.\n",
			m.runID, m.runID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Processing failed: %s\n", m.err))
	}

	return m.theme.completedStyle().Render("✓ "+string(m.run.Status)) + "\n\n" + describeRun(m.run)
}

// fetchRun fetches the current processing status.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchRun() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		run, err := m.client.GetProcessing(ctx, m.runID)
		return processingUpdateMsg{run: run, err: err}
	}
}

// tickCmd returns a command that sends a tick after d.
func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runError(run *models.DocumentProcessing) error {
	if run == nil || run.Status != models.ProcessingFailed {
		return nil
	}
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		return fmt.Errorf("%s", *run.ErrorMessage)
	}
	return fmt.Errorf("processing failed with unknown error")
}

// describeRun summarizes the OCR result and the extracted lease fields.
func describeRun(run *models.DocumentProcessing) string {
	var b strings.Builder
	writeRun(&b, run)
	return b.String()
}

func writeRun(w io.Writer, run *models.DocumentProcessing) {
	fmt.Fprintf(w, "  Run:        %s\n", run.ID)
	fmt.Fprintf(w, "  Document:   %s\n", run.DocumentID)
	fmt.Fprintf(w, "  Status:     %s\n", run.Status)
	if o := run.OCRResult; o != nil {
		fmt.Fprintf(w, "  OCR:        %d pages, %.0f%% confidence", o.PageCount, o.Confidence*100)
		if o.Provider != "" {
			fmt.Fprintf(w, " (%s)", o.Provider)
		}
		fmt.Fprintln(w)
	}
	l := run.ParsedLease
	if l == nil {
		return
	}
	fmt.Fprintf(w, "\nLease (%.0f%% confidence):\n", l.Confidence*100)
	for _, p := range l.Parties {
		fmt.Fprintf(w, "  %-12s%s\n", p.Type+":", p.Name)
	}
	if l.PropertyAddress != "" {
		fmt.Fprintf(w, "  Address:    %s\n", l.PropertyAddress)
	}
	if l.StartDate != nil || l.EndDate != nil {
		fmt.Fprintf(w, "  Term:       %s → %s\n", derefString(l.StartDate), derefString(l.EndDate))
	}
	money := []struct {
		label string
		v     *float64
	}{
		{"Rent", l.MonthlyRent},
		{"Charges", l.Charges},
		{"Deposit", l.Deposit},
	}
	for _, m := range money {
		if m.v != nil {
			fmt.Fprintf(w, "  %-12s%.2f €\n", m.label+":", *m.v)
		}
	}
	if l.IndexationRate != nil {
		fmt.Fprintf(w, "  Indexation: %.2f%%\n", *l.IndexationRate)
	}
	for _, c := range l.KeyClauses {
		fmt.Fprintf(w, "  • %s\n", c)
	}
}

func derefString(p *string) string {
	if p == nil {
		return "?"
	}
	return *p
}

// RunProcessingProgress runs the interactive progress UI for a processing run.
// Returns nil on success or Ctrl+C (background), error on failure.
func RunProcessingProgress(c processingFetcher, run *models.DocumentProcessing) error {
	model := newProgressModel(c, run)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// If user quit with Ctrl+C, processing continues in background - not an error
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}

// waitProcessing polls without a UI until the run is terminal, printing
// each status change. Used when stdout is not a terminal.
func waitProcessing(ctx context.Context, w io.Writer, c processingFetcher, run *models.DocumentProcessing, interval time.Duration) (*models.DocumentProcessing, error) {
	last := run.Status
	fmt.Fprintf(w, "[%s] %s\n", last, run.DocumentID)
	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(interval):
		}
		next, err := c.GetProcessing(ctx, run.ID)
		if err != nil {
			return run, fmt.Errorf("failed to fetch processing status: %w", err)
		}
		run = next
		if run.Status != last {
			last = run.Status
			fmt.Fprintf(w, "[%s] %s\n", last, run.DocumentID)
		}
	}
	return run, runError(run)
}
