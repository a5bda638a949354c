package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/propchat/internal/models"
)

// scriptedFetcher returns one scripted run per call, then repeats the last.
type scriptedFetcher struct {
	mu    sync.Mutex
	runs  []*models.DocumentProcessing
	err   error
	calls int
}

func (f *scriptedFetcher) GetProcessing(ctx context.Context, id string) (*models.DocumentProcessing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.calls-1, len(f.runs)-1)
	return f.runs[i], nil
}

func processingRun(status models.ProcessingStatus) *models.DocumentProcessing {
	return &models.DocumentProcessing{ID: "run-1", DocumentID: "doc-1", Status: status}
}

func completedRun() *models.DocumentProcessing {
	run := processingRun(models.ProcessingCompleted)
	rent := 950.0
	start, end := "2025-09-01", "2028-08-31"
	run.OCRResult = &models.OCRResult{PageCount: 4, Confidence: 0.94, Provider: "mistral"}
	run.ParsedLease = &models.ParsedLease{
		Parties:         []models.ParsedParty{{Type: "tenant", Name: "Camille Martin"}},
		PropertyAddress: "12 rue des Lilas",
		StartDate:       &start,
		EndDate:         &end,
		MonthlyRent:     &rent,
		KeyClauses:      []string{"Révision annuelle IRL"},
		Confidence:      0.87,
	}
	return run
}

func step(t *testing.T, m progressModel, msg tea.Msg) (progressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(progressModel)
	require.True(t, ok)
	return pm, cmd
}

func TestProgressModelPollsUntilTerminal(t *testing.T) {
	f := &scriptedFetcher{runs: []*models.DocumentProcessing{
		processingRun(models.ProcessingRunning),
		completedRun(),
	}}
	m := newProgressModel(f, processingRun(models.ProcessingPending))
	assert.False(t, m.done)
	assert.Contains(t, m.renderContent(), "[pending]")

	m, cmd := step(t, m, tickMsg(time.Now()))
	require.NotNil(t, cmd)
	m, cmd = step(t, m, cmd())
	assert.False(t, m.done)
	assert.NotNil(t, cmd, "schedules the next tick")
	assert.Contains(t, m.renderContent(), "[processing]")

	m, cmd = step(t, m, tickMsg(time.Now()))
	m, _ = step(t, m, cmd())
	require.True(t, m.done)
	require.NoError(t, m.err)

	view := m.renderContent()
	assert.Contains(t, view, "✓ completed")
	assert.Contains(t, view, "OCR:        4 pages, 94% confidence (mistral)")
	assert.Contains(t, view, "Lease (87% confidence):")
	assert.Contains(t, view, "Term:       2025-09-01 → 2028-08-31")
	assert.Contains(t, view, "Rent:       950.00 €")
	assert.Contains(t, view, "• Révision annuelle IRL")
	assert.Equal(t, 2, f.calls)
}

func TestProgressModelFailedRun(t *testing.T) {
	failed := processingRun(models.ProcessingFailed)
	msg := "OCR illisible"
	failed.ErrorMessage = &msg

	f := &scriptedFetcher{runs: []*models.DocumentProcessing{failed}}
	m := newProgressModel(f, processingRun(models.ProcessingPending))
	m, cmd := step(t, m, tickMsg(time.Now()))
	m, _ = step(t, m, cmd())

	require.True(t, m.done)
	require.EqualError(t, m.err, "OCR illisible")
	assert.Contains(t, m.renderContent(), "Processing failed: OCR illisible")
}

func TestProgressModelFetchError(t *testing.T) {
	f := &scriptedFetcher{err: errors.New("boom")}
	m := newProgressModel(f, processingRun(models.ProcessingPending))
	m, cmd := step(t, m, tickMsg(time.Now()))
	m, _ = step(t, m, cmd())

	require.True(t, m.done)
	assert.ErrorContains(t, m.err, "boom")
}

func TestProgressModelAlreadyTerminal(t *testing.T) {
	m := newProgressModel(&scriptedFetcher{}, completedRun())
	assert.True(t, m.done)
	require.NotNil(t, m.Init())
	assert.Equal(t, tea.Quit(), m.Init()())
}

func TestProgressModelBackground(t *testing.T) {
	m := newProgressModel(&scriptedFetcher{}, processingRun(models.ProcessingRunning))
	m, cmd := step(t, m, tea.KeyPressMsg{Code: 'q', Text: "q"})
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)
	assert.Contains(t, m.renderContent(), "propchat documents status run-1")
}

func TestWaitProcessing(t *testing.T) {
	f := &scriptedFetcher{runs: []*models.DocumentProcessing{
		processingRun(models.ProcessingRunning),
		processingRun(models.ProcessingRunning),
		completedRun(),
	}}

	var out bytes.Buffer
	run, err := waitProcessing(context.Background(), &out, f, processingRun(models.ProcessingPending), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingCompleted, run.Status)
	assert.Equal(t, "[pending] doc-1\n[processing] doc-1\n[completed] doc-1\n", out.String())
	assert.Equal(t, 3, f.calls)
}

func TestWaitProcessingCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := waitProcessing(ctx, &out, &scriptedFetcher{}, processingRun(models.ProcessingPending), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
