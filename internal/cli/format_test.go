package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/propchat/internal/metrics"
	"github.com/raphaelgruber/propchat/internal/models"
)

func TestWriteCitations(t *testing.T) {
	page := 3
	cites := []models.Citation{
		{DocumentTitle: "Bail Lilas", PageNumber: &page, SourceType: models.SourceLeases, RelevanceScore: 0.91,
			ContentPreview: "Loyer\n950 euros"},
		{DocumentTitle: "KPI février", SourceType: models.SourceKPI, RelevanceScore: 0.5},
	}

	var buf bytes.Buffer
	writeCitations(&buf, cites)
	assert.Equal(t, "\nSources (2):\n  [1] Bail Lilas, p. 3 (leases, 91%)\n  [2] KPI février (kpi, 50%)\n", buf.String())

	verbose = true
	t.Cleanup(func() { verbose = false })
	buf.Reset()
	writeCitations(&buf, cites[:1])
	assert.Contains(t, buf.String(), "      Loyer 950 euros\n")

	buf.Reset()
	writeCitations(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestWriteArtifacts(t *testing.T) {
	content, err := json.Marshal(models.TableContent{
		Columns: []string{"Bien", "Loyer"},
		Data:    [][]any{{"Lilas", 950}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	writeArtifacts(&buf, []models.Artifact{
		{ID: "a1", Type: models.ArtifactTable, Title: "Loyers", Content: content},
		{ID: "a2", Type: models.ArtifactChart},
		{ID: "a3", Type: models.ArtifactTable, Content: json.RawMessage(`"oops"`)},
	})

	out := buf.String()
	assert.Contains(t, out, "\nLoyers [table, a1]\n| Bien | Loyer |\n|---|---|\n| Lilas | 950 |\n")
	assert.Contains(t, out, "\nchart [chart, a2]\n")
	assert.Contains(t, out, "(table illisible:")
}

func TestWriteConversationGroups(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	convs := []models.Conversation{
		{ID: "c1", Title: "Baux", MessagesCount: 4, UpdatedAt: now.Add(-time.Hour)},
		{ID: "c2", Title: "KPI", MessagesCount: 2, UpdatedAt: now.Add(-24 * time.Hour)},
	}

	var buf bytes.Buffer
	writeConversationGroups(&buf, models.GroupByRecency(convs, now))
	assert.Equal(t, "Aujourd'hui:\n- c1  Baux (4 messages)\n\nHier:\n- c2  KPI (2 messages)\n", buf.String())
}

func TestWriteStats(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordStream(120*time.Millisecond, metrics.OutcomeOK, metrics.ChunkCounts{Content: 3, Citations: 2, Artifacts: 1})
	c.RecordOutcome(metrics.OpAPIRequest, 10*time.Millisecond, metrics.OutcomeFailed)

	var buf bytes.Buffer
	writeStats(&buf, c.Snapshot())
	out := buf.String()
	assert.Contains(t, out, "Uptime: ")
	assert.Contains(t, out, "chat stream:\n  Count:     1 (failed 0, cancelled 0)\n")
	assert.Contains(t, out, "  Chunks:    3 content, 2 citations, 1 artifacts\n")
	assert.Contains(t, out, "api request:\n  Count:     1 (failed 1, cancelled 0)\n")
	assert.NotContains(t, out, "chat send:")
}

func TestLastAssistant(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", Role: models.RoleAssistant, Content: "old"},
		{ID: "2", Role: models.RoleUser},
		{ID: "3", Role: models.RoleAssistant, Content: "new"},
	}
	m, ok := lastAssistant(msgs)
	require.True(t, ok)
	assert.Equal(t, "new", m.Content)

	_, ok = lastAssistant(msgs[1:2])
	assert.False(t, ok)
}
