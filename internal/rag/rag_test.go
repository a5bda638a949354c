package rag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/propchat/internal/models"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		strict  bool
		want    models.ChatMode
	}{
		{"disabled strict is inert", false, true, models.ModeNormal},
		{"enabled strict", true, true, models.ModeRAGOnly},
		{"enabled", true, false, models.ModeRAGEnhanced},
		{"disabled", false, false, models.ModeNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMode(tt.enabled, tt.strict))
			assert.Equal(t, tt.want, Options{Enabled: tt.enabled, Strict: tt.strict}.Mode())
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.False(t, o.Enabled)
	assert.False(t, o.Strict)
	assert.Equal(t, models.AllSources(), o.Sources())
}

func TestToggleSourceIsIdempotentToggle(t *testing.T) {
	o := DefaultOptions()
	o.Clear()
	assert.Empty(t, o.Sources())

	o.ToggleSource(models.SourceLeases)
	o.ToggleSource(models.SourceDocuments)
	assert.Equal(t, []models.SourceType{models.SourceDocuments, models.SourceLeases}, o.Sources())

	o.ToggleSource(models.SourceLeases)
	assert.Equal(t, []models.SourceType{models.SourceDocuments}, o.Sources())
	assert.False(t, o.Selected(models.SourceLeases))
}

func TestOptionsCopiesDoNotShareSelection(t *testing.T) {
	a := DefaultOptions()
	b := a
	b.ToggleSource(models.SourceKPI)

	assert.True(t, a.Selected(models.SourceKPI))
	assert.False(t, b.Selected(models.SourceKPI))
}

func TestResetRestoresDefaults(t *testing.T) {
	o := DefaultOptions()
	o.ToggleRAG()
	o.ToggleStrictMode()
	o.SetSources(models.SourceTenants)

	o.Reset()
	assert.Equal(t, DefaultOptions().Sources(), o.Sources())
	assert.False(t, o.Enabled)
	assert.False(t, o.Strict)
}

func TestBuildRequestStrictWithAllSources(t *testing.T) {
	o := DefaultOptions()
	o.ToggleRAG()
	o.ToggleStrictMode()

	req, err := BuildRequest("conv-1", "Quels baux expirent ?", o, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeRAGOnly, req.Mode)
	assert.Equal(t, models.AllSources(), req.SourceTypes)
}

func TestBuildRequestDefaults(t *testing.T) {
	o := DefaultOptions()
	o.ToggleRAG()
	o.SetSources(models.SourceLeases, models.SourceDocuments)

	req, err := BuildRequest("conv-1", "  Loyers impayés  ", o, Overrides{LeaseIDs: []string{"l-1"}})
	require.NoError(t, err)

	assert.Equal(t, "Loyers impayés", req.Message)
	assert.Equal(t, models.ModeRAGEnhanced, req.Mode)
	assert.Equal(t, []models.SourceType{models.SourceDocuments, models.SourceLeases}, req.SourceTypes)
	assert.Equal(t, []string{"l-1"}, req.LeaseIDs)
	assert.True(t, req.IncludeCitations)
	assert.Equal(t, DefaultMaxCitations, req.MaxCitations)
	assert.True(t, req.Stream)
}

func TestBuildRequestNormalModeSendsNoSources(t *testing.T) {
	o := DefaultOptions()
	o.ToggleStrictMode()

	req, err := BuildRequest("conv-1", "Bonjour", o, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeNormal, req.Mode)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source_types":[]`)
	assert.NotContains(t, string(raw), "document_ids")
}

func TestBuildRequestOverrides(t *testing.T) {
	no := false
	n := 12

	req, err := BuildRequest("conv-1", "Bonjour", DefaultOptions(), Overrides{
		IncludeCitations: &no,
		MaxCitations:     &n,
		Stream:           &no,
	})
	require.NoError(t, err)
	assert.False(t, req.IncludeCitations)
	assert.Equal(t, 12, req.MaxCitations)
	assert.False(t, req.Stream)
}

func TestBuildRequestValidation(t *testing.T) {
	zero := 0
	tooMany := 21

	tests := []struct {
		name   string
		convID string
		text   string
		ov     Overrides
	}{
		{"missing conversation", "", "Bonjour", Overrides{}},
		{"blank message", "conv-1", "   ", Overrides{}},
		{"max citations too low", "conv-1", "Bonjour", Overrides{MaxCitations: &zero}},
		{"max citations too high", "conv-1", "Bonjour", Overrides{MaxCitations: &tooMany}},
		{"empty id filter", "conv-1", "Bonjour", Overrides{DocumentIDs: []string{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRequest(tt.convID, tt.text, DefaultOptions(), tt.ov)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}
