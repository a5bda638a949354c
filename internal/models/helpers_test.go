package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "hello", "hello"},
		{"uppercase", "Hello World", "hello-world"},
		{"underscores", "my_doc_name", "my-doc-name"},
		{"special chars stripped", "Hello, World!", "hello-world"},
		{"numbers preserved", "bail-v2.1", "bail-v21"},
		{"empty string", "", ""},
		{"only special chars", "!@#$%", ""},
		{"unicode stripped", "café résumé", "caf-rsum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short message kept", "Quels baux expirent ?", "Quels baux expirent ?"},
		{"whitespace collapsed", "  Loyers   impayés\n ce mois ", "Loyers impayés ce mois"},
		{"empty falls back", "   ", DefaultConversationTitle},
		{
			"long message cut at 50 runes",
			"Génère un tableau récapitulatif de tous les loyers par bien et par locataire",
			"Génère un tableau récapitulatif de tous les loyers...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.in))
		})
	}
}

func TestRecencyLabel(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"same day", now.Add(-2 * time.Hour), "Aujourd'hui"},
		{"yesterday late", time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC), "Hier"},
		{"three days", time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC), "Il y a 3 jours"},
		{"older than a week", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), "01/02/2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecencyLabel(tt.at, now))
		})
	}
}

func TestGroupByRecency(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	convs := []Conversation{
		{ID: "old", UpdatedAt: now.AddDate(0, 0, -30)},
		{ID: "today-1", UpdatedAt: now.Add(-time.Hour)},
		{ID: "yesterday", UpdatedAt: now.AddDate(0, 0, -1)},
		{ID: "today-2", UpdatedAt: now.Add(-10 * time.Minute)},
	}

	groups := GroupByRecency(convs, now)
	require.Len(t, groups, 3)

	assert.Equal(t, "Aujourd'hui", groups[0].Label)
	require.Len(t, groups[0].Conversations, 2)
	assert.Equal(t, "today-2", groups[0].Conversations[0].ID)
	assert.Equal(t, "today-1", groups[0].Conversations[1].ID)
	assert.Equal(t, "Hier", groups[1].Label)
	assert.Equal(t, "old", groups[2].Conversations[0].ID)

	// input order untouched
	assert.Equal(t, "old", convs[0].ID)
}

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceType
		wantErr bool
	}{
		{"documents", SourceDocuments, false},
		{"Lease", SourceLeases, false},
		{"kpis", SourceKPI, false},
		{"conversation", SourceConversations, false},
		{"invoices", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSourceType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceTypeUnmarshalNormalizes(t *testing.T) {
	var c Citation
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","document_title":"Bail","source_type":"lease"}`), &c))
	assert.Equal(t, SourceLeases, c.SourceType)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"c2","source_type":"jurisprudence"}`), &c))
	assert.Equal(t, SourceType("jurisprudence"), c.SourceType)
}

func TestArtifactTable(t *testing.T) {
	t.Run("array rows", func(t *testing.T) {
		a := Artifact{
			ID:      "a1",
			Type:    ArtifactTable,
			Content: json.RawMessage(`{"columns":["Bien","Loyer"],"data":[["Lyon 3",1200],["Paris 11",1850.5]]}`),
		}
		table, err := a.Table()
		require.NoError(t, err)
		assert.Equal(t, []string{"Bien", "Loyer"}, table.Columns)
		require.Len(t, table.Data, 2)
		assert.Equal(t, "Paris 11", table.Data[1][0])
		assert.Equal(t, 1850.5, table.Data[1][1])
	})

	t.Run("object rows follow column order", func(t *testing.T) {
		a := Artifact{
			ID:      "a2",
			Type:    ArtifactTable,
			Content: json.RawMessage(`{"columns":["Bien","Loyer"],"data":[{"Loyer":900,"Bien":"Nantes"}]}`),
		}
		table, err := a.Table()
		require.NoError(t, err)
		assert.Equal(t, []any{"Nantes", float64(900)}, table.Data[0])
	})

	t.Run("not a table", func(t *testing.T) {
		_, err := Artifact{ID: "a3", Type: ArtifactChart}.Table()
		assert.Error(t, err)
	})
}

func TestArtifactWithMessageIDDoesNotAlias(t *testing.T) {
	orig := Artifact{ID: "a1", Metadata: map[string]any{MetadataMessageID: "tmp-1"}}
	tagged := orig.WithMessageID("msg-1")

	assert.Equal(t, "msg-1", tagged.MessageID())
	assert.Equal(t, "tmp-1", orig.MessageID())
}
