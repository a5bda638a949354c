package models

import (
	"encoding/json"
	"fmt"
)

// ArtifactType is the kind of structured side-output attached to a response.
type ArtifactType string

const (
	ArtifactTable    ArtifactType = "table"
	ArtifactChart    ArtifactType = "chart"
	ArtifactDocument ArtifactType = "document"
	ArtifactExport   ArtifactType = "export"
	ArtifactCode     ArtifactType = "code"
)

// MetadataMessageID is the metadata key linking an artifact to its assistant message.
const MetadataMessageID = "messageId"

// Artifact is a table, chart, document or export produced alongside a response.
// Content is kept raw because its shape depends on Type.
type Artifact struct {
	ID       string          `json:"id"`
	Type     ArtifactType    `json:"type"`
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// TableContent is the content shape of a table artifact.
type TableContent struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// MessageID returns the id of the message this artifact belongs to, if tagged.
func (a Artifact) MessageID() string {
	if a.Metadata == nil {
		return ""
	}
	id, _ := a.Metadata[MetadataMessageID].(string)
	return id
}

// WithMessageID returns a copy of the artifact tagged with messageID.
func (a Artifact) WithMessageID(messageID string) Artifact {
	out := a.Clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[MetadataMessageID] = messageID
	return out
}

// Table decodes the content of a table artifact.
// Rows may be arrays or objects keyed by column name.
func (a Artifact) Table() (*TableContent, error) {
	if a.Type != ArtifactTable {
		return nil, fmt.Errorf("artifact %s is a %s, not a table", a.ID, a.Type)
	}

	var raw struct {
		Columns []string          `json:"columns"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(a.Content, &raw); err != nil {
		return nil, fmt.Errorf("decode table content: %w", err)
	}

	table := &TableContent{Columns: raw.Columns, Data: make([][]any, 0, len(raw.Data))}
	for i, rowRaw := range raw.Data {
		var cells []any
		if err := json.Unmarshal(rowRaw, &cells); err == nil {
			table.Data = append(table.Data, cells)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(rowRaw, &obj); err != nil {
			return nil, fmt.Errorf("decode table row %d: %w", i, err)
		}
		cells = make([]any, len(raw.Columns))
		for j, col := range raw.Columns {
			cells[j] = obj[col]
		}
		table.Data = append(table.Data, cells)
	}
	return table, nil
}

// Clone returns a deep copy of the artifact's content and metadata.
func (a Artifact) Clone() Artifact {
	out := a
	if a.Content != nil {
		out.Content = append(json.RawMessage(nil), a.Content...)
	}
	if a.Metadata != nil {
		out.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
