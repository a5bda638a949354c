package models

// Citation points from assistant content back to a retrieved source chunk.
type Citation struct {
	ID             string         `json:"id"`
	ChunkID        string         `json:"chunk_id,omitempty"`
	DocumentID     string         `json:"document_id,omitempty"`
	DocumentTitle  string         `json:"document_title"`
	RelevanceScore float64        `json:"relevance_score"`
	PageNumber     *int           `json:"page_number,omitempty"`
	ContentPreview string         `json:"content_preview"`
	SourceType     SourceType     `json:"source_type"`
	URL            *string        `json:"url,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
