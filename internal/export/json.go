package export

import (
	"encoding/json"
	"fmt"

	"github.com/raphaelgruber/propchat/internal/models"
)

// JSONExporter writes the conversation exactly as the API returns it.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter { return &JSONExporter{} }

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string { return ".json" }

// Export renders conv as indented JSON.
func (e *JSONExporter) Export(conv *models.ConversationWithMessages) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	out := *conv
	out.Messages = make([]models.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if !m.Pending {
			out.Messages = append(out.Messages, m)
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
