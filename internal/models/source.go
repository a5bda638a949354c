package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceType is a category of organizational data eligible for retrieval.
type SourceType string

const (
	SourceDocuments     SourceType = "documents"
	SourceLeases        SourceType = "leases"
	SourceProperties    SourceType = "properties"
	SourceTenants       SourceType = "tenants"
	SourceKPI           SourceType = "kpi"
	SourceOwners        SourceType = "owners"
	SourceConversations SourceType = "conversations"
)

// allSources is the canonical order used when serializing source selections.
var allSources = []SourceType{
	SourceDocuments,
	SourceLeases,
	SourceProperties,
	SourceTenants,
	SourceKPI,
	SourceOwners,
	SourceConversations,
}

// AllSources returns every known source type in canonical order.
func AllSources() []SourceType {
	return append([]SourceType(nil), allSources...)
}

// ParseSourceType accepts the canonical plural names as well as the singular
// forms and "kpis" used by some backend payloads.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "documents", "document":
		return SourceDocuments, nil
	case "leases", "lease":
		return SourceLeases, nil
	case "properties", "property":
		return SourceProperties, nil
	case "tenants", "tenant":
		return SourceTenants, nil
	case "kpi", "kpis":
		return SourceKPI, nil
	case "owners", "owner":
		return SourceOwners, nil
	case "conversations", "conversation":
		return SourceConversations, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// UnmarshalJSON normalizes known aliases and keeps unknown values verbatim.
func (s *SourceType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if t, err := ParseSourceType(raw); err == nil {
		*s = t
		return nil
	}
	*s = SourceType(raw)
	return nil
}

// ChatMode selects how the backend answers a message.
type ChatMode string

const (
	ModeNormal      ChatMode = "normal"
	ModeRAGEnhanced ChatMode = "rag_enhanced"
	ModeRAGOnly     ChatMode = "rag_only"
)
