package models

import (
	"time"
)

// ProcessingStatus is the stage of a document processing run.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingRunning   ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
	ProcessingValidated ProcessingStatus = "validated"
)

// Terminal reports whether no further progress is expected.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case ProcessingCompleted, ProcessingFailed, ProcessingValidated:
		return true
	default:
		return false
	}
}

// Progress maps the status to a fraction for progress display.
func (s ProcessingStatus) Progress() float64 {
	switch s {
	case ProcessingPending:
		return 0.1
	case ProcessingRunning:
		return 0.5
	case ProcessingCompleted, ProcessingValidated, ProcessingFailed:
		return 1
	default:
		return 0
	}
}

// ProcessingRequest starts OCR and lease extraction for one document.
type ProcessingRequest struct {
	DocumentID     string `json:"document_id" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
	OCRProvider    string `json:"ocr_provider,omitempty"`
	ForceReprocess bool   `json:"force_reprocess"`
}

// OCRResult is the text recognized in a document.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Provider   string  `json:"provider,omitempty"`
	PageCount  int     `json:"page_count"`
	IsScanned  bool    `json:"is_scanned"`
}

// ParsedParty is a landlord or tenant found in a lease.
type ParsedParty struct {
	Type        string  `json:"type"` // "landlord" or "tenant"
	Name        string  `json:"name,omitempty"`
	Address     *string `json:"address,omitempty"`
	Email       *string `json:"email,omitempty"`
	CompanyName *string `json:"company_name,omitempty"`
}

// ParsedLease holds the lease fields extracted from a document.
type ParsedLease struct {
	Parties         []ParsedParty  `json:"parties"`
	PropertyAddress string         `json:"property_address,omitempty"`
	PropertyType    *string        `json:"property_type,omitempty"`
	SurfaceArea     *float64       `json:"surface_area,omitempty"`
	StartDate       *string        `json:"start_date,omitempty"`
	EndDate         *string        `json:"end_date,omitempty"`
	MonthlyRent     *float64       `json:"monthly_rent,omitempty"`
	Charges         *float64       `json:"charges,omitempty"`
	Deposit         *float64       `json:"deposit,omitempty"`
	IndexationRate  *float64       `json:"indexation_rate,omitempty"`
	KeyClauses      []string       `json:"key_clauses"`
	Confidence      float64        `json:"confidence"`
	RawData         map[string]any `json:"raw_data,omitempty"`
}

// DocumentProcessing is one processing run as reported by the backend.
type DocumentProcessing struct {
	ID           string           `json:"id"`
	DocumentID   string           `json:"document_id"`
	Status       ProcessingStatus `json:"status"`
	OCRResult    *OCRResult       `json:"ocr_result,omitempty"`
	ParsedLease  *ParsedLease     `json:"parsed_lease,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ValidatedAt  *time.Time       `json:"validated_at,omitempty"`
}
