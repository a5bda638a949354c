package rag

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/raphaelgruber/propchat/internal/models"
)

const (
	// DefaultMaxCitations is sent when no override is given.
	DefaultMaxCitations = 5
	MinCitations        = 1
	MaxCitations        = 20
)

// ChatRequest is the body of POST /chat/send and POST /chat/stream.
type ChatRequest struct {
	ConversationID   string              `json:"conversation_id" validate:"required"`
	Message          string              `json:"message" validate:"required"`
	Mode             models.ChatMode     `json:"mode" validate:"required,oneof=normal rag_enhanced rag_only"`
	SourceTypes      []models.SourceType `json:"source_types"`
	DocumentIDs      []string            `json:"document_ids,omitempty" validate:"omitempty,dive,required"`
	LeaseIDs         []string            `json:"lease_ids,omitempty" validate:"omitempty,dive,required"`
	PropertyIDs      []string            `json:"property_ids,omitempty" validate:"omitempty,dive,required"`
	IncludeCitations bool                `json:"include_citations"`
	MaxCitations     int                 `json:"max_citations" validate:"min=1,max=20"`
	Stream           bool                `json:"stream"`
}

// Overrides are explicit per-request settings layered over Options.
// Nil pointers keep the defaults.
type Overrides struct {
	DocumentIDs      []string
	LeaseIDs         []string
	PropertyIDs      []string
	IncludeCitations *bool
	MaxCitations     *int
	Stream           *bool
}

// ErrInvalidRequest wraps every validation failure from BuildRequest.
var ErrInvalidRequest = errors.New("invalid chat request")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator used for chat requests.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// BuildRequest combines the message text with the retrieval options and
// overrides into a validated ChatRequest. It has no side effects.
func BuildRequest(conversationID, text string, opts Options, ov Overrides) (ChatRequest, error) {
	mode := opts.Mode()

	sources := []models.SourceType{}
	if mode != models.ModeNormal {
		sources = opts.Sources()
	}

	req := ChatRequest{
		ConversationID:   conversationID,
		Message:          strings.TrimSpace(text),
		Mode:             mode,
		SourceTypes:      sources,
		DocumentIDs:      cloneIDs(ov.DocumentIDs),
		LeaseIDs:         cloneIDs(ov.LeaseIDs),
		PropertyIDs:      cloneIDs(ov.PropertyIDs),
		IncludeCitations: true,
		MaxCitations:     DefaultMaxCitations,
		Stream:           true,
	}
	if ov.IncludeCitations != nil {
		req.IncludeCitations = *ov.IncludeCitations
	}
	if ov.MaxCitations != nil {
		req.MaxCitations = *ov.MaxCitations
	}
	if ov.Stream != nil {
		req.Stream = *ov.Stream
	}

	if err := req.Validate(); err != nil {
		return ChatRequest{}, err
	}
	return req, nil
}

// Validate checks the request against its struct tags.
func (r ChatRequest) Validate() error {
	if err := Validator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed on %q", ErrInvalidRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func cloneIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}
