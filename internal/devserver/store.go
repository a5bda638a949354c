package devserver

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/propchat/internal/models"
)

var errNotFound = errors.New("not found")

// memStore keeps conversations, messages and processing runs in memory.
type memStore struct {
	mu         sync.Mutex
	now        func() time.Time
	convs      map[string]*models.Conversation
	messages   map[string][]models.Message
	processing map[string]*models.DocumentProcessing
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:        now,
		convs:      map[string]*models.Conversation{},
		messages:   map[string][]models.Message{},
		processing: map[string]*models.DocumentProcessing{},
	}
}

func (s *memStore) createConversation(title, orgID string) models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	c := &models.Conversation{
		ID:             uuid.NewString(),
		Title:          title,
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.convs[c.ID] = c
	return *c
}

// listConversations returns the organization's conversations, most recently
// updated first.
func (s *memStore) listConversations(orgID string) []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if orgID == "" || c.OrganizationID == orgID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *memStore) getConversation(id string) (models.ConversationWithMessages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return models.ConversationWithMessages{}, errNotFound
	}
	msgs := models.CloneMessages(s.messages[id])
	if msgs == nil {
		msgs = []models.Message{}
	}
	return models.ConversationWithMessages{Conversation: *c, Messages: msgs}, nil
}

func (s *memStore) renameConversation(id string, title *string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return models.Conversation{}, errNotFound
	}
	if title != nil {
		c.Title = *title
		c.UpdatedAt = s.now().UTC()
	}
	return *c, nil
}

func (s *memStore) deleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return errNotFound
	}
	delete(s.convs, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) deleteMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for convID, msgs := range s.messages {
		idx := slices.IndexFunc(msgs, func(m models.Message) bool { return m.ID == id })
		if idx < 0 {
			continue
		}
		s.messages[convID] = slices.Delete(slices.Clone(msgs), idx, idx+1)
		if c := s.convs[convID]; c != nil && c.MessagesCount > 0 {
			c.MessagesCount--
		}
		return nil
	}
	return errNotFound
}

// addMessage stores m with a fresh id and returns it.
func (s *memStore) addMessage(convID string, role models.Role, content string, cites []models.Citation, arts []models.Artifact) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return models.Message{}, errNotFound
	}

	now := s.now().UTC()
	m := models.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Citations:      cites,
		CreatedAt:      now,
	}
	if m.Citations == nil {
		m.Citations = []models.Citation{}
	}
	for _, a := range arts {
		m.Artifacts = append(m.Artifacts, a.WithMessageID(m.ID))
	}

	s.messages[convID] = append(s.messages[convID], m)
	c.MessagesCount++
	c.LastMessageAt = &now
	c.UpdatedAt = now
	return m.Clone(), nil
}

func (s *memStore) startProcessing(docID string) models.DocumentProcessing {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	p := &models.DocumentProcessing{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Status:     models.ProcessingPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.processing[p.ID] = p
	return *p
}

// advanceProcessing moves a run one stage forward per poll until completed.
func (s *memStore) advanceProcessing(id string) (models.DocumentProcessing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processing[id]
	if !ok {
		return models.DocumentProcessing{}, errNotFound
	}

	switch p.Status {
	case models.ProcessingPending:
		p.Status = models.ProcessingRunning
	case models.ProcessingRunning:
		p.Status = models.ProcessingCompleted
		p.OCRResult = &models.OCRResult{
			Text:       "BAIL D'HABITATION ... loyer mensuel de 950 euros ...",
			Confidence: 0.94,
			Language:   "fr",
			Provider:   "devserver",
			PageCount:  4,
		}
		p.ParsedLease = sampleLease()
	}
	p.UpdatedAt = s.now().UTC()
	return *p, nil
}

func sampleLease() *models.ParsedLease {
	rent, charges, deposit, surface := 950.0, 80.0, 950.0, 48.5
	start, end := "2025-09-01", "2028-08-31"
	kind := "apartment"
	return &models.ParsedLease{
		Parties: []models.ParsedParty{
			{Type: "landlord", Name: "SCI Les Tilleuls"},
			{Type: "tenant", Name: "Camille Martin"},
		},
		PropertyAddress: "12 rue des Lilas, 69003 Lyon",
		PropertyType:    &kind,
		SurfaceArea:     &surface,
		StartDate:       &start,
		EndDate:         &end,
		MonthlyRent:     &rent,
		Charges:         &charges,
		Deposit:         &deposit,
		KeyClauses:      []string{"Révision annuelle selon l'IRL", "Préavis de 3 mois"},
		Confidence:      0.87,
	}
}
