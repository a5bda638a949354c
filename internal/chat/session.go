package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/propchat/internal/metrics"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
	"github.com/raphaelgruber/propchat/internal/stream"
)

// Backend is everything a session needs from the chat service.
// *client.Client implements it.
type Backend interface {
	Persistence
	Stream(ctx context.Context, req rag.ChatRequest) (*stream.Stream, error)
	SendMessage(ctx context.Context, req rag.ChatRequest) (*models.ChatResponse, error)
}

// Phase is the state of the current turn.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSending   Phase = "sending"
	PhaseStreaming Phase = "streaming"
	PhaseSettled   Phase = "settled"
	PhaseErrored   Phase = "errored"
)

// Outcome is how a send ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// State is a copy of everything a UI needs to render the session.
type State struct {
	StoreState
	Phase      Phase
	Streaming  *InFlight
	Err        error
	Options    rag.Options
	Generation uint64
	CanRetry   bool
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Backend   Backend
	Store     *Store
	Options   rag.Options
	Overrides rag.Overrides
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Now       func() time.Time
}

// turn is one send in progress.
type turn struct {
	gen            uint64
	conversationID string
	clientKey      string
	cancel         context.CancelFunc
	asm            *assembler
	accepted       bool
}

// Session runs the message assembly state machine for one user session.
// One turn is active at a time: a new Send cancels the previous one.
// All methods are safe for concurrent use.
type Session struct {
	backend Backend
	store   *Store
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu        sync.Mutex
	opts      rag.Options
	overrides rag.Overrides
	gen       uint64
	phase     Phase
	current   *turn
	err       error
	lastText  string
	failedKey string
	failedIn  string
	observers []func(State)
}

// NewSession creates a session. A nil Store gets a fresh one.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewStore(cfg.Backend, logger)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	opts := cfg.Options
	if opts.IsZero() {
		opts = rag.DefaultOptions()
	}
	return &Session{
		backend:   cfg.Backend,
		store:     store,
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       now,
		opts:      opts.Clone(),
		overrides: cfg.Overrides,
		phase:     PhaseIdle,
	}
}

// Store returns the conversation store the session writes to.
func (s *Session) Store() *Store { return s.store }

// OnChange registers fn to receive a State after every transition.
// fn is called outside the session lock.
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		StoreState: s.store.Snapshot(),
		Phase:      s.phase,
		Err:        s.err,
		Options:    s.opts.Clone(),
		Generation: s.gen,
		CanRetry:   s.lastText != "" && s.phase == PhaseErrored,
	}
	if s.current != nil && s.current.asm != nil && s.phase == PhaseStreaming {
		st.Streaming = s.current.asm.snapshot()
	}
	return st
}

// notify publishes the state to the observers. Caller must hold s.mu; the
// returned function runs the callbacks and must be called after unlocking.
func (s *Session) notifyLocked() func() {
	if len(s.observers) == 0 {
		return func() {}
	}
	st := s.stateLocked()
	observers := slices.Clone(s.observers)
	return func() {
		for _, fn := range observers {
			fn(st)
		}
	}
}

// UpdateOptions changes the retrieval options used by the next send.
func (s *Session) UpdateOptions(fn func(*rag.Options)) {
	s.mu.Lock()
	opts := s.opts.Clone()
	fn(&opts)
	s.opts = opts
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()
}

// Options returns a copy of the current retrieval options.
func (s *Session) Options() rag.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Clone()
}

// Acknowledge returns a settled or errored session to idle.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	if s.phase != PhaseSettled && s.phase != PhaseErrored {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseIdle
	s.err = nil
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()
}

// Stop aborts the current turn. Partial content is discarded and the
// session goes back to idle without an error. A turn stopped before the
// server accepted it also loses its user message.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.abortLocked()
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()
}

// abortLocked cancels the current turn and bumps the generation so nothing
// it still produces is applied.
func (s *Session) abortLocked() {
	t := s.current
	if t == nil {
		return
	}
	t.cancel()
	if !t.accepted && t.clientKey != "" {
		s.store.removeMessage(t.conversationID, t.clientKey)
	}
	s.gen++
	s.current = nil
	s.phase = PhaseIdle
	s.err = nil
	s.logger.Debug("chat turn aborted", "conversation_id", t.conversationID, "generation", t.gen)
}

// Send submits text to the active conversation, creating one first when
// none is active, and streams the reply. It blocks until the turn ends.
// err is non-nil only for OutcomeFailed.
func (s *Session) Send(ctx context.Context, text string) (Outcome, error) {
	return s.send(ctx, text, true)
}

// SendSync is Send over the non-streaming endpoint.
func (s *Session) SendSync(ctx context.Context, text string) (Outcome, error) {
	return s.send(ctx, text, false)
}

// Retry drops the last failed user message, if still shown, and sends its
// text again with the current options.
func (s *Session) Retry(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	text := s.lastText
	key, convID := s.failedKey, s.failedIn
	s.failedKey, s.failedIn = "", ""
	s.mu.Unlock()

	if text == "" {
		return OutcomeFailed, ErrNothingToRetry
	}
	if key != "" {
		s.store.removeMessage(convID, key)
	}
	return s.Send(ctx, text)
}

func (s *Session) send(ctx context.Context, text string, streaming bool) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeFailed, ErrEmptyMessage
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.abortLocked()
	s.lastText = text
	s.failedKey, s.failedIn = "", ""
	s.phase = PhaseSending
	s.gen++
	t := &turn{gen: s.gen, cancel: cancel}
	s.current = t
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()

	convID := s.store.ActiveID()
	if convID == "" {
		conv, err := s.store.CreateNewConversation(turnCtx, models.DeriveTitle(text))
		if err != nil {
			return s.failBeforeTurn(t, err)
		}
		convID = conv.ID
	}

	s.mu.Lock()
	if t.gen != s.gen {
		s.mu.Unlock()
		return OutcomeCancelled, nil
	}
	override := s.overrides
	if !streaming {
		off := false
		override.Stream = &off
	}
	req, err := rag.BuildRequest(convID, text, s.opts, override)
	if err != nil {
		s.mu.Unlock()
		return s.failBeforeTurn(t, err)
	}

	key := uuid.NewString()
	t.conversationID = convID
	t.clientKey = key
	t.asm = newAssembler(uuid.NewString(), s.logger)
	s.store.appendMessage(convID, models.Message{
		ID:             key,
		ConversationID: convID,
		Role:           models.RoleUser,
		Content:        text,
		Citations:      []models.Citation{},
		CreatedAt:      s.now(),
		Pending:        true,
		ClientKey:      key,
	})
	publish = s.notifyLocked()
	s.mu.Unlock()
	publish()

	if streaming {
		return s.runStream(turnCtx, t, req)
	}
	return s.runSync(turnCtx, t, req)
}

// failBeforeTurn handles errors that happen before a user message exists.
func (s *Session) failBeforeTurn(t *turn, err error) (Outcome, error) {
	s.mu.Lock()
	if t.gen != s.gen {
		s.mu.Unlock()
		return OutcomeCancelled, nil
	}
	s.current = nil
	if errors.Is(err, context.Canceled) {
		s.phase = PhaseIdle
		publish := s.notifyLocked()
		s.mu.Unlock()
		publish()
		return OutcomeCancelled, nil
	}
	s.phase = PhaseErrored
	s.err = err
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()
	return OutcomeFailed, err
}

func (s *Session) runStream(ctx context.Context, t *turn, req rag.ChatRequest) (Outcome, error) {
	start := time.Now()

	st, err := s.backend.Stream(ctx, req)
	if err != nil {
		return s.connectFailed(ctx, t, start, err)
	}
	defer st.Close()

	for c := range st.Chunks() {
		s.mu.Lock()
		if t.gen != s.gen {
			s.mu.Unlock()
			s.logger.Debug("dropping chunk from superseded turn", "kind", c.Kind(), "generation", t.gen)
			break
		}
		if !t.accepted {
			t.accepted = true
			s.phase = PhaseStreaming
			s.store.promoteMessage(t.conversationID, t.clientKey, "")
			s.metrics.RecordTiming(metrics.OpFirstChunk, time.Since(start))
		}
		t.asm.apply(c)

		switch c := c.(type) {
		case stream.DoneChunk:
			msg := t.asm.message(t.conversationID, c, s.now())
			if c.UserMessageID != "" {
				s.store.promoteMessage(t.conversationID, t.clientKey, c.UserMessageID)
			}
			s.store.appendMessage(t.conversationID, msg)
			s.current = nil
			s.phase = PhaseSettled
			s.err = nil
			publish := s.notifyLocked()
			s.mu.Unlock()
			publish()

			s.metrics.RecordStream(time.Since(start), metrics.OutcomeOK, t.asm.counts)
			s.logger.Info("chat response settled", "conversation_id", t.conversationID, "message_id", msg.ID,
				"citations", len(msg.Citations), "artifacts", len(msg.Artifacts), "duration_ms", time.Since(start).Milliseconds())
			return OutcomeSuccess, nil

		case stream.ErrorChunk:
			return s.midStreamFailed(t, start, &StreamError{Message: c.Error(), Err: c.Err})
		}

		publish := s.notifyLocked()
		s.mu.Unlock()
		publish()
	}

	s.mu.Lock()
	if t.gen != s.gen || ctx.Err() != nil {
		// Stopped or superseded. abortLocked already reset the state; a
		// cancelled parent context has not, so do it here.
		if t.gen == s.gen {
			s.abortLocked()
		}
		publish := s.notifyLocked()
		s.mu.Unlock()
		publish()
		s.metrics.RecordStream(time.Since(start), metrics.OutcomeCancelled, t.asm.counts)
		return OutcomeCancelled, nil
	}
	return s.midStreamFailed(t, start, &StreamError{Message: ErrStreamEnded.Error(), Err: ErrStreamEnded})
}

// midStreamFailed ends a turn the server accepted. The user message stays
// so it can be retried. Caller must hold s.mu; it is released.
func (s *Session) midStreamFailed(t *turn, start time.Time, err *StreamError) (Outcome, error) {
	if !t.accepted {
		s.store.removeMessage(t.conversationID, t.clientKey)
	} else {
		s.failedKey, s.failedIn = t.clientKey, t.conversationID
	}
	s.current = nil
	s.phase = PhaseErrored
	s.err = err
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()

	s.metrics.RecordStream(time.Since(start), metrics.OutcomeFailed, t.asm.counts)
	s.logger.Warn("chat stream failed", "conversation_id", t.conversationID, "error", err.Message)
	return OutcomeFailed, err
}

// connectFailed ends a turn the server never accepted: the user message is removed.
func (s *Session) connectFailed(ctx context.Context, t *turn, start time.Time, err error) (Outcome, error) {
	s.mu.Lock()
	if t.gen != s.gen || ctx.Err() != nil {
		if t.gen == s.gen {
			s.abortLocked()
		}
		publish := s.notifyLocked()
		s.mu.Unlock()
		publish()
		s.metrics.RecordStream(time.Since(start), metrics.OutcomeCancelled, t.asm.counts)
		return OutcomeCancelled, nil
	}

	s.store.removeMessage(t.conversationID, t.clientKey)
	s.current = nil
	s.phase = PhaseErrored
	s.err = err
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()

	s.metrics.RecordStream(time.Since(start), metrics.OutcomeFailed, t.asm.counts)
	s.logger.Warn("chat request failed", "conversation_id", t.conversationID, "error", err)
	return OutcomeFailed, err
}

func (s *Session) runSync(ctx context.Context, t *turn, req rag.ChatRequest) (Outcome, error) {
	start := time.Now()

	resp, err := s.backend.SendMessage(ctx, req)
	if err != nil {
		return s.connectFailed(ctx, t, start, err)
	}

	s.mu.Lock()
	if t.gen != s.gen {
		s.mu.Unlock()
		return OutcomeCancelled, nil
	}
	t.accepted = true
	s.store.promoteMessage(t.conversationID, t.clientKey, "")

	msg := resp.Message.Clone()
	if msg.ID == "" {
		msg.ID = t.asm.key
	}
	msg.ConversationID = t.conversationID
	msg.Role = models.RoleAssistant
	if len(msg.Citations) == 0 {
		msg.Citations = append([]models.Citation{}, resp.Citations...)
	}
	for _, a := range resp.Artifacts {
		msg.Artifacts = append(msg.Artifacts, a.WithMessageID(msg.ID))
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.store.appendMessage(t.conversationID, msg)
	s.current = nil
	s.phase = PhaseSettled
	s.err = nil
	publish := s.notifyLocked()
	s.mu.Unlock()
	publish()

	s.metrics.RecordTiming(metrics.OpChatSend, time.Since(start))
	return OutcomeSuccess, nil
}

// Close cancels any turn in progress and clears the store.
func (s *Session) Close() {
	s.mu.Lock()
	s.abortLocked()
	s.lastText = ""
	s.opts = rag.DefaultOptions()
	s.mu.Unlock()
	s.store.Reset()
}

// String describes the session for logs.
func (s *Session) String() string {
	st := s.State()
	return fmt.Sprintf("session(phase=%s, conversation=%s, messages=%d)", st.Phase, activeID(st.Active), len(st.Messages))
}

func activeID(c *models.Conversation) string {
	if c == nil {
		return "-"
	}
	return c.ID
}
