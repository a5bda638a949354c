package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

const notFoundDetail = "Conversation non trouvée"

// event is one SSE frame payload.
type event struct {
	Event         string           `json:"event"`
	Content       string           `json:"content,omitempty"`
	Citation      *models.Citation `json:"citation,omitempty"`
	Artifact      *models.Artifact `json:"artifact,omitempty"`
	Error         string           `json:"error,omitempty"`
	Done          bool             `json:"done,omitempty"`
	MessageID     string           `json:"message_id,omitempty"`
	UserMessageID string           `json:"user_message_id,omitempty"`
}

type createConversationRequest struct {
	Title          string `json:"title" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
}

type updateConversationRequest struct {
	Title *string `json:"title" validate:"omitempty,min=1"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	conv := s.store.createConversation(req.Title, req.OrganizationID)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all := s.store.listConversations(q.Get("organization_id"))

	page := positiveInt(q.Get("page"), 1)
	size := positiveInt(q.Get("page_size"), 50)
	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": all[start:end],
		"total":         len(all),
		"page":          page,
		"page_size":     size,
		"has_more":      end < len(all),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.getConversation(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req updateConversationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	conv, err := s.store.renameConversation(chi.URLParam(r, "conversationID"), req.Title)
	if err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.deleteConversation(chi.URLParam(r, "conversationID")); err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.store.deleteMessage(chi.URLParam(r, "messageID")); err != nil {
		writeDetail(w, http.StatusNotFound, "Message non trouvé")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req rag.ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := s.store.addMessage(req.ConversationID, models.RoleUser, req.Message, nil, nil); err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}

	answer := compose(req)
	if answer.fail {
		writeDetail(w, http.StatusInternalServerError, "Le service de génération est indisponible")
		return
	}
	msg, err := s.store.addMessage(req.ConversationID, models.RoleAssistant, answer.content(), answer.citations, answer.artifacts)
	if err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{
		Message:          msg,
		Citations:        msg.Citations,
		Artifacts:        msg.Artifacts,
		ProcessingTimeMs: int(time.Since(start).Milliseconds()),
	})
}

// handleStream answers with SSE frames. Errors found before the first byte
// are plain JSON responses; later ones are error events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req rag.ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	userMsg, err := s.store.addMessage(req.ConversationID, models.RoleUser, req.Message, nil, nil)
	if err != nil {
		writeDetail(w, http.StatusNotFound, notFoundDetail)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeDetail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With("conversation_id", req.ConversationID, "mode", req.Mode)
	send := func(ev event) bool {
		if s.chunkDelay > 0 {
			select {
			case <-r.Context().Done():
				return false
			case <-time.After(s.chunkDelay):
			}
		}
		if r.Context().Err() != nil {
			return false
		}
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to encode event", "event", ev.Event, "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	answer := compose(req)
	for i, part := range answer.parts {
		if !send(event{Event: "chunk", Content: part}) {
			logger.Info("client disconnected")
			return
		}
		if answer.fail && i == 0 {
			send(event{Event: "error", Error: "Le service de génération est indisponible"})
			logger.Warn("stream failed on request")
			return
		}
	}
	for i := range answer.citations {
		if !send(event{Event: "citation", Citation: &answer.citations[i]}) {
			return
		}
	}
	for i := range answer.artifacts {
		if !send(event{Event: "artifact", Artifact: &answer.artifacts[i]}) {
			return
		}
	}

	msg, err := s.store.addMessage(req.ConversationID, models.RoleAssistant, answer.content(), answer.citations, answer.artifacts)
	if err != nil {
		send(event{Event: "error", Error: notFoundDetail})
		return
	}
	send(event{Event: "done", Done: true, MessageID: msg.ID, UserMessageID: userMsg.ID})
	logger.Debug("stream finished", "chunks", len(answer.parts), "citations", len(answer.citations))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	list := models.DefaultSuggestions()
	if n := positiveInt(r.URL.Query().Get("count"), 0); n > 0 && n < len(list) {
		list = list[:n]
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusAccepted, s.store.startProcessing(req.DocumentID))
}

func (s *Server) handleGetProcessing(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.advanceProcessing(chi.URLParam(r, "processingID"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Traitement non trouvé")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes a 422 in the FastAPI detail shape and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []fieldError{{Loc: []string{"body"}, Msg: "invalid JSON: " + err.Error(), Type: "json_invalid"}},
		})
		return false
	}
	err := rag.Validator().Struct(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	detail := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		detail = append(detail, fieldError{
			Loc:  []string{"body", jsonName(fe)},
			Msg:  fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()),
			Type: fe.Tag(),
		})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": detail})
	return false
}

type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// jsonName converts a Go field name like ConversationID to conversation_id.
func jsonName(fe validator.FieldError) string {
	var b strings.Builder
	name := fe.Field()
	for i, r := range name {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
