package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/propchat/internal/client"
	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
	"github.com/raphaelgruber/propchat/internal/stream"
)

type streamFunc func(ctx context.Context) (*stream.Stream, error)

// fakeBackend is an in-memory Backend with scripted streams.
type fakeBackend struct {
	mu       sync.Mutex
	convs    map[string]*models.ConversationWithMessages
	nextID   int
	calls    []string
	requests []rag.ChatRequest
	streams  []streamFunc
	syncResp *models.ChatResponse
	getErr   error
	sendErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{convs: map[string]*models.ConversationWithMessages{}}
}

func (f *fakeBackend) script(fns ...streamFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, fns...)
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) sent() []rag.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rag.ChatRequest(nil), f.requests...)
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	out := make([]models.Conversation, 0, len(f.convs))
	for i := 1; i <= f.nextID; i++ {
		if c, ok := f.convs[fmt.Sprintf("conv-%d", i)]; ok {
			out = append(out, c.Conversation)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) (*models.ConversationWithMessages, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Detail: "Conversation non trouvée"}
	}
	out := *c
	out.Messages = models.CloneMessages(c.Messages)
	return &out, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	f.nextID++
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	c := models.Conversation{ID: fmt.Sprintf("conv-%d", f.nextID), Title: title, CreatedAt: now, UpdatedAt: now}
	f.convs[c.ID] = &models.ConversationWithMessages{Conversation: c}
	return &c, nil
}

func (f *fakeBackend) UpdateConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update")
	c, ok := f.convs[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404}
	}
	c.Title = title
	out := c.Conversation
	return &out, nil
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	delete(f.convs, id)
	return nil
}

func (f *fakeBackend) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete-message")
	return nil
}

func (f *fakeBackend) Stream(ctx context.Context, req rag.ChatRequest) (*stream.Stream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "stream")
	f.requests = append(f.requests, req)
	var fn streamFunc
	if len(f.streams) > 0 {
		fn = f.streams[0]
		f.streams = f.streams[1:]
	}
	f.mu.Unlock()

	if fn == nil {
		fn = frames(`{"event":"done"}`)
	}
	return fn(ctx)
}

func (f *fakeBackend) SendMessage(ctx context.Context, req rag.ChatRequest) (*models.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "send")
	f.requests = append(f.requests, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.syncResp, nil
}

// frames serves the given payloads as data lines.
func frames(payloads ...string) streamFunc {
	return func(ctx context.Context) (*stream.Stream, error) {
		var b strings.Builder
		for _, p := range payloads {
			b.WriteString("data: " + p + "\n\n")
		}
		return stream.FromReader(ctx, io.NopCloser(strings.NewReader(b.String()))), nil
	}
}

// piped serves whatever the test writes to the returned writer.
func piped() (streamFunc, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return func(ctx context.Context) (*stream.Stream, error) {
		return stream.FromReader(ctx, pr), nil
	}, pw
}

func failing(err error) streamFunc {
	return func(ctx context.Context) (*stream.Stream, error) { return nil, err }
}

// blockedConnect waits until the request is cancelled, like a hanging dial.
func blockedConnect(entered chan<- struct{}) streamFunc {
	return func(ctx context.Context) (*stream.Stream, error) {
		close(entered)
		<-ctx.Done()
		return nil, &stream.ConnectError{Err: ctx.Err()}
	}
}

func writeFrame(w io.Writer, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
