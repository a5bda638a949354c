package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s *Stream) []Chunk {
	t.Helper()
	var out []Chunk
	for c := range s.Chunks() {
		out = append(out, c)
	}
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Chunk
		wantErr error
	}{
		{"content", `{"event":"chunk","content":"Bon"}`, ContentChunk{Text: "Bon"}, nil},
		{"legacy type key", `{"type":"content","content":"jour"}`, ContentChunk{Text: "jour"}, nil},
		{"done", `{"event":"done","message_id":"m2","user_message_id":"m1"}`, DoneChunk{MessageID: "m2", UserMessageID: "m1"}, nil},
		{"done flag only", `{"done":true}`, DoneChunk{}, nil},
		{"error", `{"event":"error","error":"quota exceeded"}`, ErrorChunk{Message: "quota exceeded"}, nil},
		{"error without text", `{"event":"error"}`, ErrorChunk{Message: "unknown stream error"}, nil},
		{"unknown event", `{"event":"thinking"}`, nil, ErrUnknownEvent},
		{"citation missing payload", `{"event":"citation"}`, nil, ErrIncompleteEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCitationAndArtifact(t *testing.T) {
	c, err := Decode([]byte(`{"event":"citation","citation":{"id":"c1","document_title":"Bail Dupont","relevance_score":0.92,"source_type":"lease"}}`))
	require.NoError(t, err)
	cit, ok := c.(CitationChunk)
	require.True(t, ok)
	assert.Equal(t, "Bail Dupont", cit.Citation.DocumentTitle)
	assert.Equal(t, "leases", string(cit.Citation.SourceType))

	a, err := Decode([]byte(`{"event":"artifact","artifact":{"id":"a1","type":"table","title":"Loyers","content":{"columns":["Bien"],"data":[["Lyon"]]}}}`))
	require.NoError(t, err)
	art, ok := a.(ArtifactChunk)
	require.True(t, ok)
	assert.Equal(t, "Loyers", art.Artifact.Title)
}

func TestChunksContentThenDone(t *testing.T) {
	srv := sseServer(t,
		"data: {\"event\":\"chunk\",\"content\":\"Bon\"}\n\n",
		"data: {\"event\":\"chunk\",\"content\":\"jour\"}\n\n",
		"data: {\"event\":\"done\"}\n\n",
	)

	s, err := Open(context.Background(), srv.Client(), srv.URL, map[string]string{"message": "hi"})
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 3)
	assert.Equal(t, ContentChunk{Text: "Bon"}, chunks[0])
	assert.Equal(t, ContentChunk{Text: "jour"}, chunks[1])
	assert.Equal(t, DoneChunk{}, chunks[2])
	assert.NoError(t, s.Err())
}

func TestChunksSkipsMalformedAndNonDataLines(t *testing.T) {
	srv := sseServer(t,
		": keep-alive\n",
		"event: message\n",
		"data: {not json}\n\n",
		"data:{\"event\":\"chunk\",\"content\":\"ok\"}\r\n\r\n",
		"data: {\"event\":\"mystery\"}\n\n",
		"data: [DONE]\n\n",
	)

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 2)
	assert.Equal(t, ContentChunk{Text: "ok"}, chunks[0])
	assert.Equal(t, DoneChunk{}, chunks[1])
}

func TestChunksFrameSplitAcrossWrites(t *testing.T) {
	srv := sseServer(t,
		"data: {\"event\":\"chu",
		"nk\",\"content\":\"Bonjour\"}\n",
		"\ndata: {\"event\":\"done\"}\n\n",
	)

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 2)
	assert.Equal(t, ContentChunk{Text: "Bonjour"}, chunks[0])
}

func TestChunksErrorEventTerminates(t *testing.T) {
	srv := sseServer(t,
		"data: {\"event\":\"chunk\",\"content\":\"partial\"}\n\n",
		"data: {\"event\":\"error\",\"error\":\"LLM unavailable\"}\n\n",
		"data: {\"event\":\"chunk\",\"content\":\"ignored\"}\n\n",
	)

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 2)
	assert.Equal(t, ErrorChunk{Message: "LLM unavailable"}, chunks[1])
	assert.EqualError(t, s.Err(), "LLM unavailable")
}

func TestChunksEOFWithoutTerminalBecomesError(t *testing.T) {
	srv := sseServer(t, "data: {\"event\":\"chunk\",\"content\":\"Bon\"}\n\n")

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 2)
	last, ok := chunks[1].(ErrorChunk)
	require.True(t, ok)
	assert.ErrorIs(t, last, ErrUnexpectedEnd)
}

func TestChunksOversizeFrame(t *testing.T) {
	big := strings.Repeat("a", MaxFrameSize+10)
	srv := sseServer(t, "data: {\"event\":\"chunk\",\"content\":\""+big+"\"}\n\n")

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 1)
	assert.Equal(t, KindError, chunks[0].Kind())
}

func TestChunksSinglePass(t *testing.T) {
	srv := sseServer(t, "data: {\"event\":\"done\"}\n\n")

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	assert.Len(t, collect(t, s), 1)
	assert.Empty(t, collect(t, s))
}

func TestOpenNon2xxIsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Not authenticated"}`)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)

	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, "Not authenticated", ce.Detail)
}

func TestOpenUnreachableIsConnectError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Open(context.Background(), http.DefaultClient, url, nil)
	assert.ErrorIs(t, err, ErrConnect)
}

func TestCancelEndsSilently(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"event\":\"chunk\",\"content\":\"Bon\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Open(ctx, srv.Client(), srv.URL, nil)
	require.NoError(t, err)

	var chunks []Chunk
	for c := range s.Chunks() {
		chunks = append(chunks, c)
		cancel()
	}

	require.Len(t, chunks, 1)
	assert.Equal(t, ContentChunk{Text: "Bon"}, chunks[0])
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	s, err := Open(context.Background(), srv.Client(), srv.URL, nil, WithIdleTimeout(50*time.Millisecond))
	require.NoError(t, err)

	chunks := collect(t, s)
	require.Len(t, chunks, 1)
	assert.ErrorIs(t, chunks[0].(ErrorChunk), ErrIdleTimeout)
}

func TestFromReaderCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := FromReader(ctx, pr)

	go func() {
		fmt.Fprint(pw, "data: {\"event\":\"chunk\",\"content\":\"a\"}\n\n")
	}()

	var chunks []Chunk
	for c := range s.Chunks() {
		chunks = append(chunks, c)
		cancel()
	}

	assert.Equal(t, []Chunk{ContentChunk{Text: "a"}}, chunks)
	assert.ErrorIs(t, s.Err(), context.Canceled)
}
