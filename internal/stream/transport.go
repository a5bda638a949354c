package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxFrameSize bounds a single SSE line.
const MaxFrameSize = 1 << 20

var (
	// ErrConnect marks a failure to open the stream: the request could not be
	// sent or the server answered with a non-2xx status.
	ErrConnect = errors.New("stream connect failed")

	// ErrIdleTimeout is carried by the ErrorChunk emitted when no bytes
	// arrive within the configured idle timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")

	// ErrUnexpectedEnd is carried by the ErrorChunk emitted when the body
	// ends before a done or error event.
	ErrUnexpectedEnd = errors.New("stream ended before completion")
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ConnectError describes a failed stream open. It matches ErrConnect.
type ConnectError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ConnectError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("connect stream: %v", e.Err)
	case e.Detail != "":
		return fmt.Sprintf("connect stream: status %d: %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("connect stream: status %d", e.StatusCode)
	}
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

type settings struct {
	logger      *slog.Logger
	idleTimeout time.Duration
	headers     http.Header
}

// Option configures Open.
type Option func(*settings)

// WithLogger sets the logger used for skipped frames.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIdleTimeout fails the stream when nothing is read for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *settings) { s.idleTimeout = d }
}

// WithHeader adds a request header, e.g. Authorization.
func WithHeader(key, value string) Option {
	return func(s *settings) { s.headers.Add(key, value) }
}

// Stream is an open SSE response.
type Stream struct {
	ctx    context.Context // caller context
	cancel context.CancelFunc
	body   io.ReadCloser
	logger *slog.Logger

	idleTimeout time.Duration
	idle        atomic.Bool

	consumed  atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Open POSTs body as JSON to url and returns the event stream.
// Cancelling ctx aborts the body read and ends the chunk sequence silently.
func Open(ctx context.Context, doer Doer, url string, body any, opts ...Option) (*Stream, error) {
	cfg := settings{logger: slog.Default(), headers: http.Header{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal stream request: %w", err)
	}

	inner, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(inner, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, vs := range cfg.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := doer.Do(req)
	if err != nil {
		cancel()
		return nil, &ConnectError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readDetail(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &ConnectError{StatusCode: resp.StatusCode, Detail: detail}
	}

	return newStream(ctx, cancel, resp.Body, cfg), nil
}

// FromReader wraps an already open event-stream body. Cancelling ctx ends
// the chunk sequence and closes body.
func FromReader(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	cfg := settings{logger: slog.Default(), headers: http.Header{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	inner, cancel := context.WithCancel(ctx)
	context.AfterFunc(inner, func() { body.Close() })
	return newStream(ctx, cancel, body, cfg)
}

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, cfg settings) *Stream {
	return &Stream{
		ctx:         ctx,
		cancel:      cancel,
		body:        body,
		logger:      cfg.logger,
		idleTimeout: cfg.idleTimeout,
	}
}

// readDetail extracts a FastAPI-style {"detail": ...} message or the raw body.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}

// Close releases the response body. It is safe to call more than once and
// is called automatically when Chunks finishes.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// Err reports how the stream ended: nil after a done event, context.Canceled
// (or the context's error) after cancellation, otherwise the terminal ErrorChunk.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Chunks returns the decoded events in arrival order. The sequence is
// single-pass: a second call yields nothing.
func (s *Stream) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			return
		}
		defer s.Close()

		var timer *time.Timer
		if s.idleTimeout > 0 {
			timer = time.AfterFunc(s.idleTimeout, func() {
				s.idle.Store(true)
				s.cancel()
			})
			defer timer.Stop()
		}

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)

		for scanner.Scan() {
			if timer != nil {
				timer.Reset(s.idleTimeout)
			}
			if s.ctx.Err() != nil {
				s.finish(s.ctx.Err())
				return
			}

			data, ok := cutData(scanner.Bytes())
			if !ok {
				continue
			}

			if bytes.Equal(data, []byte("[DONE]")) {
				s.finish(nil)
				yield(DoneChunk{})
				return
			}

			chunk, err := Decode(data)
			if err != nil {
				s.logger.Warn("skipping malformed stream frame", "error", err, "frame", preview(data))
				continue
			}

			switch c := chunk.(type) {
			case DoneChunk:
				s.finish(nil)
				yield(c)
				return
			case ErrorChunk:
				s.finish(c)
				yield(c)
				return
			}
			if !yield(chunk) {
				s.finish(context.Canceled)
				return
			}
		}

		s.end(scanner.Err(), yield)
	}
}

// end normalizes everything that stops the scanner before a terminal event.
func (s *Stream) end(scanErr error, yield func(Chunk) bool) {
	if s.idle.Load() {
		c := ErrorChunk{Message: "no data received from server", Err: ErrIdleTimeout}
		s.finish(c)
		yield(c)
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.finish(err)
		return
	}

	var c ErrorChunk
	switch {
	case errors.Is(scanErr, bufio.ErrTooLong):
		c = ErrorChunk{Message: "stream frame too large", Err: scanErr}
	case scanErr != nil:
		c = ErrorChunk{Message: "connection lost", Err: fmt.Errorf("read stream: %w", scanErr)}
	default:
		c = ErrorChunk{Message: "connection closed before the response completed", Err: ErrUnexpectedEnd}
	}
	s.finish(c)
	yield(c)
}

// cutData returns the payload of a `data:` line with one optional leading space.
func cutData(line []byte) ([]byte, bool) {
	rest, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, false
	}
	rest = bytes.TrimPrefix(rest, []byte(" "))
	return bytes.TrimRight(rest, "\r"), true
}

func preview(b []byte) string {
	const n = 120
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
