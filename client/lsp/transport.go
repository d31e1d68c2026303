package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"sync"
	"sync/atomic"

	"increname/logger"
)

// ErrClosed is returned for calls made after the connection ended.
var ErrClosed = errors.New("lsp connection closed")

// ResponseError is a JSON-RPC error returned by the server.
type ResponseError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// message is any JSON-RPC 2.0 message: request, notification or response.
type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Transport speaks JSON-RPC with Content-Length framing over a pair of
// streams, typically the stdio of a language server process.
type Transport struct {
	r       *bufio.Reader
	w       io.WriteCloser
	writeMu sync.Mutex

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *message
	done    chan struct{}
	err     error
}

// NewTransport creates a transport and starts reading from r.
func NewTransport(r io.Reader, w io.WriteCloser) *Transport {
	t := &Transport{
		r:       bufio.NewReader(r),
		w:       w,
		pending: make(map[int64]chan *message),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Done is closed when the read side of the connection ends.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Close closes the write side. The read loop ends when the peer exits.
func (t *Transport) Close() error {
	return t.w.Close()
}

// Call sends a request and waits for its response.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	ch := make(chan *message, 1)

	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return nil, t.err
	}
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.write(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg == nil {
			return nil, t.closedErr()
		}
		if msg.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, msg.Error)
		}
		return msg.Result, nil
	case <-ctx.Done():
		_ = t.write(notification{JSONRPC: "2.0", Method: "$/cancelRequest", Params: map[string]int64{"id": id}})
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// Notify sends a notification.
func (t *Transport) Notify(method string, params any) error {
	return t.write(notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *Transport) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	return ErrClosed
}

func (t *Transport) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return WriteMessage(t.w, data)
}

func (t *Transport) readLoop() {
	defer close(t.done)

	for {
		body, err := ReadMessage(t.r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("lsp transport: read error: %v", err)
			}
			t.shutdown(ErrClosed)
			return
		}
		t.handle(body)
	}
}

func (t *Transport) handle(body []byte) {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Debug("lsp transport: invalid message: %v", err)
		return
	}

	switch {
	case msg.ID != nil && msg.Method != "":
		// Server-to-client request. Nothing here needs an answer beyond an
		// acknowledgement, so reply with a null result.
		logger.Debug("lsp transport: acknowledging server request %s", msg.Method)
		reply := message{JSONRPC: "2.0", ID: msg.ID, Result: json.RawMessage("null")}
		if err := t.write(reply); err != nil {
			logger.Debug("lsp transport: reply to %s: %v", msg.Method, err)
		}
	case msg.ID != nil:
		id, err := strconv.ParseInt(string(*msg.ID), 10, 64)
		if err != nil {
			return
		}
		t.mu.Lock()
		ch, ok := t.pending[id]
		t.mu.Unlock()
		if ok {
			ch <- &msg
		}
	default:
		logger.Debug("lsp transport: notification %s", msg.Method)
	}
}

func (t *Transport) shutdown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

// ReadMessage reads one Content-Length framed message body.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	tp := textproto.NewReader(r)
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	length, err := strconv.Atoi(header.Get("Content-Length"))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", header.Get("Content-Length"))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteMessage writes data with a Content-Length header.
func WriteMessage(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}
