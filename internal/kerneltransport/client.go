package kerneltransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// DefaultConfig mirrors QuantumFlow's request-timeout-plus-dial-timeout
// shape (internal/inference/client.go's http.Client construction).
func DefaultConfig() *Config {
	return &Config{DialTimeout: 5 * time.Second, CallTimeout: 30 * time.Second}
}

// pendingCall is a single in-flight request awaiting its correlated reply.
type pendingCall struct {
	replyCh chan Envelope
}

// Client is a request/reply client around a persistent TCP connection. It
// owns request/reply correlation: one background reader goroutine demuxes
// incoming envelopes by RequestID and hands each to the goroutine that
// issued the matching request, so multiple calls can be in flight on the
// same connection without callers blocking each other.
type Client struct {
	conn   net.Conn
	writer *bufio.Writer
	cfg    *Config
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	readErrCh chan error
}

// Connect dials addr and starts the background reader loop.
func Connect(ctx context.Context, addr string, cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("kerneltransport: dial %s: %w", addr, err)
	}

	c := &Client{
		conn:      conn,
		writer:    bufio.NewWriter(conn),
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[string]*pendingCall),
		readErrCh: make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

// readLoop demultiplexes incoming newline-delimited JSON envelopes to the
// pending call that requested them, until the connection errors or closes.
func (c *Client) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			c.failAllPending(err)
			c.readErrCh <- err
			return
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			c.logger.Warn("kerneltransport: malformed envelope", zap.Error(err))
			continue
		}
		c.mu.Lock()
		call, ok := c.pending[env.RequestID]
		if ok {
			delete(c.pending, env.RequestID)
		}
		c.mu.Unlock()
		if ok {
			call.replyCh <- env
		}
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.pending {
		close(call.replyCh)
		delete(c.pending, id)
	}
	_ = err
}

// call sends one envelope and waits for its correlated reply, honoring
// ctx cancellation and the client's configured CallTimeout.
func (c *Client) call(ctx context.Context, kind MessageKind, body interface{}) (Envelope, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("kerneltransport: marshal request body: %w", err)
	}
	req := Envelope{RequestID: uuid.NewString(), Kind: kind, Body: bodyJSON}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("kerneltransport: marshal envelope: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok && c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	call := &pendingCall{replyCh: make(chan Envelope, 1)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Envelope{}, fmt.Errorf("kerneltransport: client closed")
	}
	c.pending[req.RequestID] = call
	c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else if c.cfg.CallTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.CallTimeout))
	}

	if _, err := c.writer.Write(reqJSON); err != nil {
		return Envelope{}, fmt.Errorf("kerneltransport: write request: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return Envelope{}, fmt.Errorf("kerneltransport: write newline: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return Envelope{}, fmt.Errorf("kerneltransport: flush: %w", err)
	}

	select {
	case env, ok := <-call.replyCh:
		if !ok {
			return Envelope{}, fmt.Errorf("kerneltransport: connection closed while awaiting reply")
		}
		return env, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return Envelope{}, ctx.Err()
	}
}

// Execute sends an ExecuteRequest and returns its ExecuteReply.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteReply, error) {
	env, err := c.call(ctx, KindExecuteRequest, req)
	if err != nil {
		return ExecuteReply{}, err
	}
	var reply ExecuteReply
	if err := json.Unmarshal(env.Body, &reply); err != nil {
		return ExecuteReply{}, fmt.Errorf("kerneltransport: unmarshal execute reply: %w", err)
	}
	return reply, nil
}

// SendDebugCommand sends an LDP debug request and returns its reply.
func (c *Client) SendDebugCommand(ctx context.Context, req DebugRequest) (DebugReply, error) {
	env, err := c.call(ctx, KindDebugRequest, req)
	if err != nil {
		return DebugReply{}, err
	}
	var reply DebugReply
	if err := json.Unmarshal(env.Body, &reply); err != nil {
		return DebugReply{}, fmt.Errorf("kerneltransport: unmarshal debug reply: %w", err)
	}
	return reply, nil
}

// HealthCheck executes a trivial probe and reports whether the kernel
// responded with an ok status.
func (c *Client) HealthCheck(ctx context.Context) bool {
	reply, err := c.Execute(ctx, ExecuteRequest{Code: "", Silent: true, StoreHistory: false})
	if err != nil {
		return false
	}
	return reply.Status == StatusOK
}

// Shutdown sends a shutdown envelope (best-effort) and closes the
// connection. The transport is unusable afterward.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, _ = c.call(ctx, KindShutdown, struct{}{})

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
