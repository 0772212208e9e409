// Package tools provides the remote tool invocation client used by the
// tool_call step. Tool servers are addressed by NATS subject and answer
// request/reply with JSON payloads.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Invoker sends one request to a tool server and returns the raw reply.
// Implementations must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error)
}

// Requester is the slice of the NATS connection the client depends on.
// *nats.Conn satisfies it through WrapConn; tests substitute their own.
type Requester interface {
	RequestMsg(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

// connRequester adapts *nats.Conn to Requester.
type connRequester struct {
	conn *nats.Conn
}

func (c connRequester) RequestMsg(ctx context.Context, msg *nats.Msg) (*nats.Msg, error) {
	return c.conn.RequestMsgWithContext(ctx, msg)
}

// WrapConn adapts a NATS connection to the Requester the client uses.
func WrapConn(conn *nats.Conn) Requester {
	return connRequester{conn: conn}
}

// Client invokes tool servers over request/reply. Each request carries a
// generated Request-Id header for correlation on the server side.
type Client struct {
	req    Requester
	logger *zap.Logger
}

// NewClient creates a tool client over the given requester.
func NewClient(req Requester, logger *zap.Logger) (*Client, error) {
	if req == nil {
		return nil, errors.New("tools: requester cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{req: req, logger: logger}, nil
}

// Invoke sends the payload to the subject and returns the reply data. A
// positive timeout bounds the round trip on top of whatever deadline ctx
// already carries.
func (c *Client) Invoke(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	if subject == "" {
		return nil, errors.New("tools: subject cannot be empty")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set("Request-Id", requestID)

	c.logger.Debug("Invoking tool server",
		zap.String("subject", subject),
		zap.String("requestID", requestID),
		zap.Int("payloadBytes", len(payload)))

	start := time.Now()
	reply, err := c.req.RequestMsg(ctx, msg)
	if err != nil {
		c.logger.Error("Tool request failed",
			zap.String("subject", subject),
			zap.String("requestID", requestID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("tool request to %q: %w", subject, err)
	}

	c.logger.Debug("Tool server replied",
		zap.String("subject", subject),
		zap.String("requestID", requestID),
		zap.Int("replyBytes", len(reply.Data)),
		zap.Duration("duration", time.Since(start)))
	return reply.Data, nil
}
