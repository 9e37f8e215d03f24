// Package client connects to NATS JetStream and exposes the job message service.
package client

import (
	"context"
	"fmt"

	natsclient "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Themis/internal/nats"
	sdkerrors "github.com/wehubfusion/Themis/pkg/errors"
	"github.com/wehubfusion/Themis/pkg/message"
)

// Client is the central JetStream client that manages the connection and provides access to services.
//
// Example usage:
//
//	c := client.NewClient(nats.DefaultConnectionConfig("nats://localhost:4222"), message.DefaultConfig(), logger)
//	if err := c.Connect(ctx); err != nil {
//	    logger.Fatal("Failed to connect", zap.Error(err))
//	}
//	defer c.Close()
type Client struct {
	conn       *natsclient.Conn
	config     *nats.ConnectionConfig
	serviceCfg message.Config
	logger     *zap.Logger

	// Messages publishes and pulls jobs and results
	Messages *message.Service
}

// NewClient creates a client. The client must be connected using Connect() before use.
func NewClient(config *nats.ConnectionConfig, serviceCfg message.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		serviceCfg: serviceCfg,
		logger:     logger,
	}
}

// NewClientWithJSContext creates a client wired to a provided JSContext implementation.
// Useful for tests to avoid connecting to a real NATS server.
func NewClientWithJSContext(js message.JSContext, serviceCfg message.Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := message.NewService(js, serviceCfg, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		serviceCfg: serviceCfg,
		logger:     logger,
		Messages:   svc,
	}, nil
}

// Connect establishes a connection to the NATS server and initializes the message service.
// Returns an error if connection fails or if JetStream is not enabled on the server.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(ctx, c.config, c.logger)
	if err != nil {
		return sdkerrors.NewError(sdkerrors.CodeConnectionFailed, "failed to connect to NATS",
			fmt.Errorf("%w: %v", sdkerrors.ErrNotConnected, err))
	}

	js, err := conn.JetStream()
	if err != nil {
		_ = nats.Close(conn)
		return sdkerrors.NewError(sdkerrors.CodeJetStreamMissing, "JetStream is not enabled on the NATS server", err)
	}

	svc, err := message.NewService(message.WrapNATSJetStream(js), c.serviceCfg, c.logger)
	if err != nil {
		_ = nats.Close(conn)
		return err
	}

	c.conn = conn
	c.Messages = svc
	c.logger.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return nil
}

// Close releases the pull subscriptions and drains the connection.
func (c *Client) Close() error {
	if c.Messages != nil {
		if err := c.Messages.Close(); err != nil {
			c.logger.Warn("Failed to release subscriptions", zap.Error(err))
		}
	}
	if c.conn == nil {
		return nil
	}

	err := nats.Close(c.conn)
	c.conn = nil
	c.Messages = nil
	return err
}

// IsConnected returns true if the client is currently connected to the NATS server.
func (c *Client) IsConnected() bool {
	return nats.IsConnected(c.conn)
}

// Ping flushes the connection to verify the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return sdkerrors.ErrNotConnected
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.conn.FlushTimeout(c.config.Timeout)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ping cancelled: %w", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	}
}
