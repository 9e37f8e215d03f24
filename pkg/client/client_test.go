package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Themis/internal/nats"
	sdkerrors "github.com/wehubfusion/Themis/pkg/errors"
	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/message/messagetest"
)

func TestNewClientWithJSContext(t *testing.T) {
	c, err := NewClientWithJSContext(messagetest.NewMockJS(), message.Config{ResultSubject: "results.test"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c.Messages)
	require.Equal(t, "results.test", c.Messages.Config().ResultSubject)
	require.False(t, c.IsConnected())
	require.NoError(t, c.Close())

	_, err = NewClientWithJSContext(nil, message.Config{}, nil)
	require.Error(t, err)
}

func TestDisconnectedClient(t *testing.T) {
	c := NewClient(nats.DefaultConnectionConfig("nats://127.0.0.1:1"), message.DefaultConfig(), nil)
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.Ping(context.Background()), sdkerrors.ErrNotConnected)
	require.NoError(t, c.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.Connect(ctx))
	require.Nil(t, c.Messages)
}
