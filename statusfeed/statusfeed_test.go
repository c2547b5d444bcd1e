// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package statusfeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/status"
)

func startTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	require.NoError(t, config.Validate())
	server, err := NewServer(func() *Config { return config })
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(server.StopAndWait)
	return server
}

type feedClient struct {
	conn net.Conn
	rw   io.ReadWriter
}

func dial(t *testing.T, server *Server) *feedClient {
	t.Helper()
	conn, br, _, err := ws.Dial(context.Background(), "ws://"+server.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	var reader io.Reader = conn
	if br != nil {
		reader = br
	}
	return &feedClient{
		conn: conn,
		rw: struct {
			io.Reader
			io.Writer
		}{reader, conn},
	}
}

func (c *feedClient) next(t *testing.T) Message {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := wsutil.ReadServerText(c.rw)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, server *Server, count int32) {
	t.Helper()
	require.Eventually(t, func() bool { return server.ClientCount() == count }, 5*time.Second, 10*time.Millisecond)
}

func TestFeedSendsLastStatusThenLogs(t *testing.T) {
	config := TestConfig
	server := startTestServer(t, &config)

	owner := common.HexToAddress("0x1000000000000000000000000000000000000001")
	server.PublishStatus(status.Snapshot{
		9: {KeyID: 9, Owner: owner, Status: status.Running},
		3: {KeyID: 3, Owner: owner, Status: status.FailedKYC},
	})

	client := dial(t, server)
	waitForClients(t, server, 1)

	msg := client.next(t)
	require.Equal(t, StatusMessage, msg.Type)
	require.Equal(t, []KeyStatus{
		{KeyID: 3, Owner: owner, Status: status.FailedKYC},
		{KeyID: 9, Owner: owner, Status: status.Running},
	}, msg.Keys)

	server.PublishLog(slog.LevelWarn, "owner failed KYC keys=1")
	msg = client.next(t)
	require.Equal(t, LogMessage, msg.Type)
	require.Equal(t, "WARN", msg.Level)
	require.Equal(t, "owner failed KYC keys=1", msg.Line)

	server.PublishStatus(status.Snapshot{})
	msg = client.next(t)
	require.Equal(t, StatusMessage, msg.Type)
	require.Empty(t, msg.Keys)
}

func TestFeedWithoutLogs(t *testing.T) {
	config := TestConfig
	config.Logs = false
	server := startTestServer(t, &config)
	client := dial(t, server)
	waitForClients(t, server, 1)

	server.PublishLog(slog.LevelInfo, "not sent")
	server.PublishStatus(status.Snapshot{1: {KeyID: 1, Status: status.BootingOperator}})
	msg := client.next(t)
	require.Equal(t, StatusMessage, msg.Type)
	require.Len(t, msg.Keys, 1)
}

func TestFeedDropsClosedClients(t *testing.T) {
	config := TestConfig
	server := startTestServer(t, &config)
	first := dial(t, server)
	second := dial(t, server)
	waitForClients(t, server, 2)

	require.NoError(t, first.conn.Close())
	waitForClients(t, server, 1)

	server.PublishLog(slog.LevelInfo, "still here")
	require.Equal(t, "still here", second.next(t).Line)
}

func TestFeedStopDisconnectsClients(t *testing.T) {
	config := TestConfig
	server, err := NewServer(func() *Config { return &config })
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	client := dial(t, server)
	waitForClients(t, server, 1)

	server.StopAndWait()
	require.Equal(t, int32(0), server.ClientCount())
	require.NoError(t, client.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = wsutil.ReadServerText(client.rw)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig
	require.NoError(t, config.Validate())
	config.Enable = true
	require.NoError(t, config.Validate())
	config.Workers = 0
	require.Error(t, config.Validate())
}
