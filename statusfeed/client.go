// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package statusfeed

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easygo/netpoll"

	"github.com/ethereum/go-ethereum/log"

	"github.com/xai-foundation/sentry-operator/util/stopwaiter"
)

type client struct {
	stopwaiter.StopWaiter
	conn net.Conn
	desc *netpoll.Desc
	out  chan []byte
	// drop unregisters the client from its server.
	drop func()

	ioMutex sync.Mutex
}

func newClient(conn net.Conn, desc *netpoll.Desc, maxSendQueue int) *client {
	return &client{
		conn: conn,
		desc: desc,
		out:  make(chan []byte, maxSendQueue),
	}
}

// Start launches the writer draining the send queue. A failed write drops
// the client.
func (c *client) Start(parentCtx context.Context, timeout time.Duration) {
	c.StopWaiter.Start(parentCtx, c)
	c.LaunchThread(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-c.out:
				if err := c.write(frame, timeout); err != nil {
					log.Debug("status feed write failed", "remote", c.conn.RemoteAddr(), "err", err)
					c.drop()
					return
				}
			}
		}
	})
}

func (c *client) StopOnly() {
	// errors from Close are expected while shutting down
	_ = c.conn.Close()
	if c.Started() {
		c.StopWaiter.StopOnly()
	}
}

func (c *client) write(frame []byte, timeout time.Duration) error {
	c.ioMutex.Lock()
	defer c.ioMutex.Unlock()
	_, err := deadliner{c.conn, timeout}.Write(frame)
	return err
}

// receive reads one client message, answering pings and close frames.
func (c *client) receive(timeout time.Duration) error {
	c.ioMutex.Lock()
	defer c.ioMutex.Unlock()
	_, _, err := wsutil.ReadClientData(deadliner{c.conn, timeout})
	return err
}

type deadliner struct {
	net.Conn
	timeout time.Duration
}

func (d deadliner) Write(p []byte) (int, error) {
	if err := d.Conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.Conn.Write(p)
}

func (d deadliner) Read(p []byte) (int, error) {
	if err := d.Conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.Conn.Read(p)
}
