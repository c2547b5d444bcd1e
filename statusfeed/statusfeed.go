// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package statusfeed streams the key status map and the operator log lines
// to websocket clients, for dashboards embedding a running operator.
package statusfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws-examples/src/gopool"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easygo/netpoll"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/xai-foundation/sentry-operator/status"
	"github.com/xai-foundation/sentry-operator/util/stopwaiter"
)

type Config struct {
	Enable       bool          `koanf:"enable"`
	Addr         string        `koanf:"addr"`
	Port         string        `koanf:"port"`
	IOTimeout    time.Duration `koanf:"io-timeout"`
	Workers      int           `koanf:"workers"`
	Queue        int           `koanf:"queue"`
	MaxSendQueue int           `koanf:"max-send-queue"`
	Logs         bool          `koanf:"logs"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	Enable:       false,
	Addr:         "127.0.0.1",
	Port:         "9643",
	IOTimeout:    5 * time.Second,
	Workers:      16,
	Queue:        32,
	MaxSendQueue: 256,
	Logs:         true,
}

var TestConfig = Config{
	Enable:       true,
	Addr:         "127.0.0.1",
	Port:         "0",
	IOTimeout:    2 * time.Second,
	Workers:      2,
	Queue:        4,
	MaxSendQueue: 16,
	Logs:         true,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultConfig.Enable, "serve the key status map and operator log over websocket")
	f.String(prefix+".addr", DefaultConfig.Addr, "address to bind the status feed to")
	f.String(prefix+".port", DefaultConfig.Port, "port to bind the status feed to")
	f.Duration(prefix+".io-timeout", DefaultConfig.IOTimeout, "duration to wait before timing out a client read or write")
	f.Int(prefix+".workers", DefaultConfig.Workers, "number of threads reading from clients")
	f.Int(prefix+".queue", DefaultConfig.Queue, "queue size of pending client reads and handshakes")
	f.Int(prefix+".max-send-queue", DefaultConfig.MaxSendQueue, "maximum number of messages queued for a client before it is disconnected")
	f.Bool(prefix+".logs", DefaultConfig.Logs, "stream operator log lines besides key status")
}

func (c *Config) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.Workers <= 0 {
		return errors.New("status feed needs at least one worker")
	}
	if c.Queue < 0 || c.MaxSendQueue <= 0 {
		return errors.New("status feed queue sizes must be positive")
	}
	if c.IOTimeout <= 0 {
		return errors.New("status feed io-timeout must be positive")
	}
	return nil
}

const (
	StatusMessage = "status"
	LogMessage    = "log"
)

type KeyStatus struct {
	KeyID  uint64         `json:"keyId"`
	Owner  common.Address `json:"owner"`
	Status status.Phase   `json:"status"`
}

// Message is one text frame of the feed. Status messages carry every key the
// operator runs, ordered by key ID.
type Message struct {
	Type  string      `json:"type"`
	Keys  []KeyStatus `json:"keys,omitempty"`
	Level string      `json:"level,omitempty"`
	Line  string      `json:"line,omitempty"`
}

type Server struct {
	stopwaiter.StopWaiter
	config ConfigFetcher
	poller netpoll.Poller
	pool   *gopool.Pool

	mutex    sync.Mutex // protects listener, clients and lastStatus
	listener net.Listener
	clients  map[*client]struct{}
	// lastStatus is sent to every client on connect.
	lastStatus []byte

	clientCount atomic.Int32
}

func NewServer(config ConfigFetcher) (*Server, error) {
	poller, err := netpoll.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating status feed poller")
	}
	cfg := config()
	return &Server{
		config:  config,
		poller:  poller,
		pool:    gopool.NewPool(cfg.Workers, cfg.Queue, 1),
		clients: make(map[*client]struct{}),
	}, nil
}

func (s *Server) Start(ctxIn context.Context) error {
	s.StopWaiter.Start(ctxIn, s)
	cfg := s.config()
	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Addr, cfg.Port))
	if err != nil {
		return errors.Wrap(err, "status feed listen")
	}
	s.mutex.Lock()
	s.listener = ln
	s.mutex.Unlock()
	log.Info("status feed listening", "addr", ln.Addr())

	s.LaunchThread(func(ctx context.Context) {
		<-ctx.Done()
		_ = ln.Close()
	})
	s.LaunchThread(func(ctx context.Context) { s.accept(ctx, ln) })
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) ClientCount() int32 {
	return s.clientCount.Load()
}

func (s *Server) accept(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("status feed accept failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		err = s.pool.ScheduleTimeout(time.Millisecond, func() { s.upgrade(ctx, conn) })
		if err != nil {
			if errors.Is(err, gopool.ErrScheduleTimeout) {
				log.Warn("status feed busy, dropping connection", "remote", conn.RemoteAddr())
			}
			_ = conn.Close()
		}
	}
}

func (s *Server) upgrade(ctx context.Context, conn net.Conn) {
	timeout := s.config().IOTimeout
	var upgrader ws.Upgrader
	if _, err := upgrader.Upgrade(deadliner{conn, timeout}); err != nil {
		log.Debug("status feed handshake failed", "remote", conn.RemoteAddr(), "err", err)
		_ = conn.Close()
		return
	}
	desc, err := netpoll.HandleReadOnce(conn)
	if err != nil {
		log.Warn("status feed cannot poll connection", "remote", conn.RemoteAddr(), "err", err)
		_ = conn.Close()
		return
	}
	c := newClient(conn, desc, s.config().MaxSendQueue)
	c.drop = func() { s.remove(c) }
	if !s.register(ctx, c) {
		return
	}
	// Clients never need to send anything. Reads only answer control frames
	// and notice closed connections.
	err = s.poller.Start(desc, func(ev netpoll.Event) {
		if ev&(netpoll.EventReadHup|netpoll.EventHup|netpoll.EventErr) != 0 {
			s.pool.Schedule(c.drop)
			return
		}
		s.pool.Schedule(func() {
			if err := c.receive(timeout); err != nil {
				log.Debug("status feed client gone", "remote", c.conn.RemoteAddr(), "err", err)
				c.drop()
				return
			}
			if err := s.poller.Resume(desc); err != nil {
				c.drop()
			}
		})
	})
	if err != nil {
		log.Warn("status feed cannot watch connection", "remote", conn.RemoteAddr(), "err", err)
		c.drop()
	}
}

func (s *Server) register(ctx context.Context, c *client) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if ctx.Err() != nil {
		c.StopOnly()
		_ = c.desc.Close()
		return false
	}
	c.Start(ctx, s.config().IOTimeout)
	if s.lastStatus != nil {
		c.out <- s.lastStatus
	}
	s.clients[c] = struct{}{}
	s.clientCount.Add(1)
	log.Debug("status feed client connected", "remote", c.conn.RemoteAddr(), "clients", len(s.clients))
	return true
}

// remove is safe to call more than once and from any goroutine, including
// the client's own writer.
func (s *Server) remove(c *client) {
	s.mutex.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mutex.Unlock()
	if !ok {
		return
	}
	if err := s.poller.Stop(c.desc); err != nil {
		log.Trace("status feed poller stop", "err", err)
	}
	_ = c.desc.Close()
	c.StopOnly()
	s.clientCount.Add(-1)
}

func (s *Server) StopAndWait() {
	s.StopWaiter.StopAndWait()
	s.mutex.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mutex.Unlock()
	for _, c := range clients {
		s.remove(c)
		if wait, err := c.GetWaitChannel(); err == nil {
			<-wait
		}
	}
}

// PublishStatus sends a snapshot to every client. It has the signature of
// status.Func.
func (s *Server) PublishStatus(snapshot status.Snapshot) {
	msg := &Message{Type: StatusMessage, Keys: make([]KeyStatus, 0, len(snapshot))}
	for _, id := range snapshot.IDs() {
		entry := snapshot[id]
		msg.Keys = append(msg.Keys, KeyStatus{KeyID: id, Owner: entry.Owner, Status: entry.Status})
	}
	s.broadcast(msg)
}

// PublishLog sends one rendered log line to every client. It has the
// signature of status.LogFunc.
func (s *Server) PublishLog(level slog.Level, line string) {
	if !s.config().Logs {
		return
	}
	s.broadcast(&Message{Type: LogMessage, Level: level.String(), Line: line})
}

func (s *Server) broadcast(msg *Message) {
	frame, err := encodeFrame(msg)
	if err != nil {
		log.Warn("status feed cannot encode message", "type", msg.Type, "err", err)
		return
	}
	var slow []*client
	s.mutex.Lock()
	if msg.Type == StatusMessage {
		s.lastStatus = frame
	}
	for c := range s.clients {
		select {
		case c.out <- frame:
		default:
			slow = append(slow, c)
		}
	}
	s.mutex.Unlock()
	for _, c := range slow {
		log.Info("disconnecting status feed client, send queue full", "remote", c.conn.RemoteAddr())
		s.remove(c)
	}
}

// encodeFrame renders msg as a complete server side text frame, shared by
// every client it is queued to.
func encodeFrame(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	writer := wsutil.NewWriter(&buf, ws.StateServerSide, ws.OpText)
	if err := json.NewEncoder(writer).Encode(msg); err != nil {
		return nil, errors.Wrap(err, "unable to encode message")
	}
	if err := writer.Flush(); err != nil {
		return nil, errors.Wrap(err, "unable to flush message")
	}
	return buf.Bytes(), nil
}
