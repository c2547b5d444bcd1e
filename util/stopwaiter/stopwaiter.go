// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package stopwaiter gives long-running components a start/stop lifecycle:
// threads launched through it share a context that is cancelled on stop, and
// StopAndWait blocks until every tracked thread has returned.
package stopwaiter

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const stopDelayWarningTimeout = 30 * time.Second

type StopWaiterSafe struct {
	mutex     sync.Mutex // protects started, stopped, ctx, parentCtx, stopFunc, waitChan
	started   bool
	stopped   bool
	ctx       context.Context
	parentCtx context.Context
	stopFunc  func()
	name      string
	waitChan  <-chan struct{}

	wg sync.WaitGroup
}

func (s *StopWaiterSafe) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}

func (s *StopWaiterSafe) Stopped() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopped
}

func (s *StopWaiterSafe) GetContext() (context.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errors.New("not started")
	}
	return s.ctx, nil
}

// GetParentContext returns the context Start was called with. It is not
// cancelled by Stop, so work begun under it runs to completion.
func (s *StopWaiterSafe) GetParentContext() (context.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errors.New("not started")
	}
	return s.parentCtx, nil
}

func parentName(parent any) string {
	return strings.TrimPrefix(reflect.TypeOf(parent).String(), "*")
}

// Start errors when called twice. Starting after a stop cancels immediately.
func (s *StopWaiterSafe) Start(ctx context.Context, parent any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		return errors.New("start after start")
	}
	s.started = true
	s.name = parentName(parent)
	s.parentCtx = ctx
	s.ctx, s.stopFunc = context.WithCancel(ctx)
	if s.stopped {
		s.stopFunc()
	}
	return nil
}

func (s *StopWaiterSafe) StopOnly() {
	s.stopOnly()
}

func (s *StopWaiterSafe) stopOnly() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	cancelled := false
	if s.started && !s.stopped {
		s.stopFunc()
		cancelled = true
	}
	s.stopped = true
	return cancelled
}

// StopAndWait may be called multiple times, even before start.
func (s *StopWaiterSafe) StopAndWait() error {
	return s.stopAndWaitImpl(stopDelayWarningTimeout)
}

func (s *StopWaiterSafe) stopAndWaitImpl(warningTimeout time.Duration) error {
	if !s.stopOnly() {
		return nil
	}
	waitChan, err := s.GetWaitChannel()
	if err != nil {
		return err
	}
	timer := time.NewTimer(warningTimeout)
	defer timer.Stop()
	select {
	case <-waitChan:
		return nil
	case <-timer.C:
		log.Warn("taking too long to stop", "name", s.name, "delay", warningTimeout)
	}
	<-waitChan
	return nil
}

// GetWaitChannel returns a channel closed once the context is cancelled and
// every launched thread has returned.
func (s *StopWaiterSafe) GetWaitChannel() (<-chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.waitChan != nil {
		return s.waitChan, nil
	}
	if !s.started {
		return nil, errors.New("not started")
	}
	waitChan := make(chan struct{})
	ctx := s.ctx
	go func() {
		<-ctx.Done()
		s.wg.Wait()
		close(waitChan)
	}()
	s.waitChan = waitChan
	return waitChan, nil
}

// LaunchThread runs foo in a tracked goroutine. After stop the thread is
// silently not launched.
func (s *StopWaiterSafe) LaunchThread(foo func(context.Context)) error {
	ctx, err := s.GetContext()
	if err != nil {
		return err
	}
	if s.Stopped() {
		return nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		foo(ctx)
	}()
	return nil
}

// CallIteratively calls foo in a thread until stopped. The return value is
// how long to wait before the next call.
func (s *StopWaiterSafe) CallIteratively(foo func(context.Context) time.Duration) error {
	return s.LaunchThread(func(ctx context.Context) {
		for {
			interval := foo(ctx)
			if ctx.Err() != nil {
				return
			}
			if interval == 0 {
				continue
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	})
}

// CallIterativelyWith is CallIteratively with a trigger: a value received on
// triggerChan wakes the loop early and is passed to the next call. Timer
// wakeups pass the zero value.
func CallIterativelyWith[T any](
	s *StopWaiterSafe,
	foo func(context.Context, T) time.Duration,
	triggerChan <-chan T,
) error {
	return s.LaunchThread(func(ctx context.Context) {
		var zero, val T
		for {
			interval := foo(ctx, val)
			if ctx.Err() != nil {
				return
			}
			val = zero
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case val = <-triggerChan:
				timer.Stop()
			}
		}
	})
}

// StopWaiter panics where StopWaiterSafe would return an error.
type StopWaiter struct {
	StopWaiterSafe
}

func (s *StopWaiter) Start(ctx context.Context, parent any) {
	if err := s.StopWaiterSafe.Start(ctx, parent); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) StopAndWait() {
	if err := s.StopWaiterSafe.StopAndWait(); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) LaunchThread(foo func(context.Context)) {
	if err := s.StopWaiterSafe.LaunchThread(foo); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) CallIteratively(foo func(context.Context) time.Duration) {
	if err := s.StopWaiterSafe.CallIteratively(foo); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) GetContext() context.Context {
	ctx, err := s.StopWaiterSafe.GetContext()
	if err != nil {
		panic(err)
	}
	return ctx
}

func (s *StopWaiter) GetParentContext() context.Context {
	ctx, err := s.StopWaiterSafe.GetParentContext()
	if err != nil {
		panic(err)
	}
	return ctx
}
