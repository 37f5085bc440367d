// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persist keeps a game's durable snapshot in step with its live
// state. Writes are debounced, never block the caller, and the newest
// snapshot always wins over older ones still in flight.
package persist

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ttbt-io/softball/backend/engine"
)

const (
	DefaultDelay   = 750 * time.Millisecond
	DefaultTimeout = 10 * time.Second
)

// ErrWriteFailed is returned by Flush when the store rejected the write.
var ErrWriteFailed = errors.New("persist: write failed")

// Writer stores a snapshot for a game.
type Writer interface {
	WriteState(ctx context.Context, gameID string, st engine.GameState) error
}

// Options configures a Syncer.
type Options struct {
	// Delay is the quiet period after the last change before writing.
	Delay time.Duration
	// Timeout bounds a single write.
	Timeout time.Duration
	// StartSeq is the sequence of the snapshot the game was loaded from.
	// Every write carries a higher one.
	StartSeq uint64
	// OnWritten, if set, is called from the writing goroutine after each
	// successful write.
	OnWritten func(st engine.GameState)
	Debug     bool
}

// Syncer is the per-game persistence task.
type Syncer struct {
	gameID string
	w      Writer
	opts   Options

	mu      sync.Mutex
	timer   *time.Timer
	pending *engine.GameState
	last    engine.GameState
	seq     uint64
	closed  bool
	wg      sync.WaitGroup

	writeMu sync.Mutex
	written uint64
}

// New returns a Syncer for one game.
func New(gameID string, w Writer, opts Options) *Syncer {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Syncer{
		gameID:  gameID,
		w:       w,
		opts:    opts,
		seq:     opts.StartSeq,
		written: opts.StartSeq,
	}
}

// stamp assigns the next sequence to st. s.mu must be held.
func (s *Syncer) stamp(st engine.GameState) engine.GameState {
	s.seq++
	st.SyncSeq = s.seq
	s.last = st
	return st
}

// cancelTimer stops a scheduled write. s.mu must be held.
func (s *Syncer) cancelTimer() {
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
}

// Schedule records st as the newest state and restarts the quiet period. A
// write already scheduled is superseded.
func (s *Syncer) Schedule(st engine.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	st = s.stamp(st)
	s.pending = &st
	s.cancelTimer()
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.opts.Delay, s.fire)
}

// Now records st and writes it right away, superseding any scheduled write.
func (s *Syncer) Now(st engine.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	st = s.stamp(st)
	s.pending = nil
	s.cancelTimer()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.write(st)
	}()
}

func (s *Syncer) fire() {
	defer s.wg.Done()
	s.mu.Lock()
	st := s.pending
	s.pending = nil
	s.mu.Unlock()
	if st == nil {
		return
	}
	s.write(*st)
}

// write stores st unless a newer snapshot has already been stored. Failures
// are logged and dropped; the live state stays authoritative.
func (s *Syncer) write(st engine.GameState) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if st.SyncSeq <= s.written {
		if s.opts.Debug {
			log.Printf("Syncer %s: skipping stale write %d (have %d)", s.gameID, st.SyncSeq, s.written)
		}
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	if err := s.w.WriteState(ctx, s.gameID, st); err != nil {
		log.Printf("Syncer %s: write %d failed: %v", s.gameID, st.SyncSeq, err)
		return false
	}
	s.written = st.SyncSeq
	if s.opts.Debug {
		log.Printf("Syncer %s: wrote %d (%d runners)", s.gameID, st.SyncSeq, len(st.Runners))
	}
	if s.opts.OnWritten != nil {
		s.opts.OnWritten(st)
	}
	return true
}

// Seq returns the sequence of the newest state handed to the syncer.
func (s *Syncer) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Dirty reports whether the newest state has not been stored yet.
func (s *Syncer) Dirty() bool {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.written < seq
}

// Flush writes the newest state now if it has not been stored, including
// after an earlier failed write. It waits for the write.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimer()
	s.pending = nil
	st := s.last
	s.mu.Unlock()
	if st.SyncSeq == 0 {
		return nil
	}
	done := make(chan bool, 1)
	go func() { done <- s.write(st) }()
	select {
	case ok := <-done:
		if !ok {
			return ErrWriteFailed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes and stops accepting new state. It waits for writes in
// flight.
func (s *Syncer) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// Stop drops any scheduled write and stops accepting new state, without
// writing. It waits for writes in flight. Use it when the stored state is
// about to be replaced from elsewhere.
func (s *Syncer) Stop() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.cancelTimer()
	s.mu.Unlock()
	s.wg.Wait()
}
