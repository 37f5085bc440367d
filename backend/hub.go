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

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/persist"
	"github.com/ttbt-io/softball/backend/store"
)

const (
	defaultIdleTimeout = 5 * time.Minute
	defaultMaxLive     = 256
	storeTimeout       = 10 * time.Second
	recentActions      = 256
)

var (
	// ErrHubBusy is returned when a hub's request queue is full.
	ErrHubBusy   = errors.New("hub busy")
	errHubClosed = errors.New("hub closed")
)

// HubRequest types
const (
	ReqTypeView    = "VIEW"
	ReqTypeAction  = "ACTION"
	ReqTypeStoreOp = "STORE_OP"
	ReqTypeBind    = "BIND"
	ReqTypeAck     = "ACK"
)

// opMode says how a store operation interacts with the live state.
type opMode int

const (
	// opRead flushes the live state, then runs the operation.
	opRead opMode = iota
	// opWrite flushes the live state, runs the operation and reloads.
	opWrite
	// opReplace discards unsaved live state, runs the operation and reloads.
	opReplace
)

// StoreOp runs against the repository inside the hub's event loop.
type StoreOp func(ctx context.Context, repo store.Repository) (any, error)

// HubRequest represents a request to the Hub
type HubRequest struct {
	Type    string
	UserID  string
	Actions []Action // ReqTypeAction
	Op      StoreOp  // ReqTypeStoreOp
	Mode    opMode   // ReqTypeStoreOp
	TempID  string   // ReqTypeBind
	ID      string   // ReqTypeBind; empty when the row could not be created
	Acked   []string // ReqTypeAck
	Reply   chan HubResponse
}

// HubResponse represents a response from the Hub
type HubResponse struct {
	Results []ActionResult
	View    *engine.View
	Game    store.Game // scalar fields only
	Value   any
	Error   error
}

// HubOptions configures every hub of a HubManager.
type HubOptions struct {
	SyncDelay   time.Duration
	IdleTimeout time.Duration
	MaxLive     int
	Debug       bool
}

// Hub owns one live game. Every event for the game goes through run, one
// at a time.
type Hub struct {
	gameID string

	// Registered clients.
	clients map[*wsClient]bool

	// Inbound requests
	requests chan HubRequest

	// Register requests from the clients.
	register chan *wsClient

	// Unregister requests from clients.
	unregister chan *wsClient

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error // set before done is closed

	// In-memory state
	game    *engine.Game
	meta    store.Game
	syncer  *persist.Syncer
	pending map[string]engine.Player // players waiting for a persisted id
	recent  *lru.Cache[string, ActionResult]
	deleted bool

	lastActive time.Time
	hm         *HubManager
}

func newHub(id string, hm *HubManager) *Hub {
	recent, _ := lru.New[string, ActionResult](recentActions)
	return &Hub{
		gameID:     id,
		clients:    make(map[*wsClient]bool),
		requests:   make(chan HubRequest, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		pending:    make(map[string]engine.Player),
		recent:     recent,
		lastActive: time.Now(),
		hm:         hm,
	}
}

// Stop asks the hub to flush and exit. It does not wait.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// wait blocks until the hub has exited and returns its final flush error.
func (h *Hub) wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do sends a request and waits for the answer.
func (h *Hub) Do(ctx context.Context, req HubRequest) (HubResponse, error) {
	req.Reply = make(chan HubResponse, 1)
	select {
	case h.requests <- req:
	case <-h.done:
		return HubResponse{}, errHubClosed
	default:
		return HubResponse{}, ErrHubBusy
	}
	select {
	case resp := <-req.Reply:
		return resp, nil
	case <-h.done:
		// The request may have been answered just before the hub exited.
		select {
		case resp := <-req.Reply:
			return resp, nil
		default:
			return HubResponse{}, errHubClosed
		}
	case <-ctx.Done():
		return HubResponse{}, ctx.Err()
	}
}

// send delivers a request from one of the hub's own goroutines.
func (h *Hub) send(req HubRequest) bool {
	select {
	case h.requests <- req:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) debugf(format string, args ...any) {
	if h.hm.opts.Debug {
		log.Printf("Hub %s: "+format, append([]any{h.gameID}, args...)...)
	}
}

func (h *Hub) run() {
	defer func() {
		close(h.done)
		h.hm.finished(h)
	}()
	idle := time.NewTicker(h.hm.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case client := <-h.register:
			h.lastActive = time.Now()
			if err := h.ensureLoaded(); err != nil {
				client.sendJSON(Message{Type: MsgTypeError, Error: loadErrorText(err)})
				close(client.send)
				continue
			}
			h.clients[client] = true
			v := h.game.View()
			client.sendJSON(Message{Type: MsgTypeView, View: &v})
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case req := <-h.requests:
			h.lastActive = time.Now()
			h.handle(req)
			if h.deleted {
				h.broadcast(Message{Type: MsgTypeError, Error: "Game deleted"})
				h.hm.remove(h)
				h.shutdown(false)
				return
			}
		case <-idle.C:
			if len(h.clients) == 0 && time.Since(h.lastActive) >= h.hm.opts.IdleTimeout {
				h.debugf("idle, stopping")
				h.hm.remove(h)
				h.shutdown(true)
				return
			}
		case <-h.stop:
			h.shutdown(true)
			return
		}
	}
}

// shutdown disconnects the clients and flushes (or drops) the pending write.
func (h *Hub) shutdown(flush bool) {
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	if h.syncer == nil {
		return
	}
	if !flush {
		h.syncer.Stop()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.syncer.Close(ctx); err != nil {
		log.Printf("Hub %s: final flush failed: %v", h.gameID, err)
		h.err = err
	}
}

func (h *Hub) handle(req HubRequest) {
	var resp HubResponse
	switch req.Type {
	case ReqTypeView:
		if resp.Error = h.ensureLoaded(); resp.Error == nil {
			v := h.game.View()
			resp.View, resp.Game = &v, h.meta
		}
	case ReqTypeAction:
		if resp.Error = h.ensureLoaded(); resp.Error == nil {
			resp = h.handleActions(req)
		}
	case ReqTypeStoreOp:
		resp = h.handleStoreOp(req)
	case ReqTypeBind:
		h.handleBind(req)
	case ReqTypeAck:
		if h.game != nil {
			h.game.AckDeleted(req.Acked)
		}
	}
	if req.Reply != nil {
		req.Reply <- resp
	}
}

func loadErrorText(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return "Game not found"
	}
	return "Server error loading game"
}

func tempPlayerID() string {
	return "tmp-" + uuid.NewString()
}

func (h *Hub) ensureLoaded() error {
	if h.game != nil {
		return nil
	}
	return h.load()
}

// load (re)builds the live game from the store. Players still waiting for
// a persisted id are carried over.
func (h *Hub) load() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec, err := h.hm.repo.GetGame(ctx, h.gameID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Hub: Error loading game %s: %v", h.gameID, err)
		}
		return err
	}
	g, rep := engine.Restore(rec.GameState, engine.Options{
		NewID: tempPlayerID,
		Seed:  uint64(time.Now().UnixMilli()),
	})
	h.logRestore(rep)
	if g.AwaitingRoster() {
		players, err := h.hm.repo.ListPlayers(ctx, h.gameID)
		if err != nil {
			return err
		}
		h.logRestore(g.AttachRoster(players))
	}
	for id, p := range h.pending {
		if h.game != nil {
			cur, ok := h.game.Roster().Lookup(id)
			if !ok {
				// Removed while its row was being created.
				delete(h.pending, id)
				continue
			}
			p = cur
		}
		if _, err := g.InsertPlayer(p); err != nil {
			log.Printf("Hub %s: could not carry over player %s: %v", h.gameID, id, err)
		}
	}

	seq := rec.SyncSeq
	rec.GameState = engine.GameState{}
	h.meta = rec
	h.game = g
	h.syncer = persist.New(h.gameID, stateWriter{h.hm.repo}, persist.Options{
		Delay:     h.hm.opts.SyncDelay,
		StartSeq:  seq,
		OnWritten: h.onWritten,
		Debug:     h.hm.opts.Debug,
	})
	h.debugf("loaded (seq %d)", seq)
	return nil
}

func (h *Hub) logRestore(rep engine.RestoreReport) {
	for _, r := range rep.Dropped {
		log.Printf("Hub %s: dropped runner on base %d: player %s is not on the roster", h.gameID, r.BaseIndex, r.PlayerID)
	}
	for _, r := range rep.Clamped {
		log.Printf("Hub %s: runner for player %s had base %d, clamped", h.gameID, r.PlayerID, r.BaseIndex)
	}
	if rep.Parked > 0 {
		log.Printf("Hub %s: %d runners waiting for the roster", h.gameID, rep.Parked)
	}
}

// onWritten runs on the syncer's goroutine.
func (h *Hub) onWritten(st engine.GameState) {
	if len(st.DeletedPlayerIDs) == 0 {
		return
	}
	select {
	case h.requests <- HubRequest{Type: ReqTypeAck, Acked: st.DeletedPlayerIDs}:
	default:
		// Unacknowledged ids are sent again with the next write.
	}
}

func (h *Hub) handleActions(req HubRequest) HubResponse {
	start := time.Now()
	var (
		resp     HubResponse
		changed  bool
		writeNow bool
		updated  bool
	)
	for i, a := range req.Actions {
		if a.ID != "" {
			if prev, ok := h.recent.Get(a.ID); ok {
				prev.Replayed = true
				resp.Results = append(resp.Results, prev)
				continue
			}
		}
		res, fx, err := applyAction(h.game, a)
		if err != nil {
			if len(req.Actions) > 1 {
				err = &batchError{index: i, err: err}
			}
			resp.Error = err
			break
		}
		if a.ID != "" {
			h.recent.Add(a.ID, res)
		}
		resp.Results = append(resp.Results, res)
		if res.Status == StatusNoOp {
			continue
		}
		updated = true
		changed = changed || fx.changed
		writeNow = writeNow || fx.writeNow
		if fx.created != nil {
			h.createPlayer(*fx.created)
		}
		if fx.removed != "" {
			delete(h.pending, fx.removed)
		}
	}
	if changed {
		st := h.game.Snapshot()
		if writeNow {
			h.syncer.Now(st)
		} else {
			h.syncer.Schedule(st)
		}
	}
	if updated {
		h.broadcastView()
	}
	v := h.game.View()
	resp.View = &v
	resp.Game = h.meta
	h.hm.stats.recordActions(len(resp.Results), resp.Error != nil, time.Since(start))
	if len(req.Actions) > 0 {
		h.debugf("%d actions from %s", len(req.Actions), maskUserID(req.UserID))
	}
	return resp
}

// createPlayer stores a player added under a temporary id and reports the
// persisted id back to the event loop.
func (h *Hub) createPlayer(p engine.Player) {
	h.pending[p.ID] = p
	repo := h.hm.repo
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		row, err := repo.CreatePlayer(ctx, h.gameID, engine.PlayerRow{
			Name:         p.Name,
			GroupName:    string(p.Group),
			IndexInGroup: -1,
		})
		if err != nil {
			log.Printf("Hub %s: create player %q failed: %v", h.gameID, p.Name, err)
		}
		if !h.send(HubRequest{Type: ReqTypeBind, TempID: p.ID, ID: row.ID}) && err == nil {
			log.Printf("Hub %s: closed before player %s was bound to %s", h.gameID, p.ID, row.ID)
		}
	}()
}

func (h *Hub) handleBind(req HubRequest) {
	_, waiting := h.pending[req.TempID]
	delete(h.pending, req.TempID)
	if req.ID == "" {
		// The player stays in this session under the temporary id.
		return
	}
	if h.game == nil && waiting {
		// The next load reads the row from the store.
		return
	}
	if h.game != nil {
		if h.game.BindPlayerID(req.TempID, req.ID) {
			h.debugf("player %s is now %s", req.TempID, req.ID)
			h.syncer.Schedule(h.game.Snapshot())
			h.broadcastView()
			return
		}
		if h.game.Roster().Has(req.ID) {
			return
		}
	}
	// Removed before the row came back.
	repo := h.hm.repo
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := repo.DeletePlayer(ctx, h.gameID, req.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("Hub %s: delete of removed player %s failed: %v", h.gameID, req.ID, err)
		}
	}()
}

func (h *Hub) handleStoreOp(req HubRequest) HubResponse {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var seq uint64
	if h.syncer != nil {
		seq = h.syncer.Seq()
		switch req.Mode {
		case opRead:
			if err := h.syncer.Flush(ctx); err != nil {
				log.Printf("Hub %s: flush before read failed: %v", h.gameID, err)
			}
		case opWrite:
			if err := h.syncer.Close(ctx); err != nil {
				log.Printf("Hub %s: flush before write failed: %v", h.gameID, err)
			}
			h.syncer = nil
		case opReplace:
			h.syncer.Stop()
			h.syncer = nil
		}
	}

	val, err := req.Op(ctx, h.hm.repo)
	resp := HubResponse{Value: val, Error: err}
	if req.Mode == opRead || h.game == nil {
		return resp
	}

	if lerr := h.load(); lerr != nil {
		if errors.Is(lerr, store.ErrNotFound) {
			h.deleted = true
			h.game = nil
			return resp
		}
		log.Printf("Hub %s: reload failed: %v", h.gameID, lerr)
		if req.Mode == opReplace {
			// The live state was dropped; the next request loads again.
			h.game = nil
			return resp
		}
		// Keep serving the flushed state, sequenced after what was written.
		h.syncer = persist.New(h.gameID, stateWriter{h.hm.repo}, persist.Options{
			Delay:     h.hm.opts.SyncDelay,
			StartSeq:  seq,
			OnWritten: h.onWritten,
			Debug:     h.hm.opts.Debug,
		})
		return resp
	}
	h.broadcastView()
	return resp
}

func (h *Hub) broadcastView() {
	if len(h.clients) == 0 {
		return
	}
	v := h.game.View()
	h.broadcast(Message{Type: MsgTypeView, View: &v})
}

func (h *Hub) broadcast(msg Message) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// stateWriter adapts a Repository to the syncer.
type stateWriter struct {
	repo store.Repository
}

func (w stateWriter) WriteState(ctx context.Context, gameID string, st engine.GameState) error {
	return w.repo.SaveState(ctx, gameID, st)
}

// batchError reports which action of a batch failed. Earlier actions of the
// batch stay applied.
type batchError struct {
	index int
	err   error
}

func (e *batchError) Error() string {
	return "action " + strconv.Itoa(e.index) + ": " + e.err.Error()
}

func (e *batchError) Unwrap() error {
	return e.err
}

// HubManager manages the hubs of live games. At most MaxLive hubs run at
// once; the least recently used one is stopped (and flushed) to make room.
type HubManager struct {
	mu       sync.Mutex
	hubs     *lru.Cache[string, *Hub]
	stopping map[string]*Hub
	repo     store.Repository
	opts     HubOptions
	stats    Stats
}

// NewHubManager creates a HubManager for the games of repo.
func NewHubManager(repo store.Repository, opts HubOptions) *HubManager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.MaxLive <= 0 {
		opts.MaxLive = defaultMaxLive
	}
	hm := &HubManager{
		stopping: make(map[string]*Hub),
		repo:     repo,
		opts:     opts,
	}
	// The eviction callback runs with hm.mu held.
	hm.hubs, _ = lru.NewWithEvict(opts.MaxLive, func(id string, h *Hub) {
		hm.stopping[id] = h
		h.Stop()
	})
	return hm
}

// GetHub returns the live hub for a game, starting one if needed. A hub that
// is still stopping is waited for, so two hubs never write the same game.
func (hm *HubManager) GetHub(id string) *Hub {
	for {
		hm.mu.Lock()
		if hub, ok := hm.hubs.Get(id); ok {
			hm.mu.Unlock()
			return hub
		}
		if old, ok := hm.stopping[id]; ok {
			hm.mu.Unlock()
			<-old.done
			continue
		}
		hub := newHub(id, hm)
		hm.hubs.Add(id, hub)
		hm.mu.Unlock()
		go hub.run()
		return hub
	}
}

// Lookup returns the hub of a game only if one is live.
func (hm *HubManager) Lookup(id string) (*Hub, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.hubs.Peek(id)
}

// Stats reports action traffic and the number of live hubs.
func (hm *HubManager) Stats() StatsReport {
	r := hm.stats.report()
	r.LiveGames = hm.Len()
	return r
}

// Len returns the number of live hubs.
func (hm *HubManager) Len() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.hubs.Len()
}

// Do sends a request to a game's hub, restarting the hub if it exited in
// between.
func (hm *HubManager) Do(ctx context.Context, id string, req HubRequest) (HubResponse, error) {
	for range 3 {
		resp, err := hm.GetHub(id).Do(ctx, req)
		if errors.Is(err, errHubClosed) {
			continue
		}
		return resp, err
	}
	return HubResponse{}, errHubClosed
}

func (hm *HubManager) remove(h *Hub) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if cur, ok := hm.hubs.Peek(h.gameID); ok && cur == h {
		hm.hubs.Remove(h.gameID)
	}
}

func (hm *HubManager) finished(h *Hub) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if cur, ok := hm.stopping[h.gameID]; ok && cur == h {
		delete(hm.stopping, h.gameID)
	}
}

// Close stops every hub and waits for their final writes, including hubs
// evicted earlier that are still flushing.
func (hm *HubManager) Close(ctx context.Context) error {
	hm.mu.Lock()
	hm.hubs.Purge()
	hubs := slices.Collect(maps.Values(hm.stopping))
	hm.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, h := range hubs {
		h.Stop()
		g.Go(func() error {
			if err := h.wait(ctx); err != nil {
				return fmt.Errorf("game %s: %w", h.gameID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
