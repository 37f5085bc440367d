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

// Package filestore keeps each game as one (optionally encrypted) JSON
// document on disk, with a small metadata sidecar for listing.
package filestore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/google/uuid"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
)

const (
	CurrentSchemaVersion = 1

	statusActive  = "active"
	statusDeleted = "deleted"
)

// document is the on-disk form of a game.
type document struct {
	SchemaVersion int    `json:"schemaVersion"`
	Status        string `json:"status"`
	DeletedAt     int64  `json:"deletedAt,omitempty"`
	NextPlayerID  int64  `json:"nextPlayerId"`
	store.Game
}

func (d *document) normalize() {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = CurrentSchemaVersion
	}
	if d.Status == "" {
		d.Status = statusActive
	}
	if d.NextPlayerID == 0 {
		d.NextPlayerID = 1
	}
	if d.Players == nil {
		d.Players = []engine.PlayerRow{}
	}
	if d.Runners == nil {
		d.Runners = []engine.RunnerRow{}
	}
}

// metadata is the sidecar read when listing games.
type metadata struct {
	store.Summary
	Status string `json:"status"`
}

// Store implements store.Repository on c2FmZQ storage.
type Store struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // *sync.RWMutex per game id
	cache   sync.Map // latest JSON document per game id
	now     func() time.Time
}

var _ store.Repository = (*Store)(nil)

// New returns a Store writing under dataDir through s.
func New(dataDir string, s *storage.Storage) *Store {
	return &Store{
		DataDir: dataDir,
		storage: s,
		now:     time.Now,
	}
}

func (s *Store) lock(id string) *sync.RWMutex {
	m, _ := s.mu.LoadOrStore(id, &sync.RWMutex{})
	return m.(*sync.RWMutex)
}

func fileNames(id string) (string, string) {
	enc := url.PathEscape(id)
	return filepath.Join("games", enc+".json"), filepath.Join("games", enc+".meta.json")
}

// read loads a document. The caller holds the game's lock.
func (s *Store) read(id string) (*document, error) {
	if val, ok := s.cache.Load(id); ok {
		var d document
		if err := json.Unmarshal(val.([]byte), &d); err == nil {
			if s.Debug {
				log.Printf("[CACHE] Hit for game %s", id)
			}
			d.normalize()
			return &d, nil
		}
		s.cache.Delete(id)
	}
	name, _ := fileNames(id)
	var d document
	if err := s.storage.ReadDataFile(name, &d); err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("storage.ReadDataFile: %w", err)
	}
	if d.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("game %s has unsupported schema version %d", id, d.SchemaVersion)
	}
	d.normalize()
	if b, err := json.Marshal(&d); err == nil {
		s.cache.Store(id, b)
	}
	return &d, nil
}

// readActive is read that treats a tombstone as missing.
func (s *Store) readActive(id string) (*document, error) {
	d, err := s.read(id)
	if err != nil {
		return nil, err
	}
	if d.Status == statusDeleted {
		return nil, store.ErrNotFound
	}
	return d, nil
}

// write saves a document and its sidecar. The caller holds the lock.
func (s *Store) write(d *document) error {
	name, metaName := fileNames(d.ID)
	if err := s.storage.SaveDataFile(name, d); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	meta := metadata{Summary: store.Summarize(d.Game), Status: d.Status}
	if err := s.storage.SaveDataFile(metaName, &meta); err != nil {
		log.Printf("Warning: Failed to save metadata sidecar for game %s: %v", d.ID, err)
	}
	if b, err := json.Marshal(d); err == nil {
		s.cache.Store(d.ID, b)
	}
	return nil
}

// update runs f on the active document of a game and saves the result.
func (s *Store) update(id string, f func(d *document) error) error {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	d, err := s.readActive(id)
	if err != nil {
		return err
	}
	if err := f(d); err != nil {
		return err
	}
	d.UpdatedAt = s.now().UTC()
	return s.write(d)
}

func sortedPlayers(rows []engine.PlayerRow) []engine.PlayerRow {
	out := slices.Clone(rows)
	engine.SortPlayers(out)
	if out == nil {
		out = []engine.PlayerRow{}
	}
	return out
}

// CreateGame creates a game with the default number of innings.
func (s *Store) CreateGame(ctx context.Context, ng store.NewGame) (store.Game, error) {
	if err := ng.Validate(); err != nil {
		return store.Game{}, err
	}
	now := s.now().UTC()
	d := &document{
		Game: store.Game{
			ID:           uuid.NewString(),
			HomeTeamName: ng.HomeTeamName,
			AwayTeamName: ng.AwayTeamName,
			Date:         ng.Date,
			OwnerID:      ng.OwnerID,
			CreatedAt:    now,
			UpdatedAt:    now,
			GameState:    store.NewGameState(),
		},
	}
	d.normalize()
	m := s.lock(d.ID)
	m.Lock()
	defer m.Unlock()
	if err := s.write(d); err != nil {
		return store.Game{}, err
	}
	return d.Game, nil
}

// GetGame returns a game with its roster in batting order.
func (s *Store) GetGame(ctx context.Context, id string) (store.Game, error) {
	m := s.lock(id)
	m.RLock()
	defer m.RUnlock()
	d, err := s.readActive(id)
	if err != nil {
		return store.Game{}, err
	}
	g := d.Game
	g.Players = sortedPlayers(d.Players)
	return g, nil
}

// allMetadata yields the sidecar of every game on disk, tombstones included.
func (s *Store) allMetadata() iter.Seq2[metadata, error] {
	return func(yield func(metadata, error) bool) {
		files, err := os.ReadDir(filepath.Join(s.DataDir, "games"))
		if err != nil && !os.IsNotExist(err) {
			yield(metadata{}, fmt.Errorf("could not read games directory: %w", err))
			return
		}
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasSuffix(name, ".meta.json") {
				continue
			}
			id, err := url.PathUnescape(strings.TrimSuffix(name, ".meta.json"))
			if err != nil {
				continue
			}
			_, metaName := fileNames(id)
			var meta metadata
			if err := s.storage.ReadDataFile(metaName, &meta); err != nil {
				log.Printf("Warning: failed to load metadata for %s: %v", id, err)
				continue
			}
			if !yield(meta, nil) {
				return
			}
		}
	}
}

// ListGames lists games, newest first.
func (s *Store) ListGames(ctx context.Context) ([]store.Summary, error) {
	out := []store.Summary{}
	for meta, err := range s.allMetadata() {
		if err != nil {
			return nil, err
		}
		if meta.Status == statusDeleted {
			continue
		}
		out = append(out, meta.Summary)
	}
	slices.SortStableFunc(out, func(a, b store.Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (d *document) hasPlayer(id string) bool {
	return slices.ContainsFunc(d.Players, func(p engine.PlayerRow) bool { return p.ID == id })
}

func (d *document) newPlayerID() string {
	id := strconv.FormatInt(d.NextPlayerID, 10)
	d.NextPlayerID++
	return id
}

func (d *document) removePlayer(id string) bool {
	n := len(d.Players)
	d.Players = slices.DeleteFunc(d.Players, func(p engine.PlayerRow) bool { return p.ID == id })
	d.Runners = slices.DeleteFunc(d.Runners, func(r engine.RunnerRow) bool { return r.PlayerID == id })
	return len(d.Players) != n
}

func (d *document) nextIndex(group string) int {
	next := 0
	for _, p := range d.Players {
		if p.GroupName == group && p.IndexInGroup >= next {
			next = p.IndexInGroup + 1
		}
	}
	return next
}

// SaveState writes a play-state snapshot.
func (s *Store) SaveState(ctx context.Context, id string, st engine.GameState) error {
	return s.update(id, func(d *document) error {
		if st.SyncSeq > 0 && st.SyncSeq < d.SyncSeq {
			return fmt.Errorf("%w: %d < %d", store.ErrStaleWrite, st.SyncSeq, d.SyncSeq)
		}
		if st.SyncSeq > 0 {
			d.SyncSeq = st.SyncSeq
		}
		d.CurrentInning = max(st.CurrentInning, 1)
		d.IsHomeTeamBatting = st.IsHomeTeamBatting
		d.LastGreenIndex = max(st.LastGreenIndex, 0)
		d.LastOrangeIndex = max(st.LastOrangeIndex, 0)
		d.LastGreenPlayerID = st.LastGreenPlayerID
		d.LastOrangePlayerID = st.LastOrangePlayerID
		d.AlternatingTurn = st.AlternatingTurn
		if !d.AlternatingTurn.Valid() {
			d.AlternatingTurn = engine.Green
		}
		d.HoldTurn = st.HoldTurn

		for _, row := range st.Players {
			p, err := store.NormalizePlayer(row)
			if err != nil {
				log.Printf("FileStore: game %s: skipping player %q: %v", id, row.ID, err)
				continue
			}
			p.IndexInGroup = max(p.IndexInGroup, 0)
			switch {
			case p.ID == "":
				p.ID = d.newPlayerID()
				d.Players = append(d.Players, p)
			case d.hasPlayer(p.ID):
				i := slices.IndexFunc(d.Players, func(x engine.PlayerRow) bool { return x.ID == p.ID })
				d.Players[i] = p
			}
		}
		for _, pid := range st.DeletedPlayerIDs {
			d.removePlayer(pid)
		}
		for _, in := range st.Innings {
			if in.InningNumber < 1 {
				continue
			}
			in.HomeRuns, in.HomeOuts = max(in.HomeRuns, 0), max(in.HomeOuts, 0)
			in.AwayRuns, in.AwayOuts = max(in.AwayRuns, 0), max(in.AwayOuts, 0)
			i := slices.IndexFunc(d.Innings, func(x engine.InningRow) bool { return x.InningNumber == in.InningNumber })
			if i >= 0 {
				d.Innings[i] = in
			} else {
				d.Innings = append(d.Innings, in)
			}
		}
		slices.SortFunc(d.Innings, func(a, b engine.InningRow) int {
			return cmp.Compare(a.InningNumber, b.InningNumber)
		})

		d.Runners = []engine.RunnerRow{}
		for _, r := range st.Runners {
			if !engine.IsPersistedID(r.PlayerID) || !d.hasPlayer(r.PlayerID) {
				if s.Debug {
					log.Printf("FileStore: game %s: skipping runner for player %q", id, r.PlayerID)
				}
				continue
			}
			r.BaseIndex = min(max(r.BaseIndex, engine.FirstBase), engine.ThirdBase)
			d.Runners = append(d.Runners, r)
		}
		return nil
	})
}

// DeleteGame replaces the game with a tombstone.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()
	d, err := s.readActive(id)
	if err != nil {
		return err
	}
	tomb := &document{
		SchemaVersion: CurrentSchemaVersion,
		Status:        statusDeleted,
		DeletedAt:     s.now().UnixNano(),
		Game: store.Game{
			ID:        id,
			OwnerID:   d.OwnerID,
			CreatedAt: d.CreatedAt,
			UpdatedAt: s.now().UTC(),
		},
	}
	if err := s.write(tomb); err != nil {
		return fmt.Errorf("tombstone: %w", err)
	}
	return nil
}

// ListPlayers returns the roster, green first, in batting order.
func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]engine.PlayerRow, error) {
	g, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.Players, nil
}

// CreatePlayer adds one player. A negative index appends to the group.
func (s *Store) CreatePlayer(ctx context.Context, gameID string, row engine.PlayerRow) (engine.PlayerRow, error) {
	p, err := store.NormalizePlayer(row)
	if err != nil {
		return engine.PlayerRow{}, err
	}
	err = s.update(gameID, func(d *document) error {
		if p.IndexInGroup < 0 {
			p.IndexInGroup = d.nextIndex(p.GroupName)
		}
		p.ID = d.newPlayerID()
		d.Players = append(d.Players, p)
		return nil
	})
	if err != nil {
		return engine.PlayerRow{}, err
	}
	return p, nil
}

// UpdatePlayer changes the given fields of one player.
func (s *Store) UpdatePlayer(ctx context.Context, gameID string, patch store.PlayerPatch) (engine.PlayerRow, error) {
	if !engine.IsPersistedID(patch.ID) {
		return engine.PlayerRow{}, fmt.Errorf("%w: player id %q", store.ErrInvalid, patch.ID)
	}
	var out engine.PlayerRow
	err := s.update(gameID, func(d *document) error {
		i := slices.IndexFunc(d.Players, func(x engine.PlayerRow) bool { return x.ID == patch.ID })
		if i < 0 {
			return store.ErrNotFound
		}
		p, err := store.ApplyPatch(d.Players[i], patch)
		if err != nil {
			return err
		}
		d.Players[i] = p
		out = p
		return nil
	})
	return out, err
}

// DeletePlayer removes one player and the runners they put on base.
func (s *Store) DeletePlayer(ctx context.Context, gameID, playerID string) error {
	if !engine.IsPersistedID(playerID) {
		return fmt.Errorf("%w: player id %q", store.ErrInvalid, playerID)
	}
	return s.update(gameID, func(d *document) error {
		if !d.removePlayer(playerID) {
			return store.ErrNotFound
		}
		return nil
	})
}

// UpdateIndices sets index_in_group for the listed players, skipping
// entries that do not name a player of the game.
func (s *Store) UpdateIndices(ctx context.Context, gameID string, updates []store.IndexUpdate) (int, error) {
	var count int
	err := s.update(gameID, func(d *document) error {
		for _, u := range updates {
			if u.IndexInGroup < 0 {
				continue
			}
			i := slices.IndexFunc(d.Players, func(x engine.PlayerRow) bool { return x.ID == u.ID })
			if i < 0 {
				continue
			}
			d.Players[i].IndexInGroup = u.IndexInGroup
			count++
		}
		return nil
	})
	return count, err
}

// Close drops the in-memory cache.
func (s *Store) Close() error {
	s.cache.Clear()
	return nil
}
