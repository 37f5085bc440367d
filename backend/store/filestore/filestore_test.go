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

package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
	"github.com/ttbt-io/softball/backend/store/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		dir := t.TempDir()
		return New(dir, storage.New(dir, nil))
	})
}

func TestRepositoryEncrypted(t *testing.T) {
	mk, err := crypto.CreateAESMasterKeyForTest()
	if err != nil {
		t.Fatalf("CreateAESMasterKeyForTest: %v", err)
	}
	storetest.Run(t, func(t *testing.T) store.Repository {
		dir := t.TempDir()
		return New(dir, storage.New(dir, mk))
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := New(dir, storage.New(dir, nil))

	g, err := fs.CreateGame(ctx, store.NewGame{HomeTeamName: "Tigers", AwayTeamName: "Blue Sox", Date: "2025-05-01"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	p, err := fs.CreatePlayer(ctx, g.ID, engine.PlayerRow{Name: "Alice", GroupName: "green", IndexInGroup: -1})
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	if err := fs.SaveState(ctx, g.ID, engine.GameState{
		CurrentInning: 4,
		SyncSeq:       12,
		Runners:       []engine.RunnerRow{{PlayerID: p.ID, BaseIndex: 1}},
	}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	fs.Close()

	metaPath := filepath.Join(dir, "games", g.ID+".meta.json")
	if _, err := os.Stat(metaPath); err != nil {
		t.Errorf("metadata sidecar missing: %v", err)
	}

	// A new instance has an empty cache and reads from disk.
	fs2 := New(dir, storage.New(dir, nil))
	got, err := fs2.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if got.Date != "2025-05-01" || got.CurrentInning != 4 || got.SyncSeq != 12 {
		t.Errorf("unexpected game after reopen: %+v", got)
	}
	if len(got.Runners) != 1 || got.Runners[0].PlayerID != p.ID {
		t.Errorf("unexpected runners after reopen: %+v", got.Runners)
	}

	// Player ids keep increasing across instances.
	q, err := fs2.CreatePlayer(ctx, g.ID, engine.PlayerRow{Name: "Bob", GroupName: "green", IndexInGroup: -1})
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	if q.ID == p.ID {
		t.Errorf("player id %s reused", q.ID)
	}
}

func TestDeleteLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := storage.New(dir, nil)
	fs := New(dir, st)

	g, err := fs.CreateGame(ctx, store.NewGame{HomeTeamName: "A", AwayTeamName: "B"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if err := fs.DeleteGame(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}

	var d document
	name, _ := fileNames(g.ID)
	if err := st.ReadDataFile(name, &d); err != nil {
		t.Fatalf("ReadDataFile failed: %v", err)
	}
	if d.Status != statusDeleted || d.DeletedAt == 0 {
		t.Errorf("expected a tombstone, got status %q deletedAt %d", d.Status, d.DeletedAt)
	}
	if len(d.Players) != 0 || d.HomeTeamName != "" {
		t.Errorf("tombstone kept game data: %+v", d.Game)
	}
	if err := fs.SaveState(ctx, g.ID, engine.GameState{CurrentInning: 2}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound when saving to a deleted game, got %v", err)
	}
}

func TestSchemaVersionTooNew(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir, nil)
	fs := New(dir, st)
	name, _ := fileNames("future")
	if err := st.SaveDataFile(name, &document{SchemaVersion: CurrentSchemaVersion + 1, Game: store.Game{ID: "future"}}); err != nil {
		t.Fatalf("SaveDataFile failed: %v", err)
	}
	if _, err := fs.GetGame(context.Background(), "future"); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected a schema version error, got %v", err)
	}
}
