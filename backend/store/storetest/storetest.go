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

// Package storetest is the behavior every store.Repository must have.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
)

// Run exercises a repository returned fresh by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) store.Repository) {
	tests := []struct {
		name string
		fn   func(t *testing.T, r store.Repository)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateValidation", testCreateValidation},
		{"ListNewestFirst", testListNewestFirst},
		{"PlayerCRUD", testPlayerCRUD},
		{"SaveStateReplacesRunners", testSaveStateReplacesRunners},
		{"SaveStateIdempotent", testSaveStateIdempotent},
		{"SaveStateSkipsUnresolvableRunners", testSaveStateSkipsUnresolvableRunners},
		{"SaveStateUpsertsAndDeletesPlayers", testSaveStateUpsertsAndDeletesPlayers},
		{"SaveStateSequence", testSaveStateSequence},
		{"UpdateIndices", testUpdateIndices},
		{"DeleteCascades", testDeleteCascades},
		{"EngineRoundTrip", testEngineRoundTrip},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := open(t)
			t.Cleanup(func() { r.Close() })
			tc.fn(t, r)
		})
	}
}

func ctx() context.Context {
	return context.Background()
}

func mustCreate(t *testing.T, r store.Repository, home, away string) store.Game {
	t.Helper()
	g, err := r.CreateGame(ctx(), store.NewGame{HomeTeamName: home, AwayTeamName: away, OwnerID: "owner@example.com"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	return g
}

func mustAddPlayer(t *testing.T, r store.Repository, gameID, name, group string) engine.PlayerRow {
	t.Helper()
	p, err := r.CreatePlayer(ctx(), gameID, engine.PlayerRow{Name: name, GroupName: group, IndexInGroup: -1})
	if err != nil {
		t.Fatalf("CreatePlayer(%s) failed: %v", name, err)
	}
	return p
}

func mustGet(t *testing.T, r store.Repository, id string) store.Game {
	t.Helper()
	g, err := r.GetGame(ctx(), id)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	return g
}

func names(rows []engine.PlayerRow) []string {
	out := make([]string, len(rows))
	for i, p := range rows {
		out[i] = p.Name
	}
	return out
}

func testCreateAndGet(t *testing.T, r store.Repository) {
	created := mustCreate(t, r, " Tigers ", "Blue Sox")
	if created.ID == "" {
		t.Fatal("expected an id")
	}
	g := mustGet(t, r, created.ID)
	if g.HomeTeamName != "Tigers" || g.AwayTeamName != "Blue Sox" {
		t.Errorf("unexpected names: %q vs %q", g.HomeTeamName, g.AwayTeamName)
	}
	if g.OwnerID != "owner@example.com" {
		t.Errorf("OwnerID = %q", g.OwnerID)
	}
	if len(g.Innings) != engine.DefaultInnings {
		t.Errorf("expected %d innings, got %d", engine.DefaultInnings, len(g.Innings))
	}
	if g.CurrentInning != 1 || g.AlternatingTurn != engine.Green {
		t.Errorf("unexpected initial state: inning %d turn %q", g.CurrentInning, g.AlternatingTurn)
	}
	if len(g.Players) != 0 || len(g.Runners) != 0 {
		t.Errorf("expected empty roster and bases")
	}
	if g.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	if _, err := r.GetGame(ctx(), "no-such-game"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testCreateValidation(t *testing.T, r store.Repository) {
	for _, ng := range []store.NewGame{
		{HomeTeamName: "Tigers"},
		{AwayTeamName: "Blue Sox"},
		{HomeTeamName: "  ", AwayTeamName: "Blue Sox"},
		{HomeTeamName: "Tigers", AwayTeamName: "Blue Sox", Date: "05/01/2025"},
	} {
		if _, err := r.CreateGame(ctx(), ng); !errors.Is(err, store.ErrInvalid) {
			t.Errorf("CreateGame(%+v): expected ErrInvalid, got %v", ng, err)
		}
	}
}

func testListNewestFirst(t *testing.T, r store.Repository) {
	first := mustCreate(t, r, "A", "B")
	time.Sleep(5 * time.Millisecond)
	second := mustCreate(t, r, "C", "D")
	mustAddPlayer(t, r, second.ID, "Alice", "green")

	list, err := r.ListGames(ctx())
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 games, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
	if list[0].PlayerCount != 1 || list[1].PlayerCount != 0 {
		t.Errorf("unexpected player counts: %d, %d", list[0].PlayerCount, list[1].PlayerCount)
	}
}

func testPlayerCRUD(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	alice := mustAddPlayer(t, r, g.ID, "Alice", "green")
	carol := mustAddPlayer(t, r, g.ID, "Carol", "Orange")
	bob := mustAddPlayer(t, r, g.ID, "Bob", "Green Team")

	if !engine.IsPersistedID(alice.ID) || alice.ID == bob.ID {
		t.Fatalf("unexpected ids: %q %q", alice.ID, bob.ID)
	}
	if carol.GroupName != "orange" || bob.GroupName != "green" {
		t.Errorf("group names not normalized: %q %q", carol.GroupName, bob.GroupName)
	}
	if bob.IndexInGroup != 1 || carol.IndexInGroup != 0 {
		t.Errorf("unexpected indices: bob %d carol %d", bob.IndexInGroup, carol.IndexInGroup)
	}

	players, err := r.ListPlayers(ctx(), g.ID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if got, want := names(players), []string{"Alice", "Bob", "Carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListPlayers = %v, want %v", got, want)
	}

	runs := 3
	orange := "orange"
	updated, err := r.UpdatePlayer(ctx(), g.ID, store.PlayerPatch{ID: bob.ID, Runs: &runs, GroupName: &orange})
	if err != nil {
		t.Fatalf("UpdatePlayer failed: %v", err)
	}
	if updated.Runs != 3 || updated.GroupName != "orange" || updated.Name != "Bob" {
		t.Errorf("unexpected update result: %+v", updated)
	}

	empty := " "
	if _, err := r.UpdatePlayer(ctx(), g.ID, store.PlayerPatch{ID: bob.ID, Name: &empty}); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("expected ErrInvalid for empty name, got %v", err)
	}
	if _, err := r.UpdatePlayer(ctx(), g.ID, store.PlayerPatch{ID: "999", Runs: &runs}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.CreatePlayer(ctx(), g.ID, engine.PlayerRow{Name: "", GroupName: "green"}); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := r.CreatePlayer(ctx(), "no-such-game", engine.PlayerRow{Name: "X", GroupName: "green"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := r.DeletePlayer(ctx(), g.ID, alice.ID); err != nil {
		t.Fatalf("DeletePlayer failed: %v", err)
	}
	if err := r.DeletePlayer(ctx(), g.ID, alice.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := r.DeletePlayer(ctx(), g.ID, "tmp-1"); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("expected ErrInvalid for temporary id, got %v", err)
	}
	players, _ = r.ListPlayers(ctx(), g.ID)
	if got, want := names(players), []string{"Carol", "Bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListPlayers = %v, want %v", got, want)
	}
}

// lineup creates green Alice, Bob and orange Carol, Dave.
func lineup(t *testing.T, r store.Repository, gameID string) (alice, bob, carol, dave engine.PlayerRow) {
	t.Helper()
	alice = mustAddPlayer(t, r, gameID, "Alice", "green")
	bob = mustAddPlayer(t, r, gameID, "Bob", "green")
	carol = mustAddPlayer(t, r, gameID, "Carol", "orange")
	dave = mustAddPlayer(t, r, gameID, "Dave", "orange")
	return
}

func testSaveStateReplacesRunners(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	alice, bob, carol, _ := lineup(t, r, g.ID)

	st := engine.GameState{
		CurrentInning:     2,
		IsHomeTeamBatting: true,
		LastGreenIndex:    1,
		LastOrangeIndex:   1,
		LastGreenPlayerID: alice.ID,
		AlternatingTurn:   engine.Orange,
		Runners: []engine.RunnerRow{
			{PlayerID: alice.ID, BaseIndex: 0},
			{PlayerID: bob.ID, BaseIndex: 2},
		},
		Innings: []engine.InningRow{{InningNumber: 1, AwayRuns: 2, AwayOuts: 3}},
	}
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got := mustGet(t, r, g.ID)
	if got.CurrentInning != 2 || !got.IsHomeTeamBatting || got.LastGreenIndex != 1 ||
		got.LastOrangeIndex != 1 || got.LastGreenPlayerID != alice.ID || got.AlternatingTurn != engine.Orange {
		t.Errorf("scalars not saved: %+v", got.GameState)
	}
	if !reflect.DeepEqual(got.Runners, st.Runners) {
		t.Errorf("Runners = %+v, want %+v", got.Runners, st.Runners)
	}
	if got.Innings[0].AwayRuns != 2 || got.Innings[0].AwayOuts != 3 || len(got.Innings) != engine.DefaultInnings {
		t.Errorf("unexpected innings: %+v", got.Innings)
	}

	st.Runners = []engine.RunnerRow{{PlayerID: carol.ID, BaseIndex: 1}}
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got = mustGet(t, r, g.ID)
	if !reflect.DeepEqual(got.Runners, st.Runners) {
		t.Errorf("Runners = %+v, want %+v", got.Runners, st.Runners)
	}

	if err := r.SaveState(ctx(), "no-such-game", st); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testSaveStateIdempotent(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	alice, _, carol, _ := lineup(t, r, g.ID)
	st := engine.GameState{
		CurrentInning:   3,
		AlternatingTurn: engine.Green,
		Runners:         []engine.RunnerRow{{PlayerID: alice.ID, BaseIndex: 1}, {PlayerID: carol.ID, BaseIndex: 0}},
		Players: []engine.PlayerRow{
			{ID: alice.ID, Name: "Alice", GroupName: "green", Runs: 2, IndexInGroup: 0},
		},
		Innings: []engine.InningRow{{InningNumber: 3, HomeRuns: 4}},
	}
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	once := mustGet(t, r, g.ID)
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	twice := mustGet(t, r, g.ID)
	once.UpdatedAt, twice.UpdatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second write changed state:\n once:  %+v\n twice: %+v", once, twice)
	}
}

func testSaveStateSkipsUnresolvableRunners(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	other := mustCreate(t, r, "Other", "Game")
	alice, _, _, _ := lineup(t, r, g.ID)
	stranger := mustAddPlayer(t, r, other.ID, "Stranger", "green")

	st := engine.GameState{
		CurrentInning: 1,
		Runners: []engine.RunnerRow{
			{PlayerID: "tmp-8f2c", BaseIndex: 0},
			{PlayerID: alice.ID, BaseIndex: 7},
			{PlayerID: "98765", BaseIndex: 1},
			{PlayerID: stranger.ID, BaseIndex: 1},
		},
	}
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got := mustGet(t, r, g.ID)
	want := []engine.RunnerRow{{PlayerID: alice.ID, BaseIndex: engine.ThirdBase}}
	if !reflect.DeepEqual(got.Runners, want) {
		t.Errorf("Runners = %+v, want %+v", got.Runners, want)
	}
}

func testSaveStateUpsertsAndDeletesPlayers(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	alice, bob, _, _ := lineup(t, r, g.ID)
	if err := r.SaveState(ctx(), g.ID, engine.GameState{
		CurrentInning: 1,
		Runners:       []engine.RunnerRow{{PlayerID: bob.ID, BaseIndex: 0}},
	}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	st := engine.GameState{
		CurrentInning: 1,
		Players: []engine.PlayerRow{
			{ID: alice.ID, Name: "Alice B.", GroupName: "green", Runs: 1, Outs: 2, IndexInGroup: 0},
			{Name: "Eve", GroupName: "green", IndexInGroup: 2},
			{ID: "tmp-3", Name: "Ghost", GroupName: "green", IndexInGroup: 3},
		},
		DeletedPlayerIDs: []string{bob.ID, "tmp-9"},
		Runners:          []engine.RunnerRow{{PlayerID: bob.ID, BaseIndex: 0}},
	}
	if err := r.SaveState(ctx(), g.ID, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got := mustGet(t, r, g.ID)
	if want := []string{"Alice B.", "Eve", "Carol", "Dave"}; !reflect.DeepEqual(names(got.Players), want) {
		t.Errorf("players = %v, want %v", names(got.Players), want)
	}
	if got.Players[0].Runs != 1 || got.Players[0].Outs != 2 {
		t.Errorf("stats not saved: %+v", got.Players[0])
	}
	if len(got.Runners) != 0 {
		t.Errorf("runner of deleted player survived: %+v", got.Runners)
	}
}

func testSaveStateSequence(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	save := func(seq uint64, inning int) error {
		return r.SaveState(ctx(), g.ID, engine.GameState{CurrentInning: inning, SyncSeq: seq})
	}
	if err := save(5, 2); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := save(5, 2); err != nil {
		t.Errorf("replay of the same sequence should succeed: %v", err)
	}
	if err := save(4, 9); !errors.Is(err, store.ErrStaleWrite) {
		t.Errorf("expected ErrStaleWrite, got %v", err)
	}
	if got := mustGet(t, r, g.ID); got.CurrentInning != 2 || got.SyncSeq != 5 {
		t.Errorf("stale write applied: inning %d seq %d", got.CurrentInning, got.SyncSeq)
	}
	if err := save(0, 3); err != nil {
		t.Errorf("unsequenced write failed: %v", err)
	}
	if got := mustGet(t, r, g.ID); got.CurrentInning != 3 || got.SyncSeq != 5 {
		t.Errorf("unsequenced write: inning %d seq %d", got.CurrentInning, got.SyncSeq)
	}
}

func testUpdateIndices(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	alice, bob, _, _ := lineup(t, r, g.ID)
	n, err := r.UpdateIndices(ctx(), g.ID, []store.IndexUpdate{
		{ID: alice.ID, IndexInGroup: 1},
		{ID: bob.ID, IndexInGroup: 0},
		{ID: "tmp-1", IndexInGroup: 0},
		{ID: "424242", IndexInGroup: 0},
		{ID: alice.ID, IndexInGroup: -1},
	})
	if err != nil {
		t.Fatalf("UpdateIndices failed: %v", err)
	}
	if n != 2 {
		t.Errorf("updated %d players, want 2", n)
	}
	players, _ := r.ListPlayers(ctx(), g.ID)
	if got, want := names(players), []string{"Bob", "Alice", "Carol", "Dave"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if _, err := r.UpdateIndices(ctx(), "no-such-game", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteCascades(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	keep := mustCreate(t, r, "Keep", "Me")
	alice, _, _, _ := lineup(t, r, g.ID)
	if err := r.SaveState(ctx(), g.ID, engine.GameState{
		CurrentInning: 1,
		Runners:       []engine.RunnerRow{{PlayerID: alice.ID, BaseIndex: 0}},
	}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	if err := r.DeleteGame(ctx(), g.ID); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}
	if _, err := r.GetGame(ctx(), g.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := r.ListPlayers(ctx(), g.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for players, got %v", err)
	}
	if err := r.DeleteGame(ctx(), g.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	list, _ := r.ListGames(ctx())
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Errorf("unexpected games after delete: %+v", list)
	}
}

// testEngineRoundTrip plays a few plate appearances, saves the engine's
// snapshot, and rebuilds the engine from what the store returns.
func testEngineRoundTrip(t *testing.T, r store.Repository) {
	g := mustCreate(t, r, "Tigers", "Blue Sox")
	lineup(t, r, g.ID)

	loaded := mustGet(t, r, g.ID)
	game, _ := engine.Restore(loaded.GameState, engine.Options{})
	for _, o := range []engine.Outcome{engine.Single, engine.Out, engine.Double, engine.HomeRun} {
		if _, ok, err := game.RecordAtBat(o); err != nil || !ok {
			t.Fatalf("RecordAtBat(%s) = %v, %v", o, ok, err)
		}
	}
	if err := game.ReorderGroup(engine.Orange, 0, 1); err != nil {
		t.Fatalf("ReorderGroup failed: %v", err)
	}
	if err := r.SaveState(ctx(), g.ID, game.Snapshot()); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	reloaded := mustGet(t, r, g.ID)
	again, rep := engine.Restore(reloaded.GameState, engine.Options{})
	if len(rep.Dropped) != 0 || len(rep.Clamped) != 0 {
		t.Errorf("unexpected repairs: %+v", rep)
	}
	if !reflect.DeepEqual(game.Slots(), again.Slots()) {
		t.Errorf("slots differ after reload:\n before: %+v\n after:  %+v", game.Slots(), again.Slots())
	}
	if !reflect.DeepEqual(game.Snapshot(), again.Snapshot()) {
		t.Errorf("snapshot differs after reload:\n before: %+v\n after:  %+v", game.Snapshot(), again.Snapshot())
	}
}
