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

package engine

import (
	"cmp"
	"slices"
)

// PlayerRow is a player as the store sees it.
type PlayerRow struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	GroupName    string `json:"group_name"`
	Runs         int    `json:"runs"`
	Outs         int    `json:"outs"`
	IndexInGroup int    `json:"index_in_group"`
}

// InningRow is both teams' line for one inning.
type InningRow struct {
	InningNumber int `json:"inning_number"`
	HomeRuns     int `json:"home_runs"`
	HomeOuts     int `json:"home_outs"`
	AwayRuns     int `json:"away_runs"`
	AwayOuts     int `json:"away_outs"`
}

// RunnerRow is a runner as the store sees it: the token sequence is not
// persisted.
type RunnerRow struct {
	PlayerID  string `json:"player_id"`
	BaseIndex int    `json:"base_index"`
}

// GameState is the durable snapshot of a game's play state. A Game can be
// rebuilt from it.
type GameState struct {
	CurrentInning      int         `json:"current_inning"`
	IsHomeTeamBatting  bool        `json:"is_home_team_batting"`
	LastGreenIndex     int         `json:"last_green_index"`
	LastOrangeIndex    int         `json:"last_orange_index"`
	LastGreenPlayerID  string      `json:"last_green_player_id,omitempty"`
	LastOrangePlayerID string      `json:"last_orange_player_id,omitempty"`
	AlternatingTurn    Group       `json:"alternating_turn,omitempty"`
	HoldTurn           bool        `json:"hold_turn,omitempty"`
	Runners            []RunnerRow `json:"runners"`
	Players            []PlayerRow `json:"players,omitempty"`
	Innings            []InningRow `json:"innings,omitempty"`
	DeletedPlayerIDs   []string    `json:"deleted_player_ids,omitempty"`
	SyncSeq            uint64      `json:"sync_seq,omitempty"`
}

// SortPlayers orders rows green first, then by position in the group.
func SortPlayers(rows []PlayerRow) {
	slices.SortStableFunc(rows, func(a, b PlayerRow) int {
		ga, gb := GroupFromLabel(a.GroupName), GroupFromLabel(b.GroupName)
		if ga != gb {
			if ga == Green {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.IndexInGroup, b.IndexInGroup)
	})
}

// Snapshot returns the state to persist. Players and runners that only
// have a temporary id are left out: the store could not resolve them.
func (g *Game) Snapshot() GameState {
	st := GameState{
		CurrentInning:     g.score.Inning(),
		IsHomeTeamBatting: g.score.HomeBatting(),
		LastGreenIndex:    g.cursor.GreenIndex,
		LastOrangeIndex:   g.cursor.OrangeIndex,
		AlternatingTurn:   g.cursor.turn(),
		HoldTurn:          g.cursor.Hold,
		Runners:           []RunnerRow{},
		DeletedPlayerIDs:  g.DeletedPlayerIDs(),
	}
	if id := g.cursor.LastGreenID; IsPersistedID(id) {
		st.LastGreenPlayerID = id
	}
	if id := g.cursor.LastOrangeID; IsPersistedID(id) {
		st.LastOrangePlayerID = id
	}
	for _, grp := range []Group{Green, Orange} {
		for i, p := range g.roster.Players(grp) {
			if !IsPersistedID(p.ID) {
				continue
			}
			st.Players = append(st.Players, PlayerRow{
				ID:           p.ID,
				Name:         p.Name,
				GroupName:    string(p.Group),
				Runs:         p.Runs,
				Outs:         p.Outs,
				IndexInGroup: i,
			})
		}
	}
	for _, r := range g.bases.List() {
		if !IsPersistedID(r.PlayerID()) {
			continue
		}
		st.Runners = append(st.Runners, RunnerRow{PlayerID: r.PlayerID(), BaseIndex: r.Base})
	}
	home, away := g.score.Line(Home), g.score.Line(Away)
	for i := range home {
		st.Innings = append(st.Innings, InningRow{
			InningNumber: i + 1,
			HomeRuns:     home[i].Runs,
			HomeOuts:     home[i].Outs,
			AwayRuns:     away[i].Runs,
			AwayOuts:     away[i].Outs,
		})
	}
	return st
}

// RestoreReport lists what Restore or AttachRoster had to repair.
type RestoreReport struct {
	// Dropped runners referenced a player that is not on the roster.
	Dropped []RunnerRow
	// Clamped runners had a base index outside first..third.
	Clamped []RunnerRow
	// Parked is the number of runners held back until a roster arrives.
	Parked int
}

// Restore rebuilds a game from a snapshot. The roster is built before the
// runners. When the snapshot carries runners but no players at all, the
// runners are held until AttachRoster supplies the roster.
func Restore(st GameState, opts Options) (*Game, RestoreReport) {
	n := DefaultInnings
	if len(st.Innings) > 0 {
		n = 0
		for _, row := range st.Innings {
			if row.InningNumber > n {
				n = row.InningNumber
			}
		}
	}
	opts.Innings = n
	g := NewGame(opts)
	for _, row := range st.Innings {
		_ = g.score.Override(Home, row.InningNumber, row.HomeRuns, row.HomeOuts)
		_ = g.score.Override(Away, row.InningNumber, row.AwayRuns, row.AwayOuts)
	}
	g.score.SetInning(st.CurrentInning)
	g.score.SetHomeBatting(st.IsHomeTeamBatting)

	g.cursor = Cursor{
		GreenIndex:   max(st.LastGreenIndex, 0),
		OrangeIndex:  max(st.LastOrangeIndex, 0),
		LastGreenID:  st.LastGreenPlayerID,
		LastOrangeID: st.LastOrangePlayerID,
		Turn:         st.AlternatingTurn,
		Hold:         st.HoldTurn,
	}
	g.deleted = slices.Clone(st.DeletedPlayerIDs)

	if len(st.Players) == 0 && len(st.Runners) > 0 {
		g.parked = slices.Clone(st.Runners)
		g.cursor.Reconcile(g.roster)
		return g, RestoreReport{Parked: len(g.parked)}
	}
	return g, g.load(st.Players, st.Runners)
}

// AwaitingRoster reports whether runners are parked until a roster arrives.
func (g *Game) AwaitingRoster() bool {
	return len(g.parked) > 0
}

// AttachRoster supplies the roster for a game restored without one and
// places the parked runners.
func (g *Game) AttachRoster(players []PlayerRow) RestoreReport {
	runners := g.parked
	g.parked = nil
	return g.load(players, runners)
}

func (g *Game) load(players []PlayerRow, runners []RunnerRow) RestoreReport {
	var rep RestoreReport
	rows := slices.Clone(players)
	SortPlayers(rows)
	for _, row := range rows {
		if g.roster.Has(row.ID) {
			continue
		}
		_, _ = g.roster.Add(Player{
			ID:    row.ID,
			Name:  row.Name,
			Group: GroupFromLabel(row.GroupName),
			Runs:  row.Runs,
			Outs:  row.Outs,
		})
	}
	g.cursor.Reconcile(g.roster)
	for _, row := range runners {
		if !g.roster.Has(row.PlayerID) {
			rep.Dropped = append(rep.Dropped, row)
			continue
		}
		_, clamped := g.bases.Place(Runner{
			Token: RunnerToken{PlayerID: row.PlayerID, Seq: g.nextSeq()},
			Base:  row.BaseIndex,
		})
		if clamped {
			rep.Clamped = append(rep.Clamped, row)
		}
	}
	return rep
}
