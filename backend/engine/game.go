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
	"fmt"
	"slices"
	"strconv"
)

// Options configures a new Game.
type Options struct {
	// Innings is the number of innings on a fresh scoreboard.
	Innings int
	// NewID returns a temporary id for a player added before the store has
	// assigned one.
	NewID func() string
	// Seed is the first runner sequence number. Seeding from the clock keeps
	// tokens from a previous session from matching new runners.
	Seed uint64
}

// Game is the mutable state of one game: roster, cursor, runners and
// scoreboard. It is not safe for concurrent use.
type Game struct {
	roster *Roster
	cursor Cursor
	bases  Bases
	score  *Scoreboard

	seq     uint64
	newID   func() string
	pending *RunnerToken
	parked  []RunnerRow
	deleted []string
}

// NewGame returns an empty game.
func NewGame(opts Options) *Game {
	if opts.Innings <= 0 {
		opts.Innings = DefaultInnings
	}
	g := &Game{
		roster: NewRoster(),
		cursor: NewCursor(),
		score:  NewScoreboard(opts.Innings),
		seq:    opts.Seed,
		newID:  opts.NewID,
	}
	if g.newID == nil {
		var n int
		g.newID = func() string {
			n++
			return "tmp-" + strconv.Itoa(n)
		}
	}
	return g
}

func (g *Game) nextSeq() uint64 {
	g.seq++
	return g.seq
}

// Roster returns the live roster. Callers must not keep it across events.
func (g *Game) Roster() *Roster { return g.roster }

// Scoreboard returns the live scoreboard.
func (g *Game) Scoreboard() *Scoreboard { return g.score }

// Cursor returns a copy of the rotation cursor.
func (g *Game) Cursor() Cursor { return g.cursor }

// Runners returns a copy of the live runner list.
func (g *Game) Runners() []Runner { return g.bases.List() }

// PendingScore returns the runner waiting for a score decision, if any.
func (g *Game) PendingScore() (RunnerToken, bool) {
	if g.pending == nil {
		return RunnerToken{}, false
	}
	return *g.pending, true
}

// Slots derives the current, on-deck and in-the-hole batters.
func (g *Game) Slots() Slots {
	return ComputeSlots(g.cursor, g.roster.Players(Green), g.roster.Players(Orange))
}

// AddPlayer appends a new player under a temporary id.
func (g *Game) AddPlayer(name string, group Group) (Player, error) {
	p, err := g.roster.Add(Player{ID: g.newID(), Name: name, Group: group})
	if err != nil {
		return Player{}, err
	}
	g.cursor.Reconcile(g.roster)
	return p, nil
}

// InsertPlayer appends a player that already has a persisted id.
func (g *Game) InsertPlayer(p Player) (Player, error) {
	p, err := g.roster.Add(p)
	if err != nil {
		return Player{}, err
	}
	g.cursor.Reconcile(g.roster)
	return p, nil
}

// RemovePlayer deletes a player and every runner that player put on base.
func (g *Game) RemovePlayer(id string) (Player, []Runner, error) {
	p, pos, ok := g.roster.Remove(id)
	if !ok {
		return Player{}, nil, fmt.Errorf("%w: %q", ErrUnknownPlayer, id)
	}
	g.cursor.playerRemoved(p.Group, p.ID, pos)
	g.cursor.Reconcile(g.roster)
	dropped := g.reconcileRunners()
	if IsPersistedID(id) && !slices.Contains(g.deleted, id) {
		g.deleted = append(g.deleted, id)
	}
	return p, dropped, nil
}

// ReorderGroup moves a player within a group.
func (g *Game) ReorderGroup(group Group, from, to int) error {
	if err := g.roster.Reorder(group, from, to); err != nil {
		return err
	}
	g.cursor.Reconcile(g.roster)
	return nil
}

// UpdatePlayerStats merges a partial stat update into the player's current
// record.
func (g *Game) UpdatePlayerStats(id string, u StatUpdate) (Player, error) {
	p, ok := g.roster.Update(id, u)
	if !ok {
		return Player{}, fmt.Errorf("%w: %q", ErrUnknownPlayer, id)
	}
	return p, nil
}

// BindPlayerID replaces a temporary id with the persisted one everywhere it
// appears. It returns false when the temporary player no longer exists.
func (g *Game) BindPlayerID(tempID, id string) bool {
	if !g.roster.Rebind(tempID, id) {
		return false
	}
	g.bases.rebind(tempID, id)
	g.cursor.rebind(tempID, id)
	if g.pending != nil && g.pending.PlayerID == tempID {
		g.pending.PlayerID = id
	}
	return true
}

// reconcileRunners drops runners whose player is no longer on the roster.
func (g *Game) reconcileRunners() []Runner {
	dropped := g.bases.Retain(g.roster.Has)
	if g.pending != nil {
		if _, ok := g.bases.Get(*g.pending); !ok {
			g.pending = nil
		}
	}
	return dropped
}

// RecordAtBat resolves a plate appearance for the current batter. It
// returns false, and changes nothing, when there is no current batter.
func (g *Game) RecordAtBat(o Outcome) (AtBat, bool, error) {
	o, err := ParseOutcome(string(o))
	if err != nil {
		return AtBat{}, false, err
	}
	ab, ok := ResolveAtBat(g.cursor, g.roster.Players(Green), g.roster.Players(Orange), o, g.seq+1)
	if !ok {
		return AtBat{}, false, nil
	}
	if ab.Runner != nil {
		g.nextSeq()
		g.bases.Place(*ab.Runner)
	}
	if ab.Runs != 0 || ab.Outs != 0 {
		if p, ok := g.roster.Credit(ab.Batter.ID, ab.Runs, ab.Outs); ok {
			ab.Batter = p
		}
		g.score.Record(ab.Runs, ab.Outs)
	}
	g.cursor = ab.Cursor
	return ab, true, nil
}

// AdvanceResult describes a forward move.
type AdvanceResult struct {
	Runner Runner `json:"runner"`
	// ConfirmScore is set when the runner was on third: nothing moved and
	// the caller must answer ConfirmScore.
	ConfirmScore bool `json:"confirmScore"`
}

// AdvanceRunner moves a runner forward one base.
func (g *Game) AdvanceRunner(t RunnerToken) (AdvanceResult, error) {
	r, confirm, err := g.bases.Forward(t)
	if err != nil {
		return AdvanceResult{}, err
	}
	if confirm {
		g.pending = &t
	}
	return AdvanceResult{Runner: r, ConfirmScore: confirm}, nil
}

// RetreatRunner moves a runner back one base.
func (g *Game) RetreatRunner(t RunnerToken) (Runner, error) {
	r, err := g.bases.Back(t)
	if err != nil {
		return r, err
	}
	if g.pending != nil && *g.pending == t {
		g.pending = nil
	}
	return r, nil
}

// ConfirmScore answers the score question for a runner on third. When scored
// the runner leaves the bases and the run is credited to the player and the
// batting team; otherwise the runner stays on third.
func (g *Game) ConfirmScore(t RunnerToken, scored bool) (Runner, error) {
	r, ok := g.bases.Get(t)
	if !ok {
		return Runner{}, fmt.Errorf("%w: %s", ErrUnknownRunner, t)
	}
	if r.Base != ThirdBase {
		return r, ErrNotOnThird
	}
	g.pending = nil
	if !scored {
		return r, nil
	}
	if _, err := g.bases.Take(t); err != nil {
		return r, err
	}
	g.roster.Credit(r.PlayerID(), 1, 0)
	g.score.Record(1, 0)
	return r, nil
}

// RunnerOut removes a runner who was put out, crediting the out to the
// player and the batting team.
func (g *Game) RunnerOut(t RunnerToken) (Runner, error) {
	r, err := g.bases.Take(t)
	if err != nil {
		return Runner{}, err
	}
	if g.pending != nil && *g.pending == t {
		g.pending = nil
	}
	g.roster.Credit(r.PlayerID(), 0, 1)
	g.score.Record(0, 1)
	return r, nil
}

// HoldTurn keeps the turn with the orange group for the next plate
// appearance, so two orange batters hit in a row.
func (g *Game) HoldTurn() error {
	s := g.Slots()
	if s.Current == nil || s.Current.Group != Orange {
		return ErrHoldNotAllowed
	}
	if g.roster.Len(Orange) < 2 {
		return fmt.Errorf("%w: orange has a single batter", ErrHoldNotAllowed)
	}
	g.cursor.Hold = true
	return nil
}

// SetInning moves to another inning, clamped to the board.
func (g *Game) SetInning(n int) int {
	return g.score.SetInning(n)
}

// ToggleBattingTeam switches which team is at bat.
func (g *Game) ToggleBattingTeam() bool {
	return g.score.ToggleBatting()
}

// OverrideScore sets one inning cell directly.
func (g *Game) OverrideScore(t Team, inning, runs, outs int) error {
	return g.score.Override(t, inning, runs, outs)
}

// AddInning appends an extra inning.
func (g *Game) AddInning() (int, error) {
	return g.score.AddInning()
}

// DeletedPlayerIDs returns persisted ids removed since the last
// acknowledged write.
func (g *Game) DeletedPlayerIDs() []string {
	return slices.Clone(g.deleted)
}

// AckDeleted forgets deleted ids that a successful write carried.
func (g *Game) AckDeleted(ids []string) {
	g.deleted = slices.DeleteFunc(g.deleted, func(id string) bool {
		return slices.Contains(ids, id)
	})
}

// IsPersistedID reports whether id was assigned by the store: a positive
// decimal integer. Temporary client ids never are.
func IsPersistedID(id string) bool {
	n, err := strconv.ParseUint(id, 10, 64)
	return err == nil && n > 0 && strconv.FormatUint(n, 10) == id
}
