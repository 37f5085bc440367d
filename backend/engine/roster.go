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
	"strings"
)

// Group is one of the two batting cohorts whose turns alternate.
type Group string

const (
	Green  Group = "green"
	Orange Group = "orange"
)

// Valid reports whether g is green or orange.
func (g Group) Valid() bool {
	return g == Green || g == Orange
}

// Other returns the opposite group.
func (g Group) Other() Group {
	if g == Green {
		return Orange
	}
	return Green
}

// ParseGroup accepts exactly "green" or "orange", case-insensitively.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidGroup, s)
	}
	return g, nil
}

// GroupFromLabel maps a free-form group or position label, as found on
// imported lineups, to a Group. Anything mentioning green is green.
func GroupFromLabel(s string) Group {
	if strings.Contains(strings.ToLower(s), "green") {
		return Green
	}
	return Orange
}

// Player is one batter. Stats are never negative.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group Group  `json:"group"`
	Runs  int    `json:"runs"`
	Outs  int    `json:"outs"`
}

// StatUpdate is a partial stat change. Nil fields are left untouched.
type StatUpdate struct {
	Runs *int `json:"runs,omitempty"`
	Outs *int `json:"outs,omitempty"`
}

// Roster holds the two ordered batting groups. Order is batting order.
//
// Every mutation resolves the player by id at the moment of the change;
// callers never hold on to a Player copy to write it back later.
type Roster struct {
	green  []Player
	orange []Player
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{}
}

func (r *Roster) group(g Group) *[]Player {
	if g == Green {
		return &r.green
	}
	return &r.orange
}

// Players returns a copy of the group in batting order.
func (r *Roster) Players(g Group) []Player {
	return slices.Clone(*r.group(g))
}

// Len returns the number of players in the group.
func (r *Roster) Len(g Group) int {
	return len(*r.group(g))
}

// Empty reports whether both groups are empty.
func (r *Roster) Empty() bool {
	return len(r.green) == 0 && len(r.orange) == 0
}

// Lookup returns the current record of the player with the given id.
func (r *Roster) Lookup(id string) (Player, bool) {
	g, i := r.locate(id)
	if i < 0 {
		return Player{}, false
	}
	return (*r.group(g))[i], true
}

// Has reports whether a player with the given id is on either group.
func (r *Roster) Has(id string) bool {
	_, i := r.locate(id)
	return i >= 0
}

// IndexOf returns the player's group and position, or -1.
func (r *Roster) IndexOf(id string) (Group, int) {
	return r.locate(id)
}

func (r *Roster) locate(id string) (Group, int) {
	if id == "" {
		return "", -1
	}
	for _, g := range []Group{Green, Orange} {
		for i, p := range *r.group(g) {
			if p.ID == id {
				return g, i
			}
		}
	}
	return "", -1
}

// Add appends p to the end of its group.
func (r *Roster) Add(p Player) (Player, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Player{}, ErrEmptyName
	}
	if !p.Group.Valid() {
		return Player{}, fmt.Errorf("%w: %q", ErrInvalidGroup, p.Group)
	}
	if p.ID == "" || r.Has(p.ID) {
		return Player{}, fmt.Errorf("%w: %q", ErrDuplicatePlayer, p.ID)
	}
	p.Runs = max(p.Runs, 0)
	p.Outs = max(p.Outs, 0)
	list := r.group(p.Group)
	*list = append(*list, p)
	return p, nil
}

// Remove deletes the player from whichever group holds it. It returns the
// removed record and the position it occupied. Other players keep their ids.
func (r *Roster) Remove(id string) (Player, int, bool) {
	g, i := r.locate(id)
	if i < 0 {
		return Player{}, -1, false
	}
	list := r.group(g)
	p := (*list)[i]
	*list = slices.Delete(*list, i, i+1)
	return p, i, true
}

// Reorder moves one player within a group. The other group is untouched.
func (r *Roster) Reorder(g Group, from, to int) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidGroup, g)
	}
	list := r.group(g)
	n := len(*list)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: %d -> %d (len %d)", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}
	p := (*list)[from]
	*list = slices.Delete(*list, from, from+1)
	*list = slices.Insert(*list, to, p)
	return nil
}

// Update merges a partial stat update into the current record.
func (r *Roster) Update(id string, u StatUpdate) (Player, bool) {
	return r.mutate(id, func(p *Player) {
		if u.Runs != nil {
			p.Runs = max(*u.Runs, 0)
		}
		if u.Outs != nil {
			p.Outs = max(*u.Outs, 0)
		}
	})
}

// Credit adds runs and outs to the current record of the player.
func (r *Roster) Credit(id string, runs, outs int) (Player, bool) {
	return r.mutate(id, func(p *Player) {
		p.Runs = max(p.Runs+runs, 0)
		p.Outs = max(p.Outs+outs, 0)
	})
}

// Rebind replaces a player's id, keeping position and stats.
func (r *Roster) Rebind(oldID, newID string) bool {
	if newID == "" || r.Has(newID) {
		return false
	}
	_, ok := r.mutate(oldID, func(p *Player) { p.ID = newID })
	return ok
}

func (r *Roster) mutate(id string, f func(*Player)) (Player, bool) {
	g, i := r.locate(id)
	if i < 0 {
		return Player{}, false
	}
	list := *r.group(g)
	f(&list[i])
	return list[i], true
}
