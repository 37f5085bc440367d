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

// Cursor tracks where each group is in its batting order and whose turn it
// is. For each group the id of the last player to bat is authoritative; the
// index is re-derived from it whenever the roster changes and only stands on
// its own once that player is gone.
type Cursor struct {
	GreenIndex   int    `json:"greenIndex"`
	OrangeIndex  int    `json:"orangeIndex"`
	LastGreenID  string `json:"lastGreenId,omitempty"`
	LastOrangeID string `json:"lastOrangeId,omitempty"`
	Turn         Group  `json:"turn"`
	// Hold keeps the turn on the batting group for one plate appearance.
	Hold bool `json:"hold,omitempty"`
}

// NewCursor returns the cursor of a game that has not started: both groups at
// the top of the order, green up.
func NewCursor() Cursor {
	return Cursor{Turn: Green}
}

// Index returns the stored next-up index of the group.
func (c Cursor) Index(g Group) int {
	if g == Green {
		return c.GreenIndex
	}
	return c.OrangeIndex
}

// LastBatted returns the id of the last player of the group to bat.
func (c Cursor) LastBatted(g Group) string {
	if g == Green {
		return c.LastGreenID
	}
	return c.LastOrangeID
}

func (c *Cursor) set(g Group, index int, last string) {
	if g == Green {
		c.GreenIndex, c.LastGreenID = index, last
	} else {
		c.OrangeIndex, c.LastOrangeID = index, last
	}
}

func (c Cursor) turn() Group {
	if c.Turn.Valid() {
		return c.Turn
	}
	return Green
}

// Slots is the derived view of who bats now, next and after that.
type Slots struct {
	Current   *Player `json:"current"`
	OnDeck    *Player `json:"onDeck"`
	InTheHole *Player `json:"inTheHole"`
}

// ComputeSlots derives the three batter slots. Indices are wrapped modulo the
// group length, so a cursor that is stale relative to a shrunk roster still
// lands on a real player. An empty group yields nil slots.
//
// Normally the groups alternate: on deck comes from the other group and in
// the hole is the batting group's next player. While the cursor holds the
// turn, the batting group's next player is on deck instead. A hold needs a
// second batter in the group; with only one it is ignored.
func ComputeSlots(c Cursor, green, orange []Player) Slots {
	turn := c.turn()
	batting, other := green, orange
	if turn == Orange {
		batting, other = orange, green
	}
	i := c.Index(turn)
	s := Slots{Current: playerAt(batting, i)}
	if c.Hold && len(batting) > 1 {
		s.OnDeck = playerAt(batting, i+1)
		s.InTheHole = playerAt(other, c.Index(turn.Other()))
	} else {
		s.OnDeck = playerAt(other, c.Index(turn.Other()))
		s.InTheHole = playerAt(batting, i+1)
	}
	return s
}

func playerAt(list []Player, i int) *Player {
	n := len(list)
	if n == 0 {
		return nil
	}
	p := list[wrap(i, n)]
	return &p
}

func wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// afterBatting returns the cursor after batter, standing at position pos of a
// group of n players, completed a plate appearance.
func (c Cursor) afterBatting(batter Player, pos, n int) Cursor {
	next := c
	next.set(batter.Group, wrap(pos+1, n), batter.ID)
	next.Hold = false
	if !c.Hold || n < 2 {
		next.Turn = c.turn().Other()
	}
	return next
}

// playerRemoved keeps the index pointing at the same upcoming player after
// the player at pos in group g was removed.
func (c *Cursor) playerRemoved(g Group, id string, pos int) {
	idx, last := c.Index(g), c.LastBatted(g)
	if pos < idx {
		idx--
	}
	if last == id {
		last = ""
	}
	c.set(g, idx, last)
}

func (c *Cursor) rebind(oldID, newID string) {
	if c.LastGreenID == oldID {
		c.LastGreenID = newID
	}
	if c.LastOrangeID == oldID {
		c.LastOrangeID = newID
	}
}

// Reconcile re-derives each group's index from its last batter. A last batter
// who left the group is forgotten and the index, wrapped to the group length,
// stands alone.
func (c *Cursor) Reconcile(r *Roster) {
	for _, g := range []Group{Green, Orange} {
		n := r.Len(g)
		idx, last := c.Index(g), c.LastBatted(g)
		if last != "" {
			if pg, pos := r.IndexOf(last); pos >= 0 && pg == g {
				idx = pos + 1
			} else {
				last = ""
			}
		}
		c.set(g, wrap(idx, n), last)
	}
	c.Turn = c.turn()
}
