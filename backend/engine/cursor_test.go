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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func players(g Group, names ...string) []Player {
	out := make([]Player, len(names))
	for i, n := range names {
		out[i] = Player{ID: n, Name: n, Group: g}
	}
	return out
}

func name(p *Player) string {
	if p == nil {
		return "<nil>"
	}
	return p.Name
}

func TestComputeSlotsStartOfGame(t *testing.T) {
	green := players(Green, "Alice", "Bob")
	orange := players(Orange, "Carol", "Dave")

	s := ComputeSlots(NewCursor(), green, orange)
	require.Equal(t, "Alice", name(s.Current))
	require.Equal(t, "Carol", name(s.OnDeck))
	require.Equal(t, "Bob", name(s.InTheHole))
}

func TestComputeSlotsWrapsStaleIndex(t *testing.T) {
	green := players(Green, "Alice", "Bob")
	orange := players(Orange, "Carol")

	c := Cursor{GreenIndex: 7, OrangeIndex: -3, Turn: Green}
	s := ComputeSlots(c, green, orange)
	require.Equal(t, "Bob", name(s.Current))
	require.Equal(t, "Carol", name(s.OnDeck))
	require.Equal(t, "Alice", name(s.InTheHole))

	// A lone orange batter cannot be followed by another orange one.
	s = ComputeSlots(c, green, orange[:1])
	require.Equal(t, "Carol", name(s.Current))
	require.Equal(t, "Alice", name(s.OnDeck))
	require.Equal(t, "Carol", name(s.InTheHole))

	next := c.afterBatting(*s.Current, 0, 1)
	require.Equal(t, Green, next.Turn)
	require.False(t, next.Hold)
}

func TestComputeSlotsEmptyGroups(t *testing.T) {
	t.Run("both empty", func(t *testing.T) {
		s := ComputeSlots(NewCursor(), nil, nil)
		require.Nil(t, s.Current)
		require.Nil(t, s.OnDeck)
		require.Nil(t, s.InTheHole)
	})
	t.Run("other empty", func(t *testing.T) {
		s := ComputeSlots(NewCursor(), players(Green, "Alice"), nil)
		require.Equal(t, "Alice", name(s.Current))
		require.Nil(t, s.OnDeck)
		require.Equal(t, "Alice", name(s.InTheHole))
	})
	t.Run("batting empty", func(t *testing.T) {
		s := ComputeSlots(NewCursor(), nil, players(Orange, "Carol"))
		require.Nil(t, s.Current)
		require.Equal(t, "Carol", name(s.OnDeck))
		require.Nil(t, s.InTheHole)
	})
}

func TestComputeSlotsInvalidTurnDefaultsToGreen(t *testing.T) {
	s := ComputeSlots(Cursor{Turn: "purple"}, players(Green, "Alice"), players(Orange, "Carol"))
	require.Equal(t, "Alice", name(s.Current))
}

func TestComputeSlotsGroupsAlternate(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		green := players(Green, "g1", "g2", "g3", "g4", "g5")[:1+r.IntN(5)]
		orange := players(Orange, "o1", "o2", "o3", "o4")[:1+r.IntN(4)]
		c := Cursor{
			GreenIndex:  r.IntN(20) - 5,
			OrangeIndex: r.IntN(20) - 5,
			Turn:        []Group{Green, Orange}[r.IntN(2)],
		}
		s := ComputeSlots(c, green, orange)
		require.NotNil(t, s.Current)
		require.NotNil(t, s.OnDeck)
		require.NotNil(t, s.InTheHole)
		require.NotEqual(t, s.Current.Group, s.OnDeck.Group, "cursor %+v", c)
		require.Equal(t, s.Current.Group, s.InTheHole.Group, "cursor %+v", c)
		require.Equal(t, c.Turn, s.Current.Group)

		// Same inputs, same answer.
		require.Equal(t, s, ComputeSlots(c, green, orange))
	}
}

func TestComputeSlotsHold(t *testing.T) {
	green := players(Green, "Alice", "Bob")
	orange := players(Orange, "Carol", "Dave")

	c := Cursor{Turn: Orange, Hold: true}
	s := ComputeSlots(c, green, orange)
	require.Equal(t, "Carol", name(s.Current))
	require.Equal(t, "Dave", name(s.OnDeck))
	require.Equal(t, "Alice", name(s.InTheHole))

	// A lone orange batter cannot be followed by another orange one.
	s = ComputeSlots(c, green, orange[:1])
	require.Equal(t, "Carol", name(s.Current))
	require.Equal(t, "Alice", name(s.OnDeck))
	require.Equal(t, "Carol", name(s.InTheHole))

	next := c.afterBatting(*s.Current, 0, 1)
	require.Equal(t, Green, next.Turn)
	require.False(t, next.Hold)
}

func TestCursorReconcile(t *testing.T) {
	newRoster := func() *Roster {
		r := NewRoster()
		for _, p := range append(players(Green, "A", "B", "C"), players(Orange, "X", "Y")...) {
			_, err := r.Add(p)
			require.NoError(t, err)
		}
		return r
	}

	t.Run("follows last batter through reorder", func(t *testing.T) {
		r := newRoster()
		c := Cursor{GreenIndex: 1, LastGreenID: "A", Turn: Green}
		require.NoError(t, r.Reorder(Green, 0, 2)) // B C A
		c.Reconcile(r)
		require.Equal(t, 0, c.GreenIndex)
		s := ComputeSlots(c, r.Players(Green), r.Players(Orange))
		require.Equal(t, "B", name(s.Current))
	})

	t.Run("wraps after last in order", func(t *testing.T) {
		r := newRoster()
		c := Cursor{GreenIndex: 0, LastGreenID: "C", Turn: Green}
		c.Reconcile(r)
		require.Equal(t, 0, c.GreenIndex)
	})

	t.Run("forgets a batter who left the group", func(t *testing.T) {
		r := newRoster()
		c := Cursor{GreenIndex: 2, LastGreenID: "Z", Turn: Green}
		c.Reconcile(r)
		require.Empty(t, c.LastGreenID)
		require.Equal(t, 2, c.GreenIndex)
	})

	t.Run("empty group resets index", func(t *testing.T) {
		c := Cursor{GreenIndex: 4, OrangeIndex: 9}
		c.Reconcile(NewRoster())
		require.Equal(t, Cursor{Turn: Green}, c)
	})
}
