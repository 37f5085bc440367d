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
	"testing"

	"github.com/stretchr/testify/require"
)

func ids(list []Player) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ID
	}
	return out
}

func TestRosterAdd(t *testing.T) {
	r := NewRoster()

	p, err := r.Add(Player{ID: "1", Name: "  Alice ", Group: Green})
	require.NoError(t, err)
	require.Equal(t, "Alice", p.Name)

	_, err = r.Add(Player{ID: "2", Name: "   ", Group: Green})
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = r.Add(Player{ID: "1", Name: "Again", Group: Orange})
	require.ErrorIs(t, err, ErrDuplicatePlayer)

	_, err = r.Add(Player{ID: "3", Name: "Carol", Group: "blue"})
	require.ErrorIs(t, err, ErrInvalidGroup)

	p, err = r.Add(Player{ID: "4", Name: "Dave", Group: Orange, Runs: -2})
	require.NoError(t, err)
	require.Zero(t, p.Runs)

	require.Equal(t, []string{"1"}, ids(r.Players(Green)))
	require.Equal(t, []string{"4"}, ids(r.Players(Orange)))
}

func TestRosterRemove(t *testing.T) {
	r := NewRoster()
	for _, p := range players(Green, "a", "b", "c") {
		_, err := r.Add(p)
		require.NoError(t, err)
	}

	p, pos, ok := r.Remove("b")
	require.True(t, ok)
	require.Equal(t, "b", p.ID)
	require.Equal(t, 1, pos)
	require.Equal(t, []string{"a", "c"}, ids(r.Players(Green)))

	_, _, ok = r.Remove("b")
	require.False(t, ok)
}

func TestRosterReorder(t *testing.T) {
	r := NewRoster()
	for _, p := range append(players(Green, "a", "b", "c", "d"), players(Orange, "x", "y")...) {
		_, err := r.Add(p)
		require.NoError(t, err)
	}
	_, ok := r.Credit("b", 2, 1)
	require.True(t, ok)

	require.NoError(t, r.Reorder(Green, 1, 3))
	require.Equal(t, []string{"a", "c", "d", "b"}, ids(r.Players(Green)))
	require.Equal(t, []string{"x", "y"}, ids(r.Players(Orange)))

	b, ok := r.Lookup("b")
	require.True(t, ok)
	require.Equal(t, 2, b.Runs)
	require.Equal(t, 1, b.Outs)

	require.NoError(t, r.Reorder(Green, 3, 0))
	require.Equal(t, []string{"b", "a", "c", "d"}, ids(r.Players(Green)))

	require.ErrorIs(t, r.Reorder(Green, 0, 4), ErrIndexOutOfRange)
	require.ErrorIs(t, r.Reorder(Orange, -1, 0), ErrIndexOutOfRange)
}

func TestRosterStatsReadLatestRecord(t *testing.T) {
	r := NewRoster()
	_, err := r.Add(Player{ID: "1", Name: "Alice", Group: Green})
	require.NoError(t, err)

	// A copy taken before other updates must not be written back.
	stale, _ := r.Lookup("1")
	r.Credit("1", 1, 0)
	r.Credit("1", 0, 1)
	outs := stale.Outs + 5
	p, ok := r.Update("1", StatUpdate{Outs: &outs})
	require.True(t, ok)
	require.Equal(t, 1, p.Runs, "runs credited after the copy was taken survive")
	require.Equal(t, 5, p.Outs)

	neg := -4
	p, _ = r.Update("1", StatUpdate{Runs: &neg})
	require.Zero(t, p.Runs)
	require.Equal(t, 5, p.Outs)

	_, ok = r.Update("nobody", StatUpdate{})
	require.False(t, ok)
}

func TestRosterRebind(t *testing.T) {
	r := NewRoster()
	_, _ = r.Add(Player{ID: "tmp-1", Name: "Alice", Group: Green})
	_, _ = r.Add(Player{ID: "7", Name: "Bob", Group: Green})

	require.False(t, r.Rebind("tmp-1", "7"))
	require.True(t, r.Rebind("tmp-1", "8"))
	require.Equal(t, []string{"8", "7"}, ids(r.Players(Green)))
	require.False(t, r.Rebind("tmp-1", "9"))
}

func TestGroupParsing(t *testing.T) {
	g, err := ParseGroup(" Orange ")
	require.NoError(t, err)
	require.Equal(t, Orange, g)

	_, err = ParseGroup("blue")
	require.ErrorIs(t, err, ErrInvalidGroup)

	require.Equal(t, Green, GroupFromLabel("Green Team"))
	require.Equal(t, Orange, GroupFromLabel("catcher"))
}
