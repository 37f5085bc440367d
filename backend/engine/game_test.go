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

// newTestGame returns a game with persisted ids: green Alice(1), Bob(2);
// orange Carol(3), Dave(4).
func newTestGame(t *testing.T) *Game {
	t.Helper()
	g := NewGame(Options{})
	for _, p := range []Player{
		{ID: "1", Name: "Alice", Group: Green},
		{ID: "2", Name: "Bob", Group: Green},
		{ID: "3", Name: "Carol", Group: Orange},
		{ID: "4", Name: "Dave", Group: Orange},
	} {
		_, err := g.InsertPlayer(p)
		require.NoError(t, err)
	}
	return g
}

func requireSlots(t *testing.T, g *Game, current, onDeck, inTheHole string) {
	t.Helper()
	s := g.Slots()
	require.Equal(t, []string{current, onDeck, inTheHole},
		[]string{name(s.Current), name(s.OnDeck), name(s.InTheHole)})
}

func TestSingleCreatesRunnerAndRotates(t *testing.T) {
	g := newTestGame(t)
	requireSlots(t, g, "Alice", "Carol", "Bob")

	ab, ok, err := g.RecordAtBat(Single)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alice", ab.Batter.Name)
	require.NotNil(t, ab.Runner)
	require.Equal(t, FirstBase, ab.Runner.Base)
	require.Equal(t, "1", ab.Runner.PlayerID())

	runners := g.Runners()
	require.Len(t, runners, 1)
	require.Equal(t, ab.Runner.Token, runners[0].Token)

	c := g.Cursor()
	require.Equal(t, 1, c.GreenIndex)
	require.Equal(t, Orange, c.Turn)
	requireSlots(t, g, "Carol", "Bob", "Dave")
}

func TestAtBatOutcomes(t *testing.T) {
	cases := []struct {
		outcome   Outcome
		runs      int
		outs      int
		base      int
		hasRunner bool
	}{
		{Single, 0, 0, FirstBase, true},
		{Double, 0, 0, SecondBase, true},
		{Triple, 0, 0, ThirdBase, true},
		{HomeRun, 1, 0, 0, false},
		{Out, 0, 1, 0, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			g := newTestGame(t)
			g.Scoreboard().SetHomeBatting(true)

			_, ok, err := g.RecordAtBat(tc.outcome)
			require.NoError(t, err)
			require.True(t, ok)

			alice, _ := g.Roster().Lookup("1")
			require.Equal(t, tc.runs, alice.Runs)
			require.Equal(t, tc.outs, alice.Outs)

			cell, _ := g.Scoreboard().Cell(Home, 1)
			require.Equal(t, InningScore{Runs: tc.runs, Outs: tc.outs}, cell)
			away, _ := g.Scoreboard().Cell(Away, 1)
			require.Zero(t, away)

			runners := g.Runners()
			if tc.hasRunner {
				require.Len(t, runners, 1)
				require.Equal(t, tc.base, runners[0].Base)
			} else {
				require.Empty(t, runners)
			}
			require.Equal(t, Orange, g.Cursor().Turn)
		})
	}
}

func TestAtBatWithoutBatterIsNoop(t *testing.T) {
	g := NewGame(Options{})
	before := g.Snapshot()

	_, ok, err := g.RecordAtBat(Out)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, before, g.Snapshot())
	require.Equal(t, NewCursor(), g.Cursor())
}

func TestAtBatRejectsUnknownOutcome(t *testing.T) {
	g := newTestGame(t)
	_, ok, err := g.RecordAtBat("walk")
	require.ErrorIs(t, err, ErrInvalidOutcome)
	require.False(t, ok)
	require.Equal(t, NewCursor(), g.Cursor())
}

func TestTurnAlternatesEveryPlateAppearance(t *testing.T) {
	g := newTestGame(t)
	outcomes := []Outcome{Out, Single, HomeRun, Double, Out, Triple, Out, Out, Single}
	want := Green
	for i, o := range outcomes {
		require.Equal(t, want, g.Cursor().Turn, "before plate appearance %d", i)
		_, ok, err := g.RecordAtBat(o)
		require.NoError(t, err)
		require.True(t, ok)
		want = want.Other()
	}
}

func TestRunnerTokensAreUnique(t *testing.T) {
	g := NewGame(Options{})
	_, err := g.InsertPlayer(Player{ID: "1", Name: "Gina", Group: Green})
	require.NoError(t, err)
	_, err = g.InsertPlayer(Player{ID: "2", Name: "Omar", Group: Orange})
	require.NoError(t, err)

	seen := map[RunnerToken]bool{}
	perPlayer := map[string]int{}
	for range 50 {
		ab, ok, err := g.RecordAtBat(Single)
		require.NoError(t, err)
		require.True(t, ok)
		require.False(t, seen[ab.Runner.Token], "token %s reused", ab.Runner.Token)
		seen[ab.Runner.Token] = true
		perPlayer[ab.Runner.PlayerID()]++
	}
	require.Len(t, g.Runners(), 50)
	require.Equal(t, map[string]int{"1": 25, "2": 25}, perPlayer)
}

func TestRunnerScoresFromThird(t *testing.T) {
	g := newTestGame(t)
	ab, _, err := g.RecordAtBat(Triple)
	require.NoError(t, err)
	tok := ab.Runner.Token

	res, err := g.AdvanceRunner(tok)
	require.NoError(t, err)
	require.True(t, res.ConfirmScore)
	require.Equal(t, ThirdBase, res.Runner.Base)
	pending, ok := g.PendingScore()
	require.True(t, ok)
	require.Equal(t, tok, pending)

	_, err = g.ConfirmScore(tok, true)
	require.NoError(t, err)
	require.Empty(t, g.Runners())
	_, ok = g.PendingScore()
	require.False(t, ok)

	alice, _ := g.Roster().Lookup("1")
	require.Equal(t, 1, alice.Runs)
	cell, _ := g.Scoreboard().Cell(Away, 1)
	require.Equal(t, 1, cell.Runs)
}

func TestRunnerDeclinedScoreStaysOnThird(t *testing.T) {
	g := newTestGame(t)
	ab, _, _ := g.RecordAtBat(Triple)
	tok := ab.Runner.Token

	_, err := g.AdvanceRunner(tok)
	require.NoError(t, err)
	r, err := g.ConfirmScore(tok, false)
	require.NoError(t, err)
	require.Equal(t, ThirdBase, r.Base)
	require.Len(t, g.Runners(), 1)
	cell, _ := g.Scoreboard().Cell(Away, 1)
	require.Zero(t, cell.Runs)
}

func TestRunnerMovement(t *testing.T) {
	g := newTestGame(t)
	ab, _, _ := g.RecordAtBat(Single)
	tok := ab.Runner.Token

	_, err := g.RetreatRunner(tok)
	require.ErrorIs(t, err, ErrOnFirst)

	res, err := g.AdvanceRunner(tok)
	require.NoError(t, err)
	require.False(t, res.ConfirmScore)
	require.Equal(t, SecondBase, res.Runner.Base)

	r, err := g.RetreatRunner(tok)
	require.NoError(t, err)
	require.Equal(t, FirstBase, r.Base)

	_, err = g.ConfirmScore(tok, true)
	require.ErrorIs(t, err, ErrNotOnThird)

	_, err = g.AdvanceRunner(RunnerToken{PlayerID: "1", Seq: 999})
	require.ErrorIs(t, err, ErrUnknownRunner)
}

func TestRunnerOut(t *testing.T) {
	g := newTestGame(t)
	ab, _, _ := g.RecordAtBat(Double)

	_, err := g.RunnerOut(ab.Runner.Token)
	require.NoError(t, err)
	require.Empty(t, g.Runners())

	alice, _ := g.Roster().Lookup("1")
	require.Equal(t, 1, alice.Outs)
	cell, _ := g.Scoreboard().Cell(Away, 1)
	require.Equal(t, 1, cell.Outs)

	_, err = g.RunnerOut(ab.Runner.Token)
	require.ErrorIs(t, err, ErrUnknownRunner)
}

func TestRunnerCreditUsesCurrentRecord(t *testing.T) {
	g := newTestGame(t)
	ab, _, _ := g.RecordAtBat(Triple)

	// Stats change between reaching base and scoring.
	five := 5
	_, err := g.UpdatePlayerStats("1", StatUpdate{Outs: &five})
	require.NoError(t, err)

	_, err = g.ConfirmScore(ab.Runner.Token, true)
	require.NoError(t, err)
	alice, _ := g.Roster().Lookup("1")
	require.Equal(t, 1, alice.Runs)
	require.Equal(t, 5, alice.Outs)
}

func TestOutsStopAtThree(t *testing.T) {
	g := newTestGame(t)
	for range 5 {
		_, _, err := g.RecordAtBat(Out)
		require.NoError(t, err)
	}
	cell, _ := g.Scoreboard().Cell(Away, 1)
	require.Equal(t, MaxOuts, cell.Outs)
}

func TestRemovingPlayerDropsTheirRunners(t *testing.T) {
	g := newTestGame(t)
	ab, _, _ := g.RecordAtBat(Triple) // Alice on third
	_, _, _ = g.RecordAtBat(Single)   // Carol on first
	_, err := g.AdvanceRunner(ab.Runner.Token)
	require.NoError(t, err)

	_, dropped, err := g.RemovePlayer("1")
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	require.Equal(t, ab.Runner.Token, dropped[0].Token)

	runners := g.Runners()
	require.Len(t, runners, 1)
	require.Equal(t, "3", runners[0].PlayerID())
	_, ok := g.PendingScore()
	require.False(t, ok)

	require.Equal(t, []string{"1"}, g.DeletedPlayerIDs())
	for _, row := range g.Snapshot().Runners {
		require.NotEqual(t, "1", row.PlayerID)
	}
}

func TestRemovingCurrentBatterSubstitutes(t *testing.T) {
	g := newTestGame(t)
	_, err := g.InsertPlayer(Player{ID: "5", Name: "Eve", Group: Green})
	require.NoError(t, err)
	requireSlots(t, g, "Alice", "Carol", "Bob")

	_, _, err = g.RemovePlayer("1")
	require.NoError(t, err)
	requireSlots(t, g, "Bob", "Carol", "Eve")

	// Bob bats, then Carol; Bob is removed after batting.
	_, _, _ = g.RecordAtBat(Out)
	_, _, _ = g.RecordAtBat(Out)
	requireSlots(t, g, "Eve", "Dave", "Bob")
	_, _, err = g.RemovePlayer("2")
	require.NoError(t, err)
	requireSlots(t, g, "Eve", "Dave", "Eve")

	_, _, err = g.RemovePlayer("5")
	require.NoError(t, err)
	requireSlots(t, g, "<nil>", "Dave", "<nil>")
}

func TestReorderKeepsNextBatter(t *testing.T) {
	g := newTestGame(t)
	_, err := g.InsertPlayer(Player{ID: "5", Name: "Eve", Group: Green})
	require.NoError(t, err)
	_, _, _ = g.RecordAtBat(Out) // Alice
	_, _, _ = g.RecordAtBat(Out) // Carol
	requireSlots(t, g, "Bob", "Dave", "Eve")

	// Eve moves to the top; Bob still follows Alice.
	require.NoError(t, g.ReorderGroup(Green, 2, 0))
	requireSlots(t, g, "Bob", "Dave", "Eve")
}

func TestAddedPlayerBatsAfterLastInOrder(t *testing.T) {
	g := newTestGame(t)
	_, _, _ = g.RecordAtBat(Out) // Alice
	_, _, _ = g.RecordAtBat(Out) // Carol
	_, _, _ = g.RecordAtBat(Out) // Bob
	_, _, _ = g.RecordAtBat(Out) // Dave
	requireSlots(t, g, "Alice", "Carol", "Bob")

	p, err := g.AddPlayer("Eve", Green)
	require.NoError(t, err)
	require.False(t, IsPersistedID(p.ID))
	requireSlots(t, g, "Eve", "Carol", "Alice")
}

func TestAddPlayerEmptyName(t *testing.T) {
	g := newTestGame(t)
	_, err := g.AddPlayer("  ", Orange)
	require.ErrorIs(t, err, ErrEmptyName)
	require.Equal(t, 2, g.Roster().Len(Orange))
}

func TestBindPlayerID(t *testing.T) {
	g := NewGame(Options{NewID: func() string { return "tmp-x" }})
	p, err := g.AddPlayer("Alice", Green)
	require.NoError(t, err)
	ab, _, _ := g.RecordAtBat(Single)
	require.Equal(t, p.ID, ab.Runner.PlayerID())

	st := g.Snapshot()
	require.Empty(t, st.Players)
	require.Empty(t, st.Runners)

	require.True(t, g.BindPlayerID("tmp-x", "12"))
	st = g.Snapshot()
	require.Len(t, st.Players, 1)
	require.Equal(t, "12", st.Players[0].ID)
	require.Equal(t, []RunnerRow{{PlayerID: "12", BaseIndex: 0}}, st.Runners)
	require.Equal(t, "12", st.LastGreenPlayerID)

	require.False(t, g.BindPlayerID("tmp-x", "13"))
}

func TestHoldTurn(t *testing.T) {
	g := newTestGame(t)
	require.ErrorIs(t, g.HoldTurn(), ErrHoldNotAllowed)

	_, _, _ = g.RecordAtBat(Out) // Alice
	require.NoError(t, g.HoldTurn())
	requireSlots(t, g, "Carol", "Dave", "Bob")

	_, _, _ = g.RecordAtBat(Single) // Carol, turn held
	require.Equal(t, Orange, g.Cursor().Turn)
	require.False(t, g.Cursor().Hold)
	requireSlots(t, g, "Dave", "Bob", "Carol")

	_, _, _ = g.RecordAtBat(Out) // Dave, turn flips again
	require.Equal(t, Green, g.Cursor().Turn)
}

func TestHoldTurnLoneOrangeBatter(t *testing.T) {
	g := newTestGame(t)
	_, _, err := g.RemovePlayer("4")
	require.NoError(t, err)
	_, _, _ = g.RecordAtBat(Out) // Alice

	require.ErrorIs(t, g.HoldTurn(), ErrHoldNotAllowed)
	require.False(t, g.Cursor().Hold)
	requireSlots(t, g, "Carol", "Bob", "Carol")

	// A hold set while Dave was around does not survive his removal.
	g = newTestGame(t)
	_, _, _ = g.RecordAtBat(Out) // Alice
	require.NoError(t, g.HoldTurn())
	_, _, err = g.RemovePlayer("4")
	require.NoError(t, err)
	requireSlots(t, g, "Carol", "Bob", "Carol")
	_, _, _ = g.RecordAtBat(Out) // Carol
	require.Equal(t, Green, g.Cursor().Turn)
}

func TestScoreboardControls(t *testing.T) {
	g := newTestGame(t)
	require.Equal(t, 7, g.Scoreboard().Innings())
	require.Equal(t, 7, g.SetInning(12))
	require.Equal(t, 1, g.SetInning(0))
	require.True(t, g.ToggleBattingTeam())

	require.NoError(t, g.OverrideScore(Home, 2, 1500, 5))
	cell, _ := g.Scoreboard().Cell(Home, 2)
	require.Equal(t, InningScore{Runs: MaxRuns, Outs: 5}, cell)
	require.ErrorIs(t, g.OverrideScore(Home, 8, 1, 1), ErrInvalidInning)
	require.ErrorIs(t, g.OverrideScore("visitors", 1, 1, 1), ErrInvalidTeam)

	n, err := g.AddInning()
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.NoError(t, g.OverrideScore(Home, 8, 1, 1))
	require.Equal(t, MaxRuns+1, g.Scoreboard().Totals(Home).Runs)
}
