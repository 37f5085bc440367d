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
)

// Team is the home or away side of the scoreboard.
type Team string

const (
	Home Team = "home"
	Away Team = "away"
)

// ParseTeam accepts "home" or "away".
func ParseTeam(s string) (Team, error) {
	switch t := Team(s); t {
	case Home, Away:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTeam, s)
}

const (
	DefaultInnings = 7
	MaxInnings     = 99
	MaxOuts        = 3
	MaxRuns        = 999
)

// InningScore is one team's line for one inning.
type InningScore struct {
	Runs int `json:"runs"`
	Outs int `json:"outs"`
}

// Scoreboard holds the per-inning lines of both teams, the current inning
// (1-based) and which team is batting.
type Scoreboard struct {
	home        []InningScore
	away        []InningScore
	inning      int
	homeBatting bool
}

// NewScoreboard returns a scoreboard with n empty innings, inning 1, the away
// team batting.
func NewScoreboard(n int) *Scoreboard {
	n = min(max(n, 1), MaxInnings)
	return &Scoreboard{
		home:   make([]InningScore, n),
		away:   make([]InningScore, n),
		inning: 1,
	}
}

// Innings returns the number of innings on the board.
func (s *Scoreboard) Innings() int {
	return len(s.home)
}

// Inning returns the current inning.
func (s *Scoreboard) Inning() int {
	return s.inning
}

// HomeBatting reports whether the home team is at bat.
func (s *Scoreboard) HomeBatting() bool {
	return s.homeBatting
}

// BattingTeam returns the team at bat.
func (s *Scoreboard) BattingTeam() Team {
	if s.homeBatting {
		return Home
	}
	return Away
}

// Line returns a copy of a team's innings.
func (s *Scoreboard) Line(t Team) []InningScore {
	if t == Home {
		return slices.Clone(s.home)
	}
	return slices.Clone(s.away)
}

// Cell returns one team's score for one inning.
func (s *Scoreboard) Cell(t Team, inning int) (InningScore, bool) {
	c := s.cell(t, inning)
	if c == nil {
		return InningScore{}, false
	}
	return *c, true
}

func (s *Scoreboard) cell(t Team, inning int) *InningScore {
	if inning < 1 || inning > len(s.home) {
		return nil
	}
	if t == Home {
		return &s.home[inning-1]
	}
	return &s.away[inning-1]
}

// Record adds runs and outs from play to the batting team's current inning.
// Outs stop at three.
func (s *Scoreboard) Record(runs, outs int) InningScore {
	c := s.cell(s.BattingTeam(), s.inning)
	if c == nil {
		return InningScore{}
	}
	c.Runs = min(max(c.Runs+runs, 0), MaxRuns)
	c.Outs = min(max(c.Outs+outs, 0), MaxOuts)
	return *c
}

// Override sets one cell directly. It is an operator correction, so outs are
// only kept non-negative, not capped.
func (s *Scoreboard) Override(t Team, inning, runs, outs int) error {
	if t != Home && t != Away {
		return fmt.Errorf("%w: %q", ErrInvalidTeam, t)
	}
	c := s.cell(t, inning)
	if c == nil {
		return fmt.Errorf("%w: %d", ErrInvalidInning, inning)
	}
	c.Runs = min(max(runs, 0), MaxRuns)
	c.Outs = max(outs, 0)
	return nil
}

// SetInning moves to inning n, clamped to the board.
func (s *Scoreboard) SetInning(n int) int {
	s.inning = min(max(n, 1), len(s.home))
	return s.inning
}

// SetHomeBatting sets which team is at bat.
func (s *Scoreboard) SetHomeBatting(v bool) {
	s.homeBatting = v
}

// ToggleBatting switches the team at bat.
func (s *Scoreboard) ToggleBatting() bool {
	s.homeBatting = !s.homeBatting
	return s.homeBatting
}

// AddInning appends an extra inning and returns the new count.
func (s *Scoreboard) AddInning() (int, error) {
	if len(s.home) >= MaxInnings {
		return len(s.home), fmt.Errorf("%w: at most %d innings", ErrInvalidInning, MaxInnings)
	}
	s.home = append(s.home, InningScore{})
	s.away = append(s.away, InningScore{})
	return len(s.home), nil
}

// Totals sums a team's runs and outs over all innings.
func (s *Scoreboard) Totals(t Team) InningScore {
	var sum InningScore
	for _, c := range s.Line(t) {
		sum.Runs += c.Runs
		sum.Outs += c.Outs
	}
	return sum
}
