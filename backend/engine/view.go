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

import "github.com/dustin/go-humanize"

// RunnerView is a runner with the player's name resolved.
type RunnerView struct {
	Token     RunnerToken `json:"token"`
	PlayerID  string      `json:"playerId"`
	Name      string      `json:"name"`
	Base      int         `json:"base"`
	BaseLabel string      `json:"baseLabel"`
}

// ScoreView is the scoreboard as clients display it.
type ScoreView struct {
	Inning      int           `json:"inning"`
	InningLabel string        `json:"inningLabel"`
	HomeBatting bool          `json:"homeBatting"`
	Home        []InningScore `json:"home"`
	Away        []InningScore `json:"away"`
	HomeTotal   InningScore   `json:"homeTotal"`
	AwayTotal   InningScore   `json:"awayTotal"`
}

// View is everything a client needs to render the game.
type View struct {
	Slots
	Turn         Group        `json:"turn"`
	HoldTurn     bool         `json:"holdTurn,omitempty"`
	Green        []Player     `json:"green"`
	Orange       []Player     `json:"orange"`
	Runners      []RunnerView `json:"runners"`
	PendingScore *RunnerToken `json:"pendingScore,omitempty"`
	Scoreboard   ScoreView    `json:"scoreboard"`
}

// BaseLabel names a base index: "1st", "2nd" or "3rd".
func BaseLabel(base int) string {
	return humanize.Ordinal(base + 1)
}

// View renders the current state. Runner names are looked up at render time.
func (g *Game) View() View {
	v := View{
		Slots:    g.Slots(),
		Turn:     g.cursor.turn(),
		HoldTurn: g.cursor.Hold,
		Green:    g.roster.Players(Green),
		Orange:   g.roster.Players(Orange),
		Runners:  []RunnerView{},
		Scoreboard: ScoreView{
			Inning:      g.score.Inning(),
			InningLabel: humanize.Ordinal(g.score.Inning()),
			HomeBatting: g.score.HomeBatting(),
			Home:        g.score.Line(Home),
			Away:        g.score.Line(Away),
			HomeTotal:   g.score.Totals(Home),
			AwayTotal:   g.score.Totals(Away),
		},
	}
	if t, ok := g.PendingScore(); ok {
		v.PendingScore = &t
	}
	for _, r := range g.bases.List() {
		rv := RunnerView{
			Token:     r.Token,
			PlayerID:  r.PlayerID(),
			Base:      r.Base,
			BaseLabel: BaseLabel(r.Base),
		}
		if p, ok := g.roster.Lookup(r.PlayerID()); ok {
			rv.Name = p.Name
		}
		v.Runners = append(v.Runners, rv)
	}
	return v
}
