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

package backend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
)

// renderBoxScore formats a game as plain text: the line score, the state of
// the current half inning and both batting groups.
func renderBoxScore(meta store.Game, v engine.View) string {
	var b strings.Builder

	b.WriteString(meta.AwayTeamName + " at " + meta.HomeTeamName)
	if meta.Date != "" {
		b.WriteString(", " + meta.Date)
	}
	b.WriteString("\n\n")

	sb := v.Scoreboard
	w := max(len("Team"), len(meta.HomeTeamName), len(meta.AwayTeamName))
	fmt.Fprintf(&b, "%-*s", w, "Team")
	for i := range sb.Away {
		fmt.Fprintf(&b, " %3d", i+1)
	}
	fmt.Fprintf(&b, "  %3s\n", "R")
	line := func(name string, cells []engine.InningScore, total engine.InningScore) {
		fmt.Fprintf(&b, "%-*s", w, name)
		for _, c := range cells {
			fmt.Fprintf(&b, " %3d", c.Runs)
		}
		fmt.Fprintf(&b, "  %3d\n", total.Runs)
	}
	line(meta.AwayTeamName, sb.Away, sb.AwayTotal)
	line(meta.HomeTeamName, sb.Home, sb.HomeTotal)
	b.WriteString("\n")

	half, cells := "Top", sb.Away
	if sb.HomeBatting {
		half, cells = "Bottom", sb.Home
	}
	outs := 0
	if i := sb.Inning - 1; i >= 0 && i < len(cells) {
		outs = cells[i].Outs
	}
	fmt.Fprintf(&b, "%s of the %s, %s\n", half, sb.InningLabel, plural(outs, "out"))

	fmt.Fprintf(&b, "At bat: %s\n", slotName(v.Current))
	fmt.Fprintf(&b, "On deck: %s\n", slotName(v.OnDeck))
	fmt.Fprintf(&b, "In the hole: %s\n", slotName(v.InTheHole))
	if len(v.Runners) == 0 {
		b.WriteString("Bases empty\n")
	} else {
		on := make([]string, 0, len(v.Runners))
		for _, r := range v.Runners {
			on = append(on, fmt.Sprintf("%s (%s)", r.Name, r.BaseLabel))
		}
		b.WriteString("On base: " + strings.Join(on, ", ") + "\n")
	}

	nw := 0
	for _, p := range slices.Concat(v.Green, v.Orange) {
		nw = max(nw, len(p.Name))
	}
	group := func(label string, players []engine.Player) {
		b.WriteString("\n" + label + "\n")
		if len(players) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, p := range players {
			fmt.Fprintf(&b, "  %-*s  R %d  O %d\n", nw, p.Name, p.Runs, p.Outs)
		}
	}
	group("Green", v.Green)
	group("Orange", v.Orange)
	return b.String()
}

func slotName(p *engine.Player) string {
	if p == nil {
		return "-"
	}
	return p.Name
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
