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
	"strings"
)

// Outcome is the result of one plate appearance.
type Outcome string

const (
	Single  Outcome = "single"
	Double  Outcome = "double"
	Triple  Outcome = "triple"
	HomeRun Outcome = "homerun"
	Out     Outcome = "out"
)

// ParseOutcome accepts the outcome names, case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case Single, Double, Triple, HomeRun, Out:
		return o, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// base returns where the batter ends up, if they stay on base.
func (o Outcome) base() (int, bool) {
	switch o {
	case Single:
		return FirstBase, true
	case Double:
		return SecondBase, true
	case Triple:
		return ThirdBase, true
	}
	return 0, false
}

// AtBat is the full effect of one plate appearance. It is computed without
// touching any state; Game.RecordAtBat applies it.
type AtBat struct {
	Batter  Player  `json:"batter"`
	Outcome Outcome `json:"outcome"`
	// Runs and Outs are credited to both the batter and the batting team's
	// current inning.
	Runs   int     `json:"runs"`
	Outs   int     `json:"outs"`
	Runner *Runner `json:"runner,omitempty"`
	Cursor Cursor  `json:"cursor"`
}

// TurnFlipped reports whether the plate appearance handed the turn to the
// other group.
func (a AtBat) TurnFlipped(before Cursor) bool {
	return a.Cursor.turn() != before.turn()
}

// ResolveAtBat computes the effect of outcome for the current batter. seq is
// the sequence for a runner token, used only when the batter reaches base.
// With no current batter, or an unknown outcome, there is nothing to resolve
// and ok is false.
func ResolveAtBat(c Cursor, green, orange []Player, o Outcome, seq uint64) (AtBat, bool) {
	turn := c.turn()
	batting := green
	if turn == Orange {
		batting = orange
	}
	if len(batting) == 0 {
		return AtBat{}, false
	}
	pos := wrap(c.Index(turn), len(batting))
	batter := batting[pos]

	ab := AtBat{
		Batter:  batter,
		Outcome: o,
		Cursor:  c.afterBatting(batter, pos, len(batting)),
	}
	switch o {
	case Out:
		ab.Outs = 1
	case HomeRun:
		ab.Runs = 1
	default:
		base, ok := o.base()
		if !ok {
			return AtBat{}, false
		}
		ab.Runner = &Runner{
			Token: RunnerToken{PlayerID: batter.ID, Seq: seq},
			Base:  base,
		}
	}
	return ab, true
}
