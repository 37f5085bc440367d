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

	"github.com/ttbt-io/softball/backend/engine"
)

// Action result statuses
const (
	StatusOK           = "OK"
	StatusNoOp         = "NO_OP"
	StatusConfirmScore = "CONFIRM_SCORE"
)

// ActionResult is the outcome of one action.
type ActionResult struct {
	ID     string         `json:"id,omitempty"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	AtBat  *engine.AtBat  `json:"atBat,omitempty"`
	Player *engine.Player `json:"player,omitempty"`
	Runner *engine.Runner `json:"runner,omitempty"`
	// Removed lists the runners that left the bases with a removed player.
	Removed []engine.Runner `json:"removed,omitempty"`
	Inning  int             `json:"inning,omitempty"`
	// Replayed is set when the action id was seen before and this is the
	// earlier result.
	Replayed bool `json:"replayed,omitempty"`
}

// effects tells the hub what to do after an action was applied.
type effects struct {
	changed bool
	// writeNow skips the debounce; at-bats persist the cursor right away.
	writeNow bool
	// created is a player that exists only under a temporary id.
	created *engine.Player
	// removed is the id of a removed player.
	removed string
}

// applyAction runs one validated action against the game. On error the game
// is unchanged.
func applyAction(g *engine.Game, a Action) (ActionResult, effects, error) {
	res := ActionResult{ID: a.ID, Type: a.Type, Status: StatusOK}
	var fx effects

	switch p := a.body.(type) {
	case atBatPayload:
		ab, ok, err := g.RecordAtBat(p.Outcome)
		if err != nil {
			return res, fx, err
		}
		if !ok {
			// No batter: nothing happens and nothing is written.
			res.Status = StatusNoOp
			return res, fx, nil
		}
		res.AtBat = &ab
		fx.changed, fx.writeNow = true, true

	case runnerPayload:
		var (
			r   engine.Runner
			err error
		)
		switch a.Type {
		case ActionRunnerAdvance:
			var adv engine.AdvanceResult
			adv, err = g.AdvanceRunner(p.Runner)
			r = adv.Runner
			if err == nil && adv.ConfirmScore {
				res.Status = StatusConfirmScore
			}
		case ActionRunnerRetreat:
			r, err = g.RetreatRunner(p.Runner)
		case ActionRunnerOut:
			r, err = g.RunnerOut(p.Runner)
		default:
			return res, fx, fmt.Errorf("%w: %s", ErrMalformedAction, a.Type)
		}
		if err != nil {
			return res, fx, err
		}
		res.Runner = &r
		fx.changed = res.Status == StatusOK

	case runnerScorePayload:
		r, err := g.ConfirmScore(p.Runner, *p.Scored)
		if err != nil {
			return res, fx, err
		}
		res.Runner = &r
		fx.changed = *p.Scored

	case playerAddPayload:
		pl, err := g.AddPlayer(p.Name, p.Group)
		if err != nil {
			return res, fx, err
		}
		res.Player = &pl
		fx.changed = true
		fx.created = &pl

	case playerRemovePayload:
		pl, removed, err := g.RemovePlayer(p.PlayerID)
		if err != nil {
			return res, fx, err
		}
		res.Player = &pl
		res.Removed = removed
		fx.changed = true
		fx.removed = pl.ID

	case playerReorderPayload:
		if err := g.ReorderGroup(p.Group, *p.From, *p.To); err != nil {
			return res, fx, err
		}
		fx.changed = true

	case playerStatsPayload:
		pl, err := g.UpdatePlayerStats(p.PlayerID, engine.StatUpdate{Runs: p.Runs, Outs: p.Outs})
		if err != nil {
			return res, fx, err
		}
		res.Player = &pl
		fx.changed = true

	case setInningPayload:
		res.Inning = g.SetInning(*p.Inning)
		fx.changed = true

	case scoreOverridePayload:
		if err := g.OverrideScore(p.Team, *p.Inning, *p.Runs, *p.Outs); err != nil {
			return res, fx, err
		}
		res.Inning = *p.Inning
		fx.changed = true

	case nil:
		switch a.Type {
		case ActionToggleBattingTeam:
			g.ToggleBattingTeam()
		case ActionAddInning:
			n, err := g.AddInning()
			if err != nil {
				return res, fx, err
			}
			res.Inning = n
		case ActionHoldTurn:
			if err := g.HoldTurn(); err != nil {
				return res, fx, err
			}
		default:
			return res, fx, fmt.Errorf("%w: %s", ErrMalformedAction, a.Type)
		}
		fx.changed = true

	default:
		return res, fx, fmt.Errorf("%w: %s was not parsed", ErrMalformedAction, a.Type)
	}
	return res, fx, nil
}
