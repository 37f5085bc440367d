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
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ttbt-io/softball/backend/engine"
)

func TestParseAction(t *testing.T) {
	valid := []string{
		`{"type":"AT_BAT","payload":{"outcome":"single"}}`,
		`{"type":"AT_BAT","payload":{"outcome":"HomeRun"}}`,
		`{"id":"aaaaaaaa-aaaa-4aaa-aaaa-aaaaaaaaaaaa","type":"TOGGLE_BATTING_TEAM"}`,
		`{"type":"RUNNER_ADVANCE","payload":{"runner":"12#3"}}`,
		`{"type":"RUNNER_SCORE","payload":{"runner":"12#3","scored":false}}`,
		`{"type":"PLAYER_ADD","payload":{"name":"Ann","group":"orange"}}`,
		`{"type":"PLAYER_REORDER","payload":{"group":"green","from":0,"to":0}}`,
		`{"type":"PLAYER_STATS","payload":{"playerId":"4","runs":2}}`,
		`{"type":"SET_INNING","payload":{"inning":3}}`,
		`{"type":"SCORE_OVERRIDE","payload":{"team":"home","inning":1,"runs":4,"outs":3}}`,
		`{"type":"ADD_INNING"}`,
		`{"type":"HOLD_TURN"}`,
	}
	for _, in := range valid {
		if _, err := ParseAction(json.RawMessage(in)); err != nil {
			t.Errorf("ParseAction(%s) failed: %v", in, err)
		}
	}

	invalid := []string{
		`not json`,
		`{"payload":{}}`,
		`{"id":"not-a-uuid","type":"ADD_INNING"}`,
		`{"type":"AT_BAT"}`,
		`{"type":"AT_BAT","payload":{"outcome":"walk"}}`,
		`{"type":"RUNNER_ADVANCE","payload":{"runner":"12"}}`,
		`{"type":"RUNNER_SCORE","payload":{"runner":"12#3"}}`,
		`{"type":"PLAYER_ADD","payload":{"name":"Ann","group":"purple"}}`,
		`{"type":"PLAYER_ADD","payload":{"name":"` + strings.Repeat("x", 101) + `","group":"green"}}`,
		`{"type":"PLAYER_REMOVE","payload":{}}`,
		`{"type":"PLAYER_REORDER","payload":{"group":"green","from":1}}`,
		`{"type":"PLAYER_STATS","payload":{"playerId":"4","outs":-1}}`,
		`{"type":"SET_INNING","payload":{}}`,
		`{"type":"SCORE_OVERRIDE","payload":{"team":"visitors","inning":1,"runs":0,"outs":0}}`,
		`{"type":"NO_SUCH_THING"}`,
	}
	for _, in := range invalid {
		_, err := ParseAction(json.RawMessage(in))
		if !errors.Is(err, ErrMalformedAction) {
			t.Errorf("ParseAction(%s) = %v, want ErrMalformedAction", in, err)
		}
	}
}

func TestParseActionsBatchLimit(t *testing.T) {
	raws := make([]json.RawMessage, maxBatchSize+1)
	for i := range raws {
		raws[i] = json.RawMessage(`{"type":"ADD_INNING"}`)
	}
	if _, err := ParseActions(raws); !errors.Is(err, ErrMalformedAction) {
		t.Errorf("oversized batch: got %v", err)
	}
	actions, err := ParseActions(raws[:maxBatchSize])
	if err != nil {
		t.Fatalf("ParseActions: %v", err)
	}
	if len(actions) != maxBatchSize {
		t.Errorf("got %d actions", len(actions))
	}

	raws = []json.RawMessage{json.RawMessage(`{"type":"ADD_INNING"}`), json.RawMessage(`{"type":"AT_BAT"}`)}
	if _, err := ParseActions(raws); err == nil || !strings.HasPrefix(err.Error(), "action 1:") {
		t.Errorf("bad second action: got %v", err)
	}
}

func mustParse(t *testing.T, raw string) Action {
	t.Helper()
	a, err := ParseAction(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseAction(%s): %v", raw, err)
	}
	return a
}

func TestApplyAction(t *testing.T) {
	g := engine.NewGame(engine.Options{})

	// No batter yet.
	res, fx, err := applyAction(g, mustParse(t, `{"type":"AT_BAT","payload":{"outcome":"out"}}`))
	if err != nil || res.Status != StatusNoOp || fx.changed {
		t.Fatalf("empty game at-bat: %+v %+v %v", res, fx, err)
	}

	res, fx, err = applyAction(g, mustParse(t, `{"type":"PLAYER_ADD","payload":{"name":"Ann","group":"green"}}`))
	if err != nil {
		t.Fatalf("PLAYER_ADD: %v", err)
	}
	if fx.created == nil || fx.created.Name != "Ann" || !fx.changed {
		t.Fatalf("PLAYER_ADD effects: %+v", fx)
	}
	ann := res.Player.ID
	if _, _, err := applyAction(g, mustParse(t, `{"type":"PLAYER_ADD","payload":{"name":"Bea","group":"orange"}}`)); err != nil {
		t.Fatalf("PLAYER_ADD: %v", err)
	}

	res, fx, err = applyAction(g, mustParse(t, `{"type":"AT_BAT","payload":{"outcome":"triple"}}`))
	if err != nil {
		t.Fatalf("AT_BAT: %v", err)
	}
	if res.AtBat == nil || res.AtBat.Batter.ID != ann || res.AtBat.Runner == nil {
		t.Fatalf("AT_BAT result: %+v", res)
	}
	if !fx.changed || !fx.writeNow {
		t.Errorf("AT_BAT should write right away: %+v", fx)
	}
	token := res.AtBat.Runner.Token.String()

	// Advancing from third asks for confirmation and changes nothing durable.
	res, fx, err = applyAction(g, mustParse(t, `{"type":"RUNNER_ADVANCE","payload":{"runner":"`+token+`"}}`))
	if err != nil {
		t.Fatalf("RUNNER_ADVANCE: %v", err)
	}
	if res.Status != StatusConfirmScore || fx.changed {
		t.Errorf("advance from third: %+v %+v", res, fx)
	}
	if _, ok := g.PendingScore(); !ok {
		t.Error("no pending score")
	}

	res, fx, err = applyAction(g, mustParse(t, `{"type":"RUNNER_SCORE","payload":{"runner":"`+token+`","scored":true}}`))
	if err != nil || !fx.changed {
		t.Fatalf("RUNNER_SCORE: %+v %v", fx, err)
	}
	if p, _ := g.Roster().Lookup(ann); p.Runs != 1 {
		t.Errorf("Ann has %d runs, want 1", p.Runs)
	}
	if n := len(g.Runners()); n != 0 {
		t.Errorf("%d runners left", n)
	}

	_, _, err = applyAction(g, mustParse(t, `{"type":"RUNNER_OUT","payload":{"runner":"`+token+`"}}`))
	if !errors.Is(err, engine.ErrUnknownRunner) {
		t.Errorf("RUNNER_OUT of a scored runner: %v", err)
	}

	res, _, err = applyAction(g, mustParse(t, `{"type":"ADD_INNING"}`))
	if err != nil || res.Inning != engine.DefaultInnings+1 {
		t.Errorf("ADD_INNING: %+v %v", res, err)
	}
	res, _, err = applyAction(g, mustParse(t, `{"type":"SET_INNING","payload":{"inning":99}}`))
	if err != nil || res.Inning != engine.DefaultInnings+1 {
		t.Errorf("SET_INNING clamps: %+v %v", res, err)
	}

	// Bea (orange) is up after Ann, but a hold needs a second orange batter.
	if _, _, err := applyAction(g, mustParse(t, `{"type":"HOLD_TURN"}`)); !errors.Is(err, engine.ErrHoldNotAllowed) {
		t.Errorf("HOLD_TURN with one orange batter: %v", err)
	}
	if _, _, err := applyAction(g, mustParse(t, `{"type":"PLAYER_ADD","payload":{"name":"Cy","group":"orange"}}`)); err != nil {
		t.Fatalf("PLAYER_ADD: %v", err)
	}
	if _, _, err := applyAction(g, mustParse(t, `{"type":"HOLD_TURN"}`)); err != nil {
		t.Errorf("HOLD_TURN with orange up: %v", err)
	}

	_, _, err = applyAction(g, mustParse(t, `{"type":"PLAYER_REMOVE","payload":{"playerId":"nobody"}}`))
	if !errors.Is(err, engine.ErrUnknownPlayer) {
		t.Errorf("PLAYER_REMOVE unknown: %v", err)
	}
}
