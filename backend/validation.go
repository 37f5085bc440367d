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
	"fmt"
	"net/mail"
	"regexp"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a bare, valid email address.
func isValidEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// ErrMalformedAction is returned for actions that fail validation. Nothing
// is applied.
var ErrMalformedAction = errors.New("malformed action")

const maxBatchSize = 100

// Action types
const (
	ActionAtBat             = "AT_BAT"
	ActionRunnerAdvance     = "RUNNER_ADVANCE"
	ActionRunnerRetreat     = "RUNNER_RETREAT"
	ActionRunnerScore       = "RUNNER_SCORE"
	ActionRunnerOut         = "RUNNER_OUT"
	ActionPlayerAdd         = "PLAYER_ADD"
	ActionPlayerRemove      = "PLAYER_REMOVE"
	ActionPlayerReorder     = "PLAYER_REORDER"
	ActionPlayerStats       = "PLAYER_STATS"
	ActionSetInning         = "SET_INNING"
	ActionToggleBattingTeam = "TOGGLE_BATTING_TEAM"
	ActionScoreOverride     = "SCORE_OVERRIDE"
	ActionAddInning         = "ADD_INNING"
	ActionHoldTurn          = "HOLD_TURN"
)

// Action is one client command for a game. ID is optional; when set, a
// retried action with the same ID is answered without being applied again.
type Action struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// decoded payload, set by ParseAction
	body any
}

type atBatPayload struct {
	Outcome engine.Outcome `json:"outcome"`
}

type runnerPayload struct {
	Runner engine.RunnerToken `json:"runner"`
}

type runnerScorePayload struct {
	Runner engine.RunnerToken `json:"runner"`
	Scored *bool              `json:"scored"`
}

type playerAddPayload struct {
	Name  string       `json:"name"`
	Group engine.Group `json:"group"`
}

type playerRemovePayload struct {
	PlayerID string `json:"playerId"`
}

type playerReorderPayload struct {
	Group engine.Group `json:"group"`
	From  *int         `json:"from"`
	To    *int         `json:"to"`
}

type playerStatsPayload struct {
	PlayerID string `json:"playerId"`
	Runs     *int   `json:"runs,omitempty"`
	Outs     *int   `json:"outs,omitempty"`
}

type setInningPayload struct {
	Inning *int `json:"inning"`
}

type scoreOverridePayload struct {
	Team   engine.Team `json:"team"`
	Inning *int        `json:"inning"`
	Runs   *int        `json:"runs"`
	Outs   *int        `json:"outs"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedAction, fmt.Sprintf(format, args...))
}

// ParseAction decodes and validates a single action from raw JSON.
func ParseAction(raw json.RawMessage) (Action, error) {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, malformed("invalid action JSON")
	}
	if a.ID != "" && !isValidUUID(a.ID) {
		return Action{}, malformed("invalid action ID: %s", a.ID)
	}
	if a.Type == "" {
		return Action{}, malformed("missing action type")
	}
	body, err := decodePayload(a.Type, a.Payload)
	if err != nil {
		return Action{}, err
	}
	a.body = body
	return a, nil
}

// ParseActions validates a batch. The whole batch is rejected if any action
// is malformed.
func ParseActions(raws []json.RawMessage) ([]Action, error) {
	if len(raws) > maxBatchSize {
		return nil, malformed("batch size too large (max %d)", maxBatchSize)
	}
	out := make([]Action, 0, len(raws))
	for i, raw := range raws {
		a, err := ParseAction(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// decodePayload unmarshals and checks the payload based on the action type.
func decodePayload(actionType string, payload json.RawMessage) (any, error) {
	unmarshal := func(v any) error {
		if len(payload) == 0 {
			return malformed("%s: missing payload", actionType)
		}
		if err := json.Unmarshal(payload, v); err != nil {
			return malformed("%s: %v", actionType, err)
		}
		return nil
	}

	switch actionType {
	case ActionAtBat:
		var p atBatPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		o, err := engine.ParseOutcome(string(p.Outcome))
		if err != nil {
			return nil, malformed("%v", err)
		}
		p.Outcome = o
		return p, nil

	case ActionRunnerAdvance, ActionRunnerRetreat, ActionRunnerOut:
		var p runnerPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if p.Runner.PlayerID == "" {
			return nil, malformed("missing runner")
		}
		return p, nil

	case ActionRunnerScore:
		var p runnerScorePayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if p.Runner.PlayerID == "" {
			return nil, malformed("missing runner")
		}
		if p.Scored == nil {
			return nil, malformed("missing scored")
		}
		return p, nil

	case ActionPlayerAdd:
		var p playerAddPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if len(p.Name) > store.MaxPlayerNameLen {
			return nil, malformed("name too long (max %d chars)", store.MaxPlayerNameLen)
		}
		g, err := engine.ParseGroup(string(p.Group))
		if err != nil {
			return nil, malformed("%v", err)
		}
		p.Group = g
		return p, nil

	case ActionPlayerRemove:
		var p playerRemovePayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if p.PlayerID == "" {
			return nil, malformed("missing playerId")
		}
		return p, nil

	case ActionPlayerReorder:
		var p playerReorderPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		g, err := engine.ParseGroup(string(p.Group))
		if err != nil {
			return nil, malformed("%v", err)
		}
		p.Group = g
		if p.From == nil || p.To == nil {
			return nil, malformed("from and to are required")
		}
		return p, nil

	case ActionPlayerStats:
		var p playerStatsPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if p.PlayerID == "" {
			return nil, malformed("missing playerId")
		}
		if (p.Runs != nil && *p.Runs < 0) || (p.Outs != nil && *p.Outs < 0) {
			return nil, malformed("runs and outs must not be negative")
		}
		return p, nil

	case ActionSetInning:
		var p setInningPayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		if p.Inning == nil {
			return nil, malformed("missing inning")
		}
		return p, nil

	case ActionScoreOverride:
		var p scoreOverridePayload
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		t, err := engine.ParseTeam(string(p.Team))
		if err != nil {
			return nil, malformed("%v", err)
		}
		p.Team = t
		if p.Inning == nil || p.Runs == nil || p.Outs == nil {
			return nil, malformed("inning, runs and outs are required")
		}
		if *p.Runs < 0 || *p.Outs < 0 {
			return nil, malformed("runs and outs must not be negative")
		}
		return p, nil

	case ActionToggleBattingTeam, ActionAddInning, ActionHoldTurn:
		return nil, nil

	default:
		return nil, malformed("unknown action type: %s", actionType)
	}
}
