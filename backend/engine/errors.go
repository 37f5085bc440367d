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

// Package engine implements the batting rotation and baserunner rules of a
// co-ed softball game. It is pure: no goroutines, no I/O, no globals. Callers
// own a Game and serialize access to it.
package engine

import "errors"

var (
	ErrEmptyName       = errors.New("player name is empty")
	ErrInvalidGroup    = errors.New("invalid group")
	ErrDuplicatePlayer = errors.New("duplicate player id")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownRunner   = errors.New("unknown runner")
	ErrNotOnThird      = errors.New("runner is not on third base")
	ErrOnFirst         = errors.New("runner is already on first base")
	ErrInvalidOutcome  = errors.New("invalid at-bat outcome")
	ErrInvalidToken    = errors.New("malformed runner token")
	ErrInvalidTeam     = errors.New("invalid team")
	ErrInvalidInning   = errors.New("invalid inning")
	ErrNoBatter        = errors.New("no current batter")
	ErrHoldNotAllowed  = errors.New("turn can only be held while an orange batter is up")
)
