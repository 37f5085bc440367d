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
	"strconv"
	"strings"
)

const (
	FirstBase  = 0
	SecondBase = 1
	ThirdBase  = 2
)

// RunnerToken identifies one baserunner instance: the player who reached base
// and the plate appearance sequence that put them there. The same player can
// be on base more than once under different tokens.
type RunnerToken struct {
	PlayerID string
	Seq      uint64
}

const tokenSep = "#"

// String returns the wire form, "<playerId>#<seq>".
func (t RunnerToken) String() string {
	return t.PlayerID + tokenSep + strconv.FormatUint(t.Seq, 10)
}

// ParseRunnerToken parses the wire form of a token.
func ParseRunnerToken(s string) (RunnerToken, error) {
	i := strings.LastIndex(s, tokenSep)
	if i <= 0 {
		return RunnerToken{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	seq, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return RunnerToken{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	return RunnerToken{PlayerID: s[:i], Seq: seq}, nil
}

func (t RunnerToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *RunnerToken) UnmarshalText(b []byte) error {
	v, err := ParseRunnerToken(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Runner is a player standing on first, second or third.
type Runner struct {
	Token RunnerToken `json:"token"`
	Base  int         `json:"base"`
}

// PlayerID returns the id of the player behind the runner.
func (r Runner) PlayerID() string {
	return r.Token.PlayerID
}

// clampBase forces a base index into {0,1,2}.
func clampBase(b int) (int, bool) {
	switch {
	case b < FirstBase:
		return FirstBase, true
	case b > ThirdBase:
		return ThirdBase, true
	}
	return b, false
}

// Bases is the live runner list, in the order runners reached base.
type Bases struct {
	runners []Runner
}

// List returns a copy of the runners.
func (b *Bases) List() []Runner {
	return slices.Clone(b.runners)
}

// Len returns the number of runners on base.
func (b *Bases) Len() int {
	return len(b.runners)
}

// Place puts a runner on base. Out-of-range bases are clamped; the second
// result reports whether that happened.
func (b *Bases) Place(r Runner) (Runner, bool) {
	var clamped bool
	r.Base, clamped = clampBase(r.Base)
	b.runners = append(b.runners, r)
	return r, clamped
}

// Get returns the runner with the given token.
func (b *Bases) Get(t RunnerToken) (Runner, bool) {
	if i := b.find(t); i >= 0 {
		return b.runners[i], true
	}
	return Runner{}, false
}

func (b *Bases) find(t RunnerToken) int {
	return slices.IndexFunc(b.runners, func(r Runner) bool { return r.Token == t })
}

// Forward moves a runner up one base. A runner on third does not move; the
// second result is true and the caller must ask whether the runner scored.
func (b *Bases) Forward(t RunnerToken) (Runner, bool, error) {
	i := b.find(t)
	if i < 0 {
		return Runner{}, false, fmt.Errorf("%w: %s", ErrUnknownRunner, t)
	}
	r := &b.runners[i]
	if r.Base >= ThirdBase {
		return *r, true, nil
	}
	r.Base++
	return *r, false, nil
}

// Back moves a runner back one base. Only runners past first can move back.
func (b *Bases) Back(t RunnerToken) (Runner, error) {
	i := b.find(t)
	if i < 0 {
		return Runner{}, fmt.Errorf("%w: %s", ErrUnknownRunner, t)
	}
	r := &b.runners[i]
	if r.Base <= FirstBase {
		return *r, ErrOnFirst
	}
	r.Base--
	return *r, nil
}

// Take removes a runner from the list.
func (b *Bases) Take(t RunnerToken) (Runner, error) {
	i := b.find(t)
	if i < 0 {
		return Runner{}, fmt.Errorf("%w: %s", ErrUnknownRunner, t)
	}
	r := b.runners[i]
	b.runners = slices.Delete(b.runners, i, i+1)
	return r, nil
}

// Retain drops every runner whose player fails keep and returns them.
func (b *Bases) Retain(keep func(playerID string) bool) []Runner {
	var dropped []Runner
	b.runners = slices.DeleteFunc(b.runners, func(r Runner) bool {
		if keep(r.PlayerID()) {
			return false
		}
		dropped = append(dropped, r)
		return true
	})
	return dropped
}

func (b *Bases) rebind(oldID, newID string) {
	for i := range b.runners {
		if b.runners[i].Token.PlayerID == oldID {
			b.runners[i].Token.PlayerID = newID
		}
	}
}
