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

// Package store defines the game persistence contract shared by the SQLite
// and file backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ttbt-io/softball/backend/engine"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrStaleWrite = errors.New("stale write")
	ErrInvalid    = errors.New("invalid")
)

const (
	MaxTeamNameLen   = 100
	MaxPlayerNameLen = 100
	DateLayout       = "2006-01-02"
)

// Game is a stored game: its scalar fields and its play state.
type Game struct {
	ID           string    `json:"id"`
	HomeTeamName string    `json:"home_team_name"`
	AwayTeamName string    `json:"away_team_name"`
	Date         string    `json:"date"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	engine.GameState
}

// Summary is a game as listed, without the play state.
type Summary struct {
	ID           string    `json:"id"`
	HomeTeamName string    `json:"home_team_name"`
	AwayTeamName string    `json:"away_team_name"`
	Date         string    `json:"date"`
	OwnerID      string    `json:"owner_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	PlayerCount  int       `json:"player_count"`
	HomeRuns     int       `json:"home_runs"`
	AwayRuns     int       `json:"away_runs"`
}

// NewGame is what a client supplies to create a game.
type NewGame struct {
	HomeTeamName string `json:"home_team_name"`
	AwayTeamName string `json:"away_team_name"`
	Date         string `json:"date,omitempty"`
	OwnerID      string `json:"-"`
}

// Validate trims the names and checks the fields.
func (n *NewGame) Validate() error {
	n.HomeTeamName = strings.TrimSpace(n.HomeTeamName)
	n.AwayTeamName = strings.TrimSpace(n.AwayTeamName)
	n.Date = strings.TrimSpace(n.Date)
	if n.HomeTeamName == "" || n.AwayTeamName == "" {
		return fmt.Errorf("%w: home and away team names are required", ErrInvalid)
	}
	if len(n.HomeTeamName) > MaxTeamNameLen || len(n.AwayTeamName) > MaxTeamNameLen {
		return fmt.Errorf("%w: team name exceeds %d characters", ErrInvalid, MaxTeamNameLen)
	}
	if n.Date != "" {
		if _, err := time.Parse(DateLayout, n.Date); err != nil {
			return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
		}
	}
	return nil
}

// PlayerPatch changes some fields of one player. Nil fields are kept.
type PlayerPatch struct {
	ID           string  `json:"id"`
	Name         *string `json:"name,omitempty"`
	GroupName    *string `json:"group_name,omitempty"`
	Runs         *int    `json:"runs,omitempty"`
	Outs         *int    `json:"outs,omitempty"`
	IndexInGroup *int    `json:"index_in_group,omitempty"`
}

// IndexUpdate moves one player within its group.
type IndexUpdate struct {
	ID           string `json:"id"`
	IndexInGroup int    `json:"index_in_group"`
}

// Repository is the Game Persistence Service.
//
// SaveState is a full replace of the game's runner rows and an upsert of
// everything else it carries, so writing the same state twice is the same as
// writing it once. A state whose SyncSeq is below the stored one is rejected
// with ErrStaleWrite; a zero SyncSeq is not sequenced. Runners whose player
// is not a player of the game are skipped.
type Repository interface {
	CreateGame(ctx context.Context, g NewGame) (Game, error)
	GetGame(ctx context.Context, id string) (Game, error)
	ListGames(ctx context.Context) ([]Summary, error)
	SaveState(ctx context.Context, id string, st engine.GameState) error
	DeleteGame(ctx context.Context, id string) error

	ListPlayers(ctx context.Context, gameID string) ([]engine.PlayerRow, error)
	CreatePlayer(ctx context.Context, gameID string, p engine.PlayerRow) (engine.PlayerRow, error)
	UpdatePlayer(ctx context.Context, gameID string, p PlayerPatch) (engine.PlayerRow, error)
	DeletePlayer(ctx context.Context, gameID, playerID string) error
	UpdateIndices(ctx context.Context, gameID string, updates []IndexUpdate) (int, error)

	Close() error
}

// NormalizePlayer trims and validates a player row before it is stored.
// The group name is reduced to "green" or "orange".
func NormalizePlayer(p engine.PlayerRow) (engine.PlayerRow, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, fmt.Errorf("%w: player name is required", ErrInvalid)
	}
	if len(p.Name) > MaxPlayerNameLen {
		return p, fmt.Errorf("%w: player name exceeds %d characters", ErrInvalid, MaxPlayerNameLen)
	}
	p.GroupName = string(engine.GroupFromLabel(p.GroupName))
	p.Runs = max(p.Runs, 0)
	p.Outs = max(p.Outs, 0)
	return p, nil
}

// ApplyPatch applies a patch to a player row.
func ApplyPatch(p engine.PlayerRow, patch PlayerPatch) (engine.PlayerRow, error) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.GroupName != nil {
		p.GroupName = *patch.GroupName
	}
	if patch.Runs != nil {
		p.Runs = *patch.Runs
	}
	if patch.Outs != nil {
		p.Outs = *patch.Outs
	}
	if patch.IndexInGroup != nil {
		p.IndexInGroup = max(*patch.IndexInGroup, 0)
	}
	return NormalizePlayer(p)
}

// NewGameState returns the play state of a freshly created game.
func NewGameState() engine.GameState {
	st := engine.GameState{
		CurrentInning:   1,
		AlternatingTurn: engine.Green,
		Runners:         []engine.RunnerRow{},
	}
	for i := 1; i <= engine.DefaultInnings; i++ {
		st.Innings = append(st.Innings, engine.InningRow{InningNumber: i})
	}
	return st
}

// Summarize reduces a game to its summary.
func Summarize(g Game) Summary {
	s := Summary{
		ID:           g.ID,
		HomeTeamName: g.HomeTeamName,
		AwayTeamName: g.AwayTeamName,
		Date:         g.Date,
		OwnerID:      g.OwnerID,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		PlayerCount:  len(g.Players),
	}
	for _, in := range g.Innings {
		s.HomeRuns += in.HomeRuns
		s.AwayRuns += in.AwayRuns
	}
	return s
}
