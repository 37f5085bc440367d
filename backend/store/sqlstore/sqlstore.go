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

// Package sqlstore is the SQLite backend of the game persistence service.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/store"
)

var ErrDBConnect = errors.New("db connect error")

// Options configures the store.
type Options struct {
	// Path is the database file. Empty means a private in-memory database.
	Path        string
	AutoMigrate bool
	Debug       bool
}

// Store implements store.Repository on SQLite.
type Store struct {
	db    *sql.DB
	debug bool
	now   func() time.Time
}

var _ store.Repository = (*Store)(nil)

func dsn(path string) string {
	if path == "" {
		path = ":memory:"
	}
	v := url.Values{}
	v.Add("_pragma", "foreign_keys(1)")
	v.Add("_pragma", "busy_timeout(10000)")
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "synchronous(NORMAL)")
	v.Set("_txlock", "immediate")
	return path + "?" + v.Encode()
}

func configureConnection(db *sql.DB, path string) {
	parallelism := min(8, max(2, runtime.GOMAXPROCS(0)))
	if path == "" {
		// Every connection to :memory: is a separate database.
		parallelism = 1
	}
	db.SetMaxOpenConns(parallelism)
	db.SetMaxIdleConns(parallelism)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
}

// Open opens (and optionally migrates) the database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, errors.Join(err, ErrDBConnect)
	}
	configureConnection(db, opts.Path)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Join(err, ErrDBConnect)
	}
	if opts.AutoMigrate {
		if err := Migrate(db, MigrateUp); err != nil {
			db.Close()
			return nil, errors.Join(err, ErrDBConnect)
		}
	}
	return &Store{db: db, debug: opts.Debug, now: time.Now}, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db.BeginTx: %w", err)
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit: %w", err)
	}
	return nil
}

// playerKey converts a persisted player id to its row id.
func playerKey(id string) (int64, bool) {
	if !engine.IsPersistedID(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// touch bumps updated_at and reports ErrNotFound for an unknown game.
func (s *Store) touch(ctx context.Context, tx *sql.Tx, gameID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE games SET updated_at = ? WHERE id = ?`, s.now().UnixMilli(), gameID)
	if err != nil {
		return fmt.Errorf("touch game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateGame creates a game with the default number of innings.
func (s *Store) CreateGame(ctx context.Context, ng store.NewGame) (store.Game, error) {
	if err := ng.Validate(); err != nil {
		return store.Game{}, err
	}
	id := uuid.NewString()
	now := s.now().UnixMilli()
	st := store.NewGameState()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO games (id, home_team_name, away_team_name, game_date, owner_id,
                   current_inning, alternating_turn, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, ng.HomeTeamName, ng.AwayTeamName, ng.Date, ng.OwnerID,
			st.CurrentInning, string(st.AlternatingTurn), now, now); err != nil {
			return fmt.Errorf("insert game: %w", err)
		}
		for _, in := range st.Innings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO innings (game_id, inning_number) VALUES (?, ?)`, id, in.InningNumber); err != nil {
				return fmt.Errorf("insert inning: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return store.Game{}, err
	}
	if s.debug {
		log.Printf("SQLStore: created game %s (%s vs %s)", id, ng.AwayTeamName, ng.HomeTeamName)
	}
	return s.GetGame(ctx, id)
}

// GetGame reads a game, its roster, innings and runners in one transaction.
func (s *Store) GetGame(ctx context.Context, id string) (store.Game, error) {
	var g store.Game
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			created, updated int64
			homeBatting      int
			hold             int
			turn             string
		)
		err := tx.QueryRowContext(ctx, `
SELECT id, home_team_name, away_team_name, game_date, owner_id,
       current_inning, is_home_team_batting, last_green_index, last_orange_index,
       last_green_player_id, last_orange_player_id, alternating_turn, hold_turn,
       sync_seq, created_at, updated_at
FROM games WHERE id = ?`, id).Scan(
			&g.ID, &g.HomeTeamName, &g.AwayTeamName, &g.Date, &g.OwnerID,
			&g.CurrentInning, &homeBatting, &g.LastGreenIndex, &g.LastOrangeIndex,
			&g.LastGreenPlayerID, &g.LastOrangePlayerID, &turn, &hold,
			&g.SyncSeq, &created, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select game: %w", err)
		}
		g.IsHomeTeamBatting = homeBatting != 0
		g.HoldTurn = hold != 0
		g.AlternatingTurn = engine.Group(turn)
		g.CreatedAt = time.UnixMilli(created).UTC()
		g.UpdatedAt = time.UnixMilli(updated).UTC()

		if g.Players, err = listPlayers(ctx, tx, id); err != nil {
			return err
		}
		if g.Innings, err = listInnings(ctx, tx, id); err != nil {
			return err
		}
		g.Runners, err = listRunners(ctx, tx, id)
		return err
	})
	if err != nil {
		return store.Game{}, err
	}
	return g, nil
}

func listPlayers(ctx context.Context, tx *sql.Tx, gameID string) ([]engine.PlayerRow, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, name, group_name, runs, outs, index_in_group
FROM players WHERE game_id = ?
ORDER BY CASE group_name WHEN 'green' THEN 0 ELSE 1 END, index_in_group, id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer rows.Close()
	out := []engine.PlayerRow{}
	for rows.Next() {
		var (
			p  engine.PlayerRow
			id int64
		)
		if err := rows.Scan(&id, &p.Name, &p.GroupName, &p.Runs, &p.Outs, &p.IndexInGroup); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.ID = strconv.FormatInt(id, 10)
		out = append(out, p)
	}
	return out, rows.Err()
}

func listInnings(ctx context.Context, tx *sql.Tx, gameID string) ([]engine.InningRow, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT inning_number, home_runs, home_outs, away_runs, away_outs
FROM innings WHERE game_id = ? ORDER BY inning_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select innings: %w", err)
	}
	defer rows.Close()
	var out []engine.InningRow
	for rows.Next() {
		var in engine.InningRow
		if err := rows.Scan(&in.InningNumber, &in.HomeRuns, &in.HomeOuts, &in.AwayRuns, &in.AwayOuts); err != nil {
			return nil, fmt.Errorf("scan inning: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func listRunners(ctx context.Context, tx *sql.Tx, gameID string) ([]engine.RunnerRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT player_id, base_index FROM runners WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("select runners: %w", err)
	}
	defer rows.Close()
	out := []engine.RunnerRow{}
	for rows.Next() {
		var (
			r  engine.RunnerRow
			id int64
		)
		if err := rows.Scan(&id, &r.BaseIndex); err != nil {
			return nil, fmt.Errorf("scan runner: %w", err)
		}
		r.PlayerID = strconv.FormatInt(id, 10)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListGames lists games, newest first.
func (s *Store) ListGames(ctx context.Context) ([]store.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT g.id, g.home_team_name, g.away_team_name, g.game_date, g.owner_id,
       g.created_at, g.updated_at,
       (SELECT COUNT(*) FROM players p WHERE p.game_id = g.id),
       COALESCE((SELECT SUM(home_runs) FROM innings i WHERE i.game_id = g.id), 0),
       COALESCE((SELECT SUM(away_runs) FROM innings i WHERE i.game_id = g.id), 0)
FROM games g
ORDER BY g.created_at DESC, g.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()
	out := []store.Summary{}
	for rows.Next() {
		var (
			sm               store.Summary
			created, updated int64
		)
		if err := rows.Scan(&sm.ID, &sm.HomeTeamName, &sm.AwayTeamName, &sm.Date, &sm.OwnerID,
			&created, &updated, &sm.PlayerCount, &sm.HomeRuns, &sm.AwayRuns); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		sm.CreatedAt = time.UnixMilli(created).UTC()
		sm.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sm)
	}
	return out, rows.Err()
}

// SaveState writes a play-state snapshot.
func (s *Store) SaveState(ctx context.Context, id string, st engine.GameState) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var stored uint64
		err := tx.QueryRowContext(ctx, `SELECT sync_seq FROM games WHERE id = ?`, id).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select sync_seq: %w", err)
		}
		if st.SyncSeq > 0 && st.SyncSeq < stored {
			return fmt.Errorf("%w: %d < %d", store.ErrStaleWrite, st.SyncSeq, stored)
		}
		seq := stored
		if st.SyncSeq > 0 {
			seq = st.SyncSeq
		}
		turn := st.AlternatingTurn
		if !turn.Valid() {
			turn = engine.Green
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE games SET current_inning = ?, is_home_team_batting = ?,
       last_green_index = ?, last_orange_index = ?,
       last_green_player_id = ?, last_orange_player_id = ?,
       alternating_turn = ?, hold_turn = ?, sync_seq = ?, updated_at = ?
WHERE id = ?`,
			max(st.CurrentInning, 1), boolInt(st.IsHomeTeamBatting),
			max(st.LastGreenIndex, 0), max(st.LastOrangeIndex, 0),
			st.LastGreenPlayerID, st.LastOrangePlayerID,
			string(turn), boolInt(st.HoldTurn), seq, s.now().UnixMilli(), id); err != nil {
			return fmt.Errorf("update game: %w", err)
		}

		for _, row := range st.Players {
			if err := s.upsertPlayer(ctx, tx, id, row); err != nil {
				return err
			}
		}
		for _, pid := range st.DeletedPlayerIDs {
			key, ok := playerKey(pid)
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE id = ? AND game_id = ?`, key, id); err != nil {
				return fmt.Errorf("delete player: %w", err)
			}
		}
		for _, in := range st.Innings {
			if in.InningNumber < 1 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO innings (game_id, inning_number, home_runs, home_outs, away_runs, away_outs)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (game_id, inning_number) DO UPDATE SET
    home_runs = excluded.home_runs, home_outs = excluded.home_outs,
    away_runs = excluded.away_runs, away_outs = excluded.away_outs`,
				id, in.InningNumber, max(in.HomeRuns, 0), max(in.HomeOuts, 0),
				max(in.AwayRuns, 0), max(in.AwayOuts, 0)); err != nil {
				return fmt.Errorf("upsert inning: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM runners WHERE game_id = ?`, id); err != nil {
			return fmt.Errorf("delete runners: %w", err)
		}
		for _, r := range st.Runners {
			key, ok := playerKey(r.PlayerID)
			if !ok {
				if s.debug {
					log.Printf("SQLStore: game %s: skipping runner with unpersisted player id %q", id, r.PlayerID)
				}
				continue
			}
			base := min(max(r.BaseIndex, engine.FirstBase), engine.ThirdBase)
			res, err := tx.ExecContext(ctx, `
INSERT INTO runners (game_id, player_id, base_index)
SELECT ?, id, ? FROM players WHERE id = ? AND game_id = ?`, id, base, key, id)
			if err != nil {
				return fmt.Errorf("insert runner: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 && s.debug {
				log.Printf("SQLStore: game %s: skipping runner for unknown player %s", id, r.PlayerID)
			}
		}
		return nil
	})
}

// upsertPlayer inserts a row without an id and updates a row with one.
// Rows with an id that is not a player of the game are skipped.
func (s *Store) upsertPlayer(ctx context.Context, tx *sql.Tx, gameID string, row engine.PlayerRow) error {
	p, err := store.NormalizePlayer(row)
	if err != nil {
		log.Printf("SQLStore: game %s: skipping player %q: %v", gameID, row.ID, err)
		return nil
	}
	if p.ID == "" {
		_, err := tx.ExecContext(ctx, `
INSERT INTO players (game_id, name, group_name, runs, outs, index_in_group)
VALUES (?, ?, ?, ?, ?, ?)`, gameID, p.Name, p.GroupName, p.Runs, p.Outs, max(p.IndexInGroup, 0))
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		return nil
	}
	key, ok := playerKey(p.ID)
	if !ok {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE players SET name = ?, group_name = ?, runs = ?, outs = ?, index_in_group = ?
WHERE id = ? AND game_id = ?`, p.Name, p.GroupName, p.Runs, p.Outs, max(p.IndexInGroup, 0), key, gameID); err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	return nil
}

// DeleteGame deletes a game with its players, innings and runners.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListPlayers returns the roster, green first, in batting order.
func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]engine.PlayerRow, error) {
	var out []engine.PlayerRow
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, gameID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select game: %w", err)
		}
		out, err = listPlayers(ctx, tx, gameID)
		return err
	})
	return out, err
}

// CreatePlayer adds one player. A negative index appends to the group.
func (s *Store) CreatePlayer(ctx context.Context, gameID string, row engine.PlayerRow) (engine.PlayerRow, error) {
	p, err := store.NormalizePlayer(row)
	if err != nil {
		return engine.PlayerRow{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, gameID); err != nil {
			return err
		}
		if p.IndexInGroup < 0 {
			if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(index_in_group) + 1, 0) FROM players
WHERE game_id = ? AND group_name = ?`, gameID, p.GroupName).Scan(&p.IndexInGroup); err != nil {
				return fmt.Errorf("select next index: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO players (game_id, name, group_name, runs, outs, index_in_group)
VALUES (?, ?, ?, ?, ?, ?)`, gameID, p.Name, p.GroupName, p.Runs, p.Outs, p.IndexInGroup)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		p.ID = strconv.FormatInt(id, 10)
		return nil
	})
	if err != nil {
		return engine.PlayerRow{}, err
	}
	return p, nil
}

// UpdatePlayer changes the given fields of one player.
func (s *Store) UpdatePlayer(ctx context.Context, gameID string, patch store.PlayerPatch) (engine.PlayerRow, error) {
	key, ok := playerKey(patch.ID)
	if !ok {
		return engine.PlayerRow{}, fmt.Errorf("%w: player id %q", store.ErrInvalid, patch.ID)
	}
	var out engine.PlayerRow
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, gameID); err != nil {
			return err
		}
		p := engine.PlayerRow{ID: patch.ID}
		err := tx.QueryRowContext(ctx, `
SELECT name, group_name, runs, outs, index_in_group FROM players
WHERE id = ? AND game_id = ?`, key, gameID).Scan(&p.Name, &p.GroupName, &p.Runs, &p.Outs, &p.IndexInGroup)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select player: %w", err)
		}
		if p, err = store.ApplyPatch(p, patch); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE players SET name = ?, group_name = ?, runs = ?, outs = ?, index_in_group = ?
WHERE id = ? AND game_id = ?`, p.Name, p.GroupName, p.Runs, p.Outs, p.IndexInGroup, key, gameID); err != nil {
			return fmt.Errorf("update player: %w", err)
		}
		out = p
		return nil
	})
	return out, err
}

// DeletePlayer removes one player and the runners they put on base.
func (s *Store) DeletePlayer(ctx context.Context, gameID, playerID string) error {
	key, ok := playerKey(playerID)
	if !ok {
		return fmt.Errorf("%w: player id %q", store.ErrInvalid, playerID)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, gameID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM players WHERE id = ? AND game_id = ?`, key, gameID)
		if err != nil {
			return fmt.Errorf("delete player: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// UpdateIndices sets index_in_group for the listed players. Entries that do
// not name a player of the game are skipped. It returns how many were
// updated.
func (s *Store) UpdateIndices(ctx context.Context, gameID string, updates []store.IndexUpdate) (int, error) {
	var count int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, gameID); err != nil {
			return err
		}
		for _, u := range updates {
			key, ok := playerKey(u.ID)
			if !ok || u.IndexInGroup < 0 {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE players SET index_in_group = ? WHERE id = ? AND game_id = ?`, u.IndexInGroup, key, gameID)
			if err != nil {
				return fmt.Errorf("update index: %w", err)
			}
			n, _ := res.RowsAffected()
			count += int(n)
		}
		return nil
	})
	return count, err
}
