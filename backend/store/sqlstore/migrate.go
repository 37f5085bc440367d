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

package sqlstore

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationAction selects the direction of a schema migration.
type MigrationAction int

const (
	// MigrateUp applies every pending migration.
	MigrateUp MigrationAction = iota
	// MigrateDown reverts every migration.
	MigrateDown
	// MigrateUpOne applies the next migration.
	MigrateUpOne
	// MigrateDownOne reverts the last migration.
	MigrateDownOne
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	ErrMigrate = errors.New("failed to migrate db schema")
)

// ParseMigrationAction maps "up", "down", "up1" and "down1" to an action.
func ParseMigrationAction(s string) (MigrationAction, bool) {
	switch s {
	case "up":
		return MigrateUp, true
	case "down":
		return MigrateDown, true
	case "up1":
		return MigrateUpOne, true
	case "down1":
		return MigrateDownOne, true
	}
	return MigrateUp, false
}

// Migrate applies the embedded schema migrations to db.
func Migrate(db *sql.DB, action MigrationAction) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}

	switch action {
	case MigrateDown:
		err = m.Down()
	case MigrateUpOne:
		err = m.Steps(1)
	case MigrateDownOne:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(err, ErrMigrate)
	}
	return nil
}
