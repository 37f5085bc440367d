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
	"context"
	"path/filepath"
	"testing"

	"github.com/ttbt-io/softball/backend/store"
	"github.com/ttbt-io/softball/backend/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Path:        filepath.Join(t.TempDir(), "softball.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return openTestStore(t)
	})
}

func TestInMemory(t *testing.T) {
	s, err := Open(context.Background(), Options{AutoMigrate: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	g, err := s.CreateGame(context.Background(), store.NewGame{HomeTeamName: "A", AwayTeamName: "B"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := s.GetGame(context.Background(), g.ID); err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
}

func TestMigrateDownUp(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.CreateGame(ctx, store.NewGame{HomeTeamName: "A", AwayTeamName: "B"}); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if err := Migrate(s.DB(), MigrateDown); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if _, err := s.ListGames(ctx); err == nil {
		t.Fatal("expected an error with no tables")
	}
	if err := Migrate(s.DB(), MigrateUp); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if err := Migrate(s.DB(), MigrateUp); err != nil {
		t.Fatalf("second migrate up failed: %v", err)
	}
	list, err := s.ListGames(ctx)
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no games after down/up, got %d", len(list))
	}
}

func TestParseMigrationAction(t *testing.T) {
	for in, want := range map[string]MigrationAction{
		"up":    MigrateUp,
		"down":  MigrateDown,
		"up1":   MigrateUpOne,
		"down1": MigrateDownOne,
	} {
		got, ok := ParseMigrationAction(in)
		if !ok || got != want {
			t.Errorf("ParseMigrationAction(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseMigrationAction("sideways"); ok {
		t.Error("expected unknown action to fail")
	}
}
