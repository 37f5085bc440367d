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

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/ttbt-io/softball/backend"
	"github.com/ttbt-io/softball/backend/store"
	"github.com/ttbt-io/softball/backend/store/filestore"
	"github.com/ttbt-io/softball/backend/store/sqlstore"
)

var (
	cfgFile = ""
	rootCmd = &cobra.Command{
		Use:   "softballd",
		Short: "Softball scorekeeping server",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	migrateCmd = &cobra.Command{
		Use:       "migrate [up|down|up1|down1]",
		Short:     "Apply or revert the SQLite schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "up1", "down1"},
		RunE:      migrateSchema,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	addServeFlags(serveCmd.Flags())
	migrateCmd.Flags().String("db", "softball.db", "SQLite database file")
	rootCmd.AddCommand(serveCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadMasterKey opens or creates the key that encrypts the file store. A key
// file without a passphrase is refused rather than read as plaintext.
func loadMasterKey(dataDir, passphrase string) (crypto.MasterKey, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s exists but SOFTBALL_MASTER_KEY is not set; refusing to start unencrypted", keyFile)
		}
		log.Println("Warning: No SOFTBALL_MASTER_KEY provided. Data will be stored UNENCRYPTED.")
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	mk, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err == nil {
		log.Println("Loaded master encryption key.")
		return mk, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	log.Println("Initializing new master encryption key...")
	if mk, err = crypto.CreateMasterKey(); err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	if err := mk.Save([]byte(passphrase), keyFile); err != nil {
		return nil, fmt.Errorf("save master key: %w", err)
	}
	return mk, nil
}

func openRepository(ctx context.Context, c config) (store.Repository, error) {
	switch c.Store {
	case "file":
		mk, err := loadMasterKey(c.DataDir, c.MasterKey)
		if err != nil {
			return nil, err
		}
		st := storage.New(c.DataDir, mk)
		st.EnableCompression(true)
		fs := filestore.New(c.DataDir, st)
		fs.Debug = c.Debug
		return fs, nil
	default:
		return sqlstore.Open(ctx, sqlstore.Options{
			Path:        c.DBPath,
			AutoMigrate: true,
			Debug:       c.Debug,
		})
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(newLoader(), cmd.Flags(), cfgFile)
	if err != nil {
		return err
	}

	var cert *tls.Certificate
	if c.TLSCert != "" {
		pair, err := tls.LoadX509KeyPair(c.TLSCert, c.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		cert = &pair
	}

	repo, err := openRepository(cmd.Context(), c)
	if err != nil {
		return err
	}
	defer repo.Close()

	server, err := backend.StartServer(backend.Options{
		Addr:           c.Addr,
		Cert:           cert,
		Repo:           repo,
		Debug:          c.Debug,
		UseMockAuth:    c.UseMockAuth,
		AuthCookieName: c.AuthCookieName,
		AuthSecret:     c.AuthSecret,
		AuthJWKSURL:    c.AuthJWKSURL,
		Admins:         c.Admins,
		Allow:          c.Allow,
		MaxGames:       c.MaxGames,
		SyncDelay:      c.SyncDelay,
		MaxLiveGames:   c.MaxLiveGames,
		HubIdleTimeout: c.HubIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
	return nil
}

func migrateSchema(cmd *cobra.Command, args []string) error {
	action, ok := sqlstore.ParseMigrationAction(args[0])
	if !ok {
		return errors.New("unknown migration " + args[0])
	}
	c, err := loadConfig(newLoader(), cmd.Flags(), cfgFile)
	if err != nil {
		return err
	}
	s, err := sqlstore.Open(cmd.Context(), sqlstore.Options{Path: c.DBPath})
	if err != nil {
		return err
	}
	defer s.Close()
	if err := sqlstore.Migrate(s.DB(), action); err != nil {
		return err
	}
	log.Printf("Migration %s applied to %s", args[0], c.DBPath)
	return nil
}
