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
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SOFTBALL"

var errConfig = errors.New("configuration error")

// config is the resolved server configuration. Every field can come from a
// flag, a SOFTBALL_* environment variable or the config file, in that order
// of precedence.
type config struct {
	Addr           string
	Store          string
	DBPath         string
	DataDir        string
	MasterKey      string
	Debug          bool
	TLSCert        string
	TLSKey         string
	AuthCookieName string
	AuthSecret     string
	AuthJWKSURL    string
	UseMockAuth    bool
	Admins         []string
	Allow          []string
	MaxGames       int
	SyncDelay      time.Duration
	MaxLiveGames   int
	HubIdleTimeout time.Duration
}

func newLoader() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("store", "sqlite")
	v.SetDefault("db", "softball.db")
	v.SetDefault("data-dir", "data")
	v.SetDefault("master-key", "")
	v.SetDefault("debug", false)
	v.SetDefault("tls-cert", "")
	v.SetDefault("tls-key", "")
	v.SetDefault("auth-cookie-name", "auth_token")
	v.SetDefault("auth-secret", "")
	v.SetDefault("auth-jwks-url", "")
	v.SetDefault("use-mock-auth", false)
	v.SetDefault("admins", []string{})
	v.SetDefault("allow", []string{})
	v.SetDefault("max-games", 0)
	v.SetDefault("sync-delay", 750*time.Millisecond)
	v.SetDefault("max-live-games", 256)
	v.SetDefault("hub-idle-timeout", 5*time.Minute)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "The TCP address to listen to")
	fs.String("store", "sqlite", "Storage backend: sqlite or file")
	fs.String("db", "softball.db", "SQLite database file")
	fs.String("data-dir", "data", "Directory for the file store and the master key")
	fs.Bool("debug", false, "Enable debug mode")
	fs.String("tls-cert", "", "Path to TLS certificate")
	fs.String("tls-key", "", "Path to TLS key")
	fs.String("auth-cookie-name", "auth_token", "Name of the cookie containing the JWT")
	fs.String("auth-jwks-url", "", "JWKS endpoint used to verify tokens")
	fs.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	fs.StringSlice("admins", nil, "Users who may delete any game")
	fs.StringSlice("allow", nil, "Users or @domains allowed to use the service; empty allows everyone")
	fs.Int("max-games", 0, "Games one user may own; 0 is unlimited")
	fs.Duration("sync-delay", 750*time.Millisecond, "Quiet period before a live game is written")
	fs.Int("max-live-games", 256, "Games kept in memory at once")
	fs.Duration("hub-idle-timeout", 5*time.Minute, "Unload a live game after this long without clients")
}

// loadConfig reads the optional config file and resolves every key.
func loadConfig(v *viper.Viper, fs *pflag.FlagSet, path string) (config, error) {
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return config{}, errors.Join(err, errConfig)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, errors.Join(err, errConfig)
		}
	}
	c := config{
		Addr:           v.GetString("addr"),
		Store:          strings.ToLower(v.GetString("store")),
		DBPath:         v.GetString("db"),
		DataDir:        v.GetString("data-dir"),
		MasterKey:      v.GetString("master-key"),
		Debug:          v.GetBool("debug"),
		TLSCert:        v.GetString("tls-cert"),
		TLSKey:         v.GetString("tls-key"),
		AuthCookieName: v.GetString("auth-cookie-name"),
		AuthSecret:     v.GetString("auth-secret"),
		AuthJWKSURL:    v.GetString("auth-jwks-url"),
		UseMockAuth:    v.GetBool("use-mock-auth"),
		Admins:         v.GetStringSlice("admins"),
		Allow:          v.GetStringSlice("allow"),
		MaxGames:       v.GetInt("max-games"),
		SyncDelay:      v.GetDuration("sync-delay"),
		MaxLiveGames:   v.GetInt("max-live-games"),
		HubIdleTimeout: v.GetDuration("hub-idle-timeout"),
	}
	switch c.Store {
	case "sqlite", "file":
	default:
		return c, errors.Join(errors.New("store must be sqlite or file"), errConfig)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return c, errors.Join(errors.New("tls-cert and tls-key go together"), errConfig)
	}
	return c, nil
}
