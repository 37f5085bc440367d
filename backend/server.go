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
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ttbt-io/softball/backend/engine"
	"github.com/ttbt-io/softball/backend/search"
	"github.com/ttbt-io/softball/backend/store"
)

const (
	maxBodySize     = 1 << 20
	defaultPageSize = 50
	maxPageSize     = 100
	lineupSources   = 10
	retryAfterBusy  = "2"
)

var errForbidden = errors.New("forbidden")

// Options represent server options.
type Options struct {
	Addr     string
	Cert     *tls.Certificate
	Listener net.Listener
	Repo     store.Repository
	Debug    bool

	// Auth Options
	UseMockAuth    bool
	AuthCookieName string
	AuthSecret     string
	AuthJWKSURL    string

	// Access Control Options
	Admins   []string
	Allow    []string
	MaxGames int

	// Live game options
	SyncDelay      time.Duration
	MaxLiveGames   int
	HubIdleTimeout time.Duration
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	hubs       *HubManager
}

// Shutdown stops accepting requests, then flushes every live game.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := s.hubs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	return errors.Join(errs...)
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	if opts.Repo == nil {
		return nil, errors.New("no repository")
	}
	hubs, handler := NewServerHandler(opts)

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", opts.Addr); err != nil {
			return nil, err
		}
	}

	go func() {
		var err error
		if httpServer.TLSConfig != nil {
			log.Printf("Starting HTTPS server on %s...", ln.Addr())
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			log.Printf("Starting HTTP server on %s...", ln.Addr())
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{httpServer: httpServer, hubs: hubs}, nil
}

func parsePagination(r *http.Request) (start, limit int, query string) {
	limit = defaultPageSize
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("start")); err == nil {
		start = v
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	start = max(start, 0)
	return start, limit, strings.TrimSpace(q.Get("q"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encode response: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// storeError maps repository errors to responses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalid):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrStaleWrite):
		http.Error(w, "Conflict: "+err.Error(), http.StatusConflict)
	case errors.Is(err, errForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		log.Printf("Store error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// hubError maps failures to reach a hub to responses.
func hubError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrHubBusy), errors.Is(err, errHubClosed):
		w.Header().Set("Retry-After", retryAfterBusy)
		http.Error(w, "Service Unavailable: Server is busy", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Gateway Timeout", http.StatusGatewayTimeout)
	default:
		log.Printf("Hub error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// actionError maps engine errors to responses. The game is unchanged.
func actionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, engine.ErrUnknownRunner), errors.Is(err, engine.ErrUnknownPlayer):
		http.Error(w, "Not Found: "+err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrMalformedAction):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	}
}

// liveGame is the response of the live and actions endpoints.
type liveGame struct {
	ID           string         `json:"id"`
	HomeTeamName string         `json:"home_team_name"`
	AwayTeamName string         `json:"away_team_name"`
	Date         string         `json:"date"`
	OwnerID      string         `json:"owner_id"`
	Results      []ActionResult `json:"results,omitempty"`
	View         *engine.View   `json:"view"`
}

func newLiveGame(resp HubResponse) liveGame {
	return liveGame{
		ID:           resp.Game.ID,
		HomeTeamName: resp.Game.HomeTeamName,
		AwayTeamName: resp.Game.AwayTeamName,
		Date:         resp.Game.Date,
		OwnerID:      resp.Game.OwnerID,
		Results:      resp.Results,
		View:         resp.View,
	}
}

// lineupPlayer is a player offered for import into another game.
type lineupPlayer struct {
	Name      string `json:"name"`
	GroupName string `json:"group_name"`
	Position  int    `json:"position"`
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (*HubManager, http.Handler) {
	repo := opts.Repo
	accessControl := NewAccessControl(opts.Allow, opts.Admins)
	accessControl.MaxGames = opts.MaxGames
	hm := NewHubManager(repo, HubOptions{
		SyncDelay:   opts.SyncDelay,
		IdleTimeout: opts.HubIdleTimeout,
		MaxLive:     opts.MaxLiveGames,
		Debug:       opts.Debug,
	})

	debugf := func(string, ...any) {}
	if opts.Debug {
		debugf = func(f string, a ...any) {
			log.Printf("[DEBUG BACKEND] "+f, a...)
		}
	}

	authMiddleware := func(next http.Handler) http.Handler {
		if opts.UseMockAuth {
			return mockAuthMiddleware(next)
		}
		return jwtAuthMiddleware(opts, next)
	}

	// requireUser rejects anonymous and not-invited users.
	requireUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := getUserID(r)
			if userID == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if allowed, msg := accessControl.IsAllowed(userID); !allowed {
				debugf("Forbidden: %s: %s", maskUserID(userID), msg)
				http.Error(w, "Forbidden: "+msg, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	requireGameID := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isValidUUID(chi.URLParam(r, "id")) {
				http.Error(w, "Bad Request: invalid game id", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// storeOp runs op in the game's hub so it is ordered with live actions.
	storeOp := func(w http.ResponseWriter, r *http.Request, mode opMode, op StoreOp) (any, bool) {
		resp, err := hm.Do(r.Context(), chi.URLParam(r, "id"), HubRequest{
			Type:   ReqTypeStoreOp,
			UserID: getUserID(r),
			Op:     op,
			Mode:   mode,
		})
		if err != nil {
			hubError(w, err)
			return nil, false
		}
		if resp.Error != nil {
			storeError(w, resp.Error)
			return nil, false
		}
		return resp.Value, true
	}

	view := func(w http.ResponseWriter, r *http.Request) (HubResponse, bool) {
		resp, err := hm.Do(r.Context(), chi.URLParam(r, "id"), HubRequest{Type: ReqTypeView, UserID: getUserID(r)})
		if err != nil {
			hubError(w, err)
			return resp, false
		}
		if resp.Error != nil {
			storeError(w, resp.Error)
			return resp, false
		}
		return resp, true
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(loggingMiddleware)
	router.Use(middleware.Recoverer)
	router.Use(securityMiddleware)
	router.Use(cacheControlMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(requireUser)

		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			userID := getUserID(r)
			writeJSON(w, http.StatusOK, map[string]any{
				"user_id": userID,
				"admin":   accessControl.IsAdmin(userID),
			})
		})

		r.Get("/admin/stats", func(w http.ResponseWriter, r *http.Request) {
			if !accessControl.IsAdmin(getUserID(r)) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			writeJSON(w, http.StatusOK, hm.Stats())
		})

		r.Route("/games", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				start, limit, q := parsePagination(r)
				all, err := repo.ListGames(r.Context())
				if err != nil {
					storeError(w, err)
					return
				}
				query := search.Parse(q)
				userID := getUserID(r)
				games := make([]store.Summary, 0, len(all))
				for _, g := range all {
					if query.Match(g, userID) {
						games = append(games, g)
					}
				}
				total := len(games)
				games = games[min(start, total):min(start+limit, total)]
				writeJSON(w, http.StatusOK, map[string]any{
					"games": games,
					"total": total,
				})
			})

			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				userID := getUserID(r)
				var ng store.NewGame
				if !decodeJSON(w, r, &ng) {
					return
				}
				if err := ng.Validate(); err != nil {
					storeError(w, err)
					return
				}
				if accessControl.MaxGames > 0 {
					all, err := repo.ListGames(r.Context())
					if err != nil {
						storeError(w, err)
						return
					}
					owned := 0
					for _, g := range all {
						if strings.EqualFold(g.OwnerID, userID) {
							owned++
						}
					}
					if err := accessControl.CheckGameQuota(userID, owned); err != nil {
						http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
						return
					}
				}
				ng.OwnerID = userID
				g, err := repo.CreateGame(r.Context(), ng)
				if err != nil {
					storeError(w, err)
					return
				}
				debugf("Game %s created by %s", g.ID, maskUserID(userID))
				writeJSON(w, http.StatusCreated, map[string]any{"game": g})
			})

			r.Get("/lineups", func(w http.ResponseWriter, r *http.Request) {
				exclude := r.URL.Query().Get("excludeGameId")
				all, err := repo.ListGames(r.Context())
				if err != nil {
					storeError(w, err)
					return
				}
				games := make([]store.Summary, 0, lineupSources)
				for _, g := range all {
					if g.ID == exclude || g.PlayerCount == 0 {
						continue
					}
					games = append(games, g)
					if len(games) == lineupSources {
						break
					}
				}
				writeJSON(w, http.StatusOK, map[string]any{"games": games})
			})

			r.Post("/lineups", func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					SourceGameID string `json:"sourceGameId"`
				}
				if !decodeJSON(w, r, &body) {
					return
				}
				if !isValidUUID(body.SourceGameID) {
					http.Error(w, "Bad Request: invalid sourceGameId", http.StatusBadRequest)
					return
				}
				resp, err := hm.Do(r.Context(), body.SourceGameID, HubRequest{
					Type: ReqTypeStoreOp,
					Mode: opRead,
					Op: func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.ListPlayers(ctx, body.SourceGameID)
					},
				})
				if err != nil {
					hubError(w, err)
					return
				}
				if resp.Error != nil {
					storeError(w, resp.Error)
					return
				}
				rows := resp.Value.([]engine.PlayerRow)
				players := make([]lineupPlayer, 0, len(rows))
				for _, p := range rows {
					players = append(players, lineupPlayer{Name: p.Name, GroupName: p.GroupName, Position: p.IndexInGroup})
				}
				writeJSON(w, http.StatusOK, map[string]any{"players": players})
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Use(requireGameID)

				r.Get("/", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					v, ok := storeOp(w, r, opRead, func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.GetGame(ctx, id)
					})
					if !ok {
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"game": v})
				})

				r.Put("/", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					var st engine.GameState
					if !decodeJSON(w, r, &st) {
						return
					}
					v, ok := storeOp(w, r, opReplace, func(ctx context.Context, repo store.Repository) (any, error) {
						if err := repo.SaveState(ctx, id, st); err != nil {
							return nil, err
						}
						g, err := repo.GetGame(ctx, id)
						if err != nil {
							return nil, err
						}
						return g.SyncSeq, nil
					})
					if !ok {
						return
					}
					debugf("Game %s replaced by %s", id, maskUserID(getUserID(r)))
					writeJSON(w, http.StatusOK, map[string]any{"sync_seq": v})
				})

				r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					userID := getUserID(r)
					if _, ok := storeOp(w, r, opWrite, func(ctx context.Context, repo store.Repository) (any, error) {
						g, err := repo.GetGame(ctx, id)
						if err != nil {
							return nil, err
						}
						if !accessControl.CanDelete(userID, g.OwnerID) {
							return nil, errForbidden
						}
						return nil, repo.DeleteGame(ctx, id)
					}); !ok {
						return
					}
					log.Printf("Game %s deleted by %s", id, maskUserID(userID))
					w.WriteHeader(http.StatusNoContent)
				})

				r.Get("/players", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					v, ok := storeOp(w, r, opRead, func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.ListPlayers(ctx, id)
					})
					if !ok {
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"players": v})
				})

				r.Post("/players", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					var body struct {
						Name         string `json:"name"`
						GroupName    string `json:"group_name"`
						IndexInGroup *int   `json:"index_in_group"`
					}
					if !decodeJSON(w, r, &body) {
						return
					}
					row := engine.PlayerRow{Name: body.Name, GroupName: body.GroupName, IndexInGroup: -1}
					if body.IndexInGroup != nil {
						row.IndexInGroup = max(*body.IndexInGroup, 0)
					}
					v, ok := storeOp(w, r, opWrite, func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.CreatePlayer(ctx, id, row)
					})
					if !ok {
						return
					}
					writeJSON(w, http.StatusCreated, map[string]any{"player": v})
				})

				r.Put("/players", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					var patch store.PlayerPatch
					if !decodeJSON(w, r, &patch) {
						return
					}
					if patch.ID == "" {
						http.Error(w, "Bad Request: id is required", http.StatusBadRequest)
						return
					}
					v, ok := storeOp(w, r, opWrite, func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.UpdatePlayer(ctx, id, patch)
					})
					if !ok {
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"player": v})
				})

				r.Delete("/players", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					playerID := r.URL.Query().Get("playerId")
					if playerID == "" {
						http.Error(w, "Bad Request: playerId is required", http.StatusBadRequest)
						return
					}
					if _, ok := storeOp(w, r, opWrite, func(ctx context.Context, repo store.Repository) (any, error) {
						return nil, repo.DeletePlayer(ctx, id, playerID)
					}); !ok {
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Put("/update-indices", func(w http.ResponseWriter, r *http.Request) {
					id := chi.URLParam(r, "id")
					var body struct {
						Players []store.IndexUpdate `json:"players"`
					}
					if !decodeJSON(w, r, &body) {
						return
					}
					v, ok := storeOp(w, r, opWrite, func(ctx context.Context, repo store.Repository) (any, error) {
						return repo.UpdateIndices(ctx, id, body.Players)
					})
					if !ok {
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"updated": v})
				})

				r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
					resp, ok := view(w, r)
					if !ok {
						return
					}
					writeJSON(w, http.StatusOK, newLiveGame(resp))
				})

				r.Get("/boxscore", func(w http.ResponseWriter, r *http.Request) {
					resp, ok := view(w, r)
					if !ok {
						return
					}
					w.Header().Set("Content-Type", "text/plain; charset=utf-8")
					w.Write([]byte(renderBoxScore(resp.Game, *resp.View)))
				})

				r.Post("/actions", func(w http.ResponseWriter, r *http.Request) {
					var body json.RawMessage
					if !decodeJSON(w, r, &body) {
						return
					}
					var batch struct {
						Actions []json.RawMessage `json:"actions"`
					}
					raws := []json.RawMessage{body}
					if err := json.Unmarshal(body, &batch); err == nil && batch.Actions != nil {
						raws = batch.Actions
					}
					actions, err := ParseActions(raws)
					if err != nil {
						actionError(w, err)
						return
					}
					resp, err := hm.Do(r.Context(), chi.URLParam(r, "id"), HubRequest{
						Type:    ReqTypeAction,
						UserID:  getUserID(r),
						Actions: actions,
					})
					if err != nil {
						hubError(w, err)
						return
					}
					if resp.Error != nil {
						actionError(w, resp.Error)
						return
					}
					writeJSON(w, http.StatusOK, newLiveGame(resp))
				})

				r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
					ServeWS(hm, w, r, chi.URLParam(r, "id"))
				})
			})
		})
	})

	return hm, router
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
