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
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ttbt-io/softball/backend/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types for WebSocket communication
const (
	MsgTypeAction = "ACTION"
	MsgTypeResult = "RESULT"
	MsgTypeView   = "VIEW"
	MsgTypeError  = "ERROR"
	MsgTypePing   = "PING"
	MsgTypePong   = "PONG"
)

// Message represents a WebSocket message
type Message struct {
	Type    string            `json:"type"`
	Action  json.RawMessage   `json:"action,omitempty"`
	Actions []json.RawMessage `json:"actions,omitempty"`
	Results []ActionResult    `json:"results,omitempty"`
	View    *engine.View      `json:"view,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Only the hub sends on it and
	// closes it.
	send chan Message

	// Answers to this client's own messages, written by readPump.
	replies chan Message

	userID string
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypeAction:
			c.handleActions(msg)
		case MsgTypePing:
			c.reply(Message{Type: MsgTypePong})
		default:
			c.reply(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

func (c *wsClient) handleActions(msg Message) {
	raws := msg.Actions
	if len(msg.Action) > 0 {
		raws = append(raws, msg.Action)
	}
	actions, err := ParseActions(raws)
	if err != nil {
		c.reply(Message{Type: MsgTypeError, Error: err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	resp, err := c.hub.Do(ctx, HubRequest{Type: ReqTypeAction, UserID: c.userID, Actions: actions})
	if err != nil {
		if errors.Is(err, ErrHubBusy) {
			c.reply(Message{Type: MsgTypeError, Error: "Server busy"})
		}
		return
	}
	if resp.Error != nil {
		c.reply(Message{Type: MsgTypeError, Error: resp.Error.Error(), Results: resp.Results})
		return
	}
	c.reply(Message{Type: MsgTypeResult, Results: resp.Results})
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case message := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues a message from the hub. A client that is too slow to
// keep up misses it.
func (c *wsClient) sendJSON(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *wsClient) reply(msg Message) {
	select {
	case c.replies <- msg:
	default:
	}
}

// ServeWS upgrades the request and attaches the connection to the game's hub.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request, gameID string) {
	userID := getUserID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Message, 256), replies: make(chan Message, 16), userID: userID}
	for attempt := 0; ; attempt++ {
		client.hub = hm.GetHub(gameID)
		select {
		case client.hub.register <- client:
		case <-client.hub.done:
			if attempt < 2 {
				continue
			}
			conn.Close()
			return
		}
		break
	}

	go client.writePump()
	go client.readPump()
}
