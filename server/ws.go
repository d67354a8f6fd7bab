// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FilipeJohansson/gopulse"
)

const maxMessageSize = 4 * 1024

// helloPayload is the first message of an identity-bearing connection.
type helloPayload struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
}

// assignedPayload acknowledges the hello and carries the (possibly
// server-assigned) user ID.
type assignedPayload struct {
	UserID string `json:"userId"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// statsRequest is the on-demand snapshot request a public subscriber may
// send.
type statsRequest struct {
	Type string `json:"type"`
}

// handlePublicWS serves the public channel: the subscriber receives an
// immediate snapshot, then periodic snapshots from the broadcaster and
// variant-keyed count-change events. Sending {"type":"getStats"} yields a
// fresh snapshot on demand.
func (s *Server) handlePublicWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Log(gopulse.LogTypeConnection, gopulse.LogLevelError, "public upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, snaps := s.broadcaster.Subscribe(ctx)
	defer s.broadcaster.Unsubscribe(id)

	variants := s.tracker.Variants()
	events := s.tracker.Events().Sub(variants...)
	defer s.tracker.Events().Unsub(events, variants...)

	onDemand := make(chan gopulse.Snapshot, 1)
	go s.writePublic(ctx, conn, snaps, events, onDemand)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))

		var req statsRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "getStats" {
			continue
		}

		// drop the request rather than block when a fresh snapshot is
		// already queued
		select {
		case onDemand <- s.tracker.Snapshot(ctx):
		default:
		}
	}
}

// writePublic is the single writer of a public connection. It forwards
// broadcast snapshots, on-demand snapshots and count events, and keeps the
// connection alive with pings.
func (s *Server) writePublic(ctx context.Context, conn *websocket.Conn, snaps <-chan gopulse.Snapshot, events chan gopulse.CountEvent, onDemand <-chan gopulse.Snapshot) {
	ticker := time.NewTicker(s.config.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(payload interface{}) bool {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			s.logger.Log(gopulse.LogTypeBroadcast, gopulse.LogLevelDebug, "public write failed: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case snap, ok := <-snaps:
			if !ok || !write(snap) {
				return
			}

		case snap := <-onDemand:
			if !write(snap) {
				return
			}

		case evt, ok := <-events:
			if !ok || !write(evt) {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handlePrivateWS serves an identity-bearing connection. The client sends a
// hello {"type": <variant>, "userId"?: <id>}; the server assigns a user ID
// when none is given, replies with it, increments the variant's counter and
// records activity. Exactly one matching decrement runs when the connection
// ends. Unknown variants are rejected at this boundary.
//
// The whole lifecycle runs on one goroutine per connection, so the
// decrement can never overtake its matching increment.
func (s *Server) handlePrivateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Log(gopulse.LogTypeConnection, gopulse.LogLevelError, "private upgrade failed: %v", err)
		return
	}

	connID := uuid.NewString()
	var writeMu sync.Mutex
	writeJSON := func(payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		return conn.WriteJSON(payload)
	}

	pingCtx, stopPings := context.WithCancel(context.Background())
	go s.pingLoop(pingCtx, conn, &writeMu)

	var variant gopulse.Variant
	var userID string
	active := false

	defer func() {
		stopPings()
		conn.Close()

		// the disconnect transition always runs to completion, detached
		// from the request context
		if active {
			ctx := context.Background()
			s.tracker.Counters().Decrement(ctx, variant)
			s.tracker.Activity().Record(ctx, variant, userID)
			s.untrackActive(variant, connID)
			s.logger.Log(gopulse.LogTypeConnection, gopulse.LogLevelDebug, "%s connection closed for user %s", variant, userID)
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))

		if active {
			// repeated hello: acknowledge the existing assignment
			writeJSON(assignedPayload{UserID: userID})
			continue
		}

		var hello helloPayload
		if err := json.Unmarshal(data, &hello); err != nil {
			writeJSON(errorPayload{Error: "invalid payload"})
			continue
		}

		v, err := s.tracker.Registry().Resolve(hello.Type)
		if err != nil {
			s.logger.Log(gopulse.LogTypeConnection, gopulse.LogLevelWarn, "rejected connection: %v", err)
			writeJSON(errorPayload{Error: err.Error()})
			return
		}

		userID = hello.UserID
		if userID == "" {
			userID = uuid.NewString()
		}
		variant = v

		ctx := r.Context()
		s.tracker.Counters().Increment(ctx, variant)
		s.tracker.Activity().Record(ctx, variant, userID)
		s.trackActive(variant, connID)
		active = true

		if err := writeJSON(assignedPayload{UserID: userID}); err != nil {
			return
		}
	}
}

// pingLoop keeps an identity-bearing connection alive until its context is
// canceled.
func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(s.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
