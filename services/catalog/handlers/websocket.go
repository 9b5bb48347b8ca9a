// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AlignScope/services/catalog/datatypes"
	"github.com/AleutianAI/AlignScope/services/catalog/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 64 * 1024,
}

// streamMessage is one frame on the session stream.
//
//   - "snapshot": Columns carries the full session state. Sent once on
//     connect so late subscribers start consistent.
//   - "column": Column carries one updated view, including debounced
//     resolutions and fetch completions.
//   - "column_removed": ColumnID names the column that went away.
type streamMessage struct {
	Type     string                 `json:"type"`
	Columns  []datatypes.ColumnView `json:"columns,omitempty"`
	Column   *datatypes.ColumnView  `json:"column,omitempty"`
	ColumnID string                 `json:"column_id,omitempty"`
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// SessionStream upgrades to a websocket and pushes column updates until
// the peer disconnects or the session closes.
//
// # Description
//
// The stream is push-only. Edits still go through the REST endpoints;
// the socket exists so every resolution, debounce firing, and fetch
// completion reaches the UI without polling. Client frames are read
// and discarded; a read error is how the handler learns the peer went
// away.
//
// # Limitations
//
//   - No replay: frames published before the subscription are gone.
//     The initial snapshot covers the gap.
//   - A slow consumer that fills its buffer misses intermediate frames;
//     the next frame carries the full column view, so the UI converges.
func SessionStream(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg, err := mgr.Get(c.Param("sessionId"))
		if err != nil {
			failFor(c, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		updates, cancel := reg.Subscribe()
		defer cancel()

		if err := sendJSON(ws, streamMessage{Type: "snapshot", Columns: reg.Columns()}); err != nil {
			return
		}

		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case upd, ok := <-updates:
				if !ok {
					// Registry closed: session deleted or expired.
					return
				}
				msg := streamMessage{Type: "column", Column: &upd.Column}
				if upd.Removed {
					msg = streamMessage{Type: "column_removed", ColumnID: upd.Column.ID}
				}
				if err := sendJSON(ws, msg); err != nil {
					return
				}
			case <-readerDone:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
