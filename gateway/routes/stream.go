package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"usdacore/core"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades to a websocket and relays committed protocol events.
// The cursor query parameter resumes after a previously seen sequence.
func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errNoStream)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Reads are not expected; CloseRead keeps control frames flowing and
	// cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())
	if err := a.relay(ctx, conn, cursor, eventType); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (a *api) relay(ctx context.Context, conn *websocket.Conn, cursor, eventType string) error {
	updates, cancel, backlog := a.stream.Subscribe(ctx, cursor, eventType)
	defer cancel()

	for _, update := range backlog {
		if err := writeUpdate(ctx, conn, update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeUpdate(ctx, conn, update); err != nil {
				return err
			}
		}
	}
}

func writeUpdate(ctx context.Context, conn *websocket.Conn, update core.StreamUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
