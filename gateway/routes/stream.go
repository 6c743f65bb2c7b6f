package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"crowdsale/core/types"
)

const wsWriteTimeout = 10 * time.Second

func (a *api) streamEvents(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if a.streams != nil {
		done := a.streams.StreamOpened()
		defer done()
	}
	ctx := conn.CloseRead(r.Context())
	if err := a.stream(ctx, conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			a.logger.Warn("event stream failed", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

// stream replays the backlog after cursor, then forwards live events. The
// subscription is taken before the replay so no entry falls in between.
func (a *api) stream(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel := a.events.Subscribe()
	defer cancel()

	last := cursor
	for _, evt := range a.events.Since(cursor) {
		if err := writeEvent(ctx, conn, evt); err != nil {
			return err
		}
		last = evt.Sequence
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if evt.Sequence <= last {
				continue
			}
			// A dropped live entry leaves a gap; fill it from the log.
			if evt.Sequence > last+1 {
				for _, missed := range a.events.Since(last) {
					if missed.Sequence >= evt.Sequence {
						break
					}
					if err := writeEvent(ctx, conn, missed); err != nil {
						return err
					}
				}
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
			last = evt.Sequence
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
